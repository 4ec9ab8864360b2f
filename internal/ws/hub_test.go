package ws

import (
	"io"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/sokoline/sokoline-backend/internal/events"
)

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func subscribe(h *Hub, orderID string) *client {
	c := &client{send: make(chan Message, sendBuffer), orderID: orderID}
	h.mu.Lock()
	h.clients[c] = true
	h.mu.Unlock()
	return c
}

func TestHandleRoutesByOrderSubscription(t *testing.T) {
	h := NewHub(testLogger())
	scoped := subscribe(h, "order-1")
	other := subscribe(h, "order-2")
	firehose := subscribe(h, "")

	h.Handle(events.New(events.TypeOrderDispatched, "order-1", map[string]any{"courier": "Swift Riders"}))

	select {
	case msg := <-scoped.send:
		if msg.Type != string(events.TypeOrderDispatched) || msg.OrderID != "order-1" {
			t.Fatalf("unexpected message %+v", msg)
		}
	default:
		t.Fatal("subscribed client got nothing")
	}

	select {
	case msg := <-other.send:
		t.Fatalf("client for another order received %+v", msg)
	default:
	}

	select {
	case <-firehose.send:
	default:
		t.Fatal("unscoped client should receive every event")
	}
}

func TestHandleDropsSlowClients(t *testing.T) {
	h := NewHub(testLogger())
	slow := &client{send: make(chan Message), orderID: ""}
	h.mu.Lock()
	h.clients[slow] = true
	h.mu.Unlock()

	h.Handle(events.New(events.TypeOrderPlaced, "order-9", nil))

	if got := h.ClientCount(); got != 0 {
		t.Fatalf("slow client should have been dropped, count = %d", got)
	}
	if _, ok := <-slow.send; ok {
		t.Fatal("slow client channel should be closed")
	}
}
