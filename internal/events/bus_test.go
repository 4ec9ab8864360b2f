package events

import (
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

type recordingHandler struct {
	mu   sync.Mutex
	seen []Event
}

func (h *recordingHandler) Name() string { return "recording" }

func (h *recordingHandler) Handle(evt Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seen = append(h.seen, evt)
}

func (h *recordingHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.seen)
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

func TestBusDeliversToAllHandlers(t *testing.T) {
	bus := NewBus(quietLogger(), nil)
	h1 := &recordingHandler{}
	h2 := &recordingHandler{}
	bus.Register(h1)
	bus.Register(h2)
	go bus.Run()

	bus.Publish(New(TypeOrderPlaced, "order-1", map[string]any{"total": 100.0}))
	bus.Publish(New(TypeOrderDelivered, "order-1", nil))
	bus.Close()

	deadline := time.Now().Add(2 * time.Second)
	for h1.count() < 2 || h2.count() < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("handlers saw %d/%d events, want 2/2", h1.count(), h2.count())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestBusPublishNeverBlocks(t *testing.T) {
	var drops int
	bus := NewBus(quietLogger(), func() { drops++ })
	// no Run(): the buffer fills and overflow must be dropped, not block

	done := make(chan struct{})
	go func() {
		for i := 0; i < busBuffer+50; i++ {
			bus.Publish(New(TypeOrderPlaced, "k", nil))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked with a full buffer")
	}
	if drops == 0 {
		t.Error("expected drop callback to fire on overflow")
	}
}

type panicHandler struct{}

func (panicHandler) Name() string { return "panics" }
func (panicHandler) Handle(Event) { panic("boom") }

func TestBusRecoversHandlerPanic(t *testing.T) {
	bus := NewBus(quietLogger(), nil)
	ok := &recordingHandler{}
	bus.Register(panicHandler{})
	bus.Register(ok)
	go bus.Run()

	bus.Publish(New(TypePayoutRequested, "p-1", nil))
	bus.Close()

	deadline := time.Now().Add(2 * time.Second)
	for ok.count() < 1 {
		if time.Now().After(deadline) {
			t.Fatal("panic in one handler starved the next")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
