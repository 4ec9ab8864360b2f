package events

import (
	"sync"

	"github.com/sirupsen/logrus"
)

const busBuffer = 256

// Bus is an in-process dispatcher that decouples state transitions from their
// side effects. Publish never blocks the caller and handler failures never
// reach the publishing transaction.
type Bus struct {
	ch       chan Event
	handlers []Handler
	mu       sync.RWMutex
	done     chan struct{}
	once     sync.Once
	logger   *logrus.Logger

	// Dropped counts events discarded because the buffer was full.
	dropped func()
}

// NewBus creates a bus. onDrop, if non-nil, is invoked whenever an event is
// discarded due to backpressure (used to feed a metrics counter).
func NewBus(logger *logrus.Logger, onDrop func()) *Bus {
	return &Bus{
		ch:      make(chan Event, busBuffer),
		done:    make(chan struct{}),
		logger:  logger,
		dropped: onDrop,
	}
}

// Register adds a handler. Safe to call before or after Run.
func (b *Bus) Register(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, h)
	b.logger.WithField("handler", h.Name()).Info("event handler registered")
}

// Publish enqueues an event without blocking. When the buffer is full the
// event is dropped and logged; transitions never wait on side effects.
func (b *Bus) Publish(evt Event) {
	select {
	case b.ch <- evt:
	default:
		b.logger.WithFields(logrus.Fields{
			"type": evt.Type,
			"key":  evt.Key,
		}).Warn("event bus full, dropping event")
		if b.dropped != nil {
			b.dropped()
		}
	}
}

// Run dispatches events to every registered handler until Close is called.
// Intended to run on its own goroutine.
func (b *Bus) Run() {
	for {
		select {
		case evt := <-b.ch:
			b.dispatch(evt)
		case <-b.done:
			// drain what is already queued
			for {
				select {
				case evt := <-b.ch:
					b.dispatch(evt)
				default:
					return
				}
			}
		}
	}
}

// Close stops the dispatcher after draining queued events.
func (b *Bus) Close() {
	b.once.Do(func() { close(b.done) })
}

func (b *Bus) dispatch(evt Event) {
	b.mu.RLock()
	handlers := b.handlers
	b.mu.RUnlock()

	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					b.logger.WithFields(logrus.Fields{
						"handler": h.Name(),
						"type":    evt.Type,
						"panic":   r,
					}).Error("event handler panicked")
				}
			}()
			h.Handle(evt)
		}()
	}
}
