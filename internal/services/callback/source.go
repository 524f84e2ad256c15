package callback

import (
	"context"
	"errors"
	"sync"
)

var ErrNoSubscriber = errors.New("callback: nobody is listening")

// Handler receives one raw notification.
type Handler func(raw string)

// Source delivers raw notifications until the returned unsubscribe func is
// called.
type Source interface {
	Subscribe(ctx context.Context, h Handler) (unsubscribe func(), err error)
}

// Hub is an in-process source. Whatever is handed to Deliver reaches every
// current subscriber.
type Hub struct {
	mu       sync.RWMutex
	next     uint64
	handlers map[uint64]Handler
}

func NewHub() *Hub {
	return &Hub{handlers: make(map[uint64]Handler)}
}

func (h *Hub) Subscribe(_ context.Context, fn Handler) (func(), error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.next
	h.next++
	h.handlers[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.handlers, id)
			h.mu.Unlock()
		})
	}, nil
}

// Deliver hands raw to all subscribers.
func (h *Hub) Deliver(raw string) error {
	h.mu.RLock()
	handlers := make([]Handler, 0, len(h.handlers))
	for _, fn := range h.handlers {
		handlers = append(handlers, fn)
	}
	h.mu.RUnlock()

	if len(handlers) == 0 {
		return ErrNoSubscriber
	}
	for _, fn := range handlers {
		fn(raw)
	}
	return nil
}

// Multi subscribes to several sources as if they were one.
type Multi []Source

func (m Multi) Subscribe(ctx context.Context, h Handler) (func(), error) {
	unsubs := make([]func(), 0, len(m))
	unsubscribeAll := func() {
		for i := len(unsubs) - 1; i >= 0; i-- {
			unsubs[i]()
		}
	}

	for _, src := range m {
		unsub, err := src.Subscribe(ctx, h)
		if err != nil {
			unsubscribeAll()
			return nil, err
		}
		unsubs = append(unsubs, unsub)
	}

	var once sync.Once
	return func() { once.Do(unsubscribeAll) }, nil
}
