package event

import (
	"sync"

	"github.com/shopops/automator/internal/domain/shared"
)

// HandlerRegistry tracks which handler listens to which event type.
// Handlers registered without types are wildcards and receive everything.
type HandlerRegistry struct {
	mu       sync.RWMutex
	byType   map[string][]shared.EventHandler
	wildcard []shared.EventHandler
}

// NewHandlerRegistry creates an empty registry
func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{byType: make(map[string][]shared.EventHandler)}
}

// Register adds a handler for the given event types, or as a wildcard when
// none are given
func (r *HandlerRegistry) Register(handler shared.EventHandler, eventTypes ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(eventTypes) == 0 {
		r.wildcard = append(r.wildcard, handler)
		return
	}
	for _, et := range eventTypes {
		r.byType[et] = append(r.byType[et], handler)
	}
}

// Unregister removes a handler everywhere it was registered
func (r *HandlerRegistry) Unregister(handler shared.EventHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.wildcard = dropHandler(r.wildcard, handler)
	for et, handlers := range r.byType {
		r.byType[et] = dropHandler(handlers, handler)
		if len(r.byType[et]) == 0 {
			delete(r.byType, et)
		}
	}
}

// HandlersFor returns the handlers to invoke for one event type, wildcard
// handlers included
func (r *HandlerRegistry) HandlersFor(eventType string) []shared.EventHandler {
	r.mu.RLock()
	defer r.mu.RUnlock()

	typed := r.byType[eventType]
	out := make([]shared.EventHandler, 0, len(typed)+len(r.wildcard))
	out = append(out, typed...)
	out = append(out, r.wildcard...)
	return out
}

func dropHandler(handlers []shared.EventHandler, target shared.EventHandler) []shared.EventHandler {
	out := handlers[:0:0]
	for _, h := range handlers {
		if h != target {
			out = append(out, h)
		}
	}
	return out
}
