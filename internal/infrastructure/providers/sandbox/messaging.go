package sandbox

import (
	"context"
	"sync"

	"github.com/shopops/automator/internal/domain/gateway"
)

// Messaging is an in-memory mail provider that records every message
type Messaging struct {
	name string

	mu   sync.Mutex
	sent []gateway.Message
}

// NewMessaging creates a sandbox messaging provider
func NewMessaging(name string) *Messaging {
	return &Messaging{name: name}
}

// Provider returns the provider instance name
func (m *Messaging) Provider() string {
	return m.name
}

// Send records the message instead of delivering it
func (m *Messaging) Send(ctx context.Context, msg gateway.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return nil
}

// Sent returns a copy of everything sent so far
func (m *Messaging) Sent() []gateway.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]gateway.Message, len(m.sent))
	copy(out, m.sent)
	return out
}

var _ gateway.Messaging = (*Messaging)(nil)
