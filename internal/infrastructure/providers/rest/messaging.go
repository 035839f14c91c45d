package rest

import (
	"context"
	"net/http"

	"github.com/shopops/automator/internal/domain/gateway"
)

// Messaging talks to a transactional mail or chat provider via POST /messages
type Messaging struct {
	c *client
}

// NewMessaging creates a messaging adapter for the given provider
func NewMessaging(cfg Config) (*Messaging, error) {
	c, err := newClient(cfg)
	if err != nil {
		return nil, err
	}
	return &Messaging{c: c}, nil
}

// Provider returns the provider instance name
func (m *Messaging) Provider() string {
	return m.c.name
}

// Send delivers one message
func (m *Messaging) Send(ctx context.Context, msg gateway.Message) error {
	_, err := m.c.do(ctx, "send", http.MethodPost, "/messages", nil, msg, nil)
	return err
}

var _ gateway.Messaging = (*Messaging)(nil)
