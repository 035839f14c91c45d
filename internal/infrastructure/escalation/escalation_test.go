package escalation

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/shopops/automator/internal/domain/gateway"
	"github.com/shopops/automator/internal/domain/plan"
)

type recordingMessaging struct {
	sent []gateway.Message
	err  error
}

func (m *recordingMessaging) Provider() string { return "mailgun" }

func (m *recordingMessaging) Send(ctx context.Context, msg gateway.Message) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

func TestMessagingEscalatorSendsAlert(t *testing.T) {
	messaging := &recordingMessaging{}
	esc := NewMessagingEscalator(messaging, "oncall@example.com", zap.NewNop())

	p := plan.New("orders", "reorder_low_stock")
	p.Risk = plan.RiskHigh
	p.Scale = 42

	err := esc.Escalate(context.Background(), p, "cancel_supplier_orders", "rollback timed out")
	require.NoError(t, err)

	require.Len(t, messaging.sent, 1)
	msg := messaging.sent[0]
	assert.Equal(t, "oncall@example.com", msg.To)
	assert.Contains(t, msg.Subject, "cancel_supplier_orders")
	assert.Contains(t, msg.Subject, p.ID.String())
	assert.Contains(t, msg.Body, "rollback timed out")
	assert.Contains(t, msg.Body, "reorder_low_stock")
}

func TestMessagingEscalatorReportsSendFailure(t *testing.T) {
	messaging := &recordingMessaging{err: errors.New("smtp down")}
	esc := NewMessagingEscalator(messaging, "oncall@example.com", zap.NewNop())

	err := esc.Escalate(context.Background(), plan.New("orders", "reorder_low_stock"), "alert", "oops")
	assert.Error(t, err)
}

func TestLogEscalatorNeverFails(t *testing.T) {
	esc := NewLogEscalator(zap.NewNop())
	err := esc.Escalate(context.Background(), plan.New("inventory", "sync_stock"), "alert_ops", "timeout")
	assert.NoError(t, err)
}
