// Package escalation delivers manual-intervention alerts when a rollback
// gives up.
package escalation

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/shopops/automator/internal/domain/gateway"
	"github.com/shopops/automator/internal/domain/plan"
)

// MessagingEscalator alerts the operations contact through the messaging
// gateway. The fallback action named by the plan becomes the subject, so
// the on-call person sees at a glance what kind of cleanup is owed.
type MessagingEscalator struct {
	messaging gateway.Messaging
	contact   string
	logger    *zap.Logger
}

// NewMessagingEscalator creates an escalator sending to contact
func NewMessagingEscalator(messaging gateway.Messaging, contact string, logger *zap.Logger) *MessagingEscalator {
	return &MessagingEscalator{
		messaging: messaging,
		contact:   contact,
		logger:    logger.Named("escalation"),
	}
}

// Escalate sends the alert. The error is reported to the caller and logged;
// the caller decides whether a lost alert is fatal.
func (e *MessagingEscalator) Escalate(ctx context.Context, p *plan.Plan, action, reason string) error {
	msg := gateway.Message{
		To:      e.contact,
		Subject: fmt.Sprintf("[automator] %s: plan %s needs manual review", action, p.ID),
		Body: fmt.Sprintf(
			"Plan %s (agent %s, action %s) could not be rolled back automatically.\n"+
				"Reason: %s\n"+
				"Requested fallback: %s\n"+
				"Risk: %s, scale: %d\n",
			p.ID, p.AgentType, p.Action, reason, action, p.Risk, p.Scale,
		),
	}
	if err := e.messaging.Send(ctx, msg); err != nil {
		e.logger.Error("escalation message failed",
			zap.String("plan_id", p.ID.String()),
			zap.String("action", action),
			zap.Error(err),
		)
		return fmt.Errorf("escalate plan %s: %w", p.ID, err)
	}
	e.logger.Info("escalation sent",
		zap.String("plan_id", p.ID.String()),
		zap.String("action", action),
		zap.String("contact", e.contact),
	)
	return nil
}

// LogEscalator writes escalations to the log only. It backs deployments
// that have no messaging provider configured; the alert still lands in the
// operator's log pipeline.
type LogEscalator struct {
	logger *zap.Logger
}

// NewLogEscalator creates a log-only escalator
func NewLogEscalator(logger *zap.Logger) *LogEscalator {
	return &LogEscalator{logger: logger.Named("escalation")}
}

// Escalate records the alert at error level so log-based alerting picks it up
func (e *LogEscalator) Escalate(ctx context.Context, p *plan.Plan, action, reason string) error {
	e.logger.Error("manual intervention required",
		zap.String("plan_id", p.ID.String()),
		zap.String("agent", p.AgentType),
		zap.String("fallback_action", action),
		zap.String("reason", reason),
	)
	return nil
}
