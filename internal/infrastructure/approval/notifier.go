package approval

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/shopops/automator/internal/domain/gateway"
	"github.com/shopops/automator/internal/domain/plan"
	"github.com/shopops/automator/internal/domain/shared"
)

// Notifier alerts the operations contact when a plan parks for approval.
// The message carries a signed grant bound to that plan, so the contact can
// approve it by posting the token back without any other credential.
type Notifier struct {
	grants    *GrantService
	messaging gateway.Messaging
	contact   string
	logger    *zap.Logger
}

// NewNotifier creates a notifier sending grants to contact
func NewNotifier(grants *GrantService, messaging gateway.Messaging, contact string, logger *zap.Logger) *Notifier {
	return &Notifier{
		grants:    grants,
		messaging: messaging,
		contact:   contact,
		logger:    logger.Named("approval-notifier"),
	}
}

// Handle sends the approval request for plans that need one. Delivery
// failures are logged and swallowed; a lost notification never fails the
// plan, the operator can still approve through the API.
func (n *Notifier) Handle(ctx context.Context, event shared.DomainEvent) error {
	ev, ok := event.(*plan.CreatedEvent)
	if !ok || !ev.NeedsApproval {
		return nil
	}

	planID := ev.AggregateID()
	token, err := n.grants.Issue(planID, n.contact, "issued on plan creation")
	if err != nil {
		n.logger.Error("issuing approval grant failed",
			zap.String("plan_id", planID.String()),
			zap.Error(err),
		)
		return nil
	}

	msg := gateway.Message{
		To:      n.contact,
		Subject: fmt.Sprintf("[automator] plan %s awaits approval", planID),
		Body: fmt.Sprintf(
			"Agent %s wants to run %s (risk %s) and needs a human decision.\n"+
				"Approve with:\n"+
				"  POST /api/v1/plans/%s/approve\n"+
				"  {\"grant\": %q}\n",
			ev.AgentType, ev.Action, ev.Risk, planID, token,
		),
	}
	if err := n.messaging.Send(ctx, msg); err != nil {
		n.logger.Error("approval notification failed",
			zap.String("plan_id", planID.String()),
			zap.String("contact", n.contact),
			zap.Error(err),
		)
		return nil
	}

	n.logger.Info("approval grant sent",
		zap.String("plan_id", planID.String()),
		zap.String("agent", ev.AgentType),
		zap.String("contact", n.contact),
	)
	return nil
}

// EventTypes subscribes the notifier to plan creation only.
func (n *Notifier) EventTypes() []string {
	return []string{plan.EventPlanCreated}
}

var _ shared.EventHandler = (*Notifier)(nil)
