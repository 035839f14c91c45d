package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/santhosh-tekuri/jsonschema/v6"
	"go.uber.org/zap"

	"github.com/shopops/automator/internal/domain/agent"
	"github.com/shopops/automator/internal/domain/plan"
)

// BuildRequest is the untyped input to plan construction. This is the only
// place a raw parameter map crosses into the engine; everything past Build
// works with the decoded, typed parameters.
type BuildRequest struct {
	AgentType  agent.Type
	Parameters map[string]any
	DependsOn  []uuid.UUID
}

// PlanBuilder turns raw parameter maps into validated plans. Validation
// runs in three layers: the agent's closed JSON schema rejects unknown and
// mistyped fields, struct tags check bounds and cross-field rules, and the
// agent's Assess grades risk, scale, approval and rollback.
type PlanBuilder struct {
	registry *agent.Registry
	validate *validator.Validate
	schemas  map[agent.Type]*jsonschema.Schema
	logger   *zap.Logger
}

// NewPlanBuilder compiles the parameter schema of every registered agent
// and fails if any of them is broken
func NewPlanBuilder(registry *agent.Registry, logger *zap.Logger) (*PlanBuilder, error) {
	schemas := make(map[agent.Type]*jsonschema.Schema)
	for _, t := range registry.Types() {
		ag, err := registry.Get(t)
		if err != nil {
			return nil, err
		}
		schema, err := compileSchema(string(t), ag.Spec().Schema)
		if err != nil {
			return nil, err
		}
		schemas[t] = schema
	}

	return &PlanBuilder{
		registry: registry,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		schemas:  schemas,
		logger:   logger.Named("builder"),
	}, nil
}

// Build validates req and produces a plan in READY or AWAITING_APPROVAL
// state. Invalid parameters come back as a ValidationError naming every
// violated rule.
func (b *PlanBuilder) Build(ctx context.Context, req BuildRequest) (*plan.Plan, error) {
	ag, err := b.registry.Get(req.AgentType)
	if err != nil {
		return nil, err
	}
	spec := ag.Spec()

	schema, ok := b.schemas[req.AgentType]
	if !ok {
		return nil, fmt.Errorf("no schema compiled for agent %q", req.AgentType)
	}
	if err := validateRaw(schema, req.Parameters); err != nil {
		return nil, NewValidationError(string(req.AgentType), err.Error())
	}

	params := spec.NewParams()
	encoded, err := json.Marshal(req.Parameters)
	if err != nil {
		return nil, NewValidationError(string(req.AgentType), fmt.Sprintf("encode parameters: %v", err))
	}
	if err := json.Unmarshal(encoded, params); err != nil {
		return nil, NewValidationError(string(req.AgentType), fmt.Sprintf("decode parameters: %v", err))
	}

	if err := b.validate.Struct(params); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			issues := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				issues = append(issues, fmt.Sprintf("field %s violates %q", fe.Field(), fe.Tag()))
			}
			return nil, NewValidationError(string(req.AgentType), issues...)
		}
		return nil, NewValidationError(string(req.AgentType), err.Error())
	}

	assessment, err := spec.Assess(params)
	if err != nil {
		return nil, NewValidationError(string(req.AgentType), err.Error())
	}
	if !assessment.Risk.Valid() {
		return nil, fmt.Errorf("agent %q assessed an unknown risk level %q", req.AgentType, assessment.Risk)
	}
	if err := assessment.Rollback.Validate(); err != nil {
		return nil, fmt.Errorf("agent %q produced an invalid rollback plan: %w", req.AgentType, err)
	}

	p := plan.New(string(req.AgentType), spec.Action)
	p.Params = params
	p.Raw = req.Parameters
	p.Dependencies = req.DependsOn
	p.Risk = assessment.Risk
	p.Scale = assessment.Scale
	p.NeedsApproval = assessment.NeedsApproval
	p.Rollback = assessment.Rollback

	next := plan.StatusReady
	if p.NeedsApproval {
		next = plan.StatusAwaitingApproval
	}
	if err := p.Transition(next); err != nil {
		return nil, err
	}

	b.logger.Info("plan built",
		zap.String("plan_id", p.ID.String()),
		zap.String("agent", p.AgentType),
		zap.String("action", p.Action),
		zap.String("risk", string(p.Risk)),
		zap.Int("scale", p.Scale),
		zap.Bool("needs_approval", p.NeedsApproval),
	)
	return p, nil
}
