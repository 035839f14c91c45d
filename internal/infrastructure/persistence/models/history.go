package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/shopops/automator/internal/domain/plan"
	"github.com/shopops/automator/internal/domain/work"
)

// PlanRecord is the persistence model for an audited plan.
type PlanRecord struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey"`
	AgentType     string    `gorm:"type:varchar(32);not null;index"`
	Action        string    `gorm:"type:varchar(64);not null"`
	Parameters    string    `gorm:"type:text"`
	Dependencies  string    `gorm:"type:text"`
	Risk          string    `gorm:"type:varchar(16);not null"`
	Scale         int       `gorm:"not null;default:0"`
	NeedsApproval bool      `gorm:"not null;default:false"`
	Rollback      string    `gorm:"type:text"`
	Status        string    `gorm:"type:varchar(24);not null;index"`
	CreatedAt     time.Time `gorm:"not null"`
	UpdatedAt     time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (PlanRecord) TableName() string {
	return "plan_records"
}

// PlanRecordFromDomain creates a persistence model from a domain plan.
func PlanRecordFromDomain(p *plan.Plan) (*PlanRecord, error) {
	params, err := json.Marshal(p.Raw)
	if err != nil {
		return nil, fmt.Errorf("marshal plan parameters: %w", err)
	}
	deps, err := json.Marshal(p.Dependencies)
	if err != nil {
		return nil, fmt.Errorf("marshal plan dependencies: %w", err)
	}
	rollback, err := json.Marshal(p.Rollback)
	if err != nil {
		return nil, fmt.Errorf("marshal rollback plan: %w", err)
	}
	return &PlanRecord{
		ID:            p.ID,
		AgentType:     p.AgentType,
		Action:        p.Action,
		Parameters:    string(params),
		Dependencies:  string(deps),
		Risk:          string(p.Risk),
		Scale:         p.Scale,
		NeedsApproval: p.NeedsApproval,
		Rollback:      string(rollback),
		Status:        string(p.Status),
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}, nil
}

// ToDomain converts the record back to a domain plan. Params stays nil:
// the typed parameter struct is not reconstructible from the audit row,
// only the canonical Raw map is.
func (m *PlanRecord) ToDomain() (*plan.Plan, error) {
	p := &plan.Plan{
		ID:            m.ID,
		AgentType:     m.AgentType,
		Action:        m.Action,
		Risk:          plan.RiskLevel(m.Risk),
		Scale:         m.Scale,
		NeedsApproval: m.NeedsApproval,
		Status:        plan.Status(m.Status),
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
	if m.Parameters != "" {
		if err := json.Unmarshal([]byte(m.Parameters), &p.Raw); err != nil {
			return nil, fmt.Errorf("unmarshal plan parameters: %w", err)
		}
	}
	if m.Dependencies != "" {
		if err := json.Unmarshal([]byte(m.Dependencies), &p.Dependencies); err != nil {
			return nil, fmt.Errorf("unmarshal plan dependencies: %w", err)
		}
	}
	if m.Rollback != "" {
		if err := json.Unmarshal([]byte(m.Rollback), &p.Rollback); err != nil {
			return nil, fmt.Errorf("unmarshal rollback plan: %w", err)
		}
	}
	return p, nil
}

// ExecutionRecord is the persistence model for one finished run. A plan
// can produce several runs (a dry run before an apply, a retry after a
// failure), so the record carries its own identity.
type ExecutionRecord struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	PlanID     uuid.UUID `gorm:"type:uuid;not null;index"`
	Agent      string    `gorm:"type:varchar(32);not null;index:idx_execution_recent"`
	Action     string    `gorm:"type:varchar(64);not null"`
	Mode       string    `gorm:"type:varchar(16);not null"`
	Status     string    `gorm:"type:varchar(16);not null"`
	Aborted    string    `gorm:"type:varchar(16)"`
	Results    string    `gorm:"type:text"`
	Summary    string    `gorm:"type:text"`
	Errors     string    `gorm:"type:text"`
	Metrics    string    `gorm:"type:text"`
	StartedAt  time.Time `gorm:"not null"`
	FinishedAt time.Time `gorm:"not null;index:idx_execution_recent"`
}

// TableName returns the table name for GORM
func (ExecutionRecord) TableName() string {
	return "execution_records"
}

// ExecutionRecordFromDomain creates a persistence model from a run result.
func ExecutionRecordFromDomain(res *work.ExecutionResult) (*ExecutionRecord, error) {
	results, err := json.Marshal(res.Results)
	if err != nil {
		return nil, fmt.Errorf("marshal execution results: %w", err)
	}
	summary, err := json.Marshal(res.Summary)
	if err != nil {
		return nil, fmt.Errorf("marshal execution summary: %w", err)
	}
	errs, err := json.Marshal(res.Errors)
	if err != nil {
		return nil, fmt.Errorf("marshal execution errors: %w", err)
	}
	metrics, err := json.Marshal(res.Metrics)
	if err != nil {
		return nil, fmt.Errorf("marshal execution metrics: %w", err)
	}
	return &ExecutionRecord{
		ID:         uuid.New(),
		PlanID:     res.PlanID,
		Agent:      res.Agent,
		Action:     res.Action,
		Mode:       string(res.Mode),
		Status:     string(res.Status),
		Aborted:    string(res.Aborted),
		Results:    string(results),
		Summary:    string(summary),
		Errors:     string(errs),
		Metrics:    string(metrics),
		StartedAt:  res.StartedAt,
		FinishedAt: res.FinishedAt,
	}, nil
}

// ToDomain converts the record back to a run result.
func (m *ExecutionRecord) ToDomain() (*work.ExecutionResult, error) {
	res := &work.ExecutionResult{
		PlanID:     m.PlanID,
		Agent:      m.Agent,
		Action:     m.Action,
		Mode:       work.Mode(m.Mode),
		Status:     work.Status(m.Status),
		Aborted:    work.AbortReason(m.Aborted),
		StartedAt:  m.StartedAt,
		FinishedAt: m.FinishedAt,
	}
	if m.Results != "" {
		if err := json.Unmarshal([]byte(m.Results), &res.Results); err != nil {
			return nil, fmt.Errorf("unmarshal execution results: %w", err)
		}
	}
	if m.Summary != "" {
		if err := json.Unmarshal([]byte(m.Summary), &res.Summary); err != nil {
			return nil, fmt.Errorf("unmarshal execution summary: %w", err)
		}
	}
	if m.Errors != "" {
		if err := json.Unmarshal([]byte(m.Errors), &res.Errors); err != nil {
			return nil, fmt.Errorf("unmarshal execution errors: %w", err)
		}
	}
	if m.Metrics != "" {
		if err := json.Unmarshal([]byte(m.Metrics), &res.Metrics); err != nil {
			return nil, fmt.Errorf("unmarshal execution metrics: %w", err)
		}
	}
	return res, nil
}

// RollbackRecord is the persistence model for a rollback outcome. Like
// runs, rollbacks can repeat for the same plan, so the record has its own
// identity.
type RollbackRecord struct {
	ID              uuid.UUID `gorm:"type:uuid;primaryKey"`
	PlanID          uuid.UUID `gorm:"type:uuid;not null;index"`
	Status          string    `gorm:"type:varchar(24);not null"`
	StepsRun        int       `gorm:"not null;default:0"`
	StepsFailed     int       `gorm:"not null;default:0"`
	FallbackInvoked bool      `gorm:"not null;default:false"`
	Error           string    `gorm:"type:text"`
	StartedAt       time.Time `gorm:"not null"`
	FinishedAt      time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (RollbackRecord) TableName() string {
	return "rollback_records"
}

// RollbackRecordFromDomain creates a persistence model from a rollback
// outcome.
func RollbackRecordFromDomain(out *plan.RollbackOutcome) *RollbackRecord {
	return &RollbackRecord{
		ID:              uuid.New(),
		PlanID:          out.PlanID,
		Status:          string(out.Status),
		StepsRun:        out.StepsRun,
		StepsFailed:     out.StepsFailed,
		FallbackInvoked: out.FallbackInvoked,
		Error:           out.Error,
		StartedAt:       out.StartedAt,
		FinishedAt:      out.FinishedAt,
	}
}

// ToDomain converts the record back to a rollback outcome.
func (m *RollbackRecord) ToDomain() *plan.RollbackOutcome {
	return &plan.RollbackOutcome{
		PlanID:          m.PlanID,
		Status:          plan.Status(m.Status),
		StepsRun:        m.StepsRun,
		StepsFailed:     m.StepsFailed,
		FallbackInvoked: m.FallbackInvoked,
		Error:           m.Error,
		StartedAt:       m.StartedAt,
		FinishedAt:      m.FinishedAt,
	}
}
