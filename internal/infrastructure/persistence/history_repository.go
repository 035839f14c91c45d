package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/shopops/automator/internal/domain/plan"
	"github.com/shopops/automator/internal/domain/shared"
	"github.com/shopops/automator/internal/domain/work"
	"github.com/shopops/automator/internal/infrastructure/persistence/models"
)

// defaultRecentLimit caps RecentExecutions when the caller asks for
// everything.
const defaultRecentLimit = 20

// GormHistoryRepository implements plan.HistoryRepository on GORM.
type GormHistoryRepository struct {
	db *gorm.DB
}

// NewGormHistoryRepository creates a new GORM-backed history repository.
func NewGormHistoryRepository(db *gorm.DB) *GormHistoryRepository {
	return &GormHistoryRepository{db: db}
}

// Migrate creates the audit tables.
func (r *GormHistoryRepository) Migrate() error {
	return r.db.AutoMigrate(
		&models.PlanRecord{},
		&models.ExecutionRecord{},
		&models.RollbackRecord{},
	)
}

// RecordPlan stores a plan after it passes validation.
func (r *GormHistoryRepository) RecordPlan(ctx context.Context, p *plan.Plan) error {
	record, err := models.PlanRecordFromDomain(p)
	if err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		return fmt.Errorf("failed to record plan %s: %w", p.ID, err)
	}
	return nil
}

// UpdatePlanStatus tracks a lifecycle transition on the stored plan.
func (r *GormHistoryRepository) UpdatePlanStatus(ctx context.Context, id uuid.UUID, status plan.Status) error {
	result := r.db.WithContext(ctx).
		Model(&models.PlanRecord{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":     string(status),
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update plan %s status: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// RecordExecution stores a finished run, dry runs included.
func (r *GormHistoryRepository) RecordExecution(ctx context.Context, res *work.ExecutionResult) error {
	record, err := models.ExecutionRecordFromDomain(res)
	if err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		return fmt.Errorf("failed to record execution for plan %s: %w", res.PlanID, err)
	}
	return nil
}

// RecordRollback stores a rollback outcome.
func (r *GormHistoryRepository) RecordRollback(ctx context.Context, out *plan.RollbackOutcome) error {
	record := models.RollbackRecordFromDomain(out)
	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		return fmt.Errorf("failed to record rollback for plan %s: %w", out.PlanID, err)
	}
	return nil
}

// RecentExecutions returns the latest runs for an agent type, newest first.
func (r *GormHistoryRepository) RecentExecutions(ctx context.Context, agentType string, limit int) ([]work.ExecutionResult, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	var records []models.ExecutionRecord
	err := r.db.WithContext(ctx).
		Where("agent = ?", agentType).
		Order("finished_at DESC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list executions for agent %s: %w", agentType, err)
	}
	results := make([]work.ExecutionResult, 0, len(records))
	for i := range records {
		res, err := records[i].ToDomain()
		if err != nil {
			return nil, err
		}
		results = append(results, *res)
	}
	return results, nil
}

// RollbacksForPlan returns every rollback outcome recorded for a plan,
// newest first. Retried rollbacks leave one record each.
func (r *GormHistoryRepository) RollbacksForPlan(ctx context.Context, planID uuid.UUID) ([]plan.RollbackOutcome, error) {
	var records []models.RollbackRecord
	err := r.db.WithContext(ctx).
		Where("plan_id = ?", planID).
		Order("finished_at DESC").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list rollbacks for plan %s: %w", planID, err)
	}
	outcomes := make([]plan.RollbackOutcome, 0, len(records))
	for i := range records {
		outcomes = append(outcomes, *records[i].ToDomain())
	}
	return outcomes, nil
}

// LastExecutionForPlan loads the newest recorded run for a plan, dry runs
// included.
func (r *GormHistoryRepository) LastExecutionForPlan(ctx context.Context, planID uuid.UUID) (*work.ExecutionResult, error) {
	var record models.ExecutionRecord
	err := r.db.WithContext(ctx).
		Where("plan_id = ?", planID).
		Order("finished_at DESC").
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find execution for plan %s: %w", planID, err)
	}
	return record.ToDomain()
}

// FindPlan loads one audited plan by ID.
func (r *GormHistoryRepository) FindPlan(ctx context.Context, id uuid.UUID) (*plan.Plan, error) {
	var record models.PlanRecord
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find plan %s: %w", id, err)
	}
	return record.ToDomain()
}

var _ plan.HistoryRepository = (*GormHistoryRepository)(nil)
