package production

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/millflow-backend/pkg/db/models"
	"github.com/angelmondragon/millflow-backend/pkg/enums"
)

// Repository persists production tasks and their numbering counters.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateTasks(ctx context.Context, tasks []models.ProductionTask) error
	NextTaskNumber(ctx context.Context, taskType enums.ProductionTaskType) (string, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.ProductionTask, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.ProductionTask, error)
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.ProductionTask, error)
	ListByOrderLine(ctx context.Context, orderLineID uuid.UUID) ([]models.ProductionTask, error)
	ListWaitingOn(ctx context.Context, taskID uuid.UUID) ([]models.ProductionTask, error)
	Update(ctx context.Context, task *models.ProductionTask) error
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// CreateTasks inserts tasks in one statement.
func (r *repository) CreateTasks(ctx context.Context, tasks []models.ProductionTask) error {
	if len(tasks) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&tasks).Error
}

// NextTaskNumber bumps the per-type counter and formats it as PREFIX-000001.
// The UPDATE holds the counter row lock until the surrounding transaction ends.
func (r *repository) NextTaskNumber(ctx context.Context, taskType enums.ProductionTaskType) (string, error) {
	db := r.db.WithContext(ctx)
	seed := models.TaskNumberSequence{Type: taskType}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&seed).Error; err != nil {
		return "", err
	}
	res := db.Exec(`UPDATE task_number_sequences SET last_value = last_value + 1, updated_at = ? WHERE type = ?`, time.Now().UTC(), taskType)
	if res.Error != nil {
		return "", res.Error
	}
	if res.RowsAffected == 0 {
		return "", fmt.Errorf("task number sequence missing for %s", taskType)
	}
	var seq models.TaskNumberSequence
	if err := db.First(&seq, "type = ?", taskType).Error; err != nil {
		return "", err
	}
	return FormatTaskNumber(taskType, seq.LastValue), nil
}

// FormatTaskNumber renders a type-tagged, zero-padded task number.
func FormatTaskNumber(taskType enums.ProductionTaskType, value int64) string {
	return fmt.Sprintf("%s-%06d", taskType.NumberPrefix(), value)
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.ProductionTask, error) {
	var task models.ProductionTask
	if err := r.db.WithContext(ctx).First(&task, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &task, nil
}

func (r *repository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.ProductionTask, error) {
	var task models.ProductionTask
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&task, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &task, nil
}

func (r *repository) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.ProductionTask, error) {
	if len(ids) == 0 {
		return []models.ProductionTask{}, nil
	}
	var tasks []models.ProductionTask
	if err := r.db.WithContext(ctx).
		Where("id IN ?", ids).
		Order("sequence ASC").
		Find(&tasks).Error; err != nil {
		return nil, err
	}
	return tasks, nil
}

func (r *repository) ListByOrderLine(ctx context.Context, orderLineID uuid.UUID) ([]models.ProductionTask, error) {
	var tasks []models.ProductionTask
	if err := r.db.WithContext(ctx).
		Where("order_line_id = ?", orderLineID).
		Order("sequence ASC").
		Order("created_at ASC").
		Find(&tasks).Error; err != nil {
		return nil, err
	}
	return tasks, nil
}

// ListWaitingOn returns dependents of taskID still blocked on materials.
func (r *repository) ListWaitingOn(ctx context.Context, taskID uuid.UUID) ([]models.ProductionTask, error) {
	var tasks []models.ProductionTask
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("linked_task_id = ? AND status = ?", taskID, enums.ProductionTaskStatusWaitingMaterials).
		Find(&tasks).Error; err != nil {
		return nil, err
	}
	return tasks, nil
}

func (r *repository) Update(ctx context.Context, task *models.ProductionTask) error {
	return r.db.WithContext(ctx).
		Model(&models.ProductionTask{}).
		Where("id = ?", task.ID).
		Updates(map[string]any{
			"status":            task.Status,
			"quantity_produced": task.QuantityProduced,
			"started_at":        task.StartedAt,
			"completed_at":      task.CompletedAt,
			"updated_at":        time.Now().UTC(),
		}).Error
}
