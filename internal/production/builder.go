package production

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/millflow-backend/internal/allocation"
	"github.com/angelmondragon/millflow-backend/pkg/config"
	"github.com/angelmondragon/millflow-backend/pkg/db/models"
	"github.com/angelmondragon/millflow-backend/pkg/enums"
)

// BuildInput carries the references a plan does not hold.
type BuildInput struct {
	OrderLineID    uuid.UUID
	FinishedGoodID uuid.UUID
	BaseMaterialID *uuid.UUID
	Now            time.Time
}

// Builder turns an allocation plan into the weaving/coating task chain.
type Builder struct {
	weavingLead             time.Duration
	coatingLead             time.Duration
	coatingAfterWeavingLead time.Duration
}

func NewBuilder(cfg config.SchedulingConfig) *Builder {
	return &Builder{
		weavingLead:             cfg.WeavingLeadTime,
		coatingLead:             cfg.CoatingLeadTime,
		coatingAfterWeavingLead: cfg.CoatingAfterWeavingLeadTime,
	}
}

// Build returns zero, one or two unnumbered tasks with IDs assigned, weaving first.
func (b *Builder) Build(plan allocation.Plan, in BuildInput) []models.ProductionTask {
	now := in.Now.UTC()
	if in.Now.IsZero() {
		now = time.Now().UTC()
	}

	tasks := make([]models.ProductionTask, 0, 2)
	var weaving *models.ProductionTask

	if plan.NeedsWeaving {
		materialID := in.FinishedGoodID
		if in.BaseMaterialID != nil {
			materialID = *in.BaseMaterialID
		}
		tasks = append(tasks, models.ProductionTask{
			ID:               uuid.New(),
			OrderLineID:      in.OrderLineID,
			Type:             enums.ProductionTaskTypeWeaving,
			MaterialID:       materialID,
			QuantityRequired: plan.BaseShortage,
			QuantityProduced: decimal.Zero,
			Status:           enums.ProductionTaskStatusPending,
			Sequence:         1,
			TargetDate:       now.Add(b.weavingLead),
		})
		weaving = &tasks[0]
	}

	if plan.NeedsCoating {
		coating := models.ProductionTask{
			ID:               uuid.New(),
			OrderLineID:      in.OrderLineID,
			Type:             enums.ProductionTaskTypeCoating,
			MaterialID:       in.FinishedGoodID,
			QuantityRequired: plan.ProductionRequired,
			QuantityProduced: decimal.Zero,
			Status:           enums.ProductionTaskStatusPending,
			Sequence:         1,
			TargetDate:       now.Add(b.coatingLead),
		}
		if weaving != nil {
			linked := weaving.ID
			coating.LinkedTaskID = &linked
			coating.Sequence = 2
			coating.Status = enums.ProductionTaskStatusWaitingMaterials
			coating.TargetDate = now.Add(b.coatingAfterWeavingLead)
		}
		tasks = append(tasks, coating)
	}

	return tasks
}
