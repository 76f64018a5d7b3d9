package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/millflow-backend/pkg/db/models"
	"github.com/angelmondragon/millflow-backend/pkg/enums"
	"github.com/angelmondragon/millflow-backend/pkg/logger"
	"github.com/angelmondragon/millflow-backend/pkg/outbox"
	"github.com/angelmondragon/millflow-backend/pkg/outbox/payloads"
)

type belowMinimumLister interface {
	ListBelowMinimum(ctx context.Context) ([]models.Material, error)
}

type dailyEmitter interface {
	EmitOncePerDay(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent, now time.Time) (bool, error)
}

type MinimumStockJobParams struct {
	Logger    *logger.Logger
	DB        txRunner
	Materials belowMinimumLister
	Outbox    dailyEmitter
	Clock     func() time.Time
}

// minimumStockJob raises material.below_minimum at most once per material per UTC day.
type minimumStockJob struct {
	logg      *logger.Logger
	db        txRunner
	materials belowMinimumLister
	outbox    dailyEmitter
	now       func() time.Time
}

func NewMinimumStockJob(params MinimumStockJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Materials == nil {
		return nil, fmt.Errorf("material lister required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	clock := params.Clock
	if clock == nil {
		clock = time.Now
	}
	return &minimumStockJob{
		logg:      params.Logger,
		db:        params.DB,
		materials: params.Materials,
		outbox:    params.Outbox,
		now:       clock,
	}, nil
}

func (j *minimumStockJob) Name() string { return "material-minimum-stock" }

func (j *minimumStockJob) Run(ctx context.Context) error {
	materials, err := j.materials.ListBelowMinimum(ctx)
	if err != nil {
		return fmt.Errorf("list materials below minimum: %w", err)
	}

	now := j.now().UTC()
	var (
		emitted int
		errs    error
	)
	for _, material := range materials {
		sent, err := j.alert(ctx, material, now)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("material %s: %w", material.SKU, err))
			continue
		}
		if sent {
			emitted++
		}
	}

	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"below_minimum": len(materials),
		"alerts_queued": emitted,
	}), "minimum stock sweep complete")
	return errs
}

func (j *minimumStockJob) alert(ctx context.Context, material models.Material, now time.Time) (bool, error) {
	var sent bool
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		sent, err = j.outbox.EmitOncePerDay(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventMaterialBelowMinimum,
			AggregateType: enums.AggregateMaterial,
			AggregateID:   material.ID,
			OccurredAt:    now,
			Data: payloads.MaterialBelowMinimumEvent{
				MaterialID:    material.ID,
				SKU:           material.SKU,
				Name:          material.Name,
				Kind:          material.Kind.String(),
				StockQuantity: material.StockQuantity,
				MinimumStock:  material.MinimumStock,
				Shortfall:     material.MinimumStock.Sub(material.StockQuantity),
				DetectedAt:    now,
			},
		}, now)
		return err
	})
	if err != nil {
		return false, err
	}
	if sent {
		j.logg.Warn(j.logg.WithMaterialID(ctx, material.ID.String()), "material below minimum stock")
	}
	return sent, nil
}
