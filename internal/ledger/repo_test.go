package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/millflow-backend/pkg/db/models"
	"github.com/angelmondragon/millflow-backend/pkg/enums"
	"github.com/angelmondragon/millflow-backend/pkg/pagination"
)

func setupLedgerDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:ledger_" + uuid.NewString() + "?mode=memory&cache=shared&_busy_timeout=5000"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, conn.AutoMigrate(&models.Material{}, &models.StockMovement{}))
	return conn
}

func seedMaterial(t *testing.T, conn *gorm.DB, sku string, kind enums.MaterialKind, stock, minimum int64) *models.Material {
	t.Helper()
	material := &models.Material{
		SKU:           sku,
		Name:          sku,
		Kind:          kind,
		StockQuantity: decimal.NewFromInt(stock),
		MinimumStock:  decimal.NewFromInt(minimum),
	}
	require.NoError(t, conn.Create(material).Error)
	return material
}

func TestRepositoryGuardedDecrement(t *testing.T) {
	conn := setupLedgerDB(t)
	repo := NewRepository(conn)
	fg := seedMaterial(t, conn, "FG-1", enums.MaterialKindFinished, 50, 0)

	rows, err := repo.DecrementIfAvailable(context.Background(), fg.ID, decimal.NewFromInt(40))
	require.NoError(t, err)
	assert.Equal(t, int64(1), rows)

	rows, err = repo.DecrementIfAvailable(context.Background(), fg.ID, decimal.NewFromInt(40))
	require.NoError(t, err)
	assert.Equal(t, int64(0), rows)

	reloaded, err := repo.FindByID(context.Background(), fg.ID)
	require.NoError(t, err)
	assert.True(t, reloaded.StockQuantity.Equal(decimal.NewFromInt(10)), "stock %s", reloaded.StockQuantity)
}

func TestServiceConcurrentDecrementsNeverOversell(t *testing.T) {
	conn := setupLedgerDB(t)
	svc, err := NewService(NewRepository(conn))
	require.NoError(t, err)
	fg := seedMaterial(t, conn, "FG-RACE", enums.MaterialKindFinished, 50, 0)

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = conn.Transaction(func(tx *gorm.DB) error {
				_, err := svc.WithTx(tx).Decrement(context.Background(), fg.ID, decimal.NewFromInt(40), allocationRef())
				return err
			})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range results {
		if err == nil {
			succeeded++
			continue
		}
		assert.True(t, errors.Is(err, ErrInsufficientStock), "unexpected error %v", err)
	}
	assert.Equal(t, 1, succeeded)

	reloaded, err := svc.Get(context.Background(), fg.ID)
	require.NoError(t, err)
	assert.True(t, reloaded.StockQuantity.Equal(decimal.NewFromInt(10)))
}

func TestServiceRollbackDropsJournal(t *testing.T) {
	conn := setupLedgerDB(t)
	svc, err := NewService(NewRepository(conn))
	require.NoError(t, err)
	fg := seedMaterial(t, conn, "FG-RB", enums.MaterialKindFinished, 20, 0)
	boom := errors.New("task insert failed")

	err = conn.Transaction(func(tx *gorm.DB) error {
		if _, err := svc.WithTx(tx).Decrement(context.Background(), fg.ID, decimal.NewFromInt(20), allocationRef()); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	reloaded, err := svc.Get(context.Background(), fg.ID)
	require.NoError(t, err)
	assert.True(t, reloaded.StockQuantity.Equal(decimal.NewFromInt(20)))

	var count int64
	require.NoError(t, conn.Model(&models.StockMovement{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestListBelowMinimum(t *testing.T) {
	conn := setupLedgerDB(t)
	repo := NewRepository(conn)
	low := seedMaterial(t, conn, "BASE-LOW", enums.MaterialKindBase, 5, 10)
	seedMaterial(t, conn, "BASE-OK", enums.MaterialKindBase, 10, 10)

	materials, err := repo.ListBelowMinimum(context.Background())
	require.NoError(t, err)
	require.Len(t, materials, 1)
	assert.Equal(t, low.ID, materials[0].ID)
}

func TestListMovementsPaginates(t *testing.T) {
	conn := setupLedgerDB(t)
	svc, err := NewService(NewRepository(conn))
	require.NoError(t, err)
	fg := seedMaterial(t, conn, "FG-PAGE", enums.MaterialKindFinished, 100, 0)

	for i := 0; i < 3; i++ {
		_, err := svc.Decrement(context.Background(), fg.ID, decimal.NewFromInt(5), allocationRef())
		require.NoError(t, err)
	}

	first, err := svc.ListMovements(context.Background(), fg.ID, pagination.Params{Limit: 2})
	require.NoError(t, err)
	require.Len(t, first.Movements, 2)
	require.NotEmpty(t, first.NextCursor)

	second, err := svc.ListMovements(context.Background(), fg.ID, pagination.Params{Limit: 2, Cursor: first.NextCursor})
	require.NoError(t, err)
	require.Len(t, second.Movements, 1)
	assert.Empty(t, second.NextCursor)
	assert.True(t, second.Movements[0].QuantityBefore.Equal(decimal.NewFromInt(100)))
}
