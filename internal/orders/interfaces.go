package orders

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/millflow-backend/pkg/db/models"
	"github.com/angelmondragon/millflow-backend/pkg/pagination"
)

// Repository defines persistence operations for order headers and lines.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateOrder(ctx context.Context, order *models.Order) error
	FindOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	ListOrders(ctx context.Context, params pagination.Params) (*OrderList, error)
	FindLine(ctx context.Context, lineID uuid.UUID) (*models.OrderLine, error)
	FindLineForUpdate(ctx context.Context, lineID uuid.UUID) (*models.OrderLine, error)
	UpdateLine(ctx context.Context, lineID uuid.UUID, updates map[string]any) error
}
