package materials

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/millflow-backend/internal/ledger"
	"github.com/angelmondragon/millflow-backend/pkg/db/models"
	"github.com/angelmondragon/millflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/millflow-backend/pkg/errors"
	"github.com/angelmondragon/millflow-backend/pkg/pagination"
)

type stubLedger struct {
	created       ledger.CreateMaterialInput
	material      *models.Material
	movementsArgs pagination.Params
	belowMinimum  []models.Material
}

func (s *stubLedger) WithTx(*gorm.DB) ledger.Service { return s }

func (s *stubLedger) CreateMaterial(_ context.Context, input ledger.CreateMaterialInput) (*models.Material, error) {
	s.created = input
	return &models.Material{ID: uuid.New(), SKU: input.SKU, Kind: input.Kind, StockQuantity: input.StockQuantity, MinimumStock: input.MinimumStock}, nil
}

func (s *stubLedger) Get(_ context.Context, id uuid.UUID) (*models.Material, error) {
	if s.material == nil || s.material.ID != id {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "material not found")
	}
	return s.material, nil
}

func (s *stubLedger) GetForUpdate(ctx context.Context, id uuid.UUID) (*models.Material, error) {
	return s.Get(ctx, id)
}

func (s *stubLedger) Decrement(context.Context, uuid.UUID, decimal.Decimal, ledger.Reference) (*models.StockMovement, error) {
	panic("not used")
}

func (s *stubLedger) Increment(context.Context, uuid.UUID, decimal.Decimal, ledger.Reference) (*models.StockMovement, error) {
	panic("not used")
}

func (s *stubLedger) ListBelowMinimum(context.Context) ([]models.Material, error) {
	return s.belowMinimum, nil
}

func (s *stubLedger) ListMovements(_ context.Context, _ uuid.UUID, params pagination.Params) (*ledger.MovementPage, error) {
	s.movementsArgs = params
	return &ledger.MovementPage{
		Movements:  []models.StockMovement{{ID: uuid.New(), MovementType: enums.StockMovementAllocation, Quantity: decimal.NewFromInt(40)}},
		NextCursor: "next",
	}, nil
}

func withParam(req *http.Request, key, value string) *http.Request {
	rc := chi.NewRouteContext()
	rc.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rc))
}

func TestCreateMaterial(t *testing.T) {
	svc := &stubLedger{}
	base := uuid.New()
	body := `{"sku":"FG-NAVY-01","name":"Coated navy canvas","kind":"finished","stock_quantity":"40","minimum_stock":"10","linked_base_material_id":"` + base.String() + `"}`
	rec := httptest.NewRecorder()
	Create(svc, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/materials", strings.NewReader(body)))

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", rec.Code, rec.Body.String())
	}
	if svc.created.Kind != enums.MaterialKindFinished || svc.created.LinkedBaseMaterialID == nil || *svc.created.LinkedBaseMaterialID != base {
		t.Fatalf("unexpected input %+v", svc.created)
	}
	if !svc.created.StockQuantity.Equal(decimal.NewFromInt(40)) {
		t.Fatalf("unexpected stock %s", svc.created.StockQuantity)
	}
}

func TestCreateMaterialRejectsUnknownKind(t *testing.T) {
	body := `{"sku":"X","name":"X","kind":"dyed"}`
	rec := httptest.NewRecorder()
	Create(&stubLedger{}, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/materials", strings.NewReader(body)))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
}

func TestGetMaterialFlagsBelowMinimum(t *testing.T) {
	material := &models.Material{ID: uuid.New(), SKU: "GRG-01", Kind: enums.MaterialKindBase, StockQuantity: decimal.NewFromInt(5), MinimumStock: decimal.NewFromInt(20)}
	rec := httptest.NewRecorder()
	Get(&stubLedger{material: material}, nil).ServeHTTP(rec, withParam(httptest.NewRequest(http.MethodGet, "/", nil), "materialID", material.ID.String()))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"below_minimum":true`) {
		t.Fatalf("expected below_minimum flag: %s", rec.Body.String())
	}
}

func TestGetMaterialNotFound(t *testing.T) {
	rec := httptest.NewRecorder()
	Get(&stubLedger{}, nil).ServeHTTP(rec, withParam(httptest.NewRequest(http.MethodGet, "/", nil), "materialID", uuid.NewString()))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", rec.Code)
	}
}

func TestMovementsPaginates(t *testing.T) {
	svc := &stubLedger{}
	req := withParam(httptest.NewRequest(http.MethodGet, "/?limit=10", nil), "materialID", uuid.NewString())
	rec := httptest.NewRecorder()
	Movements(svc, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	if svc.movementsArgs.Limit != 10 {
		t.Fatalf("expected limit 10, got %d", svc.movementsArgs.Limit)
	}
	if !strings.Contains(rec.Body.String(), `"next_cursor":"next"`) {
		t.Fatalf("expected cursor: %s", rec.Body.String())
	}
}

func TestBelowMinimum(t *testing.T) {
	svc := &stubLedger{belowMinimum: []models.Material{{ID: uuid.New(), SKU: "GRG-01", StockQuantity: decimal.NewFromInt(1), MinimumStock: decimal.NewFromInt(5)}}}
	rec := httptest.NewRecorder()
	BelowMinimum(svc, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "GRG-01") {
		t.Fatalf("unexpected response %d %s", rec.Code, rec.Body.String())
	}
}
