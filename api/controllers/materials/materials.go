package materials

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/millflow-backend/api/controllers/views"
	"github.com/angelmondragon/millflow-backend/api/responses"
	"github.com/angelmondragon/millflow-backend/api/validators"
	"github.com/angelmondragon/millflow-backend/internal/ledger"
	"github.com/angelmondragon/millflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/millflow-backend/pkg/errors"
	"github.com/angelmondragon/millflow-backend/pkg/logger"
)

type createMaterialRequest struct {
	SKU                  string          `json:"sku" validate:"required,max=64,sku"`
	Name                 string          `json:"name" validate:"required,max=200"`
	Kind                 string          `json:"kind" validate:"required,oneof=base finished"`
	Unit                 string          `json:"unit" validate:"omitempty,max=16"`
	StockQuantity        decimal.Decimal `json:"stock_quantity" validate:"qty_nonnegative"`
	MinimumStock         decimal.Decimal `json:"minimum_stock" validate:"qty_nonnegative"`
	LinkedBaseMaterialID *string         `json:"linked_base_material_id" validate:"omitempty,uuid"`
}

// Create registers a catalog material with its opening stock.
func Create(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createMaterialRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		kind, err := enums.ParseMaterialKind(req.Kind)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid material kind"))
			return
		}
		input := ledger.CreateMaterialInput{
			SKU:           validators.NormalizeCode(req.SKU, 64),
			Name:          validators.SanitizeString(req.Name, 200),
			Kind:          kind,
			Unit:          validators.SanitizeString(req.Unit, 16),
			StockQuantity: req.StockQuantity,
			MinimumStock:  req.MinimumStock,
		}
		if req.LinkedBaseMaterialID != nil && strings.TrimSpace(*req.LinkedBaseMaterialID) != "" {
			id := uuid.MustParse(strings.TrimSpace(*req.LinkedBaseMaterialID))
			input.LinkedBaseMaterialID = &id
		}

		material, err := svc.CreateMaterial(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if logg != nil {
			logg.Info(logg.WithMaterialID(r.Context(), material.ID.String()), "material created")
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, views.FromMaterial(material))
	}
}

func Get(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		materialID, err := validators.ParseUUIDParam(r, "materialID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		material, err := svc.Get(r.Context(), materialID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, views.FromMaterial(material))
	}
}

// Movements pages a material's stock journal newest first.
func Movements(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		materialID, err := validators.ParseUUIDParam(r, "materialID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params, err := validators.ParsePage(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		page, err := svc.ListMovements(r.Context(), materialID, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WritePage(w, views.FromMovements(page.Movements), page.NextCursor)
	}
}

// BelowMinimum lists materials whose stock is under their reorder threshold.
func BelowMinimum(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		materials, err := svc.ListBelowMinimum(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, views.FromMaterials(materials))
	}
}
