package orders

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/millflow-backend/api/middleware"
	"github.com/angelmondragon/millflow-backend/internal/allocation"
	internalorders "github.com/angelmondragon/millflow-backend/internal/orders"
	"github.com/angelmondragon/millflow-backend/pkg/db/models"
	"github.com/angelmondragon/millflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/millflow-backend/pkg/errors"
	"github.com/angelmondragon/millflow-backend/pkg/pagination"
)

type stubOrdersService struct {
	createOrder func(ctx context.Context, input internalorders.CreateOrderInput) (*models.Order, error)
	listOrders  func(ctx context.Context, params pagination.Params) (*internalorders.OrderList, error)
	getLine     func(ctx context.Context, lineID uuid.UUID) (*models.OrderLine, error)
	confirm     func(ctx context.Context, input internalorders.ConfirmInput) (*internalorders.ConfirmationResult, error)
	cancel      func(ctx context.Context, input internalorders.CancelInput) (*models.OrderLine, error)
	transition  func(ctx context.Context, input internalorders.TransitionInput) (*models.OrderLine, error)
	preview     func(ctx context.Context, input internalorders.PreviewInput) (*internalorders.PreviewResult, error)
}

func (s *stubOrdersService) CreateOrder(ctx context.Context, input internalorders.CreateOrderInput) (*models.Order, error) {
	return s.createOrder(ctx, input)
}

func (s *stubOrdersService) GetOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
}

func (s *stubOrdersService) ListOrders(ctx context.Context, params pagination.Params) (*internalorders.OrderList, error) {
	return s.listOrders(ctx, params)
}

func (s *stubOrdersService) GetLine(ctx context.Context, lineID uuid.UUID) (*models.OrderLine, error) {
	return s.getLine(ctx, lineID)
}

func (s *stubOrdersService) ListTasks(ctx context.Context, lineID uuid.UUID) ([]models.ProductionTask, error) {
	return nil, nil
}

func (s *stubOrdersService) Confirm(ctx context.Context, input internalorders.ConfirmInput) (*internalorders.ConfirmationResult, error) {
	return s.confirm(ctx, input)
}

func (s *stubOrdersService) Cancel(ctx context.Context, input internalorders.CancelInput) (*models.OrderLine, error) {
	return s.cancel(ctx, input)
}

func (s *stubOrdersService) Transition(ctx context.Context, input internalorders.TransitionInput) (*models.OrderLine, error) {
	return s.transition(ctx, input)
}

func (s *stubOrdersService) Preview(ctx context.Context, input internalorders.PreviewInput) (*internalorders.PreviewResult, error) {
	return s.preview(ctx, input)
}

func withRoute(req *http.Request, key, value string) *http.Request {
	rc := chi.NewRouteContext()
	rc.URLParams.Add(key, value)
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, rc)
	ctx = middleware.WithActor(ctx, "planner-1", "planner")
	return req.WithContext(ctx)
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, dest any) {
	t.Helper()
	var envelope struct {
		Data json.RawMessage `json:"data"`
		Meta *struct {
			NextCursor string `json:"next_cursor"`
		} `json:"meta"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if err := json.Unmarshal(envelope.Data, dest); err != nil {
		t.Fatalf("decode data: %v", err)
	}
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var payload struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	return payload.Error.Code
}

func TestCreatePassesLinesAndActor(t *testing.T) {
	finishedGood := uuid.New()
	var captured internalorders.CreateOrderInput
	svc := &stubOrdersService{
		createOrder: func(_ context.Context, input internalorders.CreateOrderInput) (*models.Order, error) {
			captured = input
			return &models.Order{ID: uuid.New(), OrderNumber: "SO-20261001-ABCDEF12", CustomerName: input.CustomerName}, nil
		},
	}

	body := `{"customer_name":"Atelier Nord","lines":[{"finished_good_id":"` + finishedGood.String() + `","color":"navy","quantity":"100","due_date":"2026-11-15"}]}`
	req := withRoute(httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader(body)), "", "")
	rec := httptest.NewRecorder()
	Create(svc, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", rec.Code, rec.Body.String())
	}
	if captured.Actor.Subject != "planner-1" {
		t.Fatalf("expected actor from context, got %+v", captured.Actor)
	}
	if len(captured.Lines) != 1 || captured.Lines[0].FinishedGoodID != finishedGood {
		t.Fatalf("unexpected lines %+v", captured.Lines)
	}
	if !captured.Lines[0].Quantity.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("unexpected quantity %s", captured.Lines[0].Quantity)
	}
	want := time.Date(2026, 11, 15, 0, 0, 0, 0, time.UTC)
	if captured.Lines[0].DueDate == nil || !captured.Lines[0].DueDate.Equal(want) {
		t.Fatalf("unexpected due date %v", captured.Lines[0].DueDate)
	}
}

func TestCreateRejectsBadDueDate(t *testing.T) {
	svc := &stubOrdersService{}
	body := `{"customer_name":"Atelier Nord","lines":[{"finished_good_id":"` + uuid.NewString() + `","quantity":5,"due_date":"15/11/2026"}]}`
	req := withRoute(httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader(body)), "", "")
	rec := httptest.NewRecorder()
	Create(svc, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
}

func TestCreateRequiresLines(t *testing.T) {
	req := withRoute(httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader(`{"customer_name":"Atelier Nord","lines":[]}`)), "", "")
	rec := httptest.NewRecorder()
	Create(&stubOrdersService{}, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest || errorCode(t, rec) != string(pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestListReturnsCursor(t *testing.T) {
	var captured pagination.Params
	svc := &stubOrdersService{
		listOrders: func(_ context.Context, params pagination.Params) (*internalorders.OrderList, error) {
			captured = params
			return &internalorders.OrderList{Orders: []models.Order{{ID: uuid.New(), OrderNumber: "SO-1"}}, NextCursor: "abc"}, nil
		},
	}
	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders?limit=5", nil)
	rec := httptest.NewRecorder()
	List(svc, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	if captured.Limit != 5 {
		t.Fatalf("expected limit 5, got %d", captured.Limit)
	}
	if !strings.Contains(rec.Body.String(), `"next_cursor":"abc"`) {
		t.Fatalf("expected cursor in body: %s", rec.Body.String())
	}
}

func TestListRejectsBadCursor(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders?cursor=garbage", nil)
	rec := httptest.NewRecorder()
	List(&stubOrdersService{}, nil).ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
}

func TestGetOrderNotFound(t *testing.T) {
	req := withRoute(httptest.NewRequest(http.MethodGet, "/", nil), "orderID", uuid.NewString())
	rec := httptest.NewRecorder()
	Get(&stubOrdersService{}, nil).ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", rec.Code)
	}
}

func TestGetLineRejectsMalformedID(t *testing.T) {
	req := withRoute(httptest.NewRequest(http.MethodGet, "/", nil), "lineID", "nope")
	rec := httptest.NewRecorder()
	GetLine(&stubOrdersService{}, nil).ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
}

func TestConfirmStatusReflectsReplay(t *testing.T) {
	lineID := uuid.New()
	for _, replayed := range []bool{false, true} {
		var captured internalorders.ConfirmInput
		svc := &stubOrdersService{
			confirm: func(_ context.Context, input internalorders.ConfirmInput) (*internalorders.ConfirmationResult, error) {
				captured = input
				return &internalorders.ConfirmationResult{
					Line: &models.OrderLine{ID: lineID, Status: enums.OrderLineStatusInProduction},
					Plan: allocation.Plan{
						QuantityOrdered:    decimal.NewFromInt(100),
						StockAllocated:     decimal.NewFromInt(40),
						ProductionRequired: decimal.NewFromInt(60),
						NeedsCoating:       true,
						NeedsWeaving:       true,
					},
					Tasks: []models.ProductionTask{
						{ID: uuid.New(), TaskNumber: "WV-000001", Type: enums.ProductionTaskTypeWeaving, Sequence: 1},
						{ID: uuid.New(), TaskNumber: "CT-000001", Type: enums.ProductionTaskTypeCoating, Sequence: 2},
					},
					Replayed: replayed,
				}, nil
			},
		}

		req := withRoute(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"authorization_code":" 4321 "}`)), "lineID", lineID.String())
		rec := httptest.NewRecorder()
		Confirm(svc, nil).ServeHTTP(rec, req)

		want := http.StatusCreated
		if replayed {
			want = http.StatusOK
		}
		if rec.Code != want {
			t.Fatalf("replayed=%v: expected %d got %d", replayed, want, rec.Code)
		}
		if captured.OrderLineID != lineID || captured.AuthorizationCode != "4321" || captured.Actor.Role != "planner" {
			t.Fatalf("unexpected input %+v", captured)
		}

		var body struct {
			Plan struct {
				StockAllocated string `json:"stock_allocated"`
			} `json:"plan"`
			Tasks    []struct{ TaskNumber string `json:"task_number"` } `json:"tasks"`
			Replayed bool                                               `json:"replayed"`
		}
		decodeData(t, rec, &body)
		if body.Plan.StockAllocated != "40" || len(body.Tasks) != 2 || body.Replayed != replayed {
			t.Fatalf("unexpected body %+v", body)
		}
	}
}

func TestConfirmAcceptsEmptyBody(t *testing.T) {
	svc := &stubOrdersService{
		confirm: func(_ context.Context, input internalorders.ConfirmInput) (*internalorders.ConfirmationResult, error) {
			return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order line in status confirmed cannot be confirmed")
		},
	}
	req := withRoute(httptest.NewRequest(http.MethodPost, "/", nil), "lineID", uuid.NewString())
	rec := httptest.NewRecorder()
	Confirm(svc, nil).ServeHTTP(rec, req)
	if rec.Code != http.StatusUnprocessableEntity || errorCode(t, rec) != string(pkgerrors.CodeStateConflict) {
		t.Fatalf("expected state conflict, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestCancelPassesReason(t *testing.T) {
	var captured internalorders.CancelInput
	svc := &stubOrdersService{
		cancel: func(_ context.Context, input internalorders.CancelInput) (*models.OrderLine, error) {
			captured = input
			return &models.OrderLine{ID: input.OrderLineID, Status: enums.OrderLineStatusCancelled}, nil
		},
	}
	req := withRoute(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"reason":"customer withdrew"}`)), "lineID", uuid.NewString())
	rec := httptest.NewRecorder()
	Cancel(svc, nil).ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	if captured.Reason != "customer withdrew" {
		t.Fatalf("unexpected reason %q", captured.Reason)
	}
}

func TestTransitionParsesStatus(t *testing.T) {
	var captured internalorders.TransitionInput
	svc := &stubOrdersService{
		transition: func(_ context.Context, input internalorders.TransitionInput) (*models.OrderLine, error) {
			captured = input
			return &models.OrderLine{ID: input.OrderLineID, Status: input.To}, nil
		},
	}
	req := withRoute(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"to":"ready_for_dispatch"}`)), "lineID", uuid.NewString())
	rec := httptest.NewRecorder()
	Transition(svc, nil).ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || captured.To != enums.OrderLineStatusReadyForDispatch {
		t.Fatalf("unexpected result %d %+v", rec.Code, captured)
	}

	req = withRoute(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"to":"shipped-ish"}`)), "lineID", uuid.NewString())
	rec = httptest.NewRecorder()
	Transition(svc, nil).ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown status, got %d", rec.Code)
	}
}

func TestPreviewAdHoc(t *testing.T) {
	finishedGood := uuid.New()
	var captured internalorders.PreviewInput
	svc := &stubOrdersService{
		preview: func(_ context.Context, input internalorders.PreviewInput) (*internalorders.PreviewResult, error) {
			captured = input
			return &internalorders.PreviewResult{Plan: allocation.Plan{QuantityOrdered: input.Quantity}}, nil
		},
	}
	body := `{"finished_good_id":"` + finishedGood.String() + `","quantity":"12.5"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/allocation/preview", strings.NewReader(body))
	rec := httptest.NewRecorder()
	Preview(svc, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rec.Code, rec.Body.String())
	}
	if captured.FinishedGoodID == nil || *captured.FinishedGoodID != finishedGood || captured.OrderLineID != nil {
		t.Fatalf("unexpected input %+v", captured)
	}
	if !captured.Quantity.Equal(decimal.RequireFromString("12.5")) {
		t.Fatalf("unexpected quantity %s", captured.Quantity)
	}
}

func TestPreviewLineUsesLineID(t *testing.T) {
	lineID := uuid.New()
	svc := &stubOrdersService{
		preview: func(_ context.Context, input internalorders.PreviewInput) (*internalorders.PreviewResult, error) {
			if input.OrderLineID == nil || *input.OrderLineID != lineID {
				t.Fatalf("expected line id, got %+v", input)
			}
			return &internalorders.PreviewResult{}, nil
		},
	}
	req := withRoute(httptest.NewRequest(http.MethodGet, "/", nil), "lineID", lineID.String())
	rec := httptest.NewRecorder()
	PreviewLine(svc, nil).ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
}
