package returns

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-backend/api/middleware"
	internalreturns "github.com/angelmondragon/storefront-backend/internal/returns"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

type stubReturnsService struct {
	create func(ctx context.Context, input internalreturns.CreateInput) (*internalreturns.CreateResult, error)
	update func(ctx context.Context, input internalreturns.UpdateInput) (*internalreturns.UpdateResult, error)
	latest func(ctx context.Context, userID, orderID uuid.UUID) (*internalreturns.ReturnView, error)
	list   func(ctx context.Context, role enums.Role) ([]internalreturns.AdminReturnView, error)
}

func (s *stubReturnsService) CreateReturnRequest(ctx context.Context, input internalreturns.CreateInput) (*internalreturns.CreateResult, error) {
	return s.create(ctx, input)
}

func (s *stubReturnsService) UpdateReturnStatus(ctx context.Context, input internalreturns.UpdateInput) (*internalreturns.UpdateResult, error) {
	return s.update(ctx, input)
}

func (s *stubReturnsService) GetLatestForOrder(ctx context.Context, userID, orderID uuid.UUID) (*internalreturns.ReturnView, error) {
	return s.latest(ctx, userID, orderID)
}

func (s *stubReturnsService) ListAll(ctx context.Context, role enums.Role) ([]internalreturns.AdminReturnView, error) {
	return s.list(ctx, role)
}

func request(method, body string, params map[string]string, userID uuid.UUID, role enums.Role) *http.Request {
	req := httptest.NewRequest(method, "/", strings.NewReader(body))
	rc := chi.NewRouteContext()
	for k, v := range params {
		rc.URLParams.Add(k, v)
	}
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, rc)
	return req.WithContext(middleware.WithIdentity(ctx, userID, role))
}

func TestCreateReturn(t *testing.T) {
	userID, orderID, returnID := uuid.New(), uuid.New(), uuid.New()
	var got internalreturns.CreateInput
	svc := &stubReturnsService{create: func(_ context.Context, input internalreturns.CreateInput) (*internalreturns.CreateResult, error) {
		got = input
		return &internalreturns.CreateResult{
			ReturnID:     returnID,
			OrderID:      input.OrderID,
			RefundAmount: decimal.RequireFromString("118"),
			Priority:     enums.TicketPriorityHigh,
		}, nil
	}}

	req := request(http.MethodPost, `{"motivo":"llegó roto","motivo_tipo":"defectuoso"}`,
		map[string]string{"orderID": orderID.String()}, userID, enums.RoleCustomer)
	resp := httptest.NewRecorder()
	Create(svc, nil).ServeHTTP(resp, req)

	require.Equal(t, http.StatusCreated, resp.Code)
	assert.Equal(t, internalreturns.CreateInput{
		UserID: userID, OrderID: orderID, Reason: "llegó roto", ReasonType: "defectuoso",
	}, got)

	var envelope struct {
		Data map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &envelope))
	assert.Equal(t, returnID.String(), envelope.Data["id_devolucion"])
	assert.Equal(t, orderID.String(), envelope.Data["id_pedido"])
}

func TestCreateReturnSurfacesServiceErrors(t *testing.T) {
	svc := &stubReturnsService{create: func(context.Context, internalreturns.CreateInput) (*internalreturns.CreateResult, error) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "return window has closed")
	}}
	req := request(http.MethodPost, `{"motivo":"tarde"}`, map[string]string{"orderID": uuid.NewString()}, uuid.New(), enums.RoleCustomer)
	resp := httptest.NewRecorder()
	Create(svc, nil).ServeHTTP(resp, req)

	require.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Contains(t, resp.Body.String(), "return window has closed")
}

func TestLatestReturnsNotFoundWhenNone(t *testing.T) {
	svc := &stubReturnsService{latest: func(context.Context, uuid.UUID, uuid.UUID) (*internalreturns.ReturnView, error) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no returns registered for this order")
	}}
	req := request(http.MethodGet, "", map[string]string{"orderID": uuid.NewString()}, uuid.New(), enums.RoleCustomer)
	resp := httptest.NewRecorder()
	Latest(svc, nil).ServeHTTP(resp, req)

	require.Equal(t, http.StatusNotFound, resp.Code)
	assert.Contains(t, resp.Body.String(), "no returns registered for this order")
}

func TestUpdateReturnStatus(t *testing.T) {
	returnID := uuid.New()
	svc := &stubReturnsService{update: func(_ context.Context, input internalreturns.UpdateInput) (*internalreturns.UpdateResult, error) {
		assert.Equal(t, returnID, input.ReturnID)
		assert.Equal(t, enums.RoleAdmin, input.ActorRole)
		return &internalreturns.UpdateResult{ReturnID: returnID, Status: enums.ReturnStatusApproved, Changed: true}, nil
	}}
	req := request(http.MethodPatch, `{"estado":"Aprobada"}`, map[string]string{"returnID": returnID.String()}, uuid.New(), enums.RoleAdmin)
	resp := httptest.NewRecorder()
	UpdateStatus(svc, nil).ServeHTTP(resp, req)
	assert.Equal(t, http.StatusOK, resp.Code)

	req = request(http.MethodPatch, `{}`, map[string]string{"returnID": returnID.String()}, uuid.New(), enums.RoleAdmin)
	resp = httptest.NewRecorder()
	UpdateStatus(svc, nil).ServeHTTP(resp, req)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestAdminListForbidden(t *testing.T) {
	svc := &stubReturnsService{list: func(_ context.Context, role enums.Role) ([]internalreturns.AdminReturnView, error) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "staff only")
	}}
	resp := httptest.NewRecorder()
	AdminList(svc, nil).ServeHTTP(resp, request(http.MethodGet, "", nil, uuid.New(), enums.RoleCustomer))
	assert.Equal(t, http.StatusForbidden, resp.Code)
}
