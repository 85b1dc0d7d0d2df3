package promotions

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-backend/api/middleware"
	internalpromotions "github.com/angelmondragon/storefront-backend/internal/promotions"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

type stubPromotionsService struct {
	create   func(ctx context.Context, input internalpromotions.CreateInput) (*internalpromotions.PromotionWithProducts, error)
	discount func(ctx context.Context, input internalpromotions.BatchDiscountInput) (*internalpromotions.BatchDiscountResult, error)
	list     func(ctx context.Context, role enums.Role) ([]internalpromotions.PromotionView, error)
}

func (s *stubPromotionsService) CreatePromotion(ctx context.Context, input internalpromotions.CreateInput) (*internalpromotions.PromotionWithProducts, error) {
	return s.create(ctx, input)
}

func (s *stubPromotionsService) ApplyBatchDiscount(ctx context.Context, input internalpromotions.BatchDiscountInput) (*internalpromotions.BatchDiscountResult, error) {
	return s.discount(ctx, input)
}

func (s *stubPromotionsService) ListPromotions(ctx context.Context, role enums.Role) ([]internalpromotions.PromotionView, error) {
	return s.list(ctx, role)
}

func (s *stubPromotionsService) DeactivateExpired(context.Context, time.Time) (int, error) {
	return 0, nil
}

func adminRequest(method, body string) *http.Request {
	req := httptest.NewRequest(method, "/", strings.NewReader(body))
	return req.WithContext(middleware.WithIdentity(req.Context(), uuid.New(), enums.RoleAdmin))
}

func TestCreatePromotionParsesBody(t *testing.T) {
	productID := uuid.NewString()
	var got internalpromotions.CreateInput
	svc := &stubPromotionsService{create: func(_ context.Context, input internalpromotions.CreateInput) (*internalpromotions.PromotionWithProducts, error) {
		got = input
		return &internalpromotions.PromotionWithProducts{}, nil
	}}

	body := `{"codigo":"VERANO","tipo_descuento":"Porcentaje","valor_descuento":15,` +
		`"fecha_inicio":"2026-11-01","fecha_fin":"2026-11-30","usos_maximos":100,"productIds":["` + productID + `"]}`
	resp := httptest.NewRecorder()
	Create(svc, nil).ServeHTTP(resp, adminRequest(http.MethodPost, body))

	require.Equal(t, http.StatusCreated, resp.Code)
	assert.Equal(t, "VERANO", got.Code)
	assert.Equal(t, enums.DiscountPercentage, got.DiscountType)
	assert.Equal(t, "15", got.DiscountValue.String())
	assert.Equal(t, time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC), got.StartDate)
	assert.Equal(t, time.Date(2026, 11, 30, 0, 0, 0, 0, time.UTC), got.EndDate)
	require.NotNil(t, got.MaxUses)
	assert.Equal(t, 100, *got.MaxUses)
	assert.Nil(t, got.Active)
	assert.Equal(t, []string{productID}, got.ProductIDs)
	assert.Equal(t, enums.RoleAdmin, got.ActorRole)
}

func TestCreatePromotionRejectsBadInput(t *testing.T) {
	svc := &stubPromotionsService{create: func(context.Context, internalpromotions.CreateInput) (*internalpromotions.PromotionWithProducts, error) {
		t.Fatal("service should not be called")
		return nil, nil
	}}
	cases := map[string]string{
		"bad type":   `{"codigo":"X","tipo_descuento":"Regalo","valor_descuento":1,"fecha_inicio":"2026-11-01","fecha_fin":"2026-11-02","productIds":["a"]}`,
		"bad date":   `{"codigo":"X","tipo_descuento":"Porcentaje","valor_descuento":1,"fecha_inicio":"mañana","fecha_fin":"2026-11-02","productIds":["a"]}`,
		"no code":    `{"tipo_descuento":"Porcentaje","valor_descuento":1,"fecha_inicio":"2026-11-01","fecha_fin":"2026-11-02","productIds":["a"]}`,
		"no product": `{"codigo":"X","tipo_descuento":"Porcentaje","valor_descuento":1,"fecha_inicio":"2026-11-01","fecha_fin":"2026-11-02","productIds":[]}`,
	}
	for name, body := range cases {
		resp := httptest.NewRecorder()
		Create(svc, nil).ServeHTTP(resp, adminRequest(http.MethodPost, body))
		assert.Equal(t, http.StatusBadRequest, resp.Code, name)
	}
}

func TestCreatePromotionConflict(t *testing.T) {
	svc := &stubPromotionsService{create: func(context.Context, internalpromotions.CreateInput) (*internalpromotions.PromotionWithProducts, error) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "products already have an active promotion").
			WithDetails([]internalpromotions.Conflict{{ProductName: "Taza", PromotionCode: "OTRA"}})
	}}
	body := `{"codigo":"X","tipo_descuento":"Monto_Fijo","valor_descuento":"2.50","fecha_inicio":"2026-11-01","fecha_fin":"2026-11-02","productIds":["a"]}`
	resp := httptest.NewRecorder()
	Create(svc, nil).ServeHTTP(resp, adminRequest(http.MethodPost, body))

	require.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Contains(t, resp.Body.String(), "OTRA")
}

func TestBatchDiscount(t *testing.T) {
	ids := []uuid.UUID{uuid.New(), uuid.New()}
	svc := &stubPromotionsService{discount: func(_ context.Context, input internalpromotions.BatchDiscountInput) (*internalpromotions.BatchDiscountResult, error) {
		assert.Equal(t, "25", input.Percent.String())
		assert.Len(t, input.ProductIDs, 2)
		return &internalpromotions.BatchDiscountResult{UpdatedCount: 2, ProductIDs: ids}, nil
	}}
	body := `{"productIds":["` + ids[0].String() + `","` + ids[1].String() + `"],"discountPercent":25}`
	resp := httptest.NewRecorder()
	BatchDiscount(svc, nil).ServeHTTP(resp, adminRequest(http.MethodPatch, body))

	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `"updatedCount":2`)

	resp = httptest.NewRecorder()
	BatchDiscount(svc, nil).ServeHTTP(resp, adminRequest(http.MethodPatch, `{"productIds":["x"]}`))
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestListPromotions(t *testing.T) {
	svc := &stubPromotionsService{list: func(_ context.Context, role enums.Role) ([]internalpromotions.PromotionView, error) {
		assert.Equal(t, enums.RoleAdmin, role)
		return []internalpromotions.PromotionView{{Code: "VERANO"}}, nil
	}}
	resp := httptest.NewRecorder()
	List(svc, nil).ServeHTTP(resp, adminRequest(http.MethodGet, ""))
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), "VERANO")
}
