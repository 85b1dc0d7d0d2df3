package orders

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-backend/pkg/db/dbtest"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
)

func TestListMyOrdersSummarizesLines(t *testing.T) {
	f := newFixture(t, &stubStock{})
	ctx := context.Background()
	user := dbtest.SeedUser(t, f.client, enums.RoleCustomer)
	other := dbtest.SeedUser(t, f.client, enums.RoleCustomer)
	addr := dbtest.SeedAddress(t, f.client, user.ID)

	img := "https://cdn.example.com/mug.png"
	mug := dbtest.SeedProduct(t, f.client, "Taza", "5", 10)
	require.NoError(t, f.client.DB().Model(&models.Product{}).Where("id = ?", mug.ID).Update("image_url", img).Error)
	pen := dbtest.SeedProduct(t, f.client, "Lapicero", "1", 10)

	older := dbtest.SeedOrder(t, f.client, dbtest.OrderFixture{
		UserID: user.ID, AddressID: addr.ID, Subtotal: "7", Taxes: "0", Total: "7",
		Status:    enums.OrderStatusDelivered,
		OrderedAt: fixedNow.Add(-48 * time.Hour),
		Lines: []dbtest.LineFixture{
			{ProductID: mug.ID, Quantity: 1, UnitPrice: "5"},
			{ProductID: pen.ID, Quantity: 2, UnitPrice: "1"},
		},
	})
	newer := dbtest.SeedOrder(t, f.client, dbtest.OrderFixture{
		UserID: user.ID, AddressID: addr.ID, Subtotal: "1", Taxes: "0", Total: "1",
		OrderedAt: fixedNow,
		Lines:     []dbtest.LineFixture{{ProductID: pen.ID, Quantity: 1, UnitPrice: "1"}},
	})
	dbtest.SeedOrder(t, f.client, dbtest.OrderFixture{
		UserID: other.ID, AddressID: addr.ID, Subtotal: "1", Taxes: "0", Total: "1",
	})
	require.NoError(t, f.client.DB().Create(&models.Return{
		ID:           uuid.New(),
		OrderID:      older.ID,
		Reason:       "llegó roto",
		Status:       enums.ReturnStatusRequested,
		RefundAmount: older.Total,
		RequestedAt:  fixedNow,
	}).Error)

	orders, err := f.svc.ListMyOrders(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, orders, 2)

	assert.Equal(t, newer.ID, orders[0].ID)
	assert.False(t, orders[0].HasReturn)
	require.NotNil(t, orders[0].ProductName)
	assert.Equal(t, "Lapicero", *orders[0].ProductName)
	assert.Nil(t, orders[0].ProductImage)

	assert.Equal(t, older.ID, orders[1].ID)
	assert.True(t, orders[1].HasReturn)
	assert.Equal(t, "Taza", *orders[1].ProductName)
	require.NotNil(t, orders[1].ProductImage)
	assert.Equal(t, img, *orders[1].ProductImage)
	assert.Equal(t, 3, orders[1].TotalItems)
	assert.True(t, orders[1].Total.Equal(older.Total))

	_, err = f.svc.ListMyOrders(ctx, uuid.Nil)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized))
}

func TestListAllOrdersPagesNewestFirst(t *testing.T) {
	f := newFixture(t, &stubStock{})
	ctx := context.Background()
	user := dbtest.SeedUser(t, f.client, enums.RoleCustomer)
	addr := dbtest.SeedAddress(t, f.client, user.ID)

	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		o := dbtest.SeedOrder(t, f.client, dbtest.OrderFixture{
			UserID: user.ID, AddressID: addr.ID, Subtotal: "1", Taxes: "0", Total: "1",
			OrderedAt: fixedNow.Add(time.Duration(i) * time.Hour),
		})
		ids = append(ids, o.ID)
	}

	_, err := f.svc.ListAllOrders(ctx, enums.RoleCustomer, pagination.Params{})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	first, err := f.svc.ListAllOrders(ctx, enums.RoleAgent, pagination.Params{Limit: 2})
	require.NoError(t, err)
	require.Len(t, first.Orders, 2)
	assert.Equal(t, ids[2], first.Orders[0].ID)
	assert.Equal(t, ids[1], first.Orders[1].ID)
	require.NotEmpty(t, first.NextCursor)

	second, err := f.svc.ListAllOrders(ctx, enums.RoleAdmin, pagination.Params{Limit: 2, Cursor: first.NextCursor})
	require.NoError(t, err)
	require.Len(t, second.Orders, 1)
	assert.Equal(t, ids[0], second.Orders[0].ID)
	assert.Empty(t, second.NextCursor)

	_, err = f.svc.ListAllOrders(ctx, enums.RoleAdmin, pagination.Params{Cursor: "%%%"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestGetOrderDetailsVisibility(t *testing.T) {
	f := newFixture(t, &stubStock{})
	ctx := context.Background()
	owner := dbtest.SeedUser(t, f.client, enums.RoleCustomer)
	stranger := dbtest.SeedUser(t, f.client, enums.RoleCustomer)
	agent := dbtest.SeedUser(t, f.client, enums.RoleAgent)
	addr := dbtest.SeedAddress(t, f.client, owner.ID)
	a := dbtest.SeedProduct(t, f.client, "A", "2.50", 10)
	b := dbtest.SeedProduct(t, f.client, "B", "4.00", 10)
	order := dbtest.SeedOrder(t, f.client, dbtest.OrderFixture{
		UserID: owner.ID, AddressID: addr.ID, Subtotal: "9", Taxes: "1.62", Total: "10.62",
		Lines: []dbtest.LineFixture{
			{ProductID: b.ID, Quantity: 1, UnitPrice: "4.00"},
			{ProductID: a.ID, Quantity: 2, UnitPrice: "2.50"},
		},
	})

	details, err := f.svc.GetOrderDetails(ctx, order.ID, Viewer{UserID: owner.ID, Role: enums.RoleCustomer})
	require.NoError(t, err)
	assert.Equal(t, order.ID, details.Order.ID)
	assert.True(t, details.Order.Taxes.Equal(order.Taxes))
	require.NotNil(t, details.Order.Address.City)
	assert.Equal(t, addr.City, *details.Order.Address.City)
	require.Len(t, details.Items, 2)
	assert.Equal(t, "B", details.Items[0].ProductName)
	assert.Equal(t, "A", details.Items[1].ProductName)
	assert.Equal(t, 2, details.Items[1].Quantity)

	_, err = f.svc.GetOrderDetails(ctx, order.ID, Viewer{UserID: agent.ID, Role: enums.RoleAgent})
	require.NoError(t, err)

	_, err = f.svc.GetOrderDetails(ctx, order.ID, Viewer{UserID: stranger.ID, Role: enums.RoleCustomer})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	_, err = f.svc.GetOrderDetails(ctx, uuid.New(), Viewer{UserID: owner.ID, Role: enums.RoleCustomer})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestClearCartOnlyTouchesOwner(t *testing.T) {
	client := dbtest.Open(t)
	repo := NewRepository(client.DB())
	p := dbtest.SeedProduct(t, client, "P", "1", 1)
	mine, theirs := uuid.New(), uuid.New()
	dbtest.SeedCartItem(t, client, mine, p.ID, 1)
	dbtest.SeedCartItem(t, client, mine, p.ID, 2)
	dbtest.SeedCartItem(t, client, theirs, p.ID, 1)

	n, err := repo.ClearCart(context.Background(), mine)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
	assert.EqualValues(t, 1, dbtest.Count(t, client, "cart_items", ""))
}
