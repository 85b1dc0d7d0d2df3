package returns

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/dbtest"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
)

// Wednesday.
var fixedNow = time.Date(2026, 6, 10, 12, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (Service, *db.Client) {
	t.Helper()
	client := dbtest.Open(t)
	emitter := outbox.NewService(outbox.NewRepository(client.DB()), logger.Nop())
	svc, err := NewService(NewRepository(client.DB()), client, emitter, metrics.NewWorkflowMetrics(prometheus.NewRegistry()), nil, logger.Nop())
	require.NoError(t, err)
	svc.(*service).now = func() time.Time { return fixedNow }
	return svc, client
}

type deliveredOrder struct {
	user  models.User
	order models.Order
}

func seedDelivered(t *testing.T, client *db.Client, deliveredAt time.Time, subtotal, taxes, total string) deliveredOrder {
	t.Helper()
	user := dbtest.SeedUser(t, client, enums.RoleCustomer)
	addr := dbtest.SeedAddress(t, client, user.ID)
	product := dbtest.SeedProduct(t, client, "Mochila", subtotal, 10)
	order := dbtest.SeedOrder(t, client, dbtest.OrderFixture{
		UserID:      user.ID,
		AddressID:   addr.ID,
		Subtotal:    subtotal,
		Taxes:       taxes,
		Total:       total,
		Status:      enums.OrderStatusDelivered,
		OrderedAt:   deliveredAt.Add(-72 * time.Hour),
		DeliveredAt: &deliveredAt,
		Lines:       []dbtest.LineFixture{{ProductID: product.ID, Quantity: 1, UnitPrice: subtotal}},
	})
	return deliveredOrder{user: user, order: order}
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	client := dbtest.Open(t)
	emitter := outbox.NewService(outbox.NewRepository(client.DB()), nil)
	repo := NewRepository(client.DB())

	_, err := NewService(nil, client, emitter, nil, nil, nil)
	require.Error(t, err)
	_, err = NewService(repo, nil, emitter, nil, nil, nil)
	require.Error(t, err)
	_, err = NewService(repo, client, nil, nil, nil, nil)
	require.Error(t, err)
}

func TestCreateReturnRequestComputesRefundAndTicket(t *testing.T) {
	svc, client := newTestService(t)
	f := seedDelivered(t, client, fixedNow.AddDate(0, 0, -2), "100", "18", "133")

	res, err := svc.CreateReturnRequest(context.Background(), CreateInput{
		UserID:  f.user.ID,
		OrderID: f.order.ID,
		Reason:  "  talla incorrecta  ",
	})
	require.NoError(t, err)
	assert.Equal(t, f.order.ID, res.OrderID)
	assert.True(t, res.RefundAmount.Equal(d("118")))
	assert.Equal(t, enums.TicketPriorityMedium, res.Priority)

	var ret models.Return
	require.NoError(t, client.DB().Where("id = ?", res.ReturnID).Take(&ret).Error)
	assert.Equal(t, enums.ReturnStatusRequested, ret.Status)
	assert.Equal(t, "talla incorrecta", ret.Reason)
	assert.True(t, ret.RefundAmount.Equal(d("118")))
	assert.Nil(t, ret.ResolvedAt)

	var ticket models.SupportTicket
	require.NoError(t, client.DB().Where("order_id = ?", f.order.ID).Take(&ticket).Error)
	assert.Equal(t, "Devolución pedido #"+f.order.ID.String(), ticket.Subject)
	assert.Equal(t, enums.TicketStatusOpen, ticket.Status)
	assert.Equal(t, f.user.ID, ticket.UserID)

	assert.EqualValues(t, 1, dbtest.Count(t, client, "outbox_events", "event_type = ? AND aggregate_id = ?", enums.EventReturnRequested, res.ReturnID))
}

func TestCreateReturnRequestHighPriorityAndDefectivePrefix(t *testing.T) {
	svc, client := newTestService(t)
	f := seedDelivered(t, client, fixedNow.AddDate(0, 0, -60), "1000", "180", "1180")

	res, err := svc.CreateReturnRequest(context.Background(), CreateInput{
		UserID:     f.user.ID,
		OrderID:    f.order.ID,
		Reason:     "pantalla rota",
		ReasonType: "Defectuoso",
	})
	require.NoError(t, err)
	assert.Equal(t, enums.TicketPriorityHigh, res.Priority)

	var ret models.Return
	require.NoError(t, client.DB().Where("id = ?", res.ReturnID).Take(&ret).Error)
	assert.Equal(t, "[Defectuoso] pantalla rota", ret.Reason)

	var ticket models.SupportTicket
	require.NoError(t, client.DB().Where("order_id = ?", f.order.ID).Take(&ticket).Error)
	assert.Equal(t, enums.TicketPriorityHigh, ticket.Priority)
	assert.Equal(t, ret.Reason, ticket.Description)
}

func TestCreateReturnRequestWindow(t *testing.T) {
	svc, client := newTestService(t)
	ctx := context.Background()

	// 2026-05-28 (Thu) to 2026-06-10 (Wed) is exactly ten business days.
	inside := seedDelivered(t, client, time.Date(2026, 5, 28, 9, 0, 0, 0, time.UTC), "50", "9", "59")
	_, err := svc.CreateReturnRequest(ctx, CreateInput{UserID: inside.user.ID, OrderID: inside.order.ID, Reason: "no me gustó"})
	require.NoError(t, err)

	outside := seedDelivered(t, client, time.Date(2026, 5, 27, 9, 0, 0, 0, time.UTC), "50", "9", "59")
	_, err = svc.CreateReturnRequest(ctx, CreateInput{UserID: outside.user.ID, OrderID: outside.order.ID, Reason: "no me gustó"})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	assert.Equal(t, map[string]any{"business_days": 11}, pkgerrors.As(err).Details())
	assert.EqualValues(t, 0, dbtest.Count(t, client, "returns", "order_id = ?", outside.order.ID))
}

func TestCreateReturnRequestUsesOrderDateWithoutDelivery(t *testing.T) {
	svc, client := newTestService(t)
	user := dbtest.SeedUser(t, client, enums.RoleCustomer)
	addr := dbtest.SeedAddress(t, client, user.ID)
	product := dbtest.SeedProduct(t, client, "Libro", "20", 1)
	order := dbtest.SeedOrder(t, client, dbtest.OrderFixture{
		UserID: user.ID, AddressID: addr.ID, Subtotal: "20", Taxes: "0", Total: "20",
		Status:    enums.OrderStatusDelivered,
		OrderedAt: fixedNow.AddDate(0, 0, -30),
		Lines:     []dbtest.LineFixture{{ProductID: product.ID, Quantity: 1, UnitPrice: "20"}},
	})

	_, err := svc.CreateReturnRequest(context.Background(), CreateInput{UserID: user.ID, OrderID: order.ID, Reason: "llegó tarde"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestCreateReturnRequestGuards(t *testing.T) {
	svc, client := newTestService(t)
	ctx := context.Background()
	f := seedDelivered(t, client, fixedNow, "100", "18", "118")
	stranger := dbtest.SeedUser(t, client, enums.RoleCustomer)

	_, err := svc.CreateReturnRequest(ctx, CreateInput{UserID: f.user.ID, OrderID: f.order.ID, Reason: " abc "})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "short reason")

	_, err = svc.CreateReturnRequest(ctx, CreateInput{UserID: f.user.ID, OrderID: uuid.New(), Reason: "motivo válido"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	_, err = svc.CreateReturnRequest(ctx, CreateInput{UserID: stranger.ID, OrderID: f.order.ID, Reason: "motivo válido"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	_, err = svc.CreateReturnRequest(ctx, CreateInput{OrderID: f.order.ID, Reason: "motivo válido"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized))

	_, err = svc.CreateReturnRequest(ctx, CreateInput{UserID: f.user.ID, OrderID: f.order.ID, Reason: "motivo válido"})
	require.NoError(t, err)
	_, err = svc.CreateReturnRequest(ctx, CreateInput{UserID: f.user.ID, OrderID: f.order.ID, Reason: "otra vez"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "pending return")
	assert.Equal(t, http.StatusBadRequest, pkgerrors.MetadataFor(pkgerrors.CodeValidation).HTTPStatus)
	assert.EqualValues(t, 1, dbtest.Count(t, client, "returns", "order_id = ?", f.order.ID))
}

func TestCreateReturnRequestRejectsUndeliveredAndEmptyOrders(t *testing.T) {
	svc, client := newTestService(t)
	ctx := context.Background()
	user := dbtest.SeedUser(t, client, enums.RoleCustomer)
	addr := dbtest.SeedAddress(t, client, user.ID)

	shipped := dbtest.SeedOrder(t, client, dbtest.OrderFixture{
		UserID: user.ID, AddressID: addr.ID, Subtotal: "10", Taxes: "0", Total: "10",
		Status: enums.OrderStatusShipped,
	})
	_, err := svc.CreateReturnRequest(ctx, CreateInput{UserID: user.ID, OrderID: shipped.ID, Reason: "motivo válido"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	empty := dbtest.SeedOrder(t, client, dbtest.OrderFixture{
		UserID: user.ID, AddressID: addr.ID, Subtotal: "10", Taxes: "0", Total: "10",
		Status: enums.OrderStatusDelivered, OrderedAt: fixedNow,
	})
	_, err = svc.CreateReturnRequest(ctx, CreateInput{UserID: user.ID, OrderID: empty.ID, Reason: "motivo válido"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func requestReturn(t *testing.T, svc Service, f deliveredOrder) uuid.UUID {
	t.Helper()
	res, err := svc.CreateReturnRequest(context.Background(), CreateInput{UserID: f.user.ID, OrderID: f.order.ID, Reason: "no funciona"})
	require.NoError(t, err)
	return res.ReturnID
}

func TestApproveReturnCancelsOrderAndRefundsPayment(t *testing.T) {
	svc, client := newTestService(t)
	f := seedDelivered(t, client, fixedNow, "100", "18", "133")
	returnID := requestReturn(t, svc, f)
	stockBefore := dbtest.Stock(t, client, f.order.Lines[0].ProductID)

	res, err := svc.UpdateReturnStatus(context.Background(), UpdateInput{ReturnID: returnID, Status: "Aprobada", ActorRole: enums.RoleAdmin})
	require.NoError(t, err)
	assert.True(t, res.Changed)

	var ret models.Return
	require.NoError(t, client.DB().Where("id = ?", returnID).Take(&ret).Error)
	assert.Equal(t, enums.ReturnStatusApproved, ret.Status)
	require.NotNil(t, ret.ResolvedAt)

	var order models.Order
	require.NoError(t, client.DB().Where("id = ?", f.order.ID).Take(&order).Error)
	assert.Equal(t, enums.OrderStatusCancelled, order.Status)

	var payment models.Payment
	require.NoError(t, client.DB().Where("order_id = ?", f.order.ID).Take(&payment).Error)
	assert.Equal(t, enums.PaymentStatusRefunded, payment.Status)

	// Approval leaves tickets open and does not restock.
	assert.EqualValues(t, 1, dbtest.Count(t, client, "support_tickets", "order_id = ? AND status = ?", f.order.ID, enums.TicketStatusOpen))
	assert.Equal(t, stockBefore, dbtest.Stock(t, client, f.order.Lines[0].ProductID))
}

func TestRejectAndCompleteCloseTickets(t *testing.T) {
	svc, client := newTestService(t)
	ctx := context.Background()
	f := seedDelivered(t, client, fixedNow, "100", "18", "118")
	returnID := requestReturn(t, svc, f)

	_, err := svc.UpdateReturnStatus(ctx, UpdateInput{ReturnID: returnID, Status: "Rechazada", ActorRole: enums.RoleAdmin})
	require.NoError(t, err)

	var order models.Order
	require.NoError(t, client.DB().Where("id = ?", f.order.ID).Take(&order).Error)
	assert.Equal(t, enums.OrderStatusDelivered, order.Status)
	assert.EqualValues(t, 1, dbtest.Count(t, client, "support_tickets", "order_id = ? AND status = ?", f.order.ID, enums.TicketStatusClosed))

	other := seedDelivered(t, client, fixedNow, "10", "0", "10")
	otherReturn := requestReturn(t, svc, other)
	_, err = svc.UpdateReturnStatus(ctx, UpdateInput{ReturnID: otherReturn, Status: "Completada", ActorRole: enums.RoleAdmin})
	require.NoError(t, err)
	assert.EqualValues(t, 0, dbtest.Count(t, client, "support_tickets", "order_id = ? AND status = ?", other.order.ID, enums.TicketStatusOpen))

	var payment models.Payment
	require.NoError(t, client.DB().Where("order_id = ?", other.order.ID).Take(&payment).Error)
	assert.Equal(t, enums.PaymentStatusApproved, payment.Status)
}

func TestUpdateReturnStatusSameStatusIsNoop(t *testing.T) {
	svc, client := newTestService(t)
	f := seedDelivered(t, client, fixedNow, "100", "18", "118")
	returnID := requestReturn(t, svc, f)

	res, err := svc.UpdateReturnStatus(context.Background(), UpdateInput{ReturnID: returnID, Status: "Solicitada", ActorRole: enums.RoleAdmin})
	require.NoError(t, err)
	assert.False(t, res.Changed)

	var ret models.Return
	require.NoError(t, client.DB().Where("id = ?", returnID).Take(&ret).Error)
	assert.Nil(t, ret.ResolvedAt)
	assert.EqualValues(t, 0, dbtest.Count(t, client, "outbox_events", "event_type = ?", enums.EventReturnStatusChanged))
}

func TestUpdateReturnStatusGuards(t *testing.T) {
	svc, client := newTestService(t)
	ctx := context.Background()
	f := seedDelivered(t, client, fixedNow, "100", "18", "118")
	returnID := requestReturn(t, svc, f)

	_, err := svc.UpdateReturnStatus(ctx, UpdateInput{ReturnID: returnID, Status: "Aprobada", ActorRole: enums.RoleAgent})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	_, err = svc.UpdateReturnStatus(ctx, UpdateInput{ReturnID: returnID, Status: "Cerrada", ActorRole: enums.RoleAdmin})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = svc.UpdateReturnStatus(ctx, UpdateInput{ReturnID: uuid.New(), Status: "Aprobada", ActorRole: enums.RoleAdmin})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestGetLatestForOrderAndListAll(t *testing.T) {
	svc, client := newTestService(t)
	ctx := context.Background()
	f := seedDelivered(t, client, fixedNow, "100", "18", "133")

	_, err := svc.GetLatestForOrder(ctx, f.user.ID, f.order.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	first := requestReturn(t, svc, f)
	_, err = svc.UpdateReturnStatus(ctx, UpdateInput{ReturnID: first, Status: "Rechazada", ActorRole: enums.RoleAdmin})
	require.NoError(t, err)

	svc.(*service).now = func() time.Time { return fixedNow.Add(time.Hour) }
	second := requestReturn(t, svc, f)

	latest, err := svc.GetLatestForOrder(ctx, f.user.ID, f.order.ID)
	require.NoError(t, err)
	assert.Equal(t, second, latest.ID)
	assert.Equal(t, enums.ReturnStatusRequested, latest.Status)

	stranger := dbtest.SeedUser(t, client, enums.RoleCustomer)
	_, err = svc.GetLatestForOrder(ctx, stranger.ID, f.order.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	_, err = svc.ListAll(ctx, enums.RoleCustomer)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	all, err := svc.ListAll(ctx, enums.RoleAgent)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, second, all[0].ID)
	assert.Equal(t, first, all[1].ID)
	assert.True(t, all[0].OrderTotal.Equal(d("133")))
}
