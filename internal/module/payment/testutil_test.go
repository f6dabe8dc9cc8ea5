package payment

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/healmart/server/internal/module/order"
	"github.com/healmart/server/internal/shared/events"
	"github.com/healmart/server/internal/shared/logger"
	"github.com/healmart/server/internal/shared/metrics"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Prometheus collectors register globally, so the whole package shares one
// instance.
var testMetrics = metrics.New("healmart_payment_test")

func testLogger() *logger.Logger {
	return logger.New(&logger.Config{Level: "error"})
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, order.Migrate(db))
	require.NoError(t, Migrate(db))
	return db
}

type testEnv struct {
	db     *gorm.DB
	repo   Repository
	orders order.Store
	engine *Engine
	bus    *events.Bus
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db := newTestDB(t)
	orders := order.NewStore(db)
	repo := NewRepository(db, orders)
	bus := events.NewBus(zap.NewNop())
	engine := NewEngine(repo, bus, testMetrics, testLogger())
	return &testEnv{db: db, repo: repo, orders: orders, engine: engine, bus: bus}
}

func (e *testEnv) seedOrder(t *testing.T, total int64) *order.Order {
	t.Helper()

	o := &order.Order{
		ID:       uuid.New(),
		BuyerID:  uuid.New(),
		Total:    total,
		Currency: "usd",
		Status:   order.OrderStatusPending,
	}
	require.NoError(t, e.db.Create(o).Error)
	return o
}

func (e *testEnv) seedPayment(t *testing.T, o *order.Order, status PaymentStatus, gatewayTxID string) *Payment {
	t.Helper()

	p := &Payment{
		ID:        uuid.New(),
		OrderID:   o.ID,
		GatewayID: "mock-main",
		Amount:    o.Total,
		Currency:  o.Currency,
		Status:    status,
	}
	if gatewayTxID != "" {
		p.GatewayTxID = &gatewayTxID
	}
	require.NoError(t, e.repo.CreatePayment(context.Background(), p))
	return p
}

func (e *testEnv) reload(t *testing.T, id uuid.UUID) *Payment {
	t.Helper()

	p, err := e.repo.GetPayment(context.Background(), id)
	require.NoError(t, err)
	return p
}

func (e *testEnv) orderStatus(t *testing.T, id uuid.UUID) order.OrderStatus {
	t.Helper()

	o, err := e.orders.GetOrder(context.Background(), id)
	require.NoError(t, err)
	return o.Status
}
