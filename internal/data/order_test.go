package data

import (
	"context"
	"regexp"
	"testing"
	"time"

	pkgerrors "OrderSaga/pkg/errors"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/go-kratos/kratos/v2/log"
	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	db, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	return db, mock
}

func setupOrderRepo(t *testing.T) (*OrderRepo, sqlmock.Sqlmock, *miniredis.Miniredis) {
	db, mock := setupMockDB(t)
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	data := &Data{redisClient: rdb, cache: NewCacheClient(rdb)}
	return NewOrderRepo(data, db, log.DefaultLogger), mock, mr
}

func orderRows(o *Order) *sqlmock.Rows {
	items, _ := o.Items.Value()
	return sqlmock.NewRows([]string{"id", "order_id", "customer_id", "items", "total", "status", "created_at", "updated_at"}).
		AddRow(1, o.OrderID, o.CustomerID, items, o.Total.String(), string(o.Status), o.CreatedAt, o.UpdatedAt)
}

func sampleOrder() *Order {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	return &Order{
		OrderID:    "o-1",
		CustomerID: "c-1",
		Items: OrderItems{
			{ProductID: "SKU-1", Quantity: 2, UnitPrice: decimal.RequireFromString("12.50")},
		},
		Total:     decimal.RequireFromString("25.00"),
		Status:    OrderPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestOrderItems_ScanValue(t *testing.T) {
	items := OrderItems{{ProductID: "SKU-1", Quantity: 3, UnitPrice: decimal.RequireFromString("1.10")}}

	v, err := items.Value()
	require.NoError(t, err)

	var fromString OrderItems
	require.NoError(t, fromString.Scan(v))
	require.Len(t, fromString, 1)
	assert.Equal(t, "SKU-1", fromString[0].ProductID)
	assert.True(t, fromString[0].UnitPrice.Equal(decimal.RequireFromString("1.1")))

	var fromBytes OrderItems
	require.NoError(t, fromBytes.Scan([]byte(v.(string))))
	assert.Equal(t, 3, fromBytes[0].Quantity)

	var empty OrderItems
	v, err = empty.Value()
	require.NoError(t, err)
	assert.Equal(t, "[]", v)

	assert.Error(t, fromBytes.Scan(42))
}

func TestOrderRepo_CreateOrder(t *testing.T) {
	repo, mock, _ := setupOrderRepo(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `orders`")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, repo.CreateOrder(context.Background(), sampleOrder()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepo_CreateOrder_Duplicate(t *testing.T) {
	repo, mock, _ := setupOrderRepo(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `orders`")).
		WillReturnError(&mysqldriver.MySQLError{Number: 1062, Message: "Duplicate entry 'o-1' for key 'order_id'"})

	err := repo.CreateOrder(context.Background(), sampleOrder())
	require.Error(t, err)
	assert.True(t, pkgerrors.IsDuplicateKeyError(err))
}

func TestOrderRepo_GetOrder_ReadThrough(t *testing.T) {
	repo, mock, mr := setupOrderRepo(t)
	ctx := context.Background()
	want := sampleOrder()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM `orders` WHERE order_id = ?")).
		WithArgs("o-1", 1).
		WillReturnRows(orderRows(want))

	got, err := repo.GetOrder(ctx, "o-1")
	require.NoError(t, err)
	assert.Equal(t, "c-1", got.CustomerID)
	assert.Equal(t, OrderPending, got.Status)
	assert.True(t, got.Total.Equal(want.Total))
	assert.True(t, mr.Exists("order:o-1"))

	// second read is served from Redis; no further query is expected
	got, err = repo.GetOrder(ctx, "o-1")
	require.NoError(t, err)
	assert.Equal(t, "o-1", got.OrderID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepo_GetOrder_NotFound(t *testing.T) {
	repo, mock, _ := setupOrderRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM `orders` WHERE order_id = ?")).
		WithArgs("missing", 1).
		WillReturnError(gorm.ErrRecordNotFound)

	_, err := repo.GetOrder(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, pkgerrors.IsNotFoundError(err))
}

func TestOrderRepo_GetOrder_CacheDown(t *testing.T) {
	repo, mock, mr := setupOrderRepo(t)
	mr.Close()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM `orders` WHERE order_id = ?")).
		WithArgs("o-1", 1).
		WillReturnRows(orderRows(sampleOrder()))

	got, err := repo.GetOrder(context.Background(), "o-1")
	require.NoError(t, err)
	assert.Equal(t, "o-1", got.OrderID)
}

func TestOrderRepo_UpdateStatus(t *testing.T) {
	t.Run("matching source status invalidates cache", func(t *testing.T) {
		repo, mock, mr := setupOrderRepo(t)
		require.NoError(t, mr.Set("order:o-1", `{"orderId":"o-1","status":"pending"}`))

		mock.ExpectExec(regexp.QuoteMeta("UPDATE `orders` SET")).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.UpdateStatus(context.Background(), "o-1", OrderPaid, OrderPending)
		require.NoError(t, err)
		assert.False(t, mr.Exists("order:o-1"))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("no matching row is a conflict", func(t *testing.T) {
		repo, mock, _ := setupOrderRepo(t)

		mock.ExpectExec(regexp.QuoteMeta("UPDATE `orders` SET")).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := repo.UpdateStatus(context.Background(), "o-1", OrderShipped, OrderPaid, OrderPendingPayment)
		assert.ErrorIs(t, err, ErrStatusConflict)
	})
}

func TestOrderRepo_ListStalePendingPayments(t *testing.T) {
	repo, mock, _ := setupOrderRepo(t)
	cutoff := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	stale := sampleOrder()
	stale.Status = OrderPendingPayment
	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM `orders` WHERE status = ? AND updated_at < ?")).
		WithArgs(OrderPendingPayment, cutoff, 50).
		WillReturnRows(orderRows(stale))

	orders, err := repo.ListStalePendingPayments(context.Background(), cutoff, 50)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, OrderPendingPayment, orders[0].Status)
}
