package data

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	pkgerrors "OrderSaga/pkg/errors"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// OrderStatus is the persisted saga status of an order.
type OrderStatus string

// Order status constants. PENDING_PAYMENT keeps its upper-case wire form.
const (
	OrderPending        OrderStatus = "pending"
	OrderPendingPayment OrderStatus = "PENDING_PAYMENT"
	OrderPaid           OrderStatus = "paid"
	OrderCancelled      OrderStatus = "cancelled"
	OrderShipped        OrderStatus = "shipped"
	OrderDelivered      OrderStatus = "delivered"
)

// ErrStatusConflict is returned by UpdateStatus when the order is not in
// one of the expected source statuses.
var ErrStatusConflict = errors.New("order status changed concurrently")

// OrderItem is one line of an order.
type OrderItem struct {
	ProductID string          `json:"productId"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
}

// OrderItems is stored as a JSON column.
type OrderItems []OrderItem

// Value implements driver.Valuer interface for OrderItems.
func (items OrderItems) Value() (driver.Value, error) {
	if items == nil {
		return "[]", nil
	}
	b, err := json.Marshal(items)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner interface for OrderItems.
func (items *OrderItems) Scan(value interface{}) error {
	var raw []byte
	switch v := value.(type) {
	case nil:
		*items = nil
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("cannot scan type %T into OrderItems", value)
	}
	return json.Unmarshal(raw, items)
}

// Order is the GORM model for the orders table.
type Order struct {
	ID         int64           `gorm:"primaryKey;column:id" json:"-"`
	OrderID    string          `gorm:"column:order_id;type:varchar(36);uniqueIndex;not null" json:"orderId"`
	CustomerID string          `gorm:"column:customer_id;type:varchar(64);not null;index" json:"customerId"`
	Items      OrderItems      `gorm:"column:items;type:json;not null" json:"items"`
	Total      decimal.Decimal `gorm:"column:total;type:decimal(14,2);not null" json:"total"`
	Status     OrderStatus     `gorm:"column:status;type:varchar(32);not null;index" json:"status"`
	CreatedAt  time.Time       `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt  time.Time       `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}

// TableName specifies the table name for GORM.
func (Order) TableName() string {
	return "orders"
}

// OrderRepo implements biz.OrderRepo.
type OrderRepo struct {
	db     *gorm.DB
	cache  CacheClient
	logger *log.Helper
}

// NewOrderRepo creates a new order repository.
func NewOrderRepo(data *Data, db *gorm.DB, logger log.Logger) *OrderRepo {
	return &OrderRepo{
		db:     db,
		cache:  data.GetCache(),
		logger: log.NewHelper(logger),
	}
}

// CreateOrder inserts a new order. Errors are classified database errors.
func (r *OrderRepo) CreateOrder(ctx context.Context, order *Order) error {
	if err := r.db.WithContext(ctx).Create(order).Error; err != nil {
		dbErr := pkgerrors.ClassifyDBError(err)
		r.logger.Errorw("msg", "failed to create order",
			"order_id", order.OrderID,
			"customer_id", order.CustomerID,
			"error", dbErr.Error())
		return dbErr
	}

	r.logger.Infow("msg", "order persisted", "order_id", order.OrderID, "status", order.Status, "total", order.Total.String())
	return nil
}

// GetOrder reads an order through the Redis cache.
// Cache key: "order:{orderId}", TTL: 5 minutes
func (r *OrderRepo) GetOrder(ctx context.Context, orderID string) (*Order, error) {
	cacheKey := BuildCacheKey(CacheKeyOrder, orderID)

	var cached Order
	if err := r.cache.Get(ctx, cacheKey, &cached); err == nil {
		r.logger.Debugw("msg", "order cache hit", "order_id", orderID)
		return &cached, nil
	} else if !errors.Is(err, ErrCacheNotFound) {
		r.logger.Warnw("msg", "order cache unavailable, reading from MySQL", "order_id", orderID, "error", err)
	}

	var order Order
	if err := r.db.WithContext(ctx).Where("order_id = ?", orderID).First(&order).Error; err != nil {
		return nil, pkgerrors.ClassifyDBError(err)
	}

	if err := r.cache.Set(ctx, cacheKey, &order, TTLOrder); err != nil {
		r.logger.Warnw("msg", "failed to cache order", "order_id", orderID, "error", err)
	}

	return &order, nil
}

// UpdateStatus moves the order to `to` only if its current status is one of
// `from`. It returns ErrStatusConflict when no row matched.
func (r *OrderRepo) UpdateStatus(ctx context.Context, orderID string, to OrderStatus, from ...OrderStatus) error {
	query := r.db.WithContext(ctx).Model(&Order{}).Where("order_id = ?", orderID)
	if len(from) > 0 {
		query = query.Where("status IN ?", from)
	}

	result := query.Updates(map[string]interface{}{
		"status":     to,
		"updated_at": time.Now(),
	})
	if result.Error != nil {
		dbErr := pkgerrors.ClassifyDBError(result.Error)
		r.logger.Errorw("msg", "failed to update order status", "order_id", orderID, "to", to, "error", dbErr.Error())
		return dbErr
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("order %s to %s: %w", orderID, to, ErrStatusConflict)
	}

	if err := r.cache.Delete(ctx, BuildCacheKey(CacheKeyOrder, orderID)); err != nil {
		r.logger.Warnw("msg", "failed to delete order cache", "order_id", orderID, "error", err)
	}
	return nil
}

// ListStalePendingPayments returns PENDING_PAYMENT orders last updated before cutoff.
func (r *OrderRepo) ListStalePendingPayments(ctx context.Context, cutoff time.Time, limit int) ([]*Order, error) {
	var orders []*Order
	err := r.db.WithContext(ctx).
		Where("status = ? AND updated_at < ?", OrderPendingPayment, cutoff).
		Order("updated_at ASC").
		Limit(limit).
		Find(&orders).Error
	if err != nil {
		return nil, pkgerrors.ClassifyDBError(err)
	}
	return orders, nil
}
