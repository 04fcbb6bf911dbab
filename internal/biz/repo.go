package biz

import (
	"context"
	"time"

	"OrderSaga/internal/data"
	"OrderSaga/pkg/fabric"

	"github.com/shopspring/decimal"
)

// OrderRepo defines the order repository interface.
// Following Kratos v2 DDD architecture, interfaces are defined in biz layer.
// Implementation is in data layer (data.OrderRepo).
type OrderRepo interface {
	CreateOrder(ctx context.Context, order *data.Order) error
	GetOrder(ctx context.Context, orderID string) (*data.Order, error)
	// UpdateStatus moves the order to `to` only from one of `from`; it
	// returns data.ErrStatusConflict otherwise.
	UpdateStatus(ctx context.Context, orderID string, to data.OrderStatus, from ...data.OrderStatus) error
	ListStalePendingPayments(ctx context.Context, cutoff time.Time, limit int) ([]*data.Order, error)
}

// TransitionLog records saga steps. Append must not block.
type TransitionLog interface {
	Append(ctx context.Context, t *data.Transition)
	List(ctx context.Context, orderID string) ([]*data.Transition, error)
}

// PaymentRepo is the payment reactor's ledger.
type PaymentRepo interface {
	RecordInitiated(ctx context.Context, orderID string, amount decimal.Decimal) error
	Settle(ctx context.Context, orderID, paymentID string, amount decimal.Decimal, status data.PaymentStatus) error
	GetByOrder(ctx context.Context, orderID string) (*data.Payment, error)
}

// ShipmentRepo stores shipments, at most one per order.
type ShipmentRepo interface {
	CreateForOrder(ctx context.Context, orderID string) (*data.Shipment, bool, error)
}

// NotificationRepo stores notifications.
type NotificationRepo interface {
	Create(ctx context.Context, n *data.Notification) error
}

// StockLedger tracks per-SKU stock for the inventory reactor.
type StockLedger interface {
	Adjust(ctx context.Context, sku string, delta int64) (int64, error)
}

// CustomerGateway validates customers against the customer service.
type CustomerGateway interface {
	Validate(ctx context.Context, customerID string) error
}

// InventoryGateway reads product records from the inventory service.
type InventoryGateway interface {
	GetItem(ctx context.Context, sku string) (*data.InventoryItem, error)
}

// PaymentGateway charges orders through the payment service.
type PaymentGateway interface {
	Process(ctx context.Context, orderID string, amount decimal.Decimal) (*data.PaymentResult, error)
}

// EventSubscriber is the read side of the event fabric.
type EventSubscriber interface {
	Subscribe(channel string, opts ...fabric.SubscribeOption) *fabric.Subscription
}
