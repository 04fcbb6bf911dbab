package biz

import (
	"OrderSaga/internal/data"

	"github.com/shopspring/decimal"
)

// OrderCreatedEvent is published on order_exchange once the order is persisted.
type OrderCreatedEvent struct {
	OrderID    string          `json:"orderId"`
	CustomerID string          `json:"customerId"`
	Items      data.OrderItems `json:"items"`
	Total      decimal.Decimal `json:"total"`
}

// OrderCancelledEvent carries the cancelled items so stock can be restored.
type OrderCancelledEvent struct {
	OrderID    string          `json:"orderId"`
	CustomerID string          `json:"customerId,omitempty"`
	Reason     string          `json:"reason,omitempty"`
	Items      data.OrderItems `json:"items,omitempty"`
}

// PaymentPendingEvent asks the payment reactor to charge a deferred order.
type PaymentPendingEvent struct {
	OrderID string          `json:"orderId"`
	Amount  decimal.Decimal `json:"amount"`
}

// PaymentSettledEvent is the payload of payment_completed and payment_failed.
type PaymentSettledEvent struct {
	OrderID   string          `json:"orderId"`
	PaymentID string          `json:"paymentId,omitempty"`
	Amount    decimal.Decimal `json:"amount"`
}

// ShipmentCreatedEvent is published on notification_exchange.
type ShipmentCreatedEvent struct {
	OrderID    string `json:"orderId"`
	ShipmentID string `json:"shipmentId,omitempty"`
}

// InventoryUpdatedEvent reports a new ledger stock level.
type InventoryUpdatedEvent struct {
	SKU      string `json:"sku"`
	NewStock int64  `json:"newStock"`
}

// Cancellation reasons.
const (
	ReasonPaymentDeclined = "payment_failed"
	ReasonUserCancelled   = "cancelled_by_customer"
)
