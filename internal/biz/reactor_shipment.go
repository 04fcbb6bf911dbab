package biz

import (
	"context"
	"errors"
	"fmt"

	"OrderSaga/internal/data"
	"OrderSaga/pkg/fabric"
	pkglog "OrderSaga/pkg/log"

	"github.com/go-kratos/kratos/v2/log"
)

// ShipmentReactor creates a shipment for every paid order and marks the
// order shipped.
type ShipmentReactor struct {
	shipments ShipmentRepo
	orders    OrderRepo
	events    fabric.Publisher
	log       *pkglog.LogHelper
}

// NewShipmentReactor creates the shipment reactor.
func NewShipmentReactor(shipments ShipmentRepo, orders OrderRepo, events fabric.Publisher, logger log.Logger) *ShipmentReactor {
	return &ShipmentReactor{shipments: shipments, orders: orders, events: events, log: pkglog.NewLogHelper(logger)}
}

// Name implements Reactor.
func (r *ShipmentReactor) Name() string { return "shipment" }

// Channels implements Reactor.
func (r *ShipmentReactor) Channels() []string { return []string{fabric.ChannelPayment} }

// Handle implements Reactor.
func (r *ShipmentReactor) Handle(ctx context.Context, event fabric.Event) error {
	if event.EventType != fabric.EventPaymentCompleted {
		return nil
	}
	var payload PaymentSettledEvent
	if err := event.Decode(&payload); err != nil {
		return err
	}

	order, err := r.orders.GetOrder(ctx, payload.OrderID)
	if err != nil {
		return fmt.Errorf("load order %s: %w", payload.OrderID, err)
	}
	if order.Status == data.OrderCancelled {
		// charged after a cancel; the payment ledger holds the refund candidate
		r.log.Warnw("msg", "payment completed for cancelled order, not shipping", "order_id", payload.OrderID)
		return nil
	}

	shipment, created, err := r.shipments.CreateForOrder(ctx, payload.OrderID)
	if err != nil {
		return fmt.Errorf("create shipment for %s: %w", payload.OrderID, err)
	}
	if !created {
		r.log.Debugw("msg", "shipment already created", "order_id", payload.OrderID)
		return nil
	}

	err = r.orders.UpdateStatus(ctx, payload.OrderID, data.OrderShipped, data.OrderPaid, data.OrderPendingPayment)
	switch {
	case errors.Is(err, data.ErrStatusConflict):
		r.log.Warnw("msg", "order not in a shippable status", "order_id", payload.OrderID)
	case err != nil:
		return fmt.Errorf("mark order %s shipped: %w", payload.OrderID, err)
	}

	if err := r.events.Publish(ctx, fabric.ChannelNotification, fabric.EventShipmentCreated, ShipmentCreatedEvent{
		OrderID:    payload.OrderID,
		ShipmentID: shipment.ShipmentID,
	}); err != nil {
		r.log.Warnw("msg", "failed to publish shipment_created", "order_id", payload.OrderID, "error", err)
	}
	r.log.Reactor(r.Name(), event.EventType, payload.OrderID, "shipment_id", shipment.ShipmentID)
	return nil
}
