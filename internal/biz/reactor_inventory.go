package biz

import (
	"context"
	"errors"

	"OrderSaga/internal/data"
	"OrderSaga/pkg/fabric"
	pkglog "OrderSaga/pkg/log"

	"github.com/go-kratos/kratos/v2/log"
)

// InventoryReactor keeps the stock ledger in step with orders: created
// orders take stock, cancelled orders put it back.
type InventoryReactor struct {
	ledger StockLedger
	events fabric.Publisher
	log    *pkglog.LogHelper
}

// NewInventoryReactor creates the inventory reactor.
func NewInventoryReactor(ledger StockLedger, events fabric.Publisher, logger log.Logger) *InventoryReactor {
	return &InventoryReactor{ledger: ledger, events: events, log: pkglog.NewLogHelper(logger)}
}

// Name implements Reactor.
func (r *InventoryReactor) Name() string { return "inventory" }

// Channels implements Reactor.
func (r *InventoryReactor) Channels() []string { return []string{fabric.ChannelOrder} }

// Handle implements Reactor.
func (r *InventoryReactor) Handle(ctx context.Context, event fabric.Event) error {
	var (
		orderID string
		items   data.OrderItems
		sign    int64
	)

	switch event.EventType {
	case fabric.EventOrderCreated:
		var payload OrderCreatedEvent
		if err := event.Decode(&payload); err != nil {
			return err
		}
		orderID, items, sign = payload.OrderID, payload.Items, -1
	case fabric.EventOrderCancelled:
		var payload OrderCancelledEvent
		if err := event.Decode(&payload); err != nil {
			return err
		}
		orderID, items, sign = payload.OrderID, payload.Items, 1
	default:
		return nil
	}

	var errs []error
	for _, item := range items {
		stock, err := r.ledger.Adjust(ctx, item.ProductID, sign*int64(item.Quantity))
		if errors.Is(err, data.ErrUnknownSKU) {
			r.log.Debugw("msg", "sku not tracked by stock ledger", "sku", item.ProductID, "order_id", orderID)
			continue
		}
		if err != nil {
			errs = append(errs, err)
			continue
		}

		if err := r.events.Publish(ctx, fabric.ChannelInventory, fabric.EventInventoryUpdated, InventoryUpdatedEvent{
			SKU:      item.ProductID,
			NewStock: stock,
		}); err != nil {
			r.log.Warnw("msg", "failed to publish inventory update", "sku", item.ProductID, "error", err)
		}
	}

	r.log.Reactor(r.Name(), event.EventType, orderID, "items", len(items))
	return errors.Join(errs...)
}
