// Package biz contains business logic layer implementations.
// It holds the order saga, the event reactors and the pending-payment
// report; persistence and outbound calls are reached through interfaces
// implemented in the data layer.
package biz

import (
	"OrderSaga/internal/data"
	"OrderSaga/pkg/fabric"

	"github.com/google/wire"
)

// ProviderSet is biz providers.
var ProviderSet = wire.NewSet(
	NewSagaUsecase,
	NewInventoryReactor,
	NewPaymentReactor,
	NewShipmentReactor,
	NewNotifierReactor,
	NewReactorRunner,
	NewPendingPaymentReporter,
	// Bind data layer implementations to biz layer interfaces
	wire.Bind(new(OrderRepo), new(*data.OrderRepo)),
	wire.Bind(new(TransitionLog), new(*data.TransitionLog)),
	wire.Bind(new(PaymentRepo), new(*data.PaymentRepo)),
	wire.Bind(new(ShipmentRepo), new(*data.ShipmentRepo)),
	wire.Bind(new(NotificationRepo), new(*data.NotificationRepo)),
	wire.Bind(new(StockLedger), new(*data.StockLedger)),
	wire.Bind(new(CustomerGateway), new(*data.CustomerGateway)),
	wire.Bind(new(InventoryGateway), new(*data.InventoryGateway)),
	wire.Bind(new(PaymentGateway), new(*data.PaymentGateway)),
	wire.Bind(new(fabric.Publisher), new(*fabric.Bus)),
	wire.Bind(new(EventSubscriber), new(*fabric.Bus)),
)
