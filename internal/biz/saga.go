package biz

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"OrderSaga/internal/data"
	pkgerrors "OrderSaga/pkg/errors"
	"OrderSaga/pkg/fabric"
	pkglog "OrderSaga/pkg/log"
	"OrderSaga/pkg/retry"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Saga steps. The first six are run in order; the rest are terminal.
const (
	StepStart            = "start"
	StepValidateCustomer = "validate_customer"
	StepCheckStock       = "check_stock"
	StepPersist          = "persist"
	StepPublishCreated   = "publish_created"
	StepPay              = "pay"

	StepCompleted   = "completed"
	StepCancelled   = "cancelled"
	StepDeferred    = "deferred"
	StepRejected    = "rejected"
	StepUnavailable = "unavailable"
	StepFailed      = "failed"
)

// Outcome is the successful result class of a saga run.
type Outcome string

// Outcome constants. Rejections and payment failures are errors instead.
const (
	OutcomeCompleted Outcome = "completed"
	OutcomeDeferred  Outcome = "deferred"
)

// DeferredNote is returned to callers whose payment was queued.
const DeferredNote = "Payment queued, status PENDING_PAYMENT"

// OrderLine is one requested line item.
type OrderLine struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

// CreateOrderRequest is the saga input.
type CreateOrderRequest struct {
	CustomerID string      `json:"customerId"`
	Items      []OrderLine `json:"items"`
}

func (r *CreateOrderRequest) validate() error {
	if r == nil || strings.TrimSpace(r.CustomerID) == "" || len(r.Items) == 0 {
		return ErrValidationRejected("customerId and items are required")
	}
	for _, item := range r.Items {
		if strings.TrimSpace(item.ProductID) == "" || item.Quantity <= 0 {
			return ErrValidationRejected("customerId and items are required")
		}
	}
	return nil
}

// SagaResult is returned for completed and deferred runs.
type SagaResult struct {
	Order   *data.Order
	Outcome Outcome
	Note    string
}

// SagaUsecase orchestrates order creation: validate customer, check stock,
// persist, publish, pay. It owns every status change of the order made on
// the request path and settles deferred payments from payment events.
type SagaUsecase struct {
	orders      OrderRepo
	transitions TransitionLog
	customers   CustomerGateway
	inventory   InventoryGateway
	payments    PaymentGateway
	events      fabric.Publisher
	newID       func() string
	log         *pkglog.LogHelper
}

// NewSagaUsecase creates the order saga orchestrator.
func NewSagaUsecase(
	orders OrderRepo,
	transitions TransitionLog,
	customers CustomerGateway,
	inventory InventoryGateway,
	payments PaymentGateway,
	events fabric.Publisher,
	logger log.Logger,
) *SagaUsecase {
	return &SagaUsecase{
		orders:      orders,
		transitions: transitions,
		customers:   customers,
		inventory:   inventory,
		payments:    payments,
		events:      events,
		newID:       uuid.NewString,
		log:         pkglog.NewLogHelper(logger),
	}
}

// sagaRun tracks the current step of one order's saga. Transitions are
// held back until the order row exists, so runs that never persist leave
// no unreachable rows behind.
type sagaRun struct {
	uc        *SagaUsecase
	ctx       context.Context
	orderID   string
	step      string
	persisted bool
	pending   []*data.Transition
}

func (uc *SagaUsecase) begin(ctx context.Context, orderID string) *sagaRun {
	return &sagaRun{uc: uc, ctx: ctx, orderID: orderID, step: StepStart}
}

// advance records a step transition in the log and the transition table.
func (r *sagaRun) advance(to, reason string) {
	from := r.step
	r.step = to
	r.uc.log.Transition(r.orderID, from, to, reason)
	t := &data.Transition{
		OrderID: r.orderID,
		Step:    from,
		From:    from,
		To:      to,
		Reason:  reason,
	}
	if !r.persisted {
		r.pending = append(r.pending, t)
		return
	}
	r.uc.transitions.Append(r.ctx, t)
}

// markPersisted flushes the held transitions once the order row exists.
func (r *sagaRun) markPersisted() {
	r.persisted = true
	for _, t := range r.pending {
		r.uc.transitions.Append(r.ctx, t)
	}
	r.pending = nil
}

// CreateOrder runs the saga for a new order.
func (uc *SagaUsecase) CreateOrder(ctx context.Context, req *CreateOrderRequest) (*SagaResult, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	order := &data.Order{
		OrderID:    uc.newID(),
		CustomerID: req.CustomerID,
		Status:     data.OrderPending,
	}
	pkglog.BindOrder(ctx, order.OrderID, order.CustomerID)
	run := uc.begin(ctx, order.OrderID)

	run.advance(StepValidateCustomer, "")
	uc.log.Saga(ctx, StepValidateCustomer)
	if err := uc.customers.Validate(ctx, req.CustomerID); err != nil {
		uc.log.Warnw("msg", "customer validation failed", "customer_id", req.CustomerID, "error", err)
		run.advance(StepRejected, "invalid customer")
		return nil, ErrValidationRejected("Invalid customer")
	}

	run.advance(StepCheckStock, "")
	uc.log.Saga(ctx, StepCheckStock, "items", len(req.Items))
	items, total, err := uc.checkStock(ctx, req.Items)
	if err != nil {
		if IsDependencyUnavailable(err) {
			run.advance(StepUnavailable, err.Error())
		} else {
			run.advance(StepRejected, err.Error())
		}
		return nil, err
	}
	order.Items = items
	order.Total = total

	run.advance(StepPersist, "")
	if err := uc.orders.CreateOrder(ctx, order); err != nil {
		run.advance(StepFailed, "persist failed")
		return nil, fmt.Errorf("persist order %s: %w", order.OrderID, err)
	}
	run.markPersisted()

	run.advance(StepPublishCreated, "")
	uc.publish(ctx, fabric.ChannelOrder, fabric.EventOrderCreated, OrderCreatedEvent{
		OrderID:    order.OrderID,
		CustomerID: order.CustomerID,
		Items:      order.Items,
		Total:      order.Total,
	})

	run.advance(StepPay, "")
	uc.log.Saga(ctx, StepPay, "amount", order.Total.String())
	return uc.pay(ctx, run, order)
}

// checkStock looks every line up in order and stops at the first failure.
// Unit prices come from the inventory record.
func (uc *SagaUsecase) checkStock(ctx context.Context, lines []OrderLine) (data.OrderItems, decimal.Decimal, error) {
	items := make(data.OrderItems, 0, len(lines))
	total := decimal.Zero

	for _, line := range lines {
		product, err := uc.inventory.GetItem(ctx, line.ProductID)
		switch {
		case errors.Is(err, data.ErrProductNotFound):
			return nil, total, ErrValidationRejected(fmt.Sprintf("Product %s not found", line.ProductID))
		case retry.IsCircuitOpen(err):
			uc.log.Warnw("msg", "inventory circuit is open", "product_id", line.ProductID)
			return nil, total, ErrDependencyUnavailable("Inventory service overloaded")
		case err != nil:
			uc.log.Errorw("msg", "inventory lookup failed", "product_id", line.ProductID, "error", err)
			return nil, total, ErrDependencyUnavailable("Inventory service unavailable")
		case product.Stock < int64(line.Quantity):
			return nil, total, ErrValidationRejected(fmt.Sprintf("Insufficient stock for %s", line.ProductID))
		}

		items = append(items, data.OrderItem{
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
			UnitPrice: product.Price,
		})
		total = total.Add(product.Price.Mul(decimal.NewFromInt(int64(line.Quantity))))
	}
	return items, total, nil
}

// pay charges the order synchronously. A declined payment cancels the
// order; an unreachable payment service defers it.
func (uc *SagaUsecase) pay(ctx context.Context, run *sagaRun, order *data.Order) (*SagaResult, error) {
	result, err := uc.payments.Process(ctx, order.OrderID, order.Total)

	switch {
	case err == nil && result.Completed():
		settled := PaymentSettledEvent{
			OrderID:   order.OrderID,
			PaymentID: result.PaymentID,
			Amount:    order.Total,
		}
		if err := uc.setStatus(ctx, order, data.OrderPaid); err != nil {
			if errors.Is(err, data.ErrStatusConflict) {
				// the charge went through, so the payment ledger still records it
				uc.publish(ctx, fabric.ChannelPayment, fabric.EventPaymentCompleted, settled)
			}
			return nil, uc.payConflict(ctx, run, order, err)
		}
		uc.publish(ctx, fabric.ChannelPayment, fabric.EventPaymentCompleted, settled)
		run.advance(StepCompleted, "")
		uc.log.Infow("msg", "order paid successfully", "order_id", order.OrderID)
		return &SagaResult{Order: order, Outcome: OutcomeCompleted}, nil

	case err == nil:
		if err := uc.setStatus(ctx, order, data.OrderCancelled); err != nil {
			if errors.Is(err, data.ErrStatusConflict) {
				uc.log.Warnw("msg", "payment failed for order changed during payment", "order_id", order.OrderID)
				run.advance(StepCancelled, ReasonPaymentDeclined)
				return nil, ErrBusinessFailure("Payment failed")
			}
			run.advance(StepFailed, "status update failed")
			return nil, err
		}
		uc.publish(ctx, fabric.ChannelOrder, fabric.EventOrderCancelled, OrderCancelledEvent{
			OrderID:    order.OrderID,
			CustomerID: order.CustomerID,
			Reason:     ReasonPaymentDeclined,
			Items:      order.Items,
		})
		run.advance(StepCancelled, ReasonPaymentDeclined)
		uc.log.Warnw("msg", "payment failed for order", "order_id", order.OrderID)
		return nil, ErrBusinessFailure("Payment failed")

	default:
		reason := "payment service unavailable"
		if retry.IsCircuitOpen(err) {
			reason = "payment circuit open"
		}
		uc.log.Warnw("msg", "payment deferred", "order_id", order.OrderID, "reason", reason, "error", err)

		if err := uc.setStatus(ctx, order, data.OrderPendingPayment); err != nil {
			return nil, uc.payConflict(ctx, run, order, err)
		}
		uc.publish(ctx, fabric.ChannelOrder, fabric.EventPaymentPending, PaymentPendingEvent{
			OrderID: order.OrderID,
			Amount:  order.Total,
		})
		run.advance(StepDeferred, reason)
		return &SagaResult{Order: order, Outcome: OutcomeDeferred, Note: DeferredNote}, nil
	}
}

// payConflict classifies a failed status update after the payment call. A
// conflict means the order left pending while payment was in flight, which
// only a cancel can do.
func (uc *SagaUsecase) payConflict(ctx context.Context, run *sagaRun, order *data.Order, err error) error {
	if !errors.Is(err, data.ErrStatusConflict) {
		run.advance(StepFailed, "status update failed")
		return err
	}

	current, getErr := uc.GetOrder(ctx, order.OrderID)
	if getErr != nil {
		run.advance(StepFailed, "status update failed")
		return getErr
	}
	*order = *current

	uc.log.Warnw("msg", "order changed while payment was in progress", "order_id", order.OrderID, "status", order.Status)
	run.advance(StepCancelled, "cancelled during payment")
	return ErrOrderTerminal("Order was cancelled while payment was in progress").
		WithMetadata(map[string]string{"orderId": order.OrderID, "status": string(order.Status)})
}

// setStatus moves a freshly persisted order out of pending.
func (uc *SagaUsecase) setStatus(ctx context.Context, order *data.Order, to data.OrderStatus) error {
	if err := uc.orders.UpdateStatus(ctx, order.OrderID, to, data.OrderPending); err != nil {
		return fmt.Errorf("update order %s to %s: %w", order.OrderID, to, err)
	}
	order.Status = to
	return nil
}

// publish is fire-and-forget: the order outcome never depends on it.
func (uc *SagaUsecase) publish(ctx context.Context, channel, eventType string, payload any) {
	if err := uc.events.Publish(ctx, channel, eventType, payload); err != nil {
		uc.log.Errorw("msg", "failed to publish event", "channel", channel, "event_type", eventType, "error", err)
		return
	}
	uc.log.Event(channel, eventType)
}

// GetOrder returns an order or ErrOrderNotFound.
func (uc *SagaUsecase) GetOrder(ctx context.Context, orderID string) (*data.Order, error) {
	order, err := uc.orders.GetOrder(ctx, orderID)
	if err != nil {
		if pkgerrors.IsNotFoundError(err) {
			return nil, ErrOrderNotFound(orderID)
		}
		return nil, fmt.Errorf("get order %s: %w", orderID, err)
	}
	return order, nil
}

// ListTransitions returns the recorded saga steps of an order.
func (uc *SagaUsecase) ListTransitions(ctx context.Context, orderID string) ([]*data.Transition, error) {
	if _, err := uc.GetOrder(ctx, orderID); err != nil {
		return nil, err
	}
	return uc.transitions.List(ctx, orderID)
}

// CancelOrder cancels a pending or payment-pending order. Cancelling an
// already cancelled order returns it unchanged without a new event.
func (uc *SagaUsecase) CancelOrder(ctx context.Context, orderID, reason string) (*data.Order, error) {
	if reason == "" {
		reason = ReasonUserCancelled
	}

	order, err := uc.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	for attempt := 0; ; attempt++ {
		switch order.Status {
		case data.OrderCancelled:
			return order, nil
		case data.OrderPaid, data.OrderShipped, data.OrderDelivered:
			return nil, ErrOrderTerminal("order is terminal")
		}

		from := order.Status
		err = uc.orders.UpdateStatus(ctx, orderID, data.OrderCancelled, data.OrderPending, data.OrderPendingPayment)
		if err == nil {
			order.Status = data.OrderCancelled
			uc.log.Transition(orderID, string(from), string(data.OrderCancelled), reason)
			uc.transitions.Append(ctx, &data.Transition{
				OrderID: orderID,
				Step:    "cancel",
				From:    string(from),
				To:      string(data.OrderCancelled),
				Reason:  reason,
			})
			uc.publish(ctx, fabric.ChannelOrder, fabric.EventOrderCancelled, OrderCancelledEvent{
				OrderID:    orderID,
				CustomerID: order.CustomerID,
				Reason:     reason,
				Items:      order.Items,
			})
			return order, nil
		}
		if !errors.Is(err, data.ErrStatusConflict) || attempt > 0 {
			return nil, fmt.Errorf("cancel order %s: %w", orderID, err)
		}

		// the status moved underneath us; decide again on the fresh row
		if order, err = uc.GetOrder(ctx, orderID); err != nil {
			return nil, err
		}
	}
}

// SettleDeferredPayment applies a payment outcome to an order that is
// still waiting in PENDING_PAYMENT. Orders in any other status are left
// alone. It never retries the payment itself.
func (uc *SagaUsecase) SettleDeferredPayment(ctx context.Context, event fabric.Event) error {
	var payload PaymentSettledEvent
	if err := event.Decode(&payload); err != nil {
		return err
	}

	var to data.OrderStatus
	switch event.EventType {
	case fabric.EventPaymentCompleted:
		to = data.OrderPaid
	case fabric.EventPaymentFailed:
		to = data.OrderCancelled
	default:
		return nil
	}

	err := uc.orders.UpdateStatus(ctx, payload.OrderID, to, data.OrderPendingPayment)
	if errors.Is(err, data.ErrStatusConflict) {
		uc.log.Debugw("msg", "payment event for order not awaiting payment", "order_id", payload.OrderID, "event_type", event.EventType)
		return nil
	}
	if err != nil {
		return fmt.Errorf("settle deferred payment for %s: %w", payload.OrderID, err)
	}

	uc.log.Transition(payload.OrderID, string(data.OrderPendingPayment), string(to), event.EventType)
	uc.transitions.Append(ctx, &data.Transition{
		OrderID: payload.OrderID,
		Step:    "settle",
		From:    string(data.OrderPendingPayment),
		To:      string(to),
		Reason:  event.EventType,
	})

	if to == data.OrderCancelled {
		cancelled := OrderCancelledEvent{OrderID: payload.OrderID, Reason: ReasonPaymentDeclined}
		if order, err := uc.orders.GetOrder(ctx, payload.OrderID); err == nil {
			cancelled.CustomerID = order.CustomerID
			cancelled.Items = order.Items
		}
		uc.publish(ctx, fabric.ChannelOrder, fabric.EventOrderCancelled, cancelled)
	}
	return nil
}

// Settlement exposes SettleDeferredPayment as a reactor on payment_exchange.
func (uc *SagaUsecase) Settlement() Reactor {
	return settlementReactor{uc: uc}
}

type settlementReactor struct {
	uc *SagaUsecase
}

func (settlementReactor) Name() string { return "order-settlement" }

func (settlementReactor) Channels() []string { return []string{fabric.ChannelPayment} }

func (s settlementReactor) Handle(ctx context.Context, event fabric.Event) error {
	return s.uc.SettleDeferredPayment(ctx, event)
}
