package biz

import (
	"context"
	"fmt"

	"OrderSaga/internal/data"
	pkgerrors "OrderSaga/pkg/errors"
	"OrderSaga/pkg/fabric"
	pkglog "OrderSaga/pkg/log"

	"github.com/go-kratos/kratos/v2/log"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/shopspring/decimal"
)

// chargedCacheSize bounds how many recently charged orders are remembered.
const chargedCacheSize = 4096

// PaymentReactor keeps the payment ledger and charges deferred orders.
type PaymentReactor struct {
	repo    PaymentRepo
	gateway PaymentGateway
	events  fabric.Publisher
	charged *lru.Cache[string, struct{}]
	log     *pkglog.LogHelper
}

// NewPaymentReactor creates the payment reactor.
func NewPaymentReactor(repo PaymentRepo, gateway PaymentGateway, events fabric.Publisher, logger log.Logger) (*PaymentReactor, error) {
	charged, err := lru.New[string, struct{}](chargedCacheSize)
	if err != nil {
		return nil, fmt.Errorf("create charged-order cache: %w", err)
	}
	return &PaymentReactor{
		repo:    repo,
		gateway: gateway,
		events:  events,
		charged: charged,
		log:     pkglog.NewLogHelper(logger),
	}, nil
}

// Name implements Reactor.
func (r *PaymentReactor) Name() string { return "payment" }

// Channels implements Reactor.
func (r *PaymentReactor) Channels() []string {
	return []string{fabric.ChannelOrder, fabric.ChannelPayment}
}

// Handle implements Reactor.
func (r *PaymentReactor) Handle(ctx context.Context, event fabric.Event) error {
	switch event.EventType {
	case fabric.EventOrderCreated:
		var payload OrderCreatedEvent
		if err := event.Decode(&payload); err != nil {
			return err
		}
		if err := r.repo.RecordInitiated(ctx, payload.OrderID, payload.Total); err != nil {
			return fmt.Errorf("record payment for %s: %w", payload.OrderID, err)
		}
		r.log.Reactor(r.Name(), event.EventType, payload.OrderID, "status", data.PaymentInitiated)
		return nil

	case fabric.EventPaymentPending:
		var payload PaymentPendingEvent
		if err := event.Decode(&payload); err != nil {
			return err
		}
		return r.chargeDeferred(ctx, payload.OrderID, payload.Amount)

	case fabric.EventPaymentCompleted:
		var payload PaymentSettledEvent
		if err := event.Decode(&payload); err != nil {
			return err
		}
		if err := r.repo.Settle(ctx, payload.OrderID, payload.PaymentID, payload.Amount, data.PaymentCompleted); err != nil {
			return fmt.Errorf("settle payment for %s: %w", payload.OrderID, err)
		}
		r.log.Reactor(r.Name(), event.EventType, payload.OrderID, "status", data.PaymentCompleted)
		return nil

	case fabric.EventOrderCancelled:
		var payload OrderCancelledEvent
		if err := event.Decode(&payload); err != nil {
			return err
		}
		if payload.Reason != ReasonPaymentDeclined {
			return nil
		}
		return r.markFailed(ctx, payload.OrderID)
	}
	return nil
}

// chargeDeferred charges a PENDING_PAYMENT order at most once per process.
func (r *PaymentReactor) chargeDeferred(ctx context.Context, orderID string, amount decimal.Decimal) error {
	if seen, _ := r.charged.ContainsOrAdd(orderID, struct{}{}); seen {
		r.log.Infow("msg", "duplicate payment_pending ignored", "order_id", orderID)
		return nil
	}
	if p, err := r.repo.GetByOrder(ctx, orderID); err == nil && p.Status != data.PaymentInitiated {
		r.log.Infow("msg", "payment already settled, not charging again", "order_id", orderID, "status", p.Status)
		return nil
	}

	result, err := r.gateway.Process(ctx, orderID, amount)
	if err != nil {
		// forget the order so a later payment_pending may try again
		r.charged.Remove(orderID)
		return fmt.Errorf("charge deferred order %s: %w", orderID, err)
	}

	status, eventType := data.PaymentFailed, fabric.EventPaymentFailed
	if result.Completed() {
		status, eventType = data.PaymentCompleted, fabric.EventPaymentCompleted
	}
	if err := r.repo.Settle(ctx, orderID, result.PaymentID, amount, status); err != nil {
		return fmt.Errorf("settle payment for %s: %w", orderID, err)
	}

	if err := r.events.Publish(ctx, fabric.ChannelPayment, eventType, PaymentSettledEvent{
		OrderID:   orderID,
		PaymentID: result.PaymentID,
		Amount:    amount,
	}); err != nil {
		r.log.Warnw("msg", "failed to publish payment outcome", "order_id", orderID, "error", err)
	}
	r.log.Reactor(r.Name(), fabric.EventPaymentPending, orderID, "status", status)
	return nil
}

func (r *PaymentReactor) markFailed(ctx context.Context, orderID string) error {
	p, err := r.repo.GetByOrder(ctx, orderID)
	if pkgerrors.IsNotFoundError(err) {
		r.log.Debugw("msg", "no payment recorded for cancelled order", "order_id", orderID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("load payment for %s: %w", orderID, err)
	}
	if p.Status == data.PaymentFailed {
		return nil
	}
	if err := r.repo.Settle(ctx, orderID, p.PaymentID, p.Amount, data.PaymentFailed); err != nil {
		return fmt.Errorf("settle payment for %s: %w", orderID, err)
	}
	r.log.Reactor(r.Name(), fabric.EventOrderCancelled, orderID, "status", data.PaymentFailed)
	return nil
}
