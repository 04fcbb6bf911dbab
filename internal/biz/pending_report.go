package biz

import (
	"context"
	"fmt"
	"time"

	pkglog "OrderSaga/pkg/log"

	"github.com/go-kratos/kratos/v2/log"
)

// pendingReportLimit caps how many stale orders one report lists.
const pendingReportLimit = 100

// PendingPaymentReporter surfaces orders stuck in PENDING_PAYMENT. Deferred
// payments are published once and never redelivered, so an order whose
// payment_pending event was missed stays pending until an operator acts.
type PendingPaymentReporter struct {
	orders OrderRepo
	now    func() time.Time
	log    *pkglog.LogHelper
}

// NewPendingPaymentReporter creates the reporter.
func NewPendingPaymentReporter(orders OrderRepo, logger log.Logger) *PendingPaymentReporter {
	return &PendingPaymentReporter{orders: orders, now: time.Now, log: pkglog.NewLogHelper(logger)}
}

// Report logs PENDING_PAYMENT orders not updated for staleAfter and returns
// their ids, oldest first.
func (r *PendingPaymentReporter) Report(ctx context.Context, staleAfter time.Duration) ([]string, error) {
	cutoff := r.now().Add(-staleAfter)
	orders, err := r.orders.ListStalePendingPayments(ctx, cutoff, pendingReportLimit)
	if err != nil {
		return nil, fmt.Errorf("list stale pending payments: %w", err)
	}

	ids := make([]string, 0, len(orders))
	for _, o := range orders {
		ids = append(ids, o.OrderID)
	}

	if len(ids) == 0 {
		r.log.Scheduler("no stale pending payments", "stale_after", staleAfter.String())
		return ids, nil
	}
	r.log.Warnw("msg", "orders stuck in PENDING_PAYMENT",
		"type", "scheduler",
		"count", len(ids),
		"stale_after", staleAfter.String(),
		"oldest_updated_at", orders[0].UpdatedAt,
		"order_ids", ids)
	return ids, nil
}
