package biz

import (
	"context"
	"encoding/json"
	"fmt"

	"OrderSaga/internal/data"
	"OrderSaga/pkg/fabric"
	pkglog "OrderSaga/pkg/log"

	"github.com/go-kratos/kratos/v2/log"
)

// notificationTemplates maps handled events to a notification type and message format.
var notificationTemplates = map[string]struct {
	kind   string
	format string
}{
	fabric.EventOrderCreated:     {kind: "order", format: "Order %s created"},
	fabric.EventOrderCancelled:   {kind: "order", format: "Order %s cancelled"},
	fabric.EventPaymentCompleted: {kind: "payment", format: "Payment received for order %s"},
	fabric.EventShipmentCreated:  {kind: "shipment", format: "Shipment started for order %s"},
}

// NotifierReactor stores a notification for the customer-facing events.
type NotifierReactor struct {
	repo NotificationRepo
	log  *pkglog.LogHelper
}

// NewNotifierReactor creates the notifier.
func NewNotifierReactor(repo NotificationRepo, logger log.Logger) *NotifierReactor {
	return &NotifierReactor{repo: repo, log: pkglog.NewLogHelper(logger)}
}

// Name implements Reactor.
func (r *NotifierReactor) Name() string { return "notifier" }

// Channels implements Reactor.
func (r *NotifierReactor) Channels() []string {
	return []string{fabric.ChannelOrder, fabric.ChannelPayment, fabric.ChannelNotification}
}

// Handle implements Reactor.
func (r *NotifierReactor) Handle(ctx context.Context, event fabric.Event) error {
	tmpl, ok := notificationTemplates[event.EventType]
	if !ok {
		return nil
	}

	var payload struct {
		OrderID    string `json:"orderId"`
		CustomerID string `json:"customerId"`
		Email      string `json:"email"`
	}
	if err := event.Decode(&payload); err != nil {
		return err
	}

	n := &data.Notification{
		Type:     tmpl.kind,
		To:       recipient(payload.Email, payload.CustomerID, payload.OrderID),
		Message:  fmt.Sprintf(tmpl.format, payload.OrderID),
		Metadata: json.RawMessage(event.Payload),
	}
	if err := r.repo.Create(ctx, n); err != nil {
		return fmt.Errorf("save %s notification for %s: %w", tmpl.kind, payload.OrderID, err)
	}
	r.log.Reactor(r.Name(), event.EventType, payload.OrderID, "to", n.To)
	return nil
}

func recipient(candidates ...string) string {
	for _, c := range candidates {
		if c != "" {
			return c
		}
	}
	return ""
}
