package biz

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"OrderSaga/internal/data"
	pkgerrors "OrderSaga/pkg/errors"
	"OrderSaga/pkg/fabric"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"gorm.io/gorm"
)

// MockCustomerGateway is a mock implementation of CustomerGateway for testing.
type MockCustomerGateway struct {
	mock.Mock
}

func (m *MockCustomerGateway) Validate(ctx context.Context, customerID string) error {
	args := m.Called(ctx, customerID)
	return args.Error(0)
}

// MockInventoryGateway is a mock implementation of InventoryGateway for testing.
type MockInventoryGateway struct {
	mock.Mock
}

func (m *MockInventoryGateway) GetItem(ctx context.Context, sku string) (*data.InventoryItem, error) {
	args := m.Called(ctx, sku)
	if item := args.Get(0); item != nil {
		return item.(*data.InventoryItem), args.Error(1)
	}
	return nil, args.Error(1)
}

// MockPaymentGateway is a mock implementation of PaymentGateway for testing.
type MockPaymentGateway struct {
	mock.Mock
}

func (m *MockPaymentGateway) Process(ctx context.Context, orderID string, amount decimal.Decimal) (*data.PaymentResult, error) {
	args := m.Called(ctx, orderID, amount)
	if result := args.Get(0); result != nil {
		return result.(*data.PaymentResult), args.Error(1)
	}
	return nil, args.Error(1)
}

// MockStockLedger is a mock implementation of StockLedger for testing.
type MockStockLedger struct {
	mock.Mock
}

func (m *MockStockLedger) Adjust(ctx context.Context, sku string, delta int64) (int64, error) {
	args := m.Called(ctx, sku, delta)
	return args.Get(0).(int64), args.Error(1)
}

// memOrderRepo is an in-memory OrderRepo honouring the conditional
// status update contract of data.OrderRepo.
type memOrderRepo struct {
	mu        sync.Mutex
	orders    map[string]*data.Order
	createErr error
}

func newMemOrderRepo() *memOrderRepo {
	return &memOrderRepo{orders: make(map[string]*data.Order)}
}

func (r *memOrderRepo) CreateOrder(_ context.Context, order *data.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	cp := *order
	cp.UpdatedAt = time.Now()
	r.orders[order.OrderID] = &cp
	return nil
}

func (r *memOrderRepo) GetOrder(_ context.Context, orderID string) (*data.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[orderID]
	if !ok {
		return nil, pkgerrors.ClassifyDBError(gorm.ErrRecordNotFound)
	}
	cp := *o
	return &cp, nil
}

func (r *memOrderRepo) UpdateStatus(_ context.Context, orderID string, to data.OrderStatus, from ...data.OrderStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[orderID]
	if !ok {
		return fmt.Errorf("order %s to %s: %w", orderID, to, data.ErrStatusConflict)
	}
	if len(from) > 0 {
		matched := false
		for _, f := range from {
			if o.Status == f {
				matched = true
				break
			}
		}
		if !matched {
			return fmt.Errorf("order %s to %s: %w", orderID, to, data.ErrStatusConflict)
		}
	}
	o.Status = to
	o.UpdatedAt = time.Now()
	return nil
}

func (r *memOrderRepo) ListStalePendingPayments(_ context.Context, cutoff time.Time, limit int) ([]*data.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*data.Order
	for _, o := range r.orders {
		if o.Status == data.OrderPendingPayment && o.UpdatedAt.Before(cutoff) && len(out) < limit {
			cp := *o
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *memOrderRepo) status(orderID string) data.OrderStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	if o, ok := r.orders[orderID]; ok {
		return o.Status
	}
	return ""
}

func (r *memOrderRepo) put(o *data.Order) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *o
	r.orders[o.OrderID] = &cp
}

// memTransitionLog records transitions synchronously.
type memTransitionLog struct {
	mu   sync.Mutex
	rows []*data.Transition
}

func (l *memTransitionLog) Append(_ context.Context, t *data.Transition) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rows = append(l.rows, t)
}

func (l *memTransitionLog) List(_ context.Context, orderID string) ([]*data.Transition, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []*data.Transition
	for _, t := range l.rows {
		if t.OrderID == orderID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (l *memTransitionLog) steps(orderID string) []string {
	rows, _ := l.List(context.Background(), orderID)
	out := make([]string, 0, len(rows))
	for _, t := range rows {
		out = append(out, t.To)
	}
	return out
}

// memPaymentRepo is an in-memory PaymentRepo.
type memPaymentRepo struct {
	mu       sync.Mutex
	payments map[string]*data.Payment
}

func newMemPaymentRepo() *memPaymentRepo {
	return &memPaymentRepo{payments: make(map[string]*data.Payment)}
}

func (r *memPaymentRepo) RecordInitiated(_ context.Context, orderID string, amount decimal.Decimal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.payments[orderID]; !ok {
		r.payments[orderID] = &data.Payment{OrderID: orderID, Amount: amount, Method: "card", Status: data.PaymentInitiated}
	}
	return nil
}

func (r *memPaymentRepo) Settle(_ context.Context, orderID, paymentID string, amount decimal.Decimal, status data.PaymentStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[orderID]
	if !ok {
		r.payments[orderID] = &data.Payment{OrderID: orderID, PaymentID: paymentID, Amount: amount, Method: "card", Status: status}
		return nil
	}
	p.PaymentID = paymentID
	p.Status = status
	return nil
}

func (r *memPaymentRepo) GetByOrder(_ context.Context, orderID string) (*data.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[orderID]
	if !ok {
		return nil, pkgerrors.ClassifyDBError(gorm.ErrRecordNotFound)
	}
	cp := *p
	return &cp, nil
}

// memShipmentRepo is an in-memory ShipmentRepo.
type memShipmentRepo struct {
	mu        sync.Mutex
	shipments map[string]*data.Shipment
}

func newMemShipmentRepo() *memShipmentRepo {
	return &memShipmentRepo{shipments: make(map[string]*data.Shipment)}
}

func (r *memShipmentRepo) CreateForOrder(_ context.Context, orderID string) (*data.Shipment, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.shipments[orderID]; ok {
		return s, false, nil
	}
	s := &data.Shipment{ShipmentID: "s-" + orderID, OrderID: orderID, Status: data.ShipmentCreated}
	r.shipments[orderID] = s
	return s, true, nil
}

func (r *memShipmentRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.shipments)
}

// memNotificationRepo is an in-memory NotificationRepo.
type memNotificationRepo struct {
	mu   sync.Mutex
	rows []*data.Notification
}

func (r *memNotificationRepo) Create(_ context.Context, n *data.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows = append(r.rows, n)
	return nil
}

func (r *memNotificationRepo) messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.rows))
	for _, n := range r.rows {
		out = append(out, n.Message)
	}
	return out
}

// recorder collects every event published on the given channels.
type recorder struct {
	mu     sync.Mutex
	events []fabric.Event
	wg     sync.WaitGroup
}

func record(t *testing.T, bus *fabric.Bus, channels ...string) *recorder {
	t.Helper()
	rec := &recorder{}
	for _, ch := range channels {
		sub := bus.Subscribe(ch)
		rec.wg.Add(1)
		go func() {
			defer rec.wg.Done()
			for ev := range sub.C() {
				rec.mu.Lock()
				rec.events = append(rec.events, ev)
				rec.mu.Unlock()
			}
		}()
	}
	return rec
}

func (r *recorder) count(eventType string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.EventType == eventType {
			n++
		}
	}
	return n
}

func (r *recorder) first(eventType string) (fabric.Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ev := range r.events {
		if ev.EventType == eventType {
			return ev, true
		}
	}
	return fabric.Event{}, false
}

func newTestBus(t *testing.T) *fabric.Bus {
	t.Helper()
	bus := fabric.NewBus(log.DefaultLogger)
	t.Cleanup(func() { _ = bus.Close() })
	return bus
}

func product(sku string, stock int64, price string) *data.InventoryItem {
	return &data.InventoryItem{SKU: sku, Name: sku, Stock: stock, Price: decimal.RequireFromString(price)}
}

// publishFunc adapts a function to fabric.Publisher.
type publishFunc func(ctx context.Context, channel, eventType string, payload any) error

func (f publishFunc) Publish(ctx context.Context, channel, eventType string, payload any) error {
	return f(ctx, channel, eventType, payload)
}

// quietT swallows assertion output so mock call counts can be polled.
type quietT struct{}

func (quietT) Logf(string, ...any)   {}
func (quietT) Errorf(string, ...any) {}
func (quietT) FailNow()              {}

// called reports whether m has seen exactly n calls of method. It takes
// the mock's lock, unlike reading m.Calls directly.
func called(m *mock.Mock, method string, n int) bool {
	return m.AssertNumberOfCalls(quietT{}, method, n)
}
