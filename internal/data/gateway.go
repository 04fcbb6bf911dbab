package data

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"OrderSaga/internal/conf"
	"OrderSaga/pkg/circuitbreaker"
	"OrderSaga/pkg/httpclient"
	"OrderSaga/pkg/retry"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/shopspring/decimal"
)

var (
	// ErrProductNotFound is returned when the inventory service has no record for a SKU.
	ErrProductNotFound = errors.New("product not found")
	// ErrCustomerNotFound is returned when the customer service has no record for an id.
	ErrCustomerNotFound = errors.New("customer not found")
)

// dependency bundles what every gateway needs to call one downstream target.
type dependency struct {
	name    string
	baseURL string
	client  *http.Client
	opts    retry.Options
	exec    *retry.Executor
	logger  *log.Helper
}

func newDependency(name string, c *conf.Dependency, fallbackTimeout time.Duration, exec *retry.Executor, logger log.Logger) (*dependency, error) {
	if c == nil || c.BaseUrl == "" {
		return nil, fmt.Errorf("dependency %s: base url is required", name)
	}
	client, err := httpclient.New(c.ProxyUrl)
	if err != nil {
		return nil, fmt.Errorf("dependency %s: %w", name, err)
	}
	return &dependency{
		name:    name,
		baseURL: c.BaseUrl,
		client:  client,
		opts:    callOptions(c, fallbackTimeout),
		exec:    exec,
		logger:  log.NewHelper(log.With(logger, "dependency", name)),
	}, nil
}

// callOptions converts a dependency's configuration into executor options.
// Unset fields keep the executor defaults.
func callOptions(c *conf.Dependency, fallbackTimeout time.Duration) retry.Options {
	opts := retry.DefaultOptions
	opts.Timeout = fallbackTimeout
	if c == nil {
		return opts
	}
	if c.Timeout != nil && c.Timeout.AsDuration() > 0 {
		opts.Timeout = c.Timeout.AsDuration()
	}
	if r := c.Retry; r != nil {
		if r.MaxAttempts > 0 {
			opts.MaxAttempts = int(r.MaxAttempts)
		}
		if r.InitialBackoff != nil && r.InitialBackoff.AsDuration() > 0 {
			opts.InitialBackoff = r.InitialBackoff.AsDuration()
		}
		if r.JitterRatio > 0 {
			opts.JitterRatio = r.JitterRatio
		}
	}
	if b := c.Breaker; b != nil {
		cfg := circuitbreaker.DefaultConfig
		if b.FailureThresholdRatio > 0 {
			cfg.FailureThresholdRatio = b.FailureThresholdRatio
		}
		if b.MinRequests > 0 {
			cfg.MinRequests = int(b.MinRequests)
		}
		if b.OpenDuration != nil && b.OpenDuration.AsDuration() > 0 {
			cfg.OpenDuration = b.OpenDuration.AsDuration()
		}
		if b.SuccessesToClose > 0 {
			cfg.SuccessesToClose = int(b.SuccessesToClose)
		}
		opts.Breaker = cfg
	}
	return opts
}

// do runs one JSON exchange through the executor. The breaker target is the base URL.
func (d *dependency) do(ctx context.Context, method, path string, in, out any) error {
	target := httpclient.JoinURL(d.baseURL, path)
	err := d.exec.Execute(ctx, d.baseURL, d.opts, func(ctx context.Context) error {
		return httpclient.DoJSON(ctx, d.client, method, target, in, out)
	})
	if err != nil {
		d.logger.Debugw("msg", "dependency call failed", "method", method, "url", target, "error", err)
	}
	return err
}

// CustomerGateway implements biz.CustomerGateway over the customer service.
type CustomerGateway struct {
	dep *dependency
}

// NewCustomerGateway creates the customer service gateway.
func NewCustomerGateway(c *conf.Dependencies, exec *retry.Executor, logger log.Logger) (*CustomerGateway, error) {
	dep, err := newDependency("customer", c.GetCustomer(), 3*time.Second, exec, logger)
	if err != nil {
		return nil, err
	}
	return &CustomerGateway{dep: dep}, nil
}

// Validate checks that the customer exists. A 404 is ErrCustomerNotFound;
// everything else is the executor's error.
func (g *CustomerGateway) Validate(ctx context.Context, customerID string) error {
	var record map[string]any
	err := g.dep.do(ctx, http.MethodGet, "/api/customers/"+url.PathEscape(customerID), nil, &record)
	switch {
	case retry.StatusCode(err) == http.StatusNotFound, errors.Is(err, httpclient.ErrEmptyBody):
		return fmt.Errorf("%w: %s", ErrCustomerNotFound, customerID)
	case err != nil:
		return err
	case record == nil:
		return fmt.Errorf("%w: %s", ErrCustomerNotFound, customerID)
	}
	return nil
}

// InventoryItem is the inventory service's view of a product.
type InventoryItem struct {
	SKU   string          `json:"sku"`
	Name  string          `json:"name"`
	Stock int64           `json:"stock"`
	Price decimal.Decimal `json:"price"`
}

// InventoryGateway implements biz.InventoryGateway over the inventory service.
type InventoryGateway struct {
	dep    *dependency
	ledger *StockLedger
}

// NewInventoryGateway creates the inventory service gateway. Successful
// lookups seed the stock ledger.
func NewInventoryGateway(c *conf.Dependencies, exec *retry.Executor, ledger *StockLedger, logger log.Logger) (*InventoryGateway, error) {
	dep, err := newDependency("inventory", c.GetInventory(), 3*time.Second, exec, logger)
	if err != nil {
		return nil, err
	}
	return &InventoryGateway{dep: dep, ledger: ledger}, nil
}

// GetItem looks up a SKU. A 404 or a null record is ErrProductNotFound.
func (g *InventoryGateway) GetItem(ctx context.Context, sku string) (*InventoryItem, error) {
	var item *InventoryItem
	err := g.dep.do(ctx, http.MethodGet, "/api/items/"+url.PathEscape(sku), nil, &item)
	switch {
	case retry.StatusCode(err) == http.StatusNotFound, errors.Is(err, httpclient.ErrEmptyBody):
		return nil, fmt.Errorf("%w: %s", ErrProductNotFound, sku)
	case err != nil:
		return nil, err
	case item == nil:
		return nil, fmt.Errorf("%w: %s", ErrProductNotFound, sku)
	}
	if item.SKU == "" {
		item.SKU = sku
	}

	if g.ledger != nil {
		if err := g.ledger.Observe(ctx, item.SKU, item.Stock); err != nil {
			g.dep.logger.Warnw("msg", "failed to seed stock ledger", "sku", item.SKU, "error", err)
		}
	}
	return item, nil
}

// PaymentResult is the business outcome reported by the payment service.
type PaymentResult struct {
	Status    PaymentStatus `json:"status"`
	PaymentID string        `json:"paymentId"`
}

// Completed reports whether the payment went through.
func (r *PaymentResult) Completed() bool {
	return r != nil && r.Status == PaymentCompleted
}

type paymentRequest struct {
	OrderID string      `json:"orderId"`
	Amount  json.Number `json:"amount"`
}

// PaymentGateway implements biz.PaymentGateway over the payment service.
type PaymentGateway struct {
	dep *dependency
}

// NewPaymentGateway creates the payment service gateway.
func NewPaymentGateway(c *conf.Dependencies, exec *retry.Executor, logger log.Logger) (*PaymentGateway, error) {
	dep, err := newDependency("payment", c.GetPayment(), 5*time.Second, exec, logger)
	if err != nil {
		return nil, err
	}
	return &PaymentGateway{dep: dep}, nil
}

// Process charges an order. A declined payment is a result, not an error:
// the payment service may answer 402 with a "failed" body. Any status other
// than "completed" is treated as failed.
func (g *PaymentGateway) Process(ctx context.Context, orderID string, amount decimal.Decimal) (*PaymentResult, error) {
	req := paymentRequest{OrderID: orderID, Amount: json.Number(amount.StringFixed(2))}

	var result PaymentResult
	err := g.dep.do(ctx, http.MethodPost, "/api/payments/process", req, &result)
	if err != nil {
		declined, ok := declinedResult(err)
		if !ok {
			return nil, err
		}
		result = *declined
	}

	if result.Status != PaymentCompleted {
		g.dep.logger.Infow("msg", "payment declined", "order_id", orderID, "status", result.Status)
		result.Status = PaymentFailed
	}
	return &result, nil
}

func declinedResult(err error) (*PaymentResult, bool) {
	var statusErr *retry.StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusPaymentRequired {
		return nil, false
	}
	var result PaymentResult
	if jsonErr := json.Unmarshal(statusErr.Body, &result); jsonErr != nil || result.Status != PaymentFailed {
		return nil, false
	}
	return &result, true
}
