package data

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"OrderSaga/internal/conf"
	"OrderSaga/pkg/circuitbreaker"
	"OrderSaga/pkg/retry"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/durationpb"
)

func newTestExecutor() *retry.Executor {
	registry := circuitbreaker.NewRegistry(log.DefaultLogger)
	return retry.NewExecutor(registry, log.DefaultLogger,
		retry.WithSleep(func(context.Context, time.Duration) error { return nil }))
}

func dependenciesFor(url string) *conf.Dependencies {
	dep := func() *conf.Dependency {
		return &conf.Dependency{
			BaseUrl: url,
			Retry:   &conf.Dependency_Retry{MaxAttempts: 3, InitialBackoff: durationpb.New(time.Millisecond)},
		}
	}
	return &conf.Dependencies{Customer: dep(), Inventory: dep(), Payment: dep()}
}

func TestCallOptions(t *testing.T) {
	t.Run("nil config uses defaults with fallback timeout", func(t *testing.T) {
		opts := callOptions(nil, 5*time.Second)
		assert.Equal(t, retry.DefaultOptions.MaxAttempts, opts.MaxAttempts)
		assert.Equal(t, 5*time.Second, opts.Timeout)
		assert.Equal(t, circuitbreaker.DefaultConfig, opts.Breaker)
	})

	t.Run("configured values override", func(t *testing.T) {
		opts := callOptions(&conf.Dependency{
			Timeout: durationpb.New(2 * time.Second),
			Retry: &conf.Dependency_Retry{
				MaxAttempts:    2,
				InitialBackoff: durationpb.New(100 * time.Millisecond),
				JitterRatio:    0.1,
			},
			Breaker: &conf.Dependency_Breaker{
				FailureThresholdRatio: 0.25,
				MinRequests:           4,
				OpenDuration:          durationpb.New(time.Minute),
				SuccessesToClose:      2,
			},
		}, 3*time.Second)

		assert.Equal(t, 2, opts.MaxAttempts)
		assert.Equal(t, 2*time.Second, opts.Timeout)
		assert.Equal(t, 100*time.Millisecond, opts.InitialBackoff)
		assert.InDelta(t, 0.1, opts.JitterRatio, 1e-9)
		assert.Equal(t, circuitbreaker.Config{
			FailureThresholdRatio: 0.25,
			MinRequests:           4,
			OpenDuration:          time.Minute,
			SuccessesToClose:      2,
		}, opts.Breaker)
	})
}

func TestNewGateways_RequireBaseURL(t *testing.T) {
	exec := newTestExecutor()

	_, err := NewCustomerGateway(&conf.Dependencies{}, exec, log.DefaultLogger)
	assert.ErrorContains(t, err, "customer")

	_, err = NewInventoryGateway(nil, exec, nil, log.DefaultLogger)
	assert.ErrorContains(t, err, "inventory")

	_, err = NewPaymentGateway(&conf.Dependencies{}, exec, log.DefaultLogger)
	assert.ErrorContains(t, err, "payment")
}

func TestCustomerGateway_Validate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/customers/c-1":
			_, _ = io.WriteString(w, `{"id":"c-1","email":"ada@example.com"}`)
		case "/api/customers/null":
			_, _ = io.WriteString(w, `null`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	gw, err := NewCustomerGateway(dependenciesFor(srv.URL), newTestExecutor(), log.DefaultLogger)
	require.NoError(t, err)
	ctx := context.Background()

	assert.NoError(t, gw.Validate(ctx, "c-1"))
	assert.ErrorIs(t, gw.Validate(ctx, "c-404"), ErrCustomerNotFound)
	assert.ErrorIs(t, gw.Validate(ctx, "null"), ErrCustomerNotFound)
}

func TestCustomerGateway_ServerErrorIsRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	gw, err := NewCustomerGateway(dependenciesFor(srv.URL), newTestExecutor(), log.DefaultLogger)
	require.NoError(t, err)

	err = gw.Validate(context.Background(), "c-1")
	require.Error(t, err)
	assert.Equal(t, http.StatusBadGateway, retry.StatusCode(err))
	assert.NotErrorIs(t, err, ErrCustomerNotFound)
	assert.Equal(t, int32(3), calls.Load())
}

func TestInventoryGateway_GetItem(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/items/SKU-1":
			_, _ = io.WriteString(w, `{"sku":"SKU-1","name":"Widget","stock":7,"price":12.5}`)
		case "/api/items/SKU-NULL":
			_, _ = io.WriteString(w, `null`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	ledger := NewStockLedger(&Data{redisClient: rdb}, log.DefaultLogger)

	gw, err := NewInventoryGateway(dependenciesFor(srv.URL), newTestExecutor(), ledger, log.DefaultLogger)
	require.NoError(t, err)
	ctx := context.Background()

	item, err := gw.GetItem(ctx, "SKU-1")
	require.NoError(t, err)
	assert.Equal(t, "Widget", item.Name)
	assert.Equal(t, int64(7), item.Stock)
	assert.True(t, decimal.RequireFromString("12.5").Equal(item.Price))

	// lookup seeds the ledger
	level, err := ledger.Level(ctx, "SKU-1")
	require.NoError(t, err)
	assert.Equal(t, int64(7), level)

	_, err = gw.GetItem(ctx, "SKU-404")
	assert.ErrorIs(t, err, ErrProductNotFound)

	_, err = gw.GetItem(ctx, "SKU-NULL")
	assert.ErrorIs(t, err, ErrProductNotFound)
}

func TestInventoryGateway_OpenCircuit(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	deps := dependenciesFor(srv.URL)
	deps.Inventory.Retry.MaxAttempts = 1
	deps.Inventory.Breaker = &conf.Dependency_Breaker{FailureThresholdRatio: 0.5, MinRequests: 2, OpenDuration: durationpb.New(time.Minute)}

	gw, err := NewInventoryGateway(deps, newTestExecutor(), nil, log.DefaultLogger)
	require.NoError(t, err)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err = gw.GetItem(ctx, "SKU-1")
		require.Error(t, err)
	}

	_, err = gw.GetItem(ctx, "SKU-1")
	assert.True(t, retry.IsCircuitOpen(err))
	assert.Equal(t, int32(2), calls.Load())
}

func TestPaymentGateway_Process(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantStatus PaymentStatus
		wantID     string
		wantErr    bool
	}{
		{name: "completed", status: http.StatusOK, body: `{"status":"completed","paymentId":"p-1"}`, wantStatus: PaymentCompleted, wantID: "p-1"},
		{name: "failed body", status: http.StatusOK, body: `{"status":"failed"}`, wantStatus: PaymentFailed},
		{name: "402 declined", status: http.StatusPaymentRequired, body: `{"status":"failed","paymentId":"p-2"}`, wantStatus: PaymentFailed, wantID: "p-2"},
		{name: "unknown status is failed", status: http.StatusOK, body: `{"status":"pending"}`, wantStatus: PaymentFailed},
		{name: "402 without body is an error", status: http.StatusPaymentRequired, body: ``, wantErr: true},
		{name: "server error", status: http.StatusInternalServerError, body: `oops`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got paymentRequest
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPost, r.Method)
				assert.Equal(t, "/api/payments/process", r.URL.Path)
				assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			gw, err := NewPaymentGateway(dependenciesFor(srv.URL), newTestExecutor(), log.DefaultLogger)
			require.NoError(t, err)

			result, err := gw.Process(context.Background(), "o-1", decimal.RequireFromString("25"))
			assert.Equal(t, "o-1", got.OrderID)
			assert.Equal(t, json.Number("25.00"), got.Amount)

			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, result.Status)
			assert.Equal(t, tt.wantID, result.PaymentID)
			assert.Equal(t, tt.wantStatus == PaymentCompleted, result.Completed())
		})
	}
}
