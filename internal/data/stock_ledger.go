package data

import (
	"context"
	"errors"
	"fmt"

	pkglog "OrderSaga/pkg/log"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/redis/go-redis/v9"
)

// ErrUnknownSKU is returned when the ledger has never observed a SKU.
var ErrUnknownSKU = errors.New("stock ledger: unknown sku")

// adjustScript only adjusts SKUs the ledger already tracks, so a stray
// event cannot invent negative stock for a product nobody stocked.
var adjustScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return false
end
return redis.call('HINCRBY', KEYS[1], 'stock', ARGV[1])
`)

// StockLedger mirrors per-SKU stock in Redis hashes (stock:{sku}).
// The inventory gateway seeds it from authoritative lookups and the
// inventory reactor adjusts it on order events.
type StockLedger struct {
	rdb    *redis.Client
	logger *pkglog.LogHelper
}

// NewStockLedger creates a ledger over the shared Redis client.
func NewStockLedger(data *Data, logger log.Logger) *StockLedger {
	return &StockLedger{rdb: data.GetRedisClient(), logger: pkglog.NewLogHelper(logger)}
}

// Observe records the stock reported by the inventory service.
func (s *StockLedger) Observe(ctx context.Context, sku string, stock int64) error {
	if s.rdb == nil {
		return errors.New("stock ledger: redis client is nil")
	}
	key := BuildCacheKey(CacheKeyStock, sku)
	if err := s.rdb.HSet(ctx, key, "stock", stock).Err(); err != nil {
		return fmt.Errorf("stock ledger: observe %s: %w", sku, err)
	}
	return nil
}

// Adjust adds delta to the SKU's stock and returns the new level.
func (s *StockLedger) Adjust(ctx context.Context, sku string, delta int64) (int64, error) {
	if s.rdb == nil {
		return 0, errors.New("stock ledger: redis client is nil")
	}
	key := BuildCacheKey(CacheKeyStock, sku)
	n, err := adjustScript.Run(ctx, s.rdb, []string{key}, delta).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, fmt.Errorf("%w: %s", ErrUnknownSKU, sku)
	}
	if err != nil {
		return 0, fmt.Errorf("stock ledger: adjust %s: %w", sku, err)
	}
	s.logger.Redis("stock adjusted", "sku", sku, "delta", delta, "stock", n)
	return n, nil
}

// Level returns the current ledger stock of a SKU.
func (s *StockLedger) Level(ctx context.Context, sku string) (int64, error) {
	if s.rdb == nil {
		return 0, errors.New("stock ledger: redis client is nil")
	}
	n, err := s.rdb.HGet(ctx, BuildCacheKey(CacheKeyStock, sku), "stock").Int64()
	if errors.Is(err, redis.Nil) {
		return 0, fmt.Errorf("%w: %s", ErrUnknownSKU, sku)
	}
	if err != nil {
		return 0, fmt.Errorf("stock ledger: read %s: %w", sku, err)
	}
	return n, nil
}
