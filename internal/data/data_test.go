package data

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewData_SharesRedisBetweenCacheAndLedger(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	cache := NewCacheClient(rdb)
	d, cleanup, err := NewData(redisConf(mr.Addr()), log.DefaultLogger, rdb, cache)
	require.NoError(t, err)
	defer cleanup()

	assert.Same(t, rdb, d.GetRedisClient())
	assert.Equal(t, cache, d.GetCache())

	// the stock ledger writes through the same client the cache reads from
	ledger := NewStockLedger(d, log.DefaultLogger)
	require.NoError(t, ledger.Observe(context.Background(), "SKU-1", 4))
	assert.True(t, mr.Exists("stock:SKU-1"))
}

func TestNewData_WithoutRedis(t *testing.T) {
	d, cleanup, err := NewData(nil, log.DefaultLogger, nil, NewCacheClient(nil))
	require.NoError(t, err)
	defer cleanup()

	assert.Nil(t, d.GetRedisClient())

	var out string
	assert.Error(t, d.GetCache().Get(context.Background(), "order:o-1", &out))
	_, err = NewStockLedger(d, log.DefaultLogger).Adjust(context.Background(), "SKU-1", -1)
	assert.Error(t, err)
}
