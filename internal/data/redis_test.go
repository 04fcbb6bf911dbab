package data

import (
	"context"
	"testing"
	"time"

	"OrderSaga/internal/conf"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/durationpb"
)

func redisConf(addr string) *conf.Data {
	return &conf.Data{
		Redis: &conf.Data_Redis{
			Addr:         addr,
			ReadTimeout:  durationpb.New(200 * time.Millisecond),
			WriteTimeout: durationpb.New(200 * time.Millisecond),
		},
	}
}

func TestNewRedisClient(t *testing.T) {
	mr := miniredis.RunT(t)

	client, cleanup, err := NewRedisClient(redisConf(mr.Addr()), log.DefaultLogger)
	require.NoError(t, err)
	require.NotNil(t, client)

	opts := client.Options()
	assert.Equal(t, "tcp", opts.Network)
	assert.Equal(t, 100, opts.PoolSize)
	assert.Equal(t, 10, opts.MinIdleConns)
	assert.Equal(t, 200*time.Millisecond, opts.ReadTimeout)

	ctx := context.Background()
	require.NoError(t, client.Ping(ctx).Err())

	// cleanup closes the pool
	cleanup()
	assert.Error(t, client.Ping(ctx).Err())
}

func TestNewRedisClient_Unreachable(t *testing.T) {
	// Startup must not fail: orders fall back to MySQL without the cache
	client, cleanup, err := NewRedisClient(redisConf("127.0.0.1:1"), log.DefaultLogger)
	defer cleanup()

	assert.NoError(t, err)
	require.NotNil(t, client)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.Error(t, client.Ping(ctx).Err())
}

func TestNewRedisClient_NotConfigured(t *testing.T) {
	tests := []struct {
		name string
		conf *conf.Data
	}{
		{name: "nil config", conf: nil},
		{name: "no redis section", conf: &conf.Data{}},
		{name: "empty address", conf: redisConf("")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, cleanup, err := NewRedisClient(tt.conf, log.DefaultLogger)
			defer cleanup()
			assert.NoError(t, err)
			assert.Nil(t, client)
		})
	}
}
