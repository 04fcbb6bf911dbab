package server

import (
	"context"

	"OrderSaga/internal/biz"
	"OrderSaga/internal/conf"
	pkglog "OrderSaga/pkg/log"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/transport"
)

var _ transport.Server = (*ReactorServer)(nil)

// ReactorServer runs the event reactors for the lifetime of the app.
type ReactorServer struct {
	runner  *biz.ReactorRunner
	enabled bool
	log     *pkglog.LogHelper
}

// NewReactorServer wraps the reactor runner. Reactors are on unless
// saga.reactors_enabled is explicitly false.
func NewReactorServer(c *conf.Saga, runner *biz.ReactorRunner, logger log.Logger) *ReactorServer {
	enabled := true
	if c != nil {
		enabled = c.ReactorsEnabled
	}
	return &ReactorServer{runner: runner, enabled: enabled, log: pkglog.NewLogHelper(logger)}
}

// Start subscribes every reactor. It does not block.
func (s *ReactorServer) Start(ctx context.Context) error {
	if !s.enabled {
		s.log.Startup("reactors disabled by configuration")
		return nil
	}
	return s.runner.Start(ctx)
}

// Stop closes the subscriptions and waits for in-flight events.
func (s *ReactorServer) Stop(ctx context.Context) error {
	if !s.enabled {
		return nil
	}
	return s.runner.Stop(ctx)
}
