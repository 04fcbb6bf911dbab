package service

import (
	"context"
	nethttp "net/http"
	"net/url"
	"time"

	"OrderSaga/pkg/circuitbreaker"
	"OrderSaga/pkg/fabric"

	"github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/transport/http"
)

const (
	OperationListBreakers = "/ordersaga.Debug/ListCircuitBreakers"
	OperationResetBreaker = "/ordersaga.Debug/ResetCircuitBreaker"
)

// BreakerView is one entry of the breaker snapshot.
type BreakerView struct {
	State        string     `json:"state"`
	FailureCount int        `json:"failureCount"`
	SuccessCount int        `json:"successCount"`
	RequestCount int        `json:"requestCount"`
	NextAttempt  *time.Time `json:"nextAttempt"`
}

// BreakersReply maps breaker targets to their state. Fabric carries the
// event bus drop counters.
type BreakersReply struct {
	Circuits map[string]BreakerView `json:"circuits"`
	Fabric   *fabric.Stats          `json:"fabric,omitempty"`
}

// busStats is the part of *fabric.Bus the debug surface reads.
type busStats interface {
	Stats() fabric.Stats
}

// ResetBreakerReply confirms a manual reset.
type ResetBreakerReply struct {
	Target string `json:"target"`
	State  string `json:"state"`
}

// DebugService exposes circuit breaker state for operators.
type DebugService struct {
	registry *circuitbreaker.Registry
	bus      busStats
	logger   *log.Helper
}

// NewDebugService creates the debug surface over the shared breaker registry
// and event bus.
func NewDebugService(registry *circuitbreaker.Registry, bus *fabric.Bus, logger log.Logger) *DebugService {
	s := &DebugService{registry: registry, logger: log.NewHelper(logger)}
	if bus != nil {
		s.bus = bus
	}
	return s
}

// ListCircuitBreakers snapshots every breaker the process has created.
func (s *DebugService) ListCircuitBreakers(_ context.Context) (*BreakersReply, error) {
	snapshots := s.registry.Snapshot()
	reply := &BreakersReply{Circuits: make(map[string]BreakerView, len(snapshots))}
	for _, snap := range snapshots {
		view := BreakerView{
			State:        snap.State.String(),
			FailureCount: snap.FailureCount,
			SuccessCount: snap.SuccessCount,
			RequestCount: snap.RequestCount,
		}
		if !snap.NextAttemptAt.IsZero() {
			next := snap.NextAttemptAt
			view.NextAttempt = &next
		}
		reply.Circuits[snap.Target] = view
	}
	if s.bus != nil {
		st := s.bus.Stats()
		reply.Fabric = &st
	}
	return reply, nil
}

// ResetCircuitBreaker forces one breaker closed. name is either the full
// target or its host[:port].
func (s *DebugService) ResetCircuitBreaker(_ context.Context, name string) (*ResetBreakerReply, error) {
	target, ok := s.resolve(name)
	if !ok || !s.registry.Reset(target) {
		return nil, errors.NotFound("BREAKER_NOT_FOUND", "unknown circuit breaker target").
			WithMetadata(map[string]string{"target": name})
	}
	s.logger.Warnw("msg", "circuit breaker reset by operator", "target", target)
	return &ResetBreakerReply{Target: target, State: circuitbreaker.StateClosed.String()}, nil
}

func (s *DebugService) resolve(name string) (string, bool) {
	if _, ok := s.registry.Lookup(name); ok {
		return name, true
	}
	for _, snap := range s.registry.Snapshot() {
		if u, err := url.Parse(snap.Target); err == nil && u.Host == name {
			return snap.Target, true
		}
	}
	return "", false
}

// RegisterDebugHTTPServer mounts the debug routes on srv. Targets are base
// URLs, so the reset route addresses a breaker by its host[:port].
func RegisterDebugHTTPServer(srv *http.Server, s *DebugService) {
	r := srv.Route("/")
	r.GET("/debug/circuit-breakers", func(ctx http.Context) error {
		http.SetOperation(ctx, OperationListBreakers)
		h := ctx.Middleware(func(ctx context.Context, _ interface{}) (interface{}, error) {
			return s.ListCircuitBreakers(ctx)
		})
		out, err := h(ctx, nil)
		if err != nil {
			return err
		}
		return ctx.JSON(nethttp.StatusOK, out)
	})
	r.POST("/debug/circuit-breakers/{target}/reset", func(ctx http.Context) error {
		target := ctx.Vars().Get("target")
		http.SetOperation(ctx, OperationResetBreaker)
		h := ctx.Middleware(func(ctx context.Context, req interface{}) (interface{}, error) {
			return s.ResetCircuitBreaker(ctx, req.(string))
		})
		out, err := h(ctx, target)
		if err != nil {
			return err
		}
		return ctx.JSON(nethttp.StatusOK, out)
	})
}
