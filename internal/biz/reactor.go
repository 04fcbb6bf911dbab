package biz

import (
	"context"
	"fmt"
	"sync"

	"OrderSaga/pkg/fabric"
	pkglog "OrderSaga/pkg/log"

	"github.com/go-kratos/kratos/v2/log"
)

// Reactor handles events from one or more fabric channels. Each handled
// event performs one local state change and at most one re-publish.
type Reactor interface {
	Name() string
	Channels() []string
	Handle(ctx context.Context, event fabric.Event) error
}

// ReactorRunner subscribes reactors to the fabric and feeds them events,
// one goroutine per subscription.
type ReactorRunner struct {
	bus      EventSubscriber
	reactors []Reactor
	log      *pkglog.LogHelper

	mu     sync.Mutex
	subs   []*fabric.Subscription
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewReactorRunner wires every reactor of the service to the fabric.
func NewReactorRunner(
	bus EventSubscriber,
	saga *SagaUsecase,
	inventory *InventoryReactor,
	payment *PaymentReactor,
	shipment *ShipmentReactor,
	notifier *NotifierReactor,
	logger log.Logger,
) *ReactorRunner {
	return newReactorRunner(bus, logger, saga.Settlement(), inventory, payment, shipment, notifier)
}

func newReactorRunner(bus EventSubscriber, logger log.Logger, reactors ...Reactor) *ReactorRunner {
	return &ReactorRunner{
		bus:      bus,
		reactors: reactors,
		log:      pkglog.NewLogHelper(logger),
	}
}

// Start subscribes all reactors before returning, so no event published
// after Start is missed by a running reactor.
func (r *ReactorRunner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return fmt.Errorf("reactors already started")
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	r.cancel = cancel

	for _, reactor := range r.reactors {
		for _, channel := range reactor.Channels() {
			sub := r.bus.Subscribe(channel)
			r.subs = append(r.subs, sub)
			r.wg.Add(1)
			go r.consume(runCtx, reactor, sub)
		}
		r.log.Startup("reactor subscribed", "reactor", reactor.Name(), "channels", reactor.Channels())
	}
	return nil
}

// Stop closes the subscriptions and waits for in-flight events.
func (r *ReactorRunner) Stop(ctx context.Context) error {
	r.mu.Lock()
	subs, cancel := r.subs, r.cancel
	r.subs, r.cancel = nil, nil
	r.mu.Unlock()

	for _, sub := range subs {
		sub.Close()
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		r.log.Warnw("msg", "reactors did not drain before shutdown deadline")
	}
	if cancel != nil {
		cancel()
	}
	return nil
}

func (r *ReactorRunner) consume(ctx context.Context, reactor Reactor, sub *fabric.Subscription) {
	defer r.wg.Done()
	for event := range sub.C() {
		r.dispatch(ctx, reactor, event)
	}
}

func (r *ReactorRunner) dispatch(ctx context.Context, reactor Reactor, event fabric.Event) {
	defer func() {
		if p := recover(); p != nil {
			r.log.Errorw("msg", "reactor panicked", "reactor", reactor.Name(), "event_type", event.EventType, "panic", fmt.Sprint(p))
		}
	}()

	r.log.Event(event.Channel, event.EventType, "reactor", reactor.Name())
	if err := reactor.Handle(ctx, event); err != nil {
		r.log.Errorw("msg", "reactor failed to handle event",
			"reactor", reactor.Name(),
			"channel", event.Channel,
			"event_type", event.EventType,
			"error", err)
	}
}
