package data

import (
	"OrderSaga/internal/conf"
	"OrderSaga/pkg/circuitbreaker"
	"OrderSaga/pkg/fabric"
	pkglog "OrderSaga/pkg/log"
	"OrderSaga/pkg/retry"

	"github.com/go-kratos/kratos/v2/log"
)

// NewBreakerRegistry creates the process-wide breaker store. It is passed
// explicitly to the executor and the debug service.
func NewBreakerRegistry(logger log.Logger) *circuitbreaker.Registry {
	lh := pkglog.NewLogHelper(logger)
	return circuitbreaker.NewRegistry(logger,
		circuitbreaker.WithStateChangeListener(func(target string, from, to circuitbreaker.State) {
			lh.Breaker(target, from.String(), to.String())
		}))
}

// NewExecutor creates the retrying call executor shared by all gateways.
func NewExecutor(registry *circuitbreaker.Registry, logger log.Logger) *retry.Executor {
	return retry.NewExecutor(registry, logger)
}

// NewEventBus creates the in-process fabric and, when configured, a broker
// mirror. A mirror that cannot connect is logged and skipped: the local
// fanout is what the reactors consume.
func NewEventBus(c *conf.Event, logger log.Logger) (*fabric.Bus, func(), error) {
	helper := log.NewHelper(logger)

	var opts []fabric.Option
	if c != nil {
		opts = append(opts, fabric.WithBufferSize(int(c.BufferSize)))
		if mirror := newMirror(c.Bridge, helper); mirror != nil {
			opts = append(opts, fabric.WithMirror(mirror))
		}
	}

	bus := fabric.NewBus(logger, opts...)
	cleanup := func() {
		helper.Info("closing event bus")
		if err := bus.Close(); err != nil {
			helper.Errorf("failed to close event bus: %v", err)
		}
	}
	return bus, cleanup, nil
}

func newMirror(c *conf.Event_Bridge, helper *log.Helper) fabric.Mirror {
	if c == nil {
		return nil
	}
	switch c.Driver {
	case "rabbitmq":
		if c.Rabbitmq == nil {
			return nil
		}
		m, err := fabric.DialRabbitMQMirror(c.Rabbitmq.Url)
		if err != nil {
			helper.Warnw("msg", "RabbitMQ mirror unavailable, events stay in-process", "error", err)
			return nil
		}
		helper.Infow("msg", "mirroring events to RabbitMQ fanout exchanges")
		return m
	case "kafka":
		if c.Kafka == nil || len(c.Kafka.Brokers) == 0 {
			return nil
		}
		helper.Infow("msg", "mirroring events to Kafka", "brokers", c.Kafka.Brokers, "topic_prefix", c.Kafka.TopicPrefix)
		return fabric.NewKafkaMirror(fabric.NewKafkaWriter(c.Kafka.Brokers), c.Kafka.TopicPrefix)
	default:
		return nil
	}
}
