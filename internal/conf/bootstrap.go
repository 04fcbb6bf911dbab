// Package conf provides configuration management using Viper.
// It supports loading configuration from YAML files and environment variables,
// with CLI flag overrides.
package conf

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"google.golang.org/protobuf/types/known/durationpb"
)

// NewBootstrap creates and initializes a Bootstrap configuration.
// It loads configuration from the specified config file path, applies defaults,
// and allows overrides from environment variables prefixed with ORDERSAGA_.
//
// Configuration priority: Environment variables > Config file > Defaults
//
// Required settings:
//   - MYSQL_DSN or ORDERSAGA_DATA_DATABASE_SOURCE: MySQL connection string
//   - CUSTOMER_SERVICE_URL, INVENTORY_SERVICE_URL, PAYMENT_SERVICE_URL: dependency base URLs
func NewBootstrap(configPath string) (*Bootstrap, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("ORDERSAGA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Short names shared with the other services' deployment manifests
	_ = v.BindEnv("data.database.source", "MYSQL_DSN", "ORDERSAGA_DATA_DATABASE_SOURCE")
	_ = v.BindEnv("data.redis.addr", "REDIS_ADDR", "ORDERSAGA_DATA_REDIS_ADDR")
	_ = v.BindEnv("dependencies.customer.base_url", "CUSTOMER_SERVICE_URL", "ORDERSAGA_DEPENDENCIES_CUSTOMER_BASE_URL")
	_ = v.BindEnv("dependencies.inventory.base_url", "INVENTORY_SERVICE_URL", "ORDERSAGA_DEPENDENCIES_INVENTORY_BASE_URL")
	_ = v.BindEnv("dependencies.payment.base_url", "PAYMENT_SERVICE_URL", "ORDERSAGA_DEPENDENCIES_PAYMENT_BASE_URL")
	_ = v.BindEnv("event.bridge.rabbitmq.url", "RABBITMQ_URI", "ORDERSAGA_EVENT_BRIDGE_RABBITMQ_URL")
	_ = v.BindEnv("event.bridge.kafka.brokers", "KAFKA_BROKERS", "ORDERSAGA_EVENT_BRIDGE_KAFKA_BROKERS")

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
		}
	}

	bc := &Bootstrap{
		Server: &Server{
			Http: &Server_HTTP{
				Network: v.GetString("server.http.network"),
				Addr:    v.GetString("server.http.addr"),
				Timeout: durationpb.New(v.GetDuration("server.http.timeout")),
			},
		},
		Data: &Data{
			Database: &Data_Database{
				Driver: v.GetString("data.database.driver"),
				Source: v.GetString("data.database.source"),
			},
			Redis: &Data_Redis{
				Network:      v.GetString("data.redis.network"),
				Addr:         v.GetString("data.redis.addr"),
				Password:     v.GetString("data.redis.password"),
				Db:           v.GetInt32("data.redis.db"),
				ReadTimeout:  durationpb.New(v.GetDuration("data.redis.read_timeout")),
				WriteTimeout: durationpb.New(v.GetDuration("data.redis.write_timeout")),
			},
		},
		Log: &Log{
			Level:      v.GetString("log.level"),
			Format:     v.GetString("log.format"),
			Env:        v.GetString("log.env"),
			OutputFile: v.GetString("log.output_file"),
		},
		Dependencies: &Dependencies{
			Customer:  loadDependency(v, "dependencies.customer"),
			Inventory: loadDependency(v, "dependencies.inventory"),
			Payment:   loadDependency(v, "dependencies.payment"),
		},
		Event: &Event{
			BufferSize: v.GetInt32("event.buffer_size"),
			Bridge: &Event_Bridge{
				Driver: strings.ToLower(v.GetString("event.bridge.driver")),
				Rabbitmq: &Event_Bridge_RabbitMQ{
					Url: v.GetString("event.bridge.rabbitmq.url"),
				},
				Kafka: &Event_Bridge_Kafka{
					Brokers:     splitList(v.GetStringSlice("event.bridge.kafka.brokers")),
					TopicPrefix: v.GetString("event.bridge.kafka.topic_prefix"),
				},
			},
		},
		Saga: &Saga{
			ReactorsEnabled:   v.GetBool("saga.reactors_enabled"),
			PendingReportCron: v.GetString("saga.pending_report_cron"),
			PendingStaleAfter: durationpb.New(v.GetDuration("saga.pending_stale_after")),
		},
	}

	if err := Validate(bc); err != nil {
		return nil, err
	}

	return bc, nil
}

func loadDependency(v *viper.Viper, prefix string) *Dependency {
	return &Dependency{
		BaseUrl:  v.GetString(prefix + ".base_url"),
		Timeout:  durationpb.New(v.GetDuration(prefix + ".timeout")),
		ProxyUrl: v.GetString(prefix + ".proxy_url"),
		Retry: &Dependency_Retry{
			MaxAttempts:    v.GetInt32(prefix + ".retry.max_attempts"),
			InitialBackoff: durationpb.New(v.GetDuration(prefix + ".retry.initial_backoff")),
			JitterRatio:    v.GetFloat64(prefix + ".retry.jitter_ratio"),
		},
		Breaker: &Dependency_Breaker{
			FailureThresholdRatio: v.GetFloat64(prefix + ".breaker.failure_threshold_ratio"),
			MinRequests:           v.GetInt32(prefix + ".breaker.min_requests"),
			OpenDuration:          durationpb.New(v.GetDuration(prefix + ".breaker.open_duration")),
			SuccessesToClose:      v.GetInt32(prefix + ".breaker.successes_to_close"),
		},
	}
}

// splitList accepts both YAML lists and comma separated environment values.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.http.network", "tcp")
	v.SetDefault("server.http.addr", ":3001")
	v.SetDefault("server.http.timeout", 60*time.Second)

	// Data defaults
	v.SetDefault("data.database.driver", "mysql")
	// Note: data.database.source (MYSQL_DSN) is required from environment

	v.SetDefault("data.redis.network", "tcp")
	v.SetDefault("data.redis.addr", "127.0.0.1:6379")
	v.SetDefault("data.redis.db", 0)
	v.SetDefault("data.redis.read_timeout", 200*time.Millisecond)
	v.SetDefault("data.redis.write_timeout", 200*time.Millisecond)

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Dependency defaults: 4 attempts, 1s backoff, 30% jitter, 0.5/10/30s breaker
	for name, timeout := range map[string]time.Duration{
		"customer":  3 * time.Second,
		"inventory": 3 * time.Second,
		"payment":   5 * time.Second,
	} {
		prefix := "dependencies." + name
		v.SetDefault(prefix+".timeout", timeout)
		v.SetDefault(prefix+".retry.max_attempts", 4)
		v.SetDefault(prefix+".retry.initial_backoff", time.Second)
		v.SetDefault(prefix+".retry.jitter_ratio", 0.3)
		v.SetDefault(prefix+".breaker.failure_threshold_ratio", 0.5)
		v.SetDefault(prefix+".breaker.min_requests", 10)
		v.SetDefault(prefix+".breaker.open_duration", 30*time.Second)
		v.SetDefault(prefix+".breaker.successes_to_close", 1)
	}

	// Event defaults
	v.SetDefault("event.buffer_size", 256)
	v.SetDefault("event.bridge.driver", "none")
	v.SetDefault("event.bridge.kafka.topic_prefix", "ordersaga.")

	// Saga defaults
	v.SetDefault("saga.reactors_enabled", true)
	v.SetDefault("saga.pending_report_cron", "0 */5 * * * *")
	v.SetDefault("saga.pending_stale_after", 15*time.Minute)
}

// Validate checks that all required configuration fields are present and valid.
// It returns an error listing all missing required fields.
func Validate(bc *Bootstrap) error {
	var missingFields []string

	if bc.Data == nil || bc.Data.Database == nil || bc.Data.Database.Source == "" {
		missingFields = append(missingFields, "data.database.source (MYSQL_DSN)")
	}

	deps := bc.Dependencies
	if deps == nil {
		deps = &Dependencies{}
	}
	for _, d := range []struct {
		dep *Dependency
		key string
	}{
		{deps.Customer, "dependencies.customer.base_url (CUSTOMER_SERVICE_URL)"},
		{deps.Inventory, "dependencies.inventory.base_url (INVENTORY_SERVICE_URL)"},
		{deps.Payment, "dependencies.payment.base_url (PAYMENT_SERVICE_URL)"},
	} {
		if d.dep == nil || d.dep.BaseUrl == "" {
			missingFields = append(missingFields, d.key)
		}
	}

	if len(missingFields) > 0 {
		return fmt.Errorf("missing required configuration fields: %s", strings.Join(missingFields, ", "))
	}

	if bc.Event != nil && bc.Event.Bridge != nil {
		switch bc.Event.Bridge.Driver {
		case "", "none":
		case "rabbitmq":
			if bc.Event.Bridge.Rabbitmq == nil || bc.Event.Bridge.Rabbitmq.Url == "" {
				return fmt.Errorf("event.bridge.rabbitmq.url (RABBITMQ_URI) is required when event.bridge.driver=rabbitmq")
			}
		case "kafka":
			if bc.Event.Bridge.Kafka == nil || len(bc.Event.Bridge.Kafka.Brokers) == 0 {
				return fmt.Errorf("event.bridge.kafka.brokers (KAFKA_BROKERS) is required when event.bridge.driver=kafka")
			}
		default:
			return fmt.Errorf("unsupported event.bridge.driver %q", bc.Event.Bridge.Driver)
		}
	}

	return nil
}
