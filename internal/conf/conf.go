package conf

import (
	"google.golang.org/protobuf/types/known/durationpb"
)

// Bootstrap is the root configuration.
type Bootstrap struct {
	Server       *Server
	Data         *Data
	Log          *Log
	Dependencies *Dependencies
	Event        *Event
	Saga         *Saga
}

// Server holds the listening transports.
type Server struct {
	Http *Server_HTTP
}

// Server_HTTP configures the Kratos HTTP server.
type Server_HTTP struct {
	Network string
	Addr    string
	Timeout *durationpb.Duration
}

// Data holds storage connections.
type Data struct {
	Database *Data_Database
	Redis    *Data_Redis
}

// Data_Database configures the MySQL connection.
type Data_Database struct {
	Driver string
	Source string
}

// Data_Redis configures the Redis connection.
type Data_Redis struct {
	Network      string
	Addr         string
	Password     string
	Db           int32
	ReadTimeout  *durationpb.Duration
	WriteTimeout *durationpb.Duration
}

// Log configures pkg/log.
type Log struct {
	Level      string
	Format     string
	Env        string
	OutputFile string
}

// Dependencies lists the synchronous services the order saga calls.
type Dependencies struct {
	Customer  *Dependency
	Inventory *Dependency
	Payment   *Dependency
}

// Dependency configures one outbound target. BaseUrl doubles as the
// circuit breaker target identity.
type Dependency struct {
	BaseUrl  string
	Timeout  *durationpb.Duration
	ProxyUrl string
	Retry    *Dependency_Retry
	Breaker  *Dependency_Breaker
}

// Dependency_Retry configures the retrying call executor.
type Dependency_Retry struct {
	MaxAttempts    int32
	InitialBackoff *durationpb.Duration
	JitterRatio    float64
}

// Dependency_Breaker configures the target's circuit breaker.
type Dependency_Breaker struct {
	FailureThresholdRatio float64
	MinRequests           int32
	OpenDuration          *durationpb.Duration
	SuccessesToClose      int32
}

// Event configures the event fabric.
type Event struct {
	BufferSize int32
	Bridge     *Event_Bridge
}

// Event_Bridge selects an optional broker mirror: none, rabbitmq or kafka.
type Event_Bridge struct {
	Driver   string
	Rabbitmq *Event_Bridge_RabbitMQ
	Kafka    *Event_Bridge_Kafka
}

// Event_Bridge_RabbitMQ configures the RabbitMQ mirror.
type Event_Bridge_RabbitMQ struct {
	Url string
}

// Event_Bridge_Kafka configures the Kafka mirror.
type Event_Bridge_Kafka struct {
	Brokers     []string
	TopicPrefix string
}

// Saga configures orchestration extras.
type Saga struct {
	ReactorsEnabled   bool
	PendingReportCron string
	PendingStaleAfter *durationpb.Duration
}

// GetCustomer returns the customer dependency, or nil.
func (x *Dependencies) GetCustomer() *Dependency {
	if x == nil {
		return nil
	}
	return x.Customer
}

// GetInventory returns the inventory dependency, or nil.
func (x *Dependencies) GetInventory() *Dependency {
	if x == nil {
		return nil
	}
	return x.Inventory
}

// GetPayment returns the payment dependency, or nil.
func (x *Dependencies) GetPayment() *Dependency {
	if x == nil {
		return nil
	}
	return x.Payment
}
