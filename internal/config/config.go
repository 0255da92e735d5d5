package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Env           string              `mapstructure:"env"`
	Server        ServerConfig        `mapstructure:"server"`
	Grpc          GrpcConfig          `mapstructure:"grpc"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Backends      BackendsConfig      `mapstructure:"backends"`
	Payments      PaymentsConfig      `mapstructure:"payments"`
	Poller        PollerConfig        `mapstructure:"poller"`
	Alerts        AlertsConfig        `mapstructure:"alerts"`
	Notifications NotificationsConfig `mapstructure:"notifications"`
	Events        EventsConfig        `mapstructure:"events"`
	NATS          NATSConfig          `mapstructure:"nats"`
	Kafka         KafkaConfig         `mapstructure:"kafka"`
	Auth          AuthConfig          `mapstructure:"auth"`
	Otel          OtelConfig          `mapstructure:"otel"`
}

type ServerConfig struct {
	Port         string   `mapstructure:"port"`
	ReadTimeout  int      `mapstructure:"read_timeout_seconds"`
	WriteTimeout int      `mapstructure:"write_timeout_seconds"`
	IdleTimeout  int      `mapstructure:"idle_timeout_seconds"`
	CORSOrigins  []string `mapstructure:"cors_origins"`
}

type GrpcConfig struct {
	Port string `mapstructure:"port"`
}

type DatabaseConfig struct {
	Host            string `mapstructure:"host"`
	Port            string `mapstructure:"port"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	DBName          string `mapstructure:"name"`
	SSLMode         string `mapstructure:"ssl_mode"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime_seconds"`
	ConnMaxIdleTime int    `mapstructure:"conn_max_idle_time_seconds"`
}

// BackendsConfig holds the base URLs of the per-domain REST services.
type BackendsConfig struct {
	Estudiantes    string        `mapstructure:"estudiantes"`
	Rutas          string        `mapstructure:"rutas"`
	Vehiculos      string        `mapstructure:"vehiculos"`
	Conductores    string        `mapstructure:"conductores"`
	Pagos          string        `mapstructure:"pagos"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryBackoff   time.Duration `mapstructure:"retry_backoff"`
	// ServiceToken is forwarded by background poll cycles, which have no
	// caller token of their own.
	ServiceToken string `mapstructure:"service_token"`
}

type PaymentsConfig struct {
	// Store selects where payment records live: "postgres" or "rest".
	Store string `mapstructure:"store"`
	// LedgerCacheTTL bounds how long a derived ledger is reused; fines
	// levied upstream show up after at most this long. Zero disables the cache.
	LedgerCacheTTL time.Duration `mapstructure:"ledger_cache_ttl"`
}

type PollerConfig struct {
	Interval     time.Duration `mapstructure:"interval"`
	FetchTimeout time.Duration `mapstructure:"fetch_timeout"`
}

type AlertsConfig struct {
	StudentInactiveMeansNonPayment bool `mapstructure:"student_inactive_means_nonpayment"`
}

type NotificationsConfig struct {
	PageSize int `mapstructure:"page_size"`
}

type EventsConfig struct {
	// Driver is "nats", "kafka" or "none".
	Driver string `mapstructure:"driver"`
}

type NATSConfig struct {
	URL                 string `mapstructure:"url"`
	PaymentSubject      string `mapstructure:"payment_subject"`
	NotificationSubject string `mapstructure:"notification_subject"`
	RefreshSubject      string `mapstructure:"refresh_subject"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
	Group   string   `mapstructure:"group"`
}

type AuthConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	JWTSecret string `mapstructure:"jwt_secret"`
}

type OtelConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.read_timeout_seconds", 15)
	v.SetDefault("server.write_timeout_seconds", 15)
	v.SetDefault("server.idle_timeout_seconds", 60)
	v.SetDefault("server.cors_origins", []string{"http://localhost:5173"})
	v.SetDefault("grpc.port", "50051")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.name", "schooltrans")
	v.SetDefault("database.ssl_mode", "disable")

	v.SetDefault("backends.estudiantes", "http://localhost:8004")
	v.SetDefault("backends.rutas", "http://localhost:8002")
	v.SetDefault("backends.vehiculos", "http://localhost:8006")
	v.SetDefault("backends.conductores", "http://localhost:8005")
	v.SetDefault("backends.pagos", "http://localhost:8009")
	v.SetDefault("backends.request_timeout", 10*time.Second)
	v.SetDefault("backends.max_retries", 2)
	v.SetDefault("backends.retry_backoff", 500*time.Millisecond)

	v.SetDefault("payments.store", "postgres")
	v.SetDefault("payments.ledger_cache_ttl", 30*time.Second)
	v.SetDefault("poller.interval", 60*time.Second)
	v.SetDefault("poller.fetch_timeout", 20*time.Second)
	v.SetDefault("alerts.student_inactive_means_nonpayment", true)
	v.SetDefault("notifications.page_size", 5)

	v.SetDefault("events.driver", "nats")
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.payment_subject", "payments.changed")
	v.SetDefault("nats.notification_subject", "notifications.changed")
	v.SetDefault("nats.refresh_subject", "notifications.refresh")
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "schooltrans.events")
	v.SetDefault("kafka.group", "schooltrans-service")

	v.SetDefault("auth.enabled", true)
	v.SetDefault("otel.enabled", false)
	v.SetDefault("otel.endpoint", "otel-collector.infra.svc.cluster.local:4317")
}

func Load() (*Config, error) {
	// Get environment from ENV, default to "local"
	env := os.Getenv("ENV")
	if env == "" {
		env = "local"
	}

	v := viper.New()
	setDefaults(v)
	v.SetDefault("env", env)

	v.SetConfigName(fmt.Sprintf("config.%s", env))
	v.SetConfigType("yaml")
	v.AddConfigPath("/configs")      // Kubernetes mount
	v.AddConfigPath("./configs")     // IDE from root
	v.AddConfigPath("../configs")    // IDE from cmd/
	v.AddConfigPath("../../configs") // tests from internal/<pkg>

	// Config file is optional - continue with defaults and ENV variables
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Environment variables take precedence over the config file
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.BindEnv("database.user", "DB_USER")
	v.BindEnv("database.password", "DB_PASSWORD")
	v.BindEnv("auth.jwt_secret", "JWT_SECRET")
	v.BindEnv("backends.service_token", "BACKEND_SERVICE_TOKEN")
	v.BindEnv("otel.endpoint", "OTEL_EXPORTER_OTLP_ENDPOINT")
	v.BindEnv("grpc.port", "GRPC_PORT")

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if config.Env == "" {
		config.Env = env
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) validate() error {
	switch c.Payments.Store {
	case "postgres", "rest":
	default:
		return fmt.Errorf("invalid payments.store %q", c.Payments.Store)
	}
	switch c.Events.Driver {
	case "nats", "kafka", "none":
	default:
		return fmt.Errorf("invalid events.driver %q", c.Events.Driver)
	}
	if c.Payments.LedgerCacheTTL < 0 {
		return fmt.Errorf("payments.ledger_cache_ttl must not be negative")
	}
	if c.Poller.Interval <= 0 {
		return fmt.Errorf("poller.interval must be positive")
	}
	if c.Auth.Enabled && c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required when auth is enabled")
	}
	return nil
}
