package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Environment string          `mapstructure:"environment"`
	Server      ServerConfig    `mapstructure:"server"`
	Store       StoreConfig     `mapstructure:"store"`
	Kafka       KafkaConfig     `mapstructure:"kafka"`
	Analytics   AnalyticsConfig `mapstructure:"analytics"`
	Realtime    RealtimeConfig  `mapstructure:"realtime"`
	Simulator   SimulatorConfig `mapstructure:"simulator"`
	Logging     LoggingConfig   `mapstructure:"logging"`
	Metrics     MetricsConfig   `mapstructure:"metrics"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	HTTP      HTTPConfig      `mapstructure:"http"`
	WebSocket WebSocketConfig `mapstructure:"websocket"`
}

// HTTPConfig contains HTTP server settings
type HTTPConfig struct {
	Port           int `mapstructure:"port"`
	ReadTimeout    int `mapstructure:"read_timeout"`
	WriteTimeout   int `mapstructure:"write_timeout"`
	IdleTimeout    int `mapstructure:"idle_timeout"`
	MaxHeaderBytes int `mapstructure:"max_header_bytes"`
}

// WebSocketConfig contains WebSocket upgrade settings
type WebSocketConfig struct {
	ReadBufferSize    int  `mapstructure:"read_buffer_size"`
	WriteBufferSize   int  `mapstructure:"write_buffer_size"`
	CheckOrigin       bool `mapstructure:"check_origin"`
	EnableCompression bool `mapstructure:"enable_compression"`
}

// StoreConfig selects and configures the event store backend
type StoreConfig struct {
	Type     string         `mapstructure:"type"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

// DatabaseConfig contains PostgreSQL connection settings
type DatabaseConfig struct {
	Host               string `mapstructure:"host"`
	Port               int    `mapstructure:"port"`
	Name               string `mapstructure:"name"`
	Username           string `mapstructure:"username"`
	Password           string `mapstructure:"password"`
	SSLMode            string `mapstructure:"ssl_mode"`
	MaxOpenConnections int    `mapstructure:"max_open_connections"`
	MaxIdleConnections int    `mapstructure:"max_idle_connections"`
	ConnMaxLifetime    int    `mapstructure:"connection_max_lifetime"`
}

// DSN builds the PostgreSQL connection string
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.Username, d.Password, d.Name, d.SSLMode)
}

// RedisConfig contains Redis connection settings
type RedisConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Password     string `mapstructure:"password"`
	Database     int    `mapstructure:"database"`
	MaxRetries   int    `mapstructure:"max_retries"`
	DialTimeout  int    `mapstructure:"dial_timeout"`
	ReadTimeout  int    `mapstructure:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout"`
	PoolSize     int    `mapstructure:"pool_size"`
}

// Addr returns the host:port address of the Redis server
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// KafkaConfig contains the optional Kafka ingestion source settings
type KafkaConfig struct {
	Enabled       bool     `mapstructure:"enabled"`
	Brokers       []string `mapstructure:"brokers"`
	Topic         string   `mapstructure:"topic"`
	ConsumerGroup string   `mapstructure:"consumer_group"`
	MinBytes      int      `mapstructure:"min_bytes"`
	MaxBytes      int      `mapstructure:"max_bytes"`
}

// AnalyticsConfig contains aggregation settings
type AnalyticsConfig struct {
	RecentRingSize          int           `mapstructure:"recent_ring_size"`
	TimelineDays            int           `mapstructure:"timeline_days"`
	HighSeverityWindowHours int           `mapstructure:"high_severity_window_hours"`
	RetentionDays           int           `mapstructure:"retention_days"`
	EvictionInterval        time.Duration `mapstructure:"eviction_interval"`
}

// RealtimeConfig contains live-feed settings
type RealtimeConfig struct {
	SendBufferSize    int           `mapstructure:"send_buffer_size"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	HeartbeatTimeout  time.Duration `mapstructure:"heartbeat_timeout"`
	MaxConnections    int           `mapstructure:"max_connections"`
	RedisFanout       bool          `mapstructure:"redis_fanout"`
}

// SimulatorConfig contains the demo threat generator settings
type SimulatorConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Interval    time.Duration `mapstructure:"interval"`
	Probability float64       `mapstructure:"probability"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// MetricsConfig contains Prometheus metrics configuration
type MetricsConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetEnvPrefix("PROTEGO")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			if _, missing := err.(viper.ConfigFileNotFoundError); !missing && !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	overrideWithEnvVars(v)

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")

	// Server defaults
	v.SetDefault("server.http.port", 8080)
	v.SetDefault("server.http.read_timeout", 30)
	v.SetDefault("server.http.write_timeout", 30)
	v.SetDefault("server.http.idle_timeout", 120)
	v.SetDefault("server.http.max_header_bytes", 1048576)
	v.SetDefault("server.websocket.read_buffer_size", 1024)
	v.SetDefault("server.websocket.write_buffer_size", 1024)
	v.SetDefault("server.websocket.check_origin", false)
	v.SetDefault("server.websocket.enable_compression", true)

	// Store defaults
	v.SetDefault("store.type", "memory")
	v.SetDefault("store.database.host", "localhost")
	v.SetDefault("store.database.port", 5432)
	v.SetDefault("store.database.name", "protego")
	v.SetDefault("store.database.ssl_mode", "disable")
	v.SetDefault("store.database.max_open_connections", 25)
	v.SetDefault("store.database.max_idle_connections", 25)
	v.SetDefault("store.database.connection_max_lifetime", 300)
	v.SetDefault("store.redis.host", "localhost")
	v.SetDefault("store.redis.port", 6379)
	v.SetDefault("store.redis.database", 0)
	v.SetDefault("store.redis.max_retries", 3)
	v.SetDefault("store.redis.dial_timeout", 5)
	v.SetDefault("store.redis.read_timeout", 3)
	v.SetDefault("store.redis.write_timeout", 3)
	v.SetDefault("store.redis.pool_size", 10)

	// Kafka defaults
	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "protego.threats")
	v.SetDefault("kafka.consumer_group", "threat-monitor")
	v.SetDefault("kafka.min_bytes", 1)
	v.SetDefault("kafka.max_bytes", 10485760)

	// Analytics defaults
	v.SetDefault("analytics.recent_ring_size", 100)
	v.SetDefault("analytics.timeline_days", 30)
	v.SetDefault("analytics.high_severity_window_hours", 168)
	v.SetDefault("analytics.retention_days", 90)
	v.SetDefault("analytics.eviction_interval", "1h")

	// Realtime defaults
	v.SetDefault("realtime.send_buffer_size", 64)
	v.SetDefault("realtime.heartbeat_interval", "30s")
	v.SetDefault("realtime.heartbeat_timeout", "60s")
	v.SetDefault("realtime.max_connections", 1000)
	v.SetDefault("realtime.redis_fanout", false)

	// Simulator defaults
	v.SetDefault("simulator.enabled", false)
	v.SetDefault("simulator.interval", "45s")
	v.SetDefault("simulator.probability", 0.1)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.endpoint", "/metrics")
}

// overrideWithEnvVars overrides configuration with well-known environment variables
func overrideWithEnvVars(v *viper.Viper) {
	if host := os.Getenv("DATABASE_HOST"); host != "" {
		v.Set("store.database.host", host)
	}
	if port := os.Getenv("DATABASE_PORT"); port != "" {
		v.Set("store.database.port", port)
	}
	if name := os.Getenv("DATABASE_NAME"); name != "" {
		v.Set("store.database.name", name)
	}
	if username := os.Getenv("DATABASE_USERNAME"); username != "" {
		v.Set("store.database.username", username)
	}
	if password := os.Getenv("DATABASE_PASSWORD"); password != "" {
		v.Set("store.database.password", password)
	}
	if host := os.Getenv("REDIS_HOST"); host != "" {
		v.Set("store.redis.host", host)
	}
	if port := os.Getenv("REDIS_PORT"); port != "" {
		v.Set("store.redis.port", port)
	}
	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		v.Set("store.redis.password", password)
	}
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		v.Set("kafka.brokers", strings.Split(brokers, ","))
	}
}
