package config

import (
	"time"

	"github.com/spf13/viper"
)

// Config is the full service configuration, loaded once in main and passed
// down explicitly.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	MySQL    MySQLConfig    `mapstructure:"mysql"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Gateway  GatewayConfig  `mapstructure:"gateway"`
	Business BusinessConfig `mapstructure:"business"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type MySQLConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type KafkaConfig struct {
	Brokers []string         `mapstructure:"brokers"`
	Topic   KafkaTopicConfig `mapstructure:"topic"`
}

type KafkaTopicConfig struct {
	OrderEvents   string `mapstructure:"order_events"`
	PaymentEvents string `mapstructure:"payment_events"`
}

// GatewayConfig points at the payment provider endpoints. Endpoints maps a
// payment method to its base URL; unlisted methods fall back to BaseURL.
type GatewayConfig struct {
	BaseURL        string            `mapstructure:"base_url"`
	Endpoints      map[string]string `mapstructure:"endpoints"`
	TimeoutSeconds int               `mapstructure:"timeout_seconds"`
	MaxRetries     int               `mapstructure:"max_retries"`
	UserDirectory  string            `mapstructure:"user_directory_url"`
}

type BusinessConfig struct {
	ReservationTTLMinutes   int `mapstructure:"reservation_ttl_minutes"`
	ProcessingGraceMinutes  int `mapstructure:"processing_grace_minutes"`
	MaxRetryCount           int `mapstructure:"max_retry_count"`
	NumberCacheTTLSeconds   int `mapstructure:"number_cache_ttl_seconds"`
	CatalogCacheTTLSeconds  int `mapstructure:"catalog_cache_ttl_seconds"`
	SweepIntervalSeconds    int `mapstructure:"sweep_interval_seconds"`
	ReconcileIntervalSecond int `mapstructure:"reconcile_interval_seconds"`
}

// ReservationTTL returns the configured TTL with a 30 minute default.
func (b BusinessConfig) ReservationTTL() time.Duration {
	if b.ReservationTTLMinutes <= 0 {
		return 30 * time.Minute
	}
	return time.Duration(b.ReservationTTLMinutes) * time.Minute
}

// NumberCacheTTL defaults to 5 minutes; number status is volatile.
func (b BusinessConfig) NumberCacheTTL() time.Duration {
	if b.NumberCacheTTLSeconds <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(b.NumberCacheTTLSeconds) * time.Second
}

// CatalogCacheTTL defaults to 30 minutes; plans and devices change rarely.
func (b BusinessConfig) CatalogCacheTTL() time.Duration {
	if b.CatalogCacheTTLSeconds <= 0 {
		return 30 * time.Minute
	}
	return time.Duration(b.CatalogCacheTTLSeconds) * time.Second
}

func (g GatewayConfig) Timeout() time.Duration {
	if g.TimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(g.TimeoutSeconds) * time.Second
}

// LoadConfig reads the yaml config at configPath.
func LoadConfig(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		return nil, err
	}

	return config, nil
}
