package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const envPrefix = "FRESHCART"

// Storage drivers.
const (
	DriverMemory = "memory"
	DriverMongo  = "mongo"
)

type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Storage       StorageConfig       `mapstructure:"storage"`
	Gateway       GatewayConfig       `mapstructure:"gateway"`
	GRPC          GRPCConfig          `mapstructure:"grpc"`
	Etcd          EtcdConfig          `mapstructure:"etcd"`
	Redis         RedisConfig         `mapstructure:"redis"`
	MySQL         MySQLConfig         `mapstructure:"mysql"`
	MongoDB       MongoDBConfig       `mapstructure:"mongodb"`
	Kafka         KafkaConfig         `mapstructure:"kafka"`
	Checkout      CheckoutConfig      `mapstructure:"checkout"`
	Subscriptions SubscriptionsConfig `mapstructure:"subscriptions"`
	Log           LogConfig           `mapstructure:"log"`
}

type ServerConfig struct {
	Name string `mapstructure:"name"`
	Port int    `mapstructure:"port"`
	Host string `mapstructure:"host"`
}

type StorageConfig struct {
	Driver string `mapstructure:"driver"`
}

type GatewayConfig struct {
	Port            int           `mapstructure:"port"`
	Host            string        `mapstructure:"host"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type GRPCConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	Port          int           `mapstructure:"port"`
	Host          string        `mapstructure:"host"`
	ProbeInterval time.Duration `mapstructure:"probe_interval"`
}

type EtcdConfig struct {
	Endpoints   []string      `mapstructure:"endpoints"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
	Prefix      string        `mapstructure:"prefix"`
	LeaseTTL    int64         `mapstructure:"lease_ttl"`
}

type RedisConfig struct {
	Addr           string        `mapstructure:"addr"`
	Password       string        `mapstructure:"password"`
	DB             int           `mapstructure:"db"`
	PoolSize       int           `mapstructure:"pool_size"`
	IdempotencyTTL time.Duration `mapstructure:"idempotency_ttl"`
	OrderCacheTTL  time.Duration `mapstructure:"order_cache_ttl"`
}

type MySQLConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

type MongoDBConfig struct {
	URI            string        `mapstructure:"uri"`
	Database       string        `mapstructure:"database"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

type KafkaConfig struct {
	Brokers      []string      `mapstructure:"brokers"`
	Topic        string        `mapstructure:"topic"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type CheckoutConfig struct {
	DefaultCutCharge    float64       `mapstructure:"default_cut_charge"`
	MinOrderValue       float64       `mapstructure:"min_order_value"`
	CommitTimeout       time.Duration `mapstructure:"commit_timeout"`
	NotificationTimeout time.Duration `mapstructure:"notification_timeout"`
}

type SubscriptionsConfig struct {
	Interval    time.Duration `mapstructure:"interval"`
	MaxAttempts int           `mapstructure:"max_attempts"`
	Location    string        `mapstructure:"location"`
}

type LogConfig struct {
	Level       string   `mapstructure:"level"`
	Encoding    string   `mapstructure:"encoding"`
	OutputPaths []string `mapstructure:"output_paths"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.name", "freshcart-checkout")
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8080)

	v.SetDefault("storage.driver", DriverMemory)

	v.SetDefault("gateway.host", "0.0.0.0")
	v.SetDefault("gateway.port", 8080)
	v.SetDefault("gateway.shutdown_timeout", 10*time.Second)

	v.SetDefault("grpc.enabled", false)
	v.SetDefault("grpc.host", "0.0.0.0")
	v.SetDefault("grpc.port", 9090)
	v.SetDefault("grpc.probe_interval", 15*time.Second)

	v.SetDefault("etcd.endpoints", []string{})
	v.SetDefault("etcd.dial_timeout", 5*time.Second)
	v.SetDefault("etcd.prefix", "/freshcart/services/")
	v.SetDefault("etcd.lease_ttl", 30)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.idempotency_ttl", 24*time.Hour)
	v.SetDefault("redis.order_cache_ttl", 5*time.Minute)

	v.SetDefault("mysql.host", "")
	v.SetDefault("mysql.port", 3306)
	v.SetDefault("mysql.username", "")
	v.SetDefault("mysql.password", "")
	v.SetDefault("mysql.database", "freshcart")
	v.SetDefault("mysql.max_idle_conns", 5)
	v.SetDefault("mysql.max_open_conns", 20)

	v.SetDefault("mongodb.uri", "mongodb://localhost:27017/?replicaSet=rs0")
	v.SetDefault("mongodb.database", "freshcart")
	v.SetDefault("mongodb.connect_timeout", 10*time.Second)

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", "order.placed")
	v.SetDefault("kafka.write_timeout", 5*time.Second)

	v.SetDefault("checkout.default_cut_charge", 10.0)
	v.SetDefault("checkout.min_order_value", 0.0)
	v.SetDefault("checkout.commit_timeout", 15*time.Second)
	v.SetDefault("checkout.notification_timeout", 10*time.Second)

	v.SetDefault("subscriptions.interval", time.Hour)
	v.SetDefault("subscriptions.max_attempts", 3)
	v.SetDefault("subscriptions.location", "Local")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "json")
	v.SetDefault("log.output_paths", []string{"stdout"})
}

// Load reads configPath, then applies FRESHCART_* environment overrides.
// A .env file in the working directory is loaded first when present. An
// empty configPath uses defaults and the environment only.
func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")

		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate rejects settings the services cannot start with.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case DriverMemory, DriverMongo:
	default:
		return fmt.Errorf("invalid config: unknown storage.driver %q", c.Storage.Driver)
	}
	if c.Storage.Driver == DriverMongo && c.MongoDB.URI == "" {
		return errors.New("invalid config: mongodb.uri is required for the mongo driver")
	}
	if c.Checkout.DefaultCutCharge < 0 || c.Checkout.MinOrderValue < 0 {
		return errors.New("invalid config: checkout charges must not be negative")
	}
	if c.Subscriptions.MaxAttempts < 1 {
		return errors.New("invalid config: subscriptions.max_attempts must be at least 1")
	}
	return nil
}

// TimeLocation resolves subscriptions.location for day boundaries.
func (c *SubscriptionsConfig) TimeLocation() (*time.Location, error) {
	if c.Location == "" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Location)
}

func (c *MySQLConfig) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		c.Username, c.Password, c.Host, c.Port, c.Database)
}
