package redis

import (
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds Redis connection and stream configuration
type Config struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`

	// Connection pool settings
	PoolSize     int           `yaml:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns"`
	MaxRetries   int           `yaml:"max_retries"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// Stream settings
	Routes        []string      `yaml:"routes"`
	ConsumerGroup string        `yaml:"consumer_group"`
	ConsumerName  string        `yaml:"consumer_name"`
	BatchSize     int64         `yaml:"batch_size"`
	Block         time.Duration `yaml:"block"`
	MaxLen        int64         `yaml:"max_len"`
}

// DefaultConfig returns development defaults
func DefaultConfig() Config {
	return Config{
		Addr:          "localhost:6379",
		PoolSize:      10,
		MinIdleConns:  2,
		MaxRetries:    3,
		DialTimeout:   5 * time.Second,
		ReadTimeout:   3 * time.Second,
		WriteTimeout:  3 * time.Second,
		ConsumerGroup: "patchwork-workers",
		ConsumerName:  fmt.Sprintf("patchwork-%d", os.Getpid()),
		BatchSize:     10,
		Block:         time.Second,
	}
}

// NewClient creates a Redis client from the config
func NewClient(cfg Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		MaxRetries:   cfg.MaxRetries,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})
}

// getStreamKey returns the Redis stream key for a route
func getStreamKey(route string) string {
	return fmt.Sprintf("patchwork:stream:%s", route)
}
