// Package config reads the settings of the mini-redirect commands from the
// environment. Library packages take their settings programmatically; only
// the commands call Load.
package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog"

	"mini-redirect/heart"
	"mini-redirect/store"
)

var ErrInvalid = errors.New("config: invalid")

// Store backends.
const (
	StoreMemory   = "memory"
	StoreEtcd     = "etcd"
	StoreRedis    = "redis"
	StorePostgres = "postgres"
)

type Config struct {
	ServiceType  string        `env:"REDIRECT_SERVICE_TYPE,required"`
	InstanceName string        `env:"REDIRECT_INSTANCE_NAME"` // empty: local address
	HeartRate    time.Duration `env:"REDIRECT_HEART_RATE" envDefault:"10s"`
	TTLRatio     float64       `env:"REDIRECT_TTL_RATIO" envDefault:"3"`
	MemoryTTL    time.Duration `env:"REDIRECT_MEMORY_TTL" envDefault:"20s"`

	Store          string        `env:"REDIRECT_STORE" envDefault:"memory"`
	EtcdEndpoints  []string      `env:"REDIRECT_ETCD_ENDPOINTS" envSeparator:"," envDefault:"127.0.0.1:2379"`
	RedisAddr      string        `env:"REDIRECT_REDIS_ADDR" envDefault:"127.0.0.1:6379"`
	PostgresDSN    string        `env:"REDIRECT_POSTGRES_DSN"`
	StoreRetries   int           `env:"REDIRECT_STORE_RETRIES" envDefault:"2"`
	StoreBaseDelay time.Duration `env:"REDIRECT_STORE_RETRY_DELAY" envDefault:"50ms"`

	ListenAddr     string        `env:"REDIRECT_LISTEN_ADDR" envDefault:":8080"`
	LogLevel       string        `env:"REDIRECT_LOG_LEVEL" envDefault:"info"`
	RateLimit      float64       `env:"REDIRECT_RATE_LIMIT" envDefault:"0"` // requests per second, 0 disables
	RateBurst      int           `env:"REDIRECT_RATE_BURST" envDefault:"0"`
	RequestTimeout time.Duration `env:"REDIRECT_REQUEST_TIMEOUT" envDefault:"5s"`

	// Only behind a proxy that overwrites X-Forwarded-For and X-Real-IP
	TrustProxyHeaders bool `env:"REDIRECT_TRUST_PROXY_HEADERS" envDefault:"false"`
}

// Load parses the process environment and validates the result.
func Load() (Config, error) {
	return parse(env.Options{})
}

// LoadFrom is Load over an explicit environment.
func LoadFrom(environ map[string]string) (Config, error) {
	return parse(env.Options{Environment: environ})
}

func parse(opts env.Options) (Config, error) {
	cfg, err := env.ParseAsWithOptions[Config](opts)
	if err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	if c.ServiceType == "" {
		errs = append(errs, errors.New("service type is required"))
	}
	if c.HeartRate < heart.MinHeartRate {
		errs = append(errs, fmt.Errorf("heart rate %s below minimum %s", c.HeartRate, heart.MinHeartRate))
	}
	if c.TTLRatio <= 1 {
		errs = append(errs, fmt.Errorf("ttl ratio %v must be greater than 1", c.TTLRatio))
	}
	if c.MemoryTTL <= 0 {
		errs = append(errs, errors.New("redirection memory ttl must be positive"))
	}
	if c.StoreRetries < 0 {
		errs = append(errs, errors.New("store retries cannot be negative"))
	}
	if c.RateLimit < 0 || c.RateBurst < 0 {
		errs = append(errs, errors.New("rate limit and burst cannot be negative"))
	}
	if c.RateLimit > 0 && c.RateBurst == 0 {
		errs = append(errs, errors.New("rate limit needs a burst of at least 1"))
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}

	switch c.Store {
	case StoreMemory:
	case StoreEtcd:
		if len(c.EtcdEndpoints) == 0 {
			errs = append(errs, errors.New("etcd store needs endpoints"))
		}
	case StoreRedis:
		if c.RedisAddr == "" {
			errs = append(errs, errors.New("redis store needs an address"))
		}
	case StorePostgres:
		if c.PostgresDSN == "" {
			errs = append(errs, errors.New("postgres store needs a dsn"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store %q", c.Store))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}

// Logger builds the process logger at the configured level.
func (c Config) Logger(w io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}

// OpenStore connects the configured backend and wraps it with retries.
func (c Config) OpenStore(ctx context.Context, log zerolog.Logger) (store.Store, error) {
	var (
		s   store.Store
		err error
	)
	switch c.Store {
	case StoreEtcd:
		s, err = store.NewEtcd(c.EtcdEndpoints, 5*time.Second)
	case StoreRedis:
		r := store.NewRedis(c.RedisAddr)
		if err = r.Ping(ctx); err != nil {
			r.Close()
		}
		s = r
	case StorePostgres:
		s, err = store.NewPostgres(ctx, c.PostgresDSN)
	default:
		s = store.NewMemory()
	}
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", c.Store, err)
	}
	log.Info().Str("store", c.Store).Int("retries", c.StoreRetries).Msg("store opened")

	if c.StoreRetries == 0 {
		return s, nil
	}
	return store.NewRetrying(s, c.StoreRetries, c.StoreBaseDelay, log), nil
}
