package configs

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "CARTSVC_"

type Config struct {
	App struct {
		Name     string `koanf:"name"`
		HTTPAddr string `koanf:"http_addr"`
		GRPCAddr string `koanf:"grpc_addr"`
		LogLevel string `koanf:"log_level"`
		LogFile  string `koanf:"log_file"`
	} `koanf:"app"`

	HTTP struct {
		ReadTimeout    time.Duration `koanf:"read_timeout"`
		WriteTimeout   time.Duration `koanf:"write_timeout"`
		IdleTimeout    time.Duration `koanf:"idle_timeout"`
		RequestTimeout time.Duration `koanf:"request_timeout"`
		MaxBodyBytes   int64         `koanf:"max_body_bytes"`
	} `koanf:"http"`

	Store struct {
		// memory | redis | mongo | sqlite | postgres
		Backend   string `koanf:"backend"`
		KeyPrefix string `koanf:"key_prefix"`
		// IdleTTL drops carts unused this long from memory; 0 keeps them.
		IdleTTL time.Duration `koanf:"idle_ttl"`
		// Cache puts Redis in front of a durable backend.
		Cache   bool `koanf:"cache"`
		Breaker struct {
			Enabled          bool          `koanf:"enabled"`
			FailureThreshold uint32        `koanf:"failure_threshold"`
			OpenTimeout      time.Duration `koanf:"open_timeout"`
		} `koanf:"breaker"`
	} `koanf:"store"`

	Redis struct {
		Addr     string        `koanf:"addr"`
		Password string        `koanf:"password"`
		DB       int           `koanf:"db"`
		TTL      time.Duration `koanf:"ttl"`
	} `koanf:"redis"`

	Mongo struct {
		URI      string `koanf:"uri"`
		Database string `koanf:"database"`
	} `koanf:"mongo"`

	SQLite struct {
		Path string `koanf:"path"`
	} `koanf:"sqlite"`

	Postgres struct {
		DSN string `koanf:"dsn"`
	} `koanf:"postgres"`

	Kafka struct {
		Brokers        []string `koanf:"brokers"`
		CheckoutTopic  string   `koanf:"checkout_topic"`
		CompletedTopic string   `koanf:"completed_topic"`
		GroupID        string   `koanf:"group_id"`
	} `koanf:"kafka"`

	Checkout struct {
		Currency string `koanf:"currency"`
	} `koanf:"checkout"`
}

func Load(pathDir, envName string) (Config, error) {
	k := koanf.New(".")
	if err := k.Load(file.Provider(fmt.Sprintf("%s/base.yaml", pathDir)), yaml.Parser()); err != nil {
		return Config{}, fmt.Errorf("load base: %w", err)
	}

	// per-environment overlay is optional
	if envName != "" {
		_ = k.Load(file.Provider(fmt.Sprintf("%s/%s.yaml", pathDir, envName)), yaml.Parser())
	}

	// CARTSVC_REDIS__ADDR -> redis.addr
	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(s, envPrefix)
		s = strings.ReplaceAll(s, "__", ".")
		return strings.ToLower(s)
	}), nil); err != nil {
		return Config{}, fmt.Errorf("env overlay: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.App.HTTPAddr == "" {
		return fmt.Errorf("app.http_addr required")
	}

	switch c.Store.Backend {
	case "memory":
	case "redis":
		if c.Redis.Addr == "" {
			return fmt.Errorf("redis.addr required for redis backend")
		}
	case "mongo":
		if c.Mongo.URI == "" || c.Mongo.Database == "" {
			return fmt.Errorf("mongo.uri and mongo.database required for mongo backend")
		}
	case "sqlite":
		if c.SQLite.Path == "" {
			return fmt.Errorf("sqlite.path required for sqlite backend")
		}
	case "postgres":
		if c.Postgres.DSN == "" {
			return fmt.Errorf("postgres.dsn required for postgres backend")
		}
	default:
		return fmt.Errorf("store.backend %q not supported", c.Store.Backend)
	}

	if c.Store.Cache {
		if c.Store.Backend == "memory" || c.Store.Backend == "redis" {
			return fmt.Errorf("store.cache needs a durable backend, got %q", c.Store.Backend)
		}
		if c.Redis.Addr == "" {
			return fmt.Errorf("redis.addr required when store.cache is set")
		}
	}

	if len(c.Kafka.Brokers) > 0 && c.Kafka.CheckoutTopic == "" {
		return fmt.Errorf("kafka.checkout_topic required when brokers are set")
	}
	return nil
}
