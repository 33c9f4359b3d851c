package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/yitech/klinechart/adapter/binance"
	"github.com/yitech/klinechart/model/market"
	"github.com/yitech/klinechart/store"
)

const (
	SourceBinance = "binance"
	SourceRelay   = "relay"

	BackendFile     = "file"
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

type Config struct {
	Feed struct {
		Source    string `yaml:"source"`
		Endpoint  string `yaml:"endpoint"`
		RelayAddr string `yaml:"relay_addr"`
	} `yaml:"feed"`
	Market struct {
		Pairs     []string `yaml:"pairs"`
		Intervals []string `yaml:"intervals"`
		Window    int      `yaml:"window"`
	} `yaml:"market"`
	Storage struct {
		Backend string `yaml:"backend"`
		Key     string `yaml:"key"`
		Dir     string `yaml:"dir"`
		Redis   struct {
			Addr     string `yaml:"addr"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
		} `yaml:"redis"`
		Postgres struct {
			DSN string `yaml:"dsn"`
		} `yaml:"postgres"`
	} `yaml:"storage"`
	Log struct {
		Level string `yaml:"level"`
		File  string `yaml:"file"`
	} `yaml:"log"`
	Trace struct {
		Enabled bool   `yaml:"enabled"`
		File    string `yaml:"file"`
	} `yaml:"trace"`
	Relay struct {
		Listen string `yaml:"listen"`
		Admin  string `yaml:"admin"`
		Buffer int    `yaml:"buffer"`
		Kafka  struct {
			Brokers []string `yaml:"brokers"`
			Topic   string   `yaml:"topic"`
		} `yaml:"kafka"`
	} `yaml:"relay"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	c := &Config{}
	c.Feed.Source = SourceBinance
	c.Feed.Endpoint = binance.DefaultEndpoint
	c.Feed.RelayAddr = "localhost:50051"
	c.Market.Pairs = append([]string(nil), market.DefaultPairs...)
	c.Market.Intervals = append([]string(nil), market.DefaultIntervals...)
	c.Market.Window = store.DefaultWindow
	c.Storage.Backend = BackendFile
	c.Storage.Key = store.DefaultKey
	c.Storage.Dir = defaultDataDir()
	c.Storage.Redis.Addr = "localhost:6379"
	c.Log.Level = "INFO"
	c.Relay.Listen = ":50051"
	c.Relay.Admin = ":9090"
	c.Relay.Buffer = 256
	c.Relay.Kafka.Topic = "klines"
	return c
}

func defaultDataDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "klinechart")
	}
	return ".klinechart"
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. A missing file is not an error.
func Load(path string) (*Config, error) {
	c := Default()

	b, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(b, c); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	c.ApplyEnv()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// ApplyEnv overrides fields from the environment.
func (c *Config) ApplyEnv() {
	c.Feed.Source = getEnv("FEED_SOURCE", c.Feed.Source)
	c.Feed.Endpoint = getEnv("FEED_ENDPOINT", c.Feed.Endpoint)
	c.Feed.RelayAddr = getEnv("RELAY_ADDR", c.Feed.RelayAddr)
	c.Market.Pairs = getEnvList("PAIRS", c.Market.Pairs)
	c.Market.Intervals = getEnvList("INTERVALS", c.Market.Intervals)
	c.Market.Window = getEnvInt("WINDOW", c.Market.Window)
	c.Storage.Backend = getEnv("STORAGE_BACKEND", c.Storage.Backend)
	c.Storage.Key = getEnv("STORAGE_KEY", c.Storage.Key)
	c.Storage.Dir = getEnv("STORAGE_DIR", c.Storage.Dir)
	c.Storage.Redis.Addr = getEnv("REDIS_ADDR", c.Storage.Redis.Addr)
	c.Storage.Redis.Password = getEnv("REDIS_PASSWORD", c.Storage.Redis.Password)
	c.Storage.Redis.DB = getEnvInt("REDIS_DB", c.Storage.Redis.DB)
	c.Storage.Postgres.DSN = getEnv("POSTGRES_DSN", c.Storage.Postgres.DSN)
	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.File = getEnv("LOG_FILE", c.Log.File)
	c.Trace.Enabled = getEnv("TRACE_ENABLED", strconv.FormatBool(c.Trace.Enabled)) == "true"
	c.Trace.File = getEnv("TRACE_FILE", c.Trace.File)
	c.Relay.Listen = getEnv("RELAY_LISTEN", c.Relay.Listen)
	c.Relay.Admin = getEnv("ADMIN_LISTEN", c.Relay.Admin)
	c.Relay.Kafka.Brokers = getEnvList("KAFKA_BROKERS", c.Relay.Kafka.Brokers)
	c.Relay.Kafka.Topic = getEnv("KAFKA_TOPIC", c.Relay.Kafka.Topic)
}

func (c *Config) Validate() error {
	if len(c.Market.Pairs) == 0 {
		return errors.New("config: market.pairs cannot be empty")
	}
	if len(c.Market.Intervals) == 0 {
		return errors.New("config: market.intervals cannot be empty")
	}
	if c.Market.Window <= 0 {
		return fmt.Errorf("config: market.window must be positive, got %d", c.Market.Window)
	}
	switch c.Feed.Source {
	case SourceBinance, SourceRelay:
	default:
		return fmt.Errorf("config: feed.source must be %q or %q, got %q", SourceBinance, SourceRelay, c.Feed.Source)
	}
	switch c.Storage.Backend {
	case BackendFile, BackendMemory, BackendRedis:
	case BackendPostgres:
		if c.Storage.Postgres.DSN == "" {
			return errors.New("config: storage.postgres.dsn is required for the postgres backend")
		}
	default:
		return fmt.Errorf("config: unknown storage.backend %q", c.Storage.Backend)
	}
	if len(c.Relay.Kafka.Brokers) > 0 && c.Relay.Kafka.Topic == "" {
		return errors.New("config: relay.kafka.topic is required when brokers are set")
	}
	return nil
}

// Universe returns the selectable pairs and intervals.
func (c *Config) Universe() market.Universe {
	return market.Universe{
		Pairs:     append([]string(nil), c.Market.Pairs...),
		Intervals: append([]string(nil), c.Market.Intervals...),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

// getEnvList reads a comma separated list, e.g. PAIRS=ETHUSDT,BNBUSDT.
func getEnvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
