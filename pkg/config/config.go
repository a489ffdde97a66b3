package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment"`
	Server      struct {
		Port            int           `yaml:"port"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"metrics"`
	Backend struct {
		Type         string        `yaml:"type"`
		BatchSize    int           `yaml:"batch_size"`
		BatchTimeout time.Duration `yaml:"batch_timeout"`
	} `yaml:"backend"`
	Sources struct {
		Binance   BinanceConfig   `yaml:"binance"`
		Sim       SimConfig       `yaml:"sim"`
		Reconnect ReconnectConfig `yaml:"reconnect"`
	} `yaml:"sources"`
	WorkerPool struct {
		Workers     int           `yaml:"workers"`
		QueueSize   int           `yaml:"queue_size"`
		TaskTimeout time.Duration `yaml:"task_timeout"`
	} `yaml:"worker_pool"`
	Aggregator struct {
		QuoteTimeout time.Duration `yaml:"quote_timeout"`
		QuoteTTL     time.Duration `yaml:"quote_ttl"`
		Venues       []VenueConfig `yaml:"venues"`
	} `yaml:"aggregator"`
	Fees struct {
		ServiceFeeBps  float64       `yaml:"service_fee_bps"`
		EstimateURL    string        `yaml:"estimate_url"`
		RefreshEvery   time.Duration `yaml:"refresh_every"`
		RequestTimeout time.Duration `yaml:"request_timeout"`
	} `yaml:"fees"`
	Trading struct {
		Enabled          bool          `yaml:"enabled"`
		Symbols          []string      `yaml:"symbols"`
		FastPeriod       int           `yaml:"fast_period"`
		SlowPeriod       int           `yaml:"slow_period"`
		RSIPeriod        int           `yaml:"rsi_period"`
		StartingCash     float64       `yaml:"starting_cash"`
		OrderNotional    float64       `yaml:"order_notional"`
		MaxPositionValue float64       `yaml:"max_position_value"`
		MaxDailyLoss     float64       `yaml:"max_daily_loss"`
		SlippageBps      float64       `yaml:"slippage_bps"`
		EvalInterval     time.Duration `yaml:"eval_interval"`
	} `yaml:"trading"`
	Kafka struct {
		Brokers        []string `yaml:"brokers"`
		TicksTopic     string   `yaml:"ticks_topic"`
		ExecutionTopic string   `yaml:"execution_topic"`
		RequiredAcks   int      `yaml:"required_acks"`
		Compression    string   `yaml:"compression"`
		Producer       struct {
			MaxAttempts  int           `yaml:"max_attempts"`
			Linger       time.Duration `yaml:"linger"`
			BatchBytes   int           `yaml:"batch_bytes"`
			BatchSize    int           `yaml:"batch_size"`
			WriteTimeout time.Duration `yaml:"write_timeout"`
			ReadTimeout  time.Duration `yaml:"read_timeout"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID    string        `yaml:"group_id"`
			Workers    int           `yaml:"workers"`
			BufferSize int           `yaml:"buffer_size"`
			RetryMax   int           `yaml:"retry_max"`
			BackoffMin time.Duration `yaml:"backoff_min"`
			BackoffMax time.Duration `yaml:"backoff_max"`
			DLQTopic   string        `yaml:"dlq_topic"`
			MinBytes   int           `yaml:"min_bytes"`
			MaxBytes   int           `yaml:"max_bytes"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Host             string        `yaml:"host"`
		Port             int           `yaml:"port"`
		Database         string        `yaml:"database"`
		User             string        `yaml:"user"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout"`
		ReadTimeout      time.Duration `yaml:"read_timeout"`
		WriteTimeout     time.Duration `yaml:"write_timeout"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time"`
	} `yaml:"clickhouse"`
	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Queue    struct {
			Workers    int           `yaml:"workers"`
			RetryLimit int           `yaml:"retry_limit"`
			RetryDelay time.Duration `yaml:"retry_delay"`
		} `yaml:"queue"`
	} `yaml:"redis"`
}

// BinanceConfig configures the Binance combined-stream source.
type BinanceConfig struct {
	Enabled      bool          `yaml:"enabled"`
	StreamURL    string        `yaml:"stream_url"`
	Symbols      []string      `yaml:"symbols"`
	PingInterval time.Duration `yaml:"ping_interval"`
	PongWait     time.Duration `yaml:"pong_wait"`
}

// SimConfig configures the random-walk source.
type SimConfig struct {
	Enabled    bool          `yaml:"enabled"`
	Symbols    []string      `yaml:"symbols"`
	StartPrice float64       `yaml:"start_price"`
	Drift      float64       `yaml:"drift"`
	Volatility float64       `yaml:"volatility"`
	Interval   time.Duration `yaml:"interval"`
}

// ReconnectConfig is shared by all live stream connections.
type ReconnectConfig struct {
	Policy      string        `yaml:"policy"` // fixed | exponential
	Interval    time.Duration `yaml:"interval"`
	MaxInterval time.Duration `yaml:"max_interval"`
	MaxAttempts int           `yaml:"max_attempts"`
}

// VenueConfig describes one quoted DEX venue for the aggregator.
type VenueConfig struct {
	Name      string  `yaml:"name"`
	FeeBps    float64 `yaml:"fee_bps"`
	Depth     float64 `yaml:"depth"`      // max base size quoted at top-of-book
	SpreadBps float64 `yaml:"spread_bps"` // half-spread applied around mid
	LatencyMs int     `yaml:"latency_ms"` // simulated response latency upper bound
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// Validate required fields
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	// Override with environment variables
	if v := os.Getenv("SYMBOLS"); v != "" {
		c.Sources.Binance.Symbols = strings.Split(v, ",")
	}
	if v := os.Getenv("BACKEND"); v != "" {
		c.Backend.Type = v
	}
	if v := os.Getenv("BINANCE_STREAM_URL"); v != "" {
		c.Sources.Binance.StreamURL = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("KAFKA_TICKS_TOPIC"); v != "" {
		c.Kafka.TicksTopic = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}

	return c, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if c.Backend.Type == "" {
		return fmt.Errorf("backend.type is required")
	}
	if c.Backend.Type != "kafka" && c.Backend.Type != "clickhouse" {
		return fmt.Errorf("backend.type must be 'kafka' or 'clickhouse', got '%s'", c.Backend.Type)
	}
	if !c.Sources.Binance.Enabled && !c.Sources.Sim.Enabled {
		return fmt.Errorf("at least one market source must be enabled")
	}
	if c.Sources.Binance.Enabled && len(c.Sources.Binance.Symbols) == 0 {
		return fmt.Errorf("sources.binance.symbols cannot be empty")
	}
	switch c.Sources.Reconnect.Policy {
	case "", "fixed", "exponential":
	default:
		return fmt.Errorf("sources.reconnect.policy must be 'fixed' or 'exponential', got '%s'", c.Sources.Reconnect.Policy)
	}
	if c.WorkerPool.Workers < 0 || c.WorkerPool.QueueSize < 0 {
		return fmt.Errorf("worker_pool values must be non-negative")
	}
	return nil
}
