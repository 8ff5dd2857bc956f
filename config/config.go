package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config is the whole application configuration. The JSON file is the base
// layer; .env and ADFORM_* variables override it (ADFORM_LLM_API_KEY etc).
type Config struct {
	ServerAddr string        `mapstructure:"server_addr"`
	JWTSecret  string        `mapstructure:"jwt_secret"`
	LLM        LLMConfig     `mapstructure:"llm"`
	Redis      RedisConfig   `mapstructure:"redis"`
	NATS       NATSConfig    `mapstructure:"nats"`
	Log        LogConfig     `mapstructure:"log"`
	Tracing    TracingConfig `mapstructure:"tracing"`
	Publish    PublishConfig `mapstructure:"publish"`
}

// LLMConfig 生成与审核共用的模型配置。
type LLMConfig struct {
	Provider string        `mapstructure:"provider"`
	Model    string        `mapstructure:"model"`
	APIKey   string        `mapstructure:"api_key"`
	BaseURL  string        `mapstructure:"base_url"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// RedisConfig selects the listing store. An empty address keeps listings in memory.
type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// NATSConfig enables listing.created events when URL is set.
type NATSConfig struct {
	URL            string        `mapstructure:"url"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

type LogConfig struct {
	Level    string `mapstructure:"level"`
	Encoding string `mapstructure:"encoding"`
}

type TracingConfig struct {
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	ServiceName  string `mapstructure:"service_name"`
}

type PublishConfig struct {
	Currency         string        `mapstructure:"currency"`
	SimulatedLatency time.Duration `mapstructure:"simulated_latency"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server_addr", ":8080")
	v.SetDefault("jwt_secret", "")

	v.SetDefault("llm.provider", "mock")
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.timeout", "30s")

	v.SetDefault("redis.address", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("nats.url", "")
	v.SetDefault("nats.connect_timeout", "5s")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "json")

	v.SetDefault("tracing.otlp_endpoint", "")
	v.SetDefault("tracing.service_name", "classifieds_ad_publisher")

	v.SetDefault("publish.currency", "GHS")
	v.SetDefault("publish.simulated_latency", "1500ms")
}

// Load reads path (JSON) if it exists, then applies .env and ADFORM_* overrides.
// A missing file is not an error: defaults and the environment are enough.
func Load(path string) (*Config, error) {
	// .env 是可选的
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("ADFORM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			v.SetConfigType("json")
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	// 兼容直接导出 OPENAI_API_KEY 的用法
	if cfg.LLM.APIKey == "" && cfg.LLM.Provider == "openai" {
		cfg.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the settings every mode needs.
func (c *Config) Validate() error {
	switch c.LLM.Provider {
	case "mock":
	case "openai":
		if c.LLM.APIKey == "" {
			return errors.New("llm provider openai requires llm.api_key")
		}
	case "deepseek":
		// DeepSeek 走 OpenAI 兼容接口，必须指定 base_url。
		if c.LLM.BaseURL == "" {
			return errors.New("llm provider deepseek requires base_url (OpenAI-compatible endpoint)")
		}
		if c.LLM.APIKey == "" {
			return errors.New("llm provider deepseek requires llm.api_key")
		}
	case "":
		return errors.New("llm.provider is required")
	default:
		return fmt.Errorf("llm provider %s not supported", c.LLM.Provider)
	}
	if c.LLM.Timeout < 0 {
		return errors.New("llm.timeout must not be negative")
	}
	if c.Publish.SimulatedLatency < 0 {
		return errors.New("publish.simulated_latency must not be negative")
	}
	return nil
}

// NewLogger builds the process logger. verbose forces debug level.
func (c LogConfig) NewLogger(verbose bool) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(strings.ToLower(c.Level))
	if err != nil {
		return nil, fmt.Errorf("log.level: %w", err)
	}
	if verbose {
		level = zapcore.DebugLevel
	}

	zc := zap.NewProductionConfig()
	if c.Encoding == "console" {
		zc = zap.NewDevelopmentConfig()
	} else if c.Encoding != "" && c.Encoding != "json" {
		return nil, fmt.Errorf("log.encoding %q not supported", c.Encoding)
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.EncoderConfig.TimeKey = "timestamp"
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return zc.Build()
}
