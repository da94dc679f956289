package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-yaml"

	"github.com/z-wentao/tubenotes/pkg/apify"
)

const (
	DefaultPort         = 3000
	DefaultOutputDir    = "output"
	DefaultMaxSaveSize  = 2 * 1024 * 1024
	DefaultModel        = "openai/gpt-3.5-turbo"
	DefaultMaxTokens    = 2000
	DefaultTemperature  = float32(0.3)
	DefaultOpenRouter   = "https://openrouter.ai/api/v1"
	DefaultApifyTask    = apify.DefaultTaskID
	DefaultQueueName    = "tubenotes_jobs"
	DefaultJobTimeout   = 30 * time.Minute
	DefaultRedisTTL     = 7 * 24 * time.Hour
	DefaultHTTPTimeout  = 30 * time.Second
	DefaultPollInterval = 2 * time.Second
	DefaultApifyWait    = 5 * time.Minute
)

type Config struct {
	Server     ServerConfig      `yaml:"server"`
	YouTube    YouTubeConfig     `yaml:"youtube"`
	OpenRouter OpenRouterConfig  `yaml:"openrouter"`
	Apify      ApifyConfig       `yaml:"apify"`
	Queue      QueueConfig       `yaml:"queue"`
	Storage    StorageConfig     `yaml:"storage"`
	Worker     WorkerConfig      `yaml:"worker"`
	Prompts    map[string]string `yaml:"prompts"`
}

type ServerConfig struct {
	Port        int    `yaml:"port"`
	OutputDir   string `yaml:"output_dir"`
	MaxSaveSize int    `yaml:"max_save_size"`
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"` // text or json
}

type YouTubeConfig struct {
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout"`
}

type OpenRouterConfig struct {
	APIKey       string        `yaml:"api_key"`
	BaseURL      string        `yaml:"base_url"`
	DefaultModel string        `yaml:"default_model"`
	MaxTokens    int           `yaml:"max_tokens"`
	// Temperature is a pointer so an explicit 0 survives defaulting.
	Temperature  *float32      `yaml:"temperature"`
	Timeout      time.Duration `yaml:"timeout"`
}

// ApifyConfig configures the paid transcript scraper. It stays disabled
// while APIKey is empty.
type ApifyConfig struct {
	APIKey       string        `yaml:"api_key"`
	TaskID       string        `yaml:"task_id"`
	PollInterval time.Duration `yaml:"poll_interval"`
	WaitTimeout  time.Duration `yaml:"wait_timeout"`
}

type QueueConfig struct {
	Type       string         `yaml:"type"` // memory or rabbitmq
	BufferSize int            `yaml:"buffer_size"`
	RabbitMQ   RabbitMQConfig `yaml:"rabbitmq"`
}

type RabbitMQConfig struct {
	URL       string `yaml:"url"`
	QueueName string `yaml:"queue_name"`
}

type StorageConfig struct {
	Type     string         `yaml:"type"` // memory, redis, postgres or hybrid
	Redis    RedisConfig    `yaml:"redis"`
	Postgres PostgresConfig `yaml:"postgres"`
}

type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

type WorkerConfig struct {
	PoolSize   int           `yaml:"pool_size"`
	JobTimeout time.Duration `yaml:"job_timeout"`
}

// Loader reads the YAML file and then applies environment overrides.
// Tests replace Lookup with a map.
type Loader struct {
	Lookup func(string) (string, bool)
}

// Load reads path if it exists; a missing file leaves every field at its
// default so the service can run from environment variables alone.
func (l Loader) Load(path string) (*Config, error) {
	if l.Lookup == nil {
		l.Lookup = os.LookupEnv
	}

	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("config: parse %s: %w", path, err)
			}
		}
	}

	if err := l.applyEnv(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadConfig loads path with the process environment.
func LoadConfig(path string) (*Config, error) {
	return Loader{}.Load(path)
}

func (l Loader) applyEnv(cfg *Config) error {
	overrideString(l.Lookup, "YOUTUBE_API_KEY", &cfg.YouTube.APIKey)
	overrideString(l.Lookup, "OPENROUTER_API_KEY", &cfg.OpenRouter.APIKey)
	overrideString(l.Lookup, "OPENROUTER_MODEL", &cfg.OpenRouter.DefaultModel)
	overrideString(l.Lookup, "APIFY_API_KEY", &cfg.Apify.APIKey)
	overrideString(l.Lookup, "APIFY_TASK_ID", &cfg.Apify.TaskID)
	overrideString(l.Lookup, "OUTPUT_DIR", &cfg.Server.OutputDir)
	overrideString(l.Lookup, "LOG_LEVEL", &cfg.Server.LogLevel)
	overrideString(l.Lookup, "REDIS_ADDR", &cfg.Storage.Redis.Addr)
	overrideString(l.Lookup, "DATABASE_URL", &cfg.Storage.Postgres.DSN)
	overrideString(l.Lookup, "RABBITMQ_URL", &cfg.Queue.RabbitMQ.URL)

	if v, ok := l.Lookup("PORT"); ok && strings.TrimSpace(v) != "" {
		port, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("config: PORT %q is not a number", v)
		}
		cfg.Server.Port = port
	}
	return nil
}

func overrideString(lookup func(string) (string, bool), key string, target *string) {
	if value, ok := lookup(key); ok && strings.TrimSpace(value) != "" {
		*target = strings.TrimSpace(value)
	}
}

// Validate fills defaults and rejects inconsistent settings. Missing api
// keys are allowed here; the affected features report it at request time.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 {
		c.Server.Port = DefaultPort
	}
	if c.Server.Port > 65535 {
		return fmt.Errorf("config: port %d out of range", c.Server.Port)
	}
	if c.Server.OutputDir == "" {
		c.Server.OutputDir = DefaultOutputDir
	}
	if c.Server.MaxSaveSize <= 0 {
		c.Server.MaxSaveSize = DefaultMaxSaveSize
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}
	switch c.Server.LogFormat {
	case "":
		c.Server.LogFormat = "text"
	case "text", "json":
	default:
		return fmt.Errorf("config: unknown log_format %q", c.Server.LogFormat)
	}

	if c.YouTube.Timeout <= 0 {
		c.YouTube.Timeout = DefaultHTTPTimeout
	}

	if c.OpenRouter.BaseURL == "" {
		c.OpenRouter.BaseURL = DefaultOpenRouter
	}
	if c.OpenRouter.DefaultModel == "" {
		c.OpenRouter.DefaultModel = DefaultModel
	}
	if c.OpenRouter.MaxTokens <= 0 {
		c.OpenRouter.MaxTokens = DefaultMaxTokens
	}
	if c.OpenRouter.Temperature == nil {
		t := DefaultTemperature
		c.OpenRouter.Temperature = &t
	}
	if t := *c.OpenRouter.Temperature; t < 0 || t > 2 {
		return fmt.Errorf("config: openrouter temperature %v out of range [0, 2]", t)
	}
	if c.OpenRouter.Timeout <= 0 {
		c.OpenRouter.Timeout = 2 * time.Minute
	}

	if c.Apify.TaskID == "" {
		c.Apify.TaskID = DefaultApifyTask
	}
	if c.Apify.PollInterval <= 0 {
		c.Apify.PollInterval = DefaultPollInterval
	}
	if c.Apify.WaitTimeout <= 0 {
		c.Apify.WaitTimeout = DefaultApifyWait
	}

	if c.Queue.Type == "" {
		c.Queue.Type = "memory"
	}
	if c.Queue.BufferSize <= 0 {
		c.Queue.BufferSize = 100
	}
	if c.Queue.RabbitMQ.QueueName == "" {
		c.Queue.RabbitMQ.QueueName = DefaultQueueName
	}
	switch c.Queue.Type {
	case "memory":
	case "rabbitmq":
		if c.Queue.RabbitMQ.URL == "" {
			return fmt.Errorf("config: queue type rabbitmq needs queue.rabbitmq.url or RABBITMQ_URL")
		}
	default:
		return fmt.Errorf("config: unknown queue type %q", c.Queue.Type)
	}

	if c.Storage.Type == "" {
		c.Storage.Type = "memory"
	}
	if c.Storage.Redis.TTL <= 0 {
		c.Storage.Redis.TTL = DefaultRedisTTL
	}
	needRedis, needPostgres := false, false
	switch c.Storage.Type {
	case "memory":
	case "redis":
		needRedis = true
	case "postgres":
		needPostgres = true
	case "hybrid":
		needRedis, needPostgres = true, true
	default:
		return fmt.Errorf("config: unknown storage type %q", c.Storage.Type)
	}
	if needRedis && c.Storage.Redis.Addr == "" {
		return fmt.Errorf("config: storage type %s needs storage.redis.addr or REDIS_ADDR", c.Storage.Type)
	}
	if needPostgres && c.Storage.Postgres.DSN == "" {
		return fmt.Errorf("config: storage type %s needs storage.postgres.dsn or DATABASE_URL", c.Storage.Type)
	}

	if c.Worker.PoolSize <= 0 {
		c.Worker.PoolSize = 2
	}
	if c.Worker.JobTimeout <= 0 {
		c.Worker.JobTimeout = DefaultJobTimeout
	}
	return nil
}
