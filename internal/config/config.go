// Package config loads the process-wide NanoGridBot configuration from YAML
// plus environment overrides, following the teacher's config.Load shape.
package config

import (
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Telegram  TelegramConfig  `yaml:"telegram"`
	Discord   DiscordConfig   `yaml:"discord"`
	Defaults  DefaultsConfig  `yaml:"defaults"`
	Store     StoreConfig     `yaml:"store"`
	Router    RouterConfig    `yaml:"router"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Web       WebConfig       `yaml:"web"`
	EventBus  EventBusConfig  `yaml:"eventbus"`
}

type TelegramConfig struct {
	Token      string  `yaml:"token"`
	AllowFrom  []int64 `yaml:"allow_from"`
	MainChatID int64   `yaml:"main_chat_id"`
}

type DiscordConfig struct {
	Token string `yaml:"token"`
}

type DefaultsConfig struct {
	Image              string        `yaml:"image"`
	ContainerRuntime   string        `yaml:"container_runtime"`
	MaxConcurrent      int           `yaml:"max_concurrent"`
	ContainerTimeout   time.Duration `yaml:"container_timeout"`
	MemoryLimit        string        `yaml:"memory_limit"`
	CPULimit           string        `yaml:"cpu_limit"`
	AnthropicAPIKey    string        `yaml:"anthropic_api_key"`
	AssistantName      string        `yaml:"assistant_name"`
	RetentionMaxAge    time.Duration `yaml:"retention_max_age"`
}

type StoreConfig struct {
	Path       string `yaml:"path"`
	GroupsDir  string `yaml:"groups_dir"`
	DataDir    string `yaml:"data_dir"`
	BaseDir    string `yaml:"base_dir"`
	MaxConns   int    `yaml:"max_conns"`
}

type RouterConfig struct {
	AssistantName string `yaml:"assistant_name"`
}

type SchedulerConfig struct {
	TickInterval time.Duration `yaml:"tick_interval"`
}

type WebConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port"`
	Auth    string `yaml:"auth"`
}

type EventBusConfig struct {
	Port    int    `yaml:"port"`
	DataDir string `yaml:"data_dir"`
}

func defaults() Config {
	return Config{
		Defaults: DefaultsConfig{
			Image:            "nanogridbot-agent:latest",
			ContainerRuntime: "docker",
			MaxConcurrent:    5,
			ContainerTimeout: 5 * time.Minute,
			MemoryLimit:      "2g",
			CPULimit:         "1.0",
			AssistantName:    "NanoGridBot",
			RetentionMaxAge:  30 * 24 * time.Hour,
		},
		Store: StoreConfig{
			Path:      "data/messages.db",
			GroupsDir: "data/groups",
			DataDir:   "data",
			BaseDir:   ".",
			MaxConns:  5,
		},
		Scheduler: SchedulerConfig{
			TickInterval: 60 * time.Second,
		},
		Web: WebConfig{
			Enabled: true,
			Port:    8080,
		},
		EventBus: EventBusConfig{
			Port:    4222,
			DataDir: "data/eventbus",
		},
	}
}

// Load reads $NANOGRIDBOT_CONFIG (default config/nanogridbot.yaml), expands
// environment variables, applies env-var overrides, and validates the result.
func Load() (*Config, error) {
	cfg := defaults()

	path := os.Getenv("NANOGRIDBOT_CONFIG")
	if path == "" {
		path = "config/nanogridbot.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func validate(cfg *Config) error {
	if cfg.Defaults.MaxConcurrent <= 0 {
		return fmt.Errorf("defaults.max_concurrent must be positive")
	}
	if cfg.Router.AssistantName == "" {
		cfg.Router.AssistantName = cfg.Defaults.AssistantName
	}
	return nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("NANOGRIDBOT_TELEGRAM_TOKEN"); v != "" {
		cfg.Telegram.Token = v
	}
	if v := os.Getenv("NANOGRIDBOT_DISCORD_TOKEN"); v != "" {
		cfg.Discord.Token = v
	}
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		cfg.Defaults.AnthropicAPIKey = v
	}
	if v := os.Getenv("NANOGRIDBOT_WEB_PASSWORD"); v != "" {
		cfg.Web.Auth = v
	}
	if v := os.Getenv("NANOGRIDBOT_WEB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Web.Port = port
		}
	}
	if v := os.Getenv("NANOGRIDBOT_CONTAINER_RUNTIME"); v != "" {
		cfg.Defaults.ContainerRuntime = v
	}
	if v := os.Getenv("NANOGRIDBOT_MAX_CONCURRENT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Defaults.MaxConcurrent = n
		}
	}
}

// Store holds a process-wide, read-mostly Config snapshot. Readers clone the
// current snapshot under a shared lock; Reload swaps the whole struct rather
// than mutating fields in place.
type Store struct {
	mu  sync.RWMutex
	cfg *Config
}

func NewStore(cfg *Config) *Store {
	return &Store{cfg: cfg}
}

func (s *Store) Get() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return *s.cfg
}

func (s *Store) Reload() error {
	cfg, err := Load()
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
	return nil
}
