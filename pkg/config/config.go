package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Logging      LoggingConfig  `mapstructure:"logging"`
	Backend      BackendConfig  `mapstructure:"backend"`
	Local        LocalConfig    `mapstructure:"local"`
	Store        StoreConfig    `mapstructure:"store"`
	Thinking     ThinkingConfig `mapstructure:"thinking"`
	Sources      SourcesConfig  `mapstructure:"sources"`
	ShowThinking bool           `mapstructure:"show_thinking"`
}

// LoggingConfig holds logging-related configuration
type LoggingConfig struct {
	LogFile  string `mapstructure:"log_file"`
	Preserve bool   `mapstructure:"preserve"`
	Level    string `mapstructure:"level"`
}

// BackendConfig describes the remote research backend and the connection lifecycle timings
type BackendConfig struct {
	URL               string            `mapstructure:"url"`
	Adapter           string            `mapstructure:"adapter"` // research, workflow or local
	HeartbeatInterval time.Duration     `mapstructure:"heartbeat_interval"`
	Deadline          time.Duration     `mapstructure:"deadline"`
	HandshakeTimeout  time.Duration     `mapstructure:"handshake_timeout"`
	Headers           map[string]string `mapstructure:"headers"`
	Workflow          WorkflowConfig    `mapstructure:"workflow"`
}

// WorkflowConfig holds the knobs sent to multi-agent workflow backends
type WorkflowConfig struct {
	AutoAcceptedPlan        bool `mapstructure:"auto_accepted_plan"`
	MaxPlanIterations       int  `mapstructure:"max_plan_iterations"`
	MaxStepNum              int  `mapstructure:"max_step_num"`
	BackgroundInvestigation bool `mapstructure:"background_investigation"`
}

// LocalConfig configures the in-process model used by the local adapter
type LocalConfig struct {
	URL          string `mapstructure:"url"`
	Model        string `mapstructure:"model"`
	SystemPrompt string `mapstructure:"system_prompt"`
}

// StoreConfig selects the thread store implementation
type StoreConfig struct {
	Driver string `mapstructure:"driver"` // memory or sqlite
	Path   string `mapstructure:"path"`
}

// ThinkingConfig holds the markers that delimit reasoning spans in content
type ThinkingConfig struct {
	OpenTag  string `mapstructure:"open_tag"`
	CloseTag string `mapstructure:"close_tag"`
}

// SourcesConfig controls the discovered-source catalog
type SourcesConfig struct {
	SemanticIndex bool           `mapstructure:"semantic_index"`
	Embedder      EmbedderConfig `mapstructure:"embedder"`
}

// EmbedderConfig holds embedder configuration for the semantic source index
type EmbedderConfig struct {
	Provider string `mapstructure:"provider"` // ollama or openai
	Model    string `mapstructure:"model"`
	BaseURL  string `mapstructure:"base_url"`
	APIKey   string `mapstructure:"api_key"`
}

const (
	DefaultHeartbeatInterval = 30 * time.Second
	DefaultDeadline          = 10 * time.Minute
	DefaultHandshakeTimeout  = 15 * time.Second
)

// Global config instance
var cfg *Config

// Get returns the global config instance
func Get() *Config {
	if cfg == nil {
		panic("config not initialized")
	}
	return cfg
}

// IsLoaded reports whether Load has completed successfully
func IsLoaded() bool {
	return cfg != nil
}

// Load loads configuration from file and environment
func Load(cfgFile string) (*Config, error) {
	setDefaults()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}

		xdgConfigHome := os.Getenv("XDG_CONFIG_HOME")
		if xdgConfigHome == "" {
			xdgConfigHome = filepath.Join(home, ".config")
		}

		viper.AddConfigPath("./.scout")
		viper.AddConfigPath(filepath.Join(xdgConfigHome, "scout"))
		viper.SetConfigType("yaml")
		viper.SetConfigName("settings")
	}

	viper.AutomaticEnv()
	bindEnvironmentVariables()

	if err := viper.ReadInConfig(); err != nil {
		// A missing file is fine, a broken one is not
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	loaded := &Config{}
	if err := viper.Unmarshal(loaded); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := processDurations(loaded); err != nil {
		return nil, fmt.Errorf("failed to process durations: %w", err)
	}

	cfg = loaded
	return cfg, nil
}

// setDefaults sets all default configuration values
func setDefaults() {
	// Backend defaults
	viper.SetDefault("backend.url", "ws://localhost:8000/ws/research")
	viper.SetDefault("backend.adapter", "research")
	viper.SetDefault("backend.heartbeat_interval", "30s")
	viper.SetDefault("backend.deadline", "10m")
	viper.SetDefault("backend.handshake_timeout", "15s")
	viper.SetDefault("backend.workflow.auto_accepted_plan", true)
	viper.SetDefault("backend.workflow.max_plan_iterations", 1)
	viper.SetDefault("backend.workflow.max_step_num", 3)
	viper.SetDefault("backend.workflow.background_investigation", true)

	// Local model defaults
	viper.SetDefault("local.url", "http://localhost:11434")
	viper.SetDefault("local.model", "qwen3:latest")
	viper.SetDefault("local.system_prompt", "")

	// Store defaults
	viper.SetDefault("store.driver", "memory")
	viper.SetDefault("store.path", "./.scout/threads.db")

	// Thinking markers
	viper.SetDefault("thinking.open_tag", "<think>")
	viper.SetDefault("thinking.close_tag", "</think>")
	viper.SetDefault("show_thinking", true)

	// Sources defaults
	viper.SetDefault("sources.semantic_index", false)
	viper.SetDefault("sources.embedder.provider", "ollama")
	viper.SetDefault("sources.embedder.model", "nomic-embed-text")
	viper.SetDefault("sources.embedder.base_url", "http://localhost:11434/api")
	viper.SetDefault("sources.embedder.api_key", "")

	// Logging defaults
	viper.SetDefault("logging.log_file", "./.scout/system.log")
	viper.SetDefault("logging.preserve", false)
	viper.SetDefault("logging.level", "info")
}

// bindEnvironmentVariables binds SCOUT_ prefixed environment variables to Viper keys
func bindEnvironmentVariables() {
	viper.BindEnv("backend.url", "SCOUT_BACKEND_URL")
	viper.BindEnv("backend.adapter", "SCOUT_BACKEND_ADAPTER")
	viper.BindEnv("backend.heartbeat_interval", "SCOUT_HEARTBEAT_INTERVAL")
	viper.BindEnv("backend.deadline", "SCOUT_DEADLINE")
	viper.BindEnv("backend.handshake_timeout", "SCOUT_HANDSHAKE_TIMEOUT")
	viper.BindEnv("local.url", "SCOUT_LOCAL_URL")
	viper.BindEnv("local.model", "SCOUT_LOCAL_MODEL")
	viper.BindEnv("store.driver", "SCOUT_STORE_DRIVER")
	viper.BindEnv("store.path", "SCOUT_STORE_PATH")
	viper.BindEnv("logging.log_file", "SCOUT_LOG_FILE")
	viper.BindEnv("logging.level", "SCOUT_LOG_LEVEL")
	viper.BindEnv("logging.preserve", "SCOUT_LOG_PRESERVE")
	viper.BindEnv("show_thinking", "SCOUT_SHOW_THINKING")
	viper.BindEnv("sources.embedder.api_key", "OPENAI_API_KEY")
}

// processDurations validates lifecycle timings and fills in defaults for unset ones
func processDurations(c *Config) error {
	if c.Backend.HeartbeatInterval < 0 {
		return fmt.Errorf("invalid backend.heartbeat_interval: %s", c.Backend.HeartbeatInterval)
	}
	if c.Backend.HeartbeatInterval == 0 {
		c.Backend.HeartbeatInterval = DefaultHeartbeatInterval
	}

	if c.Backend.Deadline < 0 {
		return fmt.Errorf("invalid backend.deadline: %s", c.Backend.Deadline)
	}
	if c.Backend.Deadline == 0 {
		c.Backend.Deadline = DefaultDeadline
	}

	if c.Backend.HandshakeTimeout < 0 {
		return fmt.Errorf("invalid backend.handshake_timeout: %s", c.Backend.HandshakeTimeout)
	}
	if c.Backend.HandshakeTimeout == 0 {
		c.Backend.HandshakeTimeout = DefaultHandshakeTimeout
	}

	if c.Backend.HeartbeatInterval >= c.Backend.Deadline {
		return fmt.Errorf("backend.heartbeat_interval (%s) must be shorter than backend.deadline (%s)",
			c.Backend.HeartbeatInterval, c.Backend.Deadline)
	}

	return nil
}

// GetConfigFileUsed returns the path to the config file being used
func GetConfigFileUsed() string {
	return viper.ConfigFileUsed()
}
