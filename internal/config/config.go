// File: internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Browser connection modes.
const (
	ModeAttach = "attach"
	ModeLaunch = "launch"
)

// Config holds the entire application configuration.
type Config struct {
	Logger    LoggerConfig    `mapstructure:"logger" yaml:"logger"`
	Browser   BrowserConfig   `mapstructure:"browser" yaml:"browser"`
	Dictation DictationConfig `mapstructure:"dictation" yaml:"dictation"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color names for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// BrowserConfig says how to reach the page hosting the exercise.
type BrowserConfig struct {
	// Mode is "attach" (use a running browser's debugging endpoint) or
	// "launch" (start a browser and open URL).
	Mode        string   `mapstructure:"mode" yaml:"mode"`
	RemoteURL   string   `mapstructure:"remote_url" yaml:"remote_url"`
	URL         string   `mapstructure:"url" yaml:"url"`
	TargetMatch string   `mapstructure:"target_match" yaml:"target_match"`
	Headless    bool     `mapstructure:"headless" yaml:"headless"`
	UserDataDir string   `mapstructure:"user_data_dir" yaml:"user_data_dir"`
	Args        []string `mapstructure:"args" yaml:"args"`

	ConnectAttempts  int           `mapstructure:"connect_attempts" yaml:"connect_attempts"`
	ConnectDelay     time.Duration `mapstructure:"connect_delay" yaml:"connect_delay"`
	StartupTimeout   time.Duration `mapstructure:"startup_timeout" yaml:"startup_timeout"`
	OperationTimeout time.Duration `mapstructure:"operation_timeout" yaml:"operation_timeout"`
}

// DictationConfig configures the fill-and-advance loop.
type DictationConfig struct {
	Selectors      SelectorConfig `mapstructure:"selectors" yaml:"selectors"`
	ContainerRetry RetryConfig    `mapstructure:"container_retry" yaml:"container_retry"`
	AdvanceDelay   time.Duration  `mapstructure:"advance_delay" yaml:"advance_delay"`
	RenderDelay    time.Duration  `mapstructure:"render_delay" yaml:"render_delay"`
}

// SelectorConfig lists the CSS selectors describing the exercise page.
type SelectorConfig struct {
	Container        string   `mapstructure:"container" yaml:"container"`
	Blank            string   `mapstructure:"blank" yaml:"blank"`
	Field            string   `mapstructure:"field" yaml:"field"`
	AnswerAttributes []string `mapstructure:"answer_attributes" yaml:"answer_attributes"`
	AnswerFallbacks  []string `mapstructure:"answer_fallbacks" yaml:"answer_fallbacks"`
	Next             []string `mapstructure:"next" yaml:"next"`
	Play             []string `mapstructure:"play" yaml:"play"`
	SiblingTags      []string `mapstructure:"sibling_tags" yaml:"sibling_tags"`
	Icon             []string `mapstructure:"icon" yaml:"icon"`
	IconWrapperTag   string   `mapstructure:"icon_wrapper_tag" yaml:"icon_wrapper_tag"`
}

// RetryConfig is the polling policy for a missing exercise container.
// MaxAttempts 0 means poll forever.
type RetryConfig struct {
	Delay       time.Duration `mapstructure:"delay" yaml:"delay"`
	Factor      float64       `mapstructure:"factor" yaml:"factor"`
	MaxDelay    time.Duration `mapstructure:"max_delay" yaml:"max_delay"`
	MaxAttempts int           `mapstructure:"max_attempts" yaml:"max_attempts"`
}

var current atomic.Pointer[Config]

// Set publishes cfg as the process-wide configuration.
func Set(cfg *Config) { current.Store(cfg) }

// Get returns the process-wide configuration, or defaults if none was set.
func Get() *Config {
	if cfg := current.Load(); cfg != nil {
		return cfg
	}
	return NewDefaultConfig()
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for every configuration key.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "dictafill")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 10)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "magenta")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")

	// -- Browser --
	v.SetDefault("browser.mode", ModeAttach)
	v.SetDefault("browser.remote_url", "http://127.0.0.1:9222")
	v.SetDefault("browser.url", "")
	v.SetDefault("browser.target_match", "")
	v.SetDefault("browser.headless", false)
	v.SetDefault("browser.user_data_dir", "")
	v.SetDefault("browser.args", []string{})
	v.SetDefault("browser.connect_attempts", 5)
	v.SetDefault("browser.connect_delay", "1s")
	v.SetDefault("browser.startup_timeout", "30s")
	v.SetDefault("browser.operation_timeout", "10s")

	// -- Dictation --
	v.SetDefault("dictation.selectors.container", ".listen-container .listen-sen")
	v.SetDefault("dictation.selectors.blank", ".sen-wd")
	v.SetDefault("dictation.selectors.field", "input")
	v.SetDefault("dictation.selectors.answer_attributes", []string{"data-word", "data-answer", "data-text"})
	v.SetDefault("dictation.selectors.answer_fallbacks", []string{".answer", ".hidden-text", `span[style*="display: none"]`})
	v.SetDefault("dictation.selectors.next", []string{
		".next", ".next-btn", ".icon-next", `[title="下一句"]`, `[title="Next"]`, ".keke-player-next",
	})
	v.SetDefault("dictation.selectors.play", []string{".play", ".icon-play", ".fa-play", `[title="播放"]`})
	v.SetDefault("dictation.selectors.sibling_tags", []string{"DIV", "I", "SPAN", "A", "BUTTON"})
	v.SetDefault("dictation.selectors.icon", []string{".fa-chevron-right", ".icon-chevron-right", ".fa-arrow-right"})
	v.SetDefault("dictation.selectors.icon_wrapper_tag", "BUTTON")
	v.SetDefault("dictation.container_retry.delay", "2s")
	v.SetDefault("dictation.container_retry.factor", 1.0)
	v.SetDefault("dictation.container_retry.max_delay", "0s")
	v.SetDefault("dictation.container_retry.max_attempts", 0)
	v.SetDefault("dictation.advance_delay", "1500ms")
	v.SetDefault("dictation.render_delay", "3s")
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	var err error
	if cfg.Browser.UserDataDir, err = homedir.Expand(cfg.Browser.UserDataDir); err != nil {
		return nil, fmt.Errorf("invalid browser.user_data_dir: %w", err)
	}
	if cfg.Logger.LogFile, err = homedir.Expand(cfg.Logger.LogFile); err != nil {
		return nil, fmt.Errorf("invalid logger.log_file: %w", err)
	}
	cfg.Browser.Mode = strings.ToLower(strings.TrimSpace(cfg.Browser.Mode))

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if err := c.Browser.Validate(); err != nil {
		return fmt.Errorf("browser configuration invalid: %w", err)
	}
	if err := c.Dictation.Validate(); err != nil {
		return fmt.Errorf("dictation configuration invalid: %w", err)
	}
	return nil
}

// Validate checks the browser section.
func (b *BrowserConfig) Validate() error {
	switch b.Mode {
	case ModeAttach:
		if b.RemoteURL == "" {
			return fmt.Errorf("remote_url is required in attach mode")
		}
	case ModeLaunch:
		if b.URL == "" {
			return fmt.Errorf("url is required in launch mode")
		}
	default:
		return fmt.Errorf("mode must be %q or %q, got %q", ModeAttach, ModeLaunch, b.Mode)
	}
	if b.ConnectAttempts <= 0 {
		return fmt.Errorf("connect_attempts must be a positive integer")
	}
	if b.OperationTimeout <= 0 {
		return fmt.Errorf("operation_timeout must be a positive duration")
	}
	return nil
}

// Validate checks the dictation section.
func (d *DictationConfig) Validate() error {
	if d.Selectors.Container == "" || d.Selectors.Blank == "" || d.Selectors.Field == "" {
		return fmt.Errorf("selectors.container, selectors.blank and selectors.field are required")
	}
	if d.ContainerRetry.Delay <= 0 {
		return fmt.Errorf("container_retry.delay must be a positive duration")
	}
	if d.ContainerRetry.Factor < 1 {
		return fmt.Errorf("container_retry.factor must be at least 1")
	}
	if d.ContainerRetry.MaxAttempts < 0 {
		return fmt.Errorf("container_retry.max_attempts must not be negative")
	}
	if d.AdvanceDelay < 0 || d.RenderDelay < 0 {
		return fmt.Errorf("advance_delay and render_delay must not be negative")
	}
	return nil
}
