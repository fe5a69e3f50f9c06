package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// MinPort is the minimum valid port number
	MinPort = 1
	// MaxPort is the maximum valid port number
	MaxPort = 65535

	// PlaceholderBotToken is the token shipped in the sample config
	PlaceholderBotToken = "YOUR_BOT_TOKEN_HERE"

	// BotTokenEnv overrides telegram.bot_token when set
	BotTokenEnv = "RELAY_TELEGRAM_BOT_TOKEN"
)

// Config represents the complete application configuration
type Config struct {
	App            AppConfig       `yaml:"app"`
	Server         ServerConfig    `yaml:"server"`
	Logging        LoggingConfig   `yaml:"logging"`
	Extractor      ExtractorConfig `yaml:"extractor"`
	Download       DownloadConfig  `yaml:"download"`
	Limits         LimitsConfig    `yaml:"limits"`
	Telegram       TelegramConfig  `yaml:"telegram"`
	SupportedSites map[string]bool `yaml:"supported_sites"`
	Proxy          ProxyConfig     `yaml:"proxy"`
	RabbitMQ       RabbitMQConfig  `yaml:"rabbitmq"`
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port              int           `yaml:"port"`
	ReadTimeout       time.Duration `yaml:"read_timeout"`
	WriteTimeout      time.Duration `yaml:"write_timeout"`
	IdleTimeout       time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Burst             int           `yaml:"burst"`
	CORSOrigins       []string      `yaml:"cors_origins"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level        string `yaml:"level"`
	Format       string `yaml:"format"`
	Output       string `yaml:"output"`
	EnableCaller bool   `yaml:"enable_caller"`
}

// ExtractorConfig describes the external extraction tool
type ExtractorConfig struct {
	Binary       string        `yaml:"binary"`
	ProbeTimeout time.Duration `yaml:"probe_timeout"`
}

// DownloadConfig holds the download policy
type DownloadConfig struct {
	OutputDir                     string        `yaml:"output_dir"`
	Quality                       string        `yaml:"quality"`
	AudioFormat                   string        `yaml:"audio_format"`
	VideoFormat                   string        `yaml:"video_format"`
	MaxDurationMinutes            int           `yaml:"max_duration_minutes"`
	AutoDownloadVideoUnderMinutes int           `yaml:"auto_download_video_under_minutes"`
	ShowDownloadProgress          bool          `yaml:"show_download_progress"`
	ProgressUpdateIntervalSeconds int           `yaml:"progress_update_interval_seconds"`
	ChoiceTimeout                 time.Duration `yaml:"choice_timeout"`
}

// ProgressInterval returns the progress interval as a duration
func (d DownloadConfig) ProgressInterval() time.Duration {
	return time.Duration(d.ProgressUpdateIntervalSeconds) * time.Second
}

// LimitsConfig holds concurrency and retention limits
type LimitsConfig struct {
	MaxConcurrentDownloads int           `yaml:"max_concurrent_downloads"`
	DownloadTimeoutSeconds int           `yaml:"download_timeout_seconds"`
	CleanupAfterHours      int           `yaml:"cleanup_after_hours"`
	CleanupInterval        time.Duration `yaml:"cleanup_interval"`
}

// DownloadTimeout returns the whole-download deadline
func (l LimitsConfig) DownloadTimeout() time.Duration {
	return time.Duration(l.DownloadTimeoutSeconds) * time.Second
}

// CleanupAfter returns the retention age; zero disables sweeping
func (l LimitsConfig) CleanupAfter() time.Duration {
	return time.Duration(l.CleanupAfterHours) * time.Hour
}

// TelegramConfig holds chat adapter settings
type TelegramConfig struct {
	BotToken       string  `yaml:"bot_token"`
	MaxFileSizeMB  int     `yaml:"max_file_size_mb"`
	AllowedChatIDs []int64 `yaml:"allowed_chat_ids"`
}

// IsAllowed reports whether the chat may use the service.
// An empty allow-list admits everyone.
func (t TelegramConfig) IsAllowed(chatID int64) bool {
	if len(t.AllowedChatIDs) == 0 {
		return true
	}
	for _, id := range t.AllowedChatIDs {
		if id == chatID {
			return true
		}
	}
	return false
}

// ProxyConfig holds outbound proxy settings for the extraction tool
type ProxyConfig struct {
	HTTPProxy  string `yaml:"http_proxy"`
	HTTPSProxy string `yaml:"https_proxy"`
}

// URL returns the proxy to hand to the tool; http_proxy wins
func (p ProxyConfig) URL() string {
	if p.HTTPProxy != "" {
		return p.HTTPProxy
	}
	return p.HTTPSProxy
}

// RabbitMQConfig holds RabbitMQ connection and exchange/queue configuration
type RabbitMQConfig struct {
	Enabled          bool             `yaml:"enabled"`
	Host             string           `yaml:"host"`
	Port             int              `yaml:"port"`
	User             string           `yaml:"user"`
	Password         string           `yaml:"password"`
	VHost            string           `yaml:"vhost"`
	Exchange         ExchangeConfig   `yaml:"exchange"`
	RoutingKeyPrefix string           `yaml:"routing_key_prefix"`
	Intake           IntakeConfig     `yaml:"intake"`
	Connection       ConnectionConfig `yaml:"connection"`
	Publish          PublishConfig    `yaml:"publish"`
}

// ExchangeConfig holds RabbitMQ exchange configuration
type ExchangeConfig struct {
	Name       string `yaml:"name"`
	Type       string `yaml:"type"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
}

// IntakeConfig holds the command queue settings; an empty queue disables intake
type IntakeConfig struct {
	Queue         string `yaml:"queue"`
	Durable       bool   `yaml:"durable"`
	BindingKey    string `yaml:"binding_key"`
	PrefetchCount int    `yaml:"prefetch_count"`
	Concurrency   int    `yaml:"concurrency"`
}

// ConnectionConfig holds RabbitMQ connection settings
type ConnectionConfig struct {
	RetryAttempts int           `yaml:"retry_attempts"`
	RetryInterval time.Duration `yaml:"retry_interval"`
	Heartbeat     time.Duration `yaml:"heartbeat"`
}

// PublishConfig holds RabbitMQ publish retry settings
type PublishConfig struct {
	RetryAttempts int           `yaml:"retry_attempts"`
	RetryInterval time.Duration `yaml:"retry_interval"`
}

// Default returns a configuration with every default applied
func Default() *Config {
	return &Config{
		App: AppConfig{
			Name:        "media-relay",
			Version:     "dev",
			Environment: "development",
		},
		Server: ServerConfig{
			Port:              8080,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      0,
			IdleTimeout:       60 * time.Second,
			ShutdownTimeout:   30 * time.Second,
			RequestsPerSecond: 5,
			Burst:             10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
			Output: "stdout",
		},
		Extractor: ExtractorConfig{
			Binary:       "yt-dlp",
			ProbeTimeout: 60 * time.Second,
		},
		Download: DownloadConfig{
			OutputDir:                     "./downloads",
			Quality:                       "best",
			AudioFormat:                   "mp3",
			VideoFormat:                   "mp4",
			MaxDurationMinutes:            60,
			AutoDownloadVideoUnderMinutes: 0,
			ShowDownloadProgress:          true,
			ProgressUpdateIntervalSeconds: 3,
			ChoiceTimeout:                 10 * time.Minute,
		},
		Limits: LimitsConfig{
			MaxConcurrentDownloads: 3,
			DownloadTimeoutSeconds: 300,
			CleanupAfterHours:      24,
			CleanupInterval:        time.Hour,
		},
		Telegram: TelegramConfig{
			MaxFileSizeMB: 50,
		},
		SupportedSites: map[string]bool{
			"youtube":     true,
			"vimeo":       true,
			"dailymotion": true,
			"twitch":      true,
			"tiktok":      true,
			"instagram":   true,
			"twitter":     true,
			"reddit":      true,
		},
		RabbitMQ: RabbitMQConfig{
			Host:             "localhost",
			Port:             5672,
			User:             "guest",
			Password:         "guest",
			VHost:            "/",
			RoutingKeyPrefix: "relay",
			Exchange: ExchangeConfig{
				Name:    "relay_events",
				Type:    "topic",
				Durable: true,
			},
			Intake: IntakeConfig{
				BindingKey:    "relay.commands",
				PrefetchCount: 10,
				Concurrency:   4,
			},
			Connection: ConnectionConfig{
				RetryAttempts: 5,
				RetryInterval: 5 * time.Second,
				Heartbeat:     10 * time.Second,
			},
			Publish: PublishConfig{
				RetryAttempts: 3,
				RetryInterval: 100 * time.Millisecond,
			},
		},
	}
}

// Load reads and parses the configuration file on top of the defaults
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	// a supported_sites block replaces the default set; unlisted sites are disabled
	defaultSites := config.SupportedSites
	config.SupportedSites = nil
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if config.SupportedSites == nil {
		config.SupportedSites = defaultSites
	}

	config.applyEnv()
	return config, nil
}

func (c *Config) applyEnv() {
	if token := strings.TrimSpace(os.Getenv(BotTokenEnv)); token != "" {
		c.Telegram.BotToken = token
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port < MinPort || c.Server.Port > MaxPort {
		return fmt.Errorf("invalid server port: %d (must be between %d and %d)", c.Server.Port, MinPort, MaxPort)
	}

	if c.Telegram.BotToken == "" || c.Telegram.BotToken == PlaceholderBotToken {
		return fmt.Errorf("telegram bot_token is required (set it in the config file or %s)", BotTokenEnv)
	}

	if c.Telegram.MaxFileSizeMB < 0 {
		return fmt.Errorf("telegram max_file_size_mb must not be negative")
	}

	if c.Download.OutputDir == "" {
		return fmt.Errorf("download output_dir is required")
	}

	if c.Download.MaxDurationMinutes < 0 {
		return fmt.Errorf("download max_duration_minutes must not be negative")
	}

	if c.Download.ProgressUpdateIntervalSeconds < 0 {
		return fmt.Errorf("download progress_update_interval_seconds must not be negative")
	}

	if c.Limits.MaxConcurrentDownloads <= 0 {
		return fmt.Errorf("limits max_concurrent_downloads must be greater than 0")
	}

	if c.Limits.DownloadTimeoutSeconds <= 0 {
		return fmt.Errorf("limits download_timeout_seconds must be greater than 0")
	}

	if c.Limits.CleanupAfterHours < 0 {
		return fmt.Errorf("limits cleanup_after_hours must not be negative")
	}

	if c.Extractor.Binary == "" {
		return fmt.Errorf("extractor binary is required")
	}

	if c.RabbitMQ.Enabled {
		if err := c.RabbitMQ.validate(); err != nil {
			return err
		}
	}

	return nil
}

func (r *RabbitMQConfig) validate() error {
	if r.Host == "" {
		return fmt.Errorf("rabbitmq host is required")
	}

	if r.Port < MinPort || r.Port > MaxPort {
		return fmt.Errorf("invalid rabbitmq port: %d (must be between %d and %d)", r.Port, MinPort, MaxPort)
	}

	if r.Exchange.Name == "" {
		return fmt.Errorf("rabbitmq exchange name is required")
	}

	if r.Intake.Queue != "" && r.Intake.BindingKey == "" {
		return fmt.Errorf("rabbitmq intake binding_key is required when a queue is set")
	}

	return nil
}
