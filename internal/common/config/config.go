// Package config provides configuration management for the NapCat-QCE SDK.
// It supports loading configuration from environment variables, config files, and defaults.
package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/shuakami/napcat-qce-go/internal/common/logger"
)

// Config holds all configuration sections for the SDK and CLI.
type Config struct {
	Service ServiceConfig        `mapstructure:"service"`
	Export  ExportConfig         `mapstructure:"export"`
	Monitor MonitorConfig        `mapstructure:"monitor"`
	Logging logger.LoggingConfig `mapstructure:"logging"`
}

// ServiceConfig holds connection and launch settings for the NapCat-QCE service.
type ServiceConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Token        string `mapstructure:"token"`
	NapcatPath   string `mapstructure:"napcatPath"`   // install dir; auto-discovered when empty
	QQPath       string `mapstructure:"qqPath"`       // QQ executable; auto-discovered when empty
	UserMode     bool   `mapstructure:"userMode"`     // launch without elevated privileges
	AutoLoginUin string `mapstructure:"autoLoginUin"` // account to log in automatically
	StartTimeout int    `mapstructure:"startTimeout"` // seconds to wait for readiness
	StopGrace    int    `mapstructure:"stopGrace"`    // seconds before force kill
}

// ExportConfig holds default export settings.
type ExportConfig struct {
	Format                 string `mapstructure:"format"` // HTML, JSON, TXT, EXCEL
	OutputDir              string `mapstructure:"outputDir"`
	FileNameTemplate       string `mapstructure:"fileNameTemplate"` // supports {name}, {date}, {time}, {type}
	BatchSize              int    `mapstructure:"batchSize"`
	IncludeResourceLinks   bool   `mapstructure:"includeResourceLinks"`
	IncludeSystemMessages  bool   `mapstructure:"includeSystemMessages"`
	IncludeRecalledMessage bool   `mapstructure:"includeRecalledMessages"`
	PrettyFormat           bool   `mapstructure:"prettyFormat"`
	ExportAsZip            bool   `mapstructure:"exportAsZip"`
}

// MonitorConfig holds push-event channel settings.
type MonitorConfig struct {
	AutoReconnect        bool `mapstructure:"autoReconnect"`
	ReconnectInitialMS   int  `mapstructure:"reconnectInitialMs"`
	ReconnectMaxMS       int  `mapstructure:"reconnectMaxMs"`
	MaxReconnectAttempts int  `mapstructure:"maxReconnectAttempts"`
	PollSafetySeconds    int  `mapstructure:"pollSafetySeconds"` // safety-net poll interval for event waits
}

// Load reads configuration from config file and environment variables.
// Environment variables use the QCE_ prefix with underscores (e.g. QCE_SERVICE_PORT).
func Load() (*Config, error) {
	// Load .env if present; missing file is fine
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.qq-chat-exporter")

	v.SetEnvPrefix("QCE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// Config file is optional; only a malformed file is an error
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("service.host", "localhost")
	v.SetDefault("service.port", 40653)
	v.SetDefault("service.userMode", true)
	v.SetDefault("service.startTimeout", 60)
	v.SetDefault("service.stopGrace", 5)

	v.SetDefault("export.format", "HTML")
	v.SetDefault("export.fileNameTemplate", "{name}_{date}")
	v.SetDefault("export.batchSize", 5000)
	v.SetDefault("export.includeResourceLinks", true)
	v.SetDefault("export.includeSystemMessages", true)
	v.SetDefault("export.includeRecalledMessages", false)
	v.SetDefault("export.prettyFormat", true)
	v.SetDefault("export.exportAsZip", false)

	v.SetDefault("monitor.autoReconnect", true)
	v.SetDefault("monitor.reconnectInitialMs", 1000)
	v.SetDefault("monitor.reconnectMaxMs", 30000)
	v.SetDefault("monitor.maxReconnectAttempts", 10)
	v.SetDefault("monitor.pollSafetySeconds", 10)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.output_path", "stdout")
}

// Validate checks whether the configuration values are usable.
func (c *Config) Validate() error {
	if c.Service.Port <= 0 || c.Service.Port > 65535 {
		return fmt.Errorf("service.port must be a valid port number (1-65535)")
	}
	if c.Service.StartTimeout <= 0 {
		return fmt.Errorf("service.startTimeout must be positive")
	}
	if c.Service.StopGrace < 0 {
		return fmt.Errorf("service.stopGrace must be non-negative")
	}
	switch strings.ToUpper(c.Export.Format) {
	case "HTML", "JSON", "TXT", "EXCEL":
	default:
		return fmt.Errorf("export.format must be one of: HTML, JSON, TXT, EXCEL")
	}
	if c.Export.BatchSize <= 0 {
		return fmt.Errorf("export.batchSize must be positive")
	}
	if c.Monitor.MaxReconnectAttempts < 0 {
		return fmt.Errorf("monitor.maxReconnectAttempts must be non-negative")
	}
	return nil
}

// BaseURL returns the HTTP address of the service.
func (c *ServiceConfig) BaseURL() string {
	return fmt.Sprintf("http://%s:%d", c.Host, c.Port)
}

// WebSocketURL returns the push-event channel address of the service.
func (c *ServiceConfig) WebSocketURL() string {
	return fmt.Sprintf("ws://%s:%d", c.Host, c.Port)
}
