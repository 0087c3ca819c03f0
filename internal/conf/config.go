// Package conf loads and validates application settings.
package conf

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Settings holds the full application configuration. It is constructed once
// at startup and injected into the subsystems that need it; core packages
// never read ambient global state.
type Settings struct {
	Server    ServerSettings    `mapstructure:"server"`
	Database  DatabaseSettings  `mapstructure:"database"`
	Logging   LoggingSettings   `mapstructure:"logging"`
	Email     EmailSettings     `mapstructure:"email"`
	SMS       SMSSettings       `mapstructure:"sms"`
	Queues    QueueSettings     `mapstructure:"queues"`
	Alerting  AlertingSettings  `mapstructure:"alerting"`
	Realtime  RealtimeSettings  `mapstructure:"realtime"`
	Telemetry TelemetrySettings `mapstructure:"telemetry"`
}

// ServerSettings configures the HTTP listener.
type ServerSettings struct {
	Address         string   `mapstructure:"address"`
	ShutdownTimeout Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseSettings selects the persistence backend.
type DatabaseSettings struct {
	// Driver is "sqlite" or "mysql".
	Driver string `mapstructure:"driver"`
	// Path is the sqlite database file.
	Path string `mapstructure:"path"`
	// DSN is the mysql connection string.
	DSN string `mapstructure:"dsn"`
}

// LoggingSettings controls log output.
type LoggingSettings struct {
	Level string `mapstructure:"level"`
}

// EmailSettings configures the SendGrid mail client.
type EmailSettings struct {
	APIKey      string `mapstructure:"api_key"`
	FromAddress string `mapstructure:"from_address"`
	FromName    string `mapstructure:"from_name"`
}

// SMSSettings configures the Twilio SMS client.
type SMSSettings struct {
	AccountSID string `mapstructure:"account_sid"`
	AuthToken  string `mapstructure:"auth_token"`
	FromNumber string `mapstructure:"from_number"`
}

// QueueSettings controls the delivery queue schedulers.
type QueueSettings struct {
	TickInterval    Duration `mapstructure:"tick_interval"`
	MaxRetries      int      `mapstructure:"max_retries"`
	BackoffBase     Duration `mapstructure:"backoff_base"`
	StatusRetention Duration `mapstructure:"status_retention"`
}

// AlertingSettings controls the rules engine.
type AlertingSettings struct {
	DefaultCooldown      Duration `mapstructure:"default_cooldown"`
	HistoryRetentionDays int      `mapstructure:"history_retention_days"`
	WebhookTimeout       Duration `mapstructure:"webhook_timeout"`
}

// RealtimeSettings controls the websocket hub.
type RealtimeSettings struct {
	ClientBuffer int `mapstructure:"client_buffer"`
}

// TelemetrySettings configures optional Sentry error reporting.
type TelemetrySettings struct {
	SentryDSN string `mapstructure:"sentry_dsn"`
}

// Load reads settings from the given config file (optional) and PULSE_*
// environment variables, applying defaults for anything unset.
func Load(configFile string) (*Settings, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("PULSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	}

	var settings Settings
	if err := v.Unmarshal(&settings, viper.DecodeHook(DurationDecodeHook())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal settings: %w", err)
	}

	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return &settings, nil
}

// Validate checks settings for values the service cannot run with.
func (s *Settings) Validate() error {
	switch s.Database.Driver {
	case "sqlite", "mysql":
	default:
		return fmt.Errorf("unsupported database driver %q", s.Database.Driver)
	}
	if s.Queues.MaxRetries < 0 {
		return fmt.Errorf("queues.max_retries must not be negative")
	}
	if s.Queues.TickInterval.Std() <= 0 {
		return fmt.Errorf("queues.tick_interval must be positive")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "pulseboard.db")

	v.SetDefault("logging.level", "info")

	v.SetDefault("queues.tick_interval", "10s")
	v.SetDefault("queues.max_retries", 3)
	v.SetDefault("queues.backoff_base", "5m")
	v.SetDefault("queues.status_retention", fmt.Sprintf("%dh", 30*24))

	v.SetDefault("alerting.default_cooldown", "30m")
	v.SetDefault("alerting.history_retention_days", 90)
	v.SetDefault("alerting.webhook_timeout", "10s")

	v.SetDefault("realtime.client_buffer", 16)
}
