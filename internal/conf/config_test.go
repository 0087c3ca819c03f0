package conf

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	settings, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", settings.Server.Address)
	assert.Equal(t, 10*time.Second, settings.Server.ShutdownTimeout.Std())
	assert.Equal(t, "sqlite", settings.Database.Driver)
	assert.Equal(t, "pulseboard.db", settings.Database.Path)
	assert.Equal(t, "info", settings.Logging.Level)
	assert.Equal(t, 10*time.Second, settings.Queues.TickInterval.Std())
	assert.Equal(t, 3, settings.Queues.MaxRetries)
	assert.Equal(t, 5*time.Minute, settings.Queues.BackoffBase.Std())
	assert.Equal(t, 30*24*time.Hour, settings.Queues.StatusRetention.Std())
	assert.Equal(t, 30*time.Minute, settings.Alerting.DefaultCooldown.Std())
	assert.Equal(t, 90, settings.Alerting.HistoryRetentionDays)
	assert.Equal(t, 16, settings.Realtime.ClientBuffer)
}

func TestLoad_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  address: ":9090"
  shutdown_timeout: 30s
database:
  driver: mysql
  dsn: "user:pass@tcp(localhost:3306)/pulseboard?parseTime=true"
queues:
  tick_interval: 2s
  max_retries: 5
  backoff_base: 1m
alerting:
  default_cooldown: 15m
email:
  api_key: sg-key
  from_address: alerts@example.com
sms:
  account_sid: AC123
  auth_token: secret
  from_number: "+15550000"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	settings, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", settings.Server.Address)
	assert.Equal(t, 30*time.Second, settings.Server.ShutdownTimeout.Std())
	assert.Equal(t, "mysql", settings.Database.Driver)
	assert.Equal(t, 2*time.Second, settings.Queues.TickInterval.Std())
	assert.Equal(t, 5, settings.Queues.MaxRetries)
	assert.Equal(t, time.Minute, settings.Queues.BackoffBase.Std())
	assert.Equal(t, 15*time.Minute, settings.Alerting.DefaultCooldown.Std())
	assert.Equal(t, "sg-key", settings.Email.APIKey)
	assert.Equal(t, "AC123", settings.SMS.AccountSID)

	// Unset values still fall back to defaults.
	assert.Equal(t, "info", settings.Logging.Level)
	assert.Equal(t, 90, settings.Alerting.HistoryRetentionDays)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("PULSE_SERVER_ADDRESS", ":7070")
	t.Setenv("PULSE_LOGGING_LEVEL", "debug")
	t.Setenv("PULSE_QUEUES_MAX_RETRIES", "7")

	settings, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":7070", settings.Server.Address)
	assert.Equal(t, "debug", settings.Logging.Level)
	assert.Equal(t, 7, settings.Queues.MaxRetries)
}

func TestLoad_MissingFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestValidate(t *testing.T) {
	t.Parallel()

	valid := func() *Settings {
		return &Settings{
			Database: DatabaseSettings{Driver: "sqlite"},
			Queues: QueueSettings{
				TickInterval: Duration(10 * time.Second),
				MaxRetries:   3,
			},
		}
	}

	t.Run("valid", func(t *testing.T) {
		t.Parallel()
		assert.NoError(t, valid().Validate())
	})

	t.Run("unknown driver", func(t *testing.T) {
		t.Parallel()
		s := valid()
		s.Database.Driver = "postgres"
		assert.ErrorContains(t, s.Validate(), "unsupported database driver")
	})

	t.Run("negative retries", func(t *testing.T) {
		t.Parallel()
		s := valid()
		s.Queues.MaxRetries = -1
		assert.ErrorContains(t, s.Validate(), "max_retries")
	})

	t.Run("zero tick interval", func(t *testing.T) {
		t.Parallel()
		s := valid()
		s.Queues.TickInterval = 0
		assert.ErrorContains(t, s.Validate(), "tick_interval")
	})
}
