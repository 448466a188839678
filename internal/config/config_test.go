package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestLoad_Defaults はデフォルト設定読み込みのテスト
func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "yakkyoku", cfg.Database.User)
	assert.Equal(t, "yakkyoku_db", cfg.Database.DBName)
	assert.Equal(t, 8080, cfg.API.Port)
	assert.Equal(t, 30*time.Second, cfg.API.ReadTimeout)
	assert.Equal(t, int64(10), cfg.Ledger.DefaultReorderLevel)
	assert.Equal(t, 30, cfg.Ledger.NearExpiryDays)
	assert.True(t, cfg.Ledger.AlertsEnabled)
	assert.Equal(t, "info", cfg.Logging.Level)
}

// TestLoad_EnvOverride は環境変数による上書きのテスト
func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("DB_HOST", "db.example.com")
	t.Setenv("API_PORT", "9090")
	t.Setenv("LEDGER_DEFAULT_REORDER_LEVEL", "25")
	t.Setenv("LEDGER_ALERTS_ENABLED", "false")

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, "db.example.com", cfg.Database.Host)
	assert.Equal(t, 9090, cfg.API.Port)
	assert.Equal(t, int64(25), cfg.Ledger.DefaultReorderLevel)
	assert.False(t, cfg.Ledger.AlertsEnabled)
}

// TestLoad_ConfigFileOverlay はYAMLファイルによる上書きのテスト
func TestLoad_ConfigFileOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := []byte(`
database:
  host: yaml-host
ledger:
  near_expiry_days: 14
logging:
  level: debug
  format: console
`)
	require.NoError(t, os.WriteFile(path, content, 0o644))
	t.Setenv("CONFIG_FILE", path)

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, "yaml-host", cfg.Database.Host)
	assert.Equal(t, 14, cfg.Ledger.NearExpiryDays)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "console", cfg.Logging.Format)
}

// TestLoad_ConfigFileMissing は存在しない設定ファイル指定時のテスト
func TestLoad_ConfigFileMissing(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "nothing.yaml"))

	_, err := Load()
	assert.Error(t, err)
}

// TestConfig_Validate は設定バリデーションのテスト
func TestConfig_Validate(t *testing.T) {
	base := func() *Config {
		cfg, err := Load()
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"empty db host", func(c *Config) { c.Database.Host = "" }, true},
		{"invalid db port", func(c *Config) { c.Database.Port = 0 }, true},
		{"invalid api port", func(c *Config) { c.API.Port = 70000 }, true},
		{"negative reorder level", func(c *Config) { c.Ledger.DefaultReorderLevel = -1 }, true},
		{"zero near-expiry days", func(c *Config) { c.Ledger.NearExpiryDays = 0 }, true},
		{"invalid log level", func(c *Config) { c.Logging.Level = "verbose" }, true},
		{"invalid log format", func(c *Config) { c.Logging.Format = "xml" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

// TestConfig_DSN はデータソース名生成のテスト
func TestConfig_DSN(t *testing.T) {
	cfg := &Config{
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "yakkyoku",
			Password: "secret",
			DBName:   "yakkyoku_db",
			SSLMode:  "disable",
		},
	}

	assert.Equal(t,
		"host=localhost port=5432 user=yakkyoku password=secret dbname=yakkyoku_db sslmode=disable",
		cfg.DSN())
}
