package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)

	assert.Equal(t, "postgres", c.Store.Driver)
	assert.Equal(t, "yahoo_stock_data", c.Store.Database)
	assert.Equal(t, "primary-then-secondary", c.Retry.Policy)
	assert.Equal(t, 3, c.Retry.MaxAttempts)
	assert.Equal(t, 2*time.Second, c.Retry.Delay)
	assert.Equal(t, 45*24*time.Hour, c.Audit.Threshold)
	assert.Equal(t, 1, c.Sync.Concurrency)
	assert.True(t, c.Sync.Incremental)
	assert.NoError(t, c.Validate())
}

func TestParse_OverridesDefaults(t *testing.T) {
	c, err := Parse([]byte(`
store:
  driver: sqlite
  dsn: ":memory:"
sync:
  groups: [ETFs, "Dow Jones"]
  concurrency: 4
retry:
  policy: primary-only
`))
	require.NoError(t, err)

	assert.Equal(t, "sqlite", c.Store.Driver)
	assert.Equal(t, []string{"ETFs", "Dow Jones"}, c.Sync.Groups)
	assert.Equal(t, 4, c.Sync.Concurrency)
	assert.Equal(t, "primary-only", c.Retry.Policy)
	// untouched sections keep their defaults
	assert.Equal(t, "reports", c.Output.Dir)
	assert.Equal(t, time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC), c.StartTime())
}

func TestParse_Invalid(t *testing.T) {
	cases := map[string]string{
		"unknown driver":  "store:\n  driver: oracle\n",
		"sqlite no dsn":   "store:\n  driver: sqlite\n",
		"bad policy":      "retry:\n  policy: whenever\n",
		"zero workers":    "sync:\n  concurrency: 0\n",
		"kafka no broker": "kafka:\n  enabled: true\n",
		"bad start":       "sync:\n  start_date: 01/02/2020\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(body))
			assert.Error(t, err)
		})
	}
}

func TestLoadWithEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("environment: test\n"), 0o644))

	t.Setenv("DB_PASSWORD", "s3cret")
	t.Setenv("REDIS_ADDR", "cache:6380")
	t.Setenv("SYNC_GROUPS", "ETFs,Sectors")

	c, err := LoadWithEnv(path)
	require.NoError(t, err)

	assert.Equal(t, "s3cret", c.Store.Password)
	assert.True(t, c.Redis.Enabled)
	assert.Equal(t, "cache", c.Redis.Host)
	assert.Equal(t, 6380, c.Redis.Port)
	assert.Equal(t, []string{"ETFs", "Sectors"}, c.Sync.Groups)
}
