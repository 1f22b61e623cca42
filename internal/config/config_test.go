package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_YAMLWithDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9000
database:
  driver: memory
jwt:
  secret: s3cret
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, DriverMemory, cfg.Database.Driver)
	assert.Equal(t, 15, cfg.Matching.MinOverlapMinutes)
	assert.Equal(t, []int{60, 10}, cfg.Matching.ReminderLeadMinutes)
	assert.Equal(t, "@every 1m", cfg.Sweep.Schedule)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, []time.Duration{time.Hour, 10 * time.Minute}, cfg.Matching.ReminderLeadTimes())
}

func TestLoad_EnvironmentOverridesFile(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9000
jwt:
  secret: from-file
`)
	t.Setenv("OPTIN_SERVER_PORT", "9100")
	t.Setenv("OPTIN_JWT_SECRET", "from-env")
	t.Setenv("OPTIN_MATCHING_REMINDER_LEAD_MINUTES", "30,5")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, "from-env", cfg.JWT.Secret)
	assert.Equal(t, []int{30, 5}, cfg.Matching.ReminderLeadMinutes)
}

func TestLoad_MissingFileUsesEnvironment(t *testing.T) {
	t.Setenv("OPTIN_JWT_SECRET", "env-only")
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "env-only", cfg.JWT.Secret)
	assert.Equal(t, DriverPostgres, cfg.Database.Driver)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		c := &Config{JWT: JWTConfig{Secret: "x"}}
		c.applyDefaults()
		return c
	}
	require.NoError(t, valid().Validate())

	c := valid()
	c.Database.Driver = "sqlite"
	assert.Error(t, c.Validate())

	c = valid()
	c.JWT.Secret = ""
	assert.Error(t, c.Validate())

	c = valid()
	c.Matching.MinOverlapMinutes = -1
	assert.Error(t, c.Validate())

	c = valid()
	c.Matching.ReminderLeadMinutes = []int{60, 0}
	assert.Error(t, c.Validate())

	c = valid()
	c.APNs.KeyFile = "key.p8"
	assert.Error(t, c.Validate())
}

func TestDSN(t *testing.T) {
	db := DatabaseConfig{Host: "db", Port: 5432, User: "u", Password: "p", DBName: "optin", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=optin sslmode=disable", db.DSN())
}
