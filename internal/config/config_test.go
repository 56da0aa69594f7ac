package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsWithoutPath(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.True(t, cfg.App.UseMemory)
	assert.Equal(t, uint16(30), cfg.Protocol.FeeBps)
	assert.Equal(t, ":8080", cfg.API.HTTP.Addr)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
app:
  use_memory: false
protocol:
  program_id: 2bgpPzHUWu9jRAMUcF2Kex4dKti6U554hkhpkBi4EpHK
  fee_bps: 25
  fee_shares:
    - kind: treasury
      weight: 6000
    - kind: liquidity_stakers
      weight: 4000
stores:
  postgres:
    dsn: postgres://localhost/settlement
guard:
  reveal_lock_ttl: 10s
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.False(t, cfg.App.UseMemory)
	assert.Equal(t, uint16(25), cfg.Protocol.FeeBps)
	assert.Equal(t, []ShareConfig{{Kind: "treasury", Weight: 6000}, {Kind: "liquidity_stakers", Weight: 4000}}, cfg.Protocol.FeeShares)
	assert.Equal(t, 10*time.Second, cfg.Guard.RevealLockTTL)
	// Untouched sections keep their defaults.
	assert.Equal(t, ":9090", cfg.Metrics.Addr)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("app: [unclosed"), 0o600))
	_, err = Load(path)
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"POSTGRES_DSN":        "postgres://db/settlement",
		"FEE_BPS":             "45",
		"AUTHORIZED_SETTLERS": "a, b,,c",
		"JWT_PUBLIC_KEY_PATH": "/keys/pub.pem",
	}
	cfg := Default()
	require.NoError(t, cfg.ApplyEnv(func(k string) string { return env[k] }))

	assert.Equal(t, "postgres://db/settlement", cfg.Stores.Postgres.DSN)
	assert.False(t, cfg.App.UseMemory)
	assert.Equal(t, uint16(45), cfg.Protocol.FeeBps)
	assert.Equal(t, []string{"a", "b", "c"}, cfg.Protocol.AuthorizedSettlers)
	assert.True(t, cfg.Security.JWT.Enabled)

	bad := Default()
	assert.Error(t, bad.ApplyEnv(func(k string) string {
		if k == "FEE_BPS" {
			return "70000"
		}
		return ""
	}))
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.App.UseMemory = false
	cfg.Security.JWT.Enabled = true
	cfg.RateLimit.Enabled = true

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres.dsn")
	assert.Contains(t, err.Error(), "public_key_path")
	assert.Contains(t, err.Error(), "redis.addr")
}

func TestValidate_OpenOperatorRoutesNeedMemoryStore(t *testing.T) {
	cfg := Default()
	assert.False(t, cfg.Security.OpenOperatorRoutes)

	cfg.Security.OpenOperatorRoutes = true
	require.NoError(t, cfg.Validate())

	require.NoError(t, cfg.ApplyEnv(func(k string) string {
		if k == "POSTGRES_DSN" {
			return "postgres://db/settlement"
		}
		return ""
	}))
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open_operator_routes")

	env := Default()
	require.NoError(t, env.ApplyEnv(func(k string) string {
		if k == "OPEN_OPERATOR_ROUTES" {
			return "true"
		}
		return ""
	}))
	assert.True(t, env.Security.OpenOperatorRoutes)
	assert.Error(t, env.ApplyEnv(func(k string) string {
		if k == "OPEN_OPERATOR_ROUTES" {
			return "maybe"
		}
		return ""
	}))
}

func TestLoadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	content := "# comment\nSETTLEMENT_TEST_A=one\nSETTLEMENT_TEST_B=\"two\"\nbroken line\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	t.Setenv("SETTLEMENT_TEST_B", "kept")
	LoadEnvFile(path)
	t.Cleanup(func() { os.Unsetenv("SETTLEMENT_TEST_A") })

	assert.Equal(t, "one", os.Getenv("SETTLEMENT_TEST_A"))
	assert.Equal(t, "kept", os.Getenv("SETTLEMENT_TEST_B"))

	LoadEnvFile(filepath.Join(t.TempDir(), "absent"))
}
