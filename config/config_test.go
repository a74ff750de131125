package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"lendcore/crypto"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)

	again, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg.RPC, again.RPC)
	require.Equal(t, cfg.Journal, again.Journal)
}

func TestLoadParsesSections(t *testing.T) {
	authority := crypto.DeriveAddress("authority").String()
	path := writeConfig(t, `DataDir = "/var/lib/lend"
GenesisFile = "/etc/lend/genesis.yaml"
ProtocolAuthority = "`+authority+`"
SlotDuration = "250ms"

[rpc]
ListenAddress = "0.0.0.0:9000"
RequestsPerMinute = 120
Burst = 10
PinSubject = true

[rpc.auth]
Enabled = true
HMACSecretEnv = "LEND_TEST_SECRET"
Issuer = "lend-auth"

[log]
Level = "debug"
File = "/var/log/lendd.log"

[journal]
Driver = "Postgres"
DSN = "postgres://lend@localhost/lend"

[export]
Dir = "/var/lib/lend/exports"
IntervalSeconds = 60

[webhook]
URL = "https://hooks.example/lend"
SecretEnv = "LEND_TEST_WEBHOOK"
EventTypes = ["lending.reserve.refreshed"]

[global]
PausedModules = ["token"]
`)
	t.Setenv("LEND_TEST_SECRET", "from-env")
	t.Setenv("LEND_TEST_WEBHOOK", "hook-secret")
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "0.0.0.0:9000", cfg.RPC.ListenAddress)
	require.Equal(t, float64(120), cfg.RPC.RequestsPerMinute)
	require.True(t, cfg.RPC.PinSubject)
	require.Equal(t, "from-env", cfg.AuthSecret())
	require.Equal(t, "postgres", cfg.Journal.Driver)
	require.Equal(t, []string{"token"}, cfg.Global.PausedModules)
	require.Equal(t, "hook-secret", cfg.WebhookSecret())
	require.Equal(t, []string{"lending.reserve.refreshed"}, cfg.Webhook.EventTypes)
	require.Equal(t, "lendd", cfg.Telemetry.ServiceName)
	d, err := cfg.SlotDurationValue()
	require.NoError(t, err)
	require.Equal(t, 250*time.Millisecond, d)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := writeConfig(t, "DataDir = \"x\"\nValidatorKeystorePath = \"old\"\n")
	_, err := Load(path)
	require.ErrorContains(t, err, "ValidatorKeystorePath")
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"missing data dir":       func(c *Config) { c.DataDir = "" },
		"missing genesis":        func(c *Config) { c.GenesisFile = "" },
		"bad authority":          func(c *Config) { c.ProtocolAuthority = "nope" },
		"bad slot duration":      func(c *Config) { c.SlotDuration = "soon" },
		"slot duration too low":  func(c *Config) { c.SlotDuration = "1ms" },
		"missing listen":         func(c *Config) { c.RPC.ListenAddress = "" },
		"negative burst":         func(c *Config) { c.RPC.Burst = -1 },
		"auth without secret":    func(c *Config) { c.RPC.Auth.Enabled = true },
		"unknown driver":         func(c *Config) { c.Journal.Driver = "mysql" },
		"export without dir":     func(c *Config) { c.Export.IntervalSeconds = 5 },
		"unknown pause module":   func(c *Config) { c.Global.PausedModules = []string{"swap"} },
		"webhook without secret": func(c *Config) { c.Webhook.URL = "https://hooks.example" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(cfg)
			require.Error(t, cfg.Validate())
		})
	}
	require.NoError(t, Default().Validate())
}
