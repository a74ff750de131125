package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

type Config struct {
	DataDir     string `toml:"DataDir"`
	GenesisFile string `toml:"GenesisFile"`
	// ProtocolAuthority overrides the genesis protocol authority when set.
	ProtocolAuthority string `toml:"ProtocolAuthority"`
	// SlotDuration overrides the genesis slot duration, e.g. "400ms".
	SlotDuration string `toml:"SlotDuration"`
	// AllowMigrate permits opening a data dir written by an older schema.
	AllowMigrate bool `toml:"AllowMigrate"`

	RPC       RPC       `toml:"rpc"`
	Log       Log       `toml:"log"`
	Telemetry Telemetry `toml:"telemetry"`
	Journal   Journal   `toml:"journal"`
	Export    Export    `toml:"export"`
	Webhook   Webhook   `toml:"webhook"`
	Global    Global    `toml:"global"`
}

// Default returns the configuration written on first start.
func Default() *Config {
	return &Config{
		DataDir:     "./lend-data",
		GenesisFile: "genesis.yaml",
		RPC: RPC{
			ListenAddress:     "127.0.0.1:8645",
			RequestsPerMinute: 600,
			Burst:             60,
		},
		Log:       Log{Level: "info"},
		Telemetry: Telemetry{ServiceName: "lendd"},
		Journal:   Journal{Driver: "sqlite", DSN: "lend-data/journal.db"},
		Webhook:   Webhook{EventTypes: []string{}},
		Global:    Global{PausedModules: []string{}},
	}
}

// Load loads the configuration from path, writing the defaults there first
// when the file does not exist.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := Default()
		if err := persist(path, cfg); err != nil {
			return nil, err
		}
		return cfg, nil
	} else if err != nil {
		return nil, err
	}

	cfg := Default()
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, key := range undecoded {
			keys = append(keys, key.String())
		}
		return nil, fmt.Errorf("config file %s has unknown keys: %s", path, strings.Join(keys, ", "))
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) normalize() {
	c.DataDir = strings.TrimSpace(c.DataDir)
	c.GenesisFile = strings.TrimSpace(c.GenesisFile)
	c.ProtocolAuthority = strings.TrimSpace(c.ProtocolAuthority)
	c.Journal.Driver = strings.ToLower(strings.TrimSpace(c.Journal.Driver))
	if c.Webhook.EventTypes == nil {
		c.Webhook.EventTypes = []string{}
	}
	if c.Global.PausedModules == nil {
		c.Global.PausedModules = []string{}
	}
	if strings.TrimSpace(c.Telemetry.ServiceName) == "" {
		c.Telemetry.ServiceName = "lendd"
	}
}

// AuthSecret resolves the HMAC secret, preferring the environment variable.
func (c *Config) AuthSecret() string {
	if env := strings.TrimSpace(c.RPC.Auth.HMACSecretEnv); env != "" {
		if v := strings.TrimSpace(os.Getenv(env)); v != "" {
			return v
		}
	}
	return strings.TrimSpace(c.RPC.Auth.HMACSecret)
}

// WebhookSecret reads the webhook signing secret from its environment variable.
func (c *Config) WebhookSecret() string {
	if env := strings.TrimSpace(c.Webhook.SecretEnv); env != "" {
		return strings.TrimSpace(os.Getenv(env))
	}
	return ""
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
