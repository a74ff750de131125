package config

import (
	"fmt"
	"strings"
	"time"

	"lendcore/crypto"
)

var pausableModules = map[string]struct{}{
	"lending": {},
	"oracle":  {},
	"token":   {},
}

// MinSlotDuration bounds how fast the wall clock may advance slots.
var MinSlotDuration = 10 * time.Millisecond

// Validate checks the loaded configuration for values the node cannot run with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("config: DataDir required")
	}
	if strings.TrimSpace(c.GenesisFile) == "" {
		return fmt.Errorf("config: GenesisFile required")
	}
	if c.ProtocolAuthority != "" {
		if _, err := crypto.DecodeAddress(c.ProtocolAuthority); err != nil {
			return fmt.Errorf("config: ProtocolAuthority: %w", err)
		}
	}
	if c.SlotDuration != "" {
		d, err := c.SlotDurationValue()
		if err != nil {
			return err
		}
		if d < MinSlotDuration {
			return fmt.Errorf("config: SlotDuration must be at least %s", MinSlotDuration)
		}
	}
	if strings.TrimSpace(c.RPC.ListenAddress) == "" {
		return fmt.Errorf("rpc: ListenAddress required")
	}
	if c.RPC.RequestsPerMinute < 0 || c.RPC.Burst < 0 {
		return fmt.Errorf("rpc: rate limit values must be non-negative")
	}
	if c.RPC.Auth.Enabled && c.RPC.Auth.HMACSecret == "" && c.RPC.Auth.HMACSecretEnv == "" {
		return fmt.Errorf("rpc.auth: HMACSecret or HMACSecretEnv required when enabled")
	}
	switch strings.ToLower(c.Journal.Driver) {
	case "", "sqlite", "postgres":
	default:
		return fmt.Errorf("journal: unsupported driver %q", c.Journal.Driver)
	}
	if c.Export.IntervalSeconds < 0 {
		return fmt.Errorf("export: IntervalSeconds must be non-negative")
	}
	if c.Export.IntervalSeconds > 0 && strings.TrimSpace(c.Export.Dir) == "" {
		return fmt.Errorf("export: Dir required when IntervalSeconds is set")
	}
	if strings.TrimSpace(c.Webhook.URL) != "" && strings.TrimSpace(c.Webhook.SecretEnv) == "" {
		return fmt.Errorf("webhook: SecretEnv required when URL is set")
	}
	for _, module := range c.Global.PausedModules {
		if _, ok := pausableModules[strings.ToLower(strings.TrimSpace(module))]; !ok {
			return fmt.Errorf("global: unknown module %q in PausedModules", module)
		}
	}
	return nil
}

// SlotDurationValue parses SlotDuration. Empty means the genesis value applies.
func (c *Config) SlotDurationValue() (time.Duration, error) {
	if strings.TrimSpace(c.SlotDuration) == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(c.SlotDuration))
	if err != nil {
		return 0, fmt.Errorf("config: SlotDuration: %w", err)
	}
	return d, nil
}
