package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"lendcore/config"
	"lendcore/core/genesis"
	"lendcore/crypto"
)

func TestResolveGenesisPath(t *testing.T) {
	env := func(value string) envLookupFunc {
		return func(key string) (string, bool) {
			if key == "LEND_GENESIS" && value != "" {
				return value, true
			}
			return "", false
		}
	}
	require.Equal(t, "cli.yaml", resolveGenesisPath(" cli.yaml ", "cfg.yaml", env("env.yaml")))
	require.Equal(t, "env.yaml", resolveGenesisPath("", "cfg.yaml", env("env.yaml")))
	require.Equal(t, "cfg.yaml", resolveGenesisPath("", "cfg.yaml", env("")))
}

func parseSpec(t *testing.T, authority crypto.Address) *genesis.GenesisSpec {
	t.Helper()
	doc := "genesisTime: 2024-01-01T00:00:00Z\nslotDuration: 400ms\n"
	if !authority.IsZero() {
		doc += "protocolAuthority: " + authority.String() + "\n"
	}
	spec, err := genesis.ParseGenesisSpec([]byte(doc))
	require.NoError(t, err)
	return spec
}

func TestResolveAuthority(t *testing.T) {
	fromGenesis := crypto.DeriveAddress("genesis-authority")
	override := crypto.DeriveAddress("config-authority")

	got, err := resolveAuthority("", parseSpec(t, fromGenesis))
	require.NoError(t, err)
	require.Equal(t, fromGenesis, got)

	got, err = resolveAuthority(override.String(), parseSpec(t, fromGenesis))
	require.NoError(t, err)
	require.Equal(t, override, got)

	_, err = resolveAuthority("", parseSpec(t, crypto.Address{}))
	require.Error(t, err)
}

func TestResolveSlotDuration(t *testing.T) {
	spec := parseSpec(t, crypto.DeriveAddress("authority"))
	cfg := config.Default()

	d, err := resolveSlotDuration(cfg, spec)
	require.NoError(t, err)
	require.Equal(t, 400*time.Millisecond, d)

	cfg.SlotDuration = "1s"
	d, err = resolveSlotDuration(cfg, spec)
	require.NoError(t, err)
	require.Equal(t, time.Second, d)
}
