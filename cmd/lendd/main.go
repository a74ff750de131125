package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"lendcore/config"
	"lendcore/core"
	"lendcore/core/events"
	"lendcore/core/genesis"
	"lendcore/core/state"
	"lendcore/crypto"
	"lendcore/integrations/exports"
	"lendcore/integrations/webhooks"
	nativecommon "lendcore/native/common"
	"lendcore/observability"
	"lendcore/observability/logging"
	telemetry "lendcore/observability/otel"
	"lendcore/rpc"
	"lendcore/services/journal"
	"lendcore/storage"
)

const subscriberBuffer = 256

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	genesisFlag := flag.String("genesis", "", "Path to a genesis YAML file (overrides LEND_GENESIS and config GenesisFile)")
	allowMigrateFlag := flag.Bool("allow-migrate", false, "Allow starting with a mismatched state schema (manual migrations only)")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	out, closeLog := logging.Output(logging.FileOptions{
		Path:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	defer closeLog()
	logger := logging.Setup("lendd", cfg.Log.Environment, logging.ParseLevel(cfg.Log.Level), out)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, resolveGenesisPath(*genesisFlag, cfg.GenesisFile, os.LookupEnv), *allowMigrateFlag || cfg.AllowMigrate, logger); err != nil {
		logger.Error("lendd stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, genesisPath string, allowMigrate bool, logger *slog.Logger) error {
	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName: cfg.Telemetry.ServiceName,
		Environment: cfg.Log.Environment,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     telemetry.ParseHeaders(cfg.Telemetry.Headers),
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown failed", slog.Any("error", err))
		}
	}()

	spec, err := genesis.LoadGenesisSpec(genesisPath)
	if err != nil {
		return fmt.Errorf("load genesis: %w", err)
	}
	authority, err := resolveAuthority(cfg.ProtocolAuthority, spec)
	if err != nil {
		return err
	}
	slotDuration, err := resolveSlotDuration(cfg, spec)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("prepare data dir: %w", err)
	}
	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "state"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	mgr := state.NewManager(db)
	if err := mgr.EnsureStateVersion(allowMigrate); err != nil {
		return err
	}
	applied, err := genesis.Apply(spec, mgr)
	if err != nil {
		return fmt.Errorf("apply genesis: %w", err)
	}
	if applied {
		logger.Info("genesis applied", slog.String("path", genesisPath), slog.Int("tokens", len(spec.Tokens)), slog.Int("feeds", len(spec.Feeds)))
	}

	stream := events.NewBroadcaster(subscriberBuffer)
	emitters := events.Multi{stream, observability.Events()}
	var history *journal.Journal
	if cfg.Journal.Driver != "" {
		history, err = journal.Open(cfg.Journal.Driver, cfg.Journal.DSN, logger)
		if err != nil {
			return err
		}
		defer history.Close()
		emitters = append(emitters, history)
	}

	if cfg.Webhook.URL != "" {
		hooks, err := webhooks.NewDispatcher(cfg.Webhook.URL, []byte(cfg.WebhookSecret()),
			webhooks.WithEventTypes(cfg.Webhook.EventTypes...),
			webhooks.WithRetryPolicy(cfg.Webhook.MaxAttempts, 0, 0),
			webhooks.WithLogger(logger))
		if err != nil {
			return err
		}
		defer hooks.Close()
		emitters = append(emitters, hooks)
	}

	pauses := nativecommon.NewPauseSet(cfg.Global.PausedModules...)
	node, err := core.NewNode(mgr, authority,
		core.WithClock(core.NewWallClock(spec.GenesisTimestamp(), slotDuration)),
		core.WithPauses(pauses),
		core.WithEmitter(emitters),
		core.WithLogger(logger),
	)
	if err != nil {
		return fmt.Errorf("create node: %w", err)
	}
	logger.Info("node ready",
		slog.String("protocol_authority", authority.String()),
		slog.Duration("slot_duration", slotDuration),
		slog.Uint64("slot", node.Slot()),
		slog.Any("paused", cfg.Global.PausedModules))

	if cfg.Export.IntervalSeconds > 0 {
		go exports.Run(ctx, node, cfg.Export.Dir, time.Duration(cfg.Export.IntervalSeconds)*time.Second, logger)
	}

	logger.Info("rpc configured",
		slog.String("listen", cfg.RPC.ListenAddress),
		slog.Bool("auth", cfg.RPC.Auth.Enabled),
		logging.Redact("auth_secret", cfg.AuthSecret()),
		logging.Redact("journal_dsn", cfg.Journal.DSN),
		logging.Redact("webhook_url", cfg.Webhook.URL),
		logging.Redact("webhook_secret", cfg.WebhookSecret()))

	server := rpc.NewServer(node, stream, rpc.Config{
		RateLimit: rpc.RateLimit{RequestsPerMinute: cfg.RPC.RequestsPerMinute, Burst: cfg.RPC.Burst},
		Auth: rpc.AuthConfig{
			Enabled:    cfg.RPC.Auth.Enabled,
			HMACSecret: cfg.AuthSecret(),
			Issuer:     cfg.RPC.Auth.Issuer,
			Audience:   cfg.RPC.Auth.Audience,
			ClockSkew:  time.Duration(cfg.RPC.Auth.ClockSkewSeconds) * time.Second,
		},
		PinSubject: cfg.RPC.PinSubject,
	}, logger)
	if history != nil {
		server.SetJournal(history)
	}
	return server.Serve(ctx, cfg.RPC.ListenAddress)
}

type envLookupFunc func(string) (string, bool)

func resolveGenesisPath(cliPath, cfgPath string, lookup envLookupFunc) string {
	if trimmed := strings.TrimSpace(cliPath); trimmed != "" {
		return trimmed
	}
	if lookup != nil {
		if env, ok := lookup("LEND_GENESIS"); ok && strings.TrimSpace(env) != "" {
			return strings.TrimSpace(env)
		}
	}
	return strings.TrimSpace(cfgPath)
}

func resolveAuthority(override string, spec *genesis.GenesisSpec) (crypto.Address, error) {
	if strings.TrimSpace(override) != "" {
		return crypto.DecodeAddress(strings.TrimSpace(override))
	}
	if authority := spec.ProtocolAuthorityAddress(); !authority.IsZero() {
		return authority, nil
	}
	return crypto.Address{}, errors.New("protocol authority not set in config or genesis")
}

func resolveSlotDuration(cfg *config.Config, spec *genesis.GenesisSpec) (time.Duration, error) {
	d, err := cfg.SlotDurationValue()
	if err != nil {
		return 0, err
	}
	if d > 0 {
		return d, nil
	}
	if spec.SlotDuration > 0 {
		return spec.SlotDuration, nil
	}
	return 0, errors.New("slot duration not set in config or genesis")
}
