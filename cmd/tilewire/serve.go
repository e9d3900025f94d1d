package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/tilewire-project/tilewire/internal/api"
	"github.com/tilewire-project/tilewire/internal/capture"
	"github.com/tilewire-project/tilewire/internal/cli"
	"github.com/tilewire-project/tilewire/internal/config"
	"github.com/tilewire-project/tilewire/internal/events"
	"github.com/tilewire-project/tilewire/internal/guard"
	"github.com/tilewire-project/tilewire/internal/health"
	"github.com/tilewire-project/tilewire/internal/network"
	"github.com/tilewire-project/tilewire/internal/packets"
	"github.com/tilewire-project/tilewire/internal/scheduler"
	"github.com/tilewire-project/tilewire/internal/stats"
	"github.com/tilewire-project/tilewire/internal/telemetry"
	"github.com/tilewire-project/tilewire/internal/util"
)

type serveOptions struct {
	configDir  string
	listenPort int
	upstream   string
	console    bool
}

func serveCmd() *cobra.Command {
	var opts serveOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the relay",
		Long: `Run the relay with the REST API, telemetry and maintenance tasks.

Configuration is read from <config>/config.json and created with
defaults on first run. --listen-port and --upstream override the file
for this run only.

Examples:
  tilewire serve
  tilewire serve --upstream 10.0.0.2:7777 --listen-port 7777`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts)
		},
	}

	cmd.Flags().StringVar(&opts.configDir, "config", config.DefaultConfigDir, "Configuration directory")
	cmd.Flags().IntVarP(&opts.listenPort, "listen-port", "p", 0, "Client listen port (default from config)")
	cmd.Flags().StringVarP(&opts.upstream, "upstream", "u", "", "Upstream server host:port (default from config)")
	cmd.Flags().BoolVar(&opts.console, "console", true, "Run the interactive console on stdin")

	return cmd
}

func runServe(opts serveOptions) error {
	printBanner()

	// Console-only logger until the config says where files go
	bootLog := util.DefaultLogConfig()
	bootLog.Directory = ""
	if err := util.InitLogger(bootLog); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	log.Info().
		Str("version", version).
		Str("platform", runtime.GOOS).
		Str("arch", runtime.GOARCH).
		Int("cpus", runtime.NumCPU()).
		Msg("starting tilewire")

	cfg, err := config.Load(opts.configDir)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if opts.listenPort != 0 {
		cfg.Relay.ListenPort = opts.listenPort
	}
	if opts.upstream != "" {
		cfg.Relay.Upstream = opts.upstream
	}

	logging := cfg.GetLogging()
	if err := util.InitLogger(util.LogConfig{
		Level:      logging.Level,
		Directory:  logging.Directory,
		MaxSizeMB:  logging.MaxSizeMB,
		MaxBackups: logging.MaxBackups,
		MaxAgeDays: logging.MaxAgeDays,
		Console:    logging.Console,
	}); err != nil {
		log.Warn().Err(err).Msg("failed to reconfigure logger, using defaults")
	}

	validation := config.Validate(cfg)
	for _, w := range validation.Warnings {
		log.Warn().Str("field", w.Field).Msg(w.Message)
	}
	if !validation.IsValid() {
		for _, e := range validation.Errors {
			log.Error().Str("field", e.Field).Msg(e.Message)
		}
		return fmt.Errorf("configuration validation failed, please fix the errors above")
	}

	sysInfo := util.GetSystemInfo()
	log.Info().
		Str("hostname", sysInfo.Hostname).
		Str("os", sysInfo.OS).
		Str("cpu", sysInfo.CPUModel).
		Int("cores", sysInfo.CPUCores).
		Uint64("memory_mb", sysInfo.TotalMemory).
		Msg("system information")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Core components
	codec, err := packets.NewCodec()
	if err != nil {
		return err
	}
	eventBus := events.NewEventBus()
	hooks := events.NewHookChain()
	collector := stats.NewCollector()
	sessions := network.NewSessionRegistry()

	pktGuard := guard.New(cfg.GetGuard())
	pktGuard.Attach(hooks, eventBus)
	healthMgr := health.NewManager(cfg, eventBus, sessions)

	relayOpts := network.Options{
		Hooks:    hooks,
		Bus:      eventBus,
		Stats:    collector,
		Sessions: sessions,
	}
	apiDeps := api.Deps{
		Codec:    codec,
		Sessions: sessions,
		Stats:    collector,
		Guard:    pktGuard,
		Health:   healthMgr,
		Version:  version,
	}
	cliDeps := cli.Deps{
		Codec:    codec,
		Sessions: sessions,
		Stats:    collector,
		Guard:    pktGuard,
		Health:   healthMgr,
	}
	schedDeps := scheduler.Deps{
		Sessions: sessions,
		Stats:    collector,
	}

	// Capture store
	var store *capture.Store
	if capCfg := cfg.GetCapture(); capCfg.Enabled {
		store, err = capture.NewStore(capCfg.DBPath, capCfg.MaxPayload)
		if err != nil {
			return fmt.Errorf("failed to open capture store: %w", err)
		}
		defer store.Close()

		relayOpts.Recorder = store
		apiDeps.Captures = store
		cliDeps.Captures = store
		schedDeps.Captures = store
		log.Info().Str("path", capCfg.DBPath).Msg("capture store opened")
	}

	// MQTT telemetry
	var mqttHandler *telemetry.MQTTHandler
	if mqttCfg := cfg.GetMQTT(); mqttCfg.Enabled {
		mqttHandler, err = telemetry.NewMQTTHandler(mqttCfg, eventBus, version)
		if err != nil {
			log.Warn().Err(err).Msg("failed to initialize MQTT, telemetry disabled")
			mqttHandler = nil
		} else {
			schedDeps.Publisher = mqttHandler
		}
	}

	relay := network.NewRelay(cfg.GetRelay(), codec, relayOpts)
	sched := scheduler.NewScheduler(cfg, schedDeps)

	shutdownCh := make(chan struct{}, 1)
	eventBus.Subscribe(events.EventShutdown, "main.shutdown", func(ctx context.Context, e events.Event) error {
		select {
		case shutdownCh <- struct{}{}:
		default:
		}
		return nil
	})

	var wg sync.WaitGroup

	// Relay is fatal if it cannot bind
	if err := startWithRetry(ctx, "relay", relay.Start, 5); err != nil {
		return fmt.Errorf("relay: %w", err)
	}

	if cfg.GetAPI().Enabled {
		apiServer := api.NewServer(cfg, eventBus, apiDeps)
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Info().Int("port", cfg.GetAPI().Port).Msg("starting REST API server")
			if err := startWithRetry(ctx, "API server", apiServer.Start, 5); err != nil {
				log.Warn().Err(err).Msg("API server failed after retries (non-fatal)")
			}
		}()
	}

	if mqttHandler != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Info().Msg("starting MQTT telemetry")
			if err := mqttHandler.Start(ctx); err != nil {
				log.Warn().Err(err).Msg("MQTT telemetry failed")
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info().Msg("starting task scheduler")
		sched.Start(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		healthMgr.Start(ctx)
	}()

	if opts.console {
		console := cli.NewCLI(cfg, eventBus, cliDeps, os.Stdin, os.Stdout)
		// Not tracked by wg: a blocked stdin read must not hold up shutdown.
		go console.Start(ctx)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("received shutdown signal")
	case <-shutdownCh:
		log.Info().Msg("shutdown requested")
	}

	log.Info().Msg("initiating graceful shutdown...")

	cancel()
	relay.Stop()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info().Msg("all tasks stopped gracefully")
	case <-time.After(30 * time.Second):
		log.Warn().Msg("shutdown timed out after 30 seconds, forcing exit")
	}

	eventBus.Stop()
	log.Info().Msg("tilewire stopped")
	return nil
}

// startWithRetry calls startFn until it succeeds, retrying bind failures
// left over from a previous run.
func startWithRetry(ctx context.Context, name string, startFn func(context.Context) error, maxRetries int) error {
	var lastErr error
	for i := 0; i <= maxRetries; i++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		lastErr = startFn(ctx)
		if lastErr == nil {
			return nil
		}
		if i < maxRetries {
			log.Warn().Err(lastErr).Str("component", name).Int("retry", i+1).Int("max", maxRetries).Msg("bind failed, retrying in 3s...")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(3 * time.Second):
			}
		}
	}
	return lastErr
}
