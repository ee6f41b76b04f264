// Command gateway is the proxy's CLI entrypoint: cobra root command with
// serve/version/healthcheck subcommands, wiring config, logging, and the
// shared components into the HTTP server, with signal-driven graceful
// shutdown.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/modelrelay/relay/internal/application/dispatch"
	"github.com/modelrelay/relay/internal/infrastructure/config"
	"github.com/modelrelay/relay/internal/infrastructure/cooldown"
	"github.com/modelrelay/relay/internal/infrastructure/credential"
	_ "github.com/modelrelay/relay/internal/infrastructure/dialect/anthropic"
	_ "github.com/modelrelay/relay/internal/infrastructure/dialect/antigravity"
	_ "github.com/modelrelay/relay/internal/infrastructure/dialect/gemini"
	_ "github.com/modelrelay/relay/internal/infrastructure/dialect/openai"
	_ "github.com/modelrelay/relay/internal/infrastructure/dialect/openaiweb"
	_ "github.com/modelrelay/relay/internal/infrastructure/dialect/opencodezen"
	"github.com/modelrelay/relay/internal/infrastructure/logger"
	"github.com/modelrelay/relay/internal/infrastructure/router"
	"github.com/modelrelay/relay/internal/infrastructure/signature"
	"github.com/modelrelay/relay/internal/infrastructure/telemetry"
	httpiface "github.com/modelrelay/relay/internal/interfaces/http"
)

const (
	appName    = "relay"
	appVersion = "0.1.0"
)

func main() {
	root := &cobra.Command{
		Use:   appName,
		Short: "Dialect-translating LLM proxy",
	}
	root.AddCommand(newServeCmd())
	root.AddCommand(newVersionCmd())
	root.AddCommand(newHealthcheckCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version and exit",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s v%s\n", appName, appVersion)
		},
	}
}

func newHealthcheckCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "healthcheck",
		Short: "Probe a running server's /health endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := &http.Client{Timeout: 5 * time.Second}
			resp, err := client.Get(addr + "/health")
			if err != nil {
				return fmt.Errorf("healthcheck: %w", err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("healthcheck: unexpected status %d", resp.StatusCode)
			}
			fmt.Println("ok")
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "http://127.0.0.1:8787", "base URL of the running server")
	return cmd
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the proxy HTTP server (default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func runServe() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logger.NewLogger(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, OutputPath: "stdout"})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	log.Info("starting relay", zap.String("version", appVersion))

	sigs, err := buildSignatureStore(cfg)
	if err != nil {
		return fmt.Errorf("build signature store: %w", err)
	}

	cd := cooldown.New(nil)
	rtr := router.New(buildRouterConfig(cfg), cd)
	creds := buildCredentialPool(cfg)

	if _, statErr := os.Stat("config.yaml"); statErr == nil {
		watchErr := config.WatchModelMappings("config.yaml", func(entries []config.ModelMapEntry) {
			mapping := make(map[string]router.MappingEntry, len(entries))
			for _, e := range entries {
				mapping[e.From] = router.MappingEntry{Provider: e.Provider, Model: e.To, Fallbacks: e.Fallbacks}
			}
			rtr.UpdateMapping(mapping)
			log.Info("model mappings reloaded", zap.Int("entries", len(mapping)))
		})
		if watchErr != nil {
			log.Warn("model mapping hot-reload disabled", zap.Error(watchErr))
		}
	}

	if cfg.Tracing.Enabled {
		tp := telemetry.NewProvider(appName)
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			_ = tp.Shutdown(shutdownCtx)
		}()
	}

	engine := dispatch.NewEngine(rtr, creds, cd, sigs, log)
	engine.MaxAttempts = cfg.Retry.MaxAttempts
	engine.Tracer = telemetry.NewTracer(cfg.Tracing.Enabled)

	srv := httpiface.NewServer(httpiface.Config{
		Host:        cfg.Server.Hostname,
		Port:        cfg.Server.Port,
		Mode:        "release",
		CORSOrigins: cfg.Server.CORSOrigins,
	}, engine, rtr, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("start http server: %w", err)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Info("received shutdown signal", zap.String("signal", sig.String()))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	log.Info("relay stopped")
	return nil
}

func buildSignatureStore(cfg *config.Config) (signature.Store, error) {
	if cfg.Signature.Storage != "durable" {
		return signature.NewMemoryStore(cfg.Signature.MaxEntriesPerSession, cfg.Signature.TTLMillis), nil
	}
	db, err := signature.OpenDB(cfg.Signature.Driver, cfg.Signature.DSN)
	if err != nil {
		return nil, err
	}
	return signature.NewGormStore(db, cfg.Signature.MaxEntriesPerSession, cfg.Signature.TTLMillis), nil
}

func buildRouterConfig(cfg *config.Config) router.Config {
	mapping := make(map[string]router.MappingEntry, len(cfg.ModelMap))
	for _, e := range cfg.ModelMap {
		mapping[e.From] = router.MappingEntry{Provider: e.Provider, Model: e.To, Fallbacks: e.Fallbacks}
	}
	return router.Config{ModelMapping: mapping}
}

func buildCredentialPool(cfg *config.Config) *credential.Pool {
	pool := credential.NewPool(nil)
	for provider, entries := range cfg.Credentials.Providers {
		creds := make([]credential.Credential, 0, len(entries))
		for _, e := range entries {
			creds = append(creds, credential.Credential{ID: e.ID, Key: e.Key, AccountID: e.AccountID})
		}
		pool.SetCredentials(provider, creds)
	}
	return pool
}
