// Package app provides the entry point for the mcp-aggregator command-line application.
package app

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/stacklok/mcp-aggregator/pkg/analytics"
	"github.com/stacklok/mcp-aggregator/pkg/backend"
	"github.com/stacklok/mcp-aggregator/pkg/cache"
	"github.com/stacklok/mcp-aggregator/pkg/config"
	"github.com/stacklok/mcp-aggregator/pkg/configwatch"
	"github.com/stacklok/mcp-aggregator/pkg/cost"
	"github.com/stacklok/mcp-aggregator/pkg/httpapi"
	"github.com/stacklok/mcp-aggregator/pkg/logger"
	"github.com/stacklok/mcp-aggregator/pkg/metrics"
	"github.com/stacklok/mcp-aggregator/pkg/profile"
	"github.com/stacklok/mcp-aggregator/pkg/promptlibrary"
	"github.com/stacklok/mcp-aggregator/pkg/security"
	"github.com/stacklok/mcp-aggregator/pkg/session"
)

// version is set at build time via -ldflags.
var version = "dev"

var rootCmd = &cobra.Command{
	Use:               "mcpproxy",
	DisableAutoGenTag: true,
	Short:             "Aggregate multiple MCP servers behind a single namespaced endpoint",
	Long: `mcpproxy aggregates multiple Model Context Protocol servers into one
endpoint, selecting which backends a workspace sees via glob-matched
profiles, namespacing every tool/resource/prompt name by backend id, and
injecting synthesized workspace:// context resources.`,
	Run: func(cmd *cobra.Command, _ []string) {
		if err := cmd.Help(); err != nil {
			logger.Errorf("error displaying help: %v", err)
		}
	},
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		logger.Initialize()
		if viper.GetBool("debug") {
			logger.SetDebug(true)
		}
	},
}

// NewRootCmd creates the root mcpproxy command with all subcommands wired.
func NewRootCmd() *cobra.Command {
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
	must(viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug")))

	rootCmd.PersistentFlags().StringP("config", "c", "mcp_config.json", "Path to the backend definitions file")
	must(viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config")))

	rootCmd.PersistentFlags().String("profiles", "profiles.json", "Path to the profile document")
	must(viper.BindPFlag("profiles", rootCmd.PersistentFlags().Lookup("profiles")))

	rootCmd.PersistentFlags().String("data-dir", ".", "Directory for usage/analytics persistence")
	must(viper.BindPFlag("data-dir", rootCmd.PersistentFlags().Lookup("data-dir")))

	must(config.BindEnv())

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newValidateCmd())
	rootCmd.AddCommand(newVersionCmd())

	rootCmd.SilenceUsage = true
	return rootCmd
}

func must(err error) {
	if err != nil {
		logger.Errorf("flag binding error: %v", err)
	}
}

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the aggregating proxy",
		RunE:  runServe,
	}
	cmd.Flags().String("host", "127.0.0.1", "Host address to bind to")
	cmd.Flags().Int("port", 8844, "Port to listen on (0 for an OS-assigned port)")
	cmd.Flags().String("prompts-dir", "", "Optional directory of additional *.txt prompts to load")
	cmd.Flags().Bool("security-sandbox", false, "Enable the security sandbox's pattern scanning")
	must(viper.BindPFlag("host", cmd.Flags().Lookup("host")))
	must(viper.BindPFlag("port", cmd.Flags().Lookup("port")))
	must(viper.BindPFlag("prompts-dir", cmd.Flags().Lookup("prompts-dir")))
	must(viper.BindPFlag("security-sandbox", cmd.Flags().Lookup("security-sandbox")))
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(_ *cobra.Command, _ []string) {
			logger.Infof("mcpproxy version: %s", version)
		},
	}
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the backend definitions and profile documents",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg := config.Load()

			data, err := os.ReadFile(cfg.ConfigFile)
			if err != nil {
				return fmt.Errorf("read %s: %w", cfg.ConfigFile, err)
			}
			defs, err := backend.ParseDefinitions(data)
			if err != nil {
				return fmt.Errorf("parse backend definitions: %w", err)
			}
			logger.Infof("backend definitions valid: %d backend(s) configured", len(defs))

			if profileData, err := os.ReadFile(cfg.ProfileFile); err == nil {
				if _, err := profile.ParseDocument(profileData); err != nil {
					return fmt.Errorf("parse profile document: %w", err)
				}
				logger.Infof("profile document valid: %s", cfg.ProfileFile)
			} else {
				logger.Infof("no profile document at %s, default profiles will be used", cfg.ProfileFile)
			}

			return nil
		},
	}
}

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the status of every configured backend",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg := config.Load()
			data, err := os.ReadFile(cfg.ConfigFile)
			if err != nil {
				return fmt.Errorf("read %s: %w", cfg.ConfigFile, err)
			}
			defs, err := backend.ParseDefinitions(data)
			if err != nil {
				return fmt.Errorf("parse backend definitions: %w", err)
			}

			pool := backend.NewPool(nil)
			pool.SetDefinitions(defs)
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			ids := make([]string, 0, len(defs))
			for id := range defs {
				ids = append(ids, id)
			}
			pool.ConnectAll(ctx, ids)

			return renderStatusTable(pool.ServerStatus())
		},
	}
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	backendDefs, err := backend.ParseDefinitions(mustReadOrEmpty(cfg.ConfigFile))
	if err != nil {
		return fmt.Errorf("parse backend definitions: %w", err)
	}

	profileDoc := profile.Default()
	if data, err := os.ReadFile(cfg.ProfileFile); err == nil {
		if doc, err := profile.ParseDocument(data); err == nil {
			profileDoc = doc
		} else {
			logger.Warnf("invalid profile document at %s, using defaults: %v", cfg.ProfileFile, err)
		}
	}

	cacheComp := cache.New(0, 0)
	costTracker := cost.New(dataFile(cfg.DataDir, "usage.json"))
	analyticsTracker := analytics.New(dataFile(cfg.DataDir, "analytics.json"), 0, false)
	sandbox := security.New()
	sandbox.SetEnabled(cfg.SecuritySandbox)
	prompts := promptlibrary.New()
	if cfg.PromptsDir != "" {
		if err := prompts.LoadDirectory(cfg.PromptsDir); err != nil {
			logger.Warnf("loading prompts directory %s: %v", cfg.PromptsDir, err)
		}
	}

	profileEngine := profile.NewEngine(profileDoc)
	metricsComp := metrics.New()

	var httpServer *httpapi.Server
	pool := backend.NewPool(func(backendID string) {
		if httpServer != nil {
			httpServer.Broadcast("backend_change", map[string]string{"backendId": backendID})
		}
	})
	pool.SetDefinitions(backendDefs)

	router := session.New(pool, profileEngine, cacheComp, costTracker, analyticsTracker, sandbox, prompts, metricsComp)
	httpServer = httpapi.New(router, pool, cacheComp, costTracker, analyticsTracker, sandbox, metricsComp)

	stopBackground := make(chan struct{})
	defer close(stopBackground)
	cacheComp.StartSweeper(stopBackground)
	costTracker.StartPersisting(stopBackground)
	analyticsTracker.StartPersisting(stopBackground)
	router.StartEvictionSweep(stopBackground)

	if err := startConfigWatch(ctx, cfg.ConfigFile, pool, httpServer); err != nil {
		logger.Warnf("backend definitions watch disabled: %v", err)
	}
	if err := startProfileWatch(ctx, cfg.ProfileFile, profileEngine, httpServer); err != nil {
		logger.Warnf("profile document watch disabled: %v", err)
	}

	return httpServer.Serve(ctx, cfg.Host, cfg.Port)
}

func mustReadOrEmpty(path string) []byte {
	data, err := os.ReadFile(path)
	if err != nil {
		empty, _ := json.Marshal(map[string]any{"mcpServers": map[string]any{}})
		return empty
	}
	return data
}

func dataFile(dir, name string) string {
	if dir == "" {
		dir = "."
	}
	return filepath.Join(dir, name)
}

func startConfigWatch(ctx context.Context, path string, pool *backend.Pool, httpServer *httpapi.Server) error {
	watcher, err := configwatch.New(path, backend.ParseDefinitions)
	if err != nil {
		return err
	}
	if defs, err := watcher.Load(); err == nil {
		pool.SetDefinitions(defs)
	}
	watcher.Start(ctx)

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case defs := <-watcher.Changes:
				pool.SetDefinitions(defs)
				httpServer.Broadcast("config_change", map[string]int{"backendCount": len(defs)})
				logger.Infof("backend definitions reloaded: %d backend(s)", len(defs))
			}
		}
	}()
	return nil
}

func startProfileWatch(ctx context.Context, path string, engine *profile.Engine, httpServer *httpapi.Server) error {
	watcher, err := configwatch.New(path, profile.ParseDocument)
	if err != nil {
		return err
	}
	if doc, err := watcher.Load(); err == nil {
		engine.Reload(doc)
	}
	watcher.Start(ctx)

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case doc := <-watcher.Changes:
				engine.Reload(doc)
				httpServer.Broadcast("config_change", map[string]int{"profileCount": len(doc.Profiles)})
				logger.Infof("profile document reloaded: %d profile(s)", len(doc.Profiles))
			}
		}
	}()
	return nil
}
