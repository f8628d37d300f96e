package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"plan-engine/internal/app"
	"plan-engine/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "plan-engine",
	Short: "Keeps workout and nutrition plans consistent under concurrent edits",
	Long: `plan-engine serves the plan API and runs maintenance tasks on its database.

Configuration comes from the environment (LLM_PROVIDER, DATABASE_PATH, PORT, ...).
Engine tunables may also be read from the YAML file named by PLAN_ENGINE_CONFIG.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.NewFromEnv()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		setupLogging(cfg)
		cmd.SetContext(withConfig(cmd.Context(), cfg))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd, migrateCmd, planCmd, metricsCmd)
}

type configKey struct{}

func withConfig(ctx context.Context, cfg *config.Config) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, configKey{}, cfg)
}

func configFrom(cmd *cobra.Command) *config.Config {
	return cmd.Context().Value(configKey{}).(*config.Config)
}

// openOffline builds the engine without agents or sync for the
// maintenance commands.
func openOffline(cmd *cobra.Command) (*app.App, error) {
	return app.New(cmd.Context(), configFrom(cmd), app.Options{Offline: true})
}

func setupLogging(cfg *config.Config) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if strings.EqualFold(cfg.LogFormat, "json") {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}
