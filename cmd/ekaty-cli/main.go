package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Dhoini/ekaty/internal/app"
	"github.com/Dhoini/ekaty/internal/config"
	"github.com/spf13/cobra"
)

var configPath string

// rootCmd утилита обслуживания eKaty
var rootCmd = &cobra.Command{
	Use:           "ekaty",
	Short:         "eKaty maintenance tool",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", os.Getenv("CONFIG_PATH"), "directory with config.yml and .env")

	rootCmd.AddCommand(migrateCmd, verifyCmd, healthCmd)
	rootCmd.AddCommand(importCmd, placesCmd)
	rootCmd.AddCommand(outreachCmd, partnersCmd, adminCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// loadConfig читает конфигурацию из --config
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// withApp поднимает приложение, выполняет fn и освобождает ресурсы
func withApp(cmd *cobra.Command, opts app.Options, fn func(ctx context.Context, a *app.App) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := app.NewLogger(cfg).Named("cli")
	defer func() { _ = log.Sync() }()

	ctx := cmd.Context()
	a, err := app.New(ctx, cfg, log, opts)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

// printJSON печатает v с отступами
func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
