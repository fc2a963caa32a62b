package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/2beens/runcoach/internal"
	"github.com/2beens/runcoach/internal/coach"
	"github.com/2beens/runcoach/internal/config"
	"github.com/2beens/runcoach/internal/logging"
	"github.com/2beens/runcoach/internal/telemetry/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

var (
	configPath string
	envName    string
	dataDir    string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "runcoach",
	Short: "runcoach syncs Strava runs and checks them against training plans",
	Long:  "runcoach keeps a local cache of Strava runs, builds training reports and measures adherence to stored training plans.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.Setup(logging.LoggerSetupParams{
			LogToStdout: true,
			LogLevel:    logLevel,
			Console:     cmd.ErrOrStderr(),
		})
	},
	SilenceUsage: true,
}

func Execute() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		cancel()
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to TOML config file, defaults and env vars only when empty")
	rootCmd.PersistentFlags().StringVar(&envName, "env", "development", "config section [prod | production | dev | development]")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "data directory, overrides config and STRAVA_DATA_DIR")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level")
}

func loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if configPath != "" {
		var err error
		if cfg, err = config.Load(envName, configPath); err != nil {
			return nil, err
		}
	}
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	return cfg, nil
}

func withService(ctx context.Context, run func(*coach.Service) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	rdb := internal.NewRedisClient(ctx, cfg)
	if rdb != nil {
		defer rdb.Close()
	}

	service, err := internal.NewCoachService(ctx, internal.NewCoachServiceParams{
		Config:         cfg,
		MetricsManager: metrics.NewManager("runcoach", "cli", prometheus.NewRegistry()),
		RedisClient:    rdb,
	})
	if err != nil {
		return err
	}
	return run(service)
}

func printJSON(w io.Writer, v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}
