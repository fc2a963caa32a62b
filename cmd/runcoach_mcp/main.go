// Package main runs the runcoach MCP server over stdio for local MCP clients.
// The same tools are mounted on the main service at /mcp over HTTP.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/2beens/runcoach/internal"
	coachmcp "github.com/2beens/runcoach/internal/coach/mcp"
	"github.com/2beens/runcoach/internal/config"
	"github.com/2beens/runcoach/internal/logging"
	"github.com/2beens/runcoach/internal/telemetry/metrics"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	log "github.com/sirupsen/logrus"
)

const version = "1.0.0"

func main() {
	env := flag.String("env", "development", "environment [prod | production | dev | development]")
	configPath := flag.String("config", "", "path to TOML config file, defaults and env vars only when empty")
	logLevel := flag.String("log-level", "info", "log level")
	flag.Parse()

	// stdout carries the protocol
	logging.Setup(logging.LoggerSetupParams{
		LogToStdout: true,
		LogLevel:    *logLevel,
		Console:     os.Stderr,
	})

	cfg := config.Default()
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*env, *configPath)
		if err != nil {
			log.Fatalf("load config: %s", err)
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	metricsManager := metrics.NewManager("runcoach", "mcp", metrics.SetupPrometheus())
	rdb := internal.NewRedisClient(ctx, cfg)
	if rdb != nil {
		defer rdb.Close()
	}

	coachService, err := internal.NewCoachService(ctx, internal.NewCoachServiceParams{
		Config:         cfg,
		MetricsManager: metricsManager,
		RedisClient:    rdb,
	})
	if err != nil {
		log.Fatalf("coach service: %s", err)
	}

	server := coachmcp.NewServer(coachService, metricsManager, version)
	log.Infof("runcoach mcp server running on stdio, data dir: %s", cfg.DataDir)
	if err := server.Run(ctx, &mcp.StdioTransport{}); err != nil {
		log.Fatal(err)
	}
}
