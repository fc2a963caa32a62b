package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/2beens/runcoach/internal/backup"
	"github.com/2beens/runcoach/internal/config"
	"github.com/2beens/runcoach/internal/logging"
	"github.com/2beens/runcoach/internal/telemetry/metrics"

	log "github.com/sirupsen/logrus"
)

func main() {
	env := flag.String("env", "development", "environment [prod | production | dev | development]")
	configPath := flag.String("config", "./config.toml", "path for the TOML config file")
	credentialsFile := flag.String("gd-creds", "", "google drive service account credentials json, overrides config")
	keep := flag.Int("keep", backup.DefaultKeep, "number of newest backups to keep")
	loop := flag.Bool("loop", false, "keep running and back up every backups_interval_hours")
	flag.Parse()

	cfg, err := config.Load(*env, *configPath)
	if err != nil {
		log.Fatalf("load config: %s", err)
	}

	logging.Setup(logging.LoggerSetupParams{
		LogFileName:      cfg.LogsPath,
		LogToStdout:      true,
		LogLevel:         cfg.LogLevel,
		Environment:      cfg.Environment,
		SentryEnabled:    cfg.SentryEnabled,
		SentryDSN:        cfg.SentryDSN,
		SentryServerName: "runcoach-backups",
	})

	log.Println("starting runcoach data backup ...")

	if *credentialsFile == "" {
		*credentialsFile = cfg.BackupsCredentialsFile
	}
	if *credentialsFile == "" {
		log.Fatalln("google drive credentials json not specified")
	}

	credentialsFileBytes, err := os.ReadFile(*credentialsFile)
	if err != nil {
		log.Fatalf("unable to read credentials file: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	store, err := backup.NewDriveStore(ctx, credentialsFileBytes, cfg.BackupsGDriveFolderID, backup.DefaultFolderName)
	if err != nil {
		log.Fatalf("failed to create google drive backup store: %s", err)
	}
	log.Debugf("backups folder ID: %s", store.FolderID())

	service := backup.NewService(backup.Params{
		Store:          store,
		DataDir:        cfg.DataDir,
		TempDir:        cfg.BackupsTempDir,
		Keep:           *keep,
		MetricsManager: metrics.NewManager("runcoach", "backups", metrics.SetupPrometheus()),
	})

	name, err := service.DoBackup(ctx)
	if err != nil {
		log.Fatalf("backup failed: %+v", err)
	}
	log.Printf("backup done: %s", name)

	if *loop {
		interval := time.Duration(cfg.BackupsIntervalHours) * time.Hour
		log.Printf("backing up every %s", interval)
		service.Loop(ctx, interval)
	}
}
