package main

import (
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/shopops/automator/internal/infrastructure/config"
	"github.com/shopops/automator/internal/infrastructure/logger"
	"github.com/shopops/automator/internal/infrastructure/persistence"
	"github.com/shopops/automator/internal/infrastructure/persistence/models"
)

func main() {
	var (
		configPath string
		logLevel   string
	)

	flag.StringVar(&configPath, "config", "", "Directory containing config.toml")
	flag.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}
	command := args[0]

	log, err := logger.New(logger.Config{
		Level:  logLevel,
		Format: "console",
		Output: "stdout",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = log.Sync()
	}()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatal("Failed to load configuration", zap.Error(err))
	}

	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(logLevel))
	db, err := persistence.NewDatabaseWithLogger(&cfg.Database, gormLog)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		_ = db.Close()
	}()

	log.Info("Connected to database",
		zap.String("driver", cfg.Database.Driver),
		zap.String("command", command),
	)

	switch command {
	case "up":
		history := persistence.NewGormHistoryRepository(db.DB)
		if err := history.Migrate(); err != nil {
			log.Fatal("Migration failed", zap.Error(err))
		}
		log.Info("Audit tables are up to date")

	case "status":
		migrator := db.DB.Migrator()
		tables := []struct {
			name  string
			model interface{}
		}{
			{models.PlanRecord{}.TableName(), &models.PlanRecord{}},
			{models.ExecutionRecord{}.TableName(), &models.ExecutionRecord{}},
			{models.RollbackRecord{}.TableName(), &models.RollbackRecord{}},
		}
		for _, table := range tables {
			state := "missing"
			if migrator.HasTable(table.model) {
				state = "present"
			}
			fmt.Printf("  %-20s %s\n", table.name, state)
		}

	default:
		log.Error("Unknown command", zap.String("command", command))
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`Shop Automator Schema Tool

Usage:
  migrate [flags] <command>

Commands:
  up        Create or update the audit tables
  status    Show which audit tables exist

Flags:
  -config string      Directory containing config.toml
  -log-level string   Log level: debug, info, warn, error (default: info)

The schema is owned by the persistence models; "up" is idempotent and safe
to run on every deploy.`)
}
