package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/saranrapjs/esrs-ixbrl/pkg/config"
	"github.com/saranrapjs/esrs-ixbrl/pkg/db"
	"github.com/saranrapjs/esrs-ixbrl/pkg/logger"
	"github.com/saranrapjs/esrs-ixbrl/pkg/server"
	"github.com/saranrapjs/esrs-ixbrl/pkg/setup"
)

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		cfg := config.Default()
		return cfg, config.ApplyEnv(cfg)
	}
	return config.Load(path)
}

func main() {
	configPath := flag.String("config", "", "config file path")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	log, err := logger.New(cfg.Debug || *debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := setup.Taxonomy(ctx, cfg.Taxonomy, log)
	if err != nil {
		log.Fatal("Failed to load taxonomy", zap.Error(err))
	}

	database, err := db.New(cfg.Storage.DatabasePath)
	if err != nil {
		log.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer database.Close()

	srv, err := server.NewServer(store, database, setup.Generator(cfg.Generator), &cfg.Server, log)
	if err != nil {
		log.Fatal("Failed to create server", zap.Error(err))
	}
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info("Shutting down...")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = srv.Stop(shutdownCtx)
}
