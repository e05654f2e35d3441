package main

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/valeop/taskflow-manager/config"
	"github.com/valeop/taskflow-manager/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	log.SetLevel(cfg.LogLevel)
	if cfg.LogJSON {
		log.SetFormatter(&log.JSONFormatter{})
	}
	log.WithField("table", cfg.TasksTable).Info("storage init starting")

	store, err := storage.New(cfg.ConnectionString, cfg.TasksTable)
	if err != nil {
		log.Fatalf("storage: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := store.EnsureTable(ctx); err != nil {
		log.Fatalf("create table %s: %v", cfg.TasksTable, err)
	}

	log.Info("storage init complete")
}
