package main

import (
	"context"
	"errors"
	"net/http"
	"os"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	log "github.com/sirupsen/logrus"

	"github.com/valeop/taskflow-manager/api"
	"github.com/valeop/taskflow-manager/config"
	"github.com/valeop/taskflow-manager/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := log.New()
	logger.SetLevel(cfg.LogLevel)
	if cfg.LogJSON {
		logger.SetFormatter(&log.JSONFormatter{})
	}
	log.SetLevel(cfg.LogLevel)

	store, err := storage.New(cfg.ConnectionString, cfg.TasksTable)
	if err != nil {
		log.Fatalf("storage: %v", err)
	}
	if cfg.Offline {
		if err := store.EnsureTable(context.Background()); err != nil {
			log.Fatalf("ensure table %s: %v", cfg.TasksTable, err)
		}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	httpMetrics := api.NewHTTPMetrics(reg)

	e := echo.New()
	e.HideBanner = true
	e.JSONSerializer = api.SonicSerializer{}
	e.Use(api.ResponseHeaders(), api.CORS(), middleware.Recover(), api.GzipRequest(), httpMetrics.Middleware())
	e.GET("/metrics", httpMetrics.Handler())
	api.Register(e, store, logger)

	go func() {
		logger.WithFields(log.Fields{
			"addr":    cfg.ListenAddr,
			"table":   cfg.TasksTable,
			"offline": cfg.Offline,
		}).Info("task api listening")
		if err := e.Start(cfg.ListenAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("server: %v", err)
		}
	}()

	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		cfg.ShutdownTimeout,
		map[string]gfshutdown.Operation{
			"http-server": func(ctx context.Context) error {
				logger.Info("shutting down task api")
				return e.Shutdown(ctx)
			},
		},
	)

	code := <-wait
	logger.WithField("code", code).Info("task api stopped")
	os.Exit(code)
}
