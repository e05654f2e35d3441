package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

// LocalConnectionString targets the local storage emulator's table endpoint
// with its well-known development account.
const LocalConnectionString = "DefaultEndpointsProtocol=http;" +
	"AccountName=devstoreaccount1;" +
	"AccountKey=Eby8vdM02xNOcqFlqUwJPLlmEtlCDXJ1OUzFT50uSRZ6IFsuFq2UVErCz4I6tq/K1SZFsoFQGhYXJb7Kr6r1g==;" +
	"TableEndpoint=http://127.0.0.1:10002/devstoreaccount1;"

// Config holds the server settings read from the environment.
type Config struct {
	Offline          bool
	ConnectionString string
	TasksTable       string
	ListenAddr       string
	LogLevel         log.Level
	LogJSON          bool
	ShutdownTimeout  time.Duration
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config using getenv for lookups.
func FromEnv(getenv func(string) string) (*Config, error) {
	cfg := &Config{
		TasksTable:      getEnv(getenv, "TASKS_TABLE", "tasks"),
		ListenAddr:      ":8080",
		LogLevel:        log.InfoLevel,
		LogJSON:         getenv("LOG_FORMAT") == "json",
		ShutdownTimeout: 10 * time.Second,
	}

	if v := getenv("IS_OFFLINE"); v != "" {
		offline, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("invalid IS_OFFLINE: %w", err)
		}
		cfg.Offline = offline
	}
	if cfg.Offline {
		cfg.ConnectionString = LocalConnectionString
	} else {
		cfg.ConnectionString = getenv("STORAGE_CONNECTION_STRING")
		if cfg.ConnectionString == "" {
			return nil, errors.New("missing STORAGE_CONNECTION_STRING")
		}
	}

	if port := getEnv(getenv, "FUNCTIONS_CUSTOMHANDLER_PORT", getenv("PORT")); port != "" {
		if _, err := strconv.Atoi(port); err != nil {
			return nil, fmt.Errorf("invalid port %q", port)
		}
		cfg.ListenAddr = ":" + port
	}

	if v := getenv("LOG_LEVEL"); v != "" {
		lvl, err := log.ParseLevel(v)
		if err != nil {
			return nil, fmt.Errorf("invalid LOG_LEVEL: %w", err)
		}
		cfg.LogLevel = lvl
	}
	if dbg, err := strconv.ParseBool(getenv("DEBUG")); err == nil && dbg {
		cfg.LogLevel = log.DebugLevel
	}

	if v := getenv("SHUTDOWN_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("invalid SHUTDOWN_TIMEOUT %q", v)
		}
		cfg.ShutdownTimeout = d
	}
	return cfg, nil
}

func getEnv(getenv func(string) string, key, def string) string {
	if v := getenv(key); v != "" {
		return v
	}
	return def
}
