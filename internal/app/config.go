package app

import (
	"github.com/mnemora/mnemora-backend/internal/platform/envutil"
	"github.com/mnemora/mnemora-backend/internal/platform/logger"
)

type Config struct {
	Env             string
	RecencyBackend  string
	RecencyCapacity int
	RecencyKey      string
}

func LoadConfig(log *logger.Logger) Config {
	cfg := Config{
		Env:             envutil.Str("APP_ENV", "development"),
		RecencyBackend:  envutil.Str("MEMORY_RECENCY_BACKEND", "memory"),
		RecencyCapacity: envutil.Int("MEMORY_RECENCY_CAPACITY", 10),
		RecencyKey:      envutil.Str("MEMORY_RECENCY_KEY", "memory:recency"),
	}
	if cfg.RecencyCapacity < 0 {
		log.Warn("negative MEMORY_RECENCY_CAPACITY, using 0", "value", cfg.RecencyCapacity)
		cfg.RecencyCapacity = 0
	}
	log.Info("config loaded",
		"env", cfg.Env,
		"recency_backend", cfg.RecencyBackend,
		"recency_capacity", cfg.RecencyCapacity,
	)
	return cfg
}
