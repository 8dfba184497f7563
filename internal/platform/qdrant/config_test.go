package qdrant

import (
	"errors"
	"testing"
)

func TestResolveConfigFromEnvUnsetURL(t *testing.T) {
	t.Setenv("QDRANT_URL", "")
	cfg, err := ResolveConfigFromEnv()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.URL != "" {
		t.Fatalf("expected zero config, got %+v", cfg)
	}
}

func TestResolveConfigFromEnvDefaults(t *testing.T) {
	t.Setenv("QDRANT_URL", "http://qdrant:6333")
	t.Setenv("QDRANT_COLLECTION", "")
	t.Setenv("QDRANT_VECTOR_DIM", "")

	cfg, err := ResolveConfigFromEnv()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Collection != "memory_concepts" {
		t.Errorf("collection = %q, want memory_concepts", cfg.Collection)
	}
	if cfg.VectorDim != 1536 {
		t.Errorf("vector dim = %d, want 1536", cfg.VectorDim)
	}
}

func TestResolveConfigFromEnvInvalidDim(t *testing.T) {
	t.Setenv("QDRANT_URL", "http://qdrant:6333")
	t.Setenv("QDRANT_VECTOR_DIM", "zero")

	_, err := ResolveConfigFromEnv()
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) || cfgErr.Code != ConfigErrorInvalidVectorDim {
		t.Fatalf("expected invalid_vector_dim, got %v", err)
	}
}

func TestValidateConfigRejectsRelativeURL(t *testing.T) {
	err := ValidateConfig(Config{URL: "qdrant:6333", Collection: "c", VectorDim: 8})
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) || cfgErr.Code != ConfigErrorInvalidURL {
		t.Fatalf("expected invalid_url, got %v", err)
	}
}
