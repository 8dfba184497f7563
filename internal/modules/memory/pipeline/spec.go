package pipeline

import (
	"embed"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/mnemora/mnemora-backend/internal/platform/logger"
)

const pipelineSpecEnv = "MEMORY_PIPELINE_SPEC_PATH"

//go:embed defaults.yaml
var pipelineSpecFS embed.FS

// Tuning holds the pipeline constants that ship in the embedded YAML spec.
// A spec file named by MEMORY_PIPELINE_SPEC_PATH overrides the embedded one
// for experiments; load failures fall back to compiled defaults.
type Tuning struct {
	Pipeline string `yaml:"pipeline"`
	Version  int    `yaml:"version"`

	Rerank struct {
		Hybrid struct {
			Text    float64 `yaml:"text"`
			Vector  float64 `yaml:"vector"`
			Recency float64 `yaml:"recency"`
		} `yaml:"hybrid"`
		Graph struct {
			Text    float64 `yaml:"text"`
			Vector  float64 `yaml:"vector"`
			Recency float64 `yaml:"recency"`
			Graph   float64 `yaml:"graph"`
		} `yaml:"graph"`
		HalfLifeDays float64 `yaml:"half_life_days"`
	} `yaml:"rerank"`

	Fanout struct {
		SQLLimit   int `yaml:"sql_limit"`
		VectorK    int `yaml:"vector_k"`
		GraphLimit int `yaml:"graph_limit"`
	} `yaml:"fanout"`

	Graph struct {
		SeedSQLHits int `yaml:"seed_sql_hits"`
		SeedRecords int `yaml:"seed_records"`
	} `yaml:"graph"`
}

func fallbackTuning() *Tuning {
	t := &Tuning{Pipeline: "memory", Version: 1}
	t.Rerank.Hybrid.Text = 0.4
	t.Rerank.Hybrid.Vector = 0.4
	t.Rerank.Hybrid.Recency = 0.2
	t.Rerank.Graph.Text = 0.3
	t.Rerank.Graph.Vector = 0.3
	t.Rerank.Graph.Recency = 0.2
	t.Rerank.Graph.Graph = 0.2
	t.Rerank.HalfLifeDays = 30
	t.Fanout.SQLLimit = 50
	t.Fanout.VectorK = 20
	t.Fanout.GraphLimit = 20
	t.Graph.SeedSQLHits = 5
	t.Graph.SeedRecords = 5
	return t
}

var tuningOnce sync.Once
var tuningCache *Tuning
var tuningErr error

func currentTuning(log *logger.Logger) *Tuning {
	tuningOnce.Do(func() {
		tuningCache, tuningErr = loadTuning()
	})
	if tuningErr != nil {
		if log != nil {
			log.Warn("pipeline spec load failed; using fallback", "error", tuningErr)
		}
		return fallbackTuning()
	}
	return tuningCache
}

func loadTuning() (*Tuning, error) {
	raw, err := specBytes()
	if err != nil {
		return nil, err
	}
	t := fallbackTuning()
	if err := yaml.Unmarshal(raw, t); err != nil {
		return nil, err
	}
	if t.Rerank.HalfLifeDays <= 0 {
		t.Rerank.HalfLifeDays = 30
	}
	if t.Fanout.SQLLimit <= 0 {
		t.Fanout.SQLLimit = 50
	}
	if t.Fanout.VectorK <= 0 {
		t.Fanout.VectorK = 20
	}
	if t.Fanout.GraphLimit <= 0 {
		t.Fanout.GraphLimit = 20
	}
	if t.Graph.SeedSQLHits <= 0 {
		t.Graph.SeedSQLHits = 5
	}
	if t.Graph.SeedRecords <= 0 {
		t.Graph.SeedRecords = 5
	}
	return t, nil
}

func specBytes() ([]byte, error) {
	if path := os.Getenv(pipelineSpecEnv); path != "" {
		return os.ReadFile(path)
	}
	return pipelineSpecFS.ReadFile("defaults.yaml")
}
