package app

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/mnemora/mnemora-backend/internal/platform/chromem"
	"github.com/mnemora/mnemora-backend/internal/platform/envutil"
	"github.com/mnemora/mnemora-backend/internal/platform/logger"
	"github.com/mnemora/mnemora-backend/internal/platform/neo4jdb"
	"github.com/mnemora/mnemora-backend/internal/platform/openai"
	"github.com/mnemora/mnemora-backend/internal/platform/qdrant"
	"github.com/mnemora/mnemora-backend/internal/platform/redisdb"
	platformvector "github.com/mnemora/mnemora-backend/internal/platform/vector"
)

// Clients holds the external backends. Vector is always set (qdrant, or the
// embedded chromem store as fallback); Neo4j and Redis stay nil when
// unconfigured and the wiring falls back to in-process implementations.
type Clients struct {
	LLM    openai.Client
	Vector platformvector.Store
	Neo4j  *neo4jdb.Client
	Redis  *goredis.Client
}

func wireClients(log *logger.Logger) (Clients, error) {
	log.Info("wiring clients")

	llm, err := openai.NewClient(log)
	if err != nil {
		return Clients{}, fmt.Errorf("init openai client: %w", err)
	}

	var store platformvector.Store
	if envutil.Str("VECTOR_BACKEND", "qdrant") == "qdrant" {
		qd, err := qdrant.NewStoreFromEnv(log)
		if err != nil {
			return Clients{}, fmt.Errorf("init qdrant store: %w", err)
		}
		if qd != nil {
			store = qd
		} else {
			log.Info("QDRANT_URL unset, falling back to embedded chromem store")
		}
	}
	if store == nil {
		ch, err := chromem.NewStoreFromEnv(log)
		if err != nil {
			return Clients{}, fmt.Errorf("init chromem store: %w", err)
		}
		store = ch
	}

	var neo *neo4jdb.Client
	if envutil.Str("GRAPH_BACKEND", "neo4j") == "neo4j" {
		neo, err = neo4jdb.NewFromEnv(log)
		if err != nil {
			return Clients{}, fmt.Errorf("init neo4j client: %w", err)
		}
		if neo == nil {
			log.Info("NEO4J_URI unset, using in-process graph")
		}
	} else {
		log.Info("local graph backend selected")
	}

	rdb, err := redisdb.NewFromEnv(log)
	if err != nil {
		return Clients{}, fmt.Errorf("init redis client: %w", err)
	}
	if rdb == nil {
		log.Info("REDIS_ADDR unset, using in-process recency ring")
	}

	return Clients{
		LLM:    llm,
		Vector: store,
		Neo4j:  neo,
		Redis:  rdb,
	}, nil
}

func (c *Clients) Close(ctx context.Context) {
	if c == nil {
		return
	}
	if c.Redis != nil {
		_ = c.Redis.Close()
	}
	if c.Neo4j != nil {
		_ = c.Neo4j.Close(ctx)
	}
}
