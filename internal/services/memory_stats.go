package services

import (
	"context"

	"github.com/mnemora/mnemora-backend/internal/data/graph"
	"github.com/mnemora/mnemora-backend/internal/data/repos/memories"
	"github.com/mnemora/mnemora-backend/internal/domain/memory"
	"github.com/mnemora/mnemora-backend/internal/modules/memory/recency"
	"github.com/mnemora/mnemora-backend/internal/platform/logger"
)

// StatsOverview merges the relational, graph and recency views of the store.
// Graph is nil when the graph backend could not answer.
type StatsOverview struct {
	Store       *memory.StoreStats `json:"store"`
	Graph       *graph.GraphStats  `json:"graph,omitempty"`
	RecencyFill int                `json:"recency_fill"`
}

type StatsService interface {
	Overview(ctx context.Context) (*StatsOverview, error)
	Recent(ctx context.Context, limit int) ([]*memory.Memory, error)
	ByCategory(ctx context.Context, category string, limit int) ([]*memory.Memory, error)
	RecencyDump(ctx context.Context) ([]memory.RecencySlot, error)
}

type statsService struct {
	repo  memories.MemoryRepo
	graph graph.MemoryGraph
	cache recency.Cache
	log   *logger.Logger
}

func NewStatsService(repo memories.MemoryRepo, memoryGraph graph.MemoryGraph, cache recency.Cache, baseLog *logger.Logger) StatsService {
	return &statsService{
		repo:  repo,
		graph: memoryGraph,
		cache: cache,
		log:   baseLog.With("service", "StatsService"),
	}
}

// Overview fails only when the relational store is unreachable; a graph
// outage degrades to a nil graph section.
func (s *statsService) Overview(ctx context.Context) (*StatsOverview, error) {
	store, err := s.repo.Stats(ctx, nil)
	if err != nil {
		return nil, err
	}
	out := &StatsOverview{Store: store}

	if s.graph != nil {
		gs, err := s.graph.Stats(ctx)
		if err != nil {
			s.log.Warn("graph stats unavailable", "error", err)
		} else {
			out.Graph = gs
		}
	}
	if s.cache != nil {
		if n, err := s.cache.Len(ctx); err == nil {
			out.RecencyFill = n
		}
	}
	return out, nil
}

func (s *statsService) Recent(ctx context.Context, limit int) ([]*memory.Memory, error) {
	return s.repo.Recent(ctx, nil, limit)
}

func (s *statsService) ByCategory(ctx context.Context, category string, limit int) ([]*memory.Memory, error) {
	return s.repo.ByCategory(ctx, nil, category, limit)
}

func (s *statsService) RecencyDump(ctx context.Context) ([]memory.RecencySlot, error) {
	if s.cache == nil {
		return nil, nil
	}
	return s.cache.Dump(ctx)
}
