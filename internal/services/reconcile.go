package services

import (
	"context"
	"fmt"

	"github.com/mnemora/mnemora-backend/internal/data/graph"
	"github.com/mnemora/mnemora-backend/internal/data/repos/memories"
	dvector "github.com/mnemora/mnemora-backend/internal/data/vector"
	"github.com/mnemora/mnemora-backend/internal/domain/memory"
	"github.com/mnemora/mnemora-backend/internal/platform/logger"
	"github.com/mnemora/mnemora-backend/internal/platform/memerr"
)

// ReconcileReport describes what a cleanup pass removed.
type ReconcileReport struct {
	RecordID      int64 `json:"record_id"`
	VectorDeleted bool  `json:"vector_deleted"`
	GraphRemoved  bool  `json:"graph_removed"`
}

// ReconcileService removes index leftovers for records that no longer exist
// in the relational store. It is an operator tool; the ingest pipeline never
// calls it and indexed concepts of deleted rows are otherwise kept on
// purpose.
type ReconcileService interface {
	DropOrphan(ctx context.Context, recordID int64, conceptCount int) (*ReconcileReport, error)
}

type reconcileService struct {
	repo  memories.MemoryRepo
	index dvector.ConceptIndex
	graph graph.MemoryGraph
	log   *logger.Logger
}

func NewReconcileService(repo memories.MemoryRepo, index dvector.ConceptIndex, memoryGraph graph.MemoryGraph, baseLog *logger.Logger) ReconcileService {
	return &reconcileService{
		repo:  repo,
		index: index,
		graph: memoryGraph,
		log:   baseLog.With("service", "ReconcileService"),
	}
}

func (s *reconcileService) DropOrphan(ctx context.Context, recordID int64, conceptCount int) (*ReconcileReport, error) {
	if recordID <= 0 {
		return nil, memerr.New(memerr.KindInvalidInput, "reconcile", "record id must be positive")
	}
	row, err := s.repo.Get(ctx, nil, recordID)
	if err != nil {
		return nil, err
	}
	if row != nil {
		return nil, memerr.New(memerr.KindInvalidInput, "reconcile",
			fmt.Sprintf("record %d still exists, refusing to drop its indexes", recordID))
	}

	report := &ReconcileReport{RecordID: recordID}
	var firstErr error

	if s.index != nil && conceptCount > 0 {
		rec := &memory.Memory{ID: recordID}
		if err := s.index.DeleteByRecord(ctx, rec, conceptCount); err != nil {
			s.log.Warn("vector cleanup failed", "record_id", recordID, "error", err)
			firstErr = err
		} else {
			report.VectorDeleted = true
		}
	}
	if s.graph != nil {
		if err := s.graph.RemoveNode(ctx, recordID); err != nil {
			s.log.Warn("graph cleanup failed", "record_id", recordID, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		} else {
			report.GraphRemoved = true
		}
	}

	s.log.Info("orphan reconciled",
		"record_id", recordID,
		"vector_deleted", report.VectorDeleted,
		"graph_removed", report.GraphRemoved,
	)
	return report, firstErr
}
