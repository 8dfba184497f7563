package memerr

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// Kind standardizes pipeline failure semantics across stores and gateways.
type Kind string

const (
	KindInvalidInput        Kind = "invalid_input"
	KindStoreUnavailable    Kind = "store_unavailable"
	KindAnalyzerUnavailable Kind = "analyzer_unavailable"
	KindAnalyzerMalformed   Kind = "analyzer_malformed"
	KindVectorUnavailable   Kind = "vector_unavailable"
	KindGraphUnavailable    Kind = "graph_unavailable"
	KindTimeout             Kind = "timeout"
	KindInternal            Kind = "internal"
)

// Error is the single user-visible failure envelope: kind, stage, message.
type Error struct {
	Kind    Kind
	Stage   string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	stage := strings.TrimSpace(e.Stage)
	msg := strings.TrimSpace(e.Message)
	switch {
	case stage != "" && msg != "":
		return fmt.Sprintf("%s: %s (%s)", stage, msg, e.Kind)
	case stage != "":
		return fmt.Sprintf("%s (%s)", stage, e.Kind)
	case msg != "":
		return fmt.Sprintf("%s (%s)", msg, e.Kind)
	default:
		return string(e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an envelope with explicit kind and stage.
func New(kind Kind, stage, message string) error {
	return &Error{
		Kind:    kind,
		Stage:   strings.TrimSpace(stage),
		Message: strings.TrimSpace(message),
	}
}

// Wrap annotates an existing error. A nil err yields nil. If err already
// carries an envelope its kind is preserved and only the stage is filled in
// when missing.
func Wrap(kind Kind, stage string, err error) error {
	if err == nil {
		return nil
	}
	var prev *Error
	if errors.As(err, &prev) {
		if prev.Stage == "" {
			prev.Stage = strings.TrimSpace(stage)
		}
		return err
	}
	return &Error{
		Kind:    kind,
		Stage:   strings.TrimSpace(stage),
		Message: err.Error(),
		Cause:   err,
	}
}

// IsKind checks whether err (or a wrapped err) carries the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}

// KindOf extracts the kind when available, KindInternal otherwise.
func KindOf(err error) Kind {
	var e *Error
	if !errors.As(err, &e) {
		return KindInternal
	}
	return e.Kind
}

// StageOf extracts the stage when available.
func StageOf(err error) string {
	var e *Error
	if !errors.As(err, &e) {
		return ""
	}
	return e.Stage
}

// Fatal reports whether an ingest must abort on this error. Only the
// relational insert and the analyzer extraction are fatal; everything else
// downgrades a response flag.
func Fatal(err error) bool {
	switch KindOf(err) {
	case KindInvalidInput, KindStoreUnavailable, KindAnalyzerUnavailable, KindAnalyzerMalformed:
		return true
	default:
		return false
	}
}

// MapStore converts relational-adapter failures into the taxonomy at the
// adapter boundary. Postgres error codes are classified via pgconn.
func MapStore(stage string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return Wrap(KindTimeout, stage, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch strings.TrimSpace(pgErr.Code) {
		case "40001", "40P01", "55P03":
			// serialization/deadlock/lock_not_available: transient
			return Wrap(KindStoreUnavailable, stage, err)
		case "23505":
			return Wrap(KindInternal, stage, err) // unexpected duplicate key
		default:
			return Wrap(KindStoreUnavailable, stage, err)
		}
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "deadline"):
		return Wrap(KindTimeout, stage, err)
	case strings.Contains(msg, "connection"), strings.Contains(msg, "refused"),
		strings.Contains(msg, "closed"), strings.Contains(msg, "temporar"):
		return Wrap(KindStoreUnavailable, stage, err)
	default:
		return Wrap(KindStoreUnavailable, stage, err)
	}
}

// MapVector converts vector-adapter failures. Never fatal for ingest.
func MapVector(stage string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return Wrap(KindTimeout, stage, err)
	}
	return Wrap(KindVectorUnavailable, stage, err)
}

// MapGraph converts graph-adapter failures. Never fatal for ingest.
func MapGraph(stage string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return Wrap(KindTimeout, stage, err)
	}
	return Wrap(KindGraphUnavailable, stage, err)
}
