// Package engines maps engine identifiers to concrete analytics backends.
package engines

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/ehr/patient-analytics/internal/analytics"
	"github.com/ehr/patient-analytics/internal/analytics/duckdb"
	"github.com/ehr/patient-analytics/internal/analytics/postgres"
)

// Kind identifies a query execution engine.
type Kind string

const (
	// KindDuckDB queries Parquet files under a file-root data source.
	KindDuckDB Kind = "duckdb"
	// KindPostgres queries a Postgres warehouse; the data source is its URL.
	KindPostgres Kind = "postgres"
)

// Options tunes backend construction.
type Options struct {
	// CodeSystem restricts which coding system observation codes are
	// matched under. Empty matches codings without a system.
	CodeSystem string

	// Warehouse pool bounds; zero keeps driver defaults.
	MaxConns int32
	MinConns int32

	Logger zerolog.Logger
}

// OpenBackend constructs the backend for kind bound to dataSource. Unknown
// kinds fail with analytics.ErrUnsupportedEngine.
func OpenBackend(ctx context.Context, kind Kind, dataSource string, opts Options) (analytics.Backend, error) {
	switch kind {
	case KindDuckDB:
		return duckdb.Open(ctx, dataSource)
	case KindPostgres:
		return postgres.Open(ctx, dataSource, opts.MaxConns, opts.MinConns)
	default:
		return nil, fmt.Errorf("%w: %q", analytics.ErrUnsupportedEngine, kind)
	}
}

// NewPatientQuery opens the backend for kind and binds a fresh patient
// query to it. The query owns the engine session; Close releases it.
func NewPatientQuery(ctx context.Context, kind Kind, dataSource string, opts Options) (*analytics.PatientQuery, error) {
	backend, err := OpenBackend(ctx, kind, dataSource, opts)
	if err != nil {
		return nil, err
	}
	return analytics.NewPatientQuery(backend, opts.CodeSystem).WithLogger(opts.Logger), nil
}
