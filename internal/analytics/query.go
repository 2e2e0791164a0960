package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/ehr/patient-analytics/internal/analytics/sortkey"
)

// PatientQuery accumulates observation and encounter constraints and
// materializes per-patient summary views on a concrete execution engine.
//
// The expected flow is configure-then-query: constraint methods mutate the
// query and return the same instance for chaining, and each view call
// recomputes from the constraint state at call time. Instances are not safe
// for concurrent mutation; a single configuring goroutine is assumed.
type PatientQuery struct {
	backend    Backend
	codeSystem string
	logger     zerolog.Logger

	constraints map[string]*ObservationConstraint
	codeOrder   []string

	encounter EncounterConstraint

	includeAllOther bool
	allOtherWindow  TimeWindow
}

// NewPatientQuery binds a query to an execution backend. codeSystem, when
// non-empty, restricts which coding system is matched for observation codes;
// it is intentionally not applied to coded values' systems beyond the
// per-constraint check, since free-text or relative coded values do not
// always share the primary code system.
func NewPatientQuery(backend Backend, codeSystem string) *PatientQuery {
	return &PatientQuery{
		backend:     backend,
		codeSystem:  codeSystem,
		logger:      zerolog.Nop(),
		constraints: map[string]*ObservationConstraint{},
	}
}

// WithLogger sets the logger used for query milestones and returns the same
// instance.
func (q *PatientQuery) WithLogger(logger zerolog.Logger) *PatientQuery {
	q.logger = logger
	return q
}

// Close releases the underlying engine session.
func (q *PatientQuery) Close() error {
	if q.backend == nil {
		return nil
	}
	return q.backend.Close()
}

// IncludeObservationsInValueRange registers a numeric-range constraint for
// code: observations with that code whose numeric value lies within the
// (optional) bounds and whose timestamp lies within the window. Adding a
// second constraint for the same code fails with ErrDuplicateConstraint and
// leaves the first constraint unchanged.
func (q *PatientQuery) IncludeObservationsInValueRange(code string, minValue, maxValue *float64, window TimeWindow) (*PatientQuery, error) {
	c := &ObservationConstraint{
		Code:        code,
		ValueSystem: q.codeSystem,
		MinValue:    minValue,
		MaxValue:    maxValue,
		Window:      window,
	}
	if err := q.addConstraint(c); err != nil {
		return q, err
	}
	return q, nil
}

// IncludeObservationsWithValues registers a coded-value constraint for code:
// observations with that code whose coded value is one of values (under the
// query's code system) and whose timestamp lies within the window.
func (q *PatientQuery) IncludeObservationsWithValues(code string, values []string, window TimeWindow) (*PatientQuery, error) {
	for _, v := range values {
		if err := sortkey.ValidateComponent(v); err != nil {
			return q, fmt.Errorf("coded value for %q: %w", code, err)
		}
	}
	c := &ObservationConstraint{
		Code:        code,
		Values:      values,
		ValueSystem: q.codeSystem,
		Window:      window,
	}
	if err := q.addConstraint(c); err != nil {
		return q, err
	}
	return q, nil
}

func (q *PatientQuery) addConstraint(c *ObservationConstraint) error {
	if _, ok := q.constraints[c.Code]; ok {
		return fmt.Errorf("%w for code %q", ErrDuplicateConstraint, c.Code)
	}
	q.constraints[c.Code] = c
	q.codeOrder = append(q.codeOrder, c.Code)
	return nil
}

// IncludeAllOtherCodes toggles the catch-all: observations whose code has no
// registered constraint are included when enabled, subject to the catch-all's
// own time window.
func (q *PatientQuery) IncludeAllOtherCodes(include bool, window TimeWindow) *PatientQuery {
	q.includeAllOther = include
	q.allOtherWindow = window
	return q
}

// SetEncounterConstraint replaces any previous encounter constraint
// wholesale. There are no merge semantics: a partial merge would be
// ambiguous about which fields survive.
func (q *PatientQuery) SetEncounterConstraint(c EncounterConstraint) *PatientQuery {
	q.encounter = c
	return q
}

// Encounter returns the active encounter constraint.
func (q *PatientQuery) Encounter() EncounterConstraint {
	return q.encounter
}

// PatientObservationView materializes one summary row per (patient, code):
// flattened observations and encounters are joined on the encounter
// identifier, the combined predicate is applied, rows are aggregated per
// (patient, code), and the result is joined with patient demographics.
// baseResourceURL is stripped from stored resource identifiers.
//
// With no registered codes and the catch-all disabled the predicate is
// unconditionally false and the view is empty, not an error.
func (q *PatientQuery) PatientObservationView(ctx context.Context, baseResourceURL string) ([]PatientObservationSummary, error) {
	if q.backend == nil {
		return nil, ErrNoBackend
	}
	query := q.observationViewSQL(baseResourceURL)
	start := time.Now()
	rows, err := q.backend.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("observation view query: %w", err)
	}

	out := make([]PatientObservationSummary, 0, len(rows))
	for _, row := range rows {
		s, err := observationSummaryFromRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	q.logger.Debug().
		Int("rows", len(out)).
		Dur("elapsed", time.Since(start)).
		Msg("patient observation view")
	return out, nil
}

// PatientEncounterView materializes one summary row per patient and, when
// location/type columns are constrained or forced, per location and type.
// Forcing the columns duplicates an encounter into one row per recorded
// location and type combination.
func (q *PatientQuery) PatientEncounterView(ctx context.Context, baseResourceURL string, forceLocationTypeColumns bool) ([]PatientEncounterSummary, error) {
	if q.backend == nil {
		return nil, ErrNoBackend
	}
	query := q.encounterViewSQL(baseResourceURL, forceLocationTypeColumns)
	start := time.Now()
	rows, err := q.backend.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("encounter view query: %w", err)
	}

	out := make([]PatientEncounterSummary, 0, len(rows))
	for _, row := range rows {
		out = append(out, encounterSummaryFromRow(row))
	}
	q.logger.Debug().
		Int("rows", len(out)).
		Dur("elapsed", time.Since(start)).
		Msg("patient encounter view")
	return out, nil
}
