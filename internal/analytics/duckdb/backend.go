// Package duckdb implements the analytics backend for clinical records
// stored as Parquet files, queried through an embedded DuckDB session.
//
// The data source is a file root with one directory per resource collection
// (Patient/, Observation/, Encounter/), each holding Parquet files with the
// nested FHIR record layout. Repeated sub-elements are exploded with lateral
// unnest; optional repeated elements use LEFT JOIN LATERAL so a record
// without them keeps exactly one row instead of vanishing from aggregates.
package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/ehr/patient-analytics/internal/analytics/sortkey"
)

// Backend executes patient view queries with an embedded DuckDB session.
type Backend struct {
	db       *sql.DB
	fileRoot string
}

// Open creates an in-memory DuckDB session reading Parquet files under
// fileRoot. The session is owned by the returned backend until Close.
func Open(ctx context.Context, fileRoot string) (*Backend, error) {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("open duckdb session: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping duckdb session: %w", err)
	}
	return &Backend{db: db, fileRoot: fileRoot}, nil
}

// source returns a read_parquet scan over one resource collection.
func (b *Backend) source(resource string) string {
	pattern := filepath.ToSlash(filepath.Join(b.fileRoot, resource, "*.parquet"))
	return fmt.Sprintf("read_parquet(%s)", quoteLiteral(pattern))
}

// FlattenObservationsSQL explodes code.coding strictly (an observation with
// no code contributes no rows) and value.codeableConcept.coding with outer
// semantics (a missing coded value keeps one row with NULLs). The sortable
// keys are computed here, per exploded row, while the timestamp and value
// are still correlated.
func (b *Backend) FlattenObservationsSQL(codeSystem string) string {
	systemCond := `c.coding.system IS NULL`
	valueSystemCond := `vc.coding.system IS NULL`
	if codeSystem != "" {
		systemCond = fmt.Sprintf(`c.coding.system = %s`, quoteLiteral(codeSystem))
		valueSystemCond = fmt.Sprintf(`vc.coding.system = %s`, quoteLiteral(codeSystem))
	}

	return fmt.Sprintf(`SELECT
    o.subject."patientId" AS patient_id,
    o.context."encounterId" AS encounter_id,
    c.coding.code AS code,
    vc.coding.code AS value_code,
    vc.coding.system AS value_system,
    o."value".quantity."value" AS value_num,
    o.effective."dateTime" AS effective_time,
    %s AS date_value_key,
    %s AS date_value_code_key
  FROM %s AS o
  CROSS JOIN LATERAL (SELECT unnest(o.code.coding) AS coding) AS c
  LEFT JOIN LATERAL (SELECT unnest(o."value"."codeableConcept".coding) AS coding) AS vc ON true
  WHERE %s AND (vc.coding IS NULL OR %s)`,
		sortkey.SQLExpr(`o.effective."dateTime"`, `o."value".quantity."value"`),
		sortkey.SQLExpr(`o.effective."dateTime"`, `vc.coding.code`),
		b.source("Observation"),
		systemCond,
		valueSystemCond,
	)
}

// FlattenEncountersSQL strips baseEncounterURL from encounter identifiers
// and explodes the location and type arrays only when asked to, keeping
// encounters single-row otherwise.
func (b *Backend) FlattenEncountersSQL(baseEncounterURL string, includeLocation, includeType bool) string {
	cols := []string{
		fmt.Sprintf(`replace(e.id, %s, '') AS encounter_id`, quoteLiteral(baseEncounterURL)),
		`e.subject."patientId" AS patient_id`,
		`e.period."start" AS period_start`,
		`e.period."end" AS period_end`,
	}
	var joins []string
	if includeLocation {
		joins = append(joins,
			`LEFT JOIN LATERAL (SELECT unnest(e.location) AS loc) AS l ON true`)
		cols = append(cols,
			`l.loc.location."locationId" AS location_id`,
			`l.loc.location.display AS location_display`)
	}
	if includeType {
		joins = append(joins,
			`LEFT JOIN LATERAL (SELECT unnest(e."type") AS typ) AS t ON true`)
		cols = append(cols,
			`t.typ.coding.system AS type_system`,
			`t.typ.coding.code AS type_code`)
	}

	query := fmt.Sprintf("SELECT\n    %s\n  FROM %s AS e",
		strings.Join(cols, ",\n    "), b.source("Encounter"))
	if len(joins) > 0 {
		query += "\n  " + strings.Join(joins, "\n  ")
	}
	return query
}

// FlattenPatientsSQL projects the demographic fields joined into the
// observation view.
func (b *Backend) FlattenPatientsSQL(basePatientURL string) string {
	return fmt.Sprintf(`SELECT
    replace(p.id, %s, '') AS patient_id,
    p."birthDate" AS birth_date,
    p.gender AS gender
  FROM %s AS p`,
		quoteLiteral(basePatientURL), b.source("Patient"))
}

// Query runs a composed view query and returns every row keyed by column
// alias.
func (b *Backend) Query(ctx context.Context, query string) ([]map[string]any, error) {
	rows, err := b.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var results []map[string]any
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(map[string]any, len(cols))
		for i, name := range cols {
			row[name] = values[i]
		}
		results = append(results, row)
	}
	return results, rows.Err()
}

// Ping verifies the session is usable.
func (b *Backend) Ping(ctx context.Context) error {
	return b.db.PingContext(ctx)
}

// Close releases the DuckDB session.
func (b *Backend) Close() error {
	return b.db.Close()
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
