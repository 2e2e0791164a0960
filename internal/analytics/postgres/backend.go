// Package postgres implements the analytics backend for clinical records
// loaded into a Postgres warehouse.
//
// The warehouse layout is one table per resource collection — patient,
// observation, encounter — each with a text id column (still carrying the
// full resource URL) and a resource JSONB column holding the nested FHIR
// record. Repeated sub-elements are exploded with jsonb_array_elements;
// optional repeated elements use LEFT JOIN LATERAL so a record without them
// keeps exactly one row.
package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/patient-analytics/internal/analytics/sortkey"
	"github.com/ehr/patient-analytics/internal/platform/db"
)

// Backend executes patient view queries against a Postgres warehouse.
type Backend struct {
	pool *pgxpool.Pool
}

// Open connects a pooled session to the warehouse at databaseURL. The pool
// is owned by the returned backend until Close.
func Open(ctx context.Context, databaseURL string, maxConns, minConns int32) (*Backend, error) {
	pool, err := db.NewPool(ctx, databaseURL, maxConns, minConns)
	if err != nil {
		return nil, fmt.Errorf("connect warehouse: %w", err)
	}
	return &Backend{pool: pool}, nil
}

const (
	numericValueExpr = `(o.resource->'value'->'quantity'->>'value')::float8`
	effectiveExpr    = `o.resource->'effective'->>'dateTime'`
)

// FlattenObservationsSQL explodes code.coding strictly and
// value.codeableConcept.coding with outer semantics, computing the sortable
// keys per exploded row.
func (b *Backend) FlattenObservationsSQL(codeSystem string) string {
	systemCond := `c.coding->>'system' IS NULL`
	valueSystemCond := `vc.coding->>'system' IS NULL`
	if codeSystem != "" {
		systemCond = fmt.Sprintf(`c.coding->>'system' = %s`, quoteLiteral(codeSystem))
		valueSystemCond = fmt.Sprintf(`vc.coding->>'system' = %s`, quoteLiteral(codeSystem))
	}

	return fmt.Sprintf(`SELECT
    o.resource->'subject'->>'patientId' AS patient_id,
    o.resource->'context'->>'encounterId' AS encounter_id,
    c.coding->>'code' AS code,
    vc.coding->>'code' AS value_code,
    vc.coding->>'system' AS value_system,
    %s AS value_num,
    %s AS effective_time,
    %s AS date_value_key,
    %s AS date_value_code_key
  FROM observation AS o
  CROSS JOIN LATERAL jsonb_array_elements(o.resource->'code'->'coding') AS c(coding)
  LEFT JOIN LATERAL jsonb_array_elements(o.resource->'value'->'codeableConcept'->'coding') AS vc(coding) ON true
  WHERE %s AND (vc.coding IS NULL OR %s)`,
		numericValueExpr,
		effectiveExpr,
		sortkey.SQLExpr("("+effectiveExpr+")", numericValueExpr),
		sortkey.SQLExpr("("+effectiveExpr+")", `vc.coding->>'code'`),
		systemCond,
		valueSystemCond,
	)
}

// FlattenEncountersSQL strips baseEncounterURL from encounter identifiers
// and explodes location and type arrays only when asked to.
func (b *Backend) FlattenEncountersSQL(baseEncounterURL string, includeLocation, includeType bool) string {
	cols := []string{
		fmt.Sprintf(`replace(e.id, %s, '') AS encounter_id`, quoteLiteral(baseEncounterURL)),
		`e.resource->'subject'->>'patientId' AS patient_id`,
		`e.resource->'period'->>'start' AS period_start`,
		`e.resource->'period'->>'end' AS period_end`,
	}
	var joins []string
	if includeLocation {
		joins = append(joins,
			`LEFT JOIN LATERAL jsonb_array_elements(e.resource->'location') AS l(loc) ON true`)
		cols = append(cols,
			`l.loc->'location'->>'locationId' AS location_id`,
			`l.loc->'location'->>'display' AS location_display`)
	}
	if includeType {
		joins = append(joins,
			`LEFT JOIN LATERAL jsonb_array_elements(e.resource->'type') AS t(typ) ON true`)
		cols = append(cols,
			`t.typ->'coding'->>'system' AS type_system`,
			`t.typ->'coding'->>'code' AS type_code`)
	}

	query := fmt.Sprintf("SELECT\n    %s\n  FROM encounter AS e",
		strings.Join(cols, ",\n    "))
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
    p.resource->>'birthDate' AS birth_date,
    p.resource->>'gender' AS gender
  FROM patient AS p`,
		quoteLiteral(basePatientURL))
}

// Query runs a composed view query and returns every row keyed by column
// alias.
func (b *Backend) Query(ctx context.Context, query string) ([]map[string]any, error) {
	rows, err := b.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	fieldDescs := rows.FieldDescriptions()
	var results []map[string]any
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, err
		}
		row := make(map[string]any, len(fieldDescs))
		for i, fd := range fieldDescs {
			row[string(fd.Name)] = values[i]
		}
		results = append(results, row)
	}
	return results, rows.Err()
}

// Ping verifies the warehouse connection is usable.
func (b *Backend) Ping(ctx context.Context) error {
	return b.pool.Ping(ctx)
}

// Stats exposes connection pool statistics for health reporting.
func (b *Backend) Stats() *db.PoolStats {
	return db.GetPoolStats(b.pool)
}

// Close releases the connection pool.
func (b *Backend) Close() error {
	b.pool.Close()
	return nil
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
