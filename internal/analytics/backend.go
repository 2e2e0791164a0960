package analytics

import "context"

// Backend is the contract one execution engine implements. The facade is
// written once against this interface; an engine only has to produce SQL
// fragments flattening its native representation of the three resource
// collections into the fixed column contract below, and to execute the
// composed view query.
//
// Flat observation columns (one row per source observation, exploded code,
// and exploded coded value if any; observations without a coded value keep
// one row with value_code NULL):
//
//	patient_id, encounter_id, code, value_code, value_system, value_num,
//	effective_time, date_value_key, date_value_code_key
//
// The two key columns carry the sortable (timestamp, value) encodings from
// the sortkey package and must be computed per row at flatten time, before
// grouping discards the row-level pairing of timestamp and value.
//
// Flat encounter columns:
//
//	encounter_id, patient_id, period_start, period_end
//
// plus location_id, location_display when includeLocation is set and
// type_system, type_code when includeType is set.
//
// Flat patient columns: patient_id, birth_date, gender. The base URL
// arguments are stripped from stored resource identifiers so identifiers
// join across collections.
type Backend interface {
	// FlattenObservationsSQL returns a SELECT producing the flat observation
	// relation. codeSystem restricts code.coding entries to that system
	// (empty means codings without a system); value codings are kept when
	// absent or matching the same system.
	FlattenObservationsSQL(codeSystem string) string

	// FlattenEncountersSQL returns a SELECT producing the flat encounter
	// relation, exploding location and type arrays only when requested.
	FlattenEncountersSQL(baseEncounterURL string, includeLocation, includeType bool) string

	// FlattenPatientsSQL returns a SELECT producing the flat patient relation.
	FlattenPatientsSQL(basePatientURL string) string

	// Query executes a composed view query and returns all result rows keyed
	// by column alias. Engine failures propagate unmodified.
	Query(ctx context.Context, query string) ([]map[string]any, error)

	// Ping verifies the engine session is usable.
	Ping(ctx context.Context) error

	// Close releases the engine session. The session is owned by whoever
	// opened the backend for that instance's lifetime.
	Close() error
}
