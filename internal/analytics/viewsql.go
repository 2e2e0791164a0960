package analytics

import (
	"fmt"
	"strings"
)

// The aggregate stage is plain SQL over the flat column contract and is
// shared by every engine; only the flatten fragments below it differ.

// observationViewSQL composes the full patient*code summary query: flatten
// both streams, join them on the encounter identifier, apply the combined
// predicate, aggregate per (patient, code), and join patient demographics.
func (q *PatientQuery) observationViewSQL(baseResourceURL string) string {
	flatObs := q.backend.FlattenObservationsSQL(q.codeSystem)
	// Location/type columns are materialized only when a constraint needs
	// them; otherwise an encounter with several recorded locations would
	// multiply every joined observation.
	flatEnc := q.backend.FlattenEncountersSQL(
		baseResourceURL+"Encounter/", q.encounter.HasLocation(), q.encounter.HasType())
	patients := q.backend.FlattenPatientsSQL(baseResourceURL + "Patient/")

	return fmt.Sprintf(`WITH flat_obs AS (
%s
), flat_enc AS (
%s
), joined AS (
  SELECT flat_obs.*
  FROM flat_obs
  JOIN flat_enc ON flat_enc.encounter_id = flat_obs.encounter_id
  WHERE %s
), agg AS (
  SELECT patient_id,
         code,
         COUNT(*) AS num_obs,
         MIN(value_num) AS min_value,
         MAX(value_num) AS max_value,
         MIN(effective_time) AS min_date,
         MAX(effective_time) AS max_date,
         MIN(date_value_key) AS min_date_value,
         MAX(date_value_key) AS max_date_value,
         MIN(date_value_code_key) AS min_date_value_code,
         MAX(date_value_code_key) AS max_date_value_code
  FROM joined
  GROUP BY patient_id, code
), pat AS (
%s
)
SELECT pat.patient_id,
       pat.birth_date,
       pat.gender,
       agg.code,
       agg.num_obs,
       agg.min_value,
       agg.max_value,
       agg.min_date,
       agg.max_date,
       agg.min_date_value,
       agg.max_date_value,
       agg.min_date_value_code,
       agg.max_date_value_code
FROM pat
JOIN agg ON agg.patient_id = pat.patient_id`,
		flatObs, flatEnc, q.PredicateSQL(), patients)
}

// encounterViewSQL composes the encounter summary query grouped by patient
// and whichever location/type columns are materialized.
func (q *PatientQuery) encounterViewSQL(baseResourceURL string, forceLocationTypeColumns bool) string {
	includeLocation := q.encounter.HasLocation() || forceLocationTypeColumns
	includeType := q.encounter.HasType() || forceLocationTypeColumns
	flatEnc := q.backend.FlattenEncountersSQL(
		baseResourceURL+"Encounter/", includeLocation, includeType)

	groupCols := []string{"patient_id"}
	if includeLocation {
		groupCols = append(groupCols, "location_id", "location_display")
	}
	if includeType {
		groupCols = append(groupCols, "type_system", "type_code")
	}
	cols := strings.Join(groupCols, ", ")

	return fmt.Sprintf(`WITH flat_enc AS (
%s
)
SELECT %s,
       COUNT(*) AS num_encounters,
       MIN(period_start) AS first_date,
       MAX(period_end) AS last_date
FROM flat_enc
WHERE %s
GROUP BY %s`,
		flatEnc, cols, q.encounter.SQL(), cols)
}
