package analytics

import (
	"fmt"
	"strconv"

	"github.com/ehr/patient-analytics/internal/analytics/sortkey"
)

// PatientObservationSummary is one row of the patient*observation view:
// aggregates over every matching observation for one patient and code.
type PatientObservationSummary struct {
	PatientID string `json:"patientId"`
	BirthDate string `json:"birthDate"`
	Gender    string `json:"gender"`
	Code      string `json:"code"`

	// NumObs counts the matching observations; the extrema are nil when no
	// matching observation carries a numeric value.
	NumObs   int64    `json:"numObs"`
	MinValue *float64 `json:"minValue"`
	MaxValue *float64 `json:"maxValue"`
	MinDate  string   `json:"minDate"`
	MaxDate  string   `json:"maxDate"`

	// FirstValue/LastValue are the numeric values observed at MinDate and
	// MaxDate; FirstValueCode/LastValueCode the coded values. Recovered from
	// the sortable keys, so nil when no row carried the corresponding value.
	FirstValue     *float64 `json:"firstValue"`
	LastValue      *float64 `json:"lastValue"`
	FirstValueCode *string  `json:"firstValueCode"`
	LastValueCode  *string  `json:"lastValueCode"`
}

// PatientEncounterSummary is one row of the patient*encounter view. The
// location and type fields are present only when the corresponding columns
// were materialized (constrained or forced).
type PatientEncounterSummary struct {
	PatientID       string  `json:"patientId"`
	LocationID      *string `json:"locationId,omitempty"`
	LocationDisplay *string `json:"locationDisplay,omitempty"`
	TypeSystem      *string `json:"typeSystem,omitempty"`
	TypeCode        *string `json:"typeCode,omitempty"`

	NumEncounters int64  `json:"numEncounters"`
	FirstDate     string `json:"firstDate"`
	LastDate      string `json:"lastDate"`
}

// observationSummaryFromRow assembles a summary from an aggregated result
// row and splits the boundary values back out of the sortable keys.
func observationSummaryFromRow(row map[string]any) (PatientObservationSummary, error) {
	s := PatientObservationSummary{
		PatientID: stringValue(row["patient_id"]),
		BirthDate: stringValue(row["birth_date"]),
		Gender:    stringValue(row["gender"]),
		Code:      stringValue(row["code"]),
		NumObs:    intValue(row["num_obs"]),
		MinValue:  floatValue(row["min_value"]),
		MaxValue:  floatValue(row["max_value"]),
		MinDate:   stringValue(row["min_date"]),
		MaxDate:   stringValue(row["max_date"]),
	}

	first, err := keyNumericValue(row["min_date_value"])
	if err != nil {
		return s, fmt.Errorf("first value for patient %q code %q: %w", s.PatientID, s.Code, err)
	}
	s.FirstValue = first

	last, err := keyNumericValue(row["max_date_value"])
	if err != nil {
		return s, fmt.Errorf("last value for patient %q code %q: %w", s.PatientID, s.Code, err)
	}
	s.LastValue = last

	firstCode, err := keyCodedValue(row["min_date_value_code"])
	if err != nil {
		return s, fmt.Errorf("first coded value for patient %q code %q: %w", s.PatientID, s.Code, err)
	}
	s.FirstValueCode = firstCode

	lastCode, err := keyCodedValue(row["max_date_value_code"])
	if err != nil {
		return s, fmt.Errorf("last coded value for patient %q code %q: %w", s.PatientID, s.Code, err)
	}
	s.LastValueCode = lastCode

	return s, nil
}

func encounterSummaryFromRow(row map[string]any) PatientEncounterSummary {
	s := PatientEncounterSummary{
		PatientID:     stringValue(row["patient_id"]),
		NumEncounters: intValue(row["num_encounters"]),
		FirstDate:     stringValue(row["first_date"]),
		LastDate:      stringValue(row["last_date"]),
	}
	if v, ok := row["location_id"]; ok {
		s.LocationID = stringPtr(v)
	}
	if v, ok := row["location_display"]; ok {
		s.LocationDisplay = stringPtr(v)
	}
	if v, ok := row["type_system"]; ok {
		s.TypeSystem = stringPtr(v)
	}
	if v, ok := row["type_code"]; ok {
		s.TypeCode = stringPtr(v)
	}
	return s
}

// keyNumericValue decodes the value half of a sortable key as a float.
func keyNumericValue(v any) (*float64, error) {
	key := stringValue(v)
	if key == "" {
		return nil, nil
	}
	_, raw, err := sortkey.Decode(key)
	if err != nil {
		return nil, err
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, fmt.Errorf("non-numeric value %q in sortable key: %w", raw, err)
	}
	return &f, nil
}

// keyCodedValue decodes the value half of a sortable key as a coded token.
func keyCodedValue(v any) (*string, error) {
	key := stringValue(v)
	if key == "" {
		return nil, nil
	}
	_, raw, err := sortkey.Decode(key)
	if err != nil {
		return nil, err
	}
	return &raw, nil
}
