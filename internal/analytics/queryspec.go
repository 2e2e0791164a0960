package analytics

// QuerySpec is a serializable description of a constraint set, used by the
// HTTP API and the one-shot CLI commands to configure a PatientQuery without
// calling the builder methods directly.
type QuerySpec struct {
	RangeConstraints      []RangeConstraintSpec      `json:"rangeConstraints,omitempty"`
	CodedValueConstraints []CodedValueConstraintSpec `json:"codedValueConstraints,omitempty"`

	IncludeAllOtherCodes bool   `json:"includeAllOtherCodes,omitempty"`
	AllOtherCodesMinTime string `json:"allOtherCodesMinTime,omitempty"`
	AllOtherCodesMaxTime string `json:"allOtherCodesMaxTime,omitempty"`

	Encounter *EncounterConstraintSpec `json:"encounter,omitempty"`
}

// RangeConstraintSpec mirrors IncludeObservationsInValueRange.
type RangeConstraintSpec struct {
	Code     string   `json:"code"`
	MinValue *float64 `json:"minValue,omitempty"`
	MaxValue *float64 `json:"maxValue,omitempty"`
	MinTime  string   `json:"minTime,omitempty"`
	MaxTime  string   `json:"maxTime,omitempty"`
}

// CodedValueConstraintSpec mirrors IncludeObservationsWithValues.
type CodedValueConstraintSpec struct {
	Code    string   `json:"code"`
	Values  []string `json:"values"`
	MinTime string   `json:"minTime,omitempty"`
	MaxTime string   `json:"maxTime,omitempty"`
}

// EncounterConstraintSpec mirrors SetEncounterConstraint.
type EncounterConstraintSpec struct {
	LocationIDs []string `json:"locationIds,omitempty"`
	TypeSystem  string   `json:"typeSystem,omitempty"`
	TypeCodes   []string `json:"typeCodes,omitempty"`
}

// Configure applies the spec to q. Constraint errors (duplicate codes,
// reserved separator tokens) surface unchanged.
func (s QuerySpec) Configure(q *PatientQuery) error {
	for _, rc := range s.RangeConstraints {
		window := TimeWindow{Min: rc.MinTime, Max: rc.MaxTime}
		if _, err := q.IncludeObservationsInValueRange(rc.Code, rc.MinValue, rc.MaxValue, window); err != nil {
			return err
		}
	}
	for _, cc := range s.CodedValueConstraints {
		window := TimeWindow{Min: cc.MinTime, Max: cc.MaxTime}
		if _, err := q.IncludeObservationsWithValues(cc.Code, cc.Values, window); err != nil {
			return err
		}
	}
	if s.IncludeAllOtherCodes || s.AllOtherCodesMinTime != "" || s.AllOtherCodesMaxTime != "" {
		q.IncludeAllOtherCodes(s.IncludeAllOtherCodes, TimeWindow{
			Min: s.AllOtherCodesMinTime,
			Max: s.AllOtherCodesMaxTime,
		})
	}
	if s.Encounter != nil {
		q.SetEncounterConstraint(EncounterConstraint{
			LocationIDs: s.Encounter.LocationIDs,
			TypeSystem:  s.Encounter.TypeSystem,
			TypeCodes:   s.Encounter.TypeCodes,
		})
	}
	return nil
}
