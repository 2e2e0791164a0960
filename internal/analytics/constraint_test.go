package analytics

import "testing"

func TestTimeWindow_SQL(t *testing.T) {
	tests := []struct {
		name   string
		window TimeWindow
		want   string
	}{
		{"empty", TimeWindow{}, "TRUE"},
		{"min only", TimeWindow{Min: "2020-01-01"}, "effective_time >= '2020-01-01'"},
		{"max only", TimeWindow{Max: "2020-12-31"}, "effective_time <= '2020-12-31'"},
		{"both", TimeWindow{Min: "2020-01-01", Max: "2020-12-31"},
			"effective_time >= '2020-01-01' AND effective_time <= '2020-12-31'"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.window.SQL("effective_time"); got != tt.want {
				t.Errorf("SQL() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTimeWindow_IsZero(t *testing.T) {
	if !(TimeWindow{}).IsZero() {
		t.Error("zero window should report IsZero")
	}
	if (TimeWindow{Min: "2020-01-01"}).IsZero() {
		t.Error("bounded window should not report IsZero")
	}
}

func TestObservationConstraint_SQL_Range(t *testing.T) {
	c := &ObservationConstraint{
		Code:     "8867-4",
		MinValue: Float64(60),
		MaxValue: Float64(100),
		Window:   TimeWindow{Min: "2020-01-01"},
	}
	want := "(effective_time >= '2020-01-01' AND code = '8867-4' AND value_num >= 60 AND value_num <= 100)"
	if got := c.SQL(); got != want {
		t.Errorf("SQL() = %q, want %q", got, want)
	}
}

func TestObservationConstraint_SQL_NoBounds(t *testing.T) {
	c := &ObservationConstraint{Code: "8867-4"}
	want := "(TRUE AND code = '8867-4')"
	if got := c.SQL(); got != want {
		t.Errorf("SQL() = %q, want %q", got, want)
	}
}

func TestObservationConstraint_SQL_CodedValues(t *testing.T) {
	c := &ObservationConstraint{
		Code:        "72166-2",
		Values:      []string{"LA18976-3", "LA18977-1"},
		ValueSystem: "http://loinc.org",
	}
	want := "(TRUE AND code = '72166-2' AND value_code IN ('LA18976-3','LA18977-1') AND value_system = 'http://loinc.org')"
	if got := c.SQL(); got != want {
		t.Errorf("SQL() = %q, want %q", got, want)
	}
}

func TestObservationConstraint_SQL_CodedValuesNoSystem(t *testing.T) {
	c := &ObservationConstraint{Code: "72166-2", Values: []string{"yes"}}
	want := "(TRUE AND code = '72166-2' AND value_code IN ('yes') AND value_system IS NULL)"
	if got := c.SQL(); got != want {
		t.Errorf("SQL() = %q, want %q", got, want)
	}
}

// Coded values win over numeric bounds when both are somehow set.
func TestObservationConstraint_SQL_ValuesPrecedence(t *testing.T) {
	c := &ObservationConstraint{
		Code:     "72166-2",
		Values:   []string{"yes"},
		MinValue: Float64(1),
	}
	want := "(TRUE AND code = '72166-2' AND value_code IN ('yes') AND value_system IS NULL)"
	if got := c.SQL(); got != want {
		t.Errorf("SQL() = %q, want %q", got, want)
	}
}

func TestObservationConstraint_SQL_EscapesQuotes(t *testing.T) {
	c := &ObservationConstraint{Code: "o'code"}
	want := "(TRUE AND code = 'o''code')"
	if got := c.SQL(); got != want {
		t.Errorf("SQL() = %q, want %q", got, want)
	}
}

func TestEncounterConstraint_SQL(t *testing.T) {
	tests := []struct {
		name string
		c    EncounterConstraint
		want string
	}{
		{"empty", EncounterConstraint{}, "TRUE AND TRUE AND TRUE"},
		{
			"locations only",
			EncounterConstraint{LocationIDs: []string{"loc-1", "loc-2"}},
			"location_id IN ('loc-1','loc-2') AND TRUE AND TRUE",
		},
		{
			"type codes with system",
			EncounterConstraint{TypeSystem: "http://snomed.info/sct", TypeCodes: []string{"308335008"}},
			"TRUE AND type_code IN ('308335008') AND type_system = 'http://snomed.info/sct'",
		},
		{
			"all fields",
			EncounterConstraint{
				LocationIDs: []string{"loc-1"},
				TypeSystem:  "sys",
				TypeCodes:   []string{"a", "b"},
			},
			"location_id IN ('loc-1') AND type_code IN ('a','b') AND type_system = 'sys'",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.c.SQL(); got != tt.want {
				t.Errorf("SQL() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestEncounterConstraint_HasLocationHasType(t *testing.T) {
	var c EncounterConstraint
	if c.HasLocation() || c.HasType() {
		t.Error("zero constraint should have neither location nor type")
	}
	c.LocationIDs = []string{"loc-1"}
	if !c.HasLocation() {
		t.Error("constraint with locations should report HasLocation")
	}
	if !(EncounterConstraint{TypeSystem: "sys"}).HasType() {
		t.Error("constraint with a type system should report HasType")
	}
	if !(EncounterConstraint{TypeCodes: []string{"a"}}).HasType() {
		t.Error("constraint with type codes should report HasType")
	}
}

func TestQuoteLiteral(t *testing.T) {
	if got := quoteLiteral("a'b"); got != "'a''b'" {
		t.Errorf("quoteLiteral(a'b) = %q", got)
	}
	if got := quotedList([]string{"a", "b'c"}); got != "'a','b''c'" {
		t.Errorf("quotedList = %q", got)
	}
}
