package duckdb

import (
	"strings"
	"testing"
)

func testBackend() *Backend {
	return &Backend{fileRoot: "/data/warehouse"}
}

func TestSource(t *testing.T) {
	b := testBackend()
	want := "read_parquet('/data/warehouse/Observation/*.parquet')"
	if got := b.source("Observation"); got != want {
		t.Errorf("source() = %q, want %q", got, want)
	}
}

func TestFlattenObservationsSQL(t *testing.T) {
	got := testBackend().FlattenObservationsSQL("http://loinc.org")

	for _, part := range []string{
		`o.subject."patientId" AS patient_id`,
		`o.context."encounterId" AS encounter_id`,
		`CROSS JOIN LATERAL (SELECT unnest(o.code.coding) AS coding) AS c`,
		`LEFT JOIN LATERAL (SELECT unnest(o."value"."codeableConcept".coding) AS coding) AS vc ON true`,
		`c.coding.system = 'http://loinc.org'`,
		`vc.coding IS NULL OR vc.coding.system = 'http://loinc.org'`,
		`o.effective."dateTime" || '_SeP_' || CAST(o."value".quantity."value" AS VARCHAR) AS date_value_key`,
		`o.effective."dateTime" || '_SeP_' || CAST(vc.coding.code AS VARCHAR) AS date_value_code_key`,
		`read_parquet('/data/warehouse/Observation/*.parquet')`,
	} {
		if !strings.Contains(got, part) {
			t.Errorf("flatten SQL missing %q:\n%s", part, got)
		}
	}
}

func TestFlattenObservationsSQL_EmptySystem(t *testing.T) {
	got := testBackend().FlattenObservationsSQL("")
	if !strings.Contains(got, "c.coding.system IS NULL") {
		t.Errorf("empty code system should match codings without a system:\n%s", got)
	}
}

func TestFlattenEncountersSQL(t *testing.T) {
	b := testBackend()

	plain := b.FlattenEncountersSQL("https://fhir.example.com/Encounter/", false, false)
	if !strings.Contains(plain, `replace(e.id, 'https://fhir.example.com/Encounter/', '') AS encounter_id`) {
		t.Errorf("missing base URL strip:\n%s", plain)
	}
	if strings.Contains(plain, "location") || strings.Contains(plain, "type_code") {
		t.Errorf("unrequested columns materialized:\n%s", plain)
	}

	full := b.FlattenEncountersSQL("https://fhir.example.com/Encounter/", true, true)
	for _, part := range []string{
		`LEFT JOIN LATERAL (SELECT unnest(e.location) AS loc) AS l ON true`,
		`l.loc.location."locationId" AS location_id`,
		`LEFT JOIN LATERAL (SELECT unnest(e."type") AS typ) AS t ON true`,
		`t.typ.coding.code AS type_code`,
	} {
		if !strings.Contains(full, part) {
			t.Errorf("flatten SQL missing %q:\n%s", part, full)
		}
	}
}

func TestFlattenPatientsSQL(t *testing.T) {
	got := testBackend().FlattenPatientsSQL("https://fhir.example.com/Patient/")
	for _, part := range []string{
		`replace(p.id, 'https://fhir.example.com/Patient/', '') AS patient_id`,
		`p."birthDate" AS birth_date`,
		`read_parquet('/data/warehouse/Patient/*.parquet')`,
	} {
		if !strings.Contains(got, part) {
			t.Errorf("flatten SQL missing %q:\n%s", part, got)
		}
	}
}

func TestQuoteLiteral(t *testing.T) {
	if got := quoteLiteral("it's"); got != "'it''s'" {
		t.Errorf("quoteLiteral = %q", got)
	}
}
