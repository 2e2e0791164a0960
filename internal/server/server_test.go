package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"github.com/ehr/patient-analytics/internal/analytics"
	"github.com/ehr/patient-analytics/internal/config"
)

// fakeBackend serves canned rows so handlers can be exercised without an
// engine session.
type fakeBackend struct {
	rows    []map[string]any
	pingErr error
	queries []string
}

func (f *fakeBackend) FlattenObservationsSQL(codeSystem string) string { return "SELECT obs" }
func (f *fakeBackend) FlattenEncountersSQL(baseEncounterURL string, includeLocation, includeType bool) string {
	return "SELECT enc"
}
func (f *fakeBackend) FlattenPatientsSQL(basePatientURL string) string { return "SELECT pat" }

func (f *fakeBackend) Query(ctx context.Context, query string) ([]map[string]any, error) {
	f.queries = append(f.queries, query)
	return f.rows, nil
}

func (f *fakeBackend) Ping(ctx context.Context) error { return f.pingErr }
func (f *fakeBackend) Close() error                   { return nil }

func newTestServer(backend analytics.Backend, cfg *config.Config) *Server {
	if cfg == nil {
		cfg = &config.Config{Port: "0", Engine: "duckdb", BaseResourceURL: "https://fhir.example.com/"}
	}
	return New(backend, cfg, zerolog.Nop())
}

func postJSON(t *testing.T, s *Server, path, body string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set(echoHeaderContentType, "application/json")
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)
	return rec
}

const echoHeaderContentType = "Content-Type"

func TestHealth(t *testing.T) {
	s := newTestServer(&fakeBackend{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp["status"] != "healthy" || resp["engine"] != "duckdb" {
		t.Errorf("unexpected health response: %v", resp)
	}
}

func TestHealth_BackendDown(t *testing.T) {
	s := newTestServer(&fakeBackend{pingErr: context.DeadlineExceeded}, nil)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

func TestObservationView(t *testing.T) {
	fb := &fakeBackend{rows: []map[string]any{
		{
			"patient_id": "pat-1",
			"birth_date": "1980-05-02",
			"gender":     "female",
			"code":       "8867-4",
			"num_obs":    int64(2),
		},
	}}
	s := newTestServer(fb, nil)

	body := `{"rangeConstraints": [{"code": "8867-4", "minValue": 60}]}`
	rec := postJSON(t, s, "/api/views/observations", body, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var rows []analytics.PatientObservationSummary
	if err := json.Unmarshal(rec.Body.Bytes(), &rows); err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0].PatientID != "pat-1" || rows[0].NumObs != 2 {
		t.Errorf("unexpected rows: %+v", rows)
	}
	if len(fb.queries) != 1 || !strings.Contains(fb.queries[0], "code = '8867-4'") {
		t.Errorf("backend query missing constraint: %v", fb.queries)
	}
}

func TestObservationView_DuplicateConstraintIsBadRequest(t *testing.T) {
	s := newTestServer(&fakeBackend{}, nil)

	body := `{
		"rangeConstraints": [{"code": "8867-4"}],
		"codedValueConstraints": [{"code": "8867-4", "values": ["x"]}]
	}`
	rec := postJSON(t, s, "/api/views/observations", body, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

// Constraint state must not leak between requests sharing the backend.
func TestObservationView_FreshQueryPerRequest(t *testing.T) {
	fb := &fakeBackend{}
	s := newTestServer(fb, nil)

	body := `{"rangeConstraints": [{"code": "8867-4"}]}`
	if rec := postJSON(t, s, "/api/views/observations", body, nil); rec.Code != http.StatusOK {
		t.Fatalf("first request status = %d", rec.Code)
	}
	if rec := postJSON(t, s, "/api/views/observations", body, nil); rec.Code != http.StatusOK {
		t.Fatalf("second request status = %d", rec.Code)
	}
	if len(fb.queries) != 2 {
		t.Fatalf("got %d queries, want 2", len(fb.queries))
	}
	if strings.Count(fb.queries[1], "code = '8867-4'") != 1 {
		t.Errorf("constraint state leaked into second request:\n%s", fb.queries[1])
	}
}

func TestEncounterView(t *testing.T) {
	fb := &fakeBackend{rows: []map[string]any{
		{
			"patient_id":     "pat-1",
			"num_encounters": int64(3),
			"first_date":     "2020-01-01",
			"last_date":      "2020-06-01",
		},
	}}
	s := newTestServer(fb, nil)

	body := `{"encounter": {"locationIds": ["loc-1"]}}`
	rec := postJSON(t, s, "/api/views/encounters", body, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(fb.queries[0], "location_id IN ('loc-1')") {
		t.Errorf("backend query missing encounter constraint:\n%s", fb.queries[0])
	}
}

func TestRequireBearerToken(t *testing.T) {
	secret := "test-secret"
	cfg := &config.Config{Port: "0", Engine: "duckdb", AuthJWTSecret: secret}
	s := newTestServer(&fakeBackend{}, cfg)

	body := `{}`

	rec := postJSON(t, s, "/api/views/observations", body, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("no token: status = %d, want 401", rec.Code)
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer not-a-token")
	rec = postJSON(t, s, "/api/views/observations", body, header)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("garbage token: status = %d, want 401", rec.Code)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "analyst@example.com",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatal(err)
	}
	header.Set("Authorization", "Bearer "+signed)
	rec = postJSON(t, s, "/api/views/observations", body, header)
	if rec.Code != http.StatusOK {
		t.Fatalf("valid token: status = %d, body %s", rec.Code, rec.Body.String())
	}

	// Health stays open without a token.
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	plain := httptest.NewRecorder()
	s.Echo().ServeHTTP(plain, req)
	if plain.Code != http.StatusOK {
		t.Fatalf("health with auth enabled: status = %d", plain.Code)
	}
}
