// Package server exposes the patient views over HTTP: a caller posts a
// constraint set and receives the materialized summary rows.
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ehr/patient-analytics/internal/analytics"
	"github.com/ehr/patient-analytics/internal/config"
	"github.com/ehr/patient-analytics/internal/platform/db"
	"github.com/ehr/patient-analytics/internal/platform/middleware"
)

// Server wires the analytics backend behind the view API. The backend
// session is shared across requests; each request configures a fresh
// PatientQuery against it, so constraint state never leaks between callers.
type Server struct {
	echo    *echo.Echo
	backend analytics.Backend
	cfg     *config.Config
	logger  zerolog.Logger
}

// New builds the server and its routes.
func New(backend analytics.Backend, cfg *config.Config, logger zerolog.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{echo: e, backend: backend, cfg: cfg, logger: logger}

	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.Recovery(logger))

	e.GET("/healthz", s.handleHealth)

	api := e.Group("/api")
	if cfg.AuthJWTSecret != "" {
		api.Use(RequireBearerToken(cfg.AuthJWTSecret))
	}
	api.POST("/views/observations", s.handleObservationView)
	api.POST("/views/encounters", s.handleEncounterView)

	return s
}

// Start blocks serving HTTP on the configured port.
func (s *Server) Start() error {
	return s.echo.Start(":" + s.cfg.Port)
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// Echo exposes the router for tests.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// viewRequest is the body of both view endpoints. The embedded QuerySpec
// carries the constraint set; BaseURL overrides the configured base
// resource URL; ForceLocationTypeColumns applies to the encounter view only.
type viewRequest struct {
	analytics.QuerySpec
	BaseURL                  string `json:"baseUrl,omitempty"`
	ForceLocationTypeColumns bool   `json:"forceLocationTypeColumns,omitempty"`
}

func (s *Server) newQuery(req *viewRequest) (*analytics.PatientQuery, string, error) {
	q := analytics.NewPatientQuery(s.backend, s.cfg.CodeSystem).WithLogger(s.logger)
	if err := req.QuerySpec.Configure(q); err != nil {
		return nil, "", err
	}
	baseURL := req.BaseURL
	if baseURL == "" {
		baseURL = s.cfg.BaseResourceURL
	}
	return q, baseURL, nil
}

func (s *Server) handleObservationView(c echo.Context) error {
	var req viewRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	q, baseURL, err := s.newQuery(&req)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	rows, err := q.PatientObservationView(c.Request().Context(), baseURL)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, fmt.Sprintf("observation view failed: %v", err))
	}
	return c.JSON(http.StatusOK, rows)
}

func (s *Server) handleEncounterView(c echo.Context) error {
	var req viewRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	q, baseURL, err := s.newQuery(&req)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	rows, err := q.PatientEncounterView(c.Request().Context(), baseURL, req.ForceLocationTypeColumns)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, fmt.Sprintf("encounter view failed: %v", err))
	}
	return c.JSON(http.StatusOK, rows)
}

func (s *Server) handleHealth(c echo.Context) error {
	resp := map[string]any{"status": "healthy", "engine": s.cfg.Engine}

	if err := s.backend.Ping(c.Request().Context()); err != nil {
		resp["status"] = "unhealthy"
		resp["error"] = err.Error()
		return c.JSON(http.StatusServiceUnavailable, resp)
	}
	if st, ok := s.backend.(interface{ Stats() *db.PoolStats }); ok {
		resp["pool"] = st.Stats()
	}
	return c.JSON(http.StatusOK, resp)
}
