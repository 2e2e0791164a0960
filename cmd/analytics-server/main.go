package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ehr/patient-analytics/internal/analytics"
	"github.com/ehr/patient-analytics/internal/analytics/engines"
	"github.com/ehr/patient-analytics/internal/config"
	"github.com/ehr/patient-analytics/internal/server"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "analytics-server",
		Short: "Patient analytics views over FHIR data warehouses",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(obsViewCmd())
	rootCmd.AddCommand(encViewCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger() zerolog.Logger {
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the analytics view API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func runServer() error {
	logger := newLogger()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx := context.Background()
	backend, err := engines.OpenBackend(ctx, engines.Kind(cfg.Engine), cfg.DataSource, engines.Options{
		CodeSystem: cfg.CodeSystem,
		MaxConns:   cfg.DBMaxConns,
		MinConns:   cfg.DBMinConns,
		Logger:     logger,
	})
	if err != nil {
		return err
	}
	defer backend.Close()

	srv := server.New(backend, cfg, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()
	logger.Info().
		Str("port", cfg.Port).
		Str("engine", cfg.Engine).
		Str("data_source", cfg.DataSource).
		Msg("analytics server started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// loadQuerySpec reads a QuerySpec JSON document from path, or returns an
// empty spec when no path was given.
func loadQuerySpec(path string) (analytics.QuerySpec, error) {
	var spec analytics.QuerySpec
	if path == "" {
		return spec, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return spec, fmt.Errorf("read constraints file: %w", err)
	}
	if err := json.Unmarshal(data, &spec); err != nil {
		return spec, fmt.Errorf("parse constraints file: %w", err)
	}
	return spec, nil
}

// newConfiguredQuery loads configuration, opens the engine, and applies the
// constraints file. The caller must Close the returned query.
func newConfiguredQuery(ctx context.Context, constraintsPath string) (*analytics.PatientQuery, *config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	spec, err := loadQuerySpec(constraintsPath)
	if err != nil {
		return nil, nil, err
	}
	q, err := engines.NewPatientQuery(ctx, engines.Kind(cfg.Engine), cfg.DataSource, engines.Options{
		CodeSystem: cfg.CodeSystem,
		MaxConns:   cfg.DBMaxConns,
		MinConns:   cfg.DBMinConns,
		Logger:     newLogger(),
	})
	if err != nil {
		return nil, nil, err
	}
	if err := spec.Configure(q); err != nil {
		q.Close()
		return nil, nil, err
	}
	return q, cfg, nil
}

func obsViewCmd() *cobra.Command {
	var constraintsPath, baseURL string
	cmd := &cobra.Command{
		Use:   "obs-view",
		Short: "Print the patient*observation summary view as CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			q, cfg, err := newConfiguredQuery(ctx, constraintsPath)
			if err != nil {
				return err
			}
			defer q.Close()

			if baseURL == "" {
				baseURL = cfg.BaseResourceURL
			}
			rows, err := q.PatientObservationView(ctx, baseURL)
			if err != nil {
				return err
			}
			return writeObservationCSV(os.Stdout, rows)
		},
	}
	cmd.Flags().StringVar(&constraintsPath, "constraints", "", "path to a QuerySpec JSON file")
	cmd.Flags().StringVar(&baseURL, "base-url", "", "base resource URL to strip from identifiers")
	return cmd
}

func encViewCmd() *cobra.Command {
	var constraintsPath, baseURL string
	var force bool
	cmd := &cobra.Command{
		Use:   "enc-view",
		Short: "Print the patient*encounter summary view as CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			q, cfg, err := newConfiguredQuery(ctx, constraintsPath)
			if err != nil {
				return err
			}
			defer q.Close()

			if baseURL == "" {
				baseURL = cfg.BaseResourceURL
			}
			rows, err := q.PatientEncounterView(ctx, baseURL, force)
			if err != nil {
				return err
			}
			return writeEncounterCSV(os.Stdout, rows)
		},
	}
	cmd.Flags().StringVar(&constraintsPath, "constraints", "", "path to a QuerySpec JSON file")
	cmd.Flags().StringVar(&baseURL, "base-url", "", "base resource URL to strip from identifiers")
	cmd.Flags().BoolVar(&force, "force-location-type-columns", false, "materialize location/type columns even without constraints")
	return cmd
}

func writeObservationCSV(out *os.File, rows []analytics.PatientObservationSummary) error {
	w := csv.NewWriter(out)
	header := []string{
		"patientId", "birthDate", "gender", "code", "numObs",
		"minValue", "maxValue", "minDate", "maxDate",
		"firstValue", "lastValue", "firstValueCode", "lastValueCode",
	}
	if err := w.Write(header); err != nil {
		return err
	}
	for _, r := range rows {
		record := []string{
			r.PatientID, r.BirthDate, r.Gender, r.Code,
			strconv.FormatInt(r.NumObs, 10),
			floatField(r.MinValue), floatField(r.MaxValue),
			r.MinDate, r.MaxDate,
			floatField(r.FirstValue), floatField(r.LastValue),
			stringField(r.FirstValueCode), stringField(r.LastValueCode),
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func writeEncounterCSV(out *os.File, rows []analytics.PatientEncounterSummary) error {
	w := csv.NewWriter(out)
	header := []string{
		"patientId", "locationId", "locationDisplay", "typeSystem", "typeCode",
		"numEncounters", "firstDate", "lastDate",
	}
	if err := w.Write(header); err != nil {
		return err
	}
	for _, r := range rows {
		record := []string{
			r.PatientID,
			stringField(r.LocationID), stringField(r.LocationDisplay),
			stringField(r.TypeSystem), stringField(r.TypeCode),
			strconv.FormatInt(r.NumEncounters, 10),
			r.FirstDate, r.LastDate,
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func floatField(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func stringField(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
