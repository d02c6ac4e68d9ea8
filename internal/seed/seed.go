// Package seed loads historical pacemaker telemetry from a CSV file into
// storage at startup. The load is off by default and must be enabled
// explicitly; it is additive and safe to re-run against a populated store.
package seed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/PoyoPoak/MS-PM-POC/internal/config"
	"github.com/PoyoPoak/MS-PM-POC/internal/csvfile"
	"github.com/PoyoPoak/MS-PM-POC/internal/models"
	"github.com/PoyoPoak/MS-PM-POC/internal/repository"
)

// Result summarizes one seed run.
type Result struct {
	Inserted int
	Skipped  int
}

// Loader streams a telemetry CSV into storage in fixed-size chunks through
// the repository's block-load path, committing chunk by chunk so partial
// progress survives an interrupted run.
type Loader struct {
	repo repository.TelemetryRepository
	cfg  config.SeedConfig
}

func NewLoader(repo repository.TelemetryRepository, cfg config.SeedConfig) *Loader {
	return &Loader{repo: repo, cfg: cfg}
}

// Run performs the seed. It no-ops without error when seeding is disabled,
// when the telemetry table has not been provisioned yet, or when the CSV
// file does not exist. A malformed row is skipped and counted; a storage
// failure aborts the run, leaving already committed chunks in place.
func (l *Loader) Run(ctx context.Context) (*Result, error) {
	if !l.cfg.Enabled {
		log.Println("Skipping pacemaker telemetry seed because SEED_PACEMAKER_DATA is not enabled")
		return &Result{}, nil
	}

	if _, err := l.repo.CountRecords(ctx); err != nil {
		if repository.IsUndefinedTable(err) {
			log.Println("Skipping pacemaker telemetry seed because the telemetry table is not available yet")
			return &Result{}, nil
		}
		return nil, fmt.Errorf("failed to probe telemetry store: %w", err)
	}

	file, err := os.Open(l.cfg.CSVPath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Printf("Skipping pacemaker telemetry seed because CSV file was not found at %s", l.cfg.CSVPath)
			return &Result{}, nil
		}
		return nil, fmt.Errorf("failed to open seed CSV: %w", err)
	}
	defer file.Close()

	log.Printf("Seeding pacemaker telemetry data from %s", l.cfg.CSVPath)

	reader, err := csvfile.NewReader(file)
	if errors.Is(err, csvfile.ErrEmptyFile) {
		log.Printf("Skipping pacemaker telemetry seed because CSV file at %s is empty", l.cfg.CSVPath)
		return &Result{}, nil
	}
	if err != nil {
		return nil, err
	}

	result := &Result{}
	chunk := make([]*models.TelemetryRecord, 0, l.cfg.BatchSize)

	flush := func() error {
		if len(chunk) == 0 {
			return nil
		}
		if err := l.repo.CopyRecords(ctx, chunk); err != nil {
			return fmt.Errorf("failed to block-load telemetry chunk: %w", err)
		}
		result.Inserted += len(chunk)
		chunk = chunk[:0]
		return nil
	}

	for {
		rec, err := reader.Next()
		if err == io.EOF {
			break
		}

		var rowErr *csvfile.RowError
		if errors.As(err, &rowErr) {
			result.Skipped++
			log.Printf("Skipping pacemaker telemetry row %d due to parse/validation error: %v", rowErr.Line, rowErr.Err)
			continue
		}
		if err != nil {
			return nil, err
		}

		chunk = append(chunk, rec.TelemetryRecord())
		if len(chunk) >= l.cfg.BatchSize {
			if err := flush(); err != nil {
				return nil, err
			}
		}
	}

	if err := flush(); err != nil {
		return nil, err
	}

	log.Printf("Pacemaker telemetry seed completed. Inserted=%d, skipped=%d", result.Inserted, result.Skipped)
	return result, nil
}
