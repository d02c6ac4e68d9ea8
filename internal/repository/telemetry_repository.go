// Package repository provides data access interfaces and implementations.
package repository

import (
	"context"

	"github.com/PoyoPoak/MS-PM-POC/internal/models"
)

// TelemetryRepository defines the interface for telemetry data access.
// Storage is append-only: records are never mutated or deleted here, and the
// (patient_id, timestamp) uniqueness constraint is the sole dedup key.
type TelemetryRepository interface {
	// ExistingKeys returns the subset of the given keys already stored,
	// resolved in a single batched query.
	ExistingKeys(ctx context.Context, keys []models.TelemetryKey) (map[models.TelemetryKey]struct{}, error)

	// InsertBatch inserts records in one statement, skipping any row whose
	// key already exists (a concurrent call may have won the race since the
	// existence check). Returns the number of rows actually inserted.
	InsertBatch(ctx context.Context, records []*models.TelemetryRecord) (int, error)

	// CopyRecords bulk-transfers records through the storage block-load
	// path. Unlike InsertBatch it does not tolerate duplicate keys; it is
	// the seed path for historical data, one call per chunk.
	CopyRecords(ctx context.Context, records []*models.TelemetryRecord) error

	// CountRecords returns the number of stored telemetry records.
	CountRecords(ctx context.Context) (int64, error)
}
