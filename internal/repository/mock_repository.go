package repository

import (
	"context"

	"github.com/PoyoPoak/MS-PM-POC/internal/models"
)

// MockTelemetryRepository is a mock implementation of TelemetryRepository for testing
type MockTelemetryRepository struct {
	ExistingKeysFunc func(ctx context.Context, keys []models.TelemetryKey) (map[models.TelemetryKey]struct{}, error)
	InsertBatchFunc  func(ctx context.Context, records []*models.TelemetryRecord) (int, error)
	CopyRecordsFunc  func(ctx context.Context, records []*models.TelemetryRecord) error
	CountRecordsFunc func(ctx context.Context) (int64, error)
}

// NewMockTelemetryRepository creates a new mock repository with default implementations
func NewMockTelemetryRepository() *MockTelemetryRepository {
	return &MockTelemetryRepository{
		ExistingKeysFunc: func(_ context.Context, _ []models.TelemetryKey) (map[models.TelemetryKey]struct{}, error) {
			return map[models.TelemetryKey]struct{}{}, nil
		},
		InsertBatchFunc: func(_ context.Context, records []*models.TelemetryRecord) (int, error) {
			return len(records), nil
		},
		CopyRecordsFunc: func(_ context.Context, _ []*models.TelemetryRecord) error {
			return nil
		},
		CountRecordsFunc: func(_ context.Context) (int64, error) {
			return 0, nil
		},
	}
}

// ExistingKeys implements TelemetryRepository.ExistingKeys
func (m *MockTelemetryRepository) ExistingKeys(ctx context.Context, keys []models.TelemetryKey) (map[models.TelemetryKey]struct{}, error) {
	return m.ExistingKeysFunc(ctx, keys)
}

// InsertBatch implements TelemetryRepository.InsertBatch
func (m *MockTelemetryRepository) InsertBatch(ctx context.Context, records []*models.TelemetryRecord) (int, error) {
	return m.InsertBatchFunc(ctx, records)
}

// CopyRecords implements TelemetryRepository.CopyRecords
func (m *MockTelemetryRepository) CopyRecords(ctx context.Context, records []*models.TelemetryRecord) error {
	return m.CopyRecordsFunc(ctx, records)
}

// CountRecords implements TelemetryRepository.CountRecords
func (m *MockTelemetryRepository) CountRecords(ctx context.Context) (int64, error) {
	return m.CountRecordsFunc(ctx)
}
