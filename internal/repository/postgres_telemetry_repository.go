package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/PoyoPoak/MS-PM-POC/internal/database"
	"github.com/PoyoPoak/MS-PM-POC/internal/models"
)

// telemetryColumns is the canonical column order used by both the multi-row
// insert and the COPY block-load path.
var telemetryColumns = []string{
	"id",
	"created_at",
	"patient_id",
	"timestamp",
	"lead_impedance_ohms",
	"capture_threshold_v",
	"r_wave_sensing_mv",
	"battery_voltage_v",
	"target_fail_next_7d",
	"lead_impedance_ohms_rolling_mean_3d",
	"lead_impedance_ohms_rolling_mean_7d",
	"capture_threshold_v_rolling_mean_3d",
	"capture_threshold_v_rolling_mean_7d",
	"lead_impedance_ohms_delta_per_day_3d",
	"lead_impedance_ohms_delta_per_day_7d",
	"capture_threshold_v_delta_per_day_3d",
	"capture_threshold_v_delta_per_day_7d",
}

// PostgresTelemetryRepository implements TelemetryRepository using PostgreSQL
type PostgresTelemetryRepository struct {
	db *database.DB
}

// NewPostgresTelemetryRepository creates a new PostgreSQL telemetry repository
func NewPostgresTelemetryRepository(db *database.DB) *PostgresTelemetryRepository {
	return &PostgresTelemetryRepository{db: db}
}

// ExistingKeys returns the subset of keys already present in storage,
// resolved in one query over the (patient_id, timestamp) tuple set.
func (r *PostgresTelemetryRepository) ExistingKeys(ctx context.Context, keys []models.TelemetryKey) (map[models.TelemetryKey]struct{}, error) {
	existing := make(map[models.TelemetryKey]struct{}, len(keys))
	if len(keys) == 0 {
		return existing, nil
	}

	var query strings.Builder
	query.WriteString("SELECT patient_id, timestamp FROM pacemaker_telemetry WHERE (patient_id, timestamp) IN (")

	args := make([]interface{}, 0, len(keys)*2)
	for i, key := range keys {
		if i > 0 {
			query.WriteString(", ")
		}
		fmt.Fprintf(&query, "($%d, $%d)", len(args)+1, len(args)+2)
		args = append(args, key.PatientID, time.Unix(key.Timestamp, 0).UTC())
	}
	query.WriteString(")")

	rows, err := r.db.QueryContext(ctx, query.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query existing telemetry keys: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var patientID int64
		var timestamp time.Time
		if err := rows.Scan(&patientID, &timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan telemetry key: %w", err)
		}
		existing[models.TelemetryKey{PatientID: patientID, Timestamp: timestamp.Unix()}] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating telemetry keys: %w", err)
	}

	return existing, nil
}

// InsertBatch inserts all records in one multi-row statement. Keys that
// already exist are skipped via ON CONFLICT DO NOTHING, so a uniqueness race
// lost to a concurrent call surfaces as a smaller inserted count rather than
// an error, and a failure leaves no partial insert visible.
func (r *PostgresTelemetryRepository) InsertBatch(ctx context.Context, records []*models.TelemetryRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	var query strings.Builder
	query.WriteString("INSERT INTO pacemaker_telemetry (")
	query.WriteString(strings.Join(telemetryColumns, ", "))
	query.WriteString(") VALUES ")

	args := make([]interface{}, 0, len(records)*len(telemetryColumns))
	for i, rec := range records {
		if i > 0 {
			query.WriteString(", ")
		}
		query.WriteString("(")
		values := recordValues(rec)
		for j := range values {
			if j > 0 {
				query.WriteString(", ")
			}
			fmt.Fprintf(&query, "$%d", len(args)+j+1)
		}
		query.WriteString(")")
		args = append(args, values...)
	}
	query.WriteString(" ON CONFLICT (patient_id, timestamp) DO NOTHING")

	result, err := r.db.ExecContext(ctx, query.String(), args...)
	if err != nil {
		return 0, fmt.Errorf("failed to insert telemetry batch: %w", err)
	}

	inserted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read inserted row count: %w", err)
	}

	return int(inserted), nil
}

// CopyRecords streams records into storage through the native pgx COPY
// protocol, one bulk transfer for the whole slice.
func (r *PostgresTelemetryRepository) CopyRecords(ctx context.Context, records []*models.TelemetryRecord) error {
	if len(records) == 0 {
		return nil
	}

	conn, err := r.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection for copy: %w", err)
	}
	defer conn.Close()

	err = conn.Raw(func(driverConn interface{}) error {
		stdlibConn, ok := driverConn.(*stdlib.Conn)
		if !ok {
			return fmt.Errorf("unexpected driver connection type %T", driverConn)
		}

		_, err := stdlibConn.Conn().CopyFrom(
			ctx,
			pgx.Identifier{"pacemaker_telemetry"},
			telemetryColumns,
			pgx.CopyFromSlice(len(records), func(i int) ([]interface{}, error) {
				return recordValues(records[i]), nil
			}),
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to copy telemetry records: %w", err)
	}

	return nil
}

// CountRecords returns the number of stored telemetry records
func (r *PostgresTelemetryRepository) CountRecords(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM pacemaker_telemetry").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count telemetry records: %w", err)
	}
	return count, nil
}

// recordValues flattens a record into telemetryColumns order.
func recordValues(rec *models.TelemetryRecord) []interface{} {
	return []interface{}{
		rec.ID,
		rec.CreatedAt,
		rec.PatientID,
		rec.Timestamp,
		rec.LeadImpedanceOhms,
		rec.CaptureThresholdV,
		rec.RWaveSensingMV,
		rec.BatteryVoltageV,
		rec.TargetFailNext7d,
		rec.LeadImpedanceOhmsRollingMean3d,
		rec.LeadImpedanceOhmsRollingMean7d,
		rec.CaptureThresholdVRollingMean3d,
		rec.CaptureThresholdVRollingMean7d,
		rec.LeadImpedanceOhmsDeltaPerDay3d,
		rec.LeadImpedanceOhmsDeltaPerDay7d,
		rec.CaptureThresholdVDeltaPerDay3d,
		rec.CaptureThresholdVDeltaPerDay7d,
	}
}

// IsUndefinedTable reports whether err is the Postgres undefined_table
// condition. The seed loader uses this to no-op instead of failing startup
// when the telemetry table has not been provisioned yet.
func IsUndefinedTable(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "42P01"
}
