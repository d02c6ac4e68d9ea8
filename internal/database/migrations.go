package database

import (
	"context"
	"fmt"
)

// migrations is the ordered schema for the telemetry pipeline. The unique
// index on (patient_id, timestamp) is the authoritative deduplication
// backstop: the ingest path relies on the constraint, not on its earlier
// existence check, to reject rows inserted by a concurrent call.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id UUID PRIMARY KEY,
		email VARCHAR(255) NOT NULL UNIQUE,
		password_hash VARCHAR(255) NOT NULL,
		is_superuser BOOLEAN NOT NULL DEFAULT FALSE,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`,

	`CREATE TABLE IF NOT EXISTS pacemaker_telemetry (
		id UUID PRIMARY KEY,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		patient_id BIGINT NOT NULL,
		timestamp TIMESTAMPTZ NOT NULL,
		lead_impedance_ohms DOUBLE PRECISION NOT NULL,
		capture_threshold_v DOUBLE PRECISION NOT NULL,
		r_wave_sensing_mv DOUBLE PRECISION NOT NULL,
		battery_voltage_v DOUBLE PRECISION NOT NULL,
		target_fail_next_7d SMALLINT,
		lead_impedance_ohms_rolling_mean_3d DOUBLE PRECISION,
		lead_impedance_ohms_rolling_mean_7d DOUBLE PRECISION,
		capture_threshold_v_rolling_mean_3d DOUBLE PRECISION,
		capture_threshold_v_rolling_mean_7d DOUBLE PRECISION,
		lead_impedance_ohms_delta_per_day_3d DOUBLE PRECISION,
		lead_impedance_ohms_delta_per_day_7d DOUBLE PRECISION,
		capture_threshold_v_delta_per_day_3d DOUBLE PRECISION,
		capture_threshold_v_delta_per_day_7d DOUBLE PRECISION,
		CONSTRAINT uq_pacemaker_telemetry_patient_timestamp UNIQUE (patient_id, timestamp)
	);`,

	`CREATE INDEX IF NOT EXISTS idx_pacemaker_telemetry_patient
		ON pacemaker_telemetry (patient_id);`,
	`CREATE INDEX IF NOT EXISTS idx_pacemaker_telemetry_timestamp
		ON pacemaker_telemetry (timestamp);`,
}

// Migrate applies the schema. Statements are idempotent so Migrate is safe to
// run on every startup.
func (db *DB) Migrate(ctx context.Context) error {
	for _, migration := range migrations {
		if _, err := db.ExecContext(ctx, migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}
