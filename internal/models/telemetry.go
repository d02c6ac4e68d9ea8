// Package models contains data models for the pacemaker telemetry service.
package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Bounds for a single bulk ingest request. Daily simulation batches vary in
// size and are accepted as long as they stay within these limits.
const (
	MinIngestRows = 1
	MaxIngestRows = 2000
)

var (
	// ErrMissingField is returned when a required reading field is absent
	ErrMissingField = errors.New("missing required field")
	// ErrFieldOutOfRange is returned when a reading field fails a range check
	ErrFieldOutOfRange = errors.New("field out of range")
)

// TelemetryReading is the wire shape of one pacemaker observation, as
// received on the ingest endpoint or emitted by the replay client. Required
// fields are pointers so field presence can be validated rather than inferred
// from zero values. Optional fields carry no omitempty tag: an absent value
// serializes as an explicit JSON null.
type TelemetryReading struct {
	// Pacemaker identifier, non-negative
	PatientID *int64 `json:"patient_id"`

	// Observation time as Unix epoch seconds (UTC), non-negative
	Timestamp *int64 `json:"timestamp"`

	// Required continuous measurements
	LeadImpedanceOhms *float64 `json:"lead_impedance_ohms"`
	CaptureThresholdV *float64 `json:"capture_threshold_v"`
	RWaveSensingMV    *float64 `json:"r_wave_sensing_mv"`
	BatteryVoltageV   *float64 `json:"battery_voltage_v"`

	// Optional binary failure label, must be 0 or 1 when present
	TargetFailNext7d *int64 `json:"target_fail_next_7d"`

	// Optional precomputed trailing-window statistics
	LeadImpedanceOhmsRollingMean3d *float64 `json:"lead_impedance_ohms_rolling_mean_3d"`
	LeadImpedanceOhmsRollingMean7d *float64 `json:"lead_impedance_ohms_rolling_mean_7d"`
	CaptureThresholdVRollingMean3d *float64 `json:"capture_threshold_v_rolling_mean_3d"`
	CaptureThresholdVRollingMean7d *float64 `json:"capture_threshold_v_rolling_mean_7d"`
	LeadImpedanceOhmsDeltaPerDay3d *float64 `json:"lead_impedance_ohms_delta_per_day_3d"`
	LeadImpedanceOhmsDeltaPerDay7d *float64 `json:"lead_impedance_ohms_delta_per_day_7d"`
	CaptureThresholdVDeltaPerDay3d *float64 `json:"capture_threshold_v_delta_per_day_3d"`
	CaptureThresholdVDeltaPerDay7d *float64 `json:"capture_threshold_v_delta_per_day_7d"`
}

// Validate checks required-field presence and range constraints on a reading.
func (r *TelemetryReading) Validate() error {
	required := []struct {
		name    string
		present bool
	}{
		{"patient_id", r.PatientID != nil},
		{"timestamp", r.Timestamp != nil},
		{"lead_impedance_ohms", r.LeadImpedanceOhms != nil},
		{"capture_threshold_v", r.CaptureThresholdV != nil},
		{"r_wave_sensing_mv", r.RWaveSensingMV != nil},
		{"battery_voltage_v", r.BatteryVoltageV != nil},
	}
	for _, field := range required {
		if !field.present {
			return fmt.Errorf("%w: %s", ErrMissingField, field.name)
		}
	}

	if *r.PatientID < 0 {
		return fmt.Errorf("%w: patient_id must be >= 0", ErrFieldOutOfRange)
	}
	if *r.Timestamp < 0 {
		return fmt.Errorf("%w: timestamp must be >= 0", ErrFieldOutOfRange)
	}
	if r.TargetFailNext7d != nil && *r.TargetFailNext7d != 0 && *r.TargetFailNext7d != 1 {
		return fmt.Errorf("%w: target_fail_next_7d must be 0 or 1", ErrFieldOutOfRange)
	}

	return nil
}

// Key returns the deduplication key of the reading. The reading must have
// passed Validate; a reading without its required fields has no key.
func (r *TelemetryReading) Key() TelemetryKey {
	return TelemetryKey{PatientID: *r.PatientID, Timestamp: *r.Timestamp}
}

// TelemetryKey is the (patient, observation time) pair that is unique across
// all stored records. No other field participates in equality.
type TelemetryKey struct {
	PatientID int64
	Timestamp int64 // Unix epoch seconds, UTC
}

// TelemetryRecord is the stored shape of one observation: the reading fields
// plus a client-assigned identifier and creation timestamp.
type TelemetryRecord struct {
	ID        uuid.UUID `json:"id" db:"id"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`

	PatientID int64     `json:"patientId" db:"patient_id"`
	Timestamp time.Time `json:"timestamp" db:"timestamp"`

	LeadImpedanceOhms float64 `json:"leadImpedanceOhms" db:"lead_impedance_ohms"`
	CaptureThresholdV float64 `json:"captureThresholdV" db:"capture_threshold_v"`
	RWaveSensingMV    float64 `json:"rWaveSensingMv" db:"r_wave_sensing_mv"`
	BatteryVoltageV   float64 `json:"batteryVoltageV" db:"battery_voltage_v"`

	TargetFailNext7d *int64 `json:"targetFailNext7d" db:"target_fail_next_7d"`

	LeadImpedanceOhmsRollingMean3d *float64 `json:"leadImpedanceOhmsRollingMean3d" db:"lead_impedance_ohms_rolling_mean_3d"`
	LeadImpedanceOhmsRollingMean7d *float64 `json:"leadImpedanceOhmsRollingMean7d" db:"lead_impedance_ohms_rolling_mean_7d"`
	CaptureThresholdVRollingMean3d *float64 `json:"captureThresholdVRollingMean3d" db:"capture_threshold_v_rolling_mean_3d"`
	CaptureThresholdVRollingMean7d *float64 `json:"captureThresholdVRollingMean7d" db:"capture_threshold_v_rolling_mean_7d"`
	LeadImpedanceOhmsDeltaPerDay3d *float64 `json:"leadImpedanceOhmsDeltaPerDay3d" db:"lead_impedance_ohms_delta_per_day_3d"`
	LeadImpedanceOhmsDeltaPerDay7d *float64 `json:"leadImpedanceOhmsDeltaPerDay7d" db:"lead_impedance_ohms_delta_per_day_7d"`
	CaptureThresholdVDeltaPerDay3d *float64 `json:"captureThresholdVDeltaPerDay3d" db:"capture_threshold_v_delta_per_day_3d"`
	CaptureThresholdVDeltaPerDay7d *float64 `json:"captureThresholdVDeltaPerDay7d" db:"capture_threshold_v_delta_per_day_7d"`
}

// Key returns the deduplication key of the stored record.
func (rec *TelemetryRecord) Key() TelemetryKey {
	return TelemetryKey{PatientID: rec.PatientID, Timestamp: rec.Timestamp.Unix()}
}

// NewTelemetryRecord converts a validated reading into a record with a fresh
// identifier and creation timestamp.
func NewTelemetryRecord(r *TelemetryReading) *TelemetryRecord {
	return &TelemetryRecord{
		ID:        uuid.New(),
		CreatedAt: time.Now().UTC(),

		PatientID: *r.PatientID,
		Timestamp: time.Unix(*r.Timestamp, 0).UTC(),

		LeadImpedanceOhms: *r.LeadImpedanceOhms,
		CaptureThresholdV: *r.CaptureThresholdV,
		RWaveSensingMV:    *r.RWaveSensingMV,
		BatteryVoltageV:   *r.BatteryVoltageV,

		TargetFailNext7d: r.TargetFailNext7d,

		LeadImpedanceOhmsRollingMean3d: r.LeadImpedanceOhmsRollingMean3d,
		LeadImpedanceOhmsRollingMean7d: r.LeadImpedanceOhmsRollingMean7d,
		CaptureThresholdVRollingMean3d: r.CaptureThresholdVRollingMean3d,
		CaptureThresholdVRollingMean7d: r.CaptureThresholdVRollingMean7d,
		LeadImpedanceOhmsDeltaPerDay3d: r.LeadImpedanceOhmsDeltaPerDay3d,
		LeadImpedanceOhmsDeltaPerDay7d: r.LeadImpedanceOhmsDeltaPerDay7d,
		CaptureThresholdVDeltaPerDay3d: r.CaptureThresholdVDeltaPerDay3d,
		CaptureThresholdVDeltaPerDay7d: r.CaptureThresholdVDeltaPerDay7d,
	}
}

// IngestResult summarizes the outcome of one bulk ingest call.
type IngestResult struct {
	ReceivedCount           int `json:"received_count"`
	InsertedCount           int `json:"inserted_count"`
	DuplicateCount          int `json:"duplicate_count"`
	DuplicateInPayloadCount int `json:"duplicate_in_payload_count"`
	DuplicateExistingCount  int `json:"duplicate_existing_count"`
}
