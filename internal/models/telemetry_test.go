package models

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func int64Ptr(v int64) *int64       { return &v }
func float64Ptr(v float64) *float64 { return &v }

func validReading() *TelemetryReading {
	return &TelemetryReading{
		PatientID:         int64Ptr(1),
		Timestamp:         int64Ptr(1_700_000_000),
		LeadImpedanceOhms: float64Ptr(510.0),
		CaptureThresholdV: float64Ptr(1.1),
		RWaveSensingMV:    float64Ptr(8.7),
		BatteryVoltageV:   float64Ptr(2.9),
	}
}

func TestTelemetryReadingValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*TelemetryReading)
		wantErr error
	}{
		{
			name:    "valid minimal reading",
			mutate:  func(_ *TelemetryReading) {},
			wantErr: nil,
		},
		{
			name:    "valid reading with label",
			mutate:  func(r *TelemetryReading) { r.TargetFailNext7d = int64Ptr(1) },
			wantErr: nil,
		},
		{
			name:    "missing patient_id",
			mutate:  func(r *TelemetryReading) { r.PatientID = nil },
			wantErr: ErrMissingField,
		},
		{
			name:    "missing timestamp",
			mutate:  func(r *TelemetryReading) { r.Timestamp = nil },
			wantErr: ErrMissingField,
		},
		{
			name:    "missing battery voltage",
			mutate:  func(r *TelemetryReading) { r.BatteryVoltageV = nil },
			wantErr: ErrMissingField,
		},
		{
			name:    "negative patient_id",
			mutate:  func(r *TelemetryReading) { r.PatientID = int64Ptr(-1) },
			wantErr: ErrFieldOutOfRange,
		},
		{
			name:    "negative timestamp",
			mutate:  func(r *TelemetryReading) { r.Timestamp = int64Ptr(-5) },
			wantErr: ErrFieldOutOfRange,
		},
		{
			name:    "label out of range",
			mutate:  func(r *TelemetryReading) { r.TargetFailNext7d = int64Ptr(2) },
			wantErr: ErrFieldOutOfRange,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reading := validReading()
			tt.mutate(reading)

			err := reading.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("Validate() returned unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Validate() = %v, want error wrapping %v", err, tt.wantErr)
			}
		})
	}
}

func TestTelemetryReadingOptionalFieldsMarshalNull(t *testing.T) {
	body, err := json.Marshal(validReading())
	if err != nil {
		t.Fatalf("Failed to marshal reading: %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(body, &decoded); err != nil {
		t.Fatalf("Failed to unmarshal reading: %v", err)
	}

	// Absent optional fields must appear as explicit nulls on the wire.
	for _, key := range []string{
		"target_fail_next_7d",
		"lead_impedance_ohms_rolling_mean_3d",
		"capture_threshold_v_delta_per_day_7d",
	} {
		value, present := decoded[key]
		if !present {
			t.Errorf("Expected key %q in wire payload", key)
			continue
		}
		if value != nil {
			t.Errorf("Expected %q to be null, got %v", key, value)
		}
	}
}

func TestNewTelemetryRecord(t *testing.T) {
	reading := validReading()
	reading.TargetFailNext7d = int64Ptr(0)
	reading.LeadImpedanceOhmsRollingMean3d = float64Ptr(505.0)

	record := NewTelemetryRecord(reading)

	if record.ID.String() == "00000000-0000-0000-0000-000000000000" {
		t.Error("Expected a fresh record ID")
	}
	if record.CreatedAt.IsZero() {
		t.Error("Expected a creation timestamp")
	}
	if record.Timestamp != time.Unix(1_700_000_000, 0).UTC() {
		t.Errorf("Unexpected timestamp %v", record.Timestamp)
	}
	if record.Key() != reading.Key() {
		t.Errorf("Record key %v does not match reading key %v", record.Key(), reading.Key())
	}
	if record.TargetFailNext7d == nil || *record.TargetFailNext7d != 0 {
		t.Errorf("Expected label 0, got %v", record.TargetFailNext7d)
	}
	if record.LeadImpedanceOhmsRollingMean7d != nil {
		t.Error("Expected absent rolling mean to stay nil")
	}
}
