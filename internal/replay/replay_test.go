package replay

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/PoyoPoak/MS-PM-POC/internal/models"
)

func testReading(patientID, timestamp int64) *models.TelemetryReading {
	lead := 500.0
	capture := 0.7
	rWave := 8.0
	battery := 2.9
	return &models.TelemetryReading{
		PatientID:         &patientID,
		Timestamp:         &timestamp,
		LeadImpedanceOhms: &lead,
		CaptureThresholdV: &capture,
		RWaveSensingMV:    &rWave,
		BatteryVoltageV:   &battery,
	}
}

func writeReplayCSV(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "replay.csv")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write replay CSV: %v", err)
	}
	return path
}

func TestConfigValidate(t *testing.T) {
	valid := Config{
		CSVPath:        "data.csv",
		EndpointURL:    "http://localhost:8080/api/v1/telemetry/ingest",
		Interval:       time.Second,
		Timeout:        30 * time.Second,
		MaxRequestRows: 2000,
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("Expected valid config, got %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing csv path", func(c *Config) { c.CSVPath = "" }},
		{"missing endpoint", func(c *Config) { c.EndpointURL = "" }},
		{"negative interval", func(c *Config) { c.Interval = -time.Second }},
		{"zero timeout", func(c *Config) { c.Timeout = 0 }},
		{"zero max rows", func(c *Config) { c.MaxRequestRows = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Expected validation error")
			}
		})
	}
}

func TestDailyBatchesGroupsByUTCDay(t *testing.T) {
	const day1 = int64(1700000000) // 2023-11-14 UTC
	const day2 = int64(1700092800) // 2023-11-16 UTC

	readings := []*models.TelemetryReading{
		testReading(2, day2),
		testReading(1, day1),
		testReading(2, day1+600),
	}

	batches := DailyBatches(readings, 2000)
	if len(batches) != 2 {
		t.Fatalf("Expected 2 batches, got %d", len(batches))
	}

	if batches[0].Label != "2023-11-14" {
		t.Errorf("Expected label 2023-11-14, got %s", batches[0].Label)
	}
	if len(batches[0].Readings) != 2 {
		t.Errorf("Expected 2 readings on day 1, got %d", len(batches[0].Readings))
	}
	if batches[1].Label != "2023-11-16" {
		t.Errorf("Expected label 2023-11-16, got %s", batches[1].Label)
	}
}

func TestDailyBatchesSortAndTieBreak(t *testing.T) {
	const base = int64(1700000000)

	readings := []*models.TelemetryReading{
		testReading(3, base),
		testReading(1, base+600),
		testReading(1, base),
		testReading(2, base),
	}

	batches := DailyBatches(readings, 2000)
	if len(batches) != 1 {
		t.Fatalf("Expected 1 batch, got %d", len(batches))
	}

	var order []int64
	for _, r := range batches[0].Readings {
		order = append(order, *r.PatientID)
	}
	want := []int64{1, 2, 3, 1}
	for i, id := range want {
		if order[i] != id {
			t.Fatalf("Expected patient order %v, got %v", want, order)
		}
	}
}

func TestDailyBatchesSplitsOversizedDay(t *testing.T) {
	const base = int64(1700000000)

	readings := make([]*models.TelemetryReading, 0, 2500)
	for i := 0; i < 2500; i++ {
		readings = append(readings, testReading(int64(i), base+int64(i)))
	}

	batches := DailyBatches(readings, 2000)
	if len(batches) != 2 {
		t.Fatalf("Expected 2 batches, got %d", len(batches))
	}

	if batches[0].Label != "2023-11-14 (chunk 1/2)" {
		t.Errorf("Expected chunk 1/2 label, got %s", batches[0].Label)
	}
	if batches[1].Label != "2023-11-14 (chunk 2/2)" {
		t.Errorf("Expected chunk 2/2 label, got %s", batches[1].Label)
	}
	if len(batches[0].Readings) != 2000 {
		t.Errorf("Expected first chunk of 2000 rows, got %d", len(batches[0].Readings))
	}
	if len(batches[1].Readings) != 500 {
		t.Errorf("Expected second chunk of 500 rows, got %d", len(batches[1].Readings))
	}

	if *batches[1].Readings[0].PatientID != 2000 {
		t.Errorf("Expected chunks to be contiguous, second chunk starts at patient %d", *batches[1].Readings[0].PatientID)
	}
}

func TestDailyBatchesDeterministic(t *testing.T) {
	const base = int64(1700000000)

	forward := []*models.TelemetryReading{
		testReading(1, base),
		testReading(2, base),
		testReading(3, base+600),
	}
	reversed := []*models.TelemetryReading{forward[2], forward[1], forward[0]}

	a := DailyBatches(forward, 2000)
	b := DailyBatches(reversed, 2000)

	if len(a) != len(b) {
		t.Fatalf("Expected equal batch counts, got %d and %d", len(a), len(b))
	}
	for i := range a {
		if a[i].Label != b[i].Label {
			t.Errorf("Expected label %s, got %s", a[i].Label, b[i].Label)
		}
		for j := range a[i].Readings {
			if *a[i].Readings[j].PatientID != *b[i].Readings[j].PatientID {
				t.Fatalf("Batch %d diverges at row %d", i, j)
			}
		}
	}

	// Input slices must not be reordered in place.
	if *forward[0].PatientID != 1 || *reversed[0].PatientID != 3 {
		t.Error("Expected input slices to be left untouched")
	}
}

func TestLoadReadingsErrors(t *testing.T) {
	tests := []struct {
		name    string
		path    func(t *testing.T) string
		wantErr string
	}{
		{
			name:    "missing file",
			path:    func(t *testing.T) string { return filepath.Join(t.TempDir(), "nope.csv") },
			wantErr: "not found",
		},
		{
			name:    "empty file",
			path:    func(t *testing.T) string { return writeReplayCSV(t, "") },
			wantErr: "empty",
		},
		{
			name: "header only",
			path: func(t *testing.T) string {
				return writeReplayCSV(t, "patient_id,timestamp,lead_impedance_ohms,capture_threshold_v,r_wave_sensing_mv,battery_voltage_v\n")
			},
			wantErr: "empty",
		},
		{
			name: "missing required columns",
			path: func(t *testing.T) string {
				return writeReplayCSV(t, "patient_id,timestamp\n1,1700000000\n")
			},
			wantErr: "missing required telemetry columns",
		},
		{
			name: "malformed required field",
			path: func(t *testing.T) string {
				return writeReplayCSV(t, "patient_id,timestamp,lead_impedance_ohms,capture_threshold_v,r_wave_sensing_mv,battery_voltage_v\n"+
					"1,1700000000,junk,0.7,8.0,2.9\n")
			},
			wantErr: "row 2",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadReadings(tt.path(t))
			if err == nil {
				t.Fatal("Expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestLoadReadingsCoercesOptionalFields(t *testing.T) {
	path := writeReplayCSV(t, "Patient_ID,Timestamp,Lead_Impedance_Ohms,Capture_Threshold_V,R_Wave_Sensing_mV,Battery_Voltage_V,Target_Fail_Next_7d,Lead_Impedance_Ohms_RollingMean_3d\n"+
		"1,1700000000,500,0.7,8.0,2.9,1,510.5\n"+
		"2,1700000600,505,0.71,8.1,2.88,junk,junk\n")

	readings, err := LoadReadings(path)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(readings) != 2 {
		t.Fatalf("Expected 2 readings, got %d", len(readings))
	}

	if readings[0].TargetFailNext7d == nil || *readings[0].TargetFailNext7d != 1 {
		t.Errorf("Expected target 1, got %v", readings[0].TargetFailNext7d)
	}
	if readings[0].LeadImpedanceOhmsRollingMean3d == nil || *readings[0].LeadImpedanceOhmsRollingMean3d != 510.5 {
		t.Errorf("Expected rolling mean 510.5, got %v", readings[0].LeadImpedanceOhmsRollingMean3d)
	}
	if readings[1].TargetFailNext7d != nil {
		t.Error("Expected unparseable target coerced to nil")
	}
	if readings[1].LeadImpedanceOhmsRollingMean3d != nil {
		t.Error("Expected unparseable statistic coerced to nil")
	}
}

func TestClientRunSendsAllBatches(t *testing.T) {
	var gotAuth []string
	var gotRows []int

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = append(gotAuth, r.Header.Get("Authorization"))

		var batch []*models.TelemetryReading
		if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
			t.Errorf("Failed to decode batch: %v", err)
		}
		gotRows = append(gotRows, len(batch))

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"received_count":%d}`, len(batch))
	}))
	defer server.Close()

	client := NewClient(Config{
		EndpointURL:    server.URL,
		Timeout:        5 * time.Second,
		MaxRequestRows: 2000,
		Token:          "test-token",
	})

	batches := []Batch{
		{Label: "2023-11-14", Readings: []*models.TelemetryReading{testReading(1, 1700000000), testReading(2, 1700000600)}},
		{Label: "2023-11-15", Readings: []*models.TelemetryReading{testReading(1, 1700086400)}},
	}

	stats, err := client.Run(batches)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if stats.PreparedBatches != 2 || stats.SentBatches != 2 {
		t.Errorf("Expected 2 prepared and 2 sent batches, got %+v", stats)
	}
	if stats.PreparedRows != 3 || stats.SentRows != 3 {
		t.Errorf("Expected 3 prepared and 3 sent rows, got %+v", stats)
	}
	for _, auth := range gotAuth {
		if auth != "Bearer test-token" {
			t.Errorf("Expected bearer token header, got %q", auth)
		}
	}
	if len(gotRows) != 2 || gotRows[0] != 2 || gotRows[1] != 1 {
		t.Errorf("Expected row counts [2 1], got %v", gotRows)
	}
}

func TestClientRunStopOnError(t *testing.T) {
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		requests++
		if requests == 2 {
			http.Error(w, "storage unavailable", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient(Config{
		EndpointURL:    server.URL,
		Timeout:        5 * time.Second,
		MaxRequestRows: 2000,
		Token:          "test-token",
	})

	batches := []Batch{
		{Label: "day 1", Readings: []*models.TelemetryReading{testReading(1, 1700000000)}},
		{Label: "day 2", Readings: []*models.TelemetryReading{testReading(1, 1700086400)}},
		{Label: "day 3", Readings: []*models.TelemetryReading{testReading(1, 1700172800)}},
	}

	stats, err := client.Run(batches)
	if err == nil {
		t.Fatal("Expected error with stop-on-error policy")
	}
	if requests != 2 {
		t.Errorf("Expected replay to halt after the failed batch, got %d requests", requests)
	}
	if stats.SentBatches != 1 || stats.SentRows != 1 {
		t.Errorf("Expected 1 sent batch before the failure, got %+v", stats)
	}
}

func TestClientRunContinueOnError(t *testing.T) {
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		requests++
		if requests == 2 {
			http.Error(w, "storage unavailable", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient(Config{
		EndpointURL:     server.URL,
		Timeout:         5 * time.Second,
		MaxRequestRows:  2000,
		Token:           "test-token",
		ContinueOnError: true,
	})

	batches := []Batch{
		{Label: "day 1", Readings: []*models.TelemetryReading{testReading(1, 1700000000)}},
		{Label: "day 2", Readings: []*models.TelemetryReading{testReading(1, 1700086400)}},
		{Label: "day 3", Readings: []*models.TelemetryReading{testReading(1, 1700172800)}},
	}

	stats, err := client.Run(batches)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if requests != 3 {
		t.Errorf("Expected all 3 batches attempted, got %d requests", requests)
	}
	if stats.PreparedBatches != 3 || stats.SentBatches != 2 {
		t.Errorf("Expected 3 prepared and 2 sent batches, got %+v", stats)
	}
}

func TestClientRunDryRun(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		t.Error("Dry run must not transmit")
	}))
	defer server.Close()

	client := NewClient(Config{
		EndpointURL:    server.URL,
		Timeout:        5 * time.Second,
		MaxRequestRows: 2000,
		DryRun:         true,
	})

	batches := []Batch{
		{Label: "day 1", Readings: []*models.TelemetryReading{testReading(1, 1700000000), testReading(2, 1700000600)}},
	}

	stats, err := client.Run(batches)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if stats.PreparedBatches != 1 || stats.PreparedRows != 2 {
		t.Errorf("Expected counters to advance in dry run, got %+v", stats)
	}
	if stats.SentBatches != 1 || stats.SentRows != 2 {
		t.Errorf("Expected dry run to count batches as sent, got %+v", stats)
	}
}

func TestClientRunMarshalsExplicitNulls(t *testing.T) {
	var rawBody []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("Failed to read body: %v", err)
		}
		rawBody = body
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient(Config{
		EndpointURL:    server.URL,
		Timeout:        5 * time.Second,
		MaxRequestRows: 2000,
		Token:          "test-token",
	})

	batches := []Batch{{Label: "day 1", Readings: []*models.TelemetryReading{testReading(1, 1700000000)}}}
	if _, err := client.Run(batches); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if !strings.Contains(string(rawBody), `"target_fail_next_7d":null`) {
		t.Errorf("Expected explicit null for absent optional field, got %s", rawBody)
	}
}
