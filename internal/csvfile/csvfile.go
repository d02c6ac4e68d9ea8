// Package csvfile reads the flat pacemaker telemetry CSV format shared by
// the seed loader and the replay client. Columns are located through an
// alias table: the canonical snake_case name is tried first, then the
// known generator-style header names.
package csvfile

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/PoyoPoak/MS-PM-POC/internal/models"
)

// Canonical field names, matching the wire and storage column names.
const (
	FieldPatientID         = "patient_id"
	FieldTimestamp         = "timestamp"
	FieldLeadImpedanceOhms = "lead_impedance_ohms"
	FieldCaptureThresholdV = "capture_threshold_v"
	FieldRWaveSensingMV    = "r_wave_sensing_mv"
	FieldBatteryVoltageV   = "battery_voltage_v"
	FieldTargetFailNext7d  = "target_fail_next_7d"
)

// RequiredFields are the six fields a row must carry to be usable.
var RequiredFields = []string{
	FieldPatientID,
	FieldTimestamp,
	FieldLeadImpedanceOhms,
	FieldCaptureThresholdV,
	FieldRWaveSensingMV,
	FieldBatteryVoltageV,
}

// OptionalFloatFields are the nullable trailing-window statistics.
var OptionalFloatFields = []string{
	"lead_impedance_ohms_rolling_mean_3d",
	"lead_impedance_ohms_rolling_mean_7d",
	"capture_threshold_v_rolling_mean_3d",
	"capture_threshold_v_rolling_mean_7d",
	"lead_impedance_ohms_delta_per_day_3d",
	"lead_impedance_ohms_delta_per_day_7d",
	"capture_threshold_v_delta_per_day_3d",
	"capture_threshold_v_delta_per_day_7d",
}

// columnAliases maps each canonical field to the alternate header names the
// data generator emits. Checked in order after the canonical name itself.
var columnAliases = map[string][]string{
	FieldPatientID:         {"Patient_ID"},
	FieldTimestamp:         {"Timestamp"},
	FieldLeadImpedanceOhms: {"Lead_Impedance_Ohms"},
	FieldCaptureThresholdV: {"Capture_Threshold_V"},
	FieldRWaveSensingMV:    {"R_Wave_Sensing_mV"},
	FieldBatteryVoltageV:   {"Battery_Voltage_V"},
	FieldTargetFailNext7d:  {"Target_Fail_Next_7d"},

	"lead_impedance_ohms_rolling_mean_3d":  {"Lead_Impedance_Ohms_RollingMean_3d"},
	"lead_impedance_ohms_rolling_mean_7d":  {"Lead_Impedance_Ohms_RollingMean_7d"},
	"capture_threshold_v_rolling_mean_3d":  {"Capture_Threshold_V_RollingMean_3d"},
	"capture_threshold_v_rolling_mean_7d":  {"Capture_Threshold_V_RollingMean_7d"},
	"lead_impedance_ohms_delta_per_day_3d": {"Lead_Impedance_Ohms_DeltaPerDay_3d"},
	"lead_impedance_ohms_delta_per_day_7d": {"Lead_Impedance_Ohms_DeltaPerDay_7d"},
	"capture_threshold_v_delta_per_day_3d": {"Capture_Threshold_V_DeltaPerDay_3d"},
	"capture_threshold_v_delta_per_day_7d": {"Capture_Threshold_V_DeltaPerDay_7d"},
}

// ErrEmptyFile is returned when the file has no header row.
var ErrEmptyFile = errors.New("csv file is empty")

// RowError is a parse or validation error local to one data row. Callers
// decide whether it aborts the whole load or just skips the row.
type RowError struct {
	Line int
	Err  error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("row %d: %v", e.Line, e.Err)
}

func (e *RowError) Unwrap() error {
	return e.Err
}

// Header maps canonical field names to column positions after alias
// resolution. Unrecognized columns are ignored.
type Header struct {
	index map[string]int
}

// ResolveHeader resolves a raw header row against the alias table. For each
// canonical field the canonical name is tried first, then its aliases; the
// first match wins. Header cells are compared after whitespace trimming.
func ResolveHeader(cols []string) *Header {
	position := make(map[string]int, len(cols))
	for i, col := range cols {
		name := strings.TrimSpace(col)
		if _, seen := position[name]; !seen {
			position[name] = i
		}
	}

	index := make(map[string]int)
	for canonical, aliases := range columnAliases {
		candidates := append([]string{canonical}, aliases...)
		for _, candidate := range candidates {
			if i, ok := position[candidate]; ok {
				index[canonical] = i
				break
			}
		}
	}
	return &Header{index: index}
}

// MissingRequired returns the required canonical fields the header does not
// resolve, in schema order. Empty means the file is usable.
func (h *Header) MissingRequired() []string {
	var missing []string
	for _, field := range RequiredFields {
		if _, ok := h.index[field]; !ok {
			missing = append(missing, field)
		}
	}
	return missing
}

func (h *Header) value(row []string, field string) string {
	i, ok := h.index[field]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// Record is one parsed telemetry row. Required fields are concrete, optional
// fields are nil when the source cell is empty.
type Record struct {
	PatientID int64
	Timestamp time.Time

	LeadImpedanceOhms float64
	CaptureThresholdV float64
	RWaveSensingMV    float64
	BatteryVoltageV   float64

	TargetFailNext7d *int64

	OptionalStats map[string]*float64
}

// ParseRecord parses one data row strictly: every required field must be
// present and parse, the binary label must decode to 0 or 1, and a malformed
// optional value is an error.
func (h *Header) ParseRecord(row []string) (*Record, error) {
	return h.parse(row, false)
}

// ParseRecordCoerce parses one data row with lenient optional handling:
// required fields are still strict, but an optional value that fails to
// parse is treated as absent. Used by the replay path, where the server is
// the authority on optional-field validity.
func (h *Header) ParseRecordCoerce(row []string) (*Record, error) {
	return h.parse(row, true)
}

func (h *Header) parse(row []string, coerce bool) (*Record, error) {
	for _, field := range RequiredFields {
		if h.value(row, field) == "" {
			return nil, fmt.Errorf("missing required field %s", field)
		}
	}

	patientID, err := parseIntField(h.value(row, FieldPatientID))
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", FieldPatientID, err)
	}
	ts, err := ParseTimestamp(h.value(row, FieldTimestamp))
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", FieldTimestamp, err)
	}

	rec := &Record{
		PatientID:     patientID,
		Timestamp:     ts,
		OptionalStats: make(map[string]*float64, len(OptionalFloatFields)),
	}

	requiredFloats := []struct {
		field string
		dst   *float64
	}{
		{FieldLeadImpedanceOhms, &rec.LeadImpedanceOhms},
		{FieldCaptureThresholdV, &rec.CaptureThresholdV},
		{FieldRWaveSensingMV, &rec.RWaveSensingMV},
		{FieldBatteryVoltageV, &rec.BatteryVoltageV},
	}
	for _, rf := range requiredFloats {
		v, err := strconv.ParseFloat(h.value(row, rf.field), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", rf.field, err)
		}
		*rf.dst = v
	}

	if raw := h.value(row, FieldTargetFailNext7d); raw != "" {
		target, err := parseIntField(raw)
		switch {
		case err != nil && coerce:
			// leave nil
		case err != nil:
			return nil, fmt.Errorf("invalid %s: %w", FieldTargetFailNext7d, err)
		case !coerce && target != 0 && target != 1:
			return nil, fmt.Errorf("%s must be 0 or 1, got %d", FieldTargetFailNext7d, target)
		default:
			rec.TargetFailNext7d = &target
		}
	}

	for _, field := range OptionalFloatFields {
		raw := h.value(row, field)
		if raw == "" {
			rec.OptionalStats[field] = nil
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			if coerce {
				rec.OptionalStats[field] = nil
				continue
			}
			return nil, fmt.Errorf("invalid %s: %w", field, err)
		}
		rec.OptionalStats[field] = &v
	}

	return rec, nil
}

// parseIntField accepts both plain-integer and float-formatted cells, which
// the data generator emits interchangeably for id and label columns.
func parseIntField(raw string) (int64, error) {
	if v, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return v, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("non-finite value %q", raw)
	}
	return int64(f), nil
}

// ParseTimestamp decodes a CSV time cell. Numeric values are Unix epoch
// seconds, fractional part allowed. Otherwise the value must be ISO-8601;
// a value without an explicit offset is assumed UTC.
func ParseTimestamp(raw string) (time.Time, error) {
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return time.Time{}, fmt.Errorf("non-finite timestamp %q", raw)
		}
		sec := int64(f)
		nsec := int64((f - float64(sec)) * float64(time.Second))
		return time.Unix(sec, nsec).UTC(), nil
	}

	layouts := []string{
		time.RFC3339Nano,
		"2006-01-02T15:04:05.999999999",
		"2006-01-02 15:04:05.999999999",
		"2006-01-02",
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", raw)
}

// stat returns the parsed optional value for field, nil when absent or
// non-finite. A NaN that survived parsing is null-like on the wire.
func (rec *Record) stat(field string) *float64 {
	v := rec.OptionalStats[field]
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return nil
	}
	return v
}

// Reading converts the record to the wire shape used by the ingest endpoint.
func (rec *Record) Reading() *models.TelemetryReading {
	patientID := rec.PatientID
	ts := rec.Timestamp.Unix()
	lead := rec.LeadImpedanceOhms
	capture := rec.CaptureThresholdV
	rWave := rec.RWaveSensingMV
	battery := rec.BatteryVoltageV

	return &models.TelemetryReading{
		PatientID:         &patientID,
		Timestamp:         &ts,
		LeadImpedanceOhms: &lead,
		CaptureThresholdV: &capture,
		RWaveSensingMV:    &rWave,
		BatteryVoltageV:   &battery,

		TargetFailNext7d: rec.TargetFailNext7d,

		LeadImpedanceOhmsRollingMean3d: rec.stat("lead_impedance_ohms_rolling_mean_3d"),
		LeadImpedanceOhmsRollingMean7d: rec.stat("lead_impedance_ohms_rolling_mean_7d"),
		CaptureThresholdVRollingMean3d: rec.stat("capture_threshold_v_rolling_mean_3d"),
		CaptureThresholdVRollingMean7d: rec.stat("capture_threshold_v_rolling_mean_7d"),
		LeadImpedanceOhmsDeltaPerDay3d: rec.stat("lead_impedance_ohms_delta_per_day_3d"),
		LeadImpedanceOhmsDeltaPerDay7d: rec.stat("lead_impedance_ohms_delta_per_day_7d"),
		CaptureThresholdVDeltaPerDay3d: rec.stat("capture_threshold_v_delta_per_day_3d"),
		CaptureThresholdVDeltaPerDay7d: rec.stat("capture_threshold_v_delta_per_day_7d"),
	}
}

// TelemetryRecord converts the record to the stored shape with a fresh
// identifier and creation timestamp.
func (rec *Record) TelemetryRecord() *models.TelemetryRecord {
	reading := rec.Reading()
	out := models.NewTelemetryRecord(reading)
	// Preserve sub-second precision lost in the epoch-seconds wire encoding.
	out.Timestamp = rec.Timestamp.UTC()
	return out
}

// Reader iterates data rows of a telemetry CSV, tracking 1-based physical
// line numbers with the header on line 1.
type Reader struct {
	csv    *csv.Reader
	header *Header
	line   int
}

// NewReader reads and resolves the header row. ErrEmptyFile is returned for
// an input with no header.
func NewReader(r io.Reader) (*Reader, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	headerRow, err := cr.Read()
	if err == io.EOF {
		return nil, ErrEmptyFile
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read csv header: %w", err)
	}

	return &Reader{csv: cr, header: ResolveHeader(headerRow), line: 1}, nil
}

// Header returns the resolved header.
func (r *Reader) Header() *Header {
	return r.header
}

// Next reads and strictly parses the next data row. It returns io.EOF at end
// of input and a *RowError for a row-local parse or validation failure, so
// callers can skip bad rows and keep reading.
func (r *Reader) Next() (*Record, error) {
	return r.next(false)
}

// NextCoerce is Next with lenient optional-field handling.
func (r *Reader) NextCoerce() (*Record, error) {
	return r.next(true)
}

func (r *Reader) next(coerce bool) (*Record, error) {
	row, err := r.csv.Read()
	if err == io.EOF {
		return nil, io.EOF
	}
	r.line++
	if err != nil {
		return nil, &RowError{Line: r.line, Err: err}
	}

	rec, err := r.header.parse(row, coerce)
	if err != nil {
		return nil, &RowError{Line: r.line, Err: err}
	}
	return rec, nil
}
