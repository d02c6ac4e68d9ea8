// Package replay streams a historical telemetry CSV to the ingest endpoint
// in deterministic daily batches, simulating the device fleet reporting one
// day at a time.
package replay

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/PoyoPoak/MS-PM-POC/internal/csvfile"
	"github.com/PoyoPoak/MS-PM-POC/internal/models"
)

// Config holds the replay run parameters.
type Config struct {
	CSVPath         string
	EndpointURL     string
	Interval        time.Duration
	Timeout         time.Duration
	MaxRequestRows  int
	Token           string
	DryRun          bool
	Verbose         bool
	ContinueOnError bool
}

// Validate checks the run parameters.
func (c *Config) Validate() error {
	if c.CSVPath == "" {
		return errors.New("csv path is required")
	}
	if c.EndpointURL == "" {
		return errors.New("endpoint URL is required")
	}
	if c.Interval < 0 {
		return errors.New("interval must be >= 0")
	}
	if c.Timeout <= 0 {
		return errors.New("timeout must be > 0")
	}
	if c.MaxRequestRows <= 0 {
		return errors.New("max request rows must be > 0")
	}
	return nil
}

// Batch is one labeled request payload: the readings of a single UTC day,
// or one chunk of an oversized day.
type Batch struct {
	Label    string
	Readings []*models.TelemetryReading
}

// Stats counts batches and rows across one replay run. Prepared counts cover
// every batch the file produced; sent counts cover batches that were
// transmitted successfully (or, in a dry run, would have been).
type Stats struct {
	PreparedBatches int
	PreparedRows    int
	SentBatches     int
	SentRows        int
}

// LoadReadings reads and normalizes the telemetry CSV. Unlike the seed path,
// a malformed required field is fatal here: replay is meant to reproduce a
// known-good file, so a bad row indicates the wrong input. Optional fields
// that fail to parse are coerced to null and left for the server to judge.
func LoadReadings(path string) ([]*models.TelemetryReading, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("csv file not found: %s", path)
		}
		return nil, fmt.Errorf("failed to open csv file: %w", err)
	}
	defer file.Close()

	reader, err := csvfile.NewReader(file)
	if errors.Is(err, csvfile.ErrEmptyFile) {
		return nil, errors.New("csv file is empty")
	}
	if err != nil {
		return nil, err
	}

	if missing := reader.Header().MissingRequired(); len(missing) > 0 {
		return nil, fmt.Errorf("csv is missing required telemetry columns: %s", strings.Join(missing, ", "))
	}

	var readings []*models.TelemetryReading
	for {
		rec, err := reader.NextCoerce()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		readings = append(readings, rec.Reading())
	}

	if len(readings) == 0 {
		return nil, errors.New("csv file is empty")
	}
	return readings, nil
}

// DailyBatches sorts readings by (timestamp, patient) ascending, groups them
// by UTC calendar day, and splits any day larger than maxRows into ordered
// chunks labeled with their position. The patient tie-break makes the batch
// sequence byte-for-byte reproducible across runs. Pure function, no I/O.
func DailyBatches(readings []*models.TelemetryReading, maxRows int) []Batch {
	sorted := make([]*models.TelemetryReading, len(readings))
	copy(sorted, readings)
	sort.SliceStable(sorted, func(i, j int) bool {
		if *sorted[i].Timestamp != *sorted[j].Timestamp {
			return *sorted[i].Timestamp < *sorted[j].Timestamp
		}
		return *sorted[i].PatientID < *sorted[j].PatientID
	})

	var batches []Batch

	emitDay := func(day string, rows []*models.TelemetryReading) {
		if len(rows) <= maxRows {
			batches = append(batches, Batch{Label: day, Readings: rows})
			return
		}
		chunks := (len(rows) + maxRows - 1) / maxRows
		for i := 0; i < chunks; i++ {
			start := i * maxRows
			end := start + maxRows
			if end > len(rows) {
				end = len(rows)
			}
			batches = append(batches, Batch{
				Label:    fmt.Sprintf("%s (chunk %d/%d)", day, i+1, chunks),
				Readings: rows[start:end],
			})
		}
	}

	var day string
	var dayRows []*models.TelemetryReading
	for _, reading := range sorted {
		key := time.Unix(*reading.Timestamp, 0).UTC().Format("2006-01-02")
		if key != day && dayRows != nil {
			emitDay(day, dayRows)
			dayRows = nil
		}
		day = key
		dayRows = append(dayRows, reading)
	}
	if dayRows != nil {
		emitDay(day, dayRows)
	}

	return batches
}

// Client transmits batches to the ingest endpoint.
type Client struct {
	cfg  Config
	http *http.Client
}

func NewClient(cfg Config) *Client {
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}
}

// Run sends the batches in order, pacing with the configured inter-batch
// interval. On a transmission failure the stop-on-error policy (the default)
// halts immediately with the error; continue-on-error logs and moves to the
// next batch. Dry-run mode skips transmission but still advances counters.
func (c *Client) Run(batches []Batch) (*Stats, error) {
	stats := &Stats{}

	if !c.cfg.DryRun && c.cfg.Token == "" {
		log.Println("No bearer token provided. The ingest endpoint requires superuser auth and may reject requests")
	}

	for i, batch := range batches {
		stats.PreparedBatches++
		stats.PreparedRows += len(batch.Readings)

		if c.cfg.Verbose || i == 0 || (i+1)%100 == 0 {
			log.Printf("Batch %d | %s | rows=%d", i+1, batch.Label, len(batch.Readings))
		}

		if c.cfg.DryRun {
			stats.SentBatches++
			stats.SentRows += len(batch.Readings)
			continue
		}

		if err := c.send(batch); err != nil {
			log.Printf("Request failed for batch '%s': %v", batch.Label, err)
			if !c.cfg.ContinueOnError {
				return stats, err
			}
			continue
		}

		stats.SentBatches++
		stats.SentRows += len(batch.Readings)

		if c.cfg.Interval > 0 {
			time.Sleep(c.cfg.Interval)
		}
	}

	log.Printf("Replay complete | prepared_batches=%d prepared_rows=%d sent_batches=%d sent_rows=%d",
		stats.PreparedBatches, stats.PreparedRows, stats.SentBatches, stats.SentRows)
	return stats, nil
}

func (c *Client) send(batch Batch) error {
	body, err := json.Marshal(batch.Readings)
	if err != nil {
		return fmt.Errorf("failed to encode batch: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, c.cfg.EndpointURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("ingest endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	if c.cfg.Verbose {
		log.Printf("Batch '%s' response: %s", batch.Label, strings.TrimSpace(string(respBody)))
	}
	return nil
}
