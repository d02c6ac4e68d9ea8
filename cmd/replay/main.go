// Package main is the replay CLI. It streams a historical pacemaker
// telemetry CSV to the ingest endpoint in daily batches, pacing requests to
// simulate live device reporting.
package main

import (
	"flag"
	"log"
	"os"
	"time"

	"github.com/PoyoPoak/MS-PM-POC/internal/replay"
)

func main() {
	var (
		csvPath         = flag.String("csv-path", "data/pacemaker_data.csv", "Path to generated telemetry CSV file")
		endpointURL     = flag.String("endpoint-url", "http://localhost:8080/api/v1/telemetry/ingest", "Telemetry ingest endpoint URL")
		intervalMs      = flag.Int("interval-ms", 1000, "Delay between each POST request in milliseconds")
		timeoutSeconds  = flag.Int("timeout-seconds", 30, "HTTP timeout in seconds")
		maxRequestRows  = flag.Int("max-request-rows", 2000, "Maximum rows in each request payload (ingest API max is 2000)")
		token           = flag.String("token", os.Getenv("TELEMETRY_INGEST_TOKEN"), "Bearer token for auth. Defaults to TELEMETRY_INGEST_TOKEN env var")
		dryRun          = flag.Bool("dry-run", false, "Prepare and log batches but do not send requests")
		verbose         = flag.Bool("verbose", false, "Enable detailed per-batch logs")
		continueOnError = flag.Bool("continue-on-error", false, "Continue replaying remaining batches if a request fails")
	)
	flag.Parse()

	cfg := replay.Config{
		CSVPath:         *csvPath,
		EndpointURL:     *endpointURL,
		Interval:        time.Duration(*intervalMs) * time.Millisecond,
		Timeout:         time.Duration(*timeoutSeconds) * time.Second,
		MaxRequestRows:  *maxRequestRows,
		Token:           *token,
		DryRun:          *dryRun,
		Verbose:         *verbose,
		ContinueOnError: *continueOnError,
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid replay configuration: %v", err)
	}

	readings, err := replay.LoadReadings(cfg.CSVPath)
	if err != nil {
		log.Fatalf("Failed to load telemetry CSV: %v", err)
	}

	batches := replay.DailyBatches(readings, cfg.MaxRequestRows)
	log.Printf("Prepared %d batches from %d rows in %s", len(batches), len(readings), cfg.CSVPath)

	if _, err := replay.NewClient(cfg).Run(batches); err != nil {
		log.Fatalf("Replay failed: %v", err)
	}
}
