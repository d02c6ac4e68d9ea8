// Package handlers contains HTTP handlers for the telemetry service.
package handlers

import (
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/PoyoPoak/MS-PM-POC/internal/models"
	"github.com/PoyoPoak/MS-PM-POC/internal/repository"
)

// TelemetryHandler handles bulk telemetry ingestion
type TelemetryHandler struct {
	repo repository.TelemetryRepository
}

// NewTelemetryHandler creates a new telemetry handler
func NewTelemetryHandler(repo repository.TelemetryRepository) *TelemetryHandler {
	return &TelemetryHandler{repo: repo}
}

// HandleIngest ingests telemetry readings in bulk.
// POST /api/v1/telemetry/ingest
//
// The request body is a JSON array of 1-2000 readings. The whole call is
// rejected if the batch size is out of bounds or any reading fails field
// validation; nothing is written in that case. Readings whose
// (patient_id, timestamp) key is already stored, or repeated inside the
// payload, are counted as duplicates rather than inserted, so retried and
// replayed deliveries are safe.
func (h *TelemetryHandler) HandleIngest(c *gin.Context) {
	var readings []*models.TelemetryReading
	if err := c.ShouldBindJSON(&readings); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid JSON payload",
		})
		return
	}

	if len(readings) < models.MinIngestRows || len(readings) > models.MaxIngestRows {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("Batch must contain between %d and %d readings, got %d",
				models.MinIngestRows, models.MaxIngestRows, len(readings)),
		})
		return
	}

	for i, reading := range readings {
		if reading == nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": fmt.Sprintf("Reading %d: null entry", i),
			})
			return
		}
		if err := reading.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": fmt.Sprintf("Reading %d: %v", i, err),
			})
			return
		}
	}

	// Fold the batch by dedup key in input order: the first occurrence of a
	// key wins, later occurrences only bump the in-payload counter.
	uniqueKeys := make([]models.TelemetryKey, 0, len(readings))
	uniqueReadings := make(map[models.TelemetryKey]*models.TelemetryReading, len(readings))
	duplicateInPayload := 0

	for _, reading := range readings {
		key := reading.Key()
		if _, seen := uniqueReadings[key]; seen {
			duplicateInPayload++
			continue
		}
		uniqueKeys = append(uniqueKeys, key)
		uniqueReadings[key] = reading
	}

	existing, err := h.repo.ExistingKeys(c.Request.Context(), uniqueKeys)
	if err != nil {
		log.Printf("Failed to check existing telemetry keys: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to check existing telemetry",
		})
		return
	}

	records := make([]*models.TelemetryRecord, 0, len(uniqueKeys))
	for _, key := range uniqueKeys {
		if _, exists := existing[key]; exists {
			continue
		}
		records = append(records, models.NewTelemetryRecord(uniqueReadings[key]))
	}

	inserted, err := h.repo.InsertBatch(c.Request.Context(), records)
	if err != nil {
		log.Printf("Failed to insert telemetry batch: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to store telemetry",
		})
		return
	}

	// A row skipped by the insert despite passing the existence check lost
	// the uniqueness race to a concurrent call; count it as an existing
	// duplicate, the constraint is the source of truth.
	lateDuplicates := len(records) - inserted
	duplicateExisting := len(existing) + lateDuplicates

	c.JSON(http.StatusOK, models.IngestResult{
		ReceivedCount:           len(readings),
		InsertedCount:           inserted,
		DuplicateCount:          duplicateInPayload + duplicateExisting,
		DuplicateInPayloadCount: duplicateInPayload,
		DuplicateExistingCount:  duplicateExisting,
	})
}
