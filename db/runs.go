package db

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/metacontract/indexer/models"
)

// BeginRun inserts a started run and returns its id.
func BeginRun(gdb *gorm.DB, contract, network string, chainID uint64) (string, error) {
	runID := uuid.NewString()
	publicULID := ulid.MustNew(ulid.Timestamp(time.Now()), ulid.Monotonic(rand.Reader, 0)).String()

	run := &models.Run{
		ID:         runID,
		PublicULID: publicULID,
		Contract:   contract,
		Network:    network,
		ChainID:    chainID,
		Status:     "started",
	}
	if err := gdb.Create(run).Error; err != nil {
		return "", fmt.Errorf("BeginRun insert: %w", err)
	}
	return runID, nil
}

// FinishRun marks a run done and stores its flattened output and
// observations in one transaction.
func FinishRun(gdb *gorm.DB, runID string, steps int, outputs map[string]string, obs []models.Observation) error {
	blob, err := json.Marshal(outputs)
	if err != nil {
		return fmt.Errorf("FinishRun marshal: %w", err)
	}
	now := time.Now()

	return gdb.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Run{}).Where("id = ?", runID).Updates(map[string]any{
			"status":      "done",
			"steps":       steps,
			"output":      datatypes.JSON(blob),
			"finished_at": &now,
		})
		if res.Error != nil {
			return fmt.Errorf("FinishRun update: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("FinishRun: run %s not found", runID)
		}
		for i := range obs {
			obs[i].RunID = runID
		}
		if len(obs) > 0 {
			if err := tx.CreateInBatches(obs, 200).Error; err != nil {
				return fmt.Errorf("FinishRun observations: %w", err)
			}
		}
		return nil
	})
}

// FailRun marks a run failed with its error text.
func FailRun(gdb *gorm.DB, runID string, runErr error) error {
	now := time.Now()
	err := gdb.Model(&models.Run{}).Where("id = ?", runID).Updates(map[string]any{
		"status":      "failed",
		"error":       runErr.Error(),
		"finished_at": &now,
	}).Error
	if err != nil {
		return fmt.Errorf("FailRun update: %w", err)
	}
	return nil
}

// GetRun loads a run by id or public ULID.
func GetRun(gdb *gorm.DB, ref string) (*models.Run, error) {
	var run models.Run
	err := gdb.Where("id = ? OR public_ulid = ?", ref, ref).First(&run).Error
	if err != nil {
		return nil, fmt.Errorf("GetRun %s: %w", ref, err)
	}
	return &run, nil
}

// ListRuns returns the most recent runs, newest first.
func ListRuns(gdb *gorm.DB, limit int) ([]models.Run, error) {
	if limit <= 0 {
		limit = 20
	}
	var runs []models.Run
	err := gdb.Order("started_at DESC").Limit(limit).Find(&runs).Error
	if err != nil {
		return nil, fmt.Errorf("ListRuns: %w", err)
	}
	return runs, nil
}
