package sql

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/CreateIntelligens/banana-art/internal/entity"
)

// CreateGeneration inserts a new generation job record.
func (r *GormRepository) CreateGeneration(ctx context.Context, generation *entity.DbGeneration) error {
	if r == nil || r.db == nil {
		return fmt.Errorf("repository not initialised")
	}
	if generation == nil {
		return fmt.Errorf("generation is nil")
	}
	if generation.Status == "" {
		generation.Status = entity.GenerationStatusPending
	}
	if generation.SourceImageIDs == nil {
		generation.SourceImageIDs = entity.UintArray{}
	}
	return r.db.WithContext(ctx).Create(generation).Error
}

// GetGeneration loads a single generation by id.
func (r *GormRepository) GetGeneration(ctx context.Context, id uint) (*entity.DbGeneration, error) {
	if r == nil || r.db == nil {
		return nil, fmt.Errorf("repository not initialised")
	}
	var generation entity.DbGeneration
	if err := r.db.WithContext(ctx).First(&generation, id).Error; err != nil {
		return nil, err
	}
	return &generation, nil
}

// ListGenerations retrieves paginated generations, most recent first.
func (r *GormRepository) ListGenerations(ctx context.Context, params *entity.GenerationQuery) ([]entity.DbGeneration, *entity.Meta, error) {
	if r == nil || r.db == nil {
		return nil, nil, fmt.Errorf("repository not initialised")
	}

	query := r.db.WithContext(ctx).Model(&entity.DbGeneration{})
	if params != nil {
		if trimmed := strings.ToLower(strings.TrimSpace(params.Status)); trimmed != "" && trimmed != "all" {
			query = query.Where("status = ?", trimmed)
		}
	}

	var totalCount int64
	if err := query.Count(&totalCount).Error; err != nil {
		return nil, nil, err
	}

	var base *entity.BaseParams
	if params != nil {
		base = &params.BaseParams
	}
	page, pageSize := normalizePage(base)
	offset := (page - 1) * pageSize

	var generations []entity.DbGeneration
	if err := query.Order("created_at DESC, id DESC").Offset(offset).Limit(pageSize).Find(&generations).Error; err != nil {
		return nil, nil, err
	}

	meta := r.calculatePagination(totalCount, page, pageSize)
	return generations, meta, nil
}

// MarkGenerationStarted records the execution start timestamp. Best effort;
// a record that is already gone is not an error.
func (r *GormRepository) MarkGenerationStarted(ctx context.Context, id uint, at time.Time) error {
	if r == nil || r.db == nil {
		return fmt.Errorf("repository not initialised")
	}
	if id == 0 {
		return fmt.Errorf("invalid generation id")
	}
	return r.db.WithContext(ctx).
		Model(&entity.DbGeneration{}).
		Where("id = ? AND status = ?", id, entity.GenerationStatusPending).
		Update("started_at", at).Error
}

// CompleteGeneration writes the terminal state. The status guard makes the
// write at-most-once: a deleted record or an already terminal one matches
// zero rows and the result is reported back as not applied.
func (r *GormRepository) CompleteGeneration(ctx context.Context, id uint, result entity.GenerationResult) (bool, error) {
	if r == nil || r.db == nil {
		return false, fmt.Errorf("repository not initialised")
	}
	if id == 0 {
		return false, fmt.Errorf("invalid generation id")
	}
	if result.Status != entity.GenerationStatusSucceeded && result.Status != entity.GenerationStatusFailed {
		return false, fmt.Errorf("non-terminal status: %s", result.Status)
	}

	completedAt := result.CompletedAt
	if completedAt.IsZero() {
		completedAt = time.Now().UTC()
	}

	tx := r.db.WithContext(ctx).
		Model(&entity.DbGeneration{}).
		Where("id = ? AND status = ?", id, entity.GenerationStatusPending).
		Updates(map[string]interface{}{
			"status":        result.Status,
			"output_kind":   result.OutputKind,
			"output_path":   result.OutputPath,
			"output_text":   result.OutputText,
			"error_message": result.ErrorMessage,
			"completed_at":  completedAt,
		})
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

// DeleteGeneration removes a generation record. Source images are untouched.
func (r *GormRepository) DeleteGeneration(ctx context.Context, id uint) error {
	if r == nil || r.db == nil {
		return fmt.Errorf("repository not initialised")
	}
	if id == 0 {
		return fmt.Errorf("invalid generation id")
	}
	return r.db.WithContext(ctx).Delete(&entity.DbGeneration{}, id).Error
}
