package sql

import (
	"context"
	"fmt"

	"github.com/CreateIntelligens/banana-art/internal/entity"
	"gorm.io/gorm"
)

// CreateTemplate inserts a new template.
func (r *GormRepository) CreateTemplate(ctx context.Context, template *entity.DbTemplate) error {
	if r == nil || r.db == nil {
		return fmt.Errorf("repository not initialised")
	}
	if template == nil {
		return fmt.Errorf("template is nil")
	}
	return r.db.WithContext(ctx).Create(template).Error
}

// ReplaceTemplate overwrites name, prompt, image list, and aspect ratio in a
// single UPDATE so the template is never observable half-updated.
func (r *GormRepository) ReplaceTemplate(ctx context.Context, id uint, replace entity.TemplateReplace) error {
	if r == nil || r.db == nil {
		return fmt.Errorf("repository not initialised")
	}
	if id == 0 {
		return fmt.Errorf("invalid template id")
	}
	imageIDs := replace.ImageIDs
	if imageIDs == nil {
		imageIDs = entity.UintArray{}
	}
	tx := r.db.WithContext(ctx).
		Model(&entity.DbTemplate{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"name":         replace.Name,
			"prompt":       replace.Prompt,
			"image_ids":    imageIDs,
			"aspect_ratio": replace.AspectRatio,
		})
	if tx.Error != nil {
		return tx.Error
	}
	// Updates 对不存在的 id 静默匹配零行，这里显式报 not found
	if tx.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// GetTemplate loads a single template by id.
func (r *GormRepository) GetTemplate(ctx context.Context, id uint) (*entity.DbTemplate, error) {
	if r == nil || r.db == nil {
		return nil, fmt.Errorf("repository not initialised")
	}
	var template entity.DbTemplate
	if err := r.db.WithContext(ctx).First(&template, id).Error; err != nil {
		return nil, err
	}
	return &template, nil
}

// ListTemplates retrieves all templates, newest first.
func (r *GormRepository) ListTemplates(ctx context.Context) ([]entity.DbTemplate, error) {
	if r == nil || r.db == nil {
		return nil, fmt.Errorf("repository not initialised")
	}
	var templates []entity.DbTemplate
	if err := r.db.WithContext(ctx).Order("created_at DESC, id DESC").Find(&templates).Error; err != nil {
		return nil, err
	}
	return templates, nil
}

// DeleteTemplate removes a template record.
func (r *GormRepository) DeleteTemplate(ctx context.Context, id uint) error {
	if r == nil || r.db == nil {
		return fmt.Errorf("repository not initialised")
	}
	if id == 0 {
		return fmt.Errorf("invalid template id")
	}
	tx := r.db.WithContext(ctx).Delete(&entity.DbTemplate{}, id)
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
