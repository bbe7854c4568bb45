package sql

import (
	"context"
	"fmt"

	"github.com/CreateIntelligens/banana-art/internal/entity"
)

// CreateImage inserts a new uploaded image record.
func (r *GormRepository) CreateImage(ctx context.Context, image *entity.DbImage) error {
	if r == nil || r.db == nil {
		return fmt.Errorf("repository not initialised")
	}
	if image == nil {
		return fmt.Errorf("image is nil")
	}
	return r.db.WithContext(ctx).Create(image).Error
}

// GetImage loads a single uploaded image by id.
func (r *GormRepository) GetImage(ctx context.Context, id uint) (*entity.DbImage, error) {
	if r == nil || r.db == nil {
		return nil, fmt.Errorf("repository not initialised")
	}
	var image entity.DbImage
	if err := r.db.WithContext(ctx).First(&image, id).Error; err != nil {
		return nil, err
	}
	return &image, nil
}

// FindImagesByIDs loads the records for the given ids. Missing ids are simply
// absent from the result; callers compare lengths to detect them.
func (r *GormRepository) FindImagesByIDs(ctx context.Context, ids []uint) ([]entity.DbImage, error) {
	if r == nil || r.db == nil {
		return nil, fmt.Errorf("repository not initialised")
	}
	if len(ids) == 0 {
		return []entity.DbImage{}, nil
	}
	var images []entity.DbImage
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&images).Error; err != nil {
		return nil, err
	}
	return images, nil
}

// ListImages retrieves paginated uploaded images, newest first.
func (r *GormRepository) ListImages(ctx context.Context, params *entity.ImageQuery) ([]entity.DbImage, *entity.Meta, error) {
	if r == nil || r.db == nil {
		return nil, nil, fmt.Errorf("repository not initialised")
	}

	query := r.db.WithContext(ctx).Model(&entity.DbImage{})

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

	var images []entity.DbImage
	if err := query.Order("created_at DESC, id DESC").Offset(offset).Limit(pageSize).Find(&images).Error; err != nil {
		return nil, nil, err
	}

	meta := r.calculatePagination(totalCount, page, pageSize)
	return images, meta, nil
}

// DeleteImage removes an uploaded image record. Generations that already
// reference the id keep their frozen source list.
func (r *GormRepository) DeleteImage(ctx context.Context, id uint) error {
	if r == nil || r.db == nil {
		return fmt.Errorf("repository not initialised")
	}
	if id == 0 {
		return fmt.Errorf("invalid image id")
	}
	return r.db.WithContext(ctx).Delete(&entity.DbImage{}, id).Error
}
