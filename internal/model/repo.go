package model

import (
	"context"
	"time"

	"github.com/CreateIntelligens/banana-art/internal/entity"
)

// Repository 定义数据库操作接口
type Repository interface {
	// 上传图片
	CreateImage(ctx context.Context, image *entity.DbImage) error
	GetImage(ctx context.Context, id uint) (*entity.DbImage, error)
	FindImagesByIDs(ctx context.Context, ids []uint) ([]entity.DbImage, error)
	ListImages(ctx context.Context, params *entity.ImageQuery) ([]entity.DbImage, *entity.Meta, error)
	DeleteImage(ctx context.Context, id uint) error

	// 模板。ReplaceTemplate 和 DeleteTemplate 对不存在的 id 返回
	// gorm.ErrRecordNotFound。
	CreateTemplate(ctx context.Context, template *entity.DbTemplate) error
	ReplaceTemplate(ctx context.Context, id uint, replace entity.TemplateReplace) error
	GetTemplate(ctx context.Context, id uint) (*entity.DbTemplate, error)
	ListTemplates(ctx context.Context) ([]entity.DbTemplate, error)
	DeleteTemplate(ctx context.Context, id uint) error

	// 生成任务
	CreateGeneration(ctx context.Context, generation *entity.DbGeneration) error
	GetGeneration(ctx context.Context, id uint) (*entity.DbGeneration, error)
	ListGenerations(ctx context.Context, params *entity.GenerationQuery) ([]entity.DbGeneration, *entity.Meta, error)
	MarkGenerationStarted(ctx context.Context, id uint, at time.Time) error
	// CompleteGeneration 只会命中仍处于 pending 的记录；记录已删除或已是
	// 终态时返回 false，调用方据此丢弃结果。
	CompleteGeneration(ctx context.Context, id uint, result entity.GenerationResult) (bool, error)
	DeleteGeneration(ctx context.Context, id uint) error
}
