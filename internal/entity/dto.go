package entity

import "time"

// CreateGenerationRequest 是创建生成任务的请求体。
// TemplateID 非空时走模板路径：模板的提示词和画幅比例生效，
// 请求自带的 Prompt 和 AspectRatio 被忽略。
type CreateGenerationRequest struct {
	Prompt      string `json:"prompt"`
	ImageIDs    []uint `json:"image_ids"`
	AspectRatio string `json:"aspect_ratio"`
	TemplateID  *uint  `json:"template_id"`
}

// TemplateUpsertRequest 创建和更新模板共用，更新是整体替换。
type TemplateUpsertRequest struct {
	Name        string `json:"name"`
	Prompt      string `json:"prompt"`
	ImageIDs    []uint `json:"image_ids"`
	AspectRatio string `json:"aspect_ratio"`
}

// TemplateReplace 是模板的原子替换载荷，四个字段一次写入。
type TemplateReplace struct {
	Name        string
	Prompt      string
	ImageIDs    UintArray
	AspectRatio string
}

type ImageItem struct {
	ID        uint      `json:"id"`
	Filename  string    `json:"filename"`
	Path      string    `json:"path"`
	URL       string    `json:"url"`
	CreatedAt time.Time `json:"created_at"`
}

type ImageListResponse struct {
	Images []ImageItem `json:"images"`
	Meta   *Meta       `json:"meta"`
}

type TemplateItem struct {
	ID          uint      `json:"id"`
	Name        string    `json:"name"`
	Prompt      string    `json:"prompt"`
	ImageIDs    []uint    `json:"image_ids"`
	AspectRatio string    `json:"aspect_ratio"`
	HasImages   bool      `json:"has_images"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type TemplateListResponse struct {
	Templates []TemplateItem `json:"templates"`
}

// GenerationOutput 是任务产物的显式编码，调用方不需要嗅探路径。
// 任务未完成时整个字段为 null。
type GenerationOutput struct {
	Kind  string `json:"kind"`
	Path  string `json:"path,omitempty"`
	URL   string `json:"url,omitempty"`
	Text  string `json:"text,omitempty"`
	Error string `json:"error,omitempty"`
}

type GenerationItem struct {
	ID             uint              `json:"id"`
	Prompt         string            `json:"prompt"`
	TemplateID     *uint             `json:"template_id"`
	SourceImageIDs []uint            `json:"source_image_ids"`
	AspectRatio    string            `json:"aspect_ratio"`
	Status         string            `json:"status"`
	Output         *GenerationOutput `json:"output"`
	CreatedAt      time.Time         `json:"created_at"`
	StartedAt      *time.Time        `json:"started_at"`
	CompletedAt    *time.Time        `json:"completed_at"`
}

type GenerationListResponse struct {
	Generations []GenerationItem `json:"generations"`
	Meta        *Meta            `json:"meta"`
}

type ImageQuery struct {
	BaseParams
}

type GenerationQuery struct {
	BaseParams
	Status string `json:"status" form:"status" query:"status"`
}
