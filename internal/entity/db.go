package entity

import "time"

// 生成任务状态机：pending -> succeeded | failed，终态不可回退。
const (
	GenerationStatusPending   = "pending"
	GenerationStatusSucceeded = "succeeded"
	GenerationStatusFailed    = "failed"
)

// 成功终态的产物类别。
const (
	OutputKindImage = "image"
	OutputKindText  = "text"
)

// DbImage 是用户上传的参考图元数据，文件本体由 storage 层保管。
type DbImage struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	Filename   string `gorm:"type:varchar(255)" json:"filename"`
	StoredPath string `gorm:"column:stored_path;type:text;not null" json:"stored_path"`
}

// TableName 指定表名
func (DbImage) TableName() string {
	return "uploaded_images"
}

// DbTemplate 是可复用的生成模板：提示词 + 有序参考图 + 画幅比例。
type DbTemplate struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Name        string    `gorm:"type:varchar(255);not null" json:"name"`
	Prompt      string    `gorm:"type:text;not null" json:"prompt"`
	ImageIDs    UintArray `gorm:"column:image_ids;type:json" json:"image_ids"`
	AspectRatio string    `gorm:"column:aspect_ratio;type:varchar(16)" json:"aspect_ratio"`
}

// TableName 指定表名
func (DbTemplate) TableName() string {
	return "templates"
}

// DbGeneration 是一次生成任务。SourceImageIDs 在创建时解析并冻结，
// 之后删除图片也不会改写这份列表。
type DbGeneration struct {
	ID          uint       `gorm:"primarykey" json:"id"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `gorm:"column:started_at" json:"started_at"`
	CompletedAt *time.Time `gorm:"column:completed_at" json:"completed_at"`

	Prompt         string    `gorm:"type:text" json:"prompt"`
	TemplateID     *uint     `gorm:"column:template_id;index" json:"template_id"`
	SourceImageIDs UintArray `gorm:"column:source_image_ids;type:json" json:"source_image_ids"`
	AspectRatio    string    `gorm:"column:aspect_ratio;type:varchar(16)" json:"aspect_ratio"`

	Status string `gorm:"type:varchar(16);index;not null" json:"status"`

	// 终态三选一：OutputKind=image 时 OutputPath 有值，
	// OutputKind=text 时 OutputText 有值，失败时 ErrorMessage 有值。
	OutputKind   string `gorm:"column:output_kind;type:varchar(16)" json:"output_kind"`
	OutputPath   string `gorm:"column:output_path;type:text" json:"output_path"`
	OutputText   string `gorm:"column:output_text;type:text" json:"output_text"`
	ErrorMessage string `gorm:"column:error_message;type:text" json:"error_message"`
}

// TableName 指定表名
func (DbGeneration) TableName() string {
	return "generations"
}

// GenerationResult 描述一次终态写入的全部字段。
type GenerationResult struct {
	Status       string
	OutputKind   string
	OutputPath   string
	OutputText   string
	ErrorMessage string
	CompletedAt  time.Time
}
