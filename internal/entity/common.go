package entity

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// UintArray 以 JSON 格式存储有序的 ID 切片，顺序即业务顺序。
type UintArray []uint

// Value 实现 driver.Valuer 接口。
func (a UintArray) Value() (driver.Value, error) {
	if len(a) == 0 {
		return "[]", nil
	}
	raw, err := json.Marshal([]uint(a))
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

// Scan 实现 sql.Scanner 接口。
func (a *UintArray) Scan(value interface{}) error {
	if value == nil {
		*a = nil
		return nil
	}

	switch v := value.(type) {
	case []byte:
		if len(v) == 0 {
			*a = []uint{}
			return nil
		}
		return json.Unmarshal(v, (*[]uint)(a))
	case string:
		if v == "" {
			*a = []uint{}
			return nil
		}
		return json.Unmarshal([]byte(v), (*[]uint)(a))
	default:
		return fmt.Errorf("unsupported type for UintArray: %T", value)
	}
}

// ToSlice 返回底层切片的副本。
func (a UintArray) ToSlice() []uint {
	if len(a) == 0 {
		return []uint{}
	}
	out := make([]uint, len(a))
	copy(out, a)
	return out
}

// Meta 包含分页元数据。
type Meta struct {
	Page     int64 `json:"page"`
	PageSize int64 `json:"page_size"`
	Total    int64 `json:"total"`
}

// BaseParams 包含通用的分页参数。
type BaseParams struct {
	PageSize int64 `json:"page_size" form:"page_size" query:"page_size"`
	Page     int64 `json:"page" form:"page" query:"page"`
}
