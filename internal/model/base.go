package model

import (
	"time"

	"gorm.io/gorm"
)

// BaseModel 各业务表的公共列。ID 由 snowflake 发号，应用侧赋值，
// 删除走软删除，报表查询仍能看到历史记录
type BaseModel struct {
	ID        int64          `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}
