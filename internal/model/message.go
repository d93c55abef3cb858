package model

import "time"

// MessageStatus 消息状态枚举
type MessageStatus string

const (
	MessageStatusPending MessageStatus = "pending" // 待发送
	MessageStatusSent    MessageStatus = "sent"    // 已发送
	MessageStatusFailed  MessageStatus = "failed"  // 发送失败，不自动重试
	MessageStatusPaused  MessageStatus = "paused"  // 随活动暂停
)

// ScheduledByKind 消息归属方类型枚举
type ScheduledByKind string

const (
	ScheduledByCampaign  ScheduledByKind = "campaign"
	ScheduledByRecurring ScheduledByKind = "repetitive_scheduler"
	ScheduledByBot       ScheduledByKind = "bot"
)

// Message 单条待发消息，sendAt 是派发的唯一排序依据
type Message struct {
	BaseModel
	PublicID     int64           `gorm:"uniqueIndex;not null" json:"public_id"`
	Tenant       string          `gorm:"type:varchar(64);not null;index:idx_messages_due,priority:1" json:"tenant"`
	Recipient    string          `gorm:"type:varchar(128);not null" json:"recipient"`
	Body         string          `gorm:"type:text" json:"body"`
	Attachments  JSONBArray      `gorm:"type:jsonb" json:"attachments,omitempty"`
	ContactCards JSONBArray      `gorm:"type:jsonb" json:"contact_cards,omitempty"`
	Polls        JSONBArray      `gorm:"type:jsonb" json:"polls,omitempty"`
	Status       MessageStatus   `gorm:"type:varchar(16);not null;default:'pending';index:idx_messages_due,priority:2" json:"status"`
	SendAt       time.Time       `gorm:"type:timestamptz;not null;index:idx_messages_due,priority:3" json:"send_at"`
	OwnerKind    ScheduledByKind `gorm:"type:varchar(32);not null;index:idx_messages_owner,priority:1" json:"owner_kind"`
	OwnerID      int64           `gorm:"not null;index:idx_messages_owner,priority:2" json:"owner_id"`
	ProcessedAt  *time.Time      `gorm:"type:timestamptz" json:"processed_at,omitempty"`
	FailReason   *string         `gorm:"type:varchar(255)" json:"fail_reason,omitempty"`
}

func (Message) TableName() string {
	return "messages"
}

// Terminal 报告消息是否已进入终态，终态后不再变更
func (m *Message) Terminal() bool {
	return m.Status == MessageStatusSent || m.Status == MessageStatusFailed
}
