package model

// CampaignStatus 活动状态枚举
type CampaignStatus string

const (
	CampaignStatusActive    CampaignStatus = "active"
	CampaignStatusPaused    CampaignStatus = "paused"
	CampaignStatusCompleted CampaignStatus = "completed"
)

// Campaign 一次性群发活动，拥有一组共享同一节奏计划的消息
// 同一租户内 name 唯一，防止同一活动被重复提交
type Campaign struct {
	BaseModel
	PublicID int64          `gorm:"uniqueIndex;not null" json:"public_id"`
	Tenant   string         `gorm:"type:varchar(64);not null;uniqueIndex:uniq_campaigns_tenant_name,priority:1" json:"tenant"`
	Name     string         `gorm:"type:varchar(128);not null;uniqueIndex:uniq_campaigns_tenant_name,priority:2" json:"name"`
	Status   CampaignStatus `gorm:"type:varchar(16);not null;default:'active';index" json:"status"`

	// 批次配置，resume 时以同样的参数重建生成器
	MinDelaySeconds   int    `gorm:"not null;default:2" json:"min_delay_seconds"`
	MaxDelaySeconds   int    `gorm:"not null;default:10" json:"max_delay_seconds"`
	BatchSize         int    `gorm:"not null;default:0" json:"batch_size"`
	BatchDelaySeconds int    `gorm:"not null;default:0" json:"batch_delay_seconds"`
	StartDate         string `gorm:"type:varchar(10)" json:"start_date"` // "2006-01-02"，空表示当天
	StartTime         string `gorm:"type:varchar(8)" json:"start_time"`  // "15:04:05"
	EndTime           string `gorm:"type:varchar(8)" json:"end_time"`

	MessageCount int `gorm:"not null;default:0" json:"message_count"`
}

func (Campaign) TableName() string {
	return "campaigns"
}

// Batch 返回活动的批次参数，resume 时用它重建生成器
func (c *Campaign) Batch() BatchConfig {
	return BatchConfig{
		MinDelaySeconds:   c.MinDelaySeconds,
		MaxDelaySeconds:   c.MaxDelaySeconds,
		BatchSize:         c.BatchSize,
		BatchDelaySeconds: c.BatchDelaySeconds,
		StartDate:         c.StartDate,
		StartTime:         c.StartTime,
		EndTime:           c.EndTime,
	}
}

// ApplyBatch 将批次参数写回活动字段
func (c *Campaign) ApplyBatch(b BatchConfig) {
	c.MinDelaySeconds = b.MinDelaySeconds
	c.MaxDelaySeconds = b.MaxDelaySeconds
	c.BatchSize = b.BatchSize
	c.BatchDelaySeconds = b.BatchDelaySeconds
	c.StartDate = b.StartDate
	c.StartTime = b.StartTime
	c.EndTime = b.EndTime
}
