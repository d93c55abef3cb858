package model

// BatchConfig 活动批次参数，API、MQ 和生成器之间的公共形状
type BatchConfig struct {
	MinDelaySeconds   int    `json:"min_delay_seconds"`
	MaxDelaySeconds   int    `json:"max_delay_seconds"`
	BatchSize         int    `json:"batch_size"`
	BatchDelaySeconds int    `json:"batch_delay_seconds"`
	StartDate         string `json:"start_date"`
	StartTime         string `json:"start_time"`
	EndTime           string `json:"end_time"`
}

// CampaignItem 活动中的单条消息输入
type CampaignItem struct {
	Recipient    string     `json:"recipient"`
	Body         string     `json:"body"`
	Attachments  JSONBArray `json:"attachments,omitempty"`
	ContactCards JSONBArray `json:"contact_cards,omitempty"`
	Polls        JSONBArray `json:"polls,omitempty"`
}

// CampaignExpandMessage 异步活动展开任务消息
type CampaignExpandMessage struct {
	MessageID   string         `json:"message_id"` // 消息唯一ID，用于幂等性检查
	TaskID      string         `json:"task_id"`
	Tenant      string         `json:"tenant"`
	Name        string         `json:"name"`
	Batch       BatchConfig    `json:"batch"`
	Items       []CampaignItem `json:"items"`
	ScheduledAt string         `json:"scheduled_at"`
}

// RecurringFireMessage 周期计划当日展开消息
type RecurringFireMessage struct {
	MessageID   string `json:"message_id"` // 消息唯一ID，用于幂等性检查
	TaskID      string `json:"task_id,omitempty"`
	ScheduleID  int64  `json:"schedule_id"`
	Date        string `json:"date"` // "2006-01-02"
	Force       bool   `json:"force"`
	ScheduledAt string `json:"scheduled_at"`
}

// EventMessage 事件消息（用于事件总线）
type EventMessage struct {
	Payload    map[string]interface{} `json:"payload"`
	EventKey   string                 `json:"event_key"`
	EventType  string                 `json:"event_type"`
	OccurredAt string                 `json:"occurred_at"`
}
