package model

// RecurringSchedule 周期计划：在指定日期按每日限额向名册循环发送
// schedulingIndex 是环形游标，每次触发只前进 dailyCount（对名册长度取模）
type RecurringSchedule struct {
	BaseModel
	PublicID        int64      `gorm:"uniqueIndex;not null" json:"public_id"`
	Tenant          string     `gorm:"type:varchar(64);not null;index" json:"tenant"`
	Name            string     `gorm:"type:varchar(128);not null" json:"name"`
	Recipients      StringList `gorm:"type:jsonb;not null" json:"recipients"`
	SchedulingIndex int        `gorm:"not null;default:0" json:"scheduling_index"`
	Body            string     `gorm:"type:text;not null" json:"body"` // 模板，{var} 占位
	Attachments     JSONBArray `gorm:"type:jsonb" json:"attachments,omitempty"`
	Dates           StringList `gorm:"type:jsonb;not null" json:"dates"` // "2006-01-02" 列表
	DailyCount      int        `gorm:"not null" json:"daily_count"`
	StartTime       string     `gorm:"type:varchar(8);not null" json:"start_time"` // "15:04:05"
	EndTime         string     `gorm:"type:varchar(8);not null" json:"end_time"`

	// 每个收件人的模板变量，key 是收件人地址，value 是变量名到取值的映射
	Variables JSONB `gorm:"type:jsonb" json:"variables,omitempty"`

	Active bool `gorm:"not null;default:true;index" json:"active"`
}

func (RecurringSchedule) TableName() string {
	return "recurring_schedules"
}

// FiresOn 判断计划是否在指定日期触发
func (s *RecurringSchedule) FiresOn(date string) bool {
	return s.Dates.Contains(date)
}
