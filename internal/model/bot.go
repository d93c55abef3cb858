package model

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
)

// MatchMode 触发词匹配方式枚举
type MatchMode string

const (
	MatchModeExact    MatchMode = "exact"    // 正文与触发词完全一致
	MatchModeIncludes MatchMode = "includes" // 触发词的词序列是正文词序列的连续子序列
	MatchModeAnywhere MatchMode = "anywhere" // 触发词的每个词都出现在正文中，顺序不限
)

// NurtureStep 培育序列的一步：初始响应之后的延迟跟进消息
type NurtureStep struct {
	Body        string     `json:"body"`
	Attachments JSONBArray `json:"attachments,omitempty"`
	After       int        `json:"after"`      // 第 N 个时间槽之后发送
	StartFrom   string     `json:"start_from"` // "15:04:05"
	EndAt       string     `json:"end_at"`
}

// NurtureSteps NurtureStep 列表的 JSONB 封装
type NurtureSteps []NurtureStep

func (n NurtureSteps) Value() (driver.Value, error) {
	if n == nil {
		return nil, nil
	}
	return json.Marshal(n)
}

func (n *NurtureSteps) Scan(value interface{}) error {
	if value == nil {
		*n = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return errors.New("failed to unmarshal nurture steps value")
	}
	return json.Unmarshal(bytes, n)
}

// BotRule 入站消息的触发-响应规则
type BotRule struct {
	BaseModel
	PublicID int64  `gorm:"uniqueIndex;not null" json:"public_id"`
	Tenant   string `gorm:"type:varchar(64);not null;index" json:"tenant"`
	Name     string `gorm:"type:varchar(128);not null" json:"name"`

	// 收件人过滤
	Include      StringList `gorm:"type:jsonb" json:"include,omitempty"`
	Exclude      StringList `gorm:"type:jsonb" json:"exclude,omitempty"`
	MatchSaved   bool       `gorm:"not null;default:true" json:"match_saved"`
	MatchUnsaved bool       `gorm:"not null;default:true" json:"match_unsaved"`

	// 触发词过滤，空列表表示无条件匹配
	Triggers      StringList `gorm:"type:jsonb" json:"triggers,omitempty"`
	MatchModeKind MatchMode  `gorm:"column:match_mode;type:varchar(16);not null;default:'includes'" json:"match_mode"`
	CaseSensitive bool       `gorm:"not null;default:false" json:"case_sensitive"`

	// 节流
	CooldownSeconds      int    `gorm:"not null;default:0" json:"cooldown_seconds"`
	ResponseDelaySeconds int    `gorm:"not null;default:0" json:"response_delay_seconds"`
	ActiveStart          string `gorm:"type:varchar(8)" json:"active_start"` // "15:04:05"，空表示全天
	ActiveEnd            string `gorm:"type:varchar(8)" json:"active_end"`

	AllowedCountryCodes StringList `gorm:"type:jsonb" json:"allowed_country_codes,omitempty"`

	// 响应载荷
	ResponseText  string       `gorm:"type:text" json:"response_text"`
	ResponseFiles JSONBArray   `gorm:"type:jsonb" json:"response_files,omitempty"`
	ResponseCards JSONBArray   `gorm:"type:jsonb" json:"response_cards,omitempty"`
	ResponsePolls JSONBArray   `gorm:"type:jsonb" json:"response_polls,omitempty"`
	ForwardTo     string       `gorm:"type:varchar(128)" json:"forward_to"`
	Nurture       NurtureSteps `gorm:"type:jsonb" json:"nurture,omitempty"`

	Active bool `gorm:"not null;default:true;index" json:"active"`
}

func (BotRule) TableName() string {
	return "bot_rules"
}
