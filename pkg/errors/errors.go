package errors

import "fmt"

func (d Definition) Error() string {
	return d.Message
}

// Definition 表示业务错误码及默认信息。
type Definition struct {
	Code    string
	Message string
}

// 活动模块错误。
var (
	CampaignAlreadyExists = Definition{Code: "CAMPAIGN_ALREADY_EXISTS", Message: "Campaign name already exists"}
	CampaignNotFound      = Definition{Code: "CAMPAIGN_NOT_FOUND", Message: "Campaign not found"}
	CampaignEmpty         = Definition{Code: "CAMPAIGN_EMPTY", Message: "Campaign has no messages"}
	CampaignNotPaused     = Definition{Code: "CAMPAIGN_NOT_PAUSED", Message: "Campaign is not paused"}
)

// 周期计划模块错误。
var (
	ScheduleNotFound        = Definition{Code: "SCHEDULE_NOT_FOUND", Message: "Recurring schedule not found"}
	ScheduleInactive        = Definition{Code: "SCHEDULE_INACTIVE", Message: "Recurring schedule is inactive"}
	ScheduleNoRecipients    = Definition{Code: "SCHEDULE_NO_RECIPIENTS", Message: "Recurring schedule has no recipients"}
	ScheduleWindowInvalid   = Definition{Code: "SCHEDULE_WINDOW_INVALID", Message: "Recurring schedule window invalid"}
	ScheduleVariablesBroken = Definition{Code: "SCHEDULE_VARIABLES_BROKEN", Message: "Recurring schedule variables malformed"}
)

// 触发规则模块错误。
var (
	BotRuleNotFound = Definition{Code: "BOT_RULE_NOT_FOUND", Message: "Bot rule not found"}
)

// 异步任务模块错误。
var (
	TaskNotFound = Definition{Code: "TASK_NOT_FOUND", Message: "Expansion task not found"}
)

// 通用错误。
var (
	Unauthorized    = Definition{Code: "UNAUTHORIZED", Message: "Unauthorized"}
	InvalidRequest  = Definition{Code: "INVALID_REQUEST", Message: "Invalid request"}
	InvalidTenant   = Definition{Code: "INVALID_TENANT", Message: "Invalid tenant"}
	TooManyRequests = Definition{Code: "TOO_MANY_REQUESTS", Message: "Too many requests"}
)

// Lookup 提供错误码查询能力。
var Lookup = map[string]Definition{
	CampaignAlreadyExists.Code:   CampaignAlreadyExists,
	CampaignNotFound.Code:        CampaignNotFound,
	CampaignEmpty.Code:           CampaignEmpty,
	CampaignNotPaused.Code:       CampaignNotPaused,
	ScheduleNotFound.Code:        ScheduleNotFound,
	ScheduleInactive.Code:        ScheduleInactive,
	ScheduleNoRecipients.Code:    ScheduleNoRecipients,
	ScheduleWindowInvalid.Code:   ScheduleWindowInvalid,
	ScheduleVariablesBroken.Code: ScheduleVariablesBroken,
	BotRuleNotFound.Code:         BotRuleNotFound,
	TaskNotFound.Code:            TaskNotFound,
	Unauthorized.Code:            Unauthorized,
	InvalidRequest.Code:          InvalidRequest,
	InvalidTenant.Code:           InvalidTenant,
	TooManyRequests.Code:         TooManyRequests,
}

// Get 根据错误码返回 Definition，若不存在则返回空 Definition。
func Get(code string) Definition {
	if def, ok := Lookup[code]; ok {
		return def
	}
	return Definition{Code: code, Message: "Unexpected error"}
}

// SkipMessageError 表示消费者应当 Ack 并跳过这条 MQ 消息，而不是重投。
type SkipMessageError struct {
	Reason string
}

func (e *SkipMessageError) Error() string {
	return fmt.Sprintf("message skipped: %s", e.Reason)
}

// IsSkip 判断错误是否为跳过语义。
func IsSkip(err error) bool {
	_, ok := err.(*SkipMessageError)
	return ok
}
