package metrics

import (
	"context"
)

// 下面的包级函数对未初始化指标做 nil 保护，调用方无需判空

func RecordMessageSent(tenant, kind string, duration float64) {
	if m := GetMetrics(); m != nil {
		m.RecordMessageSent(context.Background(), tenant, kind, duration)
	}
}

func RecordMessageFailed(tenant, kind, reason string, duration float64) {
	if m := GetMetrics(); m != nil {
		m.RecordMessageFailed(context.Background(), tenant, kind, reason, duration)
	}
}

func RecordDispatchSkipped(tenant string, count int64) {
	if m := GetMetrics(); m != nil {
		m.RecordDispatchSkipped(context.Background(), tenant, count)
	}
}

func RecordTriggerFired(tenant string) {
	if m := GetMetrics(); m != nil {
		m.RecordTriggerFired(context.Background(), tenant)
	}
}

func RecordTriggerSuppressed(tenant, reason string) {
	if m := GetMetrics(); m != nil {
		m.RecordTriggerSuppressed(context.Background(), tenant, reason)
	}
}

func RecordExpansion(kind string, count int64) {
	if m := GetMetrics(); m != nil {
		m.RecordExpansion(context.Background(), kind, count)
	}
}
