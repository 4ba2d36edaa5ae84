package middleware

import (
	"context"

	"github.com/ceyewan/buzzlink/observability"
)

const (
	// TraceIDKey Context 中 trace_id 的键
	TraceIDKey = "trace_id"
	// TraceIDHeader HTTP header 中 trace_id 的键
	TraceIDHeader = "X-Trace-ID"
)

// GetTraceID 从 Context 中获取 TraceID（优先使用已注入的 traceID）
// 降级策略：
// 1. 尝试从 Context 中获取已有的 traceID
// 2. 如果没有，从 OTEL 当前 Span 获取
func GetTraceID(ctx context.Context) string {
	if traceID, ok := ctx.Value(TraceIDKey).(string); ok && traceID != "" {
		return traceID
	}
	return observability.GetTraceID(ctx)
}
