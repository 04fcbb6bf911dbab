package log

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// contextKey 是用于存储 RequestContext 的私有 key 类型
type contextKey string

const requestContextKey contextKey = "ordersaga_request_context"

// RequestContext 存储一次 saga 请求的追踪信息
// 中间件注入 RequestID，订单编排过程中补充 OrderID / CustomerID
type RequestContext struct {
	RequestID  string
	OrderID    string
	CustomerID string
	StartTime  time.Time
}

// GenerateRequestID returns a short random request id (first uuid group).
func GenerateRequestID() string {
	return uuid.NewString()[:8]
}

// WithRequestContext 将 RequestContext 注入到 Context 中
func WithRequestContext(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestContextKey, &RequestContext{
		RequestID: requestID,
		StartTime: time.Now(),
	})
}

// GetRequestContext 从 Context 中提取 RequestContext
// 如果不存在，返回一个默认的空 RequestContext，避免调用方做 nil 检查
func GetRequestContext(ctx context.Context) *RequestContext {
	if ctx != nil {
		if reqCtx, ok := ctx.Value(requestContextKey).(*RequestContext); ok {
			return reqCtx
		}
	}
	return &RequestContext{RequestID: "unknown"}
}

// GetRequestID 从 Context 中提取 Request ID
func GetRequestID(ctx context.Context) string {
	return GetRequestContext(ctx).RequestID
}

// BindOrder records the order being orchestrated on the request context.
// It is a no-op when ctx carries no RequestContext.
func BindOrder(ctx context.Context, orderID, customerID string) {
	if ctx == nil {
		return
	}
	if reqCtx, ok := ctx.Value(requestContextKey).(*RequestContext); ok {
		reqCtx.OrderID = orderID
		reqCtx.CustomerID = customerID
	}
}

// GetElapsedTime 获取请求已执行时间（毫秒）
func GetElapsedTime(ctx context.Context) int64 {
	reqCtx := GetRequestContext(ctx)
	if reqCtx.StartTime.IsZero() {
		return 0
	}
	return time.Since(reqCtx.StartTime).Milliseconds()
}
