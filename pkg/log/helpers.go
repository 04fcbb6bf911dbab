package log

import (
	"context"
	"fmt"

	"github.com/go-kratos/kratos/v2/log"
)

// slowRequestThresholdMs 超过该耗时的 HTTP 请求额外输出慢请求告警
const slowRequestThresholdMs = 1000

// LogHelper 扩展 Kratos log.Helper，提供便捷的日志方法
// 通过在日志调用时自动添加 "type" 字段，触发 EmojiConsoleEncoder 的表情符号映射
type LogHelper struct {
	*log.Helper
}

// NewLogHelper 创建增强的日志辅助器
func NewLogHelper(logger log.Logger) *LogHelper {
	return &LogHelper{
		Helper: log.NewHelper(logger),
	}
}

func withType(msg, logType string, kvs []interface{}) []interface{} {
	all := make([]interface{}, 0, len(kvs)+4)
	all = append(all, "msg", msg)
	all = append(all, kvs...)
	return append(all, "type", logType)
}

// Startup 记录启动相关日志（表情符号: 🚀）
func (h *LogHelper) Startup(msg string, kvs ...interface{}) {
	h.Infow(withType(msg, "startup", kvs)...)
}

// Saga 记录订单编排步骤（表情符号: 🧾）
func (h *LogHelper) Saga(ctx context.Context, step string, kvs ...interface{}) {
	reqCtx := GetRequestContext(ctx)
	all := append([]interface{}{
		"request_id", reqCtx.RequestID,
		"order_id", reqCtx.OrderID,
		"customer_id", reqCtx.CustomerID,
		"step", step,
	}, kvs...)
	h.Infow(withType(fmt.Sprintf("[%s] saga %s", reqCtx.RequestID, step), "saga", all)...)
}

// Transition 记录订单状态迁移（表情符号: 🔀）
func (h *LogHelper) Transition(orderID, from, to, reason string) {
	msg := fmt.Sprintf("Order %s: %s -> %s", orderID, from, to)
	h.Infow(withType(msg, "transition", []interface{}{
		"order_id", orderID,
		"from", from,
		"to", to,
		"reason", reason,
	})...)
}

// Breaker 记录熔断器状态变化（表情符号: 🔌）
// 进入 open 使用 Warn 级别，其余为 Info
func (h *LogHelper) Breaker(target, from, to string, kvs ...interface{}) {
	msg := fmt.Sprintf("Circuit breaker %s: %s -> %s", target, from, to)
	all := withType(msg, "breaker", append([]interface{}{"target", target, "from", from, "to", to}, kvs...))
	if to == "open" {
		h.Warnw(all...)
		return
	}
	h.Infow(all...)
}

// Event 记录事件发布 / 消费（表情符号: 📨）
func (h *LogHelper) Event(channel, eventType string, kvs ...interface{}) {
	msg := fmt.Sprintf("Event %s on %s", eventType, channel)
	h.Debugw(withType(msg, "event", append([]interface{}{
		"channel", channel,
		"event_type", eventType,
	}, kvs...))...)
}

// Reactor 记录 reactor 处理结果（表情符号: ⚙️）
func (h *LogHelper) Reactor(reactor, eventType, orderID string, kvs ...interface{}) {
	msg := fmt.Sprintf("%s handled %s for order %s", reactor, eventType, orderID)
	h.Infow(withType(msg, "reactor", append([]interface{}{
		"reactor", reactor,
		"event_type", eventType,
		"order_id", orderID,
	}, kvs...))...)
}

// Database 记录数据库操作日志（表情符号: 💾）
func (h *LogHelper) Database(msg string, kvs ...interface{}) {
	h.Debugw(withType(msg, "database", kvs)...)
}

// Redis 记录 Redis 操作日志（表情符号: 📦）
func (h *LogHelper) Redis(msg string, kvs ...interface{}) {
	h.Debugw(withType(msg, "redis", kvs)...)
}

// Scheduler 记录定时任务日志（表情符号: 🎯）
func (h *LogHelper) Scheduler(msg string, kvs ...interface{}) {
	h.Infow(withType(msg, "scheduler", kvs)...)
}

// RequestWithContext 记录带 Context 的 HTTP 请求日志
// 自动从 Context 提取 Request ID 并检测慢请求
func (h *LogHelper) RequestWithContext(ctx context.Context, method, url string, status int, durationMs int64, kvs ...interface{}) {
	reqCtx := GetRequestContext(ctx)

	msg := fmt.Sprintf("%s %s - %d (%dms) | RequestID: %s", method, url, status, durationMs, reqCtx.RequestID)
	all := append([]interface{}{
		"request_id", reqCtx.RequestID,
		"order_id", reqCtx.OrderID,
		"method", method,
		"url", url,
		"status", status,
		"duration_ms", durationMs,
	}, kvs...)
	h.Infow(withType(msg, "request", all)...)

	if durationMs > slowRequestThresholdMs {
		h.Warnw(withType(
			fmt.Sprintf("[%s] Slow request detected | %s %s | %dms (threshold: %dms)",
				reqCtx.RequestID, method, url, durationMs, slowRequestThresholdMs),
			"slow_request",
			[]interface{}{"request_id", reqCtx.RequestID, "duration_ms", durationMs},
		)...)
	}
}
