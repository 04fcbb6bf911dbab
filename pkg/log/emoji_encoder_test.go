package log

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestStatusEmoji(t *testing.T) {
	tests := []struct {
		status int64
		want   string
	}{
		{201, "🟢"},
		{302, "🟡"},
		{402, "🟠"},
		{503, "🔴"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusEmoji(tt.status))
	}
}

func TestEmojiConsoleEncoder_EncodeEntry(t *testing.T) {
	enc := NewEmojiConsoleEncoder(zapcore.EncoderConfig{MessageKey: "msg"})

	tests := []struct {
		name   string
		level  zapcore.Level
		fields []zapcore.Field
		want   string
	}{
		{"status wins over type", zapcore.InfoLevel, []zapcore.Field{zap.String("type", "request"), zap.Int("status", 503)}, "🔴 hello"},
		{"type mapping", zapcore.InfoLevel, []zapcore.Field{zap.String("type", "saga")}, "🧾 hello"},
		{"breaker type", zapcore.WarnLevel, []zapcore.Field{zap.String("type", "breaker")}, "🔌 hello"},
		{"unknown type falls back to level", zapcore.WarnLevel, []zapcore.Field{zap.String("type", "mystery")}, "⚠️ hello"},
		{"error level", zapcore.ErrorLevel, nil, "❌ hello"},
		{"debug level", zapcore.DebugLevel, nil, "🐛 hello"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf, err := enc.Clone().EncodeEntry(zapcore.Entry{Level: tt.level, Message: "hello"}, tt.fields)
			require.NoError(t, err)
			assert.Contains(t, buf.String(), tt.want)
		})
	}
}
