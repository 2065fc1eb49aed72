package log

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type phase string

func (p phase) String() string { return "phase:" + string(p) }

func TestToFields(t *testing.T) {
	boom := errors.New("boom")

	tests := []struct {
		name string
		in   []any
		keys []string
	}{
		{"empty", nil, nil},
		{"pairs", []any{"vehicle", "A", "seq", uint64(3), "enabled", true}, []string{"vehicle", "seq", "enabled"}},
		{"bare error", []any{boom}, []string{"error"}},
		{"zap field", []any{zap.String("x", "y"), "n", 1}, []string{"x", "n"}},
		{"dangling value", []any{"a", 1, "b"}, []string{"a", "arg#2"}},
		{"non-string key", []any{42, "v"}, []string{"key#0"}},
		{"named error", []any{"cause", boom}, []string{"cause"}},
		{"nil value", []any{"a", nil}, []string{"a"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fields := toFields(tt.in...)
			keys := make([]string, 0, len(fields))
			for _, f := range fields {
				keys = append(keys, f.Key)
			}
			if tt.keys == nil {
				assert.Empty(t, keys)
				return
			}
			assert.Equal(t, tt.keys, keys)
		})
	}
}

func TestToFieldTypes(t *testing.T) {
	assert.Equal(t, zapcore.StringType, toField("s", "x").Type)
	assert.Equal(t, zapcore.Uint64Type, toField("u", uint64(1)).Type)
	assert.Equal(t, zapcore.DurationType, toField("d", time.Second).Type)
	assert.Equal(t, zapcore.BinaryType, toField("b", []byte("x")).Type)
	assert.Equal(t, zapcore.StringerType, toField("p", phase("enabled")).Type)
	assert.Equal(t, zapcore.ErrorType, toField("e", errors.New("x")).Type)
}

func TestZapLoggerWritesFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := &zapLogger{core: zap.New(core)}

	l.WithName("manager").WithValues("vehicle", "A").Info("Attached", "factory", "Sim")
	l.Error(errors.New("disable failed"), "Adapter operation failed", "phase", phase("enabled"))

	entries := logs.AllUntimed()
	require.Len(t, entries, 2)

	assert.Equal(t, "manager", entries[0].LoggerName)
	assert.Equal(t, map[string]any{"vehicle": "A", "factory": "Sim"}, entries[0].ContextMap())

	assert.Equal(t, zapcore.ErrorLevel, entries[1].Level)
	ctx := entries[1].ContextMap()
	assert.Equal(t, "disable failed", ctx["error"])
	assert.Equal(t, "phase:enabled", ctx["phase"])
}
