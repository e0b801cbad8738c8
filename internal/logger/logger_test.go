package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
)

func newBufferLogger(buf *bytes.Buffer) *Logger {
	opts := DefaultOptions()
	opts.Output = buf
	opts.Level = "debug"
	return New(opts)
}

func TestEntryFieldsReachContextLogger(t *testing.T) {
	var buf bytes.Buffer
	ctx := newBufferLogger(&buf).WithContext(context.Background())
	ctx = SetComponent(SetRequestID(ctx, "req-1"), "api")

	With(Fields{"views": 10}).WithAttempt(2).WithStatus("failed").Warn(ctx, "Fetch failed: %s", "timeout")

	var line map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	want := map[string]interface{}{
		FieldRequestID: "req-1",
		FieldComponent: "api",
		FieldAttempt:   float64(2),
		FieldStatus:    "failed",
		"views":        float64(10),
		"service":      "trackr",
		"level":        "warning",
		"message":      "Fetch failed: timeout",
	}
	for k, v := range want {
		if line[k] != v {
			t.Errorf("%s = %v, want %v", k, line[k], v)
		}
	}
}

func TestFromContextFallsBackToDefault(t *testing.T) {
	if FromContext(context.Background()) != GetDefault() {
		t.Errorf("FromContext without logger did not return the default logger")
	}
	SetDefaultLogger(nil)
	if GetDefault() == nil {
		t.Errorf("SetDefaultLogger(nil) cleared the default logger")
	}
}
