package logsvc

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geoffroyotegbeye/codesens/core"
	"github.com/geoffroyotegbeye/codesens/core/user"
	"github.com/geoffroyotegbeye/codesens/tests"
)

func newTestLogger(format, level string) (*RollbarLogger, *bytes.Buffer) {
	conf := testutil.NewConfig()
	conf.LogFormat = format
	conf.LogLevel = level
	var buf bytes.Buffer
	return NewRollbarLogger(&buf, conf), &buf
}

func TestRollbarLogger_JSON(t *testing.T) {
	logger, buf := newTestLogger("json", "debug")
	defer logger.Close()

	ctx := core.WithRequestID(context.Background(), "req-42")
	usr := user.User{ID: "u1", Username: "sam", Email: "sam@test.com"}
	logger.Error("saving course", errors.New("boom"), ctx, usr, map[string]interface{}{"course": "go"})

	var rec map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "ERROR", rec["level"])
	assert.Equal(t, "saving course", rec["msg"])
	assert.Equal(t, "boom", rec["error"])
	assert.Equal(t, "req-42", rec["request_id"])
	assert.Equal(t, "u1", rec["user_id"])
	assert.Equal(t, "go", rec["course"])
	assert.Equal(t, "CodeSens", rec["app"])
}

func TestRollbarLogger_Level(t *testing.T) {
	logger, buf := newTestLogger("text", "warn")
	defer logger.Close()

	logger.Debug("hidden")
	logger.Info("hidden too")
	logger.Warn("shown", 42)

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "level=WARN")
	assert.Contains(t, out, "msg=shown")
	assert.Contains(t, out, "arg0=42")
	assert.Equal(t, 1, strings.Count(out, "\n"))
}

func TestRollbarLogger_Fatal(t *testing.T) {
	logger, buf := newTestLogger("text", "info")
	defer logger.Close()
	var code int
	logger.exit = func(c int) { code = c }

	logger.Fatal("cannot start")
	assert.Equal(t, 1, code)
	assert.Contains(t, buf.String(), "cannot start")
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"debug", "DEBUG"},
		{"WARN", "WARN"},
		{"error", "ERROR"},
		{"", "INFO"},
		{"verbose", "INFO"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, parseLevel(tt.in).String())
		})
	}
}

func TestRollbarLogger_With(t *testing.T) {
	logger, buf := newTestLogger("text", "info")
	defer logger.Close()

	logger.With("component", "db").Info("connected")
	logger.Info("plain")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "component=db")
	assert.NotContains(t, lines[1], "component=")
}
