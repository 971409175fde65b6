package echoapi

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingLogger keeps every entry as a single line.
type recordingLogger struct {
	mu      sync.Mutex
	entries []string
}

func (l *recordingLogger) record(msg string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, msg+" "+fmt.Sprint(args...))
}

func (l *recordingLogger) Debug(msg string, args ...interface{}) { l.record(msg, args...) }
func (l *recordingLogger) Info(msg string, args ...interface{})  { l.record(msg, args...) }
func (l *recordingLogger) Warn(msg string, args ...interface{})  { l.record(msg, args...) }
func (l *recordingLogger) Error(msg string, args ...interface{}) { l.record(msg, args...) }
func (l *recordingLogger) Fatal(msg string, args ...interface{}) { l.record(msg, args...) }

func Test_redactURI(t *testing.T) {
	tests := []struct {
		uri  string
		want string
	}{
		{"/api/v1/courses", "/api/v1/courses"},
		{"/api/v1/courses?limit=2", "/api/v1/courses?limit=2"},
		{"/api/v1/mentoring/sessions/x/call?token=secret", "/api/v1/mentoring/sessions/x/call"},
		{"/api/v1/mentoring/sessions/x/call?a=1&token=secret&token=again", "/api/v1/mentoring/sessions/x/call?a=1"},
		{"::not a uri?token=secret", "::not a uri"},
	}
	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			assert.Equal(t, tt.want, redactURI(tt.uri))
		})
	}
}

func Test_requestLoggerMiddleware(t *testing.T) {
	logger := new(recordingLogger)
	e := echo.New()
	e.Use(requestLoggerMiddleware(logger))
	e.GET("/api/v1/mentoring/sessions/:id/call", func(ctx echo.Context) error {
		return ctx.NoContent(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/mentoring/sessions/x/call?token=s3cr3t.jwt&lang=fr", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)

	require.Len(t, logger.entries, 1)
	assert.Contains(t, logger.entries[0], "GET /api/v1/mentoring/sessions/x/call?lang=fr")
	assert.NotContains(t, logger.entries[0], "s3cr3t")
}

func Test_tokenFromRequest(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		query   string
		header  string
		upgrade bool
		want    string
	}{
		{name: "header", path: "/api/v1/users/me", header: "Bearer abc", want: "abc"},
		{name: "query elsewhere", path: "/api/v1/users/me", query: "?token=abc", upgrade: true},
		{name: "call without upgrade", path: callRoute, query: "?token=abc"},
		{name: "call upgrade", path: callRoute, query: "?token=abc", upgrade: true, want: "abc"},
		{name: "header wins", path: callRoute, query: "?token=abc", header: "Bearer def", upgrade: true, want: "def"},
	}
	e := echo.New()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/whatever"+tt.query, nil)
			if tt.header != "" {
				req.Header.Set(echo.HeaderAuthorization, tt.header)
			}
			if tt.upgrade {
				req.Header.Set("Connection", "Upgrade")
				req.Header.Set("Upgrade", "websocket")
			}
			ctx := e.NewContext(req, httptest.NewRecorder())
			ctx.SetPath(tt.path)
			assert.Equal(t, tt.want, tokenFromRequest(ctx))
		})
	}
}
