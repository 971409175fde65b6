package emailsvc

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"net/mail"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geoffroyotegbeye/codesens/core"
	"github.com/geoffroyotegbeye/codesens/tests"
)

func TestConsoleServiceMock(t *testing.T) {
	conf := testutil.NewConfig()
	core.ParseEmailTemplates(conf, testutil.NewLogger())
	svc := NewConsoleServiceMock(conf, testutil.NewLogger())

	to := []mail.Address{{Name: "Jane", Address: "jane@test.com"}}
	svc.SendMessages(
		&core.EmailMessage{To: to, Subject: "Plain", BodyStr: "hello"},
		&core.EmailMessage{Subject: "No recipient", BodyStr: "lost"},
		&core.EmailMessage{
			To:           to,
			Subject:      "Password Reset",
			TemplateName: "password_reset",
			TemplateData: map[string]interface{}{"Name": "Jane", "UID": "uid", "Token": "tok"},
		},
	)

	sent := svc.SentMessages()
	require.Len(t, sent, 2)
	assert.Equal(t, "hello", sent[0].TextContent)
	assert.Contains(t, sent[1].TextContent, "Hello Jane")
	assert.Contains(t, sent[1].TextContent, "http://localhost:3000/reset-password/uid/tok")
	assert.Contains(t, sent[1].HTMLContent, "Jane")

	svc.Reset()
	assert.Empty(t, svc.SentMessages())
}

func TestConsoleFormat(t *testing.T) {
	var out bytes.Buffer
	svc := &consoleService{
		from:       mail.Address{Name: "CodeSens", Address: "noreply@localhost"},
		subjPrefix: "[CodeSens] ",
		out:        &out,
		logger:     testutil.NewLogger(),
	}
	msg := &core.EmailMessage{To: []mail.Address{{Address: "jane@test.com"}}, Subject: "Hi", BodyStr: "body"}
	require.NoError(t, msg.Attach(strings.NewReader("file content"), "notes.txt", "text/plain"))

	sent, err := svc.sendMessage(msg)
	require.NoError(t, err)
	assert.True(t, sent)
	assert.Contains(t, out.String(), "Subject: [CodeSens] Hi")
	assert.Contains(t, out.String(), "multipart/mixed")
	assert.Contains(t, out.String(), "filename=notes.txt")
}

func TestSendgridCircuitBreaker(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	svc := newSendgridService(testutil.NewConfig(), testutil.NewLogger(), srv.URL)
	msg := core.EmailMessage{To: []mail.Address{{Address: "jane@test.com"}}, Subject: "Hi", TextContent: "body"}

	for i := 0; i < 8; i++ {
		assert.Error(t, svc.send(msg))
	}
	// the breaker opens after 5 consecutive failures
	assert.Equal(t, int32(5), atomic.LoadInt32(&hits))
}

func TestSendgridRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v3/mail/send", r.URL.Path)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	svc := newSendgridService(testutil.NewConfig(), testutil.NewLogger(), srv.URL)
	msg := core.EmailMessage{To: []mail.Address{{Address: "jane@test.com"}}, Subject: "Hi", TextContent: "body"}
	err := svc.send(msg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status: 400")
	assert.Equal(t, gobreaker.StateClosed, svc.breaker.State())
}
