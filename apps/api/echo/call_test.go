package echoapi_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geoffroyotegbeye/codesens/core/mentoring"
	"github.com/geoffroyotegbeye/codesens/core/user"
	"github.com/geoffroyotegbeye/codesens/services/callroom"
	"github.com/geoffroyotegbeye/codesens/tests"
)

func readEnvelope(t *testing.T, conn *websocket.Conn) callroom.Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var env callroom.Envelope
	require.NoError(t, conn.ReadJSON(&env))
	return env
}

func Test_callHandler(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	outsider := testutil.CreateUser(t, f.usrRepo, "Outsider", "outsider", "outsider@test.com", "", []string{user.RoleStudent}, true)

	_, err := f.mentoringSvc.CreateAvailability(ctx, f.mentor, mentoring.NewAvailability{Weekday: 1, StartTime: "09:00", EndTime: "12:00"})
	require.NoError(t, err)
	sess, err := f.mentoringSvc.RequestMentoring(ctx, &f.student, mentoring.MentoringRequest{Name: "Sam", Email: "sam@test.com", Topic: "Go"})
	require.NoError(t, err)
	callPath := "/api/v1/mentoring/sessions/" + sess.ID + "/call"

	t.Run("pending session", func(t *testing.T) {
		rec := f.do(http.MethodGet, callPath, f.token(t, f.student))
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.JSONEq(t, `{"error":"only confirmed sessions can be joined"}`, rec.Body.String())
	})

	_, err = f.mentoringSvc.Confirm(ctx, sess, f.admin, mentoring.ConfirmSession{MentorID: f.mentor.ID, ScheduledAt: monday.Add(2 * time.Hour)})
	require.NoError(t, err)

	t.Run("outsider", func(t *testing.T) {
		rec := f.do(http.MethodGet, callPath, f.token(t, outsider))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("not a websocket", func(t *testing.T) {
		rec := f.do(http.MethodGet, callPath, f.token(t, f.student))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("query token without upgrade", func(t *testing.T) {
		rec := f.do(http.MethodGet, callPath+"?token="+f.token(t, f.student), "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.JSONEq(t, `{"error":"missing or malformed jwt"}`, rec.Body.String())
	})

	ts := httptest.NewServer(f.srv)
	defer ts.Close()
	dial := func(t *testing.T, usr user.User) *websocket.Conn {
		t.Helper()
		url := "ws" + strings.TrimPrefix(ts.URL, "http") + callPath + "?token=" + f.token(t, usr)
		conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
		require.NoError(t, err)
		_ = resp.Body.Close()
		t.Cleanup(func() { _ = conn.Close() })
		return conn
	}

	mentorConn := dial(t, f.mentor)
	env := readEnvelope(t, mentorConn)
	assert.Equal(t, callroom.TypeJoin, env.Type)
	var roster callroom.Roster
	require.NoError(t, json.Unmarshal(env.Payload, &roster))
	assert.Equal(t, callroom.RoleMentor, roster.Peer.Role)
	assert.Equal(t, f.mentor.ID, roster.Peer.UserID)

	studentConn := dial(t, f.student)
	env = readEnvelope(t, studentConn)
	require.Equal(t, callroom.TypeJoin, env.Type)
	require.NoError(t, json.Unmarshal(env.Payload, &roster))
	assert.Equal(t, callroom.RoleMentee, roster.Peer.Role)
	assert.Len(t, roster.Participants, 2)
	studentPeer := roster.Peer.PeerID

	env = readEnvelope(t, mentorConn)
	assert.Equal(t, callroom.TypeJoin, env.Type)
	assert.Equal(t, studentPeer, env.From)

	require.NoError(t, studentConn.WriteJSON(callroom.Envelope{Type: callroom.TypeChat, Payload: json.RawMessage(`"hello"`)}))
	env = readEnvelope(t, mentorConn)
	assert.Equal(t, callroom.TypeChat, env.Type)
	assert.Equal(t, studentPeer, env.From)
	assert.JSONEq(t, `"hello"`, string(env.Payload))

	assert.Len(t, f.hub.Peers(sess.ID), 2)
}
