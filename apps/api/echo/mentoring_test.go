package echoapi_test

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geoffroyotegbeye/codesens/core/mentoring"
	"github.com/geoffroyotegbeye/codesens/core/user"
	"github.com/geoffroyotegbeye/codesens/tests"
)

type sessionPage struct {
	Count   int                 `json:"count"`
	Results []mentoring.Session `json:"results"`
}

type menteePage struct {
	Count   int                `json:"count"`
	Results []mentoring.Mentee `json:"results"`
}

func Test_mentoringApi_pricing(t *testing.T) {
	f := setup(t)
	adminToken := f.token(t, f.admin)

	rec := f.do(http.MethodPost, "/api/v1/mentoring/pricing", f.token(t, f.mentor), []byte(`{"name":"Basic","duration_minutes":30}`))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(http.MethodPost, "/api/v1/mentoring/pricing", adminToken, []byte(`{"name":"Basic","duration_minutes":5}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "duration_minutes")

	var basic, legacy mentoring.PricingPlan
	decode(t, f.do(http.MethodPost, "/api/v1/mentoring/pricing", adminToken,
		[]byte(`{"name":"Basic","duration_minutes":30,"price_cents":1500}`)), http.StatusCreated, &basic)
	assert.True(t, basic.IsActive)
	assert.Equal(t, "EUR", basic.Currency)
	decode(t, f.do(http.MethodPost, "/api/v1/mentoring/pricing", adminToken,
		[]byte(`{"name":"Legacy","duration_minutes":60,"is_active":false}`)), http.StatusCreated, &legacy)

	rec = f.do(http.MethodPost, "/api/v1/mentoring/pricing", adminToken, []byte(`{"name":"Basic","duration_minutes":45}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"name":"a pricing plan with this name already exists"}`, rec.Body.String())

	var plans []mentoring.PricingPlan
	decode(t, f.do(http.MethodGet, "/api/v1/mentoring/pricing?all=true", ""), http.StatusOK, &plans)
	require.Len(t, plans, 1)
	assert.Equal(t, basic.ID, plans[0].ID)

	decode(t, f.do(http.MethodGet, "/api/v1/mentoring/pricing?all=true", adminToken), http.StatusOK, &plans)
	assert.Len(t, plans, 2)

	var plan mentoring.PricingPlan
	decode(t, f.do(http.MethodPut, "/api/v1/mentoring/pricing/"+legacy.ID, adminToken,
		[]byte(`{"name":"Legacy","duration_minutes":60,"is_active":true}`)), http.StatusOK, &plan)
	assert.True(t, plan.IsActive)

	rec = f.do(http.MethodDelete, "/api/v1/mentoring/pricing/"+legacy.ID, adminToken)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = f.do(http.MethodPut, "/api/v1/mentoring/pricing/"+legacy.ID, adminToken, []byte(`{"name":"Legacy","duration_minutes":60}`))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"pricing plan not found"}`, rec.Body.String())
}

func Test_mentoringApi_availability(t *testing.T) {
	f := setup(t)
	mentorToken := f.token(t, f.mentor)
	other := testutil.CreateUser(t, f.usrRepo, "Other Mentor", "other", "other@test.com", "", []string{user.RoleMentor}, true)

	rec := f.do(http.MethodPost, "/api/v1/mentoring/availability", f.token(t, f.student),
		[]byte(`{"weekday":1,"start_time":"09:00","end_time":"12:00"}`))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(http.MethodPost, "/api/v1/mentoring/availability", mentorToken,
		[]byte(`{"weekday":1,"start_time":"9h","end_time":"12:00"}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"start_time":"must be a time of day formatted as HH:MM"}`, rec.Body.String())

	var av mentoring.Availability
	decode(t, f.do(http.MethodPost, "/api/v1/mentoring/availability", mentorToken,
		[]byte(`{"weekday":1,"start_time":"09:00","end_time":"12:00"}`)), http.StatusCreated, &av)
	assert.Equal(t, f.mentor.ID, av.MentorID)

	rec = f.do(http.MethodPost, "/api/v1/mentoring/availability", mentorToken,
		[]byte(`{"weekday":1,"start_time":"11:00","end_time":"13:00"}`))
	assert.Equal(t, http.StatusConflict, rec.Code)

	var windows []mentoring.Availability
	decode(t, f.do(http.MethodGet, "/api/v1/mentoring/availability?mentor_id="+f.mentor.ID, ""), http.StatusOK, &windows)
	require.Len(t, windows, 1)
	assert.Equal(t, av.ID, windows[0].ID)
	decode(t, f.do(http.MethodGet, "/api/v1/mentoring/availability?mentor_id="+other.ID, ""), http.StatusOK, &windows)
	assert.Empty(t, windows)

	// mentors only manage their own windows
	otherToken := f.token(t, other)
	rec = f.do(http.MethodPut, "/api/v1/mentoring/availability/"+av.ID, otherToken,
		[]byte(`{"weekday":2,"start_time":"09:00","end_time":"12:00"}`))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = f.do(http.MethodDelete, "/api/v1/mentoring/availability/"+av.ID, otherToken)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	decode(t, f.do(http.MethodPut, "/api/v1/mentoring/availability/"+av.ID, mentorToken,
		[]byte(`{"weekday":2,"start_time":"14:00","end_time":"18:00"}`)), http.StatusOK, &av)
	assert.Equal(t, 2, av.Weekday)
	assert.Equal(t, "14:00", av.StartTime)

	rec = f.do(http.MethodDelete, "/api/v1/mentoring/availability/"+av.ID, f.token(t, f.admin))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func Test_mentoringApi_sessions(t *testing.T) {
	f := setup(t)
	adminToken := f.token(t, f.admin)
	mentorToken := f.token(t, f.mentor)
	studentToken := f.token(t, f.student)

	rec := f.do(http.MethodPost, "/api/v1/mentoring/availability", mentorToken,
		[]byte(`{"weekday":1,"start_time":"09:00","end_time":"12:00"}`))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	t.Run("invalid request", func(t *testing.T) {
		rec := f.do(http.MethodPost, "/api/v1/mentoring/requests", "", []byte(`{"name":"Lea","email":"lea"}`))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.JSONEq(t, `{"email":"email must be a valid email address","topic":"this field is required"}`, rec.Body.String())
	})

	var anon, own mentoring.Session
	decode(t, f.do(http.MethodPost, "/api/v1/mentoring/requests", "",
		[]byte(`{"name":"Lea","email":"lea@test.com","topic":"Go advanced"}`)), http.StatusCreated, &anon)
	assert.Equal(t, mentoring.StatusPending, anon.Status)
	require.Len(t, anon.Mentees, 1)
	assert.Equal(t, "", anon.Mentees[0].UserID)

	decode(t, f.do(http.MethodPost, "/api/v1/mentoring/requests", studentToken,
		[]byte(`{"name":"Sam Student","email":"sam@test.com","topic":"Go basics","goals":"get hired"}`)), http.StatusCreated, &own)
	require.Len(t, own.Mentees, 1)
	assert.Equal(t, f.student.ID, own.Mentees[0].UserID)

	var templates []string
	for _, msg := range f.mailSvc.SentMessages() {
		templates = append(templates, msg.TemplateName)
	}
	assert.Equal(t, []string{"mentoring_request", "mentoring_request"}, templates)

	sessPath := func(sess mentoring.Session, action ...string) string {
		return "/api/v1/mentoring/sessions/" + sess.ID + strings.Join(action, "")
	}

	t.Run("listing", func(t *testing.T) {
		rec := f.do(http.MethodGet, "/api/v1/mentoring/sessions", studentToken)
		assert.Equal(t, http.StatusForbidden, rec.Code)

		var page sessionPage
		decode(t, f.do(http.MethodGet, "/api/v1/mentoring/sessions", adminToken), http.StatusOK, &page)
		assert.Equal(t, 2, page.Count)
		decode(t, f.do(http.MethodGet, "/api/v1/mentoring/sessions?status=pending&limit=1", adminToken), http.StatusOK, &page)
		assert.Equal(t, 2, page.Count)
		assert.Len(t, page.Results, 1)

		// nothing is assigned to the mentor yet
		decode(t, f.do(http.MethodGet, "/api/v1/mentoring/sessions", mentorToken), http.StatusOK, &page)
		assert.Equal(t, 0, page.Count)

		decode(t, f.do(http.MethodGet, "/api/v1/users/me/sessions", studentToken), http.StatusOK, &page)
		require.Equal(t, 1, page.Count)
		assert.Equal(t, own.ID, page.Results[0].ID)
	})

	t.Run("participants only", func(t *testing.T) {
		rec := f.do(http.MethodGet, sessPath(anon), studentToken)
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.JSONEq(t, `{"error":"session not found"}`, rec.Body.String())

		rec = f.do(http.MethodGet, sessPath(own), studentToken)
		assert.Equal(t, http.StatusOK, rec.Code)

		rec = f.do(http.MethodPost, sessPath(own, "/confirm"), mentorToken, []byte(`{"scheduled_at":"2030-01-07T10:00:00Z"}`))
		assert.Equal(t, http.StatusNotFound, rec.Code)
		rec = f.do(http.MethodPost, sessPath(own, "/confirm"), studentToken, []byte(`{"scheduled_at":"2030-01-07T10:00:00Z"}`))
		assert.Equal(t, http.StatusForbidden, rec.Code)
		rec = f.do(http.MethodPut, sessPath(own), studentToken, []byte(`{"topic":"x"}`))
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("assign and confirm", func(t *testing.T) {
		body := marchallObj(t, mentoring.UpdateSession{Topic: "Go basics", MenteeIDs: own.MenteeIDs, MentorID: f.mentor.ID})
		var sess mentoring.Session
		decode(t, f.do(http.MethodPut, sessPath(own), adminToken, body), http.StatusOK, &sess)
		assert.Equal(t, f.mentor.ID, sess.MentorID)

		rec := f.do(http.MethodPost, sessPath(own, "/confirm"), mentorToken, []byte(`{"scheduled_at":"2030-01-07T07:00:00Z"}`))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.JSONEq(t, `{"scheduled_at":"must be in the future"}`, rec.Body.String())

		rec = f.do(http.MethodPost, sessPath(own, "/confirm"), mentorToken, []byte(`{"scheduled_at":"2030-01-07T13:00:00Z"}`))
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.JSONEq(t, `{"error":"the mentor is not available at this time"}`, rec.Body.String())

		decode(t, f.do(http.MethodPost, sessPath(own, "/confirm"), mentorToken, []byte(`{"scheduled_at":"2030-01-07T10:00:00Z"}`)),
			http.StatusOK, &sess)
		assert.Equal(t, mentoring.StatusConfirmed, sess.Status)
		assert.Equal(t, "http://localhost:3000/mentoring/call/"+own.ID, sess.MeetingURL)
		own = sess

		var page sessionPage
		decode(t, f.do(http.MethodGet, "/api/v1/mentoring/sessions", mentorToken), http.StatusOK, &page)
		assert.Equal(t, 1, page.Count)
	})

	t.Run("complete", func(t *testing.T) {
		rec := f.do(http.MethodPost, sessPath(own, "/complete"), studentToken)
		assert.Equal(t, http.StatusForbidden, rec.Code)

		rec = f.do(http.MethodPost, sessPath(own, "/complete"), mentorToken)
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.JSONEq(t, `{"error":"the session has not started yet"}`, rec.Body.String())

		f.clock.Advance(3 * time.Hour)
		var sess mentoring.Session
		decode(t, f.do(http.MethodPost, sessPath(own, "/complete"), mentorToken), http.StatusOK, &sess)
		assert.Equal(t, mentoring.StatusCompleted, sess.Status)
		assert.True(t, sess.CompletedAt.Valid)
	})

	t.Run("cancel", func(t *testing.T) {
		rec := f.do(http.MethodPost, sessPath(own, "/cancel"), studentToken, []byte(`{}`))
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.JSONEq(t, `{"error":"cannot move a completed session to cancelled"}`, rec.Body.String())

		var sess mentoring.Session
		decode(t, f.do(http.MethodPost, sessPath(anon, "/cancel"), adminToken, []byte(`{"reason":"duplicate"}`)), http.StatusOK, &sess)
		assert.Equal(t, mentoring.StatusCancelled, sess.Status)
		assert.Equal(t, "duplicate", sess.CancelReason)
	})

	t.Run("mentees", func(t *testing.T) {
		rec := f.do(http.MethodGet, "/api/v1/mentoring/mentees", mentorToken)
		assert.Equal(t, http.StatusForbidden, rec.Code)

		var page menteePage
		decode(t, f.do(http.MethodGet, "/api/v1/mentoring/mentees", adminToken), http.StatusOK, &page)
		assert.Equal(t, 2, page.Count)
		decode(t, f.do(http.MethodGet, "/api/v1/mentoring/mentees?search=lea", adminToken), http.StatusOK, &page)
		require.Equal(t, 1, page.Count)
		lea := page.Results[0]

		var maxim, mentee mentoring.Mentee
		decode(t, f.do(http.MethodPost, "/api/v1/mentoring/mentees", adminToken,
			[]byte(`{"name":"Max","email":"max@test.com"}`)), http.StatusCreated, &maxim)
		assert.Equal(t, mentoring.MenteeActive, maxim.Status)

		rec = f.do(http.MethodPost, "/api/v1/mentoring/mentees", adminToken, []byte(`{"name":"Max","email":"max@test.com"}`))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		rec = f.do(http.MethodPost, "/api/v1/mentoring/mentees", adminToken, []byte(`{"name":"Ghost","email":"ghost@test.com","user_id":"nope"}`))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.JSONEq(t, `{"user_id":"unknown user"}`, rec.Body.String())

		decode(t, f.do(http.MethodPut, "/api/v1/mentoring/mentees/"+lea.ID, adminToken,
			[]byte(`{"name":"Lea B.","email":"lea@test.com","status":"inactive"}`)), http.StatusOK, &mentee)
		assert.Equal(t, mentoring.MenteeInactive, mentee.Status)
		decode(t, f.do(http.MethodGet, "/api/v1/mentoring/mentees/"+lea.ID, adminToken), http.StatusOK, &mentee)
		assert.Equal(t, "Lea B.", mentee.Name)

		rec = f.do(http.MethodDelete, "/api/v1/mentoring/mentees/"+maxim.ID, adminToken)
		assert.Equal(t, http.StatusNoContent, rec.Code)
		rec = f.do(http.MethodGet, "/api/v1/mentoring/mentees/"+maxim.ID, adminToken)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("delete", func(t *testing.T) {
		rec := f.do(http.MethodDelete, sessPath(anon), mentorToken)
		assert.Equal(t, http.StatusNotFound, rec.Code)
		rec = f.do(http.MethodDelete, sessPath(anon), adminToken)
		assert.Equal(t, http.StatusNoContent, rec.Code)
		rec = f.do(http.MethodGet, sessPath(anon), adminToken)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func Test_mentoringApi_requestForAnotherEmail(t *testing.T) {
	f := setup(t)
	studentToken := f.token(t, f.student)

	var anon, other mentoring.Session
	decode(t, f.do(http.MethodPost, "/api/v1/mentoring/requests", "",
		[]byte(`{"name":"Lea","email":"lea@test.com","topic":"Go","goals":"learn Go"}`)), http.StatusCreated, &anon)

	decode(t, f.do(http.MethodPost, "/api/v1/mentoring/requests", studentToken,
		[]byte(`{"name":"Not Lea","email":"lea@test.com","topic":"SQL","goals":"something else"}`)), http.StatusCreated, &other)
	require.Len(t, other.Mentees, 1)
	assert.Equal(t, anon.Mentees[0].ID, other.Mentees[0].ID)
	assert.Equal(t, "", other.Mentees[0].UserID)
	assert.Equal(t, "Lea", other.Mentees[0].Name)
	assert.Equal(t, "learn Go", other.Mentees[0].Goals)

	// lea's sessions stay invisible to the student
	var page sessionPage
	decode(t, f.do(http.MethodGet, "/api/v1/users/me/sessions", studentToken), http.StatusOK, &page)
	assert.Equal(t, 0, page.Count)
	rec := f.do(http.MethodGet, "/api/v1/mentoring/sessions/"+anon.ID, studentToken)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
