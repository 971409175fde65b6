package sqlxrepos

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/volatiletech/null/v8"

	"github.com/geoffroyotegbeye/codesens/core"
	"github.com/geoffroyotegbeye/codesens/core/mentoring"
	"github.com/geoffroyotegbeye/codesens/core/user"
	"github.com/geoffroyotegbeye/codesens/services/email"
	"github.com/geoffroyotegbeye/codesens/tests"
)

// monday is a Monday, 08:00 UTC.
var monday = time.Date(2030, time.January, 7, 8, 0, 0, 0, time.UTC)

type mentoringFixture struct {
	svc     mentoring.Service
	repo    mentoring.Repository
	mailSvc *emailsvc.ConsoleServiceMock
	clock   clockwork.FakeClock
	admin   user.User
	mentor  user.User
	student user.User
}

func setupMentoring(t *testing.T) mentoringFixture {
	t.Helper()
	db := testutil.PrepareDB(t)
	conf := testutil.NewConfig()
	logger := testutil.NewLogger()
	core.ParseEmailTemplates(conf, logger)

	usrRepo := NewUserRepository(db)
	mailSvc := emailsvc.NewConsoleServiceMock(conf, logger)
	clock := clockwork.NewFakeClockAt(monday)
	repo := NewMentoringRepository(db)
	return mentoringFixture{
		svc:     mentoring.NewService(repo, user.NewService(usrRepo, mailSvc, nil, conf, logger), mailSvc, conf, clock),
		repo:    repo,
		mailSvc: mailSvc,
		clock:   clock,
		admin:   testutil.CreateUser(t, usrRepo, "Admin", "admin", "admin@test.com", "", []string{user.RoleAdmin}, true),
		mentor:  testutil.CreateUser(t, usrRepo, "Grace Mentor", "grace", "grace@test.com", "", []string{user.RoleMentor}, true),
		student: testutil.CreateUser(t, usrRepo, "Sam Student", "sam", "sam@test.com", "", []string{user.RoleStudent}, true),
	}
}

func (f mentoringFixture) sentTemplates() []string {
	var names []string
	for _, msg := range f.mailSvc.SentMessages() {
		names = append(names, msg.TemplateName)
	}
	return names
}

func (f mentoringFixture) request(t *testing.T, requester *user.User, email, topic string) mentoring.Session {
	t.Helper()
	sess, err := f.svc.RequestMentoring(context.Background(), requester, mentoring.MentoringRequest{
		Name:  "Mentee " + email,
		Email: email,
		Topic: topic,
	})
	require.NoError(t, err)
	return sess
}

func TestMentoring_RequestMentoring(t *testing.T) {
	ctx := context.Background()
	f := setupMentoring(t)

	plan, err := f.svc.CreatePricingPlan(ctx, mentoring.NewPricingPlan{Name: "Deep dive", DurationMinutes: 90, PriceCents: 5000, Currency: "EUR"})
	require.NoError(t, err)

	sess, err := f.svc.RequestMentoring(ctx, nil, mentoring.MentoringRequest{
		Name:        "Lea",
		Email:       "lea@test.com",
		Goals:       "Learn Go",
		Topic:       "Concurrency",
		PricingID:   plan.ID,
		PreferredAt: null.TimeFrom(monday.Add(48 * time.Hour)),
	})
	require.NoError(t, err)
	assert.Equal(t, mentoring.StatusPending, sess.Status)
	assert.Equal(t, 90, sess.DurationMinutes)
	require.Len(t, sess.Mentees, 1)
	assert.Equal(t, "lea@test.com", sess.Mentees[0].Email)
	assert.Equal(t, "", sess.Mentees[0].UserID)
	assert.Equal(t, []string{"mentoring_request"}, f.sentTemplates())

	// the same email reuses the mentee; a requester with another email neither links nor renames it
	again, err := f.svc.RequestMentoring(ctx, &f.student, mentoring.MentoringRequest{Name: "Lea B.", Email: "lea@test.com", Goals: "Nothing", Topic: "Testing"})
	require.NoError(t, err)
	require.Len(t, again.Mentees, 1)
	assert.Equal(t, sess.Mentees[0].ID, again.Mentees[0].ID)
	assert.Equal(t, "", again.Mentees[0].UserID)
	assert.Equal(t, "Lea", again.Mentees[0].Name)
	assert.Equal(t, "Learn Go", again.Mentees[0].Goals)
	assert.Equal(t, mentoring.DefaultDurationMinutes, again.DurationMinutes)

	// the owner of the email gets linked
	own, err := f.svc.RequestMentoring(ctx, &f.student, mentoring.MentoringRequest{Name: "Sam", Email: "SAM@test.com", Topic: "Testing"})
	require.NoError(t, err)
	require.Len(t, own.Mentees, 1)
	assert.Equal(t, f.student.ID, own.Mentees[0].UserID)

	mentee, err := f.svc.GetMentee(ctx, sess.Mentees[0].ID)
	require.NoError(t, err)
	_, err = f.svc.UpdateMentee(ctx, mentee, mentoring.NewMentee{Name: "Lea", Email: "lea@test.com", Status: mentoring.MenteeActive, UserID: f.mentor.ID})
	require.NoError(t, err)
	_, err = f.svc.RequestMentoring(ctx, &f.mentor, mentoring.MentoringRequest{Name: "Lea Grace", Email: "lea@test.com", Goals: "Other goals", Topic: "Again"})
	require.NoError(t, err)
	mentee, err = f.svc.GetMentee(ctx, sess.Mentees[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "Lea", mentee.Name)
	assert.Equal(t, "Learn Go", mentee.Goals)

	n, err := f.svc.CountMentees(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	t.Run("invalid", func(t *testing.T) {
		_, err := f.svc.RequestMentoring(ctx, nil, mentoring.MentoringRequest{Name: "X", Email: "x@test.com", Topic: "T", PricingID: "nope"})
		var vErr *core.ValidationError
		require.True(t, errors.As(err, &vErr))
		assert.Equal(t, "pricing_id", vErr.Fields[0].Field)

		_, err = f.svc.RequestMentoring(ctx, nil, mentoring.MentoringRequest{Name: "X", Email: "x@test.com", Topic: "T", PreferredAt: null.TimeFrom(monday.Add(-time.Hour))})
		require.True(t, errors.As(err, &vErr))
		assert.Equal(t, "preferred_at", vErr.Fields[0].Field)
	})

	t.Run("participant filter", func(t *testing.T) {
		sessions, total, err := f.svc.QuerySessions(ctx, &mentoring.SessionFilter{ParticipantID: f.student.ID}, core.Page{})
		require.NoError(t, err)
		assert.Equal(t, 1, total)
		require.Len(t, sessions, 1)
		assert.Equal(t, own.ID, sessions[0].ID)

		// lea is linked to the mentor account by now
		_, total, err = f.svc.QuerySessions(ctx, &mentoring.SessionFilter{ParticipantID: f.mentor.ID}, core.Page{})
		require.NoError(t, err)
		assert.Equal(t, 3, total)
	})
}

func TestMentoring_Lifecycle(t *testing.T) {
	ctx := context.Background()
	f := setupMentoring(t)

	_, err := f.svc.CreateAvailability(ctx, f.mentor, mentoring.NewAvailability{Weekday: 1, StartTime: "09:00", EndTime: "12:00"})
	require.NoError(t, err)

	t.Run("overlapping availability", func(t *testing.T) {
		_, err := f.svc.CreateAvailability(ctx, f.mentor, mentoring.NewAvailability{Weekday: 1, StartTime: "11:00", EndTime: "13:00"})
		assert.True(t, core.IsConflict(err))
		_, err = f.svc.CreateAvailability(ctx, f.student, mentoring.NewAvailability{MentorID: f.mentor.ID, Weekday: 2, StartTime: "11:00", EndTime: "13:00"})
		var vErr *core.ValidationError
		assert.True(t, errors.As(err, &vErr))
	})

	first := f.request(t, &f.student, "sam@test.com", "Go basics")
	second := f.request(t, nil, "lea@test.com", "Go advanced")
	third := f.request(t, nil, "max@test.com", "Go testing")
	at := func(hour, min int) time.Time { return time.Date(2030, time.January, 7, hour, min, 0, 0, time.UTC) }

	t.Run("confirm", func(t *testing.T) {
		tests := []struct {
			name     string
			sess     mentoring.Session
			actor    user.User
			cs       mentoring.ConfirmSession
			conflict bool
		}{
			{name: "in the past", sess: first, actor: f.mentor, cs: mentoring.ConfirmSession{ScheduledAt: at(7, 0)}},
			{name: "not a mentor", sess: first, actor: f.student, cs: mentoring.ConfirmSession{ScheduledAt: at(10, 0)}},
			{name: "someone else's session", sess: first, actor: f.mentor, cs: mentoring.ConfirmSession{MentorID: f.admin.ID, ScheduledAt: at(10, 0)}},
			{name: "outside availability", sess: first, actor: f.mentor, cs: mentoring.ConfirmSession{ScheduledAt: at(11, 30)}, conflict: true},
			{name: "wrong weekday", sess: first, actor: f.mentor, cs: mentoring.ConfirmSession{ScheduledAt: at(10, 0).Add(24 * time.Hour)}, conflict: true},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := f.svc.Confirm(ctx, tt.sess, tt.actor, tt.cs)
				require.Error(t, err)
				assert.Equal(t, tt.conflict, core.IsConflict(err), "%v", err)
			})
		}

		confirmed, err := f.svc.Confirm(ctx, first, f.mentor, mentoring.ConfirmSession{ScheduledAt: at(10, 0)})
		require.NoError(t, err)
		assert.Equal(t, mentoring.StatusConfirmed, confirmed.Status)
		assert.Equal(t, f.mentor.ID, confirmed.MentorID)
		assert.Equal(t, "Grace Mentor", confirmed.MentorName)
		assert.Equal(t, "http://localhost:3000/mentoring/call/"+first.ID, confirmed.MeetingURL)
		assert.True(t, confirmed.ConfirmedAt.Valid)
		assert.Contains(t, f.sentTemplates(), "session_confirmed")
		first = confirmed

		// already confirmed
		_, err = f.svc.Confirm(ctx, first, f.mentor, mentoring.ConfirmSession{ScheduledAt: at(10, 0)})
		assert.True(t, core.IsConflict(err))

		// overlaps the first session
		_, err = f.svc.Confirm(ctx, second, f.admin, mentoring.ConfirmSession{MentorID: f.mentor.ID, ScheduledAt: at(10, 30)})
		assert.True(t, core.IsConflict(err))

		second, err = f.svc.Confirm(ctx, second, f.admin, mentoring.ConfirmSession{MentorID: f.mentor.ID, ScheduledAt: at(11, 0), MeetingURL: "https://meet.example.com/abc"})
		require.NoError(t, err)
		assert.Equal(t, "https://meet.example.com/abc", second.MeetingURL)
	})

	t.Run("update", func(t *testing.T) {
		mentee, err := f.svc.CreateMentee(ctx, mentoring.NewMentee{Name: "Extra", Email: "extra@test.com", Status: mentoring.MenteeActive})
		require.NoError(t, err)

		ids := append([]string{}, third.MenteeIDs...)
		updated, err := f.svc.UpdateSession(ctx, third, mentoring.UpdateSession{Topic: "Group testing", MenteeIDs: append(ids, mentee.ID)})
		require.NoError(t, err)
		assert.Len(t, updated.Mentees, 2)
		assert.Equal(t, "Group testing", updated.Topic)
		third = updated

		_, err = f.svc.UpdateSession(ctx, third, mentoring.UpdateSession{Topic: "x", MenteeIDs: []string{"nope"}})
		var vErr *core.ValidationError
		require.True(t, errors.As(err, &vErr))
		assert.Equal(t, "mentee_ids", vErr.Fields[0].Field)

		_, err = f.svc.UpdateSession(ctx, first, mentoring.UpdateSession{Topic: "x", MenteeIDs: first.MenteeIDs, DurationMinutes: 30})
		assert.True(t, core.IsConflict(err))

		_, err = f.svc.CreateMentee(ctx, mentoring.NewMentee{Name: "Dup", Email: "extra@test.com", Status: mentoring.MenteeActive})
		require.True(t, errors.As(err, &vErr))
		assert.Equal(t, "email", vErr.Fields[0].Field)
	})

	t.Run("complete", func(t *testing.T) {
		_, err := f.svc.Complete(ctx, first)
		assert.True(t, core.IsConflict(err))
		_, err = f.svc.Complete(ctx, third)
		assert.True(t, core.IsConflict(err))

		f.clock.Advance(3 * time.Hour)
		completed, err := f.svc.Complete(ctx, first)
		require.NoError(t, err)
		assert.Equal(t, mentoring.StatusCompleted, completed.Status)
		assert.True(t, completed.CompletedAt.Valid)

		_, err = f.svc.Cancel(ctx, completed, mentoring.CancelSession{})
		assert.True(t, core.IsConflict(err))
	})

	t.Run("cancel", func(t *testing.T) {
		cancelled, err := f.svc.Cancel(ctx, third, mentoring.CancelSession{Reason: "mentee unavailable"})
		require.NoError(t, err)
		assert.Equal(t, mentoring.StatusCancelled, cancelled.Status)
		assert.Equal(t, "mentee unavailable", cancelled.CancelReason)
		assert.Contains(t, f.sentTemplates(), "session_cancelled")

		_, err = f.svc.UpdateSession(ctx, cancelled, mentoring.UpdateSession{Topic: "x", MenteeIDs: cancelled.MenteeIDs})
		assert.True(t, core.IsConflict(err))
	})

	t.Run("listing", func(t *testing.T) {
		counts, err := f.svc.CountSessionsByStatus(ctx, nil)
		require.NoError(t, err)
		assert.Equal(t, map[string]int{
			mentoring.StatusPending:   0,
			mentoring.StatusConfirmed: 1,
			mentoring.StatusCompleted: 1,
			mentoring.StatusCancelled: 1,
		}, counts)

		sessions, total, err := f.svc.QuerySessions(ctx, &mentoring.SessionFilter{MentorID: f.mentor.ID}, core.Page{})
		require.NoError(t, err)
		assert.Equal(t, 2, total)
		require.Len(t, sessions, 2)
		assert.Equal(t, first.ID, sessions[0].ID)
		assert.Equal(t, second.ID, sessions[1].ID)

		_, total, err = f.svc.QuerySessions(ctx, &mentoring.SessionFilter{From: at(10, 30), To: at(12, 0)}, core.Page{})
		require.NoError(t, err)
		assert.Equal(t, 1, total)

		_, total, err = f.svc.QuerySessions(ctx, &mentoring.SessionFilter{MenteeID: third.MenteeIDs[0]}, core.Page{})
		require.NoError(t, err)
		assert.Equal(t, 1, total)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, f.svc.DeleteSession(ctx, third.ID))
		_, err := f.svc.GetSession(ctx, third.ID)
		assert.Equal(t, mentoring.ErrSessionNotFound, errors.Cause(err))
	})
}

func TestMentoring_Pricing(t *testing.T) {
	ctx := context.Background()
	f := setupMentoring(t)

	inactive := false
	basic, err := f.svc.CreatePricingPlan(ctx, mentoring.NewPricingPlan{Name: "Basic", DurationMinutes: 30, PriceCents: 1000, Currency: "EUR"})
	require.NoError(t, err)
	_, err = f.svc.CreatePricingPlan(ctx, mentoring.NewPricingPlan{Name: "Legacy", DurationMinutes: 60, PriceCents: 500, Currency: "EUR", IsActive: &inactive})
	require.NoError(t, err)

	_, err = f.svc.CreatePricingPlan(ctx, mentoring.NewPricingPlan{Name: "basic", DurationMinutes: 30, Currency: "EUR"})
	var vErr *core.ValidationError
	require.True(t, errors.As(err, &vErr))

	active, err := f.svc.QueryPricingPlans(ctx, true)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, basic.ID, active[0].ID)

	all, err := f.svc.QueryPricingPlans(ctx, false)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	updated, err := f.svc.UpdatePricingPlan(ctx, basic, mentoring.NewPricingPlan{Name: "Basic", DurationMinutes: 45, PriceCents: 1500, Currency: "USD"})
	require.NoError(t, err)
	assert.Equal(t, 45, updated.DurationMinutes)
	assert.True(t, updated.IsActive)

	require.NoError(t, f.svc.DeletePricingPlan(ctx, basic.ID))
	assert.Equal(t, mentoring.ErrPricingNotFound, errors.Cause(f.svc.DeletePricingPlan(ctx, basic.ID)))
}

func TestMentoring_StaleSnapshots(t *testing.T) {
	ctx := context.Background()
	f := setupMentoring(t)

	_, err := f.svc.CreateAvailability(ctx, f.mentor, mentoring.NewAvailability{Weekday: 1, StartTime: "09:00", EndTime: "12:00"})
	require.NoError(t, err)
	at := time.Date(2030, time.January, 7, 10, 0, 0, 0, time.UTC)

	t.Run("update after confirm", func(t *testing.T) {
		pending := f.request(t, nil, "lea@test.com", "Go")
		confirmed, err := f.svc.Confirm(ctx, pending, f.mentor, mentoring.ConfirmSession{ScheduledAt: at})
		require.NoError(t, err)

		_, err = f.svc.UpdateSession(ctx, pending, mentoring.UpdateSession{Topic: "Rewritten", MenteeIDs: pending.MenteeIDs})
		require.Error(t, err)
		assert.True(t, core.IsConflict(err), "%v", err)

		stored, err := f.svc.GetSession(ctx, pending.ID)
		require.NoError(t, err)
		assert.Equal(t, mentoring.StatusConfirmed, stored.Status)
		assert.Equal(t, "Go", stored.Topic)
		assert.True(t, stored.ScheduledAt.Time.Equal(confirmed.ScheduledAt.Time))
	})

	t.Run("cancel after complete", func(t *testing.T) {
		sessions, _, err := f.svc.QuerySessions(ctx, &mentoring.SessionFilter{Status: mentoring.StatusConfirmed}, core.Page{})
		require.NoError(t, err)
		require.Len(t, sessions, 1)
		confirmed := sessions[0]

		f.clock.Advance(3 * time.Hour)
		_, err = f.svc.Complete(ctx, confirmed)
		require.NoError(t, err)

		_, err = f.svc.Cancel(ctx, confirmed, mentoring.CancelSession{Reason: "too late"})
		require.Error(t, err)
		assert.True(t, core.IsConflict(err), "%v", err)

		stored, err := f.svc.GetSession(ctx, confirmed.ID)
		require.NoError(t, err)
		assert.Equal(t, mentoring.StatusCompleted, stored.Status)
		assert.Equal(t, "", stored.CancelReason)
		assert.False(t, stored.CancelledAt.Valid)
	})

	t.Run("confirm keeps concurrent edits", func(t *testing.T) {
		pending := f.request(t, nil, "max@test.com", "SQL")
		mentee, err := f.svc.CreateMentee(ctx, mentoring.NewMentee{Name: "Extra", Email: "extra@test.com", Status: mentoring.MenteeActive})
		require.NoError(t, err)
		_, err = f.svc.UpdateSession(ctx, pending, mentoring.UpdateSession{Topic: "Group SQL", MenteeIDs: append([]string{mentee.ID}, pending.MenteeIDs...)})
		require.NoError(t, err)

		// pending still carries the old topic and mentees
		confirmed, err := f.svc.Confirm(ctx, pending, f.mentor, mentoring.ConfirmSession{ScheduledAt: at.Add(7 * 24 * time.Hour)})
		require.NoError(t, err)
		assert.Equal(t, "Group SQL", confirmed.Topic)
		assert.Len(t, confirmed.MenteeIDs, 2)
	})

	t.Run("repository", func(t *testing.T) {
		pending := f.request(t, nil, "zoe@test.com", "Rust")

		_, err := f.repo.UpdateSession(ctx, pending, mentoring.StatusConfirmed)
		assert.Equal(t, mentoring.ErrSessionChanged, errors.Cause(err))

		ghost := pending
		ghost.ID = "00000000-0000-4000-8000-000000000000"
		_, err = f.repo.UpdateSession(ctx, ghost, mentoring.StatusPending)
		assert.Equal(t, mentoring.ErrSessionNotFound, errors.Cause(err))

		pending.Topic = "Rust async"
		updated, err := f.repo.UpdateSession(ctx, pending, mentoring.StatusPending)
		require.NoError(t, err)
		assert.Equal(t, "Rust async", updated.Topic)

		// no-op on sqlite
		assert.NoError(t, f.repo.LockMentor(ctx, f.mentor.ID))
	})
}
