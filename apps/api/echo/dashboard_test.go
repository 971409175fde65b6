package echoapi_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/geoffroyotegbeye/codesens/apps/api/echo"
	"github.com/geoffroyotegbeye/codesens/core/blog"
	"github.com/geoffroyotegbeye/codesens/core/catalog"
	"github.com/geoffroyotegbeye/codesens/core/mentoring"
)

func Test_dashboardApi(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	_, err := f.blogSvc.CreatePost(ctx, f.admin, blog.NewPost{Title: "Draft", Content: "<p>x</p>"})
	require.NoError(t, err)
	_, err = f.blogSvc.CreatePost(ctx, f.admin, blog.NewPost{Title: "Live", Content: "<p>x</p>", Status: blog.StatusPublished})
	require.NoError(t, err)

	course, err := f.catalogSvc.Create(ctx, catalog.NewCourse{Title: "Go", Level: catalog.LevelBeginner, Currency: "EUR", IsPublished: true})
	require.NoError(t, err)
	_, err = f.catalogSvc.Create(ctx, catalog.NewCourse{Title: "Rust", Level: catalog.LevelBeginner, Currency: "EUR"})
	require.NoError(t, err)
	_, err = f.catalogSvc.Enroll(ctx, f.student, course.ID)
	require.NoError(t, err)

	_, err = f.mentoringSvc.CreateAvailability(ctx, f.mentor, mentoring.NewAvailability{Weekday: 1, StartTime: "09:00", EndTime: "12:00"})
	require.NoError(t, err)
	first, err := f.mentoringSvc.RequestMentoring(ctx, &f.student, mentoring.MentoringRequest{Name: "Sam", Email: "sam@test.com", Topic: "Go"})
	require.NoError(t, err)
	_, err = f.mentoringSvc.RequestMentoring(ctx, &f.student, mentoring.MentoringRequest{Name: "Sam", Email: "sam@test.com", Topic: "Testing"})
	require.NoError(t, err)
	_, err = f.mentoringSvc.RequestMentoring(ctx, nil, mentoring.MentoringRequest{Name: "Lea", Email: "lea@test.com", Topic: "SQL"})
	require.NoError(t, err)
	_, err = f.mentoringSvc.Confirm(ctx, first, f.admin, mentoring.ConfirmSession{
		MentorID:    f.mentor.ID,
		ScheduledAt: monday.Add(2 * time.Hour),
	})
	require.NoError(t, err)

	t.Run("stats", func(t *testing.T) {
		rec := f.do(http.MethodGet, "/api/v1/dashboard/stats", f.token(t, f.mentor))
		assert.Equal(t, http.StatusForbidden, rec.Code)

		var stats DashboardStats
		decode(t, f.do(http.MethodGet, "/api/v1/dashboard/stats", f.token(t, f.admin)), http.StatusOK, &stats)
		assert.Equal(t, DashboardStats{
			Users:       3,
			Courses:     Total{Total: 2, Published: 1},
			Posts:       Total{Total: 2, Published: 1},
			Mentees:     2,
			Enrollments: 1,
			Sessions: map[string]int{
				mentoring.StatusPending:   2,
				mentoring.StatusConfirmed: 1,
				mentoring.StatusCompleted: 0,
				mentoring.StatusCancelled: 0,
			},
		}, stats)
	})

	t.Run("student", func(t *testing.T) {
		var dash MyDashboard
		decode(t, f.do(http.MethodGet, "/api/v1/dashboard/me", f.token(t, f.student)), http.StatusOK, &dash)
		assert.Equal(t, 1, dash.Enrollments)
		assert.Equal(t, 1, dash.PendingRequests)
		require.Len(t, dash.UpcomingSessions, 1)
		assert.Equal(t, first.ID, dash.UpcomingSessions[0].ID)
	})

	t.Run("mentor", func(t *testing.T) {
		var dash MyDashboard
		decode(t, f.do(http.MethodGet, "/api/v1/dashboard/me", f.token(t, f.mentor)), http.StatusOK, &dash)
		assert.Equal(t, 0, dash.Enrollments)
		assert.Equal(t, 0, dash.PendingRequests)
		assert.Len(t, dash.UpcomingSessions, 1)
	})

	t.Run("past sessions are not upcoming", func(t *testing.T) {
		f.clock.Advance(4 * time.Hour)
		var dash MyDashboard
		decode(t, f.do(http.MethodGet, "/api/v1/dashboard/me", f.token(t, f.student)), http.StatusOK, &dash)
		assert.Empty(t, dash.UpcomingSessions)
	})
}
