//go:build integration

package sqlxrepos

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/geoffroyotegbeye/codesens/core"
	"github.com/geoffroyotegbeye/codesens/core/mentoring"
	"github.com/geoffroyotegbeye/codesens/core/user"
	"github.com/geoffroyotegbeye/codesens/services/email"
	"github.com/geoffroyotegbeye/codesens/storage/database"
	"github.com/geoffroyotegbeye/codesens/tests"
)

// TestPostgres runs the mentoring lifecycle against a real Postgres server.
func TestPostgres(t *testing.T) {
	ctx := context.Background()
	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("codesens"),
		postgres.WithUsername("codesens"),
		postgres.WithPassword("codesens"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable", "timezone=utc")
	require.NoError(t, err)
	db, err := database.OpenURL(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, database.Ping(ctx, db))
	require.NoError(t, database.Migrate(db))

	conf := testutil.NewConfig()
	logger := testutil.NewLogger()
	usrRepo := NewUserRepository(db)
	mailSvc := emailsvc.NewConsoleServiceMock(conf, logger)
	clock := clockwork.NewFakeClockAt(monday)
	svc := mentoring.NewService(NewMentoringRepository(db), user.NewService(usrRepo, mailSvc, nil, conf, logger), mailSvc, conf, clock)

	mentor := testutil.CreateUser(t, usrRepo, "Grace Mentor", "grace", "grace@test.com", "", []string{user.RoleMentor}, true)
	_, err = usrRepo.CreateUser(ctx, user.User{Name: "Dup", Username: "grace", Email: "dup@test.com", Roles: []string{}})
	var vErr *core.ValidationError
	assert.True(t, errors.As(err, &vErr), "unique violations must be detected on postgres")

	_, err = svc.CreateAvailability(ctx, mentor, mentoring.NewAvailability{Weekday: 1, StartTime: "09:00", EndTime: "12:00"})
	require.NoError(t, err)

	first, err := svc.RequestMentoring(ctx, nil, mentoring.MentoringRequest{Name: "Lea", Email: "lea@test.com", Topic: "Go"})
	require.NoError(t, err)
	second, err := svc.RequestMentoring(ctx, nil, mentoring.MentoringRequest{Name: "Max", Email: "max@test.com", Topic: "SQL"})
	require.NoError(t, err)

	at := time.Date(2030, time.January, 7, 10, 0, 0, 0, time.UTC)
	first, err = svc.Confirm(ctx, first, mentor, mentoring.ConfirmSession{ScheduledAt: at})
	require.NoError(t, err)
	assert.True(t, first.ScheduledAt.Time.Equal(at))

	_, err = svc.Confirm(ctx, second, mentor, mentoring.ConfirmSession{ScheduledAt: at.Add(30 * time.Minute)})
	assert.True(t, core.IsConflict(err))

	sessions, total, err := svc.QuerySessions(ctx, &mentoring.SessionFilter{ParticipantID: mentor.ID}, core.Page{})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, sessions, 1)
	assert.Equal(t, "Grace Mentor", sessions[0].MentorName)
	require.Len(t, sessions[0].Mentees, 1)
	assert.Equal(t, "lea@test.com", sessions[0].Mentees[0].Email)

	t.Run("concurrent confirms", func(t *testing.T) {
		for week := 1; week <= 5; week++ {
			slot := at.Add(time.Duration(week) * 7 * 24 * time.Hour)
			pending := make([]mentoring.Session, 2)
			for i := range pending {
				pending[i], err = svc.RequestMentoring(ctx, nil, mentoring.MentoringRequest{
					Name:  "Racer",
					Email: fmt.Sprintf("racer%d-%d@test.com", week, i),
					Topic: "Race",
				})
				require.NoError(t, err)
			}

			errs := make([]error, len(pending))
			var wg sync.WaitGroup
			for i := range pending {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					_, errs[i] = svc.Confirm(ctx, pending[i], mentor, mentoring.ConfirmSession{ScheduledAt: slot})
				}(i)
			}
			wg.Wait()

			confirmed := 0
			for _, err := range errs {
				if err == nil {
					confirmed++
					continue
				}
				assert.True(t, core.IsConflict(err), "%v", err)
			}
			assert.Equal(t, 1, confirmed, "week %d", week)

			_, total, err := svc.QuerySessions(ctx, &mentoring.SessionFilter{
				MentorID: mentor.ID,
				Status:   mentoring.StatusConfirmed,
				From:     slot,
				To:       slot.Add(time.Hour),
			}, core.Page{})
			require.NoError(t, err)
			assert.Equal(t, 1, total, "week %d", week)
		}
	})
}
