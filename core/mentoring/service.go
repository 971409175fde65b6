package mentoring

import (
	"context"
	"net/mail"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/geoffroyotegbeye/codesens/core"
	"github.com/geoffroyotegbeye/codesens/core/user"
)

const scheduleLayout = "Mon, 02 Jan 2006 15:04 MST"

var (
	// errors
	ErrMenteeNotFound       = errors.New("mentee not found")
	ErrMenteeEmailExists    = errors.New("a mentee with this email already exists")
	ErrSessionNotFound      = errors.New("session not found")
	ErrSessionChanged       = errors.New("session status changed")
	ErrAvailabilityNotFound = errors.New("availability not found")
	ErrPricingNotFound      = errors.New("pricing plan not found")
)

type (
	Repository interface {
		// InTx runs fn with a Repository bound to a single transaction.
		InTx(ctx context.Context, fn func(repo Repository) error) error

		// CreateMentee returns ErrMenteeEmailExists when the email is taken.
		CreateMentee(ctx context.Context, mentee Mentee) (Mentee, error)
		GetMentee(ctx context.Context, id string) (Mentee, error)
		GetMenteeByEmail(ctx context.Context, email string) (Mentee, error)
		QueryMentees(ctx context.Context, filter *MenteeFilter, page core.Page) ([]Mentee, int, error)
		// UpdateMentee returns ErrMenteeEmailExists when the email is taken.
		UpdateMentee(ctx context.Context, mentee Mentee) (Mentee, error)
		DeleteMentee(ctx context.Context, id string) error
		CountMentees(ctx context.Context) (int, error)

		// CreateSession also links the session to Session.MenteeIDs.
		CreateSession(ctx context.Context, sess Session) (Session, error)
		GetSession(ctx context.Context, id string) (Session, error)
		// QuerySessions returns sessions ordered by scheduled date (unscheduled last), then creation date.
		QuerySessions(ctx context.Context, filter *SessionFilter, page core.Page) ([]Session, int, error)
		// UpdateSession saves sess only while its stored status is still status. It returns
		// ErrSessionChanged otherwise.
		UpdateSession(ctx context.Context, sess Session, status string) (Session, error)
		DeleteSession(ctx context.Context, id string) error
		CountSessionsByStatus(ctx context.Context, filter *SessionFilter) (map[string]int, error)
		// LockMentor blocks other transactions scheduling the mentor until the current one ends.
		LockMentor(ctx context.Context, mentorID string) error

		CreateAvailability(ctx context.Context, av Availability) (Availability, error)
		GetAvailability(ctx context.Context, id string) (Availability, error)
		// QueryAvailabilities lists the windows of a mentor, or of every mentor when mentorID is empty.
		QueryAvailabilities(ctx context.Context, mentorID string) ([]Availability, error)
		UpdateAvailability(ctx context.Context, av Availability) (Availability, error)
		DeleteAvailability(ctx context.Context, id string) error

		PricingNameExists(ctx context.Context, name, exclID string) (bool, error)
		CreatePricingPlan(ctx context.Context, plan PricingPlan) (PricingPlan, error)
		GetPricingPlan(ctx context.Context, id string) (PricingPlan, error)
		QueryPricingPlans(ctx context.Context, activeOnly bool) ([]PricingPlan, error)
		UpdatePricingPlan(ctx context.Context, plan PricingPlan) (PricingPlan, error)
		DeletePricingPlan(ctx context.Context, id string) error
	}

	Service interface {
		// RequestMentoring records a pending session for the requesting mentee, creating the mentee when
		// the email is new. requester is nil for anonymous visitors; a signed-in requester is linked to the
		// mentee only when the emails match.
		RequestMentoring(ctx context.Context, requester *user.User, mr MentoringRequest) (Session, error)

		CreateMentee(ctx context.Context, nm NewMentee) (Mentee, error)
		QueryMentees(ctx context.Context, filter *MenteeFilter, page core.Page) ([]Mentee, int, error)
		GetMentee(ctx context.Context, id string) (Mentee, error)
		UpdateMentee(ctx context.Context, mentee Mentee, nm NewMentee) (Mentee, error)
		DeleteMentee(ctx context.Context, id string) error
		CountMentees(ctx context.Context) (int, error)

		QuerySessions(ctx context.Context, filter *SessionFilter, page core.Page) ([]Session, int, error)
		GetSession(ctx context.Context, id string) (Session, error)
		UpdateSession(ctx context.Context, sess Session, us UpdateSession) (Session, error)
		Confirm(ctx context.Context, sess Session, actor user.User, cs ConfirmSession) (Session, error)
		Cancel(ctx context.Context, sess Session, cs CancelSession) (Session, error)
		Complete(ctx context.Context, sess Session) (Session, error)
		DeleteSession(ctx context.Context, id string) error
		CountSessionsByStatus(ctx context.Context, filter *SessionFilter) (map[string]int, error)

		CreateAvailability(ctx context.Context, actor user.User, na NewAvailability) (Availability, error)
		QueryAvailabilities(ctx context.Context, mentorID string) ([]Availability, error)
		GetAvailability(ctx context.Context, id string) (Availability, error)
		UpdateAvailability(ctx context.Context, av Availability, na NewAvailability) (Availability, error)
		DeleteAvailability(ctx context.Context, id string) error

		CreatePricingPlan(ctx context.Context, np NewPricingPlan) (PricingPlan, error)
		QueryPricingPlans(ctx context.Context, activeOnly bool) ([]PricingPlan, error)
		GetPricingPlan(ctx context.Context, id string) (PricingPlan, error)
		UpdatePricingPlan(ctx context.Context, plan PricingPlan, np NewPricingPlan) (PricingPlan, error)
		DeletePricingPlan(ctx context.Context, id string) error
	}

	service struct {
		repo            Repository
		usrSvc          user.Service
		mailSvc         core.EmailService
		clock           clockwork.Clock
		frontendBaseURL string
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, usrSvc user.Service, mailSvc core.EmailService, conf *core.Config, clock clockwork.Clock) Service {
	return &service{
		repo:            repo,
		usrSvc:          usrSvc,
		mailSvc:         mailSvc,
		clock:           clock,
		frontendBaseURL: conf.FrontendBaseURL,
	}
}

func (svc *service) now() time.Time {
	return svc.clock.Now().UTC()
}

// MeetingURL returns the default call page of a session.
func (svc *service) MeetingURL(sessID string) string {
	return svc.frontendBaseURL + "/mentoring/call/" + sessID
}

func transitionError(sess Session, to string) error {
	return core.NewConflictError("cannot move a " + sess.Status + " session to " + to)
}

// Requests

func (svc *service) RequestMentoring(ctx context.Context, requester *user.User, mr MentoringRequest) (Session, error) {
	now := svc.now()
	if mr.PreferredAt.Valid && !mr.PreferredAt.Time.After(now) {
		return Session{}, core.NewValidationError(nil, core.FieldError{Field: "preferred_at", Error: "must be in the future"})
	}

	duration := DefaultDurationMinutes
	if mr.PricingID != "" {
		plan, err := svc.repo.GetPricingPlan(ctx, mr.PricingID)
		if err != nil && errors.Cause(err) != ErrPricingNotFound {
			return Session{}, errors.Wrap(err, "getting pricing plan")
		}
		if err != nil || !plan.IsActive {
			return Session{}, core.NewValidationError(nil, core.FieldError{Field: "pricing_id", Error: "unknown pricing plan"})
		}
		duration = plan.DurationMinutes
	}

	// only the owner of the email may link their account or edit the mentee profile
	owner := requester != nil && strings.EqualFold(requester.Email, mr.Email)

	var sess Session
	err := svc.repo.InTx(ctx, func(repo Repository) error {
		mentee, err := repo.GetMenteeByEmail(ctx, mr.Email)
		switch errors.Cause(err) {
		case nil:
			if owner && (mentee.UserID == "" || mentee.UserID == requester.ID) {
				mentee.UserID = requester.ID
				mentee.Name = mr.Name
				if mr.Phone != "" {
					mentee.Phone = mr.Phone
				}
				if mr.Goals != "" {
					mentee.Goals = mr.Goals
				}
			}
			mentee.Status = MenteeActive
			mentee.UpdatedAt = now
			if mentee, err = repo.UpdateMentee(ctx, mentee); err != nil {
				return errors.Wrap(err, "updating mentee")
			}
		case ErrMenteeNotFound:
			mentee = Mentee{
				Name:      mr.Name,
				Email:     mr.Email,
				Phone:     mr.Phone,
				Goals:     mr.Goals,
				Status:    MenteeActive,
				CreatedAt: now,
				UpdatedAt: now,
			}
			if owner {
				mentee.UserID = requester.ID
			}
			if mentee, err = repo.CreateMentee(ctx, mentee); err != nil {
				return errors.Wrap(err, "creating mentee")
			}
		default:
			return errors.Wrap(err, "getting mentee")
		}

		sess, err = repo.CreateSession(ctx, Session{
			MenteeIDs:       core.StringList{mentee.ID},
			PricingID:       mr.PricingID,
			Topic:           mr.Topic,
			Notes:           mr.Goals,
			Status:          StatusPending,
			PreferredAt:     mr.PreferredAt,
			DurationMinutes: duration,
			CreatedAt:       now,
			UpdatedAt:       now,
		})
		return errors.Wrap(err, "creating session")
	})
	if err != nil {
		return Session{}, err
	}

	svc.notify(sess, "Your mentoring request", "mentoring_request", func(m Mentee) map[string]interface{} {
		return map[string]interface{}{"Name": m.Name, "Topic": sess.Topic}
	})
	return sess, nil
}

// notify emails every mentee of the session.
func (svc *service) notify(sess Session, subject, tmpl string, data func(m Mentee) map[string]interface{}) {
	msgs := make([]*core.EmailMessage, 0, len(sess.Mentees))
	for _, mentee := range sess.Mentees {
		if mentee.Email == "" {
			continue
		}
		msgs = append(msgs, &core.EmailMessage{
			To:           []mail.Address{{Name: mentee.Name, Address: mentee.Email}},
			Subject:      subject,
			TemplateName: tmpl,
			TemplateData: data(mentee),
		})
	}
	if len(msgs) > 0 {
		svc.mailSvc.SendMessages(msgs...)
	}
}

// Mentees

func (svc *service) checkUser(ctx context.Context, userID string) error {
	if userID == "" {
		return nil
	}
	if _, err := svc.usrSvc.GetByID(ctx, userID); err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return core.NewValidationError(err, core.FieldError{Field: "user_id", Error: "unknown user"})
		}
		return errors.Wrap(err, "getting user")
	}
	return nil
}

func menteeEmailError(err error) error {
	if errors.Cause(err) == ErrMenteeEmailExists {
		return core.NewValidationError(err, core.FieldError{Field: "email", Error: err.Error()})
	}
	return err
}

func (svc *service) CreateMentee(ctx context.Context, nm NewMentee) (Mentee, error) {
	if err := svc.checkUser(ctx, nm.UserID); err != nil {
		return Mentee{}, err
	}
	now := svc.now()
	mentee, err := svc.repo.CreateMentee(ctx, Mentee{
		UserID:    nm.UserID,
		Name:      nm.Name,
		Email:     nm.Email,
		Phone:     nm.Phone,
		Goals:     nm.Goals,
		Status:    nm.Status,
		CreatedAt: now,
		UpdatedAt: now,
	})
	return mentee, menteeEmailError(err)
}

func (svc *service) QueryMentees(ctx context.Context, filter *MenteeFilter, page core.Page) ([]Mentee, int, error) {
	return svc.repo.QueryMentees(ctx, filter, page)
}

func (svc *service) GetMentee(ctx context.Context, id string) (Mentee, error) {
	return svc.repo.GetMentee(ctx, id)
}

func (svc *service) UpdateMentee(ctx context.Context, mentee Mentee, nm NewMentee) (Mentee, error) {
	if nm.UserID != mentee.UserID {
		if err := svc.checkUser(ctx, nm.UserID); err != nil {
			return Mentee{}, err
		}
	}
	mentee.UserID = nm.UserID
	mentee.Name = nm.Name
	mentee.Email = nm.Email
	mentee.Phone = nm.Phone
	mentee.Goals = nm.Goals
	mentee.Status = nm.Status
	mentee.UpdatedAt = svc.now()
	mentee, err := svc.repo.UpdateMentee(ctx, mentee)
	return mentee, menteeEmailError(err)
}

func (svc *service) DeleteMentee(ctx context.Context, id string) error {
	return svc.repo.DeleteMentee(ctx, id)
}

func (svc *service) CountMentees(ctx context.Context) (int, error) {
	return svc.repo.CountMentees(ctx)
}

// Sessions

func (svc *service) QuerySessions(ctx context.Context, filter *SessionFilter, page core.Page) ([]Session, int, error) {
	return svc.repo.QuerySessions(ctx, filter, page)
}

func (svc *service) GetSession(ctx context.Context, id string) (Session, error) {
	return svc.repo.GetSession(ctx, id)
}

// getMentor returns the user with given ID when they may mentor.
func (svc *service) getMentor(ctx context.Context, id string) (user.User, error) {
	mentor, err := svc.usrSvc.GetByID(ctx, id)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return user.User{}, core.NewValidationError(err, core.FieldError{Field: "mentor_id", Error: "unknown mentor"})
		}
		return user.User{}, errors.Wrap(err, "getting mentor")
	}
	if !mentor.CanMentor() {
		return user.User{}, core.NewValidationError(nil, core.FieldError{Field: "mentor_id", Error: "user cannot mentor"})
	}
	return mentor, nil
}

// saveSession reloads the session inside a transaction, lets fn change the fresh copy and stores it.
// The write fails with a conflict when the status moved away from the one of the caller's copy.
func (svc *service) saveSession(ctx context.Context, sess Session, fn func(repo Repository, current *Session) error) (Session, error) {
	var saved Session
	err := svc.repo.InTx(ctx, func(repo Repository) error {
		current, err := repo.GetSession(ctx, sess.ID)
		if err != nil {
			return err
		}
		if current.Status != sess.Status {
			return staleError(current)
		}
		if err = fn(repo, &current); err != nil {
			return err
		}
		saved, err = repo.UpdateSession(ctx, current, sess.Status)
		if errors.Cause(err) == ErrSessionChanged {
			return core.NewConflictError("the session was modified meanwhile, reload it and try again")
		}
		return err
	})
	if err != nil {
		return Session{}, err
	}
	return saved, nil
}

func staleError(current Session) error {
	return core.NewConflictError("the session is now " + current.Status + ", reload it and try again")
}

func (svc *service) UpdateSession(ctx context.Context, sess Session, us UpdateSession) (Session, error) {
	if sess.IsTerminal() {
		return Session{}, core.NewConflictError("a " + sess.Status + " session cannot be modified")
	}
	if us.MentorID != "" && us.MentorID != sess.MentorID {
		if _, err := svc.getMentor(ctx, us.MentorID); err != nil {
			return Session{}, err
		}
	}
	for _, id := range us.MenteeIDs {
		if _, err := svc.repo.GetMentee(ctx, id); err != nil {
			if errors.Cause(err) == ErrMenteeNotFound {
				return Session{}, core.NewValidationError(err, core.FieldError{Field: "mentee_ids", Error: "unknown mentee: " + id})
			}
			return Session{}, errors.Wrap(err, "getting mentee")
		}
	}
	if us.PricingID != "" && us.PricingID != sess.PricingID {
		if _, err := svc.repo.GetPricingPlan(ctx, us.PricingID); err != nil {
			if errors.Cause(err) == ErrPricingNotFound {
				return Session{}, core.NewValidationError(err, core.FieldError{Field: "pricing_id", Error: "unknown pricing plan"})
			}
			return Session{}, errors.Wrap(err, "getting pricing plan")
		}
	}

	now := svc.now()
	return svc.saveSession(ctx, sess, func(_ Repository, current *Session) error {
		if us.MentorID != "" && us.MentorID != current.MentorID {
			if current.Status == StatusConfirmed {
				return core.NewConflictError("the mentor of a confirmed session cannot be changed")
			}
			current.MentorID = us.MentorID
		}
		if us.DurationMinutes > 0 && us.DurationMinutes != current.DurationMinutes {
			if current.Status == StatusConfirmed {
				return core.NewConflictError("the duration of a confirmed session cannot be changed")
			}
			current.DurationMinutes = us.DurationMinutes
		}
		current.Topic = us.Topic
		current.Notes = us.Notes
		current.MenteeIDs = us.MenteeIDs
		current.PricingID = us.PricingID
		current.UpdatedAt = now
		return nil
	})
}

// Confirm schedules a pending session with a mentor. The slot must be in the future, inside one of the
// mentor's availability windows and free of the mentor's other confirmed sessions.
func (svc *service) Confirm(ctx context.Context, sess Session, actor user.User, cs ConfirmSession) (Session, error) {
	if !CanTransition(sess.Status, StatusConfirmed) {
		return Session{}, transitionError(sess, StatusConfirmed)
	}

	mentorID := cs.MentorID
	if mentorID == "" {
		mentorID = sess.MentorID
	}
	if mentorID == "" && actor.IsMentor() {
		mentorID = actor.ID
	}
	if mentorID == "" {
		return Session{}, core.NewValidationError(nil, core.FieldError{Field: "mentor_id", Error: "this field is required"})
	}
	// mentors can only confirm their own sessions
	if !actor.IsAdmin() && mentorID != actor.ID {
		return Session{}, core.NewValidationError(nil, core.FieldError{Field: "mentor_id", Error: "mentors can only confirm their own sessions"})
	}
	mentor, err := svc.getMentor(ctx, mentorID)
	if err != nil {
		return Session{}, err
	}

	now := svc.now()
	if !cs.ScheduledAt.After(now) {
		return Session{}, core.NewValidationError(nil, core.FieldError{Field: "scheduled_at", Error: "must be in the future"})
	}

	sess, err = svc.saveSession(ctx, sess, func(repo Repository, current *Session) error {
		// one scheduling transaction per mentor at a time, so the overlap check below stays true until commit
		if err := repo.LockMentor(ctx, mentor.ID); err != nil {
			return errors.Wrap(err, "locking mentor")
		}

		if cs.DurationMinutes > 0 {
			current.DurationMinutes = cs.DurationMinutes
		}
		current.MentorID = mentor.ID
		current.ScheduledAt = null.TimeFrom(cs.ScheduledAt)

		windows, err := repo.QueryAvailabilities(ctx, mentor.ID)
		if err != nil {
			return errors.Wrap(err, "querying availabilities")
		}
		available := false
		for _, w := range windows {
			if w.Covers(current.ScheduledAt.Time, current.End()) {
				available = true
				break
			}
		}
		if !available {
			return core.NewConflictError("the mentor is not available at this time")
		}

		others, _, err := repo.QuerySessions(ctx, &SessionFilter{
			MentorID: mentor.ID,
			Status:   StatusConfirmed,
			From:     current.ScheduledAt.Time.Add(-MaxDurationMinutes * time.Minute),
			To:       current.End(),
		}, core.Page{Limit: core.MaxPageSize})
		if err != nil {
			return errors.Wrap(err, "querying mentor sessions")
		}
		for _, other := range others {
			if other.ID != current.ID && current.Overlaps(other) {
				return core.NewConflictError("the mentor already has a session at this time")
			}
		}

		current.Status = StatusConfirmed
		current.MeetingURL = cs.MeetingURL
		if current.MeetingURL == "" {
			current.MeetingURL = svc.MeetingURL(current.ID)
		}
		current.ConfirmedAt = null.TimeFrom(now)
		current.UpdatedAt = now
		return nil
	})
	if err != nil {
		return Session{}, err
	}

	svc.notify(sess, "Your mentoring session is confirmed", "session_confirmed", func(m Mentee) map[string]interface{} {
		return map[string]interface{}{
			"Name":            m.Name,
			"Topic":           sess.Topic,
			"ScheduledAt":     sess.ScheduledAt.Time.Format(scheduleLayout),
			"DurationMinutes": sess.DurationMinutes,
			"MeetingURL":      sess.MeetingURL,
		}
	})
	return sess, nil
}

func (svc *service) Cancel(ctx context.Context, sess Session, cs CancelSession) (Session, error) {
	if !CanTransition(sess.Status, StatusCancelled) {
		return Session{}, transitionError(sess, StatusCancelled)
	}
	now := svc.now()
	sess, err := svc.saveSession(ctx, sess, func(_ Repository, current *Session) error {
		current.Status = StatusCancelled
		current.CancelReason = cs.Reason
		current.CancelledAt = null.TimeFrom(now)
		current.UpdatedAt = now
		return nil
	})
	if err != nil {
		return Session{}, err
	}

	svc.notify(sess, "Your mentoring session was cancelled", "session_cancelled", func(m Mentee) map[string]interface{} {
		return map[string]interface{}{"Name": m.Name, "Topic": sess.Topic, "Reason": sess.CancelReason}
	})
	return sess, nil
}

func (svc *service) Complete(ctx context.Context, sess Session) (Session, error) {
	if !CanTransition(sess.Status, StatusCompleted) {
		return Session{}, transitionError(sess, StatusCompleted)
	}
	now := svc.now()
	return svc.saveSession(ctx, sess, func(_ Repository, current *Session) error {
		if !current.ScheduledAt.Valid || current.ScheduledAt.Time.After(now) {
			return core.NewConflictError("the session has not started yet")
		}
		current.Status = StatusCompleted
		current.CompletedAt = null.TimeFrom(now)
		current.UpdatedAt = now
		return nil
	})
}

func (svc *service) DeleteSession(ctx context.Context, id string) error {
	return svc.repo.DeleteSession(ctx, id)
}

func (svc *service) CountSessionsByStatus(ctx context.Context, filter *SessionFilter) (map[string]int, error) {
	counts, err := svc.repo.CountSessionsByStatus(ctx, filter)
	if err != nil {
		return nil, err
	}
	for _, status := range SessionStatuses {
		if _, ok := counts[status]; !ok {
			counts[status] = 0
		}
	}
	return counts, nil
}

// Availabilities

func (svc *service) checkAvailabilityOverlap(ctx context.Context, av Availability) error {
	windows, err := svc.repo.QueryAvailabilities(ctx, av.MentorID)
	if err != nil {
		return errors.Wrap(err, "querying availabilities")
	}
	for _, w := range windows {
		if w.ID != av.ID && w.overlaps(av) {
			return core.NewConflictError("this window overlaps another availability of the mentor")
		}
	}
	return nil
}

func (svc *service) CreateAvailability(ctx context.Context, actor user.User, na NewAvailability) (Availability, error) {
	if na.MentorID == "" && actor.IsMentor() {
		na.MentorID = actor.ID
	}
	if na.MentorID == "" {
		return Availability{}, core.NewValidationError(nil, core.FieldError{Field: "mentor_id", Error: "this field is required"})
	}
	if !actor.IsAdmin() && na.MentorID != actor.ID {
		return Availability{}, core.NewValidationError(nil, core.FieldError{Field: "mentor_id", Error: "mentors can only manage their own availability"})
	}
	if _, err := svc.getMentor(ctx, na.MentorID); err != nil {
		return Availability{}, err
	}

	av := Availability{
		MentorID:  na.MentorID,
		Weekday:   na.Weekday,
		StartTime: na.StartTime,
		EndTime:   na.EndTime,
		CreatedAt: svc.now(),
	}
	if err := svc.checkAvailabilityOverlap(ctx, av); err != nil {
		return Availability{}, err
	}
	return svc.repo.CreateAvailability(ctx, av)
}

func (svc *service) QueryAvailabilities(ctx context.Context, mentorID string) ([]Availability, error) {
	return svc.repo.QueryAvailabilities(ctx, mentorID)
}

func (svc *service) GetAvailability(ctx context.Context, id string) (Availability, error) {
	return svc.repo.GetAvailability(ctx, id)
}

// UpdateAvailability moves a window; its mentor never changes.
func (svc *service) UpdateAvailability(ctx context.Context, av Availability, na NewAvailability) (Availability, error) {
	av.Weekday = na.Weekday
	av.StartTime = na.StartTime
	av.EndTime = na.EndTime
	if err := svc.checkAvailabilityOverlap(ctx, av); err != nil {
		return Availability{}, err
	}
	return svc.repo.UpdateAvailability(ctx, av)
}

func (svc *service) DeleteAvailability(ctx context.Context, id string) error {
	return svc.repo.DeleteAvailability(ctx, id)
}

// Pricing

func (svc *service) checkPricingName(ctx context.Context, name, exclID string) error {
	exists, err := svc.repo.PricingNameExists(ctx, name, exclID)
	if err != nil {
		return errors.Wrap(err, "checking pricing plan name")
	}
	if exists {
		return core.NewValidationError(nil, core.FieldError{Field: "name", Error: "a pricing plan with this name already exists"})
	}
	return nil
}

func (svc *service) CreatePricingPlan(ctx context.Context, np NewPricingPlan) (PricingPlan, error) {
	if err := svc.checkPricingName(ctx, np.Name, ""); err != nil {
		return PricingPlan{}, err
	}
	now := svc.now()
	plan := PricingPlan{
		Name:            np.Name,
		Description:     np.Description,
		DurationMinutes: np.DurationMinutes,
		PriceCents:      np.PriceCents,
		Currency:        np.Currency,
		IsActive:        true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if np.IsActive != nil {
		plan.IsActive = *np.IsActive
	}
	return svc.repo.CreatePricingPlan(ctx, plan)
}

func (svc *service) QueryPricingPlans(ctx context.Context, activeOnly bool) ([]PricingPlan, error) {
	return svc.repo.QueryPricingPlans(ctx, activeOnly)
}

func (svc *service) GetPricingPlan(ctx context.Context, id string) (PricingPlan, error) {
	return svc.repo.GetPricingPlan(ctx, id)
}

func (svc *service) UpdatePricingPlan(ctx context.Context, plan PricingPlan, np NewPricingPlan) (PricingPlan, error) {
	if err := svc.checkPricingName(ctx, np.Name, plan.ID); err != nil {
		return PricingPlan{}, err
	}
	plan.Name = np.Name
	plan.Description = np.Description
	plan.DurationMinutes = np.DurationMinutes
	plan.PriceCents = np.PriceCents
	plan.Currency = np.Currency
	if np.IsActive != nil {
		plan.IsActive = *np.IsActive
	}
	plan.UpdatedAt = svc.now()
	return svc.repo.UpdatePricingPlan(ctx, plan)
}

func (svc *service) DeletePricingPlan(ctx context.Context, id string) error {
	return svc.repo.DeletePricingPlan(ctx, id)
}
