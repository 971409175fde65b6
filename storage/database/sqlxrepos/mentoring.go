package sqlxrepos

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/geoffroyotegbeye/codesens/core"
	"github.com/geoffroyotegbeye/codesens/core/mentoring"
	"github.com/geoffroyotegbeye/codesens/core/user"
	"github.com/geoffroyotegbeye/codesens/storage/database"
)

const sessionSelect = `
	SELECT s.*, COALESCE(u.name, '') AS mentor_name
	FROM mentoring_sessions s
	LEFT JOIN users u ON u.id = s.mentor_id`

type menteeRow struct {
	ID        string      `db:"id"`
	UserID    null.String `db:"user_id"`
	Name      string      `db:"name"`
	Email     string      `db:"email"`
	Phone     string      `db:"phone"`
	Goals     string      `db:"goals"`
	Status    string      `db:"status"`
	CreatedAt time.Time   `db:"created_at"`
	UpdatedAt time.Time   `db:"updated_at"`
}

func toMenteeRow(m mentoring.Mentee) menteeRow {
	return menteeRow{
		ID:        m.ID,
		UserID:    null.NewString(m.UserID, m.UserID != ""),
		Name:      m.Name,
		Email:     m.Email,
		Phone:     m.Phone,
		Goals:     m.Goals,
		Status:    m.Status,
		CreatedAt: m.CreatedAt.UTC(),
		UpdatedAt: m.UpdatedAt.UTC(),
	}
}

func (r menteeRow) toMentee() mentoring.Mentee {
	return mentoring.Mentee{
		ID:        r.ID,
		UserID:    r.UserID.String,
		Name:      r.Name,
		Email:     r.Email,
		Phone:     r.Phone,
		Goals:     r.Goals,
		Status:    r.Status,
		CreatedAt: r.CreatedAt.UTC(),
		UpdatedAt: r.UpdatedAt.UTC(),
	}
}

// sessionMenteeRow is a mentee along with the session it was loaded for.
type sessionMenteeRow struct {
	menteeRow
	SessionID string `db:"session_id"`
}

type sessionRow struct {
	ID              string      `db:"id"`
	MentorID        null.String `db:"mentor_id"`
	PricingID       null.String `db:"pricing_id"`
	Topic           string      `db:"topic"`
	Notes           string      `db:"notes"`
	Status          string      `db:"status"`
	PreferredAt     null.Time   `db:"preferred_at"`
	ScheduledAt     null.Time   `db:"scheduled_at"`
	DurationMinutes int         `db:"duration_minutes"`
	MeetingURL      string      `db:"meeting_url"`
	CancelReason    string      `db:"cancel_reason"`
	ConfirmedAt     null.Time   `db:"confirmed_at"`
	CompletedAt     null.Time   `db:"completed_at"`
	CancelledAt     null.Time   `db:"cancelled_at"`
	CreatedAt       time.Time   `db:"created_at"`
	UpdatedAt       time.Time   `db:"updated_at"`

	// joined
	MentorName string `db:"mentor_name"`
}

func toSessionRow(s mentoring.Session) sessionRow {
	return sessionRow{
		ID:              s.ID,
		MentorID:        null.NewString(s.MentorID, s.MentorID != ""),
		PricingID:       null.NewString(s.PricingID, s.PricingID != ""),
		Topic:           s.Topic,
		Notes:           s.Notes,
		Status:          s.Status,
		PreferredAt:     utcNull(s.PreferredAt),
		ScheduledAt:     utcNull(s.ScheduledAt),
		DurationMinutes: s.DurationMinutes,
		MeetingURL:      s.MeetingURL,
		CancelReason:    s.CancelReason,
		ConfirmedAt:     utcNull(s.ConfirmedAt),
		CompletedAt:     utcNull(s.CompletedAt),
		CancelledAt:     utcNull(s.CancelledAt),
		CreatedAt:       s.CreatedAt.UTC(),
		UpdatedAt:       s.UpdatedAt.UTC(),
	}
}

func (r sessionRow) toSession() mentoring.Session {
	return mentoring.Session{
		ID:              r.ID,
		MenteeIDs:       core.StringList{},
		Mentees:         []mentoring.Mentee{},
		MentorID:        r.MentorID.String,
		MentorName:      r.MentorName,
		PricingID:       r.PricingID.String,
		Topic:           r.Topic,
		Notes:           r.Notes,
		Status:          r.Status,
		PreferredAt:     utcNull(r.PreferredAt),
		ScheduledAt:     utcNull(r.ScheduledAt),
		DurationMinutes: r.DurationMinutes,
		MeetingURL:      r.MeetingURL,
		CancelReason:    r.CancelReason,
		ConfirmedAt:     utcNull(r.ConfirmedAt),
		CompletedAt:     utcNull(r.CompletedAt),
		CancelledAt:     utcNull(r.CancelledAt),
		CreatedAt:       r.CreatedAt.UTC(),
		UpdatedAt:       r.UpdatedAt.UTC(),
	}
}

type availabilityRow struct {
	ID        string    `db:"id"`
	MentorID  string    `db:"mentor_id"`
	Weekday   int       `db:"weekday"`
	StartTime string    `db:"start_time"`
	EndTime   string    `db:"end_time"`
	CreatedAt time.Time `db:"created_at"`
}

func (r availabilityRow) toAvailability() mentoring.Availability {
	return mentoring.Availability{
		ID:        r.ID,
		MentorID:  r.MentorID,
		Weekday:   r.Weekday,
		StartTime: r.StartTime,
		EndTime:   r.EndTime,
		CreatedAt: r.CreatedAt.UTC(),
	}
}

type pricingRow struct {
	ID              string    `db:"id"`
	Name            string    `db:"name"`
	Description     string    `db:"description"`
	DurationMinutes int       `db:"duration_minutes"`
	PriceCents      int64     `db:"price_cents"`
	Currency        string    `db:"currency"`
	IsActive        bool      `db:"is_active"`
	CreatedAt       time.Time `db:"created_at"`
	UpdatedAt       time.Time `db:"updated_at"`
}

func (r pricingRow) toPricingPlan() mentoring.PricingPlan {
	return mentoring.PricingPlan{
		ID:              r.ID,
		Name:            r.Name,
		Description:     r.Description,
		DurationMinutes: r.DurationMinutes,
		PriceCents:      r.PriceCents,
		Currency:        r.Currency,
		IsActive:        r.IsActive,
		CreatedAt:       r.CreatedAt.UTC(),
		UpdatedAt:       r.UpdatedAt.UTC(),
	}
}

type mentoringRepository struct {
	db   core.DB // nil inside a transaction
	exec core.DBExecutor
}

var _ mentoring.Repository = (*mentoringRepository)(nil) // interface compliance check

func NewMentoringRepository(db core.DB) mentoring.Repository {
	return &mentoringRepository{db: db, exec: db}
}

func (repo *mentoringRepository) InTx(ctx context.Context, fn func(repo mentoring.Repository) error) error {
	return inTx(ctx, repo.db, repo.exec, func(ex core.DBExecutor) error {
		return fn(&mentoringRepository{exec: ex})
	})
}

// Mentees

func (repo *mentoringRepository) CreateMentee(ctx context.Context, mentee mentoring.Mentee) (mentoring.Mentee, error) {
	mentee.ID = newID()
	_, err := repo.exec.NamedExecContext(ctx, `
		INSERT INTO mentees (id, user_id, name, email, phone, goals, status, created_at, updated_at)
		VALUES (:id, :user_id, :name, :email, :phone, :goals, :status, :created_at, :updated_at)`,
		toMenteeRow(mentee))
	if err != nil {
		if isUniqueViolation(err) {
			return mentoring.Mentee{}, mentoring.ErrMenteeEmailExists
		}
		return mentoring.Mentee{}, errors.Wrap(err, "inserting mentee")
	}
	return mentee, nil
}

func (repo *mentoringRepository) GetMentee(ctx context.Context, id string) (mentoring.Mentee, error) {
	if !validID(id) {
		return mentoring.Mentee{}, mentoring.ErrMenteeNotFound
	}
	var row menteeRow
	if err := get(ctx, repo.exec, &row, "SELECT * FROM mentees WHERE id = ?", id); err != nil {
		return mentoring.Mentee{}, trapNoRowsErr(err, mentoring.ErrMenteeNotFound, "finding mentee")
	}
	return row.toMentee(), nil
}

func (repo *mentoringRepository) GetMenteeByEmail(ctx context.Context, email string) (mentoring.Mentee, error) {
	var row menteeRow
	if err := get(ctx, repo.exec, &row, "SELECT * FROM mentees WHERE email = ?", email); err != nil {
		return mentoring.Mentee{}, trapNoRowsErr(err, mentoring.ErrMenteeNotFound, "finding mentee by email")
	}
	return row.toMentee(), nil
}

func (repo *mentoringRepository) QueryMentees(ctx context.Context, filter *mentoring.MenteeFilter, page core.Page) ([]mentoring.Mentee, int, error) {
	w := new(whereClause)
	if filter != nil {
		if filter.Status != "" {
			w.add("status = ?", filter.Status)
		}
		w.search(filter.Search, "name", "email", "goals")
	}

	total, err := count(ctx, repo.exec, "SELECT COUNT(*) FROM mentees"+w.String(), w.args...)
	if err != nil {
		return nil, 0, errors.Wrap(err, "counting mentees")
	}

	q, args := limit("SELECT * FROM mentees"+w.String()+" ORDER BY created_at DESC, id", w.args, page)
	var rows []menteeRow
	if err = sel(ctx, repo.exec, &rows, q, args...); err != nil {
		return nil, 0, errors.Wrap(err, "querying mentees")
	}
	mentees := make([]mentoring.Mentee, 0, len(rows))
	for _, r := range rows {
		mentees = append(mentees, r.toMentee())
	}
	return mentees, total, nil
}

func (repo *mentoringRepository) UpdateMentee(ctx context.Context, mentee mentoring.Mentee) (mentoring.Mentee, error) {
	res, err := repo.exec.NamedExecContext(ctx, `
		UPDATE mentees SET user_id = :user_id, name = :name, email = :email, phone = :phone, goals = :goals,
			status = :status, updated_at = :updated_at
		WHERE id = :id`,
		toMenteeRow(mentee))
	if err != nil {
		if isUniqueViolation(err) {
			return mentoring.Mentee{}, mentoring.ErrMenteeEmailExists
		}
		return mentoring.Mentee{}, errors.Wrap(err, "updating mentee")
	}
	return mentee, checkAffected(res, mentoring.ErrMenteeNotFound)
}

func (repo *mentoringRepository) DeleteMentee(ctx context.Context, id string) error {
	if !validID(id) {
		return mentoring.ErrMenteeNotFound
	}
	res, err := exec(ctx, repo.exec, "DELETE FROM mentees WHERE id = ?", id)
	if err != nil {
		return errors.Wrap(err, "deleting mentee")
	}
	return checkAffected(res, mentoring.ErrMenteeNotFound)
}

func (repo *mentoringRepository) CountMentees(ctx context.Context) (int, error) {
	n, err := count(ctx, repo.exec, "SELECT COUNT(*) FROM mentees")
	return n, errors.Wrap(err, "counting mentees")
}

// Sessions

// loadMentees fills Session.Mentees and Session.MenteeIDs.
func (repo *mentoringRepository) loadMentees(ctx context.Context, sessions []mentoring.Session) error {
	if len(sessions) == 0 {
		return nil
	}
	ids := make([]string, 0, len(sessions))
	idx := make(map[string]int, len(sessions))
	for i, s := range sessions {
		ids = append(ids, s.ID)
		idx[s.ID] = i
	}

	q, args, err := in(`
		SELECT m.*, sm.session_id FROM mentees m
		JOIN session_mentees sm ON sm.mentee_id = m.id
		WHERE sm.session_id IN (?)
		ORDER BY m.name, m.id`, ids)
	if err != nil {
		return err
	}
	var rows []sessionMenteeRow
	if err = sel(ctx, repo.exec, &rows, q, args...); err != nil {
		return errors.Wrap(err, "querying session mentees")
	}
	for _, r := range rows {
		s := &sessions[idx[r.SessionID]]
		s.Mentees = append(s.Mentees, r.toMentee())
		s.MenteeIDs = append(s.MenteeIDs, r.ID)
	}
	return nil
}

func setSessionMentees(ctx context.Context, ex core.DBExecutor, sessID string, menteeIDs []string) error {
	if _, err := exec(ctx, ex, "DELETE FROM session_mentees WHERE session_id = ?", sessID); err != nil {
		return errors.Wrap(err, "unlinking mentees")
	}
	seen := make(map[string]bool, len(menteeIDs))
	for _, id := range menteeIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		if _, err := exec(ctx, ex, "INSERT INTO session_mentees (session_id, mentee_id) VALUES (?, ?)", sessID, id); err != nil {
			return errors.Wrap(err, "linking mentee")
		}
	}
	return nil
}

func (repo *mentoringRepository) CreateSession(ctx context.Context, sess mentoring.Session) (mentoring.Session, error) {
	sess.ID = newID()
	err := inTx(ctx, repo.db, repo.exec, func(ex core.DBExecutor) error {
		_, err := ex.NamedExecContext(ctx, `
			INSERT INTO mentoring_sessions (id, mentor_id, pricing_id, topic, notes, status, preferred_at, scheduled_at,
				duration_minutes, meeting_url, cancel_reason, confirmed_at, completed_at, cancelled_at, created_at, updated_at)
			VALUES (:id, :mentor_id, :pricing_id, :topic, :notes, :status, :preferred_at, :scheduled_at,
				:duration_minutes, :meeting_url, :cancel_reason, :confirmed_at, :completed_at, :cancelled_at, :created_at, :updated_at)`,
			toSessionRow(sess))
		if err != nil {
			return errors.Wrap(err, "inserting session")
		}
		if err = setSessionMentees(ctx, ex, sess.ID, sess.MenteeIDs); err != nil {
			return err
		}
		sess, err = (&mentoringRepository{exec: ex}).GetSession(ctx, sess.ID)
		return err
	})
	return sess, err
}

func (repo *mentoringRepository) GetSession(ctx context.Context, id string) (mentoring.Session, error) {
	if !validID(id) {
		return mentoring.Session{}, mentoring.ErrSessionNotFound
	}
	var row sessionRow
	if err := get(ctx, repo.exec, &row, sessionSelect+" WHERE s.id = ?", id); err != nil {
		return mentoring.Session{}, trapNoRowsErr(err, mentoring.ErrSessionNotFound, "finding session")
	}
	sessions := []mentoring.Session{row.toSession()}
	if err := repo.loadMentees(ctx, sessions); err != nil {
		return mentoring.Session{}, err
	}
	return sessions[0], nil
}

func sessionFilterClause(filter *mentoring.SessionFilter) *whereClause {
	w := new(whereClause)
	if filter == nil {
		return w
	}
	if filter.Status != "" {
		w.add("s.status = ?", filter.Status)
	}
	if filter.MentorID != "" {
		w.add("s.mentor_id = ?", filter.MentorID)
	}
	if filter.MenteeID != "" {
		w.add("EXISTS (SELECT 1 FROM session_mentees sm WHERE sm.session_id = s.id AND sm.mentee_id = ?)", filter.MenteeID)
	}
	if !filter.From.IsZero() {
		w.add("s.scheduled_at >= ?", filter.From.UTC())
	}
	if !filter.To.IsZero() {
		w.add("s.scheduled_at < ?", filter.To.UTC())
	}
	if filter.ParticipantID != "" {
		w.add(`(s.mentor_id = ? OR EXISTS (
			SELECT 1 FROM session_mentees sm JOIN mentees m ON m.id = sm.mentee_id
			WHERE sm.session_id = s.id AND m.user_id = ?))`, filter.ParticipantID, filter.ParticipantID)
	}
	return w
}

func (repo *mentoringRepository) QuerySessions(ctx context.Context, filter *mentoring.SessionFilter, page core.Page) ([]mentoring.Session, int, error) {
	w := sessionFilterClause(filter)

	total, err := count(ctx, repo.exec, "SELECT COUNT(*) FROM mentoring_sessions s"+w.String(), w.args...)
	if err != nil {
		return nil, 0, errors.Wrap(err, "counting sessions")
	}

	q, args := limit(sessionSelect+w.String()+`
		ORDER BY CASE WHEN s.scheduled_at IS NULL THEN 1 ELSE 0 END, s.scheduled_at, s.created_at DESC, s.id`, w.args, page)
	var rows []sessionRow
	if err = sel(ctx, repo.exec, &rows, q, args...); err != nil {
		return nil, 0, errors.Wrap(err, "querying sessions")
	}
	sessions := make([]mentoring.Session, 0, len(rows))
	for _, r := range rows {
		sessions = append(sessions, r.toSession())
	}
	if err = repo.loadMentees(ctx, sessions); err != nil {
		return nil, 0, err
	}
	return sessions, total, nil
}

func (repo *mentoringRepository) UpdateSession(ctx context.Context, sess mentoring.Session, status string) (mentoring.Session, error) {
	err := inTx(ctx, repo.db, repo.exec, func(ex core.DBExecutor) error {
		res, err := ex.NamedExecContext(ctx, `
			UPDATE mentoring_sessions SET mentor_id = :mentor_id, pricing_id = :pricing_id, topic = :topic, notes = :notes,
				status = :status, preferred_at = :preferred_at, scheduled_at = :scheduled_at,
				duration_minutes = :duration_minutes, meeting_url = :meeting_url, cancel_reason = :cancel_reason,
				confirmed_at = :confirmed_at, completed_at = :completed_at, cancelled_at = :cancelled_at,
				updated_at = :updated_at
			WHERE id = :id AND status = :expected_status`,
			struct {
				sessionRow
				ExpectedStatus string `db:"expected_status"`
			}{toSessionRow(sess), status})
		if err != nil {
			return errors.Wrap(err, "updating session")
		}
		if err = checkAffected(res, mentoring.ErrSessionChanged); err != nil {
			n, cErr := count(ctx, ex, "SELECT COUNT(*) FROM mentoring_sessions WHERE id = ?", sess.ID)
			if cErr != nil {
				return errors.Wrap(cErr, "counting sessions")
			}
			if n == 0 {
				return mentoring.ErrSessionNotFound
			}
			return err
		}
		if err = setSessionMentees(ctx, ex, sess.ID, sess.MenteeIDs); err != nil {
			return err
		}
		sess, err = (&mentoringRepository{exec: ex}).GetSession(ctx, sess.ID)
		return err
	})
	return sess, err
}

// LockMentor takes a row lock on the mentor until the surrounding transaction ends. SQLite
// serialises writers on its own.
func (repo *mentoringRepository) LockMentor(ctx context.Context, mentorID string) error {
	if repo.exec.DriverName() != database.Postgres {
		return nil
	}
	var id string
	err := get(ctx, repo.exec, &id, "SELECT id FROM users WHERE id = ? FOR UPDATE", mentorID)
	return trapNoRowsErr(err, user.ErrNotFound, "locking mentor")
}

func (repo *mentoringRepository) DeleteSession(ctx context.Context, id string) error {
	if !validID(id) {
		return mentoring.ErrSessionNotFound
	}
	res, err := exec(ctx, repo.exec, "DELETE FROM mentoring_sessions WHERE id = ?", id)
	if err != nil {
		return errors.Wrap(err, "deleting session")
	}
	return checkAffected(res, mentoring.ErrSessionNotFound)
}

func (repo *mentoringRepository) CountSessionsByStatus(ctx context.Context, filter *mentoring.SessionFilter) (map[string]int, error) {
	w := sessionFilterClause(filter)
	var rows []struct {
		Status string `db:"status"`
		Count  int    `db:"cnt"`
	}
	q := "SELECT s.status AS status, COUNT(*) AS cnt FROM mentoring_sessions s" + w.String() + " GROUP BY s.status"
	if err := sel(ctx, repo.exec, &rows, q, w.args...); err != nil {
		return nil, errors.Wrap(err, "counting sessions")
	}
	counts := make(map[string]int, len(rows))
	for _, r := range rows {
		counts[r.Status] = r.Count
	}
	return counts, nil
}

// Availabilities

func (repo *mentoringRepository) CreateAvailability(ctx context.Context, av mentoring.Availability) (mentoring.Availability, error) {
	av.ID = newID()
	_, err := exec(ctx, repo.exec,
		"INSERT INTO availabilities (id, mentor_id, weekday, start_time, end_time, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		av.ID, av.MentorID, av.Weekday, av.StartTime, av.EndTime, av.CreatedAt.UTC())
	if err != nil {
		return mentoring.Availability{}, errors.Wrap(err, "inserting availability")
	}
	return av, nil
}

func (repo *mentoringRepository) GetAvailability(ctx context.Context, id string) (mentoring.Availability, error) {
	if !validID(id) {
		return mentoring.Availability{}, mentoring.ErrAvailabilityNotFound
	}
	var row availabilityRow
	if err := get(ctx, repo.exec, &row, "SELECT * FROM availabilities WHERE id = ?", id); err != nil {
		return mentoring.Availability{}, trapNoRowsErr(err, mentoring.ErrAvailabilityNotFound, "finding availability")
	}
	return row.toAvailability(), nil
}

func (repo *mentoringRepository) QueryAvailabilities(ctx context.Context, mentorID string) ([]mentoring.Availability, error) {
	w := new(whereClause)
	if mentorID != "" {
		w.add("mentor_id = ?", mentorID)
	}
	var rows []availabilityRow
	q := "SELECT * FROM availabilities" + w.String() + " ORDER BY mentor_id, weekday, start_time"
	if err := sel(ctx, repo.exec, &rows, q, w.args...); err != nil {
		return nil, errors.Wrap(err, "querying availabilities")
	}
	avs := make([]mentoring.Availability, 0, len(rows))
	for _, r := range rows {
		avs = append(avs, r.toAvailability())
	}
	return avs, nil
}

func (repo *mentoringRepository) UpdateAvailability(ctx context.Context, av mentoring.Availability) (mentoring.Availability, error) {
	res, err := exec(ctx, repo.exec,
		"UPDATE availabilities SET weekday = ?, start_time = ?, end_time = ? WHERE id = ?",
		av.Weekday, av.StartTime, av.EndTime, av.ID)
	if err != nil {
		return mentoring.Availability{}, errors.Wrap(err, "updating availability")
	}
	return av, checkAffected(res, mentoring.ErrAvailabilityNotFound)
}

func (repo *mentoringRepository) DeleteAvailability(ctx context.Context, id string) error {
	if !validID(id) {
		return mentoring.ErrAvailabilityNotFound
	}
	res, err := exec(ctx, repo.exec, "DELETE FROM availabilities WHERE id = ?", id)
	if err != nil {
		return errors.Wrap(err, "deleting availability")
	}
	return checkAffected(res, mentoring.ErrAvailabilityNotFound)
}

// Pricing plans

func (repo *mentoringRepository) PricingNameExists(ctx context.Context, name, exclID string) (bool, error) {
	n, err := count(ctx, repo.exec, "SELECT COUNT(*) FROM pricing_plans WHERE LOWER(name) = LOWER(?) AND id <> ?", name, exclID)
	return n > 0, errors.Wrap(err, "checking pricing plan name")
}

func (repo *mentoringRepository) CreatePricingPlan(ctx context.Context, plan mentoring.PricingPlan) (mentoring.PricingPlan, error) {
	plan.ID = newID()
	_, err := exec(ctx, repo.exec, `
		INSERT INTO pricing_plans (id, name, description, duration_minutes, price_cents, currency, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		plan.ID, plan.Name, plan.Description, plan.DurationMinutes, plan.PriceCents, plan.Currency, plan.IsActive,
		plan.CreatedAt.UTC(), plan.UpdatedAt.UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return mentoring.PricingPlan{}, core.NewValidationError(err, core.FieldError{Field: "name", Error: "a pricing plan with this name already exists"})
		}
		return mentoring.PricingPlan{}, errors.Wrap(err, "inserting pricing plan")
	}
	return plan, nil
}

func (repo *mentoringRepository) GetPricingPlan(ctx context.Context, id string) (mentoring.PricingPlan, error) {
	if !validID(id) {
		return mentoring.PricingPlan{}, mentoring.ErrPricingNotFound
	}
	var row pricingRow
	if err := get(ctx, repo.exec, &row, "SELECT * FROM pricing_plans WHERE id = ?", id); err != nil {
		return mentoring.PricingPlan{}, trapNoRowsErr(err, mentoring.ErrPricingNotFound, "finding pricing plan")
	}
	return row.toPricingPlan(), nil
}

func (repo *mentoringRepository) QueryPricingPlans(ctx context.Context, activeOnly bool) ([]mentoring.PricingPlan, error) {
	w := new(whereClause)
	if activeOnly {
		w.add("is_active = ?", true)
	}
	var rows []pricingRow
	if err := sel(ctx, repo.exec, &rows, "SELECT * FROM pricing_plans"+w.String()+" ORDER BY price_cents, name", w.args...); err != nil {
		return nil, errors.Wrap(err, "querying pricing plans")
	}
	plans := make([]mentoring.PricingPlan, 0, len(rows))
	for _, r := range rows {
		plans = append(plans, r.toPricingPlan())
	}
	return plans, nil
}

func (repo *mentoringRepository) UpdatePricingPlan(ctx context.Context, plan mentoring.PricingPlan) (mentoring.PricingPlan, error) {
	res, err := exec(ctx, repo.exec, `
		UPDATE pricing_plans SET name = ?, description = ?, duration_minutes = ?, price_cents = ?, currency = ?,
			is_active = ?, updated_at = ?
		WHERE id = ?`,
		plan.Name, plan.Description, plan.DurationMinutes, plan.PriceCents, plan.Currency, plan.IsActive,
		plan.UpdatedAt.UTC(), plan.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return mentoring.PricingPlan{}, core.NewValidationError(err, core.FieldError{Field: "name", Error: "a pricing plan with this name already exists"})
		}
		return mentoring.PricingPlan{}, errors.Wrap(err, "updating pricing plan")
	}
	return plan, checkAffected(res, mentoring.ErrPricingNotFound)
}

func (repo *mentoringRepository) DeletePricingPlan(ctx context.Context, id string) error {
	if !validID(id) {
		return mentoring.ErrPricingNotFound
	}
	res, err := exec(ctx, repo.exec, "DELETE FROM pricing_plans WHERE id = ?", id)
	if err != nil {
		return errors.Wrap(err, "deleting pricing plan")
	}
	return checkAffected(res, mentoring.ErrPricingNotFound)
}
