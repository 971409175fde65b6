package mentoring

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/geoffroyotegbeye/codesens/core"
)

// Session statuses
const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

// Mentee statuses
const (
	MenteeActive   = "active"
	MenteeInactive = "inactive"
)

const (
	DefaultDurationMinutes = 60
	MaxDurationMinutes     = 480
)

var (
	SessionStatuses = []string{StatusPending, StatusConfirmed, StatusCompleted, StatusCancelled}

	// allowed status transitions: {from: [to]}
	transitions = map[string][]string{
		StatusPending:   {StatusConfirmed, StatusCancelled},
		StatusConfirmed: {StatusCompleted, StatusCancelled},
	}
)

// CanTransition reports whether a session may go from status `from` to status `to`.
func CanTransition(from, to string) bool {
	for _, status := range transitions[from] {
		if status == to {
			return true
		}
	}
	return false
}

// Mentee is someone who has requested mentoring. UserID is set when the request came from a registered user.
type Mentee struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	Goals     string    `json:"goals"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"` // UTC
	UpdatedAt time.Time `json:"updated_at"` // UTC
}

type Session struct {
	ID              string          `json:"id"`
	MenteeIDs       core.StringList `json:"mentee_ids"`
	Mentees         []Mentee        `json:"mentees"`
	MentorID        string          `json:"mentor_id"`
	MentorName      string          `json:"mentor_name"`
	PricingID       string          `json:"pricing_id"`
	Topic           string          `json:"topic"`
	Notes           string          `json:"notes"`
	Status          string          `json:"status"`
	PreferredAt     null.Time       `json:"preferred_at"` // UTC
	ScheduledAt     null.Time       `json:"scheduled_at"` // UTC
	DurationMinutes int             `json:"duration_minutes"`
	MeetingURL      string          `json:"meeting_url"`
	CancelReason    string          `json:"cancel_reason"`
	ConfirmedAt     null.Time       `json:"confirmed_at"` // UTC
	CompletedAt     null.Time       `json:"completed_at"` // UTC
	CancelledAt     null.Time       `json:"cancelled_at"` // UTC
	CreatedAt       time.Time       `json:"created_at"`   // UTC
	UpdatedAt       time.Time       `json:"updated_at"`   // UTC
}

func (s *Session) IsTerminal() bool {
	return s.Status == StatusCompleted || s.Status == StatusCancelled
}

// End returns when a scheduled session ends.
func (s *Session) End() time.Time {
	return s.ScheduledAt.Time.Add(time.Duration(s.DurationMinutes) * time.Minute)
}

// Overlaps reports whether both sessions are scheduled and their time slots intersect.
func (s *Session) Overlaps(other Session) bool {
	if !s.ScheduledAt.Valid || !other.ScheduledAt.Valid {
		return false
	}
	return s.ScheduledAt.Time.Before(other.End()) && other.ScheduledAt.Time.Before(s.End())
}

// HasParticipant reports whether userID is the mentor or one of the mentees of the session.
func (s *Session) HasParticipant(userID string) bool {
	if userID == "" {
		return false
	}
	if s.MentorID == userID {
		return true
	}
	for _, mentee := range s.Mentees {
		if mentee.UserID == userID {
			return true
		}
	}
	return false
}

// Availability is a weekly window (UTC) during which a mentor accepts sessions.
type Availability struct {
	ID        string    `json:"id"`
	MentorID  string    `json:"mentor_id"`
	Weekday   int       `json:"weekday"`    // 0 = Sunday
	StartTime string    `json:"start_time"` // HH:MM
	EndTime   string    `json:"end_time"`   // HH:MM
	CreatedAt time.Time `json:"created_at"` // UTC
}

// Covers reports whether the slot [start, end) fits in the window.
func (a *Availability) Covers(start, end time.Time) bool {
	start = start.UTC()
	if int(start.Weekday()) != a.Weekday {
		return false
	}
	startMin := start.Hour()*60 + start.Minute()
	endMin := startMin + int(end.Sub(start)/time.Minute)
	return minutesOf(a.StartTime) <= startMin && endMin <= minutesOf(a.EndTime)
}

// overlaps reports whether two windows of the same weekday intersect.
func (a *Availability) overlaps(other Availability) bool {
	return a.Weekday == other.Weekday &&
		minutesOf(a.StartTime) < minutesOf(other.EndTime) &&
		minutesOf(other.StartTime) < minutesOf(a.EndTime)
}

// minutesOf converts a validated HH:MM string to minutes since midnight.
func minutesOf(hhmm string) int {
	if len(hhmm) != 5 {
		return 0
	}
	return (int(hhmm[0]-'0')*10+int(hhmm[1]-'0'))*60 + int(hhmm[3]-'0')*10 + int(hhmm[4]-'0')
}

type PricingPlan struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Description     string    `json:"description"`
	DurationMinutes int       `json:"duration_minutes"`
	PriceCents      int64     `json:"price_cents"`
	Currency        string    `json:"currency"`
	IsActive        bool      `json:"is_active"`
	CreatedAt       time.Time `json:"created_at"` // UTC
	UpdatedAt       time.Time `json:"updated_at"` // UTC
}

// MentoringRequest is what a visitor submits to ask for a mentoring session.
type MentoringRequest struct {
	Name        string    `json:"name" validate:"required,max=100"`
	Email       string    `json:"email" validate:"required,email"`
	Phone       string    `json:"phone" validate:"max=30"`
	Goals       string    `json:"goals" validate:"max=2000"`
	Topic       string    `json:"topic" validate:"required,max=200"`
	PreferredAt null.Time `json:"preferred_at"`
	PricingID   string    `json:"pricing_id"`
}

func (mr *MentoringRequest) Validate(validate *validator.Validate) error {
	mr.Name = core.CleanString(mr.Name)
	mr.Email = core.CleanString(mr.Email, true /* lower */)
	mr.Phone = core.CleanString(mr.Phone)
	mr.Goals = core.CleanString(mr.Goals)
	mr.Topic = core.CleanString(mr.Topic)
	mr.PricingID = core.CleanString(mr.PricingID)
	return validate.Struct(mr)
}

// NewMentee is also used to replace an existing mentee.
type NewMentee struct {
	UserID string `json:"user_id"`
	Name   string `json:"name" validate:"required,max=100"`
	Email  string `json:"email" validate:"required,email"`
	Phone  string `json:"phone" validate:"max=30"`
	Goals  string `json:"goals" validate:"max=2000"`
	Status string `json:"status" validate:"omitempty,oneof=active inactive"`
}

func (nm *NewMentee) Validate(validate *validator.Validate) error {
	nm.UserID = core.CleanString(nm.UserID)
	nm.Name = core.CleanString(nm.Name)
	nm.Email = core.CleanString(nm.Email, true /* lower */)
	nm.Phone = core.CleanString(nm.Phone)
	nm.Goals = core.CleanString(nm.Goals)
	nm.Status = core.CleanString(nm.Status, true /* lower */)
	if nm.Status == "" {
		nm.Status = MenteeActive
	}
	return validate.Struct(nm)
}

type MenteeFilter struct {
	Search string `query:"search"`
	Status string `query:"status"`
}

func (mf *MenteeFilter) Clean() {
	mf.Search = core.CleanString(mf.Search)
	mf.Status = core.CleanString(mf.Status, true /* lower */)
}

// UpdateSession holds the fields an admin may change on a session that is not over yet.
type UpdateSession struct {
	Topic           string   `json:"topic" validate:"required,max=200"`
	Notes           string   `json:"notes"`
	MenteeIDs       []string `json:"mentee_ids" validate:"required,min=1,dive,required"`
	MentorID        string   `json:"mentor_id"`
	PricingID       string   `json:"pricing_id"`
	DurationMinutes int      `json:"duration_minutes" validate:"omitempty,min=15,max=480"`
}

func (us *UpdateSession) Validate(validate *validator.Validate) error {
	us.Topic = core.CleanString(us.Topic)
	us.Notes = core.CleanString(us.Notes)
	us.MenteeIDs = core.CleanStrings(us.MenteeIDs)
	us.MentorID = core.CleanString(us.MentorID)
	us.PricingID = core.CleanString(us.PricingID)
	return validate.Struct(us)
}

type ConfirmSession struct {
	// MentorID defaults to the session mentor, then to the confirming mentor.
	MentorID        string    `json:"mentor_id"`
	ScheduledAt     time.Time `json:"scheduled_at" validate:"required"`
	DurationMinutes int       `json:"duration_minutes" validate:"omitempty,min=15,max=480"`
	MeetingURL      string    `json:"meeting_url" validate:"omitempty,url"`
}

func (cs *ConfirmSession) Validate(validate *validator.Validate) error {
	cs.MentorID = core.CleanString(cs.MentorID)
	cs.MeetingURL = core.CleanString(cs.MeetingURL)
	cs.ScheduledAt = cs.ScheduledAt.UTC()
	return validate.Struct(cs)
}

type CancelSession struct {
	Reason string `json:"reason" validate:"max=500"`
}

func (cs *CancelSession) Validate(validate *validator.Validate) error {
	cs.Reason = core.CleanString(cs.Reason)
	return validate.Struct(cs)
}

type SessionFilter struct {
	Status   string    `query:"status"`
	MentorID string    `query:"mentor_id"`
	MenteeID string    `query:"mentee_id"`
	From     time.Time `query:"from"` // scheduled_at >= From
	To       time.Time `query:"to"`   // scheduled_at < To
	// ParticipantID keeps the sessions where the user is the mentor or a linked mentee.
	ParticipantID string `query:"-"`
}

func (sf *SessionFilter) Clean() {
	sf.Status = core.CleanString(sf.Status, true /* lower */)
	sf.MentorID = core.CleanString(sf.MentorID)
	sf.MenteeID = core.CleanString(sf.MenteeID)
}

// NewAvailability is also used to replace an existing availability.
type NewAvailability struct {
	MentorID  string `json:"mentor_id"`
	Weekday   int    `json:"weekday" validate:"min=0,max=6"`
	StartTime string `json:"start_time" validate:"required,hhmm"`
	EndTime   string `json:"end_time" validate:"required,hhmm"`
}

func (na *NewAvailability) Validate(validate *validator.Validate) error {
	na.MentorID = core.CleanString(na.MentorID)
	na.StartTime = core.CleanString(na.StartTime)
	na.EndTime = core.CleanString(na.EndTime)
	return validate.Struct(na)
}

// NewPricingPlan is also used to replace an existing plan.
type NewPricingPlan struct {
	Name            string `json:"name" validate:"required,max=100"`
	Description     string `json:"description"`
	DurationMinutes int    `json:"duration_minutes" validate:"required,min=15,max=480"`
	PriceCents      int64  `json:"price_cents" validate:"gte=0"`
	Currency        string `json:"currency" validate:"omitempty,currency"`
	IsActive        *bool  `json:"is_active"`
}

func (np *NewPricingPlan) Validate(validate *validator.Validate) error {
	np.Name = core.CleanString(np.Name)
	np.Description = core.CleanString(np.Description)
	np.Currency = core.CleanString(np.Currency)
	if np.Currency == "" {
		np.Currency = "EUR"
	}
	return validate.Struct(np)
}
