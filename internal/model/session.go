// Package model holds the typed data shared by the booking dialogue.
package model

import "time"

// Intent is the primary goal of a user message.
type Intent string

const (
	IntentNone    Intent = "NONE"
	IntentBook    Intent = "BOOK"
	IntentSearch  Intent = "SEARCH"
	IntentList    Intent = "LIST"
	IntentReset   Intent = "RESET"
	IntentGeneric Intent = "GENERIC"
)

// ParseIntent maps a free-form label onto a known intent. Unknown labels are GENERIC.
func ParseIntent(s string) Intent {
	switch Intent(s) {
	case IntentNone, IntentBook, IntentSearch, IntentList, IntentReset, IntentGeneric:
		return Intent(s)
	}
	return IntentGeneric
}

// State is the dialogue state of a session.
type State string

const (
	StateIdle       State = "IDLE"
	StateCollecting State = "COLLECTING"
	StateReady      State = "READY"
	StateCommitting State = "COMMITTING"
)

// Shift is a coarse sub-window of a business day.
type Shift string

const (
	ShiftMorning   Shift = "MORNING"
	ShiftAfternoon Shift = "AFTERNOON"
	ShiftEvening   Shift = "EVENING"
)

// Shifts lists shifts in day order.
var Shifts = []Shift{ShiftMorning, ShiftAfternoon, ShiftEvening}

// Label returns a human readable shift name.
func (s Shift) Label() string {
	switch s {
	case ShiftMorning:
		return "morning"
	case ShiftAfternoon:
		return "afternoon"
	case ShiftEvening:
		return "evening"
	}
	return string(s)
}

// SlotName identifies a required booking parameter.
type SlotName string

const (
	SlotService   SlotName = "service"
	SlotDate      SlotName = "date"
	SlotShift     SlotName = "shift"
	SlotStartTime SlotName = "start_time"
)

// RequiredSlots is the order in which BOOK slots are collected.
var RequiredSlots = []SlotName{SlotService, SlotDate, SlotShift, SlotStartTime}

// SlotSet holds the booking parameters collected so far. Zero values mean "not filled".
type SlotSet struct {
	ServiceID   int64  `json:"service_id,omitempty"`
	ServiceName string `json:"service_name,omitempty"`
	Date        string `json:"date,omitempty"`       // YYYY-MM-DD
	Shift       Shift  `json:"shift,omitempty"`      // MORNING | AFTERNOON | EVENING
	StartTime   string `json:"start_time,omitempty"` // HH:MM
}

// Has reports whether the named slot is filled.
func (s SlotSet) Has(name SlotName) bool {
	switch name {
	case SlotService:
		return s.ServiceID != 0
	case SlotDate:
		return s.Date != ""
	case SlotShift:
		return s.Shift != ""
	case SlotStartTime:
		return s.StartTime != ""
	}
	return false
}

// Clear empties the named slots.
func (s *SlotSet) Clear(names ...SlotName) {
	for _, name := range names {
		switch name {
		case SlotService:
			s.ServiceID = 0
			s.ServiceName = ""
		case SlotDate:
			s.Date = ""
		case SlotShift:
			s.Shift = ""
		case SlotStartTime:
			s.StartTime = ""
		}
	}
}

// AmbiguityContext remembers a service term that matched several catalog entries.
type AmbiguityContext struct {
	OriginalTerm string  `json:"original_term"`
	CandidateIDs []int64 `json:"candidate_ids"`
	Attempts     int     `json:"attempts"`
}

// Contains reports whether id is one of the pending candidates.
func (a *AmbiguityContext) Contains(id int64) bool {
	if a == nil {
		return false
	}
	for _, c := range a.CandidateIDs {
		if c == id {
			return true
		}
	}
	return false
}

// Session is the per-user conversation state.
type Session struct {
	UserID    int64             `json:"user_id"`
	Intent    Intent            `json:"intent"`
	State     State             `json:"state"`
	Slots     SlotSet           `json:"slots"`
	Ambiguity *AmbiguityContext `json:"ambiguity,omitempty"`
	StartedAt time.Time         `json:"started_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// NewSession creates an idle session.
func NewSession(userID int64, now time.Time) *Session {
	return &Session{
		UserID:    userID,
		Intent:    IntentNone,
		State:     StateIdle,
		StartedAt: now,
		UpdatedAt: now,
	}
}

// Missing returns the unfilled required slots in collection order.
func (s *Session) Missing() []SlotName {
	var missing []SlotName
	for _, name := range RequiredSlots {
		if !s.Slots.Has(name) {
			missing = append(missing, name)
		}
	}
	return missing
}

// NextMissing returns the first unfilled slot, or "" when all are filled.
func (s *Session) NextMissing() SlotName {
	if m := s.Missing(); len(m) > 0 {
		return m[0]
	}
	return ""
}

// IsExpired reports whether the session has been idle longer than timeout.
func (s *Session) IsExpired(now time.Time, timeout time.Duration) bool {
	return timeout > 0 && now.Sub(s.UpdatedAt) > timeout
}

// Turn is one message in the conversation history.
type Turn struct {
	Role string    `json:"role"` // "user" | "bot"
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}
