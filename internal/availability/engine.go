// Package availability computes free time blocks against business hours and booked intervals.
package availability

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"salonbot/internal/config"
	"salonbot/internal/model"
)

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

// BookingQuerier returns the booked intervals of a date.
type BookingQuerier interface {
	QueryBookedIntervals(ctx context.Context, date string) ([]model.Interval, error)
}

// Window is a [Start, End) range of minutes since midnight.
type Window struct {
	Start int
	End   int
}

func (w Window) empty() bool { return w.End <= w.Start }

// Schedule is the static business-hours and shift table.
type Schedule struct {
	Hours    map[time.Weekday]Window // missing weekday means closed
	Shifts   map[model.Shift]Window
	Holidays map[string]string // YYYY-MM-DD -> name
	Step     time.Duration
}

// ScheduleFromConfig converts the salon configuration into a Schedule.
func ScheduleFromConfig(cfg *config.SalonConfig) (Schedule, error) {
	s := Schedule{
		Hours:    make(map[time.Weekday]Window),
		Shifts:   make(map[model.Shift]Window),
		Holidays: make(map[string]string),
		Step:     time.Duration(cfg.SlotStepMinutes) * time.Minute,
	}
	for day := time.Sunday; day <= time.Saturday; day++ {
		h, ok := cfg.HoursFor(day)
		if !ok || h.Closed {
			continue
		}
		w, err := parseWindow(h.Open, h.Close)
		if err != nil {
			return Schedule{}, fmt.Errorf("hours for %s: %w", day, err)
		}
		s.Hours[day] = w
	}
	for _, sh := range cfg.Shifts {
		w, err := parseWindow(sh.Start, sh.End)
		if err != nil {
			return Schedule{}, fmt.Errorf("shift %s: %w", sh.Name, err)
		}
		s.Shifts[model.Shift(strings.ToUpper(sh.Name))] = w
	}
	for _, h := range cfg.Holidays {
		s.Holidays[h.Date] = h.Name
	}
	return s, nil
}

// Engine answers availability questions for the salon.
type Engine struct {
	bookings BookingQuerier
	loc      *time.Location

	mu       sync.RWMutex
	schedule Schedule
}

// NewEngine creates an engine over the given schedule.
func NewEngine(bookings BookingQuerier, schedule Schedule, loc *time.Location) *Engine {
	if loc == nil {
		loc = time.Local
	}
	e := &Engine{bookings: bookings, loc: loc}
	e.SetSchedule(schedule)
	return e
}

// SetSchedule swaps the schedule, e.g. after a config reload.
func (e *Engine) SetSchedule(s Schedule) {
	if s.Step <= 0 {
		s.Step = 30 * time.Minute
	}
	e.mu.Lock()
	e.schedule = s
	e.mu.Unlock()
}

func (e *Engine) current() Schedule {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.schedule
}

// Location is the timezone dates and times are interpreted in.
func (e *Engine) Location() *time.Location {
	return e.loc
}

// OperatingWindow returns the opening window for a date. ok is false when the salon is closed.
func (e *Engine) OperatingWindow(date string) (Window, bool, error) {
	d, err := time.ParseInLocation(DateLayout, date, e.loc)
	if err != nil {
		return Window{}, false, fmt.Errorf("parse date %q: %w", date, err)
	}
	s := e.current()
	if _, holiday := s.Holidays[date]; holiday {
		return Window{}, false, nil
	}
	w, ok := s.Hours[d.Weekday()]
	return w, ok, nil
}

// NarrowToShift intersects a window with a shift. An empty shift leaves the window unchanged.
func (e *Engine) NarrowToShift(w Window, shift model.Shift) (Window, bool) {
	if shift == "" {
		return w, true
	}
	sw, ok := e.current().Shifts[shift]
	if !ok {
		return Window{}, false
	}
	out := Window{Start: max(w.Start, sw.Start), End: min(w.End, sw.End)}
	if out.empty() {
		return Window{}, false
	}
	return out, true
}

// ShiftOf returns the shift that contains the HH:MM time.
func (e *Engine) ShiftOf(hhmm string) (model.Shift, bool) {
	m, err := ParseClock(hhmm)
	if err != nil {
		return "", false
	}
	shifts := e.current().Shifts
	for _, sh := range model.Shifts {
		w, ok := shifts[sh]
		if ok && m >= w.Start && m < w.End {
			return sh, true
		}
	}
	return "", false
}

// Contains reports whether the HH:MM time lies inside the shift.
func (e *Engine) Contains(shift model.Shift, hhmm string) bool {
	m, err := ParseClock(hhmm)
	if err != nil {
		return false
	}
	w, ok := e.current().Shifts[shift]
	return ok && m >= w.Start && m < w.End
}

// FreeBlocks enumerates free start times for a service of durationMinutes on date,
// optionally narrowed to a shift. Results are advisory.
func (e *Engine) FreeBlocks(ctx context.Context, date string, durationMinutes int, shift model.Shift) ([]string, error) {
	if durationMinutes <= 0 {
		return nil, fmt.Errorf("duration must be positive, got %d", durationMinutes)
	}
	w, open, err := e.OperatingWindow(date)
	if err != nil || !open {
		return nil, err
	}
	w, ok := e.NarrowToShift(w, shift)
	if !ok {
		return nil, nil
	}

	booked, err := e.bookings.QueryBookedIntervals(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("query booked intervals: %w", err)
	}

	day, _ := time.ParseInLocation(DateLayout, date, e.loc)
	windowStart := day.Add(time.Duration(w.Start) * time.Minute)
	windowEnd := day.Add(time.Duration(w.End) * time.Minute)
	duration := time.Duration(durationMinutes) * time.Minute
	step := e.current().Step

	var blocks []string
	for cursor := windowStart; !cursor.Add(duration).After(windowEnd); cursor = cursor.Add(step) {
		if !conflicts(cursor, cursor.Add(duration), booked) {
			blocks = append(blocks, cursor.Format(TimeLayout))
		}
	}
	return blocks, nil
}

// ShiftHasAvailability reports whether the shift has at least one free block.
func (e *Engine) ShiftHasAvailability(ctx context.Context, date string, durationMinutes int, shift model.Shift) (bool, error) {
	blocks, err := e.FreeBlocks(ctx, date, durationMinutes, shift)
	if err != nil {
		return false, err
	}
	return len(blocks) > 0, nil
}

// AvailableShifts lists the shifts of date that still have free blocks.
func (e *Engine) AvailableShifts(ctx context.Context, date string, durationMinutes int) ([]model.Shift, error) {
	var out []model.Shift
	configured := e.current().Shifts
	for _, sh := range model.Shifts {
		if _, ok := configured[sh]; !ok {
			continue
		}
		ok, err := e.ShiftHasAvailability(ctx, date, durationMinutes, sh)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, sh)
		}
	}
	return out, nil
}

// IsFree re-checks a single block against the current bookings.
func (e *Engine) IsFree(ctx context.Context, start time.Time, durationMinutes int) (bool, error) {
	booked, err := e.bookings.QueryBookedIntervals(ctx, start.Format(DateLayout))
	if err != nil {
		return false, fmt.Errorf("query booked intervals: %w", err)
	}
	return !conflicts(start, start.Add(time.Duration(durationMinutes)*time.Minute), booked), nil
}

func conflicts(start, end time.Time, booked []model.Interval) bool {
	for _, b := range booked {
		if Overlaps(start, end, b.Start, b.End) {
			return true
		}
	}
	return false
}

// Overlaps reports whether [start1, end1) and [start2, end2) intersect.
func Overlaps(start1, end1, start2, end2 time.Time) bool {
	return start1.Before(end2) && start2.Before(end1)
}

// ParseClock converts "HH:MM" into minutes since midnight.
func ParseClock(s string) (int, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid time format: %s", s)
	}

	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 24 {
		return 0, fmt.Errorf("invalid hour: %s", s)
	}

	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("invalid minute: %s", s)
	}

	return hour*60 + minute, nil
}

// FormatClock converts minutes since midnight into "HH:MM".
func FormatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

func parseWindow(start, end string) (Window, error) {
	s, err := ParseClock(start)
	if err != nil {
		return Window{}, err
	}
	e, err := ParseClock(end)
	if err != nil {
		return Window{}, err
	}
	if e <= s {
		return Window{}, fmt.Errorf("end %s must be after start %s", end, start)
	}
	return Window{Start: s, End: e}, nil
}
