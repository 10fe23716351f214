package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"salonbot/internal/availability"
	"salonbot/internal/database"
	"salonbot/internal/model"
)

// Catalog resolves the service being booked.
type Catalog interface {
	GetByID(ctx context.Context, id int64) (*model.Service, error)
}

// Availability is the subset of the availability engine used at commit time.
type Availability interface {
	OperatingWindow(date string) (availability.Window, bool, error)
	IsFree(ctx context.Context, start time.Time, durationMinutes int) (bool, error)
	Location() *time.Location
}

// Store persists appointments. InsertAppointment must check for conflicts and insert atomically,
// returning database.ErrSlotTaken when the block was taken concurrently.
type Store interface {
	InsertAppointment(ctx context.Context, appt *model.Appointment) (int64, error)
}

// Confirmation describes a committed appointment.
type Confirmation struct {
	Appointment model.Appointment
	Service     model.Service
}

// Transaction runs the ordered commit pipeline.
type Transaction struct {
	catalog Catalog
	engine  Availability
	store   Store
	now     func() time.Time
}

// NewTransaction creates a commit pipeline.
func NewTransaction(catalog Catalog, engine Availability, store Store) *Transaction {
	return &Transaction{catalog: catalog, engine: engine, store: store, now: time.Now}
}

// WithClock overrides the current time source.
func (t *Transaction) WithClock(now func() time.Time) *Transaction {
	t.now = now
	return t
}

type commit struct {
	userID  int64
	slots   model.SlotSet
	service *model.Service
	start   time.Time
	end     time.Time
	id      int64
}

type step func(ctx context.Context, c *commit) error

// Commit validates slots and inserts the appointment. Recoverable failures are returned as
// *Failure; any other error is a store failure.
func (t *Transaction) Commit(ctx context.Context, userID int64, slots model.SlotSet) (*Confirmation, error) {
	c := &commit{userID: userID, slots: slots}
	steps := []step{
		t.lookupService,
		t.parseInstant,
		t.rejectPast,
		t.checkOperatingHours,
		t.recheckAvailability,
		t.insert,
	}
	for _, s := range steps {
		if err := s(ctx, c); err != nil {
			return nil, err
		}
	}

	loc := t.engine.Location()
	return &Confirmation{
		Appointment: model.Appointment{
			ID:          c.id,
			UserID:      userID,
			ServiceID:   c.service.ID,
			ServiceName: c.service.Name,
			Date:        c.slots.Date,
			StartTime:   c.start.In(loc).Format(availability.TimeLayout),
			EndTime:     c.end.In(loc).Format(availability.TimeLayout),
			Status:      model.StatusScheduled,
		},
		Service: *c.service,
	}, nil
}

func (t *Transaction) lookupService(ctx context.Context, c *commit) error {
	svc, err := t.catalog.GetByID(ctx, c.slots.ServiceID)
	if err != nil {
		return fmt.Errorf("get service: %w", err)
	}
	if svc == nil {
		return fail(FailureServiceNotFound, "That service is no longer available.", model.SlotService)
	}
	c.service = svc
	return nil
}

func (t *Transaction) parseInstant(_ context.Context, c *commit) error {
	start, err := time.ParseInLocation(availability.DateLayout+" "+availability.TimeLayout,
		c.slots.Date+" "+c.slots.StartTime, t.engine.Location())
	if err != nil {
		return fail(FailureInvalidFormat, "I could not understand that time.", model.SlotStartTime)
	}
	c.start = start
	c.end = start.Add(c.service.Duration())
	return nil
}

func (t *Transaction) rejectPast(_ context.Context, c *commit) error {
	now := t.now().In(t.engine.Location())
	if !c.start.Before(now) {
		return nil
	}
	today := now.Format(availability.DateLayout)
	if c.slots.Date < today {
		return fail(FailurePast, "That date has already passed.", model.SlotDate, model.SlotStartTime)
	}
	return fail(FailurePast, "That time has already passed.", model.SlotStartTime)
}

func (t *Transaction) checkOperatingHours(_ context.Context, c *commit) error {
	w, open, err := t.engine.OperatingWindow(c.slots.Date)
	if err != nil {
		return fail(FailureInvalidFormat, "I could not understand that date.", model.SlotDate)
	}
	if !open {
		return fail(FailureClosed, "We are closed on that day.", model.SlotDate, model.SlotShift, model.SlotStartTime)
	}
	startMin := c.start.Hour()*60 + c.start.Minute()
	endMin := startMin + c.service.DurationMinutes
	if startMin < w.Start || endMin > w.End {
		return fail(FailureOutsideHours,
			fmt.Sprintf("That time is outside our opening hours (%s-%s).",
				availability.FormatClock(w.Start), availability.FormatClock(w.End)),
			model.SlotShift, model.SlotStartTime)
	}
	return nil
}

func (t *Transaction) recheckAvailability(ctx context.Context, c *commit) error {
	free, err := t.engine.IsFree(ctx, c.start, c.service.DurationMinutes)
	if err != nil {
		return fmt.Errorf("recheck availability: %w", err)
	}
	if !free {
		return fail(FailureConflict, "Sorry, that time is unavailable now.", model.SlotStartTime)
	}
	return nil
}

func (t *Transaction) insert(ctx context.Context, c *commit) error {
	appt := &model.Appointment{
		UserID:    c.userID,
		ServiceID: c.service.ID,
		Date:      c.slots.Date,
		StartTime: c.start.Format(availability.TimeLayout),
		EndTime:   c.end.Format(availability.TimeLayout),
		Status:    model.StatusScheduled,
	}
	id, err := t.store.InsertAppointment(ctx, appt)
	if errors.Is(err, database.ErrSlotTaken) {
		return fail(FailureConflict, "Sorry, that time is unavailable now.", model.SlotStartTime)
	}
	if err != nil {
		return fmt.Errorf("insert appointment: %w", err)
	}
	c.id = id
	return nil
}
