package dialogue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"salonbot/internal/availability"
	"salonbot/internal/booking"
	"salonbot/internal/events"
	"salonbot/internal/metrics"
	"salonbot/internal/model"
	"salonbot/internal/nlu"
	"salonbot/internal/slots"

	"github.com/rs/zerolog"
)

// SessionStore persists dialogue sessions. GetSession returns (nil, nil) for an unknown user.
type SessionStore interface {
	GetSession(ctx context.Context, userID int64) (*model.Session, error)
	PutSession(ctx context.Context, s *model.Session) error
	DeleteSession(ctx context.Context, userID int64) error
}

// History keeps the recent conversation of each user.
type History interface {
	Append(ctx context.Context, userID int64, turn model.Turn) error
	Recent(ctx context.Context, userID int64) ([]model.Turn, error)
	Clear(ctx context.Context, userID int64) error
}

// Catalog is the catalog view the dialogue needs.
type Catalog interface {
	slots.Catalog
	ListActive(ctx context.Context) ([]model.Service, error)
}

// Availability is the availability view used to build prompts.
type Availability interface {
	OperatingWindow(date string) (availability.Window, bool, error)
	AvailableShifts(ctx context.Context, date string, durationMinutes int) ([]model.Shift, error)
	FreeBlocks(ctx context.Context, date string, durationMinutes int, shift model.Shift) ([]string, error)
	ShiftOf(hhmm string) (model.Shift, bool)
	Contains(shift model.Shift, hhmm string) bool
	Location() *time.Location
}

// Committer runs the booking transaction.
type Committer interface {
	Commit(ctx context.Context, userID int64, slots model.SlotSet) (*booking.Confirmation, error)
}

// Notifier delivers messages the user did not directly ask for.
type Notifier interface {
	SendMessage(ctx context.Context, userID int64, text string) error
}

// Timers schedules the per-user inactivity timer.
type Timers interface {
	Touch(userID int64)
	Cancel(userID int64)
}

// Publisher emits domain events.
type Publisher interface {
	PublishPayload(eventType string, payload any)
}

// Deps are the collaborators of the orchestrator. Responder, Notifier, Timers and Events are optional.
type Deps struct {
	Sessions  SessionStore
	History   History
	Catalog   Catalog
	Engine    Availability
	Booking   Committer
	NLU       nlu.Extractor
	Responder nlu.Responder
	Notifier  Notifier
	Timers    Timers
	Events    Publisher
}

// Options tune the orchestrator.
type Options struct {
	SessionTimeout time.Duration
	NLUTimeout     time.Duration
	StoreTimeout   time.Duration
	Now            func() time.Time
}

// Result is the outcome of one handled message.
type Result struct {
	Reply       string
	Intent      model.Intent
	State       model.State
	Appointment *model.Appointment
}

type intentHandler func(ctx context.Context, t *turn) (string, error)

// turn is the working state of a single inbound message.
type turn struct {
	userID     int64
	text       string
	now        time.Time
	today      time.Time
	sess       *model.Session
	ext        nlu.Extraction
	history    []model.Turn
	candidates []model.Service
	notes      []string
	appt       *model.Appointment
}

// Orchestrator owns the per-user conversation state machine.
type Orchestrator struct {
	deps     Deps
	opts     Options
	fsm      *FSM
	resolver *slots.Resolver
	handlers map[model.Intent]intentHandler
	locks    *userLocks
	logger   *zerolog.Logger
}

// NewOrchestrator wires the dialogue. Extraction is bounded by opts.NLUTimeout when set.
func NewOrchestrator(deps Deps, opts Options, logger *zerolog.Logger) *Orchestrator {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = 5 * time.Second
	}
	if opts.NLUTimeout > 0 {
		deps.NLU = nlu.WithTimeout(deps.NLU, opts.NLUTimeout)
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("component", "dialogue").Logger()

	o := &Orchestrator{
		deps:     deps,
		opts:     opts,
		fsm:      NewFSM(),
		resolver: slots.NewResolver(deps.Catalog),
		locks:    newUserLocks(),
		logger:   &l,
	}
	o.handlers = map[model.Intent]intentHandler{
		model.IntentBook:    o.handleBook,
		model.IntentSearch:  o.handleSearch,
		model.IntentList:    o.handleList,
		model.IntentReset:   o.handleReset,
		model.IntentGeneric: o.handleGeneric,
	}
	return o
}

// Handle processes a free-text message from userID.
func (o *Orchestrator) Handle(ctx context.Context, userID int64, text string) Result {
	return o.process(ctx, userID, text, "")
}

// HandleIntent processes a message whose intent is already known, skipping extraction.
func (o *Orchestrator) HandleIntent(ctx context.Context, userID int64, intent model.Intent, text string) Result {
	return o.process(ctx, userID, text, intent)
}

// Expire clears the session and history of userID and notifies the user if a
// conversation was in progress. A session touched since the timer was armed
// is left alone.
func (o *Orchestrator) Expire(ctx context.Context, userID int64) {
	unlock := o.locks.lock(userID)
	defer unlock()

	l := o.log(ctx).With().Int64("user_id", userID).Logger()
	sctx, cancel := context.WithTimeout(ctx, o.opts.StoreTimeout)
	defer cancel()

	sess, err := o.deps.Sessions.GetSession(sctx, userID)
	if err != nil {
		l.Error().Err(err).Msg("Failed to load session for expiry")
		return
	}
	if sess != nil && sess.State != model.StateIdle && !sess.IsExpired(o.opts.Now(), o.opts.SessionTimeout) {
		l.Debug().Time("updated_at", sess.UpdatedAt).Msg("Session refreshed before expiry, skipping")
		return
	}
	if err := o.deps.History.Clear(sctx, userID); err != nil {
		l.Warn().Err(err).Msg("Failed to clear history")
	}
	if sess == nil || sess.State == model.StateIdle {
		return
	}
	if err := o.deps.Sessions.DeleteSession(sctx, userID); err != nil {
		l.Error().Err(err).Msg("Failed to delete expired session")
		return
	}
	o.sessionExpired(userID)
	l.Info().Str("state", string(sess.State)).Msg("Session expired")

	if o.deps.Notifier != nil {
		if err := o.deps.Notifier.SendMessage(ctx, userID, msgTimeout); err != nil {
			l.Warn().Err(err).Msg("Failed to send timeout notice")
		}
	}
}

func (o *Orchestrator) process(ctx context.Context, userID int64, text string, forced model.Intent) Result {
	unlock := o.locks.lock(userID)
	defer unlock()

	l := o.log(ctx).With().Int64("user_id", userID).Logger()
	now := o.opts.Now().In(o.deps.Engine.Location())
	t := &turn{
		userID: userID,
		text:   text,
		now:    now,
		today:  time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()),
	}

	sess, err := o.loadSession(ctx, t)
	if err != nil {
		l.Error().Err(err).Msg("Failed to load session")
		return o.internalError(forced)
	}
	t.sess = sess

	if forced != "" {
		t.ext = nlu.Extraction{Intent: forced}
	} else {
		hctx, hcancel := context.WithTimeout(ctx, o.opts.StoreTimeout)
		t.history, err = o.deps.History.Recent(hctx, userID)
		hcancel()
		if err != nil {
			l.Warn().Err(err).Msg("Failed to load history")
		}
		t.ext, err = o.extract(ctx, t)
		if err != nil {
			l.Error().Err(err).Msg("Extraction failed")
			return o.internalError(model.IntentGeneric)
		}
	}

	intent := o.routeIntent(t)
	handler := o.handlers[intent]

	wctx, cancel := context.WithTimeout(ctx, o.opts.StoreTimeout)
	defer cancel()

	reply, err := handler(wctx, t)
	if err != nil {
		l.Error().Err(err).Str("intent", string(intent)).Msg("Failed to handle message")
		return o.internalError(intent)
	}
	reply = joinParagraphs(append(t.notes, reply)...)

	t.sess.UpdatedAt = now
	if err := o.saveSession(wctx, t.sess); err != nil {
		l.Error().Err(err).Msg("Failed to save session")
		if t.appt == nil {
			return o.internalError(intent)
		}
	}
	o.record(wctx, t, reply)

	if o.deps.Timers != nil {
		if t.sess.State == model.StateIdle {
			o.deps.Timers.Cancel(userID)
		} else {
			o.deps.Timers.Touch(userID)
		}
	}
	metrics.IncMessage(string(intent))
	l.Debug().Str("intent", string(intent)).Str("state", string(t.sess.State)).Msg("Message handled")

	return Result{Reply: reply, Intent: intent, State: t.sess.State, Appointment: t.appt}
}

// loadSession returns the user's session, clearing one that outlived the inactivity window.
func (o *Orchestrator) loadSession(ctx context.Context, t *turn) (*model.Session, error) {
	sctx, cancel := context.WithTimeout(ctx, o.opts.StoreTimeout)
	defer cancel()

	sess, err := o.deps.Sessions.GetSession(sctx, t.userID)
	if err != nil {
		return nil, err
	}
	if sess != nil && sess.State != model.StateIdle && sess.IsExpired(t.now, o.opts.SessionTimeout) {
		if err := o.deps.Sessions.DeleteSession(sctx, t.userID); err != nil {
			return nil, err
		}
		if err := o.deps.History.Clear(sctx, t.userID); err != nil {
			o.logger.Warn().Err(err).Int64("user_id", t.userID).Msg("Failed to clear history")
		}
		o.sessionExpired(t.userID)
		t.notes = append(t.notes, msgExpired)
		sess = nil
	}
	if sess == nil {
		sess = model.NewSession(t.userID, t.now)
	}
	return sess, nil
}

func (o *Orchestrator) saveSession(ctx context.Context, s *model.Session) error {
	if s.State == model.StateIdle && s.Intent == model.IntentNone {
		return o.deps.Sessions.DeleteSession(ctx, s.UserID)
	}
	return o.deps.Sessions.PutSession(ctx, s)
}

func (o *Orchestrator) extract(ctx context.Context, t *turn) (nlu.Extraction, error) {
	req := nlu.Request{
		Text:    t.text,
		Slots:   t.sess.Slots,
		Focus:   o.focus(t.sess),
		History: t.history,
		Today:   t.today,
	}
	start := time.Now()
	ext, err := o.deps.NLU.Extract(ctx, req)
	switch {
	case errors.Is(err, nlu.ErrTimeout):
		metrics.ObserveNLU("timeout", time.Since(start))
	case err != nil:
		metrics.ObserveNLU("error", time.Since(start))
	default:
		metrics.ObserveNLU("ok", time.Since(start))
	}
	return ext, err
}

// focus is the slot the user is currently being asked for.
func (o *Orchestrator) focus(s *model.Session) model.SlotName {
	if s.State != model.StateCollecting {
		return ""
	}
	if s.Ambiguity != nil {
		return model.SlotService
	}
	return s.NextMissing()
}

func (o *Orchestrator) routeIntent(t *turn) model.Intent {
	switch t.ext.Intent {
	case model.IntentBook, model.IntentSearch, model.IntentList, model.IntentReset:
		return t.ext.Intent
	}
	if t.sess.State == model.StateCollecting && !t.ext.Candidates.Empty() {
		return model.IntentBook
	}
	return model.IntentGeneric
}

func (o *Orchestrator) handleReset(ctx context.Context, t *turn) (string, error) {
	t.sess = model.NewSession(t.userID, t.now)
	if err := o.deps.History.Clear(ctx, t.userID); err != nil {
		o.logger.Warn().Err(err).Int64("user_id", t.userID).Msg("Failed to clear history")
	}
	return msgReset, nil
}

func (o *Orchestrator) handleList(ctx context.Context, t *turn) (string, error) {
	services, err := o.deps.Catalog.ListActive(ctx)
	if err != nil {
		return "", fmt.Errorf("list services: %w", err)
	}
	return joinParagraphs(formatServiceList(services), resumeLine(t.sess)), nil
}

func (o *Orchestrator) handleSearch(ctx context.Context, t *turn) (string, error) {
	if t.ext.Candidates.Service == nil {
		return o.handleList(ctx, t)
	}
	term := *t.ext.Candidates.Service
	out, err := o.resolver.Resolve(ctx, term, nil)
	if err != nil {
		return "", fmt.Errorf("resolve %q: %w", term, err)
	}

	var answer string
	switch out.Kind {
	case slots.Resolved:
		answer = formatServiceDetails(*out.Service)
	case slots.Ambiguous:
		parts := []string{fmt.Sprintf("I found several services matching \"%s\":", term)}
		for _, s := range out.Candidates {
			parts = append(parts, formatServiceDetails(s))
		}
		answer = joinParagraphs(parts...)
	default:
		services, err := o.deps.Catalog.ListActive(ctx)
		if err != nil {
			return "", fmt.Errorf("list services: %w", err)
		}
		answer = joinParagraphs(fmt.Sprintf(msgServiceNotFound, term), formatServiceList(services))
	}
	return joinParagraphs(answer, resumeLine(t.sess)), nil
}

func (o *Orchestrator) handleGeneric(ctx context.Context, t *turn) (string, error) {
	if t.sess.State == model.StateCollecting {
		prompt, err := o.prompt(ctx, t)
		if err != nil {
			return "", err
		}
		return joinParagraphs(msgNotUnderstood, prompt), nil
	}
	if o.deps.Responder == nil || t.text == "" {
		return msgGreeting, nil
	}
	reply, err := o.deps.Responder.Reply(ctx, t.history, t.text)
	if err != nil || reply == "" {
		o.logger.Warn().Err(err).Int64("user_id", t.userID).Msg("Responder failed")
		return msgGreeting, nil
	}
	return reply, nil
}

func (o *Orchestrator) handleBook(ctx context.Context, t *turn) (string, error) {
	s := t.sess
	if s.State != model.StateCollecting {
		s.State = model.StateIdle
		o.fsm.Transition(s, model.StateCollecting)
		s.Intent = model.IntentBook
		s.StartedAt = t.now
	}

	candidate, err := o.normalize(ctx, t)
	if err != nil {
		return "", err
	}
	before := s.Slots
	s.Slots = slots.Merge(s.Slots, candidate)
	o.reconcileShift(t, candidate)
	o.checkDate(t)
	if changed := slots.Changed(before, s.Slots); len(changed) > 0 {
		o.log(ctx).Debug().Int64("user_id", t.userID).Interface("slots", changed).Msg("Slots updated")
	}

	if s.Ambiguity != nil {
		return o.disambiguationPrompt(ctx, t)
	}
	if len(s.Missing()) == 0 {
		return o.commit(ctx, t)
	}
	return o.prompt(ctx, t)
}

// normalize turns raw candidates into a SlotSet. Values that cannot be understood
// clear their slot and leave a note for the user.
func (o *Orchestrator) normalize(ctx context.Context, t *turn) (model.SlotSet, error) {
	var out model.SlotSet
	s := t.sess
	c := t.ext.Candidates

	if c.Service != nil {
		res, err := o.resolver.Resolve(ctx, *c.Service, s.Ambiguity)
		if err != nil {
			return out, fmt.Errorf("resolve service: %w", err)
		}
		switch res.Kind {
		case slots.Resolved:
			out.ServiceID, out.ServiceName = res.Service.ID, res.Service.Name
			s.Ambiguity = nil
		case slots.Ambiguous:
			s.Ambiguity = res.Ambiguity
			t.candidates = res.Candidates
			s.Slots.Clear(model.SlotService)
		case slots.NotFound:
			s.Ambiguity = nil
			s.Slots.Clear(model.SlotService)
			t.notes = append(t.notes, fmt.Sprintf(msgServiceNotFound, *c.Service))
		}
	}

	if c.Date != nil {
		if d, ok := slots.NormalizeDate(*c.Date, t.today); ok {
			out.Date = d
		} else {
			s.Slots.Clear(model.SlotDate)
			t.notes = append(t.notes, fmt.Sprintf(msgBadDate, *c.Date))
		}
	}
	if c.Shift != nil {
		if sh, ok := slots.ParseShift(*c.Shift); ok {
			out.Shift = sh
		} else {
			s.Slots.Clear(model.SlotShift)
			t.notes = append(t.notes, fmt.Sprintf(msgBadShift, *c.Shift))
		}
	}
	if c.StartTime != nil {
		if hm, ok := slots.NormalizeTime(*c.StartTime); ok {
			out.StartTime = hm
		} else {
			s.Slots.Clear(model.SlotStartTime)
			t.notes = append(t.notes, fmt.Sprintf(msgBadTime, *c.StartTime))
		}
	}
	return out, nil
}

// reconcileShift keeps shift and start time consistent. A newly given time selects its
// shift; a newly given shift drops a time outside it.
func (o *Orchestrator) reconcileShift(t *turn, candidate model.SlotSet) {
	s := &t.sess.Slots
	if s.StartTime == "" {
		return
	}
	if candidate.StartTime != "" {
		if sh, ok := o.deps.Engine.ShiftOf(s.StartTime); ok {
			s.Shift = sh
		}
		return
	}
	if s.Shift != "" && !o.deps.Engine.Contains(s.Shift, s.StartTime) {
		s.Clear(model.SlotStartTime)
	}
}

// checkDate drops a date on which the salon does not open.
func (o *Orchestrator) checkDate(t *turn) {
	s := &t.sess.Slots
	if s.Date == "" {
		return
	}
	_, open, err := o.deps.Engine.OperatingWindow(s.Date)
	if err != nil {
		s.Clear(model.SlotDate)
		return
	}
	if !open {
		t.notes = append(t.notes, fmt.Sprintf(msgClosed, formatDate(s.Date)))
		s.Clear(model.SlotDate, model.SlotShift, model.SlotStartTime)
	}
}

func (o *Orchestrator) disambiguationPrompt(ctx context.Context, t *turn) (string, error) {
	amb := t.sess.Ambiguity
	candidates := t.candidates
	if len(candidates) == 0 {
		for _, id := range amb.CandidateIDs {
			svc, err := o.deps.Catalog.GetByID(ctx, id)
			if err != nil {
				return "", fmt.Errorf("get service %d: %w", id, err)
			}
			if svc != nil {
				candidates = append(candidates, *svc)
			}
		}
	}
	if len(candidates) == 0 {
		t.sess.Ambiguity = nil
		return o.prompt(ctx, t)
	}
	return formatAmbiguity(amb.OriginalTerm, candidates), nil
}

func (o *Orchestrator) commit(ctx context.Context, t *turn) (string, error) {
	s := t.sess
	o.fsm.Transition(s, model.StateReady)
	o.fsm.Transition(s, model.StateCommitting)

	conf, err := o.deps.Booking.Commit(ctx, t.userID, s.Slots)
	if f, ok := booking.AsFailure(err); ok {
		metrics.IncCommit(string(f.Kind))
		s.Slots.Clear(f.Clear...)
		o.fsm.Transition(s, model.StateCollecting)
		t.notes = append(t.notes, f.Message)
		return o.prompt(ctx, t)
	}
	if err != nil {
		metrics.IncCommit("error")
		return "", fmt.Errorf("commit: %w", err)
	}

	metrics.IncCommit("confirmed")
	appt := conf.Appointment
	t.appt = &appt
	if o.deps.Events != nil {
		o.deps.Events.PublishPayload(events.AppointmentBooked, events.AppointmentPayload{
			AppointmentID: appt.ID,
			UserID:        appt.UserID,
			ServiceName:   conf.Service.Name,
			Date:          appt.Date,
			StartTime:     appt.StartTime,
			EndTime:       appt.EndTime,
		})
	}
	o.fsm.Transition(s, model.StateIdle)
	t.sess = model.NewSession(t.userID, t.now)
	return formatConfirmation(appt, conf.Service), nil
}

// prompt asks for the next missing slot. Shift and time prompts come from live availability;
// a date or shift with nothing free left is dropped and the previous question asked again.
func (o *Orchestrator) prompt(ctx context.Context, t *turn) (string, error) {
	s := t.sess
	for range model.RequiredSlots {
		switch s.NextMissing() {
		case model.SlotService:
			services, err := o.deps.Catalog.ListActive(ctx)
			if err != nil {
				return "", fmt.Errorf("list services: %w", err)
			}
			if len(services) == 0 {
				return msgNoServices, nil
			}
			return joinParagraphs("Which service would you like to book?", formatServiceList(services)), nil

		case model.SlotDate:
			return fmt.Sprintf(msgAskDate, s.Slots.ServiceName), nil

		case model.SlotShift:
			svc, err := o.currentService(ctx, t)
			if err != nil || svc == nil {
				if err != nil {
					return "", err
				}
				continue
			}
			shifts, err := o.openShifts(ctx, t, svc)
			if err != nil {
				return "", err
			}
			if len(shifts) == 0 {
				t.notes = append(t.notes, fmt.Sprintf(msgDateFull, formatDate(s.Slots.Date)))
				s.Slots.Clear(model.SlotDate, model.SlotShift, model.SlotStartTime)
				continue
			}
			return formatShiftPrompt(s.Slots.Date, shifts), nil

		case model.SlotStartTime:
			svc, err := o.currentService(ctx, t)
			if err != nil || svc == nil {
				if err != nil {
					return "", err
				}
				continue
			}
			times, err := o.freeTimes(ctx, t, svc, s.Slots.Shift)
			if err != nil {
				return "", err
			}
			if len(times) == 0 {
				t.notes = append(t.notes, fmt.Sprintf(msgShiftFull, s.Slots.Shift.Label(), formatDate(s.Slots.Date)))
				s.Slots.Clear(model.SlotShift, model.SlotStartTime)
				continue
			}
			return formatTimePrompt(s.Slots.Date, s.Slots.Shift, times), nil

		default:
			return "", nil
		}
	}
	return fmt.Sprintf(msgAskDate, s.Slots.ServiceName), nil
}

// currentService loads the chosen service, clearing the slot if it is gone from the catalog.
func (o *Orchestrator) currentService(ctx context.Context, t *turn) (*model.Service, error) {
	svc, err := o.deps.Catalog.GetByID(ctx, t.sess.Slots.ServiceID)
	if err != nil {
		return nil, fmt.Errorf("get service: %w", err)
	}
	if svc == nil {
		t.sess.Slots.Clear(model.SlotService)
	}
	return svc, nil
}

func (o *Orchestrator) openShifts(ctx context.Context, t *turn, svc *model.Service) ([]model.Shift, error) {
	shifts, err := o.deps.Engine.AvailableShifts(ctx, t.sess.Slots.Date, svc.DurationMinutes)
	if err != nil {
		return nil, fmt.Errorf("available shifts: %w", err)
	}
	if t.sess.Slots.Date != t.today.Format(availability.DateLayout) {
		return shifts, nil
	}
	var open []model.Shift
	for _, sh := range shifts {
		times, err := o.freeTimes(ctx, t, svc, sh)
		if err != nil {
			return nil, err
		}
		if len(times) > 0 {
			open = append(open, sh)
		}
	}
	return open, nil
}

// freeTimes lists free start times, skipping times already past today.
func (o *Orchestrator) freeTimes(ctx context.Context, t *turn, svc *model.Service, shift model.Shift) ([]string, error) {
	date := t.sess.Slots.Date
	blocks, err := o.deps.Engine.FreeBlocks(ctx, date, svc.DurationMinutes, shift)
	if err != nil {
		return nil, fmt.Errorf("free blocks: %w", err)
	}
	if date != t.today.Format(availability.DateLayout) {
		return blocks, nil
	}
	cutoff := t.now.Format(availability.TimeLayout)
	var out []string
	for _, b := range blocks {
		if b > cutoff {
			out = append(out, b)
		}
	}
	return out, nil
}

func (o *Orchestrator) record(ctx context.Context, t *turn, reply string) {
	for _, turn := range []model.Turn{
		{Role: "user", Text: t.text, At: t.now},
		{Role: "bot", Text: reply, At: t.now},
	} {
		if turn.Text == "" {
			continue
		}
		if err := o.deps.History.Append(ctx, t.userID, turn); err != nil {
			o.logger.Warn().Err(err).Int64("user_id", t.userID).Msg("Failed to append history")
			return
		}
	}
}

func (o *Orchestrator) sessionExpired(userID int64) {
	metrics.IncSessionExpired()
	if o.deps.Events != nil {
		o.deps.Events.PublishPayload(events.SessionExpired, events.SessionPayload{UserID: userID})
	}
}

func (o *Orchestrator) internalError(intent model.Intent) Result {
	return Result{Reply: msgInternalError, Intent: intent}
}

func (o *Orchestrator) log(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return o.logger
}

// userLocks serializes message handling per user.
type userLocks struct {
	mu sync.Mutex
	m  map[int64]*userLock
}

type userLock struct {
	mu   sync.Mutex
	refs int
}

func newUserLocks() *userLocks {
	return &userLocks{m: make(map[int64]*userLock)}
}

func (u *userLocks) lock(userID int64) func() {
	u.mu.Lock()
	l, ok := u.m[userID]
	if !ok {
		l = &userLock{}
		u.m[userID] = l
	}
	l.refs++
	u.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		u.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(u.m, userID)
		}
		u.mu.Unlock()
	}
}
