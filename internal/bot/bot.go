// Package bot is the Telegram transport of the booking assistant.
package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"salonbot/internal/database"
	"salonbot/internal/dialogue"
	"salonbot/internal/events"
	"salonbot/internal/export"
	"salonbot/internal/metrics"
	"salonbot/internal/model"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

type telegramClient interface {
	Send(tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
	SelfUser() tgbotapi.User
}

type realTelegramClient struct {
	api *tgbotapi.BotAPI
}

func (c *realTelegramClient) Send(msg tgbotapi.Chattable) (tgbotapi.Message, error) {
	return c.api.Send(msg)
}

func (c *realTelegramClient) Request(msg tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	return c.api.Request(msg)
}

func (c *realTelegramClient) GetUpdatesChan(cfg tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return c.api.GetUpdatesChan(cfg)
}

func (c *realTelegramClient) StopReceivingUpdates() {
	c.api.StopReceivingUpdates()
}

func (c *realTelegramClient) SelfUser() tgbotapi.User {
	return c.api.Self
}

// Dialogue is the conversation engine behind the bot.
type Dialogue interface {
	Handle(ctx context.Context, userID int64, text string) dialogue.Result
	HandleIntent(ctx context.Context, userID int64, intent model.Intent, text string) dialogue.Result
}

// Store is the data the bot reads and writes outside the dialogue.
type Store interface {
	UpsertUser(ctx context.Context, u model.User) error
	GetUser(ctx context.Context, id int64) (*model.User, error)
	ListUserAppointments(ctx context.Context, userID int64, fromDate string) ([]model.Appointment, error)
	ListAppointmentsBetween(ctx context.Context, fromDate, toDate string) ([]model.Appointment, error)
	CancelAppointment(ctx context.Context, userID, id int64) (*model.Appointment, error)
	CompletePastAppointments(ctx context.Context, now time.Time) (int64, error)
}

// Publisher emits domain events.
type Publisher interface {
	PublishPayload(eventType string, payload any)
}

// Options configure the bot.
type Options struct {
	Managers      []int64
	RatePerSecond float64
	RateBurst     int
	ExportDays    int
	MaxInFlight   int
	Location      *time.Location
	Now           func() time.Time
}

const (
	msgWelcome = "Hi! I'm the salon assistant. Tell me what you'd like to book, for example \"haircut tomorrow at 14:00\".\n\n" +
		"/services - our services\n/appointments - your upcoming appointments\n/reset - start over\n/help - help"
	msgHelp = "Just write what you need in your own words: the service, the day and the time.\n\n" +
		"/services - list services\n/appointments - your upcoming appointments\n" +
		"/cancel_appointment <id> - cancel an appointment\n/reset - start the conversation over"
	msgManagerHelp = "\n\nManager commands:\n/export - upcoming appointments as an Excel file"
	msgTooFast     = "You're sending messages too quickly. Please wait a moment."
	msgUnknownCmd  = "Unknown command. See /help."
)

// Bot is a Telegram bot wrapper around the booking dialogue.
type Bot struct {
	tg       telegramClient
	dialogue Dialogue
	store    Store
	events   Publisher
	managers map[int64]struct{}
	opts     Options
	logger   *zerolog.Logger

	mu       sync.Mutex
	limiters map[int64]*rate.Limiter

	wg sync.WaitGroup
}

// New connects to Telegram with token.
func New(token string, debug bool, d Dialogue, store Store, pub Publisher, opts Options, logger *zerolog.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	api.Debug = debug
	return newBot(&realTelegramClient{api: api}, d, store, pub, opts, logger)
}

// NewWithTelegramClient allows injecting a mocked Telegram client for tests.
func NewWithTelegramClient(tg telegramClient, d Dialogue, store Store, pub Publisher, opts Options, logger *zerolog.Logger) (*Bot, error) {
	return newBot(tg, d, store, pub, opts, logger)
}

func newBot(tg telegramClient, d Dialogue, store Store, pub Publisher, opts Options, logger *zerolog.Logger) (*Bot, error) {
	if tg == nil {
		return nil, fmt.Errorf("telegram client is nil")
	}
	if d == nil || store == nil {
		return nil, fmt.Errorf("dialogue and store are required")
	}
	mgrs := make(map[int64]struct{})
	for _, id := range opts.Managers {
		mgrs[id] = struct{}{}
	}
	if opts.RatePerSecond <= 0 {
		opts.RatePerSecond = 1
	}
	if opts.RateBurst <= 0 {
		opts.RateBurst = 5
	}
	if opts.ExportDays <= 0 {
		opts.ExportDays = 30
	}
	if opts.MaxInFlight <= 0 {
		opts.MaxInFlight = 16
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("component", "telegram").Logger()
	return &Bot{
		tg:       tg,
		dialogue: d,
		store:    store,
		events:   pub,
		managers: mgrs,
		opts:     opts,
		logger:   &l,
		limiters: make(map[int64]*rate.Limiter),
	}, nil
}

// Start polls updates until ctx is cancelled. Updates of different users are handled concurrently.
func (b *Bot) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := b.tg.GetUpdatesChan(u)
	b.logger.Info().Str("username", b.tg.SelfUser().UserName).Msg("Bot authorized")

	sem := make(chan struct{}, b.opts.MaxInFlight)
	defer b.wg.Wait()
	for {
		select {
		case <-ctx.Done():
			b.tg.StopReceivingUpdates()
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			requestID := uuid.New().String()
			l := b.logger.With().Str("request_id", requestID).Logger()
			updateCtx := l.WithContext(ctx)

			sem <- struct{}{}
			b.wg.Add(1)
			go func(update tgbotapi.Update) {
				defer func() {
					<-sem
					b.wg.Done()
				}()
				b.handleUpdate(updateCtx, &update)
			}(update)
		}
	}
}

// SendMessage implements dialogue.Notifier.
func (b *Bot) SendMessage(_ context.Context, userID int64, text string) error {
	_, err := b.tg.Send(tgbotapi.NewMessage(userID, text))
	return err
}

// SubscribeManagerNotifications forwards booking events to the managers.
func (b *Bot) SubscribeManagerNotifications(bus *events.EventBus) {
	bus.Subscribe(events.AppointmentBooked, func(ev events.Event) error {
		return b.notifyManagers(ev, "New appointment")
	})
	bus.Subscribe(events.AppointmentCancelled, func(ev events.Event) error {
		return b.notifyManagers(ev, "Appointment cancelled")
	})
}

func (b *Bot) notifyManagers(ev events.Event, title string) error {
	var p events.AppointmentPayload
	if err := ev.Decode(&p); err != nil {
		return fmt.Errorf("decode %s: %w", ev.Type, err)
	}
	text := fmt.Sprintf("%s #%d\nService: %s\nDate: %s\nTime: %s-%s\nClient: %d",
		title, p.AppointmentID, p.ServiceName, p.Date, p.StartTime, p.EndTime, p.UserID)
	var errs []error
	for mgrID := range b.managers {
		if _, err := b.tg.Send(tgbotapi.NewMessage(mgrID, text)); err != nil {
			errs = append(errs, fmt.Errorf("notify manager %d: %w", mgrID, err))
		}
	}
	return errors.Join(errs...)
}

func (b *Bot) handleUpdate(ctx context.Context, update *tgbotapi.Update) {
	if update.Message == nil || update.Message.From == nil {
		return
	}
	l := zerolog.Ctx(ctx)
	l.Debug().
		Int64("user_id", update.Message.From.ID).
		Str("text", update.Message.Text).
		Msg("Handling message")
	b.handleMessage(ctx, update.Message)
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	userID := msg.From.ID
	chatID := msg.Chat.ID
	l := zerolog.Ctx(ctx)

	if err := b.store.UpsertUser(ctx, model.User{ID: userID, Name: displayName(msg.From)}); err != nil {
		l.Warn().Err(err).Int64("user_id", userID).Msg("Failed to upsert user")
	}

	if !b.limiter(userID).Allow() {
		l.Warn().Int64("user_id", userID).Msg("Rate limit exceeded")
		b.reply(chatID, msgTooFast)
		return
	}

	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return
	}

	if msg.IsCommand() {
		b.handleCommand(ctx, msg)
		return
	}

	res := b.dialogue.Handle(ctx, userID, text)
	b.reply(chatID, res.Reply)
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	userID, chatID := msg.From.ID, msg.Chat.ID
	switch msg.Command() {
	case "start":
		b.dialogue.HandleIntent(ctx, userID, model.IntentReset, msg.Text)
		b.reply(chatID, msgWelcome)
	case "reset", "cancel":
		res := b.dialogue.HandleIntent(ctx, userID, model.IntentReset, msg.Text)
		b.reply(chatID, res.Reply)
	case "services":
		res := b.dialogue.HandleIntent(ctx, userID, model.IntentList, msg.Text)
		b.reply(chatID, res.Reply)
	case "help":
		text := msgHelp
		if b.isManager(userID) {
			text += msgManagerHelp
		}
		b.reply(chatID, text)
	case "appointments":
		b.handleMyAppointments(ctx, msg)
	case "cancel_appointment":
		b.handleCancelAppointment(ctx, msg)
	case "export":
		if !b.isManager(userID) {
			b.reply(chatID, msgUnknownCmd)
			return
		}
		b.handleExport(ctx, chatID)
	default:
		b.reply(chatID, msgUnknownCmd)
	}
}

func (b *Bot) handleMyAppointments(ctx context.Context, msg *tgbotapi.Message) {
	today := b.opts.Now().In(b.opts.Location).Format("2006-01-02")
	appts, err := b.store.ListUserAppointments(ctx, msg.From.ID, today)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("Failed to list appointments")
		b.reply(msg.Chat.ID, "Could not load your appointments. Please try again later.")
		return
	}
	if len(appts) == 0 {
		b.reply(msg.Chat.ID, "You have no upcoming appointments.")
		return
	}

	var sb strings.Builder
	sb.WriteString("Your upcoming appointments:\n")
	for _, a := range appts {
		fmt.Fprintf(&sb, "#%d %s %s-%s | %s\n", a.ID, a.Date, a.StartTime, a.EndTime, a.ServiceName)
	}
	sb.WriteString("\nTo cancel one, send /cancel_appointment <id>.")
	b.reply(msg.Chat.ID, sb.String())
}

func (b *Bot) handleCancelAppointment(ctx context.Context, msg *tgbotapi.Message) {
	args := strings.Fields(msg.CommandArguments())
	if len(args) != 1 {
		b.reply(msg.Chat.ID, "Usage: /cancel_appointment <id>")
		return
	}
	id, err := strconv.ParseInt(strings.TrimPrefix(args[0], "#"), 10, 64)
	if err != nil || id <= 0 {
		b.reply(msg.Chat.ID, "Invalid appointment id.")
		return
	}

	appt, err := b.store.CancelAppointment(ctx, msg.From.ID, id)
	switch {
	case err == nil:
		metrics.IncBookingCancelled()
		if b.events != nil {
			b.events.PublishPayload(events.AppointmentCancelled, events.AppointmentPayload{
				AppointmentID: appt.ID,
				UserID:        appt.UserID,
				ServiceName:   appt.ServiceName,
				Date:          appt.Date,
				StartTime:     appt.StartTime,
				EndTime:       appt.EndTime,
			})
		}
		b.reply(msg.Chat.ID, fmt.Sprintf("Appointment #%d cancelled.", id))
	case errors.Is(err, database.ErrNotFound):
		b.reply(msg.Chat.ID, "Appointment not found.")
	default:
		zerolog.Ctx(ctx).Error().Err(err).Int64("appointment_id", id).Msg("Failed to cancel appointment")
		b.reply(msg.Chat.ID, "Could not cancel the appointment. Please try again later.")
	}
}

func (b *Bot) handleExport(ctx context.Context, chatID int64) {
	now := b.opts.Now().In(b.opts.Location)
	from := now.Format("2006-01-02")
	to := now.AddDate(0, 0, b.opts.ExportDays).Format("2006-01-02")

	appts, err := b.store.ListAppointmentsBetween(ctx, from, to)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("Failed to load appointments for export")
		b.reply(chatID, "Export failed.")
		return
	}

	names := make(map[int64]string)
	rows := make([]export.Row, 0, len(appts))
	for _, a := range appts {
		name, ok := names[a.UserID]
		if !ok {
			if u, err := b.store.GetUser(ctx, a.UserID); err == nil {
				name = u.Name
			}
			names[a.UserID] = name
		}
		rows = append(rows, export.Row{Appointment: a, ClientName: name})
	}

	data, err := export.Workbook(rows)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("Failed to build workbook")
		b.reply(chatID, "Export failed.")
		return
	}
	doc := tgbotapi.NewDocument(chatID, tgbotapi.FileBytes{
		Name:  fmt.Sprintf("appointments_%s_%s.xlsx", from, to),
		Bytes: data,
	})
	doc.Caption = fmt.Sprintf("%d appointments from %s to %s", len(rows), from, to)
	if _, err := b.tg.Send(doc); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("Failed to send export")
	}
}

func (b *Bot) limiter(userID int64) *rate.Limiter {
	b.mu.Lock()
	defer b.mu.Unlock()
	l, ok := b.limiters[userID]
	if !ok {
		l = rate.NewLimiter(rate.Limit(b.opts.RatePerSecond), b.opts.RateBurst)
		b.limiters[userID] = l
	}
	return l
}

func (b *Bot) reply(chatID int64, text string) {
	if text == "" {
		return
	}
	if _, err := b.tg.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		b.logger.Warn().Err(err).Int64("chat_id", chatID).Msg("Failed to send reply")
	}
}

func (b *Bot) isManager(id int64) bool {
	_, ok := b.managers[id]
	return ok
}

func displayName(u *tgbotapi.User) string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		name = u.UserName
	}
	return name
}
