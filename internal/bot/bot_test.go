package bot

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"salonbot/internal/database"
	"salonbot/internal/dialogue"
	"salonbot/internal/events"
	"salonbot/internal/model"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sent struct {
	chatID int64
	text   string
	file   string
}

type mockTelegram struct {
	mu      sync.Mutex
	sent    []sent
	updates chan tgbotapi.Update
	sendErr error
}

func (m *mockTelegram) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return tgbotapi.Message{}, m.sendErr
	}
	switch msg := c.(type) {
	case tgbotapi.MessageConfig:
		m.sent = append(m.sent, sent{chatID: msg.ChatID, text: msg.Text})
	case tgbotapi.DocumentConfig:
		fb, _ := msg.File.(tgbotapi.FileBytes)
		m.sent = append(m.sent, sent{chatID: msg.ChatID, text: msg.Caption, file: fb.Name})
	}
	return tgbotapi.Message{}, nil
}

func (m *mockTelegram) Request(tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (m *mockTelegram) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return m.updates
}

func (m *mockTelegram) StopReceivingUpdates() {}

func (m *mockTelegram) SelfUser() tgbotapi.User { return tgbotapi.User{UserName: "salon_test_bot"} }

func (m *mockTelegram) messages() []sent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sent(nil), m.sent...)
}

func (m *mockTelegram) last() sent {
	msgs := m.messages()
	if len(msgs) == 0 {
		return sent{}
	}
	return msgs[len(msgs)-1]
}

type call struct {
	userID int64
	intent model.Intent
	text   string
}

type fakeDialogue struct {
	mu    sync.Mutex
	calls []call
}

func (f *fakeDialogue) Handle(_ context.Context, userID int64, text string) dialogue.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{userID: userID, text: text})
	return dialogue.Result{Reply: "echo: " + text, Intent: model.IntentBook}
}

func (f *fakeDialogue) HandleIntent(_ context.Context, userID int64, intent model.Intent, text string) dialogue.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{userID: userID, intent: intent, text: text})
	return dialogue.Result{Reply: "intent " + string(intent), Intent: intent}
}

type fakeStore struct {
	mu        sync.Mutex
	users     map[int64]model.User
	appts     []model.Appointment
	completed int64
	listErr   error
}

func newFakeStore() *fakeStore {
	return &fakeStore{users: make(map[int64]model.User)}
}

func (f *fakeStore) UpsertUser(_ context.Context, u model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[u.ID] = u
	return nil
}

func (f *fakeStore) GetUser(_ context.Context, id int64) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	return &u, nil
}

func (f *fakeStore) ListUserAppointments(_ context.Context, userID int64, fromDate string) ([]model.Appointment, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []model.Appointment
	for _, a := range f.appts {
		if a.UserID == userID && a.Status == model.StatusScheduled && a.Date >= fromDate {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeStore) ListAppointmentsBetween(_ context.Context, fromDate, toDate string) ([]model.Appointment, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []model.Appointment
	for _, a := range f.appts {
		if a.Date >= fromDate && a.Date <= toDate {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeStore) CancelAppointment(_ context.Context, userID, id int64) (*model.Appointment, error) {
	for i := range f.appts {
		a := &f.appts[i]
		if a.ID == id && a.UserID == userID && a.Status == model.StatusScheduled {
			a.Status = model.StatusCancelled
			cp := *a
			return &cp, nil
		}
	}
	return nil, database.ErrNotFound
}

func (f *fakeStore) CompletePastAppointments(context.Context, time.Time) (int64, error) {
	f.completed++
	return 1, nil
}

const (
	clientID  = int64(100)
	managerID = int64(900)
)

var fixedNow = time.Date(2030, 1, 7, 10, 0, 0, 0, time.UTC)

func newTestBot(t *testing.T, opts Options) (*Bot, *mockTelegram, *fakeDialogue, *fakeStore, *events.EventBus) {
	t.Helper()
	tg := &mockTelegram{updates: make(chan tgbotapi.Update, 4)}
	d := &fakeDialogue{}
	store := newFakeStore()
	store.appts = []model.Appointment{
		{ID: 1, UserID: clientID, ServiceName: "Haircut", Date: "2030-01-08", StartTime: "14:00", EndTime: "14:30", Status: model.StatusScheduled},
		{ID: 2, UserID: clientID, ServiceName: "Manicure", Date: "2030-01-03", StartTime: "10:00", EndTime: "10:45", Status: model.StatusCompleted},
		{ID: 3, UserID: 200, ServiceName: "Beard Trim", Date: "2030-01-08", StartTime: "09:00", EndTime: "09:20", Status: model.StatusScheduled},
		{ID: 4, UserID: 200, ServiceName: "Haircut", Date: "2030-01-08", StartTime: "16:00", EndTime: "16:30", Status: model.StatusCancelled},
	}
	bus := events.NewEventBus(nil)
	opts.Managers = append(opts.Managers, managerID)
	opts.Location = time.UTC
	opts.Now = func() time.Time { return fixedNow }
	if opts.RateBurst == 0 {
		opts.RateBurst = 100
	}
	b, err := NewWithTelegramClient(tg, d, store, bus, opts, nil)
	require.NoError(t, err)
	return b, tg, d, store, bus
}

func message(userID int64, text string) *tgbotapi.Message {
	msg := &tgbotapi.Message{
		From: &tgbotapi.User{ID: userID, FirstName: "Ana", LastName: "Lima"},
		Chat: &tgbotapi.Chat{ID: userID},
		Text: text,
	}
	if strings.HasPrefix(text, "/") {
		cmd := strings.Fields(text)[0]
		msg.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(cmd)}}
	}
	return msg
}

func TestNewRequiresDependencies(t *testing.T) {
	_, err := NewWithTelegramClient(nil, &fakeDialogue{}, newFakeStore(), nil, Options{}, nil)
	assert.Error(t, err)
	_, err = NewWithTelegramClient(&mockTelegram{}, nil, newFakeStore(), nil, Options{}, nil)
	assert.Error(t, err)
}

func TestTextGoesToDialogue(t *testing.T) {
	b, tg, d, store, _ := newTestBot(t, Options{})

	b.handleMessage(context.Background(), message(clientID, "haircut tomorrow at 2pm"))

	require.Len(t, d.calls, 1)
	assert.Equal(t, "haircut tomorrow at 2pm", d.calls[0].text)
	assert.Equal(t, sent{chatID: clientID, text: "echo: haircut tomorrow at 2pm"}, tg.last())
	assert.Equal(t, "Ana Lima", store.users[clientID].Name)
}

func TestCommandsMapToIntents(t *testing.T) {
	tests := []struct {
		text   string
		intent model.Intent
		reply  string
	}{
		{"/start", model.IntentReset, msgWelcome},
		{"/reset", model.IntentReset, "intent RESET"},
		{"/cancel", model.IntentReset, "intent RESET"},
		{"/services", model.IntentList, "intent LIST"},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			b, tg, d, _, _ := newTestBot(t, Options{})
			b.handleMessage(context.Background(), message(clientID, tt.text))

			require.Len(t, d.calls, 1)
			assert.Equal(t, tt.intent, d.calls[0].intent)
			assert.Equal(t, tt.reply, tg.last().text)
		})
	}
}

func TestHelpShowsManagerCommandsToManagers(t *testing.T) {
	b, tg, _, _, _ := newTestBot(t, Options{})

	b.handleMessage(context.Background(), message(clientID, "/help"))
	assert.NotContains(t, tg.last().text, "/export")

	b.handleMessage(context.Background(), message(managerID, "/help"))
	assert.Contains(t, tg.last().text, "/export")
}

func TestMyAppointments(t *testing.T) {
	b, tg, _, _, _ := newTestBot(t, Options{})

	b.handleMessage(context.Background(), message(clientID, "/appointments"))
	text := tg.last().text
	assert.Contains(t, text, "#1 2030-01-08 14:00-14:30 | Haircut")
	assert.NotContains(t, text, "Manicure")

	b.handleMessage(context.Background(), message(555, "/appointments"))
	assert.Equal(t, "You have no upcoming appointments.", tg.last().text)
}

func TestMyAppointmentsStoreError(t *testing.T) {
	b, tg, _, store, _ := newTestBot(t, Options{})
	store.listErr = errors.New("db down")

	b.handleMessage(context.Background(), message(clientID, "/appointments"))
	assert.Contains(t, tg.last().text, "Could not load")
}

func TestCancelAppointment(t *testing.T) {
	tests := []struct {
		name    string
		userID  int64
		text    string
		reply   string
		event   bool
		cancels bool
	}{
		{"own appointment", clientID, "/cancel_appointment 1", "Appointment #1 cancelled.", true, true},
		{"hash prefix", clientID, "/cancel_appointment #1", "Appointment #1 cancelled.", true, true},
		{"someone else's", clientID, "/cancel_appointment 3", "Appointment not found.", false, false},
		{"already finished", clientID, "/cancel_appointment 2", "Appointment not found.", false, false},
		{"missing id", clientID, "/cancel_appointment", "Usage: /cancel_appointment <id>", false, false},
		{"bad id", clientID, "/cancel_appointment abc", "Invalid appointment id.", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, tg, _, store, bus := newTestBot(t, Options{})
			var got []events.AppointmentPayload
			bus.Subscribe(events.AppointmentCancelled, func(ev events.Event) error {
				var p events.AppointmentPayload
				require.NoError(t, ev.Decode(&p))
				got = append(got, p)
				return nil
			})

			b.handleMessage(context.Background(), message(tt.userID, tt.text))

			assert.Equal(t, tt.reply, tg.last().text)
			if tt.event {
				require.Len(t, got, 1)
				assert.Equal(t, int64(1), got[0].AppointmentID)
				assert.Equal(t, "Haircut", got[0].ServiceName)
			} else {
				assert.Empty(t, got)
			}
			assert.Equal(t, tt.cancels, store.appts[0].Status == model.StatusCancelled)
		})
	}
}

func TestExportIsManagerOnly(t *testing.T) {
	b, tg, _, store, _ := newTestBot(t, Options{ExportDays: 7})
	store.users[200] = model.User{ID: 200, Name: "Bruno"}

	b.handleMessage(context.Background(), message(clientID, "/export"))
	assert.Equal(t, msgUnknownCmd, tg.last().text)

	b.handleMessage(context.Background(), message(managerID, "/export"))
	doc := tg.last()
	assert.Equal(t, managerID, doc.chatID)
	assert.Equal(t, "appointments_2030-01-07_2030-01-14.xlsx", doc.file)
	assert.Equal(t, "3 appointments from 2030-01-07 to 2030-01-14", doc.text)
}

func TestUnknownCommand(t *testing.T) {
	b, tg, d, _, _ := newTestBot(t, Options{})
	b.handleMessage(context.Background(), message(clientID, "/dance"))
	assert.Equal(t, msgUnknownCmd, tg.last().text)
	assert.Empty(t, d.calls)
}

func TestRateLimitPerUser(t *testing.T) {
	b, tg, d, _, _ := newTestBot(t, Options{RatePerSecond: 0.001, RateBurst: 2})

	for i := 0; i < 3; i++ {
		b.handleMessage(context.Background(), message(clientID, "hello"))
	}
	assert.Len(t, d.calls, 2)
	assert.Equal(t, msgTooFast, tg.last().text)

	b.handleMessage(context.Background(), message(200, "hello"))
	assert.Len(t, d.calls, 3)
}

func TestStartHandlesUpdatesUntilClosed(t *testing.T) {
	b, tg, d, _, _ := newTestBot(t, Options{})

	tg.updates <- tgbotapi.Update{Message: message(clientID, "hi")}
	tg.updates <- tgbotapi.Update{}
	close(tg.updates)

	b.Start(context.Background())

	require.Len(t, d.calls, 1)
	assert.Equal(t, "echo: hi", tg.last().text)
}

func TestSendMessage(t *testing.T) {
	b, tg, _, _, _ := newTestBot(t, Options{})
	require.NoError(t, b.SendMessage(context.Background(), clientID, "timed out"))
	assert.Equal(t, sent{chatID: clientID, text: "timed out"}, tg.last())

	tg.sendErr = errors.New("blocked")
	assert.Error(t, b.SendMessage(context.Background(), clientID, "again"))
}

func TestManagerNotifications(t *testing.T) {
	b, tg, _, _, bus := newTestBot(t, Options{})
	b.SubscribeManagerNotifications(bus)

	bus.PublishPayload(events.AppointmentBooked, events.AppointmentPayload{
		AppointmentID: 9, UserID: clientID, ServiceName: "Haircut",
		Date: "2030-01-08", StartTime: "14:00", EndTime: "14:30",
	})

	msg := tg.last()
	assert.Equal(t, managerID, msg.chatID)
	assert.Contains(t, msg.text, "New appointment #9")
	assert.Contains(t, msg.text, "Time: 14:00-14:30")
}

func TestSendTomorrowReminders(t *testing.T) {
	b, tg, _, store, _ := newTestBot(t, Options{})

	b.completePast(context.Background())
	assert.Equal(t, int64(1), store.completed)

	n := b.sendTomorrowReminders(context.Background())
	assert.Equal(t, 2, n)

	var recipients []int64
	for _, m := range tg.messages() {
		recipients = append(recipients, m.chatID)
	}
	assert.ElementsMatch(t, []int64{clientID, 200}, recipients)
}

func TestFormatReminderMessage(t *testing.T) {
	text := formatReminderMessage(model.Appointment{
		ID: 5, ServiceName: "Haircut", Date: "2030-01-08", StartTime: "14:00", EndTime: "14:30",
	})
	assert.Contains(t, text, "Haircut at 14:00-14:30")
	assert.Contains(t, text, "/cancel_appointment 5")
}

func TestTimeUntilNextHour(t *testing.T) {
	tests := []struct {
		now  time.Time
		want time.Duration
	}{
		{time.Date(2030, 1, 7, 8, 30, 0, 0, time.UTC), 30 * time.Minute},
		{time.Date(2030, 1, 7, 9, 0, 0, 0, time.UTC), 24 * time.Hour},
		{time.Date(2030, 1, 7, 10, 0, 0, 0, time.UTC), 23 * time.Hour},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, timeUntilNextHour(tt.now, 9), tt.now.String())
	}
}
