package bot

import (
	"context"
	"fmt"
	"time"

	"salonbot/internal/model"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// StartReminders sends next-day reminders every day at hour and marks finished appointments completed.
func (b *Bot) StartReminders(ctx context.Context, hour int) {
	if b == nil || b.store == nil || b.tg == nil {
		return
	}

	go func() {
		timer := time.NewTimer(timeUntilNextHour(b.opts.Now().In(b.opts.Location), hour))
		defer timer.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-timer.C:
				b.completePast(ctx)
				b.sendTomorrowReminders(ctx)
				timer.Reset(timeUntilNextHour(b.opts.Now().In(b.opts.Location), hour))
			}
		}
	}()
}

func (b *Bot) completePast(ctx context.Context) {
	n, err := b.store.CompletePastAppointments(ctx, b.opts.Now())
	if err != nil {
		b.logger.Error().Err(err).Msg("reminder: complete past appointments")
		return
	}
	if n > 0 {
		b.logger.Info().Int64("count", n).Msg("Marked appointments completed")
	}
}

func (b *Bot) sendTomorrowReminders(ctx context.Context) int {
	tomorrow := b.opts.Now().In(b.opts.Location).AddDate(0, 0, 1).Format("2006-01-02")

	appts, err := b.store.ListAppointmentsBetween(ctx, tomorrow, tomorrow)
	if err != nil {
		b.logger.Error().Err(err).Msg("reminder: list appointments")
		return 0
	}

	sent := 0
	for _, a := range appts {
		if a.Status != model.StatusScheduled {
			continue
		}
		msg := tgbotapi.NewMessage(a.UserID, formatReminderMessage(a))
		if _, err := b.tg.Send(msg); err != nil {
			b.logger.Warn().Err(err).Int64("user_id", a.UserID).Msg("reminder: send")
			continue
		}
		sent++
	}
	return sent
}

func formatReminderMessage(a model.Appointment) string {
	return fmt.Sprintf("Reminder: tomorrow (%s) you have %s at %s-%s. Appointment #%d.\nIf you can't make it, send /cancel_appointment %d.",
		a.Date, a.ServiceName, a.StartTime, a.EndTime, a.ID, a.ID)
}

func timeUntilNextHour(now time.Time, hour int) time.Duration {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next.Sub(now)
}
