package dialogue

import (
	"fmt"
	"strings"
	"time"

	"salonbot/internal/availability"
	"salonbot/internal/model"
)

// maxOfferedTimes caps how many free start times a prompt lists.
const maxOfferedTimes = 8

const (
	msgInternalError   = "Sorry, something went wrong on our side. Please try again in a moment."
	msgReset           = "Okay, let's start over. Which service would you like to book?"
	msgGreeting        = "Hi! I can book an appointment for you. Just tell me which service you'd like, for example \"haircut tomorrow at 14:00\"."
	msgNotUnderstood   = "Sorry, I didn't get that."
	msgExpired         = "Your previous booking conversation expired, so I cleared it."
	msgTimeout         = "Your booking conversation timed out after a period of inactivity. Send a message whenever you want to start again."
	msgNoServices      = "We have no services available for booking right now."
	msgAskDate         = "Which date would you like for %s? You can say \"tomorrow\", \"next friday\" or a date like 10/12."
	msgBadDate         = "I couldn't understand the date \"%s\"."
	msgBadShift        = "I couldn't understand \"%s\" as a part of the day."
	msgBadTime         = "I couldn't understand the time \"%s\"."
	msgServiceNotFound = "I couldn't find a service called \"%s\"."
	msgClosed          = "We are closed on %s."
	msgDateFull        = "There is no free time left on %s."
	msgShiftFull       = "The %s of %s is fully booked."
)

func formatDate(date string) string {
	d, err := time.Parse(availability.DateLayout, date)
	if err != nil {
		return date
	}
	return d.Format("Monday, 02 Jan 2006")
}

func formatServiceList(services []model.Service) string {
	if len(services) == 0 {
		return msgNoServices
	}
	var sb strings.Builder
	sb.WriteString("Our services:\n")
	for _, s := range services {
		fmt.Fprintf(&sb, "• %s (%d min, %.2f)\n", s.Name, s.DurationMinutes, s.Price)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func formatServiceDetails(s model.Service) string {
	text := fmt.Sprintf("%s\nPrice: %.2f\nDuration: %d min", s.Name, s.Price, s.DurationMinutes)
	if s.Description != "" {
		text += "\n" + s.Description
	}
	return text
}

func formatAmbiguity(term string, candidates []model.Service) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "I found several services matching \"%s\":\n", term)
	for i, s := range candidates {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, s.Name)
	}
	sb.WriteString("Which one do you mean?")
	return sb.String()
}

func formatShiftPrompt(date string, shifts []model.Shift) string {
	labels := make([]string, len(shifts))
	for i, s := range shifts {
		labels[i] = s.Label()
	}
	return fmt.Sprintf("On %s we have free time in the %s. Which part of the day do you prefer?",
		formatDate(date), strings.Join(labels, ", "))
}

func formatTimePrompt(date string, shift model.Shift, times []string) string {
	if len(times) > maxOfferedTimes {
		times = times[:maxOfferedTimes]
	}
	return fmt.Sprintf("Free times on %s in the %s: %s. Which time works for you?",
		formatDate(date), shift.Label(), strings.Join(times, ", "))
}

func formatConfirmation(appt model.Appointment, svc model.Service) string {
	return fmt.Sprintf("✅ Booked! %s on %s, %s-%s.\nAppointment #%d. See you there!",
		svc.Name, formatDate(appt.Date), appt.StartTime, appt.EndTime, appt.ID)
}

// resumeLine reminds the user of a booking in progress after an interrupting question.
func resumeLine(s *model.Session) string {
	if s.State != model.StateCollecting {
		return ""
	}
	switch s.NextMissing() {
	case model.SlotService:
		return "Which service would you like to book?"
	case model.SlotDate:
		return "Back to your booking: which date would you like?"
	case model.SlotShift:
		return "Back to your booking: morning, afternoon or evening?"
	case model.SlotStartTime:
		return "Back to your booking: what time would you like?"
	}
	return ""
}

func joinParagraphs(parts ...string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, "\n\n")
}
