package slots

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"salonbot/internal/model"
)

var (
	clockPattern = regexp.MustCompile(`^(\d{1,2})\s*[:h.]\s*(\d{2})$`)
	hourPattern  = regexp.MustCompile(`^(\d{1,2})\s*(?:h|hs|horas?|o'?clock)?$`)
	ampmPattern  = regexp.MustCompile(`^(\d{1,2})(?:[:.](\d{2}))?\s*(am|pm|a\.m\.|p\.m\.)$`)
	timePrefix   = regexp.MustCompile(`^(?:at|as|às|a partir das)\s+`)
)

// NormalizeTime converts "14h", "14", "2pm", "14.30" and similar into HH:MM.
func NormalizeTime(raw string) (string, bool) {
	text := strings.ToLower(strings.TrimSpace(raw))
	text = timePrefix.ReplaceAllString(text, "")
	switch text {
	case "":
		return "", false
	case "noon", "midday", "meio-dia", "meio dia":
		return "12:00", true
	}

	if m := ampmPattern.FindStringSubmatch(text); m != nil {
		hour, _ := strconv.Atoi(m[1])
		minute := 0
		if m[2] != "" {
			minute, _ = strconv.Atoi(m[2])
		}
		if hour < 1 || hour > 12 {
			return "", false
		}
		pm := strings.HasPrefix(m[3], "p")
		switch {
		case pm && hour != 12:
			hour += 12
		case !pm && hour == 12:
			hour = 0
		}
		return formatHM(hour, minute)
	}

	if m := clockPattern.FindStringSubmatch(text); m != nil {
		hour, _ := strconv.Atoi(m[1])
		minute, _ := strconv.Atoi(m[2])
		return formatHM(hour, minute)
	}

	if m := hourPattern.FindStringSubmatch(text); m != nil {
		hour, _ := strconv.Atoi(m[1])
		return formatHM(hour, 0)
	}
	return "", false
}

func formatHM(hour, minute int) (string, bool) {
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return "", false
	}
	return fmt.Sprintf("%02d:%02d", hour, minute), true
}

// ParseShift maps shift words in English or Portuguese onto a Shift.
func ParseShift(raw string) (model.Shift, bool) {
	text := accents.Replace(strings.ToLower(strings.TrimSpace(raw)))
	switch {
	case text == "":
		return "", false
	case strings.Contains(text, "morning"), strings.Contains(text, "manha"):
		return model.ShiftMorning, true
	case strings.Contains(text, "afternoon"), strings.Contains(text, "tarde"):
		return model.ShiftAfternoon, true
	case strings.Contains(text, "evening"), strings.Contains(text, "night"), strings.Contains(text, "noite"):
		return model.ShiftEvening, true
	}
	return "", false
}
