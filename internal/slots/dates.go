package slots

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	dps "github.com/markusmobius/go-dateparser"
)

const isoDate = "2006-01-02"

// maxDaysAhead bounds "in N days" expressions.
const maxDaysAhead = 366

var weekdays = map[string]time.Weekday{
	"sunday": time.Sunday, "domingo": time.Sunday,
	"monday": time.Monday, "segunda": time.Monday,
	"tuesday": time.Tuesday, "terca": time.Tuesday,
	"wednesday": time.Wednesday, "quarta": time.Wednesday,
	"thursday": time.Thursday, "quinta": time.Thursday,
	"friday": time.Friday, "sexta": time.Friday,
	"saturday": time.Saturday, "sabado": time.Saturday,
}

var relativeDays = map[string]int{
	"today": 0, "hoje": 0,
	"tomorrow": 1, "amanha": 1,
	"day after tomorrow": 2, "depois de amanha": 2,
}

var (
	isoPattern     = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	weekdayPattern = regexp.MustCompile(`^(?:(?:next|this|on|proxim[ao]|nest[ae]|est[ae]|ess[ae])\s+)?([a-z]+)(?:-feira)?$`)
	inDaysPattern  = regexp.MustCompile(`^(?:in|em|daqui a|daqui)\s+(\d+)\s+(?:days?|dias?)$`)
	dayMonthRe     = regexp.MustCompile(`^(\d{1,2})\s*[/.]\s*(\d{1,2})$`)
	dayMonthYearRe = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})/(\d{4})$`)
)

var accents = strings.NewReplacer(
	"á", "a", "à", "a", "ã", "a", "â", "a",
	"é", "e", "ê", "e",
	"í", "i",
	"ó", "o", "ô", "o", "õ", "o",
	"ú", "u",
	"ç", "c",
)

// NormalizeDate turns a free-form date expression into YYYY-MM-DD relative to today.
// ok is false when nothing could be parsed.
func NormalizeDate(raw string, today time.Time) (string, bool) {
	original := strings.TrimSpace(raw)
	if original == "" {
		return "", false
	}
	if isoPattern.MatchString(original) {
		if _, err := time.Parse(isoDate, original); err == nil {
			return original, true
		}
		return "", false
	}

	base := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, today.Location())
	text := accents.Replace(strings.ToLower(original))
	text = strings.Join(strings.Fields(text), " ")

	if n, ok := relativeDays[text]; ok {
		return base.AddDate(0, 0, n).Format(isoDate), true
	}

	if m := weekdayPattern.FindStringSubmatch(text); m != nil {
		if wd, ok := weekdays[m[1]]; ok {
			ahead := (int(wd) - int(base.Weekday()) + 7) % 7
			if ahead == 0 {
				ahead = 7
			}
			return base.AddDate(0, 0, ahead).Format(isoDate), true
		}
	}

	if m := inDaysPattern.FindStringSubmatch(text); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil || n > maxDaysAhead {
			return "", false
		}
		return base.AddDate(0, 0, n).Format(isoDate), true
	}

	if m := dayMonthRe.FindStringSubmatch(text); m != nil {
		day, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		if d, ok := buildDate(base.Year(), month, day, base.Location()); ok {
			if d.Before(base) {
				d, ok = buildDate(base.Year()+1, month, day, base.Location())
				if !ok {
					return "", false
				}
			}
			return d.Format(isoDate), true
		}
		return "", false
	}

	if m := dayMonthYearRe.FindStringSubmatch(text); m != nil {
		day, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		year, _ := strconv.Atoi(m[3])
		if d, ok := buildDate(year, month, day, base.Location()); ok {
			return d.Format(isoDate), true
		}
		return "", false
	}

	cfg := &dps.Configuration{
		CurrentTime:         base,
		PreferredDateSource: dps.Future,
	}
	parsed, err := dps.Parse(cfg, original)
	if err != nil || parsed.Time.IsZero() {
		return "", false
	}
	t := parsed.Time.In(base.Location())
	d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, base.Location())
	if d.Before(base) {
		return "", false
	}
	return d.Format(isoDate), true
}

// buildDate rejects dates that time.Date would normalize, e.g. 31/02.
func buildDate(year, month, day int, loc *time.Location) (time.Time, bool) {
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, false
	}
	d := time.Date(year, time.Month(month), day, 0, 0, 0, 0, loc)
	if d.Day() != day || int(d.Month()) != month {
		return time.Time{}, false
	}
	return d, true
}
