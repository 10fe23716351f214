package nlu

import (
	"context"
	"regexp"
	"strings"

	"salonbot/internal/model"
)

var (
	resetWords = []string{"reset", "start over", "restart", "cancel", "forget it", "recomecar", "recomeçar", "cancelar", "esquece"}
	listWords  = []string{"services", "what do you offer", "what do you do", "menu", "price list", "servicos", "serviços", "lista"}
	searchRe   = regexp.MustCompile(`\b(how much|price|cost|how long|what is|quanto custa|preco|preço|o que e|o que é)`)
	bookWords  = []string{"book", "appointment", "schedule", "reserve", "agendar", "marcar", "horario", "horário"}

	isoDateRe   = regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b`)
	slashDateRe = regexp.MustCompile(`\b\d{1,2}/\d{1,2}(?:/\d{4})?\b`)
	inDaysRe    = regexp.MustCompile(`\b(?:in|em|daqui a)\s+\d+\s+(?:days?|dias?)\b`)
	relDayRe    = regexp.MustCompile(`\b(day after tomorrow|depois de amanh[aã]|today|tomorrow|hoje|amanh[aã])`)
	weekdayRe   = regexp.MustCompile(`\b(?:(?:next|this|on|pr[oó]xim[ao])\s+)?(monday|tuesday|wednesday|thursday|friday|saturday|sunday|segunda(?:-feira)?|ter[cç]a(?:-feira)?|quarta(?:-feira)?|quinta(?:-feira)?|sexta(?:-feira)?|s[aá]bado|domingo)\b`)

	clockRe = regexp.MustCompile(`\b\d{1,2}(?::|h)\d{2}\b`)
	ampmRe  = regexp.MustCompile(`\b\d{1,2}(?::\d{2})?\s*(?:am|pm)\b`)
	hourRe  = regexp.MustCompile(`\b\d{1,2}\s*h\b`)
	atRe    = regexp.MustCompile(`(?:\bat|\bas|às)\s+(\d{1,2})\b`)
	bareRe  = regexp.MustCompile(`^\d{1,2}$`)

	shiftRe = regexp.MustCompile(`\b(morning|afternoon|evening|night|manh[aã]|tarde|noite)`)
)

// Keyword is a rule-based extractor that works without a language model.
type Keyword struct {
	services func(ctx context.Context) []string
}

// NewKeyword creates a keyword extractor. services lists catalog names used to spot service terms.
func NewKeyword(services func(ctx context.Context) []string) *Keyword {
	return &Keyword{services: services}
}

// Extract implements Extractor.
func (k *Keyword) Extract(ctx context.Context, req Request) (Extraction, error) {
	text := strings.ToLower(strings.TrimSpace(req.Text))
	if text == "" {
		return Generic(), nil
	}

	c := Candidates{
		Service:   k.findService(ctx, text),
		Date:      findDate(text),
		Shift:     findFirst(shiftRe, text),
		StartTime: findTime(text),
	}

	intent := k.intent(text, req.Focus, c)
	if intent != model.IntentBook {
		return Extraction{Intent: intent, Candidates: c}, nil
	}

	switch req.Focus {
	case model.SlotService:
		if c.Service == nil && len(strings.Fields(text)) <= 4 && c.Date == nil && c.StartTime == nil && c.Shift == nil {
			c.Service = strPtr(text)
		}
	case model.SlotDate:
		if c.Date == nil && c.StartTime == nil && c.Shift == nil && c.Service == nil {
			c.Date = strPtr(text)
		}
	case model.SlotStartTime:
		if c.StartTime == nil && bareRe.MatchString(text) {
			c.StartTime = strPtr(text)
		}
	}

	return Extraction{Intent: intent, Candidates: c}, nil
}

func (k *Keyword) intent(text string, focus model.SlotName, c Candidates) model.Intent {
	switch {
	case containsAny(text, resetWords):
		return model.IntentReset
	case containsAny(text, bookWords):
		return model.IntentBook
	case searchRe.MatchString(text) && c.Service != nil:
		return model.IntentSearch
	case containsAny(text, listWords):
		return model.IntentList
	case focus != "":
		return model.IntentBook
	case c.Service != nil && (c.Date != nil || c.StartTime != nil || c.Shift != nil):
		return model.IntentBook
	case c.Service != nil:
		return model.IntentSearch
	}
	return model.IntentGeneric
}

// findService returns the full service name found in text, or else the catalog word
// present in text that matches the fewest services.
func (k *Keyword) findService(ctx context.Context, text string) *string {
	if k.services == nil {
		return nil
	}
	names := k.services(ctx)

	best := ""
	for _, n := range names {
		ln := strings.ToLower(n)
		if strings.Contains(text, ln) && len(ln) > len(best) {
			best = ln
		}
	}
	if best != "" {
		return strPtr(best)
	}

	counts := make(map[string]int)
	for _, n := range names {
		seen := make(map[string]bool)
		for _, w := range strings.Fields(strings.ToLower(n)) {
			if len(w) >= 4 && !seen[w] {
				counts[w]++
				seen[w] = true
			}
		}
	}
	bestCount := 0
	for _, w := range strings.FieldsFunc(text, func(r rune) bool { return r == ' ' || r == ',' || r == '.' || r == '?' || r == '!' }) {
		n, ok := counts[w]
		if ok && (bestCount == 0 || n < bestCount) {
			best, bestCount = w, n
		}
	}
	if best == "" {
		return nil
	}
	return strPtr(best)
}

func findDate(text string) *string {
	for _, re := range []*regexp.Regexp{isoDateRe, slashDateRe, inDaysRe, relDayRe, weekdayRe} {
		if m := re.FindString(text); m != "" {
			return strPtr(m)
		}
	}
	return nil
}

func findTime(text string) *string {
	for _, re := range []*regexp.Regexp{clockRe, ampmRe} {
		if m := re.FindString(text); m != "" {
			return strPtr(m)
		}
	}
	if m := hourRe.FindString(text); m != "" {
		return strPtr(strings.TrimSpace(m))
	}
	if m := atRe.FindStringSubmatch(text); m != nil {
		return strPtr(m[1])
	}
	return nil
}

func findFirst(re *regexp.Regexp, text string) *string {
	if m := re.FindString(text); m != "" {
		return strPtr(m)
	}
	return nil
}

func containsAny(text string, words []string) bool {
	for _, w := range words {
		if strings.Contains(text, w) {
			return true
		}
	}
	return false
}
