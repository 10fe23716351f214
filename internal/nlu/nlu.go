// Package nlu turns user text into an intent and slot candidates.
package nlu

import (
	"context"
	"errors"
	"fmt"
	"time"

	"salonbot/internal/model"
)

// ErrTimeout is returned when extraction exceeds its deadline.
var ErrTimeout = errors.New("nlu: timeout")

// Candidates are raw slot values found in a message. Nil means "not mentioned".
type Candidates struct {
	Service   *string `json:"service"`
	Date      *string `json:"date"`
	Shift     *string `json:"shift"`
	StartTime *string `json:"start_time"`
}

// Empty reports whether no candidate was extracted.
func (c Candidates) Empty() bool {
	return c.Service == nil && c.Date == nil && c.Shift == nil && c.StartTime == nil
}

// Request is one extraction call.
type Request struct {
	Text    string
	Slots   model.SlotSet  // already collected, for context
	Focus   model.SlotName // slot currently being asked for, may be empty
	History []model.Turn
	Today   time.Time
}

// Extraction is the structured result.
type Extraction struct {
	Intent     model.Intent
	Candidates Candidates
}

// Extractor is the NLU boundary.
type Extractor interface {
	Extract(ctx context.Context, req Request) (Extraction, error)
}

// Responder answers free-form questions that are not part of a booking.
type Responder interface {
	Reply(ctx context.Context, history []model.Turn, text string) (string, error)
}

// Generic is the fallback result of a failed extraction.
func Generic() Extraction {
	return Extraction{Intent: model.IntentGeneric}
}

// WithTimeout bounds every Extract call of next.
func WithTimeout(next Extractor, timeout time.Duration) Extractor {
	return &timeoutExtractor{next: next, timeout: timeout}
}

type timeoutExtractor struct {
	next    Extractor
	timeout time.Duration
}

func (t *timeoutExtractor) Extract(ctx context.Context, req Request) (Extraction, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	type result struct {
		ext Extraction
		err error
	}
	done := make(chan result, 1)
	go func() {
		ext, err := t.next.Extract(ctx, req)
		done <- result{ext, err}
	}()

	select {
	case r := <-done:
		if r.err != nil && errors.Is(r.err, context.DeadlineExceeded) {
			return Extraction{}, fmt.Errorf("%w: %v", ErrTimeout, r.err)
		}
		return r.ext, r.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Extraction{}, ErrTimeout
		}
		return Extraction{}, ctx.Err()
	}
}

func strPtr(s string) *string {
	return &s
}
