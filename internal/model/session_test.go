package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSessionMissingOrder(t *testing.T) {
	s := NewSession(1, time.Now())
	assert.Equal(t, RequiredSlots, s.Missing())
	assert.Equal(t, SlotService, s.NextMissing())

	s.Slots.ServiceID = 3
	s.Slots.Shift = ShiftMorning
	assert.Equal(t, []SlotName{SlotDate, SlotStartTime}, s.Missing())

	s.Slots.Date = "2030-01-02"
	s.Slots.StartTime = "10:00"
	assert.Empty(t, s.Missing())
	assert.Equal(t, SlotName(""), s.NextMissing())
}

func TestSlotSetClear(t *testing.T) {
	s := SlotSet{ServiceID: 1, ServiceName: "Haircut", Date: "2030-01-02", Shift: ShiftEvening, StartTime: "19:00"}
	s.Clear(SlotShift, SlotStartTime)
	assert.Equal(t, SlotSet{ServiceID: 1, ServiceName: "Haircut", Date: "2030-01-02"}, s)

	s.Clear(SlotService)
	assert.False(t, s.Has(SlotService))
	assert.Empty(t, s.ServiceName)
}

func TestSessionIsExpired(t *testing.T) {
	now := time.Date(2030, 1, 1, 12, 0, 0, 0, time.UTC)
	s := NewSession(1, now.Add(-11*time.Minute))
	assert.True(t, s.IsExpired(now, 10*time.Minute))
	assert.False(t, s.IsExpired(now, 15*time.Minute))
	assert.False(t, s.IsExpired(now, 0))
}

func TestParseIntent(t *testing.T) {
	assert.Equal(t, IntentBook, ParseIntent("BOOK"))
	assert.Equal(t, IntentGeneric, ParseIntent("AGENDAR"))
	assert.Equal(t, IntentGeneric, ParseIntent(""))
}

func TestAmbiguityContains(t *testing.T) {
	var nilCtx *AmbiguityContext
	assert.False(t, nilCtx.Contains(1))
	a := &AmbiguityContext{OriginalTerm: "haircut", CandidateIDs: []int64{4, 7}}
	assert.True(t, a.Contains(7))
	assert.False(t, a.Contains(5))
}
