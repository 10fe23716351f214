package slots

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"salonbot/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeKeepsExistingOnEmptyCandidate(t *testing.T) {
	existing := model.SlotSet{ServiceID: 1, ServiceName: "Haircut", Date: "2030-01-07", Shift: model.ShiftMorning, StartTime: "10:00"}

	assert.Equal(t, existing, Merge(existing, model.SlotSet{}))

	merged := Merge(existing, model.SlotSet{StartTime: "11:00"})
	assert.Equal(t, "11:00", merged.StartTime)
	assert.Equal(t, int64(1), merged.ServiceID)
	assert.Equal(t, "2030-01-07", merged.Date)

	merged = Merge(model.SlotSet{}, model.SlotSet{ServiceID: 2, ServiceName: "Beard"})
	assert.Equal(t, model.SlotSet{ServiceID: 2, ServiceName: "Beard"}, merged)

	assert.Equal(t, []model.SlotName{model.SlotStartTime}, Changed(existing, Merge(existing, model.SlotSet{StartTime: "11:00"})))
	assert.Empty(t, Changed(existing, existing))
}

func TestNormalizeDate(t *testing.T) {
	// Wednesday
	today := time.Date(2026, 10, 14, 15, 30, 0, 0, time.UTC)

	tests := []struct {
		raw  string
		want string
		ok   bool
	}{
		{"2026-12-01", "2026-12-01", true},
		{"2020-01-01", "2020-01-01", true},
		{"2026-13-01", "", false},
		{"today", "2026-10-14", true},
		{"Tomorrow", "2026-10-15", true},
		{"amanhã", "2026-10-15", true},
		{"day after tomorrow", "2026-10-16", true},
		{"next tuesday", "2026-10-20", true},
		{"friday", "2026-10-16", true},
		{"next wednesday", "2026-10-21", true},
		{"próxima segunda-feira", "2026-10-19", true},
		{"sábado", "2026-10-17", true},
		{"in 3 days", "2026-10-17", true},
		{"daqui a 10 dias", "2026-10-24", true},
		{"in 366 days", "2027-10-15", true},
		{"in 400 days", "", false},
		{"in 99999999999999999999 days", "", false},
		{"10/12", "2026-12-10", true},
		{"01/02", "2027-02-01", true},
		{"14/10", "2026-10-14", true},
		{"31/02", "", false},
		{"25/12/2027", "2027-12-25", true},
		{"", "", false},
		{"blah blah", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, ok := NormalizeDate(tt.raw, today)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeDateIdentityOnISO(t *testing.T) {
	today := time.Date(2026, 10, 14, 0, 0, 0, 0, time.UTC)
	d := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 800; i += 7 {
		iso := d.AddDate(0, 0, i).Format("2006-01-02")
		got, ok := NormalizeDate(iso, today)
		require.True(t, ok)
		assert.Equal(t, iso, got)
	}
}

func TestNormalizeDateRelativeNeverBeforeToday(t *testing.T) {
	exprs := []string{"today", "tomorrow", "monday", "next sunday", "in 0 days", "in 5 days", "01/01", "31/12", "quinta"}
	for day := 0; day < 14; day++ {
		today := time.Date(2026, 12, 25+day, 9, 0, 0, 0, time.UTC)
		ref := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC)
		for _, e := range exprs {
			got, ok := NormalizeDate(e, today)
			require.True(t, ok, e)
			d, err := time.Parse("2006-01-02", got)
			require.NoError(t, err)
			assert.False(t, d.Before(ref), "%s on %s resolved to %s", e, ref.Format("2006-01-02"), got)
		}
	}
}

func TestNormalizeTime(t *testing.T) {
	tests := []struct {
		raw  string
		want string
		ok   bool
	}{
		{"14:00", "14:00", true},
		{"9:30", "09:30", true},
		{"14h", "14:00", true},
		{"14h30", "14:30", true},
		{"14", "14:00", true},
		{"14.30", "14:30", true},
		{"2pm", "14:00", true},
		{"2:30 pm", "14:30", true},
		{"12am", "00:00", true},
		{"12pm", "12:00", true},
		{"at 10", "10:00", true},
		{"às 15h", "15:00", true},
		{"noon", "12:00", true},
		{"25:00", "", false},
		{"13pm", "", false},
		{"10:75", "", false},
		{"later", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, ok := NormalizeTime(tt.raw)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseShift(t *testing.T) {
	tests := map[string]model.Shift{
		"morning":          model.ShiftMorning,
		"MORNING":          model.ShiftMorning,
		"de manhã":         model.ShiftMorning,
		"in the afternoon": model.ShiftAfternoon,
		"à tarde":          model.ShiftAfternoon,
		"evening":          model.ShiftEvening,
		"noite":            model.ShiftEvening,
	}
	for raw, want := range tests {
		got, ok := ParseShift(raw)
		assert.True(t, ok, raw)
		assert.Equal(t, want, got, raw)
	}
	_, ok := ParseShift("whenever")
	assert.False(t, ok)
}

type fakeCatalog struct {
	services []model.Service
	err      error
	searches []string
}

func (f *fakeCatalog) Search(_ context.Context, term string) ([]model.Service, error) {
	f.searches = append(f.searches, term)
	if f.err != nil {
		return nil, f.err
	}
	var out []model.Service
	for _, s := range f.services {
		if strings.Contains(strings.ToLower(s.Name), strings.ToLower(term)) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeCatalog) GetByID(_ context.Context, id int64) (*model.Service, error) {
	for _, s := range f.services {
		if s.ID == id {
			s := s
			return &s, nil
		}
	}
	return nil, nil
}

func (f *fakeCatalog) GetByName(_ context.Context, name string) (*model.Service, error) {
	if f.err != nil {
		return nil, f.err
	}
	for _, s := range f.services {
		if strings.EqualFold(s.Name, name) {
			s := s
			return &s, nil
		}
	}
	return nil, nil
}

func salonCatalog() *fakeCatalog {
	return &fakeCatalog{services: []model.Service{
		{ID: 1, Name: "Haircut Men", DurationMinutes: 30, Active: true},
		{ID: 2, Name: "Haircut Women", DurationMinutes: 60, Active: true},
		{ID: 3, Name: "Beard Trim", DurationMinutes: 30, Active: true},
		{ID: 4, Name: "Manicure", DurationMinutes: 45, Active: true},
	}}
}

func TestResolveFresh(t *testing.T) {
	ctx := context.Background()
	r := NewResolver(salonCatalog())

	out, err := r.Resolve(ctx, "beard", nil)
	require.NoError(t, err)
	assert.Equal(t, Resolved, out.Kind)
	assert.Equal(t, int64(3), out.Service.ID)
	assert.Nil(t, out.Ambiguity)

	out, err = r.Resolve(ctx, "manicure", nil)
	require.NoError(t, err)
	assert.Equal(t, Resolved, out.Kind)
	assert.Equal(t, "Manicure", out.Service.Name)

	out, err = r.Resolve(ctx, "massage", nil)
	require.NoError(t, err)
	assert.Equal(t, NotFound, out.Kind)

	out, err = r.Resolve(ctx, "haircut", nil)
	require.NoError(t, err)
	assert.Equal(t, Ambiguous, out.Kind)
	assert.Len(t, out.Candidates, 2)
	require.NotNil(t, out.Ambiguity)
	assert.Equal(t, "haircut", out.Ambiguity.OriginalTerm)
	assert.Equal(t, []int64{1, 2}, out.Ambiguity.CandidateIDs)
}

func TestResolveDisambiguationReply(t *testing.T) {
	ctx := context.Background()
	cat := salonCatalog()
	r := NewResolver(cat)
	amb := &model.AmbiguityContext{OriginalTerm: "haircut", CandidateIDs: []int64{1, 2}}

	out, err := r.Resolve(ctx, "women", amb)
	require.NoError(t, err)
	assert.Equal(t, Resolved, out.Kind)
	assert.Equal(t, "Haircut Women", out.Service.Name)
	assert.Nil(t, out.Ambiguity)
	assert.Equal(t, "haircut women", cat.searches[0])

	out, err = r.Resolve(ctx, "1", amb)
	require.NoError(t, err)
	assert.Equal(t, Resolved, out.Kind)
	assert.Equal(t, int64(1), out.Service.ID)
}

func TestResolveUnrelatedTermDiscardsContext(t *testing.T) {
	ctx := context.Background()
	r := NewResolver(salonCatalog())
	amb := &model.AmbiguityContext{OriginalTerm: "haircut", CandidateIDs: []int64{1, 2}}

	out, err := r.Resolve(ctx, "manicure", amb)
	require.NoError(t, err)
	assert.Equal(t, Resolved, out.Kind)
	assert.Equal(t, int64(4), out.Service.ID)
	assert.Nil(t, out.Ambiguity)

	out, err = r.Resolve(ctx, "i would rather get a massage today", amb)
	require.NoError(t, err)
	assert.Equal(t, NotFound, out.Kind)
	assert.Nil(t, out.Ambiguity)
}

func TestResolveAmbiguityLoopIsBounded(t *testing.T) {
	ctx := context.Background()
	r := NewResolver(salonCatalog())
	amb := &model.AmbiguityContext{OriginalTerm: "haircut", CandidateIDs: []int64{1, 2}}

	var out Outcome
	var err error
	for i := 1; i < MaxAmbiguityAttempts; i++ {
		out, err = r.Resolve(ctx, "hmm", amb)
		require.NoError(t, err)
		require.Equal(t, Ambiguous, out.Kind)
		assert.Equal(t, i, out.Ambiguity.Attempts)
		assert.Len(t, out.Candidates, 2)
		amb = out.Ambiguity
	}

	out, err = r.Resolve(ctx, "hmm", amb)
	require.NoError(t, err)
	assert.Equal(t, NotFound, out.Kind)
	assert.Nil(t, out.Ambiguity)
}

func TestResolvePropagatesErrors(t *testing.T) {
	r := NewResolver(&fakeCatalog{err: errors.New("db down")})
	_, err := r.Resolve(context.Background(), "haircut", nil)
	assert.ErrorContains(t, err, "db down")
}
