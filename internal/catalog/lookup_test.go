package catalog

import (
	"context"
	"errors"
	"testing"
	"time"

	"salonbot/internal/model"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockSource struct {
	mock.Mock
}

func (m *mockSource) SearchServices(ctx context.Context, term string) ([]model.Service, error) {
	args := m.Called(ctx, term)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Service), args.Error(1)
}

func (m *mockSource) GetServiceByID(ctx context.Context, id int64) (*model.Service, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Service), args.Error(1)
}

func (m *mockSource) GetServiceByName(ctx context.Context, name string) (*model.Service, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Service), args.Error(1)
}

func (m *mockSource) ListActiveServices(ctx context.Context) ([]model.Service, error) {
	args := m.Called(ctx)
	return args.Get(0).([]model.Service), args.Error(1)
}

var haircuts = []model.Service{
	{ID: 1, Name: "Haircut Men", DurationMinutes: 30, Active: true},
	{ID: 2, Name: "Haircut Women", DurationMinutes: 60, Active: true},
}

func TestLookupSearch(t *testing.T) {
	ctx := context.Background()
	src := new(mockSource)
	l := NewLookup(src)

	src.On("SearchServices", ctx, "haircut").Return(haircuts, nil).Once()
	got, err := l.Search(ctx, "  haircut ")
	require.NoError(t, err)
	assert.Equal(t, haircuts, got)

	got, err = l.Search(ctx, "   ")
	require.NoError(t, err)
	assert.Empty(t, got)

	src.On("SearchServices", ctx, "beard").Return(nil, errors.New("db down")).Once()
	_, err = l.Search(ctx, "beard")
	assert.ErrorContains(t, err, "db down")

	src.AssertExpectations(t)
}

func TestLookupExactFiltersInactive(t *testing.T) {
	ctx := context.Background()
	src := new(mockSource)
	l := NewLookup(src)

	src.On("GetServiceByID", ctx, int64(2)).Return(&haircuts[1], nil).Once()
	src.On("GetServiceByID", ctx, int64(9)).Return(&model.Service{ID: 9, Name: "Old", Active: false}, nil).Once()
	src.On("GetServiceByName", ctx, "haircut men").Return(&haircuts[0], nil).Once()
	src.On("GetServiceByName", ctx, "nothing").Return(nil, nil).Once()

	s, err := l.GetByID(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, "Haircut Women", s.Name)

	s, err = l.GetByID(ctx, 9)
	require.NoError(t, err)
	assert.Nil(t, s)

	s, err = l.GetByName(ctx, " haircut men ")
	require.NoError(t, err)
	assert.Equal(t, int64(1), s.ID)

	s, err = l.GetByName(ctx, "nothing")
	require.NoError(t, err)
	assert.Nil(t, s)

	src.AssertExpectations(t)
}

func TestLookupRedisCache(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	src := new(mockSource)
	l := NewLookup(src)
	l.UseRedisCache(rdb, time.Minute)

	src.On("SearchServices", ctx, "Haircut").Return(haircuts, nil).Once()
	src.On("ListActiveServices", ctx).Return(haircuts, nil).Once()

	for i := 0; i < 3; i++ {
		got, err := l.Search(ctx, "Haircut")
		require.NoError(t, err)
		assert.Equal(t, haircuts, got)

		all, err := l.ListActive(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 2)
	}
	src.AssertExpectations(t)

	mr.FastForward(2 * time.Minute)
	src.On("SearchServices", ctx, "Haircut").Return(haircuts[:1], nil).Once()
	got, err := l.Search(ctx, "Haircut")
	require.NoError(t, err)
	assert.Len(t, got, 1)

	require.NoError(t, l.Invalidate(ctx))
	assert.Empty(t, mr.Keys())
	src.AssertExpectations(t)
}
