package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/button-hub/internal/mode"
)

type fakeRedis struct {
	data   map[string]string
	ttls   map[string]time.Duration
	getErr error
	setErr error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeRedis) Get(_ context.Context, key string) *redis.StringCmd {
	if f.getErr != nil {
		return redis.NewStringResult("", f.getErr)
	}
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeRedis) Set(_ context.Context, key string, value any, exp time.Duration) *redis.StatusCmd {
	if f.setErr != nil {
		return redis.NewStatusResult("", f.setErr)
	}
	switch v := value.(type) {
	case []byte:
		f.data[key] = string(v)
	case string:
		f.data[key] = v
	}
	f.ttls[key] = exp
	return redis.NewStatusResult("OK", nil)
}

func TestSaveThenLoad(t *testing.T) {
	rdb := newFakeRedis()
	s := NewModeStore(rdb, 24*time.Hour)
	at := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.Save(context.Background(), "hall", mode.Record{Mode: mode.ModeFull, VerifiedAt: at}))
	assert.Contains(t, rdb.data, "buttonhub:mode:hall")
	assert.Equal(t, 24*time.Hour, rdb.ttls["buttonhub:mode:hall"])

	rec, ok, err := s.Load(context.Background(), "hall")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, mode.ModeFull, rec.Mode)
	assert.True(t, rec.VerifiedAt.Equal(at))
}

func TestLoadMissing(t *testing.T) {
	s := NewModeStore(newFakeRedis(), 0)

	_, ok, err := s.Load(context.Background(), "nobody")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLoadErrors(t *testing.T) {
	rdb := newFakeRedis()
	s := NewModeStore(rdb, 0)

	rdb.data["buttonhub:mode:hall"] = "{not json"
	_, _, err := s.Load(context.Background(), "hall")
	assert.Error(t, err)

	boom := errors.New("connection refused")
	rdb.getErr = boom
	_, ok, err := s.Load(context.Background(), "hall")
	assert.ErrorIs(t, err, boom)
	assert.False(t, ok)
}

func TestSaveError(t *testing.T) {
	rdb := newFakeRedis()
	boom := errors.New("read only replica")
	rdb.setErr = boom

	err := NewModeStore(rdb, 0).Save(context.Background(), "hall", mode.Record{Mode: mode.ModeFull})
	assert.ErrorIs(t, err, boom)
}

func TestImplementsModeStore(t *testing.T) {
	var _ mode.Store = NewModeStore(newFakeRedis(), 0)
	var _ Client = (*redis.Client)(nil)
}
