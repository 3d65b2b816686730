package storage

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisBackend(t *testing.T) (*RedisBackend, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisBackend(rdb, "salon-test"), mr
}

func TestRedisBackendLoadSave(t *testing.T) {
	b, mr := newRedisBackend(t)
	ctx := context.Background()

	_, ok, err := b.Load(ctx, KeyServices)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, b.Save(ctx, KeyServices, []byte(`[{"id":"1"}]`)))
	got, ok, err := b.Load(ctx, KeyServices)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.JSONEq(t, `[{"id":"1"}]`, string(got))

	raw, err := mr.Get("salon-test:services")
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":"1"}]`, raw)
	assert.NoError(t, b.Ping(ctx))
}

func TestStoreOverRedisSurvivesRestart(t *testing.T) {
	b, _ := newRedisBackend(t)
	ctx := context.Background()

	s := openStore(t, b)
	appt, err := s.AddAppointment(ctx, booking("client-1", "2024-06-10", "09:00"))
	require.NoError(t, err)

	reopened, err := Open(ctx, b, Options{Seed: true})
	require.NoError(t, err)
	assert.Len(t, reopened.Services(), 4, "seed runs once")
	_, ok := reopened.Appointment(appt.ID)
	assert.True(t, ok)
}

func TestRedisBackendUnavailable(t *testing.T) {
	b, mr := newRedisBackend(t)
	mr.Close()

	_, _, err := b.Load(context.Background(), KeyServices)
	assert.Error(t, err)
	assert.Error(t, b.Ping(context.Background()))
}
