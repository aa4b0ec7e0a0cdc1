package kvstore

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Global-Optima/zeep-print-agent/internal/model"
)

func createTestRedis(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	s, err := OpenRedis(context.Background(), mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, mr
}

func TestRedis_GetMissing(t *testing.T) {
	s, _ := createTestRedis(t)

	_, err := s.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedis_SetOverwriteDelete(t *testing.T) {
	ctx := context.Background()
	s, mr := createTestRedis(t)

	require.NoError(t, s.Set(ctx, "k", []byte("one")))
	require.NoError(t, s.Set(ctx, "k", []byte("two")))

	got, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "two", string(got))

	raw, err := mr.Get(redisKeyPrefix + "k")
	require.NoError(t, err)
	assert.Equal(t, "two", raw, "keys live under the agent prefix")
	assert.Zero(t, mr.TTL(redisKeyPrefix+"k"), "settings do not expire")

	require.NoError(t, s.Delete(ctx, "k"))
	_, err = s.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.False(t, mr.Exists(redisKeyPrefix+"k"))

	assert.NoError(t, s.Delete(ctx, "k"))
}

func TestRedis_JSONHelpers(t *testing.T) {
	ctx := context.Background()
	s, _ := createTestRedis(t)

	type geometry struct {
		Width  float64 `json:"width"`
		Height float64 `json:"height"`
	}
	require.NoError(t, SetJSON(ctx, s, "label.geometry", geometry{Width: 58, Height: 40}))

	var got geometry
	require.NoError(t, GetJSON(ctx, s, "label.geometry", &got))
	assert.Equal(t, geometry{Width: 58, Height: 40}, got)
}

func TestOpenRedis_URLForms(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	s, err := OpenRedis(ctx, "redis://"+mr.Addr()+"/0")
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, "k", []byte("v")))
	require.NoError(t, s.Close())

	_, err = OpenRedis(ctx, "redis://%zz")
	assert.ErrorContains(t, err, "parse redis url")
}

func TestOpenRedis_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := OpenRedis(context.Background(), addr)
	assert.ErrorContains(t, err, "failed to connect to redis")
}

func TestOpen_PrefersRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	s, err := Open(ctx, model.StoreConfig{RedisURL: mr.Addr(), SQLitePath: t.TempDir() + "/unused.db"})
	require.NoError(t, err)
	defer s.Close()
	assert.IsType(t, &Redis{}, s)
}
