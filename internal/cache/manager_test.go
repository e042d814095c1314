package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestManager(t *testing.T) (*Manager, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	m := &Manager{redis: client, config: DefaultConfig(), logger: zap.NewNop()}
	return m, mr
}

func TestSetGetRoundTrip(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "k", "v", time.Minute))
	got, err := m.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, "v", got)
}

func TestGetMissReturnsErrCacheMiss(t *testing.T) {
	m, _ := newTestManager(t)
	_, err := m.Get(context.Background(), "missing")
	require.ErrorIs(t, err, ErrCacheMiss)
}

func TestIncr(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	n, err := m.Incr(ctx, "counter")
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
	n, err = m.Incr(ctx, "counter")
	require.NoError(t, err)
	require.EqualValues(t, 2, n)
}

func TestJSONRoundTrip(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	type payload struct{ A int }
	require.NoError(t, m.SetJSON(ctx, "j", payload{A: 7}, time.Minute))

	var out payload
	require.NoError(t, m.GetJSON(ctx, "j", &out))
	require.Equal(t, 7, out.A)
}
