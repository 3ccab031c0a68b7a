package ledger_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/victornm/crosstate/internal/ledger"
)

type record struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func makeStore(t *testing.T) *ledger.Store {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	rs := miniredis.RunT(t)
	rc := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs: []string{rs.Addr()},
	})
	require.NoError(t, rc.Ping(ctx).Err(), "should be able to ping redis")

	return ledger.NewStore(rc, "test")
}

func TestMap(t *testing.T) {
	ctx := context.Background()
	m := ledger.NewMap[record](makeStore(t), "records")

	_, ok, err := m.Get(ctx, "a")
	require.NoError(t, err)
	require.False(t, ok, "missing key should report absent")

	require.NoError(t, m.Set(ctx, "a", record{Name: "first", Count: 1}))
	require.NoError(t, m.Set(ctx, "b", record{Name: "second", Count: 2}))

	got, ok, err := m.Get(ctx, "a")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, record{Name: "first", Count: 1}, got)

	n, err := m.Len(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 2, n)

	all, err := m.All(ctx)
	require.NoError(t, err)
	require.Equal(t, map[string]record{
		"a": {Name: "first", Count: 1},
		"b": {Name: "second", Count: 2},
	}, all)

	require.NoError(t, m.Remove(ctx, "a"))
	_, ok, err = m.Get(ctx, "a")
	require.NoError(t, err)
	require.False(t, ok, "removed key should report absent")
}

func TestLog(t *testing.T) {
	ctx := context.Background()
	l := ledger.NewLog[record](makeStore(t), "log")

	n, err := l.Count(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 0, n, "fresh log should be empty")

	require.NoError(t, l.Append(ctx, record{Name: "x", Count: 1}))
	require.NoError(t, l.Append(ctx, record{Name: "y", Count: 2}))
	require.NoError(t, l.Append(ctx, record{Name: "z", Count: 3}))

	got, ok, err := l.Get(ctx, 1)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, record{Name: "y", Count: 2}, got)

	_, ok, err = l.Get(ctx, 99)
	require.NoError(t, err)
	require.False(t, ok, "out-of-range index should report absent")

	tail, err := l.Range(ctx, -2, -1)
	require.NoError(t, err)
	require.Equal(t, []record{{Name: "y", Count: 2}, {Name: "z", Count: 3}}, tail)

	require.NoError(t, l.SetAt(ctx, 0, record{Name: "x", Count: 10}))
	got, _, err = l.Get(ctx, 0)
	require.NoError(t, err)
	require.Equal(t, record{Name: "x", Count: 10}, got, "SetAt should rewrite in place")

	require.NoError(t, l.Replace(ctx, []record{{Name: "only", Count: 7}}))
	all, err := l.Range(ctx, 0, -1)
	require.NoError(t, err)
	require.Equal(t, []record{{Name: "only", Count: 7}}, all)

	require.NoError(t, l.Replace(ctx, nil))
	n, err = l.Count(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 0, n, "replacing with nil should clear the log")
}

func TestRegister(t *testing.T) {
	ctx := context.Background()
	r := ledger.NewRegister[record](makeStore(t), "reg")

	_, ok, err := r.Get(ctx)
	require.NoError(t, err)
	require.False(t, ok, "unset register should report absent")

	require.NoError(t, r.Set(ctx, record{Name: "v", Count: 5}))

	got, ok, err := r.Get(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, record{Name: "v", Count: 5}, got)
}

func TestCounter(t *testing.T) {
	ctx := context.Background()
	c := ledger.NewCounter(makeStore(t), "ctr")

	cur, err := c.Current(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 0, cur, "untouched counter should read 0")

	n, err := c.Next(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, n, "first id should be 1")

	n, err = c.Next(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 2, n)

	cur, err = c.Current(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 2, cur)
}
