package routing_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/victornm/crosstate/internal/domain"
	"github.com/victornm/crosstate/internal/ledger"
	"github.com/victornm/crosstate/internal/routing"
)

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

func TestDedup_Accept(t *testing.T) {
	ctx := context.Background()
	d := routing.NewDedup(makeStore(t))

	env := func(source string, seq uint64) routing.Envelope {
		return routing.Envelope{ID: "e", Source: domain.ContextID("ctx-" + source), Seq: seq}
	}

	ok, err := d.Accept(ctx, env("b", 1))
	require.NoError(t, err)
	require.True(t, ok, "first envelope should be admitted")

	ok, err = d.Accept(ctx, env("b", 1))
	require.NoError(t, err)
	require.False(t, ok, "redelivery of the same sequence should be rejected")

	ok, err = d.Accept(ctx, env("b", 3))
	require.NoError(t, err)
	require.True(t, ok, "gaps are fine, only replays are rejected")

	ok, err = d.Accept(ctx, env("b", 2))
	require.NoError(t, err)
	require.False(t, ok, "anything at or below the watermark is a replay")

	t.Run("sources are tracked independently", func(t *testing.T) {
		ok, err := d.Accept(ctx, env("c", 1))
		require.NoError(t, err)
		require.True(t, ok)
	})

	t.Run("unsequenced envelopes bypass tracking", func(t *testing.T) {
		ok, err := d.Accept(ctx, env("b", 0))
		require.NoError(t, err)
		require.True(t, ok)

		ok, err = d.Accept(ctx, env("b", 0))
		require.NoError(t, err)
		require.True(t, ok)
	})
}
