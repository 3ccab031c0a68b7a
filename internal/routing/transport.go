package routing

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/victornm/crosstate/internal/domain"
)

// Transport delivers envelopes between contexts. Delivery is asynchronous
// and one-way: Send returns once the envelope is enqueued, never waiting for
// the receiver. Envelopes from the same source arrive in send order;
// envelopes from different sources are unordered relative to each other.
type Transport interface {
	Send(ctx context.Context, to domain.ContextID, env Envelope) error
	Inbox(ctx context.Context, self domain.ContextID) (<-chan Envelope, error)
}

// RedisTransport carries envelopes over redis pub/sub, one channel per
// destination context. Sequence numbers are assigned from a per-source INCR
// so they survive restarts.
type RedisTransport struct {
	rdb    redis.UniversalClient
	prefix string
}

func NewRedisTransport(rdb redis.UniversalClient, prefix string) *RedisTransport {
	return &RedisTransport{rdb: rdb, prefix: prefix}
}

func (t *RedisTransport) Send(ctx context.Context, to domain.ContextID, env Envelope) error {
	seq, err := t.rdb.Incr(ctx, t.seqKey(env.Source)).Result()
	if err != nil {
		return fmt.Errorf("transport: next sequence for %s: %w", env.Source, err)
	}
	env.Seq = uint64(seq)

	b, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("transport: encode envelope %s: %w", env.ID, err)
	}

	if err := t.rdb.Publish(ctx, t.channel(to), b).Err(); err != nil {
		return fmt.Errorf("transport: publish to %s: %w", to, err)
	}

	return nil
}

func (t *RedisTransport) Inbox(ctx context.Context, self domain.ContextID) (<-chan Envelope, error) {
	sub := t.rdb.Subscribe(ctx, t.channel(self))

	// Force the subscription to be established before returning, so no
	// envelope sent after Inbox returns is missed.
	if _, err := sub.Receive(ctx); err != nil {
		return nil, fmt.Errorf("transport: subscribe %s: %w", self, err)
	}

	out := make(chan Envelope)
	go func() {
		defer close(out)
		defer sub.Close()

		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}

				var env Envelope
				if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
					slog.ErrorContext(ctx, "transport: drop malformed envelope", "error", err)
					continue
				}

				select {
				case out <- env:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

func (t *RedisTransport) channel(id domain.ContextID) string {
	return fmt.Sprintf("%s:ctx:%s:inbox", t.prefix, id)
}

func (t *RedisTransport) seqKey(source domain.ContextID) string {
	return fmt.Sprintf("%s:seq:%s", t.prefix, source)
}
