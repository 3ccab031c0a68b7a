package routing

import (
	"context"

	"github.com/victornm/crosstate/internal/ledger"
)

// Dedup tracks the last applied sequence number per source context and
// rejects anything at or below it. The transport is at-least-once in effect;
// without this index a redelivered envelope would double-apply.
type Dedup struct {
	last *ledger.Map[uint64]
}

func NewDedup(store *ledger.Store) *Dedup {
	return &Dedup{
		last: ledger.NewMap[uint64](store, ledger.ColDedup),
	}
}

// Accept records and admits the envelope, or reports it as a duplicate or
// out-of-order replay. Unsequenced envelopes (Seq 0) bypass tracking.
func (d *Dedup) Accept(ctx context.Context, env Envelope) (bool, error) {
	if env.Seq == 0 {
		return true, nil
	}

	last, _, err := d.last.Get(ctx, string(env.Source))
	if err != nil {
		return false, err
	}

	if env.Seq <= last {
		return false, nil
	}

	if err := d.last.Set(ctx, string(env.Source), env.Seq); err != nil {
		return false, err
	}

	return true, nil
}
