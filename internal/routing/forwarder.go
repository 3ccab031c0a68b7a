package routing

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/victornm/crosstate/internal/domain"
)

// Applier executes an operation against the local ledger, on behalf of the
// context the operation came from. On the authority context the forwarder
// short-circuits into it.
type Applier interface {
	Apply(ctx context.Context, from domain.ContextID, op domain.Operation) error
}

type Config struct {
	Resolver  Resolver
	Transport Transport
	Applier   Applier
}

// Forwarder routes write operations. On the authority they execute
// synchronously and the result is the authority's validation outcome. On a
// peer exactly one envelope is enqueued toward the authority and Route
// returns immediately; validation failures there surface only as a later
// outcome message, not as an error here.
type Forwarder struct {
	resolver  Resolver
	transport Transport
	applier   Applier
}

func NewForwarder(c Config) *Forwarder {
	return &Forwarder{
		resolver:  c.Resolver,
		transport: c.Transport,
		applier:   c.Applier,
	}
}

func (f *Forwarder) Route(ctx context.Context, op domain.Operation) error {
	if f.resolver.IsAuthority() {
		return f.applier.Apply(ctx, f.resolver.Self(), op)
	}

	params, err := json.Marshal(op)
	if err != nil {
		return fmt.Errorf("forwarder: encode %s: %w", op.Kind(), err)
	}

	env, err := NewEnvelope(f.resolver.Self(), domain.MsgForwardOp, domain.ForwardedOp{
		OpKind: op.Kind(),
		Params: params,
	})
	if err != nil {
		return fmt.Errorf("forwarder: wrap %s: %w", op.Kind(), err)
	}

	if err := f.transport.Send(ctx, f.resolver.Authority(), env); err != nil {
		return fmt.Errorf("forwarder: dispatch %s: %w", op.Kind(), err)
	}

	return nil
}
