// Package node runs one context's inbound message loop. Messages are
// processed strictly one at a time, in arrival order; together with the
// forwarder this serializes every write for a resource through its authority
// context.
package node

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/victornm/crosstate/internal/canvas"
	"github.com/victornm/crosstate/internal/domain"
	"github.com/victornm/crosstate/internal/errors"
	"github.com/victornm/crosstate/internal/quiz"
	"github.com/victornm/crosstate/internal/routing"
)

type Config struct {
	Resolver  routing.Resolver
	Transport routing.Transport
	Dedup     *routing.Dedup
	Quiz      *quiz.Service
	Canvas    *canvas.Service
	NowFunc   func() time.Time
}

type Node struct {
	resolver  routing.Resolver
	transport routing.Transport
	dedup     *routing.Dedup
	quiz      *quiz.Service
	canvas    *canvas.Service
	now       func() time.Time
}

func New(c Config) *Node {
	n := &Node{
		resolver:  c.Resolver,
		transport: c.Transport,
		dedup:     c.Dedup,
		quiz:      c.Quiz,
		canvas:    c.Canvas,
		now:       c.NowFunc,
	}

	if n.now == nil {
		n.now = time.Now
	}

	return n
}

// Apply executes an operation against the local ledger on behalf of the
// context it came from. It is the synchronous path of the forwarder on the
// authority, and the arrival path of a forwarded envelope; canvas writes
// attribute ownership to the originating context either way.
func (n *Node) Apply(ctx context.Context, from domain.ContextID, op domain.Operation) error {
	switch op := op.(type) {
	case *domain.SetNickname:
		return n.quiz.SetNickname(ctx, *op)
	case *domain.CreateQuiz:
		return n.quiz.CreateQuiz(ctx, *op)
	case *domain.SubmitAnswers:
		return n.quiz.SubmitAnswers(ctx, *op)
	case *domain.StartQuiz:
		return n.quiz.StartQuiz(ctx, *op)
	case *domain.RegisterForQuiz:
		return n.quiz.RegisterForQuiz(ctx, *op)
	case *domain.SetPixel:
		return n.canvas.SetPixel(ctx, from, *op)
	case *domain.ClearPixel:
		return n.canvas.ClearPixel(ctx, from, *op)
	case *domain.SetPixels:
		return n.canvas.SetPixels(ctx, from, *op)
	default:
		return fmt.Errorf("node: unhandled operation %T", op)
	}
}

// Run consumes the context's inbox until ctx is cancelled. Handler errors
// are logged, never fatal to the loop.
func (n *Node) Run(ctx context.Context) error {
	inbox, err := n.transport.Inbox(ctx, n.resolver.Self())
	if err != nil {
		return fmt.Errorf("node: open inbox: %w", err)
	}

	slog.InfoContext(ctx, "node: processing inbox", "context", string(n.resolver.Self()))

	for env := range inbox {
		if err := n.handle(ctx, env); err != nil {
			slog.ErrorContext(ctx, "node: handle envelope failed",
				"envelope", env.ID,
				"kind", env.Kind,
				"source", string(env.Source),
				"error", err,
			)
		}
	}

	return nil
}

func (n *Node) handle(ctx context.Context, env routing.Envelope) error {
	ok, err := n.dedup.Accept(ctx, env)
	if err != nil {
		return err
	}
	if !ok {
		slog.InfoContext(ctx, "node: dropping replayed envelope",
			"envelope", env.ID,
			"source", string(env.Source),
			"seq", env.Seq,
		)
		return nil
	}

	switch env.Kind {
	case domain.MsgForwardOp:
		return n.handleForwardedOp(ctx, env)

	case domain.MsgClaim:
		var m domain.Claim
		if err := json.Unmarshal(env.Payload, &m); err != nil {
			return fmt.Errorf("decode claim: %w", err)
		}
		return n.canvas.HandleClaim(ctx, m)

	case domain.MsgClaimConfirmed:
		var m domain.ClaimConfirmed
		if err := json.Unmarshal(env.Payload, &m); err != nil {
			return fmt.Errorf("decode claim confirmation: %w", err)
		}
		return n.canvas.HandleClaimConfirmed(ctx, m)

	case domain.MsgModified:
		var m domain.Modified
		if err := json.Unmarshal(env.Payload, &m); err != nil {
			return fmt.Errorf("decode modification: %w", err)
		}
		return n.canvas.HandleModified(ctx, m)

	case domain.MsgBatchModified:
		var m domain.BatchModified
		if err := json.Unmarshal(env.Payload, &m); err != nil {
			return fmt.Errorf("decode batch modification: %w", err)
		}
		return n.canvas.HandleBatchModified(ctx, m)

	case domain.MsgOutcome:
		var m domain.Outcome
		if err := json.Unmarshal(env.Payload, &m); err != nil {
			return fmt.Errorf("decode outcome: %w", err)
		}
		return n.canvas.RecordOutcome(ctx, env.Source, m)

	default:
		return fmt.Errorf("unknown message kind %q", env.Kind)
	}
}

// handleForwardedOp applies a peer's operation and reports the validation
// outcome back to the origin, correlated by the envelope id.
func (n *Node) handleForwardedOp(ctx context.Context, env routing.Envelope) error {
	var fw domain.ForwardedOp
	if err := json.Unmarshal(env.Payload, &fw); err != nil {
		return fmt.Errorf("decode forwarded operation: %w", err)
	}

	op, err := domain.DecodeOperation(fw.OpKind, fw.Params)
	if err != nil {
		return err
	}

	applyErr := n.Apply(ctx, env.Source, op)

	outcome := domain.Outcome{
		RequestID: env.ID,
		OpKind:    fw.OpKind,
		OK:        applyErr == nil,
		At:        n.now().UTC(),
	}
	if applyErr != nil {
		e := errors.Convert(applyErr)
		outcome.Reason = string(errors.ReasonOf(applyErr))
		outcome.Message = e.Message

		slog.InfoContext(ctx, "node: forwarded operation rejected",
			"envelope", env.ID,
			"op", fw.OpKind,
			"source", string(env.Source),
			"reason", outcome.Reason,
		)
	}

	reply, err := routing.NewEnvelope(n.resolver.Self(), domain.MsgOutcome, outcome)
	if err != nil {
		return err
	}
	if err := n.transport.Send(ctx, env.Source, reply); err != nil {
		// Best effort: the mutation already committed (or was rejected)
		// and the origin is only owed an informational message.
		slog.ErrorContext(ctx, "node: send outcome failed",
			"envelope", env.ID,
			"to", string(env.Source),
			"error", err,
		)
	}

	return nil
}
