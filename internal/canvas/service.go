// Package canvas is the mutation engine for canvas cells, the ownership
// negotiation that decides which context controls a cell, and the log of
// cross-context notifications received here.
package canvas

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/victornm/crosstate/internal/domain"
	"github.com/victornm/crosstate/internal/event"
	"github.com/victornm/crosstate/internal/ledger"
	"github.com/victornm/crosstate/internal/routing"
)

type Config struct {
	Ledger    *ledger.Store
	EventBus  *event.Bus
	Resolver  routing.Resolver
	Transport routing.Transport
	Width     int
	Height    int
	NowFunc   func() time.Time
}

type Service struct {
	eb        *event.Bus
	resolver  routing.Resolver
	transport routing.Transport
	width     int
	height    int
	now       func() time.Time

	pixels        *ledger.Map[domain.PixelRecord]
	updates       *ledger.Log[domain.PixelUpdate]
	notifications *ledger.Log[domain.NotificationRecord]
	coloredCount  *ledger.Register[int]
	stats         *ledger.Register[domain.CanvasStats]
	defaultColor  *ledger.Register[domain.Color]
}

func NewService(c Config) *Service {
	s := &Service{
		eb:        c.EventBus,
		resolver:  c.Resolver,
		transport: c.Transport,
		width:     c.Width,
		height:    c.Height,
		now:       c.NowFunc,

		pixels:        ledger.NewMap[domain.PixelRecord](c.Ledger, ledger.ColPixels),
		updates:       ledger.NewLog[domain.PixelUpdate](c.Ledger, ledger.ColPixelUpdates),
		notifications: ledger.NewLog[domain.NotificationRecord](c.Ledger, ledger.ColNotifications),
		coloredCount:  ledger.NewRegister[int](c.Ledger, ledger.RegColoredCount),
		stats:         ledger.NewRegister[domain.CanvasStats](c.Ledger, ledger.RegCanvasStats),
		defaultColor:  ledger.NewRegister[domain.Color](c.Ledger, ledger.RegDefaultColor),
	}

	if s.now == nil {
		s.now = time.Now
	}

	return s
}

// Init seeds the stats and default-color registers. Idempotent; dimensions
// are fixed for the lifetime of the canvas.
func (s *Service) Init(ctx context.Context) error {
	if _, ok, err := s.stats.Get(ctx); err != nil {
		return err
	} else if ok {
		return nil
	}

	total := s.width * s.height
	if err := s.stats.Set(ctx, domain.CanvasStats{
		TotalPixels:       total,
		TransparentPixels: total,
	}); err != nil {
		return err
	}
	if err := s.coloredCount.Set(ctx, 0); err != nil {
		return err
	}

	return s.defaultColor.Set(ctx, domain.Color{})
}

// SetPixel overwrites a cell's color and owner. Ownership goes to the context
// the operation came from, not to the context applying it. If a different
// context owned the cell before, it is told about the change.
func (s *Service) SetPixel(ctx context.Context, by domain.ContextID, op domain.SetPixel) error {
	s.mustValidPosition(op.X, op.Y)

	now := s.now().UTC()
	old, existed, err := s.pixels.Get(ctx, posKey(op.X, op.Y))
	if err != nil {
		return err
	}

	color := op.Color
	rec := domain.PixelRecord{
		X:         op.X,
		Y:         op.Y,
		Color:     &color,
		Owner:     by,
		UpdatedAt: now,
	}

	if err := s.writePixel(ctx, rec, old, existed, domain.PixelUpdate{X: op.X, Y: op.Y, Color: color}); err != nil {
		return err
	}

	s.notifyPriorOwner(ctx, by, old, existed, rec.Color, now)
	s.eb.Publish(ctx, domain.EventPixelChanged{Pixel: rec})

	return nil
}

// ClearPixel resets a cell to the default transparent color. The cell stays
// owned by the clearing context; it never reverts to unclaimed.
func (s *Service) ClearPixel(ctx context.Context, by domain.ContextID, op domain.ClearPixel) error {
	s.mustValidPosition(op.X, op.Y)

	now := s.now().UTC()
	old, existed, err := s.pixels.Get(ctx, posKey(op.X, op.Y))
	if err != nil {
		return err
	}

	cleared, _, err := s.defaultColor.Get(ctx)
	if err != nil {
		return err
	}

	rec := domain.PixelRecord{
		X:         op.X,
		Y:         op.Y,
		Owner:     by,
		UpdatedAt: now,
	}

	if err := s.writePixel(ctx, rec, old, existed, domain.PixelUpdate{X: op.X, Y: op.Y, Color: cleared}); err != nil {
		return err
	}

	s.notifyPriorOwner(ctx, by, old, existed, nil, now)
	s.eb.Publish(ctx, domain.EventPixelChanged{Pixel: rec})

	return nil
}

// SetPixels applies a batch of writes. Displaced prior owners receive one
// batch notification each, covering all of their cells touched by the batch.
func (s *Service) SetPixels(ctx context.Context, by domain.ContextID, op domain.SetPixels) error {
	// The whole batch is validated up front: a bad coordinate must abort
	// before the first cell is written, never in the middle.
	for _, u := range op.Pixels {
		s.mustValidPosition(u.X, u.Y)
	}

	now := s.now().UTC()
	displaced := make(map[domain.ContextID][]domain.PixelModification)

	for _, u := range op.Pixels {
		old, existed, err := s.pixels.Get(ctx, posKey(u.X, u.Y))
		if err != nil {
			return err
		}

		color := u.Color
		rec := domain.PixelRecord{
			X:         u.X,
			Y:         u.Y,
			Color:     &color,
			Owner:     by,
			UpdatedAt: now,
		}

		if err := s.writePixel(ctx, rec, old, existed, u); err != nil {
			return err
		}

		if existed && old.Owner != "" && old.Owner != by {
			displaced[old.Owner] = append(displaced[old.Owner], domain.PixelModification{
				X:             u.X,
				Y:             u.Y,
				NewColor:      &color,
				PreviousColor: old.Color,
			})
		}

		s.eb.Publish(ctx, domain.EventPixelChanged{Pixel: rec})
	}

	for owner, mods := range displaced {
		s.send(ctx, owner, domain.MsgBatchModified, domain.BatchModified{
			Pixels:     mods,
			ModifiedBy: by,
			At:         now,
		})
	}

	return nil
}

// Stats returns the canvas statistics register.
func (s *Service) Stats(ctx context.Context) (domain.CanvasStats, error) {
	st, _, err := s.stats.Get(ctx)
	return st, err
}

func (s *Service) writePixel(ctx context.Context, rec domain.PixelRecord, old domain.PixelRecord, existed bool, u domain.PixelUpdate) error {
	if err := s.pixels.Set(ctx, posKey(rec.X, rec.Y), rec); err != nil {
		return err
	}
	if err := s.updates.Append(ctx, u); err != nil {
		return err
	}

	return s.updateStats(ctx, existed && old.Colored(), rec.Colored(), rec.UpdatedAt)
}

func (s *Service) updateStats(ctx context.Context, wasColored, isColored bool, now time.Time) error {
	count, _, err := s.coloredCount.Get(ctx)
	if err != nil {
		return err
	}

	switch {
	case wasColored && !isColored:
		count--
	case !wasColored && isColored:
		count++
	default:
		// colored state unchanged; only the timestamp moves
	}

	if err := s.coloredCount.Set(ctx, count); err != nil {
		return err
	}

	st, _, err := s.stats.Get(ctx)
	if err != nil {
		return err
	}
	st.ColoredPixels = count
	st.TransparentPixels = st.TotalPixels - count
	st.LastUpdate = &now

	return s.stats.Set(ctx, st)
}

func (s *Service) notifyPriorOwner(ctx context.Context, by domain.ContextID, old domain.PixelRecord, existed bool, newColor *domain.Color, now time.Time) {
	if !existed || old.Owner == "" || old.Owner == by {
		return
	}

	s.send(ctx, old.Owner, domain.MsgModified, domain.Modified{
		X:          old.X,
		Y:          old.Y,
		NewColor:   newColor,
		ModifiedBy: by,
		At:         now,
	})
}

// send dispatches a one-way notification. Delivery failures are logged and
// swallowed: the write itself already committed.
func (s *Service) send(ctx context.Context, to domain.ContextID, kind string, payload any) {
	env, err := routing.NewEnvelope(s.resolver.Self(), kind, payload)
	if err != nil {
		slog.ErrorContext(ctx, "canvas: wrap notification failed", "kind", kind, "error", err)
		return
	}

	if err := s.transport.Send(ctx, to, env); err != nil {
		slog.ErrorContext(ctx, "canvas: send notification failed", "kind", kind, "to", string(to), "error", err)
	}
}

// mustValidPosition enforces the canvas bounds contract. Bounds are fixed at
// instantiation, so a violation is a programming fault, not user input.
func (s *Service) mustValidPosition(x, y int) {
	if x < 0 || y < 0 || x >= s.width || y >= s.height {
		panic(fmt.Sprintf("canvas: coordinates (%d, %d) out of bounds %dx%d", x, y, s.width, s.height))
	}
}

func (s *Service) validPosition(x, y int) bool {
	return x >= 0 && y >= 0 && x < s.width && y < s.height
}

func posKey(x, y int) string {
	return fmt.Sprintf("%d,%d", x, y)
}
