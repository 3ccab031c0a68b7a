package canvas

import (
	"context"

	"github.com/victornm/crosstate/internal/domain"
	"github.com/victornm/crosstate/internal/routing"
)

// Claim requests exclusive ownership of a cell for this context. On the
// authority the claim is handled in place; on a peer it travels to the
// authority as a one-way message, and the answer comes back as either a
// ClaimConfirmed or a Modified message.
func (s *Service) Claim(ctx context.Context, x, y int) error {
	claim := domain.Claim{
		X:           x,
		Y:           y,
		RequestedBy: s.resolver.Self(),
		At:          s.now().UTC(),
	}

	if s.resolver.IsAuthority() {
		return s.HandleClaim(ctx, claim)
	}

	env, err := routing.NewEnvelope(s.resolver.Self(), domain.MsgClaim, claim)
	if err != nil {
		return err
	}

	return s.transport.Send(ctx, s.resolver.Authority(), env)
}

// HandleClaim runs the per-cell ownership state machine on the authority.
// Every inbound claim is logged as a notification regardless of outcome.
//
//	absent          -> Owned(requester), ClaimConfirmed sent back
//	Owned(requester)-> no change, ClaimConfirmed echoed
//	Owned(other)    -> no change, current color/owner sent back as Modified
func (s *Service) HandleClaim(ctx context.Context, claim domain.Claim) error {
	note := domain.NotificationRecord{
		Kind:   domain.NotificationClaim,
		X:      claim.X,
		Y:      claim.Y,
		Source: claim.RequestedBy,
		At:     claim.At,
	}
	if err := s.notifications.Append(ctx, note); err != nil {
		return err
	}
	s.eb.Publish(ctx, domain.EventNotificationReceived{Notification: note})

	if !s.validPosition(claim.X, claim.Y) {
		return nil
	}

	pixel, existed, err := s.pixels.Get(ctx, posKey(claim.X, claim.Y))
	if err != nil {
		return err
	}

	now := s.now().UTC()

	if !existed {
		rec := domain.PixelRecord{
			X:         claim.X,
			Y:         claim.Y,
			Owner:     claim.RequestedBy,
			UpdatedAt: claim.At,
		}
		if err := s.pixels.Set(ctx, posKey(claim.X, claim.Y), rec); err != nil {
			return err
		}

		s.send(ctx, claim.RequestedBy, domain.MsgClaimConfirmed, domain.ClaimConfirmed{
			X:     claim.X,
			Y:     claim.Y,
			Owner: claim.RequestedBy,
			At:    now,
		})
		s.eb.Publish(ctx, domain.EventOwnershipChanged{
			X:        claim.X,
			Y:        claim.Y,
			NewOwner: claim.RequestedBy,
		})

		return nil
	}

	if pixel.Owner == claim.RequestedBy {
		s.send(ctx, claim.RequestedBy, domain.MsgClaimConfirmed, domain.ClaimConfirmed{
			X:     claim.X,
			Y:     claim.Y,
			Owner: claim.RequestedBy,
			At:    now,
		})

		return nil
	}

	// The requester cannot read authority state directly; answering with
	// the cell's current color and owner is its read path.
	s.send(ctx, claim.RequestedBy, domain.MsgModified, domain.Modified{
		X:          claim.X,
		Y:          claim.Y,
		NewColor:   pixel.Color,
		ModifiedBy: pixel.Owner,
		At:         pixel.UpdatedAt,
	})

	return nil
}
