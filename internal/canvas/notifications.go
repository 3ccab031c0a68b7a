package canvas

import (
	"context"

	"github.com/victornm/crosstate/internal/domain"
	"github.com/victornm/crosstate/internal/errors"
)

// HandleModified records a notification that another context changed a cell
// this context used to own. Purely informational; no mutation follows.
func (s *Service) HandleModified(ctx context.Context, m domain.Modified) error {
	return s.record(ctx, domain.NotificationRecord{
		Kind:   domain.NotificationPixelModified,
		X:      m.X,
		Y:      m.Y,
		Color:  m.NewColor,
		Source: m.ModifiedBy,
		At:     m.At,
	})
}

// HandleBatchModified records one notification per cell of a batch change.
func (s *Service) HandleBatchModified(ctx context.Context, m domain.BatchModified) error {
	for _, p := range m.Pixels {
		if err := s.record(ctx, domain.NotificationRecord{
			Kind:   domain.NotificationBatchModified,
			X:      p.X,
			Y:      p.Y,
			Color:  p.NewColor,
			Source: m.ModifiedBy,
			At:     m.At,
		}); err != nil {
			return err
		}
	}

	return nil
}

// HandleClaimConfirmed records that the authority granted (or re-confirmed)
// an ownership claim made by this context.
func (s *Service) HandleClaimConfirmed(ctx context.Context, m domain.ClaimConfirmed) error {
	return s.record(ctx, domain.NotificationRecord{
		Kind:   domain.NotificationClaimAccepted,
		X:      m.X,
		Y:      m.Y,
		Source: m.Owner,
		At:     m.At,
	})
}

// RecordOutcome logs the authority-side result of a forwarded operation.
func (s *Service) RecordOutcome(ctx context.Context, source domain.ContextID, o domain.Outcome) error {
	payload := o.OpKind
	if !o.OK {
		payload = o.OpKind + ": " + o.Reason
	}

	return s.record(ctx, domain.NotificationRecord{
		Kind:    domain.NotificationOutcome,
		Payload: payload,
		Source:  source,
		At:      o.At,
	})
}

func (s *Service) record(ctx context.Context, n domain.NotificationRecord) error {
	if err := s.notifications.Append(ctx, n); err != nil {
		return err
	}

	s.eb.Publish(ctx, domain.EventNotificationReceived{Notification: n})
	return nil
}

// Notifications returns the full notification log.
func (s *Service) Notifications(ctx context.Context) ([]domain.NotificationRecord, error) {
	return s.notifications.Range(ctx, 0, -1)
}

// Unprocessed returns the log entries housekeeping has not flipped yet.
func (s *Service) Unprocessed(ctx context.Context) ([]domain.NotificationRecord, error) {
	all, err := s.notifications.Range(ctx, 0, -1)
	if err != nil {
		return nil, err
	}

	out := make([]domain.NotificationRecord, 0, len(all))
	for _, n := range all {
		if !n.Processed {
			out = append(out, n)
		}
	}

	return out, nil
}

// MarkProcessed flips one notification's processed flag in place.
func (s *Service) MarkProcessed(ctx context.Context, index int64) error {
	n, ok, err := s.notifications.Get(ctx, index)
	if err != nil {
		return err
	}
	if !ok {
		return errors.New(errors.CodeNotFound,
			errors.WithMessagef("notification %d not found", index))
	}

	n.Processed = true
	return s.notifications.SetAt(ctx, index, n)
}

// MarkAllProcessed flips every notification's processed flag.
func (s *Service) MarkAllProcessed(ctx context.Context) error {
	all, err := s.notifications.Range(ctx, 0, -1)
	if err != nil {
		return err
	}

	for i := range all {
		all[i].Processed = true
	}

	return s.notifications.Replace(ctx, all)
}

const keepProcessed = 100

// CleanupNotifications drops old processed entries, keeping every
// unprocessed one and at most the last 100 processed.
func (s *Service) CleanupNotifications(ctx context.Context) error {
	all, err := s.notifications.Range(ctx, 0, -1)
	if err != nil {
		return err
	}

	processed := 0
	for _, n := range all {
		if n.Processed {
			processed++
		}
	}

	drop := processed - keepProcessed
	kept := make([]domain.NotificationRecord, 0, len(all))
	for _, n := range all {
		if n.Processed && drop > 0 {
			drop--
			continue
		}
		kept = append(kept, n)
	}

	return s.notifications.Replace(ctx, kept)
}

// NotificationStats counts unprocessed and processed log entries.
func (s *Service) NotificationStats(ctx context.Context) (unprocessed, processed int, err error) {
	all, err := s.notifications.Range(ctx, 0, -1)
	if err != nil {
		return 0, 0, err
	}

	for _, n := range all {
		if n.Processed {
			processed++
		}
	}

	return len(all) - processed, processed, nil
}
