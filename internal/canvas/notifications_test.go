package canvas_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/victornm/crosstate/internal/canvas"
	"github.com/victornm/crosstate/internal/domain"
	"github.com/victornm/crosstate/internal/errors"
	"github.com/victornm/crosstate/internal/event"
)

func seedNotifications(t *testing.T, svc *canvas.Service, n int) {
	t.Helper()
	ctx := context.Background()

	for i := 0; i < n; i++ {
		require.NoError(t, svc.HandleModified(ctx, domain.Modified{
			X:          i % 10,
			Y:          i / 10 % 10,
			ModifiedBy: "ctx-b",
		}))
	}
}

func TestService_Notifications(t *testing.T) {
	ctx := context.Background()
	f := makeCanvas(t, makeStore(t), "ctx-a", "ctx-a")

	require.NoError(t, f.svc.HandleModified(ctx, domain.Modified{X: 1, Y: 2, NewColor: &red, ModifiedBy: "ctx-b"}))
	require.NoError(t, f.svc.HandleClaimConfirmed(ctx, domain.ClaimConfirmed{X: 3, Y: 4, Owner: "ctx-a"}))
	require.NoError(t, f.svc.HandleBatchModified(ctx, domain.BatchModified{
		Pixels: []domain.PixelModification{
			{X: 5, Y: 5, NewColor: &blue},
			{X: 5, Y: 6, NewColor: &blue},
		},
		ModifiedBy: "ctx-c",
	}))

	notes, err := f.svc.Notifications(ctx)
	require.NoError(t, err)
	require.Len(t, notes, 4, "a batch of 2 should log 2 entries")

	require.Equal(t, domain.NotificationPixelModified, notes[0].Kind)
	require.Equal(t, &red, notes[0].Color)
	require.EqualValues(t, "ctx-b", notes[0].Source)
	require.Equal(t, domain.NotificationClaimAccepted, notes[1].Kind)
	require.Equal(t, domain.NotificationBatchModified, notes[2].Kind)
	require.Equal(t, domain.NotificationBatchModified, notes[3].Kind)
}

func TestService_RecordOutcome(t *testing.T) {
	ctx := context.Background()
	f := makeCanvas(t, makeStore(t), "ctx-b", "ctx-a")

	require.NoError(t, f.svc.RecordOutcome(ctx, "ctx-a", domain.Outcome{
		RequestID: "req-1",
		OpKind:    domain.OpSetPixel,
		OK:        true,
	}))
	require.NoError(t, f.svc.RecordOutcome(ctx, "ctx-a", domain.Outcome{
		RequestID: "req-2",
		OpKind:    domain.OpCreateQuiz,
		OK:        false,
		Reason:    string(errors.ReasonInvalidParameters),
	}))

	notes, err := f.svc.Notifications(ctx)
	require.NoError(t, err)
	require.Len(t, notes, 2)
	require.Equal(t, domain.NotificationOutcome, notes[0].Kind)
	require.Equal(t, domain.OpSetPixel, notes[0].Payload)
	require.Contains(t, notes[1].Payload, domain.OpCreateQuiz)
	require.Contains(t, notes[1].Payload, ":", "a rejection should carry its reason")
}

func TestService_MarkProcessed(t *testing.T) {
	ctx := context.Background()
	f := makeCanvas(t, makeStore(t), "ctx-a", "ctx-a")
	seedNotifications(t, f.svc, 3)

	require.NoError(t, f.svc.MarkProcessed(ctx, 1))

	unprocessed, err := f.svc.Unprocessed(ctx)
	require.NoError(t, err)
	require.Len(t, unprocessed, 2)

	up, p, err := f.svc.NotificationStats(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, up)
	require.Equal(t, 1, p)

	t.Run("unknown index is an error", func(t *testing.T) {
		require.Error(t, f.svc.MarkProcessed(ctx, 99))
	})
}

func TestService_MarkAllProcessed(t *testing.T) {
	ctx := context.Background()
	f := makeCanvas(t, makeStore(t), "ctx-a", "ctx-a")
	seedNotifications(t, f.svc, 5)

	require.NoError(t, f.svc.MarkAllProcessed(ctx))

	unprocessed, err := f.svc.Unprocessed(ctx)
	require.NoError(t, err)
	require.Empty(t, unprocessed)

	up, p, err := f.svc.NotificationStats(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, up)
	require.Equal(t, 5, p)
}

func TestService_CleanupNotifications(t *testing.T) {
	ctx := context.Background()
	f := makeCanvas(t, makeStore(t), "ctx-a", "ctx-a")

	// 130 processed entries followed by 3 unprocessed ones. Cleanup keeps
	// every unprocessed entry and the last 100 processed.
	seedNotifications(t, f.svc, 130)
	require.NoError(t, f.svc.MarkAllProcessed(ctx))
	seedNotifications(t, f.svc, 3)

	require.NoError(t, f.svc.CleanupNotifications(ctx))

	notes, err := f.svc.Notifications(ctx)
	require.NoError(t, err)
	require.Len(t, notes, 103)

	up, p, err := f.svc.NotificationStats(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, up, "unprocessed entries must survive cleanup")
	require.Equal(t, 100, p)

	t.Run("cleanup below the threshold is a no-op", func(t *testing.T) {
		require.NoError(t, f.svc.CleanupNotifications(ctx))

		notes, err := f.svc.Notifications(ctx)
		require.NoError(t, err)
		require.Len(t, notes, 103)
	})
}

func TestService_Notifications_EmitEvents(t *testing.T) {
	ctx := context.Background()
	f := makeCanvas(t, makeStore(t), "ctx-a", "ctx-a")

	received := make(chan domain.EventNotificationReceived, 1)
	f.eb.Subscribe(domain.EventNameNotificationReceived, func(ctx context.Context, e event.Event) error {
		received <- e.(domain.EventNotificationReceived)
		return nil
	})

	require.NoError(t, f.svc.HandleModified(ctx, domain.Modified{X: 1, Y: 1, ModifiedBy: "ctx-b"}))

	e := <-received
	require.Equal(t, domain.NotificationPixelModified, e.Notification.Kind)
	require.Equal(t, 1, e.Notification.X)
	require.Equal(t, 1, e.Notification.Y)
}
