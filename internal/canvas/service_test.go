package canvas_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/victornm/crosstate/internal/canvas"
	"github.com/victornm/crosstate/internal/domain"
	"github.com/victornm/crosstate/internal/event"
	"github.com/victornm/crosstate/internal/ledger"
	"github.com/victornm/crosstate/internal/routing"
)

var (
	red  = domain.Color{Red: 255, Alpha: 255}
	blue = domain.Color{Blue: 255, Alpha: 255}
)

// fakeTransport records outbound envelopes instead of delivering them.
type fakeTransport struct {
	mu   sync.Mutex
	sent []sentEnvelope
}

type sentEnvelope struct {
	To  domain.ContextID
	Env routing.Envelope
}

func (f *fakeTransport) Send(_ context.Context, to domain.ContextID, env routing.Envelope) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentEnvelope{To: to, Env: env})
	return nil
}

func (f *fakeTransport) Inbox(context.Context, domain.ContextID) (<-chan routing.Envelope, error) {
	ch := make(chan routing.Envelope)
	close(ch)
	return ch, nil
}

func (f *fakeTransport) sentTo(to domain.ContextID) []sentEnvelope {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []sentEnvelope
	for _, s := range f.sent {
		if s.To == to {
			out = append(out, s)
		}
	}
	return out
}

func (f *fakeTransport) allSent() []sentEnvelope {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentEnvelope(nil), f.sent...)
}

type fixture struct {
	svc   *canvas.Service
	tr    *fakeTransport
	eb    *event.Bus
	store *ledger.Store
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

// makeCanvas builds a 10x10 canvas service for the given context. Writes on
// behalf of other contexts stand in for forwarded operations arriving at the
// authority.
func makeCanvas(t *testing.T, store *ledger.Store, self, authority string) *fixture {
	eb := event.NewBus()
	t.Cleanup(eb.Stop)

	tr := &fakeTransport{}
	svc := canvas.NewService(canvas.Config{
		Ledger:    store,
		EventBus:  eb,
		Resolver:  routing.NewResolver(domain.ContextID(self), domain.ContextID(authority)),
		Transport: tr,
		Width:     10,
		Height:    10,
	})
	require.NoError(t, svc.Init(context.Background()))

	return &fixture{svc: svc, tr: tr, eb: eb, store: store}
}

func TestService_Init_Idempotent(t *testing.T) {
	ctx := context.Background()
	f := makeCanvas(t, makeStore(t), "ctx-a", "ctx-a")

	require.NoError(t, f.svc.SetPixel(ctx, "ctx-a", domain.SetPixel{X: 1, Y: 1, Color: red}))
	require.NoError(t, f.svc.Init(ctx), "re-init should not reset anything")

	st, err := f.svc.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 100, st.TotalPixels)
	require.Equal(t, 1, st.ColoredPixels)
}

func TestService_SetPixel(t *testing.T) {
	ctx := context.Background()
	f := makeCanvas(t, makeStore(t), "ctx-a", "ctx-a")

	require.NoError(t, f.svc.SetPixel(ctx, "ctx-a", domain.SetPixel{X: 3, Y: 4, Color: red}))

	st, err := f.svc.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, st.ColoredPixels)
	require.Equal(t, 99, st.TransparentPixels)
	require.NotNil(t, st.LastUpdate)

	t.Run("overwriting a colored cell keeps the count", func(t *testing.T) {
		require.NoError(t, f.svc.SetPixel(ctx, "ctx-a", domain.SetPixel{X: 3, Y: 4, Color: blue}))

		st, err := f.svc.Stats(ctx)
		require.NoError(t, err)
		require.Equal(t, 1, st.ColoredPixels)
	})

	t.Run("same-context overwrite sends no notification", func(t *testing.T) {
		require.Empty(t, f.tr.allSent())
	})
}

func TestService_SetPixel_ForwardedOwnership(t *testing.T) {
	ctx := context.Background()
	f := makeCanvas(t, makeStore(t), "ctx-a", "ctx-a")

	// A write forwarded from ctx-b is applied here but belongs to ctx-b.
	require.NoError(t, f.svc.SetPixel(ctx, "ctx-b", domain.SetPixel{X: 5, Y: 5, Color: blue}))

	pixels := ledger.NewMap[domain.PixelRecord](f.store, ledger.ColPixels)
	rec, ok, err := pixels.Get(ctx, "5,5")
	require.NoError(t, err)
	require.True(t, ok)
	require.EqualValues(t, "ctx-b", rec.Owner)
}

func TestService_SetPixel_OutOfBounds(t *testing.T) {
	ctx := context.Background()
	f := makeCanvas(t, makeStore(t), "ctx-a", "ctx-a")

	require.Panics(t, func() {
		_ = f.svc.SetPixel(ctx, "ctx-a", domain.SetPixel{X: 10, Y: 0, Color: red})
	})
	require.Panics(t, func() {
		_ = f.svc.SetPixel(ctx, "ctx-a", domain.SetPixel{X: 0, Y: -1, Color: red})
	})
	require.Panics(t, func() {
		_ = f.svc.SetPixels(ctx, "ctx-a", domain.SetPixels{Pixels: []domain.PixelUpdate{
			{X: 2, Y: 2, Color: red},
			{X: 99, Y: 99, Color: red},
		}})
	})

	t.Run("an aborted batch leaves no partial effect", func(t *testing.T) {
		pixels := ledger.NewMap[domain.PixelRecord](f.store, ledger.ColPixels)
		_, ok, err := pixels.Get(ctx, "2,2")
		require.NoError(t, err)
		require.False(t, ok, "the valid cell of the batch must not be committed")

		st, err := f.svc.Stats(ctx)
		require.NoError(t, err)
		require.Equal(t, 0, st.ColoredPixels)
	})
}

func TestService_ClearPixel(t *testing.T) {
	ctx := context.Background()
	f := makeCanvas(t, makeStore(t), "ctx-a", "ctx-a")

	require.NoError(t, f.svc.SetPixel(ctx, "ctx-a", domain.SetPixel{X: 2, Y: 2, Color: red}))
	require.NoError(t, f.svc.ClearPixel(ctx, "ctx-a", domain.ClearPixel{X: 2, Y: 2}))

	st, err := f.svc.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, st.ColoredPixels, "clearing should decrement the colored count")

	pixels := ledger.NewMap[domain.PixelRecord](f.store, ledger.ColPixels)
	rec, ok, err := pixels.Get(ctx, "2,2")
	require.NoError(t, err)
	require.True(t, ok, "a cleared cell never reverts to absent")
	require.EqualValues(t, "ctx-a", rec.Owner)
	require.Nil(t, rec.Color)

	t.Run("clearing an untouched cell claims it transparent", func(t *testing.T) {
		require.NoError(t, f.svc.ClearPixel(ctx, "ctx-a", domain.ClearPixel{X: 5, Y: 5}))

		st, err := f.svc.Stats(ctx)
		require.NoError(t, err)
		require.Equal(t, 0, st.ColoredPixels)
	})
}

func TestService_SetPixel_NotifiesPriorOwner(t *testing.T) {
	ctx := context.Background()
	f := makeCanvas(t, makeStore(t), "ctx-a", "ctx-a")

	require.NoError(t, f.svc.SetPixel(ctx, "ctx-b", domain.SetPixel{X: 1, Y: 1, Color: blue}))
	require.NoError(t, f.svc.SetPixel(ctx, "ctx-a", domain.SetPixel{X: 1, Y: 1, Color: red}))

	sent := f.tr.sentTo("ctx-b")
	require.Len(t, sent, 1, "prior owner should receive exactly one notification")
	require.Equal(t, domain.MsgModified, sent[0].Env.Kind)

	var m domain.Modified
	require.NoError(t, unmarshalPayload(sent[0].Env, &m))
	require.Equal(t, 1, m.X)
	require.Equal(t, 1, m.Y)
	require.Equal(t, &red, m.NewColor)
	require.EqualValues(t, "ctx-a", m.ModifiedBy)

	t.Run("clearing also notifies the displaced owner", func(t *testing.T) {
		require.NoError(t, f.svc.ClearPixel(ctx, "ctx-b", domain.ClearPixel{X: 1, Y: 1}))

		sent := f.tr.sentTo("ctx-a")
		require.Len(t, sent, 1)
		require.Equal(t, domain.MsgModified, sent[0].Env.Kind)

		var m domain.Modified
		require.NoError(t, unmarshalPayload(sent[0].Env, &m))
		require.Nil(t, m.NewColor, "a cleared cell reports no color")
		require.EqualValues(t, "ctx-b", m.ModifiedBy)
	})
}

func TestService_SetPixels_GroupsByDisplacedOwner(t *testing.T) {
	ctx := context.Background()
	f := makeCanvas(t, makeStore(t), "ctx-a", "ctx-a")

	require.NoError(t, f.svc.SetPixel(ctx, "ctx-b", domain.SetPixel{X: 0, Y: 0, Color: blue}))
	require.NoError(t, f.svc.SetPixel(ctx, "ctx-b", domain.SetPixel{X: 0, Y: 1, Color: blue}))
	require.NoError(t, f.svc.SetPixel(ctx, "ctx-c", domain.SetPixel{X: 0, Y: 2, Color: blue}))

	require.NoError(t, f.svc.SetPixels(ctx, "ctx-a", domain.SetPixels{Pixels: []domain.PixelUpdate{
		{X: 0, Y: 0, Color: red},
		{X: 0, Y: 1, Color: red},
		{X: 0, Y: 2, Color: red},
		{X: 0, Y: 3, Color: red}, // previously unclaimed
	}}))

	toB := f.tr.sentTo("ctx-b")
	require.Len(t, toB, 1, "one batch notification per displaced owner")
	require.Equal(t, domain.MsgBatchModified, toB[0].Env.Kind)

	var batch domain.BatchModified
	require.NoError(t, unmarshalPayload(toB[0].Env, &batch))
	require.Len(t, batch.Pixels, 2, "batch should cover all of b's displaced cells")
	require.EqualValues(t, "ctx-a", batch.ModifiedBy)

	toC := f.tr.sentTo("ctx-c")
	require.Len(t, toC, 1)

	st, err := f.svc.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 4, st.ColoredPixels)
}
