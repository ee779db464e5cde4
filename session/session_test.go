package session

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"sync"
	"testing"
	"time"

	"formatconv/contracts"
	"formatconv/feedback"
	"formatconv/files_manager"
	"formatconv/publisher"
	"formatconv/selector"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConverter struct {
	mu      sync.Mutex
	calls   int
	err     error
	block   chan struct{}
	started chan struct{}
	opts    contracts.Options
}

func (c *fakeConverter) Name() string { return "fake" }

func (c *fakeConverter) Convert(ctx context.Context, files []contracts.File, opts contracts.Options, progress contracts.ProgressFunc) ([]contracts.Payload, error) {
	c.mu.Lock()
	c.calls++
	c.opts = opts
	c.mu.Unlock()
	if c.started != nil {
		close(c.started)
	}
	if c.block != nil {
		<-c.block
	}
	if c.err != nil {
		return nil, c.err
	}
	out := make([]contracts.Payload, len(files))
	for i, f := range files {
		progress(i+1, len(files))
		out[i] = contracts.Payload{Filename: f.BaseName() + "." + opts.Target.Ext(), ContentType: opts.Target.MIME(), Data: f.Data}
	}
	return out, nil
}

func (c *fakeConverter) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

type fakeDispatcher struct {
	conv    *fakeConverter
	err     error
	lookups []contracts.Pair
}

func (d *fakeDispatcher) Lookup(pair contracts.Pair) (contracts.Converter, error) {
	d.lookups = append(d.lookups, pair)
	if d.err != nil {
		return nil, d.err
	}
	return d.conv, nil
}

type fixture struct {
	session  *Session
	conv     *fakeConverter
	dispatch *fakeDispatcher
	store    *publisher.MemoryStore
	recorder *feedback.Recorder
}

func newFixture(t *testing.T, kind contracts.Kind) *fixture {
	t.Helper()
	f := &fixture{
		conv:     &fakeConverter{},
		store:    publisher.NewMemoryStore(""),
		recorder: feedback.NewRecorder(0),
	}
	f.dispatch = &fakeDispatcher{conv: f.conv}
	s, err := New("s1", kind, Deps{
		Dispatcher: f.dispatch,
		Publisher:  publisher.New(f.store, nil),
		Reporter:   f.recorder,
	})
	require.NoError(t, err)
	f.session = s
	return f
}

func pngFile(t *testing.T, name string) contracts.File {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 2, 2))))
	return contracts.NewFile(name, buf.Bytes(), "image/png")
}

func TestSubmitWithoutFilesStaysIdle(t *testing.T) {
	f := newFixture(t, contracts.KindPNGJPG)

	out, err := f.session.Submit(context.Background(), contracts.InputFlags{To: "jpg"})
	assert.ErrorIs(t, err, ErrNoFiles)
	assert.Equal(t, StateIdle, out.State)
	assert.Equal(t, StateIdle, f.session.State())
	assert.Zero(t, f.conv.Calls())
	assert.Empty(t, f.dispatch.lookups)

	snap := f.recorder.Snapshot()
	assert.Equal(t, feedback.LevelError, snap.Status.Level)
	assert.False(t, snap.Busy)
}

func TestSubmitRejectsBadOptionsWithoutConverting(t *testing.T) {
	f := newFixture(t, contracts.KindPNGJPG)
	_, err := f.session.Select(context.Background(), []contracts.File{pngFile(t, "a.png")})
	require.NoError(t, err)

	_, err = f.session.Submit(context.Background(), contracts.InputFlags{To: "jpg", Quality: "150"})
	assert.ErrorIs(t, err, contracts.ErrValidation)
	assert.Equal(t, StateIdle, f.session.State())
	assert.Zero(t, f.conv.Calls())
}

func TestUnsupportedPairFailsFast(t *testing.T) {
	f := newFixture(t, contracts.KindHEIC)
	jpg := contracts.NewFile("a.jpg", []byte{0xff, 0xd8, 0xff, 0xe0}, "image/jpeg")
	_, err := f.session.Select(context.Background(), []contracts.File{jpg})
	require.NoError(t, err)
	_, err = f.session.SetPair("jpg", "heic")
	require.NoError(t, err)

	_, err = f.session.Submit(context.Background(), contracts.InputFlags{})
	assert.ErrorIs(t, err, selector.ErrUnsupportedPair)
	assert.Contains(t, f.recorder.Snapshot().Status.Text, "no HEIC encoder")
	assert.Equal(t, StateIdle, f.session.State())
	assert.Empty(t, f.dispatch.lookups)
}

func TestOversizedSelectionKeepsPrevious(t *testing.T) {
	f := newFixture(t, contracts.KindPNGJPG)
	_, err := f.session.Select(context.Background(), []contracts.File{pngFile(t, "keep.png")})
	require.NoError(t, err)

	big := contracts.File{Name: "big.png", Size: files_manager.DefaultMaxSize + 1, MIME: "image/png"}
	res, err := f.session.Select(context.Background(), []contracts.File{big})
	assert.ErrorIs(t, err, files_manager.ErrNothingAccepted)
	require.Len(t, res.Rejected, 1)

	snap := f.session.Snapshot()
	assert.Equal(t, 1, snap.Summary.Count)
	assert.Equal(t, []string{"keep.png"}, snap.Summary.Names)
	require.NotNil(t, snap.Feedback)
	assert.Len(t, snap.Feedback.Toasts, 1)
	assert.Equal(t, feedback.LevelWarning, snap.Feedback.Toasts[0].Level)
}

func TestSuccessfulSubmit(t *testing.T) {
	f := newFixture(t, contracts.KindPNGJPG)
	_, err := f.session.Select(context.Background(), []contracts.File{pngFile(t, "a.png"), pngFile(t, "b.png")})
	require.NoError(t, err)

	out, err := f.session.Submit(context.Background(), contracts.InputFlags{To: "jpg", Quality: "40"})
	require.NoError(t, err)
	assert.Equal(t, StateDone, out.State)
	assert.Equal(t, contracts.Pair{From: contracts.FormatPNG, To: contracts.FormatJPG}, out.Pair)
	require.Len(t, out.References, 2)
	assert.Equal(t, "a.jpg", out.References[0].Filename)
	assert.False(t, out.Finished.IsZero())
	assert.Equal(t, 1, f.conv.Calls())
	assert.Equal(t, contracts.FormatJPG, f.conv.opts.Target)
	assert.Equal(t, 0.4, f.conv.opts.Quality)

	snap := f.recorder.Snapshot()
	assert.False(t, snap.Busy)
	assert.False(t, snap.Progress.Visible)
	assert.Equal(t, feedback.LevelSuccess, snap.Status.Level)
	assert.Equal(t, "Conversion complete.", snap.Toasts[len(snap.Toasts)-1].Text)

	s := f.session.Snapshot()
	assert.Equal(t, StateDone, s.State)
	require.NotNil(t, s.LastConversion)
}

func TestFailedSubmit(t *testing.T) {
	f := newFixture(t, contracts.KindPNGJPG)
	_, err := f.session.Select(context.Background(), []contracts.File{pngFile(t, "a.png")})
	require.NoError(t, err)
	_, err = f.session.Submit(context.Background(), contracts.InputFlags{To: "png"})
	require.NoError(t, err)
	require.Equal(t, 1, f.store.Len())

	f.conv.err = errors.New("cannot decode source: a.png: unexpected EOF")
	out, err := f.session.Submit(context.Background(), contracts.InputFlags{To: "jpg"})
	require.Error(t, err)
	assert.Equal(t, StateFailed, out.State)
	assert.Equal(t, StateFailed, f.session.State())
	assert.Zero(t, f.store.Len(), "partial results are revoked")

	snap := f.recorder.Snapshot()
	assert.Equal(t, "cannot decode source: a.png: unexpected EOF", snap.Status.Text)
	assert.Equal(t, "Conversion failed.", snap.Toasts[len(snap.Toasts)-1].Text)
	assert.False(t, snap.Busy)
	assert.False(t, snap.Progress.Visible)

	f.conv.err = nil
	out, err = f.session.Submit(context.Background(), contracts.InputFlags{To: "jpg"})
	require.NoError(t, err)
	assert.Equal(t, StateDone, out.State)
}

func TestOnlyLatestResultResolves(t *testing.T) {
	f := newFixture(t, contracts.KindPNGJPG)
	_, err := f.session.Select(context.Background(), []contracts.File{pngFile(t, "a.png")})
	require.NoError(t, err)

	first, err := f.session.Submit(context.Background(), contracts.InputFlags{To: "jpg"})
	require.NoError(t, err)
	second, err := f.session.Submit(context.Background(), contracts.InputFlags{To: "png"})
	require.NoError(t, err)

	_, err = f.store.Open(context.Background(), first.References[0].ID)
	assert.ErrorIs(t, err, publisher.ErrNotFound)
	_, err = f.store.Open(context.Background(), second.References[0].ID)
	assert.NoError(t, err)
	assert.Equal(t, 1, f.store.Len())
}

func TestConcurrentSubmitIsRefused(t *testing.T) {
	f := newFixture(t, contracts.KindPNGJPG)
	f.conv.block = make(chan struct{})
	f.conv.started = make(chan struct{})
	_, err := f.session.Select(context.Background(), []contracts.File{pngFile(t, "a.png")})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := f.session.Submit(context.Background(), contracts.InputFlags{To: "jpg"})
		done <- err
	}()
	<-f.conv.started

	assert.True(t, f.recorder.Snapshot().Busy)
	_, err = f.session.Submit(context.Background(), contracts.InputFlags{To: "jpg"})
	assert.ErrorIs(t, err, ErrBusy)
	_, err = f.session.Select(context.Background(), []contracts.File{pngFile(t, "b.png")})
	assert.ErrorIs(t, err, ErrBusy)
	assert.ErrorIs(t, f.session.Reset(context.Background()), ErrBusy)

	close(f.conv.block)
	require.NoError(t, <-done)
	assert.Equal(t, 1, f.conv.Calls())
	assert.False(t, f.recorder.Snapshot().Busy)
}

func TestInferredModeRejectsMixedSelection(t *testing.T) {
	f := newFixture(t, contracts.KindPDF)
	pdf := contracts.NewFile("doc.pdf", []byte("%PDF-1.7\n"), "application/pdf")

	_, err := f.session.Select(context.Background(), []contracts.File{pngFile(t, "a.png")})
	require.NoError(t, err)
	assert.Equal(t, contracts.ModeImagesToPDF, f.session.Snapshot().Mode)

	_, err = f.session.Select(context.Background(), []contracts.File{pngFile(t, "b.png"), pdf})
	assert.ErrorIs(t, err, selector.ErrAmbiguousSelection)
	assert.Equal(t, []string{"a.png"}, f.session.Snapshot().Summary.Names)

	out, err := f.session.Submit(context.Background(), contracts.InputFlags{PageSize: "fit"})
	require.NoError(t, err)
	assert.Equal(t, contracts.Pair{From: contracts.FormatPNG, To: contracts.FormatPDF}, out.Pair)
	assert.Equal(t, contracts.PageFit, f.conv.opts.PageSize)

	_, err = f.session.Select(context.Background(), []contracts.File{pdf})
	require.NoError(t, err)
	out, err = f.session.Submit(context.Background(), contracts.InputFlags{To: "webp"})
	require.NoError(t, err)
	assert.Equal(t, contracts.Pair{From: contracts.FormatPDF, To: contracts.FormatWebP}, out.Pair)
}

func TestFailedLookupLeavesModeAlone(t *testing.T) {
	f := newFixture(t, contracts.KindPDF)
	_, err := f.session.Select(context.Background(), []contracts.File{pngFile(t, "a.png")})
	require.NoError(t, err)

	f.session.mu.Lock()
	f.session.mode = contracts.ModeNone
	f.session.mu.Unlock()
	f.dispatch.err = contracts.ErrUnsupportedTarget

	out, err := f.session.Submit(context.Background(), contracts.InputFlags{})
	assert.ErrorIs(t, err, contracts.ErrUnsupportedTarget)
	assert.Equal(t, StateIdle, out.State)
	assert.Equal(t, contracts.ModeNone, f.session.Snapshot().Mode)
	assert.Zero(t, f.conv.Calls())

	f.dispatch.err = nil
	_, err = f.session.Submit(context.Background(), contracts.InputFlags{})
	require.NoError(t, err)
	assert.Equal(t, contracts.ModeImagesToPDF, f.session.Snapshot().Mode)
}

func TestSwapAndReset(t *testing.T) {
	f := newFixture(t, contracts.KindWebP)
	assert.Equal(t, contracts.Pair{From: contracts.FormatJPG, To: contracts.FormatWebP}, f.session.Swap())

	_, err := f.session.Select(context.Background(), []contracts.File{pngFile(t, "a.png")})
	require.NoError(t, err)
	_, err = f.session.SetPair("auto", "webp")
	require.NoError(t, err)
	_, err = f.session.Submit(context.Background(), contracts.InputFlags{})
	require.NoError(t, err)
	assert.Equal(t, contracts.Pair{From: contracts.FormatPNG, To: contracts.FormatWebP}, f.dispatch.lookups[0])

	require.NoError(t, f.session.Reset(context.Background()))
	snap := f.session.Snapshot()
	assert.Equal(t, StateIdle, snap.State)
	assert.Zero(t, snap.Summary.Count)
	assert.Empty(t, snap.References)
	assert.Zero(t, f.store.Len())

	_, err = f.session.SetPair("tiff", "")
	assert.ErrorIs(t, err, contracts.ErrValidation)
}

func TestManagerSweepsIdleSessions(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	store := publisher.NewMemoryStore("")
	m := NewManager(ManagerConfig{
		Dispatcher: &fakeDispatcher{conv: &fakeConverter{}},
		Store:      store,
		TTL:        10 * time.Minute,
		Now:        clock,
	})

	old, err := m.Create(contracts.KindPNGJPG)
	require.NoError(t, err)
	_, err = old.Select(context.Background(), []contracts.File{pngFile(t, "a.png")})
	require.NoError(t, err)
	_, err = old.Submit(context.Background(), contracts.InputFlags{To: "jpg"})
	require.NoError(t, err)
	require.Equal(t, 1, store.Len())

	now = now.Add(8 * time.Minute)
	fresh, err := m.Create(contracts.KindSVG)
	require.NoError(t, err)

	now = now.Add(5 * time.Minute)
	assert.Equal(t, 1, m.Sweep(context.Background()))

	_, ok := m.Get(old.ID)
	assert.False(t, ok)
	_, ok = m.Get(fresh.ID)
	assert.True(t, ok)
	assert.Zero(t, store.Len(), "expired results are revoked")

	_, err = m.Create("gif")
	assert.ErrorIs(t, err, contracts.ErrValidation)

	require.NoError(t, m.Start("@every 1h"))
	m.Stop(context.Background())
	assert.Zero(t, m.Len())
	assert.Error(t, m.Start("every now and then"))
}

func TestSweptSessionRefusesWork(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	store := publisher.NewMemoryStore("")
	conv := &fakeConverter{}
	m := NewManager(ManagerConfig{
		Dispatcher: &fakeDispatcher{conv: conv},
		Store:      store,
		TTL:        time.Minute,
		Now:        func() time.Time { return now },
	})

	s, err := m.Create(contracts.KindPNGJPG)
	require.NoError(t, err)
	_, err = s.Select(context.Background(), []contracts.File{pngFile(t, "a.png")})
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	require.Equal(t, 1, m.Sweep(context.Background()))

	// a caller still holding the session cannot publish into the store
	_, err = s.Submit(context.Background(), contracts.InputFlags{To: "jpg"})
	assert.ErrorIs(t, err, ErrExpired)
	_, err = s.Select(context.Background(), []contracts.File{pngFile(t, "b.png")})
	assert.ErrorIs(t, err, ErrExpired)
	assert.Zero(t, conv.Calls())
	assert.Zero(t, store.Len())
	assert.Zero(t, m.Sweep(context.Background()))
}

func TestStateNames(t *testing.T) {
	assert.Equal(t, "converting", StateConverting.String())
	b, err := StateFailed.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "failed", string(b))
}
