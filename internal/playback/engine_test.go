package playback

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clip-studio/internal/clock"
	"clip-studio/internal/models"
	apperrors "clip-studio/pkg/errors"
	"clip-studio/pkg/logger"
)

type fixedProber time.Duration

func (p fixedProber) Duration(ctx context.Context, path string) (time.Duration, error) {
	return time.Duration(p), nil
}

// scriptedPlayer records native calls and can hold or fail seeks
type scriptedPlayer struct {
	mu          sync.Mutex
	duration    time.Duration
	pos         time.Duration
	playing     bool
	rate        float64
	loadErr     error
	failSeeks   int
	seeks       []time.Duration
	inFlight    int
	maxInFlight int
	closed      bool
	gate        chan struct{}
	entered     chan time.Duration
	ended       chan struct{}
}

func newScriptedPlayer(d time.Duration) *scriptedPlayer {
	return &scriptedPlayer{duration: d, ended: make(chan struct{}, 1)}
}

func (p *scriptedPlayer) Load(ctx context.Context, path string) (time.Duration, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.loadErr != nil {
		return 0, p.loadErr
	}
	p.pos = 0
	return p.duration, nil
}

func (p *scriptedPlayer) Play(rate float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.playing = true
	p.rate = rate
	return nil
}

func (p *scriptedPlayer) Pause() {
	p.mu.Lock()
	p.playing = false
	p.mu.Unlock()
}

func (p *scriptedPlayer) Seek(ctx context.Context, t time.Duration) (time.Duration, error) {
	p.mu.Lock()
	p.inFlight++
	if p.inFlight > p.maxInFlight {
		p.maxInFlight = p.inFlight
	}
	p.seeks = append(p.seeks, t)
	fail := p.failSeeks > 0
	if fail {
		p.failSeeks--
	}
	gate, entered := p.gate, p.entered
	p.mu.Unlock()

	if entered != nil {
		entered <- t
	}
	if gate != nil {
		<-gate
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.inFlight--
	if fail {
		return 0, errors.New("seek interrupted")
	}
	p.pos = t
	return t, nil
}

func (p *scriptedPlayer) CurrentTime() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pos
}

func (p *scriptedPlayer) Ended() <-chan struct{} {
	return p.ended
}

func (p *scriptedPlayer) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return nil
}

func (p *scriptedPlayer) setPosition(t time.Duration) {
	p.mu.Lock()
	p.pos = t
	p.mu.Unlock()
}

func (p *scriptedPlayer) Seeks() []time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]time.Duration(nil), p.seeks...)
}

func (p *scriptedPlayer) MaxInFlight() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.maxInFlight
}

func testDraft(t *testing.T, d time.Duration, r models.TimeRange) *models.DraftAsset {
	t.Helper()
	path := filepath.Join(t.TempDir(), "draft.mp4")
	require.NoError(t, os.WriteFile(path, []byte("media"), 0o600))
	draft, err := models.NewDraftAsset(path, d)
	require.NoError(t, err)
	if r != (models.TimeRange{}) {
		require.NoError(t, draft.SetActiveRange(r))
	}
	return draft
}

func newTestEngine(t *testing.T, player Player, c clock.Clock) *Engine {
	t.Helper()
	e, err := NewEngine(Options{
		Player: player,
		Clock:  c,
		Logger: logger.NewWithOutput(os.Stderr, "playback-test"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return e
}

func requireCode(t *testing.T, err error, code apperrors.ErrorCode) {
	t.Helper()
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, code), "expected %s, got %v", code, err)
}

// requirePosition waits for the tick handler of the last delivered tick
func requirePosition(t *testing.T, e *Engine, want time.Duration) {
	t.Helper()
	require.Eventually(t, func() bool { return e.Position() == want }, time.Second, time.Millisecond,
		"position %s, want %s", e.Position(), want)
}

func seekWaiters(e *Engine) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.seekWaiters)
}

func TestEngine_PlaysActiveRangeAndRestartsFromLower(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewManual(time.Unix(0, 0))
	player := NewClockPlayer(clk, fixedProber(20*time.Second))
	e := newTestEngine(t, player, clk)
	draft := testDraft(t, 20*time.Second, models.TimeRange{Lower: 5 * time.Second, Upper: 12 * time.Second})

	require.NoError(t, e.Load(ctx, draft))
	assert.Equal(t, 5*time.Second, e.Position())

	require.NoError(t, e.TogglePlayPause(ctx))
	assert.True(t, e.IsPlaying())
	assert.Equal(t, 5*time.Second, player.CurrentTime(), "playback starts at the lower bound")

	ticker := clk.LastTicker()
	require.NotNil(t, ticker)
	delivered := ticker.TickN(200)
	assert.Less(t, delivered, 200, "ticker stops at the upper bound")

	assert.False(t, e.IsPlaying())
	assert.True(t, e.EndReached())
	assert.Equal(t, 12*time.Second, e.Position())

	require.NoError(t, e.TogglePlayPause(ctx))
	assert.True(t, e.IsPlaying())
	assert.False(t, e.EndReached())
	assert.Equal(t, 5*time.Second, e.Position(), "resumes from the lower bound, not the upper")
	assert.Equal(t, 5*time.Second, player.CurrentTime())
}

func TestEngine_PauseKeepsAuthoritativePosition(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewManual(time.Unix(0, 0))
	player := NewClockPlayer(clk, fixedProber(20*time.Second))
	e := newTestEngine(t, player, clk)
	require.NoError(t, e.Load(ctx, testDraft(t, 20*time.Second, models.TimeRange{})))

	require.NoError(t, e.TogglePlayPause(ctx))
	assert.Equal(t, 30, clk.LastTicker().TickN(30))
	requirePosition(t, e, 3*time.Second)

	require.NoError(t, e.TogglePlayPause(ctx))
	assert.False(t, e.IsPlaying())
	assert.True(t, clk.LastTicker().Stopped())

	clk.Advance(5 * time.Second)
	assert.Equal(t, 3*time.Second, e.Position())

	require.NoError(t, e.TogglePlayPause(ctx))
	assert.Equal(t, 3*time.Second, player.CurrentTime())
}

func TestEngine_SeeksNeverOverlap(t *testing.T) {
	ctx := context.Background()
	player := newScriptedPlayer(20 * time.Second)
	e := newTestEngine(t, player, clock.NewManual(time.Unix(0, 0)))
	require.NoError(t, e.Load(ctx, testDraft(t, 20*time.Second, models.TimeRange{})))

	player.gate = make(chan struct{})
	player.entered = make(chan time.Duration, 4)
	errs := make(chan error, 3)

	go func() { errs <- e.Seek(ctx, 3*time.Second) }()
	assert.Equal(t, 3*time.Second, <-player.entered)

	go func() { errs <- e.Seek(ctx, 7*time.Second) }()
	require.Eventually(t, func() bool { return seekWaiters(e) == 1 }, time.Second, time.Millisecond)
	go func() { errs <- e.Seek(ctx, 9*time.Second) }()
	require.Eventually(t, func() bool { return seekWaiters(e) == 2 }, time.Second, time.Millisecond)

	player.gate <- struct{}{}
	assert.Equal(t, 9*time.Second, <-player.entered, "pending requests collapse to the latest target")
	player.gate <- struct{}{}

	for i := 0; i < 3; i++ {
		require.NoError(t, <-errs)
	}
	assert.Equal(t, []time.Duration{3 * time.Second, 9 * time.Second}, player.Seeks())
	assert.Equal(t, 1, player.MaxInFlight())
	assert.Equal(t, 9*time.Second, e.Position())
}

func TestEngine_SeekSameTargetIsCoalesced(t *testing.T) {
	ctx := context.Background()
	player := newScriptedPlayer(20 * time.Second)
	e := newTestEngine(t, player, clock.NewManual(time.Unix(0, 0)))
	require.NoError(t, e.Load(ctx, testDraft(t, 20*time.Second, models.TimeRange{})))

	player.gate = make(chan struct{})
	player.entered = make(chan time.Duration, 2)
	errs := make(chan error, 2)

	go func() { errs <- e.Seek(ctx, 4*time.Second) }()
	<-player.entered
	go func() { errs <- e.Seek(ctx, 4*time.Second) }()
	require.Eventually(t, func() bool { return seekWaiters(e) == 1 }, time.Second, time.Millisecond)
	player.gate <- struct{}{}

	require.NoError(t, <-errs)
	require.NoError(t, <-errs)
	assert.Equal(t, []time.Duration{4 * time.Second}, player.Seeks())
}

func TestEngine_SeekAfterReloadTakesOverInFlightSeek(t *testing.T) {
	ctx := context.Background()
	player := newScriptedPlayer(20 * time.Second)
	e := newTestEngine(t, player, clock.NewManual(time.Unix(0, 0)))
	require.NoError(t, e.Load(ctx, testDraft(t, 20*time.Second, models.TimeRange{})))

	player.gate = make(chan struct{})
	player.entered = make(chan time.Duration, 2)
	errs := make(chan error, 2)

	go func() { errs <- e.Seek(ctx, 3*time.Second) }()
	assert.Equal(t, 3*time.Second, <-player.entered)

	require.NoError(t, e.Load(ctx, testDraft(t, 20*time.Second, models.TimeRange{Lower: 5 * time.Second, Upper: 12 * time.Second})))
	go func() { errs <- e.Seek(ctx, 7*time.Second) }()
	require.Eventually(t, func() bool { return seekWaiters(e) == 1 }, time.Second, time.Millisecond)

	player.gate <- struct{}{}
	assert.Equal(t, 7*time.Second, <-player.entered, "the new draft's target is issued")
	player.gate <- struct{}{}

	require.NoError(t, <-errs)
	require.NoError(t, <-errs)
	assert.Equal(t, []time.Duration{3 * time.Second, 7 * time.Second}, player.Seeks())
	assert.Equal(t, 1, player.MaxInFlight())
	assert.Equal(t, 7*time.Second, e.Position())
	assert.Equal(t, 7*time.Second, player.CurrentTime())
}

func TestEngine_UnloadFailsPendingSeeks(t *testing.T) {
	ctx := context.Background()
	player := newScriptedPlayer(20 * time.Second)
	e := newTestEngine(t, player, clock.NewManual(time.Unix(0, 0)))
	require.NoError(t, e.Load(ctx, testDraft(t, 20*time.Second, models.TimeRange{})))

	player.gate = make(chan struct{})
	player.entered = make(chan time.Duration, 2)
	first := make(chan error, 1)
	pending := make(chan error, 1)

	go func() { first <- e.Seek(ctx, 3*time.Second) }()
	<-player.entered
	go func() { pending <- e.Seek(ctx, 4*time.Second) }()
	require.Eventually(t, func() bool { return seekWaiters(e) == 1 }, time.Second, time.Millisecond)

	e.Unload()
	requireCode(t, <-pending, apperrors.ErrInvalidState)
	assert.Zero(t, seekWaiters(e))

	player.gate <- struct{}{}
	require.NoError(t, <-first)
	assert.Equal(t, []time.Duration{3 * time.Second}, player.Seeks(), "no seek is issued for the unloaded draft")
	assert.Nil(t, e.Asset())
}

func TestEngine_SeekRetriesOnce(t *testing.T) {
	ctx := context.Background()

	t.Run("second attempt succeeds", func(t *testing.T) {
		player := newScriptedPlayer(20 * time.Second)
		player.failSeeks = 1
		e := newTestEngine(t, player, clock.NewManual(time.Unix(0, 0)))
		require.NoError(t, e.Load(ctx, testDraft(t, 20*time.Second, models.TimeRange{})))

		require.NoError(t, e.Seek(ctx, 4*time.Second))
		assert.Equal(t, []time.Duration{4 * time.Second, 4 * time.Second}, player.Seeks())
		assert.Equal(t, 4*time.Second, e.Position())
	})

	t.Run("both attempts fail", func(t *testing.T) {
		player := newScriptedPlayer(20 * time.Second)
		e := newTestEngine(t, player, clock.NewManual(time.Unix(0, 0)))
		require.NoError(t, e.Load(ctx, testDraft(t, 20*time.Second, models.TimeRange{Lower: 2 * time.Second, Upper: 10 * time.Second})))
		player.failSeeks = 2

		err := e.Seek(ctx, 4*time.Second)
		requireCode(t, err, apperrors.ErrPlaybackSeek)
		assert.Len(t, player.Seeks(), 2)
		assert.Equal(t, 2*time.Second, e.Position(), "position unchanged")
	})
}

func TestEngine_SeekToUpperBoundEndsRange(t *testing.T) {
	ctx := context.Background()
	player := newScriptedPlayer(20 * time.Second)
	e := newTestEngine(t, player, clock.NewManual(time.Unix(0, 0)))
	require.NoError(t, e.Load(ctx, testDraft(t, 20*time.Second, models.TimeRange{Lower: 5 * time.Second, Upper: 12 * time.Second})))

	require.NoError(t, e.Seek(ctx, 15*time.Second))
	assert.Equal(t, 12*time.Second, player.Seeks()[0], "target clamped to the range")
	assert.True(t, e.EndReached())
	assert.Equal(t, 12*time.Second, e.Position())

	require.NoError(t, e.TogglePlayPause(ctx))
	seeks := player.Seeks()
	assert.Equal(t, 5*time.Second, seeks[len(seeks)-1])
	assert.True(t, e.IsPlaying())
}

func TestEngine_LoadFailureLeavesEngineUnbound(t *testing.T) {
	ctx := context.Background()
	player := newScriptedPlayer(20 * time.Second)
	e := newTestEngine(t, player, clock.NewManual(time.Unix(0, 0)))
	require.NoError(t, e.Load(ctx, testDraft(t, 20*time.Second, models.TimeRange{})))

	var events []Event
	e.Subscribe(func(ev Event) { events = append(events, ev) })

	player.loadErr = errors.New("moov atom not found")
	err := e.Load(ctx, testDraft(t, 8*time.Second, models.TimeRange{}))
	requireCode(t, err, apperrors.ErrPlaybackLoad)

	assert.Nil(t, e.Asset())
	assert.Zero(t, e.Duration())
	assert.Zero(t, e.Position())
	requireCode(t, e.TogglePlayPause(ctx), apperrors.ErrInvalidState)
	requireCode(t, e.Seek(ctx, time.Second), apperrors.ErrInvalidState)

	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, EventError, last.Kind)
	assert.False(t, last.Loaded)
}

func TestEngine_LoadMissingFile(t *testing.T) {
	clk := clock.NewManual(time.Unix(0, 0))
	e := newTestEngine(t, NewClockPlayer(clk, fixedProber(5*time.Second)), clk)
	draft := testDraft(t, 5*time.Second, models.TimeRange{})
	require.NoError(t, os.Remove(draft.SourcePath()))

	requireCode(t, e.Load(context.Background(), draft), apperrors.ErrPlaybackLoad)
	assert.Nil(t, e.Asset())
}

func TestEngine_LoadRejectsReleasedDraft(t *testing.T) {
	e := newTestEngine(t, newScriptedPlayer(time.Second), nil)
	draft := testDraft(t, time.Second, models.TimeRange{})
	_, err := draft.Release()
	require.NoError(t, err)

	requireCode(t, e.Load(context.Background(), draft), apperrors.ErrInvalidInput)
}

func TestEngine_ScrubSuspendsTicks(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewManual(time.Unix(0, 0))
	player := NewClockPlayer(clk, fixedProber(20*time.Second))
	e := newTestEngine(t, player, clk)
	require.NoError(t, e.Load(ctx, testDraft(t, 20*time.Second, models.TimeRange{})))
	require.NoError(t, e.TogglePlayPause(ctx))
	first := clk.LastTicker()
	first.TickN(10)

	require.NoError(t, e.BeginScrub())
	assert.Equal(t, models.ScrubStarted, e.Scrub().Phase())
	assert.True(t, first.Stopped(), "no position ticks during a scrub")
	before := e.Position()
	clk.Advance(2 * time.Second)
	assert.Equal(t, before, e.Position())

	var phases []models.ScrubPhase
	e.Subscribe(func(ev Event) {
		if ev.Kind == EventScrub {
			phases = append(phases, ev.Scrub.Phase())
		}
	})
	require.NoError(t, e.EndScrub(ctx, 9*time.Second))
	assert.Equal(t, []models.ScrubPhase{models.ScrubEnded, models.ScrubIdle}, phases)
	assert.Equal(t, 9*time.Second, e.Position())
	assert.Equal(t, 9*time.Second, player.CurrentTime())

	second := clk.LastTicker()
	assert.NotSame(t, first, second, "ticks resume after the scrub")
	second.TickN(5)
	requirePosition(t, e, 9500*time.Millisecond)
}

func TestEngine_EndScrubWithoutBegin(t *testing.T) {
	e := newTestEngine(t, newScriptedPlayer(10*time.Second), nil)
	require.NoError(t, e.Load(context.Background(), testDraft(t, 10*time.Second, models.TimeRange{})))
	requireCode(t, e.EndScrub(context.Background(), time.Second), apperrors.ErrInvalidState)
}

func TestEngine_ScrubSuspended(t *testing.T) {
	e := newTestEngine(t, newScriptedPlayer(10*time.Second), nil)
	require.NoError(t, e.Load(context.Background(), testDraft(t, 10*time.Second, models.TimeRange{})))

	require.NoError(t, e.BeginScrub())
	e.SetScrubSuspended(true)
	assert.Equal(t, models.ScrubIdle, e.Scrub().Phase(), "suspending drops the scrub")
	requireCode(t, e.BeginScrub(), apperrors.ErrOperationNotAllowed)

	e.SetScrubSuspended(false)
	assert.NoError(t, e.BeginScrub())
}

func TestEngine_SetRate(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewManual(time.Unix(0, 0))
	player := NewClockPlayer(clk, fixedProber(20*time.Second))
	e := newTestEngine(t, player, clk)
	draft := testDraft(t, 20*time.Second, models.TimeRange{})
	require.NoError(t, e.Load(ctx, draft))

	require.NoError(t, e.SetRate(ctx, 1.5))
	assert.False(t, e.IsPlaying(), "rate change does not start playback")
	assert.Equal(t, 1.5, draft.PlaybackRate())

	require.NoError(t, e.TogglePlayPause(ctx))
	clk.LastTicker().TickN(10)
	requirePosition(t, e, 1500*time.Millisecond)

	require.NoError(t, e.SetRate(ctx, 2))
	assert.True(t, e.IsPlaying())
	assert.Equal(t, 2.0, e.Rate())
	clk.LastTicker().TickN(10)
	requirePosition(t, e, 3500*time.Millisecond)

	requireCode(t, e.SetRate(ctx, 0), apperrors.ErrInvalidInput)
	requireCode(t, e.SetRate(ctx, 8), apperrors.ErrInvalidInput)
}

func TestEngine_SetBoundsStopsAtNewUpper(t *testing.T) {
	ctx := context.Background()
	player := newScriptedPlayer(20 * time.Second)
	e := newTestEngine(t, player, clock.NewManual(time.Unix(0, 0)))
	require.NoError(t, e.Load(ctx, testDraft(t, 20*time.Second, models.TimeRange{})))
	require.NoError(t, e.Seek(ctx, 3*time.Second))
	require.NoError(t, e.TogglePlayPause(ctx))
	player.setPosition(8 * time.Second)

	require.NoError(t, e.SetBounds(models.TimeRange{Lower: 2 * time.Second, Upper: 7 * time.Second}))
	assert.False(t, e.IsPlaying())
	assert.True(t, e.EndReached())
	assert.Equal(t, 7*time.Second, e.Position())

	requireCode(t, e.SetBounds(models.TimeRange{Lower: 5 * time.Second, Upper: 25 * time.Second}), apperrors.ErrInvalidInput)
	assert.Equal(t, models.TimeRange{Lower: 2 * time.Second, Upper: 7 * time.Second}, e.Bounds())
}

func TestEngine_TicksStayAboveRaisedLowerBound(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewManual(time.Unix(0, 0))
	player := NewClockPlayer(clk, fixedProber(20*time.Second))
	e := newTestEngine(t, player, clk)
	require.NoError(t, e.Load(ctx, testDraft(t, 20*time.Second, models.TimeRange{})))

	require.NoError(t, e.TogglePlayPause(ctx))
	clk.LastTicker().TickN(30)
	requirePosition(t, e, 3*time.Second)

	require.NoError(t, e.SetBounds(models.TimeRange{Lower: 6 * time.Second, Upper: 15 * time.Second}))
	// the second tick is only received once the first has been handled
	assert.Equal(t, 2, clk.LastTicker().TickN(2))
	assert.Less(t, player.CurrentTime(), 6*time.Second)
	assert.Equal(t, 6*time.Second, e.Position())
	assert.True(t, e.IsPlaying())
}

func TestEngine_SetBoundsClampsPausedPosition(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, newScriptedPlayer(20*time.Second), nil)
	require.NoError(t, e.Load(ctx, testDraft(t, 20*time.Second, models.TimeRange{})))
	require.NoError(t, e.Seek(ctx, time.Second))

	require.NoError(t, e.SetBounds(models.TimeRange{Lower: 4 * time.Second, Upper: 9 * time.Second}))
	assert.Equal(t, 4*time.Second, e.Position())
	assert.False(t, e.EndReached())
}

func TestEngine_EndOfMediaPauses(t *testing.T) {
	ctx := context.Background()
	player := newScriptedPlayer(10 * time.Second)
	e := newTestEngine(t, player, clock.NewManual(time.Unix(0, 0)))
	require.NoError(t, e.Load(ctx, testDraft(t, 10*time.Second, models.TimeRange{})))
	require.NoError(t, e.TogglePlayPause(ctx))

	player.ended <- struct{}{}
	require.Eventually(t, e.EndReached, time.Second, time.Millisecond)
	assert.False(t, e.IsPlaying())
	assert.Equal(t, 10*time.Second, e.Position())
}

func TestEngine_UnsubscribeAndClose(t *testing.T) {
	ctx := context.Background()
	player := newScriptedPlayer(10 * time.Second)
	e := newTestEngine(t, player, nil)

	var kinds []EventKind
	unsubscribe := e.Subscribe(func(ev Event) { kinds = append(kinds, ev.Kind) })
	require.NoError(t, e.Load(ctx, testDraft(t, 10*time.Second, models.TimeRange{})))
	assert.Equal(t, []EventKind{EventLoaded}, kinds)

	unsubscribe()
	require.NoError(t, e.Seek(ctx, time.Second))
	assert.Len(t, kinds, 1)

	require.NoError(t, e.Close())
	assert.Nil(t, e.Asset())
	assert.True(t, player.closed)
	requireCode(t, e.Load(ctx, testDraft(t, 10*time.Second, models.TimeRange{})), apperrors.ErrInvalidState)
	assert.NoError(t, e.Close())
}

func TestEngine_Unload(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, newScriptedPlayer(10*time.Second), nil)

	var last Event
	e.Subscribe(func(ev Event) { last = ev })
	e.Unload()
	assert.Equal(t, Event{}, last, "unloading an unbound engine is silent")

	require.NoError(t, e.Load(ctx, testDraft(t, 10*time.Second, models.TimeRange{})))
	require.NoError(t, e.TogglePlayPause(ctx))
	require.True(t, e.IsPlaying())

	e.Unload()
	assert.Nil(t, e.Asset())
	assert.False(t, e.IsPlaying())
	assert.Equal(t, EventLoaded, last.Kind)
	assert.False(t, last.Loaded)
	requireCode(t, e.TogglePlayPause(ctx), apperrors.ErrInvalidState)
}
