package playback

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clip-studio/internal/clock"
)

type proberFunc func(ctx context.Context, path string) (time.Duration, error)

func (f proberFunc) Duration(ctx context.Context, path string) (time.Duration, error) {
	return f(ctx, path)
}

func mediaFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clip.mp4")
	require.NoError(t, os.WriteFile(path, []byte("media"), 0o600))
	return path
}

func TestClockPlayer_FollowsClockAtRate(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewManual(time.Unix(0, 0))
	p := NewClockPlayer(clk, fixedProber(10*time.Second))

	d, err := p.Load(ctx, mediaFile(t))
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, d)

	require.NoError(t, p.Play(2))
	clk.Advance(time.Second)
	assert.Equal(t, 2*time.Second, p.CurrentTime())

	p.Pause()
	clk.Advance(time.Second)
	assert.Equal(t, 2*time.Second, p.CurrentTime())

	reached, err := p.Seek(ctx, 7*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 7*time.Second, reached)

	reached, err = p.Seek(ctx, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, reached, "seek clamps to the media")
}

func TestClockPlayer_SignalsEnd(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewManual(time.Unix(0, 0))
	p := NewClockPlayer(clk, fixedProber(3*time.Second))
	_, err := p.Load(ctx, mediaFile(t))
	require.NoError(t, err)

	require.NoError(t, p.Play(1))
	clk.Advance(5 * time.Second)
	assert.Equal(t, 3*time.Second, p.CurrentTime())

	select {
	case <-p.Ended():
	default:
		t.Fatal("expected end of media signal")
	}

	require.NoError(t, p.Play(1))
	assert.Equal(t, time.Duration(0), p.CurrentTime(), "playing after the end restarts")
}

func TestClockPlayer_LoadErrors(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewManual(time.Unix(0, 0))

	p := NewClockPlayer(clk, fixedProber(time.Second))
	_, err := p.Load(ctx, filepath.Join(t.TempDir(), "missing.mp4"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	p = NewClockPlayer(clk, fixedProber(0))
	_, err = p.Load(ctx, mediaFile(t))
	assert.ErrorIs(t, err, ErrEmptyMedia)

	probeErr := errors.New("invalid data found when processing input")
	p = NewClockPlayer(clk, proberFunc(func(context.Context, string) (time.Duration, error) { return 0, probeErr }))
	_, err = p.Load(ctx, mediaFile(t))
	assert.ErrorIs(t, err, probeErr)

	assert.ErrorIs(t, p.Play(1), ErrNotLoaded)
	_, err = p.Seek(ctx, time.Second)
	assert.ErrorIs(t, err, ErrNotLoaded)
}

func TestClockPlayer_Close(t *testing.T) {
	clk := clock.NewManual(time.Unix(0, 0))
	p := NewClockPlayer(clk, fixedProber(time.Second))
	path := mediaFile(t)
	_, err := p.Load(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, path, p.Path())

	require.NoError(t, p.Close())
	assert.Empty(t, p.Path())
	assert.ErrorIs(t, p.Play(1), ErrNotLoaded)
}
