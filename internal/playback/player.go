package playback

import (
	"context"
	"errors"
	"os"
	"sync"
	"time"

	"clip-studio/internal/clock"
)

// Player is the single media resource an Engine drives
type Player interface {
	// Load binds the player to path and returns the media duration
	Load(ctx context.Context, path string) (time.Duration, error)
	Play(rate float64) error
	Pause()
	// Seek moves to t and returns the position actually reached
	Seek(ctx context.Context, t time.Duration) (time.Duration, error)
	CurrentTime() time.Duration
	// Ended receives a value each time playback reaches the end of the media
	Ended() <-chan struct{}
	Close() error
}

// Prober reads the duration of a media file
type Prober interface {
	Duration(ctx context.Context, path string) (time.Duration, error)
}

var (
	ErrNotLoaded  = errors.New("player has no media loaded")
	ErrEmptyMedia = errors.New("media has no duration")
)

// ClockPlayer is a headless player whose position follows a clock.
// It renders nothing; the editor window draws thumbnails at the reported position.
type ClockPlayer struct {
	clock  clock.Clock
	prober Prober

	mu        sync.Mutex
	path      string
	duration  time.Duration
	base      time.Duration
	startedAt time.Time
	rate      float64
	playing   bool
	ended     chan struct{}
}

// NewClockPlayer creates a player that reads durations with prober
func NewClockPlayer(c clock.Clock, prober Prober) *ClockPlayer {
	if c == nil {
		c = clock.System{}
	}
	return &ClockPlayer{clock: c, prober: prober, ended: make(chan struct{}, 1)}
}

func (p *ClockPlayer) Load(ctx context.Context, path string) (time.Duration, error) {
	if _, err := os.Stat(path); err != nil {
		return 0, err
	}
	d, err := p.prober.Duration(ctx, path)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, ErrEmptyMedia
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.path = path
	p.duration = d
	p.base = 0
	p.playing = false
	p.rate = 1
	return d, nil
}

func (p *ClockPlayer) Play(rate float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.path == "" {
		return ErrNotLoaded
	}
	if p.base >= p.duration {
		p.base = 0
	}
	p.rate = rate
	p.startedAt = p.clock.Now()
	p.playing = true
	return nil
}

func (p *ClockPlayer) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.base = p.currentLocked()
	p.playing = false
}

func (p *ClockPlayer) Seek(ctx context.Context, t time.Duration) (time.Duration, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.path == "" {
		return 0, ErrNotLoaded
	}
	if t < 0 {
		t = 0
	}
	if t > p.duration {
		t = p.duration
	}
	p.base = t
	p.startedAt = p.clock.Now()
	return t, nil
}

func (p *ClockPlayer) CurrentTime() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.currentLocked()
}

func (p *ClockPlayer) currentLocked() time.Duration {
	if !p.playing {
		return p.base
	}
	elapsed := p.clock.Now().Sub(p.startedAt)
	pos := p.base + time.Duration(float64(elapsed)*p.rate)
	if pos >= p.duration {
		pos = p.duration
		p.base = pos
		p.playing = false
		select {
		case p.ended <- struct{}{}:
		default:
		}
	}
	return pos
}

func (p *ClockPlayer) Ended() <-chan struct{} {
	return p.ended
}

// Path returns the bound file, or "" when unloaded
func (p *ClockPlayer) Path() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.path
}

func (p *ClockPlayer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.path = ""
	p.duration = 0
	p.base = 0
	p.playing = false
	return nil
}
