// Package trim keeps the range selection, the thumbnail strip and the playback bounds of a draft consistent.
package trim

import (
	"context"
	"sync"
	"time"

	"clip-studio/internal/dispatch"
	"clip-studio/internal/models"
	"clip-studio/internal/observe"
	apperrors "clip-studio/pkg/errors"
	"clip-studio/pkg/logger"
)

// Defaults for a controller built with zero options
const (
	DefaultMinSliceWidth   = 40
	DefaultThumbnailHeight = 64
	DefaultMinWindow       = time.Second
)

// Playback is the part of the playback engine the controller drives
type Playback interface {
	SetBounds(r models.TimeRange) error
	SetScrubSuspended(suspended bool)
}

// Handle identifies a range handle
type Handle int

const (
	HandleNone Handle = iota
	HandleLower
	HandleUpper
)

func (h Handle) String() string {
	switch h {
	case HandleLower:
		return "lower"
	case HandleUpper:
		return "upper"
	}
	return "none"
}

// EventKind says which part of the controller changed
type EventKind int

const (
	EventRange EventKind = iota
	EventDrag
	EventThumbnails
	EventCommitted
)

// Event is a snapshot of the controller
type Event struct {
	Kind      EventKind
	Selection models.TimeRange
	Dragging  Handle
	Err       error
}

// Options configures a Controller
type Options struct {
	Playback        Playback
	Sampler         FrameSampler
	MinSliceWidth   int
	ThumbnailHeight int
	MinWindow       time.Duration
	Dispatcher      dispatch.Dispatcher
	Logger          *logger.Logger
}

// Controller edits the active range of one draft
type Controller struct {
	draft           *models.DraftAsset
	playback        Playback
	sampler         FrameSampler
	minSliceWidth   int
	thumbnailHeight int
	minWindow       time.Duration
	dispatcher      dispatch.Dispatcher
	logger          *logger.Logger

	thumbMu sync.Mutex
	thumbs  []models.ThumbnailImage

	mu        sync.Mutex
	selection models.TimeRange
	dragging  Handle

	obs *observe.Set[Event]
}

// NewController binds a controller to draft. The selection starts at the draft's active range.
func NewController(draft *models.DraftAsset, opts Options) (*Controller, error) {
	if draft == nil {
		return nil, apperrors.NewAppError(apperrors.ErrInvalidInput, "trim controller requires a draft", nil)
	}
	if opts.Playback == nil {
		return nil, apperrors.NewAppError(apperrors.ErrInvalidInput, "trim controller requires a playback engine", nil)
	}
	if opts.MinSliceWidth <= 0 {
		opts.MinSliceWidth = DefaultMinSliceWidth
	}
	if opts.ThumbnailHeight <= 0 {
		opts.ThumbnailHeight = DefaultThumbnailHeight
	}
	if opts.MinWindow <= 0 {
		opts.MinWindow = DefaultMinWindow
	}
	if opts.Dispatcher == nil {
		opts.Dispatcher = dispatch.Immediate{}
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewWithComponent("trim")
	}
	return &Controller{
		draft:           draft,
		playback:        opts.Playback,
		sampler:         opts.Sampler,
		minSliceWidth:   opts.MinSliceWidth,
		thumbnailHeight: opts.ThumbnailHeight,
		minWindow:       opts.MinWindow,
		dispatcher:      opts.Dispatcher,
		logger:          opts.Logger,
		selection:       draft.ActiveRange(),
		obs:             observe.NewSet[Event](),
	}, nil
}

// Draft returns the draft being edited
func (c *Controller) Draft() *models.DraftAsset {
	return c.draft
}

// Thumbnails samples one frame per slice of the timeline. The strip is generated once;
// later calls return the cached slices whatever the width. A slice that fails to sample stays blank.
func (c *Controller) Thumbnails(ctx context.Context, displayWidth int) ([]models.ThumbnailImage, error) {
	c.thumbMu.Lock()
	defer c.thumbMu.Unlock()
	if c.thumbs != nil {
		return append([]models.ThumbnailImage(nil), c.thumbs...), nil
	}

	count := displayWidth / c.minSliceWidth
	if count < 1 {
		count = 1
	}
	duration := c.draft.OriginalDuration()
	step := duration / time.Duration(count)

	thumbs := make([]models.ThumbnailImage, count)
	blank := 0
	for i := range thumbs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		offset := time.Duration(i) * step
		thumbs[i] = models.ThumbnailImage{Index: i, Offset: offset}
		if c.sampler == nil {
			blank++
			continue
		}
		img, err := c.sampler.Frame(ctx, c.draft.SourcePath(), offset, c.thumbnailHeight)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			blank++
			c.logger.WarnWithFields("Thumbnail slice left blank", map[string]interface{}{
				"slice":  i,
				"offset": offset,
				"error":  err.Error(),
			})
			continue
		}
		thumbs[i].Image = img
	}

	for _, th := range thumbs {
		if !th.Blank() {
			if c.draft.Thumbnail() == nil {
				c.draft.SetThumbnail(th.Image)
			}
			break
		}
	}

	c.thumbs = thumbs
	c.logger.DebugWithFields("Thumbnail strip generated", map[string]interface{}{
		"slices": count,
		"blank":  blank,
	})
	c.publish(Event{Kind: EventThumbnails, Selection: c.Selection(), Dragging: c.Dragging()})
	return append([]models.ThumbnailImage(nil), thumbs...), nil
}

// BeginDrag starts moving handle h. Playback scrubbing is suspended until EndDrag.
func (c *Controller) BeginDrag(h Handle) error {
	if h != HandleLower && h != HandleUpper {
		return apperrors.NewAppError(apperrors.ErrInvalidInput, "unknown range handle", nil)
	}
	c.mu.Lock()
	if c.dragging != HandleNone && c.dragging != h {
		c.mu.Unlock()
		return apperrors.NewAppError(apperrors.ErrOperationNotAllowed, "the other handle is being dragged", nil)
	}
	c.dragging = h
	ev := c.snapshotLocked(EventDrag, nil)
	c.mu.Unlock()

	c.playback.SetScrubSuspended(true)
	c.publish(ev)
	return nil
}

// DragLower moves the lower handle to t, clamped to the clip.
// The move is rejected, leaving the selection unchanged, when the window would be the minimum width or less.
func (c *Controller) DragLower(t time.Duration) (accepted bool, err error) {
	return c.drag(HandleLower, t)
}

// DragUpper moves the upper handle to t under the same rule as DragLower
func (c *Controller) DragUpper(t time.Duration) (accepted bool, err error) {
	return c.drag(HandleUpper, t)
}

func (c *Controller) drag(h Handle, t time.Duration) (bool, error) {
	c.mu.Lock()
	if c.dragging != h {
		c.mu.Unlock()
		return false, apperrors.NewAppError(apperrors.ErrInvalidState, h.String()+" handle is not being dragged", nil)
	}
	full := models.TimeRange{Lower: 0, Upper: c.draft.OriginalDuration()}
	t = full.Clamp(t)

	next := c.selection
	if h == HandleLower {
		next.Lower = t
	} else {
		next.Upper = t
	}
	if next.Duration() <= c.minWindow {
		c.mu.Unlock()
		return false, nil
	}
	c.selection = next
	ev := c.snapshotLocked(EventRange, nil)
	c.mu.Unlock()
	c.publish(ev)
	return true, nil
}

// EndDrag commits the selection to the draft and clamps playback to it
func (c *Controller) EndDrag() error {
	c.mu.Lock()
	if c.dragging == HandleNone {
		c.mu.Unlock()
		return apperrors.NewAppError(apperrors.ErrInvalidState, "no handle is being dragged", nil)
	}
	c.dragging = HandleNone
	selection := c.selection
	c.mu.Unlock()

	defer c.playback.SetScrubSuspended(false)

	if err := c.draft.SetActiveRange(selection); err != nil {
		appErr := apperrors.NewAppErrorWithContext(apperrors.ErrInvalidInput, "range rejected by draft", err,
			map[string]interface{}{"range": selection.String()})
		c.resetTo(c.draft.ActiveRange(), appErr)
		return appErr
	}
	if err := c.playback.SetBounds(selection); err != nil {
		c.publish(Event{Kind: EventCommitted, Selection: selection, Err: err})
		return err
	}

	c.logger.DebugWithFields("Trim range committed", map[string]interface{}{
		"draft": c.draft.ID(),
		"range": selection.String(),
	})
	c.publish(Event{Kind: EventCommitted, Selection: selection})
	return nil
}

func (c *Controller) resetTo(r models.TimeRange, err error) {
	c.mu.Lock()
	c.selection = r
	ev := c.snapshotLocked(EventCommitted, err)
	c.mu.Unlock()
	c.publish(ev)
}

// Selection returns the range shown by the handles
func (c *Controller) Selection() models.TimeRange {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selection
}

// Dragging returns the handle being dragged
func (c *Controller) Dragging() Handle {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dragging
}

// Subscribe registers fn for controller events until the returned function is called
func (c *Controller) Subscribe(fn func(Event)) (unsubscribe func()) {
	return c.obs.Add(fn)
}

func (c *Controller) snapshotLocked(kind EventKind, err error) Event {
	return Event{Kind: kind, Selection: c.selection, Dragging: c.dragging, Err: err}
}

func (c *Controller) publish(events ...Event) {
	c.obs.Notify(c.dispatcher.Do, events...)
}
