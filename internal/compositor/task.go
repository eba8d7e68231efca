package compositor

import (
	"context"

	"clip-studio/internal/models"
	"clip-studio/internal/segment"
)

// Task is a running export. Cancelling it removes any partial output.
type Task struct {
	cancel context.CancelFunc
	done   chan struct{}
	result Result
	err    error
}

func start(ctx context.Context, job func(ctx context.Context) (Result, error)) *Task {
	ctx, cancel := context.WithCancel(ctx)
	t := &Task{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(t.done)
		defer cancel()
		t.result, t.err = job(ctx)
	}()
	return t
}

// StartMerge runs Merge in the background
func (c *Compositor) StartMerge(ctx context.Context, segments []segment.Segment) *Task {
	segs := append([]segment.Segment(nil), segments...)
	return start(ctx, func(ctx context.Context) (Result, error) {
		return c.Merge(ctx, segs)
	})
}

// StartCrop runs Crop in the background
func (c *Compositor) StartCrop(ctx context.Context, source string, r models.TimeRange) *Task {
	return start(ctx, func(ctx context.Context) (Result, error) {
		return c.Crop(ctx, source, r)
	})
}

// Done is closed when the task has finished
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Cancel stops the task; Wait then reports an export-canceled error
func (t *Task) Cancel() {
	t.cancel()
}

// Wait blocks until the task finishes or ctx ends. Giving up on ctx does not cancel the task.
func (t *Task) Wait(ctx context.Context) (Result, error) {
	select {
	case <-t.done:
		return t.result, t.err
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}
