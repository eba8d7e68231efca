package device

import "sync"

// registry tracks which devices are held so inputs stay exclusive
type registry struct {
	mu   sync.Mutex
	held map[string]bool
}

func newRegistry() *registry {
	return &registry{held: make(map[string]bool)}
}

func (r *registry) acquire(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.held[id] {
		return ErrDeviceBusy
	}
	r.held[id] = true
	return nil
}

func (r *registry) release(id string) {
	r.mu.Lock()
	delete(r.held, id)
	r.mu.Unlock()
}

func (r *registry) isHeld(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.held[id]
}

// input is the Input shared by both providers
type input struct {
	mu     sync.Mutex
	dev    Device
	zoom   float64
	closed bool
	reg    *registry
}

func newInput(dev Device, reg *registry) *input {
	return &input{dev: dev, zoom: dev.ClampZoom(1), reg: reg}
}

func (in *input) Device() Device {
	return in.dev
}

func (in *input) Zoom() float64 {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.zoom
}

func (in *input) SetZoom(factor float64) error {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.closed {
		return ErrInputClosed
	}
	in.zoom = in.dev.ClampZoom(factor)
	return nil
}

func (in *input) Close() error {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.closed {
		return nil
	}
	in.closed = true
	in.reg.release(in.dev.ID)
	return nil
}
