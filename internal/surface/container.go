package surface

import (
	"sync"

	"candleview/internal/model"
)

// Container is an in-memory mount point. Viewport changes are simulated
// with SetDimensions, which notifies every registered resize subscriber.
type Container struct {
	id   string
	sink Sink

	mu       sync.Mutex
	width    int
	height   int
	nextSub  int
	subs     map[int]func(width, height int)
	surfaces []*Surface
}

// NewContainer returns a container of the given size. Surfaces created in it
// forward their commands to sink when it is non-nil.
func NewContainer(id string, width, height int, sink Sink) *Container {
	return &Container{
		id:     id,
		sink:   sink,
		width:  width,
		height: height,
		subs:   make(map[int]func(width, height int)),
	}
}

func (c *Container) ID() string { return c.id }

func (c *Container) Dimensions() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.width, c.height
}

// CreateSurface builds a new Surface; the most recent one is returned by Surface.
func (c *Container) CreateSurface(opts model.SurfaceOptions) (model.Surface, error) {
	s := New(opts, c.sink)
	c.mu.Lock()
	c.surfaces = append(c.surfaces, s)
	c.mu.Unlock()
	return s, nil
}

// OnResize registers fn and returns its unsubscribe function. Calling the
// returned function more than once is harmless.
func (c *Container) OnResize(fn func(width, height int)) func() {
	c.mu.Lock()
	key := c.nextSub
	c.nextSub++
	c.subs[key] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.subs, key)
		c.mu.Unlock()
	}
}

// SetDimensions changes the container size and notifies subscribers.
func (c *Container) SetDimensions(width, height int) {
	c.mu.Lock()
	c.width, c.height = width, height
	fns := make([]func(int, int), 0, len(c.subs))
	for _, fn := range c.subs {
		fns = append(fns, fn)
	}
	c.mu.Unlock()

	for _, fn := range fns {
		fn(width, height)
	}
}

// Subscribers returns the number of registered resize callbacks.
func (c *Container) Subscribers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subs)
}

// Surface returns the most recently created surface, or nil.
func (c *Container) Surface() *Surface {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.surfaces) == 0 {
		return nil
	}
	return c.surfaces[len(c.surfaces)-1]
}
