package master

import (
	"context"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/ardnew/softspi/master/hal"
	"github.com/ardnew/softspi/pkg"
)

// Provider supplies the hardware and board configuration of a controller
// instance when it is first opened.
type Provider interface {
	Open(instance int) (hal.Controller, Config, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(instance int) (hal.Controller, Config, error)

// Open calls f.
func (f ProviderFunc) Open(instance int) (hal.Controller, Config, error) {
	return f(instance)
}

// Registry owns the controller instances of a board. Opening an instance
// that is already open returns the shared handle with its reference count
// incremented.
type Registry struct {
	provider  Provider
	clk       clock.Clock
	instances int

	mu      sync.Mutex
	handles map[int]*Controller
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithClock sets the time source used for chunk timeouts.
func WithClock(clk clock.Clock) RegistryOption {
	return func(r *Registry) {
		r.clk = clk
	}
}

// WithInstances sets the number of addressable controller instances.
func WithInstances(n int) RegistryOption {
	return func(r *Registry) {
		r.instances = n
	}
}

// NewRegistry returns a registry backed by provider.
func NewRegistry(provider Provider, opts ...RegistryOption) *Registry {
	r := &Registry{
		provider:  provider,
		clk:       clock.New(),
		instances: MaxInstances,
		handles:   make(map[int]*Controller),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Open returns the handle of instance, initializing the hardware on first
// open.
func (r *Registry) Open(ctx context.Context, instance int) (*Controller, error) {
	if instance < 0 || instance >= r.instances {
		return nil, errors.Wrapf(pkg.ErrInvalidInstance, "instance %d", instance)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.handles[instance]; ok {
		c.refs++
		pkg.LogDebug(pkg.ComponentRegistry, "controller reopened", "instance", instance, "refs", c.refs)
		return c, nil
	}

	h, cfg, err := r.provider.Open(instance)
	if err != nil {
		return nil, errors.Wrapf(multierr.Append(pkg.ErrInitFailed, err), "instance %d", instance)
	}
	if err := cfg.Validate(); err != nil {
		return nil, multierr.Append(err, h.Close())
	}

	c := newController(r, instance, h, cfg)
	if err := c.init(ctx); err != nil {
		err = multierr.Combine(errors.Wrapf(pkg.ErrInitFailed, "instance %d", instance), err, h.Close())
		pkg.LogError(pkg.ComponentRegistry, "controller init failed", "instance", instance, "err", err)
		return nil, err
	}
	c.refs = 1
	r.handles[instance] = c

	pkg.LogInfo(pkg.ComponentRegistry, "controller opened",
		"instance", instance, "devices", len(cfg.Devices), "fifo_depth", c.fifoDepth)
	return c, nil
}

// Close releases one reference to c. The last reference shuts the hardware
// down and removes the instance.
func (r *Registry) Close(c *Controller) error {
	if c == nil {
		return errors.Wrap(pkg.ErrBadParameter, "nil controller")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.handles[c.instance] != c || c.refs == 0 {
		return errors.Wrapf(pkg.ErrClosed, "instance %d", c.instance)
	}
	if c.refs--; c.refs > 0 {
		pkg.LogDebug(pkg.ComponentRegistry, "controller reference released", "instance", c.instance, "refs", c.refs)
		return nil
	}

	delete(r.handles, c.instance)
	err := c.shutdown()
	pkg.LogInfo(pkg.ComponentRegistry, "controller closed", "instance", c.instance)
	return err
}

// Lookup returns the open handle of instance without taking a reference.
func (r *Registry) Lookup(instance int) (*Controller, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.handles[instance]
	return c, ok
}

// CloseAll shuts down every open instance regardless of reference counts.
func (r *Registry) CloseAll() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var err error
	for instance, c := range r.handles {
		c.refs = 0
		delete(r.handles, instance)
		err = multierr.Append(err, c.shutdown())
	}
	return err
}
