package master

import (
	"context"
	"errors"
	"slices"
	"testing"

	"golang.org/x/sync/errgroup"

	"github.com/ardnew/softspi/master/hal"
	"github.com/ardnew/softspi/master/hal/sim"
	"github.com/ardnew/softspi/pkg"
)

// board returns a registry with one simulated controller per instance.
func board(opts sim.Options, cfg Config) (*Registry, []*sim.Controller) {
	hws := make([]*sim.Controller, MaxInstances)
	for i := range hws {
		hws[i] = sim.New(opts)
	}
	reg := NewRegistry(ProviderFunc(func(instance int) (hal.Controller, Config, error) {
		return hws[instance], cfg, nil
	}))
	return reg, hws
}

func TestRegistryOpenState(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Devices = append(cfg.Devices, DeviceConfig{ChipSelect: 2, ChipSelectActiveHigh: true})
	cfg.Idle.SignalMode = hal.SignalMode2
	cfg.DefaultClockKHz = 400
	reg, hws := board(sim.Options{}, cfg)

	c, err := reg.Open(context.Background(), 1)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer c.Close()

	hw := hws[1]
	if !hw.ClockEnabled() {
		t.Error("clock disabled after open")
	}
	if !hw.ChipSelectHigh(0) || hw.ChipSelectHigh(2) {
		t.Error("chip selects not driven inactive")
	}
	if hw.SignalMode() != hal.SignalMode2 {
		t.Errorf("SignalMode() = %v, want mode2", hw.SignalMode())
	}
	if hw.ClockKHz() != 400 {
		t.Errorf("ClockKHz() = %d, want 400", hw.ClockKHz())
	}
	if hws[0].ClockEnabled() {
		t.Error("unopened instance enabled")
	}
	if c.Instance() != 1 {
		t.Errorf("Instance() = %d, want 1", c.Instance())
	}
}

func TestRegistryReferenceCount(t *testing.T) {
	reg, hws := board(sim.Options{}, DefaultConfig())
	ctx := context.Background()

	a, err := reg.Open(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	b, err := reg.Open(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Fatal("second open returned a different handle")
	}
	if n := len(slices.DeleteFunc(hws[0].History(), func(h string) bool { return h[:4] != "Init" })); n != 1 {
		t.Errorf("hardware initialized %d times, want 1", n)
	}

	if err := reg.Close(a); err != nil {
		t.Fatal(err)
	}
	if !hws[0].ClockEnabled() {
		t.Fatal("clock disabled with a handle still open")
	}
	if _, ok := reg.Lookup(0); !ok {
		t.Fatal("Lookup() lost the open instance")
	}
	if _, err := b.Transaction(ctx, 0, 1000, nil, []byte{1}, 1, 8); err != nil {
		t.Fatalf("Transaction() on remaining handle error = %v", err)
	}

	if err := b.Close(); err != nil {
		t.Fatal(err)
	}
	if hws[0].ClockEnabled() {
		t.Error("clock enabled after last close")
	}
	if _, ok := reg.Lookup(0); ok {
		t.Error("Lookup() found a closed instance")
	}
	if err := b.Close(); !errors.Is(err, pkg.ErrClosed) {
		t.Errorf("third Close() error = %v, want ErrClosed", err)
	}
	if err := reg.Close(nil); !errors.Is(err, pkg.ErrBadParameter) {
		t.Errorf("Close(nil) error = %v", err)
	}
}

func TestRegistryInvalidInstance(t *testing.T) {
	reg, _ := board(sim.Options{}, DefaultConfig())
	for _, i := range []int{-1, MaxInstances} {
		if _, err := reg.Open(context.Background(), i); !errors.Is(err, pkg.ErrInvalidInstance) {
			t.Errorf("Open(%d) error = %v, want ErrInvalidInstance", i, err)
		}
	}

	small := NewRegistry(ProviderFunc(func(int) (hal.Controller, Config, error) {
		return sim.New(sim.Options{}), DefaultConfig(), nil
	}), WithInstances(1))
	if _, err := small.Open(context.Background(), 1); !errors.Is(err, pkg.ErrInvalidInstance) {
		t.Errorf("Open(1) error = %v, want ErrInvalidInstance", err)
	}
}

func TestRegistryInitFailure(t *testing.T) {
	cause := errors.New("reset timeout")
	reg, hws := board(sim.Options{InitErr: cause}, DefaultConfig())

	_, err := reg.Open(context.Background(), 0)
	if !errors.Is(err, pkg.ErrInitFailed) || !errors.Is(err, cause) {
		t.Fatalf("Open() error = %v, want ErrInitFailed wrapping cause", err)
	}
	if _, ok := reg.Lookup(0); ok {
		t.Error("failed instance registered")
	}
	if !slices.Contains(hws[0].History(), "Close()") {
		t.Error("partially opened hardware not closed")
	}
}

func TestRegistryBadConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Devices = append(cfg.Devices, DeviceConfig{ChipSelect: 0})
	reg, hws := board(sim.Options{}, cfg)

	if _, err := reg.Open(context.Background(), 0); !errors.Is(err, pkg.ErrBadParameter) {
		t.Fatalf("Open() error = %v, want ErrBadParameter", err)
	}
	if hws[0].ClockEnabled() {
		t.Error("hardware initialized with invalid config")
	}
}

func TestRegistryProviderError(t *testing.T) {
	cause := errors.New("no such controller")
	reg := NewRegistry(ProviderFunc(func(int) (hal.Controller, Config, error) {
		return nil, Config{}, cause
	}))
	if _, err := reg.Open(context.Background(), 0); !errors.Is(err, pkg.ErrInitFailed) || !errors.Is(err, cause) {
		t.Errorf("Open() error = %v", err)
	}
}

func TestRegistryConcurrentOpenClose(t *testing.T) {
	reg, hws := board(sim.Options{}, DefaultConfig())
	ctx := context.Background()

	var g errgroup.Group
	for w := range 16 {
		instance := w % 2
		g.Go(func() error {
			for range 25 {
				c, err := reg.Open(ctx, instance)
				if err != nil {
					return err
				}
				if _, err := c.Transaction(ctx, 0, 1000, nil, []byte{byte(w)}, 1, 8); err != nil {
					return err
				}
				if err := c.Close(); err != nil {
					return err
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
	for i := range 2 {
		if hws[i].ClockEnabled() {
			t.Errorf("instance %d left enabled", i)
		}
		if _, ok := reg.Lookup(i); ok {
			t.Errorf("instance %d still registered", i)
		}
	}
}

func TestRegistryCloseAll(t *testing.T) {
	reg, hws := board(sim.Options{}, DefaultConfig())
	ctx := context.Background()
	for i := range 3 {
		if _, err := reg.Open(ctx, i); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := reg.Open(ctx, 0); err != nil {
		t.Fatal(err)
	}
	if err := reg.CloseAll(); err != nil {
		t.Fatal(err)
	}
	for i := range 3 {
		if hws[i].ClockEnabled() {
			t.Errorf("instance %d left enabled", i)
		}
	}
}
