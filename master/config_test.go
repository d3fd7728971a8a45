package master

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/ardnew/softspi/master/hal"
	"github.com/ardnew/softspi/pkg"
)

func TestDecodeConfig(t *testing.T) {
	attrs := map[string]any{
		"devices": []any{
			map[string]any{"chip_select": 0, "signal_mode": 3},
			map[string]any{
				"chip_select":     2,
				"cs_active_high":  true,
				"hw_chip_select":  true,
				"cs_setup_clocks": 4,
			},
		},
		"idle":              map[string]any{"signal_mode": 1, "data_out_high": true},
		"default_clock_khz": 12000,
		"chunk_timeout":     "5ms",
		"residual":          "unpacked",
	}

	got, err := DecodeConfig(attrs)
	if err != nil {
		t.Fatalf("DecodeConfig() error = %v", err)
	}
	want := Config{
		Devices: []DeviceConfig{
			{ChipSelect: 0, SignalMode: hal.SignalMode3},
			{ChipSelect: 2, ChipSelectActiveHigh: true, HardwareChipSelect: true, CSSetupClocks: 4},
		},
		Idle:            IdleConfig{SignalMode: hal.SignalMode1, DataOutHigh: true},
		DefaultClockKHz: 12000,
		ChunkTimeout:    5 * time.Millisecond,
		Residual:        ResidualUnpacked,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("DecodeConfig() mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeConfigDefaults(t *testing.T) {
	got, err := DecodeConfig(map[string]any{})
	if err != nil {
		t.Fatalf("DecodeConfig() error = %v", err)
	}
	if diff := cmp.Diff(DefaultConfig(), got); diff != "" {
		t.Errorf("DecodeConfig() mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeConfigErrors(t *testing.T) {
	tests := []struct {
		name  string
		attrs map[string]any
		want  error
	}{
		{"unknown key", map[string]any{"baud": 9600}, nil},
		{"bad duration", map[string]any{"chunk_timeout": "soon"}, nil},
		{"bad residual", map[string]any{"residual": "dropped"}, pkg.ErrBadParameter},
		{"negative timeout", map[string]any{"chunk_timeout": "-1ms"}, pkg.ErrBadParameter},
		{"timeout wraps clock", map[string]any{"chunk_timeout": "1193h2m47.296s"}, pkg.ErrBadParameter},
		{"timeout at clock limit", map[string]any{"chunk_timeout": "1193h2m47.295s"}, pkg.ErrBadParameter},
		{"chip select range", map[string]any{
			"devices": []any{map[string]any{"chip_select": MaxChipSelects}},
		}, pkg.ErrUnsupportedChipSelect},
		{"duplicate chip select", map[string]any{
			"devices": []any{map[string]any{"chip_select": 1}, map[string]any{"chip_select": 1}},
		}, pkg.ErrBadParameter},
		{"signal mode", map[string]any{
			"devices": []any{map[string]any{"signal_mode": 4}},
		}, pkg.ErrBadParameter},
		{"idle signal mode", map[string]any{"idle": map[string]any{"signal_mode": 9}}, pkg.ErrBadParameter},
		{"setup clocks", map[string]any{
			"devices": []any{map[string]any{"cs_setup_clocks": -2}},
		}, pkg.ErrBadParameter},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeConfig(tt.attrs)
			if err == nil {
				t.Fatal("DecodeConfig() error = nil")
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Errorf("DecodeConfig() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestValidateDefaultsResidual(t *testing.T) {
	cfg := Config{Devices: []DeviceConfig{{}}}
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	if cfg.Residual != ResidualPadded {
		t.Errorf("Residual = %q, want %q", cfg.Residual, ResidualPadded)
	}
	if err := (&Config{}).Validate(); !errors.Is(err, pkg.ErrBadParameter) {
		t.Errorf("Validate(no devices) error = %v", err)
	}
}

func TestDeviceSetupCycles(t *testing.T) {
	tests := []struct{ clocks, want int }{
		{0, 0}, {1, 1}, {2, 1}, {3, 2}, {5, 3}, {40, 3},
	}
	for _, tt := range tests {
		if got := (DeviceConfig{CSSetupClocks: tt.clocks}).setupCycles(); got != tt.want {
			t.Errorf("setupCycles(%d) = %d, want %d", tt.clocks, got, tt.want)
		}
	}
}

func TestChunkTimeoutLimit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ChunkTimeout = time.Duration(MaxTimeMS-1) * time.Millisecond
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if c := newController(NewRegistry(nil), 0, nil, cfg); c.timeoutMS != MaxTimeMS-1 {
		t.Errorf("timeoutMS = %d, want %d", c.timeoutMS, MaxTimeMS-1)
	}

	cfg.ChunkTimeout = time.Duration(1<<32) * time.Millisecond
	if err := cfg.Validate(); !errors.Is(err, pkg.ErrBadParameter) {
		t.Errorf("Validate(2^32 ms) error = %v, want ErrBadParameter", err)
	}
}
