package master

import (
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"

	"github.com/ardnew/softspi/master/hal"
	"github.com/ardnew/softspi/pkg"
)

// Controller limits.
const (
	MaxInstances   = 4   // Controller instances addressed by a registry
	MaxChipSelects = 4   // Chip-select lines per controller
	MaxChunkWords  = 128 // Words staged per chunk
	MaxSetupCycles = 3   // Hardware chip-select setup field limit
)

// maxChunkTimeout is the first timeout the wrapping millisecond clock cannot
// measure.
const maxChunkTimeout = time.Duration(MaxTimeMS) * time.Millisecond

// ResidualPolicy selects how a packed chunk too small to fill one word is
// shifted.
type ResidualPolicy string

// Residual policies.
const (
	// ResidualPadded shifts the residue in a zero-padded packed word.
	ResidualPadded ResidualPolicy = "padded"

	// ResidualUnpacked switches the rest of the transfer to one packet per
	// word once fewer packets than fill a word remain.
	ResidualUnpacked ResidualPolicy = "unpacked"
)

// DeviceConfig describes the peripheral wired to one chip select.
type DeviceConfig struct {
	ChipSelect           int            `json:"chip_select"`
	SignalMode           hal.SignalMode `json:"signal_mode"`
	ChipSelectActiveHigh bool           `json:"cs_active_high"`
	HardwareChipSelect   bool           `json:"hw_chip_select"`
	CSSetupClocks        int            `json:"cs_setup_clocks"`
}

// activeLevel returns the line level that selects the device.
func (d DeviceConfig) activeLevel() bool {
	return d.ChipSelectActiveHigh
}

// setupCycles returns the hardware setup field for the configured clocks.
func (d DeviceConfig) setupCycles() int {
	return min((d.CSSetupClocks+1)/2, MaxSetupCycles)
}

// IdleConfig describes the bus state between transactions.
type IdleConfig struct {
	SignalMode  hal.SignalMode `json:"signal_mode"`
	Tristate    bool           `json:"tristate"`
	DataOutHigh bool           `json:"data_out_high"`
}

// Config is the board configuration of one controller instance.
type Config struct {
	Devices         []DeviceConfig `json:"devices"`
	Idle            IdleConfig     `json:"idle"`
	DefaultClockKHz uint32         `json:"default_clock_khz"`

	// ChunkTimeout bounds the wait for each chunk. Zero waits forever.
	ChunkTimeout time.Duration `json:"chunk_timeout"`

	// Residual defaults to ResidualPadded.
	Residual ResidualPolicy `json:"residual"`

	// DisablePacked forces one packet per word for every width.
	DisablePacked bool `json:"disable_packed"`
}

// DefaultConfig returns a configuration with one mode-0, active-low device on
// chip select 0, software chip-select control and no chunk timeout.
func DefaultConfig() Config {
	return Config{
		Devices:  []DeviceConfig{{ChipSelect: 0}},
		Residual: ResidualPadded,
	}
}

// Validate ensures all parts of the config are valid.
func (conf *Config) Validate() error {
	if len(conf.Devices) == 0 {
		return errors.Wrap(pkg.ErrBadParameter, "no devices configured")
	}
	seen := make(map[int]bool, len(conf.Devices))
	for i, d := range conf.Devices {
		if d.ChipSelect < 0 || d.ChipSelect >= MaxChipSelects {
			return errors.Wrapf(pkg.ErrUnsupportedChipSelect, "devices.%d: chip select %d", i, d.ChipSelect)
		}
		if seen[d.ChipSelect] {
			return errors.Wrapf(pkg.ErrBadParameter, "devices.%d: duplicate chip select %d", i, d.ChipSelect)
		}
		seen[d.ChipSelect] = true
		if !d.SignalMode.Valid() {
			return errors.Wrapf(pkg.ErrBadParameter, "devices.%d: signal mode %d", i, d.SignalMode)
		}
		if d.CSSetupClocks < 0 {
			return errors.Wrapf(pkg.ErrBadParameter, "devices.%d: cs_setup_clocks %d", i, d.CSSetupClocks)
		}
	}
	if !conf.Idle.SignalMode.Valid() {
		return errors.Wrapf(pkg.ErrBadParameter, "idle: signal mode %d", conf.Idle.SignalMode)
	}
	if conf.ChunkTimeout < 0 || conf.ChunkTimeout >= maxChunkTimeout {
		return errors.Wrapf(pkg.ErrBadParameter, "chunk_timeout %v", conf.ChunkTimeout)
	}
	switch conf.Residual {
	case "":
		conf.Residual = ResidualPadded
	case ResidualPadded, ResidualUnpacked:
	default:
		return errors.Wrapf(pkg.ErrBadParameter, "residual %q", conf.Residual)
	}
	return nil
}

// DecodeConfig decodes a generic attribute map, such as one read from a JSON
// board file, into a validated Config. Durations may be given as strings.
// A map without devices selects the single default device.
func DecodeConfig(attrs map[string]any) (Config, error) {
	conf := Config{Residual: ResidualPadded}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:     "json",
		Result:      &conf,
		ErrorUnused: true,
		DecodeHook:  mapstructure.StringToTimeDurationHookFunc(),
	})
	if err != nil {
		return Config{}, errors.Wrap(err, "config decoder")
	}
	if err := decoder.Decode(attrs); err != nil {
		return Config{}, errors.Wrap(err, "decode config")
	}
	if len(conf.Devices) == 0 {
		conf.Devices = DefaultConfig().Devices
	}
	if err := conf.Validate(); err != nil {
		return Config{}, err
	}
	return conf, nil
}
