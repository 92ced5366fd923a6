package pipeline

import (
	"fmt"
	"runtime"

	"github.com/BurntSushi/toml"
)

// Processing order constants for Config.Order.
const (
	// OrderSimplifyFirst decimates before smoothing. Decimation on the raw
	// blocky surface is cheaper and smoothing afterwards relaxes the
	// coarser mesh.
	OrderSimplifyFirst = "simplify-smooth"

	// OrderSmoothFirst smooths the full-resolution surface first and
	// decimates the relaxed result.
	OrderSmoothFirst = "smooth-simplify"
)

// Config collects the tunables of a meshing run. The zero value is not
// usable; start from DefaultConfig or LoadConfig.
type Config struct {
	// Workers bounds concurrent block extraction. Zero or negative selects
	// runtime.NumCPU.
	Workers int `toml:"workers"`

	// Epsilon is the coordinate quantization used when merging vertices at
	// block seams.
	Epsilon float64 `toml:"epsilon"`

	// DecimateFraction is the target fraction of faces kept after
	// simplification. 1 or greater disables simplification. Ignored when
	// DecimateCount is set.
	DecimateFraction float64 `toml:"decimate_fraction"`

	// DecimateCount, when positive, is an absolute face budget that
	// overrides DecimateFraction.
	DecimateCount int `toml:"decimate_count"`

	// MaxDeviation bounds how far simplification may move the surface, in
	// voxel units. Zero or negative disables the check.
	MaxDeviation float64 `toml:"max_deviation"`

	// SmoothIterations is the number of Laplacian smoothing passes. Zero
	// disables smoothing.
	SmoothIterations int `toml:"smooth_iterations"`

	// SmoothRelax is the per-iteration relaxation factor in (0, 1].
	SmoothRelax float64 `toml:"smooth_relax"`

	// Order selects whether simplification runs before or after smoothing.
	Order string `toml:"order"`

	// CapBounds closes surfaces at the volume extent. When false, labels
	// touching the volume boundary produce open meshes there and seam
	// checking excuses those edges.
	CapBounds bool `toml:"cap_bounds"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() Config {
	return Config{
		Workers:          0,
		Epsilon:          1e-6,
		DecimateFraction: 1,
		DecimateCount:    0,
		MaxDeviation:     1,
		SmoothIterations: 0,
		SmoothRelax:      1,
		Order:            OrderSimplifyFirst,
		CapBounds:        true,
	}
}

// LoadConfig reads a TOML configuration file. Fields absent from the file
// keep their DefaultConfig values.
func LoadConfig(path string) (Config, error) {
	c := DefaultConfig()
	if _, err := toml.DecodeFile(path, &c); err != nil {
		return Config{}, fmt.Errorf("loading config %q: %w", path, err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, fmt.Errorf("config %q: %w", path, err)
	}
	return c, nil
}

// Validate reports the first invalid field, if any.
func (c *Config) Validate() error {
	if c.Epsilon <= 0 {
		return fmt.Errorf("epsilon must be positive, got %g", c.Epsilon)
	}
	if c.DecimateFraction < 0 {
		return fmt.Errorf("decimate_fraction must be non-negative, got %g", c.DecimateFraction)
	}
	if c.DecimateCount < 0 {
		return fmt.Errorf("decimate_count must be non-negative, got %d", c.DecimateCount)
	}
	if c.SmoothIterations < 0 {
		return fmt.Errorf("smooth_iterations must be non-negative, got %d", c.SmoothIterations)
	}
	if c.SmoothIterations > 0 && (c.SmoothRelax <= 0 || c.SmoothRelax > 1) {
		return fmt.Errorf("smooth_relax must be in (0, 1], got %g", c.SmoothRelax)
	}
	switch c.Order {
	case OrderSimplifyFirst, OrderSmoothFirst:
	default:
		return fmt.Errorf("order must be %q or %q, got %q", OrderSimplifyFirst, OrderSmoothFirst, c.Order)
	}
	return nil
}

func (c *Config) workers() int {
	if c.Workers > 0 {
		return c.Workers
	}
	return runtime.NumCPU()
}
