package connectivity

import (
	"fmt"
	"math"

	"github.com/OpenTraceLab/OpenTraceERC/pkg/spatial"
)

// Config controls net inference.
type Config struct {
	Lambda           float64 // Maximum gap between touching objects (default: 0.5)
	GridCellSize     float64 // Spatial index pitch (default: 16)
	Incremental      bool    // Recompute only affected nets on edits (default: true)
	IncrementalLimit int     // Changes per batch above which a full rebuild runs (default: 256)
}

// DefaultConfig returns a Config with sensible defaults for most layouts.
func DefaultConfig() *Config {
	return &Config{
		Lambda:           0.5,
		GridCellSize:     spatial.DefaultCellSize,
		Incremental:      true,
		IncrementalLimit: 256,
	}
}

// Validate rejects unusable values and clamps the rest.
func (c *Config) Validate() error {
	if math.IsNaN(c.Lambda) || math.IsInf(c.Lambda, 0) {
		return fmt.Errorf("lambda must be finite, got %v", c.Lambda)
	}
	if c.Lambda < 0 {
		c.Lambda = 0
	}
	if c.GridCellSize <= 0 || math.IsNaN(c.GridCellSize) || math.IsInf(c.GridCellSize, 0) {
		c.GridCellSize = spatial.DefaultCellSize
	}
	if c.IncrementalLimit < 1 {
		c.IncrementalLimit = 1
	}
	return nil
}
