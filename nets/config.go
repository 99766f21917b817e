// Package nets defines the CycleGAN networks: two generators, two
// discriminators, the adversarial losses, and the composite model whose
// single forward pass produces the translated images and all four loss
// scalars.
package nets

import (
	"fmt"
)

// Config fixes the model topology at construction time. None of these
// values may change mid-run.
type Config struct {
	// InputHeight/InputWidth is the network's fixed working resolution;
	// incoming batches are resampled to it.
	InputHeight int
	InputWidth  int

	// ResidualBlocks is the depth of the generator transformation stage.
	ResidualBlocks int

	// DiscriminatorDepth is the number of downsampling blocks after the
	// discriminator's input block.
	DiscriminatorDepth int

	// BaseFilters is the channel width of the first generator block and
	// the discriminator input block. Wider stages are fixed multiples.
	BaseFilters int

	// CycleLossWeight scales the round-trip consistency penalty added to
	// both generator losses. Zero disables it, which matches the original
	// adversarial-only objective.
	CycleLossWeight float32

	// Seed drives weight initialization.
	Seed int64
}

func DefaultConfig() Config {
	return Config{
		InputHeight:        256,
		InputWidth:         256,
		ResidualBlocks:     9,
		DiscriminatorDepth: 3,
		BaseFilters:        64,
		CycleLossWeight:    0,
		Seed:               1,
	}
}

func (c Config) validate() error {
	if c.InputHeight < 8 || c.InputWidth < 8 {
		return fmt.Errorf("input resolution %dx%d too small: the discriminator halves it %d+1 times",
			c.InputHeight, c.InputWidth, c.DiscriminatorDepth)
	}
	if c.ResidualBlocks < 1 {
		return fmt.Errorf("residual blocks must be positive, got %d", c.ResidualBlocks)
	}
	if c.DiscriminatorDepth < 1 {
		return fmt.Errorf("discriminator depth must be positive, got %d", c.DiscriminatorDepth)
	}
	if c.BaseFilters < 1 {
		return fmt.Errorf("base filters must be positive, got %d", c.BaseFilters)
	}
	if c.CycleLossWeight < 0 {
		return fmt.Errorf("cycle loss weight must be non-negative, got %f", c.CycleLossWeight)
	}
	return nil
}
