package nets

import (
	"fmt"
	"math/rand"

	"github.com/sebastianlutter/artReCycleGAN/layers"
	"github.com/sebastianlutter/artReCycleGAN/tensor"
)

// Variant selects one of the closed set of model topologies. The active
// model is chosen at construction, never through package-level state.
type Variant int

const (
	VariantCycleGAN Variant = iota
	// VariantDebugging is a development model: preprocessing, one
	// discriminator, and a mean over its logits.
	VariantDebugging
)

func (v Variant) String() string {
	switch v {
	case VariantCycleGAN:
		return "CycleGAN"
	case VariantDebugging:
		return "Debugging"
	default:
		return "Unknown"
	}
}

// StepOutputs is everything one composite forward pass produces: the two
// translated batches and the four named loss scalars, all still attached
// to the forward trace.
type StepOutputs struct {
	FakeA *tensor.Tensor
	FakeB *tensor.Tensor

	DiscriminatorALoss *tensor.Tensor
	DiscriminatorBLoss *tensor.Tensor
	GeneratorABLoss    *tensor.Tensor
	GeneratorBALoss    *tensor.Tensor
}

// Model is the common surface of the model variants.
type Model interface {
	Forward(batchA, batchB *tensor.Tensor) (*StepOutputs, error)
}

// NewModel builds the requested variant.
func NewModel(variant Variant, cfg Config) (Model, error) {
	switch variant {
	case VariantCycleGAN:
		return NewCycleGAN(cfg)
	case VariantDebugging:
		return NewDebugging(cfg)
	default:
		return nil, fmt.Errorf("unknown model variant %d", variant)
	}
}

// CycleGAN owns the four sub-networks, the two losses, and the
// preprocessing stage. It is constructed once before training; optimizer
// steps mutate its parameters in place.
type CycleGAN struct {
	cfg Config

	Preprocess     *layers.Resize
	GeneratorAB    *Generator
	GeneratorBA    *Generator
	DiscriminatorA *Discriminator
	DiscriminatorB *Discriminator

	discriminatorLoss DiscriminatorLoss
	generatorLoss     GeneratorLoss
}

func NewCycleGAN(cfg Config) (*CycleGAN, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	rng := rand.New(rand.NewSource(cfg.Seed))

	generatorAB, err := NewGenerator("Generator_AB", cfg, rng)
	if err != nil {
		return nil, err
	}
	generatorBA, err := NewGenerator("Generator_BA", cfg, rng)
	if err != nil {
		return nil, err
	}
	discriminatorA, err := NewDiscriminator("Discriminator_A", cfg, rng)
	if err != nil {
		return nil, err
	}
	discriminatorB, err := NewDiscriminator("Discriminator_B", cfg, rng)
	if err != nil {
		return nil, err
	}

	return &CycleGAN{
		cfg:            cfg,
		Preprocess:     layers.NewResize("preprocessing", cfg.InputHeight, cfg.InputWidth),
		GeneratorAB:    generatorAB,
		GeneratorBA:    generatorBA,
		DiscriminatorA: discriminatorA,
		DiscriminatorB: discriminatorB,
	}, nil
}

func (m *CycleGAN) Config() Config {
	return m.cfg
}

// Forward runs the whole composite graph for one domain pair. Every
// downstream quantity hangs off the same trace, so a caller can extract
// each sub-network's gradient independently from one pass.
func (m *CycleGAN) Forward(batchA, batchB *tensor.Tensor) (*StepOutputs, error) {
	if err := checkDomainPair(batchA, batchB); err != nil {
		return nil, err
	}
	batch := batchA.Shape[0]

	realA, err := m.Preprocess.Forward(batchA)
	if err != nil {
		return nil, fmt.Errorf("preprocessing domain A: %v", err)
	}
	realB, err := m.Preprocess.Forward(batchB)
	if err != nil {
		return nil, fmt.Errorf("preprocessing domain B: %v", err)
	}

	fakeB, err := m.GeneratorAB.Forward(realA)
	if err != nil {
		return nil, err
	}
	fakeA, err := m.GeneratorBA.Forward(realB)
	if err != nil {
		return nil, err
	}

	// Each discriminator judges its domain's real and translated images
	// in one combined batch: first half real, second half fake.
	decisionA, err := m.DiscriminatorA.Forward(tensor.ConcatAutograd(realA, fakeA))
	if err != nil {
		return nil, err
	}
	decisionB, err := m.DiscriminatorB.Forward(tensor.ConcatAutograd(realB, fakeB))
	if err != nil {
		return nil, err
	}

	dALoss, err := m.discriminatorLoss.Forward(decisionA, batch)
	if err != nil {
		return nil, err
	}
	dBLoss, err := m.discriminatorLoss.Forward(decisionB, batch)
	if err != nil {
		return nil, err
	}

	// Generator_AB produces domain-B images, so discriminator_B judges
	// it; Generator_BA symmetrically.
	gABLoss, err := m.generatorLoss.Forward(decisionB, batch)
	if err != nil {
		return nil, err
	}
	gBALoss, err := m.generatorLoss.Forward(decisionA, batch)
	if err != nil {
		return nil, err
	}

	if m.cfg.CycleLossWeight > 0 {
		cycledA, err := m.GeneratorBA.Forward(fakeB)
		if err != nil {
			return nil, err
		}
		cycledB, err := m.GeneratorAB.Forward(fakeA)
		if err != nil {
			return nil, err
		}
		cycle := tensor.ScaleAutograd(
			tensor.AddAutograd(cycleLoss(cycledA, realA), cycleLoss(cycledB, realB)),
			m.cfg.CycleLossWeight)
		gABLoss = tensor.AddAutograd(gABLoss, cycle)
		gBALoss = tensor.AddAutograd(gBALoss, cycle)
	}

	return &StepOutputs{
		FakeA:              fakeA,
		FakeB:              fakeB,
		DiscriminatorALoss: dALoss,
		DiscriminatorBLoss: dBLoss,
		GeneratorABLoss:    gABLoss,
		GeneratorBALoss:    gBALoss,
	}, nil
}

func checkDomainPair(batchA, batchB *tensor.Tensor) error {
	for name, b := range map[string]*tensor.Tensor{"A": batchA, "B": batchB} {
		if b == nil {
			return fmt.Errorf("domain %s batch is nil", name)
		}
		if len(b.Shape) != 4 {
			return fmt.Errorf("domain %s batch must be [batch, h, w, 3], got %v", name, b.Shape)
		}
		if b.Shape[3] != 3 {
			return fmt.Errorf("domain %s batch must have 3 channels, got %d", name, b.Shape[3])
		}
	}
	if batchA.Shape[0] != batchB.Shape[0] {
		return fmt.Errorf("domain batch sizes differ: A has %d, B has %d", batchA.Shape[0], batchB.Shape[0])
	}
	return nil
}

// Debugging is the development variant: it preprocesses domain A, scores
// it with a single discriminator, and reduces the logits to one scalar.
type Debugging struct {
	Preprocess    *layers.Resize
	Discriminator *Discriminator
}

func NewDebugging(cfg Config) (*Debugging, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	rng := rand.New(rand.NewSource(cfg.Seed))

	d, err := NewDiscriminator("Discriminator", cfg, rng)
	if err != nil {
		return nil, err
	}
	return &Debugging{
		Preprocess:    layers.NewResize("preprocessing", cfg.InputHeight, cfg.InputWidth),
		Discriminator: d,
	}, nil
}

func (m *Debugging) Forward(batchA, _ *tensor.Tensor) (*StepOutputs, error) {
	if batchA == nil || len(batchA.Shape) != 4 {
		return nil, fmt.Errorf("debugging model expects a [batch, h, w, 3] input")
	}

	x, err := m.Preprocess.Forward(batchA)
	if err != nil {
		return nil, err
	}
	decision, err := m.Discriminator.Forward(x)
	if err != nil {
		return nil, err
	}
	return &StepOutputs{DiscriminatorALoss: tensor.MeanAutograd(decision)}, nil
}
