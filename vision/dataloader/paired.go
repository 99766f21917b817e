package dataloader

import (
	"io"
	"math/rand"

	"github.com/pkg/errors"

	"github.com/sebastianlutter/artReCycleGAN/tensor"
	"github.com/sebastianlutter/artReCycleGAN/vision/preprocessing"
)

// ImageSource is an ordered list of image files, typically one dataset
// split.
type ImageSource interface {
	Len() int
	Path(i int) string
}

// Config controls batch assembly.
type Config struct {
	BatchSize int
	Shuffle   bool
	Seed      int64
	CacheSize int         // images kept decoded; 0 disables caching
	Prefetch  int         // batches assembled ahead of the consumer
	Cache     *ImageCache // optional shared cache; overrides CacheSize
}

// PairedLoader zips two domains into paired batches for adversarial
// training. Each epoch walks min(lenA, lenB) images of either domain;
// a trailing partial batch is dropped so every step sees full batches.
// Batches are assembled by a background goroutine so decoding overlaps
// with training.
type PairedLoader struct {
	domainA   ImageSource
	domainB   ImageSource
	processor *preprocessing.ImageProcessor
	config    Config

	rng      *rand.Rand
	cache    *ImageCache
	indicesA []int
	indicesB []int

	batches chan batchPair
	stop    chan struct{}
}

type batchPair struct {
	a   *tensor.Tensor
	b   *tensor.Tensor
	err error
}

// NewPairedLoader creates a loader over two domain splits.
func NewPairedLoader(domainA, domainB ImageSource, processor *preprocessing.ImageProcessor, config Config) (*PairedLoader, error) {
	if config.BatchSize <= 0 {
		return nil, errors.Errorf("batch size must be positive, got %d", config.BatchSize)
	}
	if domainA.Len() == 0 || domainB.Len() == 0 {
		return nil, errors.New("both domains must contain at least one image")
	}
	if min(domainA.Len(), domainB.Len()) < config.BatchSize {
		return nil, errors.Errorf("batch size %d exceeds smaller domain size %d",
			config.BatchSize, min(domainA.Len(), domainB.Len()))
	}
	if config.Prefetch <= 0 {
		config.Prefetch = 2
	}

	cache := config.Cache
	if cache == nil {
		cache = NewImageCache(config.CacheSize)
	}

	l := &PairedLoader{
		domainA:   domainA,
		domainB:   domainB,
		processor: processor,
		config:    config,
		rng:       rand.New(rand.NewSource(config.Seed)),
		cache:     cache,
		indicesA:  sequence(domainA.Len()),
		indicesB:  sequence(domainB.Len()),
	}
	return l, nil
}

// StepsPerEpoch returns the number of full batches one epoch yields.
func (l *PairedLoader) StepsPerEpoch() int {
	return min(l.domainA.Len(), l.domainB.Len()) / l.config.BatchSize
}

// CacheStats reports the image cache counters.
func (l *PairedLoader) CacheStats() CacheStats {
	return l.cache.Stats()
}

// Reset starts a new epoch: reshuffles both domains and restarts the
// prefetch worker.
func (l *PairedLoader) Reset() error {
	l.stopWorker()
	if l.config.Shuffle {
		l.rng.Shuffle(len(l.indicesA), func(i, j int) {
			l.indicesA[i], l.indicesA[j] = l.indicesA[j], l.indicesA[i]
		})
		l.rng.Shuffle(len(l.indicesB), func(i, j int) {
			l.indicesB[i], l.indicesB[j] = l.indicesB[j], l.indicesB[i]
		})
	}

	indicesA := append([]int(nil), l.indicesA...)
	indicesB := append([]int(nil), l.indicesB...)
	l.batches = make(chan batchPair, l.config.Prefetch)
	l.stop = make(chan struct{})
	go l.fill(l.batches, l.stop, indicesA, indicesB)
	return nil
}

// Next returns the next paired batch, or io.EOF when the epoch is
// exhausted. The first call starts an epoch if Reset was not called.
func (l *PairedLoader) Next() (*tensor.Tensor, *tensor.Tensor, error) {
	if l.batches == nil {
		if err := l.Reset(); err != nil {
			return nil, nil, err
		}
	}
	batch, ok := <-l.batches
	if !ok {
		return nil, nil, io.EOF
	}
	if batch.err != nil {
		return nil, nil, batch.err
	}
	return batch.a, batch.b, nil
}

// Close stops the prefetch worker.
func (l *PairedLoader) Close() {
	l.stopWorker()
}

func (l *PairedLoader) stopWorker() {
	if l.stop == nil {
		return
	}
	close(l.stop)
	for range l.batches {
	}
	l.stop = nil
	l.batches = nil
}

func (l *PairedLoader) fill(out chan<- batchPair, stop <-chan struct{}, indicesA, indicesB []int) {
	defer close(out)

	steps := min(len(indicesA), len(indicesB)) / l.config.BatchSize
	for s := 0; s < steps; s++ {
		lo := s * l.config.BatchSize
		hi := lo + l.config.BatchSize

		batchA, err := l.assemble(l.domainA, indicesA[lo:hi])
		if err == nil {
			var batchB *tensor.Tensor
			batchB, err = l.assemble(l.domainB, indicesB[lo:hi])
			if err == nil {
				select {
				case out <- batchPair{a: batchA, b: batchB}:
					continue
				case <-stop:
					return
				}
			}
		}

		select {
		case out <- batchPair{err: err}:
		case <-stop:
		}
		return
	}
}

func (l *PairedLoader) assemble(domain ImageSource, indices []int) (*tensor.Tensor, error) {
	pixels := l.processor.PixelCount()
	data := make([]float32, len(indices)*pixels)
	for i, idx := range indices {
		img, err := l.loadPixels(domain.Path(idx))
		if err != nil {
			return nil, err
		}
		copy(data[i*pixels:(i+1)*pixels], img)
	}

	return tensor.NewTensor([]int{len(indices), l.processor.Height(), l.processor.Width(), 3}, data)
}

func (l *PairedLoader) loadPixels(path string) ([]float32, error) {
	if cached, ok := l.cache.Get(path); ok {
		return cached, nil
	}
	t, err := l.processor.LoadImage(path)
	if err != nil {
		return nil, err
	}
	l.cache.Put(path, t.Data)
	return t.Data, nil
}

func sequence(n int) []int {
	s := make([]int, n)
	for i := range s {
		s[i] = i
	}
	return s
}
