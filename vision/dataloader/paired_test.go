package dataloader

import (
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/sebastianlutter/artReCycleGAN/vision/dataset"
	"github.com/sebastianlutter/artReCycleGAN/vision/preprocessing"
)

func writeImages(t *testing.T, dir string, count int, shade uint8) []string {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("creating %s: %v", dir, err)
	}
	paths := make([]string, count)
	for i := range paths {
		img := image.NewRGBA(image.Rect(0, 0, 4, 4))
		for y := 0; y < 4; y++ {
			for x := 0; x < 4; x++ {
				img.SetRGBA(x, y, color.RGBA{shade, shade, shade, 255})
			}
		}
		path := filepath.Join(dir, filepath.Base(dir)+"_"+string(rune('a'+i))+".png")
		file, err := os.Create(path)
		if err != nil {
			t.Fatalf("creating image: %v", err)
		}
		if err := png.Encode(file, img); err != nil {
			t.Fatalf("encoding image: %v", err)
		}
		file.Close()
		paths[i] = path
	}
	return paths
}

func testLoader(t *testing.T, countA, countB int, cfg Config) *PairedLoader {
	t.Helper()
	dir := t.TempDir()
	pathsA := writeImages(t, filepath.Join(dir, "domainA"), countA, 200)
	pathsB := writeImages(t, filepath.Join(dir, "domainB"), countB, 50)

	listA := dataset.NewImageList("domainA", dataset.SplitTrain, pathsA)
	listB := dataset.NewImageList("domainB", dataset.SplitTrain, pathsB)

	loader, err := NewPairedLoader(listA, listB, preprocessing.NewImageProcessor(4, 4), cfg)
	if err != nil {
		t.Fatalf("NewPairedLoader failed: %v", err)
	}
	t.Cleanup(loader.Close)
	return loader
}

func TestPairedLoaderEpoch(t *testing.T) {
	loader := testLoader(t, 4, 5, Config{BatchSize: 2, CacheSize: 16})

	if got := loader.StepsPerEpoch(); got != 2 {
		t.Errorf("StepsPerEpoch = %d, expected 2", got)
	}

	seen := 0
	for {
		batchA, batchB, err := loader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		seen++

		wantShape := []int{2, 4, 4, 3}
		for i, d := range batchA.Shape {
			if d != wantShape[i] {
				t.Fatalf("Batch A shape = %v, expected %v", batchA.Shape, wantShape)
			}
		}
		// The two domains stay separated: domain A is bright, B dark.
		if batchA.Data[0] < 0 {
			t.Errorf("Domain A pixel = %f, expected positive", batchA.Data[0])
		}
		if batchB.Data[0] > 0 {
			t.Errorf("Domain B pixel = %f, expected negative", batchB.Data[0])
		}
	}
	if seen != 2 {
		t.Errorf("Epoch yielded %d batches, expected 2", seen)
	}
}

func TestPairedLoaderReset(t *testing.T) {
	loader := testLoader(t, 2, 2, Config{BatchSize: 2, CacheSize: 16})

	for epoch := 0; epoch < 3; epoch++ {
		if err := loader.Reset(); err != nil {
			t.Fatalf("Reset failed: %v", err)
		}
		batches := 0
		for {
			_, _, err := loader.Next()
			if err == io.EOF {
				break
			}
			if err != nil {
				t.Fatalf("Next failed: %v", err)
			}
			batches++
		}
		if batches != 1 {
			t.Fatalf("Epoch %d yielded %d batches, expected 1", epoch, batches)
		}
	}
}

func TestPairedLoaderCacheReuse(t *testing.T) {
	loader := testLoader(t, 2, 2, Config{BatchSize: 2, CacheSize: 16})

	for epoch := 0; epoch < 2; epoch++ {
		if err := loader.Reset(); err != nil {
			t.Fatalf("Reset failed: %v", err)
		}
		for {
			if _, _, err := loader.Next(); err == io.EOF {
				break
			} else if err != nil {
				t.Fatalf("Next failed: %v", err)
			}
		}
	}

	stats := loader.CacheStats()
	if stats.Hits == 0 {
		t.Errorf("Expected cache hits on the second epoch, stats: %s", stats)
	}
}

func TestPairedLoaderMissingFile(t *testing.T) {
	listA := dataset.NewImageList("a", dataset.SplitTrain, []string{"/nonexistent/a.png"})
	listB := dataset.NewImageList("b", dataset.SplitTrain, []string{"/nonexistent/b.png"})

	loader, err := NewPairedLoader(listA, listB, preprocessing.NewImageProcessor(4, 4), Config{BatchSize: 1})
	if err != nil {
		t.Fatalf("NewPairedLoader failed: %v", err)
	}
	defer loader.Close()

	if _, _, err := loader.Next(); err == nil || err == io.EOF {
		t.Errorf("Next returned %v, expected a load error", err)
	}
}

func TestPairedLoaderValidation(t *testing.T) {
	listA := dataset.NewImageList("a", dataset.SplitTrain, []string{"x.png"})
	listB := dataset.NewImageList("b", dataset.SplitTrain, []string{"y.png"})
	proc := preprocessing.NewImageProcessor(4, 4)

	t.Run("Zero batch size", func(t *testing.T) {
		if _, err := NewPairedLoader(listA, listB, proc, Config{}); err == nil {
			t.Error("Expected error for zero batch size")
		}
	})

	t.Run("Batch larger than domain", func(t *testing.T) {
		if _, err := NewPairedLoader(listA, listB, proc, Config{BatchSize: 2}); err == nil {
			t.Error("Expected error when batch exceeds the smaller domain")
		}
	})

	t.Run("Empty domain", func(t *testing.T) {
		empty := dataset.NewImageList("e", dataset.SplitTrain, nil)
		if _, err := NewPairedLoader(empty, listB, proc, Config{BatchSize: 1}); err == nil {
			t.Error("Expected error for empty domain")
		}
	})
}

func TestImageCacheLRU(t *testing.T) {
	cache := NewImageCache(2)
	cache.Put("a", []float32{1})
	cache.Put("b", []float32{2})

	if _, ok := cache.Get("a"); !ok {
		t.Fatal("Expected a to be cached")
	}

	// b is now the least recently used entry and gets evicted.
	cache.Put("c", []float32{3})
	if _, ok := cache.Get("b"); ok {
		t.Error("Expected b to be evicted")
	}
	if _, ok := cache.Get("a"); !ok {
		t.Error("Expected a to survive eviction")
	}
	if _, ok := cache.Get("c"); !ok {
		t.Error("Expected c to be cached")
	}

	stats := cache.Stats()
	if stats.Size != 2 {
		t.Errorf("Size = %d, expected 2", stats.Size)
	}
	if stats.Misses == 0 {
		t.Error("Expected misses to be counted")
	}

	cache.Clear()
	if cache.Stats().Size != 0 {
		t.Error("Expected empty cache after Clear")
	}
}

func TestImageCacheDisabled(t *testing.T) {
	cache := NewImageCache(0)
	cache.Put("a", []float32{1})
	if _, ok := cache.Get("a"); ok {
		t.Error("Disabled cache must not store entries")
	}
}
