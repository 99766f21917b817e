package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/sebastianlutter/artReCycleGAN/checkpoints"
	"github.com/sebastianlutter/artReCycleGAN/nets"
	"github.com/sebastianlutter/artReCycleGAN/tensor"
	"github.com/sebastianlutter/artReCycleGAN/training"
	"github.com/sebastianlutter/artReCycleGAN/vision/dataloader"
	"github.com/sebastianlutter/artReCycleGAN/vision/dataset"
	"github.com/sebastianlutter/artReCycleGAN/vision/preprocessing"
)

func main() {
	log.SetFlags(log.LstdFlags)

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "train":
		err = runTrain(os.Args[2:])
	case "use":
		err = runUse(os.Args[2:])
	case "debug":
		err = runDebug(os.Args[2:])
	case "export":
		err = runExport(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatalf("%s: %v", os.Args[1], err)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: artrecycle <command> [flags]

commands:
  train    train the style transfer model on two image domains
  use      translate images with a trained model
  debug    run the reduced debugging model on random input
  export   convert a checkpoint to an ONNX file

run "artrecycle <command> -h" for command flags`)
}

// registerDatasets scans the data directory and registers every
// subdirectory that carries a dataset.info file.
func registerDatasets(dataDir string) error {
	entries, err := os.ReadDir(dataDir)
	if err != nil {
		return fmt.Errorf("reading data directory %s: %v", dataDir, err)
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		root := filepath.Join(dataDir, e.Name())
		info := filepath.Join(root, "dataset.info")
		if _, err := os.Stat(info); err != nil {
			continue
		}
		if err := dataset.Register(dataset.Source{Name: e.Name(), Root: root, InfoFile: info}); err != nil {
			return err
		}
	}
	if len(dataset.Names()) == 0 {
		return fmt.Errorf("no datasets found under %s (expected <name>/dataset.info)", dataDir)
	}
	return nil
}

func runTrain(args []string) error {
	fs := flag.NewFlagSet("train", flag.ExitOnError)
	dataDir := fs.String("data-dir", "data", "directory containing one subdirectory per dataset")
	domainA := fs.String("domain-a", "", "dataset name for domain A")
	domainB := fs.String("domain-b", "", "dataset name for domain B")
	epochs := fs.Int("epochs", 100, "number of training epochs")
	batchSize := fs.Int("batch-size", 1, "images per domain per step")
	lr := fs.Float64("lr", 0.0002, "Adam learning rate")
	size := fs.Int("size", 256, "model input size (images are resized to size x size)")
	residualBlocks := fs.Int("residual-blocks", 9, "residual blocks in each generator")
	cycleWeight := fs.Float64("cycle-weight", 0, "cycle consistency loss weight (0 disables)")
	checkpointDir := fs.String("checkpoint-dir", "checkpoints", "directory for training checkpoints")
	checkpointEvery := fs.Int("checkpoint-every", 1, "epochs between checkpoints")
	resume := fs.String("resume", "", "checkpoint file to resume from")
	seed := fs.Int64("seed", 1, "random seed for weights and shuffling")
	cacheSize := fs.Int("cache", 1000, "decoded images kept in memory per loader")
	logEvery := fs.Int("log-every", 50, "steps between progress lines")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *domainA == "" || *domainB == "" {
		return fmt.Errorf("both -domain-a and -domain-b are required")
	}

	if err := registerDatasets(*dataDir); err != nil {
		return err
	}
	listA, err := dataset.Open(*domainA, dataset.SplitTrain)
	if err != nil {
		return err
	}
	listB, err := dataset.Open(*domainB, dataset.SplitTrain)
	if err != nil {
		return err
	}
	log.Printf("domain A: %s (%d images), domain B: %s (%d images)",
		*domainA, listA.Len(), *domainB, listB.Len())

	cfg := nets.DefaultConfig()
	cfg.InputHeight = *size
	cfg.InputWidth = *size
	cfg.ResidualBlocks = *residualBlocks
	cfg.CycleLossWeight = float32(*cycleWeight)
	cfg.Seed = *seed
	model, err := nets.NewCycleGAN(cfg)
	if err != nil {
		return err
	}

	processor := preprocessing.NewImageProcessor(*size, *size)
	loader, err := dataloader.NewPairedLoader(listA, listB, processor, dataloader.Config{
		BatchSize: *batchSize,
		Shuffle:   true,
		Seed:      *seed,
		CacheSize: *cacheSize,
	})
	if err != nil {
		return err
	}
	defer loader.Close()

	if err := os.MkdirAll(*checkpointDir, 0o755); err != nil {
		return fmt.Errorf("creating checkpoint directory: %v", err)
	}
	trainer, err := training.NewTrainer(model, training.TrainerConfig{
		Epochs:          *epochs,
		LearningRate:    float32(*lr),
		CheckpointDir:   *checkpointDir,
		CheckpointEvery: *checkpointEvery,
		LogEvery:        *logEvery,
	}, log.Default())
	if err != nil {
		return err
	}
	if *resume != "" {
		if err := trainer.Resume(*resume); err != nil {
			return err
		}
		log.Printf("resumed from %s at epoch %d", *resume, trainer.Epoch())
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	log.Printf("training for %d epochs, %d steps per epoch", *epochs, loader.StepsPerEpoch())
	if err := trainer.Fit(ctx, loader); err != nil {
		return err
	}
	log.Printf("done: %s", loader.CacheStats())
	return nil
}

func runUse(args []string) error {
	fs := flag.NewFlagSet("use", flag.ExitOnError)
	checkpointPath := fs.String("checkpoint", "", "checkpoint file with trained weights")
	input := fs.String("input", "", "input image file or directory")
	output := fs.String("output", "out", "directory for translated images")
	direction := fs.String("direction", "ab", "translation direction: ab or ba")
	size := fs.Int("size", 256, "model input size (must match training)")
	residualBlocks := fs.Int("residual-blocks", 9, "residual blocks (must match training)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *checkpointPath == "" || *input == "" {
		return fmt.Errorf("both -checkpoint and -input are required")
	}
	if *direction != "ab" && *direction != "ba" {
		return fmt.Errorf("direction must be ab or ba, got %q", *direction)
	}

	cfg := nets.DefaultConfig()
	cfg.InputHeight = *size
	cfg.InputWidth = *size
	cfg.ResidualBlocks = *residualBlocks
	model, err := nets.NewCycleGAN(cfg)
	if err != nil {
		return err
	}
	cp, err := checkpoints.Load(*checkpointPath)
	if err != nil {
		return err
	}
	for group, params := range training.NamedGroups(model) {
		if err := checkpoints.RestoreWeights(group, cp.Weights, params); err != nil {
			return err
		}
	}

	generator := model.GeneratorAB
	if *direction == "ba" {
		generator = model.GeneratorBA
	}

	inputs, err := collectImages(*input)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(*output, 0o755); err != nil {
		return fmt.Errorf("creating output directory: %v", err)
	}

	processor := preprocessing.NewImageProcessor(*size, *size)
	for _, path := range inputs {
		img, err := processor.LoadImage(path)
		if err != nil {
			return err
		}
		translated, err := generator.Forward(img)
		if err != nil {
			return fmt.Errorf("translating %s: %v", path, err)
		}
		outPath := filepath.Join(*output, filepath.Base(path))
		if err := preprocessing.SaveImage(translated, 0, outPath); err != nil {
			return err
		}
		log.Printf("%s -> %s", path, outPath)
	}
	return nil
}

func collectImages(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{path}, nil
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".jpg", ".jpeg", ".png", ".gif":
			files = append(files, filepath.Join(path, e.Name()))
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no images found in %s", path)
	}
	return files, nil
}

// runDebug pushes random data through the reduced model variant. Useful
// for checking the training plumbing without a dataset.
func runDebug(args []string) error {
	fs := flag.NewFlagSet("debug", flag.ExitOnError)
	size := fs.Int("size", 64, "input size")
	batch := fs.Int("batch", 2, "batch size")
	seed := fs.Int64("seed", 1, "random seed")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg := nets.DefaultConfig()
	cfg.InputHeight = *size
	cfg.InputWidth = *size
	cfg.Seed = *seed
	model, err := nets.NewModel(nets.VariantDebugging, cfg)
	if err != nil {
		return err
	}

	rng := newRand(*seed)
	batchA, err := randomBatch(rng, *batch, *size)
	if err != nil {
		return err
	}
	out, err := model.Forward(batchA, batchA)
	if err != nil {
		return err
	}
	loss, err := out.DiscriminatorALoss.Item()
	if err != nil {
		return err
	}
	log.Printf("debug forward ok: loss=%.6f", loss)
	return nil
}

func newRand(seed int64) *rand.Rand {
	return rand.New(rand.NewSource(seed))
}

func randomBatch(rng *rand.Rand, batch, size int) (*tensor.Tensor, error) {
	return tensor.RandomNormal([]int{batch, size, size, 3}, 0, 0.5, rng)
}

func runExport(args []string) error {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	checkpointPath := fs.String("checkpoint", "", "checkpoint file to convert")
	onnxPath := fs.String("onnx", "model.onnx", "output ONNX file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *checkpointPath == "" {
		return fmt.Errorf("-checkpoint is required")
	}

	cp, err := checkpoints.Load(*checkpointPath)
	if err != nil {
		return err
	}
	if err := checkpoints.ExportONNX(*onnxPath, cp.Weights); err != nil {
		return err
	}
	log.Printf("wrote %d weights to %s", len(cp.Weights), *onnxPath)
	return nil
}
