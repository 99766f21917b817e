package dataset

import (
	"bufio"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// Split selects the training or test portion of a dataset.
type Split int

const (
	SplitTrain Split = iota
	SplitTest
)

func (s Split) String() string {
	switch s {
	case SplitTrain:
		return "train"
	case SplitTest:
		return "test"
	default:
		return "unknown"
	}
}

// ParseSplit maps a split name to its value.
func ParseSplit(name string) (Split, error) {
	switch strings.ToLower(name) {
	case "train":
		return SplitTrain, nil
	case "test":
		return SplitTest, nil
	default:
		return 0, errors.Errorf("unknown split %q (want train or test)", name)
	}
}

// Source describes one registered dataset: a root directory holding the
// images and an info file listing them. The info file has one relative
// image path per line; a single blank line separates the training
// section from the test section.
type Source struct {
	Name     string
	Root     string
	InfoFile string
}

var (
	registryMu sync.RWMutex
	registry   = map[string]Source{}
)

// Register adds a dataset to the global registry. Registering the same
// name twice replaces the earlier entry.
func Register(src Source) error {
	if src.Name == "" {
		return errors.New("dataset name must not be empty")
	}
	if src.Root == "" {
		return errors.Errorf("dataset %q has no root directory", src.Name)
	}
	if src.InfoFile == "" {
		src.InfoFile = filepath.Join(src.Root, "dataset.info")
	}
	registryMu.Lock()
	registry[src.Name] = src
	registryMu.Unlock()
	return nil
}

// Names lists the registered dataset names in sorted order.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Open resolves a registered dataset name and split into the list of
// image files for that split.
func Open(name string, split Split) (*ImageList, error) {
	registryMu.RLock()
	src, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, errors.Errorf("unknown dataset %q (registered: %s)", name, strings.Join(Names(), ", "))
	}
	return src.Open(split)
}

// Open loads the split's image list from the source's info file.
func (src Source) Open(split Split) (*ImageList, error) {
	train, test, err := LoadInfoFile(src.InfoFile)
	if err != nil {
		return nil, errors.Wrapf(err, "dataset %q", src.Name)
	}

	var paths []string
	switch split {
	case SplitTrain:
		paths = train
	case SplitTest:
		paths = test
	default:
		return nil, errors.Errorf("dataset %q: invalid split %d", src.Name, split)
	}
	if len(paths) == 0 {
		return nil, errors.Errorf("dataset %q has no images in the %s split", src.Name, split)
	}

	resolved := make([]string, len(paths))
	for i, p := range paths {
		resolved[i] = filepath.Join(src.Root, p)
	}
	return &ImageList{name: src.Name, split: split, paths: resolved}, nil
}

// LoadInfoFile parses a dataset info file. Lines before the first blank
// line are the training images, lines after it the test images.
// Leading and trailing whitespace on each line is ignored.
func LoadInfoFile(path string) (train, test []string, err error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "opening info file %s", path)
	}
	defer file.Close()

	inTest := false
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			if inTest {
				return nil, nil, errors.Errorf("info file %s has more than one blank line", path)
			}
			inTest = true
			continue
		}
		if inTest {
			test = append(test, line)
		} else {
			train = append(train, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, errors.Wrapf(err, "reading info file %s", path)
	}
	if len(train) == 0 {
		return nil, nil, errors.Errorf("info file %s lists no training images", path)
	}
	return train, test, nil
}

// ImageList is one split of one dataset: an ordered list of image file
// paths.
type ImageList struct {
	name  string
	split Split
	paths []string
}

// NewImageList wraps explicit file paths, mainly for tests and ad-hoc
// inference input.
func NewImageList(name string, split Split, paths []string) *ImageList {
	return &ImageList{name: name, split: split, paths: paths}
}

// Len returns the number of images in the list.
func (l *ImageList) Len() int {
	return len(l.paths)
}

// Path returns the file path of the i-th image.
func (l *ImageList) Path(i int) string {
	return l.paths[i]
}

// Name returns the dataset name this list came from.
func (l *ImageList) Name() string {
	return l.name
}

// Split returns which split this list holds.
func (l *ImageList) Split() Split {
	return l.split
}
