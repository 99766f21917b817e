package dataset

import (
	"os"
	"path/filepath"
	"testing"
)

func writeInfoFile(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "dataset.info")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing info file: %v", err)
	}
	return path
}

func TestLoadInfoFile(t *testing.T) {
	dir := t.TempDir()

	t.Run("Train and test sections", func(t *testing.T) {
		path := writeInfoFile(t, dir, "a.jpg\nb.jpg\nc.jpg\n\nd.jpg\ne.jpg\n")
		train, test, err := LoadInfoFile(path)
		if err != nil {
			t.Fatalf("LoadInfoFile failed: %v", err)
		}
		if len(train) != 3 || len(test) != 2 {
			t.Errorf("Split = %d/%d, expected 3/2", len(train), len(test))
		}
		if train[0] != "a.jpg" || test[1] != "e.jpg" {
			t.Errorf("Parsed entries wrong: train=%v test=%v", train, test)
		}
	})

	t.Run("Train only", func(t *testing.T) {
		path := writeInfoFile(t, dir, "a.jpg\nb.jpg\n")
		train, test, err := LoadInfoFile(path)
		if err != nil {
			t.Fatalf("LoadInfoFile failed: %v", err)
		}
		if len(train) != 2 || len(test) != 0 {
			t.Errorf("Split = %d/%d, expected 2/0", len(train), len(test))
		}
	})

	t.Run("Whitespace is trimmed", func(t *testing.T) {
		path := writeInfoFile(t, dir, "  a.jpg  \n\n b.jpg\n")
		train, test, err := LoadInfoFile(path)
		if err != nil {
			t.Fatalf("LoadInfoFile failed: %v", err)
		}
		if train[0] != "a.jpg" || test[0] != "b.jpg" {
			t.Errorf("Trim failed: train=%v test=%v", train, test)
		}
	})

	t.Run("Second blank line is an error", func(t *testing.T) {
		path := writeInfoFile(t, dir, "a.jpg\n\nb.jpg\n\nc.jpg\n")
		if _, _, err := LoadInfoFile(path); err == nil {
			t.Error("Expected error for multiple blank lines")
		}
	})

	t.Run("Empty train section is an error", func(t *testing.T) {
		path := writeInfoFile(t, dir, "\na.jpg\n")
		if _, _, err := LoadInfoFile(path); err == nil {
			t.Error("Expected error for empty training section")
		}
	})

	t.Run("Missing file", func(t *testing.T) {
		if _, _, err := LoadInfoFile(filepath.Join(dir, "nope.info")); err == nil {
			t.Error("Expected error for missing info file")
		}
	})
}

func TestRegistry(t *testing.T) {
	dir := t.TempDir()
	writeInfoFile(t, dir, "x.jpg\ny.jpg\n\nz.jpg\n")

	if err := Register(Source{Name: "paintings", Root: dir}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	t.Run("Open train split", func(t *testing.T) {
		list, err := Open("paintings", SplitTrain)
		if err != nil {
			t.Fatalf("Open failed: %v", err)
		}
		if list.Len() != 2 {
			t.Errorf("Train split has %d images, expected 2", list.Len())
		}
		if list.Path(0) != filepath.Join(dir, "x.jpg") {
			t.Errorf("Path = %s, expected root-joined path", list.Path(0))
		}
		if list.Name() != "paintings" || list.Split() != SplitTrain {
			t.Error("List metadata did not carry through")
		}
	})

	t.Run("Open test split", func(t *testing.T) {
		list, err := Open("paintings", SplitTest)
		if err != nil {
			t.Fatalf("Open failed: %v", err)
		}
		if list.Len() != 1 {
			t.Errorf("Test split has %d images, expected 1", list.Len())
		}
	})

	t.Run("Unknown dataset", func(t *testing.T) {
		if _, err := Open("sculptures", SplitTrain); err == nil {
			t.Error("Expected error for unregistered dataset")
		}
	})

	t.Run("Invalid registration", func(t *testing.T) {
		if err := Register(Source{Name: ""}); err == nil {
			t.Error("Expected error for empty name")
		}
		if err := Register(Source{Name: "x"}); err == nil {
			t.Error("Expected error for missing root")
		}
	})
}

func TestParseSplit(t *testing.T) {
	if s, err := ParseSplit("train"); err != nil || s != SplitTrain {
		t.Errorf("ParseSplit(train) = %v, %v", s, err)
	}
	if s, err := ParseSplit("TEST"); err != nil || s != SplitTest {
		t.Errorf("ParseSplit(TEST) = %v, %v", s, err)
	}
	if _, err := ParseSplit("validation"); err == nil {
		t.Error("Expected error for unknown split name")
	}
}
