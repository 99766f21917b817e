package preprocessing

import (
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	_ "image/gif"

	"github.com/pkg/errors"

	"github.com/sebastianlutter/artReCycleGAN/tensor"
)

// ImageProcessor decodes images into model-ready tensors: NHWC float32,
// three channels, pixel values scaled to [-1, 1], resized to a fixed
// spatial size so decoded images can be stacked into batches.
type ImageProcessor struct {
	height int
	width  int
}

// NewImageProcessor creates a processor targeting the given spatial
// size.
func NewImageProcessor(height, width int) *ImageProcessor {
	return &ImageProcessor{height: height, width: width}
}

// Height returns the target image height.
func (p *ImageProcessor) Height() int {
	return p.height
}

// Width returns the target image width.
func (p *ImageProcessor) Width() int {
	return p.width
}

// PixelCount returns the number of float32 values one processed image
// occupies.
func (p *ImageProcessor) PixelCount() int {
	return p.height * p.width * 3
}

// DecodeAndPreprocess decodes an image stream and converts it to a
// [1, height, width, 3] tensor in [-1, 1].
func (p *ImageProcessor) DecodeAndPreprocess(r io.Reader) (*tensor.Tensor, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, errors.Wrap(err, "decoding image")
	}
	return p.fromImage(img)
}

// LoadImage reads and preprocesses an image file.
func (p *ImageProcessor) LoadImage(path string) (*tensor.Tensor, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening image %s", path)
	}
	defer file.Close()

	t, err := p.DecodeAndPreprocess(file)
	if err != nil {
		return nil, errors.Wrapf(err, "preprocessing %s", path)
	}
	return t, nil
}

func (p *ImageProcessor) fromImage(img image.Image) (*tensor.Tensor, error) {
	bounds := img.Bounds()
	h := bounds.Dy()
	w := bounds.Dx()
	if h == 0 || w == 0 {
		return nil, errors.New("image has zero size")
	}

	data := make([]float32, h*w*3)
	i := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			data[i] = float32(r>>8)/127.5 - 1
			data[i+1] = float32(g>>8)/127.5 - 1
			data[i+2] = float32(b>>8)/127.5 - 1
			i += 3
		}
	}

	t, err := tensor.NewTensor([]int{1, h, w, 3}, data)
	if err != nil {
		return nil, err
	}
	if h == p.height && w == p.width {
		return t, nil
	}
	return tensor.ResizeBilinear(t, p.height, p.width)
}

// ToImage converts one image of a [batch, h, w, 3] tensor in [-1, 1]
// back to an 8-bit RGBA image.
func ToImage(t *tensor.Tensor, index int) (image.Image, error) {
	if len(t.Shape) != 4 || t.Shape[3] != 3 {
		return nil, errors.Errorf("expected [batch, h, w, 3] tensor, got shape %v", t.Shape)
	}
	if index < 0 || index >= t.Shape[0] {
		return nil, errors.Errorf("image index %d out of range for batch of %d", index, t.Shape[0])
	}

	h, w := t.Shape[1], t.Shape[2]
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	base := index * h * w * 3
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			off := base + (y*w+x)*3
			img.SetRGBA(x, y, color.RGBA{
				R: clampByte(t.Data[off]),
				G: clampByte(t.Data[off+1]),
				B: clampByte(t.Data[off+2]),
				A: 255,
			})
		}
	}
	return img, nil
}

// SaveImage writes one image of a batch tensor to disk. The format is
// chosen from the file extension; anything not .png is written as JPEG.
func SaveImage(t *tensor.Tensor, index int, path string) error {
	img, err := ToImage(t, index)
	if err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "creating %s", path)
	}
	defer file.Close()

	if strings.EqualFold(filepath.Ext(path), ".png") {
		if err := png.Encode(file, img); err != nil {
			return errors.Wrapf(err, "encoding %s", path)
		}
		return nil
	}
	if err := jpeg.Encode(file, img, &jpeg.Options{Quality: 95}); err != nil {
		return errors.Wrapf(err, "encoding %s", path)
	}
	return nil
}

func clampByte(v float32) uint8 {
	scaled := (v + 1) * 127.5
	if scaled < 0 {
		return 0
	}
	if scaled > 255 {
		return 255
	}
	return uint8(scaled + 0.5)
}
