// Package data turns image files into normalized input batches for the
// detector.
package data

import (
	"image"

	"capsnet/tensor"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
)

// DefaultSize is the side length images are cropped to.
const DefaultSize = 224

// ImageNet channel statistics the backbones were trained with.
var (
	Mean = [3]float64{0.485, 0.456, 0.406}
	Std  = [3]float64{0.229, 0.224, 0.225}
)

// LoadImage decodes an image file, honoring EXIF orientation.
func LoadImage(path string) (image.Image, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open image %s", path)
	}
	return img, nil
}

// Prepare resizes the shorter side of img to size and crops the center to a
// size×size square.
func Prepare(img image.Image, size int) *image.NRGBA {
	return imaging.Fill(img, size, size, imaging.Center, imaging.Linear)
}

// Batch prepares every image and packs them into a normalized
// [B, 3, size, size] tensor.
func Batch(images []image.Image, size int) (*tensor.Tensor, error) {
	if len(images) == 0 {
		return nil, errors.New("empty image batch")
	}
	if size <= 0 {
		return nil, errors.Errorf("invalid image size %d", size)
	}
	plane := size * size
	out := tensor.New(len(images), 3, size, size)
	for b, img := range images {
		nrgba := Prepare(img, size)
		for y := 0; y < size; y++ {
			row := nrgba.Pix[y*nrgba.Stride:]
			for x := 0; x < size; x++ {
				px := row[x*4 : x*4+3]
				for c := 0; c < 3; c++ {
					out.Data[(b*3+c)*plane+y*size+x] = (float64(px[c])/255 - Mean[c]) / Std[c]
				}
			}
		}
	}
	return out, nil
}

// LoadBatch loads and packs the images at paths.
func LoadBatch(paths []string, size int) (*tensor.Tensor, error) {
	images := make([]image.Image, len(paths))
	for i, p := range paths {
		img, err := LoadImage(p)
		if err != nil {
			return nil, err
		}
		images[i] = img
	}
	return Batch(images, size)
}
