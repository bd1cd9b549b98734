// Package inference runs the segmentation encoder and decoder behind a
// single worker goroutine.
//
// Images are encoded once into an opaque Embedding tagged with a version.
// Decodes name the version they target; the worker refuses decodes for any
// version other than the latest encode.
package inference

import (
	"github.com/pkg/errors"
)

// InputSize is the side length of the encoder input and the decoder's
// prompt coordinate space.
const InputSize = 1024

// MaskInputSize is the side length of the decoder's prior mask input.
const MaskInputSize = 256

// ImageNet channel statistics in RGB order, on the 0-255 pixel scale.
var (
	ImageNetMean = [3]float32{123.675, 116.28, 103.53}
	ImageNetStd  = [3]float32{58.395, 57.12, 57.375}
)

// Layout names the memory order of a pixel tensor.
type Layout string

const (
	LayoutHWC Layout = "HWC"
	LayoutCHW Layout = "CHW"
)

// PixelTensor is a normalized RGB image. Data is stored HWC.
type PixelTensor struct {
	Data   []float32
	Width  int
	Height int
	Layout Layout
	Mean   [3]float32
	Std    [3]float32
}

// NewPixelTensor normalizes packed 8-bit RGB pixels with the ImageNet
// statistics.
func NewPixelTensor(rgb []byte, width, height int) (*PixelTensor, error) {
	return NewPixelTensorWith(rgb, width, height, ImageNetMean, ImageNetStd)
}

// NewPixelTensorWith normalizes packed 8-bit RGB pixels as (v - mean) / std.
func NewPixelTensorWith(rgb []byte, width, height int, mean, std [3]float32) (*PixelTensor, error) {
	if width <= 0 || height <= 0 {
		return nil, errors.Errorf("invalid tensor dimensions: %dx%d", width, height)
	}
	n := width * height * 3
	if len(rgb) < n {
		return nil, errors.Errorf("pixel buffer holds %d bytes, need %d", len(rgb), n)
	}

	data := make([]float32, n)
	for i := 0; i < n; i++ {
		c := i % 3
		data[i] = (float32(rgb[i]) - mean[c]) / std[c]
	}

	return &PixelTensor{
		Data:   data,
		Width:  width,
		Height: height,
		Layout: LayoutHWC,
		Mean:   mean,
		Std:    std,
	}, nil
}

// CHW returns the tensor data in planar channel-first order.
func (t *PixelTensor) CHW() []float32 {
	plane := t.Width * t.Height
	out := make([]float32, plane*3)
	for i := 0; i < plane; i++ {
		out[i] = t.Data[i*3]
		out[plane+i] = t.Data[i*3+1]
		out[2*plane+i] = t.Data[i*3+2]
	}
	return out
}

// Point is a normalized prompt location in [0, 1].
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Scaled maps the point into the decoder's InputSize coordinate space.
func (p Point) Scaled() (float32, float32) {
	return float32(p.X * InputSize), float32(p.Y * InputSize)
}
