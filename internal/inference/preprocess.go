package inference

import (
	"image"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// DecodeImage decodes an encoded image (JPEG, PNG, ...) into a BGR Mat.
// The caller owns the returned Mat.
func DecodeImage(data []byte) (gocv.Mat, error) {
	if len(data) == 0 {
		return gocv.NewMat(), errors.New("image data is empty")
	}

	mat, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err != nil {
		return mat, errors.Wrap(err, "image decoding failed")
	}
	if mat.Empty() {
		mat.Close()
		return gocv.NewMat(), errors.New("image decoding produced an empty matrix")
	}
	return mat, nil
}

// PreprocessMat resizes a BGR Mat to size x size, converts it to RGB and
// normalizes it into an HWC PixelTensor.
func PreprocessMat(src gocv.Mat, size int) (*PixelTensor, error) {
	if src.Empty() {
		return nil, errors.New("source matrix is empty")
	}
	if size <= 0 {
		size = InputSize
	}

	resized := gocv.NewMat()
	defer resized.Close()
	gocv.Resize(src, &resized, image.Point{X: size, Y: size}, 0, 0, gocv.InterpolationLinear)

	rgb := gocv.NewMat()
	defer rgb.Close()
	gocv.CvtColor(resized, &rgb, gocv.ColorBGRToRGB)

	tensor, err := NewPixelTensor(rgb.ToBytes(), size, size)
	if err != nil {
		return nil, errors.Wrap(err, "tensor conversion failed")
	}
	return tensor, nil
}

// Preprocess decodes and normalizes an encoded image for the encoder.
func Preprocess(data []byte) (*PixelTensor, error) {
	mat, err := DecodeImage(data)
	if err != nil {
		return nil, err
	}
	defer mat.Close()

	return PreprocessMat(mat, InputSize)
}
