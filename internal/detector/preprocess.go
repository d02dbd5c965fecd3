package detector

import (
	"image"

	tflite "github.com/tphakala/go-tflite"
	"golang.org/x/image/draw"

	"github.com/classcount/classcount-go/internal/errors"
)

// fillInputTensor scales the image to the model's input resolution and copies
// the pixel data into the input tensor, handling both quantized (uint8) and
// float32 models.
func (d *Detector) fillInputTensor(img image.Image) error {
	inputTensor := d.interpreter.GetInputTensor(0)
	if inputTensor == nil {
		return errors.Newf("cannot get input tensor").
			Component("detector").
			Category(errors.CategoryInference).
			Build()
	}

	resized := image.NewRGBA(image.Rect(0, 0, d.inputWidth, d.inputHeight))
	draw.ApproxBiLinear.Scale(resized, resized.Bounds(), img, img.Bounds(), draw.Src, nil)

	if d.quantized {
		data := inputTensor.UInt8s()
		if len(data) < d.inputWidth*d.inputHeight*3 {
			return inputSizeError(len(data), d.inputWidth, d.inputHeight)
		}
		idx := 0
		for y := 0; y < d.inputHeight; y++ {
			for x := 0; x < d.inputWidth; x++ {
				p := resized.PixOffset(x, y)
				data[idx] = resized.Pix[p]
				data[idx+1] = resized.Pix[p+1]
				data[idx+2] = resized.Pix[p+2]
				idx += 3
			}
		}
		return nil
	}

	if inputTensor.Type() != tflite.Float32 {
		return errors.Newf("unsupported input tensor type: %v", inputTensor.Type()).
			Component("detector").
			Category(errors.CategoryInference).
			Build()
	}

	data := inputTensor.Float32s()
	if len(data) < d.inputWidth*d.inputHeight*3 {
		return inputSizeError(len(data), d.inputWidth, d.inputHeight)
	}
	// Float models expect pixel values normalized to [-1, 1].
	idx := 0
	for y := 0; y < d.inputHeight; y++ {
		for x := 0; x < d.inputWidth; x++ {
			p := resized.PixOffset(x, y)
			data[idx] = float32(resized.Pix[p])/127.5 - 1.0
			data[idx+1] = float32(resized.Pix[p+1])/127.5 - 1.0
			data[idx+2] = float32(resized.Pix[p+2])/127.5 - 1.0
			idx += 3
		}
	}
	return nil
}

func inputSizeError(got, width, height int) error {
	return errors.Newf("input tensor too small: got %d values for %dx%dx3 input", got, width, height).
		Component("detector").
		Category(errors.CategoryInference).
		Build()
}
