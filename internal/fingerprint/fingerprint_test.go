package fingerprint

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classcount/classcount-go/internal/errors"
)

func encodePNG(t *testing.T, c color.RGBA) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for x := 0; x < 4; x++ {
		for y := 0; y < 4; y++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestComputeDeterministic(t *testing.T) {
	data := encodePNG(t, color.RGBA{R: 200, A: 255})

	first, err := Compute(data)
	require.NoError(t, err)
	second, err := Compute(data)
	require.NoError(t, err)

	assert.Equal(t, first, second, "identical bytes must produce identical fingerprints")
	assert.Len(t, first, 64, "fingerprint should be a hex SHA-256 digest")
}

func TestComputeDistinguishesContent(t *testing.T) {
	red, err := Compute(encodePNG(t, color.RGBA{R: 255, A: 255}))
	require.NoError(t, err)
	blue, err := Compute(encodePNG(t, color.RGBA{B: 255, A: 255}))
	require.NoError(t, err)

	assert.NotEqual(t, red, blue)
}

func TestComputeEmptyInput(t *testing.T) {
	_, err := Compute(nil)
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))
}

func TestComputeUndecodableInput(t *testing.T) {
	_, err := Compute([]byte("this is not an image"))
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryImageDecode))
	assert.False(t, errors.IsValidation(err))
}
