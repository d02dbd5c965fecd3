// Package fingerprint computes content digests of uploaded images for
// duplicate detection.
package fingerprint

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"image"

	_ "image/gif"  // register GIF decoder
	_ "image/jpeg" // register JPEG decoder
	_ "image/png"  // register PNG decoder

	"github.com/classcount/classcount-go/internal/errors"
)

// Compute returns the hex-encoded SHA-256 digest of the image bytes.
// Identical bytes always produce the same digest. The bytes must decode as a
// supported image format, otherwise a validation error is returned.
func Compute(data []byte) (string, error) {
	if len(data) == 0 {
		return "", errors.Newf("cannot fingerprint empty image data").
			Component("fingerprint").
			Category(errors.CategoryValidation).
			Build()
	}

	if _, _, err := image.DecodeConfig(bytes.NewReader(data)); err != nil {
		return "", errors.New(err).
			Component("fingerprint").
			Category(errors.CategoryImageDecode).
			Context("size_bytes", len(data)).
			Build()
	}

	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
