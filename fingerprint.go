package imgsync

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"strconv"
	"strings"

	"github.com/nfnt/resize"
	_ "golang.org/x/image/webp"
)

// Fingerprint is a coarse 12-character hex content hash. Two images with the
// same fingerprint are treated as visually identical for dedup purposes.
type Fingerprint string

const (
	fingerprintGrid   = 4
	fingerprintColors = 8
	fingerprintWidth  = 12
)

// FingerprintBytes decodes data and returns its content fingerprint.
func FingerprintBytes(data []byte) (Fingerprint, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return "", &DecodeError{Err: err}
	}
	return FingerprintImage(img), nil
}

// FingerprintImage reduces img to a 4×4 grid, quantizes it to an adaptive
// 8-color median cut palette and encodes the mean-centered palette indices
// as base-8 digits. Each pixel takes the index of the box it fell into, in
// cut tree order, so a re-encoded or pre-shrunk copy hashes like its source
// as long as the cuts land between the same colors.
func FingerprintImage(img image.Image) Fingerprint {
	small := resize.Resize(fingerprintGrid, fingerprintGrid, img, resize.Lanczos3)
	_, idx := quantize(pixelsRGB(small), fingerprintColors)

	sum := 0
	for _, v := range idx {
		sum += v
	}
	mean := float64(sum) / float64(len(idx))

	// Residuals truncate toward zero; after the shift every value is a
	// single octal digit because indices stay within [0, 7].
	residuals := make([]int, len(idx))
	lowest := 0
	for i, v := range idx {
		residuals[i] = int(float64(v) - mean)
		lowest = min(lowest, residuals[i])
	}
	offset := -lowest

	var sb strings.Builder
	for _, r := range residuals {
		sb.WriteString(strconv.Itoa(offset + r))
	}
	n, err := strconv.ParseUint(sb.String(), 8, 64)
	if err != nil {
		// Unreachable for a 4×4 grid with 8 colors.
		panic(fmt.Sprintf("imgsync: fingerprint digits %q: %v", sb.String(), err))
	}
	return Fingerprint(fmt.Sprintf("%0*x", fingerprintWidth, n))
}
