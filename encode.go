package imgsync

import (
	"bytes"
	"fmt"
	"image"

	"github.com/gen2brain/jpegli"
)

// progressiveLevel is the jpegli scan script depth; 0 would be baseline.
const progressiveLevel = 2

// encodeProgressive encodes img as a progressive JPEG at quality with
// optimized Huffman tables.
func encodeProgressive(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	err := jpegli.Encode(&buf, img, &jpegli.EncodingOptions{
		Quality:           quality,
		ChromaSubsampling: image.YCbCrSubsampleRatio420,
		ProgressiveLevel:  progressiveLevel,
		OptimizeCoding:    true,
	})
	if err != nil {
		return nil, fmt.Errorf("jpeg encode: %w", err)
	}
	return buf.Bytes(), nil
}
