package imgsync

import (
	"bytes"
	"fmt"
	"image/jpeg"
	"log/slog"
	"net/http"
)

// ValidateMedia checks that a downloaded payload really is a JPEG photo
// before it is fingerprinted:
//   - sniffed content type is image/jpeg
//   - the JPEG header decodes to non-empty dimensions
//
// A payload of another type wraps ErrNotPhoto; a broken header is a
// *DecodeError.
func ValidateMedia(data []byte, source string) error {
	if ct := http.DetectContentType(data); ct != "image/jpeg" {
		return fmt.Errorf("%w: %s payload is %s", ErrNotPhoto, source, ct)
	}

	cfg, err := jpeg.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return &DecodeError{Source: source, Err: err}
	}
	if cfg.Width == 0 || cfg.Height == 0 {
		slog.Debug("imgsync: empty jpeg", "source", source)
		return &DecodeError{Source: source, Err: fmt.Errorf("empty image %dx%d", cfg.Width, cfg.Height)}
	}
	return nil
}
