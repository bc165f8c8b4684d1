package imgsync

import (
	"bytes"
	"strings"
	"time"

	"github.com/bep/imagemeta"
)

// exifDateLayout is the EXIF 2.3 date/time format.
const exifDateLayout = "2006:01:02 15:04:05"

// captureTags are tried in order; the first parseable value wins.
var captureTags = []string{"DateTimeOriginal", "DateTimeDigitized", "DateTime"}

// imageFormatFor maps a lowercase file extension to the imagemeta format.
func imageFormatFor(ext string) (imagemeta.ImageFormat, bool) {
	switch strings.ToLower(ext) {
	case ".jpg", ".jpeg":
		return imagemeta.JPEG, true
	case ".png":
		return imagemeta.PNG, true
	case ".webp":
		return imagemeta.WebP, true
	default:
		return 0, false
	}
}

// CaptureTime extracts the EXIF capture time from raw image bytes.
// Returns false if the data carries no parseable capture time.
// Graceful degradation: never returns an error.
func CaptureTime(data []byte, ext string) (time.Time, bool) {
	if len(data) == 0 {
		return time.Time{}, false
	}
	format, ok := imageFormatFor(ext)
	if !ok {
		return time.Time{}, false
	}

	found := make(map[string]string, len(captureTags))
	_, err := imagemeta.Decode(imagemeta.Options{
		R:           bytes.NewReader(data),
		ImageFormat: format,
		Sources:     imagemeta.EXIF,
		ShouldHandleTag: func(ti imagemeta.TagInfo) bool {
			for _, tag := range captureTags {
				if ti.Tag == tag {
					return true
				}
			}
			return false
		},
		HandleTag: func(ti imagemeta.TagInfo) error {
			if s := tagValueString(ti.Value); s != "" {
				found[ti.Tag] = s
			}
			return nil
		},
	})
	if err != nil {
		return time.Time{}, false
	}

	for _, tag := range captureTags {
		if s, ok := found[tag]; ok {
			if t, err := time.Parse(exifDateLayout, strings.TrimSpace(s)); err == nil {
				return t, true
			}
		}
	}
	return time.Time{}, false
}

// tagValueString extracts a string from a tag value.
func tagValueString(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case []string:
		if len(val) > 0 {
			return val[0]
		}
		return ""
	case time.Time:
		return val.Format(exifDateLayout)
	default:
		return ""
	}
}
