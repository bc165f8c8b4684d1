package imgsync

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	// messageStampLayout prefixes channel message files. It is the dashed
	// form the archive has always used, so new files sort among old ones.
	messageStampLayout = "2006-01-02T150405"
	// uploadStampLayout prefixes undated uploads.
	uploadStampLayout = "20060102T150405"
)

// MessageFileName derives the archive filename for a channel message:
// YYYY-MM-DDTHHMMSS_<id>_<fingerprint>.jpg, in UTC.
func MessageFileName(date time.Time, id int64, fp Fingerprint) string {
	return date.UTC().Format(messageStampLayout) + "_" + strconv.FormatInt(id, 10) + "_" + string(fp) + ".jpg"
}

// ParseNameDate returns the calendar date encoded in the filename prefix.
// Both the compact (20240930T...) and the legacy dashed (2024-09-30T...)
// forms are accepted.
func ParseNameDate(name string) (time.Time, error) {
	compact := strings.ReplaceAll(filepath.Base(name), "-", "")
	if len(compact) < 8 {
		return time.Time{}, fmt.Errorf("imgsync: no date prefix in %q", name)
	}
	d, err := time.Parse("20060102", compact[:8])
	if err != nil {
		return time.Time{}, fmt.Errorf("imgsync: no date prefix in %q: %w", name, err)
	}
	return d, nil
}

// MonthKey returns the "yyyy/mm" directory key for an archive filename.
func MonthKey(name string) (string, error) {
	d, err := ParseNameDate(name)
	if err != nil {
		return "", err
	}
	return d.Format("2006/01"), nil
}

// ArchivePath returns images/<yyyy>/<mm>/<name> for an archive filename.
func ArchivePath(imagesDir, name string) (string, error) {
	key, err := MonthKey(name)
	if err != nil {
		return "", err
	}
	return filepath.Join(imagesDir, filepath.FromSlash(key), name), nil
}

// isArchiveImage reports whether a filename in a month directory is an
// archived image (and not the reserved sprite).
func isArchiveImage(name string) bool {
	if name == SpriteFileName {
		return false
	}
	return strings.EqualFold(filepath.Ext(name), ".jpg")
}

// daysApart returns the absolute distance in whole days between two dates.
func daysApart(a, b time.Time) int {
	d := a.Sub(b)
	if d < 0 {
		d = -d
	}
	return int(d / (24 * time.Hour))
}
