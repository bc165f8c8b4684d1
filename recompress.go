package imgsync

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"
)

// RecompressReport summarizes one Recompress run.
type RecompressReport struct {
	Months   []string // month keys scanned
	Checked  int
	Replaced []string // archive paths rewritten
	Saved    int64    // bytes saved over all replaced files
}

// Recompress re-encodes the archived images of the given months, or of
// every month when none are given, at RecompressQuality. A file is replaced
// only when the result is more than RecompressMinSaving bytes smaller.
// Undecodable files are logged and left alone.
func Recompress(ctx context.Context, cfg *Config, months ...string) (*RecompressReport, error) {
	cfg.defaults()
	imagesDir := cfg.ImagesDir()

	var scanned map[string][]string
	var err error
	if len(months) == 0 {
		scanned, err = scanMonths(imagesDir)
	} else {
		scanned, err = scanNamedMonths(imagesDir, months)
	}
	if err != nil {
		return nil, err
	}

	report := &RecompressReport{}
	for _, key := range slices.Sorted(maps.Keys(scanned)) {
		report.Months = append(report.Months, key)
		dir := filepath.Join(imagesDir, filepath.FromSlash(key))
		for _, name := range scanned[key] {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			path := filepath.Join(dir, name)
			saved, err := recompressFile(path)
			if err != nil {
				return nil, err
			}
			report.Checked++
			if saved > 0 {
				report.Replaced = append(report.Replaced, path)
				report.Saved += saved
			}
		}
	}
	slog.Info("imgsync: recompress done",
		"months", len(report.Months), "checked", report.Checked,
		"replaced", len(report.Replaced), "saved_kb", report.Saved>>10)
	return report, nil
}

// RecompressMonth is Recompress for a single "yyyy/mm" month.
func RecompressMonth(ctx context.Context, cfg *Config, key string) (*RecompressReport, error) {
	return Recompress(ctx, cfg, key)
}

// recompressFile replaces path with a smaller re-encoding and returns the
// bytes saved, or 0 when the file was kept.
func recompressFile(path string) (int64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", path, err)
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		slog.Warn("imgsync: recompress skipped", "path", path, "error", err.Error())
		return 0, nil
	}
	out, err := encodeProgressive(img, RecompressQuality)
	if err != nil {
		return 0, fmt.Errorf("recompress %s: %w", path, err)
	}

	saved := int64(len(data) - len(out))
	if saved <= RecompressMinSaving {
		slog.Debug("imgsync: recompress kept", "path", path, "saved", saved)
		return 0, nil
	}
	if err := writeFileAtomic(path, out); err != nil {
		return 0, err
	}
	slog.Info("imgsync: recompressed", "path", path, "saved_kb", saved>>10)
	return saved, nil
}
