package imgsync

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	xdraw "golang.org/x/image/draw"
)

// uploadExts are the extensions picked up from upload directories.
var uploadExts = []string{".jpg", ".jpeg", ".png", ".webp"}

// datedNameRe finds an ISO date anywhere in an upload name.
var datedNameRe = regexp.MustCompile(`20[0-9]{2}-[0-1][0-9]-[0-3][0-9]`)

// IngestReport summarizes one IngestUploads run.
type IngestReport struct {
	Files   []string // archive paths created
	Dirs    []string // month keys touched
	Skipped []string // uploads left in place
}

// IngestUploads moves loose images from the upload directories into the
// archive tree. With no dirs, Root, Root/images and Root/upload are
// scanned. PNG and WebP uploads are re-encoded as JPEG.
func IngestUploads(ctx context.Context, cfg *Config, dirs ...string) (*IngestReport, error) {
	cfg.defaults()
	if len(dirs) == 0 {
		dirs = []string{cfg.Root, cfg.ImagesDir(), filepath.Join(cfg.Root, "upload")}
	}

	report := &IngestReport{}
	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("scan %s: %w", dir, err)
		}
		for _, e := range entries {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if !e.Type().IsRegular() || !IsUpload(e.Name()) {
				continue
			}
			src := filepath.Join(dir, e.Name())
			target, err := IngestFile(cfg, src, time.Now())
			if err != nil {
				var decodeErr *DecodeError
				if errors.As(err, &decodeErr) || errors.Is(err, os.ErrExist) {
					slog.Warn("imgsync: upload skipped", "path", src, "error", err.Error())
					report.Skipped = append(report.Skipped, src)
					continue
				}
				return nil, err
			}
			report.Files = append(report.Files, target)
			if key, err := MonthKey(target); err == nil && !slices.Contains(report.Dirs, key) {
				report.Dirs = append(report.Dirs, key)
			}
		}
	}
	return report, nil
}

// IsUpload reports whether a filename is an ingestible upload.
func IsUpload(name string) bool {
	if strings.HasPrefix(name, "favico") {
		return false
	}
	return slices.Contains(uploadExts, strings.ToLower(filepath.Ext(name)))
}

// IngestFile moves one upload into the archive under UploadFileName and
// returns its new path.
func IngestFile(cfg *Config, src string, now time.Time) (string, error) {
	cfg.defaults()
	data, err := os.ReadFile(src)
	if err != nil {
		return "", fmt.Errorf("read upload %s: %w", src, err)
	}

	name := filepath.Base(src)
	ext := strings.ToLower(filepath.Ext(name))
	base := strings.TrimSuffix(name, filepath.Ext(name))

	target := UploadFileName(base, ext, data, now)
	path, err := ArchivePath(cfg.ImagesDir(), target)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(path); err == nil {
		return "", fmt.Errorf("ingest %s: %s: %w", src, path, os.ErrExist)
	}

	slog.Info("imgsync: ingest", "src", src, "dst", path)

	if ext == ".png" || ext == ".webp" {
		out, err := reencodeJPEG(data, src)
		if err != nil {
			return "", err
		}
		if err := writeFileAtomic(path, out); err != nil {
			return "", err
		}
		if err := os.Remove(src); err != nil {
			return "", fmt.Errorf("remove upload %s: %w", src, err)
		}
		return path, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", &PersistenceError{Path: path, Err: err}
	}
	if err := os.Rename(src, path); err != nil {
		// Cross-device move: copy through the atomic writer, then drop the source.
		if werr := writeFileAtomic(path, data); werr != nil {
			return "", werr
		}
		if rerr := os.Remove(src); rerr != nil {
			return "", fmt.Errorf("remove upload %s: %w", src, rerr)
		}
	}
	return path, nil
}

// UploadFileName picks the archive name for an upload with the given base
// name and extension. A name carrying an ISO date is kept, prefixed with
// that date when it does not already start with it. Other uploads are
// named from their EXIF capture time (or now) and a content hash, followed
// by the original base name.
func UploadFileName(base, ext string, data []byte, now time.Time) string {
	if loc := datedNameRe.FindStringIndex(base); loc != nil {
		if loc[0] == 0 {
			return base + ".jpg"
		}
		return base[loc[0]:loc[1]] + "_" + base + ".jpg"
	}
	stamp := now
	if t, ok := CaptureTime(data, ext); ok {
		stamp = t
	}
	sum := sha256.Sum256(data)
	return stamp.Format(uploadStampLayout) + "_" + hex.EncodeToString(sum[:])[:15] + "_" + base + ".jpg"
}

// reencodeJPEG flattens an image onto black and encodes it as a
// progressive JPEG at ReencodedQuality.
func reencodeJPEG(data []byte, src string) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, &DecodeError{Source: src, Err: err}
	}
	b := img.Bounds()
	flat := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	xdraw.Draw(flat, flat.Bounds(), image.NewUniform(color.Black), image.Point{}, xdraw.Src)
	xdraw.Draw(flat, flat.Bounds(), img, b.Min, xdraw.Over)

	out, err := encodeProgressive(flat, ReencodedQuality)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", src, err)
	}
	return out, nil
}
