package imgsync

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"slices"

	xdraw "golang.org/x/image/draw"
)

// spriteStampPrefix tags the JPEG comment that records which entry index
// a sprite was rendered from.
const spriteStampPrefix = "imgsync entry-index sha256:"

// SpriteSize returns the canvas size for n entries: GridColumns cells wide
// and one row of slack below the last full row.
func SpriteSize(n int) (w, h int) {
	rows := n / GridColumns
	w = CellSize*GridColumns + GridColumns*CellPadding
	h = CellSize*(rows+1) + rows*CellPadding
	return w, h
}

// ComposeSprite renders the contact sheet for entries whose images live in
// dir. Each image is shrunk to fit a cell and centered along its shorter
// axis. Unreadable images leave their cell empty.
func ComposeSprite(ctx context.Context, entries EntryIndex, dir string) (*image.RGBA, error) {
	w, h := SpriteSize(len(entries))
	canvas := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.Draw(canvas, canvas.Bounds(), image.NewUniform(color.Black), image.Point{}, xdraw.Src)

	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		path := filepath.Join(dir, e.Name)
		img, err := decodeFile(path)
		if err != nil {
			slog.Warn("imgsync: sprite source unreadable", "path", path, "error", err.Error())
			continue
		}

		tw, th := fitWithin(img.Bounds().Dx(), img.Bounds().Dy(), CellSize)
		var ox, oy int
		if e.W > e.H {
			oy = (CellSize - th) / 2
		} else {
			ox = (CellSize - tw) / 2
		}
		dst := image.Rect(e.X+ox, e.Y+oy, e.X+ox+tw, e.Y+oy+th)
		xdraw.CatmullRom.Scale(canvas, dst, img, img.Bounds(), xdraw.Src, nil)
	}
	return canvas, nil
}

// fitWithin scales (w, h) down to fit a size×size box keeping the aspect
// ratio. Images already small enough keep their size.
func fitWithin(w, h, size int) (int, int) {
	if w <= size && h <= size {
		return w, h
	}
	scale := math.Min(float64(size)/float64(w), float64(size)/float64(h))
	tw := max(1, int(math.Round(float64(w)*scale)))
	th := max(1, int(math.Round(float64(h)*scale)))
	return min(tw, size), min(th, size)
}

func decodeFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, &DecodeError{Source: path, Err: err}
	}
	return img, nil
}

// EncodeSprite encodes the sprite as a progressive JPEG at SpriteQuality
// and embeds stamp in a comment segment.
func EncodeSprite(img image.Image, stamp string) ([]byte, error) {
	data, err := encodeProgressive(img, SpriteQuality)
	if err != nil {
		return nil, fmt.Errorf("encode sprite: %w", err)
	}
	return withJPEGComment(data, spriteStampPrefix+stamp)
}

// SpriteStamp returns the version stamp of an entry_index.json payload.
func SpriteStamp(entryIndex []byte) string {
	sum := sha256.Sum256(entryIndex)
	return hex.EncodeToString(sum[:16])
}

// SpriteReport summarizes one UpdateSprites run.
type SpriteReport struct {
	Checked []string // month keys with an entry index
	Updated []string // month keys whose thumbnails.jpg was rendered
}

// UpdateSprites re-renders thumbnails.jpg for the given months, or every
// month with an entry index when none are given, whenever the stamp stored
// in the sprite differs from the current entry index content.
func UpdateSprites(ctx context.Context, cfg *Config, dirs ...string) (*SpriteReport, error) {
	imagesDir := cfg.ImagesDir()
	if len(dirs) == 0 {
		matches, err := filepath.Glob(filepath.Join(imagesDir, "*", "*", EntryIndexFileName))
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", imagesDir, err)
		}
		for _, m := range matches {
			rel, err := filepath.Rel(imagesDir, filepath.Dir(m))
			if err != nil {
				return nil, err
			}
			dirs = append(dirs, filepath.ToSlash(rel))
		}
	}
	dirs = slices.Sorted(slices.Values(dirs))

	report := &SpriteReport{}
	for _, key := range dirs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		dir := filepath.Join(imagesDir, filepath.FromSlash(key))
		entries, raw, err := LoadEntryIndex(filepath.Join(dir, EntryIndexFileName))
		if err != nil {
			return nil, err
		}
		if raw == nil {
			continue
		}
		report.Checked = append(report.Checked, key)

		stamp := SpriteStamp(raw)
		spritePath := filepath.Join(dir, SpriteFileName)
		current, err := readSpriteStamp(spritePath)
		if err != nil {
			return nil, err
		}
		if current == stamp {
			continue
		}

		slog.Info("imgsync: updating thumbnails", "path", spritePath, "entries", len(entries))
		canvas, err := ComposeSprite(ctx, entries, dir)
		if err != nil {
			return nil, err
		}
		data, err := EncodeSprite(canvas, stamp)
		if err != nil {
			return nil, err
		}
		if err := writeFileAtomic(spritePath, data); err != nil {
			return nil, err
		}
		report.Updated = append(report.Updated, key)
	}
	return report, nil
}

// readSpriteStamp returns the stamp embedded in a sprite, or "" when the
// sprite is missing or carries none.
func readSpriteStamp(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("open sprite %s: %w", path, err)
	}
	defer f.Close()

	head := make([]byte, 4+2+len(spriteStampPrefix)+64)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read sprite %s: %w", path, err)
	}
	comment, ok := leadingJPEGComment(head[:n])
	if !ok {
		return "", nil
	}
	stamp, found := bytes.CutPrefix(comment, []byte(spriteStampPrefix))
	if !found {
		return "", nil
	}
	return string(stamp), nil
}

// withJPEGComment inserts a COM segment right after the SOI marker.
func withJPEGComment(data []byte, comment string) ([]byte, error) {
	if len(data) < 2 || data[0] != 0xFF || data[1] != 0xD8 {
		return nil, errors.New("imgsync: not a jpeg stream")
	}
	if len(comment) > math.MaxUint16-2 {
		return nil, errors.New("imgsync: jpeg comment too long")
	}
	out := make([]byte, 0, len(data)+4+len(comment))
	out = append(out, 0xFF, 0xD8, 0xFF, 0xFE)
	out = binary.BigEndian.AppendUint16(out, uint16(len(comment)+2))
	out = append(out, comment...)
	out = append(out, data[2:]...)
	return out, nil
}

// leadingJPEGComment returns the payload of a COM segment that directly
// follows SOI.
func leadingJPEGComment(head []byte) ([]byte, bool) {
	if len(head) < 6 || head[0] != 0xFF || head[1] != 0xD8 || head[2] != 0xFF || head[3] != 0xFE {
		return nil, false
	}
	size := int(binary.BigEndian.Uint16(head[4:6])) - 2
	if size < 0 || 6+size > len(head) {
		return nil, false
	}
	return head[6 : 6+size], true
}
