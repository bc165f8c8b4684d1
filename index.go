package imgsync

import (
	"bytes"
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strconv"
)

// ImageEntry is one image and its cell in the month sprite.
type ImageEntry struct {
	X    int    `json:"x"`
	Y    int    `json:"y"`
	W    int    `json:"w"`
	H    int    `json:"h"`
	Name string `json:"name"`
}

// EntryIndex lists the images of one month directory.
type EntryIndex []ImageEntry

// DirIndex maps "yyyy/mm" to the number of archived images in that month.
type DirIndex map[string]int

// CellAt returns the sprite offset of the i-th image, counting from the
// newest. Every column and row index adds CellPadding on top of CellSize.
func CellAt(i int) (x, y int) {
	col, row := i%GridColumns, i/GridColumns
	return col * (CellSize + CellPadding), row * (CellSize + CellPadding)
}

// IndexReport summarizes one IndexBuilder run.
type IndexReport struct {
	Dirs            []string // month keys scanned
	Updated         []string // month keys whose entry_index.json was rewritten
	DirIndexWritten bool
}

// IndexBuilder derives dir_index.json and the per-month entry_index.json
// files from the archive tree.
type IndexBuilder struct {
	cfg *Config
}

// NewIndexBuilder returns a builder for the archive configured in cfg.
func NewIndexBuilder(cfg *Config) *IndexBuilder {
	cfg.defaults()
	return &IndexBuilder{cfg: cfg}
}

// Update rescans the given month directories ("yyyy/mm"), or every month
// when none are given, merges their counts into dir_index.json and rewrites
// the entry indexes whose content changed. Months not scanned keep their
// previous counts.
func (b *IndexBuilder) Update(ctx context.Context, dirs ...string) (*IndexReport, error) {
	imagesDir := b.cfg.ImagesDir()

	var months map[string][]string
	var err error
	if len(dirs) == 0 {
		months, err = scanMonths(imagesDir)
	} else {
		months, err = scanNamedMonths(imagesDir, dirs)
	}
	if err != nil {
		return nil, err
	}

	report := &IndexReport{Dirs: slices.Sorted(maps.Keys(months))}

	dirIndexPath := filepath.Join(imagesDir, DirIndexFileName)
	dirIndex, err := LoadDirIndex(dirIndexPath)
	if err != nil {
		return nil, err
	}
	counts := make(DirIndex, len(months))
	for key, names := range months {
		counts[key] = len(names)
	}
	dirIndex.Merge(counts)

	data, err := MarshalDirIndex(dirIndex)
	if err != nil {
		return nil, err
	}
	if report.DirIndexWritten, err = writeIfChanged(dirIndexPath, data); err != nil {
		return nil, err
	}
	if report.DirIndexWritten {
		slog.Info("imgsync: updating dir index", "path", dirIndexPath)
	}

	for _, key := range report.Dirs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		names := months[key]
		if len(names) == 0 {
			continue
		}
		written, err := b.updateEntryIndex(filepath.Join(imagesDir, filepath.FromSlash(key)), names)
		if err != nil {
			return nil, err
		}
		if written {
			report.Updated = append(report.Updated, key)
		}
	}
	return report, nil
}

// RebuildDirIndex replaces dir_index.json with counts from a full scan,
// dropping months that no longer hold images. This is a maintenance
// operation; Update merges instead.
func (b *IndexBuilder) RebuildDirIndex(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	imagesDir := b.cfg.ImagesDir()
	months, err := scanMonths(imagesDir)
	if err != nil {
		return false, err
	}
	dirIndex := make(DirIndex, len(months))
	for key, names := range months {
		dirIndex[key] = len(names)
	}
	data, err := MarshalDirIndex(dirIndex)
	if err != nil {
		return false, err
	}
	return writeIfChanged(filepath.Join(imagesDir, DirIndexFileName), data)
}

func (b *IndexBuilder) updateEntryIndex(dir string, names []string) (bool, error) {
	path := filepath.Join(dir, EntryIndexFileName)
	previous, _, err := LoadEntryIndex(path)
	if err != nil {
		return false, err
	}
	known := make(map[string]ImageEntry, len(previous))
	for _, e := range previous {
		known[e.Name] = e
	}

	// Newest name first; the date prefix makes name order time order.
	entries := make(EntryIndex, 0, len(names))
	for i, name := range slices.Backward(names) {
		cell := len(names) - 1 - i
		x, y := CellAt(cell)

		e, ok := known[name]
		if !ok || b.cfg.RefreshEntries {
			w, h, err := imageSize(filepath.Join(dir, name))
			if err != nil {
				slog.Warn("imgsync: skipping unreadable image", "path", filepath.Join(dir, name), "error", err.Error())
				continue
			}
			e = ImageEntry{W: w, H: h, Name: name}
		}
		e.X, e.Y = x, y
		entries = append(entries, e)
	}

	slices.SortFunc(entries, func(a, b ImageEntry) int {
		return cmp.Compare(a.Name, b.Name)
	})

	written, err := writeIfChanged(path, MarshalEntryIndex(entries))
	if err != nil {
		return false, err
	}
	if written {
		slog.Info("imgsync: updating index", "path", path)
	}
	return written, nil
}

func imageSize(path string) (int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()
	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, &DecodeError{Source: path, Err: err}
	}
	return cfg.Width, cfg.Height, nil
}

// Merge overwrites the counts of the given months; a zero count removes
// the month. Months absent from counts are left untouched.
func (d DirIndex) Merge(counts DirIndex) {
	for key, n := range counts {
		if n <= 0 {
			delete(d, key)
			continue
		}
		d[key] = n
	}
}

// LoadDirIndex reads dir_index.json. A missing file yields an empty index.
func LoadDirIndex(path string) (DirIndex, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DirIndex{}, nil
		}
		return nil, fmt.Errorf("read dir index %s: %w", path, err)
	}
	d := DirIndex{}
	if len(bytes.TrimSpace(data)) == 0 {
		return d, nil
	}
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("decode dir index %s: %w", path, err)
	}
	return d, nil
}

// MarshalDirIndex renders the index with sorted keys and two-space indent.
func MarshalDirIndex(d DirIndex) ([]byte, error) {
	data, err := json.MarshalIndent(map[string]int(d), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode dir index: %w", err)
	}
	return data, nil
}

// LoadEntryIndex reads an entry_index.json and also returns its raw bytes.
// A missing file yields an empty index and nil bytes.
func LoadEntryIndex(path string) (EntryIndex, []byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf("read entry index %s: %w", path, err)
	}
	var entries EntryIndex
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, data, nil
	}
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, nil, fmt.Errorf("decode entry index %s: %w", path, err)
	}
	return entries, data, nil
}

// MarshalEntryIndex renders one entry object per line in the order given.
func MarshalEntryIndex(entries EntryIndex) []byte {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, e := range entries {
		if i > 0 {
			buf.WriteString(",\n")
		}
		buf.WriteString(`{"x": `)
		buf.WriteString(strconv.Itoa(e.X))
		buf.WriteString(`, "y": `)
		buf.WriteString(strconv.Itoa(e.Y))
		buf.WriteString(`, "w": `)
		buf.WriteString(strconv.Itoa(e.W))
		buf.WriteString(`, "h": `)
		buf.WriteString(strconv.Itoa(e.H))
		buf.WriteString(`, "name": `)
		name, _ := json.Marshal(e.Name) // strings always marshal
		buf.Write(name)
		buf.WriteByte('}')
	}
	buf.WriteByte(']')
	return buf.Bytes()
}

// scanMonths groups archived images by "yyyy/mm" for every month directory
// below imagesDir. Names are sorted ascending.
func scanMonths(imagesDir string) (map[string][]string, error) {
	months := make(map[string][]string)
	years, err := os.ReadDir(imagesDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return months, nil
		}
		return nil, fmt.Errorf("scan %s: %w", imagesDir, err)
	}
	for _, year := range years {
		if !year.IsDir() || !isDigits(year.Name(), 4) {
			continue
		}
		mms, err := os.ReadDir(filepath.Join(imagesDir, year.Name()))
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", year.Name(), err)
		}
		for _, mm := range mms {
			if !mm.IsDir() || !isDigits(mm.Name(), 2) {
				continue
			}
			key := year.Name() + "/" + mm.Name()
			names, err := listMonth(filepath.Join(imagesDir, year.Name(), mm.Name()))
			if err != nil {
				return nil, err
			}
			if len(names) > 0 {
				months[key] = names
			}
		}
	}
	return months, nil
}

// scanNamedMonths lists only the given months. A month without images maps
// to an empty list so its count is dropped on merge.
func scanNamedMonths(imagesDir string, keys []string) (map[string][]string, error) {
	months := make(map[string][]string, len(keys))
	for _, key := range keys {
		if len(key) != 7 || !isDigits(key[:4], 4) || key[4] != '/' || !isDigits(key[5:], 2) {
			return nil, fmt.Errorf("imgsync: invalid month key %q", key)
		}
		names, err := listMonth(filepath.Join(imagesDir, filepath.FromSlash(key)))
		if err != nil {
			return nil, err
		}
		months[key] = names
	}
	return months, nil
}

func listMonth(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan %s: %w", dir, err)
	}
	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() && isArchiveImage(e.Name()) {
			names = append(names, e.Name())
		}
	}
	slices.Sort(names)
	return names, nil
}

func isDigits(s string, n int) bool {
	if len(s) != n {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
