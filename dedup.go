package imgsync

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// ObservationKind tags the outcome of consulting the DuplicateWindow.
type ObservationKind int

const (
	ObservationNew       ObservationKind = iota // no match inside the window
	ObservationDuplicate                        // matches an archived file; reuse its name
	ObservationConflict                         // two archived files collide; fatal
)

func (k ObservationKind) String() string {
	switch k {
	case ObservationNew:
		return "new"
	case ObservationDuplicate:
		return "duplicate"
	case ObservationConflict:
		return "conflict"
	default:
		return "unknown"
	}
}

// Observation is the tagged result of Observe and Lookup.
type Observation struct {
	Kind     ObservationKind
	Name     string                  // existing filename for Duplicate and Conflict
	Conflict *DuplicateConflictError // set for Conflict
}

type sighting struct {
	date time.Time
	path string
}

// DuplicateWindow indexes archived files by fingerprint and detects matches
// whose dates lie within a fixed number of days of each other.
// It is safe for concurrent use.
type DuplicateWindow struct {
	mu    sync.Mutex
	days  int
	seen  map[Fingerprint][]sighting
	files int
}

// NewDuplicateWindow returns an empty window of the given width in days
// (inclusive, symmetric).
func NewDuplicateWindow(days int) *DuplicateWindow {
	if days <= 0 {
		days = DefaultWindowDays
	}
	return &DuplicateWindow{days: days, seen: make(map[Fingerprint][]sighting)}
}

// Observe records an archived file. If a file with the same fingerprint
// already lies inside the window the archive holds two duplicates and a
// Conflict is returned without recording anything.
func (w *DuplicateWindow) Observe(fp Fingerprint, date time.Time, path string) Observation {
	w.mu.Lock()
	defer w.mu.Unlock()

	if prev, ok := w.match(fp, date); ok {
		return Observation{
			Kind: ObservationConflict,
			Name: filepath.Base(prev.path),
			Conflict: &DuplicateConflictError{
				Fingerprint: fp,
				Existing:    prev.path,
				Incoming:    path,
			},
		}
	}
	w.seen[fp] = append(w.seen[fp], sighting{date: date, path: path})
	w.files++
	return Observation{Kind: ObservationNew}
}

// Lookup reports whether a candidate with this fingerprint and date is a
// duplicate of an archived file.
func (w *DuplicateWindow) Lookup(fp Fingerprint, date time.Time) Observation {
	w.mu.Lock()
	defer w.mu.Unlock()

	if prev, ok := w.match(fp, date); ok {
		return Observation{Kind: ObservationDuplicate, Name: filepath.Base(prev.path)}
	}
	return Observation{Kind: ObservationNew}
}

// Len returns the number of recorded files.
func (w *DuplicateWindow) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.files
}

func (w *DuplicateWindow) match(fp Fingerprint, date time.Time) (sighting, bool) {
	for _, s := range w.seen[fp] {
		if daysApart(s.date, date) <= w.days {
			return s, true
		}
	}
	return sighting{}, false
}

// BuildDuplicateWindow fingerprints archived images newest first until
// budget files have been recorded. Unreadable files are logged and skipped;
// a collision inside the window aborts with *DuplicateConflictError.
func BuildDuplicateWindow(ctx context.Context, imagesDir string, budget, days int) (*DuplicateWindow, error) {
	w := NewDuplicateWindow(days)

	paths, err := archiveImages(imagesDir)
	if err != nil {
		return nil, err
	}
	sort.Sort(sort.Reverse(sort.StringSlice(paths)))

	for _, path := range paths {
		if budget > 0 && w.Len() >= budget {
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		date, err := ParseNameDate(path)
		if err != nil {
			slog.Warn("imgsync: undated archive file", "path", path)
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		fp, err := FingerprintBytes(data)
		if err != nil {
			slog.Warn("imgsync: unreadable archive file", "path", path, "error", err.Error())
			continue
		}

		if obs := w.Observe(fp, date, path); obs.Kind == ObservationConflict {
			return nil, obs.Conflict
		}
	}

	slog.Debug("imgsync: dedup window built", "files", w.Len(), "budget", budget)
	return w, nil
}

// archiveImages lists every archived image below imagesDir, skipping sprites
// and temp files. A missing directory yields an empty list.
func archiveImages(imagesDir string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(imagesDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && path == imagesDir {
				return fs.SkipAll
			}
			return err
		}
		if d.IsDir() || !isArchiveImage(d.Name()) {
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", imagesDir, err)
	}
	return paths, nil
}
