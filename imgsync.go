package imgsync

import "path/filepath"

// Archive layout constants. The gallery frontend depends on these names.
const (
	ImagesDirName      = "images"
	SpriteFileName     = "thumbnails.jpg"
	EntryIndexFileName = "entry_index.json"
	DirIndexFileName   = "dir_index.json"
)

// Sprite grid geometry shared by IndexBuilder and SpriteComposer.
const (
	GridColumns = 10
	CellSize    = 150
	CellPadding = 2
)

// Defaults for a synchronization pass.
const (
	DefaultPageLimit  = 100
	DefaultLookback   = 20
	DefaultWindowDays = 3
	DefaultCacheName  = "telegram_messages_cache.json"
)

// JPEG qualities for generated artifacts.
const (
	SpriteQuality     = 75
	ReencodedQuality  = 95
	RecompressQuality = 75
)

// RecompressMinSaving is how many bytes a recompressed archive image must
// save before it replaces the original.
const RecompressMinSaving = 20 << 10

// Config holds all dependencies injected by the consumer.
type Config struct {
	Root      string // archive root; images live under Root/images
	CachePath string // default: Root/scripts/telegram_messages_cache.json
	Channel   string // remote channel handle, e.g. "@RosaroterPanzerBackup"

	PageLimit  int // messages fetched per pass (default: DefaultPageLimit)
	Lookback   int // most recent cached ids re-fetched to refresh counters (default: DefaultLookback, negative: none)
	ScanBudget int // archive files fingerprinted for the dedup window (default: 10 × PageLimit)
	WindowDays int // dedup window in days, inclusive (default: DefaultWindowDays)

	// ArchiveStartID marks the backfill boundary: messages with a lower id
	// predate the archive and are recorded with a nil name, never downloaded.
	ArchiveStartID int64

	// RefreshEntries re-decodes every image on index update instead of
	// reusing the dimensions persisted in entry_index.json.
	RefreshEntries bool

	// Optional callbacks for metrics/logging.
	OnMessage func(MessageEvent) // audit log for every processed message
	OnPanic   func(tag string, r any)
}

// MessageEvent describes the decision taken for one remote message.
type MessageEvent struct {
	ID     int64
	Action string // "new", "duplicate", "refresh", "pre-archive", "skip", "failed"
	Name   string
	Dig    Fingerprint
}

// defaults fills zero-value fields with sensible defaults.
func (c *Config) defaults() {
	if c.Root == "" {
		c.Root = "."
	}
	if c.CachePath == "" {
		c.CachePath = filepath.Join(c.Root, "scripts", DefaultCacheName)
	}
	if c.PageLimit <= 0 {
		c.PageLimit = DefaultPageLimit
	}
	if c.Lookback == 0 {
		c.Lookback = DefaultLookback
	}
	if c.ScanBudget <= 0 {
		c.ScanBudget = 10 * c.PageLimit
	}
	if c.WindowDays <= 0 {
		c.WindowDays = DefaultWindowDays
	}
}

// ImagesDir returns the directory holding the year/month tree.
func (c *Config) ImagesDir() string {
	c.defaults()
	return filepath.Join(c.Root, ImagesDirName)
}

func (c *Config) emit(ev MessageEvent) {
	if c.OnMessage != nil {
		c.OnMessage(ev)
	}
}
