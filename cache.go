package imgsync

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"os"
	"slices"
	"strconv"
)

// MessageRecord is the resolved archive identity of one remote message.
// Fwd and Rct are refreshed on later passes; the other fields are write-once.
type MessageRecord struct {
	Name *string     `json:"name"` // nil: predates the archive, never materialized
	Fwd  int         `json:"tfwd"`
	Rct  int         `json:"trct"`
	Dig  Fingerprint `json:"dig"`
}

// Records maps remote message ids to their records.
type Records map[int64]MessageRecord

// Clone returns a copy that can be mutated without touching r.
func (r Records) Clone() Records {
	return maps.Clone(r)
}

// MaxID returns the highest known message id, or 0 for an empty set.
func (r Records) MaxID() int64 {
	var hi int64
	for id := range r {
		hi = max(hi, id)
	}
	return hi
}

// Equal reports whether both sets hold the same ids with identical records.
func (r Records) Equal(o Records) bool {
	return maps.EqualFunc(r, o, func(a, b MessageRecord) bool {
		return a.Fwd == b.Fwd && a.Rct == b.Rct && a.Dig == b.Dig && equalName(a.Name, b.Name)
	})
}

func equalName(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// SyncCache persists Records as a JSON object keyed by message id. It
// remembers the snapshot it loaded so that saving unchanged content never
// touches the file.
type SyncCache struct {
	path   string
	loaded Records
}

// OpenCache loads the cache at path. A missing file yields an empty cache.
func OpenCache(path string) (*SyncCache, error) {
	c := &SyncCache{path: path, loaded: Records{}}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return c, nil
		}
		return nil, fmt.Errorf("read cache %s: %w", path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return c, nil
	}

	var raw map[string]MessageRecord
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode cache %s: %w", path, err)
	}
	for key, rec := range raw {
		id, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("decode cache %s: message id %q: %w", path, key, err)
		}
		c.loaded[id] = rec
	}
	return c, nil
}

// Path returns the canonical cache location.
func (c *SyncCache) Path() string { return c.path }

// Load returns a mutable copy of the loaded records.
func (c *SyncCache) Load() Records {
	return c.loaded.Clone()
}

// Save commits records atomically. It is a no-op when records equal the
// loaded snapshot and reports whether a write happened.
func (c *SyncCache) Save(records Records) (bool, error) {
	if records.Equal(c.loaded) {
		return false, nil
	}
	data, err := MarshalRecords(records)
	if err != nil {
		return false, err
	}
	if err := writeFileAtomic(c.path, data); err != nil {
		return false, err
	}
	c.loaded = records.Clone()
	return true, nil
}

// MarshalRecords renders records with ids in numeric order, one record per
// line: {"1": {"dig": "...", "name": "...", "tfwd": 0, "trct": 0},\n"2": ...}.
func MarshalRecords(records Records) ([]byte, error) {
	ids := slices.Sorted(maps.Keys(records))

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, id := range ids {
		rec := records[id]
		if i > 0 {
			buf.WriteString(",\n")
		}
		name := []byte("null")
		if rec.Name != nil {
			var err error
			if name, err = json.Marshal(*rec.Name); err != nil {
				return nil, fmt.Errorf("encode record %d: %w", id, err)
			}
		}
		dig, err := json.Marshal(string(rec.Dig))
		if err != nil {
			return nil, fmt.Errorf("encode record %d: %w", id, err)
		}
		fmt.Fprintf(&buf, `"%d": {"dig": %s, "name": %s, "tfwd": %d, "trct": %d}`,
			id, dig, name, rec.Fwd, rec.Rct)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
