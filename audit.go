package imgsync

import (
	"context"
	"log/slog"
	"sort"

	"github.com/corona10/goimagehash"
)

// DefaultAuditDistance is the maximum Hamming distance between two dHash
// values below which images are reported as near-duplicates.
const DefaultAuditDistance = 10

// NearDuplicate is a pair of archived images that look alike.
type NearDuplicate struct {
	A, B     string
	Distance int
	SameDig  bool // the coarse fingerprints collide as well
}

type auditEntry struct {
	path string
	hash *goimagehash.ImageHash
	dig  Fingerprint
}

// AuditNearDuplicates compares every archived image against all others with
// a perceptual difference hash, regardless of date. It only reports; the
// time-windowed DuplicateWindow stays the authority for ingestion.
func AuditNearDuplicates(ctx context.Context, cfg *Config, maxDistance int) ([]NearDuplicate, error) {
	if maxDistance <= 0 {
		maxDistance = DefaultAuditDistance
	}
	paths, err := archiveImages(cfg.ImagesDir())
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)

	seen := make([]auditEntry, 0, len(paths))
	var found []NearDuplicate
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		img, err := decodeFile(path)
		if err != nil {
			slog.Warn("imgsync: audit skipped", "path", path, "error", err.Error())
			continue
		}
		hash, err := goimagehash.DifferenceHash(img)
		if err != nil {
			// Graceful degradation: unable to hash → leave the image out.
			continue
		}
		cur := auditEntry{path: path, hash: hash, dig: FingerprintImage(img)}

		for _, prev := range seen {
			dist, err := hash.Distance(prev.hash)
			if err == nil && dist < maxDistance {
				found = append(found, NearDuplicate{
					A:        prev.path,
					B:        path,
					Distance: dist,
					SameDig:  prev.dig == cur.dig,
				})
			}
		}
		seen = append(seen, cur)
	}
	return found, nil
}
