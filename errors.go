package imgsync

import (
	"errors"
	"fmt"
)

// ErrNotPhoto reports media that is out of scope for ingestion: no photo
// payload, not a still photo, or not JPEG encoded. It is never fatal.
var ErrNotPhoto = errors.New("imgsync: not a jpeg photo")

// DecodeError reports unreadable media. The item is skipped and the pass
// continues.
type DecodeError struct {
	Source string // path or message reference
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Source == "" {
		return fmt.Sprintf("imgsync: decode: %v", e.Err)
	}
	return fmt.Sprintf("imgsync: decode %s: %v", e.Source, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// DuplicateConflictError reports two archived files sharing a fingerprint
// inside the dedup window. It aborts the pass and needs manual
// reconciliation.
type DuplicateConflictError struct {
	Fingerprint Fingerprint
	Existing    string
	Incoming    string
}

func (e *DuplicateConflictError) Error() string {
	return fmt.Sprintf("imgsync: duplicate conflict: digest: %s old_path: %s new_path: %s",
		e.Fingerprint, e.Existing, e.Incoming)
}

// RemoteFetchError reports a network or API failure of the remote channel.
// The cache is not committed when it occurs.
type RemoteFetchError struct {
	Op  string
	Err error
}

func (e *RemoteFetchError) Error() string {
	return fmt.Sprintf("imgsync: remote %s: %v", e.Op, e.Err)
}

func (e *RemoteFetchError) Unwrap() error { return e.Err }

// PersistenceError reports a failed atomic write. The canonical file still
// holds the previously committed state.
type PersistenceError struct {
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("imgsync: persist %s: %v", e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
