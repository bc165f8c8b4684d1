package imgsync

import (
	"context"
	"iter"
	"time"
)

// MediaKind classifies the attachment of a message.
type MediaKind string

const (
	MediaNone     MediaKind = ""
	MediaPhoto    MediaKind = "photo"
	MediaDocument MediaKind = "document"
	MediaWebPage  MediaKind = "webpage"
)

// ReactionCount is the count of one reaction kind on a message.
type ReactionCount struct {
	Reaction string `json:"reaction"`
	Count    int    `json:"count"`
}

// MessageView is the read-only view of a remote channel message.
type MessageView struct {
	ID        int64           `json:"id"`
	Date      time.Time       `json:"date"`
	HasPhoto  bool            `json:"photo"`
	MediaKind MediaKind       `json:"media"`
	MIMEType  string          `json:"mime_type"`
	Forwards  int             `json:"forwards"`
	Reactions []ReactionCount `json:"reactions,omitempty"` // nil: no reaction summary
}

// ReactionTotal sums the counts over all reaction kinds.
func (m MessageView) ReactionTotal() int {
	total := 0
	for _, r := range m.Reactions {
		total += r.Count
	}
	return total
}

// IsJPEGPhoto reports whether the message carries a still JPEG photo, the
// only content the archive ingests.
func (m MessageView) IsJPEGPhoto() bool {
	return m.HasPhoto && m.MediaKind == MediaPhoto && m.MIMEType == "image/jpeg"
}

// Identity describes the account a session is authenticated as.
type Identity struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

// Session is the remote channel capability. Connect and Close bracket one
// synchronization pass.
type Session interface {
	Connect(ctx context.Context) error
	Self(ctx context.Context) (Identity, error)
	// Messages yields up to limit messages with id >= minID, newest first.
	// The sequence is finite and not restartable.
	Messages(ctx context.Context, channel string, minID int64, limit int) iter.Seq2[MessageView, error]
	DownloadMedia(ctx context.Context, msg MessageView) ([]byte, error)
	Close() error
}
