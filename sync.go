package imgsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"strconv"
)

// SyncReport summarizes one synchronization pass.
type SyncReport struct {
	MinID        int64
	Fetched      int
	New          int
	Duplicates   int
	Refreshed    int
	PreArchive   int
	Skipped      int // not a jpeg photo
	Failed       int // download or decode failed; retried next pass
	Dirs         []string
	CacheWritten bool
}

func (r *SyncReport) touch(dir string) {
	if !slices.Contains(r.Dirs, dir) {
		r.Dirs = append(r.Dirs, dir)
	}
}

// Engine reconciles the message cache and the archive tree against the
// remote channel.
type Engine struct {
	cfg     *Config
	session Session
}

// NewEngine returns an engine bound to session. The session is connected
// and closed by every Synchronize call.
func NewEngine(cfg *Config, session Session) *Engine {
	cfg.defaults()
	return &Engine{cfg: cfg, session: session}
}

// Synchronize runs one incremental pass: load the cache, build the dedup
// window, fetch one page of messages and materialize the new photos. The
// cache is persisted only when its content changed. Remote and persistence
// errors abort the pass before the cache is written.
func (e *Engine) Synchronize(ctx context.Context) (report *SyncReport, err error) {
	cache, err := OpenCache(e.cfg.CachePath)
	if err != nil {
		return nil, err
	}
	old := cache.Load()
	records := old.Clone()

	report = &SyncReport{MinID: e.minID(old)}

	window, err := BuildDuplicateWindow(ctx, e.cfg.ImagesDir(), e.cfg.ScanBudget, e.cfg.WindowDays)
	if err != nil {
		return nil, err
	}

	if err := e.session.Connect(ctx); err != nil {
		return nil, asRemoteError("connect", err)
	}
	defer func() {
		if cerr := e.session.Close(); cerr != nil {
			slog.Warn("imgsync: session close failed", "error", cerr.Error())
		}
	}()

	me, err := e.session.Self(ctx)
	if err != nil {
		return nil, asRemoteError("self", err)
	}
	slog.Debug("imgsync: session", "id", me.ID, "username", me.Username)

	for msg, err := range e.session.Messages(ctx, e.cfg.Channel, report.MinID, e.cfg.PageLimit) {
		if err != nil {
			return nil, asRemoteError("messages", err)
		}
		report.Fetched++
		if err := e.process(ctx, msg, records, window, report); err != nil {
			return nil, err
		}
	}

	written, err := cache.Save(records)
	if err != nil {
		return nil, err
	}
	report.CacheWritten = written

	slog.Info("imgsync: sync done",
		"fetched", report.Fetched, "new", report.New, "duplicates", report.Duplicates,
		"refreshed", report.Refreshed, "failed", report.Failed, "cache_written", written)
	return report, nil
}

// minID re-opens the most recent Lookback ids so their counters refresh.
func (e *Engine) minID(records Records) int64 {
	if len(records) == 0 {
		return 0
	}
	return max(records.MaxID()-int64(max(e.cfg.Lookback, 0)), 0)
}

// process applies one message to records. Only errors that must abort the
// pass are returned; per-message media failures are logged and counted.
func (e *Engine) process(ctx context.Context, msg MessageView, records Records, window *DuplicateWindow, report *SyncReport) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if e.cfg.OnPanic != nil {
				e.cfg.OnPanic("syncMessage", r)
			}
			slog.Error("imgsync: message panicked", "id", msg.ID, "panic", fmt.Sprint(r))
			report.Failed++
			err = nil
		}
	}()

	if !msg.IsJPEGPhoto() {
		if msg.HasPhoto && msg.MIMEType != "image/jpeg" {
			slog.Info("imgsync: invalid mime type", "id", msg.ID, "mime", msg.MIMEType)
		}
		report.Skipped++
		e.cfg.emit(MessageEvent{ID: msg.ID, Action: "skip"})
		return nil
	}

	if rec, ok := records[msg.ID]; ok {
		// No reaction summary: both counters stay as cached.
		fwd, rct := msg.Forwards, msg.ReactionTotal()
		if msg.Reactions != nil && (rec.Fwd != fwd || rec.Rct != rct) {
			rec.Fwd, rec.Rct = fwd, rct
			records[msg.ID] = rec
			report.Refreshed++
		}
		slog.Debug("imgsync: old", "id", msg.ID, "dig", rec.Dig, "name", nameOf(rec))
		e.cfg.emit(MessageEvent{ID: msg.ID, Action: "refresh", Name: nameOf(rec), Dig: rec.Dig})
		return nil
	}

	if msg.ID < e.cfg.ArchiveStartID {
		records[msg.ID] = MessageRecord{Fwd: msg.Forwards, Rct: msg.ReactionTotal()}
		report.PreArchive++
		slog.Info("imgsync: missing", "id", msg.ID, "date", msg.Date)
		e.cfg.emit(MessageEvent{ID: msg.ID, Action: "pre-archive"})
		return nil
	}

	blob, err := e.session.DownloadMedia(ctx, msg)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		slog.Warn("imgsync: download failed", "id", msg.ID, "error", err.Error())
		report.Failed++
		e.cfg.emit(MessageEvent{ID: msg.ID, Action: "failed"})
		return nil
	}

	source := "message " + strconv.FormatInt(msg.ID, 10)
	if err := ValidateMedia(blob, source); err != nil {
		if errors.Is(err, ErrNotPhoto) {
			slog.Info("imgsync: not a jpeg payload", "id", msg.ID, "error", err.Error())
			report.Skipped++
			e.cfg.emit(MessageEvent{ID: msg.ID, Action: "skip"})
			return nil
		}
		slog.Warn("imgsync: invalid media", "id", msg.ID, "error", err.Error())
		report.Failed++
		e.cfg.emit(MessageEvent{ID: msg.ID, Action: "failed"})
		return nil
	}

	fp, err := FingerprintBytes(blob)
	if err != nil {
		slog.Warn("imgsync: undecodable media", "id", msg.ID, "error", err.Error())
		report.Failed++
		e.cfg.emit(MessageEvent{ID: msg.ID, Action: "failed"})
		return nil
	}

	name := MessageFileName(msg.Date, msg.ID, fp)
	date, err := ParseNameDate(name)
	if err != nil {
		return err
	}

	rec := MessageRecord{Fwd: msg.Forwards, Rct: msg.ReactionTotal(), Dig: fp}

	if obs := window.Lookup(fp, date); obs.Kind == ObservationDuplicate {
		existing := obs.Name
		rec.Name = &existing
		records[msg.ID] = rec
		report.Duplicates++
		slog.Info("imgsync: dup detected", "id", msg.ID, "dig", fp, "name", existing)
		e.cfg.emit(MessageEvent{ID: msg.ID, Action: "duplicate", Name: existing, Dig: fp})
		return nil
	}

	key, err := MonthKey(name)
	if err != nil {
		return err
	}
	path := filepath.Join(e.cfg.ImagesDir(), filepath.FromSlash(key), name)
	if err := writeFileAtomic(path, blob); err != nil {
		return err
	}
	window.Observe(fp, date, path)

	rec.Name = &name
	records[msg.ID] = rec
	report.New++
	report.touch(key)
	slog.Info("imgsync: new", "id", msg.ID, "dig", fp, "name", name)
	e.cfg.emit(MessageEvent{ID: msg.ID, Action: "new", Name: name, Dig: fp})
	return nil
}

func nameOf(rec MessageRecord) string {
	if rec.Name == nil {
		return ""
	}
	return *rec.Name
}

func asRemoteError(op string, err error) error {
	var remote *RemoteFetchError
	if errors.As(err, &remote) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &RemoteFetchError{Op: op, Err: err}
}
