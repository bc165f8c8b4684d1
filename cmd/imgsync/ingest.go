package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/anatolykoptev/go-imgsync"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
)

// watchSettle is how long the upload dirs must stay quiet before a watch
// triggers an ingest, so half-copied files are not picked up.
const watchSettle = 2 * time.Second

func newIngestCmd() *cobra.Command {
	var (
		watch      bool
		outputJSON bool
	)
	cmd := &cobra.Command{
		Use:   "ingest [dir...]",
		Short: "Move uploaded images into the archive",
		Long: `Move jpg, png and webp uploads into images/yyyy/mm, then update the indexes
and sprites of the touched months. Without arguments the archive root,
images/ and upload/ are scanned. PNG and WebP uploads are re-encoded as JPEG.

With --watch the directories are monitored and every burst of new uploads
is ingested once it settles.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := loadSettings(cmd)
			if err != nil {
				return err
			}
			closeLog, err := setupLogging(cmd, v)
			if err != nil {
				return err
			}
			defer closeLog()

			cfg := archiveConfig(v)
			dirs := args
			if len(dirs) == 0 {
				dirs = defaultUploadDirs(cfg)
			}

			result, err := ingestAndRefresh(cmd.Context(), cfg, dirs)
			if err != nil {
				return err
			}
			printIngest(cmd.OutOrStdout(), result, outputJSON)
			if !watch {
				return nil
			}
			return watchUploads(cmd.Context(), cfg, dirs, func(r *ingestResult) {
				printIngest(cmd.OutOrStdout(), r, outputJSON)
			})
		},
	}
	cmd.Flags().BoolVar(&watch, "watch", false, "Keep running and ingest new uploads as they appear")
	cmd.Flags().BoolVar(&outputJSON, "json", false, "Print the reports as JSON")
	return cmd
}

func defaultUploadDirs(cfg *imgsync.Config) []string {
	return []string{cfg.Root, cfg.ImagesDir(), filepath.Join(cfg.Root, "upload")}
}

type ingestResult struct {
	Ingest  *imgsync.IngestReport `json:"ingest"`
	Index   *imgsync.IndexReport  `json:"index,omitempty"`
	Sprites *imgsync.SpriteReport `json:"sprites,omitempty"`
}

func ingestAndRefresh(ctx context.Context, cfg *imgsync.Config, dirs []string) (*ingestResult, error) {
	report, err := imgsync.IngestUploads(ctx, cfg, dirs...)
	if err != nil {
		return nil, err
	}
	result := &ingestResult{Ingest: report}
	if len(report.Dirs) == 0 {
		return result, nil
	}
	if result.Index, result.Sprites, err = refreshMonths(ctx, cfg, report.Dirs); err != nil {
		return nil, err
	}
	return result, nil
}

func printIngest(w io.Writer, r *ingestResult, asJSON bool) {
	if asJSON {
		_ = writeJSON(w, r)
		return
	}
	_, _ = fmt.Fprintf(w, "ingested: %d skipped: %d months: %s\n",
		len(r.Ingest.Files), len(r.Ingest.Skipped), joinOrNone(r.Ingest.Dirs))
}

// watchUploads ingests again whenever the upload dirs settle after a
// create or write event. It returns when ctx is cancelled.
func watchUploads(ctx context.Context, cfg *imgsync.Config, dirs []string, report func(*ingestResult)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	defer watcher.Close()

	watched := 0
	for _, dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to watch %s: %w", dir, err)
		}
		watched++
	}
	if watched == 0 {
		return errors.New("no upload directory to watch")
	}
	slog.Info("imgsync: watching uploads", "dirs", dirs)

	settle := time.NewTimer(watchSettle)
	settle.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
				continue
			}
			if !imgsync.IsUpload(filepath.Base(ev.Name)) {
				continue
			}
			settle.Reset(watchSettle)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("imgsync: watch error", "error", err.Error())
		case <-settle.C:
			result, err := ingestAndRefresh(ctx, cfg, dirs)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
			report(result)
		}
	}
}
