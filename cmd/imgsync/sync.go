package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/anatolykoptev/go-imgsync"
	"github.com/spf13/cobra"
)

func newSyncCmd() *cobra.Command {
	var outputJSON bool
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Fetch new channel photos, then refresh indexes and sprites",
		Long: `Run one incremental synchronization pass against the channel bridge:
  1. Load the message cache and build the dedup window
  2. Fetch one page of messages and store new photos under images/yyyy/mm
  3. Save the cache if anything changed
  4. Update entry indexes and sprites of the touched months`,
		Args: cobra.NoArgs,
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

			baseURL := strings.TrimSpace(v.GetString("bridge-url"))
			if baseURL == "" {
				return errors.New("--bridge-url is required")
			}
			cfg := archiveConfig(v)
			if strings.TrimSpace(cfg.Channel) == "" {
				return errors.New("--channel is required")
			}
			session := &imgsync.HTTPSession{
				BaseURL: baseURL,
				Channel: cfg.Channel,
				Token:   v.GetString("token"),
			}

			result, err := runSync(cmd.Context(), cfg, session, !v.GetBool("no-index"))
			if err != nil {
				return err
			}
			if outputJSON {
				return writeJSON(cmd.OutOrStdout(), result)
			}
			printSync(cmd.OutOrStdout(), result)
			return nil
		},
	}
	flags := cmd.Flags()
	flags.String("bridge-url", "", "Channel bridge base URL")
	flags.String("token", "", "Bridge bearer token")
	flags.String("channel", "", "Channel handle")
	flags.Int("page-limit", imgsync.DefaultPageLimit, "Messages fetched per pass")
	flags.Int("lookback", imgsync.DefaultLookback, "Cached ids re-fetched to refresh counters (negative: none)")
	flags.Int("scan-budget", 0, "Archive files fingerprinted for the dedup window (default: 10 x page-limit)")
	flags.Int("window-days", imgsync.DefaultWindowDays, "Dedup window in days")
	flags.Int64("archive-start-id", 0, "Messages below this id are recorded without download")
	flags.Bool("no-index", false, "Skip index and sprite updates")
	flags.BoolVar(&outputJSON, "json", false, "Print the reports as JSON")
	return cmd
}

type syncResult struct {
	Sync    *imgsync.SyncReport   `json:"sync"`
	Index   *imgsync.IndexReport  `json:"index,omitempty"`
	Sprites *imgsync.SpriteReport `json:"sprites,omitempty"`
}

// runSync chains a synchronization pass with index and sprite updates for
// the months it touched.
func runSync(ctx context.Context, cfg *imgsync.Config, session imgsync.Session, refresh bool) (*syncResult, error) {
	report, err := imgsync.NewEngine(cfg, session).Synchronize(ctx)
	if err != nil {
		return nil, err
	}
	result := &syncResult{Sync: report}
	if !refresh || len(report.Dirs) == 0 {
		return result, nil
	}
	if result.Index, result.Sprites, err = refreshMonths(ctx, cfg, report.Dirs); err != nil {
		return nil, err
	}
	return result, nil
}

// refreshMonths updates the entry indexes of dirs and re-renders their
// sprites when the index content moved.
func refreshMonths(ctx context.Context, cfg *imgsync.Config, dirs []string) (*imgsync.IndexReport, *imgsync.SpriteReport, error) {
	index, err := imgsync.NewIndexBuilder(cfg).Update(ctx, dirs...)
	if err != nil {
		return nil, nil, err
	}
	sprites, err := imgsync.UpdateSprites(ctx, cfg, index.Dirs...)
	if err != nil {
		return nil, nil, err
	}
	return index, sprites, nil
}

func printSync(w io.Writer, r *syncResult) {
	s := r.Sync
	_, _ = fmt.Fprintf(w, "fetched: %d new: %d duplicates: %d refreshed: %d pre-archive: %d skipped: %d failed: %d\n",
		s.Fetched, s.New, s.Duplicates, s.Refreshed, s.PreArchive, s.Skipped, s.Failed)
	if s.CacheWritten {
		_, _ = fmt.Fprintln(w, "cache: written")
	} else {
		_, _ = fmt.Fprintln(w, "cache: unchanged")
	}
	if r.Index != nil {
		_, _ = fmt.Fprintf(w, "indexes updated: %s\n", joinOrNone(r.Index.Updated))
	}
	if r.Sprites != nil {
		_, _ = fmt.Fprintf(w, "sprites updated: %s\n", joinOrNone(r.Sprites.Updated))
	}
}

func joinOrNone(items []string) string {
	if len(items) == 0 {
		return "none"
	}
	return strings.Join(items, ", ")
}
