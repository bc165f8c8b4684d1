package main

import (
	"fmt"

	"github.com/anatolykoptev/go-imgsync"
	"github.com/spf13/cobra"
)

func newIndexCmd() *cobra.Command {
	var (
		full       bool
		outputJSON bool
	)
	cmd := &cobra.Command{
		Use:   "index [yyyy/mm...]",
		Short: "Update dir_index.json and the entry indexes",
		Long: `Rescan the given months, or every month when none are given, merge their
image counts into images/dir_index.json and rewrite changed entry indexes.

With --full, dir_index.json is rebuilt from a full scan first, dropping
months that no longer hold images.`,
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

			builder := imgsync.NewIndexBuilder(archiveConfig(v))

			if full {
				if len(args) > 0 {
					return fmt.Errorf("--full rescans every month; got %d month arguments", len(args))
				}
				if _, err := builder.RebuildDirIndex(cmd.Context()); err != nil {
					return err
				}
			}
			report, err := builder.Update(cmd.Context(), args...)
			if err != nil {
				return err
			}
			if outputJSON {
				return writeJSON(cmd.OutOrStdout(), report)
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "months: %d dir index written: %t\nindexes updated: %s\n",
				len(report.Dirs), report.DirIndexWritten, joinOrNone(report.Updated))
			return nil
		},
	}
	cmd.Flags().BoolVar(&full, "full", false, "Rebuild dir_index.json from a full scan")
	cmd.Flags().Bool("refresh-entries", false, "Re-decode every image instead of reusing stored sizes")
	cmd.Flags().BoolVar(&outputJSON, "json", false, "Print the report as JSON")
	return cmd
}

func newSpritesCmd() *cobra.Command {
	var outputJSON bool
	cmd := &cobra.Command{
		Use:   "sprites [yyyy/mm...]",
		Short: "Re-render thumbnails.jpg where the entry index changed",
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

			report, err := imgsync.UpdateSprites(cmd.Context(), archiveConfig(v), args...)
			if err != nil {
				return err
			}
			if outputJSON {
				return writeJSON(cmd.OutOrStdout(), report)
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "months: %d\nsprites updated: %s\n",
				len(report.Checked), joinOrNone(report.Updated))
			return nil
		},
	}
	cmd.Flags().BoolVar(&outputJSON, "json", false, "Print the report as JSON")
	return cmd
}
