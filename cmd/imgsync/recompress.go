package main

import (
	"fmt"

	"github.com/anatolykoptev/go-imgsync"
	"github.com/spf13/cobra"
)

func newRecompressCmd() *cobra.Command {
	var outputJSON bool
	cmd := &cobra.Command{
		Use:   "recompress [yyyy/mm...]",
		Short: "Shrink archived images where re-encoding saves enough space",
		Long: fmt.Sprintf(`Re-encode the images of the given months, or of every month when none
are given, as progressive JPEG at quality %d. A file is replaced only when
the new encoding is more than %d KB smaller; other files stay untouched.`,
			imgsync.RecompressQuality, imgsync.RecompressMinSaving>>10),
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

			report, err := imgsync.Recompress(cmd.Context(), archiveConfig(v), args...)
			if err != nil {
				return err
			}
			if outputJSON {
				return writeJSON(cmd.OutOrStdout(), report)
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "months: %d checked: %d replaced: %d saved: %d KB\n",
				len(report.Months), report.Checked, len(report.Replaced), report.Saved>>10)
			return nil
		},
	}
	cmd.Flags().BoolVar(&outputJSON, "json", false, "Print the report as JSON")
	return cmd
}
