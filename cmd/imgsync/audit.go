package main

import (
	"fmt"

	"github.com/anatolykoptev/go-imgsync"
	"github.com/spf13/cobra"
)

func newAuditCmd() *cobra.Command {
	var (
		distance   int
		outputJSON bool
	)
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Report visually similar images across the whole archive",
		Long: `Compare every archived image against all others with a perceptual
difference hash and list the pairs closer than --distance. Nothing is
modified; dedup during sync stays limited to its time window.`,
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

			pairs, err := imgsync.AuditNearDuplicates(cmd.Context(), archiveConfig(v), distance)
			if err != nil {
				return err
			}
			if outputJSON {
				if pairs == nil {
					pairs = []imgsync.NearDuplicate{}
				}
				return writeJSON(cmd.OutOrStdout(), pairs)
			}
			for _, p := range pairs {
				marker := ""
				if p.SameDig {
					marker = " (same dig)"
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\t%s%s\n", p.Distance, p.A, p.B, marker)
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "pairs: %d\n", len(pairs))
			return nil
		},
	}
	cmd.Flags().IntVar(&distance, "distance", imgsync.DefaultAuditDistance, "Maximum dHash distance reported")
	cmd.Flags().BoolVar(&outputJSON, "json", false, "Print the pairs as JSON")
	return cmd
}
