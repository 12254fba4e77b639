package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// newCleanupCmd removes expired entries and orphan artifact files.
// --ttl-days overrides the configured TTL for this run only; zero expires
// every entry regardless of age.
func newCleanupCmd(opts *options) *cobra.Command {
	ttlDays := -1

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Remove expired entries and orphan files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := opts.openStore()
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			var removed int
			if ttlDays >= 0 {
				removed, err = store.CleanupWithTTL(time.Duration(ttlDays) * 24 * time.Hour)
			} else {
				removed, err = store.CleanupExpired()
			}
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d file(s)\n", removed)
			return nil
		},
	}

	cmd.Flags().IntVar(&ttlDays, "ttl-days", -1, "override TTL in days for this run (0 expires everything, -1 uses config)")

	return cmd
}
