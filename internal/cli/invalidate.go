package cli

import (
	"fmt"

	"github.com/Masterminds/semver/v3"
	"github.com/spf13/cobra"
)

// newInvalidateCmd groups the four invalidation paths: by snapshot, by an
// upstream dataset's version bump, by artifact config change, and blanket.
func newInvalidateCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "invalidate",
		Short: "Invalidate cached artifacts",
	}
	cmd.AddCommand(
		newInvalidateSnapshotCmd(opts),
		newInvalidateDatasetCmd(opts),
		newInvalidateConfigCmd(opts),
		newInvalidateAllCmd(opts),
	)
	return cmd
}

func newInvalidateSnapshotCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "snapshot <snapshot-id>",
		Short: "Remove every entry recorded under a snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInvalidate(cmd, opts, func() (int, error) {
				store, err := opts.openStore()
				if err != nil {
					return 0, err
				}
				defer func() { _ = store.Close() }()
				return store.InvalidateBySnapshot(args[0])
			})
		},
	}
}

func newInvalidateDatasetCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "dataset <name> <version>",
		Short: "Remove entries built on any other version of a dataset",
		Long: "Remove every entry whose recorded version for <name> differs from <version>.\n" +
			"Matching is by exact string; entries with no recorded version for the dataset are kept.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			dataset, version := args[0], args[1]

			// Upstream providers tag releases semver-style; an odd-looking
			// tag is usually a typo, but matching stays byte-exact.
			if _, err := semver.NewVersion(version); err != nil {
				logger.Warn().Str("version", version).Msg("version tag is not valid semver; matching by exact string")
			}

			return runInvalidate(cmd, opts, func() (int, error) {
				store, err := opts.openStore()
				if err != nil {
					return 0, err
				}
				defer func() { _ = store.Close() }()
				return store.InvalidateByDatasetUpdate(dataset, version)
			})
		},
	}
}

func newInvalidateConfigCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "config <artifact-name>",
		Short: "Remove an artifact's files after a config change",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInvalidate(cmd, opts, func() (int, error) {
				store, err := opts.openStore()
				if err != nil {
					return 0, err
				}
				defer func() { _ = store.Close() }()
				return store.InvalidateByConfigChange(args[0])
			})
		},
	}
}

func newInvalidateAllCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "all [artifact-name]",
		Short: "Remove every catalog-known entry, optionally for one artifact",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := ""
			if len(args) == 1 {
				name = args[0]
			}
			return runInvalidate(cmd, opts, func() (int, error) {
				store, err := opts.openStore()
				if err != nil {
					return 0, err
				}
				defer func() { _ = store.Close() }()
				return store.InvalidateAll(name)
			})
		},
	}
}

func runInvalidate(cmd *cobra.Command, _ *options, fn func() (int, error)) error {
	removed, err := fn()
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Removed %d file(s)\n", removed)
	return nil
}
