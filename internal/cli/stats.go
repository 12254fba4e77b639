package cli

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var (
	statsTitleStyle = lipgloss.NewStyle().Bold(true)                 //nolint:gochecknoglobals // render styles
	statsLabelStyle = lipgloss.NewStyle().Faint(true).Width(10)      //nolint:gochecknoglobals // render styles
	statsValueStyle = lipgloss.NewStyle().PaddingLeft(1)             //nolint:gochecknoglobals // render styles
)

// newStatsCmd reports the physical state of the cache directory: file
// count, total bytes, and the age range of artifacts on disk. The numbers
// come from a directory scan, not the catalog, so orphans are included.
func newStatsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show cache statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := opts.openStore()
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			st, err := store.Stats()
			if err != nil {
				return err
			}

			p := message.NewPrinter(language.English)
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, statsTitleStyle.Render("Cache statistics"))
			fmt.Fprintf(out, "%s%s\n", statsLabelStyle.Render("Directory"), statsValueStyle.Render(store.Dir()))
			fmt.Fprintf(out, "%s%s\n", statsLabelStyle.Render("Entries"), statsValueStyle.Render(p.Sprintf("%d", st.EntryCount)))
			fmt.Fprintf(out, "%s%s\n", statsLabelStyle.Render("Size"), statsValueStyle.Render(p.Sprintf("%d bytes", st.TotalSizeBytes)))
			fmt.Fprintf(out, "%s%s\n", statsLabelStyle.Render("Oldest"), statsValueStyle.Render(formatEntryTime(st.OldestEntry)))
			fmt.Fprintf(out, "%s%s\n", statsLabelStyle.Render("Newest"), statsValueStyle.Render(formatEntryTime(st.NewestEntry)))
			return nil
		},
	}
}

func formatEntryTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format(time.RFC3339)
}
