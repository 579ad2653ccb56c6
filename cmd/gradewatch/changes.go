package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/gradewatch/gradewatch/internal/config"
	"github.com/gradewatch/gradewatch/internal/journal"
	"github.com/gradewatch/gradewatch/internal/ui"
)

var changesCmd = &cobra.Command{
	Use:   "changes",
	Short: "Show recent journal entries",
	Long: `Show the most recent pipeline cycles from the journal.

Examples:
  gradewatch changes          # Last 10 cycles
  gradewatch changes -n 50    # Last 50 cycles
`,
	Run: func(cmd *cobra.Command, args []string) {
		n, _ := cmd.Flags().GetInt("count")
		if err := showChanges(n); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	changesCmd.Flags().IntP("count", "n", 10, "Number of entries to show")
	rootCmd.AddCommand(changesCmd)
}

func showChanges(n int) error {
	w := journal.New(config.GetString("journal.path"), config.GetInt("journal.retention_days"))
	entries, err := w.Tail(n)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println(ui.MutedStyle.Render("Journal is empty."))
		return nil
	}

	t := ui.NewTable("When", "Result", "Changes", "Delivered")
	for _, e := range entries {
		t.Row(
			e.Timestamp.Local().Format("2006-01-02 15:04"),
			entryResult(e),
			strconv.Itoa(e.Counts.Total()),
			entryDelivery(e),
		)
	}
	fmt.Println(t.Render())

	// Detail lines for the most recent entry with changes.
	for i := len(entries) - 1; i >= 0; i-- {
		if len(entries[i].Changes) == 0 {
			continue
		}
		fmt.Println(ui.HeaderStyle.Render("Latest changes:"))
		for _, c := range entries[i].Changes {
			fmt.Printf("  %s / %s: %s -> %s\n", c.SectionTitle, c.AssignmentTitle, c.Old, c.New)
		}
		break
	}
	return nil
}

func entryResult(e journal.Entry) string {
	switch {
	case e.Kind == "error":
		return ui.FailStyle.Render("error")
	case e.IsInitial:
		return ui.MutedStyle.Render("initial")
	case e.HasChanges:
		return ui.WarnStyle.Render(e.Summary)
	default:
		return ui.PassStyle.Render("no changes")
	}
}

func entryDelivery(e journal.Entry) string {
	if len(e.Delivered) == 0 {
		return "-"
	}
	ok, total := 0, 0
	for _, delivered := range e.Delivered {
		total++
		if delivered {
			ok++
		}
	}
	return fmt.Sprintf("%d/%d", ok, total)
}
