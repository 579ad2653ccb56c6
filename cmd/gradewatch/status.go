package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/gradewatch/gradewatch/internal/config"
	"github.com/gradewatch/gradewatch/internal/model"
	"github.com/gradewatch/gradewatch/internal/storage"
	"github.com/gradewatch/gradewatch/internal/storage/sqlite"
	"github.com/gradewatch/gradewatch/internal/ui"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show stored snapshot summary",
	Run: func(cmd *cobra.Command, args []string) {
		if err := showStatus(cmd.Context()); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func showStatus(ctx context.Context) error {
	store, err := sqlite.New(ctx, config.GetString("storage.path"))
	if err != nil {
		return err
	}
	defer store.Close()

	ts, err := store.LatestTimestamp(ctx)
	if err != nil {
		return err
	}
	if ts == nil {
		fmt.Println(ui.MutedStyle.Render("No snapshot stored yet. Run 'gradewatch run' first."))
		return nil
	}

	var (
		total, graded int
		periods       = map[string]bool{}
		categories    = map[[2]string]bool{}
	)
	err = store.IterAssignments(ctx, func(a storage.Assignment) error {
		total++
		if a.Graded() {
			graded++
		}
		periods[a.PeriodID] = true
		categories[[2]string{a.CategoryID, a.PeriodID}] = true
		return nil
	})
	if err != nil {
		return err
	}

	t := ui.NewTable()
	t.Row("Snapshot", model.FormatInstant(ts))
	t.Row("Store", store.Path())
	t.Row("Periods", strconv.Itoa(len(periods)))
	t.Row("Categories", strconv.Itoa(len(categories)))
	t.Row("Assignments", strconv.Itoa(total))
	t.Row("Graded", strconv.Itoa(graded))
	fmt.Println(t.Render())
	return nil
}
