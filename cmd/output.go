package cmd

import (
	"fmt"
	"text/tabwriter"

	"sponsor_worker/core/domain"

	"github.com/spf13/cobra"
)

func printSummary(cmd *cobra.Command, result *domain.ProcessingResult) {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "Run summary")
	fmt.Fprintf(w, "  success\t%t\n", result.Success)
	fmt.Fprintf(w, "  threads processed\t%d\n", result.ThreadsProcessed)
	fmt.Fprintf(w, "  messages processed\t%d\n", result.MessagesProcessed)
	fmt.Fprintf(w, "  new threads\t%d\n", result.NewThreads)
	fmt.Fprintf(w, "  updated threads\t%d\n", result.UpdatedThreads)
	fmt.Fprintf(w, "  errors\t%d\n", len(result.Errors))
	w.Flush()

	for _, e := range result.Errors {
		fmt.Fprintf(cmd.OutOrStdout(), "  - %s\n", e)
	}
}

func printStats(cmd *cobra.Command, stats *domain.ThreadStatistics) {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Total threads\t%d\n", stats.TotalThreads)
	fmt.Fprintf(w, "Processed\t%d\n", stats.ProcessedThreads)
	fmt.Fprintf(w, "Unprocessed\t%d\n", stats.UnprocessedThreads)
	fmt.Fprintf(w, "High priority\t%d\n", stats.HighPriorityThreads)
	w.Flush()
}

func printTasks(cmd *cobra.Command, tasks []*domain.FulfillmentTask) {
	if len(tasks) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No fulfillment tasks")
		return
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTHREAD\tTYPE\tPRIORITY\tDUE\tDONE\tTITLE")
	for _, t := range tasks {
		due := "-"
		if t.DueDate != nil {
			due = t.DueDate.Format("2006-01-02")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%t\t%s\n",
			t.ID, t.ThreadID, t.TaskType, t.Priority, due, t.Completed, t.Title)
	}
	w.Flush()
}
