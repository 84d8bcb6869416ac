package cmd

import (
	"fmt"
	"time"

	"sponsor_worker/config"
	"sponsor_worker/core/domain"
	"sponsor_worker/core/port/out"
	"sponsor_worker/internal/bootstrap"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func newTaskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Manage sponsor fulfillment tasks",
	}
	cmd.AddCommand(newTaskAddCmd())
	cmd.AddCommand(newTaskListCmd())
	return cmd
}

func openStore(cmd *cobra.Command) (out.ThreadStore, func(), error) {
	if err := cfg.Validate(config.ModeStore, false); err != nil {
		return nil, nil, err
	}
	deps, cleanup, err := bootstrap.NewDependencies(cfg)
	if err != nil {
		return nil, nil, err
	}
	return deps.Store, cleanup, nil
}

func newTaskAddCmd() *cobra.Command {
	var (
		threadID string
		task     domain.FulfillmentTask
		taskType string
		priority string
		due      string
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Record a fulfillment obligation for a sponsor thread",
		Example: `  sponsor-worker task add --thread 3f1c2a56-... --title "Logo on flyer" \
      --type flyer --priority high --due 2025-09-01`,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(threadID)
			if err != nil {
				return fmt.Errorf("invalid --thread: %w", err)
			}
			task.ThreadID = id
			task.TaskType = domain.TaskType(taskType)
			task.Priority = domain.TaskPriority(priority)
			if due != "" {
				d, err := time.Parse("2006-01-02", due)
				if err != nil {
					return fmt.Errorf("invalid --due, use YYYY-MM-DD: %w", err)
				}
				task.DueDate = &d
			}

			store, cleanup, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			taskID, err := store.SaveFulfillmentTask(cmd.Context(), &task)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created task %s\n", taskID)
			return nil
		},
	}

	cmd.Flags().StringVar(&threadID, "thread", "", "Sponsor thread ID")
	cmd.Flags().StringVar(&task.Title, "title", "", "Task title")
	cmd.Flags().StringVar(&task.Description, "description", "", "Task description")
	cmd.Flags().StringVar(&taskType, "type", string(domain.TaskOther), "Task type (social_media, email, flyer, program, announcement, website, newsletter, event, other)")
	cmd.Flags().StringVar(&priority, "priority", string(domain.TaskPriorityMedium), "Task priority (high, medium, low)")
	cmd.Flags().StringVar(&due, "due", "", "Due date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&task.AssignedTo, "assignee", "", "Person responsible")
	cmd.Flags().StringVar(&task.Notes, "notes", "", "Free-form notes")
	_ = cmd.MarkFlagRequired("thread")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func newTaskListCmd() *cobra.Command {
	var threadID string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List fulfillment tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			var filter *uuid.UUID
			if threadID != "" {
				id, err := uuid.Parse(threadID)
				if err != nil {
					return fmt.Errorf("invalid --thread: %w", err)
				}
				filter = &id
			}

			store, cleanup, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			tasks, err := store.ListFulfillmentTasks(cmd.Context(), filter)
			if err != nil {
				return err
			}
			printTasks(cmd, tasks)
			return nil
		},
	}

	cmd.Flags().StringVar(&threadID, "thread", "", "Only tasks for this thread ID")
	return cmd
}
