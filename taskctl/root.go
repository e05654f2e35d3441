package main

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/valeop/taskflow-manager/client"
	"github.com/valeop/taskflow-manager/domain"
)

type options struct {
	configPath string
	apiURL     string
	localFile  string

	ctrl *client.Controller
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:          "taskctl",
		Short:        "Manage tasks from the terminal",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.setup(cmd)
		},
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", defaultConfigPath(), "path to taskctl.yaml")
	root.PersistentFlags().StringVar(&opts.apiURL, "api", "", "base URL of the task API")
	root.PersistentFlags().StringVar(&opts.localFile, "local", "", "keep tasks in this JSON file instead of the API")

	root.AddCommand(
		newListCmd(opts),
		newStatsCmd(opts),
		newAddCmd(opts),
		newEditCmd(opts),
		newToggleCmd(opts),
		newRemoveCmd(opts),
	)
	return root
}

// setup picks the backend. Flags win over the config file; with neither the
// tasks live in a local file under the user config dir.
func (o *options) setup(cmd *cobra.Command) error {
	cfg, err := loadFileConfig(o.configPath)
	if err != nil {
		return err
	}
	if o.apiURL != "" && o.localFile != "" {
		return errors.New("--api and --local are mutually exclusive")
	}

	logger := log.New()
	logger.SetOutput(cmd.ErrOrStderr())
	logger.SetFormatter(&log.TextFormatter{DisableTimestamp: true})
	if cfg.LogLevel != "" {
		lvl, err := log.ParseLevel(cfg.LogLevel)
		if err != nil {
			return fmt.Errorf("invalid log_level: %w", err)
		}
		logger.SetLevel(lvl)
	}
	notifier := client.LogNotifier{Logger: logger}

	var backend client.TaskAPI
	switch {
	case o.apiURL != "":
		backend = client.NewHTTPClient(o.apiURL)
	case o.localFile != "":
		backend = client.NewLocalStore(o.localFile)
	case cfg.API != "":
		backend = client.NewHTTPClient(cfg.API)
	case cfg.LocalFile != "":
		backend = client.NewLocalStore(cfg.LocalFile)
	default:
		backend = client.NewLocalStore(defaultLocalFile())
	}
	o.ctrl = client.NewController(backend, notifier)
	return o.ctrl.Load(cmd.Context())
}

func newListCmd(opts *options) *cobra.Command {
	var filter string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.ctrl.SetFilter(client.Filter(filter)); err != nil {
				return err
			}
			printTasks(cmd.OutOrStdout(), opts.ctrl.Visible())
			return nil
		},
	}
	cmd.Flags().StringVar(&filter, "filter", string(client.FilterAll), "todas, pendientes or completadas")
	return cmd
}

func newStatsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show task counts and completion rate",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := opts.ctrl.Counts()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Total:       %d\n", c.Total)
			fmt.Fprintf(out, "Pendientes:  %d\n", c.Pending)
			fmt.Fprintf(out, "Completadas: %d\n", c.Completed)
			fmt.Fprintf(out, "Progreso:    %d%%\n", c.CompletionRate)
			return nil
		},
	}
}

func newAddCmd(opts *options) *cobra.Command {
	var (
		priority    string
		description string
		due         string
	)
	cmd := &cobra.Command{
		Use:   "add TITLE",
		Short: "Create a task",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dueDate, err := domain.ParseDueDate(due)
			if err != nil {
				return err
			}
			task, err := opts.ctrl.Create(cmd.Context(), domain.TaskDraft{
				Title:       strings.Join(args, " "),
				Description: description,
				Priority:    domain.Priority(priority),
				DueDate:     dueDate,
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), task.TaskID)
			return nil
		},
	}
	cmd.Flags().StringVarP(&priority, "priority", "p", string(domain.PriorityMedium), "alta, media or baja")
	cmd.Flags().StringVarP(&description, "description", "d", "", "task description")
	cmd.Flags().StringVar(&due, "due", "", "due date, YYYY-MM-DD or RFC 3339")
	return cmd
}

func newEditCmd(opts *options) *cobra.Command {
	var (
		title       string
		description string
		priority    string
		due         string
		clearDue    bool
	)
	cmd := &cobra.Command{
		Use:   "edit ID",
		Short: "Change the given fields of a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var upd domain.TaskUpdate
			flags := cmd.Flags()
			if flags.Changed("title") {
				upd.Title = domain.Some(title)
			}
			if flags.Changed("description") {
				upd.Description = domain.Some(description)
			}
			if flags.Changed("priority") {
				upd.Priority = domain.Some(domain.Priority(priority))
			}
			if flags.Changed("due") {
				d, err := domain.ParseDueDate(due)
				if err != nil {
					return err
				}
				if d == nil {
					upd.DueDate = domain.Null[time.Time]()
				} else {
					upd.DueDate = domain.Some(*d)
				}
			}
			if clearDue {
				upd.DueDate = domain.Null[time.Time]()
			}
			if upd.Empty() {
				return errors.New("nothing to change")
			}
			if err := upd.Validate(); err != nil {
				return err
			}
			task, err := opts.ctrl.Update(cmd.Context(), args[0], upd)
			if err != nil {
				return err
			}
			printTasks(cmd.OutOrStdout(), []domain.Task{task})
			return nil
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "new title")
	cmd.Flags().StringVarP(&description, "description", "d", "", "new description")
	cmd.Flags().StringVarP(&priority, "priority", "p", "", "alta, media or baja")
	cmd.Flags().StringVar(&due, "due", "", "new due date")
	cmd.Flags().BoolVar(&clearDue, "clear-due", false, "remove the due date")
	return cmd
}

func newToggleCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "toggle ID",
		Short: "Flip a task between pendiente and completada",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			task, err := opts.ctrl.Toggle(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printTasks(cmd.OutOrStdout(), []domain.Task{task})
			return nil
		},
	}
}

func newRemoveCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:     "rm ID",
		Aliases: []string{"delete"},
		Short:   "Delete a task",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.ctrl.Delete(cmd.Context(), args[0])
		},
	}
}

func printTasks(w io.Writer, tasks []domain.Task) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tESTADO\tPRIORIDAD\tVENCE\tTÍTULO")
	for _, t := range tasks {
		due := "-"
		if t.DueDate != nil {
			due = t.DueDate.Format(time.DateOnly)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", t.TaskID, t.Status, t.Priority, due, t.Title)
	}
	tw.Flush()
}
