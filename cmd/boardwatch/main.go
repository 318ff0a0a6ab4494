package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"teamboard/internal/dashboard"
	"teamboard/internal/models"
)

var Version = "dev"

type globalOpts struct {
	server   string
	email    string
	password string
	pageSize int
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &globalOpts{}
	rootCmd := &cobra.Command{
		Use:           "boardwatch",
		Short:         "Terminal client for a teamboard server",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&opts.server, "server", envOr("BOARD_SERVER", "http://localhost:5000"), "server base URL")
	rootCmd.PersistentFlags().StringVar(&opts.email, "email", os.Getenv("BOARD_EMAIL"), "login email")
	rootCmd.PersistentFlags().StringVar(&opts.password, "password", os.Getenv("BOARD_PASSWORD"), "login password")
	rootCmd.PersistentFlags().IntVar(&opts.pageSize, "limit", 10, "tasks per page")

	rootCmd.AddCommand(listCmd(opts))
	rootCmd.AddCommand(watchCmd(opts))
	rootCmd.AddCommand(moveCmd(opts))
	rootCmd.AddCommand(createCmd(opts))
	rootCmd.AddCommand(deleteCmd(opts))
	rootCmd.AddCommand(usersCmd(opts))
	return rootCmd
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// failureLog logs like dashboard.LogNotifier and keeps the last failure so a
// command can exit non-zero after a background update went wrong.
type failureLog struct {
	dashboard.LogNotifier

	mu   sync.Mutex
	last error
}

func (f *failureLog) Error(msg string, err error) {
	f.LogNotifier.Error(msg, err)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.last = fmt.Errorf("%s: %w", msg, err)
}

func (f *failureLog) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last
}

type client struct {
	session  *dashboard.Session
	engine   *dashboard.Engine
	failures *failureLog
}

func connect(ctx context.Context, opts *globalOpts) (*client, error) {
	if opts.email == "" || opts.password == "" {
		return nil, fmt.Errorf("--email and --password (or BOARD_EMAIL/BOARD_PASSWORD) are required")
	}
	session, err := dashboard.Login(ctx, opts.server, opts.email, opts.password)
	if err != nil {
		return nil, err
	}
	failures := &failureLog{}
	api := dashboard.NewHTTPClient(opts.server, session)
	engine := dashboard.NewEngine(api, session, dashboard.WithPageSize(opts.pageSize), dashboard.WithNotifier(failures))
	return &client{session: session, engine: engine, failures: failures}, nil
}

func listCmd(opts *globalOpts) *cobra.Command {
	var page int
	var search string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Print one page of the board",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, err := connect(ctx, opts)
			if err != nil {
				return err
			}
			defer c.session.Close()
			if err := c.engine.Load(ctx, page); err != nil {
				return err
			}
			render(cmd.OutOrStdout(), c.engine, search)
			return nil
		},
	}
	cmd.Flags().IntVarP(&page, "page", "p", 1, "page number")
	cmd.Flags().StringVarP(&search, "search", "s", "", "only titles containing this text")
	return cmd
}

func watchCmd(opts *globalOpts) *cobra.Command {
	var page int
	var search string
	var every time.Duration
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow the board live",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			c, err := connect(ctx, opts)
			if err != nil {
				return err
			}
			defer c.session.Close()
			if err := c.engine.Load(ctx, page); err != nil {
				return err
			}
			stream, err := dashboard.NewStream(opts.server, c.engine, dashboard.LogNotifier{})
			if err != nil {
				return err
			}
			go func() { _ = stream.Run(ctx) }()

			ticker := time.NewTicker(every)
			defer ticker.Stop()
			last := ""
			for {
				var b strings.Builder
				render(&b, c.engine, search)
				if out := b.String(); out != last {
					fmt.Fprint(cmd.OutOrStdout(), out)
					last = out
				}
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
				}
			}
		},
	}
	cmd.Flags().IntVarP(&page, "page", "p", 1, "page number")
	cmd.Flags().StringVarP(&search, "search", "s", "", "only titles containing this text")
	cmd.Flags().DurationVar(&every, "refresh", time.Second, "how often to redraw")
	return cmd
}

func moveCmd(opts *globalOpts) *cobra.Command {
	var page int
	cmd := &cobra.Command{
		Use:   "move [task-id] [status]",
		Short: "Move a task to another column",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			dest := models.TaskStatus(args[1])
			if !dest.Valid() {
				return fmt.Errorf("unknown status %q", args[1])
			}
			ctx := cmd.Context()
			c, err := connect(ctx, opts)
			if err != nil {
				return err
			}
			defer c.session.Close()
			if err := c.engine.Load(ctx, page); err != nil {
				return err
			}

			issued, err := c.engine.Move(ctx, args[0], dest)
			if err != nil {
				return err
			}
			if !issued {
				fmt.Fprintf(cmd.OutOrStdout(), "task %s is already in %s\n", args[0], dest)
				return nil
			}
			c.engine.Wait()
			render(cmd.OutOrStdout(), c.engine, "")
			return c.failures.Err()
		},
	}
	cmd.Flags().IntVarP(&page, "page", "p", 1, "page the task is on")
	return cmd
}

func createCmd(opts *globalOpts) *cobra.Command {
	var in models.CreateTaskInput
	var status, priority, due, assignee string
	cmd := &cobra.Command{
		Use:   "create [title]",
		Short: "Create a task (managers only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in.Title = args[0]
			in.Status = models.TaskStatus(status)
			in.Priority = models.TaskPriority(priority)
			if due != "" {
				d, err := time.Parse("2006-01-02", due)
				if err != nil {
					return fmt.Errorf("--due must be YYYY-MM-DD: %w", err)
				}
				in.DueDate = &d
			}

			ctx := cmd.Context()
			c, err := connect(ctx, opts)
			if err != nil {
				return err
			}
			defer c.session.Close()

			if in.AssignedTo, err = resolveAssignee(ctx, c.engine, assignee); err != nil {
				return err
			}
			created, err := c.engine.Create(ctx, in)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %s [%s] %s -> %s\n", created.ID, created.Status, created.Title, created.AssignedTo.Name)
			return nil
		},
	}
	cmd.Flags().StringVarP(&in.Description, "description", "d", "", "task description")
	cmd.Flags().StringVar(&status, "status", "", "initial status (default Pending)")
	cmd.Flags().StringVar(&priority, "priority", "", "Low, Medium or High (default Medium)")
	cmd.Flags().StringVar(&due, "due", "", "due date, YYYY-MM-DD")
	cmd.Flags().StringVarP(&assignee, "assignee", "a", "", "user ID or email (default yourself)")
	return cmd
}

// resolveAssignee turns an email into a user ID using the users list. IDs
// pass through unchanged.
func resolveAssignee(ctx context.Context, engine *dashboard.Engine, assignee string) (string, error) {
	if !strings.Contains(assignee, "@") {
		return assignee, nil
	}
	users, err := engine.Users(ctx)
	if err != nil {
		return "", err
	}
	for _, u := range users {
		if strings.EqualFold(u.Email, assignee) {
			return u.ID, nil
		}
	}
	return "", fmt.Errorf("no user with email %s", assignee)
}

func deleteCmd(opts *globalOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "delete [task-id]",
		Short: "Delete a task (managers only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, err := connect(ctx, opts)
			if err != nil {
				return err
			}
			defer c.session.Close()
			if err := c.engine.Delete(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Task removed\n")
			return nil
		},
	}
}

func usersCmd(opts *globalOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "users",
		Short: "List possible assignees (managers only)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, err := connect(ctx, opts)
			if err != nil {
				return err
			}
			defer c.session.Close()
			if c.session.User().Role != models.RoleManager {
				return errors.New("only managers can list users")
			}
			users, err := c.engine.Users(ctx)
			if err != nil {
				return err
			}
			for _, u := range users {
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %s <%s> %s\n", u.ID, u.Name, u.Email, u.Role)
			}
			return nil
		},
	}
}

func render(w io.Writer, engine *dashboard.Engine, search string) {
	current, pages, total := engine.Page()
	cols := engine.Columns(search)
	fmt.Fprintf(w, "page %d/%d, %d tasks\n", current, pages, total)
	for _, status := range models.Statuses {
		fmt.Fprintf(w, "== %s (%d)\n", status, len(cols[status]))
		for _, t := range cols[status] {
			due := ""
			if t.DueDate != nil {
				due = " due " + t.DueDate.Format("2006-01-02")
			}
			fmt.Fprintf(w, "  %s  [%s] %s -> %s%s\n", t.ID, t.Priority, t.Title, t.AssignedTo.Name, due)
		}
	}
	if err := engine.Err(); err != nil {
		fmt.Fprintf(w, "! %v\n", err)
	}
}
