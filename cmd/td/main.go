package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"taskdesk/internal/config"
	"taskdesk/internal/db"
	"taskdesk/internal/domain"
	"taskdesk/internal/engine"
	"taskdesk/internal/migrate"
	"taskdesk/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "td",
	Short: "Taskdesk CLI",
	Long: `Taskdesk manages CRM tasks: hierarchical work items linked to business
records (invoices, contacts, deals) with assignment, due dates, and an
audit log. Tasks live in a .taskdesk workspace database; view changes
with 'td log tail'.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("TASKDESK")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "", "acting user id")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
}

func registerCommands() {
	rootCmd.AddCommand(userCmd())
	rootCmd.AddCommand(teamCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

func userCmd() *cobra.Command {
	user := &cobra.Command{Use: "user", Short: "Manage users"}
	user.AddCommand(userAddCmd())
	user.AddCommand(userListCmd())
	return user
}

func userAddCmd() *cobra.Command {
	var name, email string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register user",
		RunE: func(cmd *cobra.Command, args []string) error {
			if name == "" {
				return fmt.Errorf("--name required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				u, err := e.CreateUser(ctx, name, email)
				if err != nil {
					return err
				}
				return printJSONOrTable(u)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "user name")
	cmd.Flags().StringVar(&email, "email", "", "email address")
	return cmd
}

func userListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List users",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListUsers(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
}

func teamCmd() *cobra.Command {
	team := &cobra.Command{Use: "team", Short: "Manage teams"}
	team.AddCommand(teamAddCmd())
	team.AddCommand(teamListCmd())
	return team
}

func teamAddCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register team",
		RunE: func(cmd *cobra.Command, args []string) error {
			if name == "" {
				return fmt.Errorf("--name required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				tm, err := e.CreateTeam(ctx, name)
				if err != nil {
					return err
				}
				return printJSONOrTable(tm)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "team name")
	return cmd
}

func teamListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List teams",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListTeams(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
}

func taskCmd() *cobra.Command {
	task := &cobra.Command{Use: "task", Short: "Manage tasks"}
	task.AddCommand(taskCreateCmd())
	task.AddCommand(taskShowCmd())
	task.AddCommand(taskUpdateCmd())
	task.AddCommand(taskDeleteCmd())
	task.AddCommand(taskAssignCmd())
	task.AddCommand(taskStatusCmd())
	task.AddCommand(taskCompleteCmd())
	task.AddCommand(taskLinkCmd())
	task.AddCommand(taskUnlinkCmd())
	task.AddCommand(taskListCmd())
	task.AddCommand(taskSubtasksCmd())
	task.AddCommand(taskRelatedCmd())
	return task
}

func taskCreateCmd() *cobra.Command {
	var opts engine.TaskCreateOptions
	var priority, module string
	var estimated float64
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create task",
		RunE: func(cmd *cobra.Command, args []string) error {
			actor := viper.GetString("actor-id")
			if actor == "" {
				return fmt.Errorf("--actor-id required")
			}
			opts.Priority = domain.TaskPriority(priority)
			opts.Module = domain.TaskModule(module)
			if cmd.Flags().Changed("estimated-hours") {
				opts.EstimatedHours = &estimated
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.CreateTask(ctx, opts, actor)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&opts.Title, "title", "", "task title")
	cmd.Flags().StringVar(&opts.Description, "description", "", "task description")
	cmd.Flags().StringVar(&opts.DueDate, "due", "", "due date (RFC3339)")
	cmd.Flags().StringVar(&opts.ReminderTime, "reminder", "", "reminder time (RFC3339)")
	cmd.Flags().StringVar(&priority, "priority", "", "low|medium|high|critical")
	cmd.Flags().StringVar(&module, "module", "", "crm|accounting|hr|operations|global")
	cmd.Flags().Float64Var(&estimated, "estimated-hours", 0, "estimated hours")
	cmd.Flags().StringVar(&opts.AssignedToID, "assignee", "", "assignee user id")
	cmd.Flags().StringVar(&opts.TeamID, "team", "", "team id")
	cmd.Flags().StringVar(&opts.ParentTaskID, "parent", "", "parent task id")
	return cmd
}

func taskShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <task-id>",
		Short: "Show task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.GetTask(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
}

func taskUpdateCmd() *cobra.Command {
	var p engine.TaskUpdateParams
	var priority, status, module string
	var due, reminder, assignee, team string
	var estimated, actual float64
	cmd := &cobra.Command{
		Use:   "update <task-id>",
		Short: "Replace task fields",
		Long: `Replaces every mutable field of the task. Flags left unset clear the
corresponding field; pass the current values to keep them.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p.Priority = domain.TaskPriority(priority)
			p.Status = domain.TaskStatus(status)
			p.Module = domain.TaskModule(module)
			if cmd.Flags().Changed("due") {
				p.DueDate = &due
			}
			if cmd.Flags().Changed("reminder") {
				p.ReminderTime = &reminder
			}
			if cmd.Flags().Changed("assignee") {
				p.AssignedToID = &assignee
			}
			if cmd.Flags().Changed("team") {
				p.TeamID = &team
			}
			if cmd.Flags().Changed("estimated-hours") {
				p.EstimatedHours = &estimated
			}
			if cmd.Flags().Changed("actual-hours") {
				p.ActualHours = &actual
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.UpdateTask(ctx, args[0], p)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&p.Title, "title", "", "task title")
	cmd.Flags().StringVar(&p.Description, "description", "", "task description")
	cmd.Flags().StringVar(&due, "due", "", "due date (RFC3339)")
	cmd.Flags().StringVar(&reminder, "reminder", "", "reminder time (RFC3339)")
	cmd.Flags().StringVar(&priority, "priority", "medium", "low|medium|high|critical")
	cmd.Flags().StringVar(&status, "status", "not_started", "task status")
	cmd.Flags().IntVar(&p.CompletionPercentage, "completion", 0, "completion percentage")
	cmd.Flags().StringVar(&module, "module", "global", "task module")
	cmd.Flags().StringVar(&assignee, "assignee", "", "assignee user id")
	cmd.Flags().StringVar(&team, "team", "", "team id")
	cmd.Flags().Float64Var(&estimated, "estimated-hours", 0, "estimated hours")
	cmd.Flags().Float64Var(&actual, "actual-hours", 0, "actual hours")
	return cmd
}

func taskDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <task-id>",
		Short: "Delete task and all subtasks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.DeleteTask(ctx, args[0]); err != nil {
					return err
				}
				fmt.Println("deleted", args[0])
				return nil
			})
		},
	}
}

func taskAssignCmd() *cobra.Command {
	var userID, teamID string
	cmd := &cobra.Command{
		Use:   "assign <task-id>",
		Short: "Assign task to a user or team",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID == "" && teamID == "" {
				return fmt.Errorf("--user or --team required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				var t domain.Task
				var err error
				if userID != "" {
					t, err = e.AssignTaskToUser(ctx, args[0], userID)
					if err != nil {
						return err
					}
				}
				if teamID != "" {
					t, err = e.AssignTaskToTeam(ctx, args[0], teamID)
					if err != nil {
						return err
					}
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id")
	cmd.Flags().StringVar(&teamID, "team", "", "team id")
	return cmd
}

func taskStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <task-id> <status>",
		Short: "Set task status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.UpdateTaskStatus(ctx, args[0], domain.TaskStatus(args[1]))
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
}

func taskCompleteCmd() *cobra.Command {
	var pct int
	cmd := &cobra.Command{
		Use:   "complete <task-id>",
		Short: "Set completion percentage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.UpdateTaskCompletion(ctx, args[0], pct)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().IntVar(&pct, "pct", 100, "completion percentage")
	return cmd
}

func taskLinkCmd() *cobra.Command {
	var objectType, relationship string
	var objectID int64
	cmd := &cobra.Command{
		Use:   "link <task-id>",
		Short: "Link a CRM object to a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.AddRelatedObjectToTask(ctx, args[0], objectType, objectID, relationship)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&objectType, "type", "", "object type (invoice, contact, ...)")
	cmd.Flags().Int64Var(&objectID, "id", 0, "object id")
	cmd.Flags().StringVar(&relationship, "relationship", "", "relationship type")
	return cmd
}

func taskUnlinkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unlink <task-id> <related-object-id>",
		Short: "Remove a CRM object link",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.RemoveRelatedObjectFromTask(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
}

func taskListCmd() *cobra.Command {
	var assignee, team, status, module, search string
	var overdue, dueToday, unassigned bool
	var page, size int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				pr := domain.PageRequest{Page: page, Size: size}
				var res domain.TaskPage
				var err error
				switch {
				case overdue:
					res, err = e.OverdueTasks(ctx, pr)
				case dueToday:
					res, err = e.TasksDueToday(ctx, pr)
				case unassigned:
					res, err = e.UnassignedTasks(ctx, pr)
				case search != "":
					res, err = e.SearchTasks(ctx, search, pr)
				case assignee != "":
					res, err = e.TasksByAssignee(ctx, assignee, pr)
				case team != "":
					res, err = e.TasksByTeam(ctx, team, pr)
				case status != "":
					res, err = e.TasksByStatus(ctx, domain.TaskStatus(status), pr)
				case module != "":
					res, err = e.TasksByModule(ctx, domain.TaskModule(module), pr)
				default:
					res, err = e.ListTasks(ctx, pr)
				}
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				renderTaskTable(res.Items)
				fmt.Printf("page %d, %d shown, %d total\n", res.Page, len(res.Items), res.Total)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&assignee, "assignee", "", "filter by assignee user id")
	cmd.Flags().StringVar(&team, "team", "", "filter by team id")
	cmd.Flags().StringVar(&status, "status", "", "filter by status")
	cmd.Flags().StringVar(&module, "module", "", "filter by module")
	cmd.Flags().StringVar(&search, "search", "", "search titles and descriptions")
	cmd.Flags().BoolVar(&overdue, "overdue", false, "only overdue tasks")
	cmd.Flags().BoolVar(&dueToday, "due-today", false, "only tasks due today")
	cmd.Flags().BoolVar(&unassigned, "unassigned", false, "only unassigned tasks")
	cmd.Flags().IntVar(&page, "page", 0, "page number (zero-based)")
	cmd.Flags().IntVar(&size, "size", 0, "page size")
	return cmd
}

func taskSubtasksCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "subtasks <task-id>",
		Short: "List direct subtasks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Subtasks(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				renderTaskTable(items)
				return nil
			})
		},
	}
}

func taskRelatedCmd() *cobra.Command {
	var objectType string
	var objectID int64
	cmd := &cobra.Command{
		Use:   "related",
		Short: "List tasks linked to a CRM object",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.TasksByRelatedObject(ctx, objectType, objectID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				renderTaskTable(items)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&objectType, "type", "", "object type")
	cmd.Flags().Int64Var(&objectID, "id", 0, "object id")
	return cmd
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Event log",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	var entityID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				events, err := e.TailEvents(ctx, n, entityID)
				if err != nil {
					return err
				}
				return printJSONOrTable(events)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "entity id filter")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			if _, err := db.EnsureWorkspace(workspace); err != nil {
				return err
			}
			cfg, err := config.Load(workspace)
			if err != nil {
				return err
			}
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			e := engine.New(conn)
			if addr == "" {
				addr = cfg.Server.Addr
			}
			if basePath == "" {
				basePath = cfg.Server.BasePath
			}
			secret := os.Getenv("TASKDESK_JWT_SECRET")
			if secret == "" {
				secret = cfg.Auth.Secret
			}
			authCfg := server.AuthConfig{
				JWTSecret:        secret,
				AllowActorHeader: cfg.Auth.AllowActorHeader,
			}
			if secret == "" && !cfg.Auth.AllowActorHeader {
				return fmt.Errorf("TASKDESK_JWT_SECRET is required when the actor header is disabled")
			}
			handler, err := server.New(server.Config{
				Engine:          e,
				BasePath:        basePath,
				Auth:            authCfg,
				DefaultPageSize: cfg.Pagination.DefaultSize,
			})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Taskdesk API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "", "API base path")
	return cmd
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, engine.New(conn))
}

func renderTaskTable(items []domain.Task) {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"ID", "Title", "Status", "Pct", "Due", "Assignee", "Module"})
	for _, t := range items {
		assignee := ""
		if t.AssignedToID != nil {
			assignee = *t.AssignedToID
		}
		due := ""
		if t.DueDate != nil {
			due = *t.DueDate
		}
		tw.AppendRow(table.Row{t.ID, t.Title, t.Status, t.CompletionPercentage, due, assignee, t.Module})
	}
	tw.Render()
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
