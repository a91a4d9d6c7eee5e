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

	"teamline/internal/app"
	"teamline/internal/db"
	"teamline/internal/domain"
	"teamline/internal/engine"
	"teamline/internal/migrate"
	"teamline/internal/notify"
	"teamline/internal/repo"
	"teamline/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "tl",
	Short: "Teamline CLI",
	Long: `Teamline manages a team's projects, tasks, attendance, leave and
notifications with role-scoped access: admins see and steer everything,
managers run projects and approve requests, members work on what is
assigned to them. Every visible record and allowed action is decided by
the same policy the HTTP API enforces.`,
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
	viper.SetEnvPrefix("TEAMLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor", "", "acting user email")
	rootCmd.PersistentFlags().String("org", "", "org id (overrides config)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor", rootCmd.PersistentFlags().Lookup("actor"))
	_ = viper.BindPFlag("org", rootCmd.PersistentFlags().Lookup("org"))
}

func registerCommands() {
	rootCmd.AddCommand(bootstrapCmd())
	rootCmd.AddCommand(whoamiCmd())
	rootCmd.AddCommand(userCmd())
	rootCmd.AddCommand(projectCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(ticketCmd())
	rootCmd.AddCommand(attendanceCmd())
	rootCmd.AddCommand(leaveCmd())
	rootCmd.AddCommand(notifyCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

func bootstrapCmd() *cobra.Command {
	var name, email string
	cmd := &cobra.Command{
		Use:   "bootstrap",
		Short: "Create the first admin in an empty org",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				u, err := e.Bootstrap(ctx, name, email)
				if err != nil {
					return err
				}
				return printJSONOrTable(u)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "admin name")
	cmd.Flags().StringVar(&email, "email", "", "admin email")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func whoamiCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Show the acting user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				u, err := e.WhoAmI(ctx, actor)
				if err != nil {
					return err
				}
				return printJSONOrTable(u)
			})
		},
	}
	return cmd
}

func userCmd() *cobra.Command {
	user := &cobra.Command{Use: "user", Short: "Manage users"}
	user.AddCommand(userListCmd())
	user.AddCommand(userCreateCmd())
	user.AddCommand(userShowCmd())
	user.AddCommand(userSetRoleCmd())
	user.AddCommand(userDeleteCmd())
	user.AddCommand(userAPIKeyCmd())
	return user
}

func userListCmd() *cobra.Command {
	var role string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List users",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				users, err := e.ListProfiles(ctx, actor, role)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(users)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Email", "Role"})
				for _, u := range users {
					tw.AppendRow(table.Row{u.ID, u.Name, u.Email, u.Role})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&role, "role", "", "role filter")
	return cmd
}

func userCreateCmd() *cobra.Command {
	var name, email, role string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create user (admin only)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				u, err := e.CreateUser(ctx, actor, name, email, domain.Role(role))
				if err != nil {
					return err
				}
				return printJSONOrTable(u)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "user name")
	cmd.Flags().StringVar(&email, "email", "", "user email")
	cmd.Flags().StringVar(&role, "role", "member", "org role (admin|manager|member)")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func userShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <user-id>",
		Short: "Show a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				u, err := e.GetProfile(ctx, actor, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(u)
			})
		},
	}
	return cmd
}

func userSetRoleCmd() *cobra.Command {
	var role string
	cmd := &cobra.Command{
		Use:   "set-role <user-id>",
		Short: "Change a user's org role (admin only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				r := domain.Role(role)
				u, err := e.UpdateProfile(ctx, actor, args[0], engine.ProfileUpdateOptions{Role: &r})
				if err != nil {
					return err
				}
				return printJSONOrTable(u)
			})
		},
	}
	cmd.Flags().StringVar(&role, "role", "", "new role (admin|manager|member)")
	_ = cmd.MarkFlagRequired("role")
	return cmd
}

func userDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <user-id>",
		Short: "Delete a user (admin only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				return e.DeleteProfile(ctx, actor, args[0])
			})
		},
	}
	return cmd
}

func userAPIKeyCmd() *cobra.Command {
	var name, userID string
	cmd := &cobra.Command{
		Use:   "api-key",
		Short: "Issue an API key; the plaintext is shown once",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				key, plain, err := e.CreateAPIKey(ctx, actor, userID, name)
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]string{
					"id":      key.ID,
					"user_id": key.UserID,
					"name":    key.Name,
					"key":     plain,
				})
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "key label")
	cmd.Flags().StringVar(&userID, "user", "", "target user id (defaults to actor)")
	return cmd
}

func projectCmd() *cobra.Command {
	prj := &cobra.Command{Use: "project", Short: "Manage projects"}
	prj.AddCommand(projectListCmd())
	prj.AddCommand(projectCreateCmd())
	prj.AddCommand(projectShowCmd())
	prj.AddCommand(projectSetStateCmd())
	prj.AddCommand(projectAddParticipantCmd())
	prj.AddCommand(projectRemoveParticipantCmd())
	return prj
}

func projectListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				items, err := e.ListProjects(ctx, actor)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "State"})
				for _, p := range items {
					tw.AppendRow(table.Row{p.ID, p.Name, p.State})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func projectCreateCmd() *cobra.Command {
	var name, desc string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create project",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				p, err := e.CreateProject(ctx, actor, name, desc)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "project name")
	cmd.Flags().StringVar(&desc, "description", "", "description")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func projectShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <project-id>",
		Short: "Show a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				p, err := e.GetProject(ctx, actor, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	return cmd
}

func projectSetStateCmd() *cobra.Command {
	var state string
	cmd := &cobra.Command{
		Use:   "set-state <project-id>",
		Short: "Set project state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				p, err := e.UpdateProjectState(ctx, actor, args[0], state)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&state, "state", "", "ongoing|deployment|completed|paused|cancelled")
	_ = cmd.MarkFlagRequired("state")
	return cmd
}

func projectAddParticipantCmd() *cobra.Command {
	var userID, roleInProject string
	cmd := &cobra.Command{
		Use:   "add-participant <project-id>",
		Short: "Attach a user to a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				p, err := e.AddParticipant(ctx, actor, args[0], userID, roleInProject)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id")
	cmd.Flags().StringVar(&roleInProject, "role", domain.ProjectMember, "project-manager|project-member")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func projectRemoveParticipantCmd() *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "remove-participant <project-id>",
		Short: "Detach a user from a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				return e.RemoveParticipant(ctx, actor, args[0], userID)
			})
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func taskCmd() *cobra.Command {
	task := &cobra.Command{Use: "task", Short: "Manage tasks"}
	task.AddCommand(taskListCmd())
	task.AddCommand(taskCreateCmd())
	task.AddCommand(taskShowCmd())
	task.AddCommand(taskSetStatusCmd())
	task.AddCommand(taskDeleteCmd())
	task.AddCommand(taskChecklistCmd())
	return task
}

func taskListCmd() *cobra.Command {
	var f repo.TaskFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List visible tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				tasks, err := e.ListTasks(ctx, actor, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(tasks)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Project", "Title", "Status", "Assignees"})
				for _, t := range tasks {
					ids := make([]string, 0, len(t.Assignees))
					for _, a := range t.Assignees {
						ids = append(ids, a.UserID)
					}
					tw.AppendRow(table.Row{t.ID, t.ProjectID, t.Title, t.Status, strings.Join(ids, ",")})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.ProjectID, "project", "", "project filter")
	cmd.Flags().StringVar(&f.Status, "status", "", "status filter")
	cmd.Flags().StringVar(&f.AssigneeID, "assignee", "", "assignee filter")
	cmd.Flags().IntVar(&f.Limit, "limit", 0, "max rows")
	return cmd
}

func taskCreateCmd() *cobra.Command {
	var projectID, title, desc string
	var assignees, checklist []string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create task",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				t, err := e.CreateTask(ctx, actor, engine.TaskCreateOptions{
					ProjectID:   projectID,
					Title:       title,
					Description: desc,
					AssigneeIDs: assignees,
					Checklist:   checklist,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&projectID, "project", "", "project id")
	cmd.Flags().StringVar(&title, "title", "", "task title")
	cmd.Flags().StringVar(&desc, "description", "", "description")
	cmd.Flags().StringSliceVar(&assignees, "assignee", nil, "assignee user id (repeatable)")
	cmd.Flags().StringSliceVar(&checklist, "check", nil, "checklist item (repeatable)")
	_ = cmd.MarkFlagRequired("project")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func taskShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <task-id>",
		Short: "Show a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				t, err := e.GetTask(ctx, actor, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	return cmd
}

func taskSetStatusCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "set-status <task-id>",
		Short: "Set task status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				t, err := e.UpdateTaskStatus(ctx, actor, args[0], status)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "pending|ongoing|deployment|completed")
	_ = cmd.MarkFlagRequired("status")
	return cmd
}

func taskDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <task-id>",
		Short: "Delete task (admin only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				return e.DeleteTask(ctx, actor, args[0])
			})
		},
	}
	return cmd
}

func taskChecklistCmd() *cobra.Command {
	checklist := &cobra.Command{Use: "checklist", Short: "Task checklists"}

	var item string
	add := &cobra.Command{
		Use:   "add <task-id>",
		Short: "Add checklist item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				c, err := e.AddChecklistItem(ctx, actor, args[0], item)
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	add.Flags().StringVar(&item, "item", "", "checklist text")
	_ = add.MarkFlagRequired("item")

	var done bool
	check := &cobra.Command{
		Use:   "check <task-id> <item-id>",
		Short: "Check or uncheck an item",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				return e.SetChecklistItemDone(ctx, actor, args[0], args[1], done)
			})
		},
	}
	check.Flags().BoolVar(&done, "done", true, "completed state")

	checklist.AddCommand(add)
	checklist.AddCommand(check)
	return checklist
}

func ticketCmd() *cobra.Command {
	ticket := &cobra.Command{Use: "ticket", Short: "Manage tickets"}
	ticket.AddCommand(ticketAddCmd())
	ticket.AddCommand(ticketListCmd())
	ticket.AddCommand(ticketShowCmd())
	ticket.AddCommand(ticketUpdateCmd())
	ticket.AddCommand(ticketDeleteCmd())
	return ticket
}

func ticketAddCmd() *cobra.Command {
	var taskID, title, desc, assignedTo, priority, tag string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Raise a ticket on a task",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				k, err := e.AddTicket(ctx, actor, engine.TicketCreateOptions{
					TaskID:      taskID,
					IssueTitle:  title,
					Description: desc,
					AssignedTo:  assignedTo,
					Priority:    priority,
					Tag:         tag,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(k)
			})
		},
	}
	cmd.Flags().StringVar(&taskID, "task", "", "parent task id")
	cmd.Flags().StringVar(&title, "title", "", "issue title")
	cmd.Flags().StringVar(&desc, "description", "", "description")
	cmd.Flags().StringVar(&assignedTo, "assign", "", "assignee user id")
	cmd.Flags().StringVar(&priority, "priority", "", "low|medium|high|urgent")
	cmd.Flags().StringVar(&tag, "tag", "", "free-form tag")
	_ = cmd.MarkFlagRequired("task")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func ticketListCmd() *cobra.Command {
	var taskID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List visible tickets on a task",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				items, err := e.ListTickets(ctx, actor, taskID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Priority", "Status", "Assignee"})
				for _, k := range items {
					assignee := ""
					if k.AssignedTo != nil {
						assignee = *k.AssignedTo
					}
					tw.AppendRow(table.Row{k.ID, k.IssueTitle, k.Priority, k.Status, assignee})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&taskID, "task", "", "parent task id")
	_ = cmd.MarkFlagRequired("task")
	return cmd
}

func ticketShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <ticket-id>",
		Short: "Show a ticket",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				k, err := e.GetTicket(ctx, actor, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(k)
			})
		},
	}
	return cmd
}

func ticketUpdateCmd() *cobra.Command {
	var title, desc, assignedTo, priority, status, tag string
	cmd := &cobra.Command{
		Use:   "update <ticket-id>",
		Short: "Update a ticket",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := engine.TicketUpdateOptions{}
			if cmd.Flags().Changed("title") {
				opts.IssueTitle = &title
			}
			if cmd.Flags().Changed("description") {
				opts.Description = &desc
			}
			if cmd.Flags().Changed("assign") {
				opts.AssignedTo = &assignedTo
			}
			if cmd.Flags().Changed("priority") {
				opts.Priority = &priority
			}
			if cmd.Flags().Changed("status") {
				opts.Status = &status
			}
			if cmd.Flags().Changed("tag") {
				opts.Tag = &tag
			}
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				k, err := e.UpdateTicket(ctx, actor, args[0], opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(k)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "issue title")
	cmd.Flags().StringVar(&desc, "description", "", "description")
	cmd.Flags().StringVar(&assignedTo, "assign", "", "assignee user id (empty clears)")
	cmd.Flags().StringVar(&priority, "priority", "", "low|medium|high|urgent")
	cmd.Flags().StringVar(&status, "status", "", "open|pending|completed")
	cmd.Flags().StringVar(&tag, "tag", "", "free-form tag")
	return cmd
}

func ticketDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <ticket-id>",
		Short: "Delete ticket (admin or manager)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				return e.DeleteTicket(ctx, actor, args[0])
			})
		},
	}
	return cmd
}

func attendanceCmd() *cobra.Command {
	att := &cobra.Command{Use: "attendance", Short: "Attendance tracking"}
	att.AddCommand(attendanceMarkCmd())
	att.AddCommand(attendanceListCmd())
	att.AddCommand(attendanceReportCmd())
	att.AddCommand(attendanceDecideCmd())
	return att
}

func attendanceMarkCmd() *cobra.Command {
	var date, workMode string
	cmd := &cobra.Command{
		Use:   "mark",
		Short: "Mark attendance for today",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				a, err := e.MarkAttendance(ctx, actor, "", date, workMode)
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "date (YYYY-MM-DD, defaults to today)")
	cmd.Flags().StringVar(&workMode, "mode", "office", "office|wfh")
	return cmd
}

func attendanceListCmd() *cobra.Command {
	var f repo.AttendanceFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List attendance records",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				items, err := e.ListAttendance(ctx, actor, f)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	cmd.Flags().StringVar(&f.UserID, "user", "", "user filter")
	cmd.Flags().StringVar(&f.From, "from", "", "from date")
	cmd.Flags().StringVar(&f.To, "to", "", "to date")
	cmd.Flags().StringVar(&f.Status, "status", "", "approval status filter")
	return cmd
}

func attendanceReportCmd() *cobra.Command {
	var f repo.AttendanceFilters
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Attendance report",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				items, err := e.AttendanceReport(ctx, actor, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Date", "User", "Mode", "Approval", "Approved By"})
				for _, a := range items {
					approver := ""
					if a.ApprovedBy != nil {
						approver = *a.ApprovedBy
					}
					tw.AppendRow(table.Row{a.Date, a.UserID, a.WorkMode, a.ApprovalStatus, approver})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.UserID, "user", "", "user filter")
	cmd.Flags().StringVar(&f.From, "from", "", "from date")
	cmd.Flags().StringVar(&f.To, "to", "", "to date")
	cmd.Flags().StringVar(&f.Status, "status", "", "approval status filter")
	return cmd
}

func attendanceDecideCmd() *cobra.Command {
	var reject bool
	cmd := &cobra.Command{
		Use:   "decide <attendance-id>",
		Short: "Approve or reject an attendance record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				a, err := e.DecideAttendance(ctx, actor, args[0], !reject)
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	cmd.Flags().BoolVar(&reject, "reject", false, "reject instead of approve")
	return cmd
}

func leaveCmd() *cobra.Command {
	leave := &cobra.Command{Use: "leave", Short: "Leave requests"}
	leave.AddCommand(leaveApplyCmd())
	leave.AddCommand(leaveListCmd())
	leave.AddCommand(leaveDecideCmd())
	leave.AddCommand(leavePolicyCmd())
	return leave
}

func leaveApplyCmd() *cobra.Command {
	var leaveType, from, to, reason string
	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Apply for leave",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				l, err := e.ApplyLeave(ctx, actor, engine.LeaveApplyOptions{
					LeaveType: leaveType,
					StartDate: from,
					EndDate:   to,
					Reason:    reason,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(l)
			})
		},
	}
	cmd.Flags().StringVar(&leaveType, "type", "", "paid|sick|casual")
	cmd.Flags().StringVar(&from, "from", "", "start date")
	cmd.Flags().StringVar(&to, "to", "", "end date")
	cmd.Flags().StringVar(&reason, "reason", "", "reason")
	_ = cmd.MarkFlagRequired("type")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func leaveListCmd() *cobra.Command {
	var f repo.LeaveFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List leave requests",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				items, err := e.ListLeave(ctx, actor, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "User", "Type", "From", "To", "Status"})
				for _, l := range items {
					tw.AppendRow(table.Row{l.ID, l.UserID, l.LeaveType, l.StartDate, l.EndDate, l.Status})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.UserID, "user", "", "user filter")
	cmd.Flags().StringVar(&f.Status, "status", "", "status filter")
	cmd.Flags().StringVar(&f.Type, "type", "", "leave type filter")
	return cmd
}

func leaveDecideCmd() *cobra.Command {
	var reject bool
	cmd := &cobra.Command{
		Use:   "decide <leave-id>",
		Short: "Approve or reject a leave request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				l, err := e.DecideLeave(ctx, actor, args[0], !reject)
				if err != nil {
					return err
				}
				return printJSONOrTable(l)
			})
		},
	}
	cmd.Flags().BoolVar(&reject, "reject", false, "reject instead of approve")
	return cmd
}

func leavePolicyCmd() *cobra.Command {
	policy := &cobra.Command{Use: "policy", Short: "Leave policy"}

	show := &cobra.Command{
		Use:   "show",
		Short: "Show allowances",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return printJSONOrTable(e.Config.Leave.Allowances)
			})
		},
	}

	var allowances map[string]int
	set := &cobra.Command{
		Use:   "set",
		Short: "Update allowances (admin only)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				cfg, err := e.UpdateLeavePolicy(ctx, actor, allowances)
				if err != nil {
					return err
				}
				return printJSONOrTable(cfg.Leave.Allowances)
			})
		},
	}
	set.Flags().StringToIntVar(&allowances, "allow", nil, "type=days (repeatable)")
	_ = set.MarkFlagRequired("allow")

	policy.AddCommand(show)
	policy.AddCommand(set)
	return policy
}

func notifyCmd() *cobra.Command {
	notifyRoot := &cobra.Command{Use: "notify", Short: "Notifications"}
	notifyRoot.AddCommand(notifySendCmd())
	notifyRoot.AddCommand(notifyListCmd())
	notifyRoot.AddCommand(notifyReadCmd())
	return notifyRoot
}

func notifySendCmd() *cobra.Command {
	var audience, subject, message string
	var to []string
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send a notification",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				n, err := e.SendNotification(ctx, actor, engine.NotificationSendOptions{
					Audience: domain.Audience(audience),
					Subject:  subject,
					Message:  message,
					ToEmails: to,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(n)
			})
		},
	}
	cmd.Flags().StringVar(&audience, "audience", "private", "public|private")
	cmd.Flags().StringVar(&subject, "subject", "", "subject line")
	cmd.Flags().StringVar(&message, "message", "", "message body")
	cmd.Flags().StringSliceVar(&to, "to", nil, "recipient email (repeatable)")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}

func notifyListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List visible notifications",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				items, err := e.ListNotifications(ctx, actor)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "From", "Audience", "Subject"})
				for _, n := range items {
					tw.AppendRow(table.Row{n.ID, n.FromEmail, n.Audience, n.Subject})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func notifyReadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "read <notification-id>",
		Short: "Mark a notification read",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				return e.MarkNotificationRead(ctx, actor, args[0])
			})
		},
	}
	return cmd
}

func logCmd() *cobra.Command {
	log := &cobra.Command{Use: "log", Short: "Event log"}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType, entityKind, entityID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				events, err := e.Repo.LatestEvents(ctx, n, evtType, entityKind, entityID)
				if err != nil {
					return err
				}
				return printJSONOrTable(events)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "entity id")
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
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			r := repo.Repo{DB: conn}
			cfg, err := app.ResolveOrgConfig(cmd.Context(), workspace, viper.GetString("org"), r)
			if err != nil {
				return err
			}
			e := engine.New(conn, cfg)
			dispatcher := notify.NewDispatcher(notify.LogSender{}, cfg.Notifications.Buffer)
			defer dispatcher.Close()
			e.Notify = dispatcher
			authCfg := server.AuthConfig{JWTSecret: os.Getenv("TEAMLINE_JWT_SECRET")}
			if authCfg.JWTSecret == "" {
				return fmt.Errorf("TEAMLINE_JWT_SECRET is required for bearer auth")
			}
			handler, err := server.New(server.Config{Engine: e, BasePath: basePath, Auth: authCfg})
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
			fmt.Printf("Serving Teamline API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs)\n", addr, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v1", "API base path")
	return cmd
}

// --- helpers ---

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
	r := repo.Repo{DB: conn}
	cfg, err := app.ResolveOrgConfig(ctx, workspace, viper.GetString("org"), r)
	if err != nil {
		return err
	}
	e := engine.New(conn, cfg)
	return fn(ctx, e)
}

func withActor(ctx context.Context, fn func(context.Context, engine.Engine, domain.Actor) error) error {
	return withEngine(ctx, func(ctx context.Context, e engine.Engine) error {
		email := strings.TrimSpace(viper.GetString("actor"))
		if email == "" {
			return fmt.Errorf("--actor (or TEAMLINE_ACTOR) is required")
		}
		u, err := e.Repo.GetUserByEmail(ctx, email)
		if err != nil {
			return fmt.Errorf("unknown actor %q", email)
		}
		return fn(ctx, e, u.Actor())
	})
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
