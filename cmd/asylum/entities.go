package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"asylum/internal/app"
	"asylum/internal/descriptor"
	"asylum/internal/domain"
	"asylum/internal/engine"
	"asylum/internal/query"
	"asylum/internal/repo"
)

type pageFlags struct {
	cursor, offset int
}

func (p *pageFlags) bind(cmd *cobra.Command) {
	cmd.Flags().IntVar(&p.cursor, "cursor", query.DefaultCursor, "start position")
	cmd.Flags().IntVar(&p.offset, "offset", query.DefaultPageSize, "page size")
}

func (p *pageFlags) pagination() (query.Pagination, error) {
	return query.NewPagination(&p.cursor, &p.offset)
}

func parseID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid id %q", arg)
	}
	return id, nil
}

func renderExecutors(items []query.ExecutorView) {
	tw := newTable("UID", "Name", "Age", "Job", "Region", "Available", "Level", "Tasks")
	for _, e := range items {
		level := ""
		if e.Descriptor != nil {
			level = string(e.Descriptor.Level)
		}
		tw.AppendRow(table.Row{e.UID, e.Name, e.Age, e.Job, e.Region, e.Available, level, len(e.Tasks)})
	}
	tw.Render()
}

func renderTasks(items []query.TaskView) {
	tw := newTable("ID", "Title", "Priority", "Level", "State", "Assignee", "Substance", "Done", "Available")
	for _, t := range items {
		tw.AppendRow(table.Row{t.ID, t.Title, t.Priority, t.Level, t.State, ptrString(t.AssigneeUID), t.SubstanceID, t.Accomplished, t.Available})
	}
	tw.Render()
}

func renderSubstances(items []query.SubstanceView) {
	tw := newTable("ID", "Name", "Level", "Contained", "Task")
	for _, s := range items {
		task := ""
		if s.RelatedTask != nil {
			task = s.RelatedTask.Title
		}
		tw.AppendRow(table.Row{s.ID, s.Name, s.Level, s.Contained, task})
	}
	tw.Render()
}

func executorCmd() *cobra.Command {
	ex := &cobra.Command{Use: "executor", Short: "Manage executors"}
	ex.AddCommand(executorCreateCmd())
	ex.AddCommand(executorListCmd())
	ex.AddCommand(executorGetCmd())
	ex.AddCommand(executorUpdateCmd())
	ex.AddCommand(executorDescriptorCmd())
	ex.AddCommand(executorDeleteCmd())
	ex.AddCommand(executorTasksCmd())
	return ex
}

func bindDescriptorFlags(cmd *cobra.Command, level *string, rate, satisfaction *int) {
	cmd.Flags().StringVar(level, "level", "", "descriptor level")
	cmd.Flags().IntVar(rate, "success-rate", 0, "descriptor success rate (0-100)")
	cmd.Flags().IntVar(satisfaction, "satisfaction", 0, "descriptor satisfaction (0-10)")
}

func descriptorPatch(cmd *cobra.Command, level string, rate, satisfaction int) descriptor.Patch {
	return descriptor.Patch{
		Level:        optionalEnum[domain.DifficultyLevel](cmd, "level", level),
		SuccessRate:  optionalInt(cmd, "success-rate", rate),
		Satisfaction: optionalInt(cmd, "satisfaction", satisfaction),
	}
}

func executorCreateCmd() *cobra.Command {
	var name, job, region, level string
	var age, rate, satisfaction int
	var impaired, available bool
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Register an executor",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				ex, err := a.Engine.CreateExecutor(ctx, engine.ExecutorCreateOptions{
					Name:       name,
					Age:        age,
					Job:        optionalEnum[domain.Job](cmd, "job", job),
					Impaired:   optionalBool(cmd, "impaired", impaired),
					Available:  optionalBool(cmd, "available", available),
					Region:     optionalEnum[domain.Region](cmd, "region", region),
					Descriptor: descriptorPatch(cmd, level, rate, satisfaction),
				})
				return emit(ex, err, nil)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "executor name")
	cmd.Flags().IntVar(&age, "age", 0, "age")
	cmd.Flags().StringVar(&job, "job", "", "job")
	cmd.Flags().StringVar(&region, "region", "", "region")
	cmd.Flags().BoolVar(&impaired, "impaired", false, "impaired")
	cmd.Flags().BoolVar(&available, "available", true, "available")
	bindDescriptorFlags(cmd, &level, &rate, &satisfaction)
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("age")
	return cmd
}

func executorListCmd() *cobra.Command {
	var page pageFlags
	var name, job, region, level string
	var age, rate, satisfaction int
	var impaired, available bool
	var include []string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List executors",
		RunE: func(cmd *cobra.Command, args []string) error {
			pg, err := page.pagination()
			if err != nil {
				return err
			}
			inc := includeSet(include)
			incl := query.ExecutorIncludes{Tasks: inc["tasks"], Record: inc["record"]}
			byDescriptor := cmd.Flags().Changed("level") || cmd.Flags().Changed("success-rate") || cmd.Flags().Changed("satisfaction")
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if byDescriptor {
					p := descriptorPatch(cmd, level, rate, satisfaction)
					items, err := a.Query.ListExecutorsByDescriptor(ctx, query.DescriptorFilter{
						Level: p.Level, SuccessRate: p.SuccessRate, Satisfaction: p.Satisfaction,
					}, pg, incl)
					return emitList(items, err, renderExecutors)
				}
				items, err := a.Query.ListExecutors(ctx, repo.ExecutorFilters{
					Name:      optionalString(cmd, "name", name),
					Age:       optionalInt(cmd, "age", age),
					Job:       optionalEnum[domain.Job](cmd, "job", job),
					Impaired:  optionalBool(cmd, "impaired", impaired),
					Available: optionalBool(cmd, "available", available),
					Region:    optionalEnum[domain.Region](cmd, "region", region),
				}, pg, incl)
				return emitList(items, err, renderExecutors)
			})
		},
	}
	page.bind(cmd)
	cmd.Flags().StringVar(&name, "name", "", "name filter")
	cmd.Flags().IntVar(&age, "age", 0, "age filter")
	cmd.Flags().StringVar(&job, "job", "", "job filter")
	cmd.Flags().StringVar(&region, "region", "", "region filter")
	cmd.Flags().BoolVar(&impaired, "impaired", false, "impaired filter")
	cmd.Flags().BoolVar(&available, "available", true, "available filter")
	bindDescriptorFlags(cmd, &level, &rate, &satisfaction)
	cmd.Flags().StringSliceVar(&include, "include", nil, "relations: tasks,record")
	return cmd
}

func executorGetCmd() *cobra.Command {
	var include []string
	var years int
	cmd := &cobra.Command{
		Use:   "get <uid>",
		Short: "Show an executor",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			uid, err := parseID(args[0])
			if err != nil {
				return err
			}
			inc := includeSet(include)
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				view, err := a.Query.GetExecutor(ctx, uid, query.ExecutorIncludes{
					Tasks:  inc["tasks"],
					Record: inc["record"],
					Years:  optionalInt(cmd, "years", years),
				})
				return emit(view, err, nil)
			})
		},
	}
	cmd.Flags().StringSliceVar(&include, "include", nil, "relations: tasks,record")
	cmd.Flags().IntVar(&years, "years", 0, "report projected age this many years ahead")
	return cmd
}

func executorUpdateCmd() *cobra.Command {
	var name, job, region string
	var age int
	var impaired, available bool
	cmd := &cobra.Command{
		Use:   "update <uid>",
		Short: "Update executor info",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			uid, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				ex, err := a.Engine.UpdateExecutorInfo(ctx, uid, engine.ExecutorInfoUpdate{
					Name:      optionalString(cmd, "name", name),
					Age:       optionalInt(cmd, "age", age),
					Job:       optionalEnum[domain.Job](cmd, "job", job),
					Impaired:  optionalBool(cmd, "impaired", impaired),
					Available: optionalBool(cmd, "available", available),
					Region:    optionalEnum[domain.Region](cmd, "region", region),
				})
				return emit(ex, err, nil)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "name")
	cmd.Flags().IntVar(&age, "age", 0, "age")
	cmd.Flags().StringVar(&job, "job", "", "job")
	cmd.Flags().StringVar(&region, "region", "", "region")
	cmd.Flags().BoolVar(&impaired, "impaired", false, "impaired")
	cmd.Flags().BoolVar(&available, "available", true, "available")
	return cmd
}

func executorDescriptorCmd() *cobra.Command {
	var level string
	var rate, satisfaction int
	cmd := &cobra.Command{
		Use:   "descriptor <uid>",
		Short: "Merge descriptor fields",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			uid, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				ex, err := a.Engine.UpdateExecutorDescriptor(ctx, uid, descriptorPatch(cmd, level, rate, satisfaction))
				return emit(ex, err, nil)
			})
		},
	}
	bindDescriptorFlags(cmd, &level, &rate, &satisfaction)
	return cmd
}

func executorDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <uid>",
		Short: "Delete an executor and detach its tasks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			uid, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				ex, err := a.Engine.DeleteExecutor(ctx, uid)
				return emit(ex, err, nil)
			})
		},
	}
}

func executorTasksCmd() *cobra.Command {
	var page pageFlags
	cmd := &cobra.Command{
		Use:   "tasks <uid>",
		Short: "List tasks assigned to an executor",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			uid, err := parseID(args[0])
			if err != nil {
				return err
			}
			pg, err := page.pagination()
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				items, err := a.Query.ListExecutorTasks(ctx, uid, pg, query.TaskIncludes{})
				return emitList(items, err, renderTasks)
			})
		},
	}
	page.bind(cmd)
	return cmd
}

func taskCmd() *cobra.Command {
	t := &cobra.Command{Use: "task", Short: "Manage tasks"}
	t.AddCommand(taskCreateCmd())
	t.AddCommand(taskListCmd())
	t.AddCommand(taskGetCmd())
	t.AddCommand(taskUpdateCmd())
	t.AddCommand(taskAssignCmd())
	t.AddCommand(taskIDCmd("unassign", "Release a task from its executor", engine.Engine.UnassignTask))
	t.AddCommand(taskIDCmd("toggle", "Flip accomplished status", engine.Engine.ToggleTaskStatus))
	t.AddCommand(taskIDCmd("freeze", "Mark a task unavailable", engine.Engine.FreezeTask))
	t.AddCommand(taskIDCmd("delete", "Delete an unassigned task", engine.Engine.DeleteTask))
	t.AddCommand(taskLevelCmd())
	return t
}

type taskFieldFlags struct {
	content, priority, source, target string
	reward                            int64
	rate                              int
	cleaner, intervention, allowAbort bool
}

func (f *taskFieldFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.content, "content", "", "task content")
	cmd.Flags().StringVar(&f.priority, "priority", "", "LOW, MIDDLE, HIGH or URGENT")
	cmd.Flags().StringVar(&f.source, "source", "", "task source")
	cmd.Flags().StringVar(&f.target, "target", "", "task target")
	cmd.Flags().Int64Var(&f.reward, "reward", 0, "reward")
	cmd.Flags().IntVar(&f.rate, "rate", 0, "rate (0-100)")
	cmd.Flags().BoolVar(&f.cleaner, "require-cleaner", false, "requires a cleaner")
	cmd.Flags().BoolVar(&f.intervention, "require-intervention", false, "requires intervention")
	cmd.Flags().BoolVar(&f.allowAbort, "allow-abort", true, "task may be aborted")
}

func (f *taskFieldFlags) reward64(cmd *cobra.Command) *int64 {
	if !cmd.Flags().Changed("reward") {
		return nil
	}
	v := f.reward
	return &v
}

func taskCreateCmd() *cobra.Command {
	var title, level string
	var substanceID int64
	var f taskFieldFlags
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a task bound to a substance",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				t, err := a.Engine.CreateTask(ctx, engine.TaskCreateOptions{
					Title:               title,
					SubstanceID:         substanceID,
					Content:             optionalString(cmd, "content", f.content),
					Priority:            optionalEnum[domain.TaskPriority](cmd, "priority", f.priority),
					Level:               optionalEnum[domain.DifficultyLevel](cmd, "level", level),
					Source:              optionalEnum[domain.TaskSource](cmd, "source", f.source),
					Target:              optionalEnum[domain.TaskTarget](cmd, "target", f.target),
					Reward:              f.reward64(cmd),
					Rate:                optionalInt(cmd, "rate", f.rate),
					RequireCleaner:      optionalBool(cmd, "require-cleaner", f.cleaner),
					RequireIntervention: optionalBool(cmd, "require-intervention", f.intervention),
					AllowAbort:          optionalBool(cmd, "allow-abort", f.allowAbort),
				})
				return emit(t, err, nil)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "task title")
	cmd.Flags().Int64Var(&substanceID, "substance", 0, "substance id")
	cmd.Flags().StringVar(&level, "level", "", "difficulty level")
	f.bind(cmd)
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("substance")
	return cmd
}

func taskListCmd() *cobra.Command {
	var page pageFlags
	var title, priority, level string
	var assignee, substance int64
	var accomplished, available bool
	var include []string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			pg, err := page.pagination()
			if err != nil {
				return err
			}
			inc := includeSet(include)
			filters := repo.TaskFilters{
				Title:        optionalString(cmd, "title", title),
				Priority:     optionalEnum[domain.TaskPriority](cmd, "priority", priority),
				Level:        optionalEnum[domain.DifficultyLevel](cmd, "level", level),
				Accomplished: optionalBool(cmd, "accomplished", accomplished),
				Available:    optionalBool(cmd, "available", available),
			}
			if cmd.Flags().Changed("assignee") {
				filters.AssigneeUID = &assignee
			}
			if cmd.Flags().Changed("substance") {
				filters.SubstanceID = &substance
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				items, err := a.Query.ListTasks(ctx, filters, pg, query.TaskIncludes{
					Assignee:  inc["assignee"],
					Substance: inc["substance"],
					Records:   inc["records"],
				})
				return emitList(items, err, renderTasks)
			})
		},
	}
	page.bind(cmd)
	cmd.Flags().StringVar(&title, "title", "", "title filter")
	cmd.Flags().StringVar(&priority, "priority", "", "priority filter")
	cmd.Flags().StringVar(&level, "level", "", "level filter")
	cmd.Flags().Int64Var(&assignee, "assignee", 0, "assignee uid filter")
	cmd.Flags().Int64Var(&substance, "substance", 0, "substance id filter")
	cmd.Flags().BoolVar(&accomplished, "accomplished", false, "accomplished filter")
	cmd.Flags().BoolVar(&available, "available", true, "available filter")
	cmd.Flags().StringSliceVar(&include, "include", nil, "relations: assignee,substance,records")
	return cmd
}

func taskGetCmd() *cobra.Command {
	var include []string
	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Show a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			inc := includeSet(include)
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				view, err := a.Query.GetTask(ctx, id, query.TaskIncludes{
					Assignee:  inc["assignee"],
					Substance: inc["substance"],
					Records:   inc["records"],
				})
				return emit(view, err, nil)
			})
		},
	}
	cmd.Flags().StringSliceVar(&include, "include", nil, "relations: assignee,substance,records")
	return cmd
}

func taskUpdateCmd() *cobra.Command {
	var title string
	var f taskFieldFlags
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update task info",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				t, err := a.Engine.UpdateTaskInfo(ctx, id, engine.TaskInfoUpdate{
					Title:               optionalString(cmd, "title", title),
					Content:             optionalString(cmd, "content", f.content),
					Priority:            optionalEnum[domain.TaskPriority](cmd, "priority", f.priority),
					Source:              optionalEnum[domain.TaskSource](cmd, "source", f.source),
					Target:              optionalEnum[domain.TaskTarget](cmd, "target", f.target),
					Reward:              f.reward64(cmd),
					Rate:                optionalInt(cmd, "rate", f.rate),
					RequireCleaner:      optionalBool(cmd, "require-cleaner", f.cleaner),
					RequireIntervention: optionalBool(cmd, "require-intervention", f.intervention),
					AllowAbort:          optionalBool(cmd, "allow-abort", f.allowAbort),
				})
				return emit(t, err, nil)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "task title")
	f.bind(cmd)
	return cmd
}

func taskAssignCmd() *cobra.Command {
	var uid int64
	cmd := &cobra.Command{
		Use:   "assign <id>",
		Short: "Assign a task to an executor",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				t, err := a.Engine.AssignTask(ctx, id, uid)
				return emit(t, err, nil)
			})
		},
	}
	cmd.Flags().Int64Var(&uid, "executor", 0, "executor uid")
	_ = cmd.MarkFlagRequired("executor")
	return cmd
}

func taskLevelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "level <id> <level>",
		Short: "Set a task's difficulty level",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				t, err := a.Engine.MutateTaskLevel(ctx, id, domain.DifficultyLevel(args[1]))
				return emit(t, err, nil)
			})
		},
	}
}

func taskIDCmd(use, short string, op func(engine.Engine, context.Context, int64) (domain.Task, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				t, err := op(a.Engine, ctx, id)
				return emit(t, err, nil)
			})
		},
	}
}

func substanceCmd() *cobra.Command {
	s := &cobra.Command{Use: "substance", Short: "Manage substances"}
	s.AddCommand(substanceCreateCmd())
	s.AddCommand(substanceListCmd())
	s.AddCommand(substanceGetCmd())
	return s
}

func substanceCreateCmd() *cobra.Command {
	var name, desc, issues, level string
	var contained bool
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Record a discovered substance",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				s, err := a.Engine.CreateSubstance(ctx, engine.SubstanceCreateOptions{
					Name:      name,
					Desc:      desc,
					Issues:    issues,
					Level:     optionalEnum[domain.DifficultyLevel](cmd, "level", level),
					Contained: contained,
				})
				return emit(s, err, nil)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "substance name")
	cmd.Flags().StringVar(&desc, "desc", "", "description")
	cmd.Flags().StringVar(&issues, "issues", "", "known issues")
	cmd.Flags().StringVar(&level, "level", "", "difficulty level")
	cmd.Flags().BoolVar(&contained, "contained", false, "already contained")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func substanceListCmd() *cobra.Command {
	var page pageFlags
	var name, level string
	var contained, related bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List substances",
		RunE: func(cmd *cobra.Command, args []string) error {
			pg, err := page.pagination()
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				items, err := a.Query.ListSubstances(ctx, repo.SubstanceFilters{
					Name:      optionalString(cmd, "name", name),
					Level:     optionalEnum[domain.DifficultyLevel](cmd, "level", level),
					Contained: optionalBool(cmd, "contained", contained),
				}, pg, query.SubstanceIncludes{RelatedTask: related})
				return emitList(items, err, renderSubstances)
			})
		},
	}
	page.bind(cmd)
	cmd.Flags().StringVar(&name, "name", "", "name filter")
	cmd.Flags().StringVar(&level, "level", "", "level filter")
	cmd.Flags().BoolVar(&contained, "contained", false, "contained filter")
	cmd.Flags().BoolVar(&related, "with-task", false, "include the related task")
	return cmd
}

func substanceGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show a substance with its related task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				view, err := a.Query.GetSubstance(ctx, id, query.SubstanceIncludes{RelatedTask: true})
				return emit(view, err, nil)
			})
		},
	}
}

func levelCmd() *cobra.Command {
	var page pageFlags
	cmd := &cobra.Command{
		Use:   "level [level]",
		Short: "List executors and tasks at a difficulty level",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pg, err := page.pagination()
			if err != nil {
				return err
			}
			var level *domain.DifficultyLevel
			if len(args) == 1 {
				l := domain.DifficultyLevel(args[0])
				if err := domain.ValidateLevel("level", l); err != nil {
					return err
				}
				level = &l
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				view, err := a.Query.ListByLevel(ctx, level, pg)
				return emit(view, err, func(v query.LevelView) {
					renderExecutors(v.Executors)
					renderTasks(v.Tasks)
				})
			})
		},
	}
	page.bind(cmd)
	return cmd
}
