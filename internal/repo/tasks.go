package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"asylum/internal/db"
	"asylum/internal/domain"
)

const taskCols = `id,title,content,priority,level,source,target,reward,rate,require_cleaner,require_intervention,allow_abort,accomplished,available,publish_date,last_update_date,substance_id,assignee_uid`

func scanTask(row scanner) (domain.Task, error) {
	var t domain.Task
	var rate, assignee sql.NullInt64
	err := row.Scan(&t.ID, &t.Title, &t.Content, &t.Priority, &t.Level, &t.Source, &t.Target, &t.Reward, &rate,
		&t.RequireCleaner, &t.RequireIntervention, &t.AllowAbort, &t.Accomplished, &t.Available,
		&t.PublishDate, &t.LastUpdateDate, &t.SubstanceID, &assignee)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	if err != nil {
		return t, err
	}
	if rate.Valid {
		v := int(rate.Int64)
		t.Rate = &v
	}
	if assignee.Valid {
		v := assignee.Int64
		t.AssigneeUID = &v
	}
	return t, nil
}

func scanTasks(rows *sql.Rows) ([]domain.Task, error) {
	defer rows.Close()
	var res []domain.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

type TaskFilters struct {
	Title        *string
	Priority     *domain.TaskPriority
	Level        *domain.DifficultyLevel
	Source       *domain.TaskSource
	Target       *domain.TaskTarget
	Reward       *int64
	AllowAbort   *bool
	Accomplished *bool
	Available    *bool
	AssigneeUID  *int64
	SubstanceID  *int64
	Limit        int
	Offset       int
}

func (f TaskFilters) clauses() ([]string, []any) {
	var clauses []string
	var args []any
	if f.Title != nil {
		clauses = append(clauses, "title=?")
		args = append(args, *f.Title)
	}
	if f.Priority != nil {
		clauses = append(clauses, "priority=?")
		args = append(args, string(*f.Priority))
	}
	if f.Level != nil {
		clauses = append(clauses, "level=?")
		args = append(args, string(*f.Level))
	}
	if f.Source != nil {
		clauses = append(clauses, "source=?")
		args = append(args, string(*f.Source))
	}
	if f.Target != nil {
		clauses = append(clauses, "target=?")
		args = append(args, string(*f.Target))
	}
	if f.Reward != nil {
		clauses = append(clauses, "reward=?")
		args = append(args, *f.Reward)
	}
	if f.AllowAbort != nil {
		clauses = append(clauses, "allow_abort=?")
		args = append(args, *f.AllowAbort)
	}
	if f.Accomplished != nil {
		clauses = append(clauses, "accomplished=?")
		args = append(args, *f.Accomplished)
	}
	if f.Available != nil {
		clauses = append(clauses, "available=?")
		args = append(args, *f.Available)
	}
	if f.AssigneeUID != nil {
		clauses = append(clauses, "assignee_uid=?")
		args = append(args, *f.AssigneeUID)
	}
	if f.SubstanceID != nil {
		clauses = append(clauses, "substance_id=?")
		args = append(args, *f.SubstanceID)
	}
	return clauses, args
}

// ListTasks returns tasks matching every set filter in id order.
func (r Repo) ListTasks(ctx context.Context, f TaskFilters) ([]domain.Task, error) {
	clauses, args := f.clauses()
	query := `SELECT ` + taskCols + ` FROM tasks` + whereClause(clauses) + ` ORDER BY id ASC`
	query, args = r.page(query, args, f.Limit, f.Offset)
	rows, err := r.DB.QueryContext(ctx, r.q(query), args...)
	if err != nil {
		return nil, err
	}
	return scanTasks(rows)
}

func (r Repo) GetTask(ctx context.Context, id int64) (domain.Task, error) {
	return r.getTask(ctx, r.DB, id)
}

func (r Repo) GetTaskTx(ctx context.Context, tx *sql.Tx, id int64) (domain.Task, error) {
	return r.getTask(ctx, tx, id)
}

func (r Repo) getTask(ctx context.Context, qr db.Querier, id int64) (domain.Task, error) {
	return scanTask(qr.QueryRowContext(ctx, r.q(`SELECT `+taskCols+` FROM tasks WHERE id=?`), id))
}

func (r Repo) GetTaskByTitleTx(ctx context.Context, tx *sql.Tx, title string) (domain.Task, error) {
	return scanTask(tx.QueryRowContext(ctx, r.q(`SELECT `+taskCols+` FROM tasks WHERE title=?`), title))
}

func (r Repo) GetTaskBySubstanceTx(ctx context.Context, tx *sql.Tx, substanceID int64) (domain.Task, error) {
	return scanTask(tx.QueryRowContext(ctx, r.q(`SELECT `+taskCols+` FROM tasks WHERE substance_id=?`), substanceID))
}

// TasksByAssignees fetches every task assigned to any of the uids.
func (r Repo) TasksByAssignees(ctx context.Context, uids []int64) ([]domain.Task, error) {
	return r.tasksByColumn(ctx, "assignee_uid", uids)
}

// TasksBySubstances fetches the tasks bound to any of the substances.
func (r Repo) TasksBySubstances(ctx context.Context, substanceIDs []int64) ([]domain.Task, error) {
	return r.tasksByColumn(ctx, "substance_id", substanceIDs)
}

func (r Repo) tasksByColumn(ctx context.Context, column string, ids []int64) ([]domain.Task, error) {
	var res []domain.Task
	err := withKeys(ids, func(keys []int64) error {
		query := fmt.Sprintf(`SELECT %s FROM tasks WHERE %s IN (%s) ORDER BY id ASC`, taskCols, column, db.Placeholders(len(keys)))
		rows, err := r.DB.QueryContext(ctx, r.q(query), int64Args(keys)...)
		if err != nil {
			return err
		}
		items, err := scanTasks(rows)
		if err != nil {
			return err
		}
		res = append(res, items...)
		return nil
	})
	return res, err
}

func (r Repo) InsertTaskTx(ctx context.Context, tx *sql.Tx, t domain.Task) (int64, error) {
	return r.insertReturningID(ctx, tx, "id", `INSERT INTO tasks(title,content,priority,level,source,target,reward,rate,require_cleaner,require_intervention,allow_abort,accomplished,available,publish_date,last_update_date,substance_id,assignee_uid)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		t.Title, t.Content, string(t.Priority), string(t.Level), string(t.Source), string(t.Target), t.Reward, nullableIntPtr(t.Rate),
		t.RequireCleaner, t.RequireIntervention, t.AllowAbort, t.Accomplished, t.Available,
		t.PublishDate, t.LastUpdateDate, t.SubstanceID, nullableInt64Ptr(t.AssigneeUID))
}

// TaskUpdate lists the fields to overwrite; nil fields are left alone.
type TaskUpdate struct {
	Title               *string
	Content             *string
	Priority            *domain.TaskPriority
	Level               *domain.DifficultyLevel
	Source              *domain.TaskSource
	Target              *domain.TaskTarget
	Reward              *int64
	Rate                *int
	RequireCleaner      *bool
	RequireIntervention *bool
	AllowAbort          *bool
	Accomplished        *bool
	Available           *bool
}

func (r Repo) UpdateTaskTx(ctx context.Context, tx *sql.Tx, id int64, u TaskUpdate, updatedAt string) error {
	var (
		fields []string
		args   []any
	)
	set := func(col string, v any) {
		fields = append(fields, col+"=?")
		args = append(args, v)
	}
	if u.Title != nil {
		set("title", *u.Title)
	}
	if u.Content != nil {
		set("content", *u.Content)
	}
	if u.Priority != nil {
		set("priority", string(*u.Priority))
	}
	if u.Level != nil {
		set("level", string(*u.Level))
	}
	if u.Source != nil {
		set("source", string(*u.Source))
	}
	if u.Target != nil {
		set("target", string(*u.Target))
	}
	if u.Reward != nil {
		set("reward", *u.Reward)
	}
	if u.Rate != nil {
		set("rate", *u.Rate)
	}
	if u.RequireCleaner != nil {
		set("require_cleaner", *u.RequireCleaner)
	}
	if u.RequireIntervention != nil {
		set("require_intervention", *u.RequireIntervention)
	}
	if u.AllowAbort != nil {
		set("allow_abort", *u.AllowAbort)
	}
	if u.Accomplished != nil {
		set("accomplished", *u.Accomplished)
	}
	if u.Available != nil {
		set("available", *u.Available)
	}
	set("last_update_date", updatedAt)
	args = append(args, id)
	n, err := r.execAffected(ctx, tx, fmt.Sprintf(`UPDATE tasks SET %s WHERE id=?`, strings.Join(fields, ",")), args...)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// AssignTaskTx sets the assignee only while the task is unassigned and reports
// whether the row changed.
func (r Repo) AssignTaskTx(ctx context.Context, tx *sql.Tx, id, uid int64, updatedAt string) (bool, error) {
	n, err := r.execAffected(ctx, tx, `UPDATE tasks SET assignee_uid=?, last_update_date=? WHERE id=? AND assignee_uid IS NULL`, uid, updatedAt, id)
	return n == 1, err
}

func (r Repo) UnassignTaskTx(ctx context.Context, tx *sql.Tx, id int64, updatedAt string) (bool, error) {
	n, err := r.execAffected(ctx, tx, `UPDATE tasks SET assignee_uid=NULL, last_update_date=? WHERE id=? AND assignee_uid IS NOT NULL`, updatedAt, id)
	return n == 1, err
}

// DetachExecutorTasksTx nulls the assignee on every task held by uid.
func (r Repo) DetachExecutorTasksTx(ctx context.Context, tx *sql.Tx, uid int64, updatedAt string) (int64, error) {
	return r.execAffected(ctx, tx, `UPDATE tasks SET assignee_uid=NULL, last_update_date=? WHERE assignee_uid=?`, updatedAt, uid)
}

// DeleteTaskTx removes the task only while it is unassigned and reports whether a row went away.
func (r Repo) DeleteTaskTx(ctx context.Context, tx *sql.Tx, id int64) (bool, error) {
	n, err := r.execAffected(ctx, tx, `DELETE FROM tasks WHERE id=? AND assignee_uid IS NULL`, id)
	return n == 1, err
}
