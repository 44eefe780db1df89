package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"asylum/internal/db"
	"asylum/internal/domain"
)

const executorCols = `uid,name,age,job,impaired,available,region,descriptor,join_date,last_update_date`

func scanExecutor(row scanner) (domain.Executor, error) {
	var e domain.Executor
	err := row.Scan(&e.UID, &e.Name, &e.Age, &e.Job, &e.Impaired, &e.Available, &e.Region, &e.Desc, &e.JoinDate, &e.LastUpdateDate)
	if err == sql.ErrNoRows {
		return e, ErrNotFound
	}
	return e, err
}

func scanExecutors(rows *sql.Rows) ([]domain.Executor, error) {
	defer rows.Close()
	var res []domain.Executor
	for rows.Next() {
		e, err := scanExecutor(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

type ExecutorFilters struct {
	Name      *string
	Age       *int
	Job       *domain.Job
	Impaired  *bool
	Available *bool
	Region    *domain.Region
	Limit     int
	Offset    int
}

func (f ExecutorFilters) clauses() ([]string, []any) {
	var clauses []string
	var args []any
	if f.Name != nil {
		clauses = append(clauses, "name=?")
		args = append(args, *f.Name)
	}
	if f.Age != nil {
		clauses = append(clauses, "age=?")
		args = append(args, *f.Age)
	}
	if f.Job != nil {
		clauses = append(clauses, "job=?")
		args = append(args, string(*f.Job))
	}
	if f.Impaired != nil {
		clauses = append(clauses, "impaired=?")
		args = append(args, *f.Impaired)
	}
	if f.Available != nil {
		clauses = append(clauses, "available=?")
		args = append(args, *f.Available)
	}
	if f.Region != nil {
		clauses = append(clauses, "region=?")
		args = append(args, string(*f.Region))
	}
	return clauses, args
}

// ListExecutors returns executors matching every set filter in uid order.
func (r Repo) ListExecutors(ctx context.Context, f ExecutorFilters) ([]domain.Executor, error) {
	clauses, args := f.clauses()
	query := `SELECT ` + executorCols + ` FROM executors` + whereClause(clauses) + ` ORDER BY uid ASC`
	query, args = r.page(query, args, f.Limit, f.Offset)
	rows, err := r.DB.QueryContext(ctx, r.q(query), args...)
	if err != nil {
		return nil, err
	}
	return scanExecutors(rows)
}

func (r Repo) GetExecutor(ctx context.Context, uid int64) (domain.Executor, error) {
	return r.getExecutor(ctx, r.DB, uid)
}

func (r Repo) GetExecutorTx(ctx context.Context, tx *sql.Tx, uid int64) (domain.Executor, error) {
	return r.getExecutor(ctx, tx, uid)
}

func (r Repo) getExecutor(ctx context.Context, qr db.Querier, uid int64) (domain.Executor, error) {
	return scanExecutor(qr.QueryRowContext(ctx, r.q(`SELECT `+executorCols+` FROM executors WHERE uid=?`), uid))
}

func (r Repo) GetExecutorByNameTx(ctx context.Context, tx *sql.Tx, name string) (domain.Executor, error) {
	return scanExecutor(tx.QueryRowContext(ctx, r.q(`SELECT `+executorCols+` FROM executors WHERE name=?`), name))
}

// ExecutorsByUIDs fetches every listed executor in one pass; missing uids are skipped.
func (r Repo) ExecutorsByUIDs(ctx context.Context, uids []int64) ([]domain.Executor, error) {
	var res []domain.Executor
	err := withKeys(uids, func(keys []int64) error {
		rows, err := r.DB.QueryContext(ctx, r.q(`SELECT `+executorCols+` FROM executors WHERE uid IN (`+db.Placeholders(len(keys))+`) ORDER BY uid ASC`), int64Args(keys)...)
		if err != nil {
			return err
		}
		items, err := scanExecutors(rows)
		if err != nil {
			return err
		}
		res = append(res, items...)
		return nil
	})
	return res, err
}

func (r Repo) InsertExecutorTx(ctx context.Context, tx *sql.Tx, e domain.Executor) (int64, error) {
	return r.insertReturningID(ctx, tx, "uid", `INSERT INTO executors(name,age,job,impaired,available,region,descriptor,join_date,last_update_date) VALUES (?,?,?,?,?,?,?,?,?)`,
		e.Name, e.Age, string(e.Job), e.Impaired, e.Available, string(e.Region), e.Desc, e.JoinDate, e.LastUpdateDate)
}

// ExecutorUpdate lists the info fields to overwrite; nil fields are left alone.
type ExecutorUpdate struct {
	Name      *string
	Age       *int
	Job       *domain.Job
	Impaired  *bool
	Available *bool
	Region    *domain.Region
}

func (r Repo) UpdateExecutorTx(ctx context.Context, tx *sql.Tx, uid int64, u ExecutorUpdate, updatedAt string) error {
	var (
		fields []string
		args   []any
	)
	if u.Name != nil {
		fields = append(fields, "name=?")
		args = append(args, *u.Name)
	}
	if u.Age != nil {
		fields = append(fields, "age=?")
		args = append(args, *u.Age)
	}
	if u.Job != nil {
		fields = append(fields, "job=?")
		args = append(args, string(*u.Job))
	}
	if u.Impaired != nil {
		fields = append(fields, "impaired=?")
		args = append(args, *u.Impaired)
	}
	if u.Available != nil {
		fields = append(fields, "available=?")
		args = append(args, *u.Available)
	}
	if u.Region != nil {
		fields = append(fields, "region=?")
		args = append(args, string(*u.Region))
	}
	fields = append(fields, "last_update_date=?")
	args = append(args, updatedAt, uid)
	n, err := r.execAffected(ctx, tx, fmt.Sprintf(`UPDATE executors SET %s WHERE uid=?`, strings.Join(fields, ",")), args...)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) SetExecutorDescriptorTx(ctx context.Context, tx *sql.Tx, uid int64, desc, updatedAt string) error {
	n, err := r.execAffected(ctx, tx, `UPDATE executors SET descriptor=?, last_update_date=? WHERE uid=?`, desc, updatedAt, uid)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteExecutorTx(ctx context.Context, tx *sql.Tx, uid int64) error {
	n, err := r.execAffected(ctx, tx, `DELETE FROM executors WHERE uid=?`, uid)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
