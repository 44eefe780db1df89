package repo

import (
	"context"
	"database/sql"
	"fmt"

	"asylum/internal/db"
	"asylum/internal/domain"
)

const recordCols = `id,task_id,executor_uid,kind,ref,content_json,created_at`

func scanRecords(rows *sql.Rows) ([]domain.AssignmentRecord, error) {
	defer rows.Close()
	var res []domain.AssignmentRecord
	for rows.Next() {
		var rec domain.AssignmentRecord
		if err := rows.Scan(&rec.ID, &rec.TaskID, &rec.ExecutorUID, &rec.Kind, &rec.Ref, &rec.Content, &rec.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, rec)
	}
	return res, rows.Err()
}

func (r Repo) InsertRecordTx(ctx context.Context, tx *sql.Tx, rec domain.AssignmentRecord) (int64, error) {
	content := rec.Content
	if content == "" {
		content = "{}"
	}
	return r.insertReturningID(ctx, tx, "id", `INSERT INTO assignment_records(task_id,executor_uid,kind,ref,content_json,created_at) VALUES (?,?,?,?,?,?)`,
		rec.TaskID, rec.ExecutorUID, string(rec.Kind), rec.Ref, content, rec.CreatedAt)
}

// RecordsByTasks fetches the assignment history of every listed task, oldest first.
func (r Repo) RecordsByTasks(ctx context.Context, taskIDs []int64) ([]domain.AssignmentRecord, error) {
	var res []domain.AssignmentRecord
	err := withKeys(taskIDs, func(keys []int64) error {
		rows, err := r.DB.QueryContext(ctx, r.q(`SELECT `+recordCols+` FROM assignment_records WHERE task_id IN (`+db.Placeholders(len(keys))+`) ORDER BY id ASC`), int64Args(keys)...)
		if err != nil {
			return err
		}
		items, err := scanRecords(rows)
		if err != nil {
			return err
		}
		res = append(res, items...)
		return nil
	})
	return res, err
}

// LatestRecordsByExecutors returns at most one record per executor: its most recent.
func (r Repo) LatestRecordsByExecutors(ctx context.Context, uids []int64) ([]domain.AssignmentRecord, error) {
	var res []domain.AssignmentRecord
	err := withKeys(uids, func(keys []int64) error {
		query := fmt.Sprintf(`SELECT %s FROM assignment_records ar WHERE ar.executor_uid IN (%s)
AND ar.id = (SELECT MAX(id) FROM assignment_records latest WHERE latest.executor_uid = ar.executor_uid)
ORDER BY ar.executor_uid ASC`, prefixed("ar", recordCols), db.Placeholders(len(keys)))
		rows, err := r.DB.QueryContext(ctx, r.q(query), int64Args(keys)...)
		if err != nil {
			return err
		}
		items, err := scanRecords(rows)
		if err != nil {
			return err
		}
		res = append(res, items...)
		return nil
	})
	return res, err
}

func prefixed(alias, cols string) string {
	out := make([]byte, 0, len(cols)*2)
	out = append(out, alias...)
	out = append(out, '.')
	for i := 0; i < len(cols); i++ {
		out = append(out, cols[i])
		if cols[i] == ',' {
			out = append(out, alias...)
			out = append(out, '.')
		}
	}
	return string(out)
}
