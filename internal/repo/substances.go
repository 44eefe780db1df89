package repo

import (
	"context"
	"database/sql"

	"asylum/internal/db"
	"asylum/internal/domain"
)

const substanceCols = `id,name,description,issues,level,contained,appear_date,last_active_date`

func scanSubstance(row scanner) (domain.Substance, error) {
	var s domain.Substance
	err := row.Scan(&s.ID, &s.Name, &s.Desc, &s.Issues, &s.Level, &s.Contained, &s.AppearDate, &s.LastActiveDate)
	if err == sql.ErrNoRows {
		return s, ErrNotFound
	}
	return s, err
}

func scanSubstances(rows *sql.Rows) ([]domain.Substance, error) {
	defer rows.Close()
	var res []domain.Substance
	for rows.Next() {
		s, err := scanSubstance(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

type SubstanceFilters struct {
	Name      *string
	Level     *domain.DifficultyLevel
	Contained *bool
	Limit     int
	Offset    int
}

func (r Repo) ListSubstances(ctx context.Context, f SubstanceFilters) ([]domain.Substance, error) {
	var clauses []string
	var args []any
	if f.Name != nil {
		clauses = append(clauses, "name=?")
		args = append(args, *f.Name)
	}
	if f.Level != nil {
		clauses = append(clauses, "level=?")
		args = append(args, string(*f.Level))
	}
	if f.Contained != nil {
		clauses = append(clauses, "contained=?")
		args = append(args, *f.Contained)
	}
	query := `SELECT ` + substanceCols + ` FROM substances` + whereClause(clauses) + ` ORDER BY id ASC`
	query, args = r.page(query, args, f.Limit, f.Offset)
	rows, err := r.DB.QueryContext(ctx, r.q(query), args...)
	if err != nil {
		return nil, err
	}
	return scanSubstances(rows)
}

func (r Repo) GetSubstance(ctx context.Context, id int64) (domain.Substance, error) {
	return r.getSubstance(ctx, r.DB, id)
}

func (r Repo) GetSubstanceTx(ctx context.Context, tx *sql.Tx, id int64) (domain.Substance, error) {
	return r.getSubstance(ctx, tx, id)
}

func (r Repo) getSubstance(ctx context.Context, qr db.Querier, id int64) (domain.Substance, error) {
	return scanSubstance(qr.QueryRowContext(ctx, r.q(`SELECT `+substanceCols+` FROM substances WHERE id=?`), id))
}

// SubstancesByIDs fetches every listed substance in one pass; missing ids are skipped.
func (r Repo) SubstancesByIDs(ctx context.Context, ids []int64) ([]domain.Substance, error) {
	var res []domain.Substance
	err := withKeys(ids, func(keys []int64) error {
		rows, err := r.DB.QueryContext(ctx, r.q(`SELECT `+substanceCols+` FROM substances WHERE id IN (`+db.Placeholders(len(keys))+`) ORDER BY id ASC`), int64Args(keys)...)
		if err != nil {
			return err
		}
		items, err := scanSubstances(rows)
		if err != nil {
			return err
		}
		res = append(res, items...)
		return nil
	})
	return res, err
}

func (r Repo) InsertSubstanceTx(ctx context.Context, tx *sql.Tx, s domain.Substance) (int64, error) {
	return r.insertReturningID(ctx, tx, "id", `INSERT INTO substances(name,description,issues,level,contained,appear_date,last_active_date) VALUES (?,?,?,?,?,?,?)`,
		s.Name, s.Desc, s.Issues, string(s.Level), s.Contained, s.AppearDate, s.LastActiveDate)
}
