package engine

import (
	"context"
	"database/sql"
	"strconv"

	"asylum/internal/domain"
	"asylum/internal/events"
)

// SubstanceCreateOptions ingest an externally discovered substance.
type SubstanceCreateOptions struct {
	Name      string
	Desc      string
	Issues    string
	Level     *domain.DifficultyLevel
	Contained bool
}

func (e Engine) CreateSubstance(ctx context.Context, opts SubstanceCreateOptions) (domain.Substance, error) {
	s := domain.NewSubstance(opts.Name, e.now())
	s.Desc = opts.Desc
	s.Issues = opts.Issues
	s.Contained = opts.Contained
	if opts.Level != nil {
		s.Level = *opts.Level
	}
	if err := s.Validate(); err != nil {
		return domain.Substance{}, err
	}
	err := e.inTx(ctx, "substance.create", func(ctx context.Context, tx *sql.Tx) error {
		id, err := e.Repo.InsertSubstanceTx(ctx, tx, s)
		if err != nil {
			return err
		}
		s.ID = id
		return e.events().Append(ctx, tx, "substance.create", "substance", strconv.FormatInt(id, 10), ActorFromContext(ctx),
			events.EventPayload{"name": s.Name, "level": s.Level})
	})
	if err != nil {
		return domain.Substance{}, err
	}
	return s, nil
}
