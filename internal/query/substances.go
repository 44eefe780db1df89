package query

import (
	"context"

	"asylum/internal/domain"
	"asylum/internal/repo"
)

func (s Service) ListSubstances(ctx context.Context, f repo.SubstanceFilters, p Pagination, inc SubstanceIncludes) ([]SubstanceView, error) {
	if p.Offset == 0 {
		return []SubstanceView{}, nil
	}
	f.Limit = s.limit(p)
	f.Offset = p.Cursor
	items, err := s.Repo.ListSubstances(ctx, f)
	if err != nil {
		return nil, err
	}
	return s.resolveSubstances(ctx, items, inc)
}

func (s Service) GetSubstance(ctx context.Context, id int64, inc SubstanceIncludes) (SubstanceView, error) {
	if err := domain.ValidateID("substanceId", id); err != nil {
		return SubstanceView{}, err
	}
	sub, err := s.Repo.GetSubstance(ctx, id)
	if err != nil {
		return SubstanceView{}, err
	}
	views, err := s.resolveSubstances(ctx, []domain.Substance{sub}, inc)
	if err != nil {
		return SubstanceView{}, err
	}
	return views[0], nil
}

func (s Service) resolveSubstances(ctx context.Context, items []domain.Substance, inc SubstanceIncludes) ([]SubstanceView, error) {
	views := make([]SubstanceView, len(items))
	ids := make([]int64, len(items))
	for i, sub := range items {
		views[i] = SubstanceView{Substance: sub}
		ids[i] = sub.ID
	}
	if len(items) == 0 || !inc.RelatedTask {
		return views, nil
	}
	tasks, err := s.loaderFor(ctx).RelatedTasks(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range views {
		views[i].RelatedTask = tasks[i]
	}
	return views, nil
}
