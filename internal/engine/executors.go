package engine

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"

	"asylum/internal/descriptor"
	"asylum/internal/domain"
	"asylum/internal/events"
	"asylum/internal/repo"
)

// ExecutorCreateOptions are parameters for registering an executor. Nil
// fields take the entity defaults.
type ExecutorCreateOptions struct {
	Name       string
	Age        int
	Job        *domain.Job
	Impaired   *bool
	Available  *bool
	Region     *domain.Region
	Descriptor descriptor.Patch
}

func (e Engine) CreateExecutor(ctx context.Context, opts ExecutorCreateOptions) (domain.Executor, error) {
	ex := domain.NewExecutor(opts.Name, opts.Age, e.now())
	if opts.Job != nil {
		ex.Job = *opts.Job
	}
	if opts.Impaired != nil {
		ex.Impaired = *opts.Impaired
	}
	if opts.Available != nil {
		ex.Available = *opts.Available
	}
	if opts.Region != nil {
		ex.Region = *opts.Region
	}
	if err := ex.Validate(); err != nil {
		return domain.Executor{}, err
	}
	if !opts.Descriptor.Empty() {
		desc, err := descriptor.Merge(domain.DefaultDescriptorJSON, opts.Descriptor, e.Descriptor)
		if err != nil {
			return domain.Executor{}, err
		}
		ex.Desc = desc
	}
	err := e.inTx(ctx, "executor.create", func(ctx context.Context, tx *sql.Tx) error {
		existing, err := e.Repo.GetExecutorByNameTx(ctx, tx, ex.Name)
		if err == nil {
			return conflict("name", existing)
		}
		if !errors.Is(err, repo.ErrNotFound) {
			return err
		}
		uid, err := e.Repo.InsertExecutorTx(ctx, tx, ex)
		if err != nil {
			return err
		}
		ex.UID = uid
		return e.events().Append(ctx, tx, "executor.create", "executor", strconv.FormatInt(uid, 10), ActorFromContext(ctx),
			events.EventPayload{"name": ex.Name, "region": ex.Region})
	})
	if err != nil {
		return domain.Executor{}, err
	}
	return ex, nil
}

// ExecutorInfoUpdate lists the plain fields updateExecutorInfo may overwrite.
type ExecutorInfoUpdate struct {
	Name      *string
	Age       *int
	Job       *domain.Job
	Impaired  *bool
	Available *bool
	Region    *domain.Region
}

func (u ExecutorInfoUpdate) validate() error {
	if u.Name != nil {
		if err := domain.ValidateExecutorName(*u.Name); err != nil {
			return err
		}
	}
	if u.Age != nil {
		if err := domain.ValidateAge(*u.Age); err != nil {
			return err
		}
	}
	if u.Job != nil {
		if err := domain.ValidateJob(*u.Job); err != nil {
			return err
		}
	}
	if u.Region != nil {
		return domain.ValidateRegion(*u.Region)
	}
	return nil
}

func (e Engine) UpdateExecutorInfo(ctx context.Context, uid int64, u ExecutorInfoUpdate) (domain.Executor, error) {
	if err := domain.ValidateID("uid", uid); err != nil {
		return domain.Executor{}, err
	}
	if err := u.validate(); err != nil {
		return domain.Executor{}, err
	}
	if u.Name != nil {
		name := strings.TrimSpace(*u.Name)
		u.Name = &name
	}
	var updated domain.Executor
	err := e.inTx(ctx, "executor.update", func(ctx context.Context, tx *sql.Tx) error {
		current, err := e.Repo.GetExecutorTx(ctx, tx, uid)
		if err != nil {
			return err
		}
		if u.Name != nil && *u.Name != current.Name {
			other, err := e.Repo.GetExecutorByNameTx(ctx, tx, *u.Name)
			if err == nil {
				return conflict("name", other)
			}
			if !errors.Is(err, repo.ErrNotFound) {
				return err
			}
		}
		if err := e.Repo.UpdateExecutorTx(ctx, tx, uid, repo.ExecutorUpdate(u), e.timestamp()); err != nil {
			return err
		}
		updated, err = e.Repo.GetExecutorTx(ctx, tx, uid)
		if err != nil {
			return err
		}
		return e.events().Append(ctx, tx, "executor.update", "executor", strconv.FormatInt(uid, 10), ActorFromContext(ctx), nil)
	})
	return updated, err
}

// UpdateExecutorDescriptor shallow-merges patch into the stored descriptor.
func (e Engine) UpdateExecutorDescriptor(ctx context.Context, uid int64, patch descriptor.Patch) (domain.Executor, error) {
	if err := domain.ValidateID("uid", uid); err != nil {
		return domain.Executor{}, err
	}
	if err := patch.Validate(); err != nil {
		return domain.Executor{}, err
	}
	opts := e.Descriptor
	if opts.Logger == nil {
		opts.Logger = e.logger()
	}
	var updated domain.Executor
	err := e.inTx(ctx, "executor.descriptor", func(ctx context.Context, tx *sql.Tx) error {
		current, err := e.Repo.GetExecutorTx(ctx, tx, uid)
		if err != nil {
			return err
		}
		merged, err := descriptor.Merge(current.Desc, patch, opts)
		if err != nil {
			return err
		}
		if err := e.Repo.SetExecutorDescriptorTx(ctx, tx, uid, merged, e.timestamp()); err != nil {
			return err
		}
		updated, err = e.Repo.GetExecutorTx(ctx, tx, uid)
		if err != nil {
			return err
		}
		return e.events().Append(ctx, tx, "executor.descriptor", "executor", strconv.FormatInt(uid, 10), ActorFromContext(ctx),
			events.EventPayload{"descriptor": merged})
	})
	return updated, err
}

// DeleteExecutor detaches every task assigned to uid and then removes the
// executor, in one transaction. It returns the removed row.
func (e Engine) DeleteExecutor(ctx context.Context, uid int64) (domain.Executor, error) {
	if err := domain.ValidateID("uid", uid); err != nil {
		return domain.Executor{}, err
	}
	var removed domain.Executor
	err := e.inTx(ctx, "executor.delete", func(ctx context.Context, tx *sql.Tx) error {
		current, err := e.Repo.GetExecutorTx(ctx, tx, uid)
		if err != nil {
			return err
		}
		detached, err := e.Repo.DetachExecutorTasksTx(ctx, tx, uid, e.timestamp())
		if err != nil {
			return err
		}
		if err := e.Repo.DeleteExecutorTx(ctx, tx, uid); err != nil {
			return err
		}
		removed = current
		return e.events().Append(ctx, tx, "executor.delete", "executor", strconv.FormatInt(uid, 10), ActorFromContext(ctx),
			events.EventPayload{"detached_tasks": detached})
	})
	return removed, err
}
