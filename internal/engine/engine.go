package engine

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"asylum/internal/db"
	"asylum/internal/descriptor"
	"asylum/internal/events"
	"asylum/internal/repo"
)

var tracer = otel.Tracer("asylum/internal/engine")

// Engine runs every mutation as one transaction: existence and state are
// re-read inside the tx, an audit event is appended, and the tx commits or
// rolls back as a whole.
type Engine struct {
	DB         *sql.DB
	Dialect    db.Dialect
	Repo       repo.Repo
	Events     events.Writer
	Logger     *slog.Logger
	Descriptor descriptor.Options
	Now        func() time.Time
}

func New(conn *sql.DB, dialect db.Dialect) Engine {
	return Engine{
		DB:      conn,
		Dialect: dialect,
		Repo:    repo.Repo{DB: conn, Dialect: dialect},
		Events:  events.Writer{Dialect: dialect},
		Now:     time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) timestamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

func (e Engine) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

func (e Engine) events() events.Writer {
	w := e.Events
	if w.Now == nil {
		w.Now = e.now
	}
	return w
}

func (e Engine) inTx(ctx context.Context, op string, fn func(ctx context.Context, tx *sql.Tx) error) error {
	ctx, span := tracer.Start(ctx, "engine."+op)
	defer span.End()
	span.SetAttributes(attribute.String("db.system", e.Dialect.Driver))

	tx, err := e.DB.BeginTx(ctx, e.Dialect.TxOptions())
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return &StorageError{Op: op, Err: err}
	}
	defer tx.Rollback()

	if err := fn(ctx, tx); err != nil {
		err = classify(op, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	if err := tx.Commit(); err != nil {
		err = classify(op, err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	e.logger().DebugContext(ctx, "mutation committed", "op", op, "actor", ActorFromContext(ctx))
	return nil
}

type actorKey struct{}

// WithActor tags mutations issued under ctx with the acting principal.
func WithActor(ctx context.Context, actorID string) context.Context {
	return context.WithValue(ctx, actorKey{}, actorID)
}

func ActorFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(actorKey{}).(string); ok && v != "" {
		return v
	}
	return "system"
}
