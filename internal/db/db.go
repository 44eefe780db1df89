package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

const defaultDBName = "asylum.db"

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Config struct {
	Workspace string
	Driver    string
	DSN       string
}

func dbPath(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, ".asylum", defaultDBName)
}

// EnsureWorkspace creates workspace directory if missing.
func EnsureWorkspace(workspace string) (string, error) {
	if workspace == "" {
		workspace = "."
	}
	path := filepath.Join(workspace, ".asylum")
	if err := os.MkdirAll(path, 0o755); err != nil {
		return "", err
	}
	return path, nil
}

// Open opens the configured store. SQLite is the default; writers take the
// database lock at BEGIN so check-then-write sequences inside a tx are serialized.
func Open(cfg Config) (*sql.DB, Dialect, error) {
	switch cfg.Driver {
	case "", DriverSQLite:
		dsn := cfg.DSN
		if dsn == "" {
			if _, err := EnsureWorkspace(cfg.Workspace); err != nil {
				return nil, Dialect{}, err
			}
			dsn = "file:" + dbPath(cfg.Workspace)
		}
		conn, err := sql.Open("sqlite", sqliteDSN(dsn))
		if err != nil {
			return nil, Dialect{}, err
		}
		return conn, Dialect{Driver: DriverSQLite}, nil
	case DriverPostgres:
		if cfg.DSN == "" {
			return nil, Dialect{}, fmt.Errorf("postgres driver requires a dsn")
		}
		conn, err := sql.Open("pgx", cfg.DSN)
		if err != nil {
			return nil, Dialect{}, err
		}
		return conn, Dialect{Driver: DriverPostgres}, nil
	default:
		return nil, Dialect{}, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// sqliteRequired lists the connection settings every SQLite DSN must carry.
var sqliteRequired = []struct{ key, param string }{
	{"foreign_keys", "_pragma=foreign_keys(1)"},
	{"busy_timeout", "_pragma=busy_timeout(5000)"},
	{"_txlock", "_txlock=immediate"},
}

// sqliteDSN appends the required settings the DSN does not already set.
// Explicit user values are left alone.
func sqliteDSN(dsn string) string {
	var missing []string
	for _, req := range sqliteRequired {
		if !strings.Contains(dsn, req.key) {
			missing = append(missing, req.param)
		}
	}
	if len(missing) == 0 {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + strings.Join(missing, "&")
}

// Path returns the db path for the workspace.
func Path(workspace string) string {
	return dbPath(workspace)
}

// Dialect papers over the placeholder and isolation differences between drivers.
type Dialect struct {
	Driver string
}

func (d Dialect) IsPostgres() bool { return d.Driver == DriverPostgres }

// Rebind rewrites ? placeholders to $n for postgres.
func (d Dialect) Rebind(query string) string {
	if !d.IsPostgres() {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// TxOptions returns the isolation used for mutation transactions.
func (d Dialect) TxOptions() *sql.TxOptions {
	if d.IsPostgres() {
		return &sql.TxOptions{Isolation: sql.LevelSerializable}
	}
	return nil
}

// Placeholders returns "?,?,?" for n arguments.
func Placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

// Querier is satisfied by both *sql.DB and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}
