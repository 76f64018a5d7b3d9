package migrate

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/pressly/goose/v3"
	"github.com/pressly/goose/v3/lock"
)

// DefaultDir is where cmd/migrate creates and validates migration files.
const DefaultDir = "pkg/migrate/migrations"

//go:embed migrations/*.sql
var embedded embed.FS

// Source returns the migrations in dir, or the set compiled into the binary
// when dir is empty.
func Source(dir string) (fs.FS, error) {
	if dir == "" {
		return fs.Sub(embedded, "migrations")
	}
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("migrations dir: %w", err)
	}
	return os.DirFS(dir), nil
}

// GooseDialect maps a gorm dialector name onto goose's.
func GooseDialect(driver string) goose.Dialect {
	if driver == "sqlite" {
		return goose.DialectSQLite3
	}
	return goose.DialectPostgres
}

// newProvider builds a goose provider. On postgres it takes an advisory
// session lock so concurrent deploys apply migrations once.
func newProvider(db *sql.DB, dialect string, fsys fs.FS) (*goose.Provider, error) {
	if db == nil {
		return nil, errors.New("db is required")
	}
	var opts []goose.ProviderOption
	if GooseDialect(dialect) == goose.DialectPostgres {
		locker, err := lock.NewPostgresSessionLocker()
		if err != nil {
			return nil, fmt.Errorf("session locker: %w", err)
		}
		opts = append(opts, goose.WithSessionLocker(locker))
	}
	p, err := goose.NewProvider(GooseDialect(dialect), db, fsys, opts...)
	if err != nil {
		return nil, fmt.Errorf("goose provider: %w", err)
	}
	return p, nil
}

// Run executes one goose command and returns a line per migration it applied,
// rolled back or, for status, listed.
func Run(ctx context.Context, db *sql.DB, dialect string, fsys fs.FS, command string) ([]string, error) {
	p, err := newProvider(db, dialect, fsys)
	if err != nil {
		return nil, err
	}

	switch command {
	case "up":
		results, err := p.Up(ctx)
		return describeResults(results...), wrapGoose(command, err)
	case "up-by-one":
		result, err := p.UpByOne(ctx)
		if errors.Is(err, goose.ErrNoNextVersion) {
			return []string{"no pending migrations"}, nil
		}
		return describeResults(result), wrapGoose(command, err)
	case "down":
		result, err := p.Down(ctx)
		return describeResults(result), wrapGoose(command, err)
	case "redo":
		down, err := p.Down(ctx)
		if err != nil {
			return nil, wrapGoose(command, err)
		}
		up, err := p.UpTo(ctx, down.Source.Version)
		return describeResults(append([]*goose.MigrationResult{down}, up...)...), wrapGoose(command, err)
	case "status":
		statuses, err := p.Status(ctx)
		if err != nil {
			return nil, wrapGoose(command, err)
		}
		lines := make([]string, 0, len(statuses))
		for _, s := range statuses {
			line := fmt.Sprintf("%-8s %s", s.State, s.Source.Path)
			if s.State == goose.StateApplied {
				line += " (" + s.AppliedAt.UTC().Format("2006-01-02 15:04:05") + ")"
			}
			lines = append(lines, line)
		}
		return lines, nil
	default:
		return nil, fmt.Errorf("unknown goose command %q", command)
	}
}

// MigrateToVersion moves the schema up or down to target (YYYYMMDDHHMMSS).
func MigrateToVersion(ctx context.Context, db *sql.DB, dialect string, fsys fs.FS, target string) ([]string, error) {
	version, err := strconv.ParseInt(target, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid version %q (expected YYYYMMDDHHMMSS): %w", target, err)
	}
	p, err := newProvider(db, dialect, fsys)
	if err != nil {
		return nil, err
	}
	current, err := p.GetDBVersion(ctx)
	if err != nil {
		return nil, fmt.Errorf("get db version: %w", err)
	}

	var results []*goose.MigrationResult
	switch {
	case current == version:
		return nil, nil
	case current < version:
		results, err = p.UpTo(ctx, version)
	default:
		results, err = p.DownTo(ctx, version)
	}
	return describeResults(results...), wrapGoose("version "+target, err)
}

func describeResults(results ...*goose.MigrationResult) []string {
	lines := make([]string, 0, len(results))
	for _, r := range results {
		if r == nil || r.Source == nil {
			continue
		}
		lines = append(lines, fmt.Sprintf("%-4s %s (%s)", r.Direction, r.Source.Path, r.Duration.Round(time.Millisecond)))
	}
	return lines
}

func wrapGoose(command string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("goose %s: %w", command, err)
}
