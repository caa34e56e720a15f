package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	coreconfig "github.com/m3rciful/menubot/core/config"
	"github.com/m3rciful/menubot/core/logger"
)

const migrateEvent = "db.migrate"

// RunMigrations applies every pending up migration found in cfg.MigrationsDir.
func RunMigrations(ctx context.Context, cfg coreconfig.DatabaseConfig) (err error) {
	dsn := MigrateURL(cfg)
	if err := WaitForPostgres(ctx, dsn, 30*time.Second); err != nil {
		logger.Error(ctx, "db", migrateEvent, slog.String("status", "fail"), slog.String("err", err.Error()))
		return fmt.Errorf("database not ready: %w", err)
	}

	dir, err := filepath.Abs(cfg.MigrationsDir)
	if err != nil {
		return fmt.Errorf("resolve migrations dir: %w", err)
	}
	files := scanMigrations(dir)
	logger.Debug(ctx, "db", "db.migrate.plan",
		append([]slog.Attr{slog.String("path", dir)}, logger.ListAttrs("files", files.names(), 6)...)...)

	m, err := migrate.New("file://"+dir, dsn)
	if err != nil {
		logger.Error(ctx, "db", migrateEvent, slog.String("status", "fail"), slog.String("err", err.Error()))
		return fmt.Errorf("failed to initialize migrations: %w", err)
	}
	defer func() {
		srcErr, dbErr := m.Close()
		if closeErr := errors.Join(srcErr, dbErr); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("close migrations: %w", closeErr))
		}
	}()

	from, _, _ := m.Version()
	start := time.Now()
	upErr := m.Up()
	took := logger.RoundMS(time.Since(start))

	to := from
	switch {
	case upErr == nil:
		to, _, _ = m.Version()
	case errors.Is(upErr, migrate.ErrNoChange):
	default:
		logger.Error(ctx, "db", migrateEvent,
			slog.String("status", "fail"),
			slog.Uint64("from_ver", uint64(from)),
			slog.Duration("duration", took),
			slog.String("err", upErr.Error()),
		)
		return fmt.Errorf("migration execution failed: %w", upErr)
	}

	applied := files.between(uint64(from), uint64(to))
	attrs := []slog.Attr{
		slog.String("status", "ok"),
		slog.Uint64("from_ver", uint64(from)),
		slog.Uint64("to_ver", uint64(to)),
		slog.Duration("duration", took),
	}
	logger.Info(ctx, "db", migrateEvent, append(attrs, logger.ListAttrs("applied", applied.names(), 6)...)...)
	return nil
}

type migrationFile struct {
	version uint64
	name    string
}

type migrationSet []migrationFile

// scanMigrations lists the versioned up files in dir ordered by version.
// Unreadable directories and files without a numeric prefix yield nothing.
func scanMigrations(dir string) migrationSet {
	matches, _ := filepath.Glob(filepath.Join(dir, "*.up.sql"))
	var set migrationSet
	for _, path := range matches {
		name := filepath.Base(path)
		prefix, _, ok := strings.Cut(name, "_")
		if !ok {
			continue
		}
		v, err := strconv.ParseUint(prefix, 10, 64)
		if err != nil {
			continue
		}
		set = append(set, migrationFile{version: v, name: name})
	}
	sort.Slice(set, func(i, j int) bool { return set[i].version < set[j].version })
	return set
}

// between returns the files with from < version <= to.
func (s migrationSet) between(from, to uint64) migrationSet {
	var out migrationSet
	for _, f := range s {
		if f.version > from && f.version <= to {
			out = append(out, f)
		}
	}
	return out
}

func (s migrationSet) names() []string {
	out := make([]string, len(s))
	for i, f := range s {
		out[i] = f.name
	}
	return out
}
