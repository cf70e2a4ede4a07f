// Package postgres provides the PostgreSQL-backed Service Repository.
// It uses pgx/v5 (pure Go, no CGO) and runs embedded migrations at
// startup.
package postgres

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/harrowgate/svcmgr/internal/graph"
	"github.com/harrowgate/svcmgr/internal/note"
	"github.com/harrowgate/svcmgr/internal/repo"
	"github.com/harrowgate/svcmgr/internal/restarter"
	"github.com/harrowgate/svcmgr/internal/svcpath"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DB implements repo.Repository using PostgreSQL via pgx/v5.
type DB struct {
	pool *pgxpool.Pool

	mu   sync.Mutex
	subs []chan struct{}
}

// Open creates a connection pool, runs migrations, and returns a ready DB.
func Open(ctx context.Context, dsn string) (*DB, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	if err := runMigrations(dsn); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}
	return &DB{pool: pool}, nil
}

// RunMigrations applies all pending up-migrations against dsn. Safe to
// call multiple times: migrate.ErrNoChange is treated as success.
func RunMigrations(dsn string) error { return runMigrations(dsn) }

func runMigrations(dsn string) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("iofs source: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, toMigrateURL(dsn))
	if err != nil {
		return fmt.Errorf("migrate.New: %w", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return err
	}
	return nil
}

// toMigrateURL converts a postgres:// or postgresql:// DSN to the
// pgx5:// scheme golang-migrate's pgx/v5 driver expects.
func toMigrateURL(dsn string) string {
	for _, prefix := range []string{"postgres://", "postgresql://"} {
		if strings.HasPrefix(dsn, prefix) {
			return "pgx5://" + dsn[len(prefix):]
		}
	}
	return "pgx5://" + dsn
}

func (d *DB) Close() error {
	d.pool.Close()
	return nil
}

// Lookup implements repo.Repository.
func (d *DB) Lookup(ctx context.Context, path svcpath.Path) (repo.ServiceDescriptor, error) {
	var desc repo.ServiceDescriptor
	desc.Path = path

	var typeStr string
	var methodsRaw []byte
	row := d.pool.QueryRow(ctx, `SELECT unit_type, methods FROM services WHERE svc = $1 AND inst = $2`, path.Service, path.Instance)
	if err := row.Scan(&typeStr, &methodsRaw); err != nil {
		return desc, fmt.Errorf("lookup %s: %w", path, err)
	}
	desc.Type = parseUnitType(typeStr)

	var raw map[string][]string
	if err := json.Unmarshal(methodsRaw, &raw); err != nil {
		return desc, fmt.Errorf("lookup %s: decode methods: %w", path, err)
	}
	desc.Methods = make(map[restarter.MethodKind]restarter.Method, len(raw))
	for k, argv := range raw {
		desc.Methods[parseMethodKind(k)] = restarter.Method{Argv: argv}
	}

	rows, err := d.pool.Query(ctx, `SELECT group_kind, restart_on, targets FROM dependency_groups WHERE svc = $1 AND inst = $2`, path.Service, path.Instance)
	if err != nil {
		return desc, fmt.Errorf("lookup %s: groups: %w", path, err)
	}
	defer rows.Close()

	for rows.Next() {
		var kindStr string
		var restartOn int
		var targetsRaw []byte
		if err := rows.Scan(&kindStr, &restartOn, &targetsRaw); err != nil {
			return desc, fmt.Errorf("lookup %s: scan group: %w", path, err)
		}
		var targets []struct{ Svc, Inst string }
		if err := json.Unmarshal(targetsRaw, &targets); err != nil {
			return desc, fmt.Errorf("lookup %s: decode targets: %w", path, err)
		}
		spec := graph.GroupSpec{Kind: parseGroupKind(kindStr), RestartOn: note.Reason(restartOn)}
		for _, t := range targets {
			spec.Targets = append(spec.Targets, svcpath.NewInstance(t.Svc, t.Inst))
		}
		desc.Groups = append(desc.Groups, spec)
	}
	return desc, rows.Err()
}

// DependencyGroups implements graph.Catalog directly.
func (d *DB) DependencyGroups(path svcpath.Path) ([]graph.GroupSpec, error) {
	desc, err := d.Lookup(context.Background(), path)
	if err != nil {
		return nil, err
	}
	return desc.Groups, nil
}

// Subscribe registers a channel that receives a value whenever the
// catalog changes. Postgres LISTEN/NOTIFY would be the natural backend
// for cross-process invalidation; this pool-internal broadcast covers
// the single-writer-process deployment this daemon assumes.
func (d *DB) Subscribe() <-chan struct{} {
	ch := make(chan struct{}, 1)
	d.mu.Lock()
	d.subs = append(d.subs, ch)
	d.mu.Unlock()
	return ch
}

func (d *DB) notify() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, ch := range d.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// PutService upserts a service/instance descriptor.
func (d *DB) PutService(ctx context.Context, path svcpath.Path, typ restarter.UnitType, methods map[restarter.MethodKind]restarter.Method) error {
	raw := make(map[string][]string, len(methods))
	for k, m := range methods {
		raw[k.String()] = m.Argv
	}
	encoded, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("put service %s: %w", path, err)
	}
	_, err = d.pool.Exec(ctx, `
		INSERT INTO services (svc, inst, unit_type, methods) VALUES ($1, $2, $3, $4)
		ON CONFLICT (svc, inst) DO UPDATE SET unit_type = excluded.unit_type, methods = excluded.methods
	`, path.Service, path.Instance, typ.String(), encoded)
	if err != nil {
		return fmt.Errorf("put service %s: %w", path, err)
	}
	d.notify()
	return nil
}

func parseUnitType(s string) restarter.UnitType {
	switch s {
	case "oneshot":
		return restarter.Oneshot
	case "forks":
		return restarter.Forks
	case "group":
		return restarter.GroupUnit
	default:
		return restarter.Simple
	}
}

func parseMethodKind(s string) restarter.MethodKind {
	switch s {
	case "start":
		return restarter.MethodStart
	case "poststart":
		return restarter.MethodPostStart
	case "stop":
		return restarter.MethodStop
	case "poststop":
		return restarter.MethodPostStop
	default:
		return restarter.MethodPreStart
	}
}

func parseGroupKind(s string) graph.GroupKind {
	switch s {
	case "require-any":
		return graph.RequireAny
	case "optional-all":
		return graph.OptionalAll
	case "exclude-all":
		return graph.ExcludeAll
	default:
		return graph.RequireAll
	}
}
