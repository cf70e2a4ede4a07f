// Package sqlite provides the SQLite-backed Service Repository.
// It uses modernc.org/sqlite (pure Go, no CGO) so the binary is fully
// static and works in scratch/alpine images without a C compiler.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/harrowgate/svcmgr/internal/graph"
	"github.com/harrowgate/svcmgr/internal/note"
	"github.com/harrowgate/svcmgr/internal/repo"
	"github.com/harrowgate/svcmgr/internal/restarter"
	"github.com/harrowgate/svcmgr/internal/svcpath"
)

// DB implements repo.Repository using SQLite via database/sql.
type DB struct {
	db *sql.DB

	mu   sync.Mutex
	subs []chan struct{}
}

// Open opens (or creates) the SQLite database at path and applies the schema.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	// SQLite serialises writes; one connection avoids SQLITE_BUSY on writes.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	s := &DB{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// migrate applies the schema. New versions should only ADD statements
// here so that existing databases keep working without a migration tool.
func (s *DB) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS services (
			svc         TEXT    NOT NULL,
			inst        TEXT    NOT NULL DEFAULT '',
			unit_type   TEXT    NOT NULL,
			methods     TEXT    NOT NULL DEFAULT '{}',
			PRIMARY KEY (svc, inst)
		)`,
		`CREATE TABLE IF NOT EXISTS dependency_groups (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			svc         TEXT    NOT NULL,
			inst        TEXT    NOT NULL DEFAULT '',
			group_kind  TEXT    NOT NULL,
			restart_on  INTEGER NOT NULL DEFAULT 0,
			targets     TEXT    NOT NULL DEFAULT '[]'
		)`,
		`CREATE INDEX IF NOT EXISTS idx_dg_owner ON dependency_groups(svc, inst)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

type methodsJSON map[string][]string

// Lookup implements repo.Repository.
func (s *DB) Lookup(ctx context.Context, path svcpath.Path) (repo.ServiceDescriptor, error) {
	return s.lookup(ctx, path)
}

func (s *DB) lookup(ctx context.Context, path svcpath.Path) (repo.ServiceDescriptor, error) {
	var desc repo.ServiceDescriptor
	desc.Path = path

	var typeStr, methodsRaw string
	row := s.db.QueryRowContext(ctx, `SELECT unit_type, methods FROM services WHERE svc = ? AND inst = ?`, path.Service, path.Instance)
	if err := row.Scan(&typeStr, &methodsRaw); err != nil {
		return desc, fmt.Errorf("lookup %s: %w", path, err)
	}
	desc.Type = parseUnitType(typeStr)

	var raw methodsJSON
	if err := json.Unmarshal([]byte(methodsRaw), &raw); err != nil {
		return desc, fmt.Errorf("lookup %s: decode methods: %w", path, err)
	}
	desc.Methods = make(map[restarter.MethodKind]restarter.Method, len(raw))
	for k, argv := range raw {
		desc.Methods[parseMethodKind(k)] = restarter.Method{Argv: argv}
	}

	rows, err := s.db.QueryContext(ctx, `SELECT group_kind, restart_on, targets FROM dependency_groups WHERE svc = ? AND inst = ?`, path.Service, path.Instance)
	if err != nil {
		return desc, fmt.Errorf("lookup %s: groups: %w", path, err)
	}
	defer rows.Close()

	for rows.Next() {
		var kindStr string
		var restartOn int
		var targetsRaw string
		if err := rows.Scan(&kindStr, &restartOn, &targetsRaw); err != nil {
			return desc, fmt.Errorf("lookup %s: scan group: %w", path, err)
		}
		var targets []struct{ Svc, Inst string }
		if err := json.Unmarshal([]byte(targetsRaw), &targets); err != nil {
			return desc, fmt.Errorf("lookup %s: decode targets: %w", path, err)
		}
		spec := graph.GroupSpec{Kind: parseGroupKind(kindStr), RestartOn: parseReason(restartOn)}
		for _, t := range targets {
			spec.Targets = append(spec.Targets, svcpath.NewInstance(t.Svc, t.Inst))
		}
		desc.Groups = append(desc.Groups, spec)
	}
	return desc, rows.Err()
}

// DependencyGroups implements graph.Catalog directly, so a *DB can be
// handed to graph.Setup without an adapter.
func (s *DB) DependencyGroups(path svcpath.Path) ([]graph.GroupSpec, error) {
	desc, err := s.lookup(context.Background(), path)
	if err != nil {
		return nil, err
	}
	return desc.Groups, nil
}

// Subscribe registers a channel that receives a value whenever the
// catalog changes. The SQLite backend has no native pub/sub; it
// broadcasts in-process after every write made through this handle.
func (s *DB) Subscribe() <-chan struct{} {
	ch := make(chan struct{}, 1)
	s.mu.Lock()
	s.subs = append(s.subs, ch)
	s.mu.Unlock()
	return ch
}

// PutService upserts a service/instance descriptor, used by the
// administrative CLI and tests to seed the catalog. It does not write
// dependency groups; use PutGroups for those.
func (s *DB) PutService(ctx context.Context, path svcpath.Path, typ restarter.UnitType, methods map[restarter.MethodKind]restarter.Method) error {
	raw := make(methodsJSON, len(methods))
	for k, m := range methods {
		raw[k.String()] = m.Argv
	}
	encoded, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("put service %s: %w", path, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO services (svc, inst, unit_type, methods) VALUES (?, ?, ?, ?)
		ON CONFLICT(svc, inst) DO UPDATE SET unit_type = excluded.unit_type, methods = excluded.methods
	`, path.Service, path.Instance, typ.String(), string(encoded))
	if err != nil {
		return fmt.Errorf("put service %s: %w", path, err)
	}
	s.notify()
	return nil
}

// PutGroups replaces every dependency group owned by path.
func (s *DB) PutGroups(ctx context.Context, path svcpath.Path, groups []graph.GroupSpec) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("put groups %s: %w", path, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM dependency_groups WHERE svc = ? AND inst = ?`, path.Service, path.Instance); err != nil {
		return fmt.Errorf("put groups %s: %w", path, err)
	}
	for _, g := range groups {
		type target struct{ Svc, Inst string }
		targets := make([]target, 0, len(g.Targets))
		for _, t := range g.Targets {
			targets = append(targets, target{Svc: t.Service, Inst: t.Instance})
		}
		encoded, err := json.Marshal(targets)
		if err != nil {
			return fmt.Errorf("put groups %s: %w", path, err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO dependency_groups (svc, inst, group_kind, restart_on, targets) VALUES (?, ?, ?, ?, ?)
		`, path.Service, path.Instance, g.Kind.String(), int(g.RestartOn), string(encoded)); err != nil {
			return fmt.Errorf("put groups %s: %w", path, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("put groups %s: %w", path, err)
	}
	s.notify()
	return nil
}

func (s *DB) notify() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Close closes the underlying database handle.
func (s *DB) Close() error { return s.db.Close() }

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

func parseReason(n int) note.Reason {
	return note.Reason(n)
}
