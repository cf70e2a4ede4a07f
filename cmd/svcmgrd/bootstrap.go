package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/harrowgate/svcmgr/internal/graph"
	"github.com/harrowgate/svcmgr/internal/note"
	"github.com/harrowgate/svcmgr/internal/repo"
	"github.com/harrowgate/svcmgr/internal/repo/postgres"
	"github.com/harrowgate/svcmgr/internal/repo/sqlite"
	"github.com/harrowgate/svcmgr/internal/restarter"
	"github.com/harrowgate/svcmgr/internal/svcpath"
)

// catalogRepo is what bootstrap needs from a repository backend: the
// Repository contract plus graph.Catalog, which both backends implement
// directly on their own types.
type catalogRepo interface {
	repo.Repository
	graph.Catalog
}

// openRepository opens the sqlite or postgres backend named by dsn.
// A dsn starting with "postgres://" or "postgresql://" selects postgres;
// anything else is treated as a sqlite file path, creating confDir's
// default database when dsn is empty.
func openRepository(ctx context.Context, dsn, confDir string) (catalogRepo, error) {
	if dsn == "" {
		dsn = filepath.Join(confDir, "svcmgr.db")
	}
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return postgres.Open(ctx, dsn)
	}
	return sqlite.Open(dsn)
}

// manifestEntry is one line of the unit manifest: the set of services
// this supervisor instance is responsible for, loaded once at startup.
// The Service Repository remains the source of truth for each entry's
// type, methods, and dependency groups; the manifest only says which
// paths to install.
type manifestEntry struct {
	Svc     string `json:"svc"`
	Inst    string `json:"inst"`
	Enabled bool   `json:"enabled"`
}

// loadManifest reads confDir/units.json. A missing file is not an error:
// an empty manifest is a supervisor with nothing to manage yet.
func loadManifest(confDir string) ([]manifestEntry, error) {
	raw, err := os.ReadFile(filepath.Join(confDir, "units.json"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var entries []manifestEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("units.json: %w", err)
	}
	return entries, nil
}

// bootstrapUnits installs every manifest entry into both the restarter
// core and the graph engine, wires up its dependency groups via
// graph.Setup, and queues a RestarterRequest(Start) for each enabled
// entry. Notes queued here are drained by the event loop's first pass
// through drainNotes, before any external event is processed.
func bootstrapUnits(ctx context.Context, core *restarter.Core, g *graph.Graph, cat catalogRepo, bus *note.Bus, entries []manifestEntry) error {
	for _, e := range entries {
		path := svcpath.New(e.Svc)
		if e.Inst != "" {
			path = svcpath.NewInstance(e.Svc, e.Inst)
		}

		desc, err := cat.Lookup(ctx, path)
		if err != nil {
			return fmt.Errorf("bootstrap %s: %w", path, err)
		}

		core.UnitAdd(path, desc.Type, desc.Methods)

		var v *graph.Vertex
		if path.IsInstance() {
			v = g.InstallInst(path)
		} else {
			v = g.InstallService(path)
		}
		if err := g.Setup(v, cat); err != nil {
			return fmt.Errorf("bootstrap %s: graph setup: %w", path, err)
		}
		v.IsEnabled = e.Enabled

		if e.Enabled {
			bus.Post(note.RestarterRequest(path, note.RestarterStart, note.ReasonNone))
		}
	}
	return nil
}
