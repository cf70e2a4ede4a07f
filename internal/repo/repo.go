// Package repo defines the Service Repository contract of spec §6: a
// read-mostly catalog of service descriptors and their dependency
// groups, accessed by path lookup, plus a change-subscription that
// fires on repository updates. sqlite and postgres sub-packages provide
// concrete backends; the graph engine only ever depends on the narrower
// graph.Catalog view of this interface.
package repo

import (
	"context"

	"github.com/harrowgate/svcmgr/internal/graph"
	"github.com/harrowgate/svcmgr/internal/restarter"
	"github.com/harrowgate/svcmgr/internal/svcpath"
)

// ServiceDescriptor is the catalog's record for one service or instance.
type ServiceDescriptor struct {
	Path    svcpath.Path
	Type    restarter.UnitType
	Methods map[restarter.MethodKind]restarter.Method
	Groups  []graph.GroupSpec
}

// Repository is the full contract §6 names: lookup by path plus a
// change-subscription.
type Repository interface {
	Lookup(ctx context.Context, path svcpath.Path) (ServiceDescriptor, error)
	Subscribe() <-chan struct{}
	Close() error
}
