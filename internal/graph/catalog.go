package graph

import (
	"github.com/harrowgate/svcmgr/internal/note"
	"github.com/harrowgate/svcmgr/internal/svcpath"
)

// GroupSpec describes one dependency group as fetched from the service
// repository during vertex setup.
type GroupSpec struct {
	Kind      GroupKind
	RestartOn note.Reason
	Targets   []svcpath.Path
}

// Catalog is the narrow slice of the Service Repository (spec §6) that
// vertex setup depends on: given a path, what dependency groups does it
// declare. Defined here, on the consumer side, so any repository
// backend (sqlite, postgres, or a test fake) can satisfy it without the
// graph package importing a storage implementation.
type Catalog interface {
	DependencyGroups(path svcpath.Path) ([]GroupSpec, error)
}
