package restarter

import (
	"os"

	"github.com/harrowgate/svcmgr/internal/timerset"
)

func toTimerID(id uint64) timerset.ID { return timerset.ID(id) }

// osEnviron is a seam over os.Environ so tests can stub the parent
// environment without mutating process-global state.
var osEnviron = os.Environ
