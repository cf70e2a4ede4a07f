// Package svclog is the logging shim used by every package in this
// module. It follows the teacher's call-site convention of prefixing
// log.Printf messages with the owning component
// ("manager: %s/%s: ...", "overseer: ...") rather than adopting a
// structured logging library the example pack never reaches for in this
// teacher's own code.
package svclog

import "log"

// Logger prefixes every line with a component name and, when non-empty,
// a path, matching "manager: <driver>/<source>: ..." in manager.go.
type Logger struct {
	component string
}

// New returns a Logger for the given component name.
func New(component string) Logger { return Logger{component: component} }

// For returns a Logger scoped additionally to a path, e.g.
// svclog.New("restarter").For("web/api").Infof("entering Start").
func (l Logger) For(path string) Logger {
	if path == "" {
		return l
	}
	return Logger{component: l.component + "[" + path + "]"}
}

func (l Logger) Infof(format string, args ...any) {
	log.Printf(l.component+": "+format, args...)
}

func (l Logger) Warnf(format string, args ...any) {
	log.Printf(l.component+": warn: "+format, args...)
}

func (l Logger) Errorf(format string, args ...any) {
	log.Printf(l.component+": error: "+format, args...)
}
