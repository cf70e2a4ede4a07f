package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/harrowgate/svcmgr/internal/humanize"
)

// daemonState is the small disk record a running daemon maintains so a
// separate "-status" invocation has something to read without a live
// RPC transport, which §1 treats as a named external interface outside
// this module's scope.
type daemonState struct {
	PID       int       `json:"pid"`
	StartedAt time.Time `json:"started_at"`
}

func stateFilePath(confDir string) string {
	return filepath.Join(confDir, "svcmgrd.state.json")
}

func writeDaemonState(confDir string) error {
	st := daemonState{PID: os.Getpid(), StartedAt: now()}
	raw, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(stateFilePath(confDir), raw, 0o644)
}

func readDaemonState(confDir string) (daemonState, error) {
	raw, err := os.ReadFile(stateFilePath(confDir))
	if err != nil {
		return daemonState{}, err
	}
	var st daemonState
	if err := json.Unmarshal(raw, &st); err != nil {
		return daemonState{}, err
	}
	return st, nil
}

// now is a seam so tests can stub the daemon's notion of "current time"
// without depending on wall-clock behavior.
var now = time.Now

// printStatus implements the "-status" CLI flag: it reads the last
// recorded daemon state and the unit manifest, and renders a short
// human-readable summary. It does not talk to a running daemon's event
// loop (no RPC transport is wired per §1's non-goals); it reports what
// was last written to disk.
func printStatus(confDir string) error {
	st, err := readDaemonState(confDir)
	if err != nil {
		if os.IsNotExist(err) {
			fmt.Println("svcmgrd: no recorded state (not started, or state file missing)")
			return nil
		}
		return err
	}

	entries, err := loadManifest(confDir)
	if err != nil {
		return err
	}

	fmt.Printf("svcmgrd pid %d, up %s\n", st.PID, humanize.Uptime(st.StartedAt))
	fmt.Printf("%d unit(s) in manifest\n", len(entries))
	for _, e := range entries {
		path := e.Svc
		if e.Inst != "" {
			path += "/" + e.Inst
		}
		state := "disabled"
		if e.Enabled {
			state = "enabled"
		}
		fmt.Printf("  %-32s %s\n", path, state)
	}
	return nil
}
