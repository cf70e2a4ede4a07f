// Package svcconfig manages the global, persisted configuration for the
// supervisor daemon. It is adapted directly from the teacher's
// config.Global/config.Data (disk-backed JSON, RWMutex-guarded, defaults
// filled on load): the shape is identical, the fields are the
// supervisor's own tunables instead of a recorder's.
package svcconfig

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Data holds the serialisable global configuration. Every timing named
// in spec §5 is represented here as a default, not a compiled-in
// constant, so tests can drive the state machine on a simulated clock
// without recompiling.
type Data struct {
	// MethodTimeoutMS is the default per-method execution timer (spec §5: 2000ms).
	MethodTimeoutMS int64 `json:"method_timeout_ms"`

	// RestartCooldownMS is the delay before retrying a failed method (spec §5: 5000ms).
	RestartCooldownMS int64 `json:"restart_cooldown_ms"`

	// RestartReentryMS is the back-off entry timer (spec §5: 500ms).
	RestartReentryMS int64 `json:"restart_reentry_ms"`

	// MaxMethodFailures is the consecutive-failure ceiling before Maintenance (spec §8: 5, then Maintenance on the 6th).
	MaxMethodFailures int `json:"max_method_failures"`

	// StopTermTimeoutMS is how long StopTerm waits before escalating to StopKill.
	StopTermTimeoutMS int64 `json:"stop_term_timeout_ms"`

	// StopKillTimeoutMS is how long StopKill waits before giving up and logging (spec §4.3).
	StopKillTimeoutMS int64 `json:"stop_kill_timeout_ms"`

	// NotifySocketPath is the well-known readiness-datagram socket path (spec §6).
	NotifySocketPath string `json:"notify_socket_path"`

	// RepositoryDSN addresses the Service Repository backend (sqlite path or postgres DSN).
	RepositoryDSN string `json:"repository_dsn"`

	// ObsFeedAddr is the optional websocket observability feed listen address; empty disables it.
	ObsFeedAddr string `json:"obs_feed_addr"`

	// AdminJWTSecretEnv names the environment variable holding the HS256 secret
	// used to verify administrative RPC requests (never stored on disk).
	AdminJWTSecretEnv string `json:"admin_jwt_secret_env"`
}

func defaults() Data {
	return Data{
		MethodTimeoutMS:   2000,
		RestartCooldownMS: 5000,
		RestartReentryMS:  500,
		MaxMethodFailures: 5,
		StopTermTimeoutMS: 2000,
		StopKillTimeoutMS: 2000,
		NotifySocketPath:  "/var/run/s16_sd_notify.sock",
		RepositoryDSN:     "",
		ObsFeedAddr:       "",
		AdminJWTSecretEnv: "SVCMGR_ADMIN_SECRET",
	}
}

// Global is a thread-safe, disk-backed wrapper around Data.
type Global struct {
	mu      sync.RWMutex
	data    Data
	confDir string
}

// Load reads confDir/config.json, filling in defaults for any missing
// fields. Creates confDir if it does not exist. A missing config.json is
// not an error: Load returns the defaults.
func Load(confDir string) (*Global, error) {
	if err := os.MkdirAll(confDir, 0o755); err != nil {
		return nil, err
	}

	g := &Global{confDir: confDir, data: defaults()}

	raw, err := os.ReadFile(filepath.Join(confDir, "config.json"))
	if err != nil {
		if os.IsNotExist(err) {
			return g, nil
		}
		return nil, err
	}

	if err := json.Unmarshal(raw, &g.data); err != nil {
		return nil, err
	}
	return g, nil
}

// Get returns a copy of the current configuration.
func (g *Global) Get() Data {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.data
}

// Set replaces the current configuration and persists it to disk.
func (g *Global) Set(d Data) error {
	g.mu.Lock()
	g.data = d
	g.mu.Unlock()
	return g.save()
}

func (g *Global) save() error {
	g.mu.RLock()
	raw, err := json.MarshalIndent(g.data, "", "  ")
	g.mu.RUnlock()
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(g.confDir, "config.json"), raw, 0o644)
}

// MethodTimeout returns the configured method timer as a time.Duration.
func (d Data) MethodTimeout() time.Duration {
	return time.Duration(d.MethodTimeoutMS) * time.Millisecond
}

// RestartCooldown returns the configured restart cooldown as a time.Duration.
func (d Data) RestartCooldown() time.Duration {
	return time.Duration(d.RestartCooldownMS) * time.Millisecond
}

// RestartReentry returns the configured restart re-entry delay as a time.Duration.
func (d Data) RestartReentry() time.Duration {
	return time.Duration(d.RestartReentryMS) * time.Millisecond
}

// StopTermTimeout returns the configured StopTerm escalation timer.
func (d Data) StopTermTimeout() time.Duration {
	return time.Duration(d.StopTermTimeoutMS) * time.Millisecond
}

// StopKillTimeout returns the configured StopKill timeout.
func (d Data) StopKillTimeout() time.Duration {
	return time.Duration(d.StopKillTimeoutMS) * time.Millisecond
}
