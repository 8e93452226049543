// Package clusterinfo exposes this instance's identity, build
// provenance and health status. The dispatcher runs as a single
// self-contained instance per deployment unit; there is no multi-node
// membership or leader election here, only the self-describing metadata
// an ops /healthz endpoint needs.
package clusterinfo

import (
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Version information, set at build time via -ldflags.
var (
	Version   = "1.0.0"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// Metadata describes this running instance.
type Metadata struct {
	InstanceID string    `json:"instance_id"`
	Version    string    `json:"version"`
	GitCommit  string    `json:"commit,omitempty"`
	BuildTime  string    `json:"build_time,omitempty"`
	GoVersion  string    `json:"go_version"`
	StartTime  time.Time `json:"start_time"`
	Hostname   string    `json:"hostname"`
}

// Checker reports a named subsystem's health. Registered checkers are
// run synchronously on every Health call, so implementations must
// be cheap (a ping, not a full scan).
type Checker func() error

// Instance holds this process's identity and a registry of health
// checkers contributed by the components it wires together (entity
// store reachability, catalog registry population).
type Instance struct {
	mu       sync.RWMutex
	metadata Metadata
	checkers map[string]Checker
}

// New creates an Instance, stamping a fresh instance id and start time.
func New() *Instance {
	hostname, _ := os.Hostname()
	return &Instance{
		metadata: Metadata{
			InstanceID: uuid.New().String(),
			Version:    Version,
			GitCommit:  GitCommit,
			BuildTime:  BuildTime,
			GoVersion:  runtime.Version(),
			StartTime:  time.Now(),
			Hostname:   hostname,
		},
		checkers: make(map[string]Checker),
	}
}

// Metadata returns a copy of this instance's identity metadata.
func (in *Instance) Metadata() Metadata {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return in.metadata
}

// RegisterChecker adds a named health checker. Re-registering a name
// replaces the prior checker, which lets a reload swap out a catalog's
// checker without leaking the old closure.
func (in *Instance) RegisterChecker(name string, c Checker) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.checkers[name] = c
}

// UnregisterChecker removes a named health checker.
func (in *Instance) UnregisterChecker(name string) {
	in.mu.Lock()
	defer in.mu.Unlock()
	delete(in.checkers, name)
}

// HealthStatus summarizes instance health for the /healthz endpoint.
type HealthStatus struct {
	Status string          `json:"status"`
	Uptime string          `json:"uptime"`
	Checks map[string]bool `json:"checks"`
}

// Health runs every registered checker and aggregates the result.
// Status is "healthy" only if every checker passes, "degraded" if at
// least one check runs and fails, and "healthy" with no checks
// registered (nothing to fail).
func (in *Instance) Health() HealthStatus {
	in.mu.RLock()
	checkers := make(map[string]Checker, len(in.checkers))
	for name, c := range in.checkers {
		checkers[name] = c
	}
	start := in.metadata.StartTime
	in.mu.RUnlock()

	checks := make(map[string]bool, len(checkers))
	healthy := true
	for name, c := range checkers {
		ok := c() == nil
		checks[name] = ok
		if !ok {
			healthy = false
		}
	}

	status := "healthy"
	if !healthy {
		status = "degraded"
	}

	return HealthStatus{
		Status: status,
		Uptime: time.Since(start).String(),
		Checks: checks,
	}
}
