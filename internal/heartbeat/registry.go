// Package heartbeat tracks the liveness of long-running runtime components.
package heartbeat

import (
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	StateStarting = "starting"
	StateHealthy  = "healthy"
	StateDegraded = "degraded"
	StateDisabled = "disabled"
	StateStopped  = "stopped"
	StateStale    = "stale"

	OverallIdle    = "idle"
	OverallUnknown = "unknown"
)

// Reporter is implemented by Registry and accepted by components that
// report their own progress.
type Reporter interface {
	Starting(component, message string)
	Beat(component, message string)
	Degrade(component, message string, err error)
	Disabled(component, message string)
	Stopped(component, message string)
}

type ComponentStatus struct {
	Name           string `json:"name"`
	State          string `json:"state"`
	Message        string `json:"message,omitempty"`
	Error          string `json:"error,omitempty"`
	LastBeatAtUnix int64  `json:"last_beat_at_unix,omitempty"`
	UpdatedAtUnix  int64  `json:"updated_at_unix"`
}

type Snapshot struct {
	GeneratedAtUnix int64             `json:"generated_at_unix"`
	Overall         string            `json:"overall"`
	Components      []ComponentStatus `json:"components"`
}

type component struct {
	state      string
	message    string
	lastError  string
	lastBeatAt time.Time
	updatedAt  time.Time
}

type Registry struct {
	mu         sync.RWMutex
	components map[string]component
	now        func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		components: map[string]component{},
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (r *Registry) Starting(name, message string) { r.record(name, StateStarting, message, nil) }
func (r *Registry) Beat(name, message string)     { r.record(name, StateHealthy, message, nil) }
func (r *Registry) Disabled(name, message string) { r.record(name, StateDisabled, message, nil) }
func (r *Registry) Stopped(name, message string)  { r.record(name, StateStopped, message, nil) }

func (r *Registry) Degrade(name, message string, err error) {
	r.record(name, StateDegraded, message, err)
}

func (r *Registry) record(name, state, message string, err error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if r == nil || name == "" {
		return
	}
	now := r.now()
	r.mu.Lock()
	defer r.mu.Unlock()
	entry := r.components[name]
	entry.state = state
	entry.message = strings.TrimSpace(message)
	entry.lastError = ""
	if err != nil {
		entry.lastError = strings.TrimSpace(err.Error())
	}
	if state == StateHealthy || entry.lastBeatAt.IsZero() {
		entry.lastBeatAt = now
	}
	entry.updatedAt = now
	r.components[name] = entry
}

// Snapshot reports every component. A healthy or starting component whose
// last beat is older than staleAfter is reported stale.
func (r *Registry) Snapshot(staleAfter time.Duration) Snapshot {
	now := r.now()
	r.mu.RLock()
	statuses := make([]ComponentStatus, 0, len(r.components))
	for name, entry := range r.components {
		status := ComponentStatus{
			Name:           name,
			State:          entry.state,
			Message:        entry.message,
			Error:          entry.lastError,
			LastBeatAtUnix: entry.lastBeatAt.Unix(),
			UpdatedAtUnix:  entry.updatedAt.Unix(),
		}
		live := entry.state == StateHealthy || entry.state == StateStarting
		if staleAfter > 0 && live && now.Sub(entry.lastBeatAt) > staleAfter {
			status.State = StateStale
		}
		statuses = append(statuses, status)
	}
	r.mu.RUnlock()

	sort.Slice(statuses, func(a, b int) bool { return statuses[a].Name < statuses[b].Name })
	return Snapshot{
		GeneratedAtUnix: now.Unix(),
		Overall:         overall(statuses),
		Components:      statuses,
	}
}

// IsDegradedState reports whether state needs operator attention.
func IsDegradedState(state string) bool {
	return state == StateDegraded || state == StateStale
}

func overall(statuses []ComponentStatus) string {
	if len(statuses) == 0 {
		return OverallUnknown
	}
	result := OverallIdle
	for _, status := range statuses {
		switch status.State {
		case StateDegraded, StateStale:
			return StateDegraded
		case StateStarting:
			result = StateStarting
		case StateHealthy:
			if result != StateStarting {
				result = StateHealthy
			}
		}
	}
	return result
}
