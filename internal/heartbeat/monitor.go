package heartbeat

import (
	"context"
	"log/slog"
	"time"
)

type Transition struct {
	Component string `json:"component"`
	FromState string `json:"from_state"`
	ToState   string `json:"to_state"`
	Message   string `json:"message,omitempty"`
	Error     string `json:"error,omitempty"`
}

type MonitorConfig struct {
	Interval     time.Duration
	StaleAfter   time.Duration
	Logger       *slog.Logger
	OnTransition func(Transition)
}

// Monitor polls a Registry and reports state changes. Without an
// OnTransition callback, transitions are logged.
type Monitor struct {
	registry *Registry
	cfg      MonitorConfig
	last     map[string]string
}

func NewMonitor(registry *Registry, cfg MonitorConfig) *Monitor {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	cfg.Logger = cfg.Logger.With("component", "heartbeat")
	monitor := &Monitor{registry: registry, cfg: cfg, last: map[string]string{}}
	if monitor.cfg.OnTransition == nil {
		monitor.cfg.OnTransition = monitor.logTransition
	}
	return monitor
}

func (m *Monitor) Start(ctx context.Context) error {
	if m.registry == nil {
		<-ctx.Done()
		return nil
	}
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()
	m.cfg.Logger.Info("heartbeat monitor started", "interval", m.cfg.Interval.String(), "stale_after", m.cfg.StaleAfter.String())
	for {
		m.check()
		select {
		case <-ctx.Done():
			m.cfg.Logger.Info("heartbeat monitor stopped")
			return nil
		case <-ticker.C:
		}
	}
}

func (m *Monitor) check() {
	for _, status := range m.registry.Snapshot(m.cfg.StaleAfter).Components {
		before, seen := m.last[status.Name]
		m.last[status.Name] = status.State
		if !seen || before == status.State {
			continue
		}
		m.cfg.OnTransition(Transition{
			Component: status.Name,
			FromState: before,
			ToState:   status.State,
			Message:   status.Message,
			Error:     status.Error,
		})
	}
}

func (m *Monitor) logTransition(transition Transition) {
	level := slog.LevelInfo
	if IsDegradedState(transition.ToState) {
		level = slog.LevelWarn
	}
	m.cfg.Logger.Log(context.Background(), level, "component state changed",
		"target", transition.Component,
		"from", transition.FromState,
		"to", transition.ToState,
		"message", transition.Message,
		"error", transition.Error,
	)
}
