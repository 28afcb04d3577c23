package engine

import (
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/wellsgz/pingmon/internal/config"
	"github.com/wellsgz/pingmon/internal/logging"
)

// Targets returns a copy of the roster in order
func (e *Engine) Targets() []config.Target {
	e.cfgMu.RLock()
	defer e.cfgMu.RUnlock()

	targets := make([]config.Target, len(e.cfg.Targets))
	copy(targets, e.cfg.Targets)
	return targets
}

// Config returns a snapshot of the current settings and roster
func (e *Engine) Config() *config.Config {
	e.cfgMu.RLock()
	defer e.cfgMu.RUnlock()
	return e.cfg.Clone()
}

func (e *Engine) enabledTargets() []config.Target {
	e.cfgMu.RLock()
	defer e.cfgMu.RUnlock()

	var targets []config.Target
	for _, t := range e.cfg.Targets {
		if t.Enabled {
			targets = append(targets, t)
		}
	}
	return targets
}

func (e *Engine) pollInterval() time.Duration {
	e.cfgMu.RLock()
	defer e.cfgMu.RUnlock()
	return e.cfg.Monitor.PollInterval
}

func (e *Engine) probeTimeout() time.Duration {
	e.cfgMu.RLock()
	defer e.cfgMu.RUnlock()
	return e.cfg.Monitor.ProbeTimeout
}

// SetPollInterval changes the delay between ticks, effective from the next sleep
func (e *Engine) SetPollInterval(d time.Duration) error {
	if d < config.MinPollInterval {
		return ErrIntervalTooShort
	}

	e.mutateMu.Lock()
	defer e.mutateMu.Unlock()

	e.cfgMu.Lock()
	e.cfg.Monitor.PollInterval = d
	e.cfgMu.Unlock()

	logging.Info("Engine", "Poll interval changed", logrus.Fields{"interval": d.String()})
	e.saveConfig()
	return nil
}

// SetProbeTimeout changes the per-probe timeout, effective from the next tick
func (e *Engine) SetProbeTimeout(d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("%w: probe timeout must be positive", ErrInvalidSetting)
	}

	e.mutateMu.Lock()
	defer e.mutateMu.Unlock()

	e.cfgMu.Lock()
	e.cfg.Monitor.ProbeTimeout = d
	e.cfgMu.Unlock()

	e.saveConfig()
	return nil
}

// SetMaxHistorySize changes the history capacity, applied on the next outcome
func (e *Engine) SetMaxHistorySize(n int) error {
	if n < 1 {
		return fmt.Errorf("%w: history size must be at least 1", ErrInvalidSetting)
	}

	e.mutateMu.Lock()
	defer e.mutateMu.Unlock()

	e.cfgMu.Lock()
	e.cfg.Monitor.MaxHistorySize = n
	e.cfgMu.Unlock()

	e.history.SetCapacity(n)
	e.saveConfig()
	return nil
}

// AddTarget appends an enabled target with a fresh id
func (e *Engine) AddTarget(address, label string) (config.Target, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return config.Target{}, ErrEmptyAddress
	}

	t := config.NewTarget(address, label)

	e.mutateMu.Lock()
	defer e.mutateMu.Unlock()

	e.cfgMu.Lock()
	e.cfg.Targets = append(e.cfg.Targets, t)
	e.cfgMu.Unlock()

	e.stats.Init(t)
	logging.Info("Engine", "Target added", logrus.Fields{"id": t.ID, "address": t.Address})
	e.saveConfig()
	return t, nil
}

// RemoveTarget deletes a target by id. Its statistics are dropped unless
// another target still probes the same address.
func (e *Engine) RemoveTarget(id string) bool {
	e.mutateMu.Lock()
	defer e.mutateMu.Unlock()

	e.cfgMu.Lock()
	idx := e.indexOf(id)
	if idx < 0 {
		e.cfgMu.Unlock()
		return false
	}
	removed := e.cfg.Targets[idx]
	e.cfg.Targets = append(e.cfg.Targets[:idx], e.cfg.Targets[idx+1:]...)
	shared := e.addressInUse(removed.Address)
	e.cfgMu.Unlock()

	if !shared {
		e.stats.Remove(removed.Address)
	}
	logging.Info("Engine", "Target removed", logrus.Fields{"id": id, "address": removed.Address})
	e.saveConfig()
	return true
}

// UpdateTarget changes a target's address and label. A blank address keeps
// the current one.
func (e *Engine) UpdateTarget(id, address, label string) (config.Target, bool) {
	address = strings.TrimSpace(address)

	e.mutateMu.Lock()
	defer e.mutateMu.Unlock()

	e.cfgMu.Lock()
	idx := e.indexOf(id)
	if idx < 0 {
		e.cfgMu.Unlock()
		return config.Target{}, false
	}
	old := e.cfg.Targets[idx]
	updated := old
	if address != "" {
		updated.Address = address
	}
	updated.Label = label
	e.cfg.Targets[idx] = updated
	oldShared := e.addressInUse(old.Address)
	e.cfgMu.Unlock()

	if updated.Address != old.Address {
		e.stats.Init(updated)
		if !oldShared {
			e.stats.Remove(old.Address)
		}
	} else if updated.Label != old.Label {
		e.stats.Relabel(updated.Address, updated.Label)
	}

	e.saveConfig()
	return updated, true
}

// ToggleTarget flips a target's enabled flag and returns the new value
func (e *Engine) ToggleTarget(id string) (enabled, ok bool) {
	e.mutateMu.Lock()
	defer e.mutateMu.Unlock()

	e.cfgMu.Lock()
	idx := e.indexOf(id)
	if idx < 0 {
		e.cfgMu.Unlock()
		return false, false
	}
	e.cfg.Targets[idx].Enabled = !e.cfg.Targets[idx].Enabled
	enabled = e.cfg.Targets[idx].Enabled
	e.cfgMu.Unlock()

	e.saveConfig()
	return enabled, true
}

// ApplyConfig replaces the roster and monitor settings, keeping statistics
// for addresses that remain. Used by configuration hot reload, so it never
// calls the persist hook. A target arriving without a known id takes over
// the id of the current target with the same address and label.
func (e *Engine) ApplyConfig(cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSetting, err)
	}
	next := cfg.Clone()

	e.mutateMu.Lock()
	defer e.mutateMu.Unlock()

	e.cfgMu.Lock()
	prev := e.cfg.Targets
	keepIDs(prev, next.Targets)
	if sameRoster(prev, next.Targets) && e.cfg.Monitor == next.Monitor {
		// Echo of our own save
		e.cfg = next
		e.cfgMu.Unlock()
		return nil
	}
	e.cfg = next
	e.cfgMu.Unlock()

	e.history.SetCapacity(next.Monitor.MaxHistorySize)

	keep := make(map[string]bool, len(next.Targets))
	for _, t := range next.Targets {
		keep[t.Address] = true
		e.stats.Init(t)
		e.stats.Relabel(t.Address, t.Label)
	}
	for _, t := range prev {
		if !keep[t.Address] {
			e.stats.Remove(t.Address)
		}
	}

	logging.Info("Engine", "Configuration applied", logrus.Fields{
		"targets":  len(next.Targets),
		"interval": next.Monitor.PollInterval.String(),
	})
	return nil
}

// saveConfig hands a snapshot to the persist hook. Must be called with
// e.mutateMu held so snapshots are saved in order.
func (e *Engine) saveConfig() {
	if e.persist == nil {
		return
	}
	if err := e.persist(e.Config()); err != nil {
		logging.Error("Engine", "Failed to save configuration", err)
	}
}

// sameRoster reports whether two rosters are identical, ids included
func sameRoster(a, b []config.Target) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// keepIDs rewrites ids in next that the current roster does not know to the
// id of an unclaimed current target with the same address and label
func keepIDs(current, next []config.Target) {
	known := make(map[string]bool, len(next))
	for _, t := range next {
		known[t.ID] = true
	}
	currentIDs := make(map[string]bool, len(current))
	for _, t := range current {
		currentIDs[t.ID] = true
	}

	for i := range next {
		if currentIDs[next[i].ID] {
			continue
		}
		for _, c := range current {
			if known[c.ID] || c.Address != next[i].Address || c.Label != next[i].Label {
				continue
			}
			known[c.ID] = true
			next[i].ID = c.ID
			break
		}
	}
}

// indexOf returns the roster position of id or -1. Must be called with e.cfgMu held.
func (e *Engine) indexOf(id string) int {
	for i, t := range e.cfg.Targets {
		if t.ID == id {
			return i
		}
	}
	return -1
}

// addressInUse reports whether any target probes address. Must be called with e.cfgMu held.
func (e *Engine) addressInUse(address string) bool {
	for _, t := range e.cfg.Targets {
		if t.Address == address {
			return true
		}
	}
	return false
}
