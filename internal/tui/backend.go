package tui

import (
	"github.com/wellsgz/pingmon/internal/config"
	"github.com/wellsgz/pingmon/internal/engine"
	"github.com/wellsgz/pingmon/internal/ipc"
	"github.com/wellsgz/pingmon/internal/probe"
	"github.com/wellsgz/pingmon/internal/stats"
)

// Backend is the monitor the TUI displays and controls: either an engine in
// this process or a remote one reached over the control socket.
type Backend interface {
	State() (engine.State, error)
	Start() error
	Stop() error
	Pause() error
	Resume() error
	ResetStatistics() error
	AllStats() ([]stats.Statistics, error)
	Recent(count int) ([]probe.Outcome, error)
	Targets() ([]config.Target, error)
	ToggleTarget(id string) (bool, error)
}

var (
	_ Backend = (*LocalBackend)(nil)
	_ Backend = (*ipc.Client)(nil)
)

// LocalBackend adapts an in-process engine to Backend
type LocalBackend struct {
	engine *engine.Engine
}

// NewLocalBackend wraps eng
func NewLocalBackend(eng *engine.Engine) *LocalBackend {
	return &LocalBackend{engine: eng}
}

func (b *LocalBackend) State() (engine.State, error) {
	return b.engine.State(), nil
}

func (b *LocalBackend) Start() error {
	return b.engine.Start()
}

func (b *LocalBackend) Stop() error {
	b.engine.Stop()
	return nil
}

func (b *LocalBackend) Pause() error {
	b.engine.Pause()
	return nil
}

func (b *LocalBackend) Resume() error {
	b.engine.Resume()
	return nil
}

func (b *LocalBackend) ResetStatistics() error {
	b.engine.ResetStatistics()
	return nil
}

func (b *LocalBackend) AllStats() ([]stats.Statistics, error) {
	return b.engine.AllStats(), nil
}

func (b *LocalBackend) Recent(count int) ([]probe.Outcome, error) {
	return b.engine.Recent(count), nil
}

func (b *LocalBackend) Targets() ([]config.Target, error) {
	return b.engine.Targets(), nil
}

func (b *LocalBackend) ToggleTarget(id string) (bool, error) {
	enabled, ok := b.engine.ToggleTarget(id)
	if !ok {
		return false, engine.ErrTargetNotFound
	}
	return enabled, nil
}
