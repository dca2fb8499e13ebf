// internal/persistence/autosave.go
package persistence

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// nopLocker is used when the manager has a single owner.
type nopLocker struct{}

func (nopLocker) Lock()   {}
func (nopLocker) Unlock() {}

// Autosaver commits the value store from a low-rate task when it changed.
// It shares lock with every other user of the registry.
type Autosaver struct {
	m        *Manager
	interval time.Duration
	lock     sync.Locker
	log      *zap.Logger
}

// NewAutosaver creates an autosaver. A nil lock means the caller owns the registry exclusively.
func NewAutosaver(m *Manager, interval time.Duration, lock sync.Locker) (*Autosaver, error) {
	if m == nil {
		return nil, errors.New("autosave: manager required")
	}
	if interval <= 0 {
		return nil, errors.New("autosave: interval must be > 0")
	}
	if lock == nil {
		lock = nopLocker{}
	}
	return &Autosaver{m: m, interval: interval, lock: lock, log: m.log}, nil
}

// SaveIfDirty performs one check and, when needed, one save.
func (a *Autosaver) SaveIfDirty() (bool, error) {
	a.lock.Lock()
	defer a.lock.Unlock()

	if !a.m.Dirty() {
		return false, nil
	}
	if err := a.m.Save(); err != nil {
		return false, err
	}
	return true, nil
}

// Run ticks until ctx is done. One save per tick at most. No retries.
func (a *Autosaver) Run(ctx context.Context) {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			saved, err := a.SaveIfDirty()
			if err != nil {
				a.log.Warn("autosave failed", zap.Error(err))
				continue
			}
			if saved {
				a.log.Info("autosave committed parameters")
			}
		}
	}
}
