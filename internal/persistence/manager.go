// internal/persistence/manager.go
package persistence

import (
	"errors"
	"fmt"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"

	"github.com/tamzrod/nvparam/internal/flashfs"
	"github.com/tamzrod/nvparam/internal/metrics"
	"github.com/tamzrod/nvparam/internal/param"
)

// State is the outcome of Initialize.
type State int

const (
	StateUnknown State = iota
	// StateLoaded: the persisted blob became the live value store.
	StateLoaded
	// StateDefaulted: storage was erased and defaults were committed.
	StateDefaulted
)

func (s State) String() string {
	switch s {
	case StateLoaded:
		return "loaded"
	case StateDefaulted:
		return "defaulted"
	default:
		return "unknown"
	}
}

// Config binds one registry to its flash blob.
type Config struct {
	Registry string // label for logs and metrics
	Token    flashfs.Token
	Sectors  []flashfs.Sector
}

// Manager runs the flash-backed lifecycle of one registry's value store.
// It holds no lock; callers serialize it with registry access.
type Manager struct {
	reg     *param.Registry
	store   flashfs.BlobStore
	cfg     Config
	log     *zap.Logger
	metrics *metrics.Metrics

	committed    uint64
	hasCommitted bool
}

type Option func(*Manager)

func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.log = l
		}
	}
}

func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) { m.metrics = mt }
}

// New creates a manager. Initialize must run before Save.
func New(reg *param.Registry, store flashfs.BlobStore, cfg Config, opts ...Option) (*Manager, error) {
	if reg == nil {
		return nil, errors.New("persistence: registry required")
	}
	if store == nil {
		return nil, errors.New("persistence: blob store required")
	}
	m := &Manager{
		reg:   reg,
		store: store,
		cfg:   cfg,
		log:   zap.NewNop(),
	}
	for _, o := range opts {
		o(m)
	}
	return m, nil
}

// Initialize loads the value store from flash, or erases the blob and commits
// defaults when it is missing, foreign-sized or of another schema version.
// Every storage failure on this path is returned as a *FatalError.
func (m *Manager) Initialize() (State, error) {
	image := m.reg.Image()
	token := m.cfg.Token

	if err := m.store.Init(m.cfg.Sectors, image); err != nil {
		return StateUnknown, m.fatal("init", err)
	}

	if _, err := m.store.Alloc(token); err != nil {
		return StateUnknown, m.fatal("alloc", err)
	}

	blob, err := m.store.Read(token)

	reason := ""
	switch {
	case flashfs.IsNotFound(err):
		reason = "no entry"
	case err != nil:
		reason = "read failed: " + err.Error()
	case len(blob) != len(image):
		reason = fmt.Sprintf("size %d, want %d", len(blob), len(image))
	default:
		if v, _ := m.reg.VersionOf(blob); v != m.reg.CompiledVersion() {
			reason = fmt.Sprintf("version %d, want %d", v, m.reg.CompiledVersion())
		}
	}

	if reason == "" {
		if err := m.reg.Load(blob); err != nil {
			// Size was checked above; unreachable unless the registry changed underneath.
			return StateUnknown, m.fatal("load", err)
		}
		m.markCommitted()
		m.log.Info("parameters loaded from flash",
			zap.Uint32("token", uint32(token)),
			zap.Int64("version", m.reg.Version()),
		)
		m.metrics.ObserveInitialize(m.cfg.Registry, StateLoaded.String())
		return StateLoaded, nil
	}

	m.log.Warn("persisted parameters rejected, restoring defaults",
		zap.Uint32("token", uint32(token)),
		zap.String("reason", reason),
	)

	if err := m.store.Erase(); err != nil {
		return StateUnknown, m.fatal("erase", err)
	}

	m.reg.ResetAllToDefault()

	if err := m.store.Write(token, image); err != nil {
		return StateUnknown, m.fatal("write", err)
	}

	m.markCommitted()
	m.metrics.ObserveInitialize(m.cfg.Registry, StateDefaulted.String())
	return StateDefaulted, nil
}

// Save commits the live value store. Failures are returned, never fatal;
// the in-memory store stays usable.
func (m *Manager) Save() error {
	token := m.cfg.Token

	if _, err := m.store.Alloc(token); err != nil {
		err = fmt.Errorf("persistence: alloc token=%d: %w", token, err)
		m.log.Error("save failed", zap.Error(err))
		m.metrics.ObserveSave(m.cfg.Registry, err)
		return err
	}

	if err := m.store.Write(token, m.reg.Image()); err != nil {
		err = fmt.Errorf("persistence: write token=%d: %w", token, err)
		m.log.Error("save failed", zap.Error(err))
		m.metrics.ObserveSave(m.cfg.Registry, err)
		return err
	}

	m.markCommitted()
	m.log.Debug("parameters saved", zap.Uint32("token", uint32(token)))
	m.metrics.ObserveSave(m.cfg.Registry, nil)
	return nil
}

// Dirty reports whether the live value store differs from the last committed image.
func (m *Manager) Dirty() bool {
	return !m.hasCommitted || xxhash.Sum64(m.reg.Image()) != m.committed
}

func (m *Manager) markCommitted() {
	m.committed = xxhash.Sum64(m.reg.Image())
	m.hasCommitted = true
}

func (m *Manager) fatal(op string, err error) error {
	fe := &FatalError{Code: FatalFlashFS, Op: op, Err: err}
	m.log.Error("flash file system failure", zap.String("op", op), zap.Error(err))
	return fe
}
