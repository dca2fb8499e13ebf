// internal/node/builder.go
package node

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/tamzrod/nvparam/internal/config"
	"github.com/tamzrod/nvparam/internal/flashfs"
	"github.com/tamzrod/nvparam/internal/metrics"
	"github.com/tamzrod/nvparam/internal/param"
	"github.com/tamzrod/nvparam/internal/paramserver"
	"github.com/tamzrod/nvparam/internal/persistence"
)

// Node is one running parameter registry and everything bound to it.
// Lock guards Registry for every concurrent user (remote server, autosave).
type Node struct {
	ID     string
	UnitID uint8

	Registry *param.Registry
	Manager  *persistence.Manager
	Adapter  *paramserver.Adapter
	Lock     *sync.Mutex

	State persistence.State
}

// Build constructs a registry from its config, binds it to medium and runs the
// persistence lifecycle once. Assumes config has passed Validate and Normalize.
// A *persistence.FatalError is returned unchanged so the caller can halt.
func Build(rc config.RegistryConfig, medium flashfs.Medium, log *zap.Logger, mt *metrics.Metrics) (*Node, error) {
	if rc.ID == "" {
		return nil, errors.New("node: registry id required")
	}
	if medium == nil {
		return nil, fmt.Errorf("node %q: flash medium required", rc.ID)
	}
	if log == nil {
		log = zap.NewNop()
	}

	defs, err := config.Definitions(rc)
	if err != nil {
		return nil, err
	}
	tbl, err := param.NewTable(defs)
	if err != nil {
		return nil, fmt.Errorf("node %q: %w", rc.ID, err)
	}
	reg := param.New(tbl)

	m, err := persistence.New(
		reg,
		flashfs.NewStore(medium, log.Named("flashfs")),
		persistence.Config{
			Registry: rc.ID,
			Token:    flashfs.Token(rc.Token),
			Sectors:  rc.Sectors,
		},
		persistence.WithLogger(log),
		persistence.WithMetrics(mt),
	)
	if err != nil {
		return nil, fmt.Errorf("node %q: %w", rc.ID, err)
	}

	state, err := m.Initialize()
	if err != nil {
		return nil, err
	}

	log.Info("registry ready",
		zap.Uint8("unit_id", rc.UnitID),
		zap.Int("params", reg.Len()),
		zap.Int("store_bytes", reg.Size()),
		zap.Stringer("state", state),
	)

	return &Node{
		ID:       rc.ID,
		UnitID:   rc.UnitID,
		Registry: reg,
		Manager:  m,
		Adapter:  paramserver.New(reg, m, log.Named("adapter")),
		Lock:     &sync.Mutex{},
		State:    state,
	}, nil
}

// Save commits the registry under its lock.
func (n *Node) Save() error {
	n.Lock.Lock()
	defer n.Lock.Unlock()
	return n.Manager.Save()
}
