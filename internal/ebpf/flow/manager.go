// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package flow

import (
	"fmt"
	"time"
	"unsafe"

	"github.com/cilium/ebpf"

	"sasecore/internal/flowtable"
	"sasecore/internal/logging"
)

// Config tunes the mirror loop's sync interval and the backing map's
// capacity.
type Config struct {
	SyncInterval time.Duration
	MaxEntries   uint32
}

// DefaultConfig mirrors the flow table's own default capacity and a sync
// interval tight enough for a shared eBPF program to see fresh verdicts
// within a couple of packets' worth of latency.
func DefaultConfig() Config {
	return Config{
		SyncInterval: 250 * time.Millisecond,
		MaxEntries:   1 << 20,
	}
}

// NewMap creates the backing eBPF hash map with MapKey/MapValue's exact
// on-wire sizes, so a BPF program declaring the matching C struct layout
// reads the same bytes this package writes.
func NewMap(cfg Config) (*ebpf.Map, error) {
	m, err := ebpf.NewMap(&ebpf.MapSpec{
		Name:       "sasecore_flows",
		Type:       ebpf.Hash,
		KeySize:    uint32(unsafe.Sizeof(MapKey{})),
		ValueSize:  uint32(unsafe.Sizeof(MapValue{})),
		MaxEntries: cfg.MaxEntries,
	})
	if err != nil {
		return nil, fmt.Errorf("creating flow mirror map: %w", err)
	}
	return m, nil
}

// Manager periodically mirrors a flowtable.Table's export-flagged entries
// into an eBPF map and prunes map entries the table no longer exports —
// either because the flow aged out or its export flag was cleared.
type Manager struct {
	table  *flowtable.Table
	bpfMap *ebpf.Map
	logger *logging.Logger
	cfg    Config
	stopCh chan struct{}
}

// NewManager builds a Manager mirroring table into bpfMap.
func NewManager(table *flowtable.Table, bpfMap *ebpf.Map, logger *logging.Logger, cfg Config) *Manager {
	if cfg.SyncInterval <= 0 {
		cfg = DefaultConfig()
	}
	return &Manager{
		table:  table,
		bpfMap: bpfMap,
		logger: logger,
		cfg:    cfg,
		stopCh: make(chan struct{}),
	}
}

// Start runs the mirror loop until Stop is called. Intended to be run in
// its own goroutine.
func (m *Manager) Start() {
	m.logger.Info("starting flow mirror", "interval", m.cfg.SyncInterval.String())

	ticker := time.NewTicker(m.cfg.SyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := m.sync(); err != nil {
				m.logger.Error("flow mirror sync failed", "error", err)
			}
		case <-m.stopCh:
			m.logger.Info("stopping flow mirror")
			return
		}
	}
}

// Stop ends the mirror loop.
func (m *Manager) Stop() {
	close(m.stopCh)
}

// sync pushes the table's current export set into bpfMap, then deletes
// every map key no longer present in that set.
func (m *Manager) sync() error {
	records := m.table.Export()

	live := make(map[MapKey]struct{}, len(records))
	for _, rec := range records {
		key := keyFromFlow(rec.Key)
		value := valueFromRecord(rec)
		if err := m.bpfMap.Update(&key, &value, ebpf.UpdateAny); err != nil {
			return fmt.Errorf("updating flow mirror entry: %w", err)
		}
		live[key] = struct{}{}
	}

	return m.pruneStale(live)
}

// pruneStale removes every existing map key not present in live. Batched
// in two passes — scan under iteration, then delete — since cilium/ebpf's
// MapIterator does not support deleting the current key mid-iteration.
func (m *Manager) pruneStale(live map[MapKey]struct{}) error {
	var stale []MapKey

	var key MapKey
	var value MapValue
	it := m.bpfMap.Iterate()
	for it.Next(&key, &value) {
		if _, ok := live[key]; !ok {
			stale = append(stale, key)
		}
	}
	if err := it.Err(); err != nil {
		return fmt.Errorf("iterating flow mirror map: %w", err)
	}

	for _, k := range stale {
		k := k
		if err := m.bpfMap.Delete(&k); err != nil {
			m.logger.Warn("failed to delete stale flow mirror entry", "error", err)
		}
	}
	if len(stale) > 0 {
		m.logger.Debug("pruned stale flow mirror entries", "count", len(stale))
	}
	return nil
}
