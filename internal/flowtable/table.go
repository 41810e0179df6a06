// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package flowtable

import (
	"sync"
	"sync/atomic"
	"time"

	"sasecore/internal/errors"
)

type slotState uint32

const (
	slotEmpty slotState = iota
	slotOccupied
	slotDeleted
)

// Entry is one physical cell of the flow table: an atomic state byte, an
// atomic precomputed hash, and an exclusively-owned optional flow state
// guarded by a lightweight reader-writer lock. The struct is laid out to
// occupy roughly one cache line so concurrent probes on adjacent slots do
// not false-share.
type Entry struct {
	state slotAtomic
	hash  atomic.Uint64
	mu    sync.RWMutex
	flow  *State
	_     [24]byte // pad toward a 64-byte cache line
}

type slotAtomic struct{ v atomic.Uint32 }

func (s *slotAtomic) load() slotState { return slotState(s.v.Load()) }
func (s *slotAtomic) cas(old, new slotState) bool {
	return s.v.CompareAndSwap(uint32(old), uint32(new))
}
func (s *slotAtomic) store(v slotState) { s.v.Store(uint32(v)) }

// Config tunes table sizing and aging behavior. Zero-valued fields fall
// back to DefaultConfig's values.
type Config struct {
	Capacity        int
	HardTimeout     time.Duration
	SoftTimeout     time.Duration
	AgingInterval   time.Duration
}

// DefaultConfig mirrors the reference implementation's defaults: a 5
// minute hard timeout, 60s soft timeout for closed TCP flows, aging run at
// most once per second.
func DefaultConfig() Config {
	return Config{
		Capacity:      1 << 20,
		HardTimeout:   5 * time.Minute,
		SoftTimeout:   60 * time.Second,
		AgingInterval: time.Second,
	}
}

// ErrFull is returned by Insert when no Empty/Deleted slot is found within
// one full probe scan.
var ErrFull = errors.New(errors.KindCapacity, "flow table full")

// Table is the lockless concurrent flow table: power-of-two capacity,
// mask-based indexing, linear probing. Lookup and insert are lock-free in
// the common case; the per-slot RWMutex is taken only to read or write the
// slot's State payload.
type Table struct {
	entries []Entry
	mask    uint64
	maxLoad uint64
	count   atomic.Uint64

	hardTimeoutUs   uint64
	softTimeoutUs   uint64
	agingIntervalUs uint64
	lastAgingUs     atomic.Uint64
}

// New allocates a table sized to the next power of two ≥ cfg.Capacity (or
// DefaultConfig's capacity if unset).
func New(cfg Config) *Table {
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultConfig().Capacity
	}
	if cfg.HardTimeout <= 0 {
		cfg.HardTimeout = DefaultConfig().HardTimeout
	}
	if cfg.SoftTimeout <= 0 {
		cfg.SoftTimeout = DefaultConfig().SoftTimeout
	}
	if cfg.AgingInterval <= 0 {
		cfg.AgingInterval = DefaultConfig().AgingInterval
	}

	size := nextPowerOfTwo(cfg.Capacity)
	t := &Table{
		entries:         make([]Entry, size),
		mask:            uint64(size - 1),
		maxLoad:         uint64(size) * 3 / 4,
		hardTimeoutUs:   uint64(cfg.HardTimeout.Microseconds()),
		softTimeoutUs:   uint64(cfg.SoftTimeout.Microseconds()),
		agingIntervalUs: uint64(cfg.AgingInterval.Microseconds()),
	}
	return t
}

func nextPowerOfTwo(n int) int {
	if n <= 1 {
		return 1
	}
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// Capacity returns the table's fixed slot count.
func (t *Table) Capacity() int { return len(t.entries) }

// Len returns the advisory (relaxed) occupied-slot count.
func (t *Table) Len() int { return int(t.count.Load()) }

// IsEmpty reports whether the table currently holds no flows.
func (t *Table) IsEmpty() bool { return t.Len() == 0 }

// LoadFactor returns the current occupancy as a fraction of capacity.
func (t *Table) LoadFactor() float64 {
	return float64(t.Len()) / float64(len(t.entries))
}

// Lookup probes for key and, on a match, returns a cloned snapshot of its
// State. Takes only the matching slot's read lock.
func (t *Table) Lookup(key Key) (State, bool) {
	idx := key.Hash() & t.mask
	for i := uint64(0); i < uint64(len(t.entries)); i++ {
		slot := &t.entries[(idx+i)%uint64(len(t.entries))]
		switch slot.state.load() {
		case slotEmpty:
			return State{}, false
		case slotOccupied:
			slot.mu.RLock()
			flow := slot.flow
			if flow != nil && flow.Key == key {
				snapshot := *flow
				slot.mu.RUnlock()
				return snapshot, true
			}
			slot.mu.RUnlock()
		case slotDeleted:
			// reclaimable; keep probing
		}
	}
	return State{}, false
}

// LookupAndUpdate probes for key and, on a match, bumps packet/byte
// counters and refreshes LastSeenUs under the slot's write lock, returning
// the (possibly now-stale) cached verdict. This is the hot-path operation.
func (t *Table) LookupAndUpdate(key Key, packetLen uint64) (Verdict, bool) {
	idx := key.Hash() & t.mask
	for i := uint64(0); i < uint64(len(t.entries)); i++ {
		slot := &t.entries[(idx+i)%uint64(len(t.entries))]
		switch slot.state.load() {
		case slotEmpty:
			return VerdictAllow, false
		case slotOccupied:
			slot.mu.Lock()
			flow := slot.flow
			if flow != nil && flow.Key == key {
				flow.Update(packetLen)
				v := flow.Verdict
				slot.mu.Unlock()
				return v, true
			}
			slot.mu.Unlock()
		case slotDeleted:
		}
	}
	return VerdictAllow, false
}

// Insert claims an Empty or Deleted slot for key via CAS and stores a
// freshly-created State. Rejects once occupancy would exceed the 75% load
// factor bound, and reports ErrFull if no slot is claimable within one
// full probe scan.
func (t *Table) Insert(key Key, initial Verdict) error {
	if t.count.Load() >= t.maxLoad {
		return ErrFull
	}

	idx := key.Hash() & t.mask
	for i := uint64(0); i < uint64(len(t.entries)); i++ {
		slot := &t.entries[(idx+i)%uint64(len(t.entries))]
		observed := slot.state.load()
		if observed == slotOccupied {
			continue
		}
		if slot.state.cas(observed, slotOccupied) {
			slot.hash.Store(key.Hash())
			slot.mu.Lock()
			slot.flow = NewState(key, initial)
			slot.mu.Unlock()
			t.count.Add(1)
			return nil
		}
		// lost the race; re-examine this slot on the next loop iteration
		i--
	}
	return ErrFull
}

// Remove probes for key and, on a match, marks the slot Deleted and clears
// its State, decrementing the occupancy counter. Deleted slots are
// reclaimable by a subsequent Insert CAS.
func (t *Table) Remove(key Key) bool {
	idx := key.Hash() & t.mask
	for i := uint64(0); i < uint64(len(t.entries)); i++ {
		slot := &t.entries[(idx+i)%uint64(len(t.entries))]
		switch slot.state.load() {
		case slotEmpty:
			return false
		case slotOccupied:
			slot.mu.Lock()
			flow := slot.flow
			if flow != nil && flow.Key == key {
				slot.flow = nil
				slot.mu.Unlock()
				slot.state.store(slotDeleted)
				t.count.Add(^uint64(0)) // -1
				return true
			}
			slot.mu.Unlock()
		case slotDeleted:
		}
	}
	return false
}

// SetExportFlag probes for key and, on a match, sets or clears FlagExport
// on its State. Used to mark flows of interest — e.g. ones a mitigation
// strategy has decided to drop — for mirroring into a kernel-side fast
// path, without exposing the table's internal locking to callers.
func (t *Table) SetExportFlag(key Key, export bool) bool {
	idx := key.Hash() & t.mask
	for i := uint64(0); i < uint64(len(t.entries)); i++ {
		slot := &t.entries[(idx+i)%uint64(len(t.entries))]
		switch slot.state.load() {
		case slotEmpty:
			return false
		case slotOccupied:
			slot.mu.Lock()
			flow := slot.flow
			if flow != nil && flow.Key == key {
				if export {
					flow.Flags |= FlagExport
				} else {
					flow.Flags &^= FlagExport
				}
				slot.mu.Unlock()
				return true
			}
			slot.mu.Unlock()
		case slotDeleted:
		}
	}
	return false
}

// SetQoSClass probes for key and, on a match, overwrites its QoSClass byte.
// Used to attach the class a mitigation or signature match decided this
// flow belongs to, for the kernel-side mirror to turn into a firewall mark.
func (t *Table) SetQoSClass(key Key, class uint8) bool {
	idx := key.Hash() & t.mask
	for i := uint64(0); i < uint64(len(t.entries)); i++ {
		slot := &t.entries[(idx+i)%uint64(len(t.entries))]
		switch slot.state.load() {
		case slotEmpty:
			return false
		case slotOccupied:
			slot.mu.Lock()
			flow := slot.flow
			if flow != nil && flow.Key == key {
				flow.QoSClass = class
				slot.mu.Unlock()
				return true
			}
			slot.mu.Unlock()
		case slotDeleted:
		}
	}
	return false
}

// SetNat probes for key and, on a match, overwrites its NatState. Used by
// an external conntrack correlator to attach the kernel's NAT translation
// once it observes one for a flow this table is already tracking.
func (t *Table) SetNat(key Key, nat NatState) bool {
	idx := key.Hash() & t.mask
	for i := uint64(0); i < uint64(len(t.entries)); i++ {
		slot := &t.entries[(idx+i)%uint64(len(t.entries))]
		switch slot.state.load() {
		case slotEmpty:
			return false
		case slotOccupied:
			slot.mu.Lock()
			flow := slot.flow
			if flow != nil && flow.Key == key {
				flow.Nat = nat
				if nat.Kind != NatNone {
					flow.Flags |= FlagNAT
				} else {
					flow.Flags &^= FlagNAT
				}
				slot.mu.Unlock()
				return true
			}
			slot.mu.Unlock()
		case slotDeleted:
		}
	}
	return false
}

// SetVerdict probes for key and, on a match, overwrites its cached Verdict.
// Used to update a flow after re-inspection decides its disposition has
// changed, without requiring a Remove+Insert round trip that would reset
// the flow's packet/byte counters and first-seen timestamp.
func (t *Table) SetVerdict(key Key, verdict Verdict) bool {
	idx := key.Hash() & t.mask
	for i := uint64(0); i < uint64(len(t.entries)); i++ {
		slot := &t.entries[(idx+i)%uint64(len(t.entries))]
		switch slot.state.load() {
		case slotEmpty:
			return false
		case slotOccupied:
			slot.mu.Lock()
			flow := slot.flow
			if flow != nil && flow.Key == key {
				flow.Verdict = verdict
				slot.mu.Unlock()
				return true
			}
			slot.mu.Unlock()
		case slotDeleted:
		}
	}
	return false
}

// AgeFlows removes Occupied entries that are either older than the hard
// timeout (measured from first-seen) or whose TCP state is Closed and have
// been idle longer than the soft timeout. Rate-limited to at most once per
// configured aging interval; a call inside the interval is a no-op.
func (t *Table) AgeFlows() int {
	now := uint64(time.Now().UnixMicro())
	last := t.lastAgingUs.Load()
	if now-last < t.agingIntervalUs {
		return 0
	}
	if !t.lastAgingUs.CompareAndSwap(last, now) {
		return 0
	}

	removed := 0
	for i := range t.entries {
		slot := &t.entries[i]
		if slot.state.load() != slotOccupied {
			continue
		}
		slot.mu.Lock()
		flow := slot.flow
		expire := flow != nil && (flow.IsExpired(t.hardTimeoutUs, now) ||
			(flow.Tcp == TcpClosed && flow.IsIdle(t.softTimeoutUs, now)))
		if expire {
			slot.flow = nil
		}
		slot.mu.Unlock()

		if expire {
			slot.state.store(slotDeleted)
			t.count.Add(^uint64(0))
			removed++
		}
	}
	return removed
}

// ExportRecord is an opaque record handed to the egress sink for flows
// flagged for export. Exporting does not remove the flow.
type ExportRecord struct {
	Key         Key
	Packets     uint64
	Bytes       uint64
	FirstSeenUs uint64
	LastSeenUs  uint64
	Verdict     Verdict
	QoSClass    uint8
}

// Export iterates Occupied slots and returns a record for every entry
// whose Flags include FlagExport.
func (t *Table) Export() []ExportRecord {
	var out []ExportRecord
	for i := range t.entries {
		slot := &t.entries[i]
		if slot.state.load() != slotOccupied {
			continue
		}
		slot.mu.RLock()
		flow := slot.flow
		if flow != nil && flow.Flags&FlagExport != 0 {
			out = append(out, ExportRecord{
				Key:         flow.Key,
				Packets:     flow.Packets,
				Bytes:       flow.Bytes,
				FirstSeenUs: flow.FirstSeenUs,
				LastSeenUs:  flow.LastSeenUs,
				Verdict:     flow.Verdict,
				QoSClass:    flow.QoSClass,
			})
		}
		slot.mu.RUnlock()
	}
	return out
}
