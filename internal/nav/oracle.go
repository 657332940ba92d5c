// Package nav provides the portfolio valuation source consumed by the
// epoch engine.
package nav

import (
	"sync"

	"github.com/trancheworks/pool-engine/internal/pool"
)

type entry struct {
	value       uint64
	lastUpdated uint64
}

// StaticOracle is a settable NAV source. It implements
// pool.NAVSource.
type StaticOracle struct {
	mu     sync.RWMutex
	values map[pool.PoolID]entry
	clock  pool.Clock
}

func NewStaticOracle(clock pool.Clock) *StaticOracle {
	return &StaticOracle{
		values: make(map[pool.PoolID]entry),
		clock:  clock,
	}
}

// Update publishes a valuation timestamped now.
func (o *StaticOracle) Update(id pool.PoolID, value uint64) {
	o.UpdateAt(id, value, o.clock.NowSeconds())
}

// UpdateAt publishes a valuation with an explicit timestamp.
func (o *StaticOracle) UpdateAt(id pool.PoolID, value, lastUpdated uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.values[id] = entry{value: value, lastUpdated: lastUpdated}
}

// NAV returns the last published valuation for the pool.
func (o *StaticOracle) NAV(id pool.PoolID) (uint64, uint64, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	e, ok := o.values[id]
	return e.value, e.lastUpdated, ok
}
