// Package permissions holds the per-pool role grants gating
// administrative operations.
package permissions

import (
	"sync"

	"github.com/trancheworks/pool-engine/internal/pool"
)

type grant struct {
	pool    pool.PoolID
	account string
	role    pool.Role
}

// Registry is an in-memory role registry. It implements
// pool.Permissions.
type Registry struct {
	mu     sync.RWMutex
	grants map[grant]struct{}
}

func NewRegistry() *Registry {
	return &Registry{grants: make(map[grant]struct{})}
}

func (r *Registry) Grant(id pool.PoolID, account string, role pool.Role) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.grants[grant{pool: id, account: account, role: role}] = struct{}{}
}

func (r *Registry) Revoke(id pool.PoolID, account string, role pool.Role) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.grants, grant{pool: id, account: account, role: role})
}

func (r *Registry) Has(id pool.PoolID, account string, role pool.Role) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.grants[grant{pool: id, account: account, role: role}]
	return ok
}
