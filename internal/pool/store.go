package pool

import "sync"

// Store is the in-memory repository for pool state. Readers get deep
// copies; the engine mutates a copy and writes it back only once an
// operation has fully succeeded, so a failed operation never leaves
// partial state behind.
type Store struct {
	mu     sync.RWMutex
	pools  map[PoolID]*Pool
	epochs map[PoolID]*EpochExecutionInfo
}

func NewStore() *Store {
	return &Store{
		pools:  make(map[PoolID]*Pool),
		epochs: make(map[PoolID]*EpochExecutionInfo),
	}
}

// Pool returns a deep copy of the pool, or false if it is unknown.
func (s *Store) Pool(id PoolID) (*Pool, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.pools[id]
	if !ok {
		return nil, false
	}
	return p.Clone(), true
}

// PutPool stores a pool snapshot.
func (s *Store) PutPool(p *Pool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pools[p.ID] = p.Clone()
}

// PoolIDs lists all known pools.
func (s *Store) PoolIDs() []PoolID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]PoolID, 0, len(s.pools))
	for id := range s.pools {
		ids = append(ids, id)
	}
	return ids
}

// EpochExecution returns a deep copy of the pending execution info.
// Its presence means the pool is in a submission period.
func (s *Store) EpochExecution(id PoolID) (*EpochExecutionInfo, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.epochs[id]
	if !ok {
		return nil, false
	}
	return e.Clone(), true
}

// PutEpochExecution stores pending execution info.
func (s *Store) PutEpochExecution(id PoolID, e *EpochExecutionInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.epochs[id] = e.Clone()
}

// DeleteEpochExecution closes the submission period.
func (s *Store) DeleteEpochExecution(id PoolID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.epochs, id)
}

// Swap atomically persists a pool and its execution info in one
// critical section. A nil info deletes any pending execution.
func (s *Store) Swap(p *Pool, e *EpochExecutionInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pools[p.ID] = p.Clone()
	if e != nil {
		s.epochs[p.ID] = e.Clone()
	} else {
		delete(s.epochs, p.ID)
	}
}
