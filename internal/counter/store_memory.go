package counter

import "sync"

// MemoryStore is the Postgres-less fallback and the concurrency-test harness.
// Each row carries its own mutex, which plays the role Postgres's per-row
// write serialization and FOR UPDATE lock play for the real store.
type MemoryStore struct {
	mu   sync.RWMutex
	rows map[int64]*memoryRow
}

type memoryRow struct {
	mu      sync.Mutex
	counter int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: make(map[int64]*memoryRow)}
}

func (s *MemoryStore) Get(id int64) (Resource, error) {
	row, err := s.row(id)
	if err != nil {
		return Resource{}, err
	}
	row.mu.Lock()
	defer row.mu.Unlock()
	return Resource{ID: id, Counter: row.counter}, nil
}

func (s *MemoryStore) Seed(id, value int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[id]; !ok {
		s.rows[id] = &memoryRow{counter: value}
	}
	return nil
}

func (s *MemoryStore) Atomic() *MemoryAtomicIncrementer {
	return &MemoryAtomicIncrementer{store: s}
}

func (s *MemoryStore) Locking() *MemoryLockingIncrementer {
	return &MemoryLockingIncrementer{store: s}
}

func (s *MemoryStore) row(id int64) (*memoryRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.rows[id]
	if !ok {
		return nil, ErrNotFound
	}
	return row, nil
}

// MemoryAtomicIncrementer mirrors the single-statement strategy: the whole
// read-add-write happens under the row lock as one indivisible step.
type MemoryAtomicIncrementer struct {
	store *MemoryStore
}

func (a *MemoryAtomicIncrementer) Increment(id, delta int64) (Resource, error) {
	row, err := a.store.row(id)
	if err != nil {
		return Resource{}, err
	}
	row.mu.Lock()
	defer row.mu.Unlock()
	row.counter += delta
	return Resource{ID: id, Counter: row.counter}, nil
}

// MemoryLockingIncrementer mirrors the pessimistic strategy: acquire the row
// lock, read, compute, write back, release.
type MemoryLockingIncrementer struct {
	store *MemoryStore
}

func (l *MemoryLockingIncrementer) Increment(id, delta int64) (Resource, error) {
	row, err := l.store.row(id)
	if err != nil {
		return Resource{}, err
	}
	row.mu.Lock()
	defer row.mu.Unlock()

	current := row.counter
	next := current + delta
	row.counter = next
	return Resource{ID: id, Counter: next}, nil
}
