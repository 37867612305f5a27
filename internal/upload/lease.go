package upload

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

const defaultWriteLeaseTTL = 5 * time.Minute

// DatasetLeaseKey names the single lease guarding the merged dataset.
const DatasetLeaseKey = "dataset"

// ErrWriteLeaseConflict is returned when another writer holds the lease.
var ErrWriteLeaseConflict = errors.New("write lease conflict")

// WriteLease is a held write lock. Token identifies the owner on Renew and
// Release.
type WriteLease struct {
	Key       string
	Token     string
	ExpiresAt time.Time
}

// WriteLeaseManager serializes writes to the merged dataset. Acquire returns
// ErrWriteLeaseConflict when the lease is already held. Release must be
// called on every path after a successful Acquire.
type WriteLeaseManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (*WriteLease, error)
	Renew(ctx context.Context, lease *WriteLease, ttl time.Duration) (*WriteLease, error)
	Release(ctx context.Context, lease *WriteLease) error
}

type inMemoryLeaseRecord struct {
	token     string
	expiresAt time.Time
}

// InMemoryWriteLeaseManager coordinates writers within one process.
type InMemoryWriteLeaseManager struct {
	mu       sync.Mutex
	leases   map[string]inMemoryLeaseRecord
	tokenSeq atomic.Uint64
}

// NewInMemoryWriteLeaseManager creates a new in-memory lease manager.
func NewInMemoryWriteLeaseManager() *InMemoryWriteLeaseManager {
	return &InMemoryWriteLeaseManager{
		leases: make(map[string]inMemoryLeaseRecord),
	}
}

// Acquire obtains the lease for key.
func (m *InMemoryWriteLeaseManager) Acquire(ctx context.Context, key string, ttl time.Duration) (*WriteLease, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if key == "" {
		return nil, fmt.Errorf("lease key cannot be empty")
	}
	if ttl <= 0 {
		ttl = defaultWriteLeaseTTL
	}

	now := time.Now().UTC()

	m.mu.Lock()
	defer m.mu.Unlock()

	if rec, ok := m.leases[key]; ok && now.Before(rec.expiresAt) {
		return nil, ErrWriteLeaseConflict
	}

	token := fmt.Sprintf("%s-%d-%d", key, now.UnixNano(), m.tokenSeq.Add(1))
	expiresAt := now.Add(ttl)
	m.leases[key] = inMemoryLeaseRecord{token: token, expiresAt: expiresAt}

	return &WriteLease{Key: key, Token: token, ExpiresAt: expiresAt}, nil
}

// Renew extends a lease still owned by its token.
func (m *InMemoryWriteLeaseManager) Renew(ctx context.Context, lease *WriteLease, ttl time.Duration) (*WriteLease, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if lease == nil || lease.Key == "" || lease.Token == "" {
		return nil, fmt.Errorf("valid lease is required")
	}
	if ttl <= 0 {
		ttl = defaultWriteLeaseTTL
	}

	now := time.Now().UTC()

	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.leases[lease.Key]
	if !ok || rec.token != lease.Token || !now.Before(rec.expiresAt) {
		return nil, ErrWriteLeaseConflict
	}

	expiresAt := now.Add(ttl)
	m.leases[lease.Key] = inMemoryLeaseRecord{token: lease.Token, expiresAt: expiresAt}

	return &WriteLease{Key: lease.Key, Token: lease.Token, ExpiresAt: expiresAt}, nil
}

// Release gives up a lease. Releasing a lease owned by another token is a
// no-op.
func (m *InMemoryWriteLeaseManager) Release(_ context.Context, lease *WriteLease) error {
	if lease == nil || lease.Key == "" || lease.Token == "" {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if rec, ok := m.leases[lease.Key]; ok && rec.token == lease.Token {
		delete(m.leases, lease.Key)
	}
	return nil
}
