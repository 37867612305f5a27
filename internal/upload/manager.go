// Package upload runs upload batches: it serializes merges behind the
// dataset write lease and keeps a short history of batch outcomes.
package upload

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/campaign-insights/backend/internal/dataset"
	"github.com/campaign-insights/backend/internal/models"
	"github.com/campaign-insights/backend/internal/session"
	"github.com/campaign-insights/backend/internal/storage"
)

// Status represents the batch processing status.
type Status string

const (
	StatusProcessing Status = "processing"
	StatusComplete   Status = "complete"
	StatusError      Status = "error"
)

// ErrUploadInProgress is returned when another batch holds the write lease.
var ErrUploadInProgress = errors.New("another upload is being processed")

// Batch records one upload request.
type Batch struct {
	ID          string     `json:"id"`
	Files       []string   `json:"files"`
	Status      Status     `json:"status"`
	Rows        int        `json:"rows"`
	Columns     []string   `json:"columns,omitempty"`
	Skipped     []string   `json:"skipped,omitempty"`
	OutputFile  string     `json:"outputFile,omitempty"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// Merger concatenates a batch into the persisted dataset.
type Merger interface {
	Merge(ctx context.Context, files []*models.FileInfo) (*dataset.MergeResult, error)
}

// Publisher receives freshly merged datasets.
type Publisher interface {
	Publish(ds *models.Dataset, version string) *session.Handle
}

var (
	_ Merger    = (*dataset.Merger)(nil)
	_ Publisher = (*session.Manager)(nil)
)

// Manager processes upload batches one at a time.
type Manager struct {
	batches map[string]*Batch
	mu      sync.RWMutex

	store     storage.Store
	merger    Merger
	publisher Publisher
	leases    WriteLeaseManager
	leaseTTL  time.Duration
	logger    *zap.Logger
}

// NewManager creates a batch manager. A nil lease manager selects the
// in-memory implementation.
func NewManager(store storage.Store, merger Merger, publisher Publisher, leases WriteLeaseManager, leaseTTL time.Duration, logger *zap.Logger) *Manager {
	if leases == nil {
		leases = NewInMemoryWriteLeaseManager()
	}
	if leaseTTL <= 0 {
		leaseTTL = defaultWriteLeaseTTL
	}
	return &Manager{
		batches:   make(map[string]*Batch),
		store:     store,
		merger:    merger,
		publisher: publisher,
		leases:    leases,
		leaseTTL:  leaseTTL,
		logger:    logger.Named("upload"),
	}
}

// Process merges files into the dataset under the write lease. The saved
// files are removed from the store whatever the outcome. The returned batch
// is a snapshot.
func (m *Manager) Process(ctx context.Context, files []*models.FileInfo) (*Batch, *dataset.MergeResult, error) {
	batch := m.startBatch(files)
	defer m.forget(files)

	log := m.logger.With(zap.String("batch", batch.ID), zap.Int("files", len(files)))

	lease, err := m.leases.Acquire(ctx, DatasetLeaseKey, m.leaseTTL)
	if err != nil {
		if errors.Is(err, ErrWriteLeaseConflict) {
			log.Warn("write lease conflict")
			err = fmt.Errorf("%w: %w", ErrUploadInProgress, err)
		} else {
			log.Error("write lease acquisition failed", zap.Error(err))
			err = fmt.Errorf("acquire write lease: %w", err)
		}
		return m.markBatchError(batch, err), nil, err
	}
	stopRenew := m.keepAlive(lease, log)
	defer func() {
		stopRenew()
		if err := m.leases.Release(context.Background(), lease); err != nil {
			log.Warn("releasing write lease", zap.Error(err))
		}
	}()

	result, err := m.merger.Merge(ctx, files)
	if err != nil {
		log.Warn("merge failed", zap.Error(err))
		return m.markBatchError(batch, err), nil, err
	}

	if m.publisher != nil {
		m.publisher.Publish(result.Dataset, result.Version)
	}
	log.Info("batch complete", zap.Int("rows", result.Dataset.RowCount()), zap.String("version", result.Version))
	return m.markBatchComplete(batch, result), result, nil
}

// keepAlive renews lease every half TTL until the returned stop func runs.
func (m *Manager) keepAlive(lease *WriteLease, log *zap.Logger) func() {
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(m.leaseTTL / 2)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				renewed, err := m.leases.Renew(context.Background(), lease, m.leaseTTL)
				if err != nil {
					log.Warn("renewing write lease", zap.Error(err))
					continue
				}
				lease.ExpiresAt = renewed.ExpiresAt
			}
		}
	}()
	return func() {
		close(done)
		wg.Wait()
	}
}

func (m *Manager) forget(files []*models.FileInfo) {
	for _, f := range files {
		if err := m.store.Delete(f.ID); err != nil {
			m.logger.Debug("forgetting uploaded file", zap.String("file", f.Name), zap.Error(err))
		}
	}
}

func (m *Manager) startBatch(files []*models.FileInfo) *Batch {
	names := make([]string, len(files))
	for i, f := range files {
		names[i] = f.Name
	}
	batch := &Batch{
		ID:        uuid.New().String(),
		Files:     names,
		Status:    StatusProcessing,
		CreatedAt: time.Now(),
	}

	m.mu.Lock()
	m.batches[batch.ID] = batch
	m.mu.Unlock()
	return batch
}

// markBatchComplete marks batch as complete (thread-safe).
func (m *Manager) markBatchComplete(batch *Batch, result *dataset.MergeResult) *Batch {
	m.mu.Lock()
	defer m.mu.Unlock()

	batch.Status = StatusComplete
	batch.Rows = result.Dataset.RowCount()
	batch.Columns = result.Dataset.Columns
	batch.Skipped = result.Skipped
	batch.OutputFile = result.OutputFile
	now := time.Now()
	batch.CompletedAt = &now
	return batch.clone()
}

// markBatchError marks batch as failed (thread-safe).
func (m *Manager) markBatchError(batch *Batch, err error) *Batch {
	m.mu.Lock()
	defer m.mu.Unlock()

	batch.Status = StatusError
	batch.Error = err.Error()
	now := time.Now()
	batch.CompletedAt = &now
	return batch.clone()
}

// GetBatch retrieves a batch by ID.
func (m *Manager) GetBatch(id string) (*Batch, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	batch, ok := m.batches[id]
	if !ok {
		return nil, false
	}
	return batch.clone(), true
}

// ListBatches returns up to limit batches, newest first. A non-positive
// limit returns all of them.
func (m *Manager) ListBatches(limit int) []*Batch {
	m.mu.RLock()
	out := make([]*Batch, 0, len(m.batches))
	for _, b := range m.batches {
		out = append(out, b.clone())
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// CleanupOldBatches removes finished batches older than maxAge.
func (m *Manager) CleanupOldBatches(maxAge time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	cutoff := time.Now().Add(-maxAge)
	for id, batch := range m.batches {
		if batch.Status == StatusProcessing {
			continue
		}
		if batch.CompletedAt != nil && batch.CompletedAt.Before(cutoff) {
			delete(m.batches, id)
			removed++
		}
	}
	return removed
}

func (b *Batch) clone() *Batch {
	c := *b
	c.Files = append([]string(nil), b.Files...)
	c.Columns = append([]string(nil), b.Columns...)
	c.Skipped = append([]string(nil), b.Skipped...)
	if b.CompletedAt != nil {
		t := *b.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}
