// Package session owns the current dataset handle shared by queries.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/campaign-insights/backend/internal/dataset"
	"github.com/campaign-insights/backend/internal/models"
)

// ErrNoDataset is returned when no merged dataset has been persisted.
var ErrNoDataset = errors.New("no concatenated file found")

// Loader reads the persisted dataset. dataset.Reader implements it.
type Loader interface {
	LoadVersion(ctx context.Context) (*models.Dataset, string)
	Version(ctx context.Context) string
}

// Handle is an immutable view of one dataset version. Holders must call
// Release when done; the DuckDB store of a replaced handle is closed once
// its last holder releases it.
type Handle struct {
	ID       string
	Version  string
	LoadedAt time.Time

	ds  *models.Dataset
	mgr *Manager

	// guarded by mgr.mu
	refs    int
	retired bool

	mu       sync.Mutex
	store    *dataset.DuckStore
	lastUsed time.Time
}

// Dataset returns the handle's rows. Callers must not modify them.
func (h *Handle) Dataset() *models.Dataset {
	return h.ds
}

// Store returns the handle's DuckDB store, opening it on first use.
func (h *Handle) Store(ctx context.Context) (*dataset.DuckStore, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.lastUsed = time.Now()
	if h.store != nil {
		return h.store, nil
	}

	store, err := dataset.NewDuckStore(ctx, h.ds, h.mgr.duckOpts, h.mgr.logger)
	if err != nil {
		return nil, err
	}
	h.store = store
	h.mgr.logger.Debug("opened dataset store", zap.String("handle", h.ID), zap.String("version", h.Version))
	return store, nil
}

// Release drops the caller's reference.
func (h *Handle) Release() {
	h.mgr.release(h)
}

func (h *Handle) closeStore() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.store != nil {
		if err := h.store.Close(); err != nil {
			h.mgr.logger.Warn("closing dataset store", zap.String("handle", h.ID), zap.Error(err))
		}
		h.store = nil
	}
}

func (h *Handle) idleSince() (time.Time, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastUsed, h.store != nil
}

// Manager tracks the current dataset handle.
type Manager struct {
	mu       sync.Mutex
	current  *Handle
	loader   Loader
	duckOpts dataset.DuckOptions
	logger   *zap.Logger
}

// NewManager creates a manager reading datasets through loader.
func NewManager(loader Loader, duckOpts dataset.DuckOptions, logger *zap.Logger) *Manager {
	return &Manager{
		loader:   loader,
		duckOpts: duckOpts,
		logger:   logger.Named("session"),
	}
}

// Acquire returns a referenced handle for the current dataset, reloading it
// when the persisted artifact changed. Returns ErrNoDataset if none exists.
func (m *Manager) Acquire(ctx context.Context) (*Handle, error) {
	version := m.loader.Version(ctx)
	if version == "" {
		m.mu.Lock()
		m.replaceLocked(nil)
		m.mu.Unlock()
		return nil, ErrNoDataset
	}

	m.mu.Lock()
	if h := m.current; h != nil && h.Version == version {
		h.refs++
		m.mu.Unlock()
		return h, nil
	}
	m.mu.Unlock()

	ds, loaded := m.loader.LoadVersion(ctx)
	if ds == nil {
		return nil, ErrNoDataset
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if h := m.current; h != nil && h.Version == loaded {
		h.refs++
		return h, nil
	}
	h := m.newHandle(ds, loaded)
	m.replaceLocked(h)
	h.refs++
	m.logger.Info("dataset loaded", zap.String("handle", h.ID), zap.String("version", loaded), zap.Int("rows", ds.RowCount()))
	return h, nil
}

// Publish installs a freshly merged dataset as the current handle.
func (m *Manager) Publish(ds *models.Dataset, version string) *Handle {
	m.mu.Lock()
	defer m.mu.Unlock()
	h := m.newHandle(ds, version)
	m.replaceLocked(h)
	m.logger.Info("dataset published", zap.String("handle", h.ID), zap.String("version", version), zap.Int("rows", ds.RowCount()))
	return h
}

// Current returns the current handle without taking a reference, or nil.
func (m *Manager) Current() *Handle {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// CloseIdleStores closes the DuckDB store of an unreferenced current handle
// that has not been used for maxIdle. It is reopened on demand.
func (m *Manager) CloseIdleStores(maxIdle time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	h := m.current
	if h == nil || h.refs > 0 {
		return
	}
	lastUsed, open := h.idleSince()
	if open && time.Since(lastUsed) > maxIdle {
		h.closeStore()
		m.logger.Debug("closed idle dataset store", zap.String("handle", h.ID))
	}
}

// Close retires the current handle.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replaceLocked(nil)
}

func (m *Manager) newHandle(ds *models.Dataset, version string) *Handle {
	return &Handle{
		ID:       uuid.New().String(),
		Version:  version,
		LoadedAt: time.Now(),
		ds:       ds,
		mgr:      m,
	}
}

func (m *Manager) replaceLocked(next *Handle) {
	prev := m.current
	m.current = next
	if prev == nil || prev == next {
		return
	}
	prev.retired = true
	if prev.refs == 0 {
		prev.closeStore()
	}
}

func (m *Manager) release(h *Handle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if h.refs > 0 {
		h.refs--
	}
	if h.retired && h.refs == 0 {
		h.closeStore()
	}
}
