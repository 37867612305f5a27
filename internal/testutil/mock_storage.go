// mock_storage.go - Mock storage implementation for testing
package testutil

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/campaign-insights/backend/internal/models"
	"github.com/campaign-insights/backend/internal/storage"
)

// MockStorage implements storage.Store for testing. Saved files are written
// to a temp directory so parsers can read them.
type MockStorage struct {
	mu      sync.RWMutex
	dir     string
	files   map[string]*models.FileInfo
	SaveErr error
	saves   int
	deletes int
}

// NewMockStorage creates a new mock storage writing into dir
func NewMockStorage(dir string) *MockStorage {
	return &MockStorage{
		dir:   dir,
		files: make(map[string]*models.FileInfo),
	}
}

func (m *MockStorage) Save(name string, r io.Reader) (*models.FileInfo, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return m.SaveBytes(name, data)
}

func (m *MockStorage) SaveBytes(name string, data []byte) (*models.FileInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.SaveErr != nil {
		return nil, m.SaveErr
	}

	id := generateTestID()
	path := filepath.Join(m.dir, id+"_"+filepath.Base(name))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return nil, err
	}

	file := &models.FileInfo{
		ID:         id,
		Name:       name,
		Path:       path,
		Format:     models.FormatFromName(name),
		Size:       int64(len(data)),
		UploadedAt: time.Now(),
	}

	m.files[id] = file
	m.saves++
	return file, nil
}

func (m *MockStorage) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	file, exists := m.files[id]
	if !exists {
		return errors.New("file not found")
	}

	_ = os.Remove(file.Path)
	delete(m.files, id)
	m.deletes++
	return nil
}

// Ensure MockStorage implements storage.Store
var _ storage.Store = (*MockStorage)(nil)

// Test Helper Methods

// SaveCount returns how many files were saved
func (m *MockStorage) SaveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.saves
}

// DeleteCount returns how many files were deleted
func (m *MockStorage) DeleteCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.deletes
}

// GetFileCount returns the number of stored files
func (m *MockStorage) GetFileCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.files)
}

// generateTestID generates a simple test ID
var testIDCounter int
var testIDMutex sync.Mutex

func generateTestID() string {
	testIDMutex.Lock()
	defer testIDMutex.Unlock()
	testIDCounter++
	return fmt.Sprintf("test-id-%d", testIDCounter)
}
