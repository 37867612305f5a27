// manager_test.go - Tests for storage layer
package storage

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/campaign-insights/backend/internal/models"
)

func createTestStore(t *testing.T) *LocalStore {
	t.Helper()
	store, err := NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	return store
}

func TestNewLocalStore(t *testing.T) {
	t.Run("creates upload directory", func(t *testing.T) {
		uploadDir := filepath.Join(t.TempDir(), "uploads")

		if _, err := NewLocalStore(uploadDir); err != nil {
			t.Fatalf("Failed to create store: %v", err)
		}

		if _, err := os.Stat(uploadDir); os.IsNotExist(err) {
			t.Error("Expected upload directory to be created")
		}
	})
}

func TestLocalStore_Save(t *testing.T) {
	t.Run("saves file from reader", func(t *testing.T) {
		store := createTestStore(t)

		content := "Campaign,Clicks\nA,1\n"
		info, err := store.Save("spend.csv", strings.NewReader(content))
		if err != nil {
			t.Fatalf("Failed to save file: %v", err)
		}

		if info.ID == "" {
			t.Error("Expected ID to be set")
		}
		if info.Name != "spend.csv" {
			t.Errorf("Expected name 'spend.csv', got %v", info.Name)
		}
		if info.Format != models.FormatCSV {
			t.Errorf("Expected format csv, got %v", info.Format)
		}
		if info.Size != int64(len(content)) {
			t.Errorf("Expected size %d, got %d", len(content), info.Size)
		}
		if filepath.Ext(info.Path) != ".csv" {
			t.Errorf("Expected stored path to keep extension, got %s", info.Path)
		}

		data, err := os.ReadFile(info.Path)
		if err != nil {
			t.Fatalf("Failed to read saved file: %v", err)
		}
		if string(data) != content {
			t.Errorf("Expected content '%s', got '%s'", content, string(data))
		}
	})

	t.Run("strips directories from client names", func(t *testing.T) {
		store := createTestStore(t)

		info, err := store.Save("../../etc/passwd.csv", strings.NewReader("x"))
		if err != nil {
			t.Fatalf("Failed to save file: %v", err)
		}
		if filepath.Dir(info.Path) != store.uploadDir {
			t.Errorf("Expected file inside %s, got %s", store.uploadDir, info.Path)
		}
	})
}

func TestLocalStore_Delete(t *testing.T) {
	t.Run("removes file and metadata", func(t *testing.T) {
		store := createTestStore(t)
		info, _ := store.Save("a.csv", strings.NewReader("x"))

		if err := store.Delete(info.ID); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if _, err := os.Stat(info.Path); !os.IsNotExist(err) {
			t.Error("Expected file to be removed from disk")
		}
		if err := store.Delete(info.ID); err == nil {
			t.Error("Expected metadata to be removed")
		}
	})

	t.Run("file already removed from disk", func(t *testing.T) {
		store := createTestStore(t)
		info, _ := store.Save("a.csv", strings.NewReader("x"))
		os.Remove(info.Path)

		if err := store.Delete(info.ID); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
	})

	t.Run("unknown id", func(t *testing.T) {
		store := createTestStore(t)
		if err := store.Delete("missing"); err == nil {
			t.Error("Expected error for unknown id")
		}
	})
}
