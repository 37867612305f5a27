package dataset

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/campaign-insights/backend/internal/models"
	"github.com/campaign-insights/backend/internal/parser"
	"github.com/campaign-insights/backend/internal/storage"
)

type fixture struct {
	dir       string
	artifacts *ArtifactStore
	merger    *Merger
	reader    *Reader
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	blobs, err := storage.NewLocalBlobStore(filepath.Join(dir, "runtime"))
	require.NoError(t, err)

	logger := zaptest.NewLogger(t)
	artifacts := NewArtifactStore(blobs, "concatenated_file.xlsx", dir)
	return &fixture{
		dir:       dir,
		artifacts: artifacts,
		merger:    NewMerger(parser.NewRegistry(), artifacts, logger, 3),
		reader:    NewReader(artifacts, logger),
	}
}

func (f *fixture) upload(t *testing.T, name, content string) *models.FileInfo {
	t.Helper()
	path := filepath.Join(f.dir, fmt.Sprintf("upload_%s", name))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return &models.FileInfo{ID: name, Name: name, Path: path, Format: models.FormatFromName(name)}
}

func (f *fixture) artifactPath() string {
	return f.artifacts.Location()
}

func writeFile(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(content), 0644)
}
