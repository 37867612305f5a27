package dataset

import (
	"context"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/campaign-insights/backend/internal/models"
	"github.com/campaign-insights/backend/internal/parser"
	"github.com/campaign-insights/backend/internal/storage"
)

const artifactSheet = "Sheet1"

// WriteWorkbook writes ds as a single-sheet workbook with a header row.
// Cells that are plain numbers are stored as numbers, everything else as text.
func WriteWorkbook(path string, ds *models.Dataset) error {
	f := excelize.NewFile()
	defer f.Close()

	sw, err := f.NewStreamWriter(artifactSheet)
	if err != nil {
		return fmt.Errorf("creating stream writer: %w", err)
	}

	header := make([]interface{}, len(ds.Columns))
	for i, c := range ds.Columns {
		header[i] = c
	}
	if err := sw.SetRow("A1", header); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	for r, row := range ds.Rows {
		cells := make([]interface{}, len(row))
		for i, v := range row {
			cells[i] = cellValue(v)
		}
		cell, err := excelize.CoordinatesToCellName(1, r+2)
		if err != nil {
			return err
		}
		if err := sw.SetRow(cell, cells); err != nil {
			return fmt.Errorf("writing row %d: %w", r+1, err)
		}
	}

	if err := sw.Flush(); err != nil {
		return fmt.Errorf("flushing workbook: %w", err)
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("saving workbook: %w", err)
	}
	return nil
}

// ReadWorkbook reads an artifact written by WriteWorkbook.
func ReadWorkbook(path string) (*models.Dataset, error) {
	return parser.NewXLSXParser().Parse(path)
}

// cellValue keeps values that survive a float64 round trip with at most 15
// significant digits as numbers, so the workbook stays numeric for
// spreadsheet users without changing any cell text.
func cellValue(s string) interface{} {
	if s == "" || strings.TrimSpace(s) != s {
		return s
	}
	v, ok := parser.ParseFloat(s)
	if !ok || math.Abs(v) >= 1e15 {
		return s
	}
	if strconv.FormatFloat(v, 'f', -1, 64) != s {
		return s
	}
	digits := strings.TrimLeft(strings.NewReplacer("-", "", ".", "").Replace(s), "0")
	if len(digits) > 15 {
		return s
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	return v
}

// ArtifactStore persists the merged dataset under a fixed key.
type ArtifactStore struct {
	blobs   storage.BlobStore
	key     string
	tempDir string
}

// NewArtifactStore stages workbooks in tempDir before handing them to blobs.
func NewArtifactStore(blobs storage.BlobStore, key, tempDir string) *ArtifactStore {
	return &ArtifactStore{blobs: blobs, key: key, tempDir: tempDir}
}

// Location returns where the artifact lives.
func (a *ArtifactStore) Location() string {
	return a.blobs.Location(a.key)
}

// Save overwrites the artifact with ds.
func (a *ArtifactStore) Save(ctx context.Context, ds *models.Dataset) (*storage.BlobObjectInfo, error) {
	tmp, err := os.CreateTemp(a.tempDir, "artifact-*.xlsx")
	if err != nil {
		return nil, fmt.Errorf("creating staging file: %w", err)
	}
	tmpName := tmp.Name()
	tmp.Close()
	defer os.Remove(tmpName)

	if err := WriteWorkbook(tmpName, ds); err != nil {
		return nil, err
	}

	info, err := a.blobs.Upload(ctx, a.key, tmpName)
	if err != nil {
		return nil, fmt.Errorf("uploading artifact: %w", err)
	}
	return info, nil
}

// Load returns the persisted dataset and its version.
func (a *ArtifactStore) Load(ctx context.Context) (*models.Dataset, string, error) {
	head, err := a.blobs.Head(ctx, a.key)
	if err != nil {
		return nil, "", err
	}

	tmp, err := os.CreateTemp(a.tempDir, "download-*.xlsx")
	if err != nil {
		return nil, "", fmt.Errorf("creating download file: %w", err)
	}
	tmpName := tmp.Name()
	tmp.Close()
	defer os.Remove(tmpName)

	if err := a.blobs.Download(ctx, a.key, tmpName); err != nil {
		return nil, "", err
	}

	ds, err := ReadWorkbook(tmpName)
	if err != nil {
		return nil, "", fmt.Errorf("reading artifact: %w", err)
	}
	return ds, head.Version, nil
}

// Version returns the artifact version.
func (a *ArtifactStore) Version(ctx context.Context) (string, error) {
	head, err := a.blobs.Head(ctx, a.key)
	if err != nil {
		return "", err
	}
	return head.Version, nil
}
