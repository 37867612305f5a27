package dataset

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/campaign-insights/backend/internal/models"
	"github.com/campaign-insights/backend/internal/parser"
)

// MergeResult describes a successful merge.
type MergeResult struct {
	Dataset    *models.Dataset
	Version    string
	OutputFile string
	Merged     []string // names of files that contributed rows
	Skipped    []string // names of files with unsupported extensions
}

// Merger validates a batch of uploaded files and concatenates them into the
// persisted dataset.
type Merger struct {
	registry    *parser.Registry
	artifacts   *ArtifactStore
	logger      *zap.Logger
	concurrency int
}

// NewMerger creates a merger parsing up to concurrency files at once.
func NewMerger(registry *parser.Registry, artifacts *ArtifactStore, logger *zap.Logger, concurrency int) *Merger {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Merger{
		registry:    registry,
		artifacts:   artifacts,
		logger:      logger.Named("merger"),
		concurrency: concurrency,
	}
}

type parsedFile struct {
	ds  *models.Dataset
	err error
	ok  bool // false when the format is unsupported
}

// Merge validates files in order and, when every file matches the schema of
// the first one and has no missing cells, overwrites the artifact with the
// concatenation and deletes the uploaded originals. Nothing is written on
// failure.
func (m *Merger) Merge(ctx context.Context, files []*models.FileInfo) (*MergeResult, error) {
	start := time.Now()
	parsed, err := m.parseAll(ctx, files)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProcessing, err)
	}

	result := &MergeResult{}
	var merged *models.Dataset
	for i, f := range files {
		p := parsed[i]
		if !p.ok {
			m.logger.Warn("skipping file with unsupported extension", zap.String("file", f.Name))
			result.Skipped = append(result.Skipped, f.Name)
			continue
		}
		if p.err != nil {
			m.logger.Warn("file could not be parsed", zap.String("file", f.Name), zap.Error(p.err))
			return nil, parseError(f.Name, p.err)
		}

		if merged == nil {
			merged = &models.Dataset{Columns: p.ds.Columns, Rows: make([][]string, 0, p.ds.RowCount())}
		} else if !merged.SameColumns(p.ds.Columns) {
			m.logger.Warn("file has a different structure",
				zap.String("file", f.Name),
				zap.Strings("expected", merged.Columns),
				zap.Strings("got", p.ds.Columns))
			return nil, structureError(f.Name)
		}

		if row, col, found := p.ds.FirstMissing(); found {
			m.logger.Warn("file contains empty values",
				zap.String("file", f.Name), zap.Int("row", row+1), zap.Int("column", col+1))
			return nil, emptyValuesError(f.Name)
		}

		merged.Rows = append(merged.Rows, p.ds.Rows...)
		result.Merged = append(result.Merged, f.Name)
	}

	if merged == nil {
		return nil, errNoSupportedFiles
	}
	if _, _, found := merged.FirstMissing(); found {
		m.logger.Error("empty values found in the concatenated dataframe")
		return nil, errConcatenatedEmpty
	}

	info, err := m.artifacts.Save(ctx, merged)
	if err != nil {
		m.logger.Error("writing concatenated file", zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrProcessing, err)
	}

	for _, f := range files {
		if err := os.Remove(f.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			m.logger.Warn("removing uploaded file", zap.String("file", f.Name), zap.Error(err))
		}
	}

	result.Dataset = merged
	result.Version = info.Version
	result.OutputFile = m.artifacts.Location()

	m.logger.Info("files concatenated",
		zap.Int("files", len(result.Merged)),
		zap.Int("rows", merged.RowCount()),
		zap.Int("columns", len(merged.Columns)),
		zap.Duration("elapsed", time.Since(start)))
	return result, nil
}

// parseAll parses supported files concurrently. Per-file parse errors are
// kept in the result so validation can report them in input order.
func (m *Merger) parseAll(ctx context.Context, files []*models.FileInfo) ([]parsedFile, error) {
	parsed := make([]parsedFile, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.concurrency)
	for i, f := range files {
		p, err := m.registry.FindParser(f.Name)
		if err != nil {
			continue
		}
		parsed[i].ok = true
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			defer func() {
				if r := recover(); r != nil {
					m.logger.Error("parser panic", zap.String("file", f.Name), zap.Any("panic", r))
					parsed[i].ds, parsed[i].err = nil, fmt.Errorf("parser failed: %v", r)
				}
			}()
			ds, err := p.Parse(f.Path)
			parsed[i].ds, parsed[i].err = ds, err
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return parsed, nil
}
