package dataset

import (
	"context"

	"github.com/campaign-insights/backend/internal/models"
)

// Source is a loaded dataset version that queries read from.
// session.Handle implements it.
type Source interface {
	Dataset() *models.Dataset
	Store(ctx context.Context) (*DuckStore, error)
}

// StaticSource serves a dataset that is not tracked by a session, opening
// its store on first use. Close releases the store.
type StaticSource struct {
	ds    *models.Dataset
	opts  DuckOptions
	store *DuckStore
}

// NewStaticSource wraps ds.
func NewStaticSource(ds *models.Dataset, opts DuckOptions) *StaticSource {
	return &StaticSource{ds: ds, opts: opts}
}

func (s *StaticSource) Dataset() *models.Dataset {
	return s.ds
}

func (s *StaticSource) Store(ctx context.Context) (*DuckStore, error) {
	if s.store == nil {
		store, err := NewDuckStore(ctx, s.ds, s.opts, nil)
		if err != nil {
			return nil, err
		}
		s.store = store
	}
	return s.store, nil
}

func (s *StaticSource) Close() error {
	if s.store == nil {
		return nil
	}
	err := s.store.Close()
	s.store = nil
	return err
}
