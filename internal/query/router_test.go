package query

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/campaign-insights/backend/internal/dataset"
	"github.com/campaign-insights/backend/internal/models"
)

type fakeAnswerer struct {
	answer string
	err    error
	calls  int
}

func (f *fakeAnswerer) Answer(ctx context.Context, ds *models.Dataset, prompt string) (string, error) {
	f.calls++
	return f.answer, f.err
}

type fakeVisualizer struct {
	image string
	err   error
	calls int
}

func (f *fakeVisualizer) Visualize(ctx context.Context, src dataset.Source, prompt string) (string, error) {
	f.calls++
	return f.image, f.err
}

func TestRouter_Route(t *testing.T) {
	src := dataset.NewStaticSource(campaigns(), dataset.DuckOptions{})
	defer src.Close()

	t.Run("data question goes to the agent", func(t *testing.T) {
		ans := &fakeAnswerer{answer: "60.5"}
		vis := &fakeVisualizer{}
		r := NewRouter(NewKeywordClassifier(nil), ans, vis, zap.NewNop())

		resp, err := r.Route(context.Background(), src, "Show total cost")
		require.NoError(t, err)
		assert.Equal(t, &models.QueryResponse{Response: "60.5"}, resp)
		assert.Equal(t, 1, ans.calls)
		assert.Equal(t, 0, vis.calls)
	})

	t.Run("visualization returns the image", func(t *testing.T) {
		ans := &fakeAnswerer{}
		vis := &fakeVisualizer{image: "iVBORw0KGgo="}
		r := NewRouter(NewKeywordClassifier(nil), ans, vis, zap.NewNop())

		resp, err := r.Route(context.Background(), src, "Plot impressions over time")
		require.NoError(t, err)
		assert.Equal(t, models.VisualizationStatus, resp.Response)
		assert.Equal(t, "iVBORw0KGgo=", resp.Image)
		assert.Equal(t, 0, ans.calls)
	})

	t.Run("errors propagate", func(t *testing.T) {
		boom := errors.New("boom")
		r := NewRouter(NewKeywordClassifier(nil), &fakeAnswerer{err: boom}, &fakeVisualizer{err: boom}, zap.NewNop())

		_, err := r.Route(context.Background(), src, "Show total cost")
		assert.ErrorIs(t, err, boom)
		_, err = r.Route(context.Background(), src, "chart cost")
		assert.ErrorIs(t, err, boom)
	})
}

type fixedClassifier Intent

func (c fixedClassifier) Classify(string) Intent { return Intent(c) }

func TestRouter_UsesInjectedClassifier(t *testing.T) {
	src := dataset.NewStaticSource(campaigns(), dataset.DuckOptions{})
	vis := &fakeVisualizer{image: "x"}
	r := NewRouter(fixedClassifier(IntentVisualization), &fakeAnswerer{}, vis, zap.NewNop())

	resp, err := r.Route(context.Background(), src, "Show total cost")
	require.NoError(t, err)
	assert.Equal(t, "x", resp.Image)
}
