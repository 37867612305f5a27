package query

import (
	"context"

	"go.uber.org/zap"

	"github.com/campaign-insights/backend/internal/dataset"
	"github.com/campaign-insights/backend/internal/models"
)

// Answerer answers a data question over a dataset.
type Answerer interface {
	Answer(ctx context.Context, ds *models.Dataset, prompt string) (string, error)
}

// Visualizer renders a chart for a prompt as a base64 PNG.
type Visualizer interface {
	Visualize(ctx context.Context, src dataset.Source, prompt string) (string, error)
}

// Router dispatches prompts by intent.
type Router struct {
	classifier Classifier
	answerer   Answerer
	visualizer Visualizer
	logger     *zap.Logger
}

// NewRouter creates a router.
func NewRouter(classifier Classifier, answerer Answerer, visualizer Visualizer, logger *zap.Logger) *Router {
	return &Router{
		classifier: classifier,
		answerer:   answerer,
		visualizer: visualizer,
		logger:     logger.Named("router"),
	}
}

// Route answers prompt against src.
func (r *Router) Route(ctx context.Context, src dataset.Source, prompt string) (*models.QueryResponse, error) {
	intent := r.classifier.Classify(prompt)
	r.logger.Debug("classified prompt", zap.String("prompt", prompt), zap.String("intent", string(intent)))

	if intent == IntentVisualization {
		image, err := r.visualizer.Visualize(ctx, src, prompt)
		if err != nil {
			return nil, err
		}
		r.logger.Info("visualization generated", zap.String("prompt", prompt))
		return &models.QueryResponse{Response: models.VisualizationStatus, Image: image}, nil
	}

	answer, err := r.answerer.Answer(ctx, src.Dataset(), prompt)
	if err != nil {
		return nil, err
	}
	r.logger.Info("query handled", zap.String("prompt", prompt))
	return &models.QueryResponse{Response: answer}, nil
}
