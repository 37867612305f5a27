package chart

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/campaign-insights/backend/internal/dataset"
	"github.com/campaign-insights/backend/internal/llm"
)

const systemPrompt = "You are a data visualization assistant. Always refer to the dataset by the name 'data'. " +
	"Reply with a single JSON chart specification and no explanations or comments."

const userPromptTemplate = `Here is a sample of the dataset:
%s

Column types: %s

Describe the following visualization as a JSON object with these fields:
  "chart_type": one of "line", "bar", "scatter", "pie"
  "title": chart title
  "x": the column for the x axis (or pie labels)
  "y": a list of numeric columns to plot (a single column for bar, scatter and pie)
  "aggregate": one of "none", "sum", "avg", "count", "min", "max", applied to y grouped by x
  "x_is_date": true when x holds dates; dates are normalized to one consistent format, so day and month are never mixed up
  "sort": one of "x", "y_asc", "y_desc" (optional)
  "limit": maximum number of points or bars (optional)
  "x_label", "y_label": axis labels (optional)
Use only column names from the sample, exactly as written.

Visualization: %s`

// Generator produces base64 PNG charts for prompts.
type Generator struct {
	completer   llm.Completer
	renderer    *Renderer
	temperature float32
	sampleRows  int
	maxPoints   int
	logger      *zap.Logger
}

// Options tunes the generator.
type Options struct {
	Temperature float32
	SampleRows  int
	MaxPoints   int
}

// NewGenerator creates a generator.
func NewGenerator(completer llm.Completer, renderer *Renderer, opts Options, logger *zap.Logger) *Generator {
	if opts.SampleRows <= 0 {
		opts.SampleRows = 5
	}
	if opts.MaxPoints <= 0 {
		opts.MaxPoints = 500
	}
	return &Generator{
		completer:   completer,
		renderer:    renderer,
		temperature: opts.Temperature,
		sampleRows:  opts.SampleRows,
		maxPoints:   opts.MaxPoints,
		logger:      logger.Named("chart"),
	}
}

// Visualize asks the model for a chart spec, validates it, computes the
// series over the full dataset and returns the rendered PNG base64 encoded.
func (g *Generator) Visualize(ctx context.Context, src dataset.Source, prompt string) (string, error) {
	log := g.logger.With(zap.String("prompt", prompt))
	start := time.Now()

	store, err := src.Store(ctx)
	if err != nil {
		return "", g.fail(log, "opening dataset store", err)
	}

	sample := src.Dataset().Head(g.sampleRows).String()
	reply, err := g.completer.Complete(ctx, llm.Request{
		System:      systemPrompt,
		User:        fmt.Sprintf(userPromptTemplate, sample, describeColumns(store.Columns()), prompt),
		Temperature: g.temperature,
	})
	if err != nil {
		return "", g.fail(log, "chart spec generation failed", err)
	}

	spec, err := ParseSpec(reply)
	if err != nil {
		log.Debug("unparseable chart spec", zap.String("reply", reply))
		return "", g.fail(log, "chart spec rejected", err)
	}
	if err := spec.Validate(store.Columns()); err != nil {
		return "", g.fail(log, "chart spec rejected", err)
	}

	series, err := BuildSeries(ctx, store, spec, g.maxPoints)
	if err != nil {
		return "", g.fail(log, "computing chart series", err)
	}
	if series.Total > series.Len() {
		log.Info("chart points reduced",
			zap.Int("total", series.Total),
			zap.Int("plotted", series.Len()))
	}
	png, err := g.renderer.Render(spec, series)
	if err != nil {
		return "", g.fail(log, "rendering chart", err)
	}

	log.Info("chart rendered",
		zap.String("type", string(spec.Type)),
		zap.String("x", spec.X),
		zap.Strings("y", spec.Y),
		zap.Int("points", series.Len()),
		zap.Duration("elapsed", time.Since(start)))
	return base64.StdEncoding.EncodeToString(png), nil
}

func (g *Generator) fail(log *zap.Logger, msg string, err error) error {
	log.Error(msg, zap.Error(err))
	return fmt.Errorf("%w: %w", ErrVisualizationFailed, err)
}

func describeColumns(cols []dataset.ColumnInfo) string {
	parts := make([]string, len(cols))
	for i, c := range cols {
		parts[i] = fmt.Sprintf("%s (%s)", c.Name, c.Type)
	}
	return strings.Join(parts, ", ")
}
