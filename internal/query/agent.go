package query

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/flow/agent"
	"github.com/cloudwego/eino/flow/agent/react"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"

	"github.com/campaign-insights/backend/internal/dataset"
	"github.com/campaign-insights/backend/internal/models"
)

// CannotAnswer is returned when no dataset column relates to the prompt.
const CannotAnswer = "I'm sorry, I can't answer that question based on the data you provided."

// ErrLLMQueryFailed wraps any failure of the tabular agent.
var ErrLLMQueryFailed = errors.New("LLM query failed")

const agentSystemPrompt = `You are a data analyst answering questions about a single table named "data".
Use the describe_data tool to learn the columns and see sample rows, then use run_sql to compute the answer with DuckDB SQL.
Always compute numbers with SQL over the whole table instead of estimating from the sample.
Answer the question directly and concisely in plain text.`

// AgentOptions tunes the tabular agent.
type AgentOptions struct {
	MaxSteps      int
	SampleRows    int
	MaxResultRows int
	Temperature   float32
	Timeout       time.Duration
	DuckDB        dataset.DuckOptions
}

// TabularAgent answers data questions by narrowing the dataset to the
// relevant columns and letting a tool-calling model query it.
type TabularAgent struct {
	model    model.ToolCallingChatModel
	selector *ColumnSelector
	opts     AgentOptions
	logger   *zap.Logger
}

// NewTabularAgent creates an agent.
func NewTabularAgent(chatModel model.ToolCallingChatModel, selector *ColumnSelector, opts AgentOptions, logger *zap.Logger) *TabularAgent {
	if opts.MaxSteps <= 0 {
		opts.MaxSteps = 12
	}
	if opts.SampleRows <= 0 {
		opts.SampleRows = 5
	}
	if opts.MaxResultRows <= 0 {
		opts.MaxResultRows = 50
	}
	return &TabularAgent{
		model:    chatModel,
		selector: selector,
		opts:     opts,
		logger:   logger.Named("agent"),
	}
}

// Answer returns the agent's answer to prompt over ds. A prompt with no
// relevant columns gets CannotAnswer without further model calls.
func (a *TabularAgent) Answer(ctx context.Context, ds *models.Dataset, prompt string) (string, error) {
	if a.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.opts.Timeout)
		defer cancel()
	}
	log := a.logger.With(zap.String("prompt", prompt))

	columns, err := a.selector.Select(ctx, ds.Columns, prompt)
	if err != nil {
		log.Error("selecting relevant columns", zap.Error(err))
		return "", fmt.Errorf("%w: %w", ErrLLMQueryFailed, err)
	}
	if len(columns) == 0 {
		log.Warn("query out of context or no relevant columns identified")
		return CannotAnswer, nil
	}

	narrowed, err := ds.Select(columns)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrLLMQueryFailed, err)
	}
	store, err := dataset.NewDuckStore(ctx, narrowed, a.opts.DuckDB, a.logger)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrLLMQueryFailed, err)
	}
	defer store.Close()

	start := time.Now()
	answer, err := a.run(ctx, store, prompt)
	if err != nil {
		log.Error("agent query failed", zap.Strings("columns", columns), zap.Error(err))
		return "", fmt.Errorf("%w: %w", ErrLLMQueryFailed, err)
	}
	log.Info("agent answered",
		zap.Strings("columns", columns),
		zap.Int("rows", narrowed.RowCount()),
		zap.Duration("elapsed", time.Since(start)))
	return answer, nil
}

func (a *TabularAgent) run(ctx context.Context, store *dataset.DuckStore, prompt string) (string, error) {
	tools := []tool.BaseTool{
		&describeDataTool{store: store, sampleRows: a.opts.SampleRows},
		&runSQLTool{store: store, maxRows: a.opts.MaxResultRows},
	}

	rAgent, err := react.NewAgent(ctx, &react.AgentConfig{
		ToolCallingModel: a.model,
		ToolsConfig:      compose.ToolsNodeConfig{Tools: tools},
		MaxStep:          a.opts.MaxSteps,
	})
	if err != nil {
		return "", fmt.Errorf("failed to create agent: %w", err)
	}

	msg, err := rAgent.Generate(ctx,
		[]*schema.Message{
			schema.SystemMessage(agentSystemPrompt),
			schema.UserMessage(prompt),
		},
		agent.WithComposeOptions(compose.WithChatModelOption(model.WithTemperature(a.opts.Temperature))),
	)
	if err != nil {
		return "", err
	}
	if msg == nil || strings.TrimSpace(msg.Content) == "" {
		return "", errors.New("agent returned an empty answer")
	}
	return strings.TrimSpace(msg.Content), nil
}
