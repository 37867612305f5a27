package query

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	"github.com/campaign-insights/backend/internal/dataset"
)

const (
	describeToolName = "describe_data"
	runSQLToolName   = "run_sql"
)

// describeDataTool reports the schema, size and a sample of table data.
type describeDataTool struct {
	store      *dataset.DuckStore
	sampleRows int
}

type describeOutput struct {
	Table    string               `json:"table"`
	RowCount int                  `json:"row_count"`
	Columns  []dataset.ColumnInfo `json:"columns"`
	Sample   *dataset.QueryResult `json:"sample"`
}

func (t *describeDataTool) Info(ctx context.Context) (*schema.ToolInfo, error) {
	return &schema.ToolInfo{
		Name:        describeToolName,
		Desc:        fmt.Sprintf("Describe the table %q: column names and types, the number of rows and the first %d rows.", dataset.TableName, t.sampleRows),
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{}),
	}, nil
}

func (t *describeDataTool) InvokableRun(ctx context.Context, argumentsInJSON string, opts ...tool.Option) (string, error) {
	sample, err := t.store.Query(ctx, "SELECT * FROM "+dataset.TableName, t.sampleRows)
	if err != nil {
		return "", fmt.Errorf("sample rows: %w", err)
	}
	out, err := json.Marshal(describeOutput{
		Table:    dataset.TableName,
		RowCount: t.store.RowCount(),
		Columns:  t.store.Columns(),
		Sample:   sample,
	})
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// runSQLTool executes a read-only query against table data.
type runSQLTool struct {
	store   *dataset.DuckStore
	maxRows int
}

type runSQLInput struct {
	Query string `json:"query"`
}

func (t *runSQLTool) Info(ctx context.Context) (*schema.ToolInfo, error) {
	return &schema.ToolInfo{
		Name: runSQLToolName,
		Desc: fmt.Sprintf("Run one read-only DuckDB SQL SELECT statement against the table %q and return the result as JSON. "+
			"Quote column names with double quotes. At most %d rows are returned; aggregate in SQL instead of listing rows.", dataset.TableName, t.maxRows),
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"query": {
				Type:     schema.String,
				Desc:     fmt.Sprintf(`The SQL query, e.g. SELECT "Campaign", SUM("Cost") FROM %s GROUP BY 1`, dataset.TableName),
				Required: true,
			},
		}),
	}, nil
}

// InvokableRun reports SQL errors back to the model as the tool result so it
// can correct the query.
func (t *runSQLTool) InvokableRun(ctx context.Context, argumentsInJSON string, opts ...tool.Option) (string, error) {
	var in runSQLInput
	if err := json.Unmarshal([]byte(argumentsInJSON), &in); err != nil {
		return fmt.Sprintf("invalid arguments: %v", err), nil
	}
	if strings.TrimSpace(in.Query) == "" {
		return "invalid arguments: query is required", nil
	}

	result, err := t.store.Query(ctx, in.Query, t.maxRows)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return fmt.Sprintf("query failed: %v", err), nil
	}
	out, err := json.Marshal(result)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

var (
	_ tool.InvokableTool = (*describeDataTool)(nil)
	_ tool.InvokableTool = (*runSQLTool)(nil)
)
