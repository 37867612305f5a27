package query

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/campaign-insights/backend/internal/llm"
)

// ErrUnknownColumns is returned when the model names columns the dataset
// does not have.
var ErrUnknownColumns = errors.New("unknown columns")

const columnPromptTemplate = `Here's the df.columns: %s.

My query is: %s.

If the query is out of context for the DataFrame, return ''.
Based on the query, identify all the columns related to the query's context.
If the query is about something like 'total cost' or 'average impressions' for a particular entity,
return the entity identifier columns (like campaign_name, campaign_id) and the associated measure columns (like cost, impressions).
Only return a comma-separated list of column names that exactly match those from df.columns, case-sensitive.

Better to include all possible relevant columns than to miss some.`

// ColumnSelector asks the model which columns a prompt needs.
type ColumnSelector struct {
	completer   llm.Completer
	temperature float32
	logger      *zap.Logger
}

// NewColumnSelector creates a selector.
func NewColumnSelector(completer llm.Completer, temperature float32, logger *zap.Logger) *ColumnSelector {
	return &ColumnSelector{completer: completer, temperature: temperature, logger: logger.Named("columns")}
}

// Select returns the dataset columns relevant to prompt, in the order the
// model named them. An empty result means the prompt is out of context.
func (s *ColumnSelector) Select(ctx context.Context, columns []string, prompt string) ([]string, error) {
	reply, err := s.completer.Complete(ctx, llm.Request{
		User:        fmt.Sprintf(columnPromptTemplate, formatColumnList(columns), prompt),
		Temperature: s.temperature,
	})
	if err != nil {
		return nil, err
	}

	requested := ParseColumnList(reply)
	s.logger.Debug("relevant columns", zap.String("prompt", prompt), zap.Strings("columns", requested))
	if len(requested) == 0 {
		return nil, nil
	}
	return ResolveColumns(columns, requested)
}

// ParseColumnList splits a comma-separated model reply into names. Quotes,
// brackets and blank entries are dropped, so an empty quoted reply yields nil.
func ParseColumnList(reply string) []string {
	reply = strings.TrimSpace(reply)
	reply = strings.Trim(reply, "[]")
	var out []string
	for _, part := range strings.Split(reply, ",") {
		name := strings.TrimSpace(part)
		name = strings.Trim(name, "'\"`")
		name = strings.TrimSpace(name)
		if name != "" {
			out = append(out, name)
		}
	}
	return out
}

// ResolveColumns maps requested names onto available ones: exact matches
// first, then a unique case-insensitive match. Duplicates are dropped.
// Names that match nothing fail with ErrUnknownColumns.
func ResolveColumns(available, requested []string) ([]string, error) {
	exact := make(map[string]bool, len(available))
	folded := make(map[string][]string, len(available))
	for _, c := range available {
		exact[c] = true
		key := strings.ToLower(c)
		folded[key] = append(folded[key], c)
	}

	seen := make(map[string]bool, len(requested))
	var resolved, unknown []string
	for _, name := range requested {
		match := ""
		if exact[name] {
			match = name
		} else if candidates := folded[strings.ToLower(name)]; len(candidates) == 1 {
			match = candidates[0]
		}
		if match == "" {
			unknown = append(unknown, name)
			continue
		}
		if !seen[match] {
			seen[match] = true
			resolved = append(resolved, match)
		}
	}
	if len(unknown) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownColumns, strings.Join(unknown, ", "))
	}
	return resolved, nil
}

func formatColumnList(columns []string) string {
	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = "'" + strings.ReplaceAll(c, "'", `\'`) + "'"
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}
