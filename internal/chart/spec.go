// Package chart turns a prompt into a declarative chart spec, computes the
// series with DuckDB and renders them to PNG.
package chart

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/campaign-insights/backend/internal/dataset"
)

// ErrVisualizationFailed wraps every failure of the visualization path.
var ErrVisualizationFailed = errors.New("visualization failed")

// ErrInvalidSpec is returned for specs outside the allow-list.
var ErrInvalidSpec = errors.New("invalid chart spec")

// Type is a chart kind.
type Type string

const (
	TypeLine    Type = "line"
	TypeBar     Type = "bar"
	TypeScatter Type = "scatter"
	TypePie     Type = "pie"
)

// Aggregate is applied to the measures grouped by X.
type Aggregate string

const (
	AggregateNone  Aggregate = "none"
	AggregateSum   Aggregate = "sum"
	AggregateAvg   Aggregate = "avg"
	AggregateCount Aggregate = "count"
	AggregateMin   Aggregate = "min"
	AggregateMax   Aggregate = "max"
)

const maxLineSeries = 5

var (
	allowedTypes      = map[Type]bool{TypeLine: true, TypeBar: true, TypeScatter: true, TypePie: true}
	allowedAggregates = map[Aggregate]bool{
		AggregateNone: true, AggregateSum: true, AggregateAvg: true,
		AggregateCount: true, AggregateMin: true, AggregateMax: true,
	}
	allowedSorts = map[string]bool{"": true, "x": true, "y_asc": true, "y_desc": true}
)

// Spec describes a chart over table data. It is produced by the model and
// validated before any query runs.
type Spec struct {
	Type      Type       `json:"chart_type"`
	Title     string     `json:"title"`
	X         string     `json:"x"`
	Y         columnList `json:"y"`
	Aggregate Aggregate  `json:"aggregate"`
	XIsDate   bool       `json:"x_is_date"`
	Sort      string     `json:"sort"`
	Limit     int        `json:"limit"`
	XLabel    string     `json:"x_label"`
	YLabel    string     `json:"y_label"`
}

// columnList accepts a single name or an array of names.
type columnList []string

func (c *columnList) UnmarshalJSON(data []byte) error {
	var one string
	if err := json.Unmarshal(data, &one); err == nil {
		if one == "" {
			*c = nil
		} else {
			*c = columnList{one}
		}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("y must be a column name or a list of column names")
	}
	*c = many
	return nil
}

// StripCodeFences removes markdown code fences around a model reply.
func StripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		if nl := strings.IndexByte(s, '\n'); nl >= 0 {
			s = s[nl+1:]
		} else {
			s = strings.TrimPrefix(s, "```")
		}
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// ParseSpec decodes a model reply into a Spec. Text around the JSON object
// is ignored.
func ParseSpec(reply string) (*Spec, error) {
	body := StripCodeFences(reply)
	start := strings.IndexByte(body, '{')
	end := strings.LastIndexByte(body, '}')
	if start < 0 || end < start {
		return nil, fmt.Errorf("%w: no JSON object in reply", ErrInvalidSpec)
	}

	var spec Spec
	if err := json.Unmarshal([]byte(body[start:end+1]), &spec); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSpec, err)
	}
	spec.normalize()
	return &spec, nil
}

func (s *Spec) normalize() {
	s.Type = Type(strings.ToLower(strings.TrimSpace(string(s.Type))))
	s.Aggregate = Aggregate(strings.ToLower(strings.TrimSpace(string(s.Aggregate))))
	switch s.Aggregate {
	case "":
		s.Aggregate = AggregateNone
	case "mean", "average":
		s.Aggregate = AggregateAvg
	}
	s.Sort = strings.ToLower(strings.TrimSpace(s.Sort))
	s.X = strings.TrimSpace(s.X)
	for i := range s.Y {
		s.Y[i] = strings.TrimSpace(s.Y[i])
	}
}

// Validate checks the spec against the allow-lists and the table columns.
func (s *Spec) Validate(columns []dataset.ColumnInfo) error {
	if !allowedTypes[s.Type] {
		return fmt.Errorf("%w: unsupported chart type %q", ErrInvalidSpec, s.Type)
	}
	if !allowedAggregates[s.Aggregate] {
		return fmt.Errorf("%w: unsupported aggregate %q", ErrInvalidSpec, s.Aggregate)
	}
	if !allowedSorts[s.Sort] {
		return fmt.Errorf("%w: unsupported sort %q", ErrInvalidSpec, s.Sort)
	}
	if s.Limit < 0 {
		return fmt.Errorf("%w: negative limit", ErrInvalidSpec)
	}

	byName := make(map[string]dataset.ColumnInfo, len(columns))
	for _, c := range columns {
		byName[c.Name] = c
	}
	if s.X == "" {
		return fmt.Errorf("%w: x column is required", ErrInvalidSpec)
	}
	if _, ok := byName[s.X]; !ok {
		return fmt.Errorf("%w: unknown column %q", ErrInvalidSpec, s.X)
	}

	if s.Aggregate == AggregateCount {
		s.Y = nil
	} else {
		if len(s.Y) == 0 {
			return fmt.Errorf("%w: y column is required unless aggregate is count", ErrInvalidSpec)
		}
		for _, y := range s.Y {
			col, ok := byName[y]
			if !ok {
				return fmt.Errorf("%w: unknown column %q", ErrInvalidSpec, y)
			}
			if !col.Type.IsNumeric() {
				return fmt.Errorf("%w: column %q is not numeric", ErrInvalidSpec, y)
			}
		}
	}

	switch {
	case s.Type == TypeLine && len(s.Y) > maxLineSeries:
		return fmt.Errorf("%w: line charts support at most %d series", ErrInvalidSpec, maxLineSeries)
	case s.Type != TypeLine && len(s.Y) > 1:
		return fmt.Errorf("%w: %s charts take a single y column", ErrInvalidSpec, s.Type)
	case s.Type == TypePie && s.Aggregate == AggregateNone:
		// pie slices need one value per label
		s.Aggregate = AggregateSum
	}
	return nil
}

// measureNames returns the series names in query order.
func (s *Spec) measureNames() []string {
	if s.Aggregate == AggregateCount {
		return []string{"count"}
	}
	return s.Y
}
