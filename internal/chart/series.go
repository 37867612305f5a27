package chart

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/campaign-insights/backend/internal/dataset"
	"github.com/campaign-insights/backend/internal/models"
)

// AxisKind is how the X values are plotted.
type AxisKind int

const (
	AxisCategory AxisKind = iota
	AxisNumber
	AxisTime
)

// Series is the computed data behind a chart. Exactly one of the X slices
// is filled, according to Kind.
type Series struct {
	Kind    AxisKind
	XLabels []string
	XNums   []float64
	XTimes  []time.Time
	Names   []string
	Values  [][]float64 // Values[i][j] is measure i at point j

	// Total is the number of points before limiting or thinning.
	Total int
}

// Len returns the number of points.
func (s *Series) Len() int {
	switch s.Kind {
	case AxisNumber:
		return len(s.XNums)
	case AxisTime:
		return len(s.XTimes)
	default:
		return len(s.XLabels)
	}
}

// Label returns the display text of point i.
func (s *Series) Label(i int) string {
	switch s.Kind {
	case AxisNumber:
		return dataset.FormatValue(s.XNums[i])
	case AxisTime:
		return dataset.FormatValue(s.XTimes[i])
	default:
		return s.XLabels[i]
	}
}

// axisKind picks the X axis for spec over column x.
func axisKind(spec *Spec, x dataset.ColumnInfo) AxisKind {
	switch {
	case spec.Type == TypeBar || spec.Type == TypePie:
		return AxisCategory
	case x.Type == models.ColumnTypeDate:
		return AxisTime
	case x.Type.IsNumeric():
		return AxisNumber
	default:
		return AxisCategory
	}
}

// BuildQuery returns the SQL computing spec over table data. Bar and pie
// charts keep their first rows up to the requested limit. Other charts are
// thinned to evenly spaced points across the whole X range. The last column,
// total, counts the points before either.
func BuildQuery(spec *Spec, x dataset.ColumnInfo, maxPoints int) string {
	kind := axisKind(spec, x)
	xExpr := dataset.QuoteIdent(spec.X)
	switch kind {
	case AxisNumber:
		xExpr = "CAST(" + xExpr + " AS DOUBLE)"
	case AxisCategory:
		if x.Type == models.ColumnTypeDate {
			xExpr = "strftime(" + xExpr + ", '%Y-%m-%d')"
		} else {
			xExpr = "CAST(" + xExpr + " AS VARCHAR)"
		}
	}

	measures := make([]string, 0, len(spec.Y)+1)
	if spec.Aggregate == AggregateCount {
		measures = append(measures, "CAST(COUNT(*) AS DOUBLE)")
	}
	for _, y := range spec.Y {
		col := dataset.QuoteIdent(y)
		if spec.Aggregate == AggregateNone {
			measures = append(measures, "CAST("+col+" AS DOUBLE)")
		} else {
			measures = append(measures, fmt.Sprintf("CAST(%s(%s) AS DOUBLE)", strings.ToUpper(string(spec.Aggregate)), col))
		}
	}

	var points strings.Builder
	fmt.Fprintf(&points, "SELECT %s AS x", xExpr)
	for i, m := range measures {
		fmt.Fprintf(&points, ", %s AS y%d", m, i)
	}
	fmt.Fprintf(&points, " FROM %s WHERE %s IS NOT NULL", dataset.TableName, dataset.QuoteIdent(spec.X))
	if spec.Aggregate != AggregateNone {
		points.WriteString(" GROUP BY 1")
	}

	var order string
	switch spec.Sort {
	case "y_desc":
		order = " ORDER BY 2 DESC, 1"
	case "y_asc":
		order = " ORDER BY 2 ASC, 1"
	default:
		order = " ORDER BY 1"
	}

	limit := maxPoints
	if spec.Limit > 0 && (limit <= 0 || spec.Limit < limit) {
		limit = spec.Limit
	}

	truncate := spec.Type == TypeBar || spec.Type == TypePie
	if truncate || limit <= 0 {
		q := fmt.Sprintf("SELECT *, COUNT(*) OVER () AS total FROM (%s) AS points%s", points.String(), order)
		if limit > 0 {
			q += fmt.Sprintf(" LIMIT %d", limit)
		}
		return q
	}

	// every stride-th point in X order, stride = ceil(total / limit)
	return fmt.Sprintf("SELECT * EXCLUDE (rn) FROM ("+
		"SELECT *, ROW_NUMBER() OVER (ORDER BY x) - 1 AS rn, COUNT(*) OVER () AS total FROM (%s) AS points"+
		") AS sampled WHERE rn %% ((total + %d) // %d) = 0%s",
		points.String(), limit-1, limit, order)
}

// BuildSeries runs the spec's query against store.
func BuildSeries(ctx context.Context, store *dataset.DuckStore, spec *Spec, maxPoints int) (*Series, error) {
	x, ok := store.Column(spec.X)
	if !ok {
		return nil, fmt.Errorf("%w: unknown column %q", ErrInvalidSpec, spec.X)
	}

	names := spec.measureNames()
	series := &Series{
		Kind:   axisKind(spec, x),
		Names:  names,
		Values: make([][]float64, len(names)),
	}

	rows, err := store.QueryContext(ctx, BuildQuery(spec, x, maxPoints))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ys := make([]sql.NullFloat64, len(names))
	var total int64
	dest := make([]interface{}, len(names)+2)
	for i := range ys {
		dest[i+1] = &ys[i]
	}
	dest[len(dest)-1] = &total

	for rows.Next() {
		var xv interface{}
		dest[0] = &xv
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		series.Total = int(total)
		if !series.appendX(xv) {
			continue
		}
		for i, y := range ys {
			// missing measures plot as zero
			series.Values[i] = append(series.Values[i], y.Float64)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if series.Len() == 0 {
		return nil, fmt.Errorf("no data to plot for column %q", spec.X)
	}
	return series, nil
}

func (s *Series) appendX(v interface{}) bool {
	switch s.Kind {
	case AxisTime:
		t, ok := v.(time.Time)
		if !ok {
			return false
		}
		s.XTimes = append(s.XTimes, t)
	case AxisNumber:
		f, ok := v.(float64)
		if !ok {
			return false
		}
		s.XNums = append(s.XNums, f)
	default:
		s.XLabels = append(s.XLabels, dataset.FormatValue(v))
	}
	return true
}
