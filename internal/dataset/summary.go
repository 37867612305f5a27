package dataset

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/campaign-insights/backend/internal/models"
)

// Summary computes describe() style statistics for every column.
func (s *DuckStore) Summary(ctx context.Context) ([]models.ColumnSummary, error) {
	out := make([]models.ColumnSummary, 0, len(s.columns))
	for _, col := range s.columns {
		var (
			cs  models.ColumnSummary
			err error
		)
		switch {
		case col.Type.IsNumeric():
			cs, err = s.numericSummary(ctx, col)
		default:
			cs, err = s.categoricalSummary(ctx, col)
		}
		if err != nil {
			return nil, fmt.Errorf("describing column %s: %w", col.Name, err)
		}
		out = append(out, cs)
	}
	return out, nil
}

func (s *DuckStore) numericSummary(ctx context.Context, col ColumnInfo) (models.ColumnSummary, error) {
	c := "CAST(" + QuoteIdent(col.Name) + " AS DOUBLE)"
	query := fmt.Sprintf(`SELECT count(%[1]s), avg(%[1]s), stddev_samp(%[1]s), min(%[1]s),
		quantile_cont(%[1]s, 0.25), quantile_cont(%[1]s, 0.5), quantile_cont(%[1]s, 0.75), max(%[1]s)
		FROM %[2]s`, c, TableName)

	rows, err := s.QueryContext(ctx, query)
	if err != nil {
		return models.ColumnSummary{}, err
	}
	defer rows.Close()

	var count int64
	var mean, std, minV, q25, q50, q75, maxV sql.NullFloat64
	if rows.Next() {
		if err := rows.Scan(&count, &mean, &std, &minV, &q25, &q50, &q75, &maxV); err != nil {
			return models.ColumnSummary{}, err
		}
	}
	if err := rows.Err(); err != nil {
		return models.ColumnSummary{}, err
	}

	return models.ColumnSummary{
		Name:   col.Name,
		Type:   string(col.Type),
		Count:  count,
		Mean:   floatPtr(mean),
		Std:    floatPtr(std),
		Min:    formattedPtr(minV),
		Q25:    floatPtr(q25),
		Median: floatPtr(q50),
		Q75:    floatPtr(q75),
		Max:    formattedPtr(maxV),
	}, nil
}

func (s *DuckStore) categoricalSummary(ctx context.Context, col ColumnInfo) (models.ColumnSummary, error) {
	c := QuoteIdent(col.Name)
	cs := models.ColumnSummary{Name: col.Name, Type: string(col.Type)}

	var unique int64
	rows, err := s.QueryContext(ctx, fmt.Sprintf("SELECT count(%[1]s), count(DISTINCT %[1]s) FROM %[2]s", c, TableName))
	if err != nil {
		return cs, err
	}
	if rows.Next() {
		err = rows.Scan(&cs.Count, &unique)
	}
	rows.Close()
	if err != nil {
		return cs, err
	}
	cs.Unique = &unique

	rows, err = s.QueryContext(ctx, fmt.Sprintf(
		"SELECT CAST(%[1]s AS VARCHAR) AS v, count(*) AS n FROM %[2]s WHERE %[1]s IS NOT NULL GROUP BY %[1]s ORDER BY n DESC, %[1]s LIMIT 1",
		c, TableName))
	if err != nil {
		return cs, err
	}
	var (
		top  sql.NullString
		freq int64
	)
	if rows.Next() {
		err = rows.Scan(&top, &freq)
	}
	rows.Close()
	if err != nil {
		return cs, err
	}
	if top.Valid {
		cs.Top = &top.String
		cs.Freq = &freq
		if col.Type == models.ColumnTypeDate {
			if t, err := time.Parse("2006-01-02 15:04:05", top.String); err == nil {
				v := formatTime(t)
				cs.Top = &v
			}
		}
	}

	if col.Type == models.ColumnTypeDate {
		rows, err = s.QueryContext(ctx, fmt.Sprintf("SELECT min(%[1]s), max(%[1]s) FROM %[2]s", c, TableName))
		if err != nil {
			return cs, err
		}
		var minT, maxT sql.NullTime
		if rows.Next() {
			err = rows.Scan(&minT, &maxT)
		}
		rows.Close()
		if err != nil {
			return cs, err
		}
		if minT.Valid {
			v := formatTime(minT.Time)
			cs.Min = &v
		}
		if maxT.Valid {
			v := formatTime(maxT.Time)
			cs.Max = &v
		}
	}
	return cs, nil
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func formattedPtr(v sql.NullFloat64) *string {
	if !v.Valid {
		return nil
	}
	s := formatFloat(v.Float64)
	return &s
}
