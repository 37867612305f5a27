package dataset

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/marcboeker/go-duckdb"
	"go.uber.org/zap"

	"github.com/campaign-insights/backend/internal/models"
	"github.com/campaign-insights/backend/internal/parser"
)

// TableName is the table every DuckStore exposes its dataset as.
const TableName = "data"

// ErrReadOnlyQuery is returned for statements other than a single SELECT.
var ErrReadOnlyQuery = errors.New("only a single read-only SELECT statement is allowed")

// DuckOptions tunes the embedded engine.
type DuckOptions struct {
	Threads     int
	MemoryLimit string
	// MaxQueries caps open connections, and so the queries whose rows are
	// still being read. Defaults to 4.
	MaxQueries int
}

// ColumnInfo is a typed column of the DuckDB table.
type ColumnInfo struct {
	Name string            `json:"name"`
	Type models.ColumnType `json:"type"`
}

// QueryResult is a stringified result set.
type QueryResult struct {
	Columns   []string   `json:"columns"`
	Rows      [][]string `json:"rows"`
	Truncated bool       `json:"truncated"`
}

// DuckStore loads a dataset into an in-memory DuckDB table with inferred
// column types so it can be described, aggregated and queried with SQL.
type DuckStore struct {
	db       *sql.DB
	columns  []ColumnInfo
	rowCount int
	logger   *zap.Logger
}

// NewDuckStore creates an in-memory store holding ds as table "data".
func NewDuckStore(ctx context.Context, ds *models.Dataset, opts DuckOptions, logger *zap.Logger) (*DuckStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("duckstore")
	start := time.Now()

	connector, err := duckdb.NewConnector("", func(execer driver.ExecerContext) error {
		pragmas := make([]string, 0, 3)
		if opts.MemoryLimit != "" {
			pragmas = append(pragmas, fmt.Sprintf("PRAGMA memory_limit='%s'", strings.ReplaceAll(opts.MemoryLimit, "'", "")))
		}
		if opts.Threads > 0 {
			pragmas = append(pragmas, fmt.Sprintf("PRAGMA threads=%d", opts.Threads))
		}
		pragmas = append(pragmas, "PRAGMA enable_progress_bar=false")
		for _, pragma := range pragmas {
			if _, err := execer.ExecContext(context.Background(), pragma, nil); err != nil {
				logger.Warn("pragma failed", zap.String("pragma", pragma), zap.Error(err))
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create DuckDB connector: %w", err)
	}

	maxQueries := opts.MaxQueries
	if maxQueries <= 0 {
		maxQueries = 4
	}
	db := sql.OpenDB(connector)
	db.SetMaxOpenConns(maxQueries)
	store := &DuckStore{
		db:       db,
		rowCount: ds.RowCount(),
		logger:   logger,
	}

	converters, err := store.createTable(ctx, ds)
	if err != nil {
		db.Close()
		return nil, err
	}
	if err := store.appendRows(ctx, ds, converters); err != nil {
		db.Close()
		return nil, err
	}

	// Lock the engine down to the loaded table.
	if _, err := db.ExecContext(ctx, "SET enable_external_access=false"); err != nil {
		logger.Warn("disabling external access", zap.Error(err))
	}

	logger.Debug("dataset loaded",
		zap.Int("rows", store.rowCount),
		zap.Int("columns", len(store.columns)),
		zap.Duration("elapsed", time.Since(start)))
	return store, nil
}

type converter func(string) (interface{}, bool)

func (s *DuckStore) createTable(ctx context.Context, ds *models.Dataset) ([]converter, error) {
	defs := make([]string, len(ds.Columns))
	converters := make([]converter, len(ds.Columns))
	s.columns = make([]ColumnInfo, len(ds.Columns))

	for i, name := range ds.Columns {
		values := columnValues(ds, i)
		typ := parser.InferColumnType(values)

		var sqlType string
		switch typ {
		case models.ColumnTypeInteger:
			sqlType = "BIGINT"
			converters[i] = func(v string) (interface{}, bool) {
				n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
				return n, err == nil
			}
		case models.ColumnTypeFloat:
			sqlType = "DOUBLE"
			converters[i] = func(v string) (interface{}, bool) {
				return parser.ParseFloat(v)
			}
		case models.ColumnTypeDate:
			sqlType = "TIMESTAMP"
			layout, _ := parser.DetectDateLayout(values)
			converters[i] = func(v string) (interface{}, bool) {
				return parser.ParseDate(v, layout)
			}
		default:
			sqlType = "VARCHAR"
			converters[i] = func(v string) (interface{}, bool) {
				return v, true
			}
		}

		s.columns[i] = ColumnInfo{Name: name, Type: typ}
		defs[i] = QuoteIdent(name) + " " + sqlType
	}

	stmt := fmt.Sprintf("CREATE TABLE %s (%s)", TableName, strings.Join(defs, ", "))
	if _, err := s.db.ExecContext(ctx, stmt); err != nil {
		return nil, fmt.Errorf("failed to create table: %w", err)
	}
	return converters, nil
}

// appendRows writes the dataset using the native Appender API.
func (s *DuckStore) appendRows(ctx context.Context, ds *models.Dataset, converters []converter) error {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to get connection: %w", err)
	}
	defer conn.Close()

	err = conn.Raw(func(driverConn interface{}) error {
		dConn, ok := driverConn.(*duckdb.Conn)
		if !ok {
			return fmt.Errorf("failed to cast to duckdb.Conn")
		}

		appender, err := duckdb.NewAppenderFromConn(dConn, "", TableName)
		if err != nil {
			return fmt.Errorf("failed to create appender: %w", err)
		}
		defer appender.Close()

		values := make([]driver.Value, len(converters))
		for r, row := range ds.Rows {
			for i, conv := range converters {
				values[i] = nil
				if i >= len(row) || models.IsMissing(row[i]) {
					continue
				}
				if v, ok := conv(row[i]); ok {
					values[i] = v
				}
			}
			if err := appender.AppendRow(values...); err != nil {
				return fmt.Errorf("failed to append row %d: %w", r, err)
			}
		}
		return appender.Flush()
	})
	if err != nil {
		return fmt.Errorf("appender error: %w", err)
	}
	return nil
}

func columnValues(ds *models.Dataset, col int) []string {
	values := make([]string, 0, len(ds.Rows))
	for _, row := range ds.Rows {
		if col < len(row) {
			values = append(values, row[col])
		}
	}
	return values
}

// QuoteIdent quotes a column name for use in SQL.
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// Columns returns the typed columns in table order.
func (s *DuckStore) Columns() []ColumnInfo {
	return s.columns
}

// Column looks up a column by name.
func (s *DuckStore) Column(name string) (ColumnInfo, bool) {
	for _, c := range s.columns {
		if c.Name == name {
			return c, true
		}
	}
	return ColumnInfo{}, false
}

// RowCount returns the number of loaded rows.
func (s *DuckStore) RowCount() int {
	return s.rowCount
}

// QueryContext runs a raw query against the store. Callers build the SQL and
// must quote identifiers with QuoteIdent. The rows hold one of the store's
// MaxQueries connections until they are closed; further queries wait for a
// free one or for ctx.
func (s *DuckStore) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, query, args...)
}

// Query runs a single read-only statement and returns at most maxRows rows.
func (s *DuckStore) Query(ctx context.Context, query string, maxRows int) (*QueryResult, error) {
	stmt, err := readOnlyStatement(query)
	if err != nil {
		return nil, err
	}

	rows, err := s.QueryContext(ctx, stmt)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	result := &QueryResult{Columns: cols, Rows: make([][]string, 0)}
	raw := make([]interface{}, len(cols))
	ptrs := make([]interface{}, len(cols))
	for i := range raw {
		ptrs[i] = &raw[i]
	}

	for rows.Next() {
		if maxRows > 0 && len(result.Rows) >= maxRows {
			result.Truncated = true
			break
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		out := make([]string, len(cols))
		for i, v := range raw {
			out[i] = FormatValue(v)
		}
		result.Rows = append(result.Rows, out)
	}
	return result, rows.Err()
}

// readOnlyStatement trims a trailing semicolon and accepts a single statement
// led by SELECT or WITH. Only the leading keyword is checked; the engine runs
// with external access disabled, so a query can read nothing but the table.
func readOnlyStatement(query string) (string, error) {
	stmt := strings.TrimSpace(query)
	stmt = strings.TrimSpace(strings.TrimSuffix(stmt, ";"))
	if stmt == "" || hasSeparator(stmt) {
		return "", ErrReadOnlyQuery
	}
	keyword := stmt
	if i := strings.IndexFunc(stmt, func(r rune) bool { return !unicode.IsLetter(r) }); i >= 0 {
		keyword = stmt[:i]
	}
	switch strings.ToLower(keyword) {
	case "select", "with":
		return stmt, nil
	default:
		return "", ErrReadOnlyQuery
	}
}

// hasSeparator reports a semicolon outside quoted literals and identifiers.
func hasSeparator(stmt string) bool {
	var quote rune
	for _, r := range stmt {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			}
		case r == '\'' || r == '"':
			quote = r
		case r == ';':
			return true
		}
	}
	return false
}

// FormatValue renders a scanned DuckDB value as text.
func FormatValue(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	case float64:
		return formatFloat(x)
	case float32:
		return formatFloat(float64(x))
	case time.Time:
		return formatTime(x)
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprint(x)
	}
}

func formatFloat(f float64) string {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return strconv.FormatFloat(f, 'f', 1, 64)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func formatTime(t time.Time) string {
	if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0 {
		return t.Format("2006-01-02")
	}
	return t.Format("2006-01-02 15:04:05")
}

// Close releases the database.
func (s *DuckStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
