package parser

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/campaign-insights/backend/internal/models"
)

func createTestFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func createTestWorkbook(t *testing.T, name string, rows [][]interface{}) string {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(sheet, cell, &row))
	}
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, f.SaveAs(path))
	return path
}

func TestCSVParser_Parse(t *testing.T) {
	parser := NewCSVParser()

	t.Run("parses header and rows", func(t *testing.T) {
		path := createTestFile(t, "a.csv", "Campaign,Clicks,Spend\nSpring,10,1.5\nSummer,20,2.25\n")
		ds, err := parser.Parse(path)
		require.NoError(t, err)

		want := &models.Dataset{
			Columns: []string{"Campaign", "Clicks", "Spend"},
			Rows:    [][]string{{"Spring", "10", "1.5"}, {"Summer", "20", "2.25"}},
		}
		if diff := cmp.Diff(want, ds); diff != "" {
			t.Errorf("dataset mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("strips byte order mark", func(t *testing.T) {
		path := createTestFile(t, "bom.csv", "\xEF\xBB\xBFCampaign,Clicks\nA,1\n")
		ds, err := parser.Parse(path)
		require.NoError(t, err)
		assert.Equal(t, []string{"Campaign", "Clicks"}, ds.Columns)
	})

	t.Run("quoted fields with commas", func(t *testing.T) {
		path := createTestFile(t, "q.csv", "Name,Note\n\"Smith, J\",\"said \"\"hi\"\"\"\n")
		ds, err := parser.Parse(path)
		require.NoError(t, err)
		assert.Equal(t, [][]string{{"Smith, J", `said "hi"`}}, ds.Rows)
	})

	t.Run("short row is padded with missing cells", func(t *testing.T) {
		path := createTestFile(t, "short.csv", "a,b\n1\n")
		ds, err := parser.Parse(path)
		require.NoError(t, err)
		assert.Equal(t, [][]string{{"1", ""}}, ds.Rows)
		_, _, found := ds.FirstMissing()
		assert.True(t, found)
	})

	t.Run("long row is malformed", func(t *testing.T) {
		path := createTestFile(t, "long.csv", "a,b\n1,2,3\n")
		_, err := parser.Parse(path)
		assert.Error(t, err)
	})

	t.Run("empty file", func(t *testing.T) {
		path := createTestFile(t, "empty.csv", "")
		_, err := parser.Parse(path)
		assert.Error(t, err)
	})

	t.Run("header only", func(t *testing.T) {
		path := createTestFile(t, "header.csv", "a,b\n")
		ds, err := parser.Parse(path)
		require.NoError(t, err)
		assert.Equal(t, 0, ds.RowCount())
	})
}

func TestXLSXParser_Parse(t *testing.T) {
	parser := NewXLSXParser()

	t.Run("reads first sheet", func(t *testing.T) {
		path := createTestWorkbook(t, "a.xlsx", [][]interface{}{
			{"Campaign", "Clicks"},
			{"Spring", 10},
			{"Summer", 20},
		})
		ds, err := parser.Parse(path)
		require.NoError(t, err)
		assert.Equal(t, []string{"Campaign", "Clicks"}, ds.Columns)
		assert.Equal(t, [][]string{{"Spring", "10"}, {"Summer", "20"}}, ds.Rows)
	})

	t.Run("empty trailing cell is missing", func(t *testing.T) {
		path := createTestWorkbook(t, "b.xlsx", [][]interface{}{
			{"Campaign", "Clicks"},
			{"Spring"},
		})
		ds, err := parser.Parse(path)
		require.NoError(t, err)
		assert.Equal(t, [][]string{{"Spring", ""}}, ds.Rows)
	})

	t.Run("not a workbook", func(t *testing.T) {
		path := createTestFile(t, "bad.xlsx", "this is not a zip")
		_, err := parser.Parse(path)
		assert.Error(t, err)
	})
}

func TestParserRegistry(t *testing.T) {
	registry := NewRegistry()

	tests := []struct {
		file    string
		want    string
		wantErr bool
	}{
		{file: "spend.csv", want: "csv"},
		{file: "SPEND.CSV", want: "csv"},
		{file: "report.xlsx", want: "xlsx"},
		{file: "legacy.xls", want: "xls"},
		{file: "notes.txt", wantErr: true},
		{file: "noext", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			p, err := registry.FindParser(tt.file)
			if tt.wantErr {
				assert.True(t, errors.Is(err, ErrUnsupportedFormat))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.Name())
		})
	}
}

func TestInferColumnType(t *testing.T) {
	tests := []struct {
		name   string
		values []string
		want   models.ColumnType
	}{
		{name: "integers", values: []string{"1", "-2", "+30"}, want: models.ColumnTypeInteger},
		{name: "floats", values: []string{"1.5", "2", "3e2"}, want: models.ColumnTypeFloat},
		{name: "iso dates", values: []string{"2024-01-02", "2024-02-03"}, want: models.ColumnTypeDate},
		{name: "slash dates", values: []string{"03/04/2024", "12/31/2024"}, want: models.ColumnTypeDate},
		{name: "text", values: []string{"Spring", "10"}, want: models.ColumnTypeString},
		{name: "infinity is text", values: []string{"inf", "1"}, want: models.ColumnTypeString},
		{name: "missing ignored", values: []string{"1", "", "NA"}, want: models.ColumnTypeInteger},
		{name: "all missing", values: []string{"", "NaN"}, want: models.ColumnTypeString},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, InferColumnType(tt.values))
		})
	}
}

func TestDetectDateLayout(t *testing.T) {
	t.Run("month first wins for ambiguous column", func(t *testing.T) {
		layout, ok := DetectDateLayout([]string{"03/04/2024", "05/06/2024"})
		require.True(t, ok)
		d, ok := ParseDate("03/04/2024", layout)
		require.True(t, ok)
		assert.Equal(t, 3, int(d.Month()))
		assert.Equal(t, 4, d.Day())
	})

	t.Run("day first when month first cannot fit", func(t *testing.T) {
		layout, ok := DetectDateLayout([]string{"03/04/2024", "25/12/2024"})
		require.True(t, ok)
		d, ok := ParseDate("03/04/2024", layout)
		require.True(t, ok)
		assert.Equal(t, 4, int(d.Month()))
		assert.Equal(t, 3, d.Day())
	})

	t.Run("mixed formats fall back per value", func(t *testing.T) {
		layout, ok := DetectDateLayout([]string{"2024-01-02", "Jan 5, 2024"})
		assert.True(t, ok)
		assert.Equal(t, "", layout)
	})

	t.Run("not dates", func(t *testing.T) {
		_, ok := DetectDateLayout([]string{"2024-01-02", "tomorrow"})
		assert.False(t, ok)
	})
}
