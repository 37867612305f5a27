package dataset

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campaign-insights/backend/internal/models"
)

func TestMerger_Merge(t *testing.T) {
	ctx := context.Background()

	t.Run("row count is the sum of inputs", func(t *testing.T) {
		f := newFixture(t)
		files := []*models.FileInfo{
			f.upload(t, "jan.csv", "Campaign,Clicks,Spend\nA,10,1.5\nB,20,2.5\n"),
			f.upload(t, "feb.csv", "Campaign,Clicks,Spend\nC,30,3.5\n"),
			f.upload(t, "mar.csv", "Campaign,Clicks,Spend\nD,40,4.5\nE,50,5.5\nF,60,6.5\n"),
		}

		result, err := f.merger.Merge(ctx, files)
		require.NoError(t, err)

		assert.Equal(t, []string{"Campaign", "Clicks", "Spend"}, result.Dataset.Columns)
		assert.Equal(t, 6, result.Dataset.RowCount())
		assert.Equal(t, []string{"A", "10", "1.5"}, result.Dataset.Rows[0])
		assert.Equal(t, []string{"F", "60", "6.5"}, result.Dataset.Rows[5])
		assert.Equal(t, []string{"jan.csv", "feb.csv", "mar.csv"}, result.Merged)
		assert.NotEmpty(t, result.Version)
		assert.Equal(t, f.artifactPath(), result.OutputFile)

		_, err = os.Stat(result.OutputFile)
		assert.NoError(t, err, "artifact should be written")
		for _, file := range files {
			_, err := os.Stat(file.Path)
			assert.True(t, os.IsNotExist(err), "original %s should be deleted", file.Name)
		}
	})

	t.Run("many files", func(t *testing.T) {
		f := newFixture(t)
		var files []*models.FileInfo
		total := 0
		for i := 0; i < 20; i++ {
			var sb strings.Builder
			sb.WriteString("id,value\n")
			for r := 0; r <= i; r++ {
				fmt.Fprintf(&sb, "%d,%d\n", i, r)
				total++
			}
			files = append(files, f.upload(t, fmt.Sprintf("part%02d.csv", i), sb.String()))
		}

		result, err := f.merger.Merge(ctx, files)
		require.NoError(t, err)
		assert.Equal(t, total, result.Dataset.RowCount())
		assert.Equal(t, []string{"0", "0"}, result.Dataset.Rows[0], "rows keep file order")
	})

	t.Run("different structure rejects the batch and keeps the old artifact", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.merger.Merge(ctx, []*models.FileInfo{f.upload(t, "base.csv", "a,b\n1,2\n")})
		require.NoError(t, err)
		before, err := os.ReadFile(f.artifactPath())
		require.NoError(t, err)

		files := []*models.FileInfo{
			f.upload(t, "one.csv", "a,b\n3,4\n"),
			f.upload(t, "two.csv", "b,a\n5,6\n"),
		}
		_, err = f.merger.Merge(ctx, files)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrValidation))
		assert.Equal(t, "File two.csv has a different structure.", err.Error())

		after, err := os.ReadFile(f.artifactPath())
		require.NoError(t, err)
		assert.Equal(t, before, after, "artifact must not be overwritten")
		for _, file := range files {
			_, err := os.Stat(file.Path)
			assert.NoError(t, err, "originals are kept on failure")
		}
	})

	t.Run("missing value rejects the batch", func(t *testing.T) {
		f := newFixture(t)
		files := []*models.FileInfo{
			f.upload(t, "ok.csv", "a,b\n1,2\n"),
			f.upload(t, "holes.csv", "a,b\n1,\n"),
		}
		_, err := f.merger.Merge(ctx, files)
		require.Error(t, err)
		var verr *ValidationError
		require.True(t, errors.As(err, &verr))
		assert.Equal(t, "holes.csv", verr.File)
		assert.Equal(t, "File holes.csv contains empty values. Please clean the data.", err.Error())

		_, statErr := os.Stat(f.artifactPath())
		assert.True(t, os.IsNotExist(statErr))
	})

	t.Run("NA markers count as missing", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.merger.Merge(ctx, []*models.FileInfo{f.upload(t, "na.csv", "a,b\n1,N/A\n")})
		assert.True(t, errors.Is(err, ErrValidation))
	})

	t.Run("whitespace cells are not missing", func(t *testing.T) {
		f := newFixture(t)
		result, err := f.merger.Merge(ctx, []*models.FileInfo{f.upload(t, "spaces.csv", "a,b\n1, \n NA ,2\n")})
		require.NoError(t, err)
		assert.Equal(t, [][]string{{"1", " "}, {" NA ", "2"}}, result.Dataset.Rows)
	})

	t.Run("first error in input order is reported", func(t *testing.T) {
		f := newFixture(t)
		files := []*models.FileInfo{
			f.upload(t, "a.csv", "x,y\n1,2\n"),
			f.upload(t, "b.csv", "x,y\n1,\n"),
			f.upload(t, "c.csv", "z\n1\n"),
		}
		_, err := f.merger.Merge(ctx, files)
		assert.Equal(t, "File b.csv contains empty values. Please clean the data.", err.Error())
	})

	t.Run("unsupported files are skipped", func(t *testing.T) {
		f := newFixture(t)
		files := []*models.FileInfo{
			f.upload(t, "notes.txt", "hello"),
			f.upload(t, "a.csv", "x\n1\n"),
		}
		result, err := f.merger.Merge(ctx, files)
		require.NoError(t, err)
		assert.Equal(t, []string{"notes.txt"}, result.Skipped)
		assert.Equal(t, 1, result.Dataset.RowCount())
	})

	t.Run("only unsupported files", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.merger.Merge(ctx, []*models.FileInfo{f.upload(t, "notes.txt", "hello")})
		assert.True(t, errors.Is(err, ErrValidation))
	})

	t.Run("malformed csv is a validation error naming the file", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.merger.Merge(ctx, []*models.FileInfo{f.upload(t, "bad.csv", "a,b\n1,2,3\n")})
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrValidation))
		assert.Contains(t, err.Error(), "bad.csv")
	})

	t.Run("malformed xls is a validation error naming the file", func(t *testing.T) {
		f := newFixture(t)
		// OLE signature and byte order mark only.
		stub := make([]byte, 1024)
		copy(stub, "\xD0\xCF\x11\xE0\xA1\xB1\x1A\xE1")
		stub[28], stub[29] = 0xFE, 0xFF

		files := []*models.FileInfo{
			f.upload(t, "ok.csv", "a,b\n1,2\n"),
			f.upload(t, "legacy.xls", string(stub)),
		}
		_, err := f.merger.Merge(ctx, files)
		require.Error(t, err)
		var verr *ValidationError
		require.True(t, errors.As(err, &verr))
		assert.Equal(t, "legacy.xls", verr.File)
		assert.Contains(t, err.Error(), "File legacy.xls could not be read")
	})

	t.Run("canceled context is a processing error", func(t *testing.T) {
		f := newFixture(t)
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := f.merger.Merge(cctx, []*models.FileInfo{f.upload(t, "a.csv", "x\n1\n")})
		require.Error(t, err)
		assert.False(t, errors.Is(err, ErrValidation))
		assert.True(t, errors.Is(err, ErrProcessing))
	})
}
