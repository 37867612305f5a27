package parser

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/extrame/xls"

	"github.com/campaign-insights/backend/internal/models"
)

const (
	defaultXLSMaxSize = 64 << 20
	defaultXLSTimeout = 30 * time.Second
)

// XLSParser reads the first sheet of a legacy BIFF (.xls) workbook. The file
// is read into memory and its container checked before the xls reader runs;
// the read itself is bounded in time and recovers from reader panics.
type XLSParser struct {
	charset string
	maxSize int64
	timeout time.Duration
}

func NewXLSParser() *XLSParser {
	return &XLSParser{charset: "utf-8", maxSize: defaultXLSMaxSize, timeout: defaultXLSTimeout}
}

func (p *XLSParser) Name() string {
	return "xls"
}

func (p *XLSParser) Format() models.FileFormat {
	return models.FormatXLS
}

func (p *XLSParser) Parse(filePath string) (*models.Dataset, error) {
	data, err := readLimited(filePath, p.maxSize)
	if err != nil {
		return nil, err
	}
	if err := checkCompoundFile(data); err != nil {
		return nil, fmt.Errorf("invalid workbook: %w", err)
	}

	records, err := p.readFirstSheet(data)
	if err != nil {
		return nil, err
	}
	return buildTable(records, false)
}

func readLimited(filePath string, maxSize int64) ([]byte, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxSize+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxSize {
		return nil, fmt.Errorf("workbook larger than %d bytes", maxSize)
	}
	return data, nil
}

type sheetResult struct {
	records [][]string
	err     error
}

func (p *XLSParser) readFirstSheet(data []byte) ([][]string, error) {
	done := make(chan sheetResult, 1)
	go func() {
		var res sheetResult
		defer func() {
			if r := recover(); r != nil {
				res = sheetResult{err: fmt.Errorf("reading workbook: %v", r)}
			}
			done <- res
		}()
		res.records, res.err = readXLSSheet(data, p.charset)
	}()

	timer := time.NewTimer(p.timeout)
	defer timer.Stop()
	select {
	case res := <-done:
		return res.records, res.err
	case <-timer.C:
		return nil, fmt.Errorf("reading workbook timed out after %s", p.timeout)
	}
}

func readXLSSheet(data []byte, charset string) ([][]string, error) {
	wb, err := xls.OpenReader(bytes.NewReader(data), charset)
	if err != nil {
		return nil, fmt.Errorf("opening workbook: %w", err)
	}
	if wb == nil {
		return nil, errors.New("opening workbook: no Workbook stream")
	}

	sheet := wb.GetSheet(0)
	if sheet == nil {
		return nil, errors.New("workbook has no sheets")
	}

	rows := make([]*xls.Row, int(sheet.MaxRow)+1)
	width := 0
	for i := range rows {
		rows[i] = sheetRow(sheet, i)
		if rows[i] != nil && rows[i].LastCol()+1 > width {
			width = rows[i].LastCol() + 1
		}
	}

	records := make([][]string, 0, len(rows))
	for _, row := range rows {
		if row == nil {
			records = append(records, nil)
			continue
		}
		rec := make([]string, width)
		for j := range rec {
			rec[j] = row.Col(j)
		}
		records = append(records, trimTrailingEmpty(rec))
	}
	return records, nil
}

// sheetRow returns nil for rows without cells; WorkSheet.Row dereferences
// the missing entry.
func sheetRow(sheet *xls.WorkSheet, i int) (row *xls.Row) {
	defer func() {
		if recover() != nil {
			row = nil
		}
	}()
	return sheet.Row(i)
}
