package models

import (
	"path/filepath"
	"strings"
	"time"
)

// FileFormat identifies how an uploaded file is parsed.
type FileFormat string

const (
	FormatCSV         FileFormat = "csv"
	FormatXLSX        FileFormat = "xlsx"
	FormatXLS         FileFormat = "xls"
	FormatUnsupported FileFormat = "unsupported"
)

// FormatFromName infers the file format from the extension of name.
func FormatFromName(name string) FileFormat {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv":
		return FormatCSV
	case ".xlsx":
		return FormatXLSX
	case ".xls":
		return FormatXLS
	default:
		return FormatUnsupported
	}
}

// FileInfo represents an uploaded file waiting to be merged.
type FileInfo struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"` // original client file name
	Path       string     `json:"-"`
	Format     FileFormat `json:"format"`
	Size       int64      `json:"size"`
	UploadedAt time.Time  `json:"uploadedAt"`
}
