package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

var ErrUnsupportedFormat = errors.New("audit_unsupported_export_format")

// ExportFormat represents the output format for audit exports.
type ExportFormat string

const (
	ExportFormatCSV  ExportFormat = "csv"
	ExportFormatJSON ExportFormat = "json"
)

type ExportRequest struct {
	CustomerID *snowflake.ID
	StartDate  time.Time
	EndDate    time.Time
	Format     ExportFormat
	Kinds      []Kind
}

// ExportResult contains the exported data and metadata.
type ExportResult struct {
	Data     []byte
	Checksum string
	Format   ExportFormat
	Count    int
}

type ExportService interface {
	Export(ctx context.Context, req ExportRequest) (*ExportResult, error)
}
