package service

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/railzwaylabs/subsync/internal/audit/domain"
	"gorm.io/gorm"
)

type ExportService struct {
	db   *gorm.DB
	repo auditdomain.Repository
}

func NewExportService(db *gorm.DB, repo auditdomain.Repository) auditdomain.ExportService {
	return &ExportService{db: db, repo: repo}
}

func (s *ExportService) Export(ctx context.Context, req auditdomain.ExportRequest) (*auditdomain.ExportResult, error) {
	logs, err := s.repo.List(ctx, s.db, auditdomain.ListFilter{
		CustomerID: req.CustomerID,
		Kinds:      req.Kinds,
		From:       req.StartDate,
		To:         req.EndDate,
	})
	if err != nil {
		return nil, err
	}

	var data []byte
	switch req.Format {
	case auditdomain.ExportFormatCSV:
		data, err = formatCSV(logs)
	case auditdomain.ExportFormatJSON:
		data, err = formatJSON(logs)
	default:
		return nil, fmt.Errorf("%w: %s", auditdomain.ErrUnsupportedFormat, req.Format)
	}
	if err != nil {
		return nil, err
	}

	return &auditdomain.ExportResult{
		Data:     data,
		Checksum: calculateChecksum(data),
		Format:   req.Format,
		Count:    len(logs),
	}, nil
}

func formatCSV(logs []auditdomain.CustomerLog) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	header := []string{"timestamp", "id", "customer_id", "employee_id", "kind", "message", "metadata"}
	if err := w.Write(header); err != nil {
		return nil, err
	}

	for _, log := range logs {
		metadataJSON, _ := json.Marshal(log.Metadata)
		row := []string{
			log.CreatedAt.UTC().Format(time.RFC3339),
			log.ID.String(),
			log.CustomerID.String(),
			formatSnowflakeID(log.EmployeeID),
			string(log.Kind),
			log.Message,
			string(metadataJSON),
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func formatJSON(logs []auditdomain.CustomerLog) ([]byte, error) {
	type exportRecord struct {
		Timestamp  string         `json:"timestamp"`
		ID         string         `json:"id"`
		CustomerID string         `json:"customer_id"`
		EmployeeID string         `json:"employee_id,omitempty"`
		Kind       string         `json:"kind"`
		Message    string         `json:"message"`
		Metadata   map[string]any `json:"metadata,omitempty"`
	}

	records := make([]exportRecord, 0, len(logs))
	for _, log := range logs {
		records = append(records, exportRecord{
			Timestamp:  log.CreatedAt.UTC().Format(time.RFC3339),
			ID:         log.ID.String(),
			CustomerID: log.CustomerID.String(),
			EmployeeID: formatSnowflakeID(log.EmployeeID),
			Kind:       string(log.Kind),
			Message:    log.Message,
			Metadata:   log.Metadata,
		})
	}
	return json.MarshalIndent(records, "", "  ")
}

func formatSnowflakeID(id *snowflake.ID) string {
	if id == nil || *id == 0 {
		return ""
	}
	return id.String()
}

func calculateChecksum(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}
