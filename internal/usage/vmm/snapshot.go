package vmm

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	usagedomain "github.com/railzwaylabs/subsync/internal/usage/domain"
	"github.com/shopspring/decimal"
)

// Resource keys reported by the virtualization feed.
const (
	ResourceVMCount   = "vm-count"
	ResourceCPUCount  = "cpu-count"
	ResourceMemoryGB  = "memory-gb"
	ResourceStorageGB = "storage-gb"
)

// Snapshot is one row written by the virtualization metrics exporter.
type Snapshot struct {
	ID           snowflake.ID    `gorm:"primaryKey"`
	CloudLabel   string          `gorm:"column:cloud_label;type:varchar(255);not null;index"`
	SnapshotDate time.Time       `gorm:"column:snapshot_date;not null;index"`
	VMCount      decimal.Decimal `gorm:"column:vm_count;type:numeric(20,6);not null"`
	CPUCount     decimal.Decimal `gorm:"column:cpu_count;type:numeric(20,6);not null"`
	MemoryGB     decimal.Decimal `gorm:"column:memory_gb;type:numeric(20,6);not null"`
	StorageGB    decimal.Decimal `gorm:"column:storage_gb;type:numeric(20,6);not null"`
}

func (Snapshot) TableName() string { return "vmm_snapshots" }

var cloudLabelPattern = regexp.MustCompile(`^(.*\S)\s*\(([A-Za-z0-9_-]+)\)$`)

// ParseCloudLabel splits a "Customer Name (ref)" label.
func ParseCloudLabel(label string) (name, ref string, err error) {
	m := cloudLabelPattern.FindStringSubmatch(strings.TrimSpace(label))
	if m == nil {
		return "", "", fmt.Errorf("%w: cloud label %q", usagedomain.ErrSchemaMismatch, label)
	}
	return m[1], m[2], nil
}
