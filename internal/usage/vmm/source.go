package vmm

import (
	"context"
	"fmt"
	"strings"
	"time"

	usagedomain "github.com/railzwaylabs/subsync/internal/usage/domain"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Source reads the virtualization metrics snapshots. Only the newest
// snapshot date counts; older rows are history kept for retention.
type Source struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewSource(db *gorm.DB, log *zap.Logger) *Source {
	return &Source{db: db, log: log.Named("usage.vmm")}
}

func (s *Source) Kind() usagedomain.SourceKind {
	return usagedomain.SourceVMM
}

func (s *Source) ListQuantities(ctx context.Context, customerRef string) ([]usagedomain.Quantity, error) {
	customerRef = strings.TrimSpace(customerRef)
	if customerRef == "" {
		return nil, fmt.Errorf("%w: empty customer reference", usagedomain.ErrSchemaMismatch)
	}

	latest, ok, err := s.latestDate(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	var rows []Snapshot
	err = s.db.WithContext(ctx).
		Where("snapshot_date = ?", latest).
		Where("cloud_label LIKE ?", "%("+customerRef+")").
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("%w: %v", usagedomain.ErrSourceUnavailable, err)
	}

	var (
		matched                    int
		name                       string
		vms, cpus, memory, storage decimal.Decimal
	)
	for _, row := range rows {
		label, ref, err := ParseCloudLabel(row.CloudLabel)
		if err != nil {
			return nil, err
		}
		if ref != customerRef {
			continue
		}
		if matched == 0 {
			name = label
		}
		matched++
		vms = vms.Add(row.VMCount)
		cpus = cpus.Add(row.CPUCount)
		memory = memory.Add(row.MemoryGB)
		storage = storage.Add(row.StorageGB)
	}
	if matched == 0 {
		return nil, nil
	}
	if matched > 1 {
		s.log.Warn("multiple clouds for customer, summing", zap.String("customer_ref", customerRef), zap.Int("clouds", matched))
	}

	at := latest.UTC()
	build := func(key string, qty decimal.Decimal) usagedomain.Quantity {
		return usagedomain.Quantity{
			ResourceKey: key,
			Name:        name,
			Quantity:    qty,
			Status:      usagedomain.StatusUnknown,
			CreatedAt:   at,
			UpdatedAt:   at,
		}
	}
	return []usagedomain.Quantity{
		build(ResourceVMCount, vms),
		build(ResourceCPUCount, cpus),
		build(ResourceMemoryGB, memory),
		build(ResourceStorageGB, storage),
	}, nil
}

func (s *Source) latestDate(ctx context.Context) (time.Time, bool, error) {
	var row Snapshot
	err := s.db.WithContext(ctx).
		Select("snapshot_date").
		Order("snapshot_date DESC").
		Limit(1).
		Find(&row).Error
	if err != nil {
		return time.Time{}, false, fmt.Errorf("%w: %v", usagedomain.ErrSourceUnavailable, err)
	}
	if row.SnapshotDate.IsZero() {
		return time.Time{}, false, nil
	}
	return row.SnapshotDate, true, nil
}

// PurgeBefore deletes snapshots older than cutoff and reports how many rows went.
func (s *Source) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Where("snapshot_date < ?", cutoff).Delete(&Snapshot{})
	return res.RowsAffected, res.Error
}
