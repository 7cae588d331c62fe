package postgres

import (
	"context"
	"fmt"

	"volumetracker/internal/quote"

	"gorm.io/gorm/clause"
)

// UpsertSnapshots writes one row per symbol, replacing the previous one.
func (p *PostgresClient) UpsertSnapshots(ctx context.Context, snaps []quote.Snapshot) error {
	if len(snaps) == 0 {
		return nil
	}

	// Postgres rejects an upsert that touches the same row twice.
	latest := make(map[string]int, len(snaps))
	records := make([]SnapshotRecord, 0, len(snaps))
	for _, s := range snaps {
		if i, ok := latest[s.Symbol]; ok {
			records[i] = ToSnapshotRecord(s)
			continue
		}
		latest[s.Symbol] = len(records)
		records = append(records, ToSnapshotRecord(s))
	}

	tx := p.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "symbol"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"timestamp", "cumulative_volume", "quantity", "ltp",
			"buy_volume", "sell_volume", "mode", "updated_at",
		}),
	}).Create(&records)

	if tx.Error != nil {
		return fmt.Errorf("upsert %d snapshots: %w", len(records), tx.Error)
	}
	return nil
}

func (p *PostgresClient) GetSnapshot(ctx context.Context, symbol string) (quote.Snapshot, error) {
	var rec SnapshotRecord
	err := p.DB.WithContext(ctx).
		Where("symbol = ?", symbol).
		First(&rec).Error
	if err != nil {
		return quote.Snapshot{}, err
	}
	return rec.Snapshot(), nil
}

// ListSnapshots returns every stored snapshot ordered by symbol.
func (p *PostgresClient) ListSnapshots(ctx context.Context) ([]quote.Snapshot, error) {
	var recs []SnapshotRecord
	if err := p.DB.WithContext(ctx).Order("symbol").Find(&recs).Error; err != nil {
		return nil, err
	}

	out := make([]quote.Snapshot, len(recs))
	for i, r := range recs {
		out[i] = r.Snapshot()
	}
	return out, nil
}

func (p *PostgresClient) DeleteSnapshot(ctx context.Context, symbol string) error {
	return p.DB.WithContext(ctx).
		Where("symbol = ?", symbol).
		Delete(&SnapshotRecord{}).Error
}
