package postgres

import (
	"time"

	"volumetracker/internal/quote"
)

// SnapshotRecord is the latest snapshot of one symbol. Rows are overwritten
// in place; the table never holds history.
type SnapshotRecord struct {
	ID uint `gorm:"primaryKey"`

	Symbol string `gorm:"type:text;not null;uniqueIndex:idx_latest_snapshot_symbol"`

	Timestamp        time.Time `gorm:"not null"`
	CumulativeVolume int64     `gorm:"not null"`
	Quantity         int64     `gorm:"not null"`
	LTP              float64   `gorm:"type:numeric;not null"`
	BuyVolume        int64     `gorm:"not null"`
	SellVolume       int64     `gorm:"not null"`
	Mode             string    `gorm:"type:varchar(10);not null"`

	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

// TableName overrides the default table name for GORM.
func (SnapshotRecord) TableName() string {
	return "latest_snapshot"
}

// ToSnapshotRecord converts a Snapshot into a row for upsert.
func ToSnapshotRecord(s quote.Snapshot) SnapshotRecord {
	return SnapshotRecord{
		Symbol:           s.Symbol,
		Timestamp:        s.Timestamp,
		CumulativeVolume: s.CumulativeVolume,
		Quantity:         s.Quantity,
		LTP:              s.LTP,
		BuyVolume:        s.BuyVolume,
		SellVolume:       s.SellVolume,
		Mode:             string(s.Mode),
	}
}

// Snapshot converts the row back.
func (r SnapshotRecord) Snapshot() quote.Snapshot {
	return quote.Snapshot{
		Timestamp:        r.Timestamp,
		Symbol:           r.Symbol,
		CumulativeVolume: r.CumulativeVolume,
		Quantity:         r.Quantity,
		LTP:              r.LTP,
		BuyVolume:        r.BuyVolume,
		SellVolume:       r.SellVolume,
		Mode:             quote.Mode(r.Mode),
	}
}
