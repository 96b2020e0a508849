package storage

import (
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// TradeRecord is one closed fill persisted for longer-term analysis —
// the relational counterpart to PositionStore's fast live KV store.
type TradeRecord struct {
	ID         uint `gorm:"primaryKey"`
	Symbol     string
	SubSymbol  string
	Direction  string
	Quantity   int
	EntryPrice float64
	EntryTime  time.Time
	ExitPrice  float64
	ExitTime   time.Time
	Reason     string
	PnLPoints  float64
	PnLTWD     float64
	Strategy   string
}

// TradeHistory is a gorm/SQLite sink for closed trades.
type TradeHistory struct {
	db *gorm.DB
}

// OpenTradeHistory opens (or creates) a SQLite database at path and
// migrates the TradeRecord table.
func OpenTradeHistory(path string) (*TradeHistory, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("storage: open trade history: %w", err)
	}
	if err := db.AutoMigrate(&TradeRecord{}); err != nil {
		return nil, fmt.Errorf("storage: migrate trade history: %w", err)
	}
	return &TradeHistory{db: db}, nil
}

// Record inserts one closed trade.
func (h *TradeHistory) Record(rec TradeRecord) error {
	return h.db.Create(&rec).Error
}

// ForStrategy returns every recorded trade for one strategy name, most
// recent first.
func (h *TradeHistory) ForStrategy(strategy string) ([]TradeRecord, error) {
	var out []TradeRecord
	err := h.db.Where("strategy = ?", strategy).Order("exit_time desc").Find(&out).Error
	return out, err
}

// Close releases the underlying database handle.
func (h *TradeHistory) Close() error {
	sqlDB, err := h.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
