// Package storage persists two kinds of state: live per-sub-symbol
// position records (a JSON-per-key buntdb store) and, optionally,
// closed trade history for longer-term analysis via gorm.
package storage

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/tidwall/buntdb"
)

// PositionRecord is the on-disk shape of one live position, keyed by
// sub_symbol. Field presence must be tolerant of older records — a
// missing key must never fail a read, so every optional field is a
// pointer or has a safe zero value.
type PositionRecord struct {
	Symbol        string     `json:"symbol"`
	SubSymbol     string     `json:"sub_symbol"`
	Direction     string     `json:"direction"`
	Quantity      int        `json:"quantity"`
	EntryPrice    float64    `json:"entry_price"`
	EntryTime     string     `json:"entry_time"` // ISO 8601
	StopLossPrice float64    `json:"stop_loss_price"`
	Timeframe     string     `json:"timeframe"`
	TrailingActive bool      `json:"trailing_active"`
	ActivationPrice *float64 `json:"activation_price,omitempty"`
	TakeProfitPrice *float64 `json:"take_profit_price,omitempty"`
	BuyBack       *bool      `json:"buy_back,omitempty"`
	SheetRow      *int       `json:"sheet_row,omitempty"`
}

// PositionStore is a buntdb-backed, JSON-per-sub_symbol key/value
// store for PositionRecord — one process's entire live state.
type PositionStore struct {
	db *buntdb.DB
}

// OpenPositionStore opens (or creates) a buntdb file at path. Pass
// ":memory:" for an ephemeral store.
func OpenPositionStore(path string) (*PositionStore, error) {
	db, err := buntdb.Open(path)
	if err != nil {
		return nil, fmt.Errorf("storage: open position store: %w", err)
	}
	if err := db.SetConfig(buntdb.Config{SyncPolicy: buntdb.EverySecond}); err != nil {
		return nil, fmt.Errorf("storage: configure position store: %w", err)
	}
	return &PositionStore{db: db}, nil
}

// Save upserts the record keyed by sub_symbol.
func (s *PositionStore) Save(subSymbol string, rec PositionRecord) error {
	content, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("storage: marshal position record: %w", err)
	}
	return s.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(subSymbol, string(content), nil)
		return err
	})
}

// Get loads the record for sub_symbol, if any.
func (s *PositionStore) Get(subSymbol string) (PositionRecord, bool, error) {
	var rec PositionRecord
	var found bool
	err := s.db.View(func(tx *buntdb.Tx) error {
		value, err := tx.Get(subSymbol)
		if err == buntdb.ErrNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return json.Unmarshal([]byte(value), &rec)
	})
	if err != nil {
		return PositionRecord{}, false, fmt.Errorf("storage: get position record: %w", err)
	}
	return rec, found, nil
}

// Delete removes the record for sub_symbol, if present.
func (s *PositionStore) Delete(subSymbol string) error {
	return s.db.Update(func(tx *buntdb.Tx) error {
		_, err := tx.Delete(subSymbol)
		if err == buntdb.ErrNotFound {
			return nil
		}
		return err
	})
}

// All returns every stored record, keyed by sub_symbol.
func (s *PositionStore) All() (map[string]PositionRecord, error) {
	out := map[string]PositionRecord{}
	err := s.db.View(func(tx *buntdb.Tx) error {
		return tx.Ascend("", func(key, value string) bool {
			var rec PositionRecord
			if err := json.Unmarshal([]byte(value), &rec); err != nil {
				return true
			}
			out[key] = rec
			return true
		})
	})
	if err != nil {
		return nil, fmt.Errorf("storage: scan position records: %w", err)
	}
	return out, nil
}

// Close releases the underlying buntdb file handle.
func (s *PositionStore) Close() error {
	return s.db.Close()
}

// NewPositionRecord builds a PositionRecord from the fields a fresh
// live fill supplies, the entry point for callers that don't want to
// hand-construct the JSON shape.
func NewPositionRecord(symbol, subSymbol, direction string, qty int, entryPrice, stopLoss float64, entryTime time.Time, timeframe string) PositionRecord {
	return PositionRecord{
		Symbol:        symbol,
		SubSymbol:     subSymbol,
		Direction:     direction,
		Quantity:      qty,
		EntryPrice:    entryPrice,
		EntryTime:     entryTime.Format(time.RFC3339),
		StopLossPrice: stopLoss,
		Timeframe:     timeframe,
	}
}
