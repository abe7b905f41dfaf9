// Package report persists structured events as an append-only record stream.
// The engine only ever writes; nothing in a run reads the records back.
package report

import (
	"context"
	"fmt"

	"bitget-trade-bot-go/internal/models"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// Store writes event and trade records to a sqlite database.
type Store struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewStore opens the database and migrates the record schema.
func NewStore(dsn string, logger *zap.Logger) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := db.AutoMigrate(&models.EventRecord{}, &models.TradeRecord{}); err != nil {
		return nil, fmt.Errorf("failed to auto-migrate database: %w", err)
	}
	return &Store{db: db, logger: logger.Named("report")}, nil
}

// Deliver records one event. Fills additionally produce a trade record.
// Implements the engine's reporter sink contract.
func (s *Store) Deliver(ctx context.Context, e models.Event) error {
	rec := models.EventRecord{
		Kind:     string(e.Kind),
		Symbol:   e.Symbol,
		OrderID:  e.OrderID,
		Side:     string(e.Side),
		Quantity: e.Quantity.String(),
		Price:    e.Price.String(),
		Message:  e.Message,
		Error:    e.Err,
		At:       e.Time.UnixMilli(),
	}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return fmt.Errorf("record event: %w", err)
	}

	if e.Kind == models.EventOrderFilled || e.Kind == models.EventOrderPartialFill {
		price, _ := e.Price.Float64()
		qty, _ := e.Quantity.Float64()
		trade := models.TradeRecord{
			FillID:    e.FillID,
			OrderID:   e.OrderID,
			Symbol:    e.Symbol,
			Side:      string(e.Side),
			Price:     price,
			Quantity:  qty,
			Timestamp: e.Time.Unix(),
		}
		if err := s.db.WithContext(ctx).Create(&trade).Error; err != nil {
			// Duplicate fill IDs are possible when an event is re-delivered;
			// the unique index keeps the trade history exact.
			s.logger.Debug("Trade record skipped", zap.String("fill_id", e.FillID), zap.Error(err))
		}
	}
	return nil
}
