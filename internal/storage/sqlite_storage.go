package storage

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"raffle/internal/logger"

	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

type SqliteStorage struct {
	db *gorm.DB
}

func NewSqliteStorage(path string) (*SqliteStorage, error) {

	logger.Debug("initializing database...", zap.String("path", path))
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, err
	}

	err = db.AutoMigrate(
		&RaffleSnapshot{},
		&Entry{},
		&Draw{},
		&Balance{},
		&DrawProof{},
	)
	if err != nil {
		return nil, err
	}

	logger.Debug("initializing database... done")
	return &SqliteStorage{
		db: db,
	}, nil
}

func (s *SqliteStorage) GetSnapshot() (*RaffleSnapshot, error) {
	logger.Debug("getting raffle snapshot...")

	var snapshot RaffleSnapshot
	err := s.db.Where("id = ?", snapshotRowID).First(&snapshot).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		logger.Debug("no raffle snapshot persisted")
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	logger.Debug("getting raffle snapshot... done", zap.Uint64("round", snapshot.Round))
	return &snapshot, nil
}

func (s *SqliteStorage) UpdateSnapshot(snapshot *RaffleSnapshot) error {
	return upsertSnapshot(s.db, snapshot)
}

func (s *SqliteStorage) CreateEntry(entry *Entry) error {
	return s.db.Create(entry).Error
}

func (s *SqliteStorage) GetEntriesByRound(round uint64) ([]*Entry, error) {

	var entries []*Entry
	err := s.db.Where("round = ?", round).Order("id").Find(&entries).Error
	if err != nil {
		return nil, err
	}

	return entries, nil
}

func (s *SqliteStorage) CreateDraw(draw *Draw) error {
	logger.Debug("creating draw...", zap.Uint64("request id", draw.RequestID))

	err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "request_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"round", "status", "players", "pot", "requested_at"}),
	}).Create(draw).Error
	if err != nil {
		return err
	}

	logger.Debug("creating draw... done")
	return nil
}

func (s *SqliteStorage) SettleDraw(requestID uint64, winner string, winnerIndex int, prize string, closedAt time.Time) error {
	logger.Debug("settling draw...", zap.Uint64("request id", requestID))

	tx := s.db.Model(&Draw{}).Where("request_id = ?", requestID).Updates(map[string]interface{}{
		"status":       DrawSettled,
		"winner":       winner,
		"winner_index": winnerIndex,
		"prize":        prize,
		"closed_at":    closedAt,
	})
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return fmt.Errorf("settle draw %d: %w", requestID, ErrNotFound)
	}

	logger.Debug("settling draw... done")
	return nil
}

func (s *SqliteStorage) ExpireDraw(requestID uint64, closedAt time.Time) error {
	tx := s.db.Model(&Draw{}).Where("request_id = ?", requestID).Updates(map[string]interface{}{
		"status":    DrawExpired,
		"closed_at": closedAt,
	})
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return fmt.Errorf("expire draw %d: %w", requestID, ErrNotFound)
	}
	return nil
}

func (s *SqliteStorage) GetDraw(requestID uint64) (*Draw, error) {

	var draw Draw
	err := s.db.Where("request_id = ?", requestID).First(&draw).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return &draw, nil
}

// GetRecentDraws returns the newest draws first. An empty status matches all.
func (s *SqliteStorage) GetRecentDraws(status DrawStatus, limit int) ([]*Draw, error) {

	query := s.db.Order("request_id desc").Limit(limit)
	if status != "" {
		query = query.Where("status = ?", status)
	}

	var draws []*Draw
	if err := query.Find(&draws).Error; err != nil {
		return nil, err
	}

	return draws, nil
}

func (s *SqliteStorage) CreateProof(proof *DrawProof) error {
	return s.db.Clauses(clause.OnConflict{DoNothing: true}).Create(proof).Error
}

func (s *SqliteStorage) GetProof(requestID uint64) (*DrawProof, error) {

	var proof DrawProof
	err := s.db.Where("request_id = ?", requestID).First(&proof).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return &proof, nil
}

func (s *SqliteStorage) CreditBalance(address string, amount *big.Int) error {
	logger.Debug("crediting balance...", zap.String("address", address), zap.String("amount", amount.String()))

	err := s.db.Transaction(func(tx *gorm.DB) error {
		return creditBalance(tx, address, amount)
	})
	if err != nil {
		return err
	}

	logger.Debug("crediting balance... done")
	return nil
}

// SettleSnapshot credits the winner and replaces the raffle snapshot in one
// transaction. Either both writes land or neither does.
func (s *SqliteStorage) SettleSnapshot(address string, amount *big.Int, snapshot *RaffleSnapshot) error {
	logger.Debug("settling snapshot...",
		zap.String("address", address),
		zap.String("amount", amount.String()),
		zap.Uint64("round", snapshot.Round))

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := creditBalance(tx, address, amount); err != nil {
			return err
		}
		return upsertSnapshot(tx, snapshot)
	})
	if err != nil {
		return err
	}

	logger.Debug("settling snapshot... done")
	return nil
}

func (s *SqliteStorage) GetBalance(address string) (*Balance, error) {

	var balance Balance
	err := s.db.Where("address = ?", address).First(&balance).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &Balance{Address: address, Amount: "0"}, nil
	}
	if err != nil {
		return nil, err
	}

	return &balance, nil
}

func (s *SqliteStorage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func upsertSnapshot(db *gorm.DB, snapshot *RaffleSnapshot) error {
	snapshot.ID = snapshotRowID

	return db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(snapshot).Error
}

func creditBalance(tx *gorm.DB, address string, amount *big.Int) error {
	var balance Balance
	err := tx.Where("address = ?", address).First(&balance).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	current, ok := new(big.Int).SetString(orZero(balance.Amount), 10)
	if !ok {
		return fmt.Errorf("balance of %s is corrupt: %q", address, balance.Amount)
	}

	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "address"}},
		DoUpdates: clause.AssignmentColumns([]string{"amount", "wins", "updated_at"}),
	}).Create(&Balance{
		Address: address,
		Amount:  current.Add(current, amount).String(),
		Wins:    balance.Wins + 1,
	}).Error
}

func orZero(amount string) string {
	if amount == "" {
		return "0"
	}
	return amount
}
