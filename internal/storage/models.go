package storage

import "time"

const snapshotRowID = 1

type DrawStatus = string

const (
	DrawPending DrawStatus = "pending"
	DrawSettled DrawStatus = "settled"
	DrawExpired DrawStatus = "expired"
)

// RaffleSnapshot is the journaled raffle state. There is a single row.
type RaffleSnapshot struct {
	ID              uint     `gorm:"primaryKey"`
	State           string   `gorm:"not null"`
	Players         []string `gorm:"serializer:json"`
	Pot             string   `gorm:"not null;default:0"`
	LastTimestampNs int64    `gorm:"not null"`
	RecentWinner    string   `gorm:"default:''"`
	PendingID       *uint64
	LastRequestID   uint64 `gorm:"default:0"`
	RequestedAtNs   int64  `gorm:"default:0"`
	Round           uint64 `gorm:"default:0"`
	UpdatedAt       time.Time
}

type Entry struct {
	ID        int64  `gorm:"primaryKey"`
	Round     uint64 `gorm:"index;not null"`
	Player    string `gorm:"index;not null"`
	Amount    string `gorm:"not null"`
	CreatedAt time.Time
}

type Draw struct {
	RequestID   uint64     `gorm:"primaryKey;autoIncrement:false"`
	Round       uint64     `gorm:"index;not null"`
	Status      DrawStatus `gorm:"index;not null"`
	Players     int        `gorm:"not null"`
	Pot         string     `gorm:"not null"`
	Winner      string     `gorm:"default:''"`
	WinnerIndex int        `gorm:"default:0"`
	Prize       string     `gorm:"default:''"`
	RequestedAt time.Time
	ClosedAt    *time.Time
}

type Balance struct {
	Address   string `gorm:"primaryKey"`
	Amount    string `gorm:"not null;default:0"`
	Wins      int    `gorm:"default:0"`
	UpdatedAt time.Time
}

// DrawProof is the BLS proof behind a draw's random words, hex encoded.
type DrawProof struct {
	RequestID uint64 `gorm:"primaryKey;autoIncrement:false"`
	Seed      string `gorm:"not null"`
	Signature string `gorm:"not null"`
	CreatedAt time.Time
}
