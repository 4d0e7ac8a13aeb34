package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type TransactionType string

const (
	TransactionRefund TransactionType = "refund"
)

type Wallet struct {
	ID        int64     `gorm:"primaryKey"`
	UserID    int64     `gorm:"not null;uniqueIndex"`
	Balance   float64   `gorm:"not null;default:0"`
	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Wallet) TableName() string { return "wallets" }

// Transaction is the immutable record of a wallet balance change. The
// unique index on (campaign_id, type) is the database-level guard against
// crediting the same campaign refund twice.
type Transaction struct {
	ID         snowflake.ID    `gorm:"primaryKey"`
	WalletID   int64           `gorm:"not null;index"`
	CampaignID int64           `gorm:"not null;uniqueIndex:ux_wallet_tx_campaign_type,priority:1"`
	Type       TransactionType `gorm:"type:text;not null;uniqueIndex:ux_wallet_tx_campaign_type,priority:2"`
	Amount     float64         `gorm:"not null"`
	Note       string          `gorm:"type:text"`
	CreatedAt  time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Transaction) TableName() string { return "wallet_transactions" }
