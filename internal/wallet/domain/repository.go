package domain

import (
	"context"

	"gorm.io/gorm"
)

type Repository interface {
	// FindByUserID returns nil when the user has no wallet.
	FindByUserID(ctx context.Context, tx *gorm.DB, userID int64) (*Wallet, error)

	// Credit increments the wallet balance and inserts the transaction
	// record using the caller's transaction handle, so both land in the
	// same commit.
	Credit(ctx context.Context, tx *gorm.DB, walletID int64, txn *Transaction) error
}
