package repository

import (
	"context"
	"errors"

	"github.com/adlift/trafficd/internal/wallet/domain"
	"gorm.io/gorm"
)

type repo struct {
	db *gorm.DB
}

func Provide(db *gorm.DB) domain.Repository {
	return &repo{db: db}
}

func (r *repo) FindByUserID(ctx context.Context, tx *gorm.DB, userID int64) (*domain.Wallet, error) {
	if tx == nil {
		tx = r.db
	}
	var wallet domain.Wallet
	err := tx.WithContext(ctx).Where("user_id = ?", userID).First(&wallet).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &wallet, nil
}

func (r *repo) Credit(ctx context.Context, tx *gorm.DB, walletID int64, txn *domain.Transaction) error {
	if tx == nil {
		return errors.New("wallet credit requires a transaction handle")
	}
	if txn.Amount <= 0 {
		return errors.New("credit amount must be positive")
	}
	txn.WalletID = walletID
	if err := tx.WithContext(ctx).Create(txn).Error; err != nil {
		return err
	}
	return tx.WithContext(ctx).Model(&domain.Wallet{}).
		Where("id = ?", walletID).
		Update("balance", gorm.Expr("balance + ?", txn.Amount)).Error
}
