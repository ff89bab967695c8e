package repository

import (
	"context"

	"github.com/filpass_credits/model"
	"gorm.io/gorm"
)

type TransferRepository struct {
	db *gorm.DB
}

func NewTransferRepository(db *gorm.DB) *TransferRepository {
	return &TransferRepository{db: db}
}

// ListUnprocessed returns up to limit active payment rows that have neither
// been processed nor exhausted their verification attempts.
func (r *TransferRepository) ListUnprocessed(ctx context.Context, limit, maxAttempts int) ([]*model.PaymentTransaction, error) {
	var rows []*model.PaymentTransaction
	err := r.db.WithContext(ctx).
		Where("is_active = ? AND is_processed = ? AND attempts < ?", true, false, maxAttempts).
		Order("id asc").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// FindPendingByRef matches a chain message to its transfer row by the
// embedded reference.
func (r *TransferRepository) FindPendingByRef(ctx context.Context, transferRef string) (*model.Transfer, error) {
	var transfer model.Transfer
	if err := r.db.WithContext(ctx).
		Preload("TransferRequest").
		Where("transfer_ref = ? AND is_active = ? AND status = ?", transferRef, true, model.TransactionPending).
		First(&transfer).Error; err != nil {
		return nil, err
	}
	return &transfer, nil
}

// RecordFailure bumps a payment row's attempt counter and deactivates it once
// the ceiling is reached, so a poisoned row cannot occupy the batch forever.
func (r *TransferRepository) RecordFailure(ctx context.Context, id uint, maxAttempts int) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row model.PaymentTransaction
		if err := tx.Where("id = ?", id).First(&row).Error; err != nil {
			return err
		}
		row.Attempts++
		if row.Attempts >= maxAttempts {
			row.IsActive = false
		}
		return tx.Save(&row).Error
	})
}
