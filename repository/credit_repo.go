package repository

import (
	"context"

	"github.com/filpass_credits/model"
	"gorm.io/gorm"
)

type CreditRepository struct {
	db *gorm.DB
}

func NewCreditRepository(db *gorm.DB) *CreditRepository {
	return &CreditRepository{db: db}
}

// FindByIDAndUser loads a ledger only if it belongs to userID.
func (r *CreditRepository) FindByIDAndUser(ctx context.Context, id, userID uint) (*model.UserCredit, error) {
	var credit model.UserCredit
	if err := r.db.WithContext(ctx).
		Preload("Receiver").
		Preload("Contract").
		Where("id = ? AND user_id = ?", id, userID).
		First(&credit).Error; err != nil {
		return nil, err
	}
	return &credit, nil
}

// FindByUserAndReceiver returns the ledger for a (user, receiver) pair, if any.
func (r *CreditRepository) FindByUserAndReceiver(ctx context.Context, userID, receiverID uint) (*model.UserCredit, error) {
	var credit model.UserCredit
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND receiver_id = ?", userID, receiverID).
		First(&credit).Error; err != nil {
		return nil, err
	}
	return &credit, nil
}

// ListByUser pages through a user's ledgers that have at least one confirmed
// deposit, newest first.
func (r *CreditRepository) ListByUser(ctx context.Context, userID uint, page, size int) ([]*model.UserCredit, int64, error) {
	confirmed := r.db.Model(&model.CreditTransaction{}).
		Select("1").
		Where("credit_transactions.user_credit_id = user_credits.id AND credit_transactions.status = ?", model.TransactionSuccess)

	query := r.db.WithContext(ctx).Model(&model.UserCredit{}).
		Where("user_id = ?", userID).
		Where("EXISTS (?)", confirmed)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if page < 1 {
		page = 1
	}
	var credits []*model.UserCredit
	if err := query.
		Preload("Receiver").
		Preload("Contract").
		Order("created_at desc").
		Offset((page - 1) * size).
		Limit(size).
		Find(&credits).Error; err != nil {
		return nil, 0, err
	}
	return credits, total, nil
}

// FindOrCreateReceiver resolves a storage provider by wallet address,
// creating the row on first use.
func (r *CreditRepository) FindOrCreateReceiver(ctx context.Context, walletAddress string) (*model.Receiver, error) {
	var receiver model.Receiver
	err := r.db.WithContext(ctx).Where("wallet_address = ?", walletAddress).First(&receiver).Error
	if err == nil {
		return &receiver, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, err
	}
	receiver = model.Receiver{WalletAddress: walletAddress}
	if err := r.db.WithContext(ctx).Create(&receiver).Error; err != nil {
		return nil, err
	}
	return &receiver, nil
}

// FindReceiverByWallet returns the receiver for a wallet address.
func (r *CreditRepository) FindReceiverByWallet(ctx context.Context, walletAddress string) (*model.Receiver, error) {
	var receiver model.Receiver
	if err := r.db.WithContext(ctx).Where("wallet_address = ?", walletAddress).First(&receiver).Error; err != nil {
		return nil, err
	}
	return &receiver, nil
}
