package credit

import (
	"context"
	"testing"
	"time"

	"github.com/filpass_credits/apperrors"
	"github.com/filpass_credits/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuyCredits(t *testing.T) {
	db := newTestDB(t)
	svc := NewCreditService(db)

	tx, err := svc.BuyCredits(context.Background(), BuyCreditsParams{
		UserID:               1,
		From:                 testFunderAddr,
		To:                   "f1storageproviderwallet",
		Amount:               "1000",
		TransactionHash:      "0xbuy1",
		AdditionalTicketDays: 30,
	})
	require.NoError(t, err)
	assert.Equal(t, model.TransactionPending, tx.Status)
	assert.Equal(t, "1000", tx.Amount)
	assert.Equal(t, 30, tx.AdditionalTicketDays)

	// The ledger and receiver were created on first use.
	var credit model.UserCredit
	require.NoError(t, db.First(&credit, tx.UserCreditID).Error)
	assert.Equal(t, uint(1), credit.UserID)
	assert.Equal(t, "0", credit.TotalHeight)
	assert.Nil(t, credit.WithdrawStartsAt)

	// A second purchase reuses the same ledger.
	tx2, err := svc.BuyCredits(context.Background(), BuyCreditsParams{
		UserID:               1,
		From:                 testFunderAddr,
		To:                   "f1storageproviderwallet",
		Amount:               "500",
		TransactionHash:      "0xbuy2",
		AdditionalTicketDays: 10,
	})
	require.NoError(t, err)
	assert.Equal(t, tx.UserCreditID, tx2.UserCreditID)
}

func TestBuyCreditsValidation(t *testing.T) {
	db := newTestDB(t)
	svc := NewCreditService(db)

	_, err := svc.BuyCredits(context.Background(), BuyCreditsParams{
		UserID: 1, To: "not-a-wallet", Amount: "1000", TransactionHash: "0x1",
	})
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))

	_, err = svc.BuyCredits(context.Background(), BuyCreditsParams{
		UserID: 1, To: "f1wallet", Amount: "-5", TransactionHash: "0x1",
	})
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))

	_, err = svc.BuyCredits(context.Background(), BuyCreditsParams{
		UserID: 1, To: "f1wallet", Amount: "1000",
	})
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))
}

func TestRefundCredits(t *testing.T) {
	db := newTestDB(t)
	svc := NewCreditService(db)
	ledger := seedLedger(t, db, 1, "1000", "600", "0")

	past := time.Now().Add(-time.Hour)
	require.NoError(t, db.Model(&model.UserCredit{}).
		Where("id = ?", ledger.ID).
		Update("refund_starts_at", past).Error)

	refund, err := svc.RefundCredits(context.Background(), ledger.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, "400", refund.Amount)
	assert.Equal(t, model.TransactionPending, refund.Status)

	var updated model.UserCredit
	require.NoError(t, db.First(&updated, ledger.ID).Error)
	assert.Equal(t, "400", updated.TotalRefunds)

	// Everything is now moved out; a second refund has nothing left.
	_, err = svc.RefundCredits(context.Background(), ledger.ID, 1)
	assert.Equal(t, apperrors.KindState, apperrors.KindOf(err))
}

func TestRefundCreditsBeforeWindow(t *testing.T) {
	db := newTestDB(t)
	svc := NewCreditService(db)
	ledger := seedLedger(t, db, 1, "1000", "0", "0")

	// seedLedger opens refunds only after the withdraw window closes.
	_, err := svc.RefundCredits(context.Background(), ledger.ID, 1)
	assert.Equal(t, apperrors.KindState, apperrors.KindOf(err))
}

func TestRefundCreditsWrongUser(t *testing.T) {
	db := newTestDB(t)
	svc := NewCreditService(db)
	ledger := seedLedger(t, db, 1, "1000", "0", "0")

	_, err := svc.RefundCredits(context.Background(), ledger.ID, 99)
	assert.Equal(t, apperrors.KindNotFound, apperrors.KindOf(err))
}

func TestGetUserCredits(t *testing.T) {
	db := newTestDB(t)
	svc := NewCreditService(db)
	ledger := seedLedger(t, db, 1, "1000", "0", "0")

	// Ledgers with no confirmed deposit are not listed.
	list, total, err := svc.GetUserCredits(context.Background(), 1, 1, 20)
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.Equal(t, int64(0), total)

	require.NoError(t, db.Create(&model.CreditTransaction{
		UserCreditID:    ledger.ID,
		TransactionHash: "0xconfirmed",
		Status:          model.TransactionSuccess,
		Amount:          "1000",
	}).Error)

	list, total, err = svc.GetUserCredits(context.Background(), 1, 1, 20)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, int64(1), total)
	assert.False(t, list[0].IsExpired)
	assert.False(t, list[0].IsRefundStarted)
	assert.Equal(t, testRecipientAddr, list[0].Credit.Receiver.WalletAddress)
}

func TestGetUserCreditsFlags(t *testing.T) {
	db := newTestDB(t)
	svc := NewCreditService(db)
	ledger := seedLedger(t, db, 1, "1000", "0", "0")

	past := time.Now().Add(-2 * time.Hour)
	require.NoError(t, db.Model(&model.UserCredit{}).
		Where("id = ?", ledger.ID).
		Updates(map[string]interface{}{
			"withdraw_expires_at": past,
			"refund_starts_at":    past,
		}).Error)
	require.NoError(t, db.Create(&model.CreditTransaction{
		UserCreditID:    ledger.ID,
		TransactionHash: "0xconfirmed",
		Status:          model.TransactionSuccess,
		Amount:          "1000",
	}).Error)

	list, _, err := svc.GetUserCredits(context.Background(), 1, 1, 20)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, list[0].IsExpired)
	assert.True(t, list[0].IsRefundStarted)
}
