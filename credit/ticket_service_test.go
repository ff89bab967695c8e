package credit

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"math/big"
	"testing"
	"time"

	"github.com/filpass_credits/apperrors"
	"github.com/filpass_credits/filpass"
	"github.com/filpass_credits/model"
	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const (
	testFunderAddr    = "0x1000000000000000000000000000000000000001"
	testContractAddr  = "0x2000000000000000000000000000000000000002"
	testRecipientAddr = "0x3000000000000000000000000000000000000003"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, model.AutoMigrate(db))
	return db
}

func newTestKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return key
}

// seedLedger creates a receiver, contract and ledger owned by userID with the
// given height counters and a withdraw window open for another week.
func seedLedger(t *testing.T, db *gorm.DB, userID uint, totalHeight, withdrawals, refunds string) *model.UserCredit {
	t.Helper()

	receiver := model.Receiver{WalletAddress: testRecipientAddr}
	require.NoError(t, db.Create(&receiver).Error)

	contract := model.Contract{
		UserID:              userID,
		Address:             testContractAddr,
		DeployedFromAddress: testFunderAddr,
	}
	require.NoError(t, db.Create(&contract).Error)

	startsAt := time.Now().Add(-24 * time.Hour)
	expiresAt := time.Now().Add(7 * 24 * time.Hour)
	refundsAt := expiresAt.Add(2 * 24 * time.Hour)
	credit := model.UserCredit{
		UserID:            userID,
		ReceiverID:        receiver.ID,
		ContractID:        contract.ID,
		Amount:            totalHeight,
		TotalHeight:       totalHeight,
		TotalWithdrawals:  withdrawals,
		TotalRefunds:      refunds,
		WithdrawStartsAt:  &startsAt,
		WithdrawExpiresAt: &expiresAt,
		RefundStartsAt:    &refundsAt,
	}
	require.NoError(t, db.Create(&credit).Error)
	return &credit
}

func newTestTicketService(db *gorm.DB, key *rsa.PrivateKey) *TicketService {
	return NewTicketService(db, TicketServiceOptions{
		SignKey:             key,
		KeyID:               "test-key",
		IssuerURL:           "https://issuer.test",
		MinCreditPerTicket:  big.NewInt(10),
		MaxTicketsPerLedger: 10,
	})
}

func TestCreateTickets(t *testing.T) {
	db := newTestDB(t)
	key := newTestKey(t)
	svc := newTestTicketService(db, key)
	ledger := seedLedger(t, db, 1, "1000", "0", "0")

	result, err := svc.CreateTickets(context.Background(), CreateTicketsParams{
		UserCreditID:    ledger.ID,
		UserID:          1,
		SplitNumber:     3,
		CreditPerTicket: big.NewInt(100),
	})
	require.NoError(t, err)
	require.NotNil(t, result.Group)
	require.Len(t, result.Tickets, 3)

	// Heights are cumulative and strictly increasing.
	assert.Equal(t, "100", result.Tickets[0].Height)
	assert.Equal(t, "200", result.Tickets[1].Height)
	assert.Equal(t, "300", result.Tickets[2].Height)
	for _, tk := range result.Tickets {
		assert.Equal(t, "100", tk.Amount)
		assert.Equal(t, model.TicketValid, tk.Status)
		assert.NotEmpty(t, tk.PublicID)
	}

	// Every token verifies against the public key and carries the contract
	// claim set.
	var claims TicketClaims
	parsed, err := jwt.ParseWithClaims(result.Tickets[0].Token, &claims, func(*jwt.Token) (interface{}, error) {
		return &key.PublicKey, nil
	})
	require.NoError(t, err)
	assert.True(t, parsed.Valid)
	assert.Equal(t, "test-key", parsed.Header["kid"])
	assert.Equal(t, result.Tickets[0].PublicID, claims.ID)
	assert.Equal(t, filpass.TicketType, claims.TicketType)
	assert.Equal(t, filpass.TicketVersion, claims.TicketVersion)
	assert.Equal(t, testFunderAddr, claims.Funder)
	assert.Equal(t, testContractAddr, claims.Subject)
	assert.Equal(t, testRecipientAddr, claims.Audience)
	assert.Equal(t, "100", claims.LaneTotalAmount)
	assert.Equal(t, "100", claims.LaneGuaranteedAmount)
	assert.Equal(t, 0, claims.TicketLane)

	// Token expiry sits one hour inside the withdraw window.
	assert.Equal(t, ledger.WithdrawExpiresAt.Add(-time.Hour).Unix(), claims.ExpiresAt)
}

func TestCreateTicketsHeightsContinueFromCurrentHeight(t *testing.T) {
	db := newTestDB(t)
	svc := newTestTicketService(db, newTestKey(t))
	ledger := seedLedger(t, db, 1, "1000", "200", "100")

	result, err := svc.CreateTickets(context.Background(), CreateTicketsParams{
		UserCreditID:    ledger.ID,
		UserID:          1,
		SplitNumber:     2,
		CreditPerTicket: big.NewInt(50),
	})
	require.NoError(t, err)
	assert.Equal(t, "350", result.Tickets[0].Height)
	assert.Equal(t, "400", result.Tickets[1].Height)
}

func TestCreateTicketsValidation(t *testing.T) {
	db := newTestDB(t)
	svc := newTestTicketService(db, newTestKey(t))
	ledger := seedLedger(t, db, 1, "1000", "0", "0")

	_, err := svc.CreateTickets(context.Background(), CreateTicketsParams{
		UserCreditID: ledger.ID, UserID: 1, SplitNumber: 0, CreditPerTicket: big.NewInt(100),
	})
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))

	_, err = svc.CreateTickets(context.Background(), CreateTicketsParams{
		UserCreditID: ledger.ID, UserID: 1, SplitNumber: 1, CreditPerTicket: nil,
	})
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))
}

func TestCreateTicketsWrongUser(t *testing.T) {
	db := newTestDB(t)
	svc := newTestTicketService(db, newTestKey(t))
	ledger := seedLedger(t, db, 1, "1000", "0", "0")

	_, err := svc.CreateTickets(context.Background(), CreateTicketsParams{
		UserCreditID: ledger.ID, UserID: 2, SplitNumber: 1, CreditPerTicket: big.NewInt(100),
	})
	assert.Equal(t, apperrors.KindNotFound, apperrors.KindOf(err))
}

func TestCreateTicketsExpiredWindow(t *testing.T) {
	db := newTestDB(t)
	svc := newTestTicketService(db, newTestKey(t))
	ledger := seedLedger(t, db, 1, "1000", "0", "0")

	past := time.Now().Add(-time.Hour)
	require.NoError(t, db.Model(&model.UserCredit{}).
		Where("id = ?", ledger.ID).
		Update("withdraw_expires_at", past).Error)

	_, err := svc.CreateTickets(context.Background(), CreateTicketsParams{
		UserCreditID: ledger.ID, UserID: 1, SplitNumber: 1, CreditPerTicket: big.NewInt(100),
	})
	assert.Equal(t, apperrors.KindState, apperrors.KindOf(err))
}

func TestCreateTicketsSlotCap(t *testing.T) {
	db := newTestDB(t)
	key := newTestKey(t)
	svc := NewTicketService(db, TicketServiceOptions{
		SignKey:             key,
		KeyID:               "test-key",
		IssuerURL:           "https://issuer.test",
		MinCreditPerTicket:  big.NewInt(1),
		MaxTicketsPerLedger: 3,
	})
	ledger := seedLedger(t, db, 1, "1000", "0", "0")

	_, err := svc.CreateTickets(context.Background(), CreateTicketsParams{
		UserCreditID: ledger.ID, UserID: 1, SplitNumber: 2, CreditPerTicket: big.NewInt(10),
	})
	require.NoError(t, err)

	// Only one slot left.
	_, err = svc.CreateTickets(context.Background(), CreateTicketsParams{
		UserCreditID: ledger.ID, UserID: 1, SplitNumber: 2, CreditPerTicket: big.NewInt(10),
	})
	assert.Equal(t, apperrors.KindState, apperrors.KindOf(err))

	_, err = svc.CreateTickets(context.Background(), CreateTicketsParams{
		UserCreditID: ledger.ID, UserID: 1, SplitNumber: 1, CreditPerTicket: big.NewInt(10),
	})
	require.NoError(t, err)
}

func TestCreateTicketsAmountGuards(t *testing.T) {
	db := newTestDB(t)
	svc := newTestTicketService(db, newTestKey(t))
	ledger := seedLedger(t, db, 1, "1000", "600", "0")

	// Below the configured minimum.
	_, err := svc.CreateTickets(context.Background(), CreateTicketsParams{
		UserCreditID: ledger.ID, UserID: 1, SplitNumber: 1, CreditPerTicket: big.NewInt(5),
	})
	assert.Equal(t, apperrors.KindState, apperrors.KindOf(err))

	// A single ticket above the remaining 400.
	_, err = svc.CreateTickets(context.Background(), CreateTicketsParams{
		UserCreditID: ledger.ID, UserID: 1, SplitNumber: 1, CreditPerTicket: big.NewInt(500),
	})
	assert.Equal(t, apperrors.KindState, apperrors.KindOf(err))

	// Each ticket fits but the split total does not.
	_, err = svc.CreateTickets(context.Background(), CreateTicketsParams{
		UserCreditID: ledger.ID, UserID: 1, SplitNumber: 3, CreditPerTicket: big.NewInt(150),
	})
	assert.Equal(t, apperrors.KindState, apperrors.KindOf(err))

	// Exactly the remaining entitlement is fine.
	result, err := svc.CreateTickets(context.Background(), CreateTicketsParams{
		UserCreditID: ledger.ID, UserID: 1, SplitNumber: 4, CreditPerTicket: big.NewInt(100),
	})
	require.NoError(t, err)
	assert.Equal(t, "1000", result.Tickets[3].Height)
}
