package credit

import (
	"context"
	"crypto/rsa"
	"log"
	"math/big"
	"time"

	"github.com/filpass_credits/apperrors"
	"github.com/filpass_credits/filpass"
	"github.com/filpass_credits/model"
	"github.com/filpass_credits/repository"
	"github.com/golang-jwt/jwt/v4"
	"gorm.io/gorm"
)

// Submitter sends a decoded ticket to the settlement contract and returns the
// transaction hash.
type Submitter interface {
	SubmitTicket(ctx context.Context, token filpass.DecodedToken) (string, error)
}

// RedeemServiceOptions carries redemption configuration.
type RedeemServiceOptions struct {
	VerifyKey        *rsa.PublicKey
	Submitter        Submitter
	DailyRedeemLimit int
	Now              func() time.Time
}

// RedeemService is the oracle-side path: it verifies a presented ticket,
// guards the ledger state, submits the withdrawal on chain and records the
// pending withdraw transaction.
type RedeemService struct {
	db      *gorm.DB
	tickets *repository.TicketRepository
	credits *repository.CreditRepository
	opts    RedeemServiceOptions
	parser  *jwt.Parser
}

func NewRedeemService(db *gorm.DB, opts RedeemServiceOptions) *RedeemService {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &RedeemService{
		db:      db,
		tickets: repository.NewTicketRepository(db),
		credits: repository.NewCreditRepository(db),
		opts:    opts,
		parser:  jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()})),
	}
}

// Redeem verifies and submits one ticket token.
func (s *RedeemService) Redeem(ctx context.Context, tokenString string) (*model.WithdrawTransaction, error) {
	var claims TicketClaims
	if _, err := s.parser.ParseWithClaims(tokenString, &claims, func(*jwt.Token) (interface{}, error) {
		return s.opts.VerifyKey, nil
	}); err != nil {
		return nil, apperrors.Validation("invalid token")
	}

	receiver, err := s.credits.FindReceiverByWallet(ctx, claims.Audience)
	if err != nil {
		return nil, apperrors.NotFound("receiver not found")
	}

	now := s.opts.Now()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	redeemed, err := s.tickets.CountRedemptionsSince(ctx, receiver.ID, midnight)
	if err != nil {
		return nil, apperrors.Transaction("counting redemptions", err)
	}
	if redeemed >= int64(s.opts.DailyRedeemLimit) {
		return nil, apperrors.State("redemption limit exceeded for today")
	}

	ticket, err := s.tickets.FindByPublicID(ctx, claims.ID)
	if err != nil {
		return nil, apperrors.NotFound("credit ticket not found")
	}

	ledger := ticket.TicketGroup.UserCredit
	if ticket.TicketGroup.ExpiresAt.Before(now) ||
		ledger.WithdrawExpiresAt == nil || ledger.WithdrawExpiresAt.Before(now) {
		return nil, apperrors.State("ticket expired")
	}
	if ticket.Status != model.TicketValid {
		return nil, apperrors.State("credit ticket cannot be redeemed")
	}

	entitlement, err := ComputeEntitlement(&ledger)
	if err != nil {
		return nil, apperrors.Transaction("computing entitlement", err)
	}
	height, ok := new(big.Int).SetString(ticket.Height, 10)
	if !ok {
		return nil, apperrors.Transaction("parsing ticket height", nil)
	}
	// The ratchet: a ticket at or below the current height pays nothing and
	// is refused before touching the chain.
	if entitlement.CurrentHeight.Cmp(height) >= 0 {
		return nil, apperrors.State("a bigger ticket was already redeemed")
	}
	amount := new(big.Int).Sub(height, entitlement.CurrentHeight)

	decoded, err := claims.DecodedToken()
	if err != nil {
		return nil, apperrors.Validation("invalid token")
	}

	txHash, err := s.opts.Submitter.SubmitTicket(ctx, decoded)
	if err != nil {
		log.Printf("submit ticket %s failed: %v", ticket.PublicID, err)
		return nil, apperrors.External("ticket submission failed", err)
	}

	withdrawals, err := parseAmount(ledger.TotalWithdrawals)
	if err != nil {
		return nil, apperrors.Transaction("parsing total withdrawals", err)
	}
	withdrawals.Add(withdrawals, amount)

	withdraw := model.WithdrawTransaction{
		UserCreditID:    ledger.ID,
		CreditTicketID:  ticket.ID,
		TransactionHash: txHash,
		Status:          model.TransactionPending,
		Amount:          amount.String(),
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&model.CreditTicket{}).
			Where("id = ? AND status = ?", ticket.ID, model.TicketValid).
			Update("status", model.TicketRedeemed).Error; err != nil {
			return err
		}
		if err := tx.Model(&model.UserCredit{}).
			Where("id = ?", ledger.ID).
			Update("total_withdrawals", withdrawals.String()).Error; err != nil {
			return err
		}
		return tx.Create(&withdraw).Error
	})
	if err != nil {
		return nil, apperrors.Transaction("recording withdrawal", err)
	}
	return &withdraw, nil
}
