package credit

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/filpass_credits/apperrors"
	"github.com/filpass_credits/model"
	"github.com/filpass_credits/repository"
	"gorm.io/gorm"
)

// CreditService covers ledger lifecycle outside ticket issuance: recording
// deposits, reclaiming remaining entitlement, and reads.
type CreditService struct {
	db      *gorm.DB
	credits *repository.CreditRepository
	now     func() time.Time
}

func NewCreditService(db *gorm.DB) *CreditService {
	return &CreditService{
		db:      db,
		credits: repository.NewCreditRepository(db),
		now:     time.Now,
	}
}

// BuyCreditsParams records one pending on-chain deposit. Amount is attoFIL.
type BuyCreditsParams struct {
	UserID               uint
	From                 string
	To                   string // storage provider wallet
	Amount               string
	TransactionHash      string
	ContractID           uint
	AdditionalTicketDays int
}

// BuyCredits registers a deposit awaiting confirmation. The ledger and its
// receiver are created on first use; the transaction row stays PENDING until
// the confirmation job sees the receipt.
func (s *CreditService) BuyCredits(ctx context.Context, params BuyCreditsParams) (*model.CreditTransaction, error) {
	if !validWalletAddress(params.To) {
		return nil, apperrors.Validation("invalid storage provider address")
	}
	amount, err := parseAmount(params.Amount)
	if err != nil || amount.Sign() <= 0 {
		return nil, apperrors.Validation("invalid deposit amount")
	}
	if params.TransactionHash == "" {
		return nil, apperrors.Validation("transaction hash is required")
	}

	receiver, err := s.credits.FindOrCreateReceiver(ctx, params.To)
	if err != nil {
		return nil, apperrors.Transaction("resolving receiver", err)
	}

	var created model.CreditTransaction
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var credit model.UserCredit
		err := tx.Where("user_id = ? AND receiver_id = ?", params.UserID, receiver.ID).First(&credit).Error
		if err == gorm.ErrRecordNotFound {
			credit = model.UserCredit{
				UserID:     params.UserID,
				ReceiverID: receiver.ID,
				ContractID: params.ContractID,
			}
			if err := tx.Create(&credit).Error; err != nil {
				return err
			}
		} else if err != nil {
			return err
		}

		created = model.CreditTransaction{
			UserCreditID:         credit.ID,
			From:                 params.From,
			ReceiverID:           receiver.ID,
			TransactionHash:      params.TransactionHash,
			Status:               model.TransactionPending,
			Amount:               amount.String(),
			AdditionalTicketDays: params.AdditionalTicketDays,
		}
		return tx.Create(&created).Error
	})
	if err != nil {
		log.Printf("buy credits for user %d failed: %v", params.UserID, err)
		return nil, apperrors.Transaction("recording credit purchase", err)
	}
	return &created, nil
}

// RefundCredits moves the whole remaining entitlement into totalRefunds once
// the refund window has opened, and records the reclaim request.
func (s *CreditService) RefundCredits(ctx context.Context, userCreditID, userID uint) (*model.RefundTransaction, error) {
	credit, err := s.credits.FindByIDAndUser(ctx, userCreditID, userID)
	if err != nil {
		return nil, apperrors.NotFound("user credit not found")
	}
	if credit.RefundStartsAt == nil || credit.RefundStartsAt.After(s.now()) {
		return nil, apperrors.State("refund not started")
	}

	entitlement, err := ComputeEntitlement(credit)
	if err != nil {
		return nil, apperrors.Transaction("computing entitlement", err)
	}
	if entitlement.Remaining.Sign() <= 0 {
		return nil, apperrors.State("all credits already used or refunded")
	}

	refunds, err := parseAmount(credit.TotalRefunds)
	if err != nil {
		return nil, apperrors.Transaction("parsing total refunds", err)
	}
	refunds.Add(refunds, entitlement.Remaining)

	var refund model.RefundTransaction
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&model.UserCredit{}).
			Where("id = ?", credit.ID).
			Update("total_refunds", refunds.String()).Error; err != nil {
			return err
		}
		refund = model.RefundTransaction{
			UserCreditID: credit.ID,
			Status:       model.TransactionPending,
			Amount:       entitlement.Remaining.String(),
		}
		return tx.Create(&refund).Error
	})
	if err != nil {
		log.Printf("refund credits for ledger %d failed: %v", credit.ID, err)
		return nil, apperrors.Transaction("recording refund", err)
	}
	return &refund, nil
}

// CreditSummary is a ledger row with its time-derived flags.
type CreditSummary struct {
	Credit          *model.UserCredit `json:"credit"`
	IsExpired       bool              `json:"isExpired"`
	IsRefundStarted bool              `json:"isRefundStarted"`
}

// GetUserCredits pages through a user's ledgers with at least one confirmed
// deposit.
func (s *CreditService) GetUserCredits(ctx context.Context, userID uint, page, size int) ([]CreditSummary, int64, error) {
	credits, total, err := s.credits.ListByUser(ctx, userID, page, size)
	if err != nil {
		return nil, 0, apperrors.Transaction("listing user credits", err)
	}

	now := s.now()
	summaries := make([]CreditSummary, 0, len(credits))
	for _, c := range credits {
		summaries = append(summaries, CreditSummary{
			Credit:          c,
			IsExpired:       c.WithdrawExpiresAt != nil && c.WithdrawExpiresAt.Before(now),
			IsRefundStarted: c.RefundStartsAt != nil && c.RefundStartsAt.Before(now),
		})
	}
	return summaries, total, nil
}

// Filecoin f1/f3 wallets and EVM hex addresses are both accepted as
// storage-provider destinations.
func validWalletAddress(address string) bool {
	return common.IsHexAddress(address) ||
		strings.HasPrefix(address, "f1") ||
		strings.HasPrefix(address, "f3")
}
