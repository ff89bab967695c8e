package jobs

import (
	"context"
	"fmt"
	"log"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/filpass_credits/model"
	"gorm.io/gorm"
)

// Minimal ABI for the contract's DepositMade event.
const depositABIJSON = `[{"anonymous":false,"inputs":[
{"indexed":true,"internalType":"address","name":"oracle","type":"address"},
{"indexed":true,"internalType":"address","name":"recipient","type":"address"},
{"indexed":false,"internalType":"uint256","name":"amount","type":"uint256"},
{"indexed":false,"internalType":"uint256","name":"refundTime","type":"uint256"}],
"name":"DepositMade","type":"event"}]`

const confirmBatchSize = 10

// ReceiptSource fetches transaction receipts.
type ReceiptSource interface {
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

var _ ReceiptSource = (*ethclient.Client)(nil)

// ConfirmDepositsOptions tunes deposit confirmation.
type ConfirmDepositsOptions struct {
	// LockDays is the gap between the withdraw window closing and refunds
	// opening on a fresh ledger.
	LockDays int
	Now      func() time.Time
}

// ConfirmDepositsJob polls pending deposit transactions, matches their
// DepositMade receipts and advances the ledger's entitlement ceiling and time
// windows atomically.
type ConfirmDepositsJob struct {
	db       *gorm.DB
	receipts ReceiptSource
	abi      abi.ABI
	eventID  common.Hash
	opts     ConfirmDepositsOptions
}

func NewConfirmDepositsJob(db *gorm.DB, receipts ReceiptSource, opts ConfirmDepositsOptions) (*ConfirmDepositsJob, error) {
	parsed, err := abi.JSON(strings.NewReader(depositABIJSON))
	if err != nil {
		return nil, err
	}
	if opts.LockDays <= 0 {
		opts.LockDays = 1
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &ConfirmDepositsJob{
		db:       db,
		receipts: receipts,
		abi:      parsed,
		eventID:  parsed.Events["DepositMade"].ID,
		opts:     opts,
	}, nil
}

// Run processes one batch of pending deposit transactions. Items fail
// independently.
func (j *ConfirmDepositsJob) Run(ctx context.Context) error {
	dayAgo := j.opts.Now().Add(-24 * time.Hour)

	var pending []model.CreditTransaction
	if err := j.db.WithContext(ctx).
		Where("status = ? AND created_at >= ?", model.TransactionPending, dayAgo).
		Order("id asc").
		Limit(confirmBatchSize).
		Find(&pending).Error; err != nil {
		return err
	}

	for _, row := range pending {
		if err := j.confirmOne(ctx, row); err != nil {
			log.Printf("confirming deposit %s: %v", row.TransactionHash, err)
		}
	}
	return nil
}

func (j *ConfirmDepositsJob) confirmOne(ctx context.Context, row model.CreditTransaction) error {
	receipt, err := j.receipts.TransactionReceipt(ctx, common.HexToHash(row.TransactionHash))
	if err != nil || receipt == nil {
		// Not mined yet; the next run will retry.
		return nil
	}

	if receipt.Status != types.ReceiptStatusSuccessful {
		return j.markFailed(ctx, row.ID,
			fmt.Sprintf("transaction reverted with receipt status %d", receipt.Status))
	}

	paid, err := j.depositedAmount(receipt)
	if err != nil {
		return j.markFailed(ctx, row.ID, err.Error())
	}

	expected, ok := new(big.Int).SetString(row.Amount, 10)
	if !ok {
		return j.markFailed(ctx, row.ID, fmt.Sprintf("invalid recorded amount %q", row.Amount))
	}
	if paid.Cmp(expected) != 0 {
		return j.markFailed(ctx, row.ID,
			fmt.Sprintf("token amount mismatch: expected %s, got %s", expected, paid))
	}

	return j.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.CreditTransaction{}).
			Where("id = ? AND status = ?", row.ID, model.TransactionPending).
			Updates(map[string]interface{}{
				"status":       model.TransactionSuccess,
				"block_number": receipt.BlockNumber.String(),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// Confirmed by a concurrent run.
			return nil
		}

		var credit model.UserCredit
		if err := tx.Where("id = ?", row.UserCreditID).First(&credit).Error; err != nil {
			return err
		}

		total, err := addAmount(credit.TotalHeight, paid)
		if err != nil {
			return err
		}
		lifetime, err := addAmount(credit.Amount, paid)
		if err != nil {
			return err
		}

		now := j.opts.Now()
		ticketTime := time.Duration(row.AdditionalTicketDays) * 24 * time.Hour
		lockTime := time.Duration(j.opts.LockDays) * 24 * time.Hour

		var withdrawStartsAt, withdrawExpiresAt, refundStartsAt time.Time
		firstCredit := credit.WithdrawStartsAt == nil
		expiredCredit := credit.RefundStartsAt != nil && !now.Before(*credit.RefundStartsAt)

		if firstCredit || expiredCredit {
			// Fresh window: the ledger either never had one or its previous
			// cycle has fully elapsed.
			withdrawStartsAt = now
			withdrawExpiresAt = now.Add(ticketTime)
			refundStartsAt = withdrawExpiresAt.Add(lockTime + 24*time.Hour)
		} else {
			withdrawStartsAt = *credit.WithdrawStartsAt
			withdrawExpiresAt = credit.WithdrawExpiresAt.Add(ticketTime)
			refundStartsAt = withdrawExpiresAt.Add(24 * time.Hour)
		}

		return tx.Model(&model.UserCredit{}).
			Where("id = ?", credit.ID).
			Updates(map[string]interface{}{
				"total_height":        total,
				"amount":              lifetime,
				"withdraw_starts_at":  withdrawStartsAt,
				"withdraw_expires_at": withdrawExpiresAt,
				"refund_starts_at":    refundStartsAt,
			}).Error
	})
}

// depositedAmount finds the DepositMade event in the receipt and returns its
// amount.
func (j *ConfirmDepositsJob) depositedAmount(receipt *types.Receipt) (*big.Int, error) {
	for _, logEntry := range receipt.Logs {
		if len(logEntry.Topics) == 0 || logEntry.Topics[0] != j.eventID {
			continue
		}
		var out struct {
			Amount     *big.Int
			RefundTime *big.Int
		}
		if err := j.abi.UnpackIntoInterface(&out, "DepositMade", logEntry.Data); err != nil {
			return nil, fmt.Errorf("unpack DepositMade: %w", err)
		}
		return out.Amount, nil
	}
	return nil, fmt.Errorf("no DepositMade event in receipt")
}

func (j *ConfirmDepositsJob) markFailed(ctx context.Context, id uint, reason string) error {
	return j.db.WithContext(ctx).Model(&model.CreditTransaction{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":      model.TransactionFailed,
			"fail_reason": reason,
		}).Error
}

func addAmount(current string, delta *big.Int) (string, error) {
	if current == "" {
		current = "0"
	}
	n, ok := new(big.Int).SetString(current, 10)
	if !ok {
		return "", fmt.Errorf("invalid amount %q", current)
	}
	return n.Add(n, delta).String(), nil
}
