package jobs

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log"

	"github.com/filpass_credits/apperrors"
	"github.com/filpass_credits/chainrpc"
	"github.com/filpass_credits/fil"
	"github.com/filpass_credits/model"
	"github.com/filpass_credits/repository"
	"go.uber.org/ratelimit"
	"gorm.io/gorm"
)

// SystemUserRoleID attributes job-driven changes in the request history.
const SystemUserRoleID = 1

// ChainReader resolves chain messages for the verification job.
type ChainReader interface {
	ChainGetMessage(ctx context.Context, txCid string) (*chainrpc.Message, error)
}

var _ ChainReader = (*chainrpc.Client)(nil)

// VerifyTransfersOptions tunes the job. RatePerSecond throttles chain calls
// to respect the RPC provider's limit (3/s is ~333ms spacing).
type VerifyTransfersOptions struct {
	BatchSize     int
	RatePerSecond int
	MaxAttempts   int
}

// VerifyTransfersJob reconciles queued payment references against chain
// messages and flips the matched transfer requests to PAID. Items fail
// independently; one bad row never aborts the batch.
type VerifyTransfersJob struct {
	db        *gorm.DB
	chain     ChainReader
	transfers *repository.TransferRepository
	limiter   ratelimit.Limiter
	opts      VerifyTransfersOptions
}

// Summary reports one run's aggregate outcome.
type Summary struct {
	Found     int `json:"found"`
	Updated   int `json:"updated"`
	Failed    int `json:"failed"`
	Remaining int `json:"remaining"`
}

// RateForSpacing converts a minimum spacing between chain calls, in
// milliseconds, into the whole requests-per-second rate the limiter accepts.
// Spacings over a second clamp to 1/s rather than truncating to zero.
func RateForSpacing(ms int) int {
	if ms <= 0 {
		return 0
	}
	rate := 1000 / ms
	if rate < 1 {
		rate = 1
	}
	return rate
}

func NewVerifyTransfersJob(db *gorm.DB, chain ChainReader, opts VerifyTransfersOptions) *VerifyTransfersJob {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 720
	}
	if opts.RatePerSecond <= 0 {
		opts.RatePerSecond = 3
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 10
	}
	return &VerifyTransfersJob{
		db:        db,
		chain:     chain,
		transfers: repository.NewTransferRepository(db),
		limiter:   ratelimit.New(opts.RatePerSecond),
		opts:      opts,
	}
}

// Run processes one batch of unprocessed payment rows.
func (j *VerifyTransfersJob) Run(ctx context.Context) (Summary, error) {
	rows, err := j.transfers.ListUnprocessed(ctx, j.opts.BatchSize, j.opts.MaxAttempts)
	if err != nil {
		return Summary{}, apperrors.Transaction("listing unprocessed payments", err)
	}

	summary := Summary{Found: len(rows), Remaining: len(rows)}
	for _, row := range rows {
		j.limiter.Take()
		if j.verifyAndUpdate(ctx, row) {
			summary.Updated++
			summary.Remaining--
			continue
		}
		summary.Failed++
		if err := j.transfers.RecordFailure(ctx, row.ID, j.opts.MaxAttempts); err != nil {
			log.Printf("recording failure for payment %d: %v", row.ID, err)
		}
	}
	return summary, nil
}

// verifyAndUpdate matches one payment row to its transfer and confirms it.
// Any mismatch fails just this item.
func (j *VerifyTransfersJob) verifyAndUpdate(ctx context.Context, row *model.PaymentTransaction) bool {
	msg, err := j.chain.ChainGetMessage(ctx, row.Transaction)
	if err != nil {
		log.Printf("payment %d: chain message lookup failed: %v", row.ID, err)
		return false
	}
	if msg.Params == "" {
		log.Printf("payment %d: no params in chain message", row.ID)
		return false
	}

	refBytes, err := base64.StdEncoding.DecodeString(msg.Params)
	if err != nil {
		log.Printf("payment %d: invalid params encoding: %v", row.ID, err)
		return false
	}
	transferRef := string(refBytes)

	transfer, err := j.transfers.FindPendingByRef(ctx, transferRef)
	if err != nil {
		log.Printf("payment %d: transfer %q not found", row.ID, transferRef)
		return false
	}

	if transfer.TransferRequest.WalletAddress != msg.To {
		log.Printf("payment %d: wallet mismatch, found %s expected %s",
			row.ID, msg.To, transfer.TransferRequest.WalletAddress)
		return false
	}

	if err := j.confirmTransfer(ctx, row, transfer, msg); err != nil {
		log.Printf("payment %d: confirming transfer failed: %v", row.ID, err)
		return false
	}
	return true
}

// confirmTransfer performs the all-or-nothing confirmation: the payment row
// is marked processed, the transfer flips to SUCCESS with the converted
// amount, and the parent request flips APPROVED -> PAID with a history row.
// Keying on is_processed makes reruns after partial failures safe.
func (j *VerifyTransfersJob) confirmTransfer(ctx context.Context, row *model.PaymentTransaction, transfer *model.Transfer, msg *chainrpc.Message) error {
	return j.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.PaymentTransaction{}).
			Where("id = ? AND is_processed = ?", row.ID, false).
			Update("is_processed", true)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errors.New("payment already processed")
		}

		var currency model.CurrencyUnit
		if err := tx.Where("name = ?", model.FilecoinCurrencyName).First(&currency).Error; err != nil {
			return apperrors.Transaction("FIL currency not found", err)
		}

		amount, err := fil.Convert(msg.Value, fil.AttoFIL, fil.FIL)
		if err != nil {
			return err
		}

		res = tx.Model(&model.Transfer{}).
			Where("id = ? AND is_active = ? AND status <> ?", transfer.ID, true, model.TransactionSuccess).
			Updates(map[string]interface{}{
				"status":                  model.TransactionSuccess,
				"tx_hash":                 row.Transaction,
				"amount":                  amount,
				"amount_currency_unit_id": currency.ID,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errors.New("transfer not found")
		}

		res = tx.Model(&model.TransferRequest{}).
			Where("id = ? AND status = ? AND is_active = ?", transfer.TransferRequestID, model.RequestApproved, true).
			Update("status", model.RequestPaid)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errors.New("transfer request not found")
		}

		oldValue, err := json.Marshal(map[string]string{"status": model.RequestApproved})
		if err != nil {
			return err
		}
		newValue, err := json.Marshal(map[string]string{"status": model.RequestPaid})
		if err != nil {
			return err
		}
		return tx.Create(&model.TransferRequestHistory{
			TransferRequestID: transfer.TransferRequestID,
			OldValue:          string(oldValue),
			NewValue:          string(newValue),
			UserRoleID:        SystemUserRoleID,
		}).Error
	})
}
