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
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Safety margin between the token exp claim and the ledger's withdraw expiry,
// so a ticket can never outlive its window on the contract side.
const tokenExpiryMargin = time.Hour

// TicketServiceOptions carries issuance configuration.
type TicketServiceOptions struct {
	SignKey             *rsa.PrivateKey
	KeyID               string
	IssuerURL           string
	MinCreditPerTicket  *big.Int // attoFIL
	MaxTicketsPerLedger int
	Now                 func() time.Time
}

// TicketService splits a ledger's remaining entitlement into signed,
// time-boxed tickets.
type TicketService struct {
	db      *gorm.DB
	credits *repository.CreditRepository
	tickets *repository.TicketRepository
	opts    TicketServiceOptions
}

func NewTicketService(db *gorm.DB, opts TicketServiceOptions) *TicketService {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &TicketService{
		db:      db,
		credits: repository.NewCreditRepository(db),
		tickets: repository.NewTicketRepository(db),
		opts:    opts,
	}
}

// CreateTicketsParams are the issuance inputs. CreditPerTicket is a decimal
// FIL amount in the human unit.
type CreateTicketsParams struct {
	UserCreditID    uint
	UserID          uint
	SplitNumber     int
	CreditPerTicket *big.Int // attoFIL
}

// CreateTicketsResult is the persisted outcome of one split.
type CreateTicketsResult struct {
	Group   *model.TicketGroup
	Tickets []model.CreditTicket
}

// CreateTickets issues SplitNumber tickets of CreditPerTicket each against
// the ledger's remaining entitlement. The group and all tickets are persisted
// in one transaction; partial creation is never observable.
func (s *TicketService) CreateTickets(ctx context.Context, params CreateTicketsParams) (*CreateTicketsResult, error) {
	if params.SplitNumber <= 0 {
		return nil, apperrors.Validation("split number must be a positive integer")
	}
	if params.CreditPerTicket == nil || params.CreditPerTicket.Sign() <= 0 {
		return nil, apperrors.Validation("credit per ticket must be positive")
	}

	credit, err := s.credits.FindByIDAndUser(ctx, params.UserCreditID, params.UserID)
	if err != nil {
		return nil, apperrors.NotFound("user credit not found")
	}

	now := s.opts.Now()
	if credit.WithdrawExpiresAt == nil || credit.WithdrawExpiresAt.Before(now) {
		return nil, apperrors.State("ticket window expired")
	}
	if credit.Contract.Address == "" {
		return nil, apperrors.NotFound("contract not found")
	}

	entitlement, err := ComputeEntitlement(credit)
	if err != nil {
		return nil, apperrors.Transaction("computing entitlement", err)
	}

	validCount, err := s.tickets.CountValid(ctx, credit.ID)
	if err != nil {
		return nil, apperrors.Transaction("counting valid tickets", err)
	}
	if int64(s.opts.MaxTicketsPerLedger)-validCount < int64(params.SplitNumber) {
		return nil, apperrors.State("not enough available tickets")
	}

	if params.CreditPerTicket.Cmp(s.opts.MinCreditPerTicket) < 0 {
		return nil, apperrors.State("credit per ticket is too low")
	}
	if params.CreditPerTicket.Cmp(entitlement.Remaining) > 0 {
		return nil, apperrors.State("credit per ticket cannot exceed available credits")
	}
	requested := new(big.Int).Mul(big.NewInt(int64(params.SplitNumber)), params.CreditPerTicket)
	if requested.Cmp(entitlement.Remaining) > 0 {
		return nil, apperrors.State("total credits exceed available credits")
	}

	expiresAt := *credit.WithdrawExpiresAt
	tokenExpiry := expiresAt.Add(-tokenExpiryMargin)

	var result CreateTicketsResult
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		group := model.TicketGroup{
			UserCreditID: credit.ID,
			ExpiresAt:    expiresAt,
		}
		if err := tx.Create(&group).Error; err != nil {
			return err
		}

		tickets := make([]model.CreditTicket, 0, params.SplitNumber)
		for i := 0; i < params.SplitNumber; i++ {
			height := new(big.Int).Mul(params.CreditPerTicket, big.NewInt(int64(i+1)))
			height.Add(height, entitlement.CurrentHeight)

			publicID, err := uuid.NewUUID()
			if err != nil {
				return err
			}

			token, err := s.signTicket(credit, publicID.String(), height, params.CreditPerTicket, tokenExpiry, now)
			if err != nil {
				return err
			}

			tickets = append(tickets, model.CreditTicket{
				TicketGroupID: group.ID,
				PublicID:      publicID.String(),
				Height:        height.String(),
				Amount:        params.CreditPerTicket.String(),
				Token:         token,
				Status:        model.TicketValid,
			})
		}
		if err := tx.Create(&tickets).Error; err != nil {
			return err
		}

		result.Group = &group
		result.Tickets = tickets
		return nil
	})
	if err != nil {
		log.Printf("create tickets for credit %d failed: %v", credit.ID, err)
		return nil, apperrors.Transaction("creating tickets", err)
	}
	return &result, nil
}

func (s *TicketService) signTicket(credit *model.UserCredit, publicID string, height, amount *big.Int, tokenExpiry, issuedAt time.Time) (string, error) {
	claims := TicketClaims{
		Issuer:               s.opts.IssuerURL + "/.well-known/jwks.json",
		ID:                   publicID,
		ExpiresAt:            tokenExpiry.Unix(),
		IssuedAt:             issuedAt.Unix(),
		TicketType:           filpass.TicketType,
		TicketVersion:        filpass.TicketVersion,
		Funder:               credit.Contract.DeployedFromAddress,
		Subject:              credit.Contract.Address,
		Audience:             credit.Receiver.WalletAddress,
		TicketLane:           0,
		LaneTotalAmount:      height.String(),
		LaneGuaranteedAmount: amount.String(),
		LaneGuaranteedUntil:  credit.WithdrawExpiresAt.UnixMilli(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = s.opts.KeyID
	return token.SignedString(s.opts.SignKey)
}
