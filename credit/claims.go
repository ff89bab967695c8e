package credit

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/filpass_credits/filpass"
)

// TicketClaims is the signed claim set embedded in every issued ticket. The
// field set matches the DecodedToken struct the settlement contract accepts.
type TicketClaims struct {
	Issuer               string `json:"iss"`
	ID                   string `json:"jti"`
	ExpiresAt            int64  `json:"exp"`
	IssuedAt             int64  `json:"iat"`
	TicketType           string `json:"ticket_type"`
	TicketVersion        string `json:"ticket_version"`
	Funder               string `json:"funder"`
	Subject              string `json:"sub"`
	Audience             string `json:"aud"`
	TicketLane           int    `json:"ticket_lane"`
	LaneTotalAmount      string `json:"lane_total_amount"`
	LaneGuaranteedAmount string `json:"lane_guaranteed_amount"`
	LaneGuaranteedUntil  int64  `json:"lane_guaranteed_until"`
}

// Valid implements jwt.Claims. It checks shape only: ticket expiry is
// enforced against the ledger's stored windows, not the token's exp claim,
// because the windows can move after issuance.
func (c TicketClaims) Valid() error {
	switch {
	case c.Issuer == "":
		return errors.New("missing iss claim")
	case c.ID == "":
		return errors.New("missing jti claim")
	case c.ExpiresAt == 0:
		return errors.New("missing exp claim")
	case c.IssuedAt == 0:
		return errors.New("missing iat claim")
	case c.TicketType != filpass.TicketType:
		return errors.New("unexpected ticket_type claim")
	case c.TicketVersion != filpass.TicketVersion:
		return errors.New("unexpected ticket_version claim")
	case c.Funder == "" || c.Subject == "" || c.Audience == "":
		return errors.New("missing address claims")
	case c.LaneTotalAmount == "" || c.LaneGuaranteedAmount == "":
		return errors.New("missing lane amount claims")
	case c.LaneGuaranteedUntil == 0:
		return errors.New("missing lane_guaranteed_until claim")
	}
	return nil
}

// DecodedToken converts the claims into the struct the settlement contract
// consumes.
func (c TicketClaims) DecodedToken() (filpass.DecodedToken, error) {
	if err := c.Valid(); err != nil {
		return filpass.DecodedToken{}, err
	}
	total, ok := new(big.Int).SetString(c.LaneTotalAmount, 10)
	if !ok {
		return filpass.DecodedToken{}, errors.New("invalid lane_total_amount claim")
	}
	guaranteed, ok := new(big.Int).SetString(c.LaneGuaranteedAmount, 10)
	if !ok {
		return filpass.DecodedToken{}, errors.New("invalid lane_guaranteed_amount claim")
	}
	return filpass.NewDecodedToken(filpass.DecodedToken{
		Iss:                  c.Issuer,
		Jti:                  c.ID,
		Exp:                  c.ExpiresAt,
		Iat:                  c.IssuedAt,
		TicketType:           c.TicketType,
		TicketVersion:        c.TicketVersion,
		Funder:               common.HexToAddress(c.Funder),
		Sub:                  common.HexToAddress(c.Subject),
		Aud:                  common.HexToAddress(c.Audience),
		TicketLane:           c.TicketLane,
		LaneTotalAmount:      total,
		LaneGuaranteedAmount: guaranteed,
		LaneGuaranteedUntil:  c.LaneGuaranteedUntil,
	})
}
