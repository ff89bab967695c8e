package filpass

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// TicketType and TicketVersion are the fixed tags every valid ticket carries.
const (
	TicketType    = "filpass"
	TicketVersion = "1"
)

// DecodedToken is the claim set of a redemption ticket after signature
// verification, matching the DecodedToken struct the deployed contract
// accepts. Every field is required; Validate runs at construction time so
// consumers never see a partially filled token.
type DecodedToken struct {
	Iss                  string
	Jti                  string
	Exp                  int64
	Iat                  int64
	TicketType           string
	TicketVersion        string
	Funder               common.Address
	Sub                  common.Address // oracle
	Aud                  common.Address // recipient
	TicketLane           int
	LaneTotalAmount      *big.Int
	LaneGuaranteedAmount *big.Int
	LaneGuaranteedUntil  int64
}

// NewDecodedToken builds a validated token.
func NewDecodedToken(t DecodedToken) (DecodedToken, error) {
	if err := t.Validate(); err != nil {
		return DecodedToken{}, err
	}
	return t, nil
}

func (t DecodedToken) Validate() error {
	switch {
	case t.Iss == "":
		return errors.New("token missing iss")
	case t.Jti == "":
		return errors.New("token missing jti")
	case t.Exp == 0:
		return errors.New("token missing exp")
	case t.Iat == 0:
		return errors.New("token missing iat")
	case t.TicketType != TicketType:
		return errors.New("unexpected ticket type")
	case t.TicketVersion != TicketVersion:
		return errors.New("unexpected ticket version")
	case t.Funder == (common.Address{}):
		return errors.New("token missing funder")
	case t.Sub == (common.Address{}):
		return errors.New("token missing oracle address")
	case t.Aud == (common.Address{}):
		return errors.New("token missing recipient address")
	case t.LaneTotalAmount == nil || t.LaneGuaranteedAmount == nil:
		return errors.New("token missing lane amounts")
	case t.LaneGuaranteedUntil == 0:
		return errors.New("token missing lane_guaranteed_until")
	}
	return nil
}
