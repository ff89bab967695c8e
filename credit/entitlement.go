package credit

import (
	"fmt"
	"math/big"

	"github.com/filpass_credits/model"
)

// Entitlement is the height accounting of one ledger. CurrentHeight is what
// has already moved out (withdrawals plus refunds); Remaining is what tickets
// can still be issued against.
type Entitlement struct {
	TotalHeight   *big.Int
	CurrentHeight *big.Int
	Remaining     *big.Int
}

// ComputeEntitlement derives the remaining entitlement from a ledger's
// counters. It is a pure calculation; ownership and expiry guards live on the
// callers' write paths.
func ComputeEntitlement(credit *model.UserCredit) (*Entitlement, error) {
	total, err := parseAmount(credit.TotalHeight)
	if err != nil {
		return nil, fmt.Errorf("total height: %w", err)
	}
	withdrawals, err := parseAmount(credit.TotalWithdrawals)
	if err != nil {
		return nil, fmt.Errorf("total withdrawals: %w", err)
	}
	refunds, err := parseAmount(credit.TotalRefunds)
	if err != nil {
		return nil, fmt.Errorf("total refunds: %w", err)
	}

	current := new(big.Int).Add(withdrawals, refunds)
	if current.Cmp(total) > 0 {
		return nil, fmt.Errorf("ledger %d inconsistent: moved %s exceeds height %s", credit.ID, current, total)
	}
	return &Entitlement{
		TotalHeight:   total,
		CurrentHeight: current,
		Remaining:     new(big.Int).Sub(total, current),
	}, nil
}

func parseAmount(s string) (*big.Int, error) {
	if s == "" {
		return new(big.Int), nil
	}
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", s)
	}
	return n, nil
}
