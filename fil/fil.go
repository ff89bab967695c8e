// Package fil converts between the human FIL unit and the base units the
// ledger stores. All ledger arithmetic happens in attoFIL integers; decimal
// strings only appear at the API edge.
package fil

import (
	"fmt"
	"math/big"
	"strings"
)

const (
	// Decimals is the FIL token precision.
	Decimals = 18

	FIL     = "FIL"
	NanoFIL = "NANOFIL"
	AttoFIL = "ATTOFIL"
)

var scaleMap = map[string]int{
	FIL:     0,
	NanoFIL: -9,
	AttoFIL: -18,
}

var attoPerFIL = new(big.Int).Exp(big.NewInt(10), big.NewInt(Decimals), nil)

// ParseFIL converts a decimal FIL amount such as "1.5" into attoFIL.
func ParseFIL(amount string) (*big.Int, error) {
	return ParseUnits(amount, Decimals)
}

// ParseUnits converts a decimal string into an integer scaled by decimals.
func ParseUnits(amount string, decimals int) (*big.Int, error) {
	amount = strings.TrimSpace(amount)
	if amount == "" {
		return nil, fmt.Errorf("empty amount")
	}
	neg := false
	if strings.HasPrefix(amount, "-") {
		neg = true
		amount = amount[1:]
	}
	whole, frac, _ := strings.Cut(amount, ".")
	if whole == "" {
		whole = "0"
	}
	if len(frac) > decimals {
		return nil, fmt.Errorf("amount %q has more than %d decimal places", amount, decimals)
	}
	frac += strings.Repeat("0", decimals-len(frac))

	result, ok := new(big.Int).SetString(whole+frac, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", amount)
	}
	if neg {
		result.Neg(result)
	}
	return result, nil
}

// FormatAttoFIL renders an attoFIL integer as a decimal FIL string with
// trailing zeros trimmed, e.g. 1500000000000000000 -> "1.5".
func FormatAttoFIL(amount *big.Int) string {
	quo, rem := new(big.Int).QuoRem(amount, attoPerFIL, new(big.Int))
	if rem.Sign() == 0 {
		return quo.String()
	}
	frac := strings.TrimRight(fmt.Sprintf("%018s", new(big.Int).Abs(rem).String()), "0")
	sign := ""
	if amount.Sign() < 0 && quo.Sign() == 0 {
		sign = "-"
	}
	return fmt.Sprintf("%s%s.%s", sign, quo.String(), frac)
}

// Convert rescales a decimal string between FIL scales, mirroring the
// currency conversion the payment verification flow performs.
func Convert(amount, from, to string) (string, error) {
	if from == to {
		return amount, nil
	}
	fromScale, ok := scaleMap[from]
	if !ok {
		return "", fmt.Errorf("filecoin scale %q not found", from)
	}
	toScale, ok := scaleMap[to]
	if !ok {
		return "", fmt.Errorf("filecoin scale %q not found", to)
	}

	r, ok := new(big.Rat).SetString(amount)
	if !ok {
		return "", fmt.Errorf("invalid amount %q", amount)
	}
	diff := fromScale - toScale
	pow := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(abs(diff))), nil)
	if diff > 0 {
		r.Mul(r, new(big.Rat).SetInt(pow))
	} else {
		r.Quo(r, new(big.Rat).SetInt(pow))
	}

	s := r.FloatString(Decimals)
	s = strings.TrimRight(s, "0")
	s = strings.TrimSuffix(s, ".")
	if s == "" || s == "-" {
		s = "0"
	}
	return s, nil
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
