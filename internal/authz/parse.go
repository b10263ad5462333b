package authz

import (
	"math/big"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	amountPattern = regexp.MustCompile(`^([0-9]+(\.[0-9]*)?|\.[0-9]+)$`)
	noncePattern  = regexp.MustCompile(`^[0-9]+$`)
)

// MaxDecimals bounds the asset scale: 10^77 is the largest power of ten below 2^256.
const MaxDecimals = 77

// ParseAmount converts a human-readable decimal ("1.5") into the asset's
// smallest unit by shifting decimals places. Zero is accepted, as are a bare
// leading or trailing point (".5", "1."). Signs,
// exponents, more fractional digits than decimals, and results above
// 2^256-1 are rejected with ErrInvalidAmount.
func ParseAmount(raw string, decimals int32) (*big.Int, error) {
	s := strings.TrimSpace(raw)
	if !amountPattern.MatchString(s) {
		return nil, ErrInvalidAmount
	}
	if strings.HasPrefix(s, ".") {
		s = "0" + s
	}
	d, err := decimal.NewFromString(strings.TrimSuffix(s, "."))
	if err != nil {
		return nil, ErrInvalidAmount
	}
	scaled := d.Shift(decimals)
	if !scaled.IsInteger() {
		return nil, ErrInvalidAmount
	}
	v := scaled.BigInt()
	if v.Sign() < 0 || v.BitLen() > 256 {
		return nil, ErrInvalidAmount
	}
	return v, nil
}

// FormatAmount renders a smallest-unit amount back as a decimal string.
func FormatAmount(v *big.Int, decimals int32) string {
	return decimal.NewFromBigInt(v, -decimals).String()
}

// ParseNonce parses a non-negative base-10 integer no larger than 2^256-1.
func ParseNonce(raw string) (*big.Int, error) {
	s := strings.TrimSpace(raw)
	if !noncePattern.MatchString(s) {
		return nil, ErrInvalidNonce
	}
	n, ok := new(big.Int).SetString(s, 10)
	if !ok || n.BitLen() > 256 {
		return nil, ErrInvalidNonce
	}
	return n, nil
}
