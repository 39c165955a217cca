package zil

import (
	"errors"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// QaDecimals is the number of decimal places between ZIL and Qa.
const QaDecimals int32 = 12

// maxAmountLength bounds the digits of a parsed amount, far above any ZIL supply.
const maxAmountLength = 64

var (
	ErrInvalidAmount = errors.New("invalid amount")
)

// ParseZil converts a decimal ZIL string ("0.1") into Qa. Fractions smaller
// than one Qa, exponents and overlong input are rejected.
func ParseZil(amount string) (*big.Int, error) {
	if len(amount) > maxAmountLength || strings.ContainsAny(amount, "eE") {
		return nil, ErrInvalidAmount
	}

	d, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, ErrInvalidAmount
	}

	qa := d.Shift(QaDecimals)
	if !qa.Equal(qa.Truncate(0)) {
		return nil, ErrInvalidAmount
	}

	return qa.BigInt(), nil
}

func FormatZil(qa *big.Int) string {
	if qa == nil {
		return "0"
	}
	return decimal.NewFromBigInt(qa, -QaDecimals).String()
}
