package payout

import (
	"context"
	"errors"
	"math/big"
	"net"
	"net/http"
)

var (
	ErrInvalidAmount = errors.New("payout amount must be positive")
	ErrRejected      = errors.New("payout rejected")
)

// FundsReleaser pays withdrawn proceeds out of the marketplace. reference
// identifies one withdrawal; releasing the same reference twice pays once.
type FundsReleaser interface {
	Release(ctx context.Context, to string, amount *big.Int, reference string) error
}

// CheckRetry retries a payout only when the connection could not be made,
// so an instruction the settlement service may have seen is never resent.
func CheckRetry(ctx context.Context, _ *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}

	var opErr *net.OpError
	if err != nil && errors.As(err, &opErr) && opErr.Op == "dial" {
		return true, nil
	}

	return false, nil
}
