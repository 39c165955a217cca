package marketplace

import (
	"fmt"
	"math/big"
)

type Kind string

const (
	KindNotOwner                  Kind = "NotOwner"
	KindPriceMustBeAboveZero      Kind = "PriceMustBeAboveZero"
	KindAlreadyListed             Kind = "AlreadyListed"
	KindNotApprovedForMarketplace Kind = "NotApprovedForMarketplace"
	KindNotListed                 Kind = "NotListed"
	KindPriceNotMet               Kind = "PriceNotMet"
	KindNoProceeds                Kind = "NoProceeds"
	KindTransferFailed            Kind = "TransferFailed"
	KindFundsReleaseFailed        Kind = "FundsReleaseFailed"
	KindReentrantCall             Kind = "ReentrantCall"
)

// Sentinels for errors.Is. Matching only compares the kind.
var (
	ErrNotOwner                  = &Error{Kind: KindNotOwner}
	ErrPriceMustBeAboveZero      = &Error{Kind: KindPriceMustBeAboveZero}
	ErrAlreadyListed             = &Error{Kind: KindAlreadyListed}
	ErrNotApprovedForMarketplace = &Error{Kind: KindNotApprovedForMarketplace}
	ErrNotListed                 = &Error{Kind: KindNotListed}
	ErrPriceNotMet               = &Error{Kind: KindPriceNotMet}
	ErrNoProceeds                = &Error{Kind: KindNoProceeds}
	ErrTransferFailed            = &Error{Kind: KindTransferFailed}
	ErrFundsReleaseFailed        = &Error{Kind: KindFundsReleaseFailed}
	ErrReentrantCall             = &Error{Kind: KindReentrantCall}
)

// Error is a rejected ledger operation. The operation had no effect.
type Error struct {
	Kind       Kind
	Collection string
	AssetId    uint64
	Caller     string
	Price      *big.Int
	Paid       *big.Int
	Err        error
}

func (e *Error) Error() string {
	var msg string
	switch e.Kind {
	case KindNotListed, KindAlreadyListed:
		msg = fmt.Sprintf("%s(%q, %d)", e.Kind, e.Collection, e.AssetId)
	case KindPriceNotMet:
		msg = fmt.Sprintf("%s(%q, %d, %s, %s)", e.Kind, e.Collection, e.AssetId, amount(e.Price), amount(e.Paid))
	case KindNoProceeds:
		msg = fmt.Sprintf("%s(%q)", e.Kind, e.Caller)
	default:
		msg = fmt.Sprintf("%s()", e.Kind)
	}

	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Params returns the error parameters for callers that render them.
func (e *Error) Params() map[string]string {
	params := make(map[string]string)
	if e.Collection != "" {
		params["collection"] = e.Collection
		params["assetId"] = fmt.Sprintf("%d", e.AssetId)
	}
	if e.Caller != "" {
		params["caller"] = e.Caller
	}
	if e.Price != nil {
		params["price"] = e.Price.String()
	}
	if e.Paid != nil {
		params["paid"] = e.Paid.String()
	}
	return params
}

func amount(a *big.Int) string {
	if a == nil {
		return "0"
	}
	return a.String()
}
