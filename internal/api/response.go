package api

import (
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"time"

	"github.com/ZilDuck/nft-marketplace/internal/entity"
	"github.com/ZilDuck/nft-marketplace/internal/marketplace"
	"github.com/ZilDuck/nft-marketplace/pkg/zil"
	"go.uber.org/zap"
)

type ListingResponse struct {
	Collection string `json:"collection"`
	AssetId    uint64 `json:"assetId"`
	Listed     bool   `json:"listed"`
	Seller     string `json:"seller,omitempty"`
	Price      string `json:"price"`
	PriceQa    string `json:"priceQa"`
}

type ProceedsResponse struct {
	Owner     string `json:"owner"`
	Balance   string `json:"balance"`
	BalanceQa string `json:"balanceQa"`
}

type WithdrawResponse struct {
	Owner    string `json:"owner"`
	Amount   string `json:"amount"`
	AmountQa string `json:"amountQa"`
}

type EventResponse struct {
	Sequence   uint64    `json:"sequence"`
	Type       string    `json:"type"`
	Collection string    `json:"collection,omitempty"`
	AssetId    uint64    `json:"assetId"`
	Seller     string    `json:"seller,omitempty"`
	Buyer      string    `json:"buyer,omitempty"`
	Price      string    `json:"price,omitempty"`
	PriceQa    string    `json:"priceQa,omitempty"`
	Time       time.Time `json:"time"`
}

type ErrorResponse struct {
	Error   string            `json:"error"`
	Message string            `json:"message"`
	Params  map[string]string `json:"params,omitempty"`
}

func newListingResponse(listing entity.Listing) ListingResponse {
	return ListingResponse{
		Collection: listing.Collection,
		AssetId:    listing.AssetId,
		Listed:     listing.IsListed(),
		Seller:     listing.Seller,
		Price:      zil.FormatZil(listing.Price),
		PriceQa:    qa(listing.Price),
	}
}

func newEventResponse(e entity.Event) EventResponse {
	resp := EventResponse{
		Sequence:   e.Sequence,
		Type:       string(e.Type),
		Collection: e.Collection,
		AssetId:    e.AssetId,
		Seller:     e.Seller,
		Buyer:      e.Buyer,
		Time:       e.Time,
	}
	if e.Price != nil {
		resp.Price = zil.FormatZil(e.Price)
		resp.PriceQa = e.Price.String()
	}

	return resp
}

func qa(amount *big.Int) string {
	if amount == nil {
		return "0"
	}
	return amount.String()
}

func writeJson(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		zap.L().With(zap.Error(err)).Warn("Api: Failed to write response")
	}
}

func writeError(w http.ResponseWriter, status int, kind string, message string, params map[string]string) {
	writeJson(w, status, ErrorResponse{Error: kind, Message: message, Params: params})
}

// writeLedgerError renders a rejected ledger operation. Anything that is not
// a ledger error is an internal failure.
func writeLedgerError(w http.ResponseWriter, err error) {
	var lErr *marketplace.Error
	if !errors.As(err, &lErr) {
		zap.L().With(zap.Error(err)).Error("Api: Ledger operation failed")
		writeError(w, http.StatusInternalServerError, "Internal", "internal error", nil)
		return
	}

	writeError(w, statusOf(lErr.Kind), string(lErr.Kind), lErr.Error(), lErr.Params())
}

func statusOf(kind marketplace.Kind) int {
	switch kind {
	case marketplace.KindNotListed:
		return http.StatusNotFound
	case marketplace.KindNotOwner, marketplace.KindNotApprovedForMarketplace:
		return http.StatusForbidden
	case marketplace.KindAlreadyListed, marketplace.KindNoProceeds, marketplace.KindReentrantCall:
		return http.StatusConflict
	case marketplace.KindPriceMustBeAboveZero:
		return http.StatusBadRequest
	case marketplace.KindPriceNotMet:
		return http.StatusPaymentRequired
	case marketplace.KindTransferFailed, marketplace.KindFundsReleaseFailed:
		return http.StatusBadGateway
	}

	return http.StatusInternalServerError
}
