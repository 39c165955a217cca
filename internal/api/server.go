package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strconv"

	"github.com/ZilDuck/nft-marketplace/internal/marketplace"
	"github.com/ZilDuck/nft-marketplace/internal/registry"
	"github.com/ZilDuck/nft-marketplace/pkg/zil"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const (
	defaultEventLimit = 100
	maxBodyBytes      = 4 << 10
)

type Server struct {
	ledger     marketplace.Ledger
	principals map[string]string
	gatherer   prometheus.Gatherer
	dev        *registry.Memory
}

// NewServer serves the ledger over HTTP. apiKeys maps bearer tokens to
// addresses. The registry routes are only mounted when dev is set.
func NewServer(ledger marketplace.Ledger, apiKeys map[string]string, gatherer prometheus.Gatherer, dev *registry.Memory) Server {
	return Server{
		ledger:     ledger,
		principals: normalizePrincipals(apiKeys),
		gatherer:   gatherer,
		dev:        dev,
	}
}

func (s Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(requestLogger)

	r.HandleFunc("/health", s.handleHealth).Methods("GET")
	r.HandleFunc("/listings/{collection}/{assetId}", s.handleGetListing).Methods("GET")
	r.HandleFunc("/proceeds/{owner}", s.handleGetProceeds).Methods("GET")
	r.HandleFunc("/events", s.handleGetEvents).Methods("GET")
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})).Methods("GET")
	}

	auth := r.NewRoute().Subrouter()
	auth.Use(s.authenticate)
	auth.HandleFunc("/listings/{collection}/{assetId}", s.handleListItem).Methods("PUT")
	auth.HandleFunc("/listings/{collection}/{assetId}", s.handleUpdateListing).Methods("PATCH")
	auth.HandleFunc("/listings/{collection}/{assetId}", s.handleCancelListing).Methods("DELETE")
	auth.HandleFunc("/listings/{collection}/{assetId}/buy", s.handleBuyItem).Methods("POST")
	auth.HandleFunc("/proceeds/withdraw", s.handleWithdrawProceeds).Methods("POST")

	if s.dev != nil {
		auth.HandleFunc("/registry/{collection}/{assetId}/mint", s.handleMint).Methods("POST")
		auth.HandleFunc("/registry/{collection}/{assetId}/approve", s.handleApprove).Methods("POST")
	}

	r.NotFoundHandler = notFoundHandler()

	return r
}

func (s Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJson(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s Server) handleGetListing(w http.ResponseWriter, r *http.Request) {
	collection, assetId, ok := getAsset(w, r)
	if !ok {
		return
	}

	listing, err := s.ledger.GetListing(r.Context(), collection, assetId)
	if err != nil {
		writeLedgerError(w, err)
		return
	}

	writeJson(w, http.StatusOK, newListingResponse(listing))
}

func (s Server) handleGetProceeds(w http.ResponseWriter, r *http.Request) {
	owner, err := zil.NormalizeAddress(mux.Vars(r)["owner"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "InvalidAddress", err.Error(), nil)
		return
	}

	balance, err := s.ledger.GetProceeds(r.Context(), owner)
	if err != nil {
		writeLedgerError(w, err)
		return
	}

	writeJson(w, http.StatusOK, ProceedsResponse{Owner: owner, Balance: zil.FormatZil(balance), BalanceQa: qa(balance)})
}

func (s Server) handleGetEvents(w http.ResponseWriter, r *http.Request) {
	from, err := queryUint(r, "from", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, "InvalidQuery", "from must be a sequence number", nil)
		return
	}
	limit, err := queryUint(r, "limit", defaultEventLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, "InvalidQuery", "limit must be a positive number", nil)
		return
	}

	events, err := s.ledger.Events(r.Context(), from, int(limit))
	if err != nil {
		writeLedgerError(w, err)
		return
	}

	resp := make([]EventResponse, 0, len(events))
	for _, e := range events {
		resp = append(resp, newEventResponse(e))
	}

	writeJson(w, http.StatusOK, resp)
}

type priceRequest struct {
	Price   string `json:"price"`
	Payment string `json:"payment"`
}

func (s Server) handleListItem(w http.ResponseWriter, r *http.Request) {
	collection, assetId, ok := getAsset(w, r)
	if !ok {
		return
	}
	price, ok := getAmount(w, r, func(req priceRequest) string { return req.Price })
	if !ok {
		return
	}

	if err := s.ledger.ListItem(r.Context(), principal(r), collection, assetId, price); err != nil {
		writeLedgerError(w, err)
		return
	}

	s.writeListing(w, r, http.StatusCreated, collection, assetId)
}

func (s Server) handleUpdateListing(w http.ResponseWriter, r *http.Request) {
	collection, assetId, ok := getAsset(w, r)
	if !ok {
		return
	}
	price, ok := getAmount(w, r, func(req priceRequest) string { return req.Price })
	if !ok {
		return
	}

	if err := s.ledger.UpdateListing(r.Context(), principal(r), collection, assetId, price); err != nil {
		writeLedgerError(w, err)
		return
	}

	s.writeListing(w, r, http.StatusOK, collection, assetId)
}

func (s Server) handleCancelListing(w http.ResponseWriter, r *http.Request) {
	collection, assetId, ok := getAsset(w, r)
	if !ok {
		return
	}

	if err := s.ledger.CancelListing(r.Context(), principal(r), collection, assetId); err != nil {
		writeLedgerError(w, err)
		return
	}

	s.writeListing(w, r, http.StatusOK, collection, assetId)
}

func (s Server) handleBuyItem(w http.ResponseWriter, r *http.Request) {
	collection, assetId, ok := getAsset(w, r)
	if !ok {
		return
	}
	payment, ok := getAmount(w, r, func(req priceRequest) string { return req.Payment })
	if !ok {
		return
	}

	if err := s.ledger.BuyItem(r.Context(), principal(r), collection, assetId, payment); err != nil {
		writeLedgerError(w, err)
		return
	}

	zap.L().With(zap.String("collection", collection), zap.Uint64("assetId", assetId), zap.String("buyer", principal(r))).
		Info("Api: Item bought")

	s.writeListing(w, r, http.StatusOK, collection, assetId)
}

func (s Server) handleWithdrawProceeds(w http.ResponseWriter, r *http.Request) {
	owner := principal(r)

	amount, err := s.ledger.WithdrawProceeds(r.Context(), owner)
	if err != nil {
		writeLedgerError(w, err)
		return
	}

	writeJson(w, http.StatusOK, WithdrawResponse{Owner: owner, Amount: zil.FormatZil(amount), AmountQa: qa(amount)})
}

func (s Server) handleMint(w http.ResponseWriter, r *http.Request) {
	collection, assetId, ok := getAsset(w, r)
	if !ok {
		return
	}

	if err := s.dev.Mint(collection, assetId, principal(r)); err != nil {
		writeError(w, http.StatusConflict, "MintFailed", err.Error(), nil)
		return
	}

	writeJson(w, http.StatusCreated, map[string]string{"owner": principal(r)})
}

type approveRequest struct {
	Approved bool `json:"approved"`
}

func (s Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	collection, assetId, ok := getAsset(w, r)
	if !ok {
		return
	}

	var req approveRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "InvalidBody", err.Error(), nil)
		return
	}

	spender := zil.ZeroAddress
	if req.Approved {
		spender = s.dev.Marketplace()
	}

	if err := s.dev.Approve(principal(r), collection, assetId, spender); err != nil {
		status := http.StatusForbidden
		if errors.Is(err, registry.ErrTokenNotFound) {
			status = http.StatusNotFound
		}
		writeError(w, status, "ApproveFailed", err.Error(), nil)
		return
	}

	writeJson(w, http.StatusOK, map[string]interface{}{"approved": req.Approved, "spender": spender})
}

func (s Server) writeListing(w http.ResponseWriter, r *http.Request, status int, collection string, assetId uint64) {
	listing, err := s.ledger.GetListing(r.Context(), collection, assetId)
	if err != nil {
		writeLedgerError(w, err)
		return
	}

	writeJson(w, status, newListingResponse(listing))
}

func getAsset(w http.ResponseWriter, r *http.Request) (string, uint64, bool) {
	collection, err := zil.NormalizeAddress(mux.Vars(r)["collection"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "InvalidAddress", err.Error(), nil)
		return "", 0, false
	}

	assetId, err := strconv.ParseUint(mux.Vars(r)["assetId"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "InvalidAssetId", "asset id must be an unsigned integer", nil)
		return "", 0, false
	}

	return collection, assetId, true
}

func getAmount(w http.ResponseWriter, r *http.Request, field func(priceRequest) string) (*big.Int, bool) {
	var req priceRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "InvalidBody", err.Error(), nil)
		return nil, false
	}

	amount, err := zil.ParseZil(field(req))
	if err != nil {
		writeError(w, http.StatusBadRequest, "InvalidAmount", fmt.Sprintf("%q is not a ZIL amount", field(req)), nil)
		return nil, false
	}

	return amount, true
}

func queryUint(r *http.Request, key string, defaultValue uint64) (uint64, error) {
	value := r.URL.Query().Get(key)
	if value == "" {
		return defaultValue, nil
	}

	return strconv.ParseUint(value, 10, 64)
}

func notFoundHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "NotFound", "page not found", nil)
	})
}
