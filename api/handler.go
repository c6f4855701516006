// Package api exposes the purchase pipeline over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/shopspring/decimal"

	"github.com/mohamed3773/MyCProject-sub000/logger"
	"github.com/mohamed3773/MyCProject-sub000/purchase"
	"github.com/mohamed3773/MyCProject-sub000/store"
	"github.com/mohamed3773/MyCProject-sub000/types"
	"github.com/mohamed3773/MyCProject-sub000/utils"
)

// Networks lists and resolves configured networks.
type Networks interface {
	ListNetworks() []types.NetworkDescriptor
	GetNetwork(id types.Network) (types.NetworkDescriptor, error)
}

// Purchaser quotes and executes purchases.
type Purchaser interface {
	Quote(ctx context.Context, tokenID uint64, rarity types.Rarity, network types.Network, currency string) (*types.Quote, error)
	Execute(ctx context.Context, req purchase.Request) *purchase.Outcome
}

// TxLookup fetches a raw transaction for status polling.
type TxLookup interface {
	Lookup(ctx context.Context, network types.Network, txRef string) (*types.TransactionView, error)
}

// Handler serves the HTTP surface.
type Handler struct {
	networks  Networks
	purchaser Purchaser
	lookup    TxLookup
	store     store.SoldStateStore
	metrics   http.Handler
	logger    logger.Logger
}

// NewHandler wires the HTTP surface. metricsHandler may be nil.
func NewHandler(networks Networks, purchaser Purchaser, lookup TxLookup, sold store.SoldStateStore, metricsHandler http.Handler, log logger.Logger) *Handler {
	return &Handler{
		networks:  networks,
		purchaser: purchaser,
		lookup:    lookup,
		store:     sold,
		metrics:   metricsHandler,
		logger:    logger.OrNoop(log),
	}
}

// Routes builds the router.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(h.logRequests)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if h.metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.metrics)
	}

	r.Get("/networks", h.listNetworks)
	r.Post("/price", h.price)
	r.Post("/purchase", h.purchase)
	r.Get("/transaction/{networkId}/{txReference}", h.transaction)
	r.Get("/purchases/{buyerAddress}", h.purchasesByBuyer)
	r.Get("/tokens/{tokenId}", h.token)
	r.Get("/stats", h.stats)

	return r
}

func (h *Handler) listNetworks(w http.ResponseWriter, _ *http.Request) {
	descs := h.networks.ListNetworks()
	out := make([]types.NetworkSummary, 0, len(descs))
	for _, d := range descs {
		out = append(out, d.Summary())
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) price(w http.ResponseWriter, r *http.Request) {
	var req PriceRequest
	if err := utils.DecodeAndValidate(r.Body, &req); err != nil {
		h.writeError(w, err)
		return
	}
	rarity, err := types.ParseRarity(req.RarityName)
	if err != nil {
		h.writeError(w, types.NewError(types.ErrCodeValidation, types.StepQuote, "%v", err))
		return
	}

	q, err := h.purchaser.Quote(r.Context(), req.TokenID, rarity, types.Network(strings.ToLower(req.NetworkID)), req.CurrencySymbol)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, quoteResponse(q))
}

func (h *Handler) purchase(w http.ResponseWriter, r *http.Request) {
	var req PurchaseRequest
	if err := utils.DecodeAndValidate(r.Body, &req); err != nil {
		h.writeError(w, err)
		return
	}

	preq := purchase.Request{
		TokenID:   req.TokenID,
		Rarity:    types.Rarity(req.RarityName),
		Buyer:     req.BuyerAddress,
		Network:   types.Network(req.NetworkID),
		Currency:  req.CurrencySymbol,
		PaymentTx: req.PaymentTxReference,
	}
	if req.ClaimedAmount != "" {
		claimed, err := decimal.NewFromString(req.ClaimedAmount)
		if err == nil {
			preq.ClaimedAmount = &claimed
		}
	}

	out := h.purchaser.Execute(r.Context(), preq)
	if out.State != purchase.StateCompleted {
		writeJSON(w, statusFor(out.Err), ErrorResponse{
			Error:          out.Err,
			AttemptID:      out.AttemptID,
			State:          out.State,
			RequiresRefund: out.RequiresRefund,
			Pending:        out.SettlementPending,
			PaymentTx:      out.PaymentTx,
			Verification:   out.Verification,
			Transfer:       out.Transfer,
		})
		return
	}

	writeJSON(w, http.StatusOK, h.purchaseResponse(out))
}

func (h *Handler) purchaseResponse(out *purchase.Outcome) PurchaseResponse {
	rec := out.Record
	resp := PurchaseResponse{
		AttemptID:   out.AttemptID,
		State:       out.State,
		TokenID:     rec.TokenID,
		Buyer:       utils.NormalizeAddress(rec.Buyer),
		Rarity:      rec.Rarity,
		Price:       rec.Price,
		PriceUSD:    rec.PriceUSD,
		Payment:     h.link(rec.PaymentNetwork, rec.PaymentTx),
		Settlement:  h.link(rec.SettlementNetwork, rec.SettlementTx),
		PurchasedAt: rec.PurchasedAt,
		Warning:     out.Err,
	}
	if out.Verification != nil {
		resp.Payment.BlockNumber = out.Verification.BlockNumber
	}
	if out.Transfer != nil {
		resp.Settlement.BlockNumber = out.Transfer.BlockNumber
	}
	return resp
}

func (h *Handler) link(network types.Network, hash string) TxLink {
	l := TxLink{Network: network, Hash: hash}
	if desc, err := h.networks.GetNetwork(network); err == nil {
		l.ExplorerURL = desc.TxURL(hash)
	}
	return l
}

func (h *Handler) transaction(w http.ResponseWriter, r *http.Request) {
	network := types.Network(strings.ToLower(chi.URLParam(r, "networkId")))
	view, err := h.lookup.Lookup(r.Context(), network, chi.URLParam(r, "txReference"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) purchasesByBuyer(w http.ResponseWriter, r *http.Request) {
	buyer := chi.URLParam(r, "buyerAddress")
	if err := utils.ValidateAddress(buyer); err != nil {
		h.writeError(w, types.NewError(types.ErrCodeValidation, types.StepQuote, "%v", err))
		return
	}
	records, err := h.store.GetByBuyer(r.Context(), buyer)
	if err != nil {
		h.writeError(w, types.NewError(types.ErrCodeStore, types.StepRecord, "cannot load purchases: %v", err))
		return
	}
	if records == nil {
		records = []*types.PurchaseRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

func (h *Handler) token(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(chi.URLParam(r, "tokenId"), 10, 64)
	if err == nil {
		err = store.CheckTokenID(id)
	}
	if err != nil {
		h.writeError(w, types.NewError(types.ErrCodeValidation, types.StepQuote, "invalid token id"))
		return
	}
	rec, err := h.store.GetByToken(r.Context(), id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeJSON(w, http.StatusOK, TokenResponse{TokenID: id})
	case err != nil:
		h.writeError(w, types.NewError(types.ErrCodeStore, types.StepRecord, "cannot load token: %v", err))
	default:
		writeJSON(w, http.StatusOK, TokenResponse{TokenID: id, Sold: true, Record: rec})
	}
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.Stats(r.Context())
	if err != nil {
		h.writeError(w, types.NewError(types.ErrCodeStore, types.StepRecord, "cannot load stats: %v", err))
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var merr *types.MarketError
	if !errors.As(err, &merr) {
		merr = types.NewError(types.ErrCodeValidation, types.StepQuote, "%v", err)
	}
	status := statusFor(merr)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", map[string]any{logger.FieldError: merr.Message, "code": merr.Code})
	}
	writeJSON(w, status, ErrorResponse{Error: merr})
}

// statusFor maps an error code onto its HTTP category.
func statusFor(err *types.MarketError) int {
	if err == nil {
		return http.StatusInternalServerError
	}
	switch err.Code {
	case types.ErrCodeValidation, types.ErrCodeUnsupportedNetwork, types.ErrCodeUnsupportedCurrency:
		return http.StatusBadRequest
	case types.ErrCodeOwnershipMismatch, types.ErrCodeTransactionNotFound:
		return http.StatusNotFound
	case types.ErrCodeAlreadySold:
		return http.StatusConflict
	case types.ErrCodePaymentRejected,
		types.ErrCodeInsufficientFunds,
		types.ErrCodeTransferReverted,
		types.ErrCodeFeeEstimation,
		types.ErrCodeConfirmationTimeout,
		types.ErrCodeTransferFailed,
		types.ErrCodeNetworkUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		h.logger.Info("http request", map[string]any{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"duration":   time.Since(start).String(),
			"request_id": middleware.GetReqID(r.Context()),
		})
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
