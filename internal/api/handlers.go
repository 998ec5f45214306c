package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shopspring/decimal"

	"github.com/zelapay/ledgercore/internal/domain"
	"github.com/zelapay/ledgercore/internal/service"
	"github.com/zelapay/ledgercore/internal/store"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_http_requests_total",
		Help: "Total HTTP requests processed, labeled by status code",
	}, []string{"method", "endpoint", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ledger_http_request_duration_seconds",
		Help:    "Latency distribution of HTTP requests",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}, []string{"method", "endpoint"})
)

// actorHeader carries the pre-authenticated caller identity supplied by the
// upstream session layer.
const actorHeader = "X-Actor-ID"

type Handler struct {
	store     *store.Store
	transfers *service.TransferService
	requests  *service.RequestService
	treasury  *service.TreasuryService
	chains    *service.ChainService
}

func NewHandler(s *store.Store, transfers *service.TransferService, requests *service.RequestService, treasury *service.TreasuryService, chains *service.ChainService) *Handler {
	return &Handler{store: s, transfers: transfers, requests: requests, treasury: treasury, chains: chains}
}

func (h *Handler) HealthCheckHandler(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"}, "GET", "/health")
}

func (h *Handler) CreateAccountHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Role string `json:"role"`
	}
	// empty body means default role
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		respondWithError(w, http.StatusBadRequest, "Malformed JSON body", "POST", "/accounts")
		return
	}
	role := domain.Role(req.Role)
	switch role {
	case "":
		role = domain.RoleClient
	case domain.RoleClient, domain.RoleAgent, domain.RoleAdmin:
	default:
		respondWithError(w, http.StatusUnprocessableEntity, "Unknown role", "POST", "/accounts")
		return
	}

	id, err := h.store.CreateAccount(r.Context(), role)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "System error creating account", "POST", "/accounts")
		return
	}
	respondWithJSON(w, http.StatusCreated, map[string]string{"account_id": id}, "POST", "/accounts")
}

func (h *Handler) GetAccountHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	account, err := h.store.GetAccount(r.Context(), id)
	if err != nil {
		h.respondServiceError(w, err, "GET", "/accounts/{id}")
		return
	}
	respondWithJSON(w, http.StatusOK, account, "GET", "/accounts/{id}")
}

func (h *Handler) CreateTransferHandler(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/transfers"
	timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues("POST", endpoint))
	defer timer.ObserveDuration()

	actor, ok := requireActor(w, r, "POST", endpoint)
	if !ok {
		return
	}

	var req struct {
		RecipientID string `json:"recipient_id"`
		Amount      string `json:"amount"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Malformed JSON body", "POST", endpoint)
		return
	}
	amount, ok := parseAmount(w, req.Amount, "POST", endpoint)
	if !ok {
		return
	}

	result, err := h.transfers.ExecuteTransfer(r.Context(), actor, req.RecipientID, amount, req.Description)
	if err != nil {
		h.respondServiceError(w, err, "POST", endpoint)
		return
	}
	respondWithJSON(w, http.StatusCreated, result, "POST", endpoint)
}

func (h *Handler) CreateRequestHandler(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/requests"
	actor, ok := requireActor(w, r, "POST", endpoint)
	if !ok {
		return
	}

	var req struct {
		PayerID     string `json:"payer_id"`
		Amount      string `json:"amount"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Malformed JSON body", "POST", endpoint)
		return
	}
	amount, ok := parseAmount(w, req.Amount, "POST", endpoint)
	if !ok {
		return
	}

	id, err := h.requests.CreateRequest(r.Context(), actor, req.PayerID, amount, req.Description)
	if err != nil {
		h.respondServiceError(w, err, "POST", endpoint)
		return
	}
	respondWithJSON(w, http.StatusCreated, map[string]int64{"request_id": id}, "POST", endpoint)
}

func (h *Handler) AcceptRequestHandler(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/requests/{id}/accept"
	actor, ok := requireActor(w, r, "POST", endpoint)
	if !ok {
		return
	}
	id, ok := parseID(w, mux.Vars(r)["id"], "POST", endpoint)
	if !ok {
		return
	}

	result, err := h.requests.AcceptRequest(r.Context(), id, actor)
	if err != nil {
		h.respondServiceError(w, err, "POST", endpoint)
		return
	}
	respondWithJSON(w, http.StatusOK, result, "POST", endpoint)
}

func (h *Handler) RejectRequestHandler(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/requests/{id}/reject"
	actor, ok := requireActor(w, r, "POST", endpoint)
	if !ok {
		return
	}
	id, ok := parseID(w, mux.Vars(r)["id"], "POST", endpoint)
	if !ok {
		return
	}

	if err := h.requests.RejectRequest(r.Context(), id, actor); err != nil {
		h.respondServiceError(w, err, "POST", endpoint)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"status": domain.RequestRejected}, "POST", endpoint)
}

func (h *Handler) TreasuryWithdrawHandler(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/treasury/withdrawals"
	timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues("POST", endpoint))
	defer timer.ObserveDuration()

	actor, ok := requireActor(w, r, "POST", endpoint)
	if !ok {
		return
	}

	var req struct {
		Amount string `json:"amount"`
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Malformed JSON body", "POST", endpoint)
		return
	}
	amount, ok := parseAmount(w, req.Amount, "POST", endpoint)
	if !ok {
		return
	}

	result, err := h.treasury.Withdraw(r.Context(), actor, amount, req.Reason)
	if err != nil {
		h.respondServiceError(w, err, "POST", endpoint)
		return
	}
	respondWithJSON(w, http.StatusCreated, result, "POST", endpoint)
}

func (h *Handler) AdminTransferHandler(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/admin/transfers"
	timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues("POST", endpoint))
	defer timer.ObserveDuration()

	actor, ok := requireActor(w, r, "POST", endpoint)
	if !ok {
		return
	}

	var req struct {
		RecipientID   string `json:"recipient_id"`
		Amount        string `json:"amount"`
		Description   string `json:"description"`
		ParentChainID string `json:"parent_chain_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Malformed JSON body", "POST", endpoint)
		return
	}
	amount, ok := parseAmount(w, req.Amount, "POST", endpoint)
	if !ok {
		return
	}

	result, err := h.chains.AdminTransfer(r.Context(), actor, req.RecipientID, amount, req.Description, req.ParentChainID)
	if err != nil {
		h.respondServiceError(w, err, "POST", endpoint)
		return
	}
	respondWithJSON(w, http.StatusCreated, result, "POST", endpoint)
}

func (h *Handler) GetTransactionHandler(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/transactions/{id}"
	id, ok := parseID(w, mux.Vars(r)["id"], "GET", endpoint)
	if !ok {
		return
	}
	tx, err := h.store.GetTransaction(r.Context(), id)
	if err != nil {
		h.respondServiceError(w, err, "GET", endpoint)
		return
	}
	respondWithJSON(w, http.StatusOK, tx, "GET", endpoint)
}

func (h *Handler) GetAccountTransactionsHandler(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/accounts/{id}/transactions"
	id := mux.Vars(r)["id"]
	limit, offset := parsePagination(r)

	txs, err := h.store.ListTransactionsByAccount(r.Context(), id, limit, offset)
	if err != nil {
		h.respondServiceError(w, err, "GET", endpoint)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]any{"transactions": txs, "limit": limit, "offset": offset}, "GET", endpoint)
}

func (h *Handler) GetAccountChainEntriesHandler(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/accounts/{id}/chain-entries"
	id := mux.Vars(r)["id"]
	limit, offset := parsePagination(r)

	entries, err := h.store.ListChainEntriesByDestination(r.Context(), id, limit, offset)
	if err != nil {
		h.respondServiceError(w, err, "GET", endpoint)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]any{"entries": entries, "limit": limit, "offset": offset}, "GET", endpoint)
}

func (h *Handler) GetChainEntryHandler(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/chain/{chainId}"
	entry, err := h.store.GetChainEntry(r.Context(), mux.Vars(r)["chainId"])
	if err != nil {
		h.respondServiceError(w, err, "GET", endpoint)
		return
	}
	respondWithJSON(w, http.StatusOK, entry, "GET", endpoint)
}

func (h *Handler) VerifyChainHandler(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/chain/{chainId}/verify"
	chainID := mux.Vars(r)["chainId"]
	verified, err := h.chains.VerifyChain(r.Context(), chainID)
	if err != nil {
		h.respondServiceError(w, err, "GET", endpoint)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]any{"chain_id": chainID, "verified": verified}, "GET", endpoint)
}

func (h *Handler) RepairChainHandler(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/chain/{chainId}/repair"
	if _, ok := requireActor(w, r, "POST", endpoint); !ok {
		return
	}
	chainID := mux.Vars(r)["chainId"]
	verified, err := h.chains.RepairChain(r.Context(), chainID)
	if err != nil {
		h.respondServiceError(w, err, "POST", endpoint)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]any{"chain_id": chainID, "verified": verified}, "POST", endpoint)
}

// respondServiceError maps the sentinel error taxonomy onto HTTP statuses.
func (h *Handler) respondServiceError(w http.ResponseWriter, err error, method, endpoint string) {
	switch {
	case errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrSelfTransfer),
		errors.Is(err, domain.ErrSelfRequest),
		errors.Is(err, domain.ErrMissingReason),
		errors.Is(err, domain.ErrInvalidChainID),
		errors.Is(err, domain.ErrInsufficientFunds):
		respondWithError(w, http.StatusUnprocessableEntity, err.Error(), method, endpoint)
	case errors.Is(err, domain.ErrNotAuthorized):
		respondWithError(w, http.StatusForbidden, err.Error(), method, endpoint)
	case errors.Is(err, domain.ErrAlreadyResolved),
		errors.Is(err, domain.ErrConcurrencyConflict):
		respondWithError(w, http.StatusConflict, err.Error(), method, endpoint)
	case errors.Is(err, domain.ErrAccountNotFound),
		errors.Is(err, domain.ErrRequestNotFound),
		errors.Is(err, domain.ErrTransactionNotFound),
		errors.Is(err, domain.ErrChainNotFound):
		respondWithError(w, http.StatusNotFound, err.Error(), method, endpoint)
	default:
		respondWithError(w, http.StatusInternalServerError, "Internal Server Error", method, endpoint)
	}
}

func requireActor(w http.ResponseWriter, r *http.Request, method, endpoint string) (string, bool) {
	actor := r.Header.Get(actorHeader)
	if actor == "" {
		respondWithError(w, http.StatusUnauthorized, "Missing "+actorHeader+" header", method, endpoint)
		return "", false
	}
	return actor, true
}

func parseAmount(w http.ResponseWriter, raw, method, endpoint string) (decimal.Decimal, bool) {
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		respondWithError(w, http.StatusUnprocessableEntity, "Amount must be a decimal string", method, endpoint)
		return decimal.Zero, false
	}
	return amount, true
}

func parseID(w http.ResponseWriter, raw, method, endpoint string) (int64, bool) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid id", method, endpoint)
		return 0, false
	}
	return id, true
}

const (
	defaultPageLimit = 50
	maxPageLimit     = 200
)

func parsePagination(r *http.Request) (limit, offset int) {
	limit = defaultPageLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n >= 0 {
			offset = n
		}
	}
	return limit, offset
}

func respondWithError(w http.ResponseWriter, code int, message, method, endpoint string) {
	respondWithJSON(w, code, map[string]string{"error": message}, method, endpoint)
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}, method, endpoint string) {
	httpRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(code)).Inc()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}
