package apihttp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"wastefee-cloud/internal/idempotency"
	"wastefee-cloud/internal/observability/metrics"
	rewardsapp "wastefee-cloud/internal/rewards/application"
	simulator "wastefee-cloud/internal/simulator/domain"
	walletapp "wastefee-cloud/internal/wallet/application"
	wallet "wastefee-cloud/internal/wallet/domain"
	walletexport "wastefee-cloud/internal/wallet/interfaces"
)

// IdempotencyHeader carries the client-chosen key for session completion.
const IdempotencyHeader = "Idempotency-Key"

// idempotencyWriteTimeout bounds Complete and Release, which outlive a
// disconnected client.
const idempotencyWriteTimeout = 5 * time.Second

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

// Services bundles what the handler serves.
type Services struct {
	Ledger      *walletapp.LedgerService
	Settlement  *walletapp.SettlementService
	Surplus     *walletapp.SurplusService
	Sessions    *rewardsapp.SessionService
	Idempotency idempotency.Store
	Currency    string
	Logger      *zap.Logger
	// RetryAfter is advertised on 503 responses.
	RetryAfter time.Duration
	Checks     map[string]HealthCheck
}

// Handler serves the wallet HTTP API.
type Handler struct {
	ledger            *walletapp.LedgerService
	settlement        *walletapp.SettlementService
	surplus           *walletapp.SurplusService
	sessions          *rewardsapp.SessionService
	idempotency       idempotency.Store
	currency          string
	logger            *zap.Logger
	retryAfterSeconds int
	checks            map[string]HealthCheck
}

// NewHandler validates services and returns a handler.
func NewHandler(s Services) (*Handler, error) {
	if s.Ledger == nil {
		return nil, errors.New("api: nil ledger service")
	}
	if s.Settlement == nil {
		return nil, errors.New("api: nil settlement service")
	}
	if s.Surplus == nil {
		return nil, errors.New("api: nil surplus service")
	}
	if s.Sessions == nil {
		return nil, errors.New("api: nil session service")
	}
	if s.Idempotency == nil {
		s.Idempotency = idempotency.NewMemoryStore(idempotency.DefaultTTL)
	}
	if s.Currency == "" {
		s.Currency = "EUR"
	}
	if s.Logger == nil {
		s.Logger = zap.NewNop()
	}
	retry := int(s.RetryAfter.Round(time.Second) / time.Second)
	if retry < 1 {
		retry = 1
	}
	return &Handler{
		ledger:            s.Ledger,
		settlement:        s.Settlement,
		surplus:           s.Surplus,
		sessions:          s.Sessions,
		idempotency:       s.Idempotency,
		currency:          s.Currency,
		logger:            s.Logger,
		retryAfterSeconds: retry,
		checks:            s.Checks,
	}, nil
}

// Register mounts every route on r.
func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/healthz", h.health).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/municipalities", h.listMunicipalities).Methods(http.MethodGet)
	api.HandleFunc("/municipalities/{id}", h.getMunicipality).Methods(http.MethodGet)

	api.HandleFunc("/properties/register", h.registerProperty).Methods(http.MethodPost)
	api.HandleFunc("/properties/scan", h.scanProperty).Methods(http.MethodPost)
	api.HandleFunc("/properties/{account_id}/verify", h.verifyProperty).Methods(http.MethodPost)
	api.HandleFunc("/properties/{user_id}", h.listProperties).Methods(http.MethodGet)
	api.HandleFunc("/accounts/{account_id}", h.getAccount).Methods(http.MethodGet)

	api.HandleFunc("/wallet/user/{user_id}", h.walletsOfUser).Methods(http.MethodGet)
	api.HandleFunc("/wallet/{wallet_id}", h.getWallet).Methods(http.MethodGet)
	api.HandleFunc("/wallet/{wallet_id}/add", h.addFunds).Methods(http.MethodPost)
	api.HandleFunc("/wallet/{wallet_id}/transactions", h.listTransactions).Methods(http.MethodGet)
	api.HandleFunc("/wallet/{wallet_id}/transactions.xlsx", h.exportTransactions).Methods(http.MethodGet)
	api.HandleFunc("/wallet/{wallet_id}/sessions", h.listSessions).Methods(http.MethodGet)
	api.HandleFunc("/wallet/{wallet_id}/donations", h.listDonations).Methods(http.MethodGet)

	api.HandleFunc("/sessions/complete", h.completeSession).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{session_id}", h.getSession).Methods(http.MethodGet)

	api.HandleFunc("/payments/auto-transfer", h.autoTransfer).Methods(http.MethodPost)
	api.HandleFunc("/payments/{wallet_id}/history", h.paymentHistory).Methods(http.MethodGet)
	api.HandleFunc("/receipts/{payment_id}", h.getReceipt).Methods(http.MethodGet)
	api.HandleFunc("/receipts/{payment_id}/pdf", h.receiptPDF).Methods(http.MethodGet)

	api.HandleFunc("/surplus/handle", h.handleSurplus).Methods(http.MethodPost)
	api.HandleFunc("/goal/{wallet_id}", h.goal).Methods(http.MethodGet)
	api.HandleFunc("/double-points/status", h.doublePoints).Methods(http.MethodGet)
	api.HandleFunc("/simulate", h.simulate).Methods(http.MethodPost)
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	status := map[string]string{}
	healthy := true
	for name, check := range h.checks {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		err := check(ctx)
		cancel()
		if err != nil {
			healthy = false
			status[name] = err.Error()
			continue
		}
		status[name] = "ok"
	}
	code := http.StatusOK
	state := "ok"
	if !healthy {
		code = http.StatusServiceUnavailable
		state = "degraded"
	}
	respondJSON(w, code, map[string]any{"status": state, "checks": status})
}

func (h *Handler) listMunicipalities(w http.ResponseWriter, r *http.Request) {
	list := h.ledger.Municipalities()
	out := make([]municipalityDTO, 0, len(list))
	for _, m := range list {
		out = append(out, toMunicipality(m))
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true, "municipalities": out})
}

func (h *Handler) getMunicipality(w http.ResponseWriter, r *http.Request) {
	m, err := h.ledger.Municipality(mux.Vars(r)["id"])
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true, "municipality": toMunicipality(m)})
}

type registerRequest struct {
	UserID         string `json:"user_id"`
	PropertyNumber string `json:"property_number"`
	MunicipalityID string `json:"municipality_id"`
	OwnerName      string `json:"owner_name"`
	Address        string `json:"address"`
}

func (h *Handler) registerProperty(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	reg, err := h.ledger.RegisterAccount(r.Context(), walletapp.RegisterAccountCommand{
		UserID:         req.UserID,
		PropertyNumber: req.PropertyNumber,
		MunicipalityID: req.MunicipalityID,
		OwnerName:      req.OwnerName,
		Address:        req.Address,
	})
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	h.respondRegistration(w, reg)
}

type scanRequest struct {
	QRData    string `json:"qr_data"`
	UserID    string `json:"user_id"`
	OwnerName string `json:"owner_name"`
}

func (h *Handler) scanProperty(w http.ResponseWriter, r *http.Request) {
	var req scanRequest
	if err := decodeJSON(r, &req); err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		respondError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	reg, err := h.ledger.RegisterFromQR(r.Context(), req.UserID, req.QRData, req.OwnerName)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	h.respondRegistration(w, reg)
}

func (h *Handler) respondRegistration(w http.ResponseWriter, reg *walletapp.Registration) {
	respondJSON(w, http.StatusCreated, map[string]any{
		"success": true,
		"account": toAccount(reg.Account),
		"wallet":  toWallet(reg.Wallet),
	})
}

func (h *Handler) listProperties(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.ledger.AccountsOfUser(r.Context(), mux.Vars(r)["user_id"])
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	out := make([]accountDTO, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, toAccount(a))
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true, "properties": out})
}

func (h *Handler) getAccount(w http.ResponseWriter, r *http.Request) {
	account, err := h.ledger.Account(r.Context(), mux.Vars(r)["account_id"])
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true, "account": toAccount(account)})
}

func (h *Handler) verifyProperty(w http.ResponseWriter, r *http.Request) {
	account, err := h.ledger.VerifyAccount(r.Context(), mux.Vars(r)["account_id"])
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true, "account": toAccount(account)})
}

func (h *Handler) getWallet(w http.ResponseWriter, r *http.Request) {
	current, err := h.ledger.Wallet(r.Context(), mux.Vars(r)["wallet_id"])
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, h.walletView(current))
}

func (h *Handler) walletsOfUser(w http.ResponseWriter, r *http.Request) {
	wallets, err := h.ledger.WalletsOfUser(r.Context(), mux.Vars(r)["user_id"])
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	out := make([]walletView, 0, len(wallets))
	for _, current := range wallets {
		out = append(out, h.walletView(current))
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true, "wallets": out})
}

func (h *Handler) walletView(current *wallet.Wallet) walletView {
	m, err := h.ledger.Municipality(string(current.MunicipalityID))
	if err != nil {
		return toWalletView(current, nil)
	}
	return toWalletView(current, &m)
}

type addFundsRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	KWhSaved    float64         `json:"kwh_saved"`
	SessionID   string          `json:"session_id"`
	Description string          `json:"description"`
}

func (h *Handler) addFunds(w http.ResponseWriter, r *http.Request) {
	var req addFundsRequest
	if err := decodeJSON(r, &req); err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	result, err := h.ledger.Credit(r.Context(), mux.Vars(r)["wallet_id"], req.Amount, walletapp.CreditRef{
		SessionID:   req.SessionID,
		Description: req.Description,
		KWhSaved:    req.KWhSaved,
	})
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	resp := map[string]any{
		"success": true,
		"balance": money(result.Wallet.Balance),
		"wallet":  toWallet(result.Wallet),
	}
	if result.Transaction != nil {
		resp["transaction"] = toTransaction(result.Transaction)
	}
	respondJSON(w, http.StatusOK, resp)
}

func (h *Handler) listTransactions(w http.ResponseWriter, r *http.Request) {
	txs, err := h.ledger.TransactionsOf(r.Context(), mux.Vars(r)["wallet_id"])
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true, "transactions": toTransactions(txs)})
}

func (h *Handler) listSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.ledger.SessionsOf(r.Context(), mux.Vars(r)["wallet_id"])
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	out := make([]sessionDTO, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, toSession(*s))
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true, "sessions": out})
}

func (h *Handler) listDonations(w http.ResponseWriter, r *http.Request) {
	donations, err := h.surplus.DonationsOf(r.Context(), mux.Vars(r)["wallet_id"])
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	out := make([]donationDTO, 0, len(donations))
	for _, d := range donations {
		out = append(out, toDonation(d))
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true, "donations": out})
}

func (h *Handler) getSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.ledger.Session(r.Context(), mux.Vars(r)["session_id"])
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true, "session": toSession(*session)})
}

func (h *Handler) exportTransactions(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	walletID := mux.Vars(r)["wallet_id"]
	current, err := h.ledger.Wallet(r.Context(), walletID)
	if err != nil {
		metrics.ObserveExport("xlsx", metrics.ResultRejected, time.Since(start))
		h.respondServiceError(w, r, err)
		return
	}
	txs, err := h.ledger.TransactionsOf(r.Context(), walletID)
	if err != nil {
		metrics.ObserveExport("xlsx", metrics.ResultError, time.Since(start))
		h.respondServiceError(w, r, err)
		return
	}
	data, err := walletexport.BuildTransactionsXLSX(current, txs, h.currency)
	if err != nil {
		metrics.ObserveExport("xlsx", metrics.ResultError, time.Since(start))
		h.respondServiceError(w, r, err)
		return
	}
	metrics.ObserveExport("xlsx", metrics.ResultSuccess, time.Since(start))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="transactions-`+walletID+`.xlsx"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

type completeSessionRequest struct {
	WalletID       string    `json:"wallet_id"`
	StartTime      string    `json:"start_time"`
	ActualKWh      float64   `json:"actual_kwh"`
	HistoricalData []float64 `json:"historical_data"`
	BaselineKWh    *float64  `json:"baseline_kwh"`
	DoublePoints   *bool     `json:"is_double_points"`
}

func (req completeSessionRequest) command() (rewardsapp.CompleteSessionCommand, error) {
	cmd := rewardsapp.CompleteSessionCommand{
		WalletID:     req.WalletID,
		ActualKWh:    req.ActualKWh,
		History:      req.HistoricalData,
		BaselineKWh:  req.BaselineKWh,
		DoublePoints: req.DoublePoints,
	}
	if req.StartTime != "" {
		start, err := time.Parse(time.RFC3339, req.StartTime)
		if err != nil {
			return cmd, fmt.Errorf("%w: start_time must be RFC 3339", wallet.ErrInvalidArgument)
		}
		cmd.StartTime = start
	}
	return cmd, nil
}

// completeSession honours Idempotency-Key: a repeated key with the same
// body replays the stored response, a different body is rejected.
func (h *Handler) completeSession(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	key := strings.TrimSpace(r.Header.Get(IdempotencyHeader))
	if key != "" {
		record, err := h.idempotency.Reserve(r.Context(), key, idempotency.HashRequest(body))
		switch {
		case errors.Is(err, idempotency.ErrInProgress):
			metrics.IncIdempotency(metrics.ResultRejected)
			respondError(w, http.StatusConflict, err.Error())
			return
		case errors.Is(err, idempotency.ErrMismatch):
			metrics.IncIdempotency(metrics.ResultRejected)
			respondError(w, http.StatusUnprocessableEntity, err.Error())
			return
		case err != nil:
			metrics.IncIdempotency(metrics.ResultError)
			h.respondServiceError(w, r, err)
			return
		case record != nil:
			metrics.IncIdempotency(metrics.ResultReplayed)
			w.Header().Set("Idempotent-Replayed", "true")
			writeBody(w, record.ResponseStatus, record.ResponseBody)
			return
		}
	}

	outcome, err := h.runSession(r.Context(), body)
	if err != nil {
		if key != "" {
			ctx, cancel := detachedContext(r.Context())
			if releaseErr := h.idempotency.Release(ctx, key); releaseErr != nil {
				h.logger.Warn("idempotency release failed", zap.String("key", key), zap.Error(releaseErr))
			}
			cancel()
		}
		h.respondServiceError(w, r, err)
		return
	}

	payload, err := jsonBytes(toSessionResponse(outcome))
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	if key != "" {
		ctx, cancel := detachedContext(r.Context())
		if err := h.idempotency.Complete(ctx, key, http.StatusOK, payload); err != nil {
			h.logger.Warn("idempotency completion failed", zap.String("key", key), zap.Error(err))
		}
		cancel()
		metrics.IncIdempotency(metrics.ResultSuccess)
	}
	writeBody(w, http.StatusOK, payload)
}

// detachedContext keeps request values but not its cancellation, so a key
// is settled even when the client has gone away.
func detachedContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(parent), idempotencyWriteTimeout)
}

func (h *Handler) runSession(ctx context.Context, body []byte) (*rewardsapp.SessionOutcome, error) {
	var req completeSessionRequest
	if err := decodeBody(body, &req); err != nil {
		return nil, err
	}
	cmd, err := req.command()
	if err != nil {
		return nil, err
	}
	return h.sessions.Complete(ctx, cmd)
}

type walletRequest struct {
	WalletID string `json:"wallet_id"`
}

func (h *Handler) autoTransfer(w http.ResponseWriter, r *http.Request) {
	var req walletRequest
	if err := decodeJSON(r, &req); err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	if strings.TrimSpace(req.WalletID) == "" {
		respondError(w, http.StatusBadRequest, "wallet_id is required")
		return
	}
	payment, settled, err := h.settlement.Settle(r.Context(), req.WalletID)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	progress := settled.Progress()
	respondJSON(w, http.StatusOK, map[string]any{
		"success":          true,
		"payment":          toPayment(payment),
		"receipt_number":   payment.ReceiptNumber,
		"total_paid":       money(settled.TotalPaid),
		"progress_percent": progress.Percent,
		"remaining":        money(progress.Remaining),
	})
}

func (h *Handler) paymentHistory(w http.ResponseWriter, r *http.Request) {
	walletID := mux.Vars(r)["wallet_id"]
	if _, err := h.ledger.Wallet(r.Context(), walletID); err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	payments, err := h.settlement.PaymentsOf(r.Context(), walletID)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	out := make([]paymentDTO, 0, len(payments))
	for _, p := range payments {
		out = append(out, toPayment(p))
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true, "payments": out})
}

func (h *Handler) getReceipt(w http.ResponseWriter, r *http.Request) {
	receipt, err := h.settlement.Receipt(r.Context(), mux.Vars(r)["payment_id"])
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true, "receipt": toReceipt(receipt)})
}

func (h *Handler) receiptPDF(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	receipt, err := h.settlement.Receipt(r.Context(), mux.Vars(r)["payment_id"])
	if err != nil {
		metrics.ObserveExport("pdf", metrics.ResultRejected, time.Since(start))
		h.respondServiceError(w, r, err)
		return
	}
	data, err := walletexport.BuildReceiptPDF(receipt, h.currency)
	if err != nil {
		metrics.ObserveExport("pdf", metrics.ResultError, time.Since(start))
		h.respondServiceError(w, r, err)
		return
	}
	metrics.ObserveExport("pdf", metrics.ResultSuccess, time.Since(start))
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="`+receipt.Payment.ReceiptNumber+`.pdf"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

type surplusRequest struct {
	WalletID string `json:"wallet_id"`
	Action   string `json:"action"`
}

func (h *Handler) handleSurplus(w http.ResponseWriter, r *http.Request) {
	var req surplusRequest
	if err := decodeJSON(r, &req); err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	action, err := wallet.ParseSurplusAction(req.Action)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	outcome, err := h.surplus.Resolve(r.Context(), req.WalletID, action)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toSurplus(outcome))
}

func (h *Handler) goal(w http.ResponseWriter, r *http.Request) {
	_, goal, err := h.ledger.Goal(r.Context(), mux.Vars(r)["wallet_id"])
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true, "goal": toGoal(goal)})
}

func (h *Handler) doublePoints(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, toDoublePoints(h.sessions.DoublePointsStatus()))
}

type simulateRequest struct {
	AnnualFee       decimal.Decimal `json:"annual_fee"`
	SessionsPerWeek int             `json:"sessions_per_week"`
	AvgSavingsKWh   float64         `json:"avg_savings_kwh"`
	Weeks           int             `json:"weeks"`
}

func (h *Handler) simulate(w http.ResponseWriter, r *http.Request) {
	var req simulateRequest
	if err := decodeJSON(r, &req); err != nil {
		metrics.IncSimulation(metrics.ResultRejected)
		h.respondServiceError(w, r, err)
		return
	}
	projection, err := simulator.Simulate(simulator.Scenario{
		AnnualFee:       req.AnnualFee,
		SessionsPerWeek: req.SessionsPerWeek,
		AvgSavingsKWh:   req.AvgSavingsKWh,
		Weeks:           req.Weeks,
	}, decimal.NewFromFloat(h.sessions.Rate()))
	if err != nil {
		metrics.IncSimulation(metrics.ResultRejected)
		h.respondServiceError(w, r, err)
		return
	}
	metrics.IncSimulation(metrics.ResultSuccess)
	respondJSON(w, http.StatusOK, map[string]any{"success": true, "simulation": toProjection(projection)})
}
