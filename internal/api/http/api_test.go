package apihttp

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"

	"wastefee-cloud/internal/idempotency"
	municipality "wastefee-cloud/internal/municipality/domain"
	rewardsapp "wastefee-cloud/internal/rewards/application"
	rewards "wastefee-cloud/internal/rewards/domain"
	walletapp "wastefee-cloud/internal/wallet/application"
	wallet "wastefee-cloud/internal/wallet/domain"
	"wastefee-cloud/internal/wallet/infrastructure/memory"
)

type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time { return c.now }

var saturdayEvening = time.Date(2026, time.October, 17, 18, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(newTestRouter(t, idempotency.NewMemoryStore(time.Hour)))
	t.Cleanup(server.Close)
	return server
}

func newTestRouter(t *testing.T, store idempotency.Store) *mux.Router {
	t.Helper()
	repo := memory.NewRepository()
	registry := municipality.DefaultRegistry()
	locker := walletapp.NewWalletLocker(time.Second)
	clock := fixedClock{now: saturdayEvening}

	ledger, err := walletapp.NewLedgerService(repo, registry, locker, nil, clock)
	if err != nil {
		t.Fatalf("ledger: %v", err)
	}
	settlement, err := walletapp.NewSettlementService(repo, registry, locker, nil, clock)
	if err != nil {
		t.Fatalf("settlement: %v", err)
	}
	surplus, err := walletapp.NewSurplusService(repo, registry, locker, nil, clock)
	if err != nil {
		t.Fatalf("surplus: %v", err)
	}
	calculator, err := rewards.NewRewardCalculator(rewards.DefaultRate)
	if err != nil {
		t.Fatalf("calculator: %v", err)
	}
	calendar := rewards.NewCalendar(clock, rewards.WeekendPolicy{}, time.UTC)
	sessions, err := rewardsapp.NewSessionService(calculator, calendar, ledger, nil)
	if err != nil {
		t.Fatalf("sessions: %v", err)
	}
	handler, err := NewHandler(Services{
		Ledger:      ledger,
		Settlement:  settlement,
		Surplus:     surplus,
		Sessions:    sessions,
		Idempotency: store,
		RetryAfter:  2 * time.Second,
	})
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	router := mux.NewRouter()
	handler.Register(router)
	return router
}

type response struct {
	status int
	header http.Header
	raw    []byte
	body   map[string]any
}

func call(t *testing.T, server *httptest.Server, method, path, body string, headers map[string]string) response {
	t.Helper()
	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, server.URL+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := server.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		t.Fatalf("read body: %v", err)
	}
	out := response{status: resp.StatusCode, header: resp.Header, raw: buf.Bytes()}
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(out.raw, &out.body); err != nil {
			t.Fatalf("decode %s %s: %v (%s)", method, path, err, out.raw)
		}
	}
	return out
}

func field(t *testing.T, m map[string]any, path ...string) any {
	t.Helper()
	var cur any = m
	for _, key := range path {
		obj, ok := cur.(map[string]any)
		if !ok {
			t.Fatalf("path %v: %v is not an object", path, cur)
		}
		cur = obj[key]
	}
	return cur
}

func registerWallet(t *testing.T, server *httptest.Server) string {
	t.Helper()
	resp := call(t, server, http.MethodPost, "/api/properties/register",
		`{"user_id":"user-1","property_number":"NIC-1001","municipality_id":"nicosia","owner_name":"Eleni"}`, nil)
	if resp.status != http.StatusCreated {
		t.Fatalf("register: %d %s", resp.status, resp.raw)
	}
	return field(t, resp.body, "wallet", "id").(string)
}

func TestMunicipalities(t *testing.T) {
	server := newTestServer(t)

	resp := call(t, server, http.MethodGet, "/api/municipalities", "", nil)
	if resp.status != http.StatusOK {
		t.Fatalf("list: %d", resp.status)
	}
	if list := field(t, resp.body, "municipalities").([]any); len(list) != 5 {
		t.Fatalf("expected 5 municipalities, got %d", len(list))
	}

	resp = call(t, server, http.MethodGet, "/api/municipalities/Limassol", "", nil)
	if resp.status != http.StatusOK || field(t, resp.body, "municipality", "annual_fee").(float64) != 195 {
		t.Fatalf("unexpected municipality: %d %s", resp.status, resp.raw)
	}

	resp = call(t, server, http.MethodGet, "/api/municipalities/athens", "", nil)
	if resp.status != http.StatusNotFound || resp.body["success"] != false {
		t.Fatalf("expected 404, got %d %s", resp.status, resp.raw)
	}
}

func TestRegisterAndViewWallet(t *testing.T) {
	server := newTestServer(t)
	walletID := registerWallet(t, server)

	dup := call(t, server, http.MethodPost, "/api/properties/register",
		`{"user_id":"user-1","property_number":"NIC-1001","municipality_id":"nicosia"}`, nil)
	if dup.status != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate registration, got %d", dup.status)
	}

	view := call(t, server, http.MethodGet, "/api/wallet/"+walletID, "", nil)
	if view.status != http.StatusOK {
		t.Fatalf("get wallet: %d %s", view.status, view.raw)
	}
	if field(t, view.body, "wallet", "annual_target").(float64) != 185 || field(t, view.body, "progress_percent").(float64) != 0 {
		t.Fatalf("unexpected wallet view: %s", view.raw)
	}
	if field(t, view.body, "municipality", "name_en") != "Nicosia Municipality" {
		t.Fatalf("expected municipality in view: %s", view.raw)
	}

	byUser := call(t, server, http.MethodGet, "/api/wallet/user/user-1", "", nil)
	if byUser.status != http.StatusOK || len(field(t, byUser.body, "wallets").([]any)) != 1 {
		t.Fatalf("unexpected wallets of user: %d %s", byUser.status, byUser.raw)
	}

	props := call(t, server, http.MethodGet, "/api/properties/user-1", "", nil)
	list := field(t, props.body, "properties").([]any)
	if len(list) != 1 {
		t.Fatalf("expected one property, got %s", props.raw)
	}
	accountID := list[0].(map[string]any)["id"].(string)
	account := call(t, server, http.MethodGet, "/api/accounts/"+accountID, "", nil)
	if account.status != http.StatusOK || field(t, account.body, "account", "property_number") != "NIC-1001" {
		t.Fatalf("get account: %d %s", account.status, account.raw)
	}
	if unknown := call(t, server, http.MethodGet, "/api/accounts/nope", "", nil); unknown.status != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown account, got %d", unknown.status)
	}
	verified := call(t, server, http.MethodPost, "/api/properties/"+accountID+"/verify", "", nil)
	if verified.status != http.StatusOK || field(t, verified.body, "account", "verified") != true {
		t.Fatalf("verify: %d %s", verified.status, verified.raw)
	}

	missing := call(t, server, http.MethodGet, "/api/wallet/nope", "", nil)
	if missing.status != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", missing.status)
	}
}

func TestScanProperty(t *testing.T) {
	server := newTestServer(t)
	resp := call(t, server, http.MethodPost, "/api/properties/scan",
		`{"qr_data":"LARNACA:LAR-9:Ermou 4","user_id":"user-2"}`, nil)
	if resp.status != http.StatusCreated {
		t.Fatalf("scan: %d %s", resp.status, resp.raw)
	}
	if field(t, resp.body, "account", "verified") != true || field(t, resp.body, "account", "address") != "Ermou 4" {
		t.Fatalf("unexpected account: %s", resp.raw)
	}

	bad := call(t, server, http.MethodPost, "/api/properties/scan", `{"qr_data":"garbage","user_id":"user-2"}`, nil)
	if bad.status != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed qr, got %d", bad.status)
	}
}

func TestAddFunds(t *testing.T) {
	server := newTestServer(t)
	walletID := registerWallet(t, server)

	resp := call(t, server, http.MethodPost, "/api/wallet/"+walletID+"/add", `{"amount":"12.50","description":"bonus"}`, nil)
	if resp.status != http.StatusOK || resp.body["balance"].(float64) != 12.5 {
		t.Fatalf("add funds: %d %s", resp.status, resp.raw)
	}
	if !bytes.Contains(resp.raw, []byte(`"balance":12.50`)) {
		t.Fatalf("expected two-decimal money, got %s", resp.raw)
	}

	zero := call(t, server, http.MethodPost, "/api/wallet/"+walletID+"/add", `{"amount":0}`, nil)
	if zero.status != http.StatusBadRequest {
		t.Fatalf("expected 400 for zero amount, got %d", zero.status)
	}
	unknown := call(t, server, http.MethodPost, "/api/wallet/missing/add", `{"amount":1}`, nil)
	if unknown.status != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown wallet, got %d", unknown.status)
	}
	malformed := call(t, server, http.MethodPost, "/api/wallet/"+walletID+"/add", `{"amount":`, nil)
	if malformed.status != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed body, got %d", malformed.status)
	}

	txs := call(t, server, http.MethodGet, "/api/wallet/"+walletID+"/transactions", "", nil)
	if len(field(t, txs.body, "transactions").([]any)) != 1 {
		t.Fatalf("expected one transaction, got %s", txs.raw)
	}
}

func TestCompleteSessionIdempotency(t *testing.T) {
	server := newTestServer(t)
	walletID := registerWallet(t, server)
	body := `{"wallet_id":"` + walletID + `","start_time":"2026-10-17T18:00:00Z","actual_kwh":1.1,"historical_data":[2.0,2.0,2.0]}`
	key := map[string]string{IdempotencyHeader: "session-key-1"}

	first := call(t, server, http.MethodPost, "/api/sessions/complete", body, key)
	if first.status != http.StatusOK {
		t.Fatalf("complete: %d %s", first.status, first.raw)
	}
	if field(t, first.body, "session", "eur_earned").(float64) != 1.02 || first.body["multiplier"].(float64) != 2 {
		t.Fatalf("unexpected session response: %s", first.raw)
	}

	replay := call(t, server, http.MethodPost, "/api/sessions/complete", body, key)
	if replay.status != http.StatusOK || replay.header.Get("Idempotent-Replayed") != "true" {
		t.Fatalf("expected replay, got %d %v", replay.status, replay.header)
	}
	if !bytes.Equal(first.raw, replay.raw) {
		t.Fatalf("replayed body differs:\n%s\n%s", first.raw, replay.raw)
	}

	mismatch := call(t, server, http.MethodPost, "/api/sessions/complete", strings.Replace(body, "1.1", "0.9", 1), key)
	if mismatch.status != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for reused key, got %d", mismatch.status)
	}

	duplicate := call(t, server, http.MethodPost, "/api/sessions/complete", body, nil)
	if duplicate.status != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate session, got %d", duplicate.status)
	}

	view := call(t, server, http.MethodGet, "/api/wallet/"+walletID, "", nil)
	if field(t, view.body, "wallet", "balance").(float64) != 1.02 || field(t, view.body, "wallet", "sessions_completed").(float64) != 1 {
		t.Fatalf("expected single credit, got %s", view.raw)
	}

	sessions := call(t, server, http.MethodGet, "/api/wallet/"+walletID+"/sessions", "", nil)
	list := field(t, sessions.body, "sessions").([]any)
	if sessions.status != http.StatusOK || len(list) != 1 {
		t.Fatalf("unexpected sessions: %d %s", sessions.status, sessions.raw)
	}
	sessionID := field(t, first.body, "session", "id").(string)
	if list[0].(map[string]any)["id"] != sessionID {
		t.Fatalf("expected session %s in list: %s", sessionID, sessions.raw)
	}
	one := call(t, server, http.MethodGet, "/api/sessions/"+sessionID, "", nil)
	if one.status != http.StatusOK || field(t, one.body, "session", "is_double_points") != true {
		t.Fatalf("get session: %d %s", one.status, one.raw)
	}
	if missing := call(t, server, http.MethodGet, "/api/sessions/SES_nope", "", nil); missing.status != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown session, got %d", missing.status)
	}
}

func TestCompleteSessionValidation(t *testing.T) {
	server := newTestServer(t)
	walletID := registerWallet(t, server)
	cases := map[string]string{
		"negative":   `{"wallet_id":"` + walletID + `","actual_kwh":-1}`,
		"no wallet":  `{"actual_kwh":1}`,
		"bad start":  `{"wallet_id":"` + walletID + `","actual_kwh":1,"start_time":"yesterday"}`,
		"empty body": ``,
	}
	for name, body := range cases {
		resp := call(t, server, http.MethodPost, "/api/sessions/complete", body, map[string]string{IdempotencyHeader: "k-" + name})
		if resp.status != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d %s", name, resp.status, resp.raw)
		}
	}
	// A failed request releases its key.
	retry := call(t, server, http.MethodPost, "/api/sessions/complete",
		`{"wallet_id":"`+walletID+`","actual_kwh":1,"historical_data":[2]}`, map[string]string{IdempotencyHeader: "k-negative"})
	if retry.status != http.StatusOK {
		t.Fatalf("expected released key to be reusable, got %d %s", retry.status, retry.raw)
	}
}

// disconnectingStore cancels the request context right before a key is
// completed or released, the way a client hanging up mid-request does, and
// fails writes on a cancelled context like a network-backed store.
type disconnectingStore struct {
	*idempotency.MemoryStore
	hangUp context.CancelFunc
}

func (s *disconnectingStore) Complete(ctx context.Context, key string, status int, body []byte) error {
	s.disconnect()
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.MemoryStore.Complete(ctx, key, status, body)
}

func (s *disconnectingStore) Release(ctx context.Context, key string) error {
	s.disconnect()
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.MemoryStore.Release(ctx, key)
}

func (s *disconnectingStore) disconnect() {
	if s.hangUp != nil {
		s.hangUp()
		s.hangUp = nil
	}
}

func serveSession(ctx context.Context, router *mux.Router, body, key string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/sessions/complete", strings.NewReader(body)).WithContext(ctx)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(IdempotencyHeader, key)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestIdempotencyKeySettledAfterClientDisconnect(t *testing.T) {
	store := &disconnectingStore{MemoryStore: idempotency.NewMemoryStore(time.Hour)}
	router := newTestRouter(t, store)

	register := httptest.NewRequest(http.MethodPost, "/api/properties/register",
		strings.NewReader(`{"user_id":"user-1","property_number":"NIC-1001","municipality_id":"nicosia","owner_name":"Eleni"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, register)
	if rec.Code != http.StatusCreated {
		t.Fatalf("register: %d %s", rec.Code, rec.Body.String())
	}
	var created map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode register: %v", err)
	}
	walletID := field(t, created, "wallet", "id").(string)

	// committed credit: the stored response must survive the hang-up
	body := `{"wallet_id":"` + walletID + `","start_time":"2026-10-17T18:00:00Z","actual_kwh":1.1,"historical_data":[2.0,2.0,2.0]}`
	ctx, cancel := context.WithCancel(context.Background())
	store.hangUp = cancel
	if first := serveSession(ctx, router, body, "hangup-ok"); first.Code != http.StatusOK {
		t.Fatalf("complete: %d %s", first.Code, first.Body.String())
	}
	retry := serveSession(context.Background(), router, body, "hangup-ok")
	if retry.Code != http.StatusOK || retry.Header().Get("Idempotent-Replayed") != "true" {
		t.Fatalf("expected replay after disconnect, got %d %s", retry.Code, retry.Body.String())
	}

	// failed request: the key must be released despite the hang-up
	invalid := `{"wallet_id":"` + walletID + `","actual_kwh":-1}`
	ctx, cancel = context.WithCancel(context.Background())
	store.hangUp = cancel
	if first := serveSession(ctx, router, invalid, "hangup-fail"); first.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d %s", first.Code, first.Body.String())
	}
	if again := serveSession(context.Background(), router, invalid, "hangup-fail"); again.Code != http.StatusBadRequest {
		t.Fatalf("expected released key to re-run, got %d %s", again.Code, again.Body.String())
	}
}

func TestSettlementAndReceipts(t *testing.T) {
	server := newTestServer(t)
	walletID := registerWallet(t, server)
	call(t, server, http.MethodPost, "/api/wallet/"+walletID+"/add", `{"amount":46.25}`, nil)

	settle := call(t, server, http.MethodPost, "/api/payments/auto-transfer", `{"wallet_id":"`+walletID+`"}`, nil)
	if settle.status != http.StatusOK {
		t.Fatalf("settle: %d %s", settle.status, settle.raw)
	}
	if settle.body["progress_percent"].(float64) != 25 || settle.body["remaining"].(float64) != 138.75 {
		t.Fatalf("unexpected settlement: %s", settle.raw)
	}
	receiptNumber := settle.body["receipt_number"].(string)
	if !strings.HasPrefix(receiptNumber, "PS-202610-") {
		t.Fatalf("unexpected receipt number %s", receiptNumber)
	}
	paymentID := field(t, settle.body, "payment", "id").(string)

	again := call(t, server, http.MethodPost, "/api/payments/auto-transfer", `{"wallet_id":"`+walletID+`"}`, nil)
	if again.status != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for empty balance, got %d", again.status)
	}

	history := call(t, server, http.MethodGet, "/api/payments/"+walletID+"/history", "", nil)
	if len(field(t, history.body, "payments").([]any)) != 1 {
		t.Fatalf("unexpected history: %s", history.raw)
	}

	receipt := call(t, server, http.MethodGet, "/api/receipts/"+paymentID, "", nil)
	if receipt.status != http.StatusOK || field(t, receipt.body, "receipt", "recipient", "name") != "Δήμος Λευκωσίας" {
		t.Fatalf("unexpected receipt: %d %s", receipt.status, receipt.raw)
	}

	pdf := call(t, server, http.MethodGet, "/api/receipts/"+paymentID+"/pdf", "", nil)
	if pdf.status != http.StatusOK || !bytes.HasPrefix(pdf.raw, []byte("%PDF")) {
		t.Fatalf("expected pdf, got %d", pdf.status)
	}
	xlsx := call(t, server, http.MethodGet, "/api/wallet/"+walletID+"/transactions.xlsx", "", nil)
	if xlsx.status != http.StatusOK || !bytes.HasPrefix(xlsx.raw, []byte("PK")) {
		t.Fatalf("expected xlsx archive, got %d", xlsx.status)
	}

	missing := call(t, server, http.MethodGet, "/api/receipts/unknown", "", nil)
	if missing.status != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown receipt, got %d", missing.status)
	}
}

func TestSurplusAndGoal(t *testing.T) {
	server := newTestServer(t)
	walletID := registerWallet(t, server)

	none := call(t, server, http.MethodPost, "/api/surplus/handle", `{"wallet_id":"`+walletID+`","action":"donate"}`, nil)
	if none.status != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 without surplus, got %d", none.status)
	}
	invalid := call(t, server, http.MethodPost, "/api/surplus/handle", `{"wallet_id":"`+walletID+`","action":"refund"}`, nil)
	if invalid.status != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown action, got %d", invalid.status)
	}

	call(t, server, http.MethodPost, "/api/wallet/"+walletID+"/add", `{"amount":190.25}`, nil)
	call(t, server, http.MethodPost, "/api/payments/auto-transfer", `{"wallet_id":"`+walletID+`"}`, nil)

	goal := call(t, server, http.MethodGet, "/api/goal/"+walletID, "", nil)
	if field(t, goal.body, "goal", "progress_percent").(float64) != 100 || field(t, goal.body, "goal", "on_track") != true {
		t.Fatalf("unexpected goal: %s", goal.raw)
	}

	donate := call(t, server, http.MethodPost, "/api/surplus/handle", `{"wallet_id":"`+walletID+`","action":"donate"}`, nil)
	if donate.status != http.StatusOK || donate.body["surplus_amount"].(float64) != 5.25 || donate.body["donation_id"] == nil {
		t.Fatalf("unexpected donation: %d %s", donate.status, donate.raw)
	}

	donations := call(t, server, http.MethodGet, "/api/wallet/"+walletID+"/donations", "", nil)
	list := field(t, donations.body, "donations").([]any)
	if donations.status != http.StatusOK || len(list) != 1 || list[0].(map[string]any)["id"] != donate.body["donation_id"] {
		t.Fatalf("unexpected donations: %d %s", donations.status, donations.raw)
	}
	if missing := call(t, server, http.MethodGet, "/api/wallet/nope/donations", "", nil); missing.status != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", missing.status)
	}
}

func TestDoublePointsStatus(t *testing.T) {
	server := newTestServer(t)
	resp := call(t, server, http.MethodGet, "/api/double-points/status", "", nil)
	if resp.status != http.StatusOK || resp.body["is_double_points"] != true || resp.body["multiplier"].(float64) != 2 {
		t.Fatalf("unexpected status: %s", resp.raw)
	}
	if resp.body["reason"] == nil || resp.body["today"] != "2026-10-17" {
		t.Fatalf("expected reason and today: %s", resp.raw)
	}
}

func TestSimulate(t *testing.T) {
	server := newTestServer(t)
	resp := call(t, server, http.MethodPost, "/api/simulate", `{"annual_fee":185,"sessions_per_week":5,"avg_savings_kwh":2.0}`, nil)
	if resp.status != http.StatusOK {
		t.Fatalf("simulate: %d %s", resp.status, resp.raw)
	}
	sim := field(t, resp.body, "simulation").(map[string]any)
	if sim["weeks_to_reach_goal"].(float64) != 52 || sim["goal_reached"] != false || sim["total_earnings"].(float64) != 176.8 {
		t.Fatalf("unexpected projection: %s", resp.raw)
	}

	bad := call(t, server, http.MethodPost, "/api/simulate", `{"annual_fee":185,"sessions_per_week":5,"avg_savings_kwh":0}`, nil)
	if bad.status != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", bad.status)
	}
}

func TestHealthReportsChecks(t *testing.T) {
	h := &Handler{checks: map[string]HealthCheck{
		"redis": func(context.Context) error { return context.DeadlineExceeded },
	}}
	rec := httptest.NewRecorder()
	h.health(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusServiceUnavailable || !strings.Contains(rec.Body.String(), "degraded") {
		t.Fatalf("unexpected health: %d %s", rec.Code, rec.Body.String())
	}
}

func TestBusyMapsToRetryAfter(t *testing.T) {
	h := &Handler{retryAfterSeconds: 2}
	rec := httptest.NewRecorder()
	h.respondServiceError(rec, httptest.NewRequest(http.MethodPost, "/api/payments/auto-transfer", nil), wallet.ErrBusy)
	if rec.Code != http.StatusServiceUnavailable || rec.Header().Get("Retry-After") != "2" {
		t.Fatalf("unexpected busy response: %d %v", rec.Code, rec.Header())
	}
}
