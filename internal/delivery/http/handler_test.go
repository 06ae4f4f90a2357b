package http

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/azizikri/loyalty-wallet/internal/domain"
	"github.com/azizikri/loyalty-wallet/internal/realtime"
	"github.com/azizikri/loyalty-wallet/internal/repository"
	"github.com/azizikri/loyalty-wallet/internal/usecase"
	"github.com/azizikri/loyalty-wallet/internal/wallet"
	"github.com/azizikri/loyalty-wallet/internal/wallet/apple"
	"github.com/azizikri/loyalty-wallet/internal/webpush"
)

const testPassType = "pass.com.example.loyalty"

type stubRenderer struct{}

func (stubRenderer) Configured() bool {
	return true
}

func (stubRenderer) PassTypeID() string {
	return testPassType
}

func (stubRenderer) Render(ctx context.Context, p wallet.PassData) ([]byte, error) {
	return []byte("pkpass:" + p.Serial), nil
}

type testEnv struct {
	router      http.Handler
	ledger      *usecase.LedgerService
	cards       *usecase.CardService
	broadcaster *realtime.Broadcaster
}

func newTestEnv(t *testing.T, renderer usecase.PassRenderer) *testEnv {
	t.Helper()
	logger := zerolog.Nop()
	store := repository.NewMemory()
	directory := usecase.NewDirectoryService(store, logger)
	cards := usecase.NewCardService(store, directory, renderer, nil, logger)
	broadcaster := realtime.New(logger, realtime.Options{Heartbeat: time.Hour})
	t.Cleanup(broadcaster.Close)
	ledger := usecase.NewLedgerService(store, logger, usecase.WithListeners(broadcaster))

	handler := NewHandler(Services{
		Ledger:      ledger,
		Cards:       cards,
		Directory:   directory,
		Push:        webpush.NewDispatcher(directory, webpush.Options{}, logger),
		Broadcaster: broadcaster,
	}, logger)

	r := chi.NewRouter()
	r.Use(Metrics)
	handler.Routes(r)

	return &testEnv{router: r, ledger: ledger, cards: cards, broadcaster: broadcaster}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) enroll(t *testing.T) domain.Customer {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/customers", map[string]string{"ownerId": "owner-1", "fullName": "Ana Lima"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var c domain.Customer
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &c))
	return c
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestLedgerRoutes(t *testing.T) {
	env := newTestEnv(t, nil)
	c := env.enroll(t)

	rec := env.do(t, http.MethodPost, "/api/customers/"+c.ID+"/points/earn", map[string]int{"delta": 50})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodPost, "/api/customers/"+c.ID+"/points/redeem", map[string]int{"amount": 30})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res MutationResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, 20, res.Balance)
	assert.Equal(t, 20, res.Customer.Points)
	assert.Equal(t, -30, res.Entry.Delta)
	assert.True(t, res.WalletUpdate.Success)
	assert.True(t, res.PushNotification.Success)

	rec = env.do(t, http.MethodPost, "/api/customers/"+c.ID+"/points/adjust", map[string]any{"delta": -5, "note": "typo"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/api/customers/"+c.ID+"/transactions?limit=10", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var entries []domain.LedgerEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	assert.Len(t, entries, 3)

	rec = env.do(t, http.MethodGet, "/api/customers/"+c.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got domain.Customer
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, 15, got.Points)

	rec = env.do(t, http.MethodGet, "/api/owners/owner-1/customers", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), c.ID)
}

func TestErrorMapping(t *testing.T) {
	env := newTestEnv(t, nil)
	c := env.enroll(t)
	base := "/api/customers/" + c.ID

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		code   string
	}{
		{"earn zero", http.MethodPost, base + "/points/earn", map[string]int{"delta": 0}, http.StatusBadRequest, domain.CodeValidation},
		{"earn above max", http.MethodPost, base + "/points/earn", map[string]int{"delta": 5000}, http.StatusBadRequest, domain.CodeValidation},
		{"malformed body", http.MethodPost, base + "/points/earn", "nope", http.StatusBadRequest, domain.CodeValidation},
		{"insufficient balance", http.MethodPost, base + "/points/redeem", map[string]int{"amount": 1}, http.StatusConflict, domain.CodeInsufficientBalance},
		{"unknown customer", http.MethodPost, "/api/customers/nobody/points/earn", map[string]int{"delta": 1}, http.StatusNotFound, domain.CodeNotFound},
		{"missing enroll name", http.MethodPost, "/api/customers", map[string]string{"ownerId": "o"}, http.StatusBadRequest, domain.CodeValidation},
		{"apple pass unconfigured", http.MethodGet, "/api/cards/any/apple", nil, http.StatusNotImplemented, domain.CodeWalletConfigMissing},
		{"google unconfigured", http.MethodGet, "/api/cards/any/google", nil, http.StatusNotImplemented, domain.CodeWalletConfigMissing},
		{"push key unconfigured", http.MethodGet, "/api/push/public-key", nil, http.StatusNotImplemented, domain.CodeWalletConfigMissing},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.code, decodeError(t, rec).Code)
		})
	}
}

func TestIssueCardIsIdempotent(t *testing.T) {
	env := newTestEnv(t, nil)
	c := env.enroll(t)

	rec := env.do(t, http.MethodPost, "/api/customers/"+c.ID+"/card", nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	var first CardResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &first))
	assert.True(t, first.Created)
	assert.NotContains(t, rec.Body.String(), "auth", "auth token never leaves the server")

	rec = env.do(t, http.MethodPost, "/api/customers/"+c.ID+"/card", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var second CardResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &second))
	assert.Equal(t, first.Card.ID, second.Card.ID)
}

func TestPassKitWebService(t *testing.T) {
	env := newTestEnv(t, stubRenderer{})
	c := env.enroll(t)
	card, _, err := env.cards.IssueCard(context.Background(), c.ID)
	require.NoError(t, err)

	register := "/wallet/v1/devices/dev-1/registrations/" + testPassType + "/" + card.ID
	auth := []string{"Authorization", "ApplePass " + card.AuthToken}
	body := map[string]string{"pushToken": "apns-token"}

	rec := env.do(t, http.MethodPost, register, body, "Authorization", "ApplePass wrong")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodPost, register, body, auth...)
	assert.Equal(t, http.StatusCreated, rec.Code)
	rec = env.do(t, http.MethodPost, register, body, auth...)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/wallet/v1/devices/dev-1/registrations/"+testPassType, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var updated UpdatedPassesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &updated))
	assert.Equal(t, []string{card.ID}, updated.SerialNumbers)

	rec = env.do(t, http.MethodGet, "/wallet/v1/devices/dev-1/registrations/"+testPassType+"?passesUpdatedSince="+updated.LastUpdated, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	passPath := "/wallet/v1/passes/" + testPassType + "/" + card.ID
	rec = env.do(t, http.MethodGet, passPath, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodGet, passPath, nil, auth...)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, apple.ContentType, rec.Header().Get("Content-Type"))
	assert.Equal(t, "pkpass:"+card.ID, rec.Body.String())
	lastModified := rec.Header().Get("Last-Modified")
	require.NotEmpty(t, lastModified)

	rec = env.do(t, http.MethodGet, passPath, nil, append(auth, "If-Modified-Since", lastModified)...)
	assert.Equal(t, http.StatusNotModified, rec.Code)

	rec = env.do(t, http.MethodGet, "/wallet/v1/passes/pass.other/"+card.ID, nil, auth...)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodPost, "/wallet/v1/log", map[string][]string{"logs": {"device error"}})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodDelete, register, nil, auth...)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = env.do(t, http.MethodGet, "/wallet/v1/devices/dev-1/registrations/"+testPassType, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestPushRoutes(t *testing.T) {
	env := newTestEnv(t, nil)
	c := env.enroll(t)

	sub := map[string]any{
		"endpoint":   "https://push.example.com/sub/1",
		"keys":       map[string]string{"p256dh": "key", "auth": "secret"},
		"customerId": c.ID,
	}
	rec := env.do(t, http.MethodPost, "/api/push/subscribe", sub)
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodPost, "/api/push/subscribe", map[string]any{"endpoint": "not a url"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/push/broadcast", map[string]string{"ownerId": "owner-1", "title": "Hi", "body": "Double points today"})
	require.Equal(t, http.StatusOK, rec.Code)
	var report domain.ChannelReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.True(t, report.Skipped)

	rec = env.do(t, http.MethodPost, "/api/push/unsubscribe", map[string]string{"endpoint": "https://push.example.com/sub/1"})
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestCustomerEventsUnknownCustomer(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/api/events/customer/nobody", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, domain.CodeNotFound, decodeError(t, rec).Code)
}

func TestCustomerEventsStream(t *testing.T) {
	env := newTestEnv(t, nil)
	c := env.enroll(t)
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/events/customer/"+c.ID, nil)
	require.NoError(t, err)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	frames := bufio.NewReader(resp.Body)
	connected := readFrame(t, frames)
	assert.Equal(t, realtime.EventConnected, connected.Type)

	require.Eventually(t, func() bool {
		return env.broadcaster.Count(realtime.CustomerKey(c.ID)) == 1
	}, time.Second, 10*time.Millisecond)

	_, err = env.ledger.Earn(context.Background(), c.ID, 7)
	require.NoError(t, err)

	update := readFrame(t, frames)
	assert.Equal(t, realtime.EventBalanceUpdated, update.Type)
	data, _ := json.Marshal(update.Data)
	var ev domain.BalanceEvent
	require.NoError(t, json.Unmarshal(data, &ev))
	assert.Equal(t, 7, ev.Balance)
	assert.Equal(t, c.ID, ev.CustomerID)
}

func TestAdminEventsSnapshot(t *testing.T) {
	env := newTestEnv(t, nil)
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	owner := env.broadcaster.Subscribe(realtime.OwnerKey("owner-1"))
	defer owner.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/events/admin", nil)
	require.NoError(t, err)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	connected := readFrame(t, bufio.NewReader(resp.Body))
	assert.Equal(t, realtime.EventConnected, connected.Type)
	data, _ := json.Marshal(connected.Data)
	var snap AdminSnapshot
	require.NoError(t, json.Unmarshal(data, &snap))
	assert.Equal(t, map[string]int{"owner": 1}, snap.Streams)
}

func readFrame(t *testing.T, r *bufio.Reader) realtime.Event {
	t.Helper()
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev realtime.Event
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(strings.TrimSpace(line), "data: ")), &ev))
		return ev
	}
}
