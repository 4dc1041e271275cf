package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"example.com/backstage/services/giftcard/clock"
	"example.com/backstage/services/giftcard/config"
	"example.com/backstage/services/giftcard/domain"
	"example.com/backstage/services/giftcard/eventstore"
	"example.com/backstage/services/giftcard/handlers"
	"example.com/backstage/services/giftcard/messaging"
	"example.com/backstage/services/giftcard/projections"
	"example.com/backstage/services/giftcard/queries"
	"example.com/backstage/services/giftcard/repositories"
)

const tenant = "tenant-1"

var now = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

type MockCommandSender struct {
	mock.Mock
}

func (m *MockCommandSender) SendCommand(ctx context.Context, sessionID string, env handlers.Envelope) error {
	return m.Called(ctx, sessionID, env).Error(0)
}

type testServer struct {
	server *Server
	store  *eventstore.MemoryEventStore
	repo   *repositories.MemoryGiftCardRepository
}

func newTestServer(t *testing.T, cfg config.Config, sender *MockCommandSender) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	store := eventstore.NewMemoryEventStore()
	repo := repositories.NewMemoryGiftCardRepository()
	handler := handlers.NewGiftCardHandler(store, clock.NewFixed(now), domain.RandomCodes{}, nil)
	q := queries.NewService(repo, store, nil)

	var commands messaging.CommandSender
	if sender != nil {
		commands = sender
	}
	srv := NewServer(cfg, handlers.NewDispatcher(handler), q, commands, nil)
	return &testServer{server: srv, store: store, repo: repo}
}

func (ts *testServer) do(method, path, tenantID string, body any) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if tenantID != "" {
		req.Header.Set("X-Tenant-ID", tenantID)
	}
	w := httptest.NewRecorder()
	ts.server.Handler().ServeHTTP(w, req)
	return w
}

// project brings the read model up to date with the event log.
func (ts *testServer) project(t *testing.T) {
	t.Helper()
	_, err := projections.NewRebuilder(ts.store, ts.repo, nil, nil).Rebuild(context.Background())
	require.NoError(t, err)
}

func (ts *testServer) create(t *testing.T, amount int64) string {
	t.Helper()
	w := ts.do(http.MethodPost, "/api/v1/gift-cards", tenant, map[string]any{"amount": amount, "currency": "PLN"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var resp CreatedResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.ID.String()
}

func testConfig() config.Config {
	return config.Config{Environment: "test", Server: config.ServerConfig{Timeout: 5 * time.Second}}
}

func TestGiftCardLifecycleOverHTTP(t *testing.T) {
	ts := newTestServer(t, testConfig(), nil)
	id := ts.create(t, 1000)
	base := "/api/v1/gift-cards/" + id

	assert.Equal(t, http.StatusNoContent, ts.do(http.MethodPost, base+"/activate", tenant, nil).Code)
	assert.Equal(t, http.StatusNoContent, ts.do(http.MethodPost, base+"/redeem", tenant, map[string]any{"amount": 400, "currency": "PLN"}).Code)

	w := ts.do(http.MethodPost, base+"/redeem", tenant, map[string]any{"amount": 5000, "currency": "PLN"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = ts.do(http.MethodPost, base+"/activate", tenant, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	ts.project(t)

	w = ts.do(http.MethodGet, base, tenant, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var view queries.GiftCardView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &view))
	assert.Equal(t, int64(600), view.Balance.Amount)
	assert.Equal(t, "ACTIVE", view.Status)
	assert.NotContains(t, w.Body.String(), `"pin"`)

	w = ts.do(http.MethodGet, "/api/v1/gift-cards/card-number/"+view.CardNumber, tenant, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = ts.do(http.MethodGet, base+"/history", tenant, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var history struct {
		Events []json.RawMessage `json:"events"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &history))
	assert.Len(t, history.Events, 3)

	w = ts.do(http.MethodGet, "/api/v1/gift-cards?limit=10&status=ACTIVE", tenant, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var page queries.Page
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
	assert.Equal(t, int64(1), page.Total)
}

func TestTenantIsolationOverHTTP(t *testing.T) {
	ts := newTestServer(t, testConfig(), nil)
	id := ts.create(t, 1000)
	ts.project(t)

	assert.Equal(t, http.StatusBadRequest, ts.do(http.MethodGet, "/api/v1/gift-cards/"+id, "", nil).Code)
	assert.Equal(t, http.StatusNotFound, ts.do(http.MethodGet, "/api/v1/gift-cards/"+id, "tenant-2", nil).Code)
	assert.Equal(t, http.StatusNotFound, ts.do(http.MethodGet, "/api/v1/gift-cards/"+id+"/history", "tenant-2", nil).Code)
	assert.Equal(t, http.StatusNotFound, ts.do(http.MethodPost, "/api/v1/gift-cards/"+id+"/activate", "tenant-2", nil).Code)

	// A tenant in the body never overrides the header.
	w := ts.do(http.MethodPost, "/api/v1/gift-cards/"+id+"/activate", "tenant-2", map[string]any{"tenant_id": tenant})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestValidationErrorsOverHTTP(t *testing.T) {
	ts := newTestServer(t, testConfig(), nil)

	w := ts.do(http.MethodPost, "/api/v1/gift-cards", tenant, map[string]any{"amount": 100, "currency": "zloty"})
	require.Equal(t, http.StatusBadRequest, w.Code)
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Problems)

	assert.Equal(t, http.StatusBadRequest, ts.do(http.MethodGet, "/api/v1/gift-cards/not-a-uuid", tenant, nil).Code)
	assert.Equal(t, http.StatusBadRequest, ts.do(http.MethodGet, "/api/v1/gift-cards?page=x", tenant, nil).Code)
	assert.Equal(t, http.StatusBadRequest, ts.do(http.MethodGet, "/api/v1/gift-cards?status=LOST", tenant, nil).Code)
	assert.Equal(t, http.StatusNotFound, ts.do(http.MethodPost, "/api/v1/gift-cards/"+uuid.NewString()+"/activate", tenant, nil).Code)
	assert.Equal(t, http.StatusUnprocessableEntity, ts.do(http.MethodPost, "/api/v1/gift-cards", tenant, map[string]any{"amount": 0, "currency": "PLN"}).Code)
}

func TestCommandEnvelopeEndpoint(t *testing.T) {
	ts := newTestServer(t, testConfig(), nil)

	w := ts.do(http.MethodPost, "/api/v1/gift-cards/commands", tenant, map[string]any{
		"commandType": handlers.CreateGiftCard,
		"data":        map[string]any{"amount": 250, "currency": "EUR"},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created CreatedResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))

	w = ts.do(http.MethodPost, "/api/v1/gift-cards/commands", tenant, map[string]any{
		"commandType": handlers.ActivateGiftCard,
		"data":        map[string]any{"gift_card_id": created.ID.String()},
	})
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = ts.do(http.MethodPost, "/api/v1/gift-cards/commands", tenant, map[string]any{"commandType": "Teleport", "data": map[string]any{}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAsyncRedeemIsQueued(t *testing.T) {
	cfg := testConfig()
	cfg.Commands.RedeemAsync = true
	sender := new(MockCommandSender)
	ts := newTestServer(t, cfg, sender)
	id := ts.create(t, 1000)

	sender.On("SendCommand", mock.Anything, id, mock.MatchedBy(func(env handlers.Envelope) bool {
		var cmd handlers.RedeemGiftCardCommand
		return env.CommandType == handlers.RedeemGiftCard &&
			json.Unmarshal(env.Data, &cmd) == nil &&
			cmd.GiftCardID == id && cmd.TenantID == tenant && cmd.Amount == 100
	})).Return(nil).Once()

	w := ts.do(http.MethodPost, "/api/v1/gift-cards/"+id+"/redeem", tenant, map[string]any{"amount": 100, "currency": "PLN"})
	assert.Equal(t, http.StatusAccepted, w.Code)
	sender.AssertExpectations(t)
}

func TestPingAndMetrics(t *testing.T) {
	ts := newTestServer(t, testConfig(), nil)
	ts.create(t, 100)
	assert.Equal(t, http.StatusOK, ts.do(http.MethodGet, "/ping", "", nil).Code)
	w := ts.do(http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "giftcard_commands_total")
}

func TestStatusMapping(t *testing.T) {
	cases := map[error]int{
		&handlers.ValidationError{}:                                               http.StatusBadRequest,
		&domain.NotFoundError{ID: uuid.New()}:                                     http.StatusNotFound,
		&domain.InvalidStatusError{Op: "redeem"}:                                  http.StatusConflict,
		&eventstore.ConcurrencyError{}:                                            http.StatusConflict,
		&eventstore.UnavailableError{Op: "append", Err: context.DeadlineExceeded}: http.StatusServiceUnavailable,
		&domain.InsufficientBalanceError{}:                                        http.StatusUnprocessableEntity,
		domain.ErrGiftCardExpired:                                                 http.StatusUnprocessableEntity,
		domain.ErrCurrencyMismatch:                                                http.StatusUnprocessableEntity,
		context.Canceled:                                                          http.StatusInternalServerError,
	}
	for err, want := range cases {
		assert.Equal(t, want, statusFor(err), "%T", err)
	}
}
