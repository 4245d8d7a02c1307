package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vadiminshakov/karmabridge/internal/domain"
)

const user = "0xB6aD1ad1637Ad0F5C8DD7bE68876F508e7E368f9"

type treasuryMock struct {
	mock.Mock
}

func (m *treasuryMock) Send(ctx context.Context, to domain.Address, value decimal.Decimal) (domain.ConversionReceipt, error) {
	args := m.Called(ctx, to, value)
	return args.Get(0).(domain.ConversionReceipt), args.Error(1)
}

func (m *treasuryMock) Balance(ctx context.Context) (decimal.Decimal, error) {
	args := m.Called(ctx)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

type harness struct {
	server   *Server
	registry *prometheus.Registry
}

func setup(t *testing.T, treasury Treasury) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)
	registry := prometheus.NewRegistry()
	return &harness{
		server:   NewServer(":0", treasury, registry, zap.NewNop()),
		registry: registry,
	}
}

func (h *harness) post(body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, ClaimPath, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	h.server.Handler().ServeHTTP(resp, req)
	return resp
}

func (h *harness) claims(status string) float64 {
	return testutil.ToFloat64(h.server.Metrics().Claims.WithLabelValues(status))
}

func decodeError(t *testing.T, resp *httptest.ResponseRecorder) domain.ErrorResponse {
	t.Helper()
	var out domain.ErrorResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &out))
	return out
}

func TestClaimHandler_Success(t *testing.T) {
	treasury := &treasuryMock{}
	h := setup(t, treasury)

	want := decimal.RequireFromString("0.000001")
	treasury.On("Send", mock.Anything, domain.NewAddress(user), mock.MatchedBy(func(v decimal.Decimal) bool { return v.Equal(want) })).
		Return(domain.ConversionReceipt{Success: true, TxHash: "0xabc", BlockNumber: 321, Message: "Successfully sent 0.000001 ETH"}, nil)

	resp := h.post(`{"karmaPoints": 1000, "userAddress": "` + user + `"}`)
	require.Equal(t, http.StatusOK, resp.Code)

	var out domain.TransferResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &out))
	assert.True(t, out.Success)
	assert.Equal(t, "0xabc", out.TxHash)
	assert.Equal(t, uint64(321), out.BlockNumber)
	assert.Equal(t, 1.0, h.claims(statusSuccess))
	treasury.AssertExpectations(t)
}

func TestClaimHandler_BadRequests(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		error string
	}{
		{"malformed json", `{bad json`, "Invalid request format"},
		{"missing points", `{"userAddress": "` + user + `"}`, "Missing karmaPoints or userAddress"},
		{"zero points", `{"karmaPoints": 0, "userAddress": "` + user + `"}`, "Missing karmaPoints or userAddress"},
		{"missing address", `{"karmaPoints": 10}`, "Missing karmaPoints or userAddress"},
		{"fractional points", `{"karmaPoints": 1.5, "userAddress": "` + user + `"}`, "Invalid karmaPoints"},
		{"negative points", `{"karmaPoints": -3, "userAddress": "` + user + `"}`, "Invalid karmaPoints"},
		{"bad address", `{"karmaPoints": 10, "userAddress": "0x1234"}`, "Invalid userAddress"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			treasury := &treasuryMock{}
			h := setup(t, treasury)

			resp := h.post(tt.body)

			assert.Equal(t, http.StatusBadRequest, resp.Code)
			assert.Equal(t, tt.error, decodeError(t, resp).Error)
			assert.Equal(t, 1.0, h.claims(statusBadRequest))
			treasury.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestClaimHandler_NotConfigured(t *testing.T) {
	h := setup(t, nil)

	resp := h.post(`{"karmaPoints": 1000, "userAddress": "` + user + `"}`)

	assert.Equal(t, http.StatusInternalServerError, resp.Code)
	out := decodeError(t, resp)
	assert.Equal(t, "Server configuration error", out.Error)
	assert.Contains(t, out.Details, "TREASURY_PRIVATE_KEY")
	assert.Equal(t, 1.0, h.claims(statusNotConfigured))
}

func TestClaimHandler_InsufficientFunds(t *testing.T) {
	treasury := &treasuryMock{}
	h := setup(t, treasury)

	treasury.On("Send", mock.Anything, mock.Anything, mock.Anything).Return(domain.ConversionReceipt{}, &domain.InsufficientFundsError{
		Available: decimal.RequireFromString("0.0000005"),
		Required:  decimal.RequireFromString("0.000001"),
		Symbol:    "ETH",
	})

	resp := h.post(`{"karmaPoints": 1000, "userAddress": "` + user + `"}`)

	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Equal(t, "Insufficient funds in treasury. Available: 0.0000005 ETH, Required: 0.000001 ETH", decodeError(t, resp).Error)
	assert.Equal(t, 1.0, h.claims(statusInsufficientFunds))
	assert.InDelta(t, 0.0000005, testutil.ToFloat64(h.server.Metrics().TreasuryBalance), 1e-12)
}

func TestClaimHandler_TransferFailure(t *testing.T) {
	treasury := &treasuryMock{}
	h := setup(t, treasury)

	treasury.On("Send", mock.Anything, mock.Anything, mock.Anything).
		Return(domain.ConversionReceipt{}, errors.Wrap(domain.ErrConfirmationFailed, "tx 0xdead: context deadline exceeded"))

	resp := h.post(`{"karmaPoints": "1000", "userAddress": "` + user + `"}`)

	assert.Equal(t, http.StatusInternalServerError, resp.Code)
	out := decodeError(t, resp)
	assert.Equal(t, "Failed to send ETH from treasury", out.Error)
	assert.Contains(t, out.Details, "0xdead")
	assert.Equal(t, 1.0, h.claims(statusFailed))
}

func TestServer_HealthAndMetrics(t *testing.T) {
	h := setup(t, &treasuryMock{})
	h.server.Metrics().IncClaim(statusSuccess)

	resp := httptest.NewRecorder()
	h.server.Handler().ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `"treasuryConfigured":true`)

	resp = httptest.NewRecorder()
	h.server.Handler().ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.True(t, strings.Contains(resp.Body.String(), `karma_claims_total{status="success"} 1`))
}

func TestServer_MonitorTreasury(t *testing.T) {
	treasury := &treasuryMock{}
	h := setup(t, treasury)

	ctx, cancel := context.WithCancel(context.Background())
	treasury.On("Balance", mock.Anything).Return(decimal.RequireFromString("1.25"), nil).Run(func(mock.Arguments) { cancel() })

	require.NoError(t, h.server.MonitorTreasury(ctx, time.Millisecond))
	assert.InDelta(t, 1.25, testutil.ToFloat64(h.server.Metrics().TreasuryBalance), 1e-9)
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.IncClaim(statusSuccess)
	m.SetTreasuryBalance(decimal.NewFromInt(1))
}
