package conversion

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/vadiminshakov/karmabridge/internal/domain"
)

func TestDelegatedTransferer_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, float64(1000), body["karmaPoints"])
		assert.Equal(t, string(userAddr), body["userAddress"])

		_ = json.NewEncoder(w).Encode(domain.TransferResponse{
			Success: true, TxHash: "0xabc", BlockNumber: 12, Message: "Successfully sent 0.000001 ETH",
		})
	}))
	defer srv.Close()

	tr := NewDelegatedTransferer(srv.URL, time.Second)
	receipt, err := tr.Transfer(context.Background(), domain.ConversionRequest{Points: 1000, Destination: userAddr}, decimal.Zero)
	require.NoError(t, err)

	assert.True(t, receipt.Success)
	assert.Equal(t, "0xabc", receipt.TxHash)
	assert.Equal(t, uint64(12), receipt.BlockNumber)
	assert.Equal(t, "Successfully sent 0.000001 ETH", receipt.Message)
}

func TestDelegatedTransferer_Errors(t *testing.T) {
	tests := []struct {
		name         string
		status       int
		body         string
		insufficient bool
		contains     string
	}{
		{
			name:         "insufficient funds",
			status:       http.StatusBadRequest,
			body:         `{"error":"Insufficient funds in treasury. Available: 0.0000005 ETH, Required: 0.000001 ETH"}`,
			insufficient: true,
			contains:     "Available: 0.0000005 ETH",
		},
		{
			name:     "not configured",
			status:   http.StatusInternalServerError,
			body:     `{"error":"Server configuration error","details":"treasury private key not configured"}`,
			contains: "Server configuration error: treasury private key not configured",
		},
		{
			name:     "not json",
			status:   http.StatusBadGateway,
			body:     `upstream down`,
			contains: "backend returned status 502",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			tr := NewDelegatedTransferer(srv.URL, time.Second)
			_, err := tr.Transfer(context.Background(), domain.ConversionRequest{Points: 1000, Destination: userAddr}, decimal.Zero)
			require.Error(t, err)

			var backendErr *BackendError
			require.True(t, errors.As(err, &backendErr))
			assert.Equal(t, tt.status, backendErr.Status)
			assert.True(t, errors.Is(err, domain.ErrTransferFailed))
			assert.Equal(t, tt.insufficient, errors.Is(err, domain.ErrInsufficientTreasuryFunds))
			assert.Contains(t, err.Error(), tt.contains)
		})
	}
}

func TestDelegatedTransferer_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	tr := NewDelegatedTransferer(url, time.Second)
	_, err := tr.Transfer(context.Background(), domain.ConversionRequest{Points: 1, Destination: userAddr}, decimal.Zero)
	assert.True(t, errors.Is(err, domain.ErrTransferFailed))
}

func TestDirectTransferer(t *testing.T) {
	t.Run("no key", func(t *testing.T) {
		_, err := NewDirectTransferer(nil, treasuryAddr)
		assert.True(t, errors.Is(err, domain.ErrTreasuryNotConfigured))
	})

	t.Run("signer is not the treasury", func(t *testing.T) {
		sender := &senderMock{}
		sender.On("Address").Return(userAddr)

		_, err := NewDirectTransferer(sender, treasuryAddr)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "use the backend transfer")
	})

	t.Run("sends value", func(t *testing.T) {
		sender := &senderMock{}
		sender.On("Address").Return(treasuryAddr)
		sender.On("Send", mock.Anything, userAddr, valueOf("0.000001")).
			Return(domain.ConversionReceipt{Success: true, TxHash: "0x2"}, nil)

		tr, err := NewDirectTransferer(sender, treasuryAddr)
		require.NoError(t, err)

		receipt, err := tr.Transfer(context.Background(), domain.ConversionRequest{Points: 1000, Destination: userAddr}, PointsToValue(1000))
		require.NoError(t, err)
		assert.Equal(t, "0x2", receipt.TxHash)
		sender.AssertExpectations(t)
	})
}
