package conversion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/vadiminshakov/karmabridge/internal/domain"
)

// DefaultTransferTimeout covers submission plus on-chain confirmation on the backend.
// It must stay above the backend's confirmation timeout (2m by default).
const DefaultTransferTimeout = 3 * time.Minute

// BackendError is a non-2xx answer of the transfer endpoint.
type BackendError struct {
	Status  int
	Message string
	Details string
}

func (e *BackendError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s", e.Message, e.Details)
	}
	return e.Message
}

// Is matches domain.ErrTransferFailed, and domain.ErrInsufficientTreasuryFunds
// when the backend's own solvency check failed.
func (e *BackendError) Is(target error) bool {
	switch target {
	case domain.ErrTransferFailed:
		return true
	case domain.ErrInsufficientTreasuryFunds:
		return e.Status == http.StatusBadRequest && strings.Contains(e.Message, "Insufficient funds")
	}
	return false
}

// DelegatedTransferer asks the backend to pay the claim; the treasury key never leaves it.
type DelegatedTransferer struct {
	endpoint   string
	httpClient *http.Client
}

// NewDelegatedTransferer posts claims to endpoint (e.g. https://host/api/karma/claim).
func NewDelegatedTransferer(endpoint string, timeout time.Duration) *DelegatedTransferer {
	if timeout <= 0 {
		timeout = DefaultTransferTimeout
	}
	return &DelegatedTransferer{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Transfer sends the points, not the value: the backend recomputes it.
func (d *DelegatedTransferer) Transfer(ctx context.Context, req domain.ConversionRequest, _ decimal.Decimal) (domain.ConversionReceipt, error) {
	body, err := json.Marshal(domain.TransferRequest{
		KarmaPoints: json.Number(strconv.FormatUint(req.Points, 10)),
		UserAddress: req.Destination.String(),
	})
	if err != nil {
		return domain.ConversionReceipt{}, errors.Wrap(err, "marshal transfer request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, bytes.NewReader(body))
	if err != nil {
		return domain.ConversionReceipt{}, errors.Wrap(err, "create transfer request")
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(httpReq)
	if err != nil {
		return domain.ConversionReceipt{}, errors.Wrapf(domain.ErrTransferFailed, "call backend: %v", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.ConversionReceipt{}, errors.Wrap(err, "read transfer response")
	}

	if resp.StatusCode != http.StatusOK {
		var failure domain.ErrorResponse
		if err := json.Unmarshal(payload, &failure); err != nil || failure.Error == "" {
			failure.Error = fmt.Sprintf("backend returned status %d", resp.StatusCode)
			failure.Details = string(payload)
		}
		return domain.ConversionReceipt{}, &BackendError{
			Status:  resp.StatusCode,
			Message: failure.Error,
			Details: failure.Details,
		}
	}

	var out domain.TransferResponse
	if err := json.Unmarshal(payload, &out); err != nil {
		return domain.ConversionReceipt{}, errors.Wrap(err, "decode transfer response")
	}

	return domain.ConversionReceipt{
		Success:     out.Success,
		TxHash:      out.TxHash,
		BlockNumber: out.BlockNumber,
		Message:     out.Message,
	}, nil
}
