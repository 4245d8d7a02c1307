package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vadiminshakov/karmabridge/internal/conversion"
	"github.com/vadiminshakov/karmabridge/internal/domain"
)

// Treasury pays out claims. Send must block until the transfer is confirmed.
type Treasury interface {
	Send(ctx context.Context, to domain.Address, value decimal.Decimal) (domain.ConversionReceipt, error)
	Balance(ctx context.Context) (decimal.Decimal, error)
}

type ClaimHandler struct {
	treasury Treasury
	logger   *zap.Logger
	metrics  *Metrics
}

// NewClaimHandler creates the claim handler. A nil treasury makes every valid
// request fail with a configuration error.
func NewClaimHandler(treasury Treasury, logger *zap.Logger, metrics *Metrics) *ClaimHandler {
	return &ClaimHandler{
		treasury: treasury,
		logger:   logger,
		metrics:  metrics,
	}
}

func (h *ClaimHandler) Handle(c *gin.Context) {
	var req domain.TransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, http.StatusBadRequest, statusBadRequest, "Invalid request format", err.Error())
		return
	}

	if req.KarmaPoints == "" || req.KarmaPoints == "0" || req.UserAddress == "" {
		h.fail(c, http.StatusBadRequest, statusBadRequest, "Missing karmaPoints or userAddress", "")
		return
	}

	if h.treasury == nil {
		h.fail(c, http.StatusInternalServerError, statusNotConfigured,
			"Server configuration error", "Treasury private key not configured. Please set TREASURY_PRIVATE_KEY environment variable.")
		return
	}

	points, err := strconv.ParseUint(req.KarmaPoints.String(), 10, 64)
	if err != nil || points == 0 {
		h.fail(c, http.StatusBadRequest, statusBadRequest, "Invalid karmaPoints", "karmaPoints must be a positive integer")
		return
	}

	if !domain.IsValidAddress(req.UserAddress) {
		h.fail(c, http.StatusBadRequest, statusBadRequest, "Invalid userAddress", req.UserAddress)
		return
	}
	to := domain.NewAddress(req.UserAddress)

	// the value is always derived here, never taken from the client
	value := conversion.PointsToValue(points)

	// a client that hangs up after submission does not cancel the payout,
	// Send detaches from the request context once the transfer is sent
	receipt, err := h.treasury.Send(c.Request.Context(), to, value)
	if err != nil {
		var insufficient *domain.InsufficientFundsError
		switch {
		case errors.As(err, &insufficient):
			h.metrics.SetTreasuryBalance(insufficient.Available)
			h.fail(c, http.StatusBadRequest, statusInsufficientFunds, insufficient.Error(), "")
		case errors.Is(err, domain.ErrInvalidRequest):
			h.fail(c, http.StatusBadRequest, statusBadRequest, "Invalid request", err.Error())
		default:
			h.logger.Error("karma claim failed",
				zap.Uint64("points", points),
				zap.String("to", to.String()),
				zap.Error(err))
			h.fail(c, http.StatusInternalServerError, statusFailed, "Failed to send ETH from treasury", err.Error())
		}
		return
	}

	h.metrics.IncClaim(statusSuccess)
	h.logger.Info("karma claim paid",
		zap.Uint64("points", points),
		zap.String("to", to.String()),
		zap.String("value", value.String()),
		zap.String("tx", receipt.TxHash),
		zap.Uint64("block", receipt.BlockNumber))

	c.JSON(http.StatusOK, domain.TransferResponse{
		Success:     true,
		TxHash:      receipt.TxHash,
		BlockNumber: receipt.BlockNumber,
		Message:     receipt.Message,
	})
}

func (h *ClaimHandler) fail(c *gin.Context, code int, status, msg, details string) {
	h.metrics.IncClaim(status)
	c.JSON(code, domain.ErrorResponse{Error: msg, Details: details})
}
