package domain

import (
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// ConversionRequest asks to convert karma points into native tokens sent to Destination.
type ConversionRequest struct {
	Points      uint64
	Destination Address
}

// Validate fails with ErrInvalidRequest for zero points or a malformed destination.
func (r ConversionRequest) Validate() error {
	if r.Points == 0 {
		return errors.Wrap(ErrInvalidRequest, "points must be positive")
	}
	if !r.Destination.Valid() {
		return errors.Wrapf(ErrInvalidRequest, "invalid destination address %q", r.Destination)
	}
	return nil
}

// ConversionReceipt is produced once per successful conversion.
type ConversionReceipt struct {
	Success     bool            `json:"success"`
	TxHash      string          `json:"txHash,omitempty"`
	BlockNumber uint64          `json:"blockNumber,omitempty"`
	ValueSent   decimal.Decimal `json:"valueSent"`
	Message     string          `json:"message"`
}
