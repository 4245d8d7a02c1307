package conversion

import (
	"context"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/vadiminshakov/karmabridge/internal/domain"
)

// Sender signs and submits a treasury transfer and waits for confirmation.
type Sender interface {
	Address() domain.Address
	Send(ctx context.Context, to domain.Address, value decimal.Decimal) (domain.ConversionReceipt, error)
}

// DirectTransferer signs with a locally held treasury key. Legacy mode: it puts the
// treasury key on the client machine, so it is only enabled explicitly.
type DirectTransferer struct {
	sender Sender
}

// NewDirectTransferer fails when the local key does not control the treasury account.
func NewDirectTransferer(sender Sender, treasury domain.Address) (*DirectTransferer, error) {
	if sender == nil {
		return nil, domain.ErrTreasuryNotConfigured
	}
	if !sender.Address().Equal(treasury) {
		return nil, errors.Errorf("signer %s is not the treasury account %s, use the backend transfer instead",
			sender.Address().Short(6), treasury.Short(6))
	}
	return &DirectTransferer{sender: sender}, nil
}

// Transfer pays value to the request destination.
func (d *DirectTransferer) Transfer(ctx context.Context, req domain.ConversionRequest, value decimal.Decimal) (domain.ConversionReceipt, error) {
	return d.sender.Send(ctx, req.Destination, value)
}
