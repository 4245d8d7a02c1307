package conversion

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"

	"github.com/vadiminshakov/karmabridge/internal/domain"
)

type sessionMock struct {
	mock.Mock
}

func (m *sessionMock) IsConnected() bool {
	return m.Called().Bool(0)
}

func (m *sessionMock) SwitchNetwork(ctx context.Context, network domain.NetworkDescriptor) error {
	return m.Called(ctx, network).Error(0)
}

type balancesMock struct {
	mock.Mock
}

func (m *balancesMock) RequireBalance(ctx context.Context, addr domain.Address) (decimal.Decimal, error) {
	args := m.Called(ctx, addr)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

type transfererMock struct {
	mock.Mock
}

func (m *transfererMock) Transfer(ctx context.Context, req domain.ConversionRequest, value decimal.Decimal) (domain.ConversionReceipt, error) {
	args := m.Called(ctx, req, value)
	return args.Get(0).(domain.ConversionReceipt), args.Error(1)
}

type senderMock struct {
	mock.Mock
}

func (m *senderMock) Address() domain.Address {
	return m.Called().Get(0).(domain.Address)
}

func (m *senderMock) Send(ctx context.Context, to domain.Address, value decimal.Decimal) (domain.ConversionReceipt, error) {
	args := m.Called(ctx, to, value)
	return args.Get(0).(domain.ConversionReceipt), args.Error(1)
}
