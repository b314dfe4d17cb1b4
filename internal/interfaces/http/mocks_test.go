package httpinterface_test

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/mock"
	"github.com/tdex-network/tdex-authtrade/internal/core/application"
	"github.com/tdex-network/tdex-authtrade/internal/core/domain"
)

type mockExecutor struct {
	mock.Mock
}

func (m *mockExecutor) Quote(
	ctx context.Context, intent domain.TradeIntent,
) (*domain.PoolQuote, error) {
	args := m.Called(ctx, intent)

	var res *domain.PoolQuote
	if a := args.Get(0); a != nil {
		res = a.(*domain.PoolQuote)
	}
	return res, args.Error(1)
}

func (m *mockExecutor) Nonce(
	ctx context.Context, trader common.Address,
) (domain.NonceResolution, error) {
	args := m.Called(ctx, trader)

	var res domain.NonceResolution
	if a := args.Get(0); a != nil {
		res = a.(domain.NonceResolution)
	}
	return res, args.Error(1)
}

func (m *mockExecutor) Start(
	ctx context.Context, intent domain.TradeIntent, opts application.ExecuteOptions,
) (string, error) {
	args := m.Called(ctx, intent, opts)
	return args.String(0), args.Error(1)
}

func (m *mockExecutor) GetExecution(id string) (domain.TradeExecution, error) {
	args := m.Called(id)

	var res domain.TradeExecution
	if a := args.Get(0); a != nil {
		res = a.(domain.TradeExecution)
	}
	return res, args.Error(1)
}

func (m *mockExecutor) ListExecutions() []domain.TradeExecution {
	args := m.Called()

	var res []domain.TradeExecution
	if a := args.Get(0); a != nil {
		res = a.([]domain.TradeExecution)
	}
	return res
}

func (m *mockExecutor) Subscribe(
	id string,
) (<-chan domain.ExecutionStatus, func(), error) {
	args := m.Called(id)

	var ch <-chan domain.ExecutionStatus
	if a := args.Get(0); a != nil {
		ch = a.(<-chan domain.ExecutionStatus)
	}
	var unsubscribe func()
	if a := args.Get(1); a != nil {
		unsubscribe = a.(func())
	}
	return ch, unsubscribe, args.Error(2)
}

func (m *mockExecutor) Cancel(id string) error {
	return m.Called(id).Error(0)
}

func (m *mockExecutor) Retry(id string) error {
	return m.Called(id).Error(0)
}

func (m *mockExecutor) Acknowledge(id string) error {
	return m.Called(id).Error(0)
}
