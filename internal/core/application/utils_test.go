package application_test

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/tdex-network/tdex-authtrade/internal/core/application"
	"github.com/tdex-network/tdex-authtrade/internal/core/domain"
	"github.com/tdex-network/tdex-authtrade/internal/core/ports"
	"github.com/tdex-network/tdex-authtrade/internal/infrastructure/cache"
	"github.com/tdex-network/tdex-authtrade/internal/infrastructure/wallet"
)

var (
	settlementContract = common.HexToAddress("0x00000000000000000000000000000000000000bb")
	currencyToken      = common.HexToAddress("0x00000000000000000000000000000000000000cc")
	settlementDomain   = domain.SettlementDomain{
		Name:              "ShareSettlement",
		Version:           "1",
		ChainID:           31337,
		VerifyingContract: settlementContract,
	}

	// 1000 currency units (6 decimals) against 5e-7 asset units (18
	// decimals), that is 0.002 currency base units per asset base unit.
	scenarioReserves = ports.Reserves{
		Currency: big.NewInt(1_000_000_000),
		Asset:    big.NewInt(500_000_000_000),
	}
	plenty = new(big.Int).Exp(big.NewInt(10), big.NewInt(30), nil)
)

type testEnv struct {
	cfg         *application.Config
	executor    *application.ExecutorService
	reconciler  *application.Reconciler
	ledger      domain.AuthorizationRepository
	reader      *mockChainReader
	writer      *mockChainWriter
	wallet      *wallet.Wallet
	service     *mockSigningService
	credentials *mockCredentials
}

type envOpts struct {
	withSigningService  bool
	confirmationTimeout time.Duration
}

func newTestEnv(t *testing.T, opts envOpts) *testEnv {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	w, err := wallet.NewWalletFromHex(hex.EncodeToString(crypto.FromECDSA(key)))
	require.NoError(t, err)

	store, err := cache.NewCache(0)
	require.NoError(t, err)

	env := &testEnv{
		reader: &mockChainReader{},
		writer: &mockChainWriter{},
		wallet: w,
	}
	confirmationTimeout := opts.confirmationTimeout
	if confirmationTimeout <= 0 {
		confirmationTimeout = 5 * time.Second
	}
	cfg := &application.Config{
		DBType:                 application.DBInMemory,
		ChainReader:            env.reader,
		ChainWriter:            env.writer,
		Wallet:                 w,
		Cache:                  store,
		Domain:                 settlementDomain,
		CurrencyToken:          currencyToken,
		CurrencyPrecision:      6,
		AssetPrecision:         18,
		HighImpactThresholdBps: 500,
		ApprovalTimeout:        5 * time.Second,
		ConfirmationTimeout:    confirmationTimeout,
		MaxDeadline:            time.Hour,
		ReconcileInterval:      time.Hour,
	}
	if opts.withSigningService {
		env.service = &mockSigningService{}
		env.credentials = &mockCredentials{}
		cfg.SigningService = env.service
		cfg.Credentials = env.credentials
	}
	require.NoError(t, cfg.Validate())
	t.Cleanup(cfg.Close)

	env.cfg = cfg
	env.executor = cfg.ExecutorService()
	env.reconciler = cfg.Reconciler()
	env.ledger = cfg.AuthorizationRepository()
	return env
}

func (e *testEnv) trader() common.Address {
	return e.wallet.Address()
}

// mockHealthyChain sets up a pool with the scenario reserves where the
// trader has plenty of funds and allowance. The next nonce accessor returns
// the given values in order, repeating the last one.
func (e *testEnv) mockHealthyChain(nonces ...uint64) {
	e.reader.On("GetReserves", mock.Anything, uint64(1)).Return(scenarioReserves, nil)
	e.reader.On("CurrencyBalance", mock.Anything, e.trader()).Return(plenty, nil)
	e.reader.On("AssetBalance", mock.Anything, e.trader(), uint64(1)).Return(plenty, nil)
	for i, n := range nonces {
		call := e.reader.On("NextNonce", mock.Anything, e.trader()).Return(n, nil)
		if i < len(nonces)-1 {
			call.Once()
		}
	}
}

func (e *testEnv) mockAllowance(allowance *big.Int) {
	e.reader.On("Allowance", mock.Anything, e.trader(), settlementContract).
		Return(allowance, nil)
}

func (e *testEnv) intent(direction domain.TradeDirection, amount string) domain.TradeIntent {
	return domain.TradeIntent{
		AssetID:     1,
		Direction:   direction,
		Trader:      e.trader(),
		InputAmount: decimal.RequireFromString(amount),
		SlippageBps: 50,
		Deadline:    time.Now().Add(10 * time.Minute).Unix(),
	}
}

// waitForTerminal reads status updates until a terminal one, returning all
// of them.
func waitForTerminal(
	t *testing.T, ch <-chan domain.ExecutionStatus,
) []domain.ExecutionStatus {
	t.Helper()

	statuses := make([]domain.ExecutionStatus, 0)
	timeout := time.After(10 * time.Second)
	for {
		select {
		case status, ok := <-ch:
			require.True(t, ok, "status channel closed before termination")
			statuses = append(statuses, status)
			if status.Terminal {
				return statuses
			}
		case <-timeout:
			require.FailNow(t, "execution did not terminate in time")
		}
	}
}

// waitForPhase polls the execution until it reaches the given phase.
func waitForPhase(
	t *testing.T, executor *application.ExecutorService, id string,
	phase domain.ExecutionPhase,
) {
	t.Helper()
	require.Eventually(t, func() bool {
		execution, err := executor.GetExecution(id)
		return err == nil && execution.Phase == phase
	}, 5*time.Second, 5*time.Millisecond)
}

func randomHash() common.Hash {
	b := make([]byte, 32)
	//nolint
	rand.Read(b)
	return common.BytesToHash(b)
}

func successfulReceipt(txHash common.Hash) *ports.Receipt {
	return &ports.Receipt{TxHash: txHash, Successful: true, BlockNumber: 10}
}

func blockUntilDone(args mock.Arguments) {
	<-args.Get(0).(context.Context).Done()
}
