package evmchain

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/ratelimit"
)

const defaultPollInterval = 2 * time.Second

// Client is the subset of the Ethereum RPC used by the service.
type Client interface {
	ChainID(ctx context.Context) (*big.Int, error)
	CallContract(
		ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int,
	) ([]byte, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionByHash(
		ctx context.Context, hash common.Hash,
	) (*types.Transaction, bool, error)
	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
}

// TxSigner signs the transactions broadcasted by the service.
type TxSigner interface {
	Address() common.Address
	SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error)
}

// Config ...
type Config struct {
	RPCEndpoint        string
	ChainID            int64
	SettlementContract common.Address
	CurrencyToken      common.Address
	// RequestsPerSecond paces the RPC calls, zero means unlimited.
	RequestsPerSecond int
	PollInterval      time.Duration
}

func (c Config) validate() error {
	if c.RPCEndpoint == "" {
		return fmt.Errorf("missing rpc endpoint")
	}
	if c.ChainID <= 0 {
		return fmt.Errorf("chain id must be greater than zero")
	}
	if c.SettlementContract == (common.Address{}) {
		return fmt.Errorf("missing settlement contract address")
	}
	if c.CurrencyToken == (common.Address{}) {
		return fmt.Errorf("missing currency token address")
	}
	return nil
}

// Service reads the settlement contract and the currency token state, and
// broadcasts transactions signed by the given TxSigner.
type Service struct {
	client       Client
	signer       TxSigner
	chainID      *big.Int
	settlement   common.Address
	currency     common.Address
	limiter      ratelimit.Limiter
	pollInterval time.Duration
	close        func()
}

// NewService dials the RPC endpoint and makes sure it serves the configured
// chain.
func NewService(cfg Config, signer TxSigner) (*Service, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	client, err := ethclient.Dial(cfg.RPCEndpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to dial rpc endpoint: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	chainID, err := client.ChainID(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to get chain id: %w", err)
	}
	if chainID.Int64() != cfg.ChainID {
		client.Close()
		return nil, fmt.Errorf(
			"rpc endpoint serves chain %s, expected %d", chainID, cfg.ChainID,
		)
	}

	svc := NewServiceWithClient(cfg, client, signer)
	svc.close = client.Close
	return svc, nil
}

// NewServiceWithClient returns a service on top of an already connected
// client.
func NewServiceWithClient(cfg Config, client Client, signer TxSigner) *Service {
	limiter := ratelimit.NewUnlimited()
	if cfg.RequestsPerSecond > 0 {
		limiter = ratelimit.New(cfg.RequestsPerSecond)
	}
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	return &Service{
		client:       client,
		signer:       signer,
		chainID:      big.NewInt(cfg.ChainID),
		settlement:   cfg.SettlementContract,
		currency:     cfg.CurrencyToken,
		limiter:      limiter,
		pollInterval: pollInterval,
	}
}

func (s *Service) Close() {
	if s.close != nil {
		s.close()
	}
}

func (s *Service) call(
	ctx context.Context, to common.Address, data []byte,
) ([]byte, error) {
	s.limiter.Take()
	return s.client.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
}
