package application

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	log "github.com/sirupsen/logrus"
	"github.com/tdex-network/tdex-authtrade/internal/core/domain"
	"github.com/tdex-network/tdex-authtrade/internal/core/ports"
	"github.com/tdex-network/tdex-authtrade/pkg/stats"
	"golang.org/x/sync/semaphore"
)

// ExecuteOptions carries the acknowledgments of the trader for the warnings
// that would otherwise prevent an execution from being signed.
type ExecuteOptions struct {
	AcceptHighImpact    bool
	AcceptDegradedNonce bool
}

// ExecutorConfig ...
type ExecutorConfig struct {
	// Domain is the EIP-712 domain of the settlement contract, its verifying
	// contract is the target of the trade transactions.
	Domain              domain.SettlementDomain
	CurrencyToken       common.Address
	ApprovalTimeout     time.Duration
	ConfirmationTimeout time.Duration
	// MaxDeadline bounds how far in the future a trade deadline can be.
	MaxDeadline time.Duration
}

func (c ExecutorConfig) validate() error {
	if c.Domain.VerifyingContract == (common.Address{}) {
		return ErrMissingSettlementContract
	}
	if c.CurrencyToken == (common.Address{}) {
		return ErrMissingCurrencyToken
	}
	if c.Domain.Name == "" || c.Domain.Version == "" {
		return fmt.Errorf("missing typed data domain name or version")
	}
	if c.Domain.ChainID <= 0 {
		return fmt.Errorf("chain id must be greater than zero")
	}
	if c.ApprovalTimeout <= 0 || c.ConfirmationTimeout <= 0 {
		return fmt.Errorf("approval and confirmation timeouts must be greater than zero")
	}
	return nil
}

type executionHandle struct {
	lock        *sync.Mutex
	execution   *domain.TradeExecution
	opts        ExecuteOptions
	broadcaster *statusBroadcaster
	running     bool
	attempt     int
	// cancel stops the attempt before the trade is submitted, abandon stops
	// waiting for its confirmation.
	cancel  context.CancelFunc
	abandon context.CancelFunc
}

// stop marks the current attempt as over. It must be called with the lock
// held, before the terminal status is published.
func (h *executionHandle) stop() {
	h.running = false
	h.cancel = nil
	h.abandon = nil
}

// ExecutorService drives trade executions through their phases. It allows at
// most one active execution per signer, queueing the others.
type ExecutorService struct {
	cfg        ExecutorConfig
	reserves   *ReserveReader
	guard      *PriceGuard
	nonces     *NonceResolver
	authority  *SignatureAuthority
	reader     ports.AllowanceReader
	writer     ports.ChainWriter
	reconciler *Reconciler
	stats      *stats.Collector

	lock       *sync.RWMutex
	executions map[string]*executionHandle

	slotsLock *sync.Mutex
	slots     map[common.Address]*semaphore.Weighted
}

// NewExecutorService ...
func NewExecutorService(
	cfg ExecutorConfig,
	reserves *ReserveReader,
	guard *PriceGuard,
	nonces *NonceResolver,
	authority *SignatureAuthority,
	reader ports.AllowanceReader,
	writer ports.ChainWriter,
	reconciler *Reconciler,
	collector *stats.Collector,
) (*ExecutorService, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if reserves == nil {
		return nil, fmt.Errorf("missing reserve reader")
	}
	if guard == nil {
		return nil, fmt.Errorf("missing price guard")
	}
	if nonces == nil {
		return nil, fmt.Errorf("missing nonce resolver")
	}
	if authority == nil {
		return nil, fmt.Errorf("missing signature authority")
	}
	if reader == nil {
		return nil, fmt.Errorf("missing chain reader")
	}
	if writer == nil {
		return nil, fmt.Errorf("missing chain writer")
	}
	if reconciler == nil {
		return nil, fmt.Errorf("missing reconciler")
	}

	return &ExecutorService{
		cfg:        cfg,
		reserves:   reserves,
		guard:      guard,
		nonces:     nonces,
		authority:  authority,
		reader:     reader,
		writer:     writer,
		reconciler: reconciler,
		stats:      collector,
		lock:       &sync.RWMutex{},
		executions: make(map[string]*executionHandle),
		slotsLock:  &sync.Mutex{},
		slots:      make(map[common.Address]*semaphore.Weighted),
	}, nil
}

// Quote prices the given intent against the current pool reserves.
func (s *ExecutorService) Quote(
	ctx context.Context, intent domain.TradeIntent,
) (*domain.PoolQuote, error) {
	if err := intent.Validate(); err != nil {
		return nil, err
	}
	reserves, err := s.reserves.GetReserves(ctx, intent.AssetID)
	if err != nil {
		return nil, err
	}
	return s.guard.Quote(intent, reserves)
}

// Nonce returns the nonce the trader is expected to sign over next. The
// value may come from cache and it's meant for display only.
func (s *ExecutorService) Nonce(
	ctx context.Context, trader common.Address,
) (domain.NonceResolution, error) {
	return s.nonces.Resolve(ctx, trader)
}

// Execute quotes the intent and starts a new execution for it. The returned
// channel receives every status update of the execution and it's closed once
// the execution is acknowledged.
func (s *ExecutorService) Execute(
	ctx context.Context, intent domain.TradeIntent, opts ExecuteOptions,
) (string, <-chan domain.ExecutionStatus, error) {
	h, err := s.newExecution(ctx, intent, opts)
	if err != nil {
		return "", nil, err
	}
	statusCh, _ := h.broadcaster.subscribe()
	s.start(h)
	return h.execution.ID, statusCh, nil
}

// Start is like Execute but does not subscribe to the status updates of the
// execution. Callers can follow it later with Subscribe.
func (s *ExecutorService) Start(
	ctx context.Context, intent domain.TradeIntent, opts ExecuteOptions,
) (string, error) {
	h, err := s.newExecution(ctx, intent, opts)
	if err != nil {
		return "", err
	}
	s.start(h)
	return h.execution.ID, nil
}

func (s *ExecutorService) newExecution(
	ctx context.Context, intent domain.TradeIntent, opts ExecuteOptions,
) (*executionHandle, error) {
	if err := s.validateDeadline(intent); err != nil {
		return nil, err
	}
	quote, err := s.Quote(ctx, intent)
	if err != nil {
		return nil, err
	}
	if quote.HighImpact && !opts.AcceptHighImpact {
		return nil, fmt.Errorf(
			"%w: %d bps", domain.ErrHighPriceImpact, quote.PriceImpactBps,
		)
	}

	execution := domain.NewTradeExecution(intent, quote)
	for _, w := range quote.Warnings() {
		execution.AddWarning(w)
	}
	h := &executionHandle{
		lock:        &sync.Mutex{},
		execution:   execution,
		opts:        opts,
		broadcaster: newStatusBroadcaster(),
	}
	h.broadcaster.publish(execution.Status(""))

	s.lock.Lock()
	s.executions[execution.ID] = h
	s.lock.Unlock()

	log.Infof(
		"execution %s: %s %s of asset %d for %s",
		execution.ID, intent.Direction, intent.InputAmount, intent.AssetID,
		intent.Trader,
	)
	s.stats.PhaseEntered(execution.Phase.String())
	return h, nil
}

// GetExecution returns a snapshot of the execution with the given id.
func (s *ExecutorService) GetExecution(id string) (domain.TradeExecution, error) {
	h, err := s.getHandle(id)
	if err != nil {
		return domain.TradeExecution{}, err
	}
	h.lock.Lock()
	defer h.lock.Unlock()
	return h.execution.Snapshot(), nil
}

// ListExecutions returns a snapshot of all the executions in memory.
func (s *ExecutorService) ListExecutions() []domain.TradeExecution {
	s.lock.RLock()
	handles := make([]*executionHandle, 0, len(s.executions))
	for _, h := range s.executions {
		handles = append(handles, h)
	}
	s.lock.RUnlock()

	list := make([]domain.TradeExecution, 0, len(handles))
	for _, h := range handles {
		h.lock.Lock()
		list = append(list, h.execution.Snapshot())
		h.lock.Unlock()
	}
	return list
}

// Subscribe returns a channel receiving the current status of the execution
// and all the following updates, together with a function to stop
// receiving them.
func (s *ExecutorService) Subscribe(
	id string,
) (<-chan domain.ExecutionStatus, func(), error) {
	h, err := s.getHandle(id)
	if err != nil {
		return nil, nil, err
	}
	ch, unsubscribe := h.broadcaster.subscribe()
	return ch, unsubscribe, nil
}

// Cancel stops an execution that has not submitted its trade yet. If the
// trade is awaiting confirmation, waiting is abandoned and the outcome of the
// transaction is left to the reconciler.
func (s *ExecutorService) Cancel(id string) error {
	h, err := s.getHandle(id)
	if err != nil {
		return err
	}

	h.lock.Lock()
	defer h.lock.Unlock()

	switch {
	case h.execution.IsTerminal():
		return domain.ErrExecutionTerminated
	case h.execution.IsCancellable():
		if h.cancel != nil {
			h.cancel()
		}
		return nil
	case h.execution.Phase == domain.PhaseAwaitingConfirmation && h.abandon != nil:
		h.abandon()
		return nil
	default:
		return ErrExecutionNotCancellable
	}
}

// Retry brings an execution failed at submission back to AwaitingSignature
// and runs it again with a freshly resolved nonce and a new signature.
func (s *ExecutorService) Retry(id string) error {
	h, err := s.getHandle(id)
	if err != nil {
		return err
	}

	h.lock.Lock()
	if h.running {
		h.lock.Unlock()
		return ErrExecutionInProgress
	}
	if err := h.execution.Retry(); err != nil {
		h.lock.Unlock()
		return err
	}
	status := h.execution.Status("retrying with a new authorization")
	h.lock.Unlock()

	log.Infof("execution %s: retrying", id)
	s.stats.PhaseEntered(domain.PhaseAwaitingSignature.String())
	h.broadcaster.publish(status)
	s.start(h)
	return nil
}

// Acknowledge drops a terminated execution from memory and closes all its
// status channels.
func (s *ExecutorService) Acknowledge(id string) error {
	h, err := s.getHandle(id)
	if err != nil {
		return err
	}

	h.lock.Lock()
	if !h.execution.IsTerminal() || h.running {
		h.lock.Unlock()
		return ErrExecutionInProgress
	}
	h.lock.Unlock()

	s.lock.Lock()
	delete(s.executions, id)
	s.lock.Unlock()

	h.broadcaster.close()
	return nil
}

func (s *ExecutorService) validateDeadline(intent domain.TradeIntent) error {
	if err := intent.Validate(); err != nil {
		return err
	}
	now := time.Now()
	deadline := time.Unix(intent.Deadline, 0)
	if !deadline.After(now) {
		return fmt.Errorf("%w: deadline is in the past", domain.ErrInvalidDeadline)
	}
	if s.cfg.MaxDeadline > 0 && deadline.Sub(now) > s.cfg.MaxDeadline {
		return fmt.Errorf(
			"%w: deadline must be within %s", domain.ErrInvalidDeadline,
			s.cfg.MaxDeadline,
		)
	}
	return nil
}

func (s *ExecutorService) getHandle(id string) (*executionHandle, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	h, ok := s.executions[id]
	if !ok {
		return nil, ErrExecutionNotFound
	}
	return h, nil
}

func (s *ExecutorService) signerSlot(signer common.Address) *semaphore.Weighted {
	s.slotsLock.Lock()
	defer s.slotsLock.Unlock()

	slot, ok := s.slots[signer]
	if !ok {
		slot = semaphore.NewWeighted(1)
		s.slots[signer] = slot
	}
	return slot
}
