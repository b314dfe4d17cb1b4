package application

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	log "github.com/sirupsen/logrus"
	"github.com/tdex-network/tdex-authtrade/internal/core/domain"
	"github.com/tdex-network/tdex-authtrade/internal/core/ports"
	"github.com/tdex-network/tdex-authtrade/internal/infrastructure/cache"
	dbbadger "github.com/tdex-network/tdex-authtrade/internal/infrastructure/storage/db/badger"
	"github.com/tdex-network/tdex-authtrade/internal/infrastructure/storage/db/inmemory"
	"github.com/tdex-network/tdex-authtrade/pkg/stats"
)

const (
	DBBadger   = "badger"
	DBInMemory = "inmemory"

	defaultHighImpactThresholdBps = 500
	defaultReconcileInterval      = 30 * time.Second
)

var (
	SupportedDBType = map[string]struct{}{
		DBBadger:   {},
		DBInMemory: {},
	}
)

// Config lazily wires the application services on top of the given
// infrastructure. Services are created once, on first access.
type Config struct {
	DBType string
	// DBConfig is the datadir for the badger db, ignored otherwise.
	DBConfig interface{}

	ChainReader ports.ChainReader
	ChainWriter ports.ChainWriter
	Wallet      ports.WalletSigner
	// SigningService and Credentials are optional, without them every
	// authorization is signed locally.
	SigningService ports.SigningService
	Credentials    ports.CredentialSource
	Cache          ports.Cache
	Stats          *stats.Collector

	Domain                 domain.SettlementDomain
	CurrencyToken          common.Address
	CurrencyPrecision      int32
	AssetPrecision         int32
	HighImpactThresholdBps int64
	ReserveCacheTTL        time.Duration
	NonceCacheTTL          time.Duration
	ApprovalTimeout        time.Duration
	ConfirmationTimeout    time.Duration
	MaxDeadline            time.Duration
	ReconcileInterval      time.Duration

	repo       domain.AuthorizationRepository
	closeRepo  func()
	reserves   *ReserveReader
	guard      *PriceGuard
	nonces     *NonceResolver
	authority  *SignatureAuthority
	reconciler *Reconciler
	executor   *ExecutorService
}

func (c *Config) Validate() error {
	if _, ok := SupportedDBType[c.DBType]; !ok {
		return fmt.Errorf("unsupported db type %q", c.DBType)
	}
	if c.ChainReader == nil {
		return fmt.Errorf("missing chain reader")
	}
	if c.ChainWriter == nil {
		return fmt.Errorf("missing chain writer")
	}
	if c.Wallet == nil {
		return fmt.Errorf("missing wallet")
	}
	if (c.SigningService == nil) != (c.Credentials == nil) {
		return fmt.Errorf("signing service and credentials must be set together")
	}
	if _, err := c.repository(); err != nil {
		return err
	}
	if _, err := c.executorService(); err != nil {
		return err
	}
	return nil
}

func (c *Config) AuthorizationRepository() domain.AuthorizationRepository {
	repo, _ := c.repository()
	return repo
}

func (c *Config) ExecutorService() *ExecutorService {
	svc, _ := c.executorService()
	return svc
}

func (c *Config) Reconciler() *Reconciler {
	svc, _ := c.reconcilerService()
	return svc
}

// Close releases the resources held by the authorization repository.
func (c *Config) Close() {
	if c.closeRepo != nil {
		c.closeRepo()
		c.closeRepo = nil
	}
}

func (c *Config) repository() (domain.AuthorizationRepository, error) {
	if c.repo == nil {
		switch c.DBType {
		case DBBadger:
			datadir, _ := c.DBConfig.(string)
			repo, closeFn, err := dbbadger.NewAuthorizationRepository(datadir, log.New())
			if err != nil {
				return nil, err
			}
			c.repo = repo
			c.closeRepo = closeFn
		case DBInMemory:
			c.repo = inmemory.NewAuthorizationRepository()
		default:
			return nil, fmt.Errorf("unsupported db type %q", c.DBType)
		}
	}
	return c.repo, nil
}

func (c *Config) cache() (ports.Cache, error) {
	if c.Cache == nil {
		store, err := cache.NewCache(0)
		if err != nil {
			return nil, err
		}
		c.Cache = store
	}
	return c.Cache, nil
}

func (c *Config) reserveReader() (*ReserveReader, error) {
	if c.reserves == nil {
		store, err := c.cache()
		if err != nil {
			return nil, err
		}
		reserves, err := NewReserveReader(c.ChainReader, store, c.ReserveCacheTTL)
		if err != nil {
			return nil, err
		}
		c.reserves = reserves
	}
	return c.reserves, nil
}

func (c *Config) priceGuard() (*PriceGuard, error) {
	if c.guard == nil {
		threshold := c.HighImpactThresholdBps
		if threshold <= 0 {
			threshold = defaultHighImpactThresholdBps
		}
		guard, err := NewPriceGuard(c.CurrencyPrecision, c.AssetPrecision, threshold)
		if err != nil {
			return nil, err
		}
		c.guard = guard
	}
	return c.guard, nil
}

func (c *Config) nonceResolver() (*NonceResolver, error) {
	if c.nonces == nil {
		store, err := c.cache()
		if err != nil {
			return nil, err
		}
		nonces, err := NewNonceResolver(c.ChainReader, store, c.NonceCacheTTL)
		if err != nil {
			return nil, err
		}
		c.nonces = nonces
	}
	return c.nonces, nil
}

func (c *Config) signatureAuthority() (*SignatureAuthority, error) {
	if c.authority == nil {
		nonces, err := c.nonceResolver()
		if err != nil {
			return nil, err
		}
		repo, err := c.repository()
		if err != nil {
			return nil, err
		}

		strategies := make([]SigningStrategy, 0, 2)
		if c.SigningService != nil {
			strategies = append(
				strategies, NewBackendStrategy(c.SigningService, c.Credentials),
			)
		}
		strategies = append(strategies, NewLocalStrategy(c.Wallet))
		policy, err := NewFallbackPolicy(strategies...)
		if err != nil {
			return nil, err
		}

		authority, err := NewSignatureAuthority(nonces, policy, repo)
		if err != nil {
			return nil, err
		}
		c.authority = authority
	}
	return c.authority, nil
}

func (c *Config) reconcilerService() (*Reconciler, error) {
	if c.reconciler == nil {
		nonces, err := c.nonceResolver()
		if err != nil {
			return nil, err
		}
		repo, err := c.repository()
		if err != nil {
			return nil, err
		}
		interval := c.ReconcileInterval
		if interval <= 0 {
			interval = defaultReconcileInterval
		}
		reconciler, err := NewReconciler(
			c.ChainWriter, repo, nonces, c.SigningService, c.Credentials,
			c.Stats, interval,
		)
		if err != nil {
			return nil, err
		}
		c.reconciler = reconciler
	}
	return c.reconciler, nil
}

func (c *Config) executorService() (*ExecutorService, error) {
	if c.executor == nil {
		reserves, err := c.reserveReader()
		if err != nil {
			return nil, err
		}
		guard, err := c.priceGuard()
		if err != nil {
			return nil, err
		}
		nonces, err := c.nonceResolver()
		if err != nil {
			return nil, err
		}
		authority, err := c.signatureAuthority()
		if err != nil {
			return nil, err
		}
		reconciler, err := c.reconcilerService()
		if err != nil {
			return nil, err
		}

		executor, err := NewExecutorService(
			ExecutorConfig{
				Domain:              c.Domain,
				CurrencyToken:       c.CurrencyToken,
				ApprovalTimeout:     c.ApprovalTimeout,
				ConfirmationTimeout: c.ConfirmationTimeout,
				MaxDeadline:         c.MaxDeadline,
			},
			reserves, guard, nonces, authority,
			c.ChainReader, c.ChainWriter, reconciler, c.Stats,
		)
		if err != nil {
			return nil, err
		}
		c.executor = executor
	}
	return c.executor, nil
}
