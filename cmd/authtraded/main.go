package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	log "github.com/sirupsen/logrus"
	"github.com/tdex-network/tdex-authtrade/internal/config"
	"github.com/tdex-network/tdex-authtrade/internal/core/application"
	"github.com/tdex-network/tdex-authtrade/internal/core/domain"
	"github.com/tdex-network/tdex-authtrade/internal/core/ports"
	"github.com/tdex-network/tdex-authtrade/internal/infrastructure/cache"
	evmchain "github.com/tdex-network/tdex-authtrade/internal/infrastructure/chain/evm"
	signingservice "github.com/tdex-network/tdex-authtrade/internal/infrastructure/signing-service"
	"github.com/tdex-network/tdex-authtrade/internal/infrastructure/wallet"
	httpinterface "github.com/tdex-network/tdex-authtrade/internal/interfaces/http"
	"github.com/tdex-network/tdex-authtrade/pkg/stats"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := config.InitConfig(); err != nil {
		log.WithError(err).Fatal("failed to load config")
	}
	log.SetLevel(log.Level(config.GetInt(config.LogLevelKey)))

	ctx, stop := signal.NotifyContext(
		context.Background(), os.Interrupt, syscall.SIGTERM,
	)
	defer stop()

	if err := run(ctx); err != nil {
		log.WithError(err).Error("daemon stopped")
		os.Exit(1)
	}
	log.Info("shutdown")
}

func run(ctx context.Context) error {
	signer, err := newWallet()
	if err != nil {
		return err
	}
	log.Infof("signer %s", signer.Address())

	chainSvc, err := evmchain.NewService(evmchain.Config{
		RPCEndpoint:        config.GetString(config.RPCEndpointKey),
		ChainID:            config.GetInt64(config.ChainIDKey),
		SettlementContract: config.GetAddress(config.SettlementContractKey),
		CurrencyToken:      config.GetAddress(config.CurrencyTokenKey),
		RequestsPerSecond:  config.GetInt(config.RPCRateLimitKey),
		PollInterval:       config.GetDuration(config.ReceiptPollIntervalKey),
	}, signer)
	if err != nil {
		return fmt.Errorf("failed to connect to chain: %w", err)
	}
	defer chainSvc.Close()

	var (
		signingSvc  ports.SigningService
		credentials ports.CredentialSource
	)
	if url := config.GetString(config.SigningServiceURLKey); url != "" {
		signingSvc, err = signingservice.NewService(
			url, config.GetDuration(config.SigningServiceTimeoutKey),
		)
		if err != nil {
			return err
		}
		credentials = signingservice.NewCredentialSource(
			config.GetString(config.SigningServiceTokenKey),
			config.GetString(config.SigningServiceTokenFileKey),
		)
		log.Infof("signing service %s enabled, local signing as fallback", url)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector, err := stats.NewCollector(registry)
	if err != nil {
		return err
	}

	store, err := cache.NewCache(0)
	if err != nil {
		return err
	}

	appConfig := &application.Config{
		DBType:         config.GetString(config.DBTypeKey),
		DBConfig:       config.GetDbDir(),
		ChainReader:    chainSvc,
		ChainWriter:    chainSvc,
		Wallet:         signer,
		SigningService: signingSvc,
		Credentials:    credentials,
		Cache:          store,
		Stats:          collector,
		Domain: domain.SettlementDomain{
			Name:              config.GetString(config.DomainNameKey),
			Version:           config.GetString(config.DomainVersionKey),
			ChainID:           config.GetInt64(config.ChainIDKey),
			VerifyingContract: config.GetAddress(config.SettlementContractKey),
		},
		CurrencyToken:          config.GetAddress(config.CurrencyTokenKey),
		CurrencyPrecision:      int32(config.GetInt(config.CurrencyDecimalsKey)),
		AssetPrecision:         int32(config.GetInt(config.AssetDecimalsKey)),
		HighImpactThresholdBps: config.GetInt64(config.HighImpactThresholdKey),
		ReserveCacheTTL:        config.GetDuration(config.ReserveCacheTTLKey),
		NonceCacheTTL:          config.GetDuration(config.NonceCacheTTLKey),
		ApprovalTimeout:        config.GetDuration(config.ApprovalTimeoutKey),
		ConfirmationTimeout:    config.GetDuration(config.ConfirmationTimeoutKey),
		MaxDeadline:            config.GetDuration(config.MaxDeadlineKey),
		ReconcileInterval:      config.GetDuration(config.ReconcileIntervalKey),
	}
	if err := appConfig.Validate(); err != nil {
		return fmt.Errorf("invalid app config: %w", err)
	}
	defer appConfig.Close()

	httpSvc, err := httpinterface.NewService(httpinterface.ServiceOpts{
		Address:     fmt.Sprintf(":%d", config.GetInt(config.ListeningPortKey)),
		ExecutorSvc: appConfig.ExecutorService(),
		Trader:      signer.Address(),
		Gatherer:    registry,
	})
	if err != nil {
		return err
	}

	if seconds := config.GetInt(config.StatsIntervalKey); seconds > 0 {
		stats.EnableMemoryStatistics(ctx, time.Duration(seconds)*time.Second)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return appConfig.Reconciler().Run(gctx)
	})
	g.Go(func() error {
		if err := httpSvc.Start(); err != nil {
			return fmt.Errorf("failed to start http interface: %w", err)
		}
		<-gctx.Done()
		httpSvc.Stop()
		return nil
	})

	log.Info("daemon started")
	return g.Wait()
}

func newWallet() (*wallet.Wallet, error) {
	if keyFile := config.GetString(config.SignerKeyFileKey); keyFile != "" {
		return wallet.NewWalletFromKeyFile(
			keyFile, config.GetString(config.SignerKeyFilePasswordKey),
		)
	}
	return wallet.NewWalletFromHex(config.GetString(config.SignerPrivateKeyKey))
}
