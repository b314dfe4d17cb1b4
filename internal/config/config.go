package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/viper"
	"github.com/tdex-network/tdex-authtrade/internal/core/application"
)

const (
	// ListeningPortKey is the port where the HTTP interface will listen on
	ListeningPortKey = "LISTENING_PORT"
	// DatadirKey is the local data directory to store the internal state of daemon
	DatadirKey = "DATADIR"
	// LogLevelKey are the different logging levels. For reference on the values https://godoc.org/github.com/sirupsen/logrus#Level
	LogLevelKey = "LOG_LEVEL"
	// DBTypeKey is used to switch database type between those supported
	DBTypeKey = "DB_TYPE"
	// StatsIntervalKey defines interval for printing memory statistics, 0 disables them
	StatsIntervalKey = "STATS_INTERVAL"

	// RPCEndpointKey is the url of the JSON-RPC endpoint of the chain node
	RPCEndpointKey = "RPC_ENDPOINT"
	// RPCRateLimitKey is the max number of RPC requests per second, 0 means unlimited
	RPCRateLimitKey = "RPC_RATE_LIMIT"
	// ChainIDKey is the id of the chain the settlement contract is deployed on
	ChainIDKey = "CHAIN_ID"
	// SettlementContractKey is the address of the settlement contract
	SettlementContractKey = "SETTLEMENT_CONTRACT"
	// CurrencyTokenKey is the address of the ERC20 currency token of the pools
	CurrencyTokenKey = "CURRENCY_TOKEN"
	// CurrencyDecimalsKey is the number of decimals of the currency token
	CurrencyDecimalsKey = "CURRENCY_DECIMALS"
	// AssetDecimalsKey is the number of decimals of the traded assets
	AssetDecimalsKey = "ASSET_DECIMALS"
	// DomainNameKey is the name of the EIP-712 domain of the settlement contract
	DomainNameKey = "DOMAIN_NAME"
	// DomainVersionKey is the version of the EIP-712 domain of the settlement contract
	DomainVersionKey = "DOMAIN_VERSION"

	// SignerPrivateKeyKey is the hex encoded private key of the trader
	SignerPrivateKeyKey = "SIGNER_PRIVATE_KEY"
	// SignerKeyFileKey is the path of the encrypted keystore file of the trader,
	// alternative to SignerPrivateKeyKey
	SignerKeyFileKey = "SIGNER_KEY_FILE"
	// SignerKeyFilePasswordKey is the password to decrypt the keystore file
	SignerKeyFilePasswordKey = "SIGNER_KEY_FILE_PASSWORD"

	// SigningServiceURLKey is the base url of the signing service, if not set
	// every authorization is signed locally
	SigningServiceURLKey = "SIGNING_SERVICE_URL"
	// SigningServiceTokenKey is the session jwt for the signing service
	SigningServiceTokenKey = "SIGNING_SERVICE_TOKEN"
	// SigningServiceTokenFileKey is the path of a file containing the session
	// jwt, read on every request
	SigningServiceTokenFileKey = "SIGNING_SERVICE_TOKEN_FILE"
	// SigningServiceTimeoutKey is the timeout of every request to the signing service
	SigningServiceTimeoutKey = "SIGNING_SERVICE_TIMEOUT"

	// HighImpactThresholdKey is the price impact in basis points above which
	// the trader must explicitly accept the trade
	HighImpactThresholdKey = "HIGH_IMPACT_THRESHOLD_BPS"
	// ApprovalTimeoutKey is the max time to wait for an allowance approval to confirm
	ApprovalTimeoutKey = "APPROVAL_TIMEOUT"
	// ConfirmationTimeoutKey is the max time to wait for a trade to confirm
	// before handing it to the reconciler
	ConfirmationTimeoutKey = "CONFIRMATION_TIMEOUT"
	// ReceiptPollIntervalKey is the interval between receipt requests
	ReceiptPollIntervalKey = "RECEIPT_POLL_INTERVAL"
	// ReconcileIntervalKey is the interval between reconciliations of pending trades
	ReconcileIntervalKey = "RECONCILE_INTERVAL"
	// ReserveCacheTTLKey is how long pool reserves are considered fresh
	ReserveCacheTTLKey = "RESERVE_CACHE_TTL"
	// NonceCacheTTLKey is how long a nonce read for quotes is considered fresh
	NonceCacheTTLKey = "NONCE_CACHE_TTL"
	// MaxDeadlineKey is how far in the future a trade deadline can be
	MaxDeadlineKey = "MAX_DEADLINE"

	DbLocation = "db"
)

var vip *viper.Viper
var defaultDatadir = btcutil.AppDataDir("tdex-authtrade", false)

func InitConfig() error {
	vip = viper.New()
	vip.SetEnvPrefix("AUTHTRADE")
	vip.AutomaticEnv()

	vip.SetDefault(ListeningPortKey, 9945)
	vip.SetDefault(DatadirKey, defaultDatadir)
	vip.SetDefault(LogLevelKey, 4)
	vip.SetDefault(DBTypeKey, application.DBBadger)
	vip.SetDefault(StatsIntervalKey, 0)
	vip.SetDefault(RPCRateLimitKey, 20)
	vip.SetDefault(CurrencyDecimalsKey, 6)
	vip.SetDefault(AssetDecimalsKey, 18)
	vip.SetDefault(DomainNameKey, "ShareSettlement")
	vip.SetDefault(DomainVersionKey, "1")
	vip.SetDefault(SigningServiceTimeoutKey, 15*time.Second)
	vip.SetDefault(HighImpactThresholdKey, 500)
	vip.SetDefault(ApprovalTimeoutKey, 5*time.Minute)
	vip.SetDefault(ConfirmationTimeoutKey, 2*time.Minute)
	vip.SetDefault(ReceiptPollIntervalKey, 2*time.Second)
	vip.SetDefault(ReconcileIntervalKey, 30*time.Second)
	vip.SetDefault(ReserveCacheTTLKey, 10*time.Second)
	vip.SetDefault(NonceCacheTTLKey, 5*time.Second)
	vip.SetDefault(MaxDeadlineKey, 20*time.Minute)

	if err := validate(); err != nil {
		return fmt.Errorf("error while validating config: %s", err)
	}

	if err := initDatadir(); err != nil {
		return fmt.Errorf("error while creating datadir: %s", err)
	}

	return nil
}

func GetString(key string) string {
	return vip.GetString(key)
}

func GetInt(key string) int {
	return vip.GetInt(key)
}

func GetInt64(key string) int64 {
	return vip.GetInt64(key)
}

func GetDuration(key string) time.Duration {
	return vip.GetDuration(key)
}

func GetBool(key string) bool {
	return vip.GetBool(key)
}

func GetAddress(key string) common.Address {
	return common.HexToAddress(vip.GetString(key))
}

func GetDatadir() string {
	return GetString(DatadirKey)
}

func GetDbDir() string {
	return filepath.Join(GetDatadir(), DbLocation)
}

func validate() error {
	datadir := GetString(DatadirKey)
	if len(datadir) <= 0 {
		return fmt.Errorf("missing datadir")
	}

	if _, ok := application.SupportedDBType[GetString(DBTypeKey)]; !ok {
		return fmt.Errorf("unsupported db type %s", GetString(DBTypeKey))
	}

	if GetString(RPCEndpointKey) == "" {
		return fmt.Errorf("missing rpc endpoint")
	}
	if GetInt64(ChainIDKey) <= 0 {
		return fmt.Errorf("%s must be greater than zero", ChainIDKey)
	}
	for _, key := range []string{SettlementContractKey, CurrencyTokenKey} {
		if !common.IsHexAddress(GetString(key)) {
			return fmt.Errorf("%s must be a valid hex address", key)
		}
	}
	for _, key := range []string{CurrencyDecimalsKey, AssetDecimalsKey} {
		if d := GetInt(key); d < 0 || d > 18 {
			return fmt.Errorf("%s must be in range [0, 18]", key)
		}
	}

	privateKey, keyFile := GetString(SignerPrivateKeyKey), GetString(SignerKeyFileKey)
	if privateKey == "" && keyFile == "" {
		return fmt.Errorf("missing signer private key or key file")
	}
	if privateKey != "" && keyFile != "" {
		return fmt.Errorf("signer private key and key file are mutually exclusive")
	}

	if GetString(SigningServiceURLKey) != "" &&
		GetString(SigningServiceTokenKey) == "" &&
		GetString(SigningServiceTokenFileKey) == "" {
		return fmt.Errorf("signing service requires either a token or a token file")
	}

	if GetInt64(HighImpactThresholdKey) <= 0 {
		return fmt.Errorf("%s must be greater than zero", HighImpactThresholdKey)
	}
	for _, key := range []string{
		ApprovalTimeoutKey, ConfirmationTimeoutKey, ReceiptPollIntervalKey,
		ReconcileIntervalKey, MaxDeadlineKey,
	} {
		if GetDuration(key) <= 0 {
			return fmt.Errorf("%s must be greater than zero", key)
		}
	}
	if GetInt(RPCRateLimitKey) < 0 {
		return fmt.Errorf("%s must not be negative", RPCRateLimitKey)
	}

	return nil
}

func initDatadir() error {
	if GetString(DBTypeKey) != application.DBBadger {
		return nil
	}
	return makeDirectoryIfNotExists(GetDbDir())
}

func makeDirectoryIfNotExists(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return os.MkdirAll(path, os.ModeDir|0755)
	}
	return nil
}
