package domain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Issuer tells which signing path produced an authorization.
type Issuer int

const (
	IssuerUnknown Issuer = iota
	BackendIssued
	LocallySigned
)

func (i Issuer) String() string {
	switch i {
	case BackendIssued:
		return "backend"
	case LocallySigned:
		return "local"
	default:
		return "unknown"
	}
}

// SettlementDomain identifies the settlement contract the typed data is
// scoped to.
type SettlementDomain struct {
	Name              string
	Version           string
	ChainID           int64
	VerifyingContract common.Address
}

// TypedTradeData is the structured message the trader authorizes.
type TypedTradeData struct {
	Domain    SettlementDomain
	Direction TradeDirection
	Trader    common.Address
	AssetID   uint64
	// Amount of asset in base units.
	Amount *big.Int
	// Bound is the max currency to spend for buys or the min currency to
	// receive for sells, in base units.
	Bound    *big.Int
	Nonce    uint64
	Deadline int64
}

// SignedAuthorization is a typed data payload together with its signature.
// It is single use: the embedded nonce is burned by the settlement contract
// on successful execution.
type SignedAuthorization struct {
	Payload     TypedTradeData
	Signature   []byte
	Nonce       uint64
	Issuer      Issuer
	ExternalRef string
}

// HasExternalRef returns whether the authorization was issued by the signing
// service and must be reconciled with it.
func (a *SignedAuthorization) HasExternalRef() bool {
	return a != nil && a.ExternalRef != ""
}

// Fingerprint uniquely identifies the authorization by hashing its signature.
func (a *SignedAuthorization) Fingerprint() string {
	if a == nil || len(a.Signature) <= 0 {
		return ""
	}
	return crypto.Keccak256Hash(a.Signature).Hex()
}

// NonceSource tells which accessor produced a nonce.
type NonceSource int

const (
	NonceSourceNextAccessor NonceSource = iota
	NonceSourceUsedAccessor
	NonceSourceDefault
)

func (s NonceSource) String() string {
	switch s {
	case NonceSourceNextAccessor:
		return "next_nonce"
	case NonceSourceUsedAccessor:
		return "used_nonce"
	default:
		return "default"
	}
}

// NonceResolution is the tagged result of probing the settlement contract
// for the next usable nonce of a signer.
type NonceResolution struct {
	Value    uint64
	Source   NonceSource
	Degraded bool
}
