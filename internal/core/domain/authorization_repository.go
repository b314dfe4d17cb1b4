package domain

import (
	"context"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// AuthorizationStatus tracks the lifecycle of a nonce bound to a signed
// authorization.
type AuthorizationStatus int

const (
	// AuthorizationSigned: signed, not yet broadcasted.
	AuthorizationSigned AuthorizationStatus = iota
	// AuthorizationSubmitted: broadcasted, not yet confirmed.
	AuthorizationSubmitted
	// AuthorizationBurned: confirmed on-chain, the nonce is consumed.
	AuthorizationBurned
	// AuthorizationReleased: discarded before reaching the chain or reverted,
	// the nonce can be signed again.
	AuthorizationReleased
)

func (s AuthorizationStatus) String() string {
	switch s {
	case AuthorizationSigned:
		return "signed"
	case AuthorizationSubmitted:
		return "submitted"
	case AuthorizationBurned:
		return "burned"
	case AuthorizationReleased:
		return "released"
	default:
		return "unknown"
	}
}

// AuthorizationRecord is the ledger entry binding a signer's nonce to the
// authorization signed over it.
type AuthorizationRecord struct {
	Key         string
	Contract    string
	Signer      string
	Nonce       uint64
	Fingerprint string
	Issuer      Issuer
	ExternalRef string
	ExecutionID string
	TxHash      string
	// Deadline of the signed payload, past it the authorization can no
	// longer be executed by the settlement contract.
	Deadline  int64
	Status    AuthorizationStatus
	UpdatedAt int64
}

// AuthorizationKey returns the ledger key for the given signer's nonce on
// the given settlement contract.
func AuthorizationKey(contract, signer common.Address, nonce uint64) string {
	return fmt.Sprintf(
		"%s/%s/%d",
		strings.ToLower(contract.Hex()), strings.ToLower(signer.Hex()), nonce,
	)
}

// NewAuthorizationRecord returns a record in Signed status for the given
// authorization.
func NewAuthorizationRecord(
	auth *SignedAuthorization, executionID string, now int64,
) AuthorizationRecord {
	contract := auth.Payload.Domain.VerifyingContract
	signer := auth.Payload.Trader
	return AuthorizationRecord{
		Key:         AuthorizationKey(contract, signer, auth.Nonce),
		Contract:    strings.ToLower(contract.Hex()),
		Signer:      strings.ToLower(signer.Hex()),
		Nonce:       auth.Nonce,
		Fingerprint: auth.Fingerprint(),
		Issuer:      auth.Issuer,
		ExternalRef: auth.ExternalRef,
		ExecutionID: executionID,
		Deadline:    auth.Payload.Deadline,
		Status:      AuthorizationSigned,
		UpdatedAt:   now,
	}
}

// IsLive returns whether the nonce of the record is still bound to its
// authorization.
func (r AuthorizationRecord) IsLive() bool {
	return r.Status != AuthorizationReleased
}

// BindsNonce returns whether the record prevents its nonce from being signed
// again at the given time.
func (r AuthorizationRecord) BindsNonce(now int64) bool {
	return r.IsLive() && !r.IsAbandoned(now)
}

// IsAbandoned returns whether the record never left Signed status before
// the deadline of its authorization. Such a record can only be left behind
// by an interrupted execution, and binds a nonce no transaction can burn
// anymore.
func (r AuthorizationRecord) IsAbandoned(now int64) bool {
	return r.Status == AuthorizationSigned && r.Deadline < now
}

// AuthorizationRepository is the abstraction for any kind of database
// intended to persist the authorization ledger.
type AuthorizationRepository interface {
	// AddAuthorization stores a new record. It fails with ErrNonceRace if a
	// live record with the same key exists. A released or abandoned record is
	// replaced.
	AddAuthorization(ctx context.Context, record AuthorizationRecord) error
	// GetAuthorization returns the record with the given key.
	GetAuthorization(ctx context.Context, key string) (*AuthorizationRecord, error)
	// UpdateAuthorization allows to commit multiple changes to the same
	// record in a transactional way.
	UpdateAuthorization(
		ctx context.Context, key string,
		updateFn func(r *AuthorizationRecord) (*AuthorizationRecord, error),
	) error
	// GetAuthorizationsByStatus returns all the records with the given
	// status, least recently updated first.
	GetAuthorizationsByStatus(
		ctx context.Context, status AuthorizationStatus,
	) ([]AuthorizationRecord, error)
}
