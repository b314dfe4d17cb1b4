package dbbadger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/tdex-network/tdex-authtrade/internal/core/domain"
	"github.com/timshannon/badgerhold/v4"
)

const maxTxRetries = 5

type authorizationRepository struct {
	store *badgerhold.Store
}

// NewAuthorizationRepository opens, or creates, the authorization ledger
// under the given base dir. An empty dir makes the store in-memory.
func NewAuthorizationRepository(
	baseDbDir string, logger badger.Logger,
) (domain.AuthorizationRepository, func(), error) {
	store, err := createDb(dbDir(baseDbDir), logger)
	if err != nil {
		return nil, nil, fmt.Errorf("opening authorizations db: %w", err)
	}
	repo := &authorizationRepository{store}
	return repo, repo.close, nil
}

func (r *authorizationRepository) AddAuthorization(
	ctx context.Context, record domain.AuthorizationRecord,
) error {
	return r.withRetries(func(tx *badger.Txn) error {
		var current domain.AuthorizationRecord
		err := r.store.TxGet(tx, record.Key, &current)
		if err != nil && !errors.Is(err, badgerhold.ErrNotFound) {
			return err
		}
		if err == nil && current.BindsNonce(time.Now().Unix()) {
			return fmt.Errorf(
				"%w: nonce %d of %s is %s by execution %s",
				domain.ErrNonceRace, record.Nonce, record.Signer, current.Status,
				current.ExecutionID,
			)
		}
		return r.store.TxUpsert(tx, record.Key, record)
	})
}

func (r *authorizationRepository) GetAuthorization(
	ctx context.Context, key string,
) (*domain.AuthorizationRecord, error) {
	var record domain.AuthorizationRecord
	if err := r.store.Get(key, &record); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, domain.ErrAuthorizationNotFound
		}
		return nil, err
	}
	return &record, nil
}

func (r *authorizationRepository) UpdateAuthorization(
	ctx context.Context, key string,
	updateFn func(r *domain.AuthorizationRecord) (*domain.AuthorizationRecord, error),
) error {
	return r.withRetries(func(tx *badger.Txn) error {
		var record domain.AuthorizationRecord
		if err := r.store.TxGet(tx, key, &record); err != nil {
			if errors.Is(err, badgerhold.ErrNotFound) {
				return domain.ErrAuthorizationNotFound
			}
			return err
		}

		updated, err := updateFn(&record)
		if err != nil {
			return err
		}
		return r.store.TxUpdate(tx, key, *updated)
	})
}

func (r *authorizationRepository) GetAuthorizationsByStatus(
	ctx context.Context, status domain.AuthorizationStatus,
) ([]domain.AuthorizationRecord, error) {
	var records []domain.AuthorizationRecord
	query := badgerhold.Where("Status").Eq(status).SortBy("UpdatedAt")
	if err := r.store.Find(&records, query); err != nil {
		return nil, err
	}
	return records, nil
}

func (r *authorizationRepository) close() {
	r.store.Close()
}

// withRetries runs fn in a read-write transaction, retrying on conflicts
// with concurrent transactions.
func (r *authorizationRepository) withRetries(fn func(tx *badger.Txn) error) error {
	var err error
	for i := 0; i < maxTxRetries; i++ {
		err = r.store.Badger().Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return err
}
