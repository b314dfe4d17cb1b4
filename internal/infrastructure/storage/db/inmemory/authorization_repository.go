package inmemory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/tdex-network/tdex-authtrade/internal/core/domain"
)

type authorizationRepository struct {
	locker  *sync.Mutex
	records map[string]domain.AuthorizationRecord
}

// NewAuthorizationRepository returns a new inmemory AuthorizationRepository
// implementation.
func NewAuthorizationRepository() domain.AuthorizationRepository {
	return &authorizationRepository{
		locker:  &sync.Mutex{},
		records: make(map[string]domain.AuthorizationRecord),
	}
}

func (r *authorizationRepository) AddAuthorization(
	_ context.Context, record domain.AuthorizationRecord,
) error {
	r.locker.Lock()
	defer r.locker.Unlock()

	current, ok := r.records[record.Key]
	if ok && current.BindsNonce(time.Now().Unix()) {
		return fmt.Errorf(
			"%w: nonce %d of %s is %s by execution %s",
			domain.ErrNonceRace, record.Nonce, record.Signer, current.Status,
			current.ExecutionID,
		)
	}
	r.records[record.Key] = record
	return nil
}

func (r *authorizationRepository) GetAuthorization(
	_ context.Context, key string,
) (*domain.AuthorizationRecord, error) {
	r.locker.Lock()
	defer r.locker.Unlock()

	record, ok := r.records[key]
	if !ok {
		return nil, domain.ErrAuthorizationNotFound
	}
	return &record, nil
}

func (r *authorizationRepository) UpdateAuthorization(
	_ context.Context, key string,
	updateFn func(r *domain.AuthorizationRecord) (*domain.AuthorizationRecord, error),
) error {
	r.locker.Lock()
	defer r.locker.Unlock()

	record, ok := r.records[key]
	if !ok {
		return domain.ErrAuthorizationNotFound
	}

	updated, err := updateFn(&record)
	if err != nil {
		return err
	}
	r.records[key] = *updated
	return nil
}

func (r *authorizationRepository) GetAuthorizationsByStatus(
	_ context.Context, status domain.AuthorizationStatus,
) ([]domain.AuthorizationRecord, error) {
	r.locker.Lock()
	defer r.locker.Unlock()

	records := make([]domain.AuthorizationRecord, 0)
	for _, record := range r.records {
		if record.Status == status {
			records = append(records, record)
		}
	}
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].UpdatedAt < records[j].UpdatedAt
	})
	return records, nil
}
