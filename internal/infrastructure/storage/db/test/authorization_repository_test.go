package db_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
	"github.com/tdex-network/tdex-authtrade/internal/core/domain"
	dbbadger "github.com/tdex-network/tdex-authtrade/internal/infrastructure/storage/db/badger"
	"github.com/tdex-network/tdex-authtrade/internal/infrastructure/storage/db/inmemory"
)

var (
	ctx      = context.Background()
	contract = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")
	signer   = common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
)

func TestAuthorizationRepository(t *testing.T) {
	for name, newRepo := range repositories(t) {
		newRepo := newRepo
		t.Run(name, func(t *testing.T) {
			t.Run("add_and_get", func(t *testing.T) {
				repo := newRepo()
				record := newRecord(7, "0x01", "exec-1")

				require.NoError(t, repo.AddAuthorization(ctx, record))

				got, err := repo.GetAuthorization(ctx, record.Key)
				require.NoError(t, err)
				require.Equal(t, record.Fingerprint, got.Fingerprint)
				require.Equal(t, domain.AuthorizationSigned, got.Status)

				_, err = repo.GetAuthorization(ctx, "unknown")
				require.ErrorIs(t, err, domain.ErrAuthorizationNotFound)
			})

			t.Run("live_nonce_cannot_be_reused", func(t *testing.T) {
				repo := newRepo()
				require.NoError(t, repo.AddAuthorization(ctx, newRecord(7, "0x01", "exec-1")))

				err := repo.AddAuthorization(ctx, newRecord(7, "0x02", "exec-2"))
				require.ErrorIs(t, err, domain.ErrNonceRace)

				require.NoError(t, repo.AddAuthorization(ctx, newRecord(8, "0x02", "exec-2")))
			})

			t.Run("released_nonce_can_be_reused", func(t *testing.T) {
				repo := newRepo()
				record := newRecord(3, "0x01", "exec-1")
				require.NoError(t, repo.AddAuthorization(ctx, record))
				require.NoError(t, repo.UpdateAuthorization(ctx, record.Key, setStatus(
					domain.AuthorizationReleased,
				)))

				require.NoError(t, repo.AddAuthorization(ctx, newRecord(3, "0x02", "exec-1")))
				got, err := repo.GetAuthorization(ctx, record.Key)
				require.NoError(t, err)
				require.Equal(t, "0x02", got.Fingerprint)
			})

			t.Run("burned_nonce_cannot_be_reused", func(t *testing.T) {
				repo := newRepo()
				record := newRecord(3, "0x01", "exec-1")
				require.NoError(t, repo.AddAuthorization(ctx, record))
				require.NoError(t, repo.UpdateAuthorization(ctx, record.Key, setStatus(
					domain.AuthorizationBurned,
				)))

				err := repo.AddAuthorization(ctx, newRecord(3, "0x02", "exec-2"))
				require.ErrorIs(t, err, domain.ErrNonceRace)
			})

			t.Run("update", func(t *testing.T) {
				repo := newRepo()
				record := newRecord(1, "0x01", "exec-1")

				err := repo.UpdateAuthorization(ctx, record.Key, setStatus(
					domain.AuthorizationSubmitted,
				))
				require.ErrorIs(t, err, domain.ErrAuthorizationNotFound)

				require.NoError(t, repo.AddAuthorization(ctx, record))
				err = repo.UpdateAuthorization(ctx, record.Key, func(
					r *domain.AuthorizationRecord,
				) (*domain.AuthorizationRecord, error) {
					return nil, fmt.Errorf("boom")
				})
				require.EqualError(t, err, "boom")

				got, err := repo.GetAuthorization(ctx, record.Key)
				require.NoError(t, err)
				require.Equal(t, domain.AuthorizationSigned, got.Status)
			})

			t.Run("abandoned_nonce_can_be_reused", func(t *testing.T) {
				repo := newRepo()
				record := newRecord(5, "0x01", "exec-1")
				record.Deadline = time.Now().Add(-time.Minute).Unix()
				require.NoError(t, repo.AddAuthorization(ctx, record))

				require.NoError(t, repo.AddAuthorization(ctx, newRecord(5, "0x02", "exec-2")))
				got, err := repo.GetAuthorization(ctx, record.Key)
				require.NoError(t, err)
				require.Equal(t, "0x02", got.Fingerprint)
				require.Equal(t, "exec-2", got.ExecutionID)

				// Submitted records stay bound past the deadline, the receipt
				// decides their outcome.
				require.NoError(t, repo.UpdateAuthorization(ctx, record.Key, func(
					r *domain.AuthorizationRecord,
				) (*domain.AuthorizationRecord, error) {
					r.Status = domain.AuthorizationSubmitted
					r.Deadline = time.Now().Add(-time.Minute).Unix()
					return r, nil
				}))
				err = repo.AddAuthorization(ctx, newRecord(5, "0x03", "exec-3"))
				require.ErrorIs(t, err, domain.ErrNonceRace)
			})

			t.Run("by_status", func(t *testing.T) {
				repo := newRepo()
				for i, status := range []domain.AuthorizationStatus{
					domain.AuthorizationSubmitted,
					domain.AuthorizationBurned,
					domain.AuthorizationSubmitted,
					domain.AuthorizationReleased,
					domain.AuthorizationSigned,
				} {
					record := newRecord(uint64(i+1), fmt.Sprintf("0x%02d", i), "exec")
					record.Status = status
					record.UpdatedAt = int64(100 - i)
					require.NoError(t, repo.AddAuthorization(ctx, record))
				}

				pending, err := repo.GetAuthorizationsByStatus(
					ctx, domain.AuthorizationSubmitted,
				)
				require.NoError(t, err)
				require.Len(t, pending, 2)
				require.Equal(t, uint64(3), pending[0].Nonce)
				require.Equal(t, uint64(1), pending[1].Nonce)

				signed, err := repo.GetAuthorizationsByStatus(
					ctx, domain.AuthorizationSigned,
				)
				require.NoError(t, err)
				require.Len(t, signed, 1)
				require.Equal(t, uint64(5), signed[0].Nonce)
			})

			t.Run("concurrent_reservations", func(t *testing.T) {
				repo := newRepo()
				wg := &sync.WaitGroup{}
				mu := &sync.Mutex{}
				succeeded := 0

				for i := 0; i < 10; i++ {
					wg.Add(1)
					go func(i int) {
						defer wg.Done()
						record := newRecord(42, fmt.Sprintf("0x%02d", i), "exec")
						if err := repo.AddAuthorization(ctx, record); err == nil {
							mu.Lock()
							succeeded++
							mu.Unlock()
						}
					}(i)
				}
				wg.Wait()
				require.Equal(t, 1, succeeded)
			})
		})
	}
}

func repositories(t *testing.T) map[string]func() domain.AuthorizationRepository {
	return map[string]func() domain.AuthorizationRepository{
		"inmemory": inmemory.NewAuthorizationRepository,
		"badger": func() domain.AuthorizationRepository {
			repo, closeFn, err := dbbadger.NewAuthorizationRepository("", nil)
			require.NoError(t, err)
			t.Cleanup(closeFn)
			return repo
		},
		"badger_on_disk": func() domain.AuthorizationRepository {
			repo, closeFn, err := dbbadger.NewAuthorizationRepository(t.TempDir(), nil)
			require.NoError(t, err)
			t.Cleanup(closeFn)
			return repo
		},
	}
}

func newRecord(nonce uint64, fingerprint, executionID string) domain.AuthorizationRecord {
	return domain.AuthorizationRecord{
		Key:         domain.AuthorizationKey(contract, signer, nonce),
		Contract:    contract.Hex(),
		Signer:      signer.Hex(),
		Nonce:       nonce,
		Fingerprint: fingerprint,
		Issuer:      domain.LocallySigned,
		ExecutionID: executionID,
		Deadline:    time.Now().Add(10 * time.Minute).Unix(),
		Status:      domain.AuthorizationSigned,
		UpdatedAt:   time.Now().Unix(),
	}
}

func setStatus(
	status domain.AuthorizationStatus,
) func(*domain.AuthorizationRecord) (*domain.AuthorizationRecord, error) {
	return func(r *domain.AuthorizationRecord) (*domain.AuthorizationRecord, error) {
		r.Status = status
		return r, nil
	}
}
