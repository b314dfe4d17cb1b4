package application

import (
	"context"
	"fmt"
	"time"

	"github.com/tdex-network/tdex-authtrade/internal/core/domain"
	"github.com/tdex-network/tdex-authtrade/internal/core/ports"
)

// ReserveReader reads the pool reserves of an asset through the injected
// cache.
type ReserveReader struct {
	chain ports.ReserveReader
	cache ports.Cache
	ttl   time.Duration
	now   func() time.Time
}

// NewReserveReader returns a reader that keeps reserves valid for ttl. A
// zero ttl disables caching.
func NewReserveReader(
	chain ports.ReserveReader, cache ports.Cache, ttl time.Duration,
) (*ReserveReader, error) {
	if chain == nil {
		return nil, fmt.Errorf("missing chain reader")
	}
	if cache == nil {
		return nil, fmt.Errorf("missing cache")
	}
	return &ReserveReader{chain, cache, ttl, time.Now}, nil
}

// GetReserves returns the reserves of the pool of the given asset. It fails
// with domain.ErrNoLiquidity if any of the reserves is zero, and with
// domain.ErrReadFailed if the chain could not be read.
func (r *ReserveReader) GetReserves(
	ctx context.Context, assetID uint64,
) (ports.Reserves, error) {
	key := reservesKey(assetID)
	if v, validUntil, ok := r.cache.Get(key); ok && r.now().Before(validUntil) {
		if reserves, ok := v.(ports.Reserves); ok {
			return reserves, nil
		}
	}

	reserves, err := r.chain.GetReserves(ctx, assetID)
	if err != nil {
		return ports.Reserves{}, fmt.Errorf(
			"%w: reserves of asset %d: %s", domain.ErrReadFailed, assetID, err,
		)
	}
	if reserves.Currency == nil || reserves.Asset == nil ||
		reserves.Currency.Sign() <= 0 || reserves.Asset.Sign() <= 0 {
		r.cache.Delete(key)
		return ports.Reserves{}, domain.ErrNoLiquidity
	}

	if r.ttl > 0 {
		r.cache.Set(key, reserves, r.now().Add(r.ttl))
	}
	return reserves, nil
}

// Invalidate drops the cached reserves of the given asset so that the next
// read hits the chain.
func (r *ReserveReader) Invalidate(assetID uint64) {
	r.cache.Delete(reservesKey(assetID))
}

func reservesKey(assetID uint64) string {
	return fmt.Sprintf("reserves/%d", assetID)
}
