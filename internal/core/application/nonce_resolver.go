package application

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	log "github.com/sirupsen/logrus"
	"github.com/tdex-network/tdex-authtrade/internal/core/domain"
	"github.com/tdex-network/tdex-authtrade/internal/core/ports"
)

const defaultNonce = 1

// NonceResolver resolves the next usable nonce of a signer by probing the
// accessors of the settlement contract in order: the next nonce accessor,
// then the used nonce one, and finally a flagged default.
//
// Resolved values never decrease for a signer within the process.
type NonceResolver struct {
	chain ports.NonceReader
	cache ports.Cache
	ttl   time.Duration

	lock    *sync.Mutex
	highest map[common.Address]uint64
}

// NewNonceResolver ...
func NewNonceResolver(
	chain ports.NonceReader, cache ports.Cache, ttl time.Duration,
) (*NonceResolver, error) {
	if chain == nil {
		return nil, fmt.Errorf("missing chain reader")
	}
	if cache == nil {
		return nil, fmt.Errorf("missing cache")
	}
	return &NonceResolver{
		chain:   chain,
		cache:   cache,
		ttl:     ttl,
		lock:    &sync.Mutex{},
		highest: make(map[common.Address]uint64),
	}, nil
}

// Resolve returns the nonce of the signer, possibly from cache. It's meant
// for quoting and displaying, never for signing.
func (r *NonceResolver) Resolve(
	ctx context.Context, signer common.Address,
) (domain.NonceResolution, error) {
	if v, validUntil, ok := r.cache.Get(nonceKey(signer)); ok &&
		time.Now().Before(validUntil) {
		if res, ok := v.(domain.NonceResolution); ok {
			return res, nil
		}
	}
	return r.ResolveFresh(ctx, signer)
}

// ResolveFresh reads the nonce of the signer from the chain, bypassing the
// cache. The result refreshes the cache.
func (r *NonceResolver) ResolveFresh(
	ctx context.Context, signer common.Address,
) (domain.NonceResolution, error) {
	res, err := r.probe(ctx, signer)
	if err != nil {
		return domain.NonceResolution{}, err
	}

	res = r.observe(signer, res)
	if !res.Degraded && r.ttl > 0 {
		r.cache.Set(nonceKey(signer), res, time.Now().Add(r.ttl))
	}
	return res, nil
}

// Advance records that the given nonce has been consumed on-chain.
func (r *NonceResolver) Advance(signer common.Address, usedNonce uint64) {
	r.lock.Lock()
	defer r.lock.Unlock()

	if usedNonce+1 > r.highest[signer] {
		r.highest[signer] = usedNonce + 1
	}
	r.cache.Delete(nonceKey(signer))
}

func (r *NonceResolver) probe(
	ctx context.Context, signer common.Address,
) (domain.NonceResolution, error) {
	next, err := r.chain.NextNonce(ctx, signer)
	if err == nil {
		return domain.NonceResolution{
			Value: next, Source: domain.NonceSourceNextAccessor,
		}, nil
	}
	if ctx.Err() != nil {
		return domain.NonceResolution{}, ctx.Err()
	}
	log.WithError(err).Debugf(
		"next nonce accessor unavailable for %s, trying used nonce one", signer,
	)

	used, err := r.chain.UsedNonce(ctx, signer)
	if err == nil {
		return domain.NonceResolution{
			Value: used + 1, Source: domain.NonceSourceUsedAccessor,
		}, nil
	}
	if ctx.Err() != nil {
		return domain.NonceResolution{}, ctx.Err()
	}
	log.WithError(err).Warnf(
		"nonce accessors unavailable for %s, falling back to default", signer,
	)

	r.lock.Lock()
	value, ok := r.highest[signer]
	r.lock.Unlock()
	if !ok || value == 0 {
		value = defaultNonce
	}
	return domain.NonceResolution{
		Value: value, Source: domain.NonceSourceDefault, Degraded: true,
	}, nil
}

func (r *NonceResolver) observe(
	signer common.Address, res domain.NonceResolution,
) domain.NonceResolution {
	r.lock.Lock()
	defer r.lock.Unlock()

	highest, ok := r.highest[signer]
	if ok && res.Value < highest {
		if !res.Degraded {
			log.Warnf(
				"nonce race for %s: read %d (%s) after %d, keeping the highest",
				signer, res.Value, res.Source, highest,
			)
		}
		res.Value = highest
		return res
	}
	if ok && res.Value > highest {
		log.Debugf("nonce of %s moved from %d to %d", signer, highest, res.Value)
	}
	r.highest[signer] = res.Value
	return res
}

func nonceKey(signer common.Address) string {
	return "nonce/" + strings.ToLower(signer.Hex())
}
