package whale

import (
	"strings"
	"time"

	"github.com/polyarb/polyarb/pkg/cache"
	"github.com/polyarb/polyarb/pkg/types"
)

// walletCacheTTL matches the 24h TTL the wallet cache entries are
// specified to carry.
const walletCacheTTL = 24 * time.Hour

// WalletCache is a thin TTL wrapper around the shared ristretto-backed
// cache, keyed by lowercased wallet address, that refuses to let a failed
// (all-zero) refresh clobber a previously valid entry.
type WalletCache struct {
	cache cache.Cache
}

// NewWalletCache wraps an existing cache.Cache for wallet-metrics storage.
func NewWalletCache(c cache.Cache) *WalletCache {
	return &WalletCache{cache: c}
}

func walletKey(address string) string {
	return "wallet:" + strings.ToLower(address)
}

// Get returns the cached entry for address, if present.
func (w *WalletCache) Get(address string) (*types.WalletCacheEntry, bool) {
	v, ok := w.cache.Get(walletKey(address))
	if !ok {
		return nil, false
	}
	entry, ok := v.(*types.WalletCacheEntry)
	return entry, ok
}

// Set stores entry, unless it is empty and a non-empty entry already
// exists for the same address — an empty refresh means the fetch failed
// or returned zero rows, and per §4.7 that must never overwrite valid data.
func (w *WalletCache) Set(entry *types.WalletCacheEntry) bool {
	if entry.IsEmpty() {
		if existing, ok := w.Get(entry.Address); ok && !existing.IsEmpty() {
			return false
		}
	}
	entry.UpdatedAt = time.Now().UTC()
	return w.cache.Set(walletKey(entry.Address), entry, walletCacheTTL)
}
