package registry

import (
	"context"
	"fmt"
	"sync"

	"github.com/ZilDuck/nft-marketplace/pkg/zil"
	"go.uber.org/zap"
)

// DevMarketplaceAddress stands in for the marketplace when no address is
// configured for the in-memory registry.
const DevMarketplaceAddress = "0x00000000000000000000000000000000000beef1"

type token struct {
	owner    string
	approved string
}

// Memory is an in-process ZRC-6 style registry: one owner and at most one
// approved spender per token. The approval is cleared on transfer.
type Memory struct {
	mu          sync.RWMutex
	marketplace string
	tokens      map[string]*token
}

func NewMemory(marketplace string) *Memory {
	return &Memory{
		marketplace: marketplace,
		tokens:      make(map[string]*token),
	}
}

func tokenKey(collection string, assetId uint64) string {
	return fmt.Sprintf("%s/%d", collection, assetId)
}

func (r *Memory) Marketplace() string {
	return r.marketplace
}

func (r *Memory) Mint(collection string, assetId uint64, owner string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := tokenKey(collection, assetId)
	if _, exists := r.tokens[key]; exists {
		return ErrTokenExists
	}
	r.tokens[key] = &token{owner: owner}

	zap.L().With(zap.String("collection", collection), zap.Uint64("assetId", assetId), zap.String("owner", owner)).
		Debug("Registry: Minted token")

	return nil
}

// Approve sets the single approved spender of a token. Only the owner may
// approve; approving the zero address clears the approval.
func (r *Memory) Approve(caller string, collection string, assetId uint64, spender string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tokens[tokenKey(collection, assetId)]
	if !ok {
		return ErrTokenNotFound
	}
	if t.owner != caller {
		return ErrNotTokenOwner
	}

	if spender == zil.ZeroAddress {
		spender = ""
	}
	t.approved = spender

	return nil
}

func (r *Memory) OwnerOf(_ context.Context, collection string, assetId uint64) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tokens[tokenKey(collection, assetId)]
	if !ok {
		return "", ErrTokenNotFound
	}
	return t.owner, nil
}

func (r *Memory) IsApprovedForMarketplace(_ context.Context, collection string, assetId uint64) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tokens[tokenKey(collection, assetId)]
	if !ok {
		return false, ErrTokenNotFound
	}
	return t.approved != "" && t.approved == r.marketplace, nil
}

// Transfer moves a token on behalf of the marketplace, which must be the
// approved spender.
func (r *Memory) Transfer(_ context.Context, collection string, assetId uint64, from, to string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tokens[tokenKey(collection, assetId)]
	if !ok {
		return ErrTokenNotFound
	}
	if t.owner != from {
		return ErrNotTokenOwner
	}
	if t.approved != r.marketplace {
		return ErrNotApproved
	}

	t.owner = to
	t.approved = ""

	zap.L().With(
		zap.String("collection", collection),
		zap.Uint64("assetId", assetId),
		zap.String("from", from),
		zap.String("to", to),
	).Debug("Registry: Transferred token")

	return nil
}
