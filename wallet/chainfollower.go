package wallet

import (
	"context"

	"github.com/shieldcoin/walletcore/chainsync"
	"github.com/shieldcoin/walletcore/wallettypes"
)

// ChainFollower is a thin state machine tracking a hash cursor against
// the canonical chain (spec.md §4.2). It is re-entrant only when the
// previous Update call has resolved — the orchestrator enforces that
// by holding the updateHeadState slot while Update runs.
type ChainFollower struct {
	chain chainsync.Chain
	hash  wallettypes.Hash
}

func NewChainFollower(chain chainsync.Chain, start wallettypes.Hash) *ChainFollower {
	return &ChainFollower{chain: chain, hash: start}
}

func (f *ChainFollower) Hash() wallettypes.Hash { return f.hash }

// UpdateResult reports whether the cursor moved.
type UpdateResult struct {
	HashChanged bool
}

// ConnectFn/DisconnectFn are invoked once per header in the order
// described by spec.md §4.2: disconnects walk the cursor's fork in
// reverse (tip to fork point), connects walk the canonical path
// forward (fork point to new head).
type ConnectFn func(ctx context.Context, header *wallettypes.Header) error
type DisconnectFn func(ctx context.Context, header *wallettypes.Header) error

// Update walks from the current cursor to the chain head, applying
// disconnects then connects, and returns once the cursor equals the
// chain head or ctx is done.
func (f *ChainFollower) Update(ctx context.Context, onDisconnect DisconnectFn, onConnect ConnectFn) (UpdateResult, error) {
	head := f.chain.Head()
	if !f.hash.IsZero() && f.hash == head.Hash {
		return UpdateResult{}, nil
	}

	if f.hash.IsZero() {
		// Nothing applied yet, including genesis itself: walk the
		// whole canonical chain from genesis inclusive, since a fresh
		// account must still see whatever genesis mints (spec.md §8
		// scenario 1, "new account sees genesis rewards").
		canonical, err := f.chain.IterateBlockHeaders(f.chain.Genesis(), head.Hash, false, true)
		if err != nil {
			return UpdateResult{}, err
		}
		for _, h := range canonical {
			if ctx.Err() != nil {
				return UpdateResult{HashChanged: f.hash != head.Hash}, ctx.Err()
			}
			if err := onConnect(ctx, h); err != nil {
				return UpdateResult{}, err
			}
			f.hash = h.Hash
		}
		return UpdateResult{HashChanged: true}, nil
	}

	ancestor, forkHeaders, err := findCommonAncestor(f.chain, f.hash, head.Hash)
	if err != nil {
		return UpdateResult{}, err
	}

	// Disconnect the cursor's fork, tip first (reverse order).
	for i := len(forkHeaders) - 1; i >= 0; i-- {
		if ctx.Err() != nil {
			return UpdateResult{HashChanged: f.hash != head.Hash}, ctx.Err()
		}
		h := forkHeaders[i]
		if err := onDisconnect(ctx, h); err != nil {
			return UpdateResult{}, err
		}
		f.hash = h.PreviousBlockHash
	}

	canonical, err := f.chain.IterateBlockHeaders(ancestor, head.Hash, false, false)
	if err != nil {
		return UpdateResult{}, err
	}
	for _, h := range canonical {
		if ctx.Err() != nil {
			return UpdateResult{HashChanged: true}, ctx.Err()
		}
		if err := onConnect(ctx, h); err != nil {
			return UpdateResult{}, err
		}
		f.hash = h.Hash
	}

	return UpdateResult{HashChanged: true}, nil
}

// findCommonAncestor walks back from `from` by PreviousBlockHash until
// it reaches a hash that chain.IsCanonical reports as canonical (or the
// zero hash). It returns the ancestor hash plus every off-canonical
// header walked, tip first.
func findCommonAncestor(chain chainsync.Chain, from, to wallettypes.Hash) (wallettypes.Hash, []*wallettypes.Header, error) {
	if chain.IsCanonical(from) {
		return from, nil, nil
	}

	var forked []*wallettypes.Header
	cursor := from
	for {
		h, err := chain.GetHeader(cursor)
		if err != nil {
			return wallettypes.Hash{}, nil, err
		}
		forked = append(forked, h)
		cursor = h.PreviousBlockHash
		if cursor.IsZero() || chain.IsCanonical(cursor) {
			return cursor, forked, nil
		}
	}
}
