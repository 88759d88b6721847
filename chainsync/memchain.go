package chainsync

import (
	"sync"

	lru "github.com/hashicorp/golang-lru"

	"github.com/pkg/errors"
	"github.com/shieldcoin/walletcore/wallettypes"
)

// MemChain is an in-memory Chain used by wallet engine tests and by
// the reference noteenc/workerpool wiring in cmd/walletd. It keeps
// every header and transaction in memory and caches recent witnesses
// in an LRU, the way the teacher's common.Cache wraps
// hashicorp/golang-lru for hot lookups (common/cache.go).
type MemChain struct {
	mu sync.RWMutex

	genesis  wallettypes.Hash
	headHash wallettypes.Hash
	synced   bool

	headers map[wallettypes.Hash]*wallettypes.Header
	// canonical maps sequence -> hash for the current best chain.
	canonical map[uint64]wallettypes.Hash
	txs       map[wallettypes.Hash][]wallettypes.BlockTransaction

	nullifiers map[wallettypes.Nullifier]bool
	assets     map[wallettypes.AssetID]*wallettypes.Asset

	witnessCache *lru.Cache

	verifier Verifier
}

// NewMemChain creates an empty chain with just a genesis header at
// sequence 1.
func NewMemChain(genesisHash wallettypes.Hash, verifier Verifier) *MemChain {
	cache, _ := lru.New(4096)
	genesis := &wallettypes.Header{Hash: genesisHash, Sequence: 1}
	c := &MemChain{
		genesis:      genesisHash,
		headHash:     genesisHash,
		synced:       true,
		headers:      map[wallettypes.Hash]*wallettypes.Header{genesisHash: genesis},
		canonical:    map[uint64]wallettypes.Hash{1: genesisHash},
		txs:          map[wallettypes.Hash][]wallettypes.BlockTransaction{genesisHash: nil},
		nullifiers:   map[wallettypes.Nullifier]bool{},
		assets:       map[wallettypes.AssetID]*wallettypes.Asset{},
		witnessCache: cache,
		verifier:     verifier,
	}
	return c
}

// AddBlock makes header the canonical block at its sequence and the
// new head. It does not check PreviousBlockHash: a header at an
// already-used sequence replaces that sequence's canonical entry.
func (c *MemChain) AddBlock(header *wallettypes.Header, txs []wallettypes.BlockTransaction) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.headers[header.Hash] = header
	c.canonical[header.Sequence] = header.Hash
	c.txs[header.Hash] = txs
	c.headHash = header.Hash
	for _, bt := range txs {
		for _, sp := range bt.Transaction.Spends {
			c.nullifiers[sp.Nullifier] = true
		}
	}
}

// Reorg drops the canonical mapping for every sequence above keepSeq
// and rewinds the head; it does not touch c.headers so disconnected
// headers remain resolvable by hash.
func (c *MemChain) Reorg(keepSeq uint64, newHead wallettypes.Hash) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for seq := range c.canonical {
		if seq > keepSeq {
			delete(c.canonical, seq)
		}
	}
	c.headHash = newHead
}

func (c *MemChain) Head() wallettypes.Header {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if h, ok := c.headers[c.headHash]; ok {
		return *h
	}
	return wallettypes.Header{}
}

func (c *MemChain) Genesis() wallettypes.Hash { return c.genesis }
func (c *MemChain) Synced() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.synced
}

func (c *MemChain) SetSynced(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.synced = v
}

func (c *MemChain) HasBlock(hash wallettypes.Hash) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.headers[hash]
	return ok
}

func (c *MemChain) IsCanonical(hash wallettypes.Hash) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	h, ok := c.headers[hash]
	if !ok {
		return false
	}
	return c.canonical[h.Sequence] == hash
}

func (c *MemChain) GetHeader(hash wallettypes.Hash) (*wallettypes.Header, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	h, ok := c.headers[hash]
	if !ok {
		return nil, errors.Errorf("chainsync: unknown header %s", hash)
	}
	cp := *h
	return &cp, nil
}

func (c *MemChain) GetBlockTransactions(h *wallettypes.Header) ([]wallettypes.BlockTransaction, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	txs, ok := c.txs[h.Hash]
	if !ok {
		return nil, errors.Errorf("chainsync: unknown block %s", h.Hash)
	}
	return txs, nil
}

// IterateBlockHeaders walks the canonical chain between two hashes by
// sequence number, since MemChain keeps a dense sequence->hash index.
func (c *MemChain) IterateBlockHeaders(begin, end wallettypes.Hash, reverse, inclusive bool) ([]*wallettypes.Header, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	beginHeader, ok := c.headers[begin]
	if !ok {
		return nil, errors.Errorf("chainsync: unknown begin header %s", begin)
	}
	endHeader, ok := c.headers[end]
	if !ok {
		return nil, errors.Errorf("chainsync: unknown end header %s", end)
	}
	lo, hi := beginHeader.Sequence, endHeader.Sequence
	if !inclusive {
		lo++
	}
	var out []*wallettypes.Header
	for seq := lo; seq <= hi; seq++ {
		hash, ok := c.canonical[seq]
		if !ok {
			continue
		}
		hdr := c.headers[hash]
		cp := *hdr
		out = append(out, &cp)
	}
	if reverse {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	return out, nil
}

func (c *MemChain) NoteWitness(index uint64) (*wallettypes.Witness, error) {
	if v, ok := c.witnessCache.Get(index); ok {
		return v.(*wallettypes.Witness), nil
	}
	w := &wallettypes.Witness{TreeSize: index + 1}
	c.witnessCache.Add(index, w)
	return w, nil
}

func (c *MemChain) NullifierContains(n wallettypes.Nullifier) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.nullifiers[n]
}

// MarkNullifierSpent lets tests simulate the "repair" scenario
// (spec.md §8 scenario 6) where the chain's nullifier set contains a
// nullifier the local wallet view has not yet recorded as spent.
func (c *MemChain) MarkNullifierSpent(n wallettypes.Nullifier) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nullifiers[n] = true
}

func (c *MemChain) GetAssetByID(id wallettypes.AssetID) (*wallettypes.Asset, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	a, ok := c.assets[id]
	if !ok {
		return nil, errors.Errorf("chainsync: unknown asset %s", id)
	}
	return a, nil
}

func (c *MemChain) RegisterAsset(a *wallettypes.Asset) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.assets[a.ID] = a
}

func (c *MemChain) Verifier() Verifier { return c.verifier }

// AcceptAllVerifier is a Verifier that never rejects, for tests that
// are not exercising verifier-rejection paths.
type AcceptAllVerifier struct{}

func (AcceptAllVerifier) VerifyCreatedTransaction(tx *wallettypes.Transaction) error { return nil }
func (AcceptAllVerifier) VerifyTransactionAdd(tx *wallettypes.Transaction) error     { return nil }
