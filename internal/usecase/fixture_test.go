//go:build !integration

package usecase

import (
	"context"
	"io"
	"sync"
	"testing"

	"game-activation-ledger/internal/domain/model"
	"game-activation-ledger/internal/domain/ports/repository"
	"game-activation-ledger/internal/infra/audit"
	"game-activation-ledger/internal/infra/db/memory"
	"game-activation-ledger/internal/infra/logging"
)

// fixture wires the three use cases over one in-memory store.
type fixture struct {
	store  *memory.Store
	events *audit.Recorder
	cache  *memCache
	codes  *codeUC
	redeem *redemptionUC
	ledger *ledgerUC
}

func newFixture(t *testing.T, opts CodeOptions, games ...string) *fixture {
	t.Helper()
	store := memory.NewStore()
	ctx := context.Background()
	for _, id := range games {
		g, err := model.NewGame(id, "Game "+id)
		if err != nil {
			t.Fatalf("new game: %v", err)
		}
		if err := store.Games().Save(ctx, nil, g); err != nil {
			t.Fatalf("seed game: %v", err)
		}
	}
	rec := audit.NewRecorder()
	cache := newMemCache()
	logger := logging.Nop()
	return &fixture{
		store:  store,
		events: rec,
		cache:  cache,
		codes:  NewCodeUseCase(store.ActivationCodes(), store.Games(), store, rec, opts, logger),
		redeem: NewRedemptionUseCase(store.ActivationCodes(), store.Entitlements(), store.Counters(), store, rec, logger, false),
		ledger: NewLedgerUseCase(store.Entitlements(), store.Counters(), store.Games(), store, cache, rec, logger),
	}
}

// generate is a test helper that fails the test unless every slot succeeded.
func (f *fixture) generate(t *testing.T, count int, games ...string) *model.GenerationResult {
	t.Helper()
	res, err := f.codes.Generate(context.Background(), model.GenerateRequest{GameIDs: games, Count: count, ActorID: "admin-1"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(res.Failed) != 0 {
		t.Fatalf("unexpected failed slots: %+v", res.Failed)
	}
	return res
}

// codeByString looks up the stored row for a generated code string.
func (f *fixture) codeByString(t *testing.T, code string) *model.ActivationCode {
	t.Helper()
	c, err := f.store.ActivationCodes().FindByCode(context.Background(), nil, code)
	if err != nil {
		t.Fatalf("FindByCode(%s): %v", code, err)
	}
	return c
}

// memCache is an EntitlementCache backed by maps with the same generation and
// hold rules as the Redis implementation; it counts calls.
type memCache struct {
	mu       sync.Mutex
	entries  map[string]int64
	gens     map[string]int64
	holds    map[string]bool
	hits     int
	fills    int
	skipped  int
	beginErr error
}

func newMemCache() *memCache {
	return &memCache{entries: map[string]int64{}, gens: map[string]int64{}, holds: map[string]bool{}}
}

func (c *memCache) Lookup(_ context.Context, userID, gameID string) (bool, int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := userID + "|" + gameID
	gen := c.gens[k]
	if v, ok := c.entries[k]; ok && v == gen {
		c.hits++
		return true, gen, nil
	}
	return false, gen, nil
}

func (c *memCache) Fill(_ context.Context, userID, gameID string, gen int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := userID + "|" + gameID
	if c.gens[k] != gen || c.holds[k] {
		c.skipped++
		return nil
	}
	c.entries[k] = gen
	c.fills++
	return nil
}

func (c *memCache) BeginRevoke(_ context.Context, userID, gameID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.beginErr != nil {
		return c.beginErr
	}
	k := userID + "|" + gameID
	c.gens[k]++
	c.holds[k] = true
	delete(c.entries, k)
	return nil
}

func (c *memCache) EndRevoke(_ context.Context, userID, gameID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := userID + "|" + gameID
	c.gens[k]++
	delete(c.holds, k)
	delete(c.entries, k)
	return nil
}

// hookedEntitlements runs afterRead once, right after the first ledger read
// made outside a transaction.
type hookedEntitlements struct {
	repository.EntitlementRepository
	afterRead func()
}

func (h *hookedEntitlements) Exists(ctx context.Context, tx repository.Tx, userID, gameID string) (bool, error) {
	ok, err := h.EntitlementRepository.Exists(ctx, tx, userID, gameID)
	if tx == nil && h.afterRead != nil {
		fn := h.afterRead
		h.afterRead = nil
		fn()
	}
	return ok, err
}

// zeroReader makes the generator emit the same candidate forever.
type zeroReader struct{}

func (zeroReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = 0
	}
	return len(p), nil
}

// stutterReader repeats the first n reads byte-for-byte, then defers to next.
type stutterReader struct {
	mu    sync.Mutex
	n     int
	first []byte
	next  io.Reader
}

func (r *stutterReader) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.n > 0 {
		r.n--
		if r.first == nil {
			r.first = make([]byte, len(p))
			if _, err := io.ReadFull(r.next, r.first); err != nil {
				return 0, err
			}
		}
		return copy(p, r.first), nil
	}
	return r.next.Read(p)
}
