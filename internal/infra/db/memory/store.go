// Package memory is a transactional in-memory backend for the ledger ports.
//
// WithTx holds the store lock for the whole callback and restores a snapshot on
// error, so every transaction is serializable. Unique constraints mirror the
// Postgres schema: code strings are reserved forever in a registry, and
// (user, game) is unique in the ledger. Used by dev mode and unit tests.
package memory

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v4"

	"game-activation-ledger/internal/domain"
	"game-activation-ledger/internal/domain/model"
	"game-activation-ledger/internal/domain/ports/repository"
)

// ErrNegativeCounter is returned when an adjustment would drive a counter below zero.
var ErrNegativeCounter = errors.New("counter would become negative")

type entKey struct{ user, game string }

type state struct {
	codes    map[string]*model.ActivationCode // by id
	byCode   map[string]string                // code string -> id
	registry map[string]struct{}              // every code string ever issued
	ents     map[entKey]*model.Entitlement
	games    map[string]*model.Game
	gameCnt  map[string]int
	userCnt  map[string]int
}

func newState() state {
	return state{
		codes:    map[string]*model.ActivationCode{},
		byCode:   map[string]string{},
		registry: map[string]struct{}{},
		ents:     map[entKey]*model.Entitlement{},
		games:    map[string]*model.Game{},
		gameCnt:  map[string]int{},
		userCnt:  map[string]int{},
	}
}

func (st state) clone() state {
	out := newState()
	for k, v := range st.codes {
		out.codes[k] = cloneCode(v)
	}
	for k, v := range st.byCode {
		out.byCode[k] = v
	}
	for k := range st.registry {
		out.registry[k] = struct{}{}
	}
	for k, v := range st.ents {
		out.ents[k] = cloneEnt(v)
	}
	for k, v := range st.games {
		g := *v
		out.games[k] = &g
	}
	for k, v := range st.gameCnt {
		out.gameCnt[k] = v
	}
	for k, v := range st.userCnt {
		out.userCnt[k] = v
	}
	return out
}

// Store holds all tables behind one mutex.
type Store struct {
	mu sync.Mutex
	st state

	// OnCreate, when set, runs before a code insert and may fail it.
	OnCreate func(code *model.ActivationCode) error
}

func NewStore() *Store {
	return &Store{st: newState()}
}

type memTx struct{ s *Store }

var _ repository.TransactionManager = (*Store)(nil)

// WithTx runs fn with the store locked; any error (or a cancelled context)
// restores the state captured before fn ran.
func (s *Store) WithTx(ctx context.Context, _ pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.st.clone()
	if err := fn(ctx, &memTx{s: s}); err != nil {
		s.st = snap
		return err
	}
	if err := ctx.Err(); err != nil {
		s.st = snap
		return err
	}
	return nil
}

// acquire locks the store unless tx is one of this store's open transactions.
func (s *Store) acquire(tx repository.Tx) (func(), error) {
	switch v := tx.(type) {
	case nil:
		s.mu.Lock()
		return s.mu.Unlock, nil
	case *memTx:
		if v.s != s {
			return nil, domain.ErrInvalidExecContext
		}
		return func() {}, nil
	default:
		return nil, domain.ErrInvalidExecContext
	}
}

func (s *Store) ActivationCodes() repository.ActivationCodeRepository { return &codeRepo{s: s} }
func (s *Store) Entitlements() repository.EntitlementRepository       { return &entRepo{s: s} }
func (s *Store) Counters() repository.CounterRepository               { return &counterRepo{s: s} }
func (s *Store) Games() repository.GameRepository                     { return &gameRepo{s: s} }

// ---- activation codes ----

type codeRepo struct{ s *Store }

func (r *codeRepo) Create(ctx context.Context, tx repository.Tx, c *model.ActivationCode) error {
	release, err := r.s.acquire(tx)
	if err != nil {
		return err
	}
	defer release()

	if r.s.OnCreate != nil {
		if err := r.s.OnCreate(c); err != nil {
			return err
		}
	}
	st := &r.s.st
	if _, ok := st.games[c.GameID]; !ok {
		return domain.ErrGameNotFound
	}
	if _, taken := st.registry[c.Code]; taken {
		return domain.ErrAlreadyExists
	}
	if _, taken := st.codes[c.ID]; taken {
		return domain.ErrAlreadyExists
	}
	st.registry[c.Code] = struct{}{}
	st.codes[c.ID] = cloneCode(c)
	st.byCode[c.Code] = c.ID
	return nil
}

func (r *codeRepo) FindByCode(ctx context.Context, tx repository.Tx, code string) (*model.ActivationCode, error) {
	release, err := r.s.acquire(tx)
	if err != nil {
		return nil, err
	}
	defer release()

	id, ok := r.s.st.byCode[code]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneCode(r.s.st.codes[id]), nil
}

func (r *codeRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.ActivationCode, error) {
	release, err := r.s.acquire(tx)
	if err != nil {
		return nil, err
	}
	defer release()

	c, ok := r.s.st.codes[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneCode(c), nil
}

func (r *codeRepo) MarkActivated(ctx context.Context, tx repository.Tx, id, userID string, at time.Time) error {
	release, err := r.s.acquire(tx)
	if err != nil {
		return err
	}
	defer release()

	c, ok := r.s.st.codes[id]
	if !ok {
		return domain.ErrCodeNotFound
	}
	return c.Activate(userID, at)
}

func (r *codeRepo) Delete(ctx context.Context, tx repository.Tx, id string) error {
	release, err := r.s.acquire(tx)
	if err != nil {
		return err
	}
	defer release()

	c, ok := r.s.st.codes[id]
	if !ok {
		return domain.ErrNotFound
	}
	delete(r.s.st.byCode, c.Code)
	delete(r.s.st.codes, id)
	return nil
}

func (r *codeRepo) selected(sel model.CodeSelector) []*model.ActivationCode {
	var out []*model.ActivationCode
	if len(sel.IDs) > 0 {
		for _, id := range sel.IDs {
			if c, ok := r.s.st.codes[id]; ok && (sel.BatchTag == "" || c.BatchTag == sel.BatchTag) {
				out = append(out, c)
			}
		}
		return out
	}
	for _, c := range r.s.st.codes {
		if c.BatchTag == sel.BatchTag {
			out = append(out, c)
		}
	}
	return out
}

func (r *codeRepo) CountSelected(ctx context.Context, tx repository.Tx, sel model.CodeSelector) (int, int, error) {
	if sel.Empty() {
		return 0, 0, domain.ErrInvalidArgument
	}
	release, err := r.s.acquire(tx)
	if err != nil {
		return 0, 0, err
	}
	defer release()

	total, activated := 0, 0
	for _, c := range r.selected(sel) {
		total++
		if !c.IsUnused() {
			activated++
		}
	}
	return total, activated, nil
}

func (r *codeRepo) DeleteUnused(ctx context.Context, tx repository.Tx, sel model.CodeSelector) (int, error) {
	if sel.Empty() {
		return 0, domain.ErrInvalidArgument
	}
	release, err := r.s.acquire(tx)
	if err != nil {
		return 0, err
	}
	defer release()

	n := 0
	for _, c := range r.selected(sel) {
		if c.IsUnused() {
			delete(r.s.st.byCode, c.Code)
			delete(r.s.st.codes, c.ID)
			n++
		}
	}
	return n, nil
}

func (r *codeRepo) List(ctx context.Context, tx repository.Tx, f model.CodeFilter, p model.PageRequest) ([]*model.ActivationCode, int, error) {
	release, err := r.s.acquire(tx)
	if err != nil {
		return nil, 0, err
	}
	defer release()

	kw := strings.ToUpper(strings.TrimSpace(f.Keyword))
	var match []*model.ActivationCode
	for _, c := range r.s.st.codes {
		if f.GameID != "" && c.GameID != f.GameID {
			continue
		}
		if f.Status != "" && c.Status != f.Status {
			continue
		}
		if f.BatchTag != "" && c.BatchTag != f.BatchTag {
			continue
		}
		if kw != "" && !strings.Contains(c.Code, kw) {
			continue
		}
		match = append(match, c)
	}
	sort.Slice(match, func(i, j int) bool {
		if !match[i].CreatedAt.Equal(match[j].CreatedAt) {
			return match[i].CreatedAt.After(match[j].CreatedAt)
		}
		return match[i].Code < match[j].Code
	})

	total := len(match)
	start := p.Offset()
	if start > total {
		start = total
	}
	end := start + p.PageSize
	if end > total {
		end = total
	}
	out := make([]*model.ActivationCode, 0, end-start)
	for _, c := range match[start:end] {
		out = append(out, cloneCode(c))
	}
	return out, total, nil
}

// ---- ledger ----

type entRepo struct{ s *Store }

func (r *entRepo) Insert(ctx context.Context, tx repository.Tx, e *model.Entitlement) error {
	release, err := r.s.acquire(tx)
	if err != nil {
		return err
	}
	defer release()

	k := entKey{e.UserID, e.GameID}
	if _, ok := r.s.st.ents[k]; ok {
		return domain.ErrAlreadyOwned
	}
	if _, ok := r.s.st.games[e.GameID]; !ok {
		return domain.ErrGameNotFound
	}
	r.s.st.ents[k] = cloneEnt(e)
	return nil
}

func (r *entRepo) Exists(ctx context.Context, tx repository.Tx, userID, gameID string) (bool, error) {
	release, err := r.s.acquire(tx)
	if err != nil {
		return false, err
	}
	defer release()

	_, ok := r.s.st.ents[entKey{userID, gameID}]
	return ok, nil
}

func (r *entRepo) Delete(ctx context.Context, tx repository.Tx, userID, gameID string) (*model.Entitlement, error) {
	release, err := r.s.acquire(tx)
	if err != nil {
		return nil, err
	}
	defer release()

	k := entKey{userID, gameID}
	e, ok := r.s.st.ents[k]
	if !ok {
		return nil, domain.ErrEntitlementNotFound
	}
	delete(r.s.st.ents, k)
	return e, nil
}

func (r *entRepo) list(match func(*model.Entitlement) bool) []*model.Entitlement {
	out := []*model.Entitlement{}
	for _, e := range r.s.st.ents {
		if match(e) {
			out = append(out, cloneEnt(e))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GrantedAt.After(out[j].GrantedAt) })
	return out
}

func (r *entRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string) ([]*model.Entitlement, error) {
	release, err := r.s.acquire(tx)
	if err != nil {
		return nil, err
	}
	defer release()
	return r.list(func(e *model.Entitlement) bool { return e.UserID == userID }), nil
}

func (r *entRepo) ListByGame(ctx context.Context, tx repository.Tx, gameID string) ([]*model.Entitlement, error) {
	release, err := r.s.acquire(tx)
	if err != nil {
		return nil, err
	}
	defer release()
	return r.list(func(e *model.Entitlement) bool { return e.GameID == gameID }), nil
}

func (r *entRepo) Tally(ctx context.Context, tx repository.Tx) (map[string]int, map[string]int, error) {
	release, err := r.s.acquire(tx)
	if err != nil {
		return nil, nil, err
	}
	defer release()

	byGame, byUser := map[string]int{}, map[string]int{}
	for k := range r.s.st.ents {
		byGame[k.game]++
		byUser[k.user]++
	}
	return byGame, byUser, nil
}

// ---- counters ----

type counterRepo struct{ s *Store }

func (r *counterRepo) Adjust(ctx context.Context, tx repository.Tx, userID, gameID string, delta int) error {
	release, err := r.s.acquire(tx)
	if err != nil {
		return err
	}
	defer release()

	// Same guard as the CHECK (>= 0) constraints in Postgres.
	if r.s.st.gameCnt[gameID]+delta < 0 || r.s.st.userCnt[userID]+delta < 0 {
		return ErrNegativeCounter
	}
	r.s.st.gameCnt[gameID] += delta
	r.s.st.userCnt[userID] += delta
	return nil
}

func (r *counterRepo) GameCount(ctx context.Context, tx repository.Tx, gameID string) (int, error) {
	release, err := r.s.acquire(tx)
	if err != nil {
		return 0, err
	}
	defer release()
	return r.s.st.gameCnt[gameID], nil
}

func (r *counterRepo) UserCount(ctx context.Context, tx repository.Tx, userID string) (int, error) {
	release, err := r.s.acquire(tx)
	if err != nil {
		return 0, err
	}
	defer release()
	return r.s.st.userCnt[userID], nil
}

func (r *counterRepo) Snapshot(ctx context.Context, tx repository.Tx) (map[string]int, map[string]int, error) {
	release, err := r.s.acquire(tx)
	if err != nil {
		return nil, nil, err
	}
	defer release()

	games, users := map[string]int{}, map[string]int{}
	for k, v := range r.s.st.gameCnt {
		games[k] = v
	}
	for k, v := range r.s.st.userCnt {
		users[k] = v
	}
	return games, users, nil
}

// ---- games ----

type gameRepo struct{ s *Store }

func (r *gameRepo) Save(ctx context.Context, tx repository.Tx, g *model.Game) error {
	release, err := r.s.acquire(tx)
	if err != nil {
		return err
	}
	defer release()

	cp := *g
	r.s.st.games[g.ID] = &cp
	return nil
}

func (r *gameRepo) MissingIDs(ctx context.Context, tx repository.Tx, ids []string) ([]string, error) {
	release, err := r.s.acquire(tx)
	if err != nil {
		return nil, err
	}
	defer release()

	var missing []string
	for _, id := range ids {
		if _, ok := r.s.st.games[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing, nil
}

func (r *gameRepo) ListAll(ctx context.Context, tx repository.Tx) ([]*model.Game, error) {
	release, err := r.s.acquire(tx)
	if err != nil {
		return nil, err
	}
	defer release()

	out := make([]*model.Game, 0, len(r.s.st.games))
	for _, g := range r.s.st.games {
		cp := *g
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func cloneCode(c *model.ActivationCode) *model.ActivationCode {
	cp := *c
	if c.UserID != nil {
		u := *c.UserID
		cp.UserID = &u
	}
	if c.ActivatedAt != nil {
		t := *c.ActivatedAt
		cp.ActivatedAt = &t
	}
	return &cp
}

func cloneEnt(e *model.Entitlement) *model.Entitlement {
	cp := *e
	if e.CodeID != nil {
		v := *e.CodeID
		cp.CodeID = &v
	}
	if e.Code != nil {
		v := *e.Code
		cp.Code = &v
	}
	if e.GrantedBy != nil {
		v := *e.GrantedBy
		cp.GrantedBy = &v
	}
	return &cp
}
