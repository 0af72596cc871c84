package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"game-activation-ledger/internal/domain/ports/repository"
	"game-activation-ledger/internal/infra/metrics"
)

var _ repository.EntitlementCache = (*EntitlementCache)(nil)

// generationTTL bounds how long an idle (user, game) generation counter lives.
// It only has to outlive any fill that read it.
const generationTTL = 24 * time.Hour

// EntitlementCache remembers positive "user owns game" answers for ttl.
// Negative answers are never stored, so a new entitlement needs no
// invalidation. Every entry is stamped with the generation it was read at;
// BeginRevoke bumps the generation and sets a hold, which voids old entries
// and turns racing fills into no-ops.
type EntitlementCache struct {
	cli  RedisClient
	ttl  time.Duration
	hold time.Duration
}

func NewEntitlementCache(cli RedisClient, ttl time.Duration) *EntitlementCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	hold := ttl
	if hold < time.Minute {
		hold = time.Minute
	}
	return &EntitlementCache{cli: cli, ttl: ttl, hold: hold}
}

// entitlementKeys returns the entry, generation and hold keys in script order.
func entitlementKeys(userID, gameID string) []string {
	return []string{
		fmt.Sprintf("ent:%s:%s", userID, gameID),
		fmt.Sprintf("ent:gen:%s:%s", userID, gameID),
		fmt.Sprintf("ent:hold:%s:%s", userID, gameID),
	}
}

// An entry hits only while it still carries the current generation.
var luaLookup = redis.NewScript(`
local gen = redis.call("GET", KEYS[2]) or "0"
local v = redis.call("GET", KEYS[1])
if v and v == gen then
	return {1, gen}
end
return {0, gen}`)

var luaFill = redis.NewScript(`
local gen = redis.call("GET", KEYS[2]) or "0"
if gen ~= ARGV[1] or redis.call("EXISTS", KEYS[3]) == 1 then
	return 0
end
redis.call("SET", KEYS[1], gen, "PX", ARGV[2])
return 1`)

var luaBeginRevoke = redis.NewScript(`
redis.call("INCR", KEYS[2])
redis.call("PEXPIRE", KEYS[2], ARGV[2])
redis.call("SET", KEYS[3], "1", "PX", ARGV[1])
redis.call("DEL", KEYS[1])
return 1`)

// EndRevoke bumps again so a fill that outlived the hold is still void.
var luaEndRevoke = redis.NewScript(`
redis.call("INCR", KEYS[2])
redis.call("PEXPIRE", KEYS[2], ARGV[1])
redis.call("DEL", KEYS[3], KEYS[1])
return 1`)

func (c *EntitlementCache) Lookup(ctx context.Context, userID, gameID string) (bool, int64, error) {
	res, err := c.cli.RunScript(ctx, luaLookup, entitlementKeys(userID, gameID))
	if err != nil {
		metrics.IncEntitlementCache("error")
		return false, 0, err
	}
	hit, gen, err := parseLookup(res)
	if err != nil {
		metrics.IncEntitlementCache("error")
		return false, 0, err
	}
	if hit {
		metrics.IncEntitlementCache("hit")
	} else {
		metrics.IncEntitlementCache("miss")
	}
	return hit, gen, nil
}

func parseLookup(res interface{}) (bool, int64, error) {
	pair, ok := res.([]interface{})
	if !ok || len(pair) != 2 {
		return false, 0, fmt.Errorf("entitlement lookup: unexpected reply %v", res)
	}
	flag, ok := pair[0].(int64)
	if !ok {
		return false, 0, fmt.Errorf("entitlement lookup: unexpected flag %v", pair[0])
	}
	raw, ok := pair[1].(string)
	if !ok {
		return false, 0, fmt.Errorf("entitlement lookup: unexpected generation %v", pair[1])
	}
	gen, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return false, 0, fmt.Errorf("entitlement lookup: %w", err)
	}
	return flag == 1, gen, nil
}

func (c *EntitlementCache) Fill(ctx context.Context, userID, gameID string, gen int64) error {
	res, err := c.cli.RunScript(ctx, luaFill, entitlementKeys(userID, gameID), strconv.FormatInt(gen, 10), c.ttl.Milliseconds())
	if err != nil {
		return err
	}
	if n, _ := res.(int64); n == 0 {
		metrics.IncEntitlementCache("fill_skipped")
	}
	return nil
}

func (c *EntitlementCache) BeginRevoke(ctx context.Context, userID, gameID string) error {
	_, err := c.cli.RunScript(ctx, luaBeginRevoke, entitlementKeys(userID, gameID), c.hold.Milliseconds(), generationTTL.Milliseconds())
	return err
}

func (c *EntitlementCache) EndRevoke(ctx context.Context, userID, gameID string) error {
	_, err := c.cli.RunScript(ctx, luaEndRevoke, entitlementKeys(userID, gameID), generationTTL.Milliseconds())
	return err
}
