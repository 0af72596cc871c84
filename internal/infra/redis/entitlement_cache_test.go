//go:build !integration

package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
)

type scriptCall struct {
	script *redis.Script
	keys   []string
	args   []interface{}
}

type mockRedisClient struct {
	calls   []scriptCall
	RunFunc func(script *redis.Script, keys []string, args ...interface{}) (interface{}, error)
}

func (m *mockRedisClient) Ping(context.Context) error { return nil }
func (m *mockRedisClient) RunScript(_ context.Context, script *redis.Script, keys []string, args ...interface{}) (interface{}, error) {
	m.calls = append(m.calls, scriptCall{script: script, keys: keys, args: args})
	if m.RunFunc == nil {
		return int64(1), nil
	}
	return m.RunFunc(script, keys, args...)
}
func (m *mockRedisClient) Close() error { return nil }

func TestEntitlementCache_Lookup(t *testing.T) {
	ctx := context.Background()

	t.Run("hit carries the generation", func(t *testing.T) {
		cli := &mockRedisClient{RunFunc: func(*redis.Script, []string, ...interface{}) (interface{}, error) {
			return []interface{}{int64(1), "7"}, nil
		}}
		hit, gen, err := NewEntitlementCache(cli, time.Minute).Lookup(ctx, "u1", "G1")
		if err != nil || !hit || gen != 7 {
			t.Fatalf("Lookup = %v %d %v", hit, gen, err)
		}
		want := []string{"ent:u1:G1", "ent:gen:u1:G1", "ent:hold:u1:G1"}
		got := cli.calls[0].keys
		if cli.calls[0].script != luaLookup || len(got) != 3 || got[0] != want[0] || got[1] != want[1] || got[2] != want[2] {
			t.Errorf("unexpected call %+v", cli.calls[0])
		}
	})

	t.Run("miss is not an error", func(t *testing.T) {
		cli := &mockRedisClient{RunFunc: func(*redis.Script, []string, ...interface{}) (interface{}, error) {
			return []interface{}{int64(0), "0"}, nil
		}}
		hit, gen, err := NewEntitlementCache(cli, time.Minute).Lookup(ctx, "u1", "G1")
		if err != nil || hit || gen != 0 {
			t.Fatalf("expected clean miss, got %v %d %v", hit, gen, err)
		}
	})

	t.Run("backend error surfaces", func(t *testing.T) {
		boom := errors.New("conn refused")
		cli := &mockRedisClient{RunFunc: func(*redis.Script, []string, ...interface{}) (interface{}, error) {
			return nil, boom
		}}
		if _, _, err := NewEntitlementCache(cli, time.Minute).Lookup(ctx, "u1", "G1"); !errors.Is(err, boom) {
			t.Fatalf("expected backend error, got %v", err)
		}
	})

	t.Run("malformed reply is an error", func(t *testing.T) {
		cli := &mockRedisClient{RunFunc: func(*redis.Script, []string, ...interface{}) (interface{}, error) {
			return "OK", nil
		}}
		if _, _, err := NewEntitlementCache(cli, time.Minute).Lookup(ctx, "u1", "G1"); err == nil {
			t.Fatal("expected an error for a malformed reply")
		}
	})
}

func TestEntitlementCache_FillAndRevoke(t *testing.T) {
	ctx := context.Background()
	cli := &mockRedisClient{}
	cache := NewEntitlementCache(cli, 0)

	if err := cache.Fill(ctx, "u1", "G1", 3); err != nil {
		t.Fatal(err)
	}
	if err := cache.BeginRevoke(ctx, "u1", "G1"); err != nil {
		t.Fatal(err)
	}
	if err := cache.EndRevoke(ctx, "u1", "G1"); err != nil {
		t.Fatal(err)
	}
	if len(cli.calls) != 3 {
		t.Fatalf("expected 3 script calls, got %d", len(cli.calls))
	}

	fill := cli.calls[0]
	if fill.script != luaFill || fill.args[0] != "3" || fill.args[1] != (30*time.Second).Milliseconds() {
		t.Errorf("fill must pass the generation and the default ttl: %+v", fill.args)
	}
	begin := cli.calls[1]
	if begin.script != luaBeginRevoke || begin.args[0] != time.Minute.Milliseconds() {
		t.Errorf("hold must be at least a minute: %+v", begin.args)
	}
	if cli.calls[2].script != luaEndRevoke {
		t.Error("EndRevoke must run its own script")
	}
}

func TestEntitlementCache_BeginRevokeErrorSurfaces(t *testing.T) {
	boom := errors.New("readonly replica")
	cli := &mockRedisClient{RunFunc: func(*redis.Script, []string, ...interface{}) (interface{}, error) {
		return nil, boom
	}}
	if err := NewEntitlementCache(cli, time.Minute).BeginRevoke(context.Background(), "u1", "G1"); !errors.Is(err, boom) {
		t.Fatalf("expected backend error, got %v", err)
	}
}
