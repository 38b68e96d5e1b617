package redis

import (
	"context"
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/dealflow-backend/pkg/config"
)

func TestIncrWithTTLStartsWindowOnce(t *testing.T) {
	ctx := context.Background()
	fake := newFakeCommands()
	client := &Client{cmd: fake}
	key := client.RateLimitKey("capture", "user:u1")

	for want := int64(1); want <= 3; want++ {
		n, err := client.IncrWithTTL(ctx, key, time.Minute)
		require.NoError(t, err)
		require.Equal(t, want, n)
	}
	require.Equal(t, []int64{60000}, fake.expiries[key])
}

func TestReleaseIfOwner(t *testing.T) {
	ctx := context.Background()
	client := &Client{cmd: newFakeCommands()}
	key := client.LockKey("checkout", "buyer-1")

	ok, err := client.SetNX(ctx, key, "owner-a", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = client.SetNX(ctx, key, "owner-b", time.Minute)
	require.NoError(t, err)
	require.False(t, ok, "second checkout must not take a held lock")

	released, err := client.ReleaseIfOwner(ctx, key, "owner-b")
	require.NoError(t, err)
	require.False(t, released)

	released, err = client.ReleaseIfOwner(ctx, key, "owner-a")
	require.NoError(t, err)
	require.True(t, released)

	_, err = client.Get(ctx, key)
	require.ErrorIs(t, err, redis.Nil)
}

func TestKeys(t *testing.T) {
	client := &Client{}
	require.Equal(t, "df:idempotency:checkout:abc", client.IdempotencyKey("checkout", "abc"))
	require.Equal(t, "df:lock:checkout:buyer", client.LockKey("checkout", "buyer"))
	require.Equal(t, "df:session:access:jti", client.AccessSessionKey("jti"))
	require.Equal(t, "df:rl:capture:ip:1.2.3.4", client.RateLimitKey("capture", "ip:1.2.3.4"))
	require.Equal(t, "df:lock:cron", client.LockKey(" cron ", ""))
}

func TestUninitializedClient(t *testing.T) {
	client := &Client{}
	ctx := context.Background()
	require.ErrorIs(t, client.Ping(ctx), errNotConnected)
	_, err := client.IncrWithTTL(ctx, "k", time.Second)
	require.ErrorIs(t, err, errNotConnected)
	require.NoError(t, client.Close())
}

func TestOptionsFillUnsetPoolSettings(t *testing.T) {
	opts, err := options(config.RedisConfig{
		URL:         "redis://:secret@cache:6380/2?pool_size=40",
		PoolSize:    10,
		DialTimeout: 3 * time.Second,
	})
	require.NoError(t, err)
	require.Equal(t, "cache:6380", opts.Addr)
	require.Equal(t, 2, opts.DB)
	require.Equal(t, 40, opts.PoolSize)
	require.Equal(t, 3*time.Second, opts.DialTimeout)

	opts, err = options(config.RedisConfig{Address: "localhost:6379", DB: 1})
	require.NoError(t, err)
	require.Equal(t, 1, opts.DB)

	_, err = options(config.RedisConfig{})
	require.Error(t, err)
}

// fakeCommands emulates the two Lua scripts by inspecting which one is sent.
type fakeCommands struct {
	data     map[string]string
	expiries map[string][]int64
}

func newFakeCommands() *fakeCommands {
	return &fakeCommands{data: map[string]string{}, expiries: map[string][]int64{}}
}

func (f *fakeCommands) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func (f *fakeCommands) Get(_ context.Context, key string) *redis.StringCmd {
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeCommands) SetNX(_ context.Context, key string, value any, _ time.Duration) *redis.BoolCmd {
	if _, ok := f.data[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	f.data[key] = fmt.Sprint(value)
	return redis.NewBoolResult(true, nil)
}

func (f *fakeCommands) Del(_ context.Context, keys ...string) *redis.IntCmd {
	for _, key := range keys {
		delete(f.data, key)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}

func (f *fakeCommands) Eval(_ context.Context, script string, keys []string, args ...any) *redis.Cmd {
	key := keys[0]
	switch script {
	case incrExpireScript:
		n, _ := strconv.ParseInt(f.data[key], 10, 64)
		n++
		f.data[key] = strconv.FormatInt(n, 10)
		if ttl := args[0].(int64); n == 1 && ttl > 0 {
			f.expiries[key] = append(f.expiries[key], ttl)
		}
		return redis.NewCmdResult(n, nil)
	case compareDelScript:
		if v, ok := f.data[key]; ok && v == fmt.Sprint(args[0]) {
			delete(f.data, key)
			return redis.NewCmdResult(int64(1), nil)
		}
		return redis.NewCmdResult(int64(0), nil)
	}
	return redis.NewCmdResult(nil, fmt.Errorf("unexpected script"))
}
