package history

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/topic-leads/internal/store"
)

func TestStoreHistory(t *testing.T) {
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "h.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	ctx := context.Background()
	require.NoError(t, st.Migrate(ctx))

	h := NewStoreHistory(st, 0)
	require.NoError(t, h.Mark(ctx, []string{"u-1", "u-2"}))

	seen, err := h.Seen(ctx, []string{"u-1", "u-3"})
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"u-1": true}, seen)
}

// fakeRedis is an in-memory backend installed as a go-redis hook, so the
// real client encodes commands but never dials.
type fakeRedis struct {
	mu        sync.Mutex
	data      map[string]any
	ttls      map[string]time.Duration
	pipelines int
	singles   int
	mgetErr   error
	setErr    error
}

func newFakeRedis(t *testing.T) (*fakeRedis, *redis.Client) {
	t.Helper()
	f := &fakeRedis{data: map[string]any{}, ttls: map[string]time.Duration{}}
	c := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	c.AddHook(f)
	t.Cleanup(func() { c.Close() }) //nolint:errcheck
	return f, c
}

func (f *fakeRedis) DialHook(next redis.DialHook) redis.DialHook { return next }

func (f *fakeRedis) ProcessHook(redis.ProcessHook) redis.ProcessHook {
	return func(_ context.Context, cmd redis.Cmder) error {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.singles++
		return f.apply(cmd)
	}
}

func (f *fakeRedis) ProcessPipelineHook(redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(_ context.Context, cmds []redis.Cmder) error {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.pipelines++
		for _, cmd := range cmds {
			if err := f.apply(cmd); err != nil {
				return err
			}
		}
		return nil
	}
}

func (f *fakeRedis) apply(cmd redis.Cmder) error {
	args := cmd.Args()
	switch cmd.Name() {
	case "mget":
		if f.mgetErr != nil {
			cmd.SetErr(f.mgetErr)
			return f.mgetErr
		}
		vals := make([]any, 0, len(args)-1)
		for _, k := range args[1:] {
			vals = append(vals, f.data[k.(string)])
		}
		cmd.(*redis.SliceCmd).SetVal(vals)
	case "set":
		if f.setErr != nil {
			cmd.SetErr(f.setErr)
			return f.setErr
		}
		key := args[1].(string)
		f.data[key] = args[2]
		if len(args) == 5 {
			n := args[4].(int64)
			switch args[3] {
			case "ex":
				f.ttls[key] = time.Duration(n) * time.Second
			case "px":
				f.ttls[key] = time.Duration(n) * time.Millisecond
			}
		}
		cmd.(*redis.StatusCmd).SetVal("OK")
	default:
		err := fmt.Errorf("unexpected command %q", cmd.Name())
		cmd.SetErr(err)
		return err
	}
	return nil
}

func TestRedisHistory(t *testing.T) {
	ctx := context.Background()
	r, c := newFakeRedis(t)
	h := NewRedisHistory(c, "", 48*time.Hour)

	require.NoError(t, h.Mark(ctx, []string{"u-1"}))
	assert.Equal(t, 48*time.Hour, r.ttls["topic-leads:seen:u-1"])

	seen, err := h.Seen(ctx, []string{"u-1", "u-2"})
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"u-1": true}, seen)

	empty, err := h.Seen(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestRedisHistory_MarkIsOneRoundTrip(t *testing.T) {
	ctx := context.Background()
	r, c := newFakeRedis(t)
	h := NewRedisHistory(c, "p:", time.Hour)

	require.NoError(t, h.Mark(ctx, []string{"a", "b", "c"}))
	assert.Equal(t, 1, r.pipelines)
	assert.Zero(t, r.singles)
	for _, k := range []string{"p:a", "p:b", "p:c"} {
		assert.Contains(t, r.data, k)
		assert.Equal(t, time.Hour, r.ttls[k], k)
	}

	require.NoError(t, h.Mark(ctx, nil))
	assert.Equal(t, 1, r.pipelines)
}

func TestRedisHistory_Errors(t *testing.T) {
	ctx := context.Background()
	r, c := newFakeRedis(t)
	r.mgetErr = errors.New("connection refused")
	r.setErr = errors.New("readonly")
	h := NewRedisHistory(c, "p:", 0)

	_, err := h.Seen(ctx, []string{"a"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "history: redis mget")

	err = h.Mark(ctx, []string{"a", "b"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "history: redis pipelined set of 2 ids")
	assert.Contains(t, err.Error(), "readonly")
}

func TestNewRedisClient(t *testing.T) {
	c, err := NewRedisClient("redis://localhost:6379/2")
	require.NoError(t, err)
	assert.Equal(t, 2, c.Options().DB)
	_ = c.Close()

	_, err = NewRedisClient("not a url")
	require.Error(t, err)
}
