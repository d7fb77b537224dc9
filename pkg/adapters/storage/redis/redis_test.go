package redis

import (
	"context"
	"testing"
	"time"

	"github.com/aescanero/patchwork/pkg/module"
	"github.com/aescanero/patchwork/pkg/ports"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var _ ports.StatusStorage = (*StatusStorage)(nil)

func newTestStorage(t *testing.T, ttl time.Duration) (*StatusStorage, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := NewStatusStorage(client, ttl, zap.NewNop())
	t.Cleanup(func() { s.Close() })
	return s, mr
}

func TestGetStatusKey(t *testing.T) {
	assert.Equal(t, "patchwork:status:worker-1", getStatusKey("worker-1"))
}

func TestStatusStorage_SaveAndLoad(t *testing.T) {
	s, mr := newTestStorage(t, 30*time.Second)
	ctx := context.Background()

	require.NoError(t, s.Ping(ctx))

	snap := module.Snapshot{
		WorkerID: "w-1",
		Components: []module.ComponentStatus{
			{Name: "manager", Role: module.RoleManager, Status: module.StatusRunning},
		},
		Timestamp: time.Now(),
	}
	require.NoError(t, s.Save(ctx, snap))
	assert.Equal(t, 30*time.Second, mr.TTL(getStatusKey("w-1")))

	got, err := s.Load(ctx, "w-1")
	require.NoError(t, err)
	assert.Equal(t, "w-1", got.WorkerID)
	require.Len(t, got.Components, 1)
	assert.Equal(t, module.StatusRunning, got.Components[0].Status)

	mr.FastForward(31 * time.Second)
	_, err = s.Load(ctx, "w-1")
	assert.ErrorIs(t, err, ports.ErrNotFound, "snapshots expire")
}

func TestStatusStorage_ListAndDelete(t *testing.T) {
	s, mr := newTestStorage(t, 0)
	ctx := context.Background()

	require.NoError(t, mr.Set("unrelated", "x"))
	for _, id := range []string{"w-1", "w-2"} {
		require.NoError(t, s.Save(ctx, module.Snapshot{WorkerID: id}))
	}

	ids, err := s.List(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"w-1", "w-2"}, ids)

	require.NoError(t, s.Delete(ctx, "w-1"))
	ids, err = s.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"w-2"}, ids)

	_, err = s.Load(ctx, "w-1")
	assert.ErrorIs(t, err, ports.ErrNotFound)
}

func TestStatusStorage_LoadCorrupt(t *testing.T) {
	s, mr := newTestStorage(t, 0)

	require.NoError(t, mr.Set(getStatusKey("bad"), "{"))
	_, err := s.Load(context.Background(), "bad")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ports.ErrNotFound)
}
