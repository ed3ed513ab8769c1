package coordinator

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamspace/presence/internal/apierrors"
	"github.com/streamspace/presence/internal/directory"
)

// newTestService connects to a local directory store for integration
// tests; skipped when no Redis instance is reachable (see
// internal/directory's test helper for the same pattern).
func newTestService(t *testing.T, vnodeCount int) *Service {
	t.Helper()
	addr := os.Getenv("DIRECTORY_TEST_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	host, port := "localhost", "6379"
	for i := 0; i < len(addr); i++ {
		if addr[i] == ':' {
			host, port = addr[:i], addr[i+1:]
			break
		}
	}

	d, err := directory.New(directory.Config{Host: host, Port: port, DB: 15})
	if err != nil {
		t.Skipf("directory store not reachable, skipping integration test: %v", err)
	}
	t.Cleanup(func() { d.Close() })

	svc := New(d, vnodeCount)
	ctx := context.Background()
	owners, _ := d.GetOwners(ctx)
	ids := make([]int, 0, len(owners))
	for id := range owners {
		ids = append(ids, id)
	}
	require.NoError(t, d.DeleteOwners(ctx, ids))

	return svc
}

func TestRegister_AssignsFloorPercentOfRing(t *testing.T) {
	svc := newTestService(t, 1024)
	ctx := context.Background()

	result, err := svc.Register(ctx, "A", 1)
	require.NoError(t, err)
	assert.Len(t, result.AssignedVnodes, 10)
	assert.Equal(t, 0, result.AssignedVnodes[0])
}

func TestRegister_SecondInstanceGetsDisjointVnodes(t *testing.T) {
	svc := newTestService(t, 1024)
	ctx := context.Background()

	a, err := svc.Register(ctx, "A", 1)
	require.NoError(t, err)

	b, err := svc.Register(ctx, "B", 10)
	require.NoError(t, err)
	assert.Len(t, b.AssignedVnodes, 102)

	aSet := map[int]bool{}
	for _, v := range a.AssignedVnodes {
		aSet[v] = true
	}
	for _, v := range b.AssignedVnodes {
		assert.False(t, aSet[v], "vnode %d assigned to both A and B", v)
	}
}

func TestRegister_RequiresInstanceID(t *testing.T) {
	svc := newTestService(t, 1024)
	_, err := svc.Register(context.Background(), "", 1)
	require.Error(t, err)
	appErr, ok := err.(*apierrors.AppError)
	require.True(t, ok)
	assert.Equal(t, apierrors.ErrCodeBadRequest, appErr.Code)
}

func TestRegister_ExhaustedRingReturnsConflict(t *testing.T) {
	svc := newTestService(t, 4)
	ctx := context.Background()

	_, err := svc.Register(ctx, "A", 100)
	require.NoError(t, err)

	_, err = svc.Register(ctx, "B", 100)
	require.Error(t, err)
	appErr, ok := err.(*apierrors.AppError)
	require.True(t, ok)
	assert.Equal(t, apierrors.ErrCodeRingExhausted, appErr.Code)
}

func TestUnregister_RemovesOwnership(t *testing.T) {
	svc := newTestService(t, 1024)
	ctx := context.Background()

	_, err := svc.Register(ctx, "A", 1)
	require.NoError(t, err)

	result, err := svc.Unregister(ctx, "A")
	require.NoError(t, err)
	assert.Len(t, result.RemovedVnodes, 10)

	owners, err := svc.dir.GetOwners(ctx)
	require.NoError(t, err)
	for _, owner := range owners {
		assert.NotEqual(t, "A", owner)
	}
}

func TestUnregister_UnknownInstanceIsNotFound(t *testing.T) {
	svc := newTestService(t, 1024)
	_, err := svc.Unregister(context.Background(), "ghost")
	require.Error(t, err)
	appErr, ok := err.(*apierrors.AppError)
	require.True(t, ok)
	assert.Equal(t, apierrors.ErrCodeNodeUnknown, appErr.Code)
}

func TestRoute_UnassignedVnodeIsNotFound(t *testing.T) {
	svc := newTestService(t, 1024)
	_, err := svc.Route(context.Background(), "u1")
	require.Error(t, err)
	appErr, ok := err.(*apierrors.AppError)
	require.True(t, ok)
	assert.Equal(t, apierrors.ErrCodeUserUnrouted, appErr.Code)
}

func TestRoute_HashThenCache(t *testing.T) {
	svc := newTestService(t, 1024)
	ctx := context.Background()

	// u1 hashes to vnode 221 (md5("u1")[0:4] as big-endian uint32 mod 1024).
	_, err := svc.Register(ctx, "A", 100)
	require.NoError(t, err)

	result, err := svc.Route(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "hash", result.Source)
	assert.Equal(t, 221, result.Vnode)
	assert.Equal(t, "A", result.Instance)

	cached, err := svc.Route(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "cache", cached.Source)
	assert.Equal(t, "A", cached.Instance)
}
