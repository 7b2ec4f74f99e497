package rebuild_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/dsrb/rebuildd/internal/rebuild"
)

// Scenario 5: duplicate FINI. The first call tears handles down and sets
// last_ver; the second call, same (pool, ver), is a pure no-op that returns
// nil without touching anything again.
func TestHandleFini_Idempotent(t *testing.T) {
	grs := rebuild.NewGlobalRebuildState()
	poolID := uuid.New()

	tlc := grs.Counters().Worker(0)
	tlc.PoolHandleSet = true
	tlc.ContHandleID = uuid.New()
	tlc.PoolHandleID = uuid.New()

	require.NoError(t, grs.HandleFini(poolID, 7))
	require.False(t, tlc.PoolHandleSet)
	require.Equal(t, uuid.Nil, tlc.ContHandleID)
	require.Equal(t, uuid.Nil, tlc.PoolHandleID)

	// Re-arm the handle to prove the second call is a true no-op, not just
	// "nothing was armed to tear down".
	tlc.PoolHandleSet = true
	require.NoError(t, grs.HandleFini(poolID, 7))
	require.True(t, tlc.PoolHandleSet, "duplicate FINI must not re-run teardown")
}

