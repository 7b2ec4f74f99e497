package rebuild

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// White-box test (package rebuild, not rebuild_test): exercises GRS's
// unexported beginTask to put a pool id in place before checking TFH's
// mismatch path, which only triggers once a pool id has actually been set.
func TestHandleFini_PoolMismatch(t *testing.T) {
	grs := NewGlobalRebuildState()
	poolID := uuid.New()
	other := uuid.New()

	grs.beginTask(poolID, 1)

	err := grs.HandleFini(other, 99)
	require.ErrorIs(t, err, ErrNoHandle)
}

// Version monotonicity: bumpBcastVer never lowers bcast_ver. Bumping to 5
// and then to the lower 3 leaves it at 5; a later setBcastVer(8) raises it.
func TestBcastVer_Monotone(t *testing.T) {
	grs := NewGlobalRebuildState()
	grs.bumpBcastVer(5)
	require.EqualValues(t, 5, grs.bcastVerSnapshot())
	grs.bumpBcastVer(3)
	require.EqualValues(t, 5, grs.bcastVerSnapshot(), "bumpBcastVer must not lower bcast_ver")
	grs.setBcastVer(8)
	require.EqualValues(t, 8, grs.bcastVerSnapshot())
}
