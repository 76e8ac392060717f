package reference

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/WCLondon/habitat-allocator/internal/domain"
)

func TestStoreRefreshPublishesSnapshot(t *testing.T) {
	db := openTestDB(t)
	seedFullCatalogue(t, db)

	store := NewStore(NewRepository(db, zerolog.Nop()), time.Minute, zerolog.Nop())
	require.Nil(t, store.Snapshot())

	require.NoError(t, store.Refresh())
	snap := store.Snapshot()
	require.NotNil(t, snap)
	_, ok := snap.Bank("B1")
	require.True(t, ok)
}

func TestStoreRefreshKeepsStaleSnapshotOnValidationFailure(t *testing.T) {
	db := openTestDB(t)
	seedFullCatalogue(t, db)

	store := NewStore(NewRepository(db, zerolog.Nop()), time.Minute, zerolog.Nop())
	require.NoError(t, store.Refresh())
	first := store.Snapshot()

	_, err := db.Exec(`DELETE FROM Stock`)
	require.NoError(t, err)

	err = store.Refresh()
	require.Error(t, err)
	require.Equal(t, domain.ErrReferenceIncomplete, domain.KindOf(err))
	require.Same(t, first, store.Snapshot())
}

func TestEverySpecFallsBackOnNonPositiveDuration(t *testing.T) {
	require.Equal(t, "@every 1m0s", everySpec(0))
	require.Equal(t, "@every 5m0s", everySpec(5*time.Minute))
}
