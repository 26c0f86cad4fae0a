package prefs_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-consultform/pkg/prefs"
)

func exercise(t *testing.T, store prefs.Store) {
	t.Helper()
	ctx := context.Background()

	got, err := store.Get(ctx, prefs.RevealedVitalsKey)
	require.NoError(t, err)
	require.Empty(t, got)

	require.NoError(t, store.Put(ctx, prefs.RevealedVitalsKey, []string{"pain_score", " notes ", "pain_score", ""}))
	got, err = store.Get(ctx, prefs.RevealedVitalsKey)
	require.NoError(t, err)
	require.Equal(t, []string{"pain_score", "notes"}, got)

	require.NoError(t, store.Put(ctx, prefs.RevealedVitalsKey, []string{"notes"}))
	got, err = store.Get(ctx, prefs.RevealedVitalsKey)
	require.NoError(t, err)
	require.Equal(t, []string{"notes"}, got)

	other, err := store.Get(ctx, "other")
	require.NoError(t, err)
	require.Empty(t, other)
}

func TestMemoryStore(t *testing.T) {
	t.Parallel()
	exercise(t, prefs.NewMemory())
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	t.Parallel()

	store := prefs.NewMemory()
	ctx := context.Background()
	require.NoError(t, store.Put(ctx, "k", []string{"a"}))

	got, _ := store.Get(ctx, "k")
	got[0] = "changed"

	again, _ := store.Get(ctx, "k")
	require.Equal(t, []string{"a"}, again)
}

func TestSQLiteStore(t *testing.T) {
	t.Parallel()

	dsn := "file:" + filepath.Join(t.TempDir(), "prefs.db")
	store, err := prefs.OpenSQLite(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	exercise(t, store)
}

func TestSQLiteStorePersistsAcrossHandles(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dsn := "file:" + filepath.Join(t.TempDir(), "prefs.db")

	first, err := prefs.OpenSQLite(ctx, dsn)
	require.NoError(t, err)
	require.NoError(t, first.Put(ctx, prefs.RevealedVitalsKey, []string{"pain_score"}))
	require.NoError(t, first.Close())

	second, err := prefs.OpenSQLite(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = second.Close() })

	got, err := second.Get(ctx, prefs.RevealedVitalsKey)
	require.NoError(t, err)
	require.Equal(t, []string{"pain_score"}, got)
}

func TestRevealedKey(t *testing.T) {
	t.Parallel()
	require.Equal(t, prefs.RevealedVitalsKey, prefs.RevealedKey("vitals"))
}
