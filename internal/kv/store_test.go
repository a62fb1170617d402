package kv

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path, 1000)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPutGetRoundTrip(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Put([]byte("symbol:1"), []byte(`{"name":"f1"}`)))

	got, err := s.Get([]byte("symbol:1"))
	require.NoError(t, err)
	require.Equal(t, `{"name":"f1"}`, string(got))
}

func TestGetMissingReturnsErrNotFound(t *testing.T) {
	s := openTestStore(t)
	_, err := s.Get([]byte("nope"))
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteRemovesKey(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Put([]byte("k"), []byte("v")))
	require.NoError(t, s.Delete([]byte("k")))
	_, err := s.Get([]byte("k"))
	require.ErrorIs(t, err, ErrNotFound)
}

func TestScanPrefixOrderedAndBounded(t *testing.T) {
	s := openTestStore(t)
	for _, k := range []string{"symbol:b", "symbol:a", "symbol:c", "episode:x"} {
		require.NoError(t, s.Put([]byte(k), []byte(k)))
	}

	got, err := s.ScanPrefix([]byte("symbol:"))
	require.NoError(t, err)
	require.Len(t, got, 3)
	require.Equal(t, "symbol:a", string(got[0].Key))
	require.Equal(t, "symbol:b", string(got[1].Key))
	require.Equal(t, "symbol:c", string(got[2].Key))
}

func TestScanPrefixEmpty(t *testing.T) {
	s := openTestStore(t)
	got, err := s.ScanPrefix([]byte("missing:"))
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestDeletePrefixOnlyAffectsMatchingKeys(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Put([]byte("symbol:1"), []byte("a")))
	require.NoError(t, s.Put([]byte("symbol:2"), []byte("b")))
	require.NoError(t, s.Put([]byte("episode:1"), []byte("c")))

	require.NoError(t, s.DeletePrefix([]byte("symbol:")))

	remaining, err := s.ScanPrefix(nil)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	require.Equal(t, "episode:1", string(remaining[0].Key))
}

func TestBatchWriteIsAtomicOnSuccess(t *testing.T) {
	s := openTestStore(t)
	err := s.BatchWrite([]Op{
		{Key: []byte("a"), Value: []byte("1")},
		{Key: []byte("b"), Value: []byte("2")},
	})
	require.NoError(t, err)

	all, err := s.All()
	require.NoError(t, err)
	require.Len(t, all, 2)
}

func TestBatchWriteMixedDeleteAndPut(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Put([]byte("a"), []byte("old")))

	err := s.BatchWrite([]Op{
		{Delete: true, Key: []byte("a")},
		{Key: []byte("b"), Value: []byte("new")},
	})
	require.NoError(t, err)

	_, err = s.Get([]byte("a"))
	require.ErrorIs(t, err, ErrNotFound)
	got, err := s.Get([]byte("b"))
	require.NoError(t, err)
	require.Equal(t, "new", string(got))
}
