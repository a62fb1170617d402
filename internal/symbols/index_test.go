package symbols

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/antigravity-dev/meridian/internal/embed"
	"github.com/antigravity-dev/meridian/internal/kv"
)

func openTestStore(t *testing.T) *kv.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := kv.Open(path, 1000)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

const goSource = `package sample

// Greet says hello.
func Greet(name string) string {
	if name == "" {
		return "hello"
	}
	return "hello " + name
}

func Caller() string {
	return Greet("world")
}
`

func TestIndexFileThenGetDefinition(t *testing.T) {
	idx := New(openTestStore(t), embed.NewHashingEmbedder(32))
	err := idx.IndexFile(context.Background(), "sample.go", []byte(goSource), nil)
	require.NoError(t, err)

	all := idx.All()
	require.Len(t, all, 2)

	greet := idx.ByName("Greet")
	require.Len(t, greet, 1)
	require.Equal(t, KindFunction, greet[0].Kind)
	require.True(t, greet[0].HasEmbedding())

	sym, lines, _, err := idx.GetDefinition(greet[0].ID, false)
	require.NoError(t, err)
	require.Equal(t, "Greet", sym.Name)
	require.NotEmpty(t, lines)
}

func TestUpdateFileRemovesStaleSymbols(t *testing.T) {
	idx := New(openTestStore(t), nil)
	ctx := context.Background()
	require.NoError(t, idx.IndexFile(ctx, "sample.go", []byte(goSource), nil))
	require.Len(t, idx.All(), 2)

	err := idx.UpdateFile(ctx, "sample.go", []byte("package sample\n\nfunc Only() {}\n"), nil)
	require.NoError(t, err)

	all := idx.All()
	require.Len(t, all, 1)
	require.Equal(t, "Only", all[0].Name)
	require.Empty(t, idx.ByName("Greet"))
	require.Empty(t, idx.ByName("Caller"))
}

func TestLoadRebuildsCachesFromStore(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	idx := New(store, nil)
	require.NoError(t, idx.IndexFile(ctx, "sample.go", []byte(goSource), nil))

	fresh := New(store, nil)
	require.NoError(t, fresh.Load())
	require.Len(t, fresh.All(), 2)
	require.Len(t, fresh.ByName("Greet"), 1)
}

func TestIndexFileRespectsIgnore(t *testing.T) {
	idx := New(openTestStore(t), nil)
	ignore := func(path string) bool { return true }
	require.NoError(t, idx.IndexFile(context.Background(), "sample.go", []byte(goSource), ignore))
	require.Empty(t, idx.All())
}

func TestIndexFileUnsupportedExtension(t *testing.T) {
	idx := New(openTestStore(t), nil)
	err := idx.IndexFile(context.Background(), "README.md", []byte("# hi"), nil)
	require.Error(t, err)
}

func TestFindReferences(t *testing.T) {
	idx := New(openTestStore(t), nil)
	require.NoError(t, idx.IndexFile(context.Background(), "sample.go", []byte(goSource), nil))

	greet := idx.ByName("Greet")[0]
	refs := idx.FindReferences(greet.ID)
	require.NotEmpty(t, refs)
}
