package tree

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"simplic/internal/errs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newIndex(t *testing.T) (*Index, string) {
	t.Helper()
	dir := t.TempDir()
	ix, err := New(dir, nil)
	require.NoError(t, err)
	return ix, ix.Root()
}

func names(entries []Entry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Name)
	}
	return out
}

func TestNew_MissingRoot(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "missing"), nil)
	assert.True(t, errors.Is(err, errs.ErrNotFound))
}

func TestList_EmptyDir(t *testing.T) {
	ix, _ := newIndex(t)
	entries, err := ix.List(".")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestList_DirsFirstAndSorted(t *testing.T) {
	ix, root := newIndex(t)
	os.WriteFile(filepath.Join(root, "main.py"), []byte("print(1)"), 0644)
	os.WriteFile(filepath.Join(root, "b.py"), []byte(""), 0644)
	os.MkdirAll(filepath.Join(root, "zeta"), 0755)
	os.MkdirAll(filepath.Join(root, "alpha"), 0755)

	entries, err := ix.List(".")
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "zeta", "b.py", "main.py"}, names(entries))
	assert.True(t, entries[0].IsDir)
	assert.Equal(t, "main.py", entries[3].Path)
	assert.Equal(t, int64(8), entries[3].Size)
}

func TestList_SkipsHiddenAndCache(t *testing.T) {
	ix, root := newIndex(t)
	os.WriteFile(filepath.Join(root, "main.py"), nil, 0644)
	os.WriteFile(filepath.Join(root, ".project_type"), []byte("PyToExe"), 0644)
	os.MkdirAll(filepath.Join(root, "__pycache__"), 0755)
	os.MkdirAll(filepath.Join(root, ".git", "objects"), 0755)

	entries, err := ix.List(".")
	require.NoError(t, err)
	assert.Equal(t, []string{"main.py"}, names(entries))
}

func TestList_RereadsFilesystem(t *testing.T) {
	ix, root := newIndex(t)
	first, err := ix.List(".")
	require.NoError(t, err)
	assert.Empty(t, first)

	os.WriteFile(filepath.Join(root, "late.py"), nil, 0644)
	second, err := ix.List(".")
	require.NoError(t, err)
	assert.Equal(t, []string{"late.py"}, names(second))
}

func TestList_NotFound(t *testing.T) {
	ix, _ := newIndex(t)
	_, err := ix.List("nope")
	assert.Equal(t, errs.NotFound, errs.KindOf(err))
}

func TestList_EscapingRoot(t *testing.T) {
	ix, _ := newIndex(t)
	_, err := ix.List("../..")
	assert.Equal(t, errs.InvalidName, errs.KindOf(err))
}

func TestCreate(t *testing.T) {
	ix, root := newIndex(t)
	os.MkdirAll(filepath.Join(root, "pkg"), 0755)

	rel, err := ix.Create("pkg", "util.py")
	require.NoError(t, err)
	assert.Equal(t, "pkg/util.py", rel)
	assert.FileExists(t, filepath.Join(root, "pkg", "util.py"))
}

func TestCreate_OnFileUsesParent(t *testing.T) {
	ix, root := newIndex(t)
	os.WriteFile(filepath.Join(root, "main.py"), nil, 0644)

	rel, err := ix.Create("main.py", "helper.py")
	require.NoError(t, err)
	assert.Equal(t, "helper.py", rel)
}

func TestCreate_AlreadyExists(t *testing.T) {
	ix, root := newIndex(t)
	os.WriteFile(filepath.Join(root, "main.py"), []byte("keep"), 0644)

	_, err := ix.Create(".", "main.py")
	assert.Equal(t, errs.AlreadyExists, errs.KindOf(err))

	data, _ := os.ReadFile(filepath.Join(root, "main.py"))
	assert.Equal(t, "keep", string(data))
}

func TestCreate_InvalidNames(t *testing.T) {
	ix, _ := newIndex(t)
	for _, name := range []string{"", ".", "..", "a/b", `a\b`} {
		_, err := ix.Create(".", name)
		assert.Equal(t, errs.InvalidName, errs.KindOf(err), "name %q", name)
	}
}

func TestCreateDir(t *testing.T) {
	ix, root := newIndex(t)
	rel, err := ix.CreateDir(".", "assets")
	require.NoError(t, err)
	assert.Equal(t, "assets", rel)
	assert.DirExists(t, filepath.Join(root, "assets"))

	_, err = ix.CreateDir(".", "assets")
	assert.Equal(t, errs.AlreadyExists, errs.KindOf(err))
}

func TestDelete_RemovesDescendants(t *testing.T) {
	ix, root := newIndex(t)
	deep := filepath.Join(root, "pkg", "sub", "deeper")
	os.MkdirAll(deep, 0755)
	os.WriteFile(filepath.Join(deep, "x.py"), nil, 0644)
	os.WriteFile(filepath.Join(root, "main.py"), nil, 0644)

	require.NoError(t, ix.Delete("pkg"))
	assert.NoDirExists(t, filepath.Join(root, "pkg"))

	entries, err := ix.List(".")
	require.NoError(t, err)
	assert.Equal(t, []string{"main.py"}, names(entries))
}

func TestDelete_NotFound(t *testing.T) {
	ix, _ := newIndex(t)
	err := ix.Delete("ghost.py")
	assert.True(t, errors.Is(err, errs.ErrNotFound))
}

func TestDelete_RefusesRoot(t *testing.T) {
	ix, root := newIndex(t)
	err := ix.Delete(".")
	assert.Equal(t, errs.InvalidName, errs.KindOf(err))
	assert.DirExists(t, root)
}

func TestRename(t *testing.T) {
	ix, root := newIndex(t)
	os.WriteFile(filepath.Join(root, "old.py"), []byte("x"), 0644)

	rel, err := ix.Rename("old.py", "new.py")
	require.NoError(t, err)
	assert.Equal(t, "new.py", rel)
	assert.NoFileExists(t, filepath.Join(root, "old.py"))
	assert.FileExists(t, filepath.Join(root, "new.py"))
}

func TestRename_CollisionLeavesFilesystemUnchanged(t *testing.T) {
	ix, root := newIndex(t)
	os.WriteFile(filepath.Join(root, "a.py"), []byte("A"), 0644)
	os.WriteFile(filepath.Join(root, "b.py"), []byte("B"), 0644)

	_, err := ix.Rename("a.py", "b.py")
	assert.Equal(t, errs.NameCollision, errs.KindOf(err))

	a, _ := os.ReadFile(filepath.Join(root, "a.py"))
	b, _ := os.ReadFile(filepath.Join(root, "b.py"))
	assert.Equal(t, "A", string(a))
	assert.Equal(t, "B", string(b))
}

func TestRename_NotFound(t *testing.T) {
	ix, _ := newIndex(t)
	_, err := ix.Rename("ghost.py", "other.py")
	assert.Equal(t, errs.NotFound, errs.KindOf(err))
}

func TestWalk_MaxDepth(t *testing.T) {
	ix, root := newIndex(t)
	deep := filepath.Join(root, "a", "b", "c", "d")
	os.MkdirAll(deep, 0755)
	os.WriteFile(filepath.Join(deep, "deep.txt"), []byte("deep"), 0644)

	entries, err := ix.Walk(3)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	a := entries[0]
	require.Equal(t, "a", a.Name)
	require.Len(t, a.Children, 1)
	b := a.Children[0]
	require.Equal(t, "a/b", b.Path)
	require.Len(t, b.Children, 1)
	c := b.Children[0]
	assert.Empty(t, c.Children)
}
