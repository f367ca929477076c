// Package tree lists and mutates the files under a project root.
//
// Every call reads the filesystem again; nothing is cached between calls and
// the index never pushes change notifications. Callers re-list after a
// mutation to refresh whatever they display.
package tree

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"simplic/internal/errs"
	"simplic/internal/metrics"

	"go.uber.org/zap"
)

// excludedDirs are never listed.
var excludedDirs = map[string]bool{
	"__pycache__": true,
	".git":        true,
}

// Entry is one listed file or directory.
type Entry struct {
	Name     string  `json:"name"`
	Path     string  `json:"path"` // slash-separated, relative to the root
	IsDir    bool    `json:"isDir"`
	Size     int64   `json:"size,omitempty"`
	Children []Entry `json:"children,omitempty"`
}

// Index is a FileTreeIndex over one root directory.
type Index struct {
	root string
	log  *zap.Logger
}

// New creates an index rooted at root.
func New(root string, log *zap.Logger) (*Index, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, errs.Wrap(errs.IOError, "tree.open", root, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, errs.Wrap(errs.NotFound, "tree.open", root, err)
	}
	if !info.IsDir() {
		return nil, errs.New(errs.NotFound, "tree.open", root, "not a directory")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Index{root: abs, log: log}, nil
}

// Root returns the absolute root directory.
func (ix *Index) Root() string {
	return ix.root
}

// Abs resolves p (root-relative or absolute) to an absolute path inside the
// root.
func (ix *Index) Abs(p string) (string, error) {
	var abs string
	if filepath.IsAbs(p) {
		abs = filepath.Clean(p)
	} else {
		abs = filepath.Join(ix.root, filepath.FromSlash(p))
	}
	rel, err := filepath.Rel(ix.root, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", errs.New(errs.InvalidName, "tree.resolve", p, "path escapes project root")
	}
	return abs, nil
}

// Rel returns the slash-separated root-relative form of abs.
func (ix *Index) Rel(abs string) string {
	rel, err := filepath.Rel(ix.root, abs)
	if err != nil {
		return filepath.ToSlash(abs)
	}
	return filepath.ToSlash(rel)
}

// List returns the entries of dir, directories first, each group sorted by
// name. Hidden entries are skipped.
func (ix *Index) List(dir string) ([]Entry, error) {
	abs, err := ix.Abs(dir)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, errs.Wrap(errs.NotFound, "tree.list", dir, err)
		}
		return nil, errs.Wrap(errs.IOError, "tree.list", dir, err)
	}

	var dirs, files []Entry
	for _, e := range entries {
		name := e.Name()
		if excludedDirs[name] || isHidden(name) {
			continue
		}
		full := filepath.Join(abs, name)
		entry := Entry{Name: name, Path: ix.Rel(full), IsDir: e.IsDir()}
		if e.IsDir() {
			dirs = append(dirs, entry)
			continue
		}
		if info, err := e.Info(); err == nil {
			entry.Size = info.Size()
		}
		files = append(files, entry)
	}

	sort.Slice(dirs, func(i, j int) bool { return dirs[i].Name < dirs[j].Name })
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return append(dirs, files...), nil
}

// Walk lists the whole tree down to maxDepth levels.
func (ix *Index) Walk(maxDepth int) ([]Entry, error) {
	return ix.walk(".", 0, maxDepth)
}

func (ix *Index) walk(dir string, depth, maxDepth int) ([]Entry, error) {
	if depth >= maxDepth {
		return nil, nil
	}
	entries, err := ix.List(dir)
	if err != nil {
		return nil, err
	}
	for i := range entries {
		if !entries[i].IsDir {
			continue
		}
		children, err := ix.walk(entries[i].Path, depth+1, maxDepth)
		if err != nil {
			return nil, err
		}
		entries[i].Children = children
	}
	return entries, nil
}

// Create creates an empty file called name in dir. When dir names a file, its
// parent directory is used.
func (ix *Index) Create(dir, name string) (string, error) {
	target, err := ix.target(dir, name, "tree.create")
	if err != nil {
		metrics.TreeMutation("create", err)
		return "", err
	}

	f, err := os.OpenFile(target, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		err = classify(err, "tree.create", ix.Rel(target))
		metrics.TreeMutation("create", err)
		return "", err
	}
	f.Close()

	metrics.TreeMutation("create", nil)
	ix.log.Info("file created", zap.String("path", ix.Rel(target)))
	return ix.Rel(target), nil
}

// CreateDir creates a directory called name in dir.
func (ix *Index) CreateDir(dir, name string) (string, error) {
	target, err := ix.target(dir, name, "tree.mkdir")
	if err != nil {
		metrics.TreeMutation("mkdir", err)
		return "", err
	}

	if err := os.Mkdir(target, 0755); err != nil {
		err = classify(err, "tree.mkdir", ix.Rel(target))
		metrics.TreeMutation("mkdir", err)
		return "", err
	}

	metrics.TreeMutation("mkdir", nil)
	ix.log.Info("directory created", zap.String("path", ix.Rel(target)))
	return ix.Rel(target), nil
}

// Delete removes path; directories are removed recursively.
func (ix *Index) Delete(path string) error {
	err := ix.delete(path)
	metrics.TreeMutation("delete", err)
	return err
}

func (ix *Index) delete(path string) error {
	abs, err := ix.Abs(path)
	if err != nil {
		return err
	}
	if abs == ix.root {
		return errs.New(errs.InvalidName, "tree.delete", path, "refusing to delete the project root")
	}
	if _, err := os.Lstat(abs); err != nil {
		return classify(err, "tree.delete", path)
	}
	if err := os.RemoveAll(abs); err != nil {
		return errs.Wrap(errs.IOError, "tree.delete", path, err)
	}
	ix.log.Info("entry deleted", zap.String("path", ix.Rel(abs)))
	return nil
}

// Rename renames path to newName within the same directory.
func (ix *Index) Rename(path, newName string) (string, error) {
	dest, err := ix.rename(path, newName)
	metrics.TreeMutation("rename", err)
	return dest, err
}

func (ix *Index) rename(path, newName string) (string, error) {
	abs, err := ix.Abs(path)
	if err != nil {
		return "", err
	}
	if abs == ix.root {
		return "", errs.New(errs.InvalidName, "tree.rename", path, "cannot rename the project root")
	}
	if err := validName(newName, "tree.rename"); err != nil {
		return "", err
	}
	if _, err := os.Lstat(abs); err != nil {
		return "", classify(err, "tree.rename", path)
	}

	dest := filepath.Join(filepath.Dir(abs), newName)
	if dest == abs {
		return ix.Rel(dest), nil
	}
	if _, err := os.Lstat(dest); err == nil {
		return "", errs.New(errs.NameCollision, "tree.rename", ix.Rel(dest), "destination already exists")
	}
	if err := os.Rename(abs, dest); err != nil {
		return "", errs.Wrap(errs.IOError, "tree.rename", path, err)
	}
	ix.log.Info("entry renamed", zap.String("from", ix.Rel(abs)), zap.String("to", ix.Rel(dest)))
	return ix.Rel(dest), nil
}

// target resolves the path a create operation would produce and checks that
// nothing exists there yet.
func (ix *Index) target(dir, name, op string) (string, error) {
	if err := validName(name, op); err != nil {
		return "", err
	}
	abs, err := ix.Abs(dir)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", classify(err, op, dir)
	}
	if !info.IsDir() {
		abs = filepath.Dir(abs)
	}
	target := filepath.Join(abs, name)
	if _, err := os.Lstat(target); err == nil {
		return "", errs.New(errs.AlreadyExists, op, ix.Rel(target), "")
	}
	return target, nil
}

func validName(name, op string) error {
	if name == "" || name == "." || name == ".." {
		return errs.New(errs.InvalidName, op, name, "invalid name")
	}
	if strings.ContainsAny(name, `/\`) {
		return errs.New(errs.InvalidName, op, name, "name must not contain path separators")
	}
	return nil
}

func classify(err error, op, path string) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return errs.Wrap(errs.NotFound, op, path, err)
	case errors.Is(err, fs.ErrExist):
		return errs.Wrap(errs.AlreadyExists, op, path, err)
	}
	return errs.Wrap(errs.IOError, op, path, err)
}

func isHidden(name string) bool {
	return len(name) > 0 && name[0] == '.'
}
