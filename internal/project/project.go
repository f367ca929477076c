// Package project enumerates and creates projects under a projects root.
package project

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"simplic/internal/errs"

	"go.uber.org/zap"
)

// Type is a project's build type, persisted in the marker file.
type Type string

const (
	PyToExe Type = "PyToExe"
	PyToApk Type = "PyToApk"
	KoToApk Type = "KoToApk"
)

// Types lists the known project types in display order.
var Types = []Type{PyToExe, PyToApk, KoToApk}

// Fixed project layout names.
const (
	EntryFile   = "main.py"
	MarkerFile  = ".project_type"
	OutputsDir  = "outputs"
	BuildDir    = "build"
	Placeholder = "print('Hello from SimplicEditor')\n"
)

// ParseType returns the Type for tag.
func ParseType(tag string) (Type, error) {
	for _, t := range Types {
		if string(t) == tag {
			return t, nil
		}
	}
	return "", errs.New(errs.InvalidName, "project.type", tag, "unknown project type")
}

// Describe returns the label shown when choosing a type.
func (t Type) Describe() string {
	switch t {
	case PyToExe:
		return "Python → Executable (.exe)"
	case PyToApk:
		return "Python → APK (coming soon)"
	case KoToApk:
		return "Kotlin → APK (coming soon)"
	}
	return string(t)
}

// Project is one project directory.
type Project struct {
	ID   string `json:"id"`
	Root string `json:"root"`
	Type Type   `json:"type"`
}

// EntryPath returns the absolute path of the entry file.
func (p Project) EntryPath() string {
	return filepath.Join(p.Root, EntryFile)
}

// OutputsPath returns the absolute path of the build artifact directory.
func (p Project) OutputsPath() string {
	return filepath.Join(p.Root, OutputsDir)
}

// BuildPath returns the absolute path of the intermediate build directory.
func (p Project) BuildPath() string {
	return filepath.Join(p.Root, BuildDir)
}

// TypeOf reads the marker file under root. A missing or empty marker means a
// legacy project and yields PyToExe. Unknown tags are returned verbatim so
// that the build can report them as unsupported.
func TypeOf(root string) Type {
	data, err := os.ReadFile(filepath.Join(root, MarkerFile))
	if err != nil {
		return PyToExe
	}
	tag := strings.TrimSpace(string(data))
	if tag == "" {
		return PyToExe
	}
	return Type(tag)
}

// Registry enumerates projects under a projects root.
type Registry struct {
	root string
	log  *zap.Logger
}

// NewRegistry creates a registry for root. Call Ensure before first use.
func NewRegistry(root string, log *zap.Logger) (*Registry, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, errs.Wrap(errs.IOError, "project.registry", root, err)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{root: abs, log: log}, nil
}

// Root returns the absolute projects root.
func (r *Registry) Root() string {
	return r.root
}

// Ensure creates the projects root and its sibling utils folder.
func (r *Registry) Ensure() error {
	for _, dir := range []string{r.root, filepath.Join(filepath.Dir(r.root), "utils")} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return errs.Wrap(errs.IOError, "project.ensure", dir, err)
		}
	}
	return nil
}

// List returns the projects whose name contains filter (case-insensitive),
// sorted by name. An empty filter matches everything.
func (r *Registry) List(filter string) ([]Project, error) {
	entries, err := os.ReadDir(r.root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, errs.Wrap(errs.NotFound, "project.list", r.root, err)
		}
		return nil, errs.Wrap(errs.IOError, "project.list", r.root, err)
	}

	filter = strings.ToLower(filter)
	var out []Project
	for _, e := range entries {
		name := e.Name()
		if !e.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}
		if filter != "" && !strings.Contains(strings.ToLower(name), filter) {
			continue
		}
		root := filepath.Join(r.root, name)
		out = append(out, Project{ID: name, Root: root, Type: TypeOf(root)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Create makes a new project directory with the scaffold entry file and the
// type marker. This is the only place a project's type is written.
func (r *Registry) Create(name string, t Type) (Project, error) {
	if err := validName(name); err != nil {
		return Project{}, err
	}
	if _, err := ParseType(string(t)); err != nil {
		return Project{}, err
	}

	root := filepath.Join(r.root, name)
	if _, err := os.Lstat(root); err == nil {
		return Project{}, errs.New(errs.InvalidName, "project.create", name, "project already exists")
	}
	if err := os.MkdirAll(root, 0755); err != nil {
		return Project{}, errs.Wrap(errs.IOError, "project.create", name, err)
	}

	if err := os.WriteFile(filepath.Join(root, EntryFile), []byte(Placeholder), 0644); err != nil {
		os.RemoveAll(root)
		return Project{}, errs.Wrap(errs.IOError, "project.create", name, err)
	}
	if err := os.WriteFile(filepath.Join(root, MarkerFile), []byte(t), 0644); err != nil {
		os.RemoveAll(root)
		return Project{}, errs.Wrap(errs.IOError, "project.create", name, err)
	}

	r.log.Info("project created", zap.String("project", name), zap.String("type", string(t)))
	return Project{ID: name, Root: root, Type: t}, nil
}

// Open returns the project called name.
func (r *Registry) Open(name string) (Project, error) {
	if err := validName(name); err != nil {
		return Project{}, err
	}
	return OpenPath(filepath.Join(r.root, name))
}

// OpenPath opens an existing folder as a project, wherever it lives.
func OpenPath(dir string) (Project, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return Project{}, errs.Wrap(errs.IOError, "project.open", dir, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return Project{}, errs.Wrap(errs.NotFound, "project.open", dir, err)
	}
	if !info.IsDir() {
		return Project{}, errs.New(errs.NotFound, "project.open", dir, "not a directory")
	}
	return Project{ID: filepath.Base(abs), Root: abs, Type: TypeOf(abs)}, nil
}

func validName(name string) error {
	if strings.TrimSpace(name) == "" {
		return errs.New(errs.InvalidName, "project.name", "", "project name is empty")
	}
	if name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return errs.New(errs.InvalidName, "project.name", name, "project name must be a single folder name")
	}
	return nil
}
