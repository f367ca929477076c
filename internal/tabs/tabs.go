// Package tabs tracks the editor tabs open in one project session.
//
// Tabs are keyed by filename (base name), not by full path: at most one tab
// per filename exists in a session, and opening an already-open filename
// focuses the existing tab without re-reading the file. External edits to an
// open file are therefore not visible until the tab is closed and reopened.
//
// A Session is not safe for concurrent use; the workspace loop owns it.
package tabs

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"simplic/internal/errs"
	"simplic/internal/metrics"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Tab is one open file buffer.
type Tab struct {
	ID       string
	Filename string
	Path     string // absolute path the content was read from
	content  string
	dirty    bool
}

// Content returns the buffer content.
func (t *Tab) Content() string {
	return t.content
}

// Dirty reports whether the buffer has unsaved edits.
func (t *Tab) Dirty() bool {
	return t.dirty
}

// Snapshot is a copy of a tab's state for display.
type Snapshot struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	Path     string `json:"path"`
	Content  string `json:"content"`
	Dirty    bool   `json:"dirty"`
	Active   bool   `json:"active"`
}

// Session maps filenames to open tabs for one project root.
type Session struct {
	root   string
	tabs   map[string]*Tab
	order  []string
	active string
	log    *zap.Logger
}

// NewSession creates an empty session for the project at root.
func NewSession(root string, log *zap.Logger) *Session {
	if log == nil {
		log = zap.NewNop()
	}
	return &Session{
		root: root,
		tabs: make(map[string]*Tab),
		log:  log,
	}
}

// Root returns the project root the session saves into.
func (s *Session) Root() string {
	return s.root
}

// Count returns the number of open tabs.
func (s *Session) Count() int {
	return len(s.order)
}

// Open opens the file at path, or focuses the tab already open for its
// filename. The bool result reports whether an existing tab was reused.
//
// A missing file opens nothing and fails with NotFound. Any other read failure
// still opens a tab, holding the error text as its content, and the read error
// is returned alongside it.
func (s *Session) Open(path string) (*Tab, bool, error) {
	filename := filepath.Base(path)
	if t, ok := s.tabs[filename]; ok {
		s.active = filename
		return t, true, nil
	}

	abs := path
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(s.root, path)
	}
	info, err := os.Stat(abs)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil, false, errs.Wrap(errs.NotFound, "tabs.open", path, err)
	case err == nil && info.IsDir():
		return nil, false, errs.New(errs.InvalidName, "tabs.open", path, "is a directory")
	}

	content, readErr := Read(abs)
	if readErr != nil {
		content = fmt.Sprintf("Error opening file: %v", readErr)
		s.log.Warn("open with read error", zap.String("path", abs), zap.Error(readErr))
	}

	t := &Tab{
		ID:       uuid.New().String(),
		Filename: filename,
		Path:     abs,
		content:  content,
	}
	s.tabs[filename] = t
	s.order = append(s.order, filename)
	s.active = filename
	metrics.SetOpenTabs(len(s.order))
	return t, false, readErr
}

// Read returns the content of the file at path.
func Read(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", errs.Wrap(errs.IOError, "tabs.read", path, err)
	}
	return string(data), nil
}

// Get returns the tab open for filename.
func (s *Session) Get(filename string) (*Tab, error) {
	t, ok := s.tabs[filename]
	if !ok {
		return nil, errs.New(errs.NotFound, "tabs.get", filename, "no open tab")
	}
	return t, nil
}

// Edit replaces the content of the tab for filename and marks it dirty.
func (s *Session) Edit(filename, content string) (*Tab, error) {
	t, err := s.Get(filename)
	if err != nil {
		return nil, err
	}
	if t.content != content {
		t.content = content
		t.dirty = true
	}
	return t, nil
}

// Save writes the tab's content to <root>/<filename>. On failure the dirty
// flag is left unchanged.
func (s *Session) Save(filename string) error {
	t, err := s.Get(filename)
	if err != nil {
		return err
	}
	target := filepath.Join(s.root, t.Filename)
	if err := os.WriteFile(target, []byte(t.content), 0644); err != nil {
		s.log.Error("save failed", zap.String("path", target), zap.Error(err))
		return errs.Wrap(errs.IOError, "tabs.save", target, err)
	}
	t.dirty = false
	s.log.Debug("tab saved", zap.String("path", target))
	return nil
}

// Close removes the tab for filename. Closing the active tab focuses its
// right neighbour, or the left one when it was last.
func (s *Session) Close(filename string) error {
	if _, ok := s.tabs[filename]; !ok {
		return errs.New(errs.NotFound, "tabs.close", filename, "no open tab")
	}
	delete(s.tabs, filename)

	idx := -1
	for i, name := range s.order {
		if name == filename {
			idx = i
			break
		}
	}
	s.order = append(s.order[:idx], s.order[idx+1:]...)

	if s.active == filename {
		switch {
		case len(s.order) == 0:
			s.active = ""
		case idx < len(s.order):
			s.active = s.order[idx]
		default:
			s.active = s.order[len(s.order)-1]
		}
	}
	metrics.SetOpenTabs(len(s.order))
	return nil
}

// Focus makes the tab for filename active.
func (s *Session) Focus(filename string) error {
	if _, ok := s.tabs[filename]; !ok {
		return errs.New(errs.NotFound, "tabs.focus", filename, "no open tab")
	}
	s.active = filename
	return nil
}

// Active returns the active tab, or nil.
func (s *Session) Active() *Tab {
	if s.active == "" {
		return nil
	}
	return s.tabs[s.active]
}

// Tabs returns the open tabs in open order.
func (s *Session) Tabs() []*Tab {
	out := make([]*Tab, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.tabs[name])
	}
	return out
}

// Snapshot copies the state of the tab for filename.
func (s *Session) Snapshot(filename string) (Snapshot, error) {
	t, err := s.Get(filename)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{
		ID:       t.ID,
		Filename: t.Filename,
		Path:     t.Path,
		Content:  t.content,
		Dirty:    t.dirty,
		Active:   s.active == t.Filename,
	}, nil
}

// Snapshots copies every open tab in open order.
func (s *Session) Snapshots() []Snapshot {
	out := make([]Snapshot, 0, len(s.order))
	for _, name := range s.order {
		snap, _ := s.Snapshot(name)
		out = append(out, snap)
	}
	return out
}

// CloseAll drops every tab.
func (s *Session) CloseAll() {
	s.tabs = make(map[string]*Tab)
	s.order = nil
	s.active = ""
	metrics.SetOpenTabs(0)
}
