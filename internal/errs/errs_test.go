package errs

import (
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_Message(t *testing.T) {
	err := Wrap(IOError, "tabs.save", "main.py", os.ErrPermission)
	assert.Equal(t, "tabs.save: i/o error: main.py: permission denied", err.Error())

	err = New(InvalidName, "project.create", "", "project name is empty")
	assert.Equal(t, "project.create: project name is empty", err.Error())
}

func TestError_IsMatchesKind(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", New(NotFound, "tree.delete", "a.txt", ""))
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.False(t, errors.Is(err, ErrIO))
}

func TestError_IsMatchesRefinements(t *testing.T) {
	tool := New(ToolNotFound, "build", "/opt/pyinstaller", "")
	assert.True(t, errors.Is(tool, ErrNotFound))
	assert.True(t, errors.Is(tool, ErrToolNotFound))
	assert.False(t, errors.Is(tool, ErrEntryMissing))

	collision := New(NameCollision, "tree.rename", "b.txt", "")
	assert.True(t, errors.Is(collision, ErrAlreadyExists))

	// A base kind never matches a refinement sentinel.
	assert.False(t, errors.Is(New(NotFound, "", "", ""), ErrToolNotFound))
}

func TestError_UnwrapKeepsCause(t *testing.T) {
	err := Wrap(IOError, "tabs.read", "x", os.ErrNotExist)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, Busy, KindOf(fmt.Errorf("ctx: %w", ErrBusy)))
	assert.Equal(t, Kind(0), KindOf(errors.New("plain")))
	assert.Equal(t, Kind(0), KindOf(nil))
}

func TestOutputOf(t *testing.T) {
	err := &Error{Kind: BuildFailure, Output: []byte("traceback")}
	require.Equal(t, "traceback", string(OutputOf(fmt.Errorf("build: %w", err))))
	assert.Nil(t, OutputOf(errors.New("plain")))
}

func TestNotice(t *testing.T) {
	assert.Equal(t, "", Notice(nil))
	assert.Equal(t, "entry file missing: demo/main.py",
		Notice(New(EntryMissing, "build", "demo/main.py", "")))
	assert.Equal(t, "plain", Notice(errors.New("plain")))
}
