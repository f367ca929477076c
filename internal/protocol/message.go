package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// Message is the envelope for all WebSocket messages. ID is set by the client
// on requests and echoed on the matching result or error.
type Message struct {
	Type      string          `json:"type"`
	ID        string          `json:"id,omitempty"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewMessage creates a server-originated message with the current timestamp.
func NewMessage(msgType string, payload interface{}) (*Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return &Message{
		Type:      msgType,
		Payload:   data,
		Timestamp: time.Now().UTC(),
	}, nil
}

// NewReply creates a result message for the request with the given ID.
func NewReply(id string, payload interface{}) (*Message, error) {
	msg, err := NewMessage(TypeResult, payload)
	if err != nil {
		return nil, err
	}
	msg.ID = id
	return msg, nil
}

// Server → Client message types. Notifications use the workspace names.
const (
	TypeResult        = "result"
	TypeError         = "error"
	TypeState         = "state"
	TypeProjectOpened = "project.opened"
	TypeTreeChanged   = "tree.changed"
	TypeTabChanged    = "tab.changed"
	TypeJobStarted    = "job.started"
	TypeJobOutput     = "job.output"
	TypeJobFinished   = "job.finished"
	TypeJobDetached   = "job.detached"
	TypeBuildFinished = "build.finished"
	TypeNotice        = "notice"
)

// Client → Server message types.
const (
	TypeProjectList   = "project.list"
	TypeProjectCreate = "project.create"
	TypeProjectOpen   = "project.open"
	TypeTreeList      = "tree.list"
	TypeTreeCreate    = "tree.create"
	TypeTreeMkdir     = "tree.mkdir"
	TypeTreeDelete    = "tree.delete"
	TypeTreeRename    = "tree.rename"
	TypeTabOpen       = "tab.open"
	TypeTabEdit       = "tab.edit"
	TypeTabSave       = "tab.save"
	TypeTabClose      = "tab.close"
	TypeTabFocus      = "tab.focus"
	TypeJobRun        = "job.run"
	TypeJobDebug      = "job.debug"
	TypeJobBuild      = "job.build"
	TypeJobCancel     = "job.cancel"
)

// Error codes.
const (
	ErrInvalidMessage = "INVALID_MESSAGE"
	ErrInternal       = "INTERNAL"
)

// Server → Client payloads.

type ErrorPayload struct {
	Message string `json:"message"`
	Code    string `json:"code"`
	Output  string `json:"output,omitempty"`
}

// Client → Server payloads.

type ProjectListPayload struct {
	Query string `json:"query"`
}

type ProjectCreatePayload struct {
	Name string `json:"name"`
	Type string `json:"type"` // defaults to PyToExe
}

type ProjectOpenPayload struct {
	Name string `json:"name"`
	Path string `json:"path"` // folder outside the projects root
}

type TreeListPayload struct {
	Dir   string `json:"dir"`
	Depth int    `json:"depth"` // 0 lists one level
}

type TreeCreatePayload struct {
	Dir  string `json:"dir"`
	Name string `json:"name"`
}

type TreePathPayload struct {
	Path string `json:"path"`
}

type TreeRenamePayload struct {
	Path    string `json:"path"`
	NewName string `json:"newName"`
}

type TabOpenPayload struct {
	Path string `json:"path"`
}

type TabEditPayload struct {
	Filename string `json:"filename"`
	Content  string `json:"content"`
}

type TabPayload struct {
	Filename string `json:"filename"`
}

type JobCancelPayload struct {
	JobID string `json:"jobId"`
}
