package workspace

import (
	"time"

	"simplic/internal/build"
	"simplic/internal/process"
	"simplic/internal/project"
	"simplic/internal/tabs"
	"simplic/internal/tree"
)

// NotificationType names a workspace notification.
type NotificationType string

const (
	NoteProjectOpened NotificationType = "project.opened"
	NoteTreeChanged   NotificationType = "tree.changed"
	NoteTabChanged    NotificationType = "tab.changed"
	NoteJobStarted    NotificationType = "job.started"
	NoteJobOutput     NotificationType = "job.output"
	NoteJobFinished   NotificationType = "job.finished"
	NoteJobDetached   NotificationType = "job.detached"
	NoteBuildFinished NotificationType = "build.finished"
	NoteNotice        NotificationType = "notice"
)

// Notification is a state change pushed to listeners.
type Notification struct {
	Type    NotificationType `json:"type"`
	Payload any              `json:"payload"`
	Time    time.Time        `json:"time"`
}

// Listener receives notifications on the loop goroutine.
type Listener func(Notification)

// ProjectOpened is the payload of project.opened.
type ProjectOpened struct {
	Project project.Project `json:"project"`
	Tree    []tree.Entry    `json:"tree"`
}

// TreeChanged is the payload of tree.changed.
type TreeChanged struct {
	Project string       `json:"project"`
	Tree    []tree.Entry `json:"tree"`
}

// TabChanged is the payload of tab.changed.
type TabChanged struct {
	Project string          `json:"project"`
	Tabs    []tabs.Snapshot `json:"tabs"`
}

// JobOutput is the payload of job.output.
type JobOutput struct {
	JobID   string         `json:"jobId"`
	Project string         `json:"project"`
	Kind    process.Kind   `json:"kind"`
	Seq     uint64         `json:"seq"`
	Stream  process.Stream `json:"stream"`
	Data    string         `json:"data"`
}

// Notice is the payload of notice: one human-readable line per failure.
type Notice struct {
	Message string `json:"message"`
	Kind    string `json:"kind,omitempty"`
	Output  string `json:"output,omitempty"`
}

// treeDepth bounds the snapshot sent with tree notifications.
const treeDepth = 8

// BuildFinished is the payload of build.finished.
type BuildFinished struct {
	Project   string        `json:"project"`
	Type      project.Type  `json:"type"`
	JobID     string        `json:"jobId,omitempty"`
	Success   bool          `json:"success"`
	ExitCode  int           `json:"exitCode"`
	Output    string        `json:"output,omitempty"`
	OutputDir string        `json:"outputDir,omitempty"`
	Artifacts []string      `json:"artifacts,omitempty"`
	Duration  time.Duration `json:"duration"`
	Error     string        `json:"error,omitempty"`
}

func buildFinished(r build.Result) BuildFinished {
	b := BuildFinished{
		Project:   r.Project,
		Type:      r.Type,
		JobID:     r.JobID,
		Success:   r.Success,
		ExitCode:  r.ExitCode,
		Output:    string(r.Output),
		OutputDir: r.OutputDir,
		Artifacts: r.Artifacts,
		Duration:  r.Duration,
	}
	if r.Err != nil {
		b.Error = r.Err.Error()
	}
	return b
}
