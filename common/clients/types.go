package clients

import (
	"strings"
)

// APIVersion is the version of the forecast service wire contract this client speaks.
// It is sent on every request as X-API-Version.
const APIVersion = "1"

// TaskState is the lifecycle state reported by the task-status endpoint
type TaskState string

const (
	StatePending   TaskState = "pending"
	StateRunning   TaskState = "running"
	StateCompleted TaskState = "completed"
	StateFailed    TaskState = "failed"
)

// IsTerminal reports whether no further transition can follow this state
func (s TaskState) IsTerminal() bool {
	return s == StateCompleted || s == StateFailed
}

func (s TaskState) String() string {
	return string(s)
}

// ParseTaskState maps a wire value onto a TaskState.
// Matching is case-insensitive; anything outside the four known states is rejected.
func ParseTaskState(raw string) (TaskState, bool) {
	switch TaskState(strings.ToLower(strings.TrimSpace(raw))) {
	case StatePending:
		return StatePending, true
	case StateRunning:
		return StateRunning, true
	case StateCompleted:
		return StateCompleted, true
	case StateFailed:
		return StateFailed, true
	default:
		return "", false
	}
}

// UploadRequest is a file to be processed for one target product
type UploadRequest struct {
	FileContent     []byte
	FileName        string
	TargetProductID string
}

// TaskHandle identifies a submitted task. It is the only identity shared by
// submission, polling and retrieval.
type TaskHandle struct {
	TaskID string
}

// TaskStatus is one snapshot of a task as reported by the service.
// ResultReference is set only for StateCompleted, ErrorDetail only for StateFailed.
type TaskStatus struct {
	TaskID          string
	State           TaskState
	ResultReference string
	ErrorDetail     string
}

// Artifact is the output of a completed task. The caller owns Bytes.
type Artifact struct {
	FileName string
	Bytes    []byte
	MimeType string
}

// Result collects what a full workflow produced, as far as it got
type Result struct {
	Handle   TaskHandle
	Status   TaskStatus
	Artifact Artifact
}

// UploadResponse is the JSON body returned by POST /upload
type UploadResponse struct {
	TaskID string `json:"task_id"`
}

// StatusResponse is the JSON body returned by GET /task-status/{taskId}
type StatusResponse struct {
	TaskID          string `json:"task_id"`
	State           string `json:"state"`
	ResultReference string `json:"result_reference,omitempty"`
	ErrorDetail     string `json:"error_detail,omitempty"`
}
