package clients

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind classifies a client failure so callers can tell "try again later"
// from "this job will never succeed" from "caller bug".
type Kind string

const (
	// KindTransport covers connectivity failures, timeouts and non-success statuses
	KindTransport Kind = "transport"
	// KindInvalidResponse means the exchange succeeded but the body was unintelligible
	KindInvalidResponse Kind = "invalid_response"
	// KindPollTimeout means the poll budget ran out before a terminal state
	KindPollTimeout Kind = "poll_timeout"
	// KindJobFailed means the service reported the task as failed
	KindJobFailed Kind = "job_failed"
	// KindNotFound means the task or artifact does not exist server-side
	KindNotFound Kind = "not_found"
	// KindInvalidRequest means the caller's input was rejected before any network call
	KindInvalidRequest Kind = "invalid_request"
)

// Operation names carried by Error.Op
const (
	OpSubmit = "submit"
	OpStatus = "status"
	OpAwait  = "await"
	OpFetch  = "fetch"
)

// Sentinels for errors.Is matching by kind
var (
	ErrTransport       = &Error{Kind: KindTransport}
	ErrInvalidResponse = &Error{Kind: KindInvalidResponse}
	ErrPollTimeout     = &Error{Kind: KindPollTimeout}
	ErrJobFailed       = &Error{Kind: KindJobFailed}
	ErrNotFound        = &Error{Kind: KindNotFound}
	ErrInvalidRequest  = &Error{Kind: KindInvalidRequest}
)

// Error is the structured failure returned by every ForecastClient operation
type Error struct {
	Kind   Kind
	Op     string
	TaskID string
	// Reference is the artifact reference for fetch failures
	Reference string
	// StatusCode is the HTTP status when one was received
	StatusCode int
	// Body is the raw response body for rejected requests
	Body string
	// Status is the last observed snapshot (PollTimeout) or the terminal one (JobFailed)
	Status *TaskStatus
	Err    error

	transient bool
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(string(e.Kind))
	if e.TaskID != "" {
		fmt.Fprintf(&b, " task=%s", e.TaskID)
	}
	if e.Reference != "" {
		fmt.Fprintf(&b, " reference=%s", e.Reference)
	}
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " status=%d", e.StatusCode)
	}
	if e.Status != nil {
		fmt.Fprintf(&b, " state=%s", e.Status.State)
		if e.Status.ErrorDetail != "" {
			fmt.Fprintf(&b, " detail=%q", e.Status.ErrorDetail)
		}
	}
	if e.Body != "" {
		fmt.Fprintf(&b, " body=%s", e.Body)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches sentinel errors by Kind only
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.TaskID == "" && t.Err == nil && t.Kind == e.Kind
}

// KindOf returns the Kind of a client error, or "" when err is not one
func KindOf(err error) Kind {
	var clientErr *Error
	if errors.As(err, &clientErr) {
		return clientErr.Kind
	}
	return ""
}

// IsKind reports whether err is a client error of the given kind
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// IsTemporary reports whether retrying the whole operation later may succeed
func IsTemporary(err error) bool {
	switch KindOf(err) {
	case KindTransport, KindPollTimeout:
		return true
	default:
		return false
	}
}

// isTransient reports whether a single request may be retried immediately
func isTransient(err error) bool {
	var clientErr *Error
	if errors.As(err, &clientErr) {
		return clientErr.Kind == KindTransport && clientErr.transient
	}
	return false
}

func isTransientStatus(code int) bool {
	return code >= http.StatusInternalServerError || code == http.StatusTooManyRequests
}

// Constructors

func newTransportError(op, taskID string, err error, transient bool) *Error {
	return &Error{
		Kind:      KindTransport,
		Op:        op,
		TaskID:    taskID,
		Err:       err,
		transient: transient,
	}
}

func newStatusError(op, taskID string, code int, body []byte) *Error {
	return &Error{
		Kind:       KindTransport,
		Op:         op,
		TaskID:     taskID,
		StatusCode: code,
		Body:       string(body),
		transient:  isTransientStatus(code),
	}
}

func newInvalidResponse(op, taskID string, code int, body []byte, err error) *Error {
	return &Error{
		Kind:       KindInvalidResponse,
		Op:         op,
		TaskID:     taskID,
		StatusCode: code,
		Body:       string(body),
		Err:        err,
	}
}

func newNotFound(op, taskID string, body []byte) *Error {
	return &Error{
		Kind:       KindNotFound,
		Op:         op,
		TaskID:     taskID,
		StatusCode: http.StatusNotFound,
		Body:       string(body),
	}
}

func newInvalidRequest(op, taskID, message string) *Error {
	return &Error{
		Kind:   KindInvalidRequest,
		Op:     op,
		TaskID: taskID,
		Err:    errors.New(message),
	}
}

func newPollTimeout(taskID string, last *TaskStatus, err error) *Error {
	return &Error{
		Kind:   KindPollTimeout,
		Op:     OpAwait,
		TaskID: taskID,
		Status: last,
		Err:    err,
	}
}

func newJobFailed(status TaskStatus) *Error {
	return &Error{
		Kind:   KindJobFailed,
		Op:     OpAwait,
		TaskID: status.TaskID,
		Status: &status,
	}
}
