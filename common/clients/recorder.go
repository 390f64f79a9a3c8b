package clients

import "time"

// Recorder receives measurements from the client. Implementations must be safe
// for concurrent use. common/metrics provides a Prometheus implementation.
type Recorder interface {
	// ObserveRequest is called once per HTTP exchange; code is 0 when no response arrived
	ObserveRequest(op string, code int, elapsed time.Duration)
	// ObserveRetry is called before a transient failure is retried
	ObserveRetry(op string)
	// ObservePoll is called for every status snapshot seen while awaiting a task
	ObservePoll(state TaskState)
	// ObserveWait is called when AwaitCompletion returns; kind is "" on success
	// and "canceled" when the caller's context ended the wait
	ObserveWait(kind Kind, elapsed time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) ObserveRequest(string, int, time.Duration) {}
func (nopRecorder) ObserveRetry(string)                       {}
func (nopRecorder) ObservePoll(TaskState)                     {}
func (nopRecorder) ObserveWait(Kind, time.Duration)           {}
