package clients

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// testLogger implements Logger on top of t.Logf
type testLogger struct {
	t *testing.T
}

func (l *testLogger) Info(msg string, keysAndValues ...interface{}) {
	l.t.Logf("[INFO] %s %v", msg, keysAndValues)
}

func (l *testLogger) Error(msg string, keysAndValues ...interface{}) {
	l.t.Logf("[ERROR] %s %v", msg, keysAndValues)
}

func (l *testLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.t.Logf("[WARN] %s %v", msg, keysAndValues)
}

func (l *testLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.t.Logf("[DEBUG] %s %v", msg, keysAndValues)
}

// countingRecorder keeps what the client reported
type countingRecorder struct {
	mu       sync.Mutex
	requests map[string]int
	retries  map[string]int
	polls    []TaskState
	waits    []Kind
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{
		requests: make(map[string]int),
		retries:  make(map[string]int),
	}
}

func (r *countingRecorder) ObserveRequest(op string, _ int, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests[op]++
}

func (r *countingRecorder) ObserveRetry(op string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.retries[op]++
}

func (r *countingRecorder) ObservePoll(state TaskState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.polls = append(r.polls, state)
}

func (r *countingRecorder) ObserveWait(kind Kind, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.waits = append(r.waits, kind)
}

// scriptedServer answers each call with the next handler; the last one repeats
type scriptedServer struct {
	*httptest.Server
	calls atomic.Int32
}

func newScriptedServer(t *testing.T, steps ...http.HandlerFunc) *scriptedServer {
	t.Helper()
	require.NotEmpty(t, steps)

	s := &scriptedServer{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := int(s.calls.Add(1))
		if n > len(steps) {
			n = len(steps)
		}
		steps[n-1](w, r)
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *scriptedServer) Calls() int {
	return int(s.calls.Load())
}

func jsonReply(code int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_, _ = w.Write([]byte(body))
	}
}

func statusReply(state, ref, detail string) http.HandlerFunc {
	body := `{"task_id":"T1","state":"` + state + `"`
	if ref != "" {
		body += `,"result_reference":"` + ref + `"`
	}
	if detail != "" {
		body += `,"error_detail":"` + detail + `"`
	}
	return jsonReply(http.StatusOK, body+"}")
}

// testConfig uses short delays so retry paths run quickly
func testConfig(baseURL string) Config {
	cfg := DefaultConfig(baseURL)
	cfg.StatusTimeout = 2 * time.Second
	cfg.Retry = RetryPolicy{
		MaxRetries: 3,
		BaseDelay:  time.Millisecond,
		MaxDelay:   5 * time.Millisecond,
	}
	return cfg
}

func fastPolicy() PollPolicy {
	return PollPolicy{
		Interval:    time.Millisecond,
		Multiplier:  1,
		MaxDuration: 5 * time.Second,
	}
}

func newTestClient(t *testing.T, baseURL string, opts ...Option) *ForecastClient {
	t.Helper()
	opts = append([]Option{WithLogger(&testLogger{t: t})}, opts...)
	client, err := NewForecastClient(testConfig(baseURL), opts...)
	require.NoError(t, err)
	return client
}
