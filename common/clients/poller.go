package clients

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Status issues a single status query for the task. It does not retry.
func (c *ForecastClient) Status(ctx context.Context, handle TaskHandle) (TaskStatus, error) {
	if strings.TrimSpace(handle.TaskID) == "" {
		return TaskStatus{}, newInvalidRequest(OpStatus, "", "task handle has no id")
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.cfg.StatusTimeout)
	defer cancel()

	header := http.Header{}
	header.Set("Accept", "application/json")

	endpoint := c.cfg.endpoint("task-status", url.PathEscape(handle.TaskID))

	start := time.Now()
	resp, err := c.http.DoRequest(reqCtx, http.MethodGet, endpoint, nil, header)
	if err != nil {
		c.recorder.ObserveRequest(OpStatus, 0, time.Since(start))
		// A cancelled caller context is final; a per-call timeout is worth retrying.
		return TaskStatus{}, newTransportError(OpStatus, handle.TaskID,
			fmt.Errorf("failed to fetch task status: %w", err), ctx.Err() == nil)
	}
	defer drainAndClose(resp.Body)

	data, readErr := readAllWithLimit(resp.Body, maxJSONBodyBytes)
	c.recorder.ObserveRequest(OpStatus, resp.StatusCode, time.Since(start))

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return TaskStatus{}, newNotFound(OpStatus, handle.TaskID, truncate(data))
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		if readErr != nil {
			data = nil
		}
		return TaskStatus{}, newStatusError(OpStatus, handle.TaskID, resp.StatusCode, truncate(data))
	}

	if readErr != nil {
		if IsResponseTooLarge(readErr) {
			return TaskStatus{}, newInvalidResponse(OpStatus, handle.TaskID, resp.StatusCode, nil, readErr)
		}
		return TaskStatus{}, newTransportError(OpStatus, handle.TaskID,
			fmt.Errorf("failed to read task status: %w", readErr), ctx.Err() == nil)
	}

	status, err := decodeStatus(handle.TaskID, data)
	if err != nil {
		return TaskStatus{}, newInvalidResponse(OpStatus, handle.TaskID, resp.StatusCode, truncate(data), err)
	}
	return status, nil
}

// decodeStatus validates a status body against contract v1
func decodeStatus(taskID string, data []byte) (TaskStatus, error) {
	var body StatusResponse
	if err := json.Unmarshal(data, &body); err != nil {
		return TaskStatus{}, fmt.Errorf("failed to decode task status: %w", err)
	}

	if body.State == "" {
		return TaskStatus{}, errors.New("task status has no state")
	}
	state, ok := ParseTaskState(body.State)
	if !ok {
		return TaskStatus{}, fmt.Errorf("unknown task state %q", body.State)
	}
	if body.TaskID != "" && body.TaskID != taskID {
		return TaskStatus{}, fmt.Errorf("task status is for %q, expected %q", body.TaskID, taskID)
	}

	status := TaskStatus{
		TaskID: taskID,
		State:  state,
	}
	switch state {
	case StateCompleted:
		if strings.TrimSpace(body.ResultReference) == "" {
			return TaskStatus{}, errors.New("completed task has no result reference")
		}
		status.ResultReference = body.ResultReference
	case StateFailed:
		status.ErrorDetail = body.ErrorDetail
	}
	return status, nil
}

// AwaitCompletion polls the task until it reaches a terminal state.
//
// Completed returns the status and a nil error. Failed returns the status and a
// KindJobFailed error. Running out of policy budget returns KindPollTimeout
// carrying the last non-terminal status. Transient transport failures of a single
// query are retried per the client's RetryPolicy without consuming poll attempts.
// Once a terminal state or a cancelled ctx is observed no further request is made.
func (c *ForecastClient) AwaitCompletion(ctx context.Context, handle TaskHandle, policy PollPolicy) (status TaskStatus, err error) {
	if strings.TrimSpace(handle.TaskID) == "" {
		return TaskStatus{}, newInvalidRequest(OpAwait, "", "task handle has no id")
	}
	if err := policy.Validate(); err != nil {
		return TaskStatus{}, newInvalidRequest(OpAwait, handle.TaskID, err.Error())
	}

	start := time.Now()
	defer func() {
		outcome := KindOf(err)
		if err != nil && outcome == "" {
			outcome = "canceled"
		}
		c.recorder.ObserveWait(outcome, time.Since(start))
	}()

	pollCtx := ctx
	var deadline time.Time
	if policy.MaxDuration > 0 {
		deadline = start.Add(policy.MaxDuration)
		var cancel context.CancelFunc
		pollCtx, cancel = context.WithDeadline(ctx, deadline)
		defer cancel()
	}

	delays := policy.newBackOff()
	var last *TaskStatus

	// stopped maps a done poll context onto caller cancellation or budget exhaustion
	stopped := func(cause error) (TaskStatus, error) {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return lastOrEmpty(last), fmt.Errorf("await task %s: %w", handle.TaskID, ctxErr)
		}
		return lastOrEmpty(last), newPollTimeout(handle.TaskID, last, cause)
	}

	for attempt := 1; ; attempt++ {
		if pollCtx.Err() != nil {
			return stopped(pollCtx.Err())
		}

		current, err := c.statusWithRetry(pollCtx, handle)
		if err != nil {
			if pollCtx.Err() != nil {
				return stopped(err)
			}
			return lastOrEmpty(last), err
		}

		c.recorder.ObservePoll(current.State)
		c.logger.Debug("task status", "task_id", handle.TaskID, "state", current.State, "attempt", attempt)

		switch current.State {
		case StateCompleted:
			return current, nil
		case StateFailed:
			return current, newJobFailed(current)
		}
		last = &current

		if policy.MaxAttempts > 0 && attempt >= policy.MaxAttempts {
			return current, newPollTimeout(handle.TaskID, last,
				fmt.Errorf("no terminal state after %d attempts", attempt))
		}

		delay := delays.NextBackOff()
		if !deadline.IsZero() && time.Now().Add(delay).After(deadline) {
			return current, newPollTimeout(handle.TaskID, last,
				fmt.Errorf("no terminal state within %v", policy.MaxDuration))
		}
		if err := sleep(pollCtx, delay); err != nil {
			return stopped(err)
		}
	}
}

// statusWithRetry queries status, retrying transient transport failures
func (c *ForecastClient) statusWithRetry(ctx context.Context, handle TaskHandle) (TaskStatus, error) {
	retries := c.cfg.Retry.newBackOff()

	for attempt := 0; ; attempt++ {
		status, err := c.Status(ctx, handle)
		if err == nil {
			if attempt > 0 {
				c.logger.Info("task status recovered after retry", "task_id", handle.TaskID, "retries", attempt)
			}
			return status, nil
		}

		if ctx.Err() != nil || !isTransient(err) {
			return TaskStatus{}, err
		}
		if attempt >= c.cfg.Retry.MaxRetries {
			c.logger.Warn("task status retries exhausted", "task_id", handle.TaskID, "retries", attempt, "error", err)
			return TaskStatus{}, err
		}

		delay := retries.NextBackOff()
		c.recorder.ObserveRetry(OpStatus)
		c.logger.Debug("retrying task status", "task_id", handle.TaskID, "attempt", attempt+1, "delay", delay, "error", err)

		if sleepErr := sleep(ctx, delay); sleepErr != nil {
			return TaskStatus{}, err
		}
	}
}

func lastOrEmpty(last *TaskStatus) TaskStatus {
	if last == nil {
		return TaskStatus{}
	}
	return *last
}
