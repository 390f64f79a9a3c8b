package models

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kp-forecasting/forecast-client/common/clients"
)

func TestJobStatusFor(t *testing.T) {
	assert.Equal(t, JobCompleted, JobStatusFor(nil))
	assert.Equal(t, JobFailed, JobStatusFor(&clients.Error{Kind: clients.KindJobFailed}))
	assert.Equal(t, JobTimedOut, JobStatusFor(fmt.Errorf("wrap: %w", &clients.Error{Kind: clients.KindPollTimeout})))
	assert.Equal(t, JobNotFound, JobStatusFor(&clients.Error{Kind: clients.KindNotFound}))
	assert.Equal(t, JobError, JobStatusFor(&clients.Error{Kind: clients.KindTransport}))
	assert.Equal(t, JobCanceled, JobStatusFor(fmt.Errorf("await: %w", context.Canceled)))
	assert.Equal(t, JobError, JobStatusFor(errors.New("failed to write artifact")))
}

func TestNewJob(t *testing.T) {
	job := NewJob("P1", "a.csv")
	assert.Equal(t, JobSubmitting, job.Status)
	assert.False(t, job.Status.IsFinal())
	assert.True(t, JobTimedOut.IsFinal())
	assert.False(t, job.SubmittedAt.IsZero())
}
