package models

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/kp-forecasting/forecast-client/common/clients"
)

// JobStatus is the client-side outcome of one submit-wait-fetch workflow
type JobStatus string

const (
	JobSubmitting JobStatus = "submitting"
	JobWaiting    JobStatus = "waiting"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
	JobTimedOut   JobStatus = "timed_out"
	JobNotFound   JobStatus = "not_found"
	JobError      JobStatus = "error"
	JobCanceled   JobStatus = "canceled"
)

// IsFinal reports whether the job will not change again
func (s JobStatus) IsFinal() bool {
	return s != JobSubmitting && s != JobWaiting
}

// Job is one recorded workflow
// Maps to: forecast_job table
type Job struct {
	JobID           uuid.UUID  `db:"job_id" json:"job_id"`
	TaskID          *string    `db:"task_id" json:"task_id,omitempty"`
	ProductID       string     `db:"product_id" json:"product_id"`
	FileName        string     `db:"file_name" json:"file_name"`
	Status          JobStatus  `db:"status" json:"status"`
	ResultReference *string    `db:"result_reference" json:"result_reference,omitempty"`
	ErrorDetail     *string    `db:"error_detail" json:"error_detail,omitempty"`
	Location        *string    `db:"location" json:"location,omitempty"`
	SubmittedAt     time.Time  `db:"submitted_at" json:"submitted_at"`
	FinishedAt      *time.Time `db:"finished_at" json:"finished_at,omitempty"`
}

// NewJob creates a job for an upload that is about to be submitted
func NewJob(productID, fileName string) *Job {
	return &Job{
		JobID:       uuid.New(),
		ProductID:   productID,
		FileName:    fileName,
		Status:      JobSubmitting,
		SubmittedAt: time.Now().UTC(),
	}
}

// JobStatusFor maps a workflow error onto the recorded status; nil means completed
func JobStatusFor(err error) JobStatus {
	if err == nil {
		return JobCompleted
	}
	switch clients.KindOf(err) {
	case clients.KindJobFailed:
		return JobFailed
	case clients.KindPollTimeout:
		return JobTimedOut
	case clients.KindNotFound:
		return JobNotFound
	case "":
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return JobCanceled
		}
		return JobError
	default:
		return JobError
	}
}
