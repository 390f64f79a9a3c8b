package main

import (
	"context"
	"errors"
	"path/filepath"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/kp-forecasting/forecast-client/common/clients"
	"github.com/kp-forecasting/forecast-client/common/logger"
	"github.com/kp-forecasting/forecast-client/common/metrics"
	"github.com/kp-forecasting/forecast-client/common/models"
	"github.com/kp-forecasting/forecast-client/common/storage"
)

// jobHistory records workflow progress; satisfied by *repository.JobRepository
type jobHistory interface {
	Create(ctx context.Context, job *models.Job) error
	MarkSubmitted(ctx context.Context, jobID uuid.UUID, taskID string) error
	Finish(ctx context.Context, job *models.Job) error
}

type nopHistory struct{}

func (nopHistory) Create(context.Context, *models.Job) error              { return nil }
func (nopHistory) MarkSubmitted(context.Context, uuid.UUID, string) error { return nil }
func (nopHistory) Finish(context.Context, *models.Job) error              { return nil }

// jobReport is the per-file outcome printed by the run command
type jobReport struct {
	File     string
	TaskID   string
	Status   models.JobStatus
	Location string
	Err      error
}

// jobRunner drives submit, wait, fetch and store for each file
type jobRunner struct {
	client  *clients.ForecastClient
	sink    storage.Sink
	history jobHistory
	metrics *metrics.ClientMetrics
	log     *logger.Logger
	policy  clients.PollPolicy
}

// runAll processes files with at most limit workflows in flight.
// Every file is attempted; the first failure is returned after all finish.
func (r *jobRunner) runAll(ctx context.Context, files []string, productID string, limit int) ([]jobReport, error) {
	if limit < 1 {
		limit = 1
	}

	reports := make([]jobReport, len(files))

	var g errgroup.Group
	g.SetLimit(limit)

	for i, file := range files {
		g.Go(func() error {
			reports[i] = r.run(ctx, file, productID)
			return reports[i].Err
		})
	}

	return reports, g.Wait()
}

func (r *jobRunner) run(ctx context.Context, file, productID string) (report jobReport) {
	report.File = filepath.Base(file)

	done := r.metrics.WorkflowStarted()
	defer func() { done(report.Err) }()

	req, err := readUpload(file, productID)
	if err != nil {
		report.Status = models.JobError
		report.Err = err
		return report
	}

	job := models.NewJob(productID, req.FileName)
	ctx = clients.WithRequestID(ctx, job.JobID.String())
	log := r.log.WithContext(ctx).WithProductID(productID).WithFields(map[string]any{
		"file": req.FileName,
	})

	if err := r.history.Create(ctx, job); err != nil {
		log.Warn("failed to record job", "error", err)
	}

	defer func() {
		job.Status = report.Status
		if report.Err != nil {
			detail := report.Err.Error()
			var clientErr *clients.Error
			if errors.As(report.Err, &clientErr) && clientErr.Status != nil && clientErr.Status.ErrorDetail != "" {
				detail = clientErr.Status.ErrorDetail
			}
			job.ErrorDetail = &detail
		}
		// Record the outcome even when ctx was canceled
		if err := r.history.Finish(context.WithoutCancel(ctx), job); err != nil {
			log.Warn("failed to record job outcome", "error", err)
		}
	}()

	handle, err := r.client.Submit(ctx, req)
	if err != nil {
		return failed(report, err)
	}
	report.TaskID = handle.TaskID
	job.TaskID = &handle.TaskID
	log = log.WithTaskID(handle.TaskID)

	if err := r.history.MarkSubmitted(ctx, job.JobID, handle.TaskID); err != nil {
		log.Warn("failed to record task id", "error", err)
	}

	status, err := r.client.AwaitCompletion(ctx, handle, r.policy)
	if err != nil {
		return failed(report, err)
	}
	job.ResultReference = &status.ResultReference

	artifact, err := r.client.Fetch(ctx, status.ResultReference)
	if err != nil {
		return failed(report, err)
	}

	location, err := r.sink.Save(ctx, storage.ObjectKey(handle.TaskID, artifact), artifact)
	if err != nil {
		return failed(report, err)
	}
	report.Location = location
	job.Location = &location
	report.Status = models.JobCompleted

	log.Info("forecast stored", "location", location, "size", len(artifact.Bytes))
	return report
}

func failed(report jobReport, err error) jobReport {
	report.Err = err
	report.Status = models.JobStatusFor(err)
	return report
}
