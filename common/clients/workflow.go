package clients

import "context"

// Run submits the file, waits for its task and downloads the artifact.
// The returned Result is filled as far as the workflow got, also on error.
func (c *ForecastClient) Run(ctx context.Context, req UploadRequest, policy PollPolicy) (Result, error) {
	var result Result

	if err := policy.Validate(); err != nil {
		return result, newInvalidRequest(OpAwait, "", err.Error())
	}

	handle, err := c.Submit(ctx, req)
	if err != nil {
		return result, err
	}
	result.Handle = handle

	status, err := c.AwaitCompletion(ctx, handle, policy)
	result.Status = status
	if err != nil {
		return result, err
	}

	artifact, err := c.Fetch(ctx, status.ResultReference)
	if err != nil {
		return result, err
	}
	result.Artifact = artifact

	c.logger.Info("forecast workflow completed",
		"task_id", handle.TaskID,
		"product_id", req.TargetProductID,
		"reference", status.ResultReference,
		"size", len(artifact.Bytes))

	return result, nil
}
