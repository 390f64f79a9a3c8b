package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/kp-forecasting/forecast-client/common/clients"
	"github.com/kp-forecasting/forecast-client/common/repository"
	"github.com/kp-forecasting/forecast-client/common/storage"
)

func (c *cli) submitCommand() *cobra.Command {
	var productID string

	cmd := &cobra.Command{
		Use:   "submit FILE",
		Short: "Upload a file and print the task id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := readUpload(args[0], productID)
			if err != nil {
				return err
			}
			handle, err := c.client.Submit(cmd.Context(), req)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), handle.TaskID)
			return nil
		},
	}
	cmd.Flags().StringVarP(&productID, "product", "p", "", "target product id (required)")
	return cmd
}

func (c *cli) statusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status TASK_ID",
		Short: "Query the current state of a task once",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := c.client.Status(cmd.Context(), clients.TaskHandle{TaskID: args[0]})
			if err != nil {
				return err
			}
			printStatus(cmd, status)
			return nil
		},
	}
}

func (c *cli) waitCommand() *cobra.Command {
	var pf pollFlags

	cmd := &cobra.Command{
		Use:   "wait TASK_ID",
		Short: "Poll a task until it completes, fails or the budget runs out",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			policy, err := c.pollPolicy(pf)
			if err != nil {
				return err
			}
			status, err := c.client.AwaitCompletion(cmd.Context(), clients.TaskHandle{TaskID: args[0]}, policy)
			if status.State != "" {
				printStatus(cmd, status)
			}
			return err
		},
	}
	pf.register(cmd)
	return cmd
}

func (c *cli) downloadCommand() *cobra.Command {
	var taskID string

	cmd := &cobra.Command{
		Use:   "download REFERENCE",
		Short: "Download the artifact behind a result reference",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			sink, err := c.sink(ctx)
			if err != nil {
				return err
			}
			artifact, err := c.client.Fetch(ctx, args[0])
			if err != nil {
				return err
			}

			prefix := taskID
			if prefix == "" {
				prefix = "downloads"
			}
			location, err := sink.Save(ctx, storage.ObjectKey(prefix, artifact), artifact)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), location)
			return nil
		},
	}
	cmd.Flags().StringVar(&taskID, "task-id", "", "task id used to group the artifact in storage")
	return cmd
}

func (c *cli) runCommand() *cobra.Command {
	var (
		productID   string
		concurrency int
		pf          pollFlags
	)

	cmd := &cobra.Command{
		Use:   "run FILE...",
		Short: "Submit files, wait for their tasks and store the artifacts",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			policy, err := c.pollPolicy(pf)
			if err != nil {
				return err
			}
			sink, err := c.sink(cmd.Context())
			if err != nil {
				return err
			}

			runner := &jobRunner{
				client:  c.client,
				sink:    sink,
				history: c.history(),
				metrics: c.components.Metrics,
				log:     c.components.Logger,
				policy:  policy,
			}

			reports, err := runner.runAll(cmd.Context(), args, productID, concurrency)
			printReports(cmd, reports)
			return err
		},
	}
	cmd.Flags().StringVarP(&productID, "product", "p", "", "target product id (required)")
	cmd.Flags().IntVarP(&concurrency, "concurrency", "c", 4, "workflows in flight at once")
	pf.register(cmd)
	return cmd
}

func (c *cli) historyCommand() *cobra.Command {
	var (
		productID string
		limit     int
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded workflows, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if c.components.DB == nil {
				return errors.New("job history is disabled; set HISTORY_ENABLED=true")
			}
			jobs, err := repository.NewJobRepository(c.components.DB).List(cmd.Context(), productID, limit)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "SUBMITTED\tPRODUCT\tFILE\tTASK\tSTATUS\tLOCATION")
			for _, job := range jobs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
					job.SubmittedAt.Format(time.RFC3339),
					job.ProductID,
					job.FileName,
					deref(job.TaskID),
					job.Status,
					deref(job.Location))
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVarP(&productID, "product", "p", "", "only jobs for this product")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of jobs")
	return cmd
}

func (c *cli) history() jobHistory {
	if c.components.DB == nil {
		return nopHistory{}
	}
	return repository.NewJobRepository(c.components.DB)
}

// readUpload loads a file from disk; blank product ids are rejected by Submit
func readUpload(path, productID string) (clients.UploadRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return clients.UploadRequest{}, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return clients.UploadRequest{
		FileContent:     data,
		FileName:        filepath.Base(path),
		TargetProductID: productID,
	}, nil
}

func printStatus(cmd *cobra.Command, status clients.TaskStatus) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "task_id: %s\nstate: %s\n", status.TaskID, status.State)
	if status.ResultReference != "" {
		fmt.Fprintf(out, "result_reference: %s\n", status.ResultReference)
	}
	if status.ErrorDetail != "" {
		fmt.Fprintf(out, "error_detail: %s\n", status.ErrorDetail)
	}
}

func printReports(cmd *cobra.Command, reports []jobReport) {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "FILE\tTASK\tSTATUS\tLOCATION")
	for _, r := range reports {
		location := r.Location
		if r.Err != nil {
			location = r.Err.Error()
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.File, r.TaskID, r.Status, location)
	}
	w.Flush()
}

func deref(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}
