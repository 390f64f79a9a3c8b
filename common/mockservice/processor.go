package mockservice

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kp-forecasting/forecast-client/common/clients"
	"github.com/kp-forecasting/forecast-client/common/logger"
	"github.com/kp-forecasting/forecast-client/common/queue"
)

// UploadTopic carries accepted uploads from the HTTP surface to the processor
const UploadTopic = "forecast.uploads"

// uploadMessage is the queue payload for one accepted upload
type uploadMessage struct {
	TaskID    string `json:"task_id"`
	ProductID string `json:"product_id"`
	FileName  string `json:"file_name"`
	Content   []byte `json:"content"`
}

// Processor turns pending tasks into completed or failed ones.
// The output is the uploaded CSV tagged with the target product; no forecasting happens here.
type Processor struct {
	store      Store
	queue      queue.Queue
	delay      time.Duration
	failPrefix string
	log        *logger.Logger
}

// NewProcessor creates a processor; products starting with failPrefix always fail
func NewProcessor(store Store, q queue.Queue, delay time.Duration, failPrefix string, log *logger.Logger) *Processor {
	return &Processor{
		store:      store,
		queue:      q,
		delay:      delay,
		failPrefix: failPrefix,
		log:        log,
	}
}

// Start subscribes workers to the upload topic
func (p *Processor) Start(ctx context.Context, workers int) error {
	for i := 0; i < workers; i++ {
		if err := p.queue.Subscribe(ctx, UploadTopic, p.handle); err != nil {
			return fmt.Errorf("failed to subscribe processor worker %d: %w", i, err)
		}
	}
	p.log.Info("processor started", "workers", workers, "delay", p.delay)
	return nil
}

func (p *Processor) handle(ctx context.Context, key string, value []byte) error {
	var msg uploadMessage
	if err := json.Unmarshal(value, &msg); err != nil {
		return fmt.Errorf("failed to decode upload message %s: %w", key, err)
	}
	log := p.log.WithTaskID(msg.TaskID).WithProductID(msg.ProductID)

	task, err := p.store.GetTask(ctx, msg.TaskID)
	if err != nil {
		return fmt.Errorf("failed to load task %s: %w", msg.TaskID, err)
	}

	task.State = clients.StateRunning
	task.UpdatedAt = time.Now().UTC()
	if err := p.store.SaveTask(ctx, task); err != nil {
		return fmt.Errorf("failed to mark task running: %w", err)
	}
	log.Debug("task running")

	select {
	case <-time.After(p.delay):
	case <-ctx.Done():
		task.State = clients.StateFailed
		task.ErrorDetail = "processing interrupted"
		task.UpdatedAt = time.Now().UTC()
		if err := p.store.SaveTask(context.WithoutCancel(ctx), task); err != nil {
			log.Error("failed to mark interrupted task", "error", err)
		}
		return ctx.Err()
	}

	output, procErr := p.process(msg)
	task.UpdatedAt = time.Now().UTC()
	if procErr != nil {
		task.State = clients.StateFailed
		task.ErrorDetail = procErr.Error()
		log.Info("task failed", "error", procErr)
		return p.store.SaveTask(ctx, task)
	}

	ref := uuid.NewString()
	if err := p.store.SaveArtifact(ctx, ref, StoredArtifact{
		FileName:    artifactFileName(msg.ProductID),
		ContentType: "text/csv",
		Data:        output,
	}); err != nil {
		task.State = clients.StateFailed
		task.ErrorDetail = "failed to store result"
		if saveErr := p.store.SaveTask(ctx, task); saveErr != nil {
			log.Error("failed to mark task failed", "error", saveErr)
		}
		return fmt.Errorf("failed to store artifact: %w", err)
	}

	task.State = clients.StateCompleted
	task.ResultReference = ref
	log.Info("task completed", "reference", ref, "size", len(output))
	return p.store.SaveTask(ctx, task)
}

// process validates the CSV and appends a target_product_id column
func (p *Processor) process(msg uploadMessage) ([]byte, error) {
	if p.failPrefix != "" && strings.HasPrefix(msg.ProductID, p.failPrefix) {
		return nil, fmt.Errorf("forecast failed for product %s", msg.ProductID)
	}

	reader := csv.NewReader(bytes.NewReader(msg.Content))
	reader.FieldsPerRecord = 0

	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	rows := 0
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("invalid CSV: %w", err)
		}
		if rows == 0 {
			record = append(record, "target_product_id")
		} else {
			record = append(record, msg.ProductID)
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write result: %w", err)
		}
		rows++
	}
	if rows < 2 {
		return nil, errors.New("invalid CSV: no data rows")
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("failed to write result: %w", err)
	}
	return buf.Bytes(), nil
}

func artifactFileName(productID string) string {
	return productID + "_forecast.csv"
}
