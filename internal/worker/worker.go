// Package worker consumes upload notifications and runs imports.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/opensource-identity/harrier/internal/domain"
	"github.com/opensource-identity/harrier/internal/importer"
)

// Worker processes uploaded files asynchronously from the EventBus.
type Worker struct {
	bus      domain.EventBus
	importer *importer.Importer

	subscriptions []domain.Subscription
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

// NewWorker creates a new async worker.
func NewWorker(bus domain.EventBus, imp *importer.Importer) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:      bus,
		importer: imp,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start subscribes to the upload topic.
func (w *Worker) Start() error {
	sub, err := w.bus.Subscribe(w.ctx, domain.TopicUploadReceived, w.handleUpload)
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("worker started", "topic", domain.TopicUploadReceived)
	return nil
}

// handleUpload runs one import for an upload notification.
func (w *Worker) handleUpload(ctx context.Context, msg *domain.Message) error {
	start := time.Now()

	var note domain.UploadNotification
	if err := json.Unmarshal(msg.Payload, &note); err != nil {
		slog.Error("failed to parse upload notification",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	slog.Debug("processing upload notification",
		"key", note.Key,
		"message_id", msg.ID,
	)

	result, err := w.importer.Run(ctx, note.Key)
	if err != nil {
		slog.Error("import aborted",
			"key", note.Key,
			"error", err,
		)
		w.publishOutcome(ctx, domain.TopicImportFailed, domain.ImportOutcome{Key: note.Key})
		return err
	}

	outcome := domain.ImportOutcome{
		Key:         note.Key,
		SessionID:   result.Session.ID,
		IDPEntityID: result.Session.IDPEntityID,
		Validated:   result.Validated,
		Failures:    result.Failures,
	}

	topic := domain.TopicImportFailed
	if result.Validated {
		topic = domain.TopicImportCompleted
	}
	w.publishOutcome(ctx, topic, outcome)

	slog.Info("upload processed",
		"key", note.Key,
		"session_id", result.Session.ID,
		"validated", result.Validated,
		"rows", result.Rows,
		"failures", result.Failures,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return nil
}

func (w *Worker) publishOutcome(ctx context.Context, topic string, outcome domain.ImportOutcome) {
	payload, _ := json.Marshal(outcome)
	if err := w.bus.Publish(ctx, topic, payload); err != nil {
		slog.Error("failed to publish import outcome",
			"topic", topic,
			"key", outcome.Key,
			"error", err,
		)
	}
}

// Stop gracefully stops the worker.
func (w *Worker) Stop() error {
	w.cancel()

	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	w.wg.Wait()

	slog.Info("worker stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}
