package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/OFFIS-RIT/hazgraph/pkg/common"
	"github.com/OFFIS-RIT/hazgraph/pkg/loader"
	"github.com/OFFIS-RIT/hazgraph/pkg/logger"

	"github.com/rabbitmq/amqp091-go"
)

// ErrPermanent marks messages that will never succeed; they skip the retry
// queue.
var ErrPermanent = errors.New("permanent failure")

// IngestMsg asks a worker to ingest one document, either inline or by
// reference to the raw archive.
type IngestMsg struct {
	Name          string    `json:"name"`
	Format        string    `json:"format,omitempty"`
	S3Key         string    `json:"s3_key,omitempty"`
	Content       []byte    `json:"content,omitempty"`
	RetrievedAt   time.Time `json:"retrieved_at,omitzero"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

func DecodeIngestMsg(body []byte) (IngestMsg, error) {
	var msg IngestMsg
	if err := json.Unmarshal(body, &msg); err != nil {
		return msg, fmt.Errorf("%w: decode message: %v", ErrPermanent, err)
	}
	switch {
	case msg.Name == "":
		return msg, fmt.Errorf("%w: message has no name", ErrPermanent)
	case msg.S3Key == "" && len(msg.Content) == 0:
		return msg, fmt.Errorf("%w: message %s has neither s3_key nor content", ErrPermanent, msg.Name)
	}
	return msg, nil
}

type Ingester interface {
	Ingest(ctx context.Context, in loader.RawInput) ([]common.IngestionOutcome, error)
}

// Fetcher loads archived raw documents. *storage.Archive implements it.
type Fetcher interface {
	Fetch(ctx context.Context, key string) ([]byte, error)
}

type Handler struct {
	ingester Ingester
	archive  Fetcher
}

// NewHandler creates a handler. archive may be nil when messages always
// carry their content.
func NewHandler(ingester Ingester, archive Fetcher) *Handler {
	return &Handler{ingester: ingester, archive: archive}
}

// Handle processes one ingest message. Record-level failures are part of
// the outcomes and do not fail the message; only input and infrastructure
// errors do.
func (h *Handler) Handle(ctx context.Context, body []byte) ([]common.IngestionOutcome, error) {
	msg, err := DecodeIngestMsg(body)
	if err != nil {
		return nil, err
	}

	data := msg.Content
	if len(data) == 0 {
		if h.archive == nil {
			return nil, fmt.Errorf("%w: %s references s3 key %s but no archive is configured", ErrPermanent, msg.Name, msg.S3Key)
		}
		data, err = h.archive.Fetch(ctx, msg.S3Key)
		if err != nil {
			return nil, err
		}
	}

	outcomes, err := h.ingester.Ingest(ctx, loader.RawInput{
		Name:        msg.Name,
		Data:        data,
		FormatHint:  msg.Format,
		RetrievedAt: msg.RetrievedAt,
	})
	if errors.Is(err, loader.ErrUnsupportedFormat) || errors.Is(err, loader.ErrMalformedInput) {
		return nil, fmt.Errorf("%w: %v", ErrPermanent, err)
	}
	if err != nil {
		return nil, err
	}

	failed := 0
	for _, o := range outcomes {
		if o.Status == common.StatusFailed {
			failed++
		}
	}
	logger.Info("[Queue] Document ingested", "name", msg.Name, "correlation_id", msg.CorrelationID, "records", len(outcomes), "failed", failed)
	// A failed graph commit is transient (store down, conflicts exhausted);
	// retrying re-runs only what did not converge.
	if failed > 0 {
		return outcomes, fmt.Errorf("%d of %d records failed", failed, len(outcomes))
	}
	return outcomes, nil
}

func retries(headers amqp091.Table) int {
	switch v := headers["x-retries"].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	}
	return 0
}

// nextHop decides where a failed message goes: the retry queue with a
// bumped counter, or the dead-letter queue once retries are exhausted or
// the failure is permanent.
func nextHop(queueName string, headers amqp091.Table, permanent bool) (string, amqp091.Table) {
	out := amqp091.Table{}
	for k, v := range headers {
		out[k] = v
	}
	n := retries(headers)
	if permanent || n >= MaxRetries {
		return queueName + "_dlq", out
	}
	out["x-retries"] = int32(n + 1)
	return queueName + "_retry", out
}

// Consume handles messages of queueName one at a time until ctx is done.
func Consume(ctx context.Context, ch *amqp091.Channel, queueName string, h *Handler) error {
	if err := ch.Qos(1, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}
	msgs, err := ch.Consume(
		queueName,
		queueName+"_consumer",
		false, // autoAck
		false, // exclusive
		false, // noLocal
		false, // noWait
		nil,   // args
	)
	if err != nil {
		return fmt.Errorf("consume %s: %w", queueName, err)
	}

	logger.Info("[Queue] Listening for messages", "queue", queueName)
	for {
		select {
		case <-ctx.Done():
			logger.Info("[Queue] Stopping consumer", "queue", queueName)
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return fmt.Errorf("message channel of %s closed", queueName)
			}
			start := time.Now()
			_, err := h.Handle(ctx, msg.Body)
			if err != nil {
				logger.Error("[Queue] Error processing message", "queue", queueName, "retries", retries(msg.Headers), "err", err)
				handleProcessingError(ctx, ch, msg, queueName, errors.Is(err, ErrPermanent))
				continue
			}
			if err := msg.Ack(false); err != nil {
				logger.Error("[Queue] Failed to ack message", "err", err)
			}
			logger.Info("[Queue] Message processed", "queue", queueName, "duration", time.Since(start))
		}
	}
}

func handleProcessingError(ctx context.Context, ch *amqp091.Channel, msg amqp091.Delivery, queueName string, permanent bool) {
	target, headers := nextHop(queueName, msg.Headers, permanent)
	if err := PublishFIFO(context.WithoutCancel(ctx), ch, target, msg.Body, headers); err != nil {
		logger.Error("[Queue] Failed to republish message", "target", target, "err", err)
		_ = msg.Nack(false, true)
		return
	}
	if target == queueName+"_dlq" {
		logger.Warn("[Queue] Message sent to DLQ", "dlq", target)
	}
	_ = msg.Ack(false)
}
