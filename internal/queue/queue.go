package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/OFFIS-RIT/hazgraph/internal/util"
	"github.com/OFFIS-RIT/hazgraph/pkg/logger"

	"github.com/rabbitmq/amqp091-go"
)

const (
	IngestQueue = "ingest_queue"

	// MaxRetries is how often a message is retried before it goes to the
	// dead-letter queue.
	MaxRetries = 10
	retryDelay = 10 * time.Second
)

// Configured reports whether RABBITMQ_HOST is set.
func Configured() bool {
	return util.GetEnv("RABBITMQ_HOST") != ""
}

func Init() *amqp091.Connection {
	user := util.GetEnvString("RABBITMQ_USER", "guest")
	pass := util.GetEnvString("RABBITMQ_PASSWORD", "guest")
	host := util.GetEnv("RABBITMQ_HOST")
	port := util.GetEnvString("RABBITMQ_PORT", "5672")

	connURL := fmt.Sprintf(
		"amqp://%s:%s@%s:%s/",
		user,
		pass,
		host,
		port,
	)

	conn, err := amqp091.Dial(connURL)
	if err != nil {
		logger.Fatal("[Queue] Failed to connect to RabbitMQ", "host", host, "err", err)
	}

	return conn
}

// SetupQueues declares every queue with its dead-letter queue and a retry
// queue whose messages return to the main queue after retryDelay.
func SetupQueues(ch *amqp091.Channel, queueNames []string) error {
	for _, name := range queueNames {
		_, err := ch.QueueDeclare(
			name,
			true,  // durable
			false, // autoDelete
			false, // exclusive
			false, // noWait
			nil,   // args
		)
		if err != nil {
			return fmt.Errorf("declare %s: %w", name, err)
		}

		dlqName := name + "_dlq"
		_, err = ch.QueueDeclare(
			dlqName,
			true,
			false,
			false,
			false,
			nil,
		)
		if err != nil {
			return fmt.Errorf("declare %s: %w", dlqName, err)
		}

		retryName := name + "_retry"
		_, err = ch.QueueDeclare(
			retryName,
			true,
			false,
			false,
			false,
			amqp091.Table{
				"x-message-ttl":             int32(retryDelay.Milliseconds()),
				"x-dead-letter-exchange":    "",
				"x-dead-letter-routing-key": name,
			},
		)
		if err != nil {
			return fmt.Errorf("declare %s: %w", retryName, err)
		}
	}

	return nil
}

// Publisher is the part of *amqp091.Channel used for publishing.
type Publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
}

// PublishFIFO publishes a persistent message to queueName on the default
// exchange, retrying transient channel errors.
func PublishFIFO(ctx context.Context, ch Publisher, queueName string, data []byte, headers amqp091.Table) error {
	publishing := amqp091.Publishing{
		ContentType:  "application/json",
		Body:         data,
		Headers:      headers,
		DeliveryMode: amqp091.Persistent,
		Timestamp:    time.Now(),
	}

	return util.RetryErrWithContext(ctx, 3, func(ctx context.Context) error {
		return ch.PublishWithContext(
			ctx,
			"",
			queueName,
			false,
			false,
			publishing,
		)
	})
}
