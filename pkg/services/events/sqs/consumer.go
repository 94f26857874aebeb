package sqs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awssqs "github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/rs/zerolog"
)

// API is the subset of the SQS client the consumer uses.
type API interface {
	ReceiveMessage(ctx context.Context, params *awssqs.ReceiveMessageInput, optFns ...func(*awssqs.Options)) (*awssqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *awssqs.DeleteMessageInput, optFns ...func(*awssqs.Options)) (*awssqs.DeleteMessageOutput, error)
}

type Processor interface {
	ProcessEvent(ctx context.Context, raw []byte) error
}

type Config struct {
	QueueURL          string
	WaitTime          time.Duration
	VisibilityTimeout time.Duration
	BatchSize         int32
	ErrorBackoff      time.Duration
}

func DefaultConfig() Config {
	return Config{
		WaitTime:          20 * time.Second,
		VisibilityTimeout: 60 * time.Second,
		BatchSize:         10,
		ErrorBackoff:      5 * time.Second,
	}
}

// Consumer long-polls a queue. A message is deleted only after it was processed
// without error; otherwise it becomes visible again after the visibility timeout.
type Consumer struct {
	client    API
	processor Processor
	config    Config
}

func NewConsumer(client API, processor Processor, cfg Config) (*Consumer, error) {
	if client == nil {
		return nil, fmt.Errorf("sqs client is nil")
	}
	if processor == nil {
		return nil, fmt.Errorf("event processor is nil")
	}
	if cfg.QueueURL == "" {
		return nil, fmt.Errorf("queue url is required")
	}
	defaults := DefaultConfig()
	if cfg.BatchSize < 1 || cfg.BatchSize > 10 {
		cfg.BatchSize = defaults.BatchSize
	}
	if cfg.ErrorBackoff <= 0 {
		cfg.ErrorBackoff = defaults.ErrorBackoff
	}
	return &Consumer{
		client:    client,
		processor: processor,
		config:    cfg,
	}, nil
}

func (c *Consumer) Run(ctx context.Context) error {
	logger := zerolog.Ctx(ctx).With().Str("transport", "sqs").Str("queue", c.config.QueueURL).Logger()
	ctx = logger.WithContext(ctx)
	logger.Info().Msg("sqs consumer started")

	for {
		if _, err := c.Poll(ctx); err != nil {
			if ctx.Err() != nil {
				break
			}
			logger.Error().Err(err).Msg("failed to receive messages")
			select {
			case <-ctx.Done():
			case <-time.After(c.config.ErrorBackoff):
			}
		}
		if ctx.Err() != nil {
			break
		}
	}

	logger.Info().Msg("sqs consumer stopped")
	return nil
}

// Poll receives one batch and returns the number of messages acknowledged.
func (c *Consumer) Poll(ctx context.Context) (int, error) {
	out, err := c.client.ReceiveMessage(ctx, &awssqs.ReceiveMessageInput{
		QueueUrl:            aws.String(c.config.QueueURL),
		MaxNumberOfMessages: c.config.BatchSize,
		WaitTimeSeconds:     int32(c.config.WaitTime / time.Second),
		VisibilityTimeout:   int32(c.config.VisibilityTimeout / time.Second),
	})
	if err != nil {
		return 0, fmt.Errorf("receive message: %w", err)
	}

	acked := 0
	var errs []error
	for _, msg := range out.Messages {
		if err := c.handle(ctx, msg); err != nil {
			errs = append(errs, err)
			continue
		}
		acked++
	}
	if len(errs) > 0 {
		zerolog.Ctx(ctx).Warn().Err(errors.Join(errs...)).Int("acked", acked).Msg("some messages left for redelivery")
	}
	return acked, nil
}

func (c *Consumer) handle(ctx context.Context, msg types.Message) error {
	logger := zerolog.Ctx(ctx).With().Str("message_id", aws.ToString(msg.MessageId)).Logger()

	if err := c.processor.ProcessEvent(logger.WithContext(ctx), []byte(aws.ToString(msg.Body))); err != nil {
		logger.Error().Err(err).Msg("message processing failed, leaving for redelivery")
		return err
	}

	_, err := c.client.DeleteMessage(ctx, &awssqs.DeleteMessageInput{
		QueueUrl:      aws.String(c.config.QueueURL),
		ReceiptHandle: msg.ReceiptHandle,
	})
	if err != nil {
		logger.Error().Err(err).Msg("failed to delete processed message")
		return fmt.Errorf("delete message: %w", err)
	}
	return nil
}
