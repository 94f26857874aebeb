package kafka

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/IBM/sarama"
	"github.com/rs/zerolog"
)

type Processor interface {
	ProcessEvent(ctx context.Context, raw []byte) error
}

type Config struct {
	Brokers      []string
	Topic        string
	Group        string
	ErrorBackoff time.Duration
}

func DefaultConfig() Config {
	return Config{
		Topic:        "storage-events",
		Group:        "storage-guard",
		ErrorBackoff: 5 * time.Second,
	}
}

// Consumer reads change events through a consumer group. Offsets are marked only
// after a message was processed without error; a failure ends the session so the
// group resumes from the last marked offset.
type Consumer struct {
	group     sarama.ConsumerGroup
	processor Processor
	config    Config
}

func NewConsumer(cfg Config, processor Processor) (*Consumer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("at least one broker is required")
	}

	sc := sarama.NewConfig()
	sc.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	sc.Consumer.Offsets.Initial = sarama.OffsetOldest

	group, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.Group, sc)
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer group: %w", err)
	}
	return newConsumer(group, processor, cfg)
}

func newConsumer(group sarama.ConsumerGroup, processor Processor, cfg Config) (*Consumer, error) {
	if processor == nil {
		return nil, fmt.Errorf("event processor is nil")
	}
	defaults := DefaultConfig()
	if cfg.Topic == "" {
		cfg.Topic = defaults.Topic
	}
	if cfg.ErrorBackoff <= 0 {
		cfg.ErrorBackoff = defaults.ErrorBackoff
	}
	return &Consumer{group: group, processor: processor, config: cfg}, nil
}

func (c *Consumer) Run(ctx context.Context) error {
	logger := zerolog.Ctx(ctx).With().Str("transport", "kafka").Str("topic", c.config.Topic).Logger()
	ctx = logger.WithContext(ctx)
	defer c.group.Close()

	logger.Info().Str("group", c.config.Group).Msg("kafka consumer started")
	h := &handler{processor: c.processor, logger: logger}
	for {
		// Consume returns on every rebalance and must be called again
		err := c.group.Consume(ctx, []string{c.config.Topic}, h)
		if errors.Is(err, sarama.ErrClosedConsumerGroup) {
			logger.Info().Msg("consumer group closed")
			return nil
		}
		if err != nil {
			logger.Error().Err(err).Msg("consumer session failed")
		}
		// back off before a failed message is redelivered
		if err != nil || h.failed.Swap(false) {
			select {
			case <-ctx.Done():
			case <-time.After(c.config.ErrorBackoff):
			}
		}
		if ctx.Err() != nil {
			logger.Info().Msg("kafka consumer stopped")
			return nil
		}
	}
}

type handler struct {
	processor Processor
	logger    zerolog.Logger
	failed    atomic.Bool
}

func (h *handler) Setup(sarama.ConsumerGroupSession) error {
	return nil
}

func (h *handler) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

func (h *handler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}

			logger := h.logger.With().Int32("partition", msg.Partition).Int64("offset", msg.Offset).Logger()
			if err := h.processor.ProcessEvent(logger.WithContext(session.Context()), msg.Value); err != nil {
				logger.Error().Err(err).Msg("message processing failed, ending session for redelivery")
				h.failed.Store(true)
				return fmt.Errorf("process offset %d: %w", msg.Offset, err)
			}
			session.MarkMessage(msg, "")

		case <-session.Context().Done():
			return nil
		}
	}
}
