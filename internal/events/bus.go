// Package events distributes job state transitions using watermill.
package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/rs/zerolog"

	"tunegrab/internal/core/domain"
)

// TopicJobState carries domain.JobEvent payloads.
const TopicJobState = "jobs.state"

// Bus is an in-process pub/sub for job events.
type Bus struct {
	pubsub *gochannel.GoChannel
	logger zerolog.Logger
}

// NewBus creates a bus. Publishing blocks until every subscriber has
// handled the event, so subscribers observe a job's transitions in order.
func NewBus(logger zerolog.Logger) *Bus {
	return &Bus{
		pubsub: gochannel.NewGoChannel(
			gochannel.Config{
				OutputChannelBuffer:            64,
				BlockPublishUntilSubscriberAck: true,
			},
			watermill.NopLogger{},
		),
		logger: logger,
	}
}

// PublishJob publishes a job transition.
func (b *Bus) PublishJob(evt domain.JobEvent) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal job event: %w", err)
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set("job_id", evt.JobID)
	return b.pubsub.Publish(TopicJobState, msg)
}

// SubscribeJobs calls fn for every job event until ctx is done.
// fn runs on the bus goroutine and should return quickly.
func (b *Bus) SubscribeJobs(ctx context.Context, fn func(domain.JobEvent)) error {
	msgs, err := b.pubsub.Subscribe(ctx, TopicJobState)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", TopicJobState, err)
	}
	go func() {
		for msg := range msgs {
			var evt domain.JobEvent
			if err := json.Unmarshal(msg.Payload, &evt); err != nil {
				b.logger.Warn().Err(err).Str("message_id", msg.UUID).Msg("dropping malformed job event")
				msg.Ack()
				continue
			}
			fn(evt)
			msg.Ack()
		}
	}()
	return nil
}

// Close shuts the bus down; subscriber goroutines exit.
func (b *Bus) Close() error {
	return b.pubsub.Close()
}
