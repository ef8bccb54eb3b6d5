package publisher

import (
	"context"
	"fmt"
)

// TopicPrefix is prepended to the instrument name to form the publish topic.
const TopicPrefix = "agg-ticker."

// Publisher delivers an encoded payload to a topic on the message bus.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

// Topic returns the topic aggregated tickers of the instrument are published on.
func Topic(instrumentName string) string {
	return TopicPrefix + instrumentName
}

// PublishError reports a failed delivery.
type PublishError struct {
	Topic string
	Err   error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish to %s: %v", e.Topic, e.Err)
}

func (e *PublishError) Unwrap() error { return e.Err }
