package main

import (
	"context"

	gcppubsub "cloud.google.com/go/pubsub/v2"
)

type publisherFactory func(topic string) publisher

type publisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
}

type publishResult interface {
	Get(context.Context) (string, error)
}

// topicPublishers adapts the shared client; it already caches one publisher
// per topic.
func topicPublishers(client pubSubClient) publisherFactory {
	return func(topic string) publisher {
		if p := client.Publisher(topic); p != nil {
			return orderedPublisher{p}
		}
		return nil
	}
}

type orderedPublisher struct {
	*gcppubsub.Publisher
}

func (p orderedPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	return resumingResult{PublishResult: p.Publisher.Publish(ctx, msg), resume: func() { p.ResumePublish(msg.OrderingKey) }}
}

// resumingResult clears a failed ordering key. Until that happens Pub/Sub
// rejects every later message for the same aggregate.
type resumingResult struct {
	*gcppubsub.PublishResult
	resume func()
}

func (r resumingResult) Get(ctx context.Context) (string, error) {
	id, err := r.PublishResult.Get(ctx)
	if err != nil {
		r.resume()
	}
	return id, err
}
