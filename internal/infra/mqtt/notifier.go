package mqtt

import (
	"context"

	"farmguard/internal/domain"
)

type Publisher interface {
	Publish(topic string, payload any) error
}

// Notifier publishes confirmed detections as JSON.
type Notifier struct {
	publisher Publisher
	topic     string
}

func NewNotifier(publisher Publisher, topic string) *Notifier {
	return &Notifier{publisher: publisher, topic: topic}
}

func (n *Notifier) Notify(_ context.Context, event domain.DetectionEvent) error {
	return n.publisher.Publish(n.topic, event)
}
