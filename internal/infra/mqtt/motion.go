package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"farmguard/internal/application"
	"farmguard/internal/domain"
)

// Broker is the subset of Client the motion source needs.
type Broker interface {
	Connect(ctx context.Context) error
	Subscribe(topic string, handler func(topic string, payload []byte)) error
	Unsubscribe(topic string) error
	Connected() bool
}

var errBrokerDisconnected = errors.New("mqtt broker connection lost")

// MotionSource turns messages on an MQTT topic (for example Frigate or a
// PIR bridge) into motion notifications.
type MotionSource struct {
	broker Broker
	topic  string
	logger *slog.Logger
}

func NewMotionSource(broker Broker, topic string, logger *slog.Logger) *MotionSource {
	return &MotionSource{broker: broker, topic: topic, logger: logger}
}

func (s *MotionSource) Connect(ctx context.Context) (application.MotionSubscription, error) {
	if err := s.broker.Connect(ctx); err != nil {
		return nil, err
	}

	sub := &subscription{
		broker: s.broker,
		topic:  s.topic,
		events: make(chan domain.MotionNotification, 64),
		logger: s.logger,
	}
	if err := s.broker.Subscribe(s.topic, sub.handle); err != nil {
		return nil, err
	}
	return sub, nil
}

type subscription struct {
	broker Broker
	topic  string
	events chan domain.MotionNotification
	logger *slog.Logger
}

type motionPayload struct {
	Camera string `json:"camera"`
	After  struct {
		Camera string `json:"camera"`
	} `json:"after"`
}

func (s *subscription) handle(topic string, payload []byte) {
	note := domain.MotionNotification{Topic: topic, Received: time.Now()}

	var p motionPayload
	if json.Unmarshal(payload, &p) == nil {
		note.Source = p.Camera
		if note.Source == "" {
			note.Source = p.After.Camera
		}
	}

	select {
	case s.events <- note:
	default:
		s.logger.Debug("motion queue full, dropping message", "topic", topic)
	}
}

// Pull waits up to timeout for the first message, then drains whatever else
// is queued up to limit.
// A dropped broker connection is reported as an error so the camera session
// reconnects instead of waiting on a topic that is no longer subscribed.
func (s *subscription) Pull(ctx context.Context, timeout time.Duration, limit int) ([]domain.MotionNotification, error) {
	if !s.broker.Connected() {
		return nil, errBrokerDisconnected
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var notes []domain.MotionNotification
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		if !s.broker.Connected() {
			return nil, errBrokerDisconnected
		}
		return nil, nil
	case note := <-s.events:
		notes = append(notes, note)
	}

	for len(notes) < limit {
		select {
		case note := <-s.events:
			notes = append(notes, note)
		default:
			return notes, nil
		}
	}
	return notes, nil
}

func (s *subscription) Close() error {
	if err := s.broker.Unsubscribe(s.topic); err != nil {
		return fmt.Errorf("closing motion subscription: %w", err)
	}
	return nil
}
