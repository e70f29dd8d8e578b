package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"dugtong/common/mqtt"
	commonredis "dugtong/common/redis"
	"dugtong/internal/domain"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// AlertSource delivers alerts published by Broadcaster implementations.
type AlertSource interface {
	// Watch calls fn for every alert until ctx is done.
	Watch(ctx context.Context, fn func(*domain.Alert)) error
}

// StreamAlertSource 告警流消费者 (Redis consumer group).
type StreamAlertSource struct {
	reader *commonredis.StreamReader
	stream string
	logger *zap.Logger
}

func NewStreamAlertSource(reader *commonredis.StreamReader, stream string, logger *zap.Logger) *StreamAlertSource {
	if stream == "" {
		stream = AlertStream
	}
	return &StreamAlertSource{reader: reader, stream: stream, logger: logger}
}

// 确保实现了接口
var _ AlertSource = (*StreamAlertSource)(nil)

// Watch reads with exponential backoff on errors. Entries that fail to decode are
// left unacknowledged.
func (s *StreamAlertSource) Watch(ctx context.Context, fn func(*domain.Alert)) error {
	if err := s.reader.EnsureGroup(ctx, s.stream); err != nil {
		return err
	}
	s.logger.Info("Alert stream consumer started", zap.String("stream", s.stream))

	bo := backoff.WithContext(consumerBackOff(), ctx)
	for {
		if ctx.Err() != nil {
			return nil
		}
		if err := s.consume(ctx, fn); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			wait := bo.NextBackOff()
			if wait == backoff.Stop {
				return nil
			}
			s.logger.Error("Failed to consume alerts", zap.Error(err), zap.Duration("backoff", wait))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(wait):
			}
			continue
		}
		bo.Reset()
	}
}

// consumerBackOff read-error delays: 1s doubling to 30s, never giving up.
func consumerBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.MaxInterval = 30 * time.Second
	b.Multiplier = 2
	b.RandomizationFactor = 0.1
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

func (s *StreamAlertSource) consume(ctx context.Context, fn func(*domain.Alert)) error {
	messages, err := s.reader.Read(ctx, s.stream)
	if err != nil {
		return fmt.Errorf("read alert stream: %w", err)
	}
	for _, msg := range messages {
		a, err := DecodeStreamAlert(msg.Values)
		if err != nil {
			s.logger.Warn("Skipping malformed alert entry", zap.String("message_id", msg.ID), zap.Error(err))
			continue
		}
		fn(a)
		if err := s.reader.Ack(ctx, s.stream, msg.ID); err != nil {
			s.logger.Warn("Failed to ack alert entry", zap.String("message_id", msg.ID), zap.Error(err))
		}
	}
	return nil
}

// DecodeStreamAlert reads the JSON "data" field written by StreamBroadcaster.
func DecodeStreamAlert(values map[string]interface{}) (*domain.Alert, error) {
	var raw []byte
	switch v := values["data"].(type) {
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return nil, fmt.Errorf("missing data field")
	}
	var a domain.Alert
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, fmt.Errorf("decode alert: %w", err)
	}
	if a.ID == "" {
		return nil, fmt.Errorf("alert without id")
	}
	return &a, nil
}

// MQTTAlertSource subscribes to the alert topic.
type MQTTAlertSource struct {
	client *mqtt.Client
	topic  string
}

func NewMQTTAlertSource(client *mqtt.Client, topic string) *MQTTAlertSource {
	if topic == "" {
		topic = AlertTopic
	}
	return &MQTTAlertSource{client: client, topic: topic}
}

var _ AlertSource = (*MQTTAlertSource)(nil)

func (s *MQTTAlertSource) Watch(ctx context.Context, fn func(*domain.Alert)) error {
	err := s.client.Subscribe(s.topic, s.client.QoS(), func(_ string, payload []byte) error {
		var a domain.Alert
		if err := json.Unmarshal(payload, &a); err != nil {
			return fmt.Errorf("decode alert: %w", err)
		}
		fn(&a)
		return nil
	})
	if err != nil {
		return err
	}
	<-ctx.Done()
	return nil
}
