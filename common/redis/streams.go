package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
)

// StreamPublisher appends JSON events to Redis streams.
type StreamPublisher struct {
	client *redis.Client
	maxLen int64
}

// NewStreamPublisher caps every stream at maxLen entries (approximate trimming); 0 disables trimming.
func NewStreamPublisher(client *redis.Client, maxLen int64) *StreamPublisher {
	return &StreamPublisher{client: client, maxLen: maxLen}
}

// PublishJSON adds {data, timestamp} to stream and returns the entry ID.
func (p *StreamPublisher) PublishJSON(ctx context.Context, stream string, data any) (string, error) {
	jsonBytes, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("marshal stream payload: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: stream,
		Values: map[string]interface{}{
			"data":      string(jsonBytes),
			"timestamp": fmt.Sprintf("%d", time.Now().Unix()),
		},
	}
	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
		args.Approx = true
	}
	return p.client.XAdd(ctx, args).Result()
}

// StreamMessage one stream entry.
type StreamMessage struct {
	Stream string
	ID     string
	Values map[string]interface{}
}

// StreamReader reads a stream through a consumer group.
type StreamReader struct {
	client   *redis.Client
	group    string
	consumer string
	count    int64
	block    time.Duration
}

// NewStreamReader count is the batch size per read.
func NewStreamReader(client *redis.Client, group, consumer string, count int64) *StreamReader {
	if count <= 0 {
		count = 10
	}
	return &StreamReader{client: client, group: group, consumer: consumer, count: count, block: 5 * time.Second}
}

// EnsureGroup creates the consumer group (and the stream) when missing.
func (r *StreamReader) EnsureGroup(ctx context.Context, stream string) error {
	err := r.client.XGroupCreateMkStream(ctx, stream, r.group, "$").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create consumer group %s: %w", r.group, err)
	}
	return nil
}

// Read blocks up to 5s for new entries; a timeout yields an empty batch.
func (r *StreamReader) Read(ctx context.Context, stream string) ([]StreamMessage, error) {
	streams, err := r.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    r.group,
		Consumer: r.consumer,
		Streams:  []string{stream, ">"},
		Count:    r.count,
		Block:    r.block,
	}).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}

	var messages []StreamMessage
	for _, s := range streams {
		for _, msg := range s.Messages {
			messages = append(messages, StreamMessage{Stream: s.Stream, ID: msg.ID, Values: msg.Values})
		}
	}
	return messages, nil
}

// Ack acknowledges processed entries.
func (r *StreamReader) Ack(ctx context.Context, stream string, ids ...string) error {
	return r.client.XAck(ctx, stream, r.group, ids...).Err()
}
