package buffer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sentineld/sentineld/pkg/config"
	"github.com/sentineld/sentineld/pkg/metrics"
)

// errGroupExists names the case where XGROUP CREATE finds the group
// already there. No function returns it: ensureGroup recognizes Redis's
// BUSYGROUP reply via isBusyGroupErr and treats it as success.
var errGroupExists = errors.New("consumer group already exists")

// Client is the event buffer: a thin wrapper over a Redis client that
// knows sentineld's four streams and their per-stream configuration.
type Client struct {
	rdb      *redis.Client
	streams  map[StreamName]*config.StreamConfig
	consumer *config.ConsumerConfig
}

// New connects to Redis and ensures each stream's consumer group exists.
func New(ctx context.Context, redisCfg *config.RedisConfig, cfg *config.Config) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     redisCfg.Addr,
		Password: redisCfg.Password,
		DB:       redisCfg.DB,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	c := &Client{
		rdb: rdb,
		streams: map[StreamName]*config.StreamConfig{
			StreamEvents:      cfg.Streams.Events,
			StreamAlerts:      cfg.Streams.Alerts,
			StreamCorrelation: cfg.Streams.Correlation,
			StreamDeadLetter:  cfg.Streams.DeadLetter,
		},
		consumer: cfg.Consumer,
	}

	for name, sc := range c.streams {
		if err := c.ensureGroup(ctx, name, sc.ConsumerGroup); err != nil {
			return nil, fmt.Errorf("failed to create consumer group for %s: %w", name, err)
		}
	}

	return c, nil
}

// NewFromRedisClient wraps an already-constructed *redis.Client (used by tests).
func NewFromRedisClient(rdb *redis.Client, cfg *config.Config) *Client {
	return &Client{
		rdb: rdb,
		streams: map[StreamName]*config.StreamConfig{
			StreamEvents:      cfg.Streams.Events,
			StreamAlerts:      cfg.Streams.Alerts,
			StreamCorrelation: cfg.Streams.Correlation,
			StreamDeadLetter:  cfg.Streams.DeadLetter,
		},
		consumer: cfg.Consumer,
	}
}

// Close closes the underlying Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// ClaimInterval returns how often a crash-recovery loop should call
// ClaimPending, per consumer.claim_every_ms.
func (c *Client) ClaimInterval() time.Duration {
	return time.Duration(c.consumer.ClaimEveryMS) * time.Millisecond
}

// WithGroup returns a client sharing this one's connection but reading
// stream under a different consumer group, and ensures that group
// exists. Use it when a second component must see every entry on a
// stream independently of the stream's primary consumer group — e.g.
// the historical indexer reading the events stream alongside the
// correlation engine, each needing its own copy of every event rather
// than splitting delivery between them.
func (c *Client) WithGroup(ctx context.Context, stream StreamName, group string) (*Client, error) {
	streams := make(map[StreamName]*config.StreamConfig, len(c.streams))
	for name, sc := range c.streams {
		streams[name] = sc
	}
	overridden := *streams[stream]
	overridden.ConsumerGroup = group
	streams[stream] = &overridden

	clone := &Client{rdb: c.rdb, streams: streams, consumer: c.consumer}
	if err := clone.ensureGroup(ctx, stream, group); err != nil {
		return nil, fmt.Errorf("failed to create consumer group %s for %s: %w", group, stream, err)
	}
	return clone, nil
}

func (c *Client) ensureGroup(ctx context.Context, name StreamName, group string) error {
	err := c.rdb.XGroupCreateMkStream(ctx, string(name), group, "0").Err()
	if err != nil && !isBusyGroupErr(err) {
		return err
	}
	return nil
}

func isBusyGroupErr(err error) bool {
	return err != nil && len(err.Error()) >= 9 && err.Error()[:9] == "BUSYGROUP"
}

// Publish appends a single entry to stream, applying the stream's
// configured backpressure policy.
func (c *Client) Publish(ctx context.Context, stream StreamName, fields map[string]any) (PublishResult, error) {
	sc, ok := c.streams[stream]
	if !ok {
		return PublishResult{}, fmt.Errorf("unknown stream %q", stream)
	}

	args := &redis.XAddArgs{
		Stream: string(stream),
		Values: fields,
	}

	switch sc.Backpressure {
	case config.BackpressureDropOldest:
		args.MaxLen = sc.MaxLen
		args.Approx = true
	case config.BackpressureRejectNew:
		length, err := c.rdb.XLen(ctx, string(stream)).Result()
		if err != nil {
			return PublishResult{}, fmt.Errorf("failed to check stream length: %w", err)
		}
		if length >= sc.MaxLen {
			slog.Warn("publish rejected by backpressure policy", "stream", stream, "length", length, "maxlen", sc.MaxLen)
			metrics.EventsPublishedTotal.WithLabelValues(string(stream), "rejected").Inc()
			metrics.BackpressureActive.WithLabelValues(string(stream)).Set(1)
			return PublishResult{Dropped: true}, nil
		}
		metrics.BackpressureActive.WithLabelValues(string(stream)).Set(0)
	}

	id, err := c.rdb.XAdd(ctx, args).Result()
	if err != nil {
		metrics.EventsPublishedTotal.WithLabelValues(string(stream), "error").Inc()
		return PublishResult{}, fmt.Errorf("failed to publish to %s: %w", stream, err)
	}
	metrics.EventsPublishedTotal.WithLabelValues(string(stream), "ok").Inc()

	return PublishResult{ID: id}, nil
}

// PublishBatch appends every entry in batch to stream atomically via a
// Redis transaction pipeline: either every XAdd in the batch lands, or
// (on a pipeline-level failure) none of the results are trusted,
// rather than the partial-batch state a plain per-item Publish loop can
// leave behind if it fails partway through.
func (c *Client) PublishBatch(ctx context.Context, stream StreamName, batch []map[string]any) ([]PublishResult, error) {
	sc, ok := c.streams[stream]
	if !ok {
		return nil, fmt.Errorf("unknown stream %q", stream)
	}
	if len(batch) == 0 {
		return nil, nil
	}

	if sc.Backpressure == config.BackpressureRejectNew {
		length, err := c.rdb.XLen(ctx, string(stream)).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to check stream length: %w", err)
		}
		if length+int64(len(batch)) > sc.MaxLen {
			slog.Warn("batch publish rejected by backpressure policy", "stream", stream, "length", length, "batch", len(batch), "maxlen", sc.MaxLen)
			metrics.EventsPublishedTotal.WithLabelValues(string(stream), "rejected").Add(float64(len(batch)))
			metrics.BackpressureActive.WithLabelValues(string(stream)).Set(1)
			results := make([]PublishResult, len(batch))
			for i := range results {
				results[i] = PublishResult{Dropped: true}
			}
			return results, nil
		}
		metrics.BackpressureActive.WithLabelValues(string(stream)).Set(0)
	}

	cmds, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, fields := range batch {
			args := &redis.XAddArgs{Stream: string(stream), Values: fields}
			if sc.Backpressure == config.BackpressureDropOldest {
				args.MaxLen = sc.MaxLen
				args.Approx = true
			}
			pipe.XAdd(ctx, args)
		}
		return nil
	})
	if err != nil {
		metrics.EventsPublishedTotal.WithLabelValues(string(stream), "error").Add(float64(len(batch)))
		return nil, fmt.Errorf("batch publish to %s failed: %w", stream, err)
	}

	results := make([]PublishResult, len(batch))
	for i, cmd := range cmds {
		id, cmdErr := cmd.(*redis.StringCmd).Result()
		if cmdErr != nil {
			return results, fmt.Errorf("batch publish failed at index %d: %w", i, cmdErr)
		}
		results[i] = PublishResult{ID: id}
	}
	metrics.EventsPublishedTotal.WithLabelValues(string(stream), "ok").Add(float64(len(batch)))

	return results, nil
}

// Consume reads up to consumer.batch_size new entries for the given
// consumer name, blocking up to consumer.block_ms for entries to arrive.
func (c *Client) Consume(ctx context.Context, stream StreamName, consumerName string) ([]Message, error) {
	sc := c.streams[stream]

	res, err := c.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    sc.ConsumerGroup,
		Consumer: consumerName,
		Streams:  []string{string(stream), ">"},
		Count:    int64(c.consumer.BatchSize),
		Block:    time.Duration(c.consumer.BlockMS) * time.Millisecond,
	}).Result()

	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read from %s: %w", stream, err)
	}

	var messages []Message
	for _, s := range res {
		for _, entry := range s.Messages {
			messages = append(messages, toMessage(stream, entry))
		}
	}
	return messages, nil
}

// Ack acknowledges a processed entry, removing it from the PEL.
func (c *Client) Ack(ctx context.Context, stream StreamName, entryID string) error {
	sc := c.streams[stream]
	if err := c.rdb.XAck(ctx, string(stream), sc.ConsumerGroup, entryID).Err(); err != nil {
		return fmt.Errorf("failed to ack %s/%s: %w", stream, entryID, err)
	}
	return nil
}

// ClaimPending reclaims entries that have been idle in the PEL for longer
// than consumer.claim_idle_ms, handing them to consumerName as part of
// the crash-recovery path.
func (c *Client) ClaimPending(ctx context.Context, stream StreamName, consumerName string) ([]Message, error) {
	sc := c.streams[stream]

	entries, _, err := c.rdb.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   string(stream),
		Group:    sc.ConsumerGroup,
		Consumer: consumerName,
		MinIdle:  time.Duration(c.consumer.ClaimIdleMS) * time.Millisecond,
		Start:    "0",
		Count:    int64(c.consumer.BatchSize),
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to claim pending on %s: %w", stream, err)
	}

	messages := make([]Message, 0, len(entries))
	for _, entry := range entries {
		messages = append(messages, toMessage(stream, entry))
	}
	return messages, nil
}

// DeadLetter moves a message to the dead-letter stream and acks the
// original entry, preserving its payload, the stream and entry ID it came
// from, and the failure reason for operator triage.
func (c *Client) DeadLetter(ctx context.Context, msg Message, reason string) error {
	fields := make(map[string]any, len(msg.Fields)+3)
	for k, v := range msg.Fields {
		fields[k] = v
	}
	fields["dlq_source_stream"] = string(msg.Stream)
	fields["dlq_source_id"] = msg.ID
	fields["dlq_reason"] = reason

	if _, err := c.Publish(ctx, StreamDeadLetter, fields); err != nil {
		return fmt.Errorf("failed to publish to dead letter stream: %w", err)
	}
	metrics.DeadLettersTotal.WithLabelValues(string(msg.Stream)).Inc()

	return c.Ack(ctx, msg.Stream, msg.ID)
}

// Info returns XLEN and pending-count for a stream, used by pkg/metrics.
func (c *Client) Info(ctx context.Context, stream StreamName) (StreamInfo, error) {
	sc := c.streams[stream]

	length, err := c.rdb.XLen(ctx, string(stream)).Result()
	if err != nil {
		return StreamInfo{}, fmt.Errorf("failed to get length of %s: %w", stream, err)
	}

	pending, err := c.rdb.XPending(ctx, string(stream), sc.ConsumerGroup).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return StreamInfo{}, fmt.Errorf("failed to get pending info for %s: %w", stream, err)
	}

	info := StreamInfo{Length: length}
	if pending != nil {
		info.PendingSize = pending.Count
	}
	return info, nil
}

// PollStats refreshes the lag and pending-entries gauges for every known
// stream. Intended to be called on a ticker alongside the metrics server.
func (c *Client) PollStats(ctx context.Context) {
	for name, sc := range c.streams {
		info, err := c.Info(ctx, name)
		if err != nil {
			slog.Error("failed to poll stream stats", "stream", name, "error", err)
			continue
		}
		metrics.StreamPendingTotal.WithLabelValues(string(name)).Set(float64(info.PendingSize))

		groups, err := c.rdb.XInfoGroups(ctx, string(name)).Result()
		if err != nil {
			slog.Error("failed to poll consumer group stats", "stream", name, "error", err)
			continue
		}
		for _, g := range groups {
			if g.Name == sc.ConsumerGroup && g.Lag >= 0 {
				metrics.StreamLag.WithLabelValues(string(name)).Set(float64(g.Lag))
			}
		}
	}
}

func toMessage(stream StreamName, entry redis.XMessage) Message {
	attempt := 1
	if v, ok := entry.Values["dlq_attempt"]; ok {
		if s, ok := v.(string); ok {
			if n, err := strconv.Atoi(s); err == nil {
				attempt = n
			}
		}
	}
	return Message{
		ID:      entry.ID,
		Stream:  stream,
		Fields:  entry.Values,
		Attempt: attempt,
	}
}
