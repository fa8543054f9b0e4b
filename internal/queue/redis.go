package queue

import (
    "context"
    "fmt"
    "strings"
    "time"

    redis "github.com/redis/go-redis/v9"
)

const (
    cancelSetKey   = "jobs:cancelled:set"
    idemDonePrefix = "idem:done:"
    moverBatch     = 100
)

// RedisQueue carries tool jobs and AI chunk tasks over a single Redis
// stream with a consumer group. Delayed retries park in a ZSET until due;
// a background mover feeds them back into the stream.
type RedisQueue struct {
    client *redis.Client
    stream string
    group  string

    delayedKey string
    dlqStream  string

    pollInterval time.Duration
    stop         chan struct{}
}

// NewRedisQueue connects, creates the stream and consumer group if needed,
// and starts the delayed-task mover.
func NewRedisQueue(redisURL, stream, group string, poll time.Duration) (*RedisQueue, error) {
    opt, err := redis.ParseURL(redisURL)
    if err != nil {
        return nil, fmt.Errorf("parse redis url: %w", err)
    }
    c := redis.NewClient(opt)

    ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
    defer cancel()
    if err := c.Ping(ctx).Err(); err != nil {
        return nil, fmt.Errorf("redis ping: %w", err)
    }
    if err := c.XGroupCreateMkStream(ctx, stream, group, "$").Err(); err != nil && !isBusyGroupErr(err) {
        return nil, fmt.Errorf("xgroup create: %w", err)
    }

    if poll <= 0 { poll = 200 * time.Millisecond }
    q := &RedisQueue{
        client:       c,
        stream:       stream,
        group:        group,
        delayedKey:   stream + ":delayed",
        dlqStream:    stream + ":dlq",
        pollInterval: poll,
        stop:         make(chan struct{}),
    }
    go q.runMover()
    return q, nil
}

// isBusyGroupErr matches the BUSYGROUP reply Redis sends when the consumer
// group already exists. go-redis exposes no typed error for it.
func isBusyGroupErr(err error) bool {
    if err == nil { return false }
    return strings.Contains(strings.ToUpper(err.Error()), "BUSYGROUP")
}

func (q *RedisQueue) Close() error {
    close(q.stop)
    return q.client.Close()
}

// Ping checks redis connectivity.
func (q *RedisQueue) Ping(ctx context.Context) error { return q.client.Ping(ctx).Err() }

// Client exposes the underlying connection for stores sharing it.
func (q *RedisQueue) Client() *redis.Client { return q.client }

// Enqueue appends a task to the stream as a {data: <json>} entry.
func (q *RedisQueue) Enqueue(ctx context.Context, payload []byte) error {
    return q.client.XAdd(ctx, &redis.XAddArgs{
        Stream: q.stream,
        Values: map[string]any{"data": string(payload)},
    }).Err()
}

// EnqueueDelayed parks a task in the delayed ZSET, scored by execution time.
func (q *RedisQueue) EnqueueDelayed(ctx context.Context, payload []byte, executeAt time.Time) error {
    z := redis.Z{Score: float64(executeAt.Unix()), Member: string(payload)}
    return q.client.ZAdd(ctx, q.delayedKey, z).Err()
}

// Dequeue blocks up to timeout for the next message in the consumer group.
// An empty ID with nil payload means nothing was ready. The caller must Ack
// after processing; unacked messages stay in the pending list.
func (q *RedisQueue) Dequeue(ctx context.Context, consumer string, timeout time.Duration) (string, []byte, error) {
    res, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
        Group:    q.group,
        Consumer: consumer,
        Streams:  []string{q.stream, ">"},
        Count:    1,
        Block:    timeout,
    }).Result()
    if err != nil {
        if err == redis.Nil { return "", nil, nil }
        return "", nil, err
    }
    if len(res) == 0 || len(res[0].Messages) == 0 { return "", nil, nil }
    msg := res[0].Messages[0]
    return msg.ID, payloadOf(msg), nil
}

func payloadOf(msg redis.XMessage) []byte {
    switch v := msg.Values["data"].(type) {
    case string:
        return []byte(v)
    case []byte:
        return v
    }
    return nil
}

// Ack marks a message as processed.
func (q *RedisQueue) Ack(ctx context.Context, msgID string) error {
    if msgID == "" { return nil }
    return q.client.XAck(ctx, q.stream, q.group, msgID).Err()
}

// CancelJob records a cancellation. Workers check the set before and during
// processing; late results for cancelled jobs are discarded.
func (q *RedisQueue) CancelJob(ctx context.Context, jobID string) error {
    return q.client.SAdd(ctx, cancelSetKey, jobID).Err()
}

func (q *RedisQueue) IsCancelled(ctx context.Context, jobID string) (bool, error) {
    return q.client.SIsMember(ctx, cancelSetKey, jobID).Result()
}

// AddDLQ moves an exhausted task to the dead-letter stream with the failure reason.
func (q *RedisQueue) AddDLQ(ctx context.Context, payload []byte, reason string) error {
    return q.client.XAdd(ctx, &redis.XAddArgs{
        Stream: q.dlqStream,
        Values: map[string]any{"data": string(payload), "reason": reason},
    }).Err()
}

// IsIdemDone reports whether a task with this idempotency key already completed.
func (q *RedisQueue) IsIdemDone(ctx context.Context, key string) (bool, error) {
    if key == "" { return false, nil }
    exists, err := q.client.Exists(ctx, idemDonePrefix+key).Result()
    return exists == 1, err
}

func (q *RedisQueue) MarkIdemDone(ctx context.Context, key string, ttl time.Duration) error {
    if key == "" { return nil }
    return q.client.Set(ctx, idemDonePrefix+key, 1, ttl).Err()
}

func (q *RedisQueue) runMover() {
    ticker := time.NewTicker(q.pollInterval)
    defer ticker.Stop()
    for {
        select {
        case <-q.stop:
            return
        case <-ticker.C:
            q.moveDue()
        }
    }
}

// moveDue shifts due delayed tasks back into the stream, at most moverBatch
// per tick. XAdd and ZRem run in one transaction so a task is never in both
// places or neither.
func (q *RedisQueue) moveDue() {
    ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
    defer cancel()

    due, err := q.client.ZRangeByScoreWithScores(ctx, q.delayedKey, &redis.ZRangeBy{
        Min: "-inf", Max: fmt.Sprintf("%d", time.Now().Unix()), Offset: 0, Count: moverBatch,
    }).Result()
    if err != nil || len(due) == 0 { return }

    pipe := q.client.TxPipeline()
    for _, z := range due {
        s, _ := z.Member.(string)
        pipe.XAdd(ctx, &redis.XAddArgs{Stream: q.stream, Values: map[string]any{"data": s}})
        pipe.ZRem(ctx, q.delayedKey, s)
    }
    _, _ = pipe.Exec(ctx)
}

// Depths returns stream, delayed, and DLQ lengths for the queue gauges.
func (q *RedisQueue) Depths(ctx context.Context) (int64, int64, int64, error) {
    pipe := q.client.Pipeline()
    xlen := pipe.XLen(ctx, q.stream)
    zcard := pipe.ZCard(ctx, q.delayedKey)
    dlq := pipe.XLen(ctx, q.dlqStream)
    if _, err := pipe.Exec(ctx); err != nil {
        return 0, 0, 0, err
    }
    return xlen.Val(), zcard.Val(), dlq.Val(), nil
}
