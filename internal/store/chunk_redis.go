package store

import (
    "context"
    "fmt"
    "time"

    redis "github.com/redis/go-redis/v9"
)

// ChunkStore holds per-chunk AI results until the job finalizer collects them.
type ChunkStore struct {
    client *redis.Client
    ttl    time.Duration
}

func NewChunkStore(redisURL string, ttl time.Duration) (*ChunkStore, error) {
    opt, err := redis.ParseURL(redisURL)
    if err != nil { return nil, err }
    c := redis.NewClient(opt)
    if err := c.Ping(context.Background()).Err(); err != nil { return nil, err }
    if ttl <= 0 { ttl = 24 * time.Hour }
    return &ChunkStore{client: c, ttl: ttl}, nil
}

func (s *ChunkStore) Close() error { return s.client.Close() }

func (s *ChunkStore) chunkKey(jobID string, chunk int) string {
    return fmt.Sprintf("job:%s:chunk:%d", jobID, chunk)
}

func (s *ChunkStore) doneKey(jobID string) string {
    return fmt.Sprintf("job:%s:chunks_done", jobID)
}

// SaveChunk stores one chunk result and returns how many chunks are done so far.
func (s *ChunkStore) SaveChunk(ctx context.Context, jobID string, chunk int, text, provider, model string) (int64, error) {
    m := map[string]interface{}{"text": text}
    if provider != "" { m["provider"] = provider }
    if model != "" { m["model"] = model }
    key := s.chunkKey(jobID, chunk)
    pipe := s.client.TxPipeline()
    pipe.HSet(ctx, key, m)
    pipe.Expire(ctx, key, s.ttl)
    pipe.SAdd(ctx, s.doneKey(jobID), chunk)
    pipe.Expire(ctx, s.doneKey(jobID), s.ttl)
    card := pipe.SCard(ctx, s.doneKey(jobID))
    if _, err := pipe.Exec(ctx); err != nil { return 0, err }
    return card.Val(), nil
}

func (s *ChunkStore) GetChunk(ctx context.Context, jobID string, chunk int) (string, error) {
    res, err := s.client.HGet(ctx, s.chunkKey(jobID, chunk), "text").Result()
    if err == redis.Nil { return "", nil }
    return res, err
}

// DoneCount returns how many chunks have reported in.
func (s *ChunkStore) DoneCount(ctx context.Context, jobID string) (int64, error) {
    return s.client.SCard(ctx, s.doneKey(jobID)).Result()
}

// AggregateText concatenates chunk results in order, skipping empties.
func (s *ChunkStore) AggregateText(ctx context.Context, jobID string, total int) (string, error) {
    out := ""
    for i := 1; i <= total; i++ {
        t, err := s.GetChunk(ctx, jobID, i)
        if err != nil { return out, err }
        if t != "" {
            if out != "" { out += "\n\n" }
            out += t
        }
    }
    return out, nil
}

// Drop removes all chunk keys for a job after finalization.
func (s *ChunkStore) Drop(ctx context.Context, jobID string, total int) error {
    keys := make([]string, 0, total+1)
    for i := 1; i <= total; i++ {
        keys = append(keys, s.chunkKey(jobID, i))
    }
    keys = append(keys, s.doneKey(jobID))
    return s.client.Del(ctx, keys...).Err()
}
