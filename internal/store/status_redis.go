package store

import (
    "context"
    "encoding/json"
    "fmt"
    "time"

    redis "github.com/redis/go-redis/v9"
)

// Job states as reported to API clients.
const (
    StateQueued     = "queued"
    StateProcessing = "processing"
    StateDone       = "done"
    StateFailed     = "failed"
    StateCancelled  = "cancelled"
)

type Status struct {
    State       string                 `json:"state"`
    Tool        string                 `json:"tool"`
    Progress    int                    `json:"progress"`
    Message     string                 `json:"message"`
    ResultPath  string                 `json:"result_path,omitempty"`
    ResultName  string                 `json:"result_name,omitempty"`
    ResultMIME  string                 `json:"result_mime,omitempty"`
    Error       string                 `json:"error,omitempty"`
    TotalChunks int                    `json:"total_chunks,omitempty"`
    Start       *time.Time             `json:"start_time,omitempty"`
    End         *time.Time             `json:"end_time,omitempty"`
    Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// Terminal reports whether the job can no longer change state.
func (s Status) Terminal() bool {
    return s.State == StateDone || s.State == StateFailed || s.State == StateCancelled
}

type RedisStatus struct {
    client *redis.Client
    keyNS  string
    ttl    time.Duration
}

func NewRedisStatus(redisURL string, ttl time.Duration) (*RedisStatus, error) {
    opt, err := redis.ParseURL(redisURL)
    if err != nil { return nil, err }
    c := redis.NewClient(opt)
    if err := c.Ping(context.Background()).Err(); err != nil { return nil, err }
    if ttl <= 0 { ttl = 24 * time.Hour }
    return &RedisStatus{client: c, keyNS: "job", ttl: ttl}, nil
}

func (s *RedisStatus) key(jobID string) string { return fmt.Sprintf("%s:%s:status", s.keyNS, jobID) }

func (s *RedisStatus) Set(ctx context.Context, jobID string, st Status) error {
    m := map[string]interface{}{
        "state":    st.State,
        "tool":     st.Tool,
        "progress": st.Progress,
        "message":  st.Message,
    }
    if st.ResultPath != "" { m["result_path"] = st.ResultPath }
    if st.ResultName != "" { m["result_name"] = st.ResultName }
    if st.ResultMIME != "" { m["result_mime"] = st.ResultMIME }
    if st.Error != "" { m["error"] = st.Error }
    if st.TotalChunks > 0 { m["total_chunks"] = st.TotalChunks }
    if st.Start != nil { m["start"] = st.Start.Format(time.RFC3339Nano) }
    if st.End != nil { m["end"] = st.End.Format(time.RFC3339Nano) }
    if st.Metadata != nil {
        b, _ := json.Marshal(st.Metadata)
        m["metadata"] = string(b)
    }
    pipe := s.client.TxPipeline()
    pipe.HSet(ctx, s.key(jobID), m)
    pipe.Expire(ctx, s.key(jobID), s.ttl)
    _, err := pipe.Exec(ctx)
    return err
}

// Update applies partial changes without touching unrelated fields.
func (s *RedisStatus) Update(ctx context.Context, jobID string, fields map[string]interface{}) error {
    if len(fields) == 0 { return nil }
    return s.client.HSet(ctx, s.key(jobID), fields).Err()
}

func (s *RedisStatus) Get(ctx context.Context, jobID string) (Status, bool, error) {
    res, err := s.client.HGetAll(ctx, s.key(jobID)).Result()
    if err != nil { return Status{}, false, err }
    if len(res) == 0 { return Status{}, false, nil }
    st := Status{}
    st.State = res["state"]
    st.Tool = res["tool"]
    st.Message = res["message"]
    st.ResultPath = res["result_path"]
    st.ResultName = res["result_name"]
    st.ResultMIME = res["result_mime"]
    st.Error = res["error"]
    if p, ok := res["progress"]; ok && p != "" {
        // ignore parse error; default 0
        var pi int
        fmt.Sscan(p, &pi)
        st.Progress = pi
    }
    if v := res["total_chunks"]; v != "" {
        var n int
        fmt.Sscan(v, &n)
        st.TotalChunks = n
    }
    if v := res["start"]; v != "" {
        if t, err := time.Parse(time.RFC3339Nano, v); err == nil { st.Start = &t }
    }
    if v := res["end"]; v != "" {
        if t, err := time.Parse(time.RFC3339Nano, v); err == nil { st.End = &t }
    }
    if v := res["metadata"]; v != "" {
        _ = json.Unmarshal([]byte(v), &st.Metadata)
    }
    return st, true, nil
}

func (s *RedisStatus) Close() error { return s.client.Close() }

// Client returns the underlying Redis client
func (s *RedisStatus) Client() *redis.Client { return s.client }
