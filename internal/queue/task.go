package queue

import (
    "encoding/json"
    "fmt"
)

// Task kinds carried on the stream.
const (
    KindTool    = "tool"
    KindAIChunk = "ai_chunk"
)

// TaskInput points at an uploaded file inside the job work dir.
type TaskInput struct {
    Path         string `json:"path"`
    OriginalName string `json:"original_name"`
}

// Task is the unit of work a dispatcher consumer picks up.
// A tool job is a single task; an AI job fans out into one task per text chunk.
type Task struct {
    JobID       string            `json:"job_id"`
    Kind        string            `json:"kind"`
    Tool        string            `json:"tool"`
    Inputs      []TaskInput       `json:"inputs,omitempty"`
    Options     map[string]string `json:"options,omitempty"`
    WorkDir     string            `json:"work_dir"`
    Attempt     int               `json:"attempt"`
    ChunkID     int               `json:"chunk_id,omitempty"`
    TotalChunks int               `json:"total_chunks,omitempty"`
    Text        string            `json:"text,omitempty"`
}

// IdemKey identifies one attempt-independent unit of work, so a re-delivered
// message is not processed twice.
func (t Task) IdemKey() string {
    if t.Kind == KindAIChunk {
        return fmt.Sprintf("%s:chunk:%d", t.JobID, t.ChunkID)
    }
    return t.JobID
}

// Encode serializes the task for the stream.
func (t Task) Encode() ([]byte, error) {
    return json.Marshal(t)
}

// DecodeTask parses a stream payload.
func DecodeTask(data []byte) (Task, error) {
    var t Task
    if err := json.Unmarshal(data, &t); err != nil {
        return Task{}, fmt.Errorf("decode task: %w", err)
    }
    if t.JobID == "" {
        return Task{}, fmt.Errorf("decode task: missing job_id")
    }
    return t, nil
}
