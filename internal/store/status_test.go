package store

import (
    "testing"

    "github.com/stretchr/testify/assert"
)

func TestStatusTerminal(t *testing.T) {
    for _, state := range []string{StateDone, StateFailed, StateCancelled} {
        assert.True(t, Status{State: state}.Terminal(), state)
    }
    for _, state := range []string{StateQueued, StateProcessing, ""} {
        assert.False(t, Status{State: state}.Terminal(), state)
    }
}

func TestKeyLayout(t *testing.T) {
    s := &RedisStatus{keyNS: "job"}
    assert.Equal(t, "job:abc:status", s.key("abc"))

    cs := &ChunkStore{}
    assert.Equal(t, "job:abc:chunk:3", cs.chunkKey("abc", 3))
    assert.Equal(t, "job:abc:chunks_done", cs.doneKey("abc"))
}
