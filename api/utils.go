package api

import (
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"repricelab/domain"
)

var (
	lastTimestamp int64
)

// nextTimestampRange reserves count strictly increasing timestamps and
// returns the first one.
func nextTimestampRange(count int) int64 {
	if count <= 0 {
		return 0
	}
	for {
		now := time.Now().UnixNano()
		last := atomic.LoadInt64(&lastTimestamp)
		if now <= last {
			now = last + 1
		}
		end := now + int64(count) - 1
		if atomic.CompareAndSwapInt64(&lastTimestamp, last, end) {
			return now
		}
	}
}

// finalizeCommands stamps commands with sequential timestamps and fills in
// missing idempotency keys. It returns the keys in command order.
func finalizeCommands(cmds []domain.Command) []string {
	keys := make([]string, len(cmds))
	start := nextTimestampRange(len(cmds))
	for i := range cmds {
		if cmds[i].IdempotencyKey == "" {
			cmds[i].IdempotencyKey = uuid.NewString()
		}
		cmds[i].ID = cmds[i].IdempotencyKey
		cmds[i].Timestamp = start + int64(i)
		keys[i] = cmds[i].IdempotencyKey
	}
	return keys
}
