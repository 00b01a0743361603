package outbox

import (
	"errors"
	"fmt"
)

// ErrQueueFull reports transient back-pressure: the shard queue was full
// when Submit tried to enqueue a write.
var ErrQueueFull = errors.New("outbox queue full")

// ErrClosed reports a permanent condition: the outbox has been stopped and
// will accept no further writes.
var ErrClosed = errors.New("outbox closed")

// QueueFullError carries diagnostics while satisfying errors.Is(_, ErrQueueFull).
type QueueFullError struct {
	Shard    int // 0 ≤ Shard < cfg.Shards
	Length   int // queue length at timeout
	Capacity int // cap(queue)
}

func (e *QueueFullError) Error() string {
	return fmt.Sprintf("outbox shard %d full (len=%d cap=%d)", e.Shard, e.Length, e.Capacity)
}

func (e *QueueFullError) Is(target error) bool { return target == ErrQueueFull }

// irrecoverable is implemented by errors that must not be retried, such as a
// remote rejection of a malformed write. See gateway.RemoteError.
type irrecoverable interface {
	Irrecoverable() bool
}

func isIrrecoverable(err error) bool {
	var t irrecoverable
	if errors.As(err, &t) {
		return t.Irrecoverable()
	}
	return false
}
