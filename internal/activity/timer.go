package activity

import (
	"sync"
	"time"
)

// CancelToken stops a running countdown. Cancel is idempotent.
//
// Cancellation is asynchronous: a tick already in flight may still be
// delivered, so countdown consumers must additionally guard their handlers
// (the engines use a generation counter checked under the session lock).
type CancelToken struct {
	stop chan struct{}
	once sync.Once
}

// Cancel stops the countdown.
func (t *CancelToken) Cancel() {
	if t == nil {
		return
	}
	t.once.Do(func() { close(t.stop) })
}

// StartCountdown runs a countdown of duration d. onTick, if non-nil, fires
// every second with the remaining time; onExpire fires once when the
// countdown reaches zero. Both run on the countdown goroutine.
func StartCountdown(d time.Duration, onTick func(remaining time.Duration), onExpire func()) *CancelToken {
	token := &CancelToken{stop: make(chan struct{})}
	deadline := time.Now().Add(d)

	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		expire := time.NewTimer(d)
		defer expire.Stop()

		for {
			select {
			case <-token.stop:
				return
			case <-ticker.C:
				if onTick != nil {
					onTick(time.Until(deadline))
				}
			case <-expire.C:
				onExpire()
				return
			}
		}
	}()
	return token
}
