// Package outbox provides a sharded write queue for best-effort remote
// persistence. Writes are FIFO *per key* while different keys may be delivered
// in parallel. Every accepted write gets a record whose pending/failed state
// is queryable, so the presentation layer can show unsynchronized work instead
// of silently losing it.
//
// Contract: callers must not invoke Submit concurrently for the *same* key.
// FIFO ordering relies on that external serialisation.
package outbox

import (
	"context"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// WriteState tracks a submitted write through its lifecycle.
type WriteState int

const (
	StatePending WriteState = iota
	StateSucceeded
	StateFailed
)

func (s WriteState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// WriteRecord describes one submitted write.
type WriteRecord struct {
	ID         string
	EventType  string
	Key        string
	State      WriteState
	Attempts   int
	LastError  string
	EnqueuedAt time.Time
}

// Status is a point-in-time summary of the outbox.
type Status struct {
	Pending int
	Failed  []WriteRecord
}

type queuedWrite struct {
	ctx context.Context
	job Job
	rec *WriteRecord // nil for internal barrier jobs
}

// Outbox executes Jobs on worker goroutines partitioned by a stable hash of
// the key (e.g. "note|q123"). FIFO ordering is preserved within a shard.
type Outbox struct {
	cfg    Config
	queues []chan queuedWrite
	log    zerolog.Logger

	done   chan struct{} // closed in Stop()
	closed uint32        // 0 → running, 1 → closed

	wg sync.WaitGroup

	mu      sync.Mutex
	records map[string]*WriteRecord
	settled []string // settled record ids, oldest first, capped at HistoryLimit
}

// New constructs the outbox and starts its shard workers.
func New(cfg Config, log zerolog.Logger) *Outbox {
	cfg.applyDefaults()

	o := &Outbox{
		cfg:     cfg,
		queues:  make([]chan queuedWrite, cfg.Shards),
		log:     log.With().Str("component", "outbox").Logger(),
		done:    make(chan struct{}),
		records: make(map[string]*WriteRecord),
	}
	for i := 0; i < cfg.Shards; i++ {
		ch := make(chan queuedWrite, cfg.QueueSize)
		o.queues[i] = ch
		o.wg.Add(1)
		go o.runWorker(i, ch)
	}
	return o
}

// Submit enqueues a write for the shard derived from key and returns the id of
// its record.
//
//   - Returns ErrClosed if the outbox is stopped.
//   - Returns ErrQueueFull (wrapped in *QueueFullError) if the shard is full
//     after EnqueueTimeout elapses.
//   - Returns ctx.Err() if the caller-provided context is cancelled first.
func (o *Outbox) Submit(ctx context.Context, key, eventType string, job Job) (string, error) {
	rec := &WriteRecord{
		ID:         uuid.NewString(),
		EventType:  eventType,
		Key:        key,
		State:      StatePending,
		EnqueuedAt: time.Now(),
	}
	// Register before enqueueing: a fast worker may settle the write before
	// Submit returns, and settle must find the record to trim it later.
	o.mu.Lock()
	o.records[rec.ID] = rec
	o.mu.Unlock()
	if err := o.enqueue(ctx, key, queuedWrite{ctx: ctx, job: job, rec: rec}); err != nil {
		o.mu.Lock()
		delete(o.records, rec.ID)
		o.mu.Unlock()
		return "", err
	}
	return rec.ID, nil
}

// Barrier enqueues a no-op write on the shard for key and waits until it runs,
// ensuring all previously submitted writes for that key have completed.
func (o *Outbox) Barrier(ctx context.Context, key string) error {
	done := make(chan struct{})
	j := JobFunc(func(context.Context) error {
		close(done)
		return nil
	})
	if err := o.enqueue(ctx, key, queuedWrite{ctx: ctx, job: j}); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

// Flush barriers every shard, draining all writes submitted before the call.
func (o *Outbox) Flush(ctx context.Context) error {
	var wg sync.WaitGroup
	errs := make([]error, len(o.queues))
	for i := range o.queues {
		wg.Add(1)
		go func(shard int) {
			defer wg.Done()
			done := make(chan struct{})
			j := JobFunc(func(context.Context) error {
				close(done)
				return nil
			})
			if err := o.enqueueShard(ctx, shard, queuedWrite{ctx: ctx, job: j}); err != nil {
				errs[shard] = err
				return
			}
			select {
			case <-ctx.Done():
				errs[shard] = ctx.Err()
			case <-done:
			}
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// Status reports the number of pending writes and a copy of every failed
// write record still retained.
func (o *Outbox) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	var st Status
	for _, rec := range o.records {
		switch rec.State {
		case StatePending:
			st.Pending++
		case StateFailed:
			st.Failed = append(st.Failed, *rec)
		}
	}
	return st
}

// Record returns a copy of the write record with the given id.
func (o *Outbox) Record(id string) (WriteRecord, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	rec, ok := o.records[id]
	if !ok {
		return WriteRecord{}, false
	}
	return *rec, true
}

// Stop signals every worker to finish draining its current queue, waits for
// them to terminate, and then returns. It is idempotent and safe for
// concurrent use.
func (o *Outbox) Stop() {
	if !atomic.CompareAndSwapUint32(&o.closed, 0, 1) {
		return // already closed
	}
	o.log.Info().Int("shards", o.cfg.Shards).Msg("stopping outbox, draining shards")
	close(o.done)
	o.wg.Wait()
	o.log.Info().Msg("outbox stopped, all queues drained")
}

// Close lets Outbox satisfy io.Closer.
func (o *Outbox) Close() error {
	o.Stop()
	return nil
}

// ------------------------- internals -------------------------

func (o *Outbox) enqueue(ctx context.Context, key string, qw queuedWrite) error {
	return o.enqueueShard(ctx, o.shardFor(key), qw)
}

func (o *Outbox) enqueueShard(ctx context.Context, shard int, qw queuedWrite) error {
	// Fast checks to avoid accepting work after Stop().
	if atomic.LoadUint32(&o.closed) == 1 {
		return ErrClosed
	}
	select {
	case <-o.done:
		return ErrClosed
	default:
	}

	ch := o.queues[shard]
	timer := time.NewTimer(o.cfg.EnqueueTimeout)
	defer timer.Stop()

	select {
	case ch <- qw:
		submissionsTotal.WithLabelValues(labelFor(shard)).Inc()
		return nil

	case <-o.done: // Stop() may be called while waiting for space
		return ErrClosed

	case <-ctx.Done():
		return ctx.Err()

	case <-timer.C:
		queueFullTotal.WithLabelValues(labelFor(shard)).Inc()
		return &QueueFullError{
			Shard:    shard,
			Length:   len(ch),
			Capacity: cap(ch),
		}
	}
}

func (o *Outbox) runWorker(idx int, ch <-chan queuedWrite) {
	defer o.wg.Done()

	// Protect the worker from crashing the entire outbox.
	defer func() {
		if r := recover(); r != nil {
			o.log.Error().Int("shard", idx).Interface("panic", r).Msg("outbox worker panic")
		}
	}()

	label := labelFor(idx)

	for {
		select {
		case qw := <-ch:
			if qw.job == nil {
				continue
			}

			// Honour caller context so a cancelled write doesn't stall the shard.
			select {
			case <-qw.ctx.Done():
				o.settle(qw.rec, 0, qw.ctx.Err())
				o.safeHandleError(qw.ctx.Err())
			default:
				o.deliver(label, qw)
			}

			queueDepth.WithLabelValues(label).Set(float64(len(ch)))

		case <-o.done:
			// Drain remaining writes, preserving FIFO, then exit. Each gets
			// one final attempt; there is no time left to retry.
			drained := 0
			for {
				select {
				case qw := <-ch:
					if qw.job != nil {
						err := qw.job.Run(qw.ctx)
						o.settle(qw.rec, 1, err)
						drained++
					}
				default:
					if drained > 0 {
						o.log.Info().Int("shard", idx).Int("drained", drained).Msg("drained remaining writes")
					}
					queueDepth.WithLabelValues(label).Set(0)
					return
				}
			}
		}
	}
}

// deliver runs one write with exponential backoff until success, an
// irrecoverable error, or MaxAttempts.
func (o *Outbox) deliver(label string, qw queuedWrite) {
	attempts := 0
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = o.cfg.BaseBackoff
	exp.Multiplier = 2
	exp.MaxInterval = o.cfg.MaxInterval
	exp.Reset()

	for {
		start := time.Now()
		err := qw.job.Run(qw.ctx)
		runDuration.WithLabelValues(label).Observe(time.Since(start).Seconds())
		attempts++

		if err == nil {
			o.settle(qw.rec, attempts, nil)
			return
		}

		if isIrrecoverable(err) {
			writesFailedTotal.WithLabelValues(label).Inc()
			o.settle(qw.rec, attempts, err)
			o.safeHandleError(err)
			return
		}

		if attempts >= o.cfg.MaxAttempts {
			writesFailedTotal.WithLabelValues(label).Inc()
			o.settle(qw.rec, attempts, err)
			o.safeHandleError(err)
			return
		}

		wait := exp.NextBackOff()
		select {
		case <-time.After(wait):
		case <-o.done:
			o.settle(qw.rec, attempts, err)
			return
		case <-qw.ctx.Done():
			o.settle(qw.rec, attempts, qw.ctx.Err())
			o.safeHandleError(qw.ctx.Err())
			return
		}
	}
}

// settle finalizes a write record and trims settled history.
func (o *Outbox) settle(rec *WriteRecord, attempts int, err error) {
	if rec == nil {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	rec.Attempts = attempts
	if err == nil {
		rec.State = StateSucceeded
	} else {
		rec.State = StateFailed
		rec.LastError = err.Error()
	}
	o.settled = append(o.settled, rec.ID)
	for len(o.settled) > o.cfg.HistoryLimit {
		delete(o.records, o.settled[0])
		o.settled = o.settled[1:]
	}
}

func (o *Outbox) safeHandleError(err error) {
	if err == nil || o.cfg.ErrorHandler == nil {
		return
	}
	func() {
		// Guard against panics in the user-supplied handler.
		defer func() {
			if r := recover(); r != nil {
				o.log.Error().Interface("panic", r).Msg("outbox error handler panic")
			}
		}()
		o.cfg.ErrorHandler(err)
	}()
}

func (o *Outbox) shardFor(key string) int {
	h := fnv.New32a() // fast and sufficient at our scale
	_, _ = h.Write([]byte(key))
	return int(h.Sum32()) % o.cfg.Shards
}
