package notification

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrQueueFull is returned by Enqueue when the queue is at capacity.
	ErrQueueFull = errors.New("notification queue full")
	// ErrQueueClosed is returned by Enqueue after Stop.
	ErrQueueClosed = errors.New("notification queue closed")
)

// State is the delivery state of a queued notification.
type State string

const (
	StatePending State = "pending"
	StateRetry   State = "retry"
	StateSent    State = "sent"
	StateFailed  State = "failed"
)

// QueueOptions configures a Queue. Zero values take the defaults below.
type QueueOptions struct {
	Capacity       int
	MaxAttempts    int
	BaseBackoff    time.Duration
	MaxBackoff     time.Duration
	DeliverTimeout time.Duration
}

const (
	defaultCapacity       = 256
	defaultMaxAttempts    = 5
	defaultBaseBackoff    = time.Second
	defaultMaxBackoff     = time.Minute
	defaultDeliverTimeout = 10 * time.Second
)

func (o QueueOptions) withDefaults() QueueOptions {
	if o.Capacity <= 0 {
		o.Capacity = defaultCapacity
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = defaultMaxAttempts
	}
	if o.BaseBackoff <= 0 {
		o.BaseBackoff = defaultBaseBackoff
	}
	if o.MaxBackoff < o.BaseBackoff {
		o.MaxBackoff = defaultMaxBackoff
		if o.MaxBackoff < o.BaseBackoff {
			o.MaxBackoff = o.BaseBackoff
		}
	}
	if o.DeliverTimeout <= 0 {
		o.DeliverTimeout = defaultDeliverTimeout
	}
	return o
}

// item carries a notification and its retry state. Owned by the worker goroutine once dequeued.
type item struct {
	n             *Notification
	attempts      int
	nextAttemptAt time.Time
	state         State
}

// QueueStats is a point-in-time view of the queue counters.
type QueueStats struct {
	Pending  int
	Retrying int64
	Sent     int64
	Failed   int64
}

// Queue implements Sender as a bounded channel consumed by one worker goroutine.
// Each item moves pending -> sent, or pending -> retry -> ... -> failed after MaxAttempts.
type Queue struct {
	transport Transport
	opts      QueueOptions
	log       *zap.Logger
	nowF      func() time.Time

	items chan *item

	mu      sync.RWMutex
	closed  bool
	started bool
	cancel  context.CancelFunc
	done    chan struct{}

	retrying atomic.Int64
	sent     atomic.Int64
	failed   atomic.Int64

	// onFinal is called by the worker after an item reaches sent or failed. For tests.
	onFinal func(n *Notification, state State)
}

// NewQueue returns a stopped Queue delivering through transport.
func NewQueue(transport Transport, opts QueueOptions, log *zap.Logger) *Queue {
	if log == nil {
		log = zap.NewNop()
	}
	opts = opts.withDefaults()
	return &Queue{
		transport: transport,
		opts:      opts,
		log:       log.Named("notification"),
		nowF:      time.Now,
		items:     make(chan *item, opts.Capacity),
	}
}

// Start launches the worker. Cancelling ctx does not stop it: the worker keeps delivering until
// Stop, so alerts raised while the process drains are still sent. Calling Start on a running
// queue is a no-op.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started || q.closed {
		return
	}
	ctx, q.cancel = context.WithCancel(context.WithoutCancel(ctx))
	q.done = make(chan struct{})
	q.started = true
	go q.run(ctx)
}

// Stop rejects further Enqueue calls, stops the worker and waits for it. Items still pending
// get one final delivery attempt within ctx; pending retries are dropped and logged.
func (q *Queue) Stop(ctx context.Context) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	started, cancel, done := q.started, q.cancel, q.done
	q.mu.Unlock()

	if started {
		cancel()
		<-done
	}
	q.drain(ctx)
}

// Enqueue adds n to the queue without blocking.
func (q *Queue) Enqueue(n *Notification) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.items <- &item{n: n, state: StatePending, nextAttemptAt: q.nowF()}:
		return nil
	default:
		q.log.Warn("queue full, notification dropped", zap.String("kind", string(n.Kind)), zap.String("user_id", n.UserID))
		return ErrQueueFull
	}
}

// SendSecurityAlert queues a security alert for userID.
func (q *Queue) SendSecurityAlert(_ context.Context, userID, event string, details map[string]any) error {
	return q.Enqueue(newNotification(KindSecurityAlert, userID, event, details))
}

// SendPasswordChanged queues a password-changed notice for userID.
func (q *Queue) SendPasswordChanged(_ context.Context, userID string) error {
	return q.Enqueue(newNotification(KindPasswordChanged, userID, "", nil))
}

// Stats returns the current counters.
func (q *Queue) Stats() QueueStats {
	return QueueStats{
		Pending:  len(q.items),
		Retrying: q.retrying.Load(),
		Sent:     q.sent.Load(),
		Failed:   q.failed.Load(),
	}
}

func (q *Queue) run(ctx context.Context) {
	defer close(q.done)
	var retries []*item
	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		if len(retries) > 0 {
			wait := retries[0].nextAttemptAt.Sub(q.nowF())
			if wait < 0 {
				wait = 0
			}
			timer.Reset(wait)
		}
		select {
		case <-ctx.Done():
			if len(retries) > 0 {
				q.log.Warn("dropping notifications awaiting retry", zap.Int("count", len(retries)))
				q.retrying.Add(-int64(len(retries)))
			}
			return
		case it := <-q.items:
			timer.Stop()
			if q.attempt(ctx, it) {
				retries = insertByNextAttempt(retries, it)
			}
		case <-timer.C:
			due := retries[0]
			retries = retries[1:]
			q.retrying.Add(-1)
			if q.attempt(ctx, due) {
				retries = insertByNextAttempt(retries, due)
			}
		}
	}
}

// attempt delivers it once and advances its state. Returns true if it must be retried.
func (q *Queue) attempt(ctx context.Context, it *item) bool {
	dctx, cancel := context.WithTimeout(ctx, q.opts.DeliverTimeout)
	err := q.transport.Deliver(dctx, it.n)
	cancel()
	it.attempts++
	if err == nil {
		it.state = StateSent
		q.sent.Add(1)
		q.finish(it)
		return false
	}
	if it.attempts >= q.opts.MaxAttempts {
		it.state = StateFailed
		q.failed.Add(1)
		q.log.Error("notification delivery failed",
			zap.String("id", it.n.ID),
			zap.String("kind", string(it.n.Kind)),
			zap.Int("attempts", it.attempts),
			zap.Error(err))
		q.finish(it)
		return false
	}
	it.state = StateRetry
	it.nextAttemptAt = q.nowF().Add(q.backoff(it.attempts))
	q.retrying.Add(1)
	q.log.Warn("notification delivery failed, will retry",
		zap.String("id", it.n.ID),
		zap.Int("attempts", it.attempts),
		zap.Time("next_attempt_at", it.nextAttemptAt),
		zap.Error(err))
	return true
}

func (q *Queue) drain(ctx context.Context) {
	for {
		select {
		case it := <-q.items:
			if ctx.Err() != nil {
				q.log.Warn("dropping pending notification on shutdown", zap.String("id", it.n.ID))
				continue
			}
			it.attempts = q.opts.MaxAttempts - 1
			q.attempt(ctx, it)
		default:
			return
		}
	}
}

func (q *Queue) finish(it *item) {
	if q.onFinal != nil {
		q.onFinal(it.n, it.state)
	}
}

// backoff returns BaseBackoff * 2^(attempts-1), capped at MaxBackoff.
func (q *Queue) backoff(attempts int) time.Duration {
	d := q.opts.BaseBackoff
	for i := 1; i < attempts; i++ {
		d *= 2
		if d >= q.opts.MaxBackoff {
			return q.opts.MaxBackoff
		}
	}
	return d
}

func insertByNextAttempt(items []*item, it *item) []*item {
	i := sort.Search(len(items), func(i int) bool { return items[i].nextAttemptAt.After(it.nextAttemptAt) })
	items = append(items, nil)
	copy(items[i+1:], items[i:])
	items[i] = it
	return items
}

var _ Sender = (*Queue)(nil)
