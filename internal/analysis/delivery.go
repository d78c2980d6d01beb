package analysis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/synheart/roomwatch/internal/models"
	"github.com/synheart/roomwatch/internal/notify"
)

// DefaultNotifyQueue is the number of alerts waiting for the notifier
// before new ones are dropped
const DefaultNotifyQueue = 256

// alertQueue hands alerts to the notifier from a single worker goroutine,
// so readings are never held up by a slow target.
type alertQueue struct {
	notifier notify.Notifier
	timeout  time.Duration
	logger   *zap.Logger
	metrics  *Metrics
	// block makes push wait for room instead of dropping
	block bool

	queue chan models.Alert
	done  chan struct{}

	// sendMu keeps the queue open while a push is in progress
	sendMu sync.RWMutex
	closed bool

	mu      sync.Mutex
	idle    *sync.Cond
	pending int
}

func newAlertQueue(n notify.Notifier, size int, timeout time.Duration, block bool, logger *zap.Logger, metrics *Metrics) *alertQueue {
	if size <= 0 {
		size = DefaultNotifyQueue
	}
	q := &alertQueue{
		notifier: n,
		timeout:  timeout,
		logger:   logger,
		metrics:  metrics,
		block:    block,
		queue:    make(chan models.Alert, size),
		done:     make(chan struct{}),
	}
	q.idle = sync.NewCond(&q.mu)
	go q.run()
	return q
}

// push queues alert and reports whether it was accepted
func (q *alertQueue) push(alert models.Alert) bool {
	q.sendMu.RLock()
	defer q.sendMu.RUnlock()
	if q.closed {
		return false
	}

	q.add(1)
	if q.block {
		q.queue <- alert
		return true
	}
	select {
	case q.queue <- alert:
		return true
	default:
		q.add(-1)
		return false
	}
}

func (q *alertQueue) add(delta int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending += delta
	if q.pending == 0 {
		q.idle.Broadcast()
	}
}

// flush waits until every accepted alert has been handed to the notifier
func (q *alertQueue) flush() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for q.pending > 0 {
		q.idle.Wait()
	}
}

// close delivers what is queued and stops the worker
func (q *alertQueue) close() {
	q.sendMu.Lock()
	if !q.closed {
		q.closed = true
		close(q.queue)
	}
	q.sendMu.Unlock()
	<-q.done
}

func (q *alertQueue) run() {
	defer close(q.done)
	for alert := range q.queue {
		q.deliver(alert)
		q.add(-1)
	}
}

func (q *alertQueue) deliver(alert models.Alert) {
	ctx := context.Background()
	if q.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, q.timeout)
		defer cancel()
	}

	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("notifier panic: %v", r)
			}
		}()
		return q.notifier.Notify(ctx, alert)
	}()
	if err != nil {
		q.metrics.notifyErrors.Inc()
		q.logger.Error("Failed to deliver alert",
			zap.String("alert_id", alert.ID),
			zap.String("kind", string(alert.Kind)),
			zap.Error(err),
		)
	}
}
