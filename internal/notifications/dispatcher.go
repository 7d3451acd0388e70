package notifications

import (
	"context"
	"sync"
	"time"

	pkgerrors "github.com/promptability/Website-sub002/pkg/errors"
	"github.com/promptability/Website-sub002/pkg/logger"
	"github.com/promptability/Website-sub002/pkg/metrics"
	"golang.org/x/sync/errgroup"
)

// Delivery outcomes recorded on the notification metrics.
const (
	outcomeSent    = "sent"
	outcomeFailed  = "failed"
	outcomeDropped = "dropped"
)

const (
	defaultQueueSize   = 256
	defaultWorkers     = 2
	defaultSendTimeout = 10 * time.Second
)

// DispatcherParams wires the dispatcher.
type DispatcherParams struct {
	Sender      Sender
	QueueSize   int
	Workers     int
	SendTimeout time.Duration
	Metrics     *metrics.NotificationMetrics
	Logger      *logger.Logger
}

// Dispatcher delivers notifications on a bounded queue, detached from the
// request that produced them. Delivery failures are logged and counted,
// never returned to the producer.
type Dispatcher struct {
	sender  Sender
	queue   chan Message
	workers int
	timeout time.Duration
	metrics *metrics.NotificationMetrics
	logg    *logger.Logger

	mu      sync.RWMutex
	closed  bool
	started bool
	group   errgroup.Group
}

func NewDispatcher(params DispatcherParams) (*Dispatcher, error) {
	if params.Sender == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "notification sender required")
	}
	size := params.QueueSize
	if size <= 0 {
		size = defaultQueueSize
	}
	workers := params.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}
	timeout := params.SendTimeout
	if timeout <= 0 {
		timeout = defaultSendTimeout
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &Dispatcher{
		sender:  params.Sender,
		queue:   make(chan Message, size),
		workers: workers,
		timeout: timeout,
		metrics: params.Metrics,
		logg:    logg,
	}, nil
}

// Start launches the workers. They exit once Close drains the queue.
func (d *Dispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started || d.closed {
		return
	}
	d.started = true
	for i := 0; i < d.workers; i++ {
		d.group.Go(func() error {
			for msg := range d.queue {
				d.deliver(msg)
			}
			return nil
		})
	}
}

// Enqueue queues msg without blocking. It reports false when the message was
// dropped because the queue is full or the dispatcher is closed.
func (d *Dispatcher) Enqueue(ctx context.Context, msg Message) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.drop(ctx, msg, "notification.dropped_closed")
		return false
	}
	select {
	case d.queue <- msg:
		return true
	default:
		d.drop(ctx, msg, "notification.dropped_queue_full")
		return false
	}
}

// Close stops accepting messages and waits for queued ones to be delivered.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.queue)
	started := d.started
	d.mu.Unlock()

	if !started {
		for msg := range d.queue {
			d.deliver(msg)
		}
		return nil
	}
	return d.group.Wait()
}

func (d *Dispatcher) deliver(msg Message) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	ctx = d.logg.WithFields(ctx, map[string]any{
		"kind":    msg.Kind.String(),
		"user_id": msg.UserID,
	})

	email, err := Render(msg)
	if err != nil {
		d.metrics.Observe(msg.Kind.String(), outcomeFailed)
		d.logg.Error(ctx, "notification.render_failed", err)
		return
	}
	if err := d.sender.Send(ctx, email); err != nil {
		d.metrics.Observe(msg.Kind.String(), outcomeFailed)
		d.logg.Error(ctx, "notification.send_failed", err)
		return
	}
	d.metrics.Observe(msg.Kind.String(), outcomeSent)
	d.logg.Debug(ctx, "notification.sent")
}

func (d *Dispatcher) drop(ctx context.Context, msg Message, event string) {
	d.metrics.Observe(msg.Kind.String(), outcomeDropped)
	ctx = d.logg.WithFields(ctx, map[string]any{
		"kind":    msg.Kind.String(),
		"user_id": msg.UserID,
	})
	d.logg.Warn(ctx, event)
}
