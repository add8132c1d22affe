package notify

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// Config sizes the dispatcher worker pool.
type Config struct {
	Workers        int
	Buffer         int
	Timeout        time.Duration
	HandoffTimeout time.Duration
}

// DefaultConfig is used for any zero field of a Config.
var DefaultConfig = Config{
	Workers:        4,
	Buffer:         256,
	Timeout:        10 * time.Second,
	HandoffTimeout: 15 * time.Millisecond,
}

// Dispatcher delivers envelopes to its sinks on a bounded worker pool. When
// the buffer stays full past the handoff timeout, the caller delivers
// inline instead.
type Dispatcher struct {
	cfg    Config
	sinks  []Sink
	logger *log.Logger
	now    func() time.Time

	mu     sync.RWMutex
	closed bool
	jobs   chan Envelope
	wg     sync.WaitGroup
}

// NewDispatcher starts the workers.
func NewDispatcher(cfg Config, logger *log.Logger, sinks ...Sink) *Dispatcher {
	if logger == nil {
		panic("notify.NewDispatcher: logger is nil")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultConfig.Workers
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = DefaultConfig.Buffer
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig.Timeout
	}
	if cfg.HandoffTimeout < 0 {
		cfg.HandoffTimeout = 0
	}

	d := &Dispatcher{
		cfg:    cfg,
		sinks:  sinks,
		logger: logger,
		now:    time.Now,
		jobs:   make(chan Envelope, cfg.Buffer),
	}
	for i := 0; i < cfg.Workers; i++ {
		d.wg.Add(1)
		go d.worker(i)
	}
	logger.Infof("notification dispatcher started, workers: %d, buffer: %d, sinks: %d", cfg.Workers, cfg.Buffer, len(sinks))
	return d
}

// Dispatch queues n for topic. It never blocks longer than the handoff
// timeout plus, when the pool is saturated, one inline delivery.
func (d *Dispatcher) Dispatch(topic string, n Notification) {
	env := Envelope{Topic: topic, Notification: n, Timestamp: d.now().UnixMilli()}
	if d.tryEnqueue(env) {
		return
	}
	d.logger.Warn("notification buffer saturated; delivering inline")
	d.deliver(env, -1)
}

func (d *Dispatcher) tryEnqueue(env Envelope) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return false
	}

	select {
	case d.jobs <- env:
		return true
	default:
	}

	if d.cfg.HandoffTimeout <= 0 {
		return false
	}
	timer := time.NewTimer(d.cfg.HandoffTimeout)
	defer timer.Stop()
	select {
	case d.jobs <- env:
		return true
	case <-timer.C:
		return false
	}
}

func (d *Dispatcher) worker(id int) {
	defer d.wg.Done()
	for env := range d.jobs {
		d.deliver(env, id)
	}
}

func (d *Dispatcher) deliver(env Envelope, worker int) {
	for _, s := range d.sinks {
		ctx, cancel := context.WithTimeout(context.Background(), d.cfg.Timeout)
		err := s.Deliver(ctx, env)
		cancel()
		if err != nil {
			d.logger.WithFields(log.Fields{"topic": env.Topic, "tag": env.Notification.Tag, "worker": worker}).Errorf("notification delivery failed: %v", err)
		}
	}
}

// Close stops accepting notifications and waits for queued ones to drain.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.jobs)
	d.mu.Unlock()
	d.wg.Wait()
}
