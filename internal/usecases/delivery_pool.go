package usecases

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

const deliveryQueueSize = 100

// deliveryJob is a single outbound webhook POST waiting for a worker.
type deliveryJob struct {
	key int64
	run func(ctx context.Context)
}

// DeliveryPool runs delivery jobs on a fixed set of workers. Jobs with the same key
// land on the same partition, so deliveries to one webhook go out in submission order.
type DeliveryPool struct {
	workers    int
	partitions []chan deliveryJob
	wg         sync.WaitGroup
	ctx        context.Context
	cancelFunc context.CancelFunc
	log        *zap.Logger
	onDrop     func()

	mu      sync.RWMutex
	stopped bool

	processed atomic.Uint64
	dropped   atomic.Uint64
	busyMs    atomic.Uint64
}

func NewDeliveryPool(workers int, log *zap.Logger, onDrop func()) *DeliveryPool {
	if workers < 1 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	partitions := make([]chan deliveryJob, workers)
	for i := range partitions {
		partitions[i] = make(chan deliveryJob, deliveryQueueSize)
	}
	return &DeliveryPool{
		workers:    workers,
		partitions: partitions,
		ctx:        ctx,
		cancelFunc: cancel,
		log:        log,
		onDrop:     onDrop,
	}
}

func (p *DeliveryPool) Start() {
	p.log.Info("Starting webhook delivery pool", zap.Int("workers", p.workers))
	for i := range p.partitions {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// Stop refuses new jobs, lets workers drain what is queued, then waits for them.
// Queued jobs see a cancelled context once ctx is done.
func (p *DeliveryPool) Stop(ctx context.Context) {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	for _, ch := range p.partitions {
		close(ch)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		p.cancelFunc()
		<-done
	}
	p.cancelFunc()
	p.log.Info("Webhook delivery pool stopped")
}

// Submit queues fn. It reports false when the pool is stopped or the partition is full.
func (p *DeliveryPool) Submit(key int64, fn func(ctx context.Context)) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		p.drop("pool stopped")
		return false
	}
	idx := int(uint64(key) % uint64(p.workers))
	select {
	case p.partitions[idx] <- deliveryJob{key: key, run: fn}:
		return true
	default:
		p.drop("partition full")
		return false
	}
}

func (p *DeliveryPool) drop(reason string) {
	p.dropped.Add(1)
	p.log.Warn("Webhook delivery dropped", zap.String("reason", reason))
	if p.onDrop != nil {
		p.onDrop()
	}
}

func (p *DeliveryPool) worker(id int) {
	defer p.wg.Done()
	for job := range p.partitions[id] {
		start := time.Now()
		job.run(p.ctx)
		p.processed.Add(1)
		p.busyMs.Add(uint64(time.Since(start).Milliseconds()))
	}
	p.log.Debug("Delivery worker stopping", zap.Int("worker_id", id))
}

// GetStats returns pool counters.
func (p *DeliveryPool) GetStats() map[string]interface{} {
	processed := p.processed.Load()
	var avg float64
	if processed > 0 {
		avg = float64(p.busyMs.Load()) / float64(processed)
	}
	levels := make([]int, len(p.partitions))
	for i, ch := range p.partitions {
		levels[i] = len(ch)
	}
	return map[string]interface{}{
		"processed":         processed,
		"dropped":           p.dropped.Load(),
		"avg_processing_ms": avg,
		"queue_levels":      levels,
		"workers":           p.workers,
	}
}
