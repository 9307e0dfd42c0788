// Package xpool 提供有界队列的泛型 worker pool，用于把非关键路径的副作用
// （例如浏览计数上报）移出请求处理流程。
//
// 队列满时 Submit 立即返回 ErrQueueFull 而不阻塞调用方；
// Stop 会处理完队列中剩余任务后再返回。
package xpool

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Handler 任务处理函数
type Handler[T any] func(ctx context.Context, task T)

// Stats 运行计数快照
type Stats struct {
	Submitted uint64 `json:"submitted"`
	Dropped   uint64 `json:"dropped"`
	Processed uint64 `json:"processed"`
	Panics    uint64 `json:"panics"`
}

// WorkerPool 泛型 worker pool。
type WorkerPool[T any] struct {
	workers int
	handler Handler[T]
	opts    options

	queue chan T
	wg    sync.WaitGroup

	// mu 保护 started/stopped，并保证 Stop 关闭 queue 后不再有发送。
	mu      sync.RWMutex
	started bool
	stopped bool

	submitted atomic.Uint64
	dropped   atomic.Uint64
	processed atomic.Uint64
	panics    atomic.Uint64
}

// NewWorkerPool 创建 worker pool。workers、queueSize 至少为 1。
func NewWorkerPool[T any](workers, queueSize int, handler Handler[T], opts ...Option) (*WorkerPool[T], error) {
	if handler == nil {
		return nil, ErrNilHandler
	}
	if workers < 1 {
		return nil, ErrInvalidWorkers
	}
	if queueSize < 1 {
		return nil, ErrInvalidQueueSize
	}
	o := defaultOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return &WorkerPool[T]{
		workers: workers,
		handler: handler,
		opts:    o,
		queue:   make(chan T, queueSize),
	}, nil
}

// Start 启动 worker，幂等；已停止的 pool 不会再启动。
func (p *WorkerPool[T]) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.stopped {
		return
	}
	p.started = true
	for range p.workers {
		p.wg.Add(1)
		go p.worker()
	}
}

func (p *WorkerPool[T]) worker() {
	defer p.wg.Done()
	for task := range p.queue {
		p.run(task)
	}
}

func (p *WorkerPool[T]) run(task T) {
	defer func() {
		if r := recover(); r != nil {
			p.panics.Add(1)
			p.opts.logger.Stack(context.Background(), "xpool: worker panic recovered",
				slog.String("pool", p.opts.name),
				slog.Any("panic", r),
			)
		}
	}()
	p.handler(p.opts.ctx, task)
	p.processed.Add(1)
}

// Submit 非阻塞提交任务。
func (p *WorkerPool[T]) Submit(task T) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return ErrPoolStopped
	}
	select {
	case p.queue <- task:
		p.submitted.Add(1)
		return nil
	default:
		p.dropped.Add(1)
		p.opts.logger.Warn(context.Background(), "xpool: queue full, task dropped",
			slog.String("pool", p.opts.name))
		return ErrQueueFull
	}
}

// Stop 拒绝新任务，等待队列排空后返回；ctx 到期时提前返回 ctx 错误，
// 剩余任务仍由后台 worker 继续处理。
func (p *WorkerPool[T]) Stop(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	p.mu.Lock()
	if !p.stopped {
		p.stopped = true
		close(p.queue)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Workers 返回 worker 数量
func (p *WorkerPool[T]) Workers() int { return p.workers }

// QueueSize 返回队列容量
func (p *WorkerPool[T]) QueueSize() int { return cap(p.queue) }

// Stats 返回运行计数快照
func (p *WorkerPool[T]) Stats() Stats {
	return Stats{
		Submitted: p.submitted.Load(),
		Dropped:   p.dropped.Load(),
		Processed: p.processed.Load(),
		Panics:    p.panics.Load(),
	}
}
