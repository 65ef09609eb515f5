package classifiers

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
)

type sessionRunner interface {
	Run() error
	Destroy() error
}

// Session is one executable copy of a graph with its own input and output
// buffers. A session is never used by two requests at once.
type Session struct {
	runner  sessionRunner
	input   []float32
	output  []float32
	cleanup []func() error
}

func (s *Session) Input() []float32  { return s.input }
func (s *Session) Output() []float32 { return s.output }

func (s *Session) Run() error {
	return s.runner.Run()
}

func (s *Session) Destroy() {
	if s.runner != nil {
		s.runner.Destroy()
	}
	for _, fn := range s.cleanup {
		fn()
	}
}

// SessionFactory builds a fresh session for a pool.
type SessionFactory func() (*Session, error)

type SessionPool struct {
	sessions       chan *Session
	size           int
	acquireTimeout time.Duration
	mu             sync.Mutex
	closed         bool
	metrics        *poolMetrics
}

type poolMetrics struct {
	mu              sync.RWMutex
	inUse           int
	totalAcquired   int64
	totalReleased   int64
	acquireFailures int64
	waitTime        time.Duration
}

// PoolStats is a snapshot of pool counters.
type PoolStats struct {
	Size            int     `json:"pool_size"`
	InUse           int     `json:"sessions_in_use"`
	TotalAcquired   int64   `json:"total_acquired"`
	TotalReleased   int64   `json:"total_released"`
	AcquireFailures int64   `json:"acquire_failures"`
	WaitTimeMs      float64 `json:"wait_time_ms"`
}

func NewSessionPool(size int, acquireTimeout time.Duration, factory SessionFactory) (*SessionPool, error) {
	if size <= 0 {
		size = DefaultPoolSize
	}
	if acquireTimeout <= 0 {
		acquireTimeout = DefaultAcquireTimeout
	}

	pool := &SessionPool{
		sessions:       make(chan *Session, size),
		size:           size,
		acquireTimeout: acquireTimeout,
		metrics:        &poolMetrics{},
	}

	for i := 0; i < size; i++ {
		session, err := factory()
		if err != nil {
			pool.Destroy()
			return nil, fmt.Errorf("failed to initialize session %d: %w", i, err)
		}
		pool.sessions <- session
	}

	return pool, nil
}

// Acquire waits for an idle session until ctx is done or the pool's acquire
// timeout elapses, whichever comes first.
func (p *SessionPool) Acquire(ctx context.Context) (*Session, error) {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return nil, ErrPoolClosed
	}

	start := time.Now()
	defer func() {
		p.metrics.mu.Lock()
		p.metrics.waitTime += time.Since(start)
		p.metrics.mu.Unlock()
	}()

	timer := time.NewTimer(p.acquireTimeout)
	defer timer.Stop()

	select {
	case session, ok := <-p.sessions:
		if !ok {
			return nil, ErrPoolClosed
		}
		p.metrics.mu.Lock()
		p.metrics.inUse++
		p.metrics.totalAcquired++
		p.metrics.mu.Unlock()
		return session, nil
	case <-timer.C:
		p.metrics.mu.Lock()
		p.metrics.acquireFailures++
		p.metrics.mu.Unlock()
		return nil, errors.Errorf("timeout waiting for available session after %s", p.acquireTimeout)
	case <-ctx.Done():
		p.metrics.mu.Lock()
		p.metrics.acquireFailures++
		p.metrics.mu.Unlock()
		return nil, ctx.Err()
	}
}

func (p *SessionPool) Release(session *Session) {
	p.metrics.mu.Lock()
	p.metrics.inUse--
	p.metrics.totalReleased++
	p.metrics.mu.Unlock()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		session.Destroy()
		return
	}
	p.sessions <- session
}

// Destroy closes the pool and destroys idle sessions. Sessions still in use
// are destroyed when released.
func (p *SessionPool) Destroy() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}

	p.closed = true
	close(p.sessions)

	for session := range p.sessions {
		session.Destroy()
	}
}

func (p *SessionPool) Stats() PoolStats {
	p.metrics.mu.RLock()
	defer p.metrics.mu.RUnlock()
	return PoolStats{
		Size:            p.size,
		InUse:           p.metrics.inUse,
		TotalAcquired:   p.metrics.totalAcquired,
		TotalReleased:   p.metrics.totalReleased,
		AcquireFailures: p.metrics.acquireFailures,
		WaitTimeMs:      float64(p.metrics.waitTime.Microseconds()) / 1000,
	}
}
