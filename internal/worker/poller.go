// Package worker runs the periodic entry points of the automation core.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ignite/crm-automation/internal/pkg/distlock"
	"github.com/ignite/crm-automation/internal/pkg/logger"
	"github.com/ignite/crm-automation/internal/pkg/metrics"
)

// Job names used for lock keys, metrics labels and ops triggers.
const (
	JobCampaigns    = "campaigns"
	JobDynamicLists = "dynamic-lists"
)

// ErrUnknownJob is returned by RunNow for a name no job was registered under.
var ErrUnknownJob = errors.New("worker: unknown job")

// LockFactory hands out a fresh distributed lock per key.
type LockFactory interface {
	Lock(key string) distlock.DistLock
}

// Job is one entry point invoked on a fixed interval.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context)
}

// Poller invokes each job on its own ticker. Every run holds the lock
// "poll:<name>", so across replicas at most one instance of a job runs at
// a time; a run that finds the lock held is skipped.
type Poller struct {
	locks LockFactory
	jobs  map[string]Job
	order []string

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	mu      sync.Mutex
}

// NewPoller creates a poller for jobs. Jobs with a non-positive interval
// are only run through RunNow.
func NewPoller(locks LockFactory, jobs ...Job) *Poller {
	p := &Poller{locks: locks, jobs: make(map[string]Job, len(jobs))}
	for _, j := range jobs {
		if _, dup := p.jobs[j.Name]; !dup {
			p.order = append(p.order, j.Name)
		}
		p.jobs[j.Name] = j
	}
	return p
}

// Start launches one loop per job.
func (p *Poller) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return fmt.Errorf("poller already running")
	}
	p.running = true
	p.ctx, p.cancel = context.WithCancel(context.Background())

	for _, name := range p.order {
		job := p.jobs[name]
		if job.Interval <= 0 {
			continue
		}
		logger.Info("[worker] starting job", "job", job.Name, "interval", job.Interval.String())
		p.wg.Add(1)
		go p.loop(job)
	}
	return nil
}

// Stop cancels the loops and waits for in-flight runs to return.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.mu.Unlock()

	p.cancel()
	p.wg.Wait()
	logger.Info("[worker] stopped")
}

func (p *Poller) loop(job Job) {
	defer p.wg.Done()

	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			if _, err := p.run(p.ctx, job); err != nil {
				logger.Error("[worker] poll failed", "job", job.Name, "error", err)
			}
		}
	}
}

// RunNow runs the named job once under its lock. It reports false with a
// nil error when another instance holds the lock.
func (p *Poller) RunNow(ctx context.Context, name string) (bool, error) {
	job, ok := p.jobs[name]
	if !ok {
		return false, fmt.Errorf("%w: %q", ErrUnknownJob, name)
	}
	return p.run(ctx, job)
}

func (p *Poller) run(ctx context.Context, job Job) (ran bool, err error) {
	start := time.Now()
	err = distlock.Run(ctx, p.locks.Lock("poll:"+job.Name), func(ctx context.Context) (runErr error) {
		defer func() {
			if r := recover(); r != nil {
				runErr = fmt.Errorf("panic: %v", r)
			}
		}()
		job.Run(ctx)
		return nil
	})

	switch {
	case errors.Is(err, distlock.ErrNotAcquired):
		metrics.ObservePoll(job.Name, metrics.OutcomeSkipped, time.Since(start))
		logger.Debug("[worker] poll skipped, lock held elsewhere", "job", job.Name)
		return false, nil
	case err != nil:
		metrics.ObservePoll(job.Name, metrics.OutcomeFailed, time.Since(start))
		return false, err
	default:
		metrics.ObservePoll(job.Name, metrics.OutcomeRan, time.Since(start))
		return true, nil
	}
}
