// Package refresh reloads cache-backed reference tables on a cron schedule
// so requests rarely fall through to the vendor.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/markqiu/openbb-tushare/internal/metrics"
)

// Job is one refreshable table. *models.Dataset implements it.
type Job interface {
	Name() string
	Refresh(ctx context.Context) (int, error)
}

// Refresher runs every registered job on a shared schedule.
type Refresher struct {
	cron    *cron.Cron
	jobs    []Job
	log     *slog.Logger
	metrics *metrics.Metrics
	timeout time.Duration

	mu      sync.Mutex
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// New creates a Refresher evaluating schedules in the Shanghai exchange
// time zone, falling back to UTC when tzdata is unavailable.
func New(log *slog.Logger, m *metrics.Metrics) *Refresher {
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "refresh")

	var opts []cron.Option
	if loc, err := time.LoadLocation("Asia/Shanghai"); err == nil {
		opts = append(opts, cron.WithLocation(loc))
	} else {
		log.Warn("loading time zone, using UTC", "error", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Refresher{
		cron:    cron.New(opts...),
		log:     log,
		metrics: m,
		timeout: 5 * time.Minute,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Register adds jobs. Names must be unique.
func (r *Refresher) Register(jobs ...Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, j := range jobs {
		for _, have := range r.jobs {
			if have.Name() == j.Name() {
				return fmt.Errorf("refresh job %q already registered", j.Name())
			}
		}
		r.jobs = append(r.jobs, j)
	}
	return nil
}

// Start schedules all jobs under spec, a standard five-field cron
// expression or a descriptor such as "@daily".
func (r *Refresher) Start(spec string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return errors.New("refresher is already running")
	}
	if _, err := r.cron.AddFunc(spec, func() { _ = r.RunOnce(r.ctx) }); err != nil {
		return fmt.Errorf("scheduling refresh %q: %w", spec, err)
	}
	r.cron.Start()
	r.running = true
	r.log.Info("refresher started", "schedule", spec, "jobs", len(r.jobs))
	return nil
}

// Stop cancels running jobs and waits for them to return.
func (r *Refresher) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	r.mu.Unlock()

	// A job in flight takes mu in RunOnce, so wait without holding it.
	r.cancel()
	<-r.cron.Stop().Done()
	r.log.Info("refresher stopped")
}

// RunOnce refreshes every job in registration order. A failing job does not
// stop the others; all failures are returned joined.
func (r *Refresher) RunOnce(ctx context.Context) error {
	r.mu.Lock()
	jobs := append([]Job(nil), r.jobs...)
	r.mu.Unlock()

	var errs []error
	for _, j := range jobs {
		jobCtx, cancel := context.WithTimeout(ctx, r.timeout)
		start := time.Now()
		n, err := j.Refresh(jobCtx)
		cancel()

		r.metrics.Refresh(j.Name(), err)
		if err != nil {
			r.log.Error("refresh failed", "table", j.Name(), "error", err, "took", time.Since(start))
			errs = append(errs, fmt.Errorf("refreshing %s: %w", j.Name(), err))
			continue
		}
		r.log.Info("refreshed", "table", j.Name(), "rows", n, "took", time.Since(start))
	}
	return errors.Join(errs...)
}
