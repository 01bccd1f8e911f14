// Package executor runs dataset pipelines: StepRunner executes one build,
// Master schedules builds onto a bounded pool of workers.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/spachava753/buildmaster/internal/environment"
	"github.com/spachava753/buildmaster/internal/models"
)

var (
	// ErrUnknownScheduler is returned for a scheduler name not in the topology.
	ErrUnknownScheduler = errors.New("unknown scheduler")
	// ErrSchedulerKind is returned when a scheduler is invoked the wrong way.
	ErrSchedulerKind = errors.New("wrong scheduler kind")
	// ErrUnknownBuilder is returned for a builder name not in the topology.
	ErrUnknownBuilder = errors.New("unknown builder")
	// ErrMasterClosed is returned when work is submitted after Close.
	ErrMasterClosed = errors.New("master closed")
)

// MasterOptions configures a Master.
type MasterOptions struct {
	Title string
	// Workers is the number of builds that may run at once.
	Workers    int
	BuildsDir  string
	EnvOptions environment.CreateEnvironmentOptions
}

// BuildHandle tracks one accepted build.
type BuildHandle struct {
	Builder string
	Number  int

	done   chan struct{}
	result *models.BuildResult
}

// Wait blocks until the build finishes or ctx is done.
func (h *BuildHandle) Wait(ctx context.Context) (*models.BuildResult, error) {
	select {
	case <-h.done:
		return h.result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type request struct {
	builder   models.Builder
	scheduler string
	handle    *BuildHandle
}

// Master owns a topology and runs the builds its schedulers request.
type Master struct {
	top    *models.Topology
	runner *StepRunner
	opts   MasterOptions

	mu        sync.Mutex
	cond      *sync.Cond
	queue     []request
	closed    bool
	cancelled bool
	numbers   map[string]int
	results   []*models.BuildResult
	startedAt time.Time

	pending sync.WaitGroup
	workers sync.WaitGroup
	stop    chan struct{}
}

// NewMaster creates a master for top. Builds are not run until Start.
func NewMaster(top *models.Topology, provider environment.Provider, opts MasterOptions) *Master {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	m := &Master{
		top:     top,
		opts:    opts,
		numbers: make(map[string]int),
		stop:    make(chan struct{}),
	}
	m.cond = sync.NewCond(&m.mu)
	m.runner = &StepRunner{
		Provider:   provider,
		EnvOptions: opts.EnvOptions,
		BuildsDir:  opts.BuildsDir,
		Trigger:    m.triggerFromStep,
	}
	return m
}

// Start launches the workers. Builds run with ctx: once it is done, running
// builds stop at their next step boundary and queued builds are recorded as
// cancelled without running.
func (m *Master) Start(ctx context.Context) {
	m.mu.Lock()
	m.startedAt = time.Now()
	m.mu.Unlock()

	for range m.opts.Workers {
		m.workers.Go(func() {
			for {
				req, ok := m.next()
				if !ok {
					return
				}
				m.run(ctx, req)
			}
		})
	}

	go func() {
		select {
		case <-ctx.Done():
			m.mu.Lock()
			m.cancelled = true
			m.mu.Unlock()
		case <-m.stop:
		}
	}()
}

// next blocks until a request is queued or the master is closed and empty.
func (m *Master) next() (request, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for len(m.queue) == 0 && !m.closed {
		m.cond.Wait()
	}
	if len(m.queue) == 0 {
		return request{}, false
	}
	req := m.queue[0]
	m.queue = m.queue[1:]
	return req, true
}

func (m *Master) run(ctx context.Context, req request) {
	defer m.pending.Done()

	slog.Info("build started", "builder", req.builder.Name, "build", req.handle.Number, "scheduler", req.scheduler)
	result := m.runBuild(ctx, req)
	slog.Info("build finished",
		"builder", req.builder.Name,
		"build", req.handle.Number,
		"outcome", result.Outcome,
		"verdict", result.Verdict)

	m.mu.Lock()
	m.results = append(m.results, result)
	m.mu.Unlock()

	req.handle.result = result
	close(req.handle.done)
}

// runBuild runs one request, turning a panic into an internal error result.
func (m *Master) runBuild(ctx context.Context, req request) (result *models.BuildResult) {
	defer func() {
		if p := recover(); p != nil {
			result = &models.BuildResult{
				Builder:   req.builder.Name,
				Number:    req.handle.Number,
				Scheduler: req.scheduler,
				Outcome:   models.Aborted,
				Verdict:   models.VerdictBroken,
				Error: &models.BuildError{
					Type:    models.ErrInternalError,
					Message: fmt.Sprint(p),
				},
			}
		}
	}()
	return m.runner.Run(ctx, req.builder, req.handle.Number, req.scheduler)
}

// enqueue accepts a build of builder and assigns its number.
func (m *Master) enqueue(builder, scheduler string) (*BuildHandle, error) {
	b, ok := m.top.Builder(builder)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownBuilder, builder)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrMasterClosed
	}
	m.numbers[builder]++
	h := &BuildHandle{Builder: builder, Number: m.numbers[builder], done: make(chan struct{})}
	m.queue = append(m.queue, request{builder: b, scheduler: scheduler, handle: h})
	m.pending.Add(1)
	m.cond.Signal()
	return h, nil
}

func (m *Master) scheduler(name string, kind models.SchedulerKind) (models.Scheduler, error) {
	s, ok := m.top.Scheduler(name)
	if !ok {
		return s, fmt.Errorf("%w: %s", ErrUnknownScheduler, name)
	}
	if s.Kind != kind {
		return s, fmt.Errorf("%w: %s is %s, not %s", ErrSchedulerKind, name, s.Kind, kind)
	}
	return s, nil
}

// Force invokes a force scheduler. It returns once the build is accepted.
func (m *Master) Force(ctx context.Context, name string) (*BuildHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s, err := m.scheduler(name, models.ForceScheduler)
	if err != nil {
		return nil, err
	}
	if len(s.BuilderNames) != 1 {
		return nil, fmt.Errorf("force scheduler %s targets %d builders", name, len(s.BuilderNames))
	}
	return m.enqueue(s.BuilderNames[0], s.Name)
}

// Trigger invokes a triggerable scheduler, queueing a build of every target.
// It does not wait for them.
func (m *Master) Trigger(ctx context.Context, name string) error {
	_, err := m.trigger(ctx, name)
	return err
}

func (m *Master) trigger(ctx context.Context, name string) ([]*BuildHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s, err := m.scheduler(name, models.Triggerable)
	if err != nil {
		return nil, err
	}
	handles := make([]*BuildHandle, 0, len(s.BuilderNames))
	for _, b := range s.BuilderNames {
		h, err := m.enqueue(b, s.Name)
		if err != nil {
			return handles, err
		}
		handles = append(handles, h)
	}
	slog.Debug("scheduler triggered", "scheduler", name, "builds", len(handles))
	return handles, nil
}

// triggerFromStep backs trigger steps. Waiting occupies the calling worker,
// so it needs more than one worker to make progress.
func (m *Master) triggerFromStep(ctx context.Context, name string, wait bool) error {
	handles, err := m.trigger(ctx, name)
	if err != nil || !wait {
		return err
	}
	for _, h := range handles {
		r, err := h.Wait(ctx)
		if err != nil {
			return err
		}
		if r.Verdict == models.VerdictBroken {
			return fmt.Errorf("%s #%d is broken", h.Builder, h.Number)
		}
	}
	return nil
}

// Drain blocks until every accepted build, including the ones they
// trigger, has finished.
func (m *Master) Drain() {
	m.pending.Wait()
}

// Close drains the queue and stops the workers.
func (m *Master) Close() {
	m.Drain()
	m.mu.Lock()
	if !m.closed {
		m.closed = true
		close(m.stop)
	}
	m.cond.Broadcast()
	m.mu.Unlock()
	m.workers.Wait()
}

// Results returns the finished builds in completion order.
func (m *Master) Results() []models.BuildResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.BuildResult, len(m.results))
	for i, r := range m.results {
		out[i] = *r
	}
	return out
}

// Summary aggregates the finished builds.
func (m *Master) Summary() models.MasterSummary {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := models.MasterSummary{
		Title:       m.opts.Title,
		TotalBuilds: len(m.results),
		Cancelled:   m.cancelled,
		StartedAt:   m.startedAt,
		EndedAt:     time.Now(),
		Results:     make([]models.BuildSummary, 0, len(m.results)),
	}
	for _, r := range m.results {
		switch r.Verdict {
		case models.VerdictHealthy:
			s.HealthyBuilds++
		case models.VerdictDegraded:
			s.DegradedBuilds++
		default:
			s.BrokenBuilds++
		}
		s.Results = append(s.Results, models.BuildSummary{
			Builder: r.Builder,
			Number:  r.Number,
			Outcome: r.Outcome,
			Verdict: r.Verdict,
		})
	}
	return s
}
