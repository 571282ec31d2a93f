package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"

	"anoa.com/lostfound/pkg/apperror"
	"github.com/robfig/cron/v3"
)

// Job is a unit of background work. Jobs with an empty schedule only run on demand.
type Job interface {
	Name() string
	Schedule() string
	Run(ctx context.Context) error
}

type funcJob struct {
	name     string
	schedule string
	run      func(ctx context.Context) error
}

// NewJob wraps run as a Job.
func NewJob(name, schedule string, run func(ctx context.Context) error) Job {
	return &funcJob{name: name, schedule: schedule, run: run}
}

func (j *funcJob) Name() string { return j.name }

func (j *funcJob) Schedule() string { return j.schedule }

func (j *funcJob) Run(ctx context.Context) error { return j.run(ctx) }

// Scheduler runs registered jobs on their cron schedules. A job never overlaps
// with itself: a tick that arrives while a run is busy is skipped, and an
// on-demand run is refused.
type Scheduler struct {
	cron *cron.Cron
	jobs []*registered
	ctx  context.Context
}

type registered struct {
	Job
	running sync.Mutex
}

func New(ctx context.Context) *Scheduler {
	return &Scheduler{
		cron: cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger))),
		ctx:  ctx,
	}
}

// Register adds job and schedules it when it has a schedule.
func (s *Scheduler) Register(job Job) error {
	reg := &registered{Job: job}
	schedule := job.Schedule()
	if schedule != "" {
		_, err := s.cron.AddFunc(schedule, func() {
			if !reg.running.TryLock() {
				log.Printf("⏭️ [%s] previous run still busy, skipping", job.Name())
				return
			}
			defer reg.running.Unlock()
			s.execute(s.ctx, reg)
		})
		if err != nil {
			return fmt.Errorf("schedule %s: %w", job.Name(), err)
		}
		log.Printf("📅 [%s] scheduled with cron: %s", job.Name(), schedule)
	} else {
		log.Printf("📝 [%s] registered as on-demand job", job.Name())
	}

	s.jobs = append(s.jobs, reg)
	return nil
}

func (s *Scheduler) execute(ctx context.Context, job Job) error {
	log.Printf("🤖 [%s] starting...", job.Name())
	if err := job.Run(ctx); err != nil {
		log.Printf("❌ [%s] failed: %v", job.Name(), err)
		return err
	}
	log.Printf("✅ [%s] completed", job.Name())
	return nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	log.Printf("🚀 Scheduler started with %d jobs", len(s.jobs))
}

// Stop halts scheduling and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	log.Println("🛑 Scheduler stopped")
}

// RunByName executes a registered job immediately. It fails with
// apperror.ErrInvalidOperation while the job is already running.
func (s *Scheduler) RunByName(ctx context.Context, name string) error {
	for _, job := range s.jobs {
		if job.Name() != name {
			continue
		}
		if !job.running.TryLock() {
			return fmt.Errorf("job %q is already running: %w", name, apperror.ErrInvalidOperation)
		}
		defer job.running.Unlock()

		log.Printf("🎯 [%s] running on demand", name)
		return s.execute(ctx, job)
	}
	return fmt.Errorf("job %q not registered: %w", name, apperror.ErrNotFound)
}

func (s *Scheduler) JobNames() []string {
	names := make([]string, len(s.jobs))
	for i, job := range s.jobs {
		names[i] = job.Name()
	}
	return names
}
