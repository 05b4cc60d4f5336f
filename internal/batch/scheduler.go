// Package batch triggers pipeline runs from cron expressions and keeps
// runs from overlapping
package batch

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/hochfrequenz/asset-scheduler/internal/logging"
)

// ErrBusy is returned by Trigger while another run is in progress
var ErrBusy = errors.New("a run is already in progress")

// RunFunc executes one job
type RunFunc func(ctx context.Context, job Job) error

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ParseCron parses a five-field cron expression
func ParseCron(expr string) (cron.Schedule, error) {
	return parser.Parse(expr)
}

// Scheduler runs jobs on their cron schedule in the account timezone. At most
// one job runs at a time across all jobs and manual triggers.
type Scheduler struct {
	jobs map[string]Job
	loc  *time.Location
	run  RunFunc
	log  *logrus.Entry
	cron *cron.Cron

	mu      sync.Mutex
	running string
	lastRun map[string]time.Time
	lastErr map[string]error
}

// NewScheduler validates the jobs and prepares a scheduler
func NewScheduler(jobs []Job, loc *time.Location, run RunFunc, log *logrus.Entry) (*Scheduler, error) {
	if loc == nil {
		loc = time.UTC
	}
	s := &Scheduler{
		jobs:    make(map[string]Job),
		loc:     loc,
		run:     run,
		log:     logging.OrNop(log).WithField("component", "batch"),
		lastRun: make(map[string]time.Time),
		lastErr: make(map[string]error),
	}
	for _, j := range jobs {
		if err := j.Validate(); err != nil {
			return nil, err
		}
		if _, dup := s.jobs[j.Name]; dup {
			return nil, errors.New("duplicate job name " + j.Name)
		}
		s.jobs[j.Name] = j
	}
	return s, nil
}

// Start schedules every job and blocks until ctx is done; then it waits
// for a run in progress to return
func (s *Scheduler) Start(ctx context.Context) error {
	s.cron = cron.New(
		cron.WithLocation(s.loc),
		cron.WithParser(parser),
		cron.WithLogger(cron.PrintfLogger(s.log)),
	)
	for _, name := range s.ListJobs() {
		job := s.jobs[name]
		if _, err := s.cron.AddFunc(job.Cron, func() {
			if _, err := s.Trigger(ctx, job.Name); err != nil && !errors.Is(err, ErrBusy) && !errors.Is(err, context.Canceled) {
				s.log.WithError(err).WithField("job", job.Name).Error("Job failed")
			}
		}); err != nil {
			return err
		}
		s.log.WithFields(logrus.Fields{"job": job.Name, "cron": job.Cron, "mode": job.Mode}).Info("Job scheduled")
	}

	s.cron.Start()
	<-ctx.Done()
	<-s.cron.Stop().Done()
	return nil
}

// Trigger runs a job now unless another run is in progress. It reports
// whether the job ran.
func (s *Scheduler) Trigger(ctx context.Context, name string) (bool, error) {
	job, ok := s.GetJob(name)
	if !ok {
		return false, errors.New("unknown job " + name)
	}
	if !s.markRunning(name) {
		s.log.WithField("job", name).Warn("Previous run still in progress, skipping")
		return false, ErrBusy
	}

	runCtx, cancel := context.WithTimeout(ctx, job.Timeout)
	defer cancel()
	err := s.run(runCtx, job)
	s.markComplete(name, err)
	return true, err
}

func (s *Scheduler) markRunning(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running != "" {
		return false
	}
	s.running = name
	return true
}

func (s *Scheduler) markComplete(name string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = ""
	s.lastRun[name] = time.Now()
	s.lastErr[name] = err
}

// Running returns the job in progress, if any
func (s *Scheduler) Running() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running, s.running != ""
}

// LastRun returns when a job last finished and its error
func (s *Scheduler) LastRun(name string) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRun[name], s.lastErr[name]
}

// NextRun returns the next scheduled run time for a job after now
func (s *Scheduler) NextRun(name string, now time.Time) time.Time {
	job, ok := s.GetJob(name)
	if !ok {
		return time.Time{}
	}
	sched, err := parser.Parse(job.Cron)
	if err != nil {
		return time.Time{}
	}
	return sched.Next(now.In(s.loc))
}

// GetJob returns a job by name
func (s *Scheduler) GetJob(name string) (Job, bool) {
	j, ok := s.jobs[name]
	return j, ok
}

// ListJobs returns all job names, sorted
func (s *Scheduler) ListJobs() []string {
	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
