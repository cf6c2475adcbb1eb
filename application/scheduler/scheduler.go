// application/scheduler/scheduler.go
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/44dummies/tradermind-server-sub000/pkg/logger"
)

// Schedule is either a daily UTC wall-clock time or a fixed interval.
type Schedule struct {
	kind     scheduleKind
	hour     int
	minute   int
	interval time.Duration
}

type scheduleKind int

const (
	kindDaily scheduleKind = iota
	kindInterval
)

// DailyAt runs once a day at HH:MM UTC.
func DailyAt(hour, minute int) Schedule {
	return Schedule{kind: kindDaily, hour: hour, minute: minute}
}

func Every(d time.Duration) Schedule {
	return Schedule{kind: kindInterval, interval: d}
}

func (s Schedule) nextRun(now time.Time) time.Time {
	now = now.UTC()
	switch s.kind {
	case kindDaily:
		next := time.Date(now.Year(), now.Month(), now.Day(), s.hour, s.minute, 0, 0, time.UTC)
		if !next.After(now) {
			next = next.Add(24 * time.Hour)
		}
		return next
	case kindInterval:
		return now.Add(s.interval)
	default:
		return now.Add(24 * time.Hour)
	}
}

type Job struct {
	Name        string
	Description string
	Schedule    Schedule
	Handler     func(ctx context.Context) error

	mu      sync.Mutex
	nextRun time.Time
	lastRun time.Time
	lastErr error
	runs    int
}

func (j *Job) Status() JobStatus {
	j.mu.Lock()
	defer j.mu.Unlock()
	st := JobStatus{
		Name:        j.Name,
		Description: j.Description,
		NextRun:     j.nextRun,
		LastRun:     j.lastRun,
		Runs:        j.runs,
	}
	if j.lastErr != nil {
		st.LastErr = j.lastErr.Error()
	}
	return st
}

type JobStatus struct {
	Name        string    `json:"name"`
	Description string    `json:"description"`
	NextRun     time.Time `json:"next_run"`
	LastRun     time.Time `json:"last_run"`
	LastErr     string    `json:"last_error,omitempty"`
	Runs        int       `json:"runs"`
}

// Scheduler runs the housekeeping jobs of the process.
type Scheduler struct {
	jobs     []*Job
	mu       sync.RWMutex
	poll     time.Duration
	now      func() time.Time
	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
}

func New() *Scheduler {
	return &Scheduler{
		poll: 30 * time.Second,
		now:  time.Now,
	}
}

// Register must be called before Start.
func (s *Scheduler) Register(job *Job) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job.nextRun = job.Schedule.nextRun(s.now())
	s.jobs = append(s.jobs, job)

	logger.Info("📋 [Scheduler] Registered %q, first run at %s",
		job.Name, job.nextRun.Format("2006-01-02 15:04:05 UTC"))
}

func (s *Scheduler) Name() string { return "Scheduler" }

func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.stopChan = make(chan struct{})
	stop := s.stopChan
	n := len(s.jobs)
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop(stop)
	}()
	logger.Info("✅ [Scheduler] Started (%d jobs)", n)
}

// Stop waits for running jobs.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopChan)
	s.mu.Unlock()

	s.wg.Wait()
	logger.Info("🛑 [Scheduler] Stopped")
}

func (s *Scheduler) Jobs() []JobStatus {
	s.mu.RLock()
	jobs := make([]*Job, len(s.jobs))
	copy(jobs, s.jobs)
	s.mu.RUnlock()

	statuses := make([]JobStatus, len(jobs))
	for i, j := range jobs {
		statuses[i] = j.Status()
	}
	return statuses
}

func (s *Scheduler) loop(stop <-chan struct{}) {
	ticker := time.NewTicker(s.poll)
	defer ticker.Stop()

	s.tick()

	for {
		select {
		case <-ticker.C:
			s.tick()
		case <-stop:
			return
		}
	}
}

func (s *Scheduler) tick() {
	now := s.now().UTC()

	s.mu.RLock()
	jobs := make([]*Job, len(s.jobs))
	copy(jobs, s.jobs)
	s.mu.RUnlock()

	for _, job := range jobs {
		job.mu.Lock()
		due := !now.Before(job.nextRun)
		if due {
			// pushed forward now so a slow run is not started twice
			job.nextRun = job.Schedule.nextRun(now)
		}
		job.mu.Unlock()

		if due {
			s.wg.Add(1)
			go s.run(job)
		}
	}
}

func (s *Scheduler) run(job *Job) {
	defer s.wg.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	logger.Debug("▶️ [Scheduler] Running %q", job.Name)
	start := s.now()

	err := job.Handler(ctx)

	elapsed := s.now().Sub(start)

	job.mu.Lock()
	job.lastRun = start
	job.lastErr = err
	job.runs++
	nextRun := job.nextRun
	job.mu.Unlock()

	if err != nil {
		logger.Error("❌ [Scheduler] %q failed after %v: %v", job.Name, elapsed, err)
	} else {
		logger.Debug("✅ [Scheduler] %q done in %v, next run %s",
			job.Name, elapsed, nextRun.Format("2006-01-02 15:04:05 UTC"))
	}
}
