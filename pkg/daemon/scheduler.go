package daemon

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// leadDuration is how long before a run OnUpcoming is called.
const leadDuration = time.Minute * 5

type NotifyFunc func(data any)

// TaskFunc represents a runnable task.
type TaskFunc func() error

// Scheduler runs a task on a cron schedule. One run at a time: a run that
// comes due while the previous one is still going is skipped.
type Scheduler struct {
	OnUpcoming NotifyFunc // called leadDuration before a run
	OnError    NotifyFunc // called on precheck or task error
	Task       TaskFunc
	PreCheck   TaskFunc // a failing precheck skips the run

	parser cron.Parser

	mu       sync.Mutex
	schedule cron.Schedule
	nextRun  time.Time
	running  bool
	busy     bool

	resetCh chan struct{}
	stopCh  chan struct{}
}

func NewScheduler(task, preCheck TaskFunc, onUpcoming, onError NotifyFunc) *Scheduler {
	if task == nil {
		panic("task function cannot be nil")
	}

	return &Scheduler{
		OnUpcoming: onUpcoming,
		OnError:    onError,
		Task:       task,
		PreCheck:   preCheck,
		parser:     cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		resetCh:    make(chan struct{}, 1),
		stopCh:     make(chan struct{}),
	}
}

// Parse checks a cron expression without scheduling it.
func (s *Scheduler) Parse(cronExpr string) error {
	_, err := s.parser.Parse(cronExpr)
	return err
}

// Schedule replaces the schedule. An empty expression disables it.
func (s *Scheduler) Schedule(cronExpr string) error {
	var sh cron.Schedule
	if cronExpr != "" {
		var err error
		if sh, err = s.parser.Parse(cronExpr); err != nil {
			return err
		}
	}

	s.mu.Lock()
	s.schedule = sh
	s.nextRun = time.Time{}
	if sh != nil {
		s.nextRun = sh.Next(time.Now())
	}
	s.mu.Unlock()

	s.reset()
	return nil
}

func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	go s.loop()
}

func (s *Scheduler) Stop() {
	select {
	case <-s.stopCh: // already closed
	default:
		close(s.stopCh)
	}
}

// Skip skips the next scheduled run.
func (s *Scheduler) Skip() error {
	s.mu.Lock()
	if s.schedule == nil || s.nextRun.IsZero() {
		s.mu.Unlock()
		return fmt.Errorf("no active schedule to skip")
	}
	s.nextRun = s.schedule.Next(s.nextRun)
	s.mu.Unlock()

	s.reset()
	return nil
}

// Postpone delays the next scheduled run by d.
func (s *Scheduler) Postpone(d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("postpone duration must be positive, got %s", d)
	}
	s.mu.Lock()
	if s.schedule == nil || s.nextRun.IsZero() {
		s.mu.Unlock()
		return fmt.Errorf("no active schedule to postpone")
	}
	s.nextRun = s.nextRun.Add(d)
	s.mu.Unlock()

	s.reset()
	return nil
}

// RunNow runs the task immediately, outside the schedule.
func (s *Scheduler) RunNow() error {
	if !s.acquire() {
		return fmt.Errorf("a run is already in progress")
	}
	go s.run()
	return nil
}

// Status returns the next run time (zero when unscheduled) and whether a
// run is in progress.
func (s *Scheduler) Status() (nextRun time.Time, busy bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextRun, s.busy
}

func (s *Scheduler) reset() {
	select {
	case s.resetCh <- struct{}{}:
	default:
	}
}

func (s *Scheduler) acquire() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy {
		return false
	}
	s.busy = true
	return true
}

func (s *Scheduler) run() {
	defer func() {
		s.mu.Lock()
		s.busy = false
		s.mu.Unlock()
	}()

	if s.PreCheck != nil {
		if err := s.PreCheck(); err != nil {
			s.sendError(fmt.Errorf("precheck failed: %v", err))
			return
		}
	}
	if err := s.Task(); err != nil {
		s.sendError(fmt.Errorf("task failed: %v", err))
	}
}

func (s *Scheduler) loop() {
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		logrus.Debug("scheduler stopped")
	}()

	logrus.Debug("scheduler started")

	for {
		s.mu.Lock()
		nextRun := s.nextRun
		s.mu.Unlock()

		wait := time.Hour * 10000
		notified := false
		if !nextRun.IsZero() {
			wait = time.Until(nextRun) - leadDuration
			if wait < 0 {
				// already inside the lead window
				notified = true
				s.sendNotify(nextRun)
				wait = time.Until(nextRun)
			}
			if wait < 0 {
				wait = 0
			}
		}
		timer := time.NewTimer(wait)

	inner:
		for {
			select {
			case <-s.stopCh:
				timer.Stop()
				return
			case <-s.resetCh:
				timer.Stop()
				break inner
			case <-timer.C:
				if nextRun.IsZero() {
					break inner
				}
				if !notified {
					notified = true
					logrus.Debugf("upcoming scheduled run at %s", nextRun.Format(time.DateTime))
					s.sendNotify(nextRun)
					timer.Reset(time.Until(nextRun))
					continue
				}

				logrus.Debugf("running scheduled task due at %s", nextRun.Format(time.DateTime))
				if s.acquire() {
					go s.run()
				} else {
					logrus.Warn("previous run still in progress, skipping this one")
				}
				s.advance(nextRun)
				break inner
			}
		}
	}
}

// advance moves nextRun past due unless the schedule changed meanwhile.
func (s *Scheduler) advance(due time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.schedule == nil || !s.nextRun.Equal(due) {
		return
	}
	s.nextRun = s.schedule.Next(due)
}

func (s *Scheduler) sendNotify(runAt time.Time) {
	if s.OnUpcoming == nil {
		return
	}

	go s.OnUpcoming(runAt)
}

func (s *Scheduler) sendError(err error) {
	if s.OnError == nil {
		return
	}

	go s.OnError(err)
}
