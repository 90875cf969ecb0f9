// Package scheduler implements the Repeated-Job Scheduler: a
// time-ordered queue of periodic callbacks, driven by a single ticking
// goroutine, used here to run the Session/SecureChannel/Discovery
// cleanup sweeps in a fixed order.
package scheduler

import (
	"context"
	"time"

	"github.com/gammazero/deque"
	"github.com/rs/zerolog/log"
)

// Job is one repeated callback: Interval between runs, and Run invoked
// with the scheduler's current time at each firing.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(now time.Time)

	nextRun time.Time
}

// Scheduler holds jobs in a deque ordered by next-run time; the
// earliest-due job is always at the front. Re-insertion after a run
// walks back from the rear since the queue stays nearly sorted between
// ticks (jobs share a small number of distinct periods in practice).
type Scheduler struct {
	jobs   deque.Deque[*Job]
	nowFn  func() time.Time
	ticker *time.Ticker
	stop   chan struct{}
	done   chan struct{}
}

// New builds a Scheduler. nowFn defaults to time.Now; tests may
// override it to drive the clock deterministically.
func New(nowFn func() time.Time) *Scheduler {
	if nowFn == nil {
		nowFn = time.Now
	}
	return &Scheduler{nowFn: nowFn}
}

// Add registers a job to run every interval, starting one interval from
// now.
func (s *Scheduler) Add(name string, interval time.Duration, run func(now time.Time)) {
	j := &Job{Name: name, Interval: interval, Run: run, nextRun: s.nowFn().Add(interval)}
	s.insert(j)
}

// insert places j into the deque keeping nextRun ascending order.
func (s *Scheduler) insert(j *Job) {
	n := s.jobs.Len()
	i := n
	for i > 0 && s.jobs.At(i-1).nextRun.After(j.nextRun) {
		i--
	}
	if i == n {
		s.jobs.PushBack(j)
		return
	}
	s.jobs.Insert(i, j)
}

// RunDue executes every job whose nextRun has passed, as of now,
// rescheduling each for its next period.
func (s *Scheduler) RunDue(now time.Time) int {
	ran := 0
	for s.jobs.Len() > 0 && !s.jobs.Front().nextRun.After(now) {
		j := s.jobs.PopFront()
		j.Run(now)
		j.nextRun = now.Add(j.Interval)
		s.insert(j)
		ran++
	}
	return ran
}

// Start runs a ticking loop at the given resolution until ctx is
// canceled, calling RunDue on every tick. Returns immediately; use Wait
// to block until the loop has exited.
func (s *Scheduler) Start(ctx context.Context, resolution time.Duration) {
	s.ticker = time.NewTicker(resolution)
	s.stop = make(chan struct{})
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stop:
				return
			case now := <-s.ticker.C:
				if n := s.RunDue(now); n > 0 {
					log.Debug().Int("ran", n).Msg("scheduler: ran due jobs")
				}
			}
		}
	}()
}

// Stop halts the ticking loop and waits for it to exit.
func (s *Scheduler) Stop() {
	if s.ticker == nil {
		return
	}
	s.ticker.Stop()
	close(s.stop)
	<-s.done
}

// Len reports the number of registered jobs.
func (s *Scheduler) Len() int { return s.jobs.Len() }
