// Package schedule runs recurring jobs identified by caller-chosen ids.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"
)

// Spec describes when a recurring job fires: weekly on Weekday at At past
// midnight, or every Every when Weekly is false.
type Spec struct {
	Weekly  bool
	Weekday time.Weekday
	At      time.Duration
	Every   time.Duration
}

// Weekly fires once a week on day at the given offset from midnight.
func Weekly(day time.Weekday, at time.Duration) Spec {
	return Spec{Weekly: true, Weekday: day, At: at}
}

// Every fires repeatedly with the given period.
func Every(period time.Duration) Spec {
	return Spec{Every: period}
}

// CronExpr renders the spec as a seconds-enabled cron expression.
func (s Spec) CronExpr() (string, error) {
	if !s.Weekly {
		if s.Every < time.Second {
			return "", fmt.Errorf("schedule: interval %s too short", s.Every)
		}
		return "@every " + s.Every.String(), nil
	}
	if s.At < 0 || s.At >= 24*time.Hour {
		return "", fmt.Errorf("schedule: time of day %s out of range", s.At)
	}
	if s.Weekday < time.Sunday || s.Weekday > time.Saturday {
		return "", fmt.Errorf("schedule: invalid weekday %d", s.Weekday)
	}
	total := int(s.At / time.Second)
	return fmt.Sprintf("%d %d %d * * %d", total%60, (total/60)%60, total/3600, int(s.Weekday)), nil
}

// ParseWeekday maps an English weekday name, in any case, to time.Weekday.
func ParseWeekday(name string) (time.Weekday, error) {
	needle := strings.ToLower(strings.TrimSpace(name))
	for d := time.Sunday; d <= time.Saturday; d++ {
		if strings.ToLower(d.String()) == needle {
			return d, nil
		}
	}
	return 0, fmt.Errorf("schedule: unknown weekday %q", name)
}

// Scheduler registers jobs by id and cancels them by id.
type Scheduler interface {
	Add(id string, spec Spec, job func()) error
	Remove(id string)
}

// CronScheduler is a Scheduler backed by robfig/cron.
type CronScheduler struct {
	mu      sync.Mutex
	cron    *cron.Cron
	entries map[string]cron.EntryID
}

// NewCronScheduler builds a scheduler evaluating weekday/time specs in loc.
// A panicking job is recovered and logged so later firings still run.
func NewCronScheduler(loc *time.Location) *CronScheduler {
	if loc == nil {
		loc = time.Local
	}
	logger := cron.PrintfLogger(log.StandardLogger())
	return &CronScheduler{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLocation(loc),
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger)),
		),
		entries: make(map[string]cron.EntryID),
	}
}

// Start begins firing jobs in the background.
func (s *CronScheduler) Start() {
	s.cron.Start()
	log.Infof("schedule: cron scheduler started (jobs=%d)", s.Len())
}

// Stop halts the scheduler and waits for running jobs until ctx is done.
func (s *CronScheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Add registers job under id, replacing any job already registered with that id.
func (s *CronScheduler) Add(id string, spec Spec, job func()) error {
	if id == "" || job == nil {
		return errors.New("schedule: id and job are required")
	}
	expr, errExpr := spec.CronExpr()
	if errExpr != nil {
		return errExpr
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.entries[id]; ok {
		s.cron.Remove(prev)
		delete(s.entries, id)
	}
	entryID, errAdd := s.cron.AddFunc(expr, job)
	if errAdd != nil {
		return fmt.Errorf("schedule: add %s (%s): %w", id, expr, errAdd)
	}
	s.entries[id] = entryID
	log.WithFields(log.Fields{"schedule_id": id, "spec": expr}).Debug("schedule: job registered")
	return nil
}

// Remove cancels the job registered under id. Unknown ids are ignored.
func (s *CronScheduler) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entryID, ok := s.entries[id]
	if !ok {
		return
	}
	s.cron.Remove(entryID)
	delete(s.entries, id)
}

// Len reports how many jobs are registered.
func (s *CronScheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Next returns the next firing time of the job registered under id.
func (s *CronScheduler) Next(id string) (time.Time, bool) {
	s.mu.Lock()
	entryID, ok := s.entries[id]
	s.mu.Unlock()
	if !ok {
		return time.Time{}, false
	}
	return s.cron.Entry(entryID).Next, true
}
