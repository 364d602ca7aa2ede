package schedule

import (
	"context"
	"testing"
	"time"
)

func TestSpecCronExpr(t *testing.T) {
	cases := []struct {
		spec Spec
		want string
	}{
		{Weekly(time.Monday, 9*time.Hour+30*time.Minute+15*time.Second), "15 30 9 * * 1"},
		{Weekly(time.Sunday, 0), "0 0 0 * * 0"},
		{Every(5 * time.Minute), "@every 5m0s"},
	}
	for _, tc := range cases {
		got, err := tc.spec.CronExpr()
		if err != nil {
			t.Fatalf("cron expr for %+v: %v", tc.spec, err)
		}
		if got != tc.want {
			t.Fatalf("expected %q, got %q", tc.want, got)
		}
	}
	if _, err := Every(0).CronExpr(); err == nil {
		t.Fatalf("expected error for zero interval")
	}
	if _, err := Weekly(time.Friday, 25*time.Hour).CronExpr(); err == nil {
		t.Fatalf("expected error for out-of-range time")
	}
}

func TestParseWeekday(t *testing.T) {
	day, err := ParseWeekday(" thursday ")
	if err != nil || day != time.Thursday {
		t.Fatalf("expected Thursday, got %v (%v)", day, err)
	}
	if _, err := ParseWeekday("Funday"); err == nil {
		t.Fatalf("expected error for unknown weekday")
	}
}

func TestCronSchedulerAddReplaceRemove(t *testing.T) {
	s := NewCronScheduler(time.UTC)
	noop := func() {}

	if err := s.Add("7", Weekly(time.Tuesday, 12*time.Hour), noop); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := s.Add("7", Weekly(time.Wednesday, 12*time.Hour), noop); err != nil {
		t.Fatalf("replace: %v", err)
	}
	if s.Len() != 1 {
		t.Fatalf("expected replacement to keep one job, got %d", s.Len())
	}

	s.Start()
	defer func() { _ = s.Stop(context.Background()) }()
	next, ok := s.Next("7")
	if !ok || next.Weekday() != time.Wednesday || next.Hour() != 12 {
		t.Fatalf("unexpected next firing %v (%v)", next, ok)
	}

	s.Remove("7")
	s.Remove("unknown")
	if s.Len() != 0 {
		t.Fatalf("expected no jobs after remove, got %d", s.Len())
	}
	if err := s.Add("", Every(time.Minute), noop); err == nil {
		t.Fatalf("expected error for empty id")
	}
}

func TestCronSchedulerFiresIntervalJob(t *testing.T) {
	s := NewCronScheduler(time.UTC)
	fired := make(chan struct{}, 1)
	if err := s.Add("demo", Every(time.Second), func() {
		select {
		case fired <- struct{}{}:
		default:
		}
	}); err != nil {
		t.Fatalf("add: %v", err)
	}
	s.Start()
	defer func() { _ = s.Stop(context.Background()) }()

	select {
	case <-fired:
	case <-time.After(5 * time.Second):
		t.Fatalf("interval job did not fire")
	}
}
