package main

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"
)

func TestSchedulerPreservesInputOrder(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Verification.MaxConcurrency = 8

	var active, maxActive int32
	resolver := &stubResolver{onResolve: func() {
		n := atomic.AddInt32(&active, 1)
		for {
			prev := atomic.LoadInt32(&maxActive)
			if n <= prev || atomic.CompareAndSwapInt32(&maxActive, prev, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		atomic.AddInt32(&active, -1)
	}}

	sleuth := newTestSleuth(&cfg, resolver,
		&stubScraper{err: errors.New("site down")},
		acceptOnlyDialer("nobody@nowhere.test"))

	contacts := make([]Contact, 50)
	for i := range contacts {
		contacts[i] = Contact{
			FirstName: fmt.Sprintf("First%02d", i),
			LastName:  "Person",
			Domain:    fmt.Sprintf("company%02d.test", i),
		}
	}

	scheduler := NewScheduler(sleuth, false)
	results := scheduler.Run(context.Background(), contacts)

	if len(results) != len(contacts) {
		t.Fatalf("results length = %d, want %d", len(results), len(contacts))
	}
	for i, r := range results {
		if r.ContactInput.FirstName != contacts[i].FirstName {
			t.Fatalf("results[%d] = %s, order not preserved", i, r.ContactInput.FirstName)
		}
	}
	if m := atomic.LoadInt32(&maxActive); m > 8 {
		t.Errorf("max concurrent pipelines = %d, want <= 8", m)
	}
}

func TestSchedulerEmptyInput(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Verification.MaxConcurrency = 4
	sleuth := newTestSleuth(&cfg, &stubResolver{}, &stubScraper{}, nil)
	results := NewScheduler(sleuth, false).Run(context.Background(), nil)
	if len(results) != 0 {
		t.Errorf("results = %v, want empty", results)
	}
}

func TestSchedulerSkippedContactsStillReported(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Verification.MaxConcurrency = 2
	sleuth := newTestSleuth(&cfg, &stubResolver{},
		&stubScraper{err: errors.New("down")},
		acceptOnlyDialer("nobody@nowhere.test"))

	contacts := []Contact{
		{FirstName: "", LastName: "", Domain: "x.test"},
		{FirstName: "Jane", LastName: "Doe", Domain: "y.test"},
	}
	results := NewScheduler(sleuth, false).Run(context.Background(), contacts)
	if len(results) != 2 {
		t.Fatalf("results length = %d", len(results))
	}
	if !results[0].Skipped {
		t.Error("invalid contact not reported skipped")
	}
	if results[1].Skipped {
		t.Error("valid contact wrongly skipped")
	}
}

func TestSchedulerCancelledContextCompletesArray(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Verification.MaxConcurrency = 2
	sleuth := newTestSleuth(&cfg, &stubResolver{},
		&stubScraper{err: errors.New("down")},
		acceptOnlyDialer("nobody@nowhere.test"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	contacts := []Contact{
		{FirstName: "A", LastName: "B", Domain: "a.test"},
		{FirstName: "C", LastName: "D", Domain: "b.test"},
		{FirstName: "E", LastName: "F", Domain: "c.test"},
	}
	results := NewScheduler(sleuth, false).Run(ctx, contacts)
	if len(results) != 3 {
		t.Fatalf("cancelled batch must still report every contact, got %d", len(results))
	}
	for i, r := range results {
		if r.Error == nil {
			t.Errorf("results[%d] has no error after pre-cancelled run", i)
		}
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{30 * time.Second, "30s"},
		{90 * time.Second, "1m30s"},
		{2*time.Hour + 5*time.Minute, "2h5m"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.d); got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}
