/*
 * Email Sleuth - Batch Scheduling Module
 *
 * Author: Dr.Anach
 * Telegram: @dranach
 */

package main

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Scheduler runs contact pipelines over a bounded worker pool and preserves
// input order in the output.
type Scheduler struct {
	sleuth       *Sleuth
	cfg          *Config
	showProgress bool

	progressMutex      sync.RWMutex
	totalContacts      int
	processedContacts  int
	foundContacts      int
	skippedContacts    int
	failedContacts     int
	startTime          time.Time
	lastProgressUpdate time.Time
}

// NewScheduler builds a scheduler over an initialized Sleuth.
func NewScheduler(sleuth *Sleuth, showProgress bool) *Scheduler {
	return &Scheduler{sleuth: sleuth, cfg: sleuth.cfg, showProgress: showProgress}
}

// Run processes every contact with up to max_concurrency pipelines in flight.
// The returned slice has one entry per input contact, in input order, even
// when the context is cancelled mid-batch: unstarted contacts are reported
// with an error entry rather than dropped.
func (s *Scheduler) Run(ctx context.Context, contacts []Contact) []ContactResult {
	results := make([]ContactResult, len(contacts))
	if len(contacts) == 0 {
		return results
	}

	s.progressMutex.Lock()
	s.totalContacts = len(contacts)
	s.processedContacts = 0
	s.foundContacts = 0
	s.skippedContacts = 0
	s.failedContacts = 0
	s.startTime = time.Now()
	s.lastProgressUpdate = time.Time{}
	s.progressMutex.Unlock()

	progressDone := make(chan struct{})
	if s.showProgress {
		ticker := time.NewTicker(2 * time.Second)
		go func() {
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					s.displayProgress()
				case <-progressDone:
					return
				}
			}
		}()
	}

	type job struct {
		index   int
		contact Contact
	}
	jobs := make(chan job, len(contacts))
	for i, c := range contacts {
		jobs <- job{index: i, contact: c}
	}
	close(jobs)

	concurrency := s.cfg.Verification.MaxConcurrency
	if concurrency < 1 {
		concurrency = 1
	}
	if concurrency > len(contacts) {
		concurrency = len(contacts)
	}

	var wg sync.WaitGroup
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				if ctx.Err() != nil {
					results[j.index] = cancelledResult(j.contact)
					s.updateProgress(results[j.index])
					continue
				}
				results[j.index] = s.sleuth.ProcessContact(ctx, j.contact)
				s.updateProgress(results[j.index])
			}
		}()
	}
	wg.Wait()
	close(progressDone)

	if s.showProgress {
		s.displayProgress()
		fmt.Println()
	}
	return results
}

func cancelledResult(contact Contact) ContactResult {
	return ContactResult{
		ContactInput: contact,
		FoundEmails:  []Candidate{},
		MethodsUsed:  []string{},
		Log:          make(VerificationLog),
		Error:        strPtr("run cancelled before this contact was processed"),
	}
}

func (s *Scheduler) updateProgress(result ContactResult) {
	s.progressMutex.Lock()
	defer s.progressMutex.Unlock()
	s.processedContacts++
	switch {
	case result.Skipped:
		s.skippedContacts++
	case result.Error != nil:
		s.failedContacts++
	case result.Email != nil:
		s.foundContacts++
	}
}

// displayProgress prints a throttled single-line progress bar in the style of
// the batch console output.
func (s *Scheduler) displayProgress() {
	s.progressMutex.Lock()
	now := time.Now()
	if now.Sub(s.lastProgressUpdate) < 500*time.Millisecond {
		s.progressMutex.Unlock()
		return
	}
	s.lastProgressUpdate = now
	processed := s.processedContacts
	total := s.totalContacts
	found := s.foundContacts
	skipped := s.skippedContacts
	failed := s.failedContacts
	elapsed := time.Since(s.startTime)
	s.progressMutex.Unlock()

	if total == 0 {
		return
	}
	percentage := float64(processed) * 100.0 / float64(total)
	contactRate := float64(processed) / elapsed.Seconds()
	etaSeconds := 0.0
	if contactRate > 0 {
		etaSeconds = float64(total-processed) / contactRate
	}
	eta := time.Duration(etaSeconds) * time.Second

	barWidth := 30
	filled := int(percentage / 100.0 * float64(barWidth))
	if filled > barWidth {
		filled = barWidth
	}
	bar := strings.Repeat("█", filled) + strings.Repeat("░", barWidth-filled)

	fmt.Printf("\r\033[2K📊 [%s] %.1f%% | 📧 %d found | ⏭️  %d skipped | ❌ %d failed | ⚡ %.1f/s | ⏱️  ETA: %s",
		bar, percentage, found, skipped, failed, contactRate, formatDuration(eta))
}

func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	} else if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
}
