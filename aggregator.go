/*
 * Email Sleuth - Candidate Aggregation Module
 *
 * Author: Dr.Anach
 * Telegram: @dranach
 */

package main

import (
	"context"
	"errors"
	"log"
	"sort"
	"strings"
	"time"
)

// Evidence deltas. All numeric policy lives in this file; probes only report
// outcomes.
const (
	smtpExistsDelta        = 4
	smtpCatchAllPenalty    = -5
	corroborationBonus     = 1
	apiExistsDelta         = 3
	apiNotExistsDelta      = -5
	headlessExistsDelta    = 4
	headlessNotExistsDelta = -6
	nameMatchBonus         = 1
	genericPenalty         = 2
)

// Probe outcome labels used in the verification log.
const (
	outcomeExists       = "exists"
	outcomeDoesNotExist = "does_not_exist"
	outcomeInconclusive = "inconclusive"
	outcomeError        = "error"
)

// Aggregator owns candidate dedup, probe sequencing, confidence fusion,
// early termination and best-candidate selection for one contact at a time.
type Aggregator struct {
	cfg      *Config
	smtp     *SMTPProber
	api      *APIProber
	headless *HeadlessProber
	now      func() time.Time
	verbose  bool
}

// NewAggregator wires the probes together.
func NewAggregator(cfg *Config, smtp *SMTPProber, api *APIProber, headless *HeadlessProber) *Aggregator {
	return &Aggregator{cfg: cfg, smtp: smtp, api: api, headless: headless, now: time.Now}
}

// DedupCandidates collapses candidates with the same normalized email. The
// earliest (highest-priority) entry wins; its base confidence is raised to
// the maximum seen across duplicates, plus a corroboration bump when the
// same address arrived from two distinct sources.
func DedupCandidates(candidates []*Candidate) []*Candidate {
	byEmail := make(map[string]*Candidate)
	var out []*Candidate
	for _, c := range candidates {
		c.Email = strings.ToLower(strings.TrimSpace(c.Email))
		if kept, ok := byEmail[c.Email]; ok {
			if c.baseConfidence > kept.baseConfidence {
				kept.baseConfidence = c.baseConfidence
			}
			if c.Source != kept.Source {
				kept.baseConfidence += corroborationBonus
			}
			continue
		}
		byEmail[c.Email] = c
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].priority < out[j].priority })
	return out
}

// fuseConfidence recomputes a candidate's fused confidence from all evidence.
// The result is always clamped to [0, 10]; a dropped candidate pins to 0.
func (a *Aggregator) fuseConfidence(c *Candidate, name NormalizedName) {
	if c.dropped {
		c.Confidence = 0
		return
	}
	conf := c.baseConfidence + c.smtpDelta + c.apiDelta + c.headlessDelta
	if localPartMatchesName(c.Email, name) {
		conf += nameMatchBonus
	}
	if c.IsGeneric {
		conf -= genericPenalty
	}
	if conf < 0 {
		conf = 0
	}
	if conf > 10 {
		conf = 10
	}
	c.Confidence = conf
}

// localPartMatchesName reports whether the local-part contains the first or
// last name token (tokens shorter than 2 runes never match).
func localPartMatchesName(email string, name NormalizedName) bool {
	local := email
	if i := strings.LastIndex(email, "@"); i >= 0 {
		local = email[:i]
	}
	local = strings.ToLower(local)
	for _, token := range []string{name.First, name.Last} {
		if len(token) >= 2 && strings.Contains(local, token) {
			return true
		}
	}
	return false
}

// earlyTerminationReached reports whether a fused confidence triggers early
// termination. Thresholds of 0 and 11 both disable the mechanism.
func (a *Aggregator) earlyTerminationReached(confidence int) bool {
	thr := a.cfg.Verification.EarlyTerminationThreshold
	return thr >= 1 && thr <= 10 && confidence >= thr
}

// VerifyAll runs the per-candidate probe sequence SMTP -> API -> headless over
// the deduplicated candidates in priority order. After any probe lifts a
// candidate past the early-termination threshold, the remaining candidates
// keep their SMTP probe but skip the expensive API/headless stages.
func (a *Aggregator) VerifyAll(ctx context.Context, name NormalizedName, mx *MxResult, candidates []*Candidate, vlog VerificationLog) {
	smtpState := newSMTPContactState()
	earlyTerminated := false

	apiProvider := a.api.Match(mx.Domain, mx.Records)
	headlessProvider := a.headless.Match(mx.Domain, mx.Records)

	for _, c := range candidates {
		if ctx.Err() != nil {
			return
		}
		a.fuseConfidence(c, name)

		if len(mx.Records) > 0 {
			a.runSMTP(ctx, smtpState, mx.Records, c, vlog)
			a.fuseConfidence(c, name)
			if a.earlyTerminationReached(c.Confidence) {
				earlyTerminated = true
			}
		}

		if earlyTerminated && c.VerificationStatus == nil {
			// Expensive probes are suppressed once a winner emerged; the
			// candidate stays ranked on the evidence it already has.
			continue
		}

		if a.cfg.Advanced.EnableAPIChecks && apiProvider != nil && c.VerificationStatus == nil && !earlyTerminated {
			a.runAPI(ctx, apiProvider, c, vlog)
			a.fuseConfidence(c, name)
			if a.earlyTerminationReached(c.Confidence) {
				earlyTerminated = true
			}
		}

		if a.cfg.Advanced.EnableHeadlessChecks && headlessProvider != nil && c.VerificationStatus == nil && !earlyTerminated {
			a.runHeadless(ctx, headlessProvider, c, vlog)
			a.fuseConfidence(c, name)
			if a.earlyTerminationReached(c.Confidence) {
				earlyTerminated = true
			}
		}
	}
}

func (a *Aggregator) runSMTP(ctx context.Context, state *smtpContactState, records []MxRecord, c *Candidate, vlog VerificationLog) {
	c.MarkAttempted(MethodSMTPVerification)
	started := a.now()
	result := a.smtp.Verify(ctx, state, records, c.Email)
	finished := a.now()

	outcome := outcomeInconclusive
	switch {
	case result.Exists != nil && *result.Exists:
		outcome = outcomeExists
		c.smtpDelta = smtpExistsDelta
		c.VerificationStatus = boolPtr(true)
	case result.Exists != nil:
		outcome = outcomeDoesNotExist
		c.dropped = true
		c.VerificationStatus = boolPtr(false)
	case result.IsCatchAll:
		// On a catch-all MX an accepted RCPT says nothing; guessed
		// candidates sink below the selection threshold unless corroborated
		// by other evidence.
		c.smtpDelta = smtpCatchAllPenalty
		result.Message = "catch-all: " + result.Message
	}
	c.VerificationMessage = result.Message
	vlog.Append(c.Email, ProbeAttempt{
		Kind:       MethodSMTPVerification,
		StartedAt:  started,
		FinishedAt: finished,
		Outcome:    outcome,
		Detail:     result.Message,
	})
	if a.verbose {
		log.Printf("SMTP %s -> %s (%s)", c.Email, outcome, result.Message)
	}
}

func (a *Aggregator) runAPI(ctx context.Context, provider *apiProvider, c *Candidate, vlog VerificationLog) {
	c.MarkAttempted(MethodAPIVerification)
	started := a.now()
	result := a.api.Probe(ctx, provider, c.Email)
	finished := a.now()

	outcome := outcomeInconclusive
	switch {
	case result.Exists != nil && *result.Exists:
		outcome = outcomeExists
		c.apiDelta = apiExistsDelta
		c.VerificationStatus = boolPtr(true)
	case result.Exists != nil:
		outcome = outcomeDoesNotExist
		c.apiDelta = apiNotExistsDelta
		if c.VerificationStatus == nil {
			c.VerificationStatus = boolPtr(false)
		}
	}
	if result.Message != "" {
		c.VerificationMessage = result.Message
	}
	vlog.Append(c.Email, ProbeAttempt{
		Kind:       MethodAPIVerification,
		StartedAt:  started,
		FinishedAt: finished,
		Outcome:    outcome,
		Detail:     result.Message,
	})
	if a.verbose {
		log.Printf("API %s -> %s (%s)", c.Email, outcome, result.Message)
	}
}

func (a *Aggregator) runHeadless(ctx context.Context, provider *headlessProvider, c *Candidate, vlog VerificationLog) {
	c.MarkAttempted(MethodHeadlessVerification)
	started := a.now()
	result, err := a.headless.Probe(ctx, provider, c.Email)
	finished := a.now()

	outcome := outcomeInconclusive
	detail := result.Message
	switch {
	case err != nil && errors.Is(err, ErrWebDriverUnavailable):
		outcome = "webdriver_unavailable"
		detail = err.Error()
	case err != nil:
		outcome = outcomeError
		detail = err.Error()
	case result.Exists != nil && *result.Exists:
		outcome = outcomeExists
		c.headlessDelta = headlessExistsDelta
		c.VerificationStatus = boolPtr(true)
	case result.Exists != nil:
		outcome = outcomeDoesNotExist
		c.headlessDelta = headlessNotExistsDelta
		if c.VerificationStatus == nil {
			c.VerificationStatus = boolPtr(false)
		}
	}
	if result.Message != "" {
		c.VerificationMessage = result.Message
	}
	vlog.Append(c.Email, ProbeAttempt{
		Kind:       MethodHeadlessVerification,
		StartedAt:  started,
		FinishedAt: finished,
		Outcome:    outcome,
		Detail:     detail,
	})
	if a.verbose {
		log.Printf("Headless %s -> %s (%s)", c.Email, outcome, detail)
	}
}

// Select ranks the candidates and picks the best address. Ordering is
// deterministic: confidence descending, generation priority ascending,
// non-generic before generic. Best is the first non-dropped candidate whose
// confidence meets its applicable threshold.
func (a *Aggregator) Select(candidates []*Candidate) (best *Candidate, ranked []*Candidate) {
	for _, c := range candidates {
		if c.dropped {
			continue
		}
		ranked = append(ranked, c)
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Confidence != ranked[j].Confidence {
			return ranked[i].Confidence > ranked[j].Confidence
		}
		if ranked[i].priority != ranked[j].priority {
			return ranked[i].priority < ranked[j].priority
		}
		return !ranked[i].IsGeneric && ranked[j].IsGeneric
	})

	for _, c := range ranked {
		threshold := a.cfg.Verification.ConfidenceThreshold
		if c.IsGeneric {
			threshold = a.cfg.Verification.GenericConfidenceThreshold
		}
		if c.Confidence >= threshold {
			best = c
			break
		}
	}

	limit := a.cfg.Verification.MaxAlternatives + 1
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return best, ranked
}
