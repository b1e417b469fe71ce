/*
 * Email Sleuth - Contact Pipeline Module
 *
 * Author: Dr.Anach
 * Telegram: @dranach
 */

package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"sort"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// candidateScraper is the gather-stage dependency; the production
// implementation is *Scraper.
type candidateScraper interface {
	Scrape(ctx context.Context, domain string) ([]*Candidate, error)
}

// Sleuth owns the shared machinery for a run: configuration, the pooled HTTP
// client, the MX cache, the probes and the egress token buckets. It is safe
// for concurrent use by the batch scheduler's workers.
type Sleuth struct {
	cfg        *Config
	httpClient *http.Client
	resolver   mxResolver
	scraper    candidateScraper
	aggregator *Aggregator
	verbose    bool
}

// Egress budgets. Separate buckets per destination class keep large batches
// from storming any single service.
const (
	httpRequestsPerSecond      = 5
	smtpConversationsPerSecond = 2
	webdriverSessionsPerSecond = 0.5
)

// NewSleuth wires the full pipeline from a resolved configuration.
func NewSleuth(cfg *Config, verbose bool) *Sleuth {
	httpLimiter := rate.NewLimiter(rate.Limit(httpRequestsPerSecond), 2*httpRequestsPerSecond)
	smtpLimiter := rate.NewLimiter(rate.Limit(smtpConversationsPerSecond), 2*smtpConversationsPerSecond)
	webdriverLimiter := rate.NewLimiter(rate.Limit(webdriverSessionsPerSecond), 1)

	client := newHTTPClient(cfg)
	mxLocks := newKeyedMutex()

	smtpProber := NewSMTPProber(cfg, smtpLimiter, mxLocks)
	smtpProber.verbose = verbose
	apiProber := NewAPIProber(cfg, client)
	headlessProber := NewHeadlessProber(cfg, webdriverLimiter)
	headlessProber.verbose = verbose
	aggregator := NewAggregator(cfg, smtpProber, apiProber, headlessProber)
	aggregator.verbose = verbose

	scraper := NewScraper(cfg, client, httpLimiter)
	scraper.verbose = verbose

	return &Sleuth{
		cfg:        cfg,
		httpClient: client,
		resolver:   NewResolver(cfg),
		scraper:    scraper,
		aggregator: aggregator,
		verbose:    verbose,
	}
}

// ProcessContact runs the full per-contact pipeline: validate, gather
// candidates (patterns and scrape concurrently), resolve MX once, verify,
// select. It never panics out; unexpected failures land on the result's
// error field.
func (s *Sleuth) ProcessContact(ctx context.Context, contact Contact) (result ContactResult) {
	result = ContactResult{
		ContactInput: contact,
		FoundEmails:  []Candidate{},
		MethodsUsed:  []string{},
		Log:          make(VerificationLog),
	}
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Internal error processing %s: %v", contact.DisplayName(), r)
			result.Error = strPtr(fmt.Sprintf("%v: %v", ErrInternal, r))
		}
	}()

	if err := contact.Validate(); err != nil {
		if s.verbose {
			log.Printf("Skipping contact %q: %v", contact.DisplayName(), err)
		}
		result.Skipped = true
		return result
	}

	domain := CleanDomain(contact.Domain)
	name := NormalizeContactName(contact)

	// Gather phase: pattern generation, scraping and MX resolution overlap.
	var patternCands, scrapedCands []*Candidate
	var mx *MxResult

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		patternCands = GeneratePatternCandidates(name, domain)
		return nil
	})
	g.Go(func() error {
		// Scrape failure is tolerated; patterns alone still make a pipeline.
		scraped, err := s.scraper.Scrape(gctx, domain)
		if err != nil {
			if s.verbose {
				log.Printf("Scrape failed for %s: %v", domain, err)
			}
			return nil
		}
		scrapedCands = scraped
		return nil
	})
	g.Go(func() error {
		mx = s.resolver.ResolveMX(gctx, domain)
		return nil
	})
	_ = g.Wait()

	candidates := DedupCandidates(append(append([]*Candidate{}, patternCands...), scrapedCands...))
	if len(candidates) == 0 {
		return result
	}

	if mx.Err != nil {
		s.handleUnresolvedDomain(domain, mx, candidates)
	}

	s.aggregator.VerifyAll(ctx, name, mx, candidates, result.Log)
	best, ranked := s.aggregator.Select(candidates)

	for _, c := range ranked {
		result.FoundEmails = append(result.FoundEmails, *c)
	}
	if best != nil {
		result.Email = strPtr(best.Email)
		result.ConfidenceScore = best.Confidence
	}
	result.MethodsUsed = collectMethods(patternCands, scrapedCands, candidates)
	return result
}

// handleUnresolvedDomain annotates every candidate when MX resolution failed.
// When no API or headless provider can possibly apply either, candidates stay
// inconclusive and the pipeline drops straight through to selection.
func (s *Sleuth) handleUnresolvedDomain(domain string, mx *MxResult, candidates []*Candidate) {
	message := fmt.Sprintf("MX resolution failed: %v", mx.Err)
	if s.verbose {
		log.Printf("%s: %s", domain, message)
	}
	for _, c := range candidates {
		c.VerificationMessage = message
	}
}

// collectMethods builds the methods_used union for the result: which sources
// contributed candidates and which probe kinds actually ran.
func collectMethods(patterns, scraped, all []*Candidate) []string {
	set := make(map[string]bool)
	if len(patterns) > 0 {
		set[MethodPatternGeneration] = true
	}
	if len(scraped) > 0 {
		set[MethodWebsiteScraping] = true
	}
	for _, c := range all {
		for _, m := range []string{MethodSMTPVerification, MethodAPIVerification, MethodHeadlessVerification} {
			if c.Attempted(m) {
				set[m] = true
			}
		}
	}
	methods := make([]string, 0, len(set))
	for m := range set {
		methods = append(methods, m)
	}
	sort.Strings(methods)
	return methods
}
