/*
 * Email Sleuth - SMTP Verification Module
 *
 * Author: Dr.Anach
 * Telegram: @dranach
 */

package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"net"
	"net/smtp"
	"net/textproto"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// smtpResult is the outcome of SMTP verification for one candidate.
// Exists: true = mailbox exists, false = mailbox does not exist,
// nil = inconclusive.
type smtpResult struct {
	Exists      *bool
	Message     string
	ShouldRetry bool
	IsCatchAll  bool
}

func smtpConclusive(exists bool, message string) smtpResult {
	return smtpResult{Exists: boolPtr(exists), Message: message}
}

func smtpInconclusiveRetry(message string) smtpResult {
	return smtpResult{Message: message, ShouldRetry: true}
}

func smtpInconclusive(message string) smtpResult {
	return smtpResult{Message: message}
}

func smtpCatchAll(message string) smtpResult {
	return smtpResult{Message: message, IsCatchAll: true}
}

// Reply-token tables. MTA wording varies wildly; classification is data, not
// code, so new tokens are one-line additions.
var unknownUserTokens = []string{
	"no such user", "does not exist", "unknown", "invalid recipient",
	"user not found", "recipient not found", "no mailbox", "address rejected",
	"recipient address rejected", "mailbox unavailable",
}

var policyBlockTokens = []string{
	"blocked", "blacklist", "blacklisted", "policy", "spamhaus",
	"denied", "banned", "reputation",
}

func containsToken(msg string, tokens []string) bool {
	lower := strings.ToLower(msg)
	for _, tok := range tokens {
		if strings.Contains(lower, tok) {
			return true
		}
	}
	return false
}

// smtpSession is one open SMTP conversation. The production implementation
// wraps net/smtp.Client; tests script the replies.
type smtpSession interface {
	Hello(localName string) error
	Mail(from string) error
	Rcpt(to string) error
	Reset() error
	Quit() error
	Close() error
}

// smtpDialer opens a session to an MX host on port 25.
type smtpDialer func(ctx context.Context, host string, timeout time.Duration) (smtpSession, error)

// dialSMTP is the production dialer. The deadline covers the whole
// conversation, not just the TCP connect.
func dialSMTP(ctx context.Context, host string, timeout time.Duration) (smtpSession, error) {
	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(host, "25"))
	if err != nil {
		return nil, classifyNetError(err)
	}
	_ = conn.SetDeadline(time.Now().Add(timeout * 4))
	client, err := smtp.NewClient(conn, host)
	if err != nil {
		conn.Close()
		return nil, classifyNetError(err)
	}
	return client, nil
}

// smtpContactState holds the per-contact catch-all knowledge. It never
// crosses contact boundaries.
type smtpContactState struct {
	mu       sync.Mutex
	catchAll map[string]bool // mx host -> accepted an absurd local-part
	probed   map[string]bool // mx host -> catch-all probe already ran
}

func newSMTPContactState() *smtpContactState {
	return &smtpContactState{
		catchAll: make(map[string]bool),
		probed:   make(map[string]bool),
	}
}

func (s *smtpContactState) isCatchAll(host string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.catchAll[host]
}

func (s *smtpContactState) markProbed(host string, catchAll bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.probed[host] = true
	s.catchAll[host] = catchAll
}

func (s *smtpContactState) needsProbe(host string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.probed[host]
}

// SMTPProber runs the EHLO/MAIL FROM/RCPT TO conversation against a
// candidate's MX hosts in preference order.
type SMTPProber struct {
	cfg     *Config
	dial    smtpDialer
	limiter *rate.Limiter
	mxLocks *keyedMutex
	sleep   func(ctx context.Context, d time.Duration)
	verbose bool
}

// NewSMTPProber wires the prober to the global SMTP token bucket and the
// per-MX serialization map.
func NewSMTPProber(cfg *Config, limiter *rate.Limiter, mxLocks *keyedMutex) *SMTPProber {
	return &SMTPProber{
		cfg:     cfg,
		dial:    dialSMTP,
		limiter: limiter,
		mxLocks: mxLocks,
		sleep:   sleepWithContext,
	}
}

// Verify probes the candidate against each MX host until a definitive answer
// is reached, retrying temporary failures up to max_verification_attempts
// with backoff. A definitive does_not_exist is never overturned by retries.
func (p *SMTPProber) Verify(ctx context.Context, state *smtpContactState, records []MxRecord, email string) smtpResult {
	if len(records) == 0 {
		return smtpInconclusive("no MX hosts to probe")
	}

	maxAttempts := p.cfg.SMTP.MaxVerificationAttempts
	last := smtpInconclusive("all MX hosts exhausted")

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if ctx.Err() != nil {
			return smtpInconclusive("verification cancelled")
		}
		for _, mx := range records {
			result, connErr := p.probeHost(ctx, state, mx.Host, email)
			if connErr != nil {
				// Connection refused / timeout advances to the next MX.
				if p.verbose {
					log.Printf("SMTP: %s via %s: %v", email, mx.Host, connErr)
				}
				last = smtpInconclusive(fmt.Sprintf("connection to %s failed: %v", mx.Host, connErr))
				continue
			}
			if result.Exists != nil {
				return result
			}
			last = result
			if !result.ShouldRetry {
				// Permanent-but-unclassifiable or catch-all: more MX hosts
				// will not change the answer for this attempt.
				if result.IsCatchAll {
					return result
				}
			}
		}
		if !last.ShouldRetry {
			break
		}
		if attempt < maxAttempts {
			p.sleep(ctx, time.Duration(attempt*500)*time.Millisecond)
		}
	}
	return last
}

// probeHost runs one conversation against a single MX host. The returned
// error is a transport-level failure (connect/banner); protocol-level answers
// always come back as an smtpResult.
func (p *SMTPProber) probeHost(ctx context.Context, state *smtpContactState, host, email string) (smtpResult, error) {
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return smtpResult{}, err
		}
	}
	// One live conversation per MX host at a time.
	unlock := p.mxLocks.Lock(host)
	defer unlock()

	session, err := p.dial(ctx, host, p.cfg.SMTPTimeout())
	if err != nil {
		return smtpResult{}, err
	}
	defer session.Close()

	if err := session.Hello(p.cfg.SenderDomain()); err != nil {
		return smtpResult{}, classifyNetError(err)
	}
	if err := session.Mail(p.cfg.SMTP.SenderEmail); err != nil {
		return p.classifyCommandError("MAIL FROM", err), nil
	}

	// Catch-all detection: an absurd local-part accepted once per
	// (contact, MX) marks the host catch-all for the rest of the contact.
	if state.needsProbe(host) {
		absurd := randomLocalPart() + "@" + domainOf(email)
		rcptErr := session.Rcpt(absurd)
		state.markProbed(host, rcptErr == nil)
		if rcptErr == nil {
			if p.verbose {
				log.Printf("SMTP: %s accepts random recipients (catch-all)", host)
			}
		}
		if err := session.Reset(); err != nil {
			session.Quit()
			return smtpResult{}, classifyNetError(err)
		}
		if err := session.Mail(p.cfg.SMTP.SenderEmail); err != nil {
			session.Quit()
			return p.classifyCommandError("MAIL FROM", err), nil
		}
	}

	rcptErr := session.Rcpt(email)
	_ = session.Quit()

	if rcptErr == nil {
		if state.isCatchAll(host) {
			return smtpCatchAll(fmt.Sprintf("%s accepted RCPT but is catch-all", host)), nil
		}
		return smtpConclusive(true, fmt.Sprintf("%s accepted RCPT TO", host)), nil
	}
	return classifyRcptError(host, rcptErr), nil
}

// classifyRcptError maps the RCPT TO reply onto the verification outcome.
func classifyRcptError(host string, err error) smtpResult {
	var protoErr *textproto.Error
	if !errors.As(err, &protoErr) {
		classified := classifyNetError(err)
		if errors.Is(classified, ErrNetworkTimeout) {
			return smtpInconclusiveRetry(fmt.Sprintf("%s: timeout awaiting RCPT reply", host))
		}
		return smtpInconclusive(fmt.Sprintf("%s: %v", host, err))
	}

	code, msg := protoErr.Code, protoErr.Msg
	switch {
	case code == 250 || code == 251:
		return smtpConclusive(true, fmt.Sprintf("%s replied %d", host, code))
	case code == 450 || code == 451 || code == 452 || code == 421:
		// Greylisting and other temporary rejections: inconclusive, retry.
		return smtpInconclusiveRetry(fmt.Sprintf("%s temporary reject %d: %s", host, code, msg))
	case (code == 550 || code == 551 || code == 553 || code == 554) && containsToken(msg, policyBlockTokens):
		return smtpInconclusive(fmt.Sprintf("%s policy block %d: %s", host, code, msg))
	case (code == 550 || code == 551 || code == 553 || code == 554) && containsToken(msg, unknownUserTokens):
		return smtpConclusive(false, fmt.Sprintf("%s rejected recipient %d: %s", host, code, msg))
	case code == 550:
		// Bare 550 without a recognizable token is still the canonical
		// unknown-user reply on most MTAs.
		return smtpConclusive(false, fmt.Sprintf("%s rejected recipient %d: %s", host, code, msg))
	case code >= 500:
		return smtpInconclusive(fmt.Sprintf("%s permanent reject %d: %s", host, code, msg))
	default:
		return smtpInconclusive(fmt.Sprintf("%s unexpected reply %d: %s", host, code, msg))
	}
}

// classifyCommandError handles failures of commands before RCPT.
func (p *SMTPProber) classifyCommandError(command string, err error) smtpResult {
	var protoErr *textproto.Error
	if errors.As(err, &protoErr) {
		if protoErr.Code >= 400 && protoErr.Code < 500 {
			return smtpInconclusiveRetry(fmt.Sprintf("%s temporary reject %d: %s", command, protoErr.Code, protoErr.Msg))
		}
		return smtpInconclusive(fmt.Sprintf("%s rejected %d: %s", command, protoErr.Code, protoErr.Msg))
	}
	return smtpInconclusive(fmt.Sprintf("%s failed: %v", command, err))
}

const localPartAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// randomLocalPart returns a 16-char alphanumeric local-part that cannot
// plausibly exist as a mailbox.
func randomLocalPart() string {
	b := make([]byte, 16)
	for i := range b {
		b[i] = localPartAlphabet[rand.Intn(len(localPartAlphabet))]
	}
	return string(b)
}

// domainOf returns the part after the last @.
func domainOf(email string) string {
	if i := strings.LastIndex(email, "@"); i >= 0 {
		return email[i+1:]
	}
	return email
}

// keyedMutex serializes work per string key (one live SMTP conversation per
// MX host process-wide).
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*sync.Mutex)}
}

// Lock acquires the mutex for key and returns its unlock function.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()
	m.Lock()
	return m.Unlock
}
