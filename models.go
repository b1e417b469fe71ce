/*
 * Email Sleuth - Data Model Module
 *
 * Author: Dr.Anach
 * Telegram: @dranach
 */

package main

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Contact is a single input record: the person we are finding an address for.
type Contact struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	FullName  string `json:"full_name,omitempty"`
	Domain    string `json:"domain"`
}

// DisplayName returns the best human-readable name for log lines.
func (c Contact) DisplayName() string {
	if c.FullName != "" {
		return c.FullName
	}
	return strings.TrimSpace(c.FirstName + " " + c.LastName)
}

// Candidate sources.
const (
	SourcePattern  = "pattern"
	SourceScraped  = "scraped"
	SourceExplicit = "explicit"
)

// Method kinds recorded in methods_used / methods_attempted.
const (
	MethodPatternGeneration    = "pattern_generation"
	MethodWebsiteScraping      = "website_scraping"
	MethodSMTPVerification     = "smtp_verification"
	MethodAPIVerification      = "api_verification"
	MethodHeadlessVerification = "headless_verification"
)

// Candidate is a single local@domain address under evaluation, with all the
// evidence gathered for it so far. Confidence is always kept in [0, 10] by
// the aggregator; nobody else writes it.
type Candidate struct {
	Email               string `json:"email"`
	Confidence          int    `json:"confidence"`
	Source              string `json:"source"`
	IsGeneric           bool   `json:"is_generic"`
	VerificationStatus  *bool  `json:"verification_status"`
	VerificationMessage string `json:"verification_message"`

	// Internal scoring state, owned by the aggregator.
	baseConfidence   int
	smtpDelta        int
	apiDelta         int
	headlessDelta    int
	priority         int             // generation order, lower = preferred on ties
	dropped          bool            // definitive does_not_exist
	methodsAttempted map[string]bool // probe kinds actually run
}

// MarkAttempted records that a probe kind ran against this candidate.
func (c *Candidate) MarkAttempted(method string) {
	if c.methodsAttempted == nil {
		c.methodsAttempted = make(map[string]bool)
	}
	c.methodsAttempted[method] = true
}

// Attempted reports whether a probe kind ran against this candidate.
func (c *Candidate) Attempted(method string) bool {
	return c.methodsAttempted[method]
}

// ProbeAttempt is one append-only verification log entry for a candidate.
type ProbeAttempt struct {
	Kind       string    `json:"kind"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Outcome    string    `json:"outcome"`
	Detail     string    `json:"detail"`
}

// VerificationLog maps candidate email -> ordered probe attempts.
type VerificationLog map[string][]ProbeAttempt

// Append records an attempt for the given candidate email.
func (vl VerificationLog) Append(email string, attempt ProbeAttempt) {
	vl[email] = append(vl[email], attempt)
}

// ContactResult is the output record for one input contact. Field names match
// the batch output contract; FoundEmails is ordered best-first and bounded by
// max_alternatives+1.
type ContactResult struct {
	ContactInput    Contact         `json:"contact_input"`
	Email           *string         `json:"email"`
	ConfidenceScore int             `json:"confidence_score"`
	FoundEmails     []Candidate     `json:"found_emails"`
	MethodsUsed     []string        `json:"methods_used"`
	Log             VerificationLog `json:"verification_log"`
	Skipped         bool            `json:"email_finding_skipped"`
	Error           *string         `json:"email_finding_error"`
}

// MxRecord is a single mail exchanger for a domain.
type MxRecord struct {
	Host       string `json:"host"`
	Preference uint16 `json:"preference"`
}

// MxResult is the cached outcome of one MX resolution.
type MxResult struct {
	Domain  string
	Records []MxRecord // ascending by preference
	Err     error      // non-nil when resolution failed
}

// SortRecords orders the records ascending by preference, host as tiebreak.
func (m *MxResult) SortRecords() {
	sort.Slice(m.Records, func(i, j int) bool {
		if m.Records[i].Preference != m.Records[j].Preference {
			return m.Records[i].Preference < m.Records[j].Preference
		}
		return m.Records[i].Host < m.Records[j].Host
	})
}

// Validate checks the contact invariant: at least one name field and a
// syntactically plausible domain after cleanup.
func (c *Contact) Validate() error {
	first := strings.TrimSpace(c.FirstName)
	last := strings.TrimSpace(c.LastName)
	full := strings.TrimSpace(c.FullName)
	if first == "" && last == "" && full == "" {
		return fmt.Errorf("%w: contact has no name fields", ErrInvalidInput)
	}
	domain := CleanDomain(c.Domain)
	if domain == "" || !isValidDomain(domain) {
		return fmt.Errorf("%w: invalid domain %q", ErrInvalidInput, c.Domain)
	}
	return nil
}

// CleanDomain strips scheme, path, port and leading www from a domain field so
// inputs like "https://www.example.com/about" become "example.com".
func CleanDomain(raw string) string {
	domain := strings.TrimSpace(strings.ToLower(raw))
	if i := strings.Index(domain, "://"); i >= 0 {
		domain = domain[i+3:]
	}
	if i := strings.IndexAny(domain, "/?#"); i >= 0 {
		domain = domain[:i]
	}
	if i := strings.Index(domain, "@"); i >= 0 {
		domain = domain[i+1:]
	}
	if i := strings.Index(domain, ":"); i >= 0 {
		domain = domain[:i]
	}
	domain = strings.TrimPrefix(domain, "www.")
	return strings.Trim(domain, ".")
}

// isValidDomain performs a light syntactic check on a DNS name.
func isValidDomain(domain string) bool {
	if len(domain) < 3 || len(domain) > 253 {
		return false
	}
	if !strings.Contains(domain, ".") {
		return false
	}
	for _, label := range strings.Split(domain, ".") {
		if label == "" || len(label) > 63 {
			return false
		}
		for i := 0; i < len(label); i++ {
			ch := label[i]
			isAlnum := (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || (ch >= '0' && ch <= '9')
			if !isAlnum && ch != '-' {
				return false
			}
		}
		if label[0] == '-' || label[len(label)-1] == '-' {
			return false
		}
	}
	return true
}

// boolPtr is a tiny helper for the tri-state verification status.
func boolPtr(v bool) *bool { return &v }

// strPtr is a tiny helper for nullable output strings.
func strPtr(s string) *string { return &s }
