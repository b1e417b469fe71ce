/*
 * Email Sleuth - Website Scraping Module
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
	"net/http/cookiejar"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/time/rate"
)

// maxContactPages bounds how many discovered contact/about/team pages are
// visited per domain.
const maxContactPages = 8

// maxRedirectHops bounds a single redirect chain.
const maxRedirectHops = 5

var emailRegex = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)

// obfuscationReplacer rewrites the common at/dot disguises before the email
// regex runs. Ordered: bracketed forms first so the spaced forms cannot eat
// their delimiters.
var obfuscationReplacer = strings.NewReplacer(
	"&#64;", "@",
	"&commat;", "@",
	" [at] ", "@",
	"[at]", "@",
	"(at)", "@",
	" at ", "@",
	" [dot] ", ".",
	"[dot]", ".",
	"(dot)", ".",
	" dot ", ".",
)

// Scraper fetches a company site and extracts addresses that belong to the
// target domain.
type Scraper struct {
	cfg     *Config
	client  *http.Client
	limiter *rate.Limiter
	sleep   func(ctx context.Context, d time.Duration)
	verbose bool
}

// NewScraper wires the scraper to the shared HTTP client and the global HTTP
// token bucket.
func NewScraper(cfg *Config, client *http.Client, limiter *rate.Limiter) *Scraper {
	return &Scraper{
		cfg:     cfg,
		client:  client,
		limiter: limiter,
		sleep:   sleepWithContext,
	}
}

// newHTTPClient builds the shared connection-pooling HTTP client: pinned
// user agent is applied per-request, cookies persist across the redirect
// chain, and chains are cut after maxRedirectHops.
func newHTTPClient(cfg *Config) *http.Client {
	transport := &http.Transport{
		MaxIdleConns:          64,
		MaxIdleConnsPerHost:   8,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ResponseHeaderTimeout: cfg.RequestTimeout(),
		Proxy:                 http.ProxyFromEnvironment,
	}
	client := &http.Client{
		Transport: transport,
		Timeout:   cfg.RequestTimeout(),
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirectHops {
				return fmt.Errorf("stopped after %d redirects", maxRedirectHops)
			}
			return nil
		},
	}
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		log.Printf("Warning: failed to create cookie jar: %v", err)
		return client
	}
	client.Jar = jar
	return client
}

// Scrape fetches the homepage (https first, http fallback) plus up to
// maxContactPages contact-ish pages and returns deduplicated candidates whose
// domain matches the target.
func (s *Scraper) Scrape(ctx context.Context, domain string) ([]*Candidate, error) {
	doc, baseURL, err := s.fetchHomepage(ctx, domain)
	if err != nil {
		return nil, err
	}

	emails := s.extractEmailsFromDoc(doc)

	pages := s.findContactPages(doc, baseURL)
	for i, page := range pages {
		if i >= maxContactPages {
			break
		}
		s.sleep(ctx, s.cfg.randomSleepDuration())
		pageDoc, err := s.fetch(ctx, page)
		if err != nil {
			if s.verbose {
				log.Printf("Scrape: skipping %s: %v", page, err)
			}
			continue
		}
		emails = append(emails, s.extractEmailsFromDoc(pageDoc)...)
	}

	return scrapedCandidates(emails, domain), nil
}

// fetchHomepage tries https://{domain} then http://{domain}.
func (s *Scraper) fetchHomepage(ctx context.Context, domain string) (*goquery.Document, string, error) {
	httpsURL := "https://" + domain
	doc, err := s.fetch(ctx, httpsURL)
	if err == nil {
		return doc, httpsURL, nil
	}
	httpURL := "http://" + domain
	doc, httpErr := s.fetch(ctx, httpURL)
	if httpErr == nil {
		return doc, httpURL, nil
	}
	return nil, "", fmt.Errorf("failed to fetch homepage for %s: %w", domain, err)
}

// fetch performs one rate-limited GET and parses the body.
func (s *Scraper) fetch(ctx context.Context, pageURL string) (*goquery.Document, error) {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	ctx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", s.cfg.Network.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, classifyNetError(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status %d for %s", resp.StatusCode, pageURL)
	}
	return goquery.NewDocumentFromReader(resp.Body)
}

// extractEmailsFromDoc pulls addresses out of one page: mailto hrefs first
// (most reliable), then plain-text matches, then de-obfuscated matches, then
// data attributes.
func (s *Scraper) extractEmailsFromDoc(doc *goquery.Document) []string {
	var emails []string

	doc.Find("a[href^='mailto:']").Each(func(i int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok {
			return
		}
		email := strings.TrimPrefix(href, "mailto:")
		email = strings.Split(email, "?")[0]
		email = strings.Split(email, "#")[0]
		if email = strings.TrimSpace(email); email != "" {
			emails = append(emails, email)
		}
	})

	text := doc.Text()
	emails = append(emails, emailRegex.FindAllString(text, -1)...)
	emails = append(emails, emailRegex.FindAllString(obfuscationReplacer.Replace(text), -1)...)

	doc.Find("[data-email], [data-contact], [data-mail]").Each(func(i int, sel *goquery.Selection) {
		for _, attr := range []string{"data-email", "data-contact", "data-mail"} {
			if v, ok := sel.Attr(attr); ok {
				emails = append(emails, emailRegex.FindAllString(v, -1)...)
			}
		}
	})

	return emails
}

// findContactPages collects absolute URLs of linked pages whose path matches
// the contact keywords, then appends the curated common paths.
func (s *Scraper) findContactPages(doc *goquery.Document, baseURL string) []string {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil
	}
	seen := make(map[string]bool)
	var pages []string
	add := func(u *url.URL) {
		u.Fragment = ""
		abs := u.String()
		if !seen[abs] && abs != baseURL {
			seen[abs] = true
			pages = append(pages, abs)
		}
	}

	doc.Find("a[href]").Each(func(i int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		link, err := base.Parse(href)
		if err != nil || link.Host != base.Host {
			return
		}
		path := strings.ToLower(link.Path)
		for _, kw := range contactLinkKeywords {
			if strings.Contains(path, kw) {
				add(link)
				return
			}
		}
	})

	// Well-known paths are tried even when the homepage never links them.
	for _, p := range commonPagesToScrape {
		if len(pages) >= maxContactPages {
			break
		}
		if link, err := base.Parse(p); err == nil {
			add(link)
		}
	}
	return pages
}

// scrapedCandidates normalizes, domain-filters and deduplicates raw scrape
// hits. The right-hand side must equal the target domain or be a suffix of it
// (mail.example.com matches example.com).
func scrapedCandidates(emails []string, domain string) []*Candidate {
	seen := make(map[string]bool)
	var out []*Candidate
	for i, raw := range emails {
		email := strings.ToLower(strings.TrimSpace(strings.Trim(raw, ".,;:<>()[]\"'")))
		at := strings.LastIndex(email, "@")
		if at <= 0 || at == len(email)-1 {
			continue
		}
		local, rhs := email[:at], email[at+1:]
		if rhs != domain && !strings.HasSuffix(rhs, "."+domain) {
			continue
		}
		if !emailRegex.MatchString(email) || seen[email] {
			continue
		}
		seen[email] = true
		generic := isGenericLocalPart(local)
		conf := 6
		if generic {
			conf = 3
		}
		out = append(out, &Candidate{
			Email:          email,
			Source:         SourceScraped,
			IsGeneric:      generic,
			baseConfidence: conf,
			priority:       100 + i,
		})
	}
	return out
}

// sleepWithContext waits for d unless the context expires first.
func sleepWithContext(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}
