package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"
)

// rewriteTransport sends every request to the test server regardless of the
// requested host, so Scrape("example.com") stays local.
type rewriteTransport struct {
	target *url.URL
}

func (t rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	clone.URL.Scheme = t.target.Scheme
	clone.URL.Host = t.target.Host
	return http.DefaultTransport.RoundTrip(clone)
}

func newTestScraper(t *testing.T, handler http.Handler) (*Scraper, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	target, err := url.Parse(server.URL)
	if err != nil {
		t.Fatal(err)
	}
	cfg := DefaultConfig()
	cfg.Network.MinSleep = 0
	cfg.Network.MaxSleep = 0
	client := &http.Client{Transport: rewriteTransport{target: target}, Timeout: 5 * time.Second}
	s := NewScraper(&cfg, client, nil)
	s.sleep = func(ctx context.Context, d time.Duration) {}
	return s, server
}

func scrapeEmailSet(t *testing.T, candidates []*Candidate) map[string]*Candidate {
	t.Helper()
	set := make(map[string]*Candidate)
	for _, c := range candidates {
		set[c.Email] = c
	}
	return set
}

func TestScrapeExtractsAndFilters(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body>
			<a href="mailto:Jane.Smith@example.com?subject=hi">mail us</a>
			<p>Reach sales at sales@example.com or our CDN at noc@othercorp.net.</p>
			<p>Support: help [at] example.com</p>
			<a href="/contact">Contact us</a>
		</body></html>`))
	})
	mux.HandleFunc("/contact", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body>
			<span data-email="press@example.com"></span>
			<p>billing (at) mail.example.com is obfuscated twice: billing(at)mail.example.com</p>
		</body></html>`))
	})

	s, _ := newTestScraper(t, mux)
	candidates, err := s.Scrape(context.Background(), "example.com")
	if err != nil {
		t.Fatalf("Scrape: %v", err)
	}
	set := scrapeEmailSet(t, candidates)

	if _, ok := set["jane.smith@example.com"]; !ok {
		t.Error("mailto address missing (and should be lowercased)")
	}
	if _, ok := set["sales@example.com"]; !ok {
		t.Error("plain-text address missing")
	}
	if _, ok := set["press@example.com"]; !ok {
		t.Error("data-email attribute address missing")
	}
	if _, ok := set["billing@mail.example.com"]; !ok {
		t.Error("subdomain address should pass the domain filter")
	}
	if _, ok := set["noc@othercorp.net"]; ok {
		t.Error("foreign-domain address must be filtered out")
	}

	// Confidence and generic flags follow the scrape policy.
	if c := set["jane.smith@example.com"]; c.baseConfidence != 6 || c.IsGeneric {
		t.Errorf("jane.smith: conf=%d generic=%t, want 6/false", c.baseConfidence, c.IsGeneric)
	}
	if c := set["sales@example.com"]; c.baseConfidence != 3 || !c.IsGeneric {
		t.Errorf("sales: conf=%d generic=%t, want 3/true", c.baseConfidence, c.IsGeneric)
	}
	for _, c := range candidates {
		if c.Source != SourceScraped {
			t.Errorf("%s: source = %q", c.Email, c.Source)
		}
	}
}

func TestScrapeDeobfuscatesSpacedAt(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body>
			<p>write to john.doe [at] example.com</p>
			<p>or jane at example dot com spelled out</p>
			<p>carol&#64;example.com uses an entity</p>
		</body></html>`))
	})
	s, _ := newTestScraper(t, mux)
	candidates, err := s.Scrape(context.Background(), "example.com")
	if err != nil {
		t.Fatalf("Scrape: %v", err)
	}
	set := scrapeEmailSet(t, candidates)
	if _, ok := set["john.doe@example.com"]; !ok {
		t.Error("bracketed [at] obfuscation not decoded")
	}
	if _, ok := set["jane@example.com"]; !ok {
		t.Error("spelled-out at/dot obfuscation not decoded")
	}
	if _, ok := set["carol@example.com"]; !ok {
		t.Error("&#64; entity obfuscation not decoded")
	}
}

func TestScrapeVisitsAtMostEightContactPages(t *testing.T) {
	var contactHits int
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" {
			var b strings.Builder
			b.WriteString("<html><body>")
			for i := 0; i < 20; i++ {
				b.WriteString(`<a href="/contact-` + strings.Repeat("x", i+1) + `">contact</a>`)
			}
			b.WriteString("</body></html>")
			w.Write([]byte(b.String()))
			return
		}
		contactHits++
		w.Write([]byte("<html><body>nothing here</body></html>"))
	})
	s, _ := newTestScraper(t, mux)
	if _, err := s.Scrape(context.Background(), "example.com"); err != nil {
		t.Fatalf("Scrape: %v", err)
	}
	if contactHits > maxContactPages {
		t.Errorf("visited %d contact pages, want at most %d", contactHits, maxContactPages)
	}
}

func TestScrapeHomepageFailure(t *testing.T) {
	s, _ := newTestScraper(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusServiceUnavailable)
	}))
	if _, err := s.Scrape(context.Background(), "example.com"); err == nil {
		t.Fatal("expected an error when the homepage is unreachable")
	}
}

func TestScrapedCandidatesDedup(t *testing.T) {
	got := scrapedCandidates([]string{
		"Info@Example.com",
		"info@example.com",
		"info@example.com.",
	}, "example.com")
	if len(got) != 1 {
		t.Fatalf("got %d candidates, want 1", len(got))
	}
	if got[0].Email != "info@example.com" {
		t.Errorf("email = %q", got[0].Email)
	}
}

func TestFindContactPagesKeywords(t *testing.T) {
	mux := http.NewServeMux()
	pagesSeen := make(map[string]bool)
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" {
			w.Write([]byte(`<html><body>
				<a href="/about-us">About</a>
				<a href="/products">Products</a>
				<a href="/impressum">Impressum</a>
				<a href="https://elsewhere.test/contact">External</a>
			</body></html>`))
			return
		}
		pagesSeen[r.URL.Path] = true
		w.Write([]byte("<html></html>"))
	})
	s, _ := newTestScraper(t, mux)
	if _, err := s.Scrape(context.Background(), "example.com"); err != nil {
		t.Fatalf("Scrape: %v", err)
	}
	if !pagesSeen["/about-us"] || !pagesSeen["/impressum"] {
		t.Errorf("contact-like pages not visited: %v", pagesSeen)
	}
	if pagesSeen["/products"] {
		t.Error("non-contact page should not be visited")
	}
}
