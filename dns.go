/*
 * Email Sleuth - DNS Resolution Module
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
	"net"
	"strings"
	"sync"

	"github.com/miekg/dns"
)

// mxResolver is the narrow interface the pipeline depends on; tests plug in
// deterministic implementations.
type mxResolver interface {
	ResolveMX(ctx context.Context, domain string) *MxResult
}

// Resolver resolves MX records by racing queries across the configured DNS
// servers and caches results for the lifetime of the run.
type Resolver struct {
	cfg    *Config
	client *dns.Client

	cacheMutex sync.RWMutex
	cache      map[string]*MxResult

	// exchange is swappable for tests; defaults to a real DNS exchange.
	exchange func(ctx context.Context, msg *dns.Msg, server string) (*dns.Msg, error)
}

// NewResolver builds a Resolver from the run configuration.
func NewResolver(cfg *Config) *Resolver {
	client := &dns.Client{Timeout: cfg.DNSTimeout()}
	r := &Resolver{
		cfg:    cfg,
		client: client,
		cache:  make(map[string]*MxResult),
	}
	r.exchange = func(ctx context.Context, msg *dns.Msg, server string) (*dns.Msg, error) {
		reply, _, err := r.client.ExchangeContext(ctx, msg, server)
		return reply, err
	}
	return r
}

// ResolveMX returns the mail exchangers for a domain, consulting the per-run
// cache first. A domain resolved once yields identical data on every
// subsequent request within the run.
func (r *Resolver) ResolveMX(ctx context.Context, domain string) *MxResult {
	domain = strings.ToLower(strings.TrimSuffix(domain, "."))

	r.cacheMutex.RLock()
	if cached, ok := r.cache[domain]; ok {
		r.cacheMutex.RUnlock()
		return cached
	}
	r.cacheMutex.RUnlock()

	result := r.lookup(ctx, domain)

	r.cacheMutex.Lock()
	// Another goroutine may have resolved the same domain while we were
	// querying; keep the first stored result so repeat reads stay identical.
	if cached, ok := r.cache[domain]; ok {
		r.cacheMutex.Unlock()
		return cached
	}
	r.cache[domain] = result
	r.cacheMutex.Unlock()
	return result
}

func (r *Resolver) lookup(ctx context.Context, domain string) *MxResult {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.DNSTimeout())
	defer cancel()

	reply, err := r.race(ctx, domain, dns.TypeMX)
	if err != nil {
		return &MxResult{Domain: domain, Err: err}
	}
	if reply.Rcode == dns.RcodeNameError {
		return &MxResult{Domain: domain, Err: fmt.Errorf("%w: %s", ErrNxDomain, domain)}
	}

	result := &MxResult{Domain: domain}
	for _, rr := range reply.Answer {
		if mx, ok := rr.(*dns.MX); ok {
			host := strings.TrimSuffix(mx.Mx, ".")
			if host == "" {
				continue
			}
			result.Records = append(result.Records, MxRecord{Host: host, Preference: mx.Preference})
		}
	}
	if len(result.Records) > 0 {
		result.SortRecords()
		return result
	}

	// No MX records: fall back to an A lookup and treat the domain itself as
	// an implicit mail host (preference 0).
	aReply, aErr := r.race(ctx, domain, dns.TypeA)
	if aErr == nil && aReply.Rcode == dns.RcodeSuccess {
		for _, rr := range aReply.Answer {
			if _, ok := rr.(*dns.A); ok {
				log.Printf("No MX for %s, falling back to A record", domain)
				result.Records = []MxRecord{{Host: domain, Preference: 0}}
				return result
			}
		}
	}
	result.Err = fmt.Errorf("%w: %s", ErrNoDNSRecords, domain)
	return result
}

// race queries every configured server concurrently and returns the first
// successful reply. All failures collapse into one classified error.
func (r *Resolver) race(ctx context.Context, domain string, qtype uint16) (*dns.Msg, error) {
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(domain), qtype)

	type answer struct {
		reply *dns.Msg
		err   error
	}
	servers := r.cfg.DNS.DNSServers
	results := make(chan answer, len(servers))
	for _, server := range servers {
		go func(server string) {
			reply, err := r.exchange(ctx, msg.Copy(), ensureDNSPort(server))
			results <- answer{reply, err}
		}(server)
	}

	var lastErr error
	for range servers {
		select {
		case a := <-results:
			if a.err == nil && a.reply != nil {
				return a.reply, nil
			}
			if a.err != nil {
				lastErr = a.err
			}
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s", ErrDNSTimeout, domain)
		}
	}
	if lastErr == nil {
		lastErr = errors.New("no reply from any server")
	}
	if errors.Is(classifyNetError(lastErr), ErrNetworkTimeout) {
		return nil, fmt.Errorf("%w: %s: %v", ErrDNSTimeout, domain, lastErr)
	}
	return nil, fmt.Errorf("%w: %s: %v", ErrDNSFailure, domain, lastErr)
}

// ensureDNSPort appends the default DNS port when the server address has none.
func ensureDNSPort(server string) string {
	if _, _, err := net.SplitHostPort(server); err == nil {
		return server
	}
	return net.JoinHostPort(server, "53")
}

// CacheSize reports how many domains have been resolved this run.
func (r *Resolver) CacheSize() int {
	r.cacheMutex.RLock()
	defer r.cacheMutex.RUnlock()
	return len(r.cache)
}
