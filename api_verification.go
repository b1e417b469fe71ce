/*
 * Email Sleuth - Provider API Verification Module
 *
 * Author: Dr.Anach
 * Telegram: @dranach
 */

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// probeOutcome is the tri-state answer of an API or headless probe.
type probeOutcome struct {
	Exists  *bool
	Message string
}

// apiProvider is one provider plugin: a cheap matcher plus a probe. Probes
// must never make destructive calls and must respect the HTTP timeout.
type apiProvider struct {
	name    string
	matches func(domain string, mx []MxRecord) bool
	probe   func(ctx context.Context, client *http.Client, cfg *Config, email string) (probeOutcome, error)
}

// APIProber resolves the first matching provider plugin for a candidate's
// domain and runs its probe.
type APIProber struct {
	cfg       *Config
	client    *http.Client
	providers []apiProvider
}

// NewAPIProber builds the prober with the default provider registry.
func NewAPIProber(cfg *Config, client *http.Client) *APIProber {
	return &APIProber{cfg: cfg, client: client, providers: defaultAPIProviders()}
}

// Match returns the first provider claiming the domain, or nil.
func (p *APIProber) Match(domain string, mx []MxRecord) *apiProvider {
	for i := range p.providers {
		if p.providers[i].matches(domain, mx) {
			return &p.providers[i]
		}
	}
	return nil
}

// Probe runs the matched provider's check for one candidate.
func (p *APIProber) Probe(ctx context.Context, provider *apiProvider, email string) probeOutcome {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.RequestTimeout())
	defer cancel()
	outcome, err := provider.probe(ctx, p.client, p.cfg, email)
	if err != nil {
		return probeOutcome{Message: fmt.Sprintf("%s probe failed: %v", provider.name, err)}
	}
	return outcome
}

// microsoftCredentialTypeURL is the endpoint that answers whether an account
// exists for consumer and many enterprise Microsoft domains.
var microsoftCredentialTypeURL = "https://login.microsoftonline.com/common/GetCredentialType"

var microsoftConsumerDomains = map[string]bool{
	"outlook.com": true, "hotmail.com": true, "live.com": true,
	"msn.com": true, "outlook.de": true, "hotmail.co.uk": true,
}

// defaultAPIProviders is the startup registry. New providers are additions to
// this slice.
func defaultAPIProviders() []apiProvider {
	return []apiProvider{
		{
			name:    "microsoft",
			matches: matchesMicrosoft,
			probe:   probeMicrosoft,
		},
	}
}

// matchesMicrosoft claims consumer Microsoft domains and any domain whose MX
// points at Exchange Online.
func matchesMicrosoft(domain string, mx []MxRecord) bool {
	if microsoftConsumerDomains[strings.ToLower(domain)] {
		return true
	}
	for _, record := range mx {
		host := strings.ToLower(record.Host)
		if strings.HasSuffix(host, ".mail.protection.outlook.com") ||
			strings.HasSuffix(host, ".olc.protection.outlook.com") {
			return true
		}
	}
	return false
}

// probeMicrosoft posts the username to GetCredentialType and reads the
// IfExistsResult field: 0/5/6 = account exists, 1 = unknown account,
// anything else (or throttling) is inconclusive.
func probeMicrosoft(ctx context.Context, client *http.Client, cfg *Config, email string) (probeOutcome, error) {
	payload, err := json.Marshal(map[string]string{"Username": email})
	if err != nil {
		return probeOutcome{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, microsoftCredentialTypeURL, bytes.NewReader(payload))
	if err != nil {
		return probeOutcome{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", cfg.Network.UserAgent)

	resp, err := client.Do(req)
	if err != nil {
		return probeOutcome{}, classifyNetError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return probeOutcome{Message: "microsoft endpoint throttled the probe"}, nil
	}
	if resp.StatusCode != http.StatusOK {
		return probeOutcome{Message: fmt.Sprintf("microsoft endpoint returned status %d", resp.StatusCode)}, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return probeOutcome{}, err
	}
	var parsed struct {
		IfExistsResult int `json:"IfExistsResult"`
		ThrottleStatus int `json:"ThrottleStatus"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return probeOutcome{Message: "microsoft endpoint returned unparseable body"}, nil
	}
	if parsed.ThrottleStatus == 1 {
		return probeOutcome{Message: "microsoft endpoint throttled the probe"}, nil
	}
	switch parsed.IfExistsResult {
	case 0, 5, 6:
		return probeOutcome{Exists: boolPtr(true), Message: "microsoft reports the account exists"}, nil
	case 1:
		return probeOutcome{Exists: boolPtr(false), Message: "microsoft reports no such account"}, nil
	default:
		return probeOutcome{Message: fmt.Sprintf("microsoft returned IfExistsResult=%d", parsed.IfExistsResult)}, nil
	}
}
