/*
 * Email Sleuth - Headless Browser Verification Module
 *
 * Author: Dr.Anach
 * Telegram: @dranach
 */

package main

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/tebeka/selenium"
	"github.com/tebeka/selenium/chrome"
	"golang.org/x/time/rate"
)

// headlessFlow describes a provider's password-recovery form: where to go,
// what to fill, and which selectors distinguish the terminal states.
type headlessFlow struct {
	entryURL           string
	emailInput         string
	submitButton       string
	captchaSelectors   []string
	existsSelectors    []string
	notExistsSelectors []string
}

// headlessProvider pairs a domain matcher with its recovery flow.
type headlessProvider struct {
	name    string
	matches func(domain string, mx []MxRecord) bool
	flow    headlessFlow
}

// defaultHeadlessProviders is the startup registry.
func defaultHeadlessProviders() []headlessProvider {
	return []headlessProvider{
		{
			name:    "microsoft",
			matches: matchesMicrosoft,
			flow: headlessFlow{
				entryURL:     "https://account.live.com/password/reset",
				emailInput:   "#iSigninName",
				submitButton: "#resetPwdHipAction",
				captchaSelectors: []string{
					"#hipEnforcementContainer",
					"iframe[src*='captcha']",
					"iframe[title*='CAPTCHA']",
				},
				existsSelectors:    []string{"#iSelectProofTitle", "#iEnterVerification"},
				notExistsSelectors: []string{"#pMemberNameErr", "#iSigninNameError"},
			},
		},
		{
			name:    "yahoo",
			matches: matchesYahoo,
			flow: headlessFlow{
				entryURL:         "https://login.yahoo.com/forgot",
				emailInput:       "#username",
				submitButton:     "button[name='verifyYid']",
				captchaSelectors: []string{".recaptcha-challenge"},
				existsSelectors: []string{
					"#email-verify-challenge",
					"#challenge-selector-challenge",
				},
				notExistsSelectors: []string{".error-msg", ".ctx-account_is_locked"},
			},
		},
	}
}

var yahooConsumerDomains = map[string]bool{
	"yahoo.com": true, "ymail.com": true, "rocketmail.com": true,
	"yahoo.co.uk": true, "yahoo.fr": true, "yahoo.de": true,
}

func matchesYahoo(domain string, mx []MxRecord) bool {
	if yahooConsumerDomains[strings.ToLower(domain)] {
		return true
	}
	for _, record := range mx {
		if strings.HasSuffix(strings.ToLower(record.Host), ".yahoodns.net") {
			return true
		}
	}
	return false
}

// browserSession is the slice of WebDriver the flows need; the production
// implementation wraps a tebeka/selenium remote session.
type browserSession interface {
	Navigate(url string) error
	WaitVisible(selector string, timeout time.Duration) error
	Type(selector, text string) error
	Click(selector string) error
	FirstVisible(selectors []string, timeout time.Duration) (string, bool)
	Close() error
}

// sessionFactory opens a fresh browser session against the WebDriver URL.
type sessionFactory func(webdriverURL string) (browserSession, error)

// HeadlessProber drives a provider's password-recovery flow for a candidate.
// Sessions are per-probe and torn down on every exit path.
type HeadlessProber struct {
	cfg        *Config
	limiter    *rate.Limiter
	providers  []headlessProvider
	newSession sessionFactory
	verbose    bool
}

// NewHeadlessProber builds the prober with the default registry and a real
// selenium session factory.
func NewHeadlessProber(cfg *Config, limiter *rate.Limiter) *HeadlessProber {
	return &HeadlessProber{
		cfg:        cfg,
		limiter:    limiter,
		providers:  defaultHeadlessProviders(),
		newSession: newSeleniumSession,
	}
}

// Match returns the first provider claiming the domain, or nil.
func (p *HeadlessProber) Match(domain string, mx []MxRecord) *headlessProvider {
	for i := range p.providers {
		if p.providers[i].matches(domain, mx) {
			return &p.providers[i]
		}
	}
	return nil
}

// Probe runs one recovery-flow check. Transport failures (driver down,
// session create) surface as ErrWebDriverUnavailable-wrapped errors so the
// caller can log the kind; flow outcomes come back as probeOutcome.
func (p *HeadlessProber) Probe(ctx context.Context, provider *headlessProvider, email string) (probeOutcome, error) {
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return probeOutcome{}, err
		}
	}

	session, err := p.newSession(p.cfg.Advanced.WebDriverURL)
	if err != nil {
		return probeOutcome{}, fmt.Errorf("%w: %v", ErrWebDriverUnavailable, err)
	}
	// The session must die on every path, including cancellation.
	defer session.Close()

	done := make(chan struct{})
	var outcome probeOutcome
	var flowErr error
	go func() {
		defer close(done)
		outcome, flowErr = p.runFlow(session, provider, email)
	}()
	select {
	case <-done:
		return outcome, flowErr
	case <-ctx.Done():
		return probeOutcome{}, ctx.Err()
	}
}

const (
	pageLoadTimeout    = 25 * time.Second
	elementWaitTimeout = 15 * time.Second
	captchaWaitTimeout = 3 * time.Second
)

func (p *HeadlessProber) runFlow(session browserSession, provider *headlessProvider, email string) (probeOutcome, error) {
	flow := provider.flow
	label := fmt.Sprintf("[%s headless: %s]", provider.name, email)

	if err := session.Navigate(flow.entryURL); err != nil {
		return probeOutcome{}, fmt.Errorf("navigate: %w", err)
	}
	if err := session.WaitVisible(flow.emailInput, pageLoadTimeout); err != nil {
		return probeOutcome{Message: fmt.Sprintf("%s entry form never appeared", provider.name)}, nil
	}
	if err := session.Type(flow.emailInput, email); err != nil {
		return probeOutcome{}, fmt.Errorf("fill email field: %w", err)
	}
	if err := session.Click(flow.submitButton); err != nil {
		return probeOutcome{}, fmt.Errorf("submit: %w", err)
	}

	if sel, found := session.FirstVisible(flow.captchaSelectors, captchaWaitTimeout); found {
		if p.verbose {
			log.Printf("%s blocked by CAPTCHA (%s)", label, sel)
		}
		return probeOutcome{Message: fmt.Sprintf("%s flow blocked by CAPTCHA", provider.name)}, nil
	}

	all := append(append([]string{}, flow.existsSelectors...), flow.notExistsSelectors...)
	sel, found := session.FirstVisible(all, elementWaitTimeout)
	if !found {
		return probeOutcome{Message: fmt.Sprintf("%s flow reached no recognizable terminal state", provider.name)}, nil
	}
	for _, existsSel := range flow.existsSelectors {
		if sel == existsSel {
			return probeOutcome{
				Exists:  boolPtr(true),
				Message: fmt.Sprintf("account exists per %s password recovery flow", provider.name),
			}, nil
		}
	}
	return probeOutcome{
		Exists:  boolPtr(false),
		Message: fmt.Sprintf("account unknown per %s password recovery flow", provider.name),
	}, nil
}

// seleniumSession adapts a tebeka/selenium remote to browserSession.
type seleniumSession struct {
	wd selenium.WebDriver
}

// newSeleniumSession opens an isolated headless Chrome session at the
// configured WebDriver endpoint.
func newSeleniumSession(webdriverURL string) (browserSession, error) {
	caps := selenium.Capabilities{"browserName": "chrome"}
	caps.AddChrome(chrome.Capabilities{
		Args: []string{
			"--headless=new",
			"--no-sandbox",
			"--disable-gpu",
			"--disable-dev-shm-usage",
			"--window-size=1024,768",
			"--disable-extensions",
			"--disable-background-networking",
			"--mute-audio",
			"--ignore-certificate-errors",
		},
	})
	wd, err := selenium.NewRemote(caps, webdriverURL)
	if err != nil {
		return nil, err
	}
	return &seleniumSession{wd: wd}, nil
}

func (s *seleniumSession) Navigate(url string) error {
	return s.wd.Get(url)
}

func (s *seleniumSession) WaitVisible(selector string, timeout time.Duration) error {
	return s.wd.WaitWithTimeoutAndInterval(func(wd selenium.WebDriver) (bool, error) {
		elem, err := wd.FindElement(selenium.ByCSSSelector, selector)
		if err != nil {
			return false, nil
		}
		shown, err := elem.IsDisplayed()
		if err != nil {
			return false, nil
		}
		return shown, nil
	}, timeout, 500*time.Millisecond)
}

func (s *seleniumSession) Type(selector, text string) error {
	elem, err := s.wd.FindElement(selenium.ByCSSSelector, selector)
	if err != nil {
		return err
	}
	return elem.SendKeys(text)
}

func (s *seleniumSession) Click(selector string) error {
	elem, err := s.wd.FindElement(selenium.ByCSSSelector, selector)
	if err != nil {
		return err
	}
	return elem.Click()
}

// FirstVisible polls all selectors until one is displayed or the timeout
// expires, returning the selector that appeared.
func (s *seleniumSession) FirstVisible(selectors []string, timeout time.Duration) (string, bool) {
	deadline := time.Now().Add(timeout)
	for {
		for _, sel := range selectors {
			elem, err := s.wd.FindElement(selenium.ByCSSSelector, sel)
			if err != nil {
				continue
			}
			if shown, err := elem.IsDisplayed(); err == nil && shown {
				return sel, true
			}
		}
		if time.Now().After(deadline) {
			return "", false
		}
		time.Sleep(500 * time.Millisecond)
	}
}

func (s *seleniumSession) Close() error {
	return s.wd.Quit()
}
