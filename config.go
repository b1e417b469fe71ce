/*
 * Email Sleuth - Configuration Module
 *
 * Author: Dr.Anach
 * Telegram: @dranach
 */

package main

import (
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Config holds every tunable for a run. It is resolved once at startup
// (defaults < config file < CLI flags) and read-only afterwards.
type Config struct {
	Network      NetworkConfig      `toml:"network"`
	DNS          DNSConfig          `toml:"dns"`
	SMTP         SMTPConfig         `toml:"smtp"`
	Verification VerificationConfig `toml:"verification"`
	Advanced     AdvancedConfig     `toml:"advanced"`
}

// NetworkConfig covers the shared HTTP client and request shaping.
type NetworkConfig struct {
	RequestTimeout int     `toml:"request_timeout"` // seconds
	MinSleep       float64 `toml:"min_sleep"`       // seconds between fetches
	MaxSleep       float64 `toml:"max_sleep"`
	UserAgent      string  `toml:"user_agent"`
}

// DNSConfig covers MX resolution.
type DNSConfig struct {
	DNSTimeout int      `toml:"dns_timeout"` // seconds
	DNSServers []string `toml:"dns_servers"` // resolver addresses, raced
}

// SMTPConfig covers the RCPT-probe conversation.
type SMTPConfig struct {
	SMTPTimeout             int    `toml:"smtp_timeout"` // seconds
	SenderEmail             string `toml:"smtp_sender_email"`
	MaxVerificationAttempts int    `toml:"max_verification_attempts"`
}

// VerificationConfig covers scoring and scheduling policy.
type VerificationConfig struct {
	ConfidenceThreshold        int `toml:"confidence_threshold"`
	GenericConfidenceThreshold int `toml:"generic_confidence_threshold"`
	MaxAlternatives            int `toml:"max_alternatives"`
	MaxConcurrency             int `toml:"max_concurrency"`
	EarlyTerminationThreshold  int `toml:"early_termination_threshold"`
}

// AdvancedConfig gates the expensive probes.
type AdvancedConfig struct {
	EnableAPIChecks      bool   `toml:"enable_api_checks"`
	EnableHeadlessChecks bool   `toml:"enable_headless_checks"`
	WebDriverURL         string `toml:"webdriver_url"`
	ChromeDriverPath     string `toml:"chromedriver_path"`
}

// DefaultConfig returns the built-in defaults. MaxConcurrency of 0 means
// "auto-tune from machine performance" (see machine.go).
func DefaultConfig() Config {
	return Config{
		Network: NetworkConfig{
			RequestTimeout: 10,
			MinSleep:       0.1,
			MaxSleep:       0.5,
			UserAgent:      "email-sleuth/" + Version,
		},
		DNS: DNSConfig{
			DNSTimeout: 5,
			DNSServers: []string{"8.8.8.8", "8.8.4.4", "1.1.1.1", "1.0.0.1"},
		},
		SMTP: SMTPConfig{
			SMTPTimeout:             5,
			SenderEmail:             "verify-probe@example.com",
			MaxVerificationAttempts: 2,
		},
		Verification: VerificationConfig{
			ConfidenceThreshold:        4,
			GenericConfidenceThreshold: 7,
			MaxAlternatives:            5,
			MaxConcurrency:             0,
			EarlyTerminationThreshold:  9,
		},
		Advanced: AdvancedConfig{
			WebDriverURL: "http://localhost:9515",
		},
	}
}

// LoadConfigFile overlays a sectioned TOML file onto cfg.
func LoadConfigFile(path string, cfg *Config) error {
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return fmt.Errorf("failed to decode config file %s: %w", path, err)
	}
	return nil
}

// ValidateConfig validates the resolved configuration values.
func (cfg *Config) ValidateConfig() error {
	if cfg.Network.RequestTimeout < 1 {
		return fmt.Errorf("request_timeout must be >= 1 second, got %d", cfg.Network.RequestTimeout)
	}
	if cfg.Network.RequestTimeout > 300 {
		return fmt.Errorf("request_timeout too high (max 300 seconds), got %d", cfg.Network.RequestTimeout)
	}
	if cfg.Network.MinSleep < 0 {
		return fmt.Errorf("min_sleep must be >= 0, got %f", cfg.Network.MinSleep)
	}
	if cfg.Network.MaxSleep < cfg.Network.MinSleep {
		return fmt.Errorf("max_sleep (%f) must be >= min_sleep (%f)", cfg.Network.MaxSleep, cfg.Network.MinSleep)
	}
	if cfg.Network.UserAgent == "" {
		return fmt.Errorf("user_agent cannot be empty")
	}
	if cfg.DNS.DNSTimeout < 1 {
		return fmt.Errorf("dns_timeout must be >= 1 second, got %d", cfg.DNS.DNSTimeout)
	}
	if len(cfg.DNS.DNSServers) == 0 {
		return fmt.Errorf("dns_servers cannot be empty")
	}
	if cfg.SMTP.SMTPTimeout < 1 {
		return fmt.Errorf("smtp_timeout must be >= 1 second, got %d", cfg.SMTP.SMTPTimeout)
	}
	if !strings.Contains(cfg.SMTP.SenderEmail, "@") {
		return fmt.Errorf("smtp_sender_email %q is not an email address", cfg.SMTP.SenderEmail)
	}
	if cfg.SMTP.MaxVerificationAttempts < 1 {
		return fmt.Errorf("max_verification_attempts must be >= 1, got %d", cfg.SMTP.MaxVerificationAttempts)
	}
	if cfg.SMTP.MaxVerificationAttempts > 10 {
		return fmt.Errorf("max_verification_attempts too high (max 10), got %d", cfg.SMTP.MaxVerificationAttempts)
	}
	if cfg.Verification.ConfidenceThreshold < 0 || cfg.Verification.ConfidenceThreshold > 10 {
		return fmt.Errorf("confidence_threshold must be in [0,10], got %d", cfg.Verification.ConfidenceThreshold)
	}
	if cfg.Verification.GenericConfidenceThreshold < 0 || cfg.Verification.GenericConfidenceThreshold > 10 {
		return fmt.Errorf("generic_confidence_threshold must be in [0,10], got %d", cfg.Verification.GenericConfidenceThreshold)
	}
	if cfg.Verification.MaxAlternatives < 0 {
		return fmt.Errorf("max_alternatives must be >= 0, got %d", cfg.Verification.MaxAlternatives)
	}
	if cfg.Verification.MaxConcurrency < 0 {
		return fmt.Errorf("max_concurrency must be >= 0, got %d", cfg.Verification.MaxConcurrency)
	}
	if cfg.Verification.MaxConcurrency > 1000 {
		return fmt.Errorf("max_concurrency too high (max 1000), got %d", cfg.Verification.MaxConcurrency)
	}
	if cfg.Verification.EarlyTerminationThreshold < 0 || cfg.Verification.EarlyTerminationThreshold > 11 {
		return fmt.Errorf("early_termination_threshold must be in [0,11], got %d", cfg.Verification.EarlyTerminationThreshold)
	}
	if cfg.Advanced.EnableHeadlessChecks && cfg.Advanced.WebDriverURL == "" {
		return fmt.Errorf("webdriver_url cannot be empty when headless checks are enabled")
	}
	return nil
}

// RequestTimeout returns the HTTP timeout as a duration.
func (cfg *Config) RequestTimeout() time.Duration {
	return time.Duration(cfg.Network.RequestTimeout) * time.Second
}

// DNSTimeout returns the DNS timeout as a duration.
func (cfg *Config) DNSTimeout() time.Duration {
	return time.Duration(cfg.DNS.DNSTimeout) * time.Second
}

// SMTPTimeout returns the SMTP timeout as a duration.
func (cfg *Config) SMTPTimeout() time.Duration {
	return time.Duration(cfg.SMTP.SMTPTimeout) * time.Second
}

// SenderDomain returns the domain part of smtp_sender_email, used for EHLO.
func (cfg *Config) SenderDomain() string {
	if i := strings.LastIndex(cfg.SMTP.SenderEmail, "@"); i >= 0 {
		return cfg.SMTP.SenderEmail[i+1:]
	}
	return "localhost"
}

// randomSleepDuration picks a uniform delay in [min_sleep, max_sleep].
func (cfg *Config) randomSleepDuration() time.Duration {
	min, max := cfg.Network.MinSleep, cfg.Network.MaxSleep
	if min >= max {
		if min < 0 {
			min = 0
		}
		return time.Duration(min * float64(time.Second))
	}
	secs := min + rand.Float64()*(max-min)
	return time.Duration(secs * float64(time.Second))
}

// Version of the tool, printed by --version and pinned in the User-Agent.
const Version = "1.0.0"

// genericEmailPrefixes is the curated set of role-based local-parts that are
// unlikely to belong to a specific person. Kept in one table; both the pattern
// generator and the scraper consult it.
var genericEmailPrefixes = map[string]bool{
	"info": true, "contact": true, "sales": true, "support": true,
	"hello": true, "admin": true, "office": true, "hr": true,
	"jobs": true, "careers": true, "team": true, "press": true,
	"media": true, "billing": true, "noreply": true, "postmaster": true,
	"webmaster": true, "mail": true, "email": true, "general": true,
	"hi": true, "help": true, "marketing": true, "hiring": true,
	"privacy": true, "security": true, "legal": true, "membership": true,
	"people": true, "feedback": true, "enquiries": true, "inquiries": true,
	"pitch": true, "invest": true, "investors": true, "ir": true,
	"newsletter": true, "apply": true, "partner": true, "partners": true,
	"ventures": true,
}

// isGenericLocalPart reports whether a lowercased local-part is role-based.
func isGenericLocalPart(local string) bool {
	return genericEmailPrefixes[strings.ToLower(local)]
}

// commonPagesToScrape are the site paths tried when looking for contact pages,
// in addition to links discovered on the homepage.
var commonPagesToScrape = []string{
	"/contact", "/contact-us", "/contactus", "/contact_us",
	"/about", "/about-us", "/aboutus", "/about_us",
	"/team", "/our-team", "/our_team", "/meet-the-team",
	"/people", "/staff", "/company",
}

// contactLinkKeywords mark homepage links worth visiting.
var contactLinkKeywords = []string{
	"contact", "about", "team", "staff", "impressum", "people",
	"imprint", "kontakt",
}
