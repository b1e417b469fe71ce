package main

import (
	"testing"
)

func TestParseCommandLineArgsSingleContact(t *testing.T) {
	opts, err := parseCommandLineArgs([]string{"John Doe", "example.com"})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(opts.positional) != 2 || opts.positional[0] != "John Doe" || opts.positional[1] != "example.com" {
		t.Errorf("positional = %v", opts.positional)
	}
}

func TestParseCommandLineArgsBatch(t *testing.T) {
	opts, err := parseCommandLineArgs([]string{
		"--input", "contacts.json",
		"--output", "results.json",
		"--mode", "comprehensive",
		"--concurrency", "16",
		"--webdriver-url", "http://driver:4444",
		"--stdout", "true",
		"--verbose",
	})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if opts.inputFile != "contacts.json" || opts.outputFile != "results.json" {
		t.Errorf("files = %q, %q", opts.inputFile, opts.outputFile)
	}
	if opts.mode != "comprehensive" || opts.concurrency != 16 {
		t.Errorf("mode/concurrency = %q/%d", opts.mode, opts.concurrency)
	}
	if opts.webdriverURL != "http://driver:4444" || !opts.stdout || !opts.verbose {
		t.Errorf("opts = %+v", opts)
	}
}

func TestParseCommandLineArgsErrors(t *testing.T) {
	cases := [][]string{
		{},                                      // no positionals, no input
		{"onlyname"},                            // missing domain
		{"a", "b", "c"},                         // too many positionals
		{"--mode", "turbo", "a", "b"},           // unknown mode
		{"--concurrency", "zero", "a", "b"},     // bad number
		{"--concurrency", "0", "a", "b"},        // out of range
		{"--input"},                             // dangling value
		{"--input", "f.json", "John", "x.com"},  // mixing batch and positional
		{"--frobnicate", "a", "b"},              // unknown flag
		{"--stdout", "maybe", "--input", "f.j"}, // bad bool
	}
	for _, args := range cases {
		if _, err := parseCommandLineArgs(args); err == nil {
			t.Errorf("args %v: expected an error", args)
		}
	}
}

func TestParseCommandLineArgsHelpAndVersion(t *testing.T) {
	for _, args := range [][]string{{"--help"}, {"-h"}, {"--version"}, {"-v"}} {
		opts, err := parseCommandLineArgs(args)
		if err != nil {
			t.Errorf("args %v: %v", args, err)
		}
		if opts != nil {
			t.Errorf("args %v: expected fully-handled invocation", args)
		}
	}
}

func TestApplyCLIOverridesModeMapping(t *testing.T) {
	tests := []struct {
		mode         string
		wantAPI      bool
		wantHeadless bool
	}{
		{"basic", false, false},
		{"enhanced", true, false},
		{"comprehensive", true, true},
	}
	for _, tt := range tests {
		cfg := DefaultConfig()
		applyCLIOverrides(&cfg, &cliOptions{mode: tt.mode})
		if cfg.Advanced.EnableAPIChecks != tt.wantAPI {
			t.Errorf("mode %s: api = %t", tt.mode, cfg.Advanced.EnableAPIChecks)
		}
		if cfg.Advanced.EnableHeadlessChecks != tt.wantHeadless {
			t.Errorf("mode %s: headless = %t", tt.mode, cfg.Advanced.EnableHeadlessChecks)
		}
	}

	// Explicit enable flags win over the mode.
	cfg := DefaultConfig()
	applyCLIOverrides(&cfg, &cliOptions{mode: "basic", enableAPI: true})
	if !cfg.Advanced.EnableAPIChecks {
		t.Error("--enable-api-checks must override --mode basic")
	}

	cfg = DefaultConfig()
	applyCLIOverrides(&cfg, &cliOptions{concurrency: 7, webdriverURL: "http://w:1"})
	if cfg.Verification.MaxConcurrency != 7 || cfg.Advanced.WebDriverURL != "http://w:1" {
		t.Errorf("overrides not applied: %+v", cfg)
	}
}
