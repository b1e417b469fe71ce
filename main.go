/*
 * Email Sleuth v1.0
 *
 * Author: Dr.Anach
 * Telegram: @dranach
 *
 * Discovers and verifies professional email addresses for a named person at
 * a company domain. Candidates come from name patterns and website scraping;
 * verification runs DNS, SMTP, provider API and headless-browser probes with
 * bounded concurrency and rate limiting.
 */

package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// Exit codes.
const (
	exitOK           = 0
	exitFatal        = 1
	exitInvalidUsage = 2
	exitInputFile    = 3
	exitAllFailed    = 4
)

// cliOptions is everything the argument loop can set.
type cliOptions struct {
	configPath   string
	inputFile    string
	outputFile   string
	mode         string
	concurrency  int
	enableAPI    bool
	enableHead   bool
	webdriverURL string
	stdout       bool
	verbose      bool
	positional   []string
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	opts, err := parseCommandLineArgs(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		printUsage()
		return exitInvalidUsage
	}
	if opts == nil {
		// --help or --version already handled.
		return exitOK
	}

	cfg := DefaultConfig()
	if opts.configPath != "" {
		if err := LoadConfigFile(opts.configPath, &cfg); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return exitFatal
		}
	}
	applyCLIOverrides(&cfg, opts)
	if err := cfg.ValidateConfig(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid configuration: %v\n", err)
		return exitInvalidUsage
	}
	AutoTuneConfig(&cfg)

	// Cancel in-flight probes on Ctrl+C; a second Ctrl+C force-exits.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\n\n⚠️  Shutdown requested. Finishing in-flight contacts...")
		cancel()
		<-sigChan
		fmt.Println("\n❌ Force exit requested.")
		os.Exit(exitFatal)
	}()

	sleuth := NewSleuth(&cfg, opts.verbose)

	if opts.inputFile != "" {
		return runBatch(ctx, sleuth, opts)
	}
	return runSingle(ctx, sleuth, opts)
}

// runSingle handles `email-sleuth <name> <domain>`.
func runSingle(ctx context.Context, sleuth *Sleuth, opts *cliOptions) int {
	name, domain := opts.positional[0], opts.positional[1]
	contact := Contact{FullName: name, Domain: domain}

	result := sleuth.ProcessContact(ctx, contact)
	PrintContactSummary(result)
	// "No email found" is a valid outcome, not a failure.
	return exitOK
}

// runBatch handles `email-sleuth --input FILE --output FILE`.
func runBatch(ctx context.Context, sleuth *Sleuth, opts *cliOptions) int {
	contacts, err := ReadContactsFile(opts.inputFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot read input file: %v\n", err)
		return exitInputFile
	}

	start := time.Now()
	scheduler := NewScheduler(sleuth, true)
	results := scheduler.Run(ctx, contacts)

	if opts.outputFile != "" {
		if err := WriteResultsFile(opts.outputFile, results); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return exitFatal
		}
		log.Printf("Results written to %s", opts.outputFile)
	}
	if opts.stdout || opts.outputFile == "" {
		if err := WriteResults(os.Stdout, results); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return exitFatal
		}
	}
	PrintBatchBanner(results, time.Since(start).Seconds())

	if len(results) > 0 {
		allFailed := true
		for _, r := range results {
			if r.Error == nil {
				allFailed = false
				break
			}
		}
		if allFailed {
			return exitAllFailed
		}
	}
	return exitOK
}

// applyCLIOverrides layers flag values over the file/default configuration.
func applyCLIOverrides(cfg *Config, opts *cliOptions) {
	switch opts.mode {
	case "basic":
		cfg.Advanced.EnableAPIChecks = false
		cfg.Advanced.EnableHeadlessChecks = false
	case "enhanced":
		cfg.Advanced.EnableAPIChecks = true
		cfg.Advanced.EnableHeadlessChecks = false
	case "comprehensive":
		cfg.Advanced.EnableAPIChecks = true
		cfg.Advanced.EnableHeadlessChecks = true
	}
	if opts.enableAPI {
		cfg.Advanced.EnableAPIChecks = true
	}
	if opts.enableHead {
		cfg.Advanced.EnableHeadlessChecks = true
	}
	if opts.webdriverURL != "" {
		cfg.Advanced.WebDriverURL = opts.webdriverURL
	}
	if opts.concurrency > 0 {
		cfg.Verification.MaxConcurrency = opts.concurrency
	}
}

// parseCommandLineArgs walks the argument list. A nil, nil return means the
// invocation was fully handled (help/version).
func parseCommandLineArgs(args []string) (*cliOptions, error) {
	opts := &cliOptions{}

	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch arg {
		case "--help", "-h":
			printUsage()
			return nil, nil
		case "--version", "-v":
			fmt.Printf("Email Sleuth v%s\n", Version)
			return nil, nil
		case "--input":
			i++
			if i >= len(args) {
				return nil, fmt.Errorf("--input requires a file path")
			}
			opts.inputFile = args[i]
		case "--output":
			i++
			if i >= len(args) {
				return nil, fmt.Errorf("--output requires a file path")
			}
			opts.outputFile = args[i]
		case "--config":
			i++
			if i >= len(args) {
				return nil, fmt.Errorf("--config requires a file path")
			}
			opts.configPath = args[i]
		case "--mode":
			i++
			if i >= len(args) {
				return nil, fmt.Errorf("--mode requires basic|enhanced|comprehensive")
			}
			mode := strings.ToLower(args[i])
			if mode != "basic" && mode != "enhanced" && mode != "comprehensive" {
				return nil, fmt.Errorf("unknown mode %q", args[i])
			}
			opts.mode = mode
		case "--concurrency":
			i++
			if i >= len(args) {
				return nil, fmt.Errorf("--concurrency requires a number")
			}
			n, err := strconv.Atoi(args[i])
			if err != nil || n < 1 {
				return nil, fmt.Errorf("invalid concurrency %q", args[i])
			}
			opts.concurrency = n
		case "--enable-api-checks":
			opts.enableAPI = true
		case "--enable-headless-checks":
			opts.enableHead = true
		case "--webdriver-url":
			i++
			if i >= len(args) {
				return nil, fmt.Errorf("--webdriver-url requires a URL")
			}
			opts.webdriverURL = args[i]
		case "--stdout":
			i++
			if i >= len(args) {
				return nil, fmt.Errorf("--stdout requires true or false")
			}
			v, err := strconv.ParseBool(args[i])
			if err != nil {
				return nil, fmt.Errorf("invalid --stdout value %q", args[i])
			}
			opts.stdout = v
		case "--verbose":
			opts.verbose = true
		default:
			if strings.HasPrefix(arg, "-") {
				return nil, fmt.Errorf("unknown flag %q", arg)
			}
			opts.positional = append(opts.positional, arg)
		}
	}

	if opts.inputFile == "" {
		if len(opts.positional) != 2 {
			return nil, fmt.Errorf("expected <name> <domain> or --input FILE")
		}
	} else if len(opts.positional) != 0 {
		return nil, fmt.Errorf("positional arguments cannot be combined with --input")
	}
	return opts, nil
}

func printUsage() {
	fmt.Println(`
Email Sleuth v` + Version + ` - Email Discovery & Verification Tool

USAGE:
    email-sleuth [OPTIONS] <name> <domain>
    email-sleuth [OPTIONS] --input contacts.json --output results.json

ARGUMENTS:
    name       Full name of the person ("Jane Smith")
    domain     Company domain or website (acme.com, https://acme.com)

OPTIONS:
    --input <file>            Batch mode: JSON array of contacts
    --output <file>           Batch mode: where to write the result array
    --mode <mode>             basic | enhanced | comprehensive (default: basic)
    --concurrency <n>         Concurrent contact pipelines (default: auto)
    --enable-api-checks       Force provider API probes on
    --enable-headless-checks  Force headless-browser probes on
    --webdriver-url <url>     W3C WebDriver endpoint (default: http://localhost:9515)
    --stdout <bool>           Also print batch results to stdout
    --config <file>           Load a TOML configuration file
    --verbose                 Per-probe log lines
    --help, -h                Show this help message
    --version, -v             Show version information

EXAMPLES:
    email-sleuth "John Doe" example.com
    email-sleuth --mode enhanced --input contacts.json --output results.json
    email-sleuth --mode comprehensive --webdriver-url http://localhost:9515 "Jane Smith" acme.com

EXIT CODES:
    0  success (including "no email found")
    2  invalid usage
    3  input file unreadable
    4  every contact failed with an unexpected error
    1  any other fatal error`)
}
