/*
 * Email Sleuth - Error Taxonomy Module
 *
 * Author: Dr.Anach
 * Telegram: @dranach
 */

package main

import (
	"context"
	"errors"
	"net"
	"strings"
	"syscall"
)

// Error kinds used across the pipeline. Transient kinds are retried with
// backoff; permanent kinds demote or drop the candidate; ErrInvalidInput
// short-circuits a contact; ErrInternal is reported on the result but never
// aborts the batch.
var (
	ErrInvalidInput = errors.New("invalid input")

	ErrDNSFailure   = errors.New("dns failure")
	ErrNxDomain     = errors.New("domain not found (NXDOMAIN)")
	ErrNoDNSRecords = errors.New("no MX or A records")
	ErrDNSTimeout   = errors.New("dns timeout")

	ErrNetworkTimeout    = errors.New("network timeout")
	ErrConnectionRefused = errors.New("connection refused")
	ErrTLSFailure        = errors.New("tls failure")
	ErrProtocolViolation = errors.New("protocol violation")

	ErrServerTemporaryReject = errors.New("server temporary reject")
	ErrServerPermanentReject = errors.New("server permanent reject")
	ErrCatchAllDetected      = errors.New("catch-all detected")
	ErrRateLimited           = errors.New("rate limited")

	ErrWebDriverUnavailable = errors.New("webdriver unavailable")
	ErrVerificationBlocked  = errors.New("verification blocked")

	ErrInternal = errors.New("internal error")
)

// classifyNetError maps a raw network error onto one of the pipeline kinds.
// The original error stays reachable through errors.Is / errors.Unwrap.
func classifyNetError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrNetworkTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrNetworkTimeout
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return ErrConnectionRefused
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "connection refused"):
		return ErrConnectionRefused
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "timed out"):
		return ErrNetworkTimeout
	case strings.Contains(msg, "tls"), strings.Contains(msg, "certificate"):
		return ErrTLSFailure
	}
	return err
}

// isTransient reports whether a classified error is worth a bounded retry.
func isTransient(err error) bool {
	return errors.Is(err, ErrNetworkTimeout) ||
		errors.Is(err, ErrServerTemporaryReject) ||
		errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrDNSTimeout)
}
