package utils

import (
	"context"
	"errors"
	"net"
	"os"
	"strings"
)

// --- Sentinel Errors for Categorization ---
var (
	ErrTransientFetch   = errors.New("transient fetch error")        // timeout, connection failure, 5xx, 429
	ErrPermanentFetch   = errors.New("permanent fetch error")        // non-retryable 4xx
	ErrRetryCeiling     = errors.New("retry ceiling exceeded")       // wraps the last transient error
	ErrRobotsDisallowed = errors.New("disallowed by robots.txt")     // skip, not a failure
	ErrIndexRecord      = errors.New("malformed index input record") // skip, pass continues
	ErrParsing          = errors.New("parsing error")                // wraps URL/HTML/JSON parse errors
	ErrFilesystem       = errors.New("filesystem error")             // wraps os errors
	ErrDatabase         = errors.New("database error")               // wraps badger errors
	ErrRequestCreation  = errors.New("failed to create HTTP request")
	ErrResponseBodyRead = errors.New("failed to read response body")
	ErrConfigValidation = errors.New("configuration validation error")
	ErrStoreClosed      = errors.New("store is closed")
)

// CategorizeError maps an error to a predefined category string for logging/stats.
func CategorizeError(err error) string {
	if err == nil {
		return "None"
	}

	switch {
	case errors.Is(err, ErrRetryCeiling):
		errMsg := strings.ToLower(err.Error())
		if strings.Contains(errMsg, "timeout") || strings.Contains(errMsg, "deadline exceeded") {
			return "RetryCeiling_Timeout"
		}
		if strings.Contains(errMsg, "connection refused") {
			return "RetryCeiling_ConnectionRefused"
		}
		if strings.Contains(errMsg, "no such host") {
			return "RetryCeiling_DNSLookup"
		}
		if errors.Is(err, ErrTransientFetch) {
			return "RetryCeiling_HTTPServer"
		}
		return "RetryCeiling_Other"
	case errors.Is(err, ErrPermanentFetch):
		errMsg := err.Error()
		if strings.Contains(errMsg, " 404 ") {
			return "HTTP_404"
		}
		if strings.Contains(errMsg, " 403 ") {
			return "HTTP_403"
		}
		if strings.Contains(errMsg, " 410 ") {
			return "HTTP_410"
		}
		return "HTTP_4xx"
	case errors.Is(err, ErrTransientFetch):
		return "HTTP_Transient"
	case errors.Is(err, ErrRobotsDisallowed):
		return "Policy_Robots"
	case errors.Is(err, ErrIndexRecord):
		return "Index_BadRecord"
	case errors.Is(err, ErrParsing):
		errMsg := err.Error()
		if strings.Contains(errMsg, "URL") {
			return "Content_ParsingURL"
		}
		if strings.Contains(errMsg, "HTML") {
			return "Content_ParsingHTML"
		}
		if strings.Contains(errMsg, "JSON") {
			return "Content_ParsingJSON"
		}
		return "Content_ParsingOther"
	case errors.Is(err, ErrFilesystem):
		if errors.Is(err, os.ErrPermission) {
			return "Filesystem_Permission"
		}
		if errors.Is(err, os.ErrNotExist) {
			return "Filesystem_NotExist"
		}
		return "Filesystem_Other"
	case errors.Is(err, ErrDatabase):
		return "Database_Other"
	case errors.Is(err, ErrRequestCreation):
		return "Internal_RequestCreation"
	case errors.Is(err, ErrResponseBodyRead):
		return "Network_BodyRead"
	case errors.Is(err, ErrConfigValidation):
		return "Config_Validation"
	}

	// --- Fallback checks for common underlying error types/strings ---

	if errors.Is(err, context.Canceled) {
		return "System_ContextCanceled"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "System_ContextDeadlineExceeded"
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return "Network_Timeout"
		}
	}
	lowerErrMsg := strings.ToLower(err.Error())
	if strings.Contains(lowerErrMsg, "timeout") {
		return "Network_TimeoutGeneric"
	}
	if strings.Contains(lowerErrMsg, "connection refused") {
		return "Network_ConnectionRefused"
	}
	if strings.Contains(lowerErrMsg, "no such host") {
		return "Network_DNSLookup"
	}

	return "Unknown"
}

// IsTransient reports whether err should drive the retry path of the
// fetch state machine rather than a permanent failure.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTransientFetch) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return false
}
