// Package gdrive wraps the Google Drive v3 API for read-only backup: lazy
// paginated listing, blob download, native document export, OAuth login and
// token persistence, with retry and error classification.
package gdrive

import (
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
)

// Sentinel errors for classification. Use errors.Is(err, gdrive.ErrThrottled).
var (
	ErrNotLoggedIn    = errors.New("gdrive: not logged in")
	ErrNoCredentials  = errors.New("gdrive: OAuth client credentials file not found")
	ErrUnauthorized   = errors.New("gdrive: unauthorized")
	ErrForbidden      = errors.New("gdrive: forbidden")
	ErrNotFound       = errors.New("gdrive: not found")
	ErrThrottled      = errors.New("gdrive: throttled")
	ErrServerError    = errors.New("gdrive: server error")
	ErrExportTooLarge = errors.New("gdrive: export size limit exceeded")
	ErrRequest        = errors.New("gdrive: request failed")

	// ErrMalformedEntry marks a listed item whose metadata could not be
	// read. The listing continues past it.
	ErrMalformedEntry = errors.New("gdrive: malformed entry")
)

// Drive reports rate limiting as 403 with one of these reasons.
var throttleReasons = map[string]bool{
	"rateLimitExceeded":        true,
	"userRateLimitExceeded":    true,
	"sharingRateLimitExceeded": true,
}

// Token endpoint error codes meaning the grant itself was refused.
var rejectedGrantCodes = map[string]bool{
	"invalid_grant":       true,
	"invalid_client":      true,
	"unauthorized_client": true,
}

// APIError wraps a sentinel with the HTTP status, the Drive error reason and
// the message body for debugging.
type APIError struct {
	Op         string
	StatusCode int
	Reason     string
	Message    string
	Err        error // sentinel, for errors.Is()
}

func (e *APIError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("gdrive: %s: HTTP %d (%s): %s", e.Op, e.StatusCode, e.Reason, e.Message)
	}

	return fmt.Sprintf("gdrive: %s: HTTP %d: %s", e.Op, e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// classify converts an error returned by the API client into an *APIError.
// A refused OAuth grant becomes ErrUnauthorized; a token endpoint that
// failed with a status is classified like any other HTTP failure. Context
// and transport errors pass through untouched.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}

	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		if tokenRejected(retrieveErr) {
			return fmt.Errorf("%w: %s: %w", ErrUnauthorized, op, err)
		}

		if retrieveErr.Response == nil {
			return err
		}

		code := retrieveErr.Response.StatusCode

		return &APIError{
			Op:         op + " (token refresh)",
			StatusCode: code,
			Reason:     retrieveErr.ErrorCode,
			Message:    retrieveErr.Error(),
			Err:        sentinelFor(code, ""),
		}
	}

	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return err
	}

	reason := ""
	if len(gerr.Errors) > 0 {
		reason = gerr.Errors[0].Reason
	}

	return &APIError{
		Op:         op,
		StatusCode: gerr.Code,
		Reason:     reason,
		Message:    gerr.Message,
		Err:        sentinelFor(gerr.Code, reason),
	}
}

// tokenRejected reports whether the token endpoint refused the stored
// credential, as opposed to being unreachable, throttled or failing.
func tokenRejected(err *oauth2.RetrieveError) bool {
	if rejectedGrantCodes[err.ErrorCode] {
		return true
	}

	if err.Response == nil {
		return false
	}

	code := err.Response.StatusCode

	return code >= http.StatusBadRequest && code < http.StatusInternalServerError &&
		code != http.StatusTooManyRequests
}

// tokenError wraps a failure to obtain an access token. Only a refused
// grant is reported as ErrUnauthorized.
func tokenError(err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) && tokenRejected(retrieveErr) {
		return fmt.Errorf("%w: obtaining token: %w", ErrUnauthorized, err)
	}

	return fmt.Errorf("gdrive: obtaining token: %w", err)
}

// sentinelFor maps a status code and Drive reason to a sentinel error.
func sentinelFor(code int, reason string) error {
	switch {
	case code == http.StatusTooManyRequests, throttleReasons[reason]:
		return ErrThrottled
	case reason == "exportSizeLimitExceeded":
		return ErrExportTooLarge
	case code == http.StatusUnauthorized:
		return ErrUnauthorized
	case code == http.StatusForbidden:
		return ErrForbidden
	case code == http.StatusNotFound:
		return ErrNotFound
	case code >= http.StatusInternalServerError:
		return ErrServerError
	default:
		return ErrRequest
	}
}

// isRetryable reports whether a classified error is worth retrying.
func isRetryable(err error) bool {
	return errors.Is(err, ErrThrottled) || errors.Is(err, ErrServerError)
}

// IsAuthError reports whether err means the credential is unusable and the
// operator must log in again.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrNotLoggedIn)
}
