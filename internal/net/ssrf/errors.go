// Package ssrf guards outbound fetches of user-supplied URLs: it pins them to
// https, to an allow-list of platform host suffixes and away from private or
// internal network addresses.
package ssrf

// SSRFBlockedError is returned when a URL, hostname or address is rejected
// by the guard.
type SSRFBlockedError struct {
	Message string
	URL     string
}

// Error implements the error interface.
func (e *SSRFBlockedError) Error() string {
	if e.URL == "" {
		return e.Message
	}
	return e.Message + ": " + e.URL
}

// NewSSRFBlockedError creates a new SSRFBlockedError with the given message.
func NewSSRFBlockedError(message string) *SSRFBlockedError {
	return &SSRFBlockedError{Message: message}
}

func blockedURL(message, raw string) *SSRFBlockedError {
	return &SSRFBlockedError{Message: message, URL: raw}
}
