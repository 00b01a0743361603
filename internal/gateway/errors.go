package gateway

import "fmt"

// Error classification for the remote gateway. The category drives the
// outbox retry policy: 4xx responses (except 408/429) and explicit logic
// rejections fail fast, everything else is retried with backoff.

// Category determines how a failed call should be handled by retry logic.
type Category int

const (
	// Recoverable errors should be retried with exponential backoff.
	// Examples: 500 responses, network timeouts, connection failures.
	Recoverable Category = iota

	// Irrecoverable errors should fail immediately without retry.
	// Examples: 400/401/403/404 responses, success:false rejections.
	Irrecoverable
)

func (c Category) String() string {
	switch c {
	case Recoverable:
		return "recoverable"
	case Irrecoverable:
		return "irrecoverable"
	default:
		return fmt.Sprintf("unknown(%d)", int(c))
	}
}

// RemoteError is the single error shape surfaced by the gateway. Transport
// failures, non-2xx statuses, malformed JSON, and explicit error fields in
// the payload all normalize to it.
type RemoteError struct {
	Op         string // request kind or write eventType
	StatusCode int    // 0 for non-HTTP failures
	Message    string // service-provided message where available
	Category   Category
	Underlying error
}

func (e *RemoteError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: [%s] HTTP %d: %s", e.Op, e.Category, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: [%s] %s", e.Op, e.Category, e.Message)
}

// Unwrap returns the underlying error for error chain compatibility.
func (e *RemoteError) Unwrap() error { return e.Underlying }

// Irrecoverable reports whether the outbox should abandon this write.
func (e *RemoteError) Irrecoverable() bool { return e.Category == Irrecoverable }

// transportError wraps a network-level failure. Always recoverable as it may
// be transient.
func transportError(op string, err error) *RemoteError {
	return &RemoteError{
		Op:         op,
		Message:    err.Error(),
		Category:   Recoverable,
		Underlying: err,
	}
}

// statusError classifies a non-2xx HTTP response.
func statusError(op string, code int, body string) *RemoteError {
	msg := body
	if msg == "" {
		msg = fmt.Sprintf("status %d", code)
	}
	return &RemoteError{
		Op:         op,
		StatusCode: code,
		Message:    msg,
		Category:   categoryForStatus(code),
		Underlying: fmt.Errorf("%s: status %d", op, code),
	}
}

// logicError reports a response that arrived but flagged failure
// (an "error" field or success:false). The request reached the service, so
// retrying the same payload will not help.
func logicError(op, message string) *RemoteError {
	return &RemoteError{
		Op:         op,
		Message:    message,
		Category:   Irrecoverable,
		Underlying: fmt.Errorf("%s: %s", op, message),
	}
}

// decodeError reports a 2xx response whose body failed to parse. Treated as
// recoverable: an intermediary may have mangled the body.
func decodeError(op string, err error) *RemoteError {
	return &RemoteError{
		Op:         op,
		Message:    "malformed response: " + err.Error(),
		Category:   Recoverable,
		Underlying: err,
	}
}

func categoryForStatus(code int) Category {
	switch {
	case code >= 400 && code < 500:
		switch code {
		case 408, 429: // timeout / throttling can be retried
			return Recoverable
		default:
			return Irrecoverable
		}
	default:
		// 5xx and anything unexpected: be conservative and retry.
		return Recoverable
	}
}
