package studykit

import (
	"errors"
	"fmt"

	"github.com/studykit/studykit/internal/gateway"
)

// ErrContentNotLoaded is returned by operations that need the content
// snapshot before LoadContent has succeeded.
var ErrContentNotLoaded = errors.New("content not loaded")

// ErrNotSignedIn is returned by operations that need a signed-in user.
var ErrNotSignedIn = errors.New("not signed in")

// ValidationError reports a rejected input before any network call is made.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// IsValidation reports whether err is a local input-validation failure.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// RemoteError is the error shape of failed service calls, re-exported so
// callers can import only this package.
type RemoteError = gateway.RemoteError

// IsRemoteRecoverable reports whether err is a service failure worth
// retrying (network trouble, 5xx, throttling).
func IsRemoteRecoverable(err error) bool {
	var re *RemoteError
	return errors.As(err, &re) && re.Category == gateway.Recoverable
}
