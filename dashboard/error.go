package dashboard

import "github.com/cockroachdb/errors"

var (
	// ErrConfigurationMissing means neither the environment nor the
	// credentials file provides OAuth client credentials.
	ErrConfigurationMissing = errors.New("oauth client credentials not configured")
	// ErrUnauthorized means no session token has been obtained yet.
	ErrUnauthorized = errors.New("mailbox access not authorized")
	// ErrAuthorizationFailed means the provider rejected an authorization code.
	ErrAuthorizationFailed = errors.New("authorization code exchange failed")
	// ErrProviderRequestFailed marks listing or session setup failures.
	ErrProviderRequestFailed = errors.New("mail provider request failed")
	// ErrMessageParseFailed marks a single message that could not be fetched.
	ErrMessageParseFailed = errors.New("message fetch failed")
)

// AppError wraps an application error with an HTTP response code.
type AppError struct {
	Code     int    // HTTP response code
	Message  string // custom message
	Internal error  // original error, if any
}

// AppErr returns a new AppError including the given HTTP response code.
func AppErr(code int, message string) *AppError {
	return &AppError{Code: code, Message: message, Internal: nil}
}

// WrapErr returns a new AppError wrapping the given error.
func WrapErr(code int, err error) *AppError {
	if err == nil {
		return nil
	}
	return &AppError{Code: code, Message: err.Error(), Internal: err}
}

// Error returns the error message.
func (e *AppError) Error() string {
	return e.Message
}

// appendError combines two errors into a single error using errors.Join.
func appendError(err1, err2 error) error {
	if err1 == nil {
		return err2
	}
	if err2 == nil {
		return err1
	}
	return errors.Join(err1, err2)
}
