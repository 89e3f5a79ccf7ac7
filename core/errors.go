package core

import (
	"errors"
	"fmt"
)

// ErrCaptchaLowConfidence marks a round answered with the tile 0 fallback.
// It is counted and logged, never returned from Login.
var ErrCaptchaLowConfidence = errors.New("captcha answered with low confidence")

// NetworkError is a transport failure: refused connection, reset, proxy or client timeout.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s - network error: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ProtocolFormatError means gameforge answered with something we cannot use.
// StatusCode is set when the reply had an unexpected HTTP status.
type ProtocolFormatError struct {
	Op         string
	Detail     string
	StatusCode int
	Err        error
}

func (e *ProtocolFormatError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s - %s: %v", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s - %s", e.Op, e.Detail)
}

func (e *ProtocolFormatError) Unwrap() error { return e.Err }

type AuthenticationRejected struct {
	StatusCode int
	Body       string
}

func (e *AuthenticationRejected) Error() string {
	return fmt.Sprintf("authentication rejected - status %d", e.StatusCode)
}

type CaptchaUnsolvable struct {
	ChallengeID string
	Rounds      int
}

func (e *CaptchaUnsolvable) Error() string {
	return fmt.Sprintf("captcha %s unsolvable after %d rounds", e.ChallengeID, e.Rounds)
}

// LoginAttemptsExhausted wraps the error of the last attempt.
type LoginAttemptsExhausted struct {
	Attempts int
	Last     error
}

func (e *LoginAttemptsExhausted) Error() string {
	return fmt.Sprintf("login failed after %d attempts - %v", e.Attempts, e.Last)
}

func (e *LoginAttemptsExhausted) Unwrap() error { return e.Last }

// retryable reports whether another login attempt can help.
func retryable(err error) bool {
	var network *NetworkError
	var unsolvable *CaptchaUnsolvable
	return errors.As(err, &network) || errors.As(err, &unsolvable)
}

func protocolError(op, detail string, err error) error {
	return &ProtocolFormatError{Op: op, Detail: detail, Err: err}
}
