package model

import (
	"errors"
	"fmt"
)

// TranslationFailureReason classifies why translation produced no usable
// configuration.
type TranslationFailureReason string

const (
	ReasonSchemaInvalid TranslationFailureReason = "SCHEMA_INVALID"
	ReasonTimeout       TranslationFailureReason = "TIMEOUT"
)

// TranslationFailure is a terminal-for-this-attempt translation error,
// distinct from a verification failure.
type TranslationFailure struct {
	Reason TranslationFailureReason
	Detail string
}

func (e *TranslationFailure) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("translation failed: %s", e.Reason)
	}
	return fmt.Sprintf("translation failed: %s: %s", e.Reason, e.Detail)
}

// DeployRejected means the emulator itself refused the payload before any
// probe ran.
type DeployRejected struct {
	Detail string
}

func (e *DeployRejected) Error() string {
	return fmt.Sprintf("deploy rejected: %s", e.Detail)
}

var (
	// ErrCapacityExceeded means no sandbox slot became available within the
	// bounded wait. The caller should retry submission later; no session is
	// created.
	ErrCapacityExceeded = errors.New("sandbox capacity exceeded")

	// ErrSessionAborted is returned by a session loop interrupted by an
	// external abort.
	ErrSessionAborted = errors.New("session aborted")

	// ErrSessionNotFound is returned by registry lookups for unknown ids.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionClosed guards appends and transitions on terminal sessions.
	ErrSessionClosed = errors.New("session already in a terminal state")
)
