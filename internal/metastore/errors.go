package metastore

import "errors"

var (
	// ErrStudyNotFound is returned when no item exists for a study UID.
	ErrStudyNotFound = errors.New("study not found")

	// ErrTableNotReady is returned when a freshly created table does not
	// reach ACTIVE within the readiness poll window.
	ErrTableNotReady = errors.New("table did not become active")

	// ErrInvalidInput is returned when a required argument (table, study
	// UID, location) is empty.
	ErrInvalidInput = errors.New("invalid input")
)
