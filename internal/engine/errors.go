package engine

import "errors"

var (
	// ErrInvalidTransaction marks input that fails fast before any scoring.
	ErrInvalidTransaction = errors.New("invalid transaction")

	// ErrPersistence marks an alert-sink or profile-commit failure. The
	// computed score is still returned alongside it so the host can retry
	// persistence independently.
	ErrPersistence = errors.New("persistence failed")
)
