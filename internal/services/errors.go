package services

import (
	"errors"
	"fmt"
)

var (
	// ErrNoActiveFiles guards cleanup against wiping every customer.
	ErrNoActiveFiles = errors.New("active file list is empty")
	// ErrUnknownSyncState is returned for a status report with an unrecognised state.
	ErrUnknownSyncState = errors.New("unknown sync state")
	// ErrInvalidReportTime is returned for a status report whose timestamp does not parse.
	ErrInvalidReportTime = errors.New("invalid report timestamp")
)

// TransactionError is an ingestion that failed after validation. Nothing
// it wrote was kept.
type TransactionError struct {
	FileName string
	Err      error
}

func (e *TransactionError) Error() string {
	return fmt.Sprintf("ingestion of %q failed: %v", e.FileName, e.Err)
}

func (e *TransactionError) Unwrap() error {
	return e.Err
}
