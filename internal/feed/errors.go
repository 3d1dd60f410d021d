package feed

import (
	"errors"
	"fmt"
)

var (
	ErrNotImage       = errors.New("only images can be shared")
	ErrUnknownEntry   = errors.New("entry is not tracked by the lifecycle")
	ErrAlreadySettled = errors.New("entry already finalized or failed")
	ErrLoopStopped    = errors.New("feed loop stopped")
)

// Failure stages recorded with each report
const (
	StageCreate   = "create"
	StageUpload   = "upload"
	StageFinalize = "finalize"
)

// WriteFailure is a rejected create or update. The entry keeps its last good state.
type WriteFailure struct {
	Stage     string
	EntryID   string
	Transient bool
	Err       error
}

func (e *WriteFailure) Error() string {
	if e.EntryID == "" {
		return fmt.Sprintf("%s write failed: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("%s write for %s failed: %v", e.Stage, e.EntryID, e.Err)
}

func (e *WriteFailure) Unwrap() error {
	return e.Err
}

// UploadFailure is an asset upload that never completed. The placeholder persists.
type UploadFailure struct {
	EntryID   string
	Path      string
	Transient bool
	Err       error
}

func (e *UploadFailure) Error() string {
	return fmt.Sprintf("upload of %s for %s failed: %v", e.Path, e.EntryID, e.Err)
}

func (e *UploadFailure) Unwrap() error {
	return e.Err
}
