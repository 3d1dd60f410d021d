package models

// ChangeType is the kind of a change record delivered by the remote stream
type ChangeType string

const (
	ChangeAdded    ChangeType = "added"
	ChangeModified ChangeType = "modified"
	ChangeRemoved  ChangeType = "removed"
)

// Change is one record of a change-stream batch. Doc is nil for removals
// and for documents the stream could not decode.
type Change struct {
	Type ChangeType
	ID   string
	Doc  *MessageDoc
}

// Batch is one delivery of the change stream, applied in order
type Batch struct {
	Changes []Change
}
