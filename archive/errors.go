package archive

import "fmt"

// Per-card error taxonomy. Everything here is retryable on the next run and
// is caught at the per-card boundary; only credential rejection
// (integrations.ErrUnauthorized) aborts a whole run.

// RemoteFetchError means a card's remote data could not be retrieved.
// Resource names the failing sub-resource: detail, actions, checklists or
// attachments.
type RemoteFetchError struct {
	CardID   string
	Resource string
	Err      error
}

func (e *RemoteFetchError) Error() string {
	return fmt.Sprintf("fetching %s for card %s: %v", e.Resource, e.CardID, e.Err)
}

func (e *RemoteFetchError) Unwrap() error { return e.Err }

// PersistenceError means the card's graph transaction rolled back; nothing
// from the attempt is observable in the store.
type PersistenceError struct {
	CardID string
	Err    error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persisting card %s: %v", e.CardID, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// AttachmentError means one attachment download failed. It never blocks the
// card's other attachments or its persistence.
type AttachmentError struct {
	CardID       string
	AttachmentID string
	Err          error
}

func (e *AttachmentError) Error() string {
	return fmt.Sprintf("downloading attachment %s of card %s: %v", e.AttachmentID, e.CardID, e.Err)
}

func (e *AttachmentError) Unwrap() error { return e.Err }

// RemoteDeletionError means a card persisted fine but could not be removed
// from the board. No data is at risk; the next run re-persists (idempotent)
// and retries the deletion.
type RemoteDeletionError struct {
	CardID string
	Err    error
}

func (e *RemoteDeletionError) Error() string {
	return fmt.Sprintf("deleting card %s from remote board: %v", e.CardID, e.Err)
}

func (e *RemoteDeletionError) Unwrap() error { return e.Err }
