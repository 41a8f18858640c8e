package domain

import (
	"fmt"
	"time"
)

// SearchError reports a provider or network failure during search.
type SearchError struct {
	Query string
	Err   error
}

func (e *SearchError) Error() string {
	return fmt.Sprintf("search %q failed: %v", e.Query, e.Err)
}

func (e *SearchError) Unwrap() error { return e.Err }

// SessionExpiredError is returned when a selection refers to a missing,
// replaced or timed-out session.
type SessionExpiredError struct {
	Owner  OwnerID
	Reason string
}

func (e *SessionExpiredError) Error() string {
	return fmt.Sprintf("session for %s expired: %s", e.Owner, e.Reason)
}

// InvalidTokenError is returned for malformed or unknown callback tokens.
type InvalidTokenError struct {
	Token  string
	Reason string
}

func (e *InvalidTokenError) Error() string {
	return fmt.Sprintf("invalid callback token %q: %s", e.Token, e.Reason)
}

// BusyError is returned when an owner already has an active job.
type BusyError struct {
	Owner OwnerID
	JobID string
}

func (e *BusyError) Error() string {
	return fmt.Sprintf("owner %s already has active job %s", e.Owner, e.JobID)
}

// FetchError wraps a failure of the fetch, transcode or tag collaborators.
type FetchError struct {
	Err error
}

func (e *FetchError) Error() string { return fmt.Sprintf("fetch failed: %v", e.Err) }

func (e *FetchError) Unwrap() error { return e.Err }

// TimeoutError is the cause recorded when a job exceeds its deadline.
type TimeoutError struct {
	JobID string
	After time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("job %s timed out after %s", e.JobID, e.After)
}

// DeliveryError wraps a transport failure while sending the artifact.
type DeliveryError struct {
	Err error
}

func (e *DeliveryError) Error() string { return fmt.Sprintf("delivery failed: %v", e.Err) }

func (e *DeliveryError) Unwrap() error { return e.Err }

// ResourceError reports a failure to acquire or release a work directory.
// It is logged and never shown to the owner.
type ResourceError struct {
	Op   string
	Path string
	Err  error
}

func (e *ResourceError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *ResourceError) Unwrap() error { return e.Err }

// PipelineError is the terminal error of a failed job.
type PipelineError struct {
	JobID string
	Stage JobState
	Err   error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("job %s failed at %s: %v", e.JobID, e.Stage, e.Err)
}

func (e *PipelineError) Unwrap() error { return e.Err }
