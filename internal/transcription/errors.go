package transcription

import (
	"fmt"
	"net/http"
	"time"
)

// AuthError means the job-service credential is missing or was rejected.
type AuthError struct {
	StatusCode int
	Reason     string
}

func (e *AuthError) Error() string {
	if e.StatusCode == 0 {
		return "job service API key: " + e.Reason
	}
	return fmt.Sprintf("job service API key rejected: HTTP %d: %s", e.StatusCode, e.Reason)
}

func (e *AuthError) IsRetryable() bool { return false }

// SubmissionError represents a failed job push.
type SubmissionError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *SubmissionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("job submission failed: %v", e.Err)
	}
	return fmt.Sprintf("job submission failed: HTTP %d: %s", e.StatusCode, e.Body)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// IsRetryable returns true for transport errors and server-side (5xx, 408, 429)
// responses. Other client errors are permanent.
func (e *SubmissionError) IsRetryable() bool {
	return e.Err != nil || retryableStatus(e.StatusCode)
}

// PollError represents an unreachable or failing job status endpoint.
type PollError struct {
	JobID      string
	StatusCode int
	Body       string
	Err        error
}

func (e *PollError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("job %s status check failed: %v", e.JobID, e.Err)
	}
	return fmt.Sprintf("job %s status check failed: HTTP %d: %s", e.JobID, e.StatusCode, e.Body)
}

func (e *PollError) Unwrap() error { return e.Err }

func (e *PollError) IsRetryable() bool {
	return e.Err != nil || retryableStatus(e.StatusCode)
}

// JobFailedError is a terminal remote failure (error or cancelled). The remote
// state is authoritative so it is never retried.
type JobFailedError struct {
	JobID  string
	Status Status
}

func (e *JobFailedError) Error() string {
	return fmt.Sprintf("job %s failed with status: %s", e.JobID, e.Status)
}

func (e *JobFailedError) IsRetryable() bool { return false }

// Cancelled reports whether the job was cancelled rather than errored.
func (e *JobFailedError) Cancelled() bool { return e.Status == StatusCancelled }

// TimeoutError means the job did not reach a terminal state within the poll budget.
type TimeoutError struct {
	JobID   string
	Polls   int
	Elapsed time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("job %s timed out after %d polls (%s)", e.JobID, e.Polls, e.Elapsed.Round(time.Millisecond))
}

func (e *TimeoutError) IsRetryable() bool { return true }

// PayloadError covers downloading or decoding the finished subtitle payload.
type PayloadError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *PayloadError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("subtitle payload fetch failed: HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("subtitle payload: %v", e.Err)
}

func (e *PayloadError) Unwrap() error { return e.Err }

// IsRetryable is true for transport failures and 5xx. Decode errors are permanent.
func (e *PayloadError) IsRetryable() bool {
	if e.StatusCode != 0 {
		return retryableStatus(e.StatusCode)
	}
	_, decode := e.Err.(*decodeError)
	return !decode
}

type decodeError struct{ err error }

func (e *decodeError) Error() string { return e.err.Error() }
func (e *decodeError) Unwrap() error { return e.err }

func retryableStatus(code int) bool {
	return code >= 500 || code == http.StatusTooManyRequests || code == http.StatusRequestTimeout
}
