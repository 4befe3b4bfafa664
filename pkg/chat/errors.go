package chat

import "fmt"

// APIError reports a failed exchange with the chat-completions API: a
// transport error, a non-success status, or a response missing the expected
// reply fields. Exchanges are never retried.
type APIError struct {
	// StatusCode is the HTTP status, or 0 when the request never got a
	// response.
	StatusCode int

	// Message describes the failure, including a snippet of the response
	// body when one was received.
	Message string

	Err error
}

func (e *APIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("chat API error (status %d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("chat API error: %s", e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}
