package client

import "fmt"

// NetworkError reports a transport failure: DNS, refused connection,
// timeout. No response was received.
type NetworkError struct {
	Endpoint string
	Err      error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("Network error occurred: %s: %v", e.Endpoint, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// UpstreamError reports a response that cannot be used: a non-2xx status or
// a 2xx body that does not decode.
type UpstreamError struct {
	Endpoint   string
	StatusCode int
	Body       string
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("API request failed: %d - invalid response: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("API request failed: %d - %s", e.StatusCode, e.Body)
}

func (e *UpstreamError) Unwrap() error { return e.Err }
