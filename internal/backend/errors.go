package backend

import "fmt"

// BackendError reports a failed REST call. StatusCode is 0 when the request
// never produced a response.
type BackendError struct {
	Op         string
	StatusCode int
	Message    string
	Err        error
}

func (e *BackendError) Error() string {
	if e.StatusCode == 0 {
		if e.Err != nil {
			return fmt.Sprintf("%s: %v", e.Op, e.Err)
		}
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return fmt.Sprintf("%s: backend returned %d: %s", e.Op, e.StatusCode, e.Message)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

// NotFound reports a 404 from the backend.
func (e *BackendError) NotFound() bool {
	return e.StatusCode == 404
}
