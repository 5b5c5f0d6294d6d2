package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// CodeStorageContention is the backend's marker for a transient session-store
// lock condition; requests carrying it are safe to retry.
const CodeStorageContention = "storage_contention"

// APIError is a non-2xx backend response. Message carries the server's error
// text when the body had one.
type APIError struct {
	Endpoint string
	Status   int
	Code     string
	Message  string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s (status %d)", e.Endpoint, e.Message, e.Status)
	}
	return fmt.Sprintf("%s: request failed (status %d)", e.Endpoint, e.Status)
}

// Transient reports whether the failure is backend contention worth retrying.
func (e *APIError) Transient() bool {
	if e.Code == CodeStorageContention {
		return true
	}
	return e.Status == http.StatusLocked || e.Status == http.StatusServiceUnavailable
}

func parseAPIError(endpoint string, status int, raw []byte) error {
	apiErr := &APIError{Endpoint: endpoint, Status: status}
	var body struct {
		Error string `json:"error"`
		Code  string `json:"code"`
	}
	if err := json.Unmarshal(raw, &body); err == nil {
		apiErr.Message = body.Error
		apiErr.Code = body.Code
	}
	return apiErr
}
