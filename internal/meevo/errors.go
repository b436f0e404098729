package meevo

import (
	"encoding/json"
	"fmt"
	"strings"
)

const maxErrorBody = 300

// APIError is returned when Meevo answers with a non-2xx status.
type APIError struct {
	StatusCode int
	// Message is the upstream error message when the body carried one.
	Message string
	Body    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("meevo: status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("meevo: status %d: %s", e.StatusCode, e.Body)
}

func newAPIError(status int, body []byte) *APIError {
	msg := strings.TrimSpace(string(body))
	if len(msg) > maxErrorBody {
		msg = msg[:maxErrorBody]
	}
	return &APIError{
		StatusCode: status,
		Message:    upstreamMessage(body),
		Body:       msg,
	}
}

// upstreamMessage extracts error.message, a bare string error, or message.
func upstreamMessage(body []byte) string {
	var parsed errorBody
	if err := json.Unmarshal(body, &parsed); err != nil {
		return ""
	}
	if len(parsed.Error) > 0 {
		var nested struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(parsed.Error, &nested); err == nil && nested.Message != "" {
			return nested.Message
		}
		var plain string
		if err := json.Unmarshal(parsed.Error, &plain); err == nil && plain != "" {
			return plain
		}
	}
	return parsed.Message
}
