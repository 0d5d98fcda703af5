package cli

import (
	"encoding/json"
	stderrors "errors"
	"io"

	"github.com/rileyhilliard/agentdeploy/internal/errors"
	"github.com/rileyhilliard/agentdeploy/internal/host"
)

// JSONEnvelope wraps command output in a consistent structure for machine parsing.
// All --json output should use this envelope.
type JSONEnvelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *JSONError  `json:"error,omitempty"`
}

// JSONError provides structured error information for machine parsing.
type JSONError struct {
	Code       string      `json:"code"`
	Message    string      `json:"message"`
	Suggestion string      `json:"suggestion,omitempty"`
	Details    interface{} `json:"details,omitempty"`
}

// ErrCodeUnknown is used for errors that carry no structured code.
const ErrCodeUnknown = "UNKNOWN"

// WriteJSONSuccess writes a successful response with data to the writer.
func WriteJSONSuccess(w io.Writer, data interface{}) error {
	return writeJSONEnvelope(w, JSONEnvelope{Success: true, Data: data})
}

// WriteJSONFailure writes an unsuccessful response that still carries data,
// such as a failed deployment outcome.
func WriteJSONFailure(w io.Writer, data interface{}, jsonErr *JSONError) error {
	return writeJSONEnvelope(w, JSONEnvelope{Success: false, Data: data, Error: jsonErr})
}

// WriteJSONError writes an error response to the writer.
func WriteJSONError(w io.Writer, code, message, suggestion string, details interface{}) error {
	env := JSONEnvelope{
		Success: false,
		Error: &JSONError{
			Code:       code,
			Message:    message,
			Suggestion: suggestion,
			Details:    details,
		},
	}
	return writeJSONEnvelope(w, env)
}

// WriteJSONFromError converts a Go error to a JSON error response.
func WriteJSONFromError(w io.Writer, err error) error {
	return writeJSONEnvelope(w, JSONEnvelope{Success: false, Error: ErrorToJSON(err)})
}

// writeJSONEnvelope writes the envelope with consistent formatting.
func writeJSONEnvelope(w io.Writer, env JSONEnvelope) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(env)
}

// ErrorToJSON converts a Go error to a JSONError. Structured errors keep
// their code; probe errors add the failure reason as details.
func ErrorToJSON(err error) *JSONError {
	if err == nil {
		return nil
	}

	var probeErr *host.ProbeError
	if stderrors.As(err, &probeErr) {
		return probeErrorToJSON(probeErr)
	}

	if code := errors.CodeOf(err); code != "" {
		return &JSONError{
			Code:       code,
			Message:    errors.MessageOf(err),
			Suggestion: errors.SuggestionOf(err),
		}
	}

	return &JSONError{
		Code:    ErrCodeUnknown,
		Message: err.Error(),
	}
}

// probeErrorToJSON maps a probe failure to the code of its bucket.
func probeErrorToJSON(probeErr *host.ProbeError) *JSONError {
	code := errors.CodeOf(probeErr.Cause)
	switch probeErr.Reason.Bucket() {
	case host.BucketAuth:
		code = errors.ErrAuth
	case host.BucketTimeout:
		code = errors.ErrTimeout
	}
	if code == "" {
		code = errors.ErrNetwork
	}

	return &JSONError{
		Code:       code,
		Message:    host.FailureMessage(probeErr.Cause, "Connection failed"),
		Suggestion: errors.SuggestionOf(probeErr.Cause),
		Details: map[string]interface{}{
			"reason":  probeErr.Reason.String(),
			"address": probeErr.Address,
		},
	}
}

// outcomeError builds the error block for an unsuccessful outcome.
func outcomeError(code, message string) *JSONError {
	if code == "" {
		code = ErrCodeUnknown
	}
	return &JSONError{Code: code, Message: message}
}
