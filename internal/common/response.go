package common

import (
	"encoding/json"
	"net/http"
)

// ErrorBody is the error payload understood by the payment form script.
// The message sits at the top level.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// JSON writes the provided value to the response writer as JSON.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// JSONError renders an error response using the canonical error shape.
func JSONError(w http.ResponseWriter, status int, code, message string, details any) {
	JSON(w, status, ErrorBody{
		Code:    code,
		Message: message,
		Details: details,
	})
}

// WriteError renders err, falling back to a generic 500 for non-AppErrors.
func WriteError(w http.ResponseWriter, err error) {
	appErr := AsAppError(err)
	if appErr == nil {
		return
	}
	status := appErr.HTTPStatus
	if status == 0 {
		status = http.StatusInternalServerError
	}
	JSONError(w, status, appErr.Code, appErr.Message, appErr.Details)
}

// DecodeJSON decodes the request body into dst, rejecting unknown trailing data.
func DecodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		return ValidationError("Invalid request body.", nil)
	}
	if dec.More() {
		return ValidationError("Invalid request body.", nil)
	}
	return nil
}
