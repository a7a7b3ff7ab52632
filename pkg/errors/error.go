package errors

import (
	"encoding/json"
	"fmt"
	"time"
)

// ErrorType defines distinct categories for errors originating from hlsgrab components.
type ErrorType string

const (
	// NetworkError represents a failed fetch or a non-2xx response.
	NetworkError ErrorType = "network_error"
	// EncryptionError is raised when a playlist declares an EXT-X-KEY other than METHOD=NONE.
	EncryptionError ErrorType = "encryption_error"
	// EmptyPlaylistError represents a media playlist without any segment.
	EmptyPlaylistError ErrorType = "empty_playlist_error"
	// NoDataError represents a batch where every segment failed.
	NoDataError ErrorType = "no_data_error"
	// RemuxError represents a failure of the external codec engine.
	RemuxError ErrorType = "remux_error"
	// CancelledError is the terminal outcome of a cancelled job. It is not a failure.
	CancelledError ErrorType = "cancelled"
	// DeliveryError is returned when the sink rejects the final bytes.
	DeliveryError ErrorType = "delivery_error"
	// ValidationError represents errors caused by invalid input parameters.
	ValidationError ErrorType = "validation_error"
	// SystemError represents underlying system issues such as temp file I/O.
	SystemError ErrorType = "system_error"
)

// Sentinels usable with errors.Is. Matching is done on the ErrorType only.
var (
	ErrNetwork       = &StructuredError{Type: NetworkError}
	ErrEncrypted     = &StructuredError{Type: EncryptionError}
	ErrEmptyPlaylist = &StructuredError{Type: EmptyPlaylistError}
	ErrNoData        = &StructuredError{Type: NoDataError}
	ErrRemux         = &StructuredError{Type: RemuxError}
	ErrCancelled     = &StructuredError{Type: CancelledError}
	ErrDelivery      = &StructuredError{Type: DeliveryError}
	ErrValidation    = &StructuredError{Type: ValidationError}
)

// StructuredError represents a detailed error originating from hlsgrab operations.
// It includes a type, message, optional details, timestamp, and a specific error code.
type StructuredError struct {
	// Type categorizes the error (e.g., NetworkError, EncryptionError).
	Type ErrorType `json:"type"`
	// Message provides a concise, human-readable description of the error.
	Message string `json:"message"`
	// Details offers additional context or the underlying error message, if available.
	Details string `json:"details,omitempty"`
	// Timestamp marks when the error occurred in RFC3339 format.
	Timestamp string `json:"timestamp"`
	// Code provides a specific integer code, see error_codes.go.
	Code int `json:"code"`

	cause error
}

// Error implements the standard `error` interface for StructuredError.
func (e *StructuredError) Error() string {
	if e.Details == "" {
		return fmt.Sprintf("[%s] %s", e.Type, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Type, e.Message, e.Details)
}

// Unwrap exposes the wrapped error, if any.
func (e *StructuredError) Unwrap() error {
	return e.cause
}

// Is reports whether target is a StructuredError of the same type.
func (e *StructuredError) Is(target error) bool {
	t, ok := target.(*StructuredError)
	if !ok {
		return false
	}
	return t.Type == e.Type
}

// JSON returns the StructuredError serialized as a JSON string.
func (e *StructuredError) JSON() (string, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// New creates a new StructuredError instance.
// It automatically sets the Timestamp to the current time.
func New(errorType ErrorType, message, details string, code int) *StructuredError {
	return &StructuredError{
		Type:      errorType,
		Message:   message,
		Details:   details,
		Timestamp: time.Now().Format(time.RFC3339),
		Code:      code,
	}
}

// Wrap creates a new StructuredError, using the message from an existing error
// as the Details field. The original error stays reachable through errors.Unwrap.
func Wrap(err error, errorType ErrorType, message string, code int) *StructuredError {
	details := ""
	if err != nil {
		details = err.Error()
	}
	se := New(errorType, message, details, code)
	se.cause = err
	return se
}

// FromCode builds a StructuredError whose message is the default message for code.
func FromCode(errorType ErrorType, code int, details string) *StructuredError {
	return New(errorType, GetErrorMessage(code), details, code)
}

// TypeOf returns the ErrorType of err, or "" when err is not a StructuredError.
func TypeOf(err error) ErrorType {
	var se *StructuredError
	if As(err, &se) {
		return se.Type
	}
	return ""
}
