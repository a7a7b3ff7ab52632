package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStructuredErrorImplementsErrorInterface(t *testing.T) {
	err := New(NetworkError, "Test error", "Test details", 123)

	var _ error = err

	expected := "[network_error] Test error: Test details"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}

	noDetails := New(CancelledError, "Download cancelled", "", ErrCodeCancelled)
	if noDetails.Error() != "[cancelled] Download cancelled" {
		t.Errorf("Error() = %q", noDetails.Error())
	}
}

func TestStructuredErrorJSON(t *testing.T) {
	err := New(RemuxError, "JSON test", "Some details", 42)

	jsonStr, jsonErr := err.JSON()
	if jsonErr != nil {
		t.Fatalf("Failed to marshal error to JSON: %v", jsonErr)
	}

	var parsed map[string]interface{}
	if unmarshalErr := json.Unmarshal([]byte(jsonStr), &parsed); unmarshalErr != nil {
		t.Fatalf("Failed to unmarshal JSON: %v", unmarshalErr)
	}

	if parsed["type"] != string(RemuxError) {
		t.Errorf("type = %q, want %q", parsed["type"], RemuxError)
	}
	if parsed["message"] != "JSON test" {
		t.Errorf("message = %q, want %q", parsed["message"], "JSON test")
	}
	if parsed["code"].(float64) != 42 {
		t.Errorf("code = %v, want %v", parsed["code"], 42)
	}
}

func TestWrap(t *testing.T) {
	originalErr := stderrors.New("original error")
	wrapped := Wrap(originalErr, SystemError, "Wrapped error", 55)

	if wrapped.Details != originalErr.Error() {
		t.Errorf("Details = %q, want %q", wrapped.Details, originalErr.Error())
	}
	if wrapped.Type != SystemError {
		t.Errorf("Type = %q, want %q", wrapped.Type, SystemError)
	}
	if !stderrors.Is(wrapped, originalErr) {
		t.Error("wrapped error should unwrap to the original")
	}

	nilWrapped := Wrap(nil, NetworkError, "Nil wrap", 1)
	if nilWrapped.Details != "" {
		t.Errorf("Details = %q, want empty string", nilWrapped.Details)
	}
}

func TestIsMatchesByType(t *testing.T) {
	err := FromCode(EncryptionError, ErrCodeEncryptedPlaylist, "https://example.com/a.m3u8")
	wrapped := fmt.Errorf("resolve: %w", err)

	assert.True(t, Is(wrapped, ErrEncrypted))
	assert.False(t, Is(wrapped, ErrNetwork))
	assert.Equal(t, EncryptionError, TypeOf(wrapped))
	assert.Equal(t, ErrorType(""), TypeOf(stderrors.New("plain")))
}

func TestFromCodeUsesDefaultMessage(t *testing.T) {
	err := FromCode(NoDataError, ErrCodeAllSegmentsFailed, "")
	require.NotNil(t, err)
	assert.Equal(t, GetErrorMessage(ErrCodeAllSegmentsFailed), err.Message)
	assert.Equal(t, "Unknown error.", GetErrorMessage(-1))
	assert.Contains(t, GetErrorMessage(ErrCodeEncryptedPlaylist), "DRM")
}
