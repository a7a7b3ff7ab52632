package errors

// ErrorMessages holds the default human-readable message for each code.
var ErrorMessages = map[int]string{
	ErrCodePlaylistFetch:  "Failed to fetch playlist.",
	ErrCodePlaylistStatus: "Playlist request was rejected by the server.",
	ErrCodeSegmentFetch:   "Failed to fetch segment.",
	ErrCodeDirectFetch:    "Failed to fetch media.",
	ErrCodeDirectStatus:   "Media request was rejected by the server.",

	ErrCodeEncryptedPlaylist: "Encrypted streams are not supported. The video uses DRM protection.",
	ErrCodeEncryptedVariant:  "Encrypted streams are not supported. The video uses DRM protection.",

	ErrCodeNoSegments:        "No video data found",
	ErrCodeNoVariants:        "Master playlist has no variants.",
	ErrCodeAllSegmentsFailed: "All segments failed to download.",

	ErrCodeEngineUnavailable: "Codec engine is not available.",
	ErrCodeEngineLoadTimeout: "Codec engine load timed out.",
	ErrCodeRemuxFailed:       "Remux to MP4 failed.",
	ErrCodeRemuxOutput:       "Remux produced no output.",

	ErrCodeCancelled: "Download cancelled",

	ErrCodeSinkRejected: "Download failed to start",
	ErrCodeSinkWrite:    "Failed to save file.",

	ErrCodeInvalidURL:      "Invalid URL.",
	ErrCodeUnsupportedURL:  "Only http and https URLs are supported.",
	ErrCodeMissingSink:     "A sink is required.",
	ErrCodeClosed:          "Coordinator is closed.",

	ErrCodeTempFile: "Failed to prepare temporary files.",
}

// GetErrorMessage returns the default message for code.
func GetErrorMessage(code int) string {
	if msg, ok := ErrorMessages[code]; ok {
		return msg
	}
	return "Unknown error."
}
