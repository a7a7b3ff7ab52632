package errors

// Error codes, grouped by ErrorType.
const (
	// NetworkError (1000-1099)
	ErrCodePlaylistFetch  = 1000
	ErrCodePlaylistStatus = 1001
	ErrCodeSegmentFetch   = 1002
	ErrCodeDirectFetch    = 1003
	ErrCodeDirectStatus   = 1004

	// EncryptionError (1100-1199)
	ErrCodeEncryptedPlaylist = 1100
	ErrCodeEncryptedVariant  = 1101

	// EmptyPlaylistError / NoDataError (1200-1299)
	ErrCodeNoSegments        = 1200
	ErrCodeNoVariants        = 1201
	ErrCodeAllSegmentsFailed = 1202

	// RemuxError (1300-1399)
	ErrCodeEngineUnavailable = 1300
	ErrCodeEngineLoadTimeout = 1301
	ErrCodeRemuxFailed       = 1302
	ErrCodeRemuxOutput       = 1303

	// CancelledError (1400-1499)
	ErrCodeCancelled = 1400

	// DeliveryError (1500-1599)
	ErrCodeSinkRejected = 1500
	ErrCodeSinkWrite    = 1501

	// ValidationError (1600-1699)
	ErrCodeInvalidURL      = 1600
	ErrCodeUnsupportedURL  = 1601
	ErrCodeMissingSink     = 1602
	ErrCodeClosed          = 1603

	// SystemError (1700-1799)
	ErrCodeTempFile = 1700
)
