package errors

// ErrorCode represents a unique error code for identifying different error types.
type ErrorCode int

const (
	// General errors (1-99)
	ErrCodeUnknown ErrorCode = 1

	// Configuration errors (100-199)
	ErrCodeInvalidConfiguration ErrorCode = 100
	ErrCodeMissingToken         ErrorCode = 101
	ErrCodeInvalidEndpoint      ErrorCode = 102
	ErrCodeInvalidCapacity      ErrorCode = 103
	ErrCodeInvalidQueueDepth    ErrorCode = 104
	ErrCodeInvalidResolution    ErrorCode = 105
	ErrCodeMissingParameter     ErrorCode = 106

	// Transport errors (200-299)
	ErrCodeConnectFailed    ErrorCode = 200
	ErrCodeSendFailed       ErrorCode = 201
	ErrCodeReceiveFailed    ErrorCode = 202
	ErrCodeRetriesExhausted ErrorCode = 203
	ErrCodeConnectionClosed ErrorCode = 204
	ErrCodeHeartbeatTimeout ErrorCode = 205
	ErrCodeNotConnected     ErrorCode = 206

	// Decode errors (300-399)
	ErrCodeMalformedMessage ErrorCode = 300

	// Protocol errors (400-499)
	ErrCodeServerError  ErrorCode = 400
	ErrCodeAuthRejected ErrorCode = 401

	// Callback errors (500-599)
	ErrCodeCallbackFailed ErrorCode = 500
	ErrCodeCallbackPanic  ErrorCode = 501
	ErrCodeEventsDropped  ErrorCode = 502

	// History/REST errors (600-699)
	ErrCodeRequestFailed ErrorCode = 600
	ErrCodeBadResponse   ErrorCode = 601
	ErrCodeNoData        ErrorCode = 602
)

// fatalCodes are the codes that terminate a subscription. Every other code is
// local to a single event or attempt and leaves the stream running.
var fatalCodes = map[ErrorCode]bool{
	ErrCodeInvalidConfiguration: true,
	ErrCodeMissingToken:         true,
	ErrCodeInvalidEndpoint:      true,
	ErrCodeRetriesExhausted:     true,
	ErrCodeAuthRejected:         true,
}

// IsFatal reports whether the error carries a code that should terminate the
// subscription rather than be retried or skipped.
func IsFatal(err error) bool {
	return fatalCodes[GetCode(err)]
}
