package errors

// Error codes for standardized error responses
const (
	// Validation errors
	ErrCodeInvalidRequest   = "invalid_request"
	ErrCodeValidationFailed = "validation_failed"

	// Resource errors
	ErrCodeNotFound       = "not_found"
	ErrCodeInvalidMatchID = "invalid_match_id"

	// Match lifecycle errors
	ErrCodeMatchRunning       = "match_running"
	ErrCodeMatchStartFailed   = "match_start_failed"
	ErrCodeInvalidTransition  = "invalid_transition"
	ErrCodeCheckpointNotFound = "checkpoint_not_found"
	ErrCodePlayerNotFound     = "player_not_found"

	// WebSocket errors
	ErrCodeInvalidPayload     = "invalid_payload"
	ErrCodeUnknownMessageType = "unknown_message_type"

	// Server errors
	ErrCodeInternalError   = "internal_error"
	ErrCodeArchiveDisabled = "archive_disabled"
)
