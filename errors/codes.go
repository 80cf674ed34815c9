package errors

// Stable error codes.
const (
	CodeValidation           = "VALIDATION_ERROR"
	CodeUnauthorized         = "UNAUTHORIZED"
	CodeForbidden            = "FORBIDDEN"
	CodeNotFound             = "NOT_FOUND"
	CodeInternal             = "INTERNAL_ERROR"
	CodeBatchFailed          = "BATCH_FAILED"
	CodeContainer            = "CONTAINER_ERROR"
	CodeUnsupportedEvent     = "UNSUPPORTED_EVENT"
	CodeMalformedEvent       = "MALFORMED_EVENT"
	CodeNextCalledTwice      = "NEXT_CALLED_TWICE"
	CodePrincipalUnavailable = "PRINCIPAL_UNAVAILABLE"
	CodeServiceUnavailable   = "SERVICE_UNAVAILABLE"
)
