package errors

// InternalMessage is the client-visible message of any error that is not an
// AppError.
const InternalMessage = "An internal error occurred"

// Body is the client-visible serialization of an error. Causes are never
// included.
type Body struct {
	Code       string         `json:"code"`
	Message    string         `json:"message"`
	Data       map[string]any `json:"data,omitempty"`
	Violations []Violation    `json:"violations,omitempty"`
	Failures   []Failure      `json:"failures,omitempty"`
}

// Envelope wraps a Body under an "error" key.
type Envelope struct {
	Error Body `json:"error"`
}

// ToBody converts err into its serializable form. Errors that are not
// AppErrors are reported as a generic internal error so their text does not
// leak to clients.
func ToBody(err error) Body {
	appErr, ok := As(err)
	if !ok {
		return Body{
			Code:    CodeInternal,
			Message: InternalMessage,
		}
	}
	return Body{
		Code:       appErr.Code,
		Message:    appErr.Message,
		Data:       appErr.Data,
		Violations: appErr.Violations,
		Failures:   appErr.Failures,
	}
}

// ToEnvelope is ToBody wrapped in an Envelope.
func ToEnvelope(err error) Envelope {
	return Envelope{Error: ToBody(err)}
}
