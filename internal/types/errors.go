package types

// ErrorBody is the error envelope of the operational HTTP API.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Cause   string `json:"cause,omitempty"`
}

type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// NewErrorResponse wraps a failed operation. cause may be nil.
func NewErrorResponse(code, message string, cause error) ErrorResponse {
	body := ErrorBody{Code: code, Message: message}
	if cause != nil {
		body.Cause = cause.Error()
	}
	return ErrorResponse{Error: body}
}
