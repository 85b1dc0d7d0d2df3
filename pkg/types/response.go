package types

type SuccessEnvelope struct {
	Data any `json:"data"`
}

// APIError is the body of every failed storefront request. RequestID is the
// reference a customer quotes when opening a support ticket.
type APIError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Details   any    `json:"details,omitempty"`
	RequestID string `json:"request_id,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}
