package services

// Machine-readable error codes surfaced to API clients.
const (
	CodeEmptyCart         = "EMPTY_CART"
	CodeInvalidCartState  = "INVALID_CART_STATE"
	CodeInsufficientStock = "INSUFFICIENT_STOCK"
	CodeBadRequest        = "BAD_REQUEST"
	CodeNotFound          = "NOT_FOUND"
	CodeInternalError     = "INTERNAL_ERROR"
)

// ServiceError is the tagged error services return to controllers. Callers
// branch on Code, never on the message text.
type ServiceError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *ServiceError) Error() string {
	return e.Message
}
