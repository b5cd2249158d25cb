package errs

const (
	NormalClosure          = 1000
	MalformedFrameCode     = 1007
	AuthRejectedCode       = 4001
	ServerInternalError    = 5000
	PersistenceFailureCode = 5001
	DeliveryFailureCode    = 5002
)

var (
	ErrAuthenticationRejected = NewCodeError(AuthRejectedCode, "Invalid token")
	ErrMalformedFrame         = NewCodeError(MalformedFrameCode, "malformed frame")
	ErrPersistenceFailure     = NewCodeError(PersistenceFailureCode, "persistence failure")
	ErrDeliveryFailure        = NewCodeError(DeliveryFailureCode, "delivery failure")
	ErrInternal               = NewCodeError(ServerInternalError, "internal error")
)
