package usercontext

// Shared Locals keys used across controllers and middlewares
const (
	KeyOperatorContext = "OPERATOR_CONTEXT"
	KeyOperatorID      = "operator_id"
	KeyAuthenticated   = "authenticated"
)
