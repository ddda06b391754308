package usercontext

// Shared Locals keys and gateway headers used across controllers and middlewares
const (
	KeyUserContext = "USER_CONTEXT"

	HeaderUserID       = "X-User-ID"
	HeaderUserEmail    = "X-User-Email"
	HeaderGatewayToken = "X-Gateway-Token"
)
