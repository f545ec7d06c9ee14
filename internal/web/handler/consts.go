package handler

const (
	// RouterRootPath is the root path of a route group.
	RouterRootPath = "/"

	// MaxUsernameLen is the longest accepted username in bytes.
	MaxUsernameLen = 256

	// ErrNilAppCfgLogMsg is used if app or cfg var pointer is nil.
	ErrNilAppCfgLogMsg = "app or cfg is nil"
)

// Public messages. They never reveal which stage of an authentication failed.
const (
	MsgLoginSuccessful    = "Login successful"
	MsgInvalidCredentials = "Invalid credentials"
	MsgMissingFields      = "Username and password are required"
	MsgInvalidUsername    = "Invalid username"
	MsgInvalidBody        = "Invalid request body"
	MsgUnavailable        = "Authentication service unavailable"
	MsgUnauthorized       = "Unauthorized"
)
