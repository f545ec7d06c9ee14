package login

import "errors"

// ErrProxyFallback is logged when the upstream gateway failed and the
// directory is asked directly.
var ErrProxyFallback = errors.New("ldap proxy failed, falling back to direct authentication")
