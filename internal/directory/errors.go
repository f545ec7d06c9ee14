package directory

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/go-ldap/ldap/v3"
)

var (
	// ErrConfiguration is matched by failures caused by a missing or malformed configuration.
	ErrConfiguration = errors.New("directory configuration error")

	// ErrConnectionFailure is matched by transport failures: connect, TLS, timeouts,
	// and an administrative bind that failed in every format.
	ErrConnectionFailure = errors.New("directory connection failure")

	// ErrUserNotFound is matched when no search filter returned an entry for a suffix.
	ErrUserNotFound = errors.New("user not found")

	// ErrInvalidCredentials is matched when the directory rejected the user bind.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrAuthenticationFailed is the only error surfaced to external callers
	// once every domain suffix has been tried.
	ErrAuthenticationFailed = errors.New("authentication failed")

	// ErrNoDomainSuffix is returned when no domain suffix is configured.
	ErrNoDomainSuffix = errors.New("at least one domain suffix is required")

	// ErrEmptyDomainSuffix is returned when a configured domain suffix is blank.
	ErrEmptyDomainSuffix = errors.New("domain suffix can not be empty")

	// ErrInvalidDN is returned when a search entry carries no usable distinguished name.
	ErrInvalidDN = errors.New("invalid distinguished name")

	// ErrAdminBindFailed is returned when every administrative bind format was rejected.
	ErrAdminBindFailed = errors.New("all admin bind attempts failed")

	// ErrEmptyPassword is returned for an empty password. Directories treat an
	// empty password as an unauthenticated bind that succeeds, so it never reaches a bind.
	ErrEmptyPassword = errors.New("empty password")

	errNoCandidates = errors.New("no candidates to try")
)

// Kind is the variant of an authentication outcome.
type Kind int

const (
	// KindSuccess means the directory accepted the credentials.
	KindSuccess Kind = iota
	// KindInvalidCredentials means the user bind was rejected.
	KindInvalidCredentials
	// KindUserNotFound means no filter located the user.
	KindUserNotFound
	// KindConnectionFailure means the directory could not be reached or the admin bind failed.
	KindConnectionFailure
	// KindConfigurationError means the configuration is unusable.
	KindConfigurationError
)

func (k Kind) String() string {
	switch k {
	case KindSuccess:
		return "success"
	case KindInvalidCredentials:
		return "invalid_credentials"
	case KindUserNotFound:
		return "user_not_found"
	case KindConnectionFailure:
		return "connection_failure"
	case KindConfigurationError:
		return "configuration_error"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

func (k Kind) sentinel() error {
	switch k {
	case KindInvalidCredentials:
		return ErrInvalidCredentials
	case KindUserNotFound:
		return ErrUserNotFound
	case KindConnectionFailure:
		return ErrConnectionFailure
	case KindConfigurationError:
		return ErrConfiguration
	default:
		return nil
	}
}

// Stage names the step of an authentication that failed. Diagnostics only.
type Stage string

const (
	StageConfig    Stage = "config"
	StageConnect   Stage = "connect"
	StageAdminBind Stage = "admin_bind"
	StageSearch    Stage = "search"
	StageUserBind  Stage = "user_bind"
)

// Failure describes why one step of an authentication failed.
// errors.Is matches it against the sentinel of its Kind.
type Failure struct {
	Kind   Kind
	Stage  Stage
	Suffix string
	Err    error
}

func (f *Failure) Error() string {
	msg := fmt.Sprintf("%s at %s", f.Kind, f.Stage)
	if f.Suffix != "" {
		msg += " for suffix " + f.Suffix
	}

	if f.Err != nil {
		msg += ": " + f.Err.Error()
	}

	return msg
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// Is reports whether target is the sentinel of the failure's kind.
func (f *Failure) Is(target error) bool {
	sentinel := f.Kind.sentinel()

	return sentinel != nil && target == sentinel
}

func configFailure(err error) *Failure {
	return &Failure{Kind: KindConfigurationError, Stage: StageConfig, Err: err}
}

// transportResultCodes are go-ldap result codes that describe the connection
// rather than the directory's answer.
var transportResultCodes = map[uint16]struct{}{ //nolint:gochecknoglobals
	ldap.ErrorNetwork:           {},
	ldap.LDAPResultServerDown:   {},
	ldap.LDAPResultConnectError: {},
	ldap.LDAPResultTimeout:      {},
	ldap.LDAPResultUnavailable:  {},
	ldap.LDAPResultBusy:         {},
}

// isTransportError reports whether err is a network, TLS or timeout fault as
// opposed to a definitive answer from the directory.
func isTransportError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, net.ErrClosed) {
		return true
	}

	var ldapErr *ldap.Error
	if errors.As(err, &ldapErr) {
		if _, ok := transportResultCodes[ldapErr.ResultCode]; ok {
			return true
		}
	}

	var netErr net.Error

	return errors.As(err, &netErr)
}

// kindOf returns the most significant kind found in err. A joined error of
// several suffix attempts reports invalid credentials first, then connection
// failures, then not found.
func kindOf(err error) Kind {
	switch {
	case err == nil:
		return KindSuccess
	case errors.Is(err, ErrConfiguration):
		return KindConfigurationError
	case errors.Is(err, ErrInvalidCredentials):
		return KindInvalidCredentials
	case errors.Is(err, ErrConnectionFailure):
		return KindConnectionFailure
	case errors.Is(err, ErrUserNotFound):
		return KindUserNotFound
	default:
		return KindConnectionFailure
	}
}
