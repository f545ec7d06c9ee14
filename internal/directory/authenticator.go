package directory

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ldapgate/ldapgate/internal/uniuri"
)

const attemptIDLen = 12

// Outcome is the result of one Authenticate call. Exactly one Kind is set.
// Suffix and DN are filled on success; Err carries the internal cause of a
// failure and must not be shown to external callers.
type Outcome struct {
	Kind   Kind
	Suffix string
	DN     string
	Err    error
}

// Success reports whether the directory accepted the credentials.
func (o Outcome) Success() bool {
	return o.Kind == KindSuccess
}

// Public returns the result as seen by external callers: a boolean and an
// opaque message that does not reveal which stage failed.
func (o Outcome) Public() (bool, string) {
	switch o.Kind {
	case KindSuccess:
		return true, "Login successful"
	case KindConfigurationError:
		return false, "Authentication service unavailable"
	default:
		return false, "Invalid credentials"
	}
}

// Error returns the error external callers may see, nil on success.
func (o Outcome) Error() error {
	switch o.Kind {
	case KindSuccess:
		return nil
	case KindConfigurationError:
		return o.Err
	default:
		return ErrAuthenticationFailed
	}
}

// Option configures an Authenticator.
type Option func(*Authenticator)

// WithSleep replaces the backoff wait. Used by tests to record delays.
func WithSleep(sleep SleepFunc) Option {
	return func(a *Authenticator) {
		a.sleep = sleep
	}
}

// Authenticator tries every configured domain suffix in order until one
// resolves the user and accepts the password.
type Authenticator struct {
	cfg      Config
	cfgErr   error
	sleep    SleepFunc
	resolver *CredentialResolver
	verifier *BindVerifier
}

// NewAuthenticator builds an authenticator for cfg. An invalid cfg is kept
// and reported as a configuration error on every call, before any dial.
func NewAuthenticator(cfg Config, dialer Dialer, opts ...Option) *Authenticator {
	a := &Authenticator{cfg: cfg.WithDefaults()}

	for _, opt := range opts {
		opt(a)
	}

	a.cfgErr = a.cfg.Validate()

	supervisor := NewConnectionSupervisor(a.cfg, dialer, a.sleep)
	a.resolver = NewCredentialResolver(a.cfg, supervisor)
	a.verifier = NewBindVerifier(supervisor)

	return a
}

// Suffixes returns the domain suffixes in the order they are tried.
func (a *Authenticator) Suffixes() []string {
	return append([]string(nil), a.cfg.DomainSuffixes...)
}

// Authenticate decides whether the directory accepts username and password.
// Suffixes are tried strictly in sequence; each one resolves the user on an
// administrative connection, then binds as the user on a fresh connection.
// All connections are released before Authenticate returns.
func (a *Authenticator) Authenticate(ctx context.Context, username, password string) Outcome {
	start := time.Now()

	logger := log.With().
		Str("attempt", uniuri.NewLen(attemptIDLen)).
		Logger()

	outcome := a.authenticate(ctx, logger, username, password)

	authDuration.Observe(time.Since(start).Seconds())
	authOutcomes.WithLabelValues(outcome.Kind.String()).Inc()

	if outcome.Success() {
		logger.Info().Str("suffix", outcome.Suffix).Msg("directory authentication successful")
	} else {
		event := logger.Info()
		if outcome.Kind == KindConfigurationError || outcome.Kind == KindConnectionFailure {
			event = logger.Warn()
		}

		event.Err(outcome.Err).Str("outcome", outcome.Kind.String()).Msg("directory authentication failed")
	}

	return outcome
}

func (a *Authenticator) authenticate(
	ctx context.Context, logger zerolog.Logger, username, password string,
) Outcome {
	if a.cfgErr != nil {
		return Outcome{Kind: KindConfigurationError, Err: a.cfgErr}
	}

	if username == "" {
		return Outcome{Kind: KindUserNotFound, Err: &Failure{Kind: KindUserNotFound, Stage: StageSearch, Err: ErrUserNotFound}}
	}

	if password == "" {
		return Outcome{
			Kind: KindInvalidCredentials,
			Err:  &Failure{Kind: KindInvalidCredentials, Stage: StageUserBind, Err: ErrEmptyPassword},
		}
	}

	identity, err := firstSuccess(a.cfg.DomainSuffixes, func(suffix string) (ResolvedIdentity, error) {
		suffixLogger := logger.With().Str("suffix", suffix).Logger()

		resolved, errResolve := a.resolver.Resolve(ctx, suffixLogger, username, suffix)
		if errResolve != nil {
			suffixLogger.Debug().Err(errResolve).Msg("suffix did not resolve, trying next")

			return ResolvedIdentity{}, errResolve
		}

		if errVerify := a.verifier.Verify(ctx, suffixLogger, resolved, password); errVerify != nil {
			return ResolvedIdentity{}, errVerify
		}

		return resolved, nil
	}, func(error) bool {
		return ctx.Err() != nil
	})
	if err != nil {
		if errors.Is(err, errNoCandidates) {
			return Outcome{Kind: KindConfigurationError, Err: configFailure(ErrNoDomainSuffix)}
		}

		return Outcome{Kind: kindOf(err), Err: err}
	}

	return Outcome{Kind: KindSuccess, Suffix: identity.Suffix, DN: identity.DN}
}
