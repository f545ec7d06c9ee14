package directory

import (
	"context"

	"github.com/rs/zerolog"
)

// BindVerifier performs the user bind that decides an authentication.
type BindVerifier struct {
	supervisor *ConnectionSupervisor
}

// NewBindVerifier creates a verifier using supervisor for connections.
func NewBindVerifier(supervisor *ConnectionSupervisor) *BindVerifier {
	return &BindVerifier{supervisor: supervisor}
}

// Verify binds as identity.DN with password on a fresh connection. The bind
// is attempted once; a rejection is a verdict, not a transient fault. The
// connection is released whatever the outcome. Identities from Resolve
// always carry a valid DN; others are rejected before any dial.
func (v *BindVerifier) Verify(
	ctx context.Context, logger zerolog.Logger, identity ResolvedIdentity, password string,
) error {
	if err := identity.Validate(); err != nil {
		return &Failure{Kind: KindUserNotFound, Stage: StageUserBind, Suffix: identity.Suffix, Err: err}
	}

	if password == "" {
		return &Failure{Kind: KindInvalidCredentials, Stage: StageUserBind, Suffix: identity.Suffix, Err: ErrEmptyPassword}
	}

	err := v.supervisor.WithConn(ctx, "user", func(conn Conn) error {
		if err := conn.Bind(identity.DN, password); err != nil {
			kind := KindInvalidCredentials
			if isTransportError(err) {
				kind = KindConnectionFailure
			}

			return &Failure{Kind: kind, Stage: StageUserBind, Suffix: identity.Suffix, Err: err}
		}

		return nil
	})
	if err != nil {
		logger.Debug().Err(err).Str("dn", identity.DN).Msg("user bind failed")

		return err
	}

	logger.Debug().Str("dn", identity.DN).Msg("user bind successful")

	return nil
}
