package directory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-ldap/ldap/v3"
	"github.com/rs/zerolog"
)

// searchAttributes are requested for every user search.
var searchAttributes = []string{ //nolint:gochecknoglobals
	"dn",
	"userPrincipalName",
	"cn",
	"mail",
	"sAMAccountName",
	"distinguishedName",
}

// ResolvedIdentity is the distinguished name located for a username under
// one domain suffix. It is only valid for the attempt that produced it.
type ResolvedIdentity struct {
	DN     string
	Suffix string
}

// Validate checks that the identity carries a well-formed distinguished name.
func (r ResolvedIdentity) Validate() error {
	_, err := validDN(r.DN)

	return err
}

// CredentialResolver locates a user's distinguished name with an
// administrative bind and an ordered list of search filters.
type CredentialResolver struct {
	cfg        Config
	supervisor *ConnectionSupervisor
}

// NewCredentialResolver creates a resolver using supervisor for connections.
func NewCredentialResolver(cfg Config, supervisor *ConnectionSupervisor) *CredentialResolver {
	return &CredentialResolver{cfg: cfg.WithDefaults(), supervisor: supervisor}
}

// Resolve opens an administrative connection, binds, and searches for
// username under suffix. The connection is released before Resolve returns.
//
// Errors are *Failure values: ErrConnectionFailure when the connection,
// every admin bind format, or a search transport failed; ErrUserNotFound when
// all filters came back empty.
func (r *CredentialResolver) Resolve(
	ctx context.Context, logger zerolog.Logger, username, suffix string,
) (ResolvedIdentity, error) {
	var identity ResolvedIdentity

	err := r.supervisor.WithConn(ctx, "admin", func(conn Conn) error {
		if errBind := r.adminBind(conn, logger); errBind != nil {
			return &Failure{Kind: KindConnectionFailure, Stage: StageAdminBind, Suffix: suffix, Err: errBind}
		}

		dn, errSearch := r.search(ctx, conn, logger, username, suffix)
		if errSearch != nil {
			kind := KindUserNotFound
			if isTransportError(errSearch) {
				kind = KindConnectionFailure
			}

			return &Failure{Kind: kind, Stage: StageSearch, Suffix: suffix, Err: errSearch}
		}

		identity = ResolvedIdentity{DN: dn, Suffix: suffix}

		return nil
	})
	if err != nil {
		var failure *Failure
		if errors.As(err, &failure) && failure.Suffix == "" {
			failure.Suffix = suffix
		}

		return ResolvedIdentity{}, err
	}

	return identity, nil
}

// adminBind tries every textual form of the administrative identity in order.
func (r *CredentialResolver) adminBind(conn Conn, logger zerolog.Logger) error {
	_, err := firstSuccess(AdminBindFormats(r.cfg.BindDN), func(bindDN string) (string, error) {
		if err := conn.Bind(bindDN, r.cfg.BindPassword); err != nil {
			logger.Debug().Err(err).Str("bind_dn", bindDN).Msg("admin bind failed, trying next format")

			return "", err
		}

		logger.Debug().Str("bind_dn", bindDN).Msg("admin bind successful")

		return bindDN, nil
	}, nil)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrAdminBindFailed, err)
	}

	return nil
}

// search runs the filters in order. A filter that errors with a directory
// answer, returns nothing or returns an entry without a usable DN moves on
// to the next one; a transport error aborts the search.
func (r *CredentialResolver) search(
	ctx context.Context, conn Conn, logger zerolog.Logger, username, suffix string,
) (string, error) {
	base := r.cfg.searchBase(suffix)

	return firstSuccess(SearchFilters(username, suffix), func(filter string) (string, error) {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		searchRequest := ldap.NewSearchRequest(
			base,
			ldap.ScopeWholeSubtree,
			ldap.NeverDerefAliases,
			0, // Size limit
			r.cfg.searchTimeLimit(),
			false,
			filter,
			searchAttributes,
			nil,
		)

		result, err := conn.Search(searchRequest)
		if err != nil {
			logger.Debug().Err(err).Str("filter", filter).Msg("search failed")

			return "", fmt.Errorf("search %s: %w", filter, err)
		}

		if len(result.Entries) == 0 {
			logger.Debug().Str("filter", filter).Msg("no entry for filter")

			return "", fmt.Errorf("%w with filter %s", ErrUserNotFound, filter)
		}

		dn, err := entryDN(result.Entries[0])
		if err != nil {
			return "", fmt.Errorf("filter %s: %w", filter, err)
		}

		logger.Debug().Str("filter", filter).Str("dn", dn).Msg("user found")

		return dn, nil
	}, isTransportError)
}

// AdminBindFormats returns the textual forms of bindDN tried for the
// administrative bind: doubled backslashes collapsed first, then the value
// as configured. Identical forms are tried once.
func AdminBindFormats(bindDN string) []string {
	normalized := strings.ReplaceAll(bindDN, `\\`, `\`)
	if normalized == bindDN {
		return []string{bindDN}
	}

	return []string{normalized, bindDN}
}

// SearchFilters returns the ordered search filters for username under suffix.
// Values are escaped for use in a filter.
func SearchFilters(username, suffix string) []string {
	principal := ldap.EscapeFilter(username + "@" + suffix)

	upn := "(userPrincipalName=" + principal + ")"
	sam := "(sAMAccountName=" + ldap.EscapeFilter(username) + ")"
	mail := "(mail=" + principal + ")"

	return []string{
		upn,
		sam,
		mail,
		"(|" + upn + sam + mail + ")",
	}
}

// entryDN reads the entry's object name and falls back to its
// distinguishedName attribute when the object name is absent or unparsable.
func entryDN(entry *ldap.Entry) (string, error) {
	if dn, err := validDN(entry.DN); err == nil {
		return dn, nil
	}

	return validDN(entry.GetAttributeValue("distinguishedName"))
}

func validDN(dn string) (string, error) {
	dn = strings.TrimSpace(dn)
	if dn == "" {
		return "", ErrInvalidDN
	}

	if _, err := ldap.ParseDN(dn); err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidDN, err)
	}

	return dn, nil
}
