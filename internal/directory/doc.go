// Package directory authenticates a username and password against an LDAP or
// Active Directory service.
//
// An authentication runs three cooperating steps for every configured domain
// suffix, strictly in sequence:
//
//   - ConnectionSupervisor opens a connection with bounded retries and
//     exponential backoff.
//   - CredentialResolver binds with the administrative identity, searches the
//     directory with an ordered list of filters and returns the first entry's
//     distinguished name.
//   - BindVerifier binds as that distinguished name with the user's password on
//     a fresh connection. A successful bind is the verdict.
//
// The first suffix for which both resolution and verification succeed wins.
// Every connection is released before the step that opened it returns.
//
// Example usage:
//
//	auth := directory.NewAuthenticator(cfg, directory.LDAPDialer{})
//	outcome := auth.Authenticate(ctx, username, password)
//	if outcome.Success() {
//	    // logged in
//	}
package directory
