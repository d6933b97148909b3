// Package adbind authenticates users against Microsoft Active Directory with
// a simple bind and turns group membership into roles.
//
// A login binds as the user's principal name (username@domain, the domain
// being derived from the root DN), reads the user's own entry through that
// connection and then searches the groups the user is a member of, again
// bound as the user. The values of a configurable group attribute become
// roles. No service account is involved.
//
// Optionally the verified identity is replaced by a record of a secondary
// user store, selected by an AccountMapping.
//
// # Basic Usage
//
//	cfg := adbind.DefaultConfig("ldaps://dc1.example.com:636", "dc=example,dc=com")
//	cfg.GroupSearch = adbind.DefaultGroupSearch("ou=Groups,dc=example,dc=com")
//
//	provider, err := adbind.NewProvider(cfg, nil, adbind.WithLogger(logger))
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	auth, err := provider.Authenticate(ctx, "jdoe", password)
//	if err != nil {
//		// errors.Is(err, adbind.ErrBadCredentials) for rejected logins
//		return err
//	}
//	fmt.Println(auth.Principal.DN(), auth.Roles)
//
// # Errors
//
// A wrong password, an unknown user and an empty password all yield a
// *BadCredentialsError carrying the same localized message, so callers cannot
// tell them apart. Directory faults yield a *ServiceError; IsRetryable reports
// whether trying again may help. Invalid settings yield a *ConfigError.
//
// # Credentials
//
// Passwords are held in a Credential, which never prints its value and is
// wiped once the login completes. Logs carry only masked usernames and the
// presence of a credential.
//
// # Searching
//
// SearchExecutor runs searches through a ConnectionSource, one connection per
// call, and escapes filter parameters with FormatFilter. ScopedSource binds
// every connection as a fixed principal.
package adbind
