// Package authn implements credential and token based authentication.
//
// # Overview
//
// The package issues short-lived HS256 access tokens and long-lived opaque
// refresh secrets, verifies both, and manages the user accounts they belong
// to. Every user lives inside exactly one tenant; the tenant ID is embedded
// in the access token so request handling never needs a database round-trip
// to establish tenancy.
//
// # Tokens
//
// Access tokens are JWTs with claims {sub, tid, typ, iat, exp, jti}. They are
// stateless: verification checks only the signature and expiry, so revocation
// of an access token is not possible before it expires.
//
// Refresh secrets are opaque strings of the form "warden_<base64url(32 random
// bytes)>". Only a SHA256 hash is stored. Refresh is a single-use rotation:
// consuming a secret atomically revokes it and issues a replacement, so a
// replayed secret fails even under concurrent use.
//
// # Services
//
//	issuer := authn.NewTokenIssuer(secret, accessTTL)
//	store := authn.NewStore(db)
//	svc := authn.NewService(store, issuer, refreshTTL, auditLogger)
//
//	pair, user, err := svc.Login(ctx, email, password)
//
// # Related Packages
//
//   - pkg/tenants: tenant records and scope guards
//   - pkg/oauth: external identity provider flows that resolve to users here
//   - pkg/middleware: extracts AuthContext from Authorization headers
package authn
