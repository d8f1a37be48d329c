// Package oauth coordinates login and account linking against external
// identity providers.
//
// # Overview
//
// Providers are declared in a YAML file and loaded into a Registry at
// startup: OIDC providers use issuer discovery and ID token verification,
// generic OAuth2 providers fetch a userinfo endpoint and map attributes.
// CSRF state lives in Redis with a short TTL and is consumed with a
// single GETDEL, so a replayed callback finds nothing. The Coordinator
// ties it together: Begin creates state and builds the provider redirect,
// Complete validates state, exchanges the code under a timeout, fetches
// the user profile and resolves it to a local account.
//
// Account resolution order: exact (provider, provider_id) match, then
// email match to link the identity onto an existing account, then a fresh
// tenant with the new user as owner. Creation is guarded by the
// (provider, provider_id) unique index so a duplicated callback resolves
// to the same user instead of creating two.
//
// # Related Packages
//
//   - pkg/authn: user storage and token issuance after resolution
//   - pkg/config: provider file location and exchange timeout
package oauth
