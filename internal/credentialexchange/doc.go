// credentialexchange
//
// Handles the main flows for exchanging a workload OIDC identity for AWS
// temporary creds.
//
// Two IdP backends share one contract: Auth0 tokens go straight through
// STS AssumeRoleWithWebIdentity, Cognito tokens go through an external
// credential vending API. A Provider composes either backend with
// expiry-aware caches for the token and the credentials.
package credentialexchange
