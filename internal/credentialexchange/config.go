package credentialexchange

import "time"

const (
	SELF_NAME         = "oidc-cred-provider"
	ROLE_SESSION_NAME = "oidc-credential-provider"

	// REFRESH_BUFFER is subtracted from every expiry so a refresh lands
	// before the previous token/credential actually lapses.
	REFRESH_BUFFER = 5 * time.Minute

	// DEFAULT_TOKEN_TTL applies when an IdP response carries neither an
	// expires_in field nor a readable exp claim.
	DEFAULT_TOKEN_TTL = 86400 * time.Second

	SESSION_DURATION_SECONDS = 3600

	HTTP_TIMEOUT = 30 * time.Second
)

// Auth0Config holds the fields the direct AssumeRoleWithWebIdentity
// backend needs.
type Auth0Config struct {
	Domain       string
	ClientId     string
	ClientSecret string
	Audience     string
	RoleArn      string
}

// CognitoConfig holds the fields the credential vending backend needs.
type CognitoConfig struct {
	Domain           string
	ClientId         string
	ClientSecret     string
	ResourceServer   string
	CredentialApiUrl string
	Region           string
}

// AWSCredentials in the credential_process shape.
type AWSCredentials struct {
	Version         int
	AWSAccessKey    string    `json:"AccessKeyId"`
	AWSSecretKey    string    `json:"SecretAccessKey"`
	AWSSessionToken string    `json:"SessionToken"`
	Expires         time.Time `json:"Expiration"`
}

// TokenResult is a successful IdP token response. ExpiresIn is zero when
// the provider omitted it.
type TokenResult struct {
	AccessToken string
	ExpiresIn   int
}
