package credentialexchange

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/dnitsch/oidc-cred-provider/internal/util"
)

type cachedToken struct {
	token   string
	expires time.Time
}

// Provider composes an IdP backend with expiry-aware caches for the OIDC
// token and the AWS credentials. The two caches age independently, but a
// credentials refresh always resolves a token through the token cache
// first. One Provider is owned by exactly one process loop; calls are
// strictly sequential.
type Provider struct {
	idp   IdpApi
	token *cachedToken
	creds *AWSCredentials
	now   func() time.Time
}

func New(idp IdpApi) *Provider {
	return &Provider{idp: idp, now: time.Now}
}

// WithClock overrides the time source.
func (p *Provider) WithClock(now func() time.Time) *Provider {
	p.now = now
	return p
}

// Token returns the cached OIDC token when it has more than
// REFRESH_BUFFER left before expiry, otherwise fetches a new one. A
// failed fetch never invalidates the cached entry: if the old token has
// not itself expired it is served as last known good.
func (p *Provider) Token(ctx context.Context) (string, error) {
	now := p.now()

	if p.token != nil && now.Before(p.token.expires.Add(-REFRESH_BUFFER)) {
		return p.token.token, nil
	}

	res, err := p.idp.FetchToken(ctx)
	if err != nil {
		if p.token != nil && now.Before(p.token.expires) {
			util.Writeln("token refresh failed, reusing cached token until %s: %s", p.token.expires.Format(time.RFC3339), err)
			return p.token.token, nil
		}
		return "", err
	}

	p.token = &cachedToken{
		token:   res.AccessToken,
		expires: now.Add(tokenTTL(now, res)),
	}
	util.Traceln("got token (expires: %s)", p.token.expires.Format(time.RFC3339))
	return p.token.token, nil
}

// Credentials applies the same reuse logic to the AWS credentials entry.
// A cache hit never touches the token path.
func (p *Provider) Credentials(ctx context.Context) (*AWSCredentials, error) {
	now := p.now()

	if p.creds != nil && now.Before(p.creds.Expires.Add(-REFRESH_BUFFER)) {
		return p.creds, nil
	}

	token, err := p.Token(ctx)
	if err != nil {
		return p.lastKnownGood(now, err)
	}

	creds, err := p.idp.FetchCredentials(ctx, token)
	if err != nil {
		return p.lastKnownGood(now, err)
	}

	p.creds = creds
	util.Traceln("got credentials (expires: %s)", creds.Expires.Format(time.RFC3339))
	return p.creds, nil
}

func (p *Provider) lastKnownGood(now time.Time, err error) (*AWSCredentials, error) {
	if p.creds != nil && now.Before(p.creds.Expires) {
		util.Writeln("credential refresh failed, reusing cached credentials until %s: %s", p.creds.Expires.Format(time.RFC3339), err)
		return p.creds, nil
	}
	return nil, err
}

// tokenTTL resolves the lifetime of a freshly issued token: the
// provider-reported expires_in wins, then the exp claim of the JWT
// itself, then DEFAULT_TOKEN_TTL.
func tokenTTL(now time.Time, res *TokenResult) time.Duration {
	if res.ExpiresIn > 0 {
		return time.Duration(res.ExpiresIn) * time.Second
	}
	if exp, ok := tokenExpClaim(res.AccessToken); ok && exp.After(now) {
		return exp.Sub(now)
	}
	return DEFAULT_TOKEN_TTL
}

// tokenExpClaim reads exp without verifying the signature - the token is
// only inspected for its deadline, never trusted for anything else here.
func tokenExpClaim(raw string) (time.Time, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
