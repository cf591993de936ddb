package credentialexchange

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/aws/smithy-go"
)

var (
	ErrTokenExchange      = errors.New("unable to exchange client credentials for a token")
	ErrCredentialExchange = errors.New("unable to exchange token for credentials")
)

// IdpApi is the per-backend exchange contract, selected once at startup.
type IdpApi interface {
	FetchToken(ctx context.Context) (*TokenResult, error)
	FetchCredentials(ctx context.Context, token string) (*AWSCredentials, error)
}

type httpApi interface {
	Do(req *http.Request) (*http.Response, error)
}

type authWebTokenApi interface {
	AssumeRoleWithWebIdentity(ctx context.Context, params *sts.AssumeRoleWithWebIdentityInput, optFns ...func(*sts.Options)) (*sts.AssumeRoleWithWebIdentityOutput, error)
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// Auth0Provider exchanges an Auth0 M2M client-credentials token directly
// via STS AssumeRoleWithWebIdentity.
type Auth0Provider struct {
	client httpApi
	svc    authWebTokenApi
	conf   Auth0Config
}

func NewAuth0Provider(client httpApi, svc authWebTokenApi, conf Auth0Config) *Auth0Provider {
	return &Auth0Provider{client: client, svc: svc, conf: conf}
}

func (a *Auth0Provider) FetchToken(ctx context.Context) (*TokenResult, error) {
	body, err := json.Marshal(map[string]string{
		"grant_type":    "client_credentials",
		"client_id":     a.conf.ClientId,
		"client_secret": a.conf.ClientSecret,
		"audience":      a.conf.Audience,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal token request: %s, %w", err, ErrTokenExchange)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("https://%s/oauth/token", a.conf.Domain), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("auth0 token request: %s, %w", err, ErrTokenExchange)
	}
	req.Header.Set("Content-Type", "application/json")

	return postForToken(a.client, req, "auth0")
}

func (a *Auth0Provider) FetchCredentials(ctx context.Context, token string) (*AWSCredentials, error) {
	input := &sts.AssumeRoleWithWebIdentityInput{
		RoleArn:          aws.String(a.conf.RoleArn),
		RoleSessionName:  aws.String(ROLE_SESSION_NAME),
		WebIdentityToken: aws.String(token),
		DurationSeconds:  aws.Int32(SESSION_DURATION_SECONDS),
	}

	resp, err := a.svc.AssumeRoleWithWebIdentity(ctx, input)
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			return nil, fmt.Errorf("sts AssumeRoleWithWebIdentity [%s]: %s, %w", apiErr.ErrorCode(), apiErr.ErrorMessage(), ErrCredentialExchange)
		}
		return nil, fmt.Errorf("sts AssumeRoleWithWebIdentity: %s, %w", err, ErrCredentialExchange)
	}

	return &AWSCredentials{
		AWSAccessKey:    aws.ToString(resp.Credentials.AccessKeyId),
		AWSSecretKey:    aws.ToString(resp.Credentials.SecretAccessKey),
		AWSSessionToken: aws.ToString(resp.Credentials.SessionToken),
		Expires:         aws.ToTime(resp.Credentials.Expiration),
	}, nil
}

// CognitoProvider exchanges a Cognito user-pool client-credentials token
// through a credential vending API. Cognito tokens cannot be used with
// AssumeRoleWithWebIdentity directly.
type CognitoProvider struct {
	client httpApi
	conf   CognitoConfig
}

func NewCognitoProvider(client httpApi, conf CognitoConfig) *CognitoProvider {
	return &CognitoProvider{client: client, conf: conf}
}

func (c *CognitoProvider) FetchToken(ctx context.Context) (*TokenResult, error) {
	tokenUrl := fmt.Sprintf("https://%s.auth.%s.amazoncognito.com/oauth2/token", c.conf.Domain, c.conf.Region)

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("scope", cognitoScope(c.conf.ResourceServer))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenUrl, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("cognito token request: %s, %w", err, ErrTokenExchange)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(c.conf.ClientId, c.conf.ClientSecret)

	return postForToken(c.client, req, "cognito")
}

func (c *CognitoProvider) FetchCredentials(ctx context.Context, token string) (*AWSCredentials, error) {
	body, err := json.Marshal(map[string]string{"access_token": token})
	if err != nil {
		return nil, fmt.Errorf("marshal vending request: %s, %w", err, ErrCredentialExchange)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.conf.CredentialApiUrl, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("vending api request: %s, %w", err, ErrCredentialExchange)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("vending api call: %s, %w", err, ErrCredentialExchange)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("vending api response: %s, %w", err, ErrCredentialExchange)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("vending api returned %d: %s, %w", resp.StatusCode, string(respBody), ErrCredentialExchange)
	}

	vended := struct {
		Error       string `json:"error"`
		Credentials struct {
			AccessKeyId     string `json:"access_key_id"`
			SecretAccessKey string `json:"secret_access_key"`
			SessionToken    string `json:"session_token"`
			Expiration      string `json:"expiration"`
		} `json:"credentials"`
	}{}

	if err := json.Unmarshal(respBody, &vended); err != nil {
		return nil, fmt.Errorf("vending api response malformed: %s, %w", err, ErrCredentialExchange)
	}
	if vended.Error != "" {
		return nil, fmt.Errorf("vending api error: %s, %w", vended.Error, ErrCredentialExchange)
	}

	expires, err := parseExpiration(vended.Credentials.Expiration)
	if err != nil {
		return nil, fmt.Errorf("vending api expiration %q: %s, %w", vended.Credentials.Expiration, err, ErrCredentialExchange)
	}

	return &AWSCredentials{
		AWSAccessKey:    vended.Credentials.AccessKeyId,
		AWSSecretKey:    vended.Credentials.SecretAccessKey,
		AWSSessionToken: vended.Credentials.SessionToken,
		Expires:         expires,
	}, nil
}

func cognitoScope(resourceServer string) string {
	scopes := []string{}
	for _, op := range []string{"write", "read", "delete", "list"} {
		scopes = append(scopes, fmt.Sprintf("%s/%s", resourceServer, op))
	}
	return strings.Join(scopes, " ")
}

// parseExpiration accepts RFC 3339 with either a literal Z marker or an
// explicit UTC offset, both resolving to the same instant.
func parseExpiration(raw string) (time.Time, error) {
	normalized := raw
	if strings.HasSuffix(normalized, "Z") {
		normalized = strings.TrimSuffix(normalized, "Z") + "+00:00"
	}
	return time.Parse(time.RFC3339, normalized)
}

func postForToken(client httpApi, req *http.Request, idpName string) (*TokenResult, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s token call: %s, %w", idpName, err, ErrTokenExchange)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s token response: %s, %w", idpName, err, ErrTokenExchange)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%s token endpoint returned %d: %s, %w", idpName, resp.StatusCode, string(body), ErrTokenExchange)
	}

	tr := tokenResponse{}
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, fmt.Errorf("%s token response malformed: %s, %w", idpName, err, ErrTokenExchange)
	}
	if tr.AccessToken == "" {
		return nil, fmt.Errorf("%s token response missing access_token: %s, %w", idpName, string(body), ErrTokenExchange)
	}

	return &TokenResult{AccessToken: tr.AccessToken, ExpiresIn: tr.ExpiresIn}, nil
}
