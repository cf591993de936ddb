package credentialexchange_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/aws/aws-sdk-go-v2/service/sts/types"
	"github.com/aws/smithy-go"

	"github.com/dnitsch/oidc-cred-provider/internal/credentialexchange"
)

type mockHttpApi struct {
	do func(req *http.Request) (*http.Response, error)
}

func (m *mockHttpApi) Do(req *http.Request) (*http.Response, error) {
	return m.do(req)
}

func httpResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

type mockWebTokenApi struct {
	assumeWithWebId func(ctx context.Context, params *sts.AssumeRoleWithWebIdentityInput, optFns ...func(*sts.Options)) (*sts.AssumeRoleWithWebIdentityOutput, error)
}

func (m *mockWebTokenApi) AssumeRoleWithWebIdentity(ctx context.Context, params *sts.AssumeRoleWithWebIdentityInput, optFns ...func(*sts.Options)) (*sts.AssumeRoleWithWebIdentityOutput, error) {
	return m.assumeWithWebId(ctx, params, optFns...)
}

type smithyErrTyp struct {
	code string
	msg  string
}

func (e *smithyErrTyp) Error() string                 { return e.msg }
func (e *smithyErrTyp) ErrorCode() string             { return e.code }
func (e *smithyErrTyp) ErrorMessage() string          { return e.msg }
func (e *smithyErrTyp) ErrorFault() smithy.ErrorFault { return smithy.FaultClient }

var auth0Conf = credentialexchange.Auth0Config{
	Domain:       "tenant.auth0.com",
	ClientId:     "client123",
	ClientSecret: "secret123",
	Audience:     "https://api.example.com",
	RoleArn:      "arn:aws:iam::111122223333:role/workload",
}

func Test_Auth0_FetchToken_with(t *testing.T) {
	ttests := map[string]struct {
		srv       func(t *testing.T) *mockHttpApi
		expectErr bool
		errTyp    error
	}{
		"well formed response": {
			srv: func(t *testing.T) *mockHttpApi {
				return &mockHttpApi{do: func(req *http.Request) (*http.Response, error) {
					if req.URL.String() != "https://tenant.auth0.com/oauth/token" {
						t.Errorf("incorrect url: %s", req.URL)
					}
					if ct := req.Header.Get("Content-Type"); ct != "application/json" {
						t.Errorf("incorrect content type: %s", ct)
					}
					body := map[string]string{}
					if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
						t.Fatalf("unable to decode request body: %s", err)
					}
					for key, want := range map[string]string{
						"grant_type":    "client_credentials",
						"client_id":     "client123",
						"client_secret": "secret123",
						"audience":      "https://api.example.com",
					} {
						if body[key] != want {
							t.Errorf("body[%s]: got %s, wanted %s", key, body[key], want)
						}
					}
					return httpResponse(200, `{"access_token":"tok-abc","expires_in":86400}`), nil
				}}
			},
		},
		"non 2xx response carries the body": {
			srv: func(t *testing.T) *mockHttpApi {
				return &mockHttpApi{do: func(req *http.Request) (*http.Response, error) {
					return httpResponse(401, `{"error":"access_denied"}`), nil
				}}
			},
			expectErr: true,
			errTyp:    credentialexchange.ErrTokenExchange,
		},
		"missing access_token field": {
			srv: func(t *testing.T) *mockHttpApi {
				return &mockHttpApi{do: func(req *http.Request) (*http.Response, error) {
					return httpResponse(200, `{"scope":"read"}`), nil
				}}
			},
			expectErr: true,
			errTyp:    credentialexchange.ErrTokenExchange,
		},
		"malformed json": {
			srv: func(t *testing.T) *mockHttpApi {
				return &mockHttpApi{do: func(req *http.Request) (*http.Response, error) {
					return httpResponse(200, `<html>nope</html>`), nil
				}}
			},
			expectErr: true,
			errTyp:    credentialexchange.ErrTokenExchange,
		},
		"transport error": {
			srv: func(t *testing.T) *mockHttpApi {
				return &mockHttpApi{do: func(req *http.Request) (*http.Response, error) {
					return nil, fmt.Errorf("dial tcp: connection refused")
				}}
			},
			expectErr: true,
			errTyp:    credentialexchange.ErrTokenExchange,
		},
	}
	for name, tt := range ttests {
		t.Run(name, func(t *testing.T) {
			idp := credentialexchange.NewAuth0Provider(tt.srv(t), &mockWebTokenApi{}, auth0Conf)

			got, err := idp.FetchToken(context.TODO())

			if tt.expectErr {
				if err == nil {
					t.Fatalf("got <nil>, wanted %s", tt.errTyp)
				}
				if !errors.Is(err, tt.errTyp) {
					t.Errorf("got %s, wanted %s", err, tt.errTyp)
				}
				return
			}
			if err != nil {
				t.Fatalf("got %s, wanted <nil>", err)
			}
			if got.AccessToken != "tok-abc" {
				t.Errorf("got %s, wanted tok-abc", got.AccessToken)
			}
			if got.ExpiresIn != 86400 {
				t.Errorf("got %d, wanted 86400", got.ExpiresIn)
			}
		})
	}
}

func Test_Auth0_FetchCredentials_with(t *testing.T) {
	expires := time.Now().UTC().Add(time.Hour)

	ttests := map[string]struct {
		srv       func(t *testing.T) *mockWebTokenApi
		expectErr bool
		errTyp    error
		errPart   string
	}{
		"successful role assumption": {
			srv: func(t *testing.T) *mockWebTokenApi {
				return &mockWebTokenApi{assumeWithWebId: func(ctx context.Context, params *sts.AssumeRoleWithWebIdentityInput, optFns ...func(*sts.Options)) (*sts.AssumeRoleWithWebIdentityOutput, error) {
					if *params.RoleArn != auth0Conf.RoleArn {
						t.Errorf("incorrect role: %s", *params.RoleArn)
					}
					if *params.RoleSessionName != "oidc-credential-provider" {
						t.Errorf("incorrect session name: %s", *params.RoleSessionName)
					}
					if *params.WebIdentityToken != "tok-abc" {
						t.Errorf("incorrect token: %s", *params.WebIdentityToken)
					}
					if *params.DurationSeconds != 3600 {
						t.Errorf("incorrect duration: %d", *params.DurationSeconds)
					}
					return &sts.AssumeRoleWithWebIdentityOutput{
						AssumedRoleUser: &types.AssumedRoleUser{Arn: aws.String("somearn")},
						Credentials: &types.Credentials{
							AccessKeyId:     aws.String("AKIA1"),
							SecretAccessKey: aws.String("s3cr3t"),
							SessionToken:    aws.String("tok1"),
							Expiration:      aws.Time(expires),
						},
					}, nil
				}}
			},
		},
		"sts api error surfaces the code": {
			srv: func(t *testing.T) *mockWebTokenApi {
				return &mockWebTokenApi{assumeWithWebId: func(ctx context.Context, params *sts.AssumeRoleWithWebIdentityInput, optFns ...func(*sts.Options)) (*sts.AssumeRoleWithWebIdentityOutput, error) {
					return nil, &smithyErrTyp{code: "ExpiredTokenException", msg: "token expired"}
				}}
			},
			expectErr: true,
			errTyp:    credentialexchange.ErrCredentialExchange,
			errPart:   "ExpiredTokenException",
		},
		"plain error": {
			srv: func(t *testing.T) *mockWebTokenApi {
				return &mockWebTokenApi{assumeWithWebId: func(ctx context.Context, params *sts.AssumeRoleWithWebIdentityInput, optFns ...func(*sts.Options)) (*sts.AssumeRoleWithWebIdentityOutput, error) {
					return nil, fmt.Errorf("some error")
				}}
			},
			expectErr: true,
			errTyp:    credentialexchange.ErrCredentialExchange,
		},
	}
	for name, tt := range ttests {
		t.Run(name, func(t *testing.T) {
			idp := credentialexchange.NewAuth0Provider(&mockHttpApi{}, tt.srv(t), auth0Conf)

			got, err := idp.FetchCredentials(context.TODO(), "tok-abc")

			if tt.expectErr {
				if err == nil {
					t.Fatalf("got <nil>, wanted %s", tt.errTyp)
				}
				if !errors.Is(err, tt.errTyp) {
					t.Errorf("got %s, wanted %s", err, tt.errTyp)
				}
				if tt.errPart != "" && !strings.Contains(err.Error(), tt.errPart) {
					t.Errorf("error %q missing %q", err, tt.errPart)
				}
				return
			}
			if err != nil {
				t.Fatalf("got %s, wanted <nil>", err)
			}
			if got.AWSAccessKey != "AKIA1" || got.AWSSecretKey != "s3cr3t" || got.AWSSessionToken != "tok1" {
				t.Errorf("incorrect credential mapping: %+v", got)
			}
			if !got.Expires.Equal(expires) {
				t.Errorf("got %s, wanted %s", got.Expires, expires)
			}
		})
	}
}

var cognitoConf = credentialexchange.CognitoConfig{
	Domain:           "my-pool",
	ClientId:         "client123",
	ClientSecret:     "secret123",
	ResourceServer:   "transfer",
	CredentialApiUrl: "https://vendor.example.com/credentials",
	Region:           "eu-west-1",
}

func Test_Cognito_FetchToken_with(t *testing.T) {
	ttests := map[string]struct {
		srv       func(t *testing.T) *mockHttpApi
		expectErr bool
		errTyp    error
	}{
		"well formed request and response": {
			srv: func(t *testing.T) *mockHttpApi {
				return &mockHttpApi{do: func(req *http.Request) (*http.Response, error) {
					if req.URL.String() != "https://my-pool.auth.eu-west-1.amazoncognito.com/oauth2/token" {
						t.Errorf("incorrect url: %s", req.URL)
					}
					if ct := req.Header.Get("Content-Type"); ct != "application/x-www-form-urlencoded" {
						t.Errorf("incorrect content type: %s", ct)
					}
					wantAuth := "Basic " + base64.StdEncoding.EncodeToString([]byte("client123:secret123"))
					if auth := req.Header.Get("Authorization"); auth != wantAuth {
						t.Errorf("incorrect authorization header: %s", auth)
					}
					if err := req.ParseForm(); err != nil {
						t.Fatalf("unable to parse form: %s", err)
					}
					if gt := req.PostForm.Get("grant_type"); gt != "client_credentials" {
						t.Errorf("incorrect grant type: %s", gt)
					}
					wantScope := "transfer/write transfer/read transfer/delete transfer/list"
					if scope := req.PostForm.Get("scope"); scope != wantScope {
						t.Errorf("got scope %q, wanted %q", scope, wantScope)
					}
					return httpResponse(200, `{"access_token":"cog-tok","expires_in":3600}`), nil
				}}
			},
		},
		"non 2xx response": {
			srv: func(t *testing.T) *mockHttpApi {
				return &mockHttpApi{do: func(req *http.Request) (*http.Response, error) {
					return httpResponse(400, `{"error":"invalid_client"}`), nil
				}}
			},
			expectErr: true,
			errTyp:    credentialexchange.ErrTokenExchange,
		},
	}
	for name, tt := range ttests {
		t.Run(name, func(t *testing.T) {
			idp := credentialexchange.NewCognitoProvider(tt.srv(t), cognitoConf)

			got, err := idp.FetchToken(context.TODO())

			if tt.expectErr {
				if err == nil {
					t.Fatalf("got <nil>, wanted %s", tt.errTyp)
				}
				if !errors.Is(err, tt.errTyp) {
					t.Errorf("got %s, wanted %s", err, tt.errTyp)
				}
				return
			}
			if err != nil {
				t.Fatalf("got %s, wanted <nil>", err)
			}
			if got.AccessToken != "cog-tok" {
				t.Errorf("got %s, wanted cog-tok", got.AccessToken)
			}
		})
	}
}

func Test_Cognito_FetchCredentials_with(t *testing.T) {
	ttests := map[string]struct {
		srv        func(t *testing.T) *mockHttpApi
		expectErr  bool
		errTyp     error
		errPart    string
		wantExpiry time.Time
	}{
		"expiration with literal Z marker": {
			srv: func(t *testing.T) *mockHttpApi {
				return &mockHttpApi{do: func(req *http.Request) (*http.Response, error) {
					if req.URL.String() != cognitoConf.CredentialApiUrl {
						t.Errorf("incorrect url: %s", req.URL)
					}
					body := map[string]string{}
					if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
						t.Fatalf("unable to decode request body: %s", err)
					}
					if body["access_token"] != "cog-tok" {
						t.Errorf("incorrect token in body: %s", body["access_token"])
					}
					return httpResponse(200, `{"credentials":{"access_key_id":"AKIA1","secret_access_key":"s3cr3t","session_token":"tok1","expiration":"2024-06-01T12:00:00Z"}}`), nil
				}}
			},
			wantExpiry: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
		},
		"expiration with explicit utc offset": {
			srv: func(t *testing.T) *mockHttpApi {
				return &mockHttpApi{do: func(req *http.Request) (*http.Response, error) {
					return httpResponse(200, `{"credentials":{"access_key_id":"AKIA1","secret_access_key":"s3cr3t","session_token":"tok1","expiration":"2024-06-01T12:00:00+00:00"}}`), nil
				}}
			},
			wantExpiry: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
		},
		"error field in the response": {
			srv: func(t *testing.T) *mockHttpApi {
				return &mockHttpApi{do: func(req *http.Request) (*http.Response, error) {
					return httpResponse(200, `{"error":"invalid_client"}`), nil
				}}
			},
			expectErr: true,
			errTyp:    credentialexchange.ErrCredentialExchange,
			errPart:   "invalid_client",
		},
		"unparseable expiration": {
			srv: func(t *testing.T) *mockHttpApi {
				return &mockHttpApi{do: func(req *http.Request) (*http.Response, error) {
					return httpResponse(200, `{"credentials":{"access_key_id":"AKIA1","secret_access_key":"s3cr3t","session_token":"tok1","expiration":"next tuesday"}}`), nil
				}}
			},
			expectErr: true,
			errTyp:    credentialexchange.ErrCredentialExchange,
		},
		"non 2xx response": {
			srv: func(t *testing.T) *mockHttpApi {
				return &mockHttpApi{do: func(req *http.Request) (*http.Response, error) {
					return httpResponse(502, `bad gateway`), nil
				}}
			},
			expectErr: true,
			errTyp:    credentialexchange.ErrCredentialExchange,
		},
	}
	for name, tt := range ttests {
		t.Run(name, func(t *testing.T) {
			idp := credentialexchange.NewCognitoProvider(tt.srv(t), cognitoConf)

			got, err := idp.FetchCredentials(context.TODO(), "cog-tok")

			if tt.expectErr {
				if err == nil {
					t.Fatalf("got <nil>, wanted %s", tt.errTyp)
				}
				if !errors.Is(err, tt.errTyp) {
					t.Errorf("got %s, wanted %s", err, tt.errTyp)
				}
				if tt.errPart != "" && !strings.Contains(err.Error(), tt.errPart) {
					t.Errorf("error %q missing %q", err, tt.errPart)
				}
				return
			}
			if err != nil {
				t.Fatalf("got %s, wanted <nil>", err)
			}
			if got.AWSAccessKey != "AKIA1" {
				t.Errorf("incorrect credential mapping: %+v", got)
			}
			if !got.Expires.Equal(tt.wantExpiry) {
				t.Errorf("got %s, wanted %s", got.Expires, tt.wantExpiry)
			}
		})
	}
}
