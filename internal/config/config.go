package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/viper"
)

const (
	IDP_AUTH0   = "auth0"
	IDP_COGNITO = "cognito"
)

var (
	ErrMissingConfig = errors.New("missing required configuration")
	ErrInvalidIdp    = errors.New("invalid idp type")
)

// Auth0Settings drive the direct AssumeRoleWithWebIdentity flow.
type Auth0Settings struct {
	Domain       string
	ClientId     string
	ClientSecret string
	Audience     string
	RoleArn      string
}

// CognitoSettings drive the credential vending API flow.
type CognitoSettings struct {
	Domain           string
	ClientId         string
	ClientSecret     string
	ResourceServer   string
	CredentialApiUrl string
}

// Settings is the validated, immutable runtime configuration.
// Exactly the fields for the selected IdP are guaranteed present.
type Settings struct {
	IdpType string
	Region  string
	Auth0   Auth0Settings
	Cognito CognitoSettings
}

// Load reads settings from the environment via viper and validates
// them for the selected IdP. Any missing variable is reported here,
// before a single network call is made.
func Load(v *viper.Viper) (*Settings, error) {
	v.AutomaticEnv()
	v.SetDefault("IDP_TYPE", IDP_AUTH0)

	s := &Settings{
		IdpType: strings.ToLower(v.GetString("IDP_TYPE")),
		Region:  v.GetString("AWS_REGION"),
		Auth0: Auth0Settings{
			Domain:       v.GetString("AUTH0_DOMAIN"),
			ClientId:     v.GetString("AUTH0_CLIENT_ID"),
			ClientSecret: v.GetString("AUTH0_CLIENT_SECRET"),
			Audience:     v.GetString("AUTH0_AUDIENCE"),
			RoleArn:      v.GetString("AWS_ROLE_ARN"),
		},
		Cognito: CognitoSettings{
			Domain:           v.GetString("COGNITO_DOMAIN"),
			ClientId:         v.GetString("COGNITO_CLIENT_ID"),
			ClientSecret:     v.GetString("COGNITO_CLIENT_SECRET"),
			ResourceServer:   v.GetString("COGNITO_RESOURCE_SERVER"),
			CredentialApiUrl: v.GetString("COGNITO_CREDENTIAL_API_URL"),
		},
	}

	required := map[string]string{"AWS_REGION": s.Region}

	switch s.IdpType {
	case IDP_AUTH0:
		required["AUTH0_DOMAIN"] = s.Auth0.Domain
		required["AUTH0_CLIENT_ID"] = s.Auth0.ClientId
		required["AUTH0_CLIENT_SECRET"] = s.Auth0.ClientSecret
		required["AUTH0_AUDIENCE"] = s.Auth0.Audience
		required["AWS_ROLE_ARN"] = s.Auth0.RoleArn
	case IDP_COGNITO:
		required["COGNITO_DOMAIN"] = s.Cognito.Domain
		required["COGNITO_CLIENT_ID"] = s.Cognito.ClientId
		required["COGNITO_CLIENT_SECRET"] = s.Cognito.ClientSecret
		required["COGNITO_RESOURCE_SERVER"] = s.Cognito.ResourceServer
		required["COGNITO_CREDENTIAL_API_URL"] = s.Cognito.CredentialApiUrl
	default:
		return nil, fmt.Errorf("IDP_TYPE: %s must be one of [%s %s], %w", s.IdpType, IDP_AUTH0, IDP_COGNITO, ErrInvalidIdp)
	}

	missing := []string{}
	for name, val := range required {
		if val == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, fmt.Errorf("missing required environment variables: %s, %w", strings.Join(missing, ", "), ErrMissingConfig)
	}

	return s, nil
}
