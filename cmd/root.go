package cmd

import (
	"context"
	"fmt"
	"net/http"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dnitsch/oidc-cred-provider/internal/config"
	"github.com/dnitsch/oidc-cred-provider/internal/credentialexchange"
	"github.com/dnitsch/oidc-cred-provider/internal/util"
)

var (
	verbose bool
	RootCmd = &cobra.Command{
		Use:   credentialexchange.SELF_NAME,
		Short: "Provides AWS credentials via OIDC federation with Auth0 or Cognito",
		Long: `Provides AWS credentials via OIDC federation with Auth0 or Cognito.
Exchanges a client-credentials OIDC token for temporary AWS credentials and
delivers them as a credential_process payload or via periodically refreshed
credential/token files. Configured entirely through environment variables,
see IDP_TYPE, AWS_REGION and the AUTH0_*/COGNITO_* family.`,
		SilenceUsage: true,
	}
)

func Execute() {
	if err := RootCmd.Execute(); err != nil {
		util.Exit(err)
	}
}

func init() {
	RootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	cobra.OnInitialize(func() {
		util.IsTraceEnabled = verbose
	})
}

// newProvider wires the configured IdP backend into a federation
// provider. The backend is selected here, once, and never re-selected.
func newProvider(ctx context.Context, settings *config.Settings) (*credentialexchange.Provider, error) {
	client := &http.Client{Timeout: credentialexchange.HTTP_TIMEOUT}

	switch settings.IdpType {
	case config.IDP_AUTH0:
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(settings.Region))
		if err != nil {
			return nil, fmt.Errorf("unable to load aws config: %w", err)
		}
		idp := credentialexchange.NewAuth0Provider(client, sts.NewFromConfig(awsCfg), credentialexchange.Auth0Config{
			Domain:       settings.Auth0.Domain,
			ClientId:     settings.Auth0.ClientId,
			ClientSecret: settings.Auth0.ClientSecret,
			Audience:     settings.Auth0.Audience,
			RoleArn:      settings.Auth0.RoleArn,
		})
		return credentialexchange.New(idp), nil
	case config.IDP_COGNITO:
		idp := credentialexchange.NewCognitoProvider(client, credentialexchange.CognitoConfig{
			Domain:           settings.Cognito.Domain,
			ClientId:         settings.Cognito.ClientId,
			ClientSecret:     settings.Cognito.ClientSecret,
			ResourceServer:   settings.Cognito.ResourceServer,
			CredentialApiUrl: settings.Cognito.CredentialApiUrl,
			Region:           settings.Region,
		})
		return credentialexchange.New(idp), nil
	}
	return nil, fmt.Errorf("IDP_TYPE: %s, %w", settings.IdpType, config.ErrInvalidIdp)
}

func loadSettings() (*config.Settings, error) {
	return config.Load(viper.GetViper())
}
