package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dnitsch/oidc-cred-provider/internal/config"
	"github.com/dnitsch/oidc-cred-provider/internal/daemon"
)

var (
	tokenFile     string
	tokenInterval int

	tokenDaemonCmd = &cobra.Command{
		Use:   "token-daemon",
		Short: "Refresh the raw OIDC token file periodically (auth0 only)",
		Long: `Refresh the raw OIDC token file periodically.
Writes the bare OIDC token for AWS_WEB_IDENTITY_TOKEN_FILE consumers.
Only works with the auth0 backend - cognito tokens cannot be used with
AssumeRoleWithWebIdentity, use get-credentials or credential-daemon there.`,
		RunE: tokenDaemon,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if tokenInterval <= 0 {
				return fmt.Errorf("interval: %d, must be a positive number of seconds", tokenInterval)
			}
			return nil
		},
	}
)

func init() {
	tokenDaemonCmd.PersistentFlags().StringVarP(&tokenFile, "token-file", "t", daemon.DefaultTokenFile, "Path to write the OIDC token to")
	tokenDaemonCmd.PersistentFlags().IntVarP(&tokenInterval, "interval", "i", int(daemon.DefaultTokenCycle.Seconds()), "Refresh interval in seconds")
	RootCmd.AddCommand(tokenDaemonCmd)
}

func tokenDaemon(cmd *cobra.Command, args []string) error {
	settings, err := loadSettings()
	if err != nil {
		return err
	}

	if settings.IdpType != config.IDP_AUTH0 {
		return fmt.Errorf("token-daemon requires IDP_TYPE=%s, got %s, %w", config.IDP_AUTH0, settings.IdpType, config.ErrInvalidIdp)
	}

	provider, err := newProvider(cmd.Context(), settings)
	if err != nil {
		return err
	}

	d := daemon.NewTokenFileDaemon(provider, tokenFile, time.Duration(tokenInterval)*time.Second)
	return d.Run(cmd.Context())
}
