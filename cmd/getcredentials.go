package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/dnitsch/oidc-cred-provider/internal/credentialexchange"
)

var getCredentialsCmd = &cobra.Command{
	Use:   "get-credentials",
	Short: "Output credentials for the AWS SDK credential_process",
	Long: `Output credentials for the AWS SDK credential_process.
Emits a single Version 1 JSON object to stdout and nothing else, so the
output can be consumed directly via a credential_process entry in the AWS
config. Recommended over the daemons for anything that understands
credential_process, as the SDK drives the refresh itself.`,
	RunE: getCredentials,
}

func init() {
	RootCmd.AddCommand(getCredentialsCmd)
}

func getCredentials(cmd *cobra.Command, args []string) error {
	settings, err := loadSettings()
	if err != nil {
		return err
	}

	provider, err := newProvider(cmd.Context(), settings)
	if err != nil {
		return err
	}

	creds, err := provider.Credentials(cmd.Context())
	if err != nil {
		return err
	}

	return credentialexchange.WriteCredentialProcess(os.Stdout, *creds)
}
