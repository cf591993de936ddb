package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dnitsch/oidc-cred-provider/internal/daemon"
)

var (
	credsDir      string
	credsInterval int

	credentialDaemonCmd = &cobra.Command{
		Use:   "credential-daemon",
		Short: "Refresh AWS credential files periodically",
		Long: `Refresh AWS credential files periodically.
Publishes an env file, a JSON file and an AWS shared-credentials profile
file into the credentials directory, each replaced atomically every cycle.
Point applications at the directory via AWS_SHARED_CREDENTIALS_FILE or by
sourcing the env file. A failed cycle keeps the last published files.`,
		RunE: credentialDaemon,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if credsInterval <= 0 {
				return fmt.Errorf("interval: %d, must be a positive number of seconds", credsInterval)
			}
			return nil
		},
	}
)

func init() {
	credentialDaemonCmd.PersistentFlags().StringVarP(&credsDir, "creds-dir", "c", daemon.DefaultCredsDir, "Directory to write credential files to")
	credentialDaemonCmd.PersistentFlags().IntVarP(&credsInterval, "interval", "i", int(daemon.DefaultCredsCycle.Seconds()), "Refresh interval in seconds")
	RootCmd.AddCommand(credentialDaemonCmd)
}

func credentialDaemon(cmd *cobra.Command, args []string) error {
	settings, err := loadSettings()
	if err != nil {
		return err
	}

	provider, err := newProvider(cmd.Context(), settings)
	if err != nil {
		return err
	}

	d := daemon.NewCredentialFileDaemon(provider, credsDir, settings.Region, time.Duration(credsInterval)*time.Second)
	return d.Run(cmd.Context())
}
