package cmd

import (
	"github.com/spf13/cobra"

	"github.com/augument/impulsecommunicator/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the auth and run settings with an interactive wizard",
	Long:  `Runs an interactive wizard that asks for the Reddit credentials and the reply rules, then writes the auth and run settings files.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := loadEnvFile(envFile); err != nil {
			return err
		}
		_, _, err := config.RunWizard(config.WizardPaths{Auth: authPath, Run: runPath})
		return err
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
