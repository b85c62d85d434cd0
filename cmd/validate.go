package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/augument/impulsecommunicator/internal/config"
)

// summary is what validate prints. Secrets are masked.
type summary struct {
	AuthFile string              `yaml:"auth_file"`
	RunFile  string              `yaml:"run_file"`
	Auth     config.AuthSettings `yaml:"auth"`
	Rules    []config.ReplyRule  `yaml:"rules"`
	Warnings []string            `yaml:"warnings,omitempty"`
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the auth and run settings without connecting",
	Long:  `Loads and validates both settings files, applies the environment overrides and prints the result as YAML with secrets masked.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := loadEnvFile(envFile); err != nil {
			return err
		}
		settings, err := config.LoadAuthSettings(authPath)
		if err != nil {
			return err
		}
		rules, err := config.LoadRunSettings(runPath)
		if err != nil {
			return err
		}

		s := summary{
			AuthFile: authPath,
			RunFile:  runPath,
			Auth:     settings.Redacted(),
			Rules:    rules,
		}
		for i, r := range rules {
			if r.Unreachable() {
				s.Warnings = append(s.Warnings, fmt.Sprintf("rule %d (%s): reply_on=post with reply_to=invoker never matches", i, r.BotName))
			}
		}

		out, err := yaml.Marshal(s)
		if err != nil {
			return fmt.Errorf("encoding summary: %w", err)
		}
		_, err = cmd.OutOrStdout().Write(out)
		return err
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
