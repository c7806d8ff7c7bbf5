package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/quailyquaily/verabot/cmd/verabot/servecmd"
	"github.com/quailyquaily/verabot/internal/config"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "verabot",
		Short:         "Slack assistant backed by Bedrock models and MCP tools",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return initViper(cmd)
		},
	}

	cmd.PersistentFlags().String("config", "", "Path to a config file (YAML).")
	cmd.PersistentFlags().Bool("debug", false, "Enable debug logging.")

	cmd.AddCommand(servecmd.New())
	return cmd
}

func initViper(cmd *cobra.Command) error {
	config.SetDefaults(viper.GetViper())
	viper.SetEnvPrefix(config.EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if path, _ := cmd.Flags().GetString("config"); strings.TrimSpace(path) != "" {
		viper.SetConfigFile(path)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("read config file: %w", err)
		}
	}
	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		viper.Set("debug", true)
	}
	return nil
}
